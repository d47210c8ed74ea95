package maintenance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/models"
	"github.com/brewstore/brewstore-server/pkg/logger"
)

const (
	defaultTokenSpec = "@daily"
	defaultOTPSpec   = "@hourly"
)

// Cleaner coordinates background maintenance tasks: purging consumed or
// expired password-reset tokens and clearing stale OTP state off user rows.
type Cleaner struct {
	db   *gorm.DB
	cron *cron.Cron
	now  func() time.Time
	log  *zap.Logger

	tokenSchedule string
	otpSchedule   string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithNow overrides the clock used for cleanup comparisons.
func WithNow(now func() time.Time) Option {
	return func(cleaner *Cleaner) {
		if now != nil {
			cleaner.now = now
		}
	}
}

// WithTokenSchedule overrides the cron specification for reset-token cleanup.
func WithTokenSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.tokenSchedule = spec
		}
	}
}

// WithOTPSchedule overrides the cron specification for stale-OTP cleanup.
func WithOTPSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.otpSchedule = spec
		}
	}
}

// NewCleaner constructs a Cleaner with sensible defaults.
func NewCleaner(db *gorm.DB, opts ...Option) (*Cleaner, error) {
	if db == nil {
		return nil, errors.New("maintenance: db is required")
	}

	cleaner := &Cleaner{
		db:            db,
		now:           time.Now,
		tokenSchedule: defaultTokenSpec,
		otpSchedule:   defaultOTPSpec,
		log:           logger.WithModule("maintenance"),
	}

	for _, opt := range opts {
		opt(cleaner)
	}

	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}

	return cleaner, nil
}

// Start registers cleanup jobs with the cron scheduler and launches it.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.tokenSchedule, func() {
		if _, err := CleanupResetTokens(context.Background(), c.db, c.now()); err != nil {
			c.log.Warn("reset token cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	if _, err := c.cron.AddFunc(c.otpSchedule, func() {
		if _, err := CleanupExpiredOTPs(context.Background(), c.db, c.now()); err != nil {
			c.log.Warn("otp cleanup failed", zap.Error(err))
		}
	}); err != nil {
		return err
	}

	c.cron.Start()
	return nil
}

// Stop halts the underlying scheduler, waiting for any running jobs to complete.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes all cleanup routines sequentially. Primarily used in tests
// and during graceful shutdown.
func (c *Cleaner) RunOnce(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	var errs error

	if _, err := CleanupResetTokens(ctx, c.db, c.now()); err != nil {
		errs = multierr.Append(errs, err)
	}

	if _, err := CleanupExpiredOTPs(ctx, c.db, c.now()); err != nil {
		errs = multierr.Append(errs, err)
	}

	return errs
}

// CleanupResetTokens removes password-reset tokens that have expired or were
// already consumed.
func CleanupResetTokens(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("expires_at < ? OR used_at IS NOT NULL", now).
		Delete(&models.PasswordResetToken{})
	if result.Error != nil {
		return 0, fmt.Errorf("maintenance: reset tokens: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// CleanupExpiredOTPs clears expired one-time codes off user rows so dead codes
// do not linger in the table.
func CleanupExpiredOTPs(ctx context.Context, db *gorm.DB, now time.Time) (int64, error) {
	result := db.WithContext(ctx).Model(&models.User{}).
		Where("otp_expires_at IS NOT NULL AND otp_expires_at < ?", now).
		Updates(map[string]any{
			"otp_code":       "",
			"otp_expires_at": nil,
		})
	if result.Error != nil {
		return 0, fmt.Errorf("maintenance: expired otps: %w", result.Error)
	}
	return result.RowsAffected, nil
}
