package auth

import (
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/models"
	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/metrics"
)

const (
	// DefaultLockoutThreshold is the number of consecutive password
	// mismatches that triggers a lockout.
	DefaultLockoutThreshold = 10
	// DefaultLockoutDuration is how long a triggered lockout lasts.
	DefaultLockoutDuration = 15 * time.Minute
)

// LockoutConfig defines tunable behaviour for the lockout guard.
type LockoutConfig struct {
	Threshold int
	Duration  time.Duration
	Clock     func() time.Time
}

// LockoutGuard tracks failed login attempts per account and enforces the
// timed lockout. State lives on the user record.
type LockoutGuard struct {
	db        *gorm.DB
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutGuard builds a guard with the storefront defaults.
func NewLockoutGuard(db *gorm.DB, cfg LockoutConfig) (*LockoutGuard, error) {
	if db == nil {
		return nil, errors.New("lockout guard: db is required")
	}

	threshold := cfg.Threshold
	if threshold <= 0 {
		threshold = DefaultLockoutThreshold
	}

	duration := cfg.Duration
	if duration <= 0 {
		duration = DefaultLockoutDuration
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &LockoutGuard{
		db:        db,
		threshold: threshold,
		duration:  duration,
		now:       clock,
	}, nil
}

// Check refuses the attempt when a lockout is still in force, reporting the
// remaining minutes. The password is never examined while locked.
func (g *LockoutGuard) Check(user *models.User) error {
	now := g.now()
	if user.LockoutUntil != nil && user.LockoutUntil.After(now) {
		minutes := int((user.LockoutUntil.Sub(now) + time.Minute - 1) / time.Minute)
		return apperrors.NewLockoutActive(minutes)
	}
	return nil
}

// RegisterFailure increments the failure counter, locking the account when the
// threshold is reached. The returned error is the one to surface to the client.
func (g *LockoutGuard) RegisterFailure(user *models.User) error {
	user.FailedLoginAttempts++

	updates := map[string]any{
		"failed_login_attempts": user.FailedLoginAttempts,
	}

	if user.FailedLoginAttempts >= g.threshold {
		until := g.now().Add(g.duration)
		user.LockoutUntil = &until
		updates["lockout_until"] = until
	}

	if err := g.db.Model(user).Updates(updates).Error; err != nil {
		return fmt.Errorf("lockout guard: record failed attempt: %w", err)
	}

	if user.LockoutUntil != nil && user.LockoutUntil.After(g.now()) {
		metrics.Lockouts.Inc()
		return apperrors.ErrAccountLocked
	}

	// Same message for every pre-lock mismatch so the remaining attempt
	// count cannot be probed.
	return apperrors.ErrInvalidCredentials
}

// Clear resets the counter and lockout timestamp. Called at password-match
// time, before any 2FA or OTP step runs.
func (g *LockoutGuard) Clear(user *models.User) error {
	user.FailedLoginAttempts = 0
	user.LockoutUntil = nil

	if err := g.db.Model(user).Updates(map[string]any{
		"failed_login_attempts": 0,
		"lockout_until":         nil,
	}).Error; err != nil {
		return fmt.Errorf("lockout guard: reset counters: %w", err)
	}
	return nil
}
