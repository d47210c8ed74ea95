package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/auth"
	"github.com/brewstore/brewstore-server/internal/models"
	"github.com/brewstore/brewstore-server/pkg/crypto"
	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/logger"
	"github.com/brewstore/brewstore-server/pkg/mail"
)

// DefaultResetTokenTTL is how long a password reset link stays valid.
const DefaultResetTokenTTL = time.Hour

const resetTokenBytes = 32

// PasswordResetConfig carries the tunables for the reset flow.
type PasswordResetConfig struct {
	// FrontendURL is the base the reset link is built on, e.g.
	// https://shop.example.com. The token is appended as a path segment.
	FrontendURL string
	TokenTTL    time.Duration
	Clock       func() time.Time
}

// PasswordResetService implements the forgot-password flow: single-use emailed
// links whose tokens are stored only as SHA-256 digests.
type PasswordResetService struct {
	db     *gorm.DB
	mailer mail.Mailer
	policy *auth.PasswordPolicy

	frontendURL string
	ttl         time.Duration
	now         func() time.Time
}

// NewPasswordResetService wires the reset flow.
func NewPasswordResetService(db *gorm.DB, mailer mail.Mailer, policy *auth.PasswordPolicy, cfg PasswordResetConfig) (*PasswordResetService, error) {
	if db == nil {
		return nil, errors.New("password reset service: db is required")
	}
	if mailer == nil {
		return nil, errors.New("password reset service: mailer is required")
	}
	if policy == nil {
		return nil, errors.New("password reset service: password policy is required")
	}

	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = DefaultResetTokenTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &PasswordResetService{
		db:          db,
		mailer:      mailer,
		policy:      policy,
		frontendURL: strings.TrimRight(cfg.FrontendURL, "/"),
		ttl:         ttl,
		now:         clock,
	}, nil
}

// Request issues a fresh reset token for the account and emails the link.
// The address may be the account's primary email or any verified secondary
// address, same as login. Any previously issued tokens for the account are
// invalidated. The raw token never touches the database; only its digest is
// stored.
func (s *PasswordResetService) Request(ctx context.Context, email string) error {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Or("id IN (?)", s.db.Model(&models.UserEmail{}).
			Select("user_id").
			Where("address = ? AND verified = ?", email, true)).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrUserNotFound
		}
		return fmt.Errorf("password reset service: find user: %w", err)
	}

	token, err := crypto.GenerateHexToken(resetTokenBytes)
	if err != nil {
		return fmt.Errorf("password reset service: generate token: %w", err)
	}

	record := models.PasswordResetToken{
		UserID:    user.ID,
		TokenHash: hashResetToken(token),
		ExpiresAt: s.now().Add(s.ttl),
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("user_id = ?", user.ID).
			Delete(&models.PasswordResetToken{}).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return fmt.Errorf("password reset service: store token: %w", err)
	}

	link := s.frontendURL + "/reset-password/" + token
	message := mail.Message{
		To:      []string{user.Email},
		Subject: "brewstore Password Reset",
		Body:    resetEmailBody(user.Name, link),
	}
	if mailErr := s.mailer.Send(ctx, message); mailErr != nil {
		logger.Error("password reset email delivery failed", zap.Error(mailErr))
		return apperrors.ErrResetFailed.WithInternal(mailErr)
	}

	return nil
}

// Reset consumes a token and sets the new password. The token must be known,
// unused, and unexpired; the new password must meet the strength rules and
// must differ from the last two passwords on record.
func (s *PasswordResetService) Reset(ctx context.Context, token, newPassword string) error {
	newPassword = strings.TrimSpace(newPassword)

	var record models.PasswordResetToken
	err := s.db.WithContext(ctx).
		Where("token_hash = ?", hashResetToken(token)).
		Take(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrResetTokenInvalid
		}
		return fmt.Errorf("password reset service: find token: %w", err)
	}

	now := s.now()
	if record.UsedAt != nil || !now.Before(record.ExpiresAt) {
		return apperrors.ErrResetTokenInvalid
	}

	if !s.policy.ValidateStrength(newPassword) {
		return apperrors.ErrWeakPassword
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", record.UserID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrResetTokenInvalid
		}
		return fmt.Errorf("password reset service: find user: %w", err)
	}

	if !s.policy.CheckNotReused(newPassword, user.PasswordHistory) {
		return apperrors.ErrPasswordReused
	}

	hash, err := crypto.HashPassword(newPassword)
	if err != nil {
		return apperrors.ErrResetFailed.WithInternal(err)
	}

	history := s.policy.Record(user.PasswordHistory, hash)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&user).Updates(map[string]any{
			"password_hash":         hash,
			"password_history":      datatypes.NewJSONSlice(history),
			"password_last_changed": now,
			"failed_login_attempts": 0,
			"lockout_until":         nil,
		}).Error; err != nil {
			return err
		}
		return tx.Model(&record).Update("used_at", now).Error
	})
	if err != nil {
		return apperrors.ErrResetFailed.WithInternal(err)
	}

	return nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func resetEmailBody(name, link string) string {
	return fmt.Sprintf(`Hi %s,

We received a request to reset your brewstore password.

Click the link below to choose a new password:

    %s

This link will expire in 1 hour. If you didn't request a reset, you can
safely ignore this email.

brewstore - Your Coffee Journey
`, name, link)
}
