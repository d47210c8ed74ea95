package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/models"
	"github.com/brewstore/brewstore-server/pkg/crypto"
	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/mail"
	"github.com/brewstore/brewstore-server/pkg/metrics"
)

// DefaultOTPTTL is the validity window for emailed one-time codes.
const DefaultOTPTTL = 5 * time.Minute

// OTPConfig describes tunable behaviour for the OTP service.
type OTPConfig struct {
	TTL   time.Duration
	Clock func() time.Time
}

// OTPService generates, delivers, and verifies the email one-time codes that
// gate the final login step. Code state lives on the user record.
type OTPService struct {
	db     *gorm.DB
	mailer mail.Mailer
	ttl    time.Duration
	now    func() time.Time
}

// NewOTPService constructs an OTP service backed by the provided database and mailer.
func NewOTPService(db *gorm.DB, mailer mail.Mailer, cfg OTPConfig) (*OTPService, error) {
	if db == nil {
		return nil, errors.New("otp service: db is required")
	}
	if mailer == nil {
		return nil, errors.New("otp service: mailer is required")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}

	clock := time.Now
	if cfg.Clock != nil {
		clock = cfg.Clock
	}

	return &OTPService{
		db:     db,
		mailer: mailer,
		ttl:    ttl,
		now:    clock,
	}, nil
}

// Issue generates a fresh code, persists it with a new expiry window, and
// emails it to the account's primary address. A delivery failure is reported
// to the caller while the stored code survives, so a later resend or retry
// can proceed.
func (s *OTPService) Issue(ctx context.Context, user *models.User, channel string) error {
	code, err := crypto.GenerateOTP()
	if err != nil {
		return fmt.Errorf("otp service: generate code: %w", err)
	}

	expires := s.now().Add(s.ttl)
	user.OTPCode = code
	user.OTPExpiresAt = &expires
	user.OTPVerified = false

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"otp_code":       code,
		"otp_expires_at": expires,
		"otp_verified":   false,
	}).Error; err != nil {
		return fmt.Errorf("otp service: store code: %w", err)
	}

	metrics.OTPIssued.WithLabelValues(channel).Inc()

	message := mail.Message{
		To:      []string{user.Email},
		Subject: "brewstore Login OTP Verification",
		Body:    otpEmailBody(code),
	}
	if mailErr := s.mailer.Send(ctx, message); mailErr != nil {
		return apperrors.ErrOTPEmailFailed.WithInternal(mailErr)
	}

	return nil
}

// Verify checks the submitted code against the stored one. A code is accepted
// only when it matches exactly and the current time is strictly before the
// expiry. On success the code is cleared, making it single-use.
func (s *OTPService) Verify(ctx context.Context, user *models.User, code string) error {
	if user.OTPCode == "" || user.OTPCode != code ||
		user.OTPExpiresAt == nil || !s.now().Before(*user.OTPExpiresAt) {
		return apperrors.ErrInvalidOTP
	}

	user.OTPCode = ""
	user.OTPExpiresAt = nil
	user.OTPVerified = true

	if err := s.db.WithContext(ctx).Model(user).Updates(map[string]any{
		"otp_code":       "",
		"otp_expires_at": nil,
		"otp_verified":   true,
	}).Error; err != nil {
		return fmt.Errorf("otp service: clear code: %w", err)
	}

	return nil
}

func otpEmailBody(code string) string {
	return fmt.Sprintf(`brewstore Security Verification

Your login verification code is:

    %s

This code will expire in 5 minutes.

If you didn't request this code, please ignore this email.

brewstore - Your Coffee Journey
`, code)
}
