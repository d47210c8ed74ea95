package mfa

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"
	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/models"
	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
)

const (
	defaultIssuer     = "brewstore"
	defaultQRCodeSize = 256
)

// Option allows customising the TOTP service.
type Option func(*TOTPService)

// WithIssuer overrides the issuer string encoded in provisioning URIs.
func WithIssuer(issuer string) Option {
	return func(s *TOTPService) {
		if strings.TrimSpace(issuer) != "" {
			s.issuer = issuer
		}
	}
}

// WithQRCodeSize controls the pixel size of generated QR codes.
func WithQRCodeSize(size int) Option {
	return func(s *TOTPService) {
		if size > 0 {
			s.qrCodeSize = size
		}
	}
}

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(s *TOTPService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// TOTPService manages opt-in two-factor secrets on user records: provisioning,
// confirmation, verification during login, and disablement.
type TOTPService struct {
	db *gorm.DB

	issuer     string
	qrCodeSize int
	now        func() time.Time
}

// NewTOTPService constructs a TOTP service backed by the provided database.
func NewTOTPService(db *gorm.DB, opts ...Option) (*TOTPService, error) {
	if db == nil {
		return nil, errors.New("totp: db is required")
	}

	service := &TOTPService{
		db:         db,
		issuer:     defaultIssuer,
		qrCodeSize: defaultQRCodeSize,
		now:        time.Now,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// GenerateSecret provisions a new TOTP secret for the user. Two-factor stays
// disabled until the user proves possession via Confirm.
func (s *TOTPService) GenerateSecret(user *models.User) (*otp.Key, error) {
	if user == nil {
		return nil, errors.New("totp: user is required")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      s.issuer,
		AccountName: user.Email,
	})
	if err != nil {
		return nil, fmt.Errorf("totp: generate key: %w", err)
	}

	user.TwoFactorSecret = key.Secret()
	user.TwoFactorEnabled = false

	if err := s.db.Model(user).Updates(map[string]any{
		"two_factor_secret":  key.Secret(),
		"two_factor_enabled": false,
	}).Error; err != nil {
		return nil, fmt.Errorf("totp: store secret: %w", err)
	}

	return key, nil
}

// QRCodePNG renders the provisioning URI for the key as a PNG QR code.
func (s *TOTPService) QRCodePNG(key *otp.Key) ([]byte, error) {
	if key == nil {
		return nil, errors.New("totp: key is required")
	}
	return qrcode.Encode(key.String(), qrcode.Medium, s.qrCodeSize)
}

// VerifyCode checks a submitted code against the user's stored secret using
// the standard 30-second step and default skew tolerance.
func (s *TOTPService) VerifyCode(user *models.User, code string) bool {
	if user == nil || user.TwoFactorSecret == "" {
		return false
	}
	return totp.Validate(strings.TrimSpace(code), user.TwoFactorSecret)
}

// Confirm enables two-factor once the user submits a valid code for the
// freshly provisioned secret.
func (s *TOTPService) Confirm(user *models.User, code string) error {
	if !s.VerifyCode(user, code) {
		return apperrors.ErrInvalidTwoFactorCode
	}

	user.TwoFactorEnabled = true
	if err := s.db.Model(user).Update("two_factor_enabled", true).Error; err != nil {
		return fmt.Errorf("totp: enable: %w", err)
	}
	return nil
}

// Disable clears the secret and flag. No fresh proof is demanded beyond the
// authenticated session, matching the storefront's historical behaviour.
func (s *TOTPService) Disable(user *models.User) error {
	user.TwoFactorEnabled = false
	user.TwoFactorSecret = ""

	if err := s.db.Model(user).Updates(map[string]any{
		"two_factor_enabled": false,
		"two_factor_secret":  "",
	}).Error; err != nil {
		return fmt.Errorf("totp: disable: %w", err)
	}
	return nil
}
