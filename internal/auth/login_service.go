package auth

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/brewstore/brewstore-server/internal/auth/mfa"
	"github.com/brewstore/brewstore-server/internal/models"
	"github.com/brewstore/brewstore-server/pkg/crypto"
	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/metrics"
	"github.com/brewstore/brewstore-server/pkg/validator"
)

var namePattern = regexp.MustCompile(`^[A-Za-z\s]{2,}$`)

// RecaptchaVerifier proves that a registration request came from a human.
type RecaptchaVerifier interface {
	Verify(ctx context.Context, token string) error
}

// LoginOutcome distinguishes the three non-error results of a login request.
type LoginOutcome int

const (
	// OutcomeAuthenticated means the flow is complete and tokens were issued.
	OutcomeAuthenticated LoginOutcome = iota
	// OutcomeTwoFactorRequired means the password matched but a TOTP code is needed.
	OutcomeTwoFactorRequired
	// OutcomeOTPRequired means all checks passed and an email code was dispatched.
	OutcomeOTPRequired
)

// LoginInput carries the fields of a login request. UserID and OTPCode are set
// only on the continuation request of a pending attempt.
type LoginInput struct {
	Email         string
	Password      string
	TwoFactorCode string
	UserID        string
	OTPCode       string
}

// LoginResult is returned for every non-error login outcome.
type LoginResult struct {
	Outcome      LoginOutcome
	User         *models.User
	AccessToken  string
	RefreshToken string
}

// RegisterInput captures the details required to register a new account.
type RegisterInput struct {
	Name           string
	Email          string
	Password       string
	RecaptchaToken string
}

// LoginService orchestrates the multi-step login protocol: password
// verification, lockout accounting, the optional TOTP gate, the mandatory
// email-OTP gate, and token issuance.
type LoginService struct {
	db        *gorm.DB
	tokens    *TokenService
	totp      *mfa.TOTPService
	otp       *OTPService
	policy    *PasswordPolicy
	lockout   *LockoutGuard
	recaptcha RecaptchaVerifier
	now       func() time.Time
}

// LoginDeps bundles the collaborators required by the LoginService.
type LoginDeps struct {
	DB        *gorm.DB
	Tokens    *TokenService
	TOTP      *mfa.TOTPService
	OTP       *OTPService
	Policy    *PasswordPolicy
	Lockout   *LockoutGuard
	Recaptcha RecaptchaVerifier
	Clock     func() time.Time
}

// NewLoginService wires the orchestrator. All dependencies except the clock
// are mandatory.
func NewLoginService(deps LoginDeps) (*LoginService, error) {
	switch {
	case deps.DB == nil:
		return nil, errors.New("login service: db is required")
	case deps.Tokens == nil:
		return nil, errors.New("login service: token service is required")
	case deps.TOTP == nil:
		return nil, errors.New("login service: totp service is required")
	case deps.OTP == nil:
		return nil, errors.New("login service: otp service is required")
	case deps.Policy == nil:
		return nil, errors.New("login service: password policy is required")
	case deps.Lockout == nil:
		return nil, errors.New("login service: lockout guard is required")
	case deps.Recaptcha == nil:
		return nil, errors.New("login service: recaptcha verifier is required")
	}

	clock := time.Now
	if deps.Clock != nil {
		clock = deps.Clock
	}

	return &LoginService{
		db:        deps.DB,
		tokens:    deps.Tokens,
		totp:      deps.TOTP,
		otp:       deps.OTP,
		policy:    deps.Policy,
		lockout:   deps.Lockout,
		recaptcha: deps.Recaptcha,
		now:       clock,
	}, nil
}

// Register creates a new account after input, uniqueness, and recaptcha checks.
func (s *LoginService) Register(ctx context.Context, input RegisterInput) error {
	name := strings.TrimSpace(input.Name)
	email := strings.ToLower(strings.TrimSpace(input.Email))
	password := strings.TrimSpace(input.Password)

	if !namePattern.MatchString(name) {
		return apperrors.ErrInvalidName
	}
	if !validator.IsEmail(email) {
		return apperrors.ErrInvalidEmail
	}
	if !s.policy.ValidateStrength(password) {
		return apperrors.ErrWeakPassword
	}

	var existing models.User
	err := s.db.WithContext(ctx).Where("email = ?", email).Take(&existing).Error
	if err == nil {
		return apperrors.ErrUserExists
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("login service: check duplicate: %w", err)
	}

	if err := s.recaptcha.Verify(ctx, input.RecaptchaToken); err != nil {
		return err
	}

	hash, err := crypto.HashPassword(password)
	if err != nil {
		return fmt.Errorf("login service: hash password: %w", err)
	}

	now := s.now()
	user := &models.User{
		Name:                name,
		Email:               email,
		PasswordHash:        hash,
		PasswordHistory:     datatypes.NewJSONSlice([]string{hash}),
		PasswordLastChanged: now,
		Emails: []models.UserEmail{
			{Address: email, Verified: true},
		},
	}

	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		return fmt.Errorf("login service: create user: %w", err)
	}

	return nil
}

// Login runs one step of the login protocol. A request carrying a user id and
// OTP code continues a pending attempt; anything else starts a fresh one.
func (s *LoginService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	if input.UserID != "" && input.OTPCode != "" {
		return s.completeOTP(ctx, input.UserID, input.OTPCode)
	}

	user, err := s.FindByEmail(ctx, input.Email)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Identical message to a wrong password so accounts
			// cannot be enumerated.
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidCredentials
		}
		return nil, err
	}

	if err := s.lockout.Check(user); err != nil {
		metrics.AuthAttempts.WithLabelValues("locked").Inc()
		return nil, err
	}

	if user.IsBlocked {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrUserBlocked
	}

	if s.policy.IsExpired(user.PasswordLastChanged, s.now()) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrPasswordExpired
	}

	if !crypto.VerifyPassword(user.PasswordHash, input.Password) {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, s.lockout.RegisterFailure(user)
	}

	// Counters reset at password-match time: a correct password always
	// clears the lockout state even if a later 2FA or OTP step fails.
	if err := s.lockout.Clear(user); err != nil {
		return nil, err
	}

	if user.TwoFactorEnabled {
		if input.TwoFactorCode == "" {
			metrics.AuthAttempts.WithLabelValues("two_factor_pending").Inc()
			return &LoginResult{Outcome: OutcomeTwoFactorRequired, User: user}, nil
		}
		if !s.totp.VerifyCode(user, input.TwoFactorCode) {
			metrics.AuthAttempts.WithLabelValues("failure").Inc()
			return nil, apperrors.ErrInvalidTwoFactorCode
		}
	}

	if err := s.otp.Issue(ctx, user, "email"); err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("otp_pending").Inc()
	return &LoginResult{Outcome: OutcomeOTPRequired, User: user}, nil
}

// completeOTP finishes a pending attempt: the stored email code must match and
// still be inside its window, after which tokens are issued.
func (s *LoginService) completeOTP(ctx context.Context, userID, code string) (*LoginResult, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidUser
		}
		return nil, fmt.Errorf("login service: find user: %w", err)
	}

	if err := s.otp.Verify(ctx, &user, code); err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		return nil, err
	}

	access, refresh, err := s.issueSession(ctx, &user)
	if err != nil {
		return nil, err
	}

	metrics.AuthAttempts.WithLabelValues("success").Inc()
	return &LoginResult{
		Outcome:      OutcomeAuthenticated,
		User:         &user,
		AccessToken:  access,
		RefreshToken: refresh,
	}, nil
}

// ResendOTP regenerates and re-emails a fresh code for a pending attempt
// without invalidating the attempt itself.
func (s *LoginService) ResendOTP(ctx context.Context, userID string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, fmt.Errorf("login service: find user: %w", err)
	}

	if err := s.otp.Issue(ctx, &user, "resend"); err != nil {
		return nil, err
	}

	return &user, nil
}

// Refresh rotates the refresh token and issues a new access token. Rotation is
// a compare-and-swap on the stored token value so two concurrent refresh calls
// cannot both succeed.
func (s *LoginService) Refresh(ctx context.Context, presented string) (*LoginResult, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil, apperrors.ErrNoRefreshToken
	}

	claims, err := s.tokens.ValidateRefreshToken(presented)
	if err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidRefreshToken
	}

	var user models.User
	if err := s.db.WithContext(ctx).Take(&user, "id = ?", claims.UserID).Error; err != nil {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrInvalidRefreshToken
		}
		return nil, fmt.Errorf("login service: find user: %w", err)
	}

	if user.RefreshToken != presented {
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidRefreshToken
	}

	newRefresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login service: issue refresh token: %w", err)
	}

	result := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND refresh_token = ?", user.ID, presented).
		Update("refresh_token", newRefresh)
	if result.Error != nil {
		return nil, fmt.Errorf("login service: rotate refresh token: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		// Lost the rotation race, or the token was rotated out between
		// the read and the swap.
		metrics.TokenRefreshes.WithLabelValues("failure").Inc()
		return nil, apperrors.ErrInvalidRefreshToken
	}

	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return nil, fmt.Errorf("login service: issue access token: %w", err)
	}

	user.RefreshToken = newRefresh
	metrics.TokenRefreshes.WithLabelValues("success").Inc()
	return &LoginResult{
		Outcome:      OutcomeAuthenticated,
		User:         &user,
		AccessToken:  access,
		RefreshToken: newRefresh,
	}, nil
}

// Logout invalidates the session matching the presented refresh token. A
// missing or unknown token is not an error; the cookies are cleared regardless.
func (s *LoginService) Logout(ctx context.Context, presented string) error {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return nil
	}

	err := s.db.WithContext(ctx).Model(&models.User{}).
		Where("refresh_token = ?", presented).
		Update("refresh_token", "").Error
	if err != nil {
		return fmt.Errorf("login service: clear refresh token: %w", err)
	}
	return nil
}

// FindByEmail locates an account by its primary address or any verified
// secondary address.
func (s *LoginService) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	var user models.User
	err := s.db.WithContext(ctx).
		Where("email = ?", email).
		Or("id IN (?)", s.db.Model(&models.UserEmail{}).
			Select("user_id").
			Where("address = ? AND verified = ?", email, true)).
		Take(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *LoginService) issueSession(ctx context.Context, user *models.User) (string, string, error) {
	access, err := s.tokens.IssueAccessToken(user.ID)
	if err != nil {
		return "", "", fmt.Errorf("login service: issue access token: %w", err)
	}

	refresh, err := s.tokens.IssueRefreshToken(user.ID)
	if err != nil {
		return "", "", fmt.Errorf("login service: issue refresh token: %w", err)
	}

	// Overwriting the stored token is what invalidates any previous
	// session: one active refresh token per account.
	if err := s.db.WithContext(ctx).Model(user).
		Update("refresh_token", refresh).Error; err != nil {
		return "", "", fmt.Errorf("login service: store refresh token: %w", err)
	}

	user.RefreshToken = refresh
	return access, refresh, nil
}
