package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError is the tagged error representation used throughout the service.
// Code identifies the error kind for callers; Message is the exact text
// rendered to clients at the HTTP boundary.
type AppError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	StatusCode int    `json:"-"`
	Internal   error  `json:"-"`
}

func (e *AppError) Error() string {
	if e == nil {
		return "<nil>"
	}

	if e.Internal != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Internal)
	}

	return e.Message
}

// Unwrap exposes the internal error for errors.Is / errors.As compatibility.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Internal
}

// WithInternal returns a copy of the AppError with an attached internal error.
func (e *AppError) WithInternal(err error) *AppError {
	if e == nil {
		return nil
	}

	cpy := *e
	cpy.Internal = err
	return &cpy
}

// Authentication and account-state errors. Message strings are load-bearing:
// the storefront client matches on them, so they must not drift.
var (
	ErrInvalidCredentials = &AppError{
		Code:       "auth.invalid_credentials",
		Message:    "Invalid credentials",
		StatusCode: http.StatusBadRequest,
	}

	ErrAccountLocked = &AppError{
		Code:       "auth.account_locked",
		Message:    "Account locked due to too many failed login attempts. Try again in 15 minutes.",
		StatusCode: http.StatusForbidden,
	}

	ErrUserBlocked = &AppError{
		Code:       "auth.user_blocked",
		Message:    "User is blocked. Please contact support.",
		StatusCode: http.StatusForbidden,
	}

	ErrPasswordExpired = &AppError{
		Code:       "auth.password_expired",
		Message:    "Password expired. Please reset your password.",
		StatusCode: http.StatusForbidden,
	}

	ErrInvalidTwoFactorCode = &AppError{
		Code:       "auth.two_factor_invalid",
		Message:    "Invalid 2FA code",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidOTP = &AppError{
		Code:       "auth.otp_invalid",
		Message:    "Invalid or expired OTP code",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidUser = &AppError{
		Code:       "auth.invalid_user",
		Message:    "Invalid user",
		StatusCode: http.StatusBadRequest,
	}

	ErrNoRefreshToken = &AppError{
		Code:       "auth.refresh_missing",
		Message:    "No refresh token",
		StatusCode: http.StatusUnauthorized,
	}

	ErrInvalidRefreshToken = &AppError{
		Code:       "auth.refresh_invalid",
		Message:    "Invalid refresh token",
		StatusCode: http.StatusUnauthorized,
	}

	ErrUnauthorized = &AppError{
		Code:       "auth.unauthorized",
		Message:    "Authentication required",
		StatusCode: http.StatusUnauthorized,
	}
)

// Registration and password-policy errors.
var (
	ErrUserExists = &AppError{
		Code:       "register.duplicate",
		Message:    "User already exists",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidName = &AppError{
		Code:       "validation.name",
		Message:    "Name must be at least 2 letters and only contain letters and spaces.",
		StatusCode: http.StatusBadRequest,
	}

	ErrInvalidEmail = &AppError{
		Code:       "validation.email",
		Message:    "Invalid email format.",
		StatusCode: http.StatusBadRequest,
	}

	ErrWeakPassword = &AppError{
		Code:       "validation.password_strength",
		Message:    "Password must be at least 8 characters, include upper, lower, number, and special character.",
		StatusCode: http.StatusBadRequest,
	}

	ErrPasswordReused = &AppError{
		Code:       "validation.password_reuse",
		Message:    "You cannot reuse your last 2 passwords.",
		StatusCode: http.StatusBadRequest,
	}

	ErrRecaptchaFailed = &AppError{
		Code:       "dependency.recaptcha",
		Message:    "Recaptcha verification failed",
		StatusCode: http.StatusBadRequest,
	}
)

// Reset-flow and generic errors.
var (
	ErrUserNotFound = &AppError{
		Code:       "user.not_found",
		Message:    "User not found",
		StatusCode: http.StatusNotFound,
	}

	ErrResetTokenInvalid = &AppError{
		Code:       "reset.token_invalid",
		Message:    "Invalid or expired token",
		StatusCode: http.StatusBadRequest,
	}

	ErrResetFailed = &AppError{
		Code:       "reset.failed",
		Message:    "Failed to reset password. Try again later.",
		StatusCode: http.StatusInternalServerError,
	}

	ErrOTPEmailFailed = &AppError{
		Code:       "dependency.mail",
		Message:    "Failed to send OTP email",
		StatusCode: http.StatusInternalServerError,
	}

	ErrInternalServer = &AppError{
		Code:       "internal",
		Message:    "Internal server error",
		StatusCode: http.StatusInternalServerError,
	}

	ErrRateLimit = &AppError{
		Code:       "rate_limited",
		Message:    "Too many requests, please slow down",
		StatusCode: http.StatusTooManyRequests,
	}

	ErrCSRFInvalid = &AppError{
		Code:       "csrf.invalid",
		Message:    "Invalid CSRF token",
		StatusCode: http.StatusForbidden,
	}
)

// NewLockoutActive reports a lockout still in force, embedding the remaining
// minutes in the historical message format.
func NewLockoutActive(minutes int) *AppError {
	return &AppError{
		Code:       "auth.lockout_active",
		Message:    fmt.Sprintf("Account locked. Try again in %d minute(s).", minutes),
		StatusCode: http.StatusForbidden,
	}
}

// New builds a new application error with the provided metadata.
func New(code, message string, statusCode int) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
	}
}

// Wrap turns any error into an AppError while keeping the original error for logging.
func Wrap(err error, message string) *AppError {
	return &AppError{
		Code:       "internal",
		Message:    message,
		StatusCode: http.StatusInternalServerError,
		Internal:   err,
	}
}

// FromError converts a generic error into an AppError, defaulting to ErrInternalServer.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	return ErrInternalServer.WithInternal(err)
}

// NewBadRequest wraps validation errors with a helpful message.
func NewBadRequest(message string) *AppError {
	return &AppError{
		Code:       "bad_request",
		Message:    message,
		StatusCode: http.StatusBadRequest,
	}
}
