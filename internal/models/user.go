package models

import (
	"time"

	"gorm.io/datatypes"
)

// MaxPasswordHistory bounds the stored password-hash history used to block
// reuse: the current hash plus the one before it.
const MaxPasswordHistory = 2

// User is the credential record for a storefront account. One row per
// account; login, password reset, 2FA management, and token rotation all
// mutate this record.
type User struct {
	BaseModel

	Name  string `gorm:"not null" json:"name"`
	Email string `gorm:"uniqueIndex;not null" json:"email"`

	PasswordHash string `gorm:"column:password_hash;not null" json:"-"`

	// PasswordHistory holds the last MaxPasswordHistory bcrypt hashes,
	// most recent first.
	PasswordHistory     datatypes.JSONSlice[string] `json:"-"`
	PasswordLastChanged time.Time                   `json:"-"`

	FailedLoginAttempts int        `gorm:"default:0" json:"-"`
	LockoutUntil        *time.Time `json:"-"`

	TwoFactorEnabled bool   `gorm:"default:false" json:"two_factor_enabled"`
	TwoFactorSecret  string `json:"-"`

	// Transient email-OTP state. OTPCode is cleared on successful
	// verification and overwritten on regeneration.
	OTPCode      string     `json:"-"`
	OTPExpiresAt *time.Time `json:"-"`
	OTPVerified  bool       `gorm:"default:false" json:"-"`

	// RefreshToken is the single currently-valid refresh token for the
	// account. Overwriting it invalidates the previous session.
	RefreshToken string `gorm:"index" json:"-"`

	IsBlocked bool `gorm:"default:false" json:"is_blocked"`
	IsAdmin   bool `gorm:"default:false" json:"is_admin"`

	Emails []UserEmail `gorm:"foreignKey:UserID" json:"emails,omitempty"`
}

// UserEmail is an additional address attached to an account. Only verified
// addresses participate in login and password-reset lookups.
type UserEmail struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;index;uniqueIndex:idx_user_address" json:"user_id"`
	Address  string `gorm:"not null;index;uniqueIndex:idx_user_address" json:"address"`
	Verified bool   `gorm:"default:false" json:"verified"`
}
