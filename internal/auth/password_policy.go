package auth

import (
	"regexp"
	"time"

	"github.com/brewstore/brewstore-server/internal/models"
	"github.com/brewstore/brewstore-server/pkg/crypto"
)

// DefaultPasswordMaxAge is how long a password stays valid before login is
// refused with a password-expired error.
const DefaultPasswordMaxAge = 7 * 24 * time.Hour

var (
	lowerPattern  = regexp.MustCompile(`[a-z]`)
	upperPattern  = regexp.MustCompile(`[A-Z]`)
	digitPattern  = regexp.MustCompile(`\d`)
	symbolPattern = regexp.MustCompile(`[!@#$%^&*()_+\-=\[\]{};':"\\|,.<>/?]`)
)

// PasswordPolicy enforces strength, expiry, and reuse rules. The same policy
// instance serves registration, login, and password reset.
type PasswordPolicy struct {
	maxAge       time.Duration
	historyDepth int
}

// NewPasswordPolicy builds a policy with the storefront defaults: 8+ character
// mixed passwords, 7-day expiry, and a two-entry reuse window.
func NewPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{
		maxAge:       DefaultPasswordMaxAge,
		historyDepth: models.MaxPasswordHistory,
	}
}

// ValidateStrength reports whether the password meets the minimum length and
// character-class requirements.
func (p *PasswordPolicy) ValidateStrength(password string) bool {
	return len(password) >= 8 &&
		lowerPattern.MatchString(password) &&
		upperPattern.MatchString(password) &&
		digitPattern.MatchString(password) &&
		symbolPattern.MatchString(password)
}

// IsExpired reports whether the password is older than the configured maximum age.
func (p *PasswordPolicy) IsExpired(lastChanged time.Time, now time.Time) bool {
	if lastChanged.IsZero() {
		return false
	}
	return now.Sub(lastChanged) > p.maxAge
}

// CheckNotReused reports whether the candidate password differs from every
// hash in the stored history. Comparison uses the same bcrypt check as login.
func (p *PasswordPolicy) CheckNotReused(password string, history []string) bool {
	for _, oldHash := range history {
		if crypto.VerifyPassword(oldHash, password) {
			return false
		}
	}
	return true
}

// Record pushes a new hash to the front of the history and truncates it to
// the configured depth.
func (p *PasswordPolicy) Record(history []string, newHash string) []string {
	updated := append([]string{newHash}, history...)
	if len(updated) > p.historyDepth {
		updated = updated[:p.historyDepth]
	}
	return updated
}
