package app

import (
	"github.com/brewstore/brewstore-server/internal/auth"
)

// TokenServiceConfig converts AuthConfig into the parameters expected by the token service.
func (c AuthConfig) TokenServiceConfig() auth.TokenConfig {
	accessTTL := c.JWT.AccessTTL
	if accessTTL <= 0 {
		accessTTL = auth.DefaultAccessTokenTTL
	}

	refreshTTL := c.JWT.RefreshTTL
	if refreshTTL <= 0 {
		refreshTTL = auth.DefaultRefreshTokenTTL
	}

	return auth.TokenConfig{
		AccessSecret:  c.JWT.AccessSecret,
		RefreshSecret: c.JWT.RefreshSecret,
		Issuer:        c.JWT.Issuer,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
	}
}

// LockoutGuardConfig converts AuthConfig into LockoutGuard parameters.
func (c AuthConfig) LockoutGuardConfig() auth.LockoutConfig {
	return auth.LockoutConfig{
		Threshold: c.Lockout.Threshold,
		Duration:  c.Lockout.Duration,
	}
}

// OTPServiceConfig converts AuthConfig into OTPService parameters.
func (c AuthConfig) OTPServiceConfig() auth.OTPConfig {
	return auth.OTPConfig{
		TTL: c.OTP.TTL,
	}
}
