package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredSecrets(t *testing.T) {
	t.Helper()
	t.Setenv("BREWSTORE_AUTH_JWT_ACCESS_SECRET", "test-access-secret")
	t.Setenv("BREWSTORE_AUTH_JWT_REFRESH_SECRET", "test-refresh-secret")
}

func TestLoadConfigDefaults(t *testing.T) {
	setRequiredSecrets(t)

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 8000, cfg.Server.Port)
	require.Equal(t, "info", cfg.Server.LogLevel)
	require.False(t, cfg.Server.IsProduction())

	require.Equal(t, "sqlite", cfg.Database.Driver)

	require.Equal(t, "brewstore", cfg.Auth.JWT.Issuer)
	require.Equal(t, 15*time.Minute, cfg.Auth.JWT.AccessTTL)
	require.Equal(t, 7*24*time.Hour, cfg.Auth.JWT.RefreshTTL)
	require.Equal(t, 10, cfg.Auth.Lockout.Threshold)
	require.Equal(t, 15*time.Minute, cfg.Auth.Lockout.Duration)
	require.Equal(t, 5*time.Minute, cfg.Auth.OTP.TTL)

	require.False(t, cfg.Email.SMTP.Enabled)
	require.Equal(t, 10*time.Second, cfg.Email.SMTP.Timeout)
	require.False(t, cfg.Recaptcha.Enabled)
}

func TestLoadConfigEnvironmentOverrides(t *testing.T) {
	setRequiredSecrets(t)
	t.Setenv("BREWSTORE_SERVER_PORT", "9001")
	t.Setenv("BREWSTORE_SERVER_ENVIRONMENT", "production")
	t.Setenv("BREWSTORE_AUTH_LOCKOUT_THRESHOLD", "3")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	require.Equal(t, 9001, cfg.Server.Port)
	require.True(t, cfg.Server.IsProduction())
	require.Equal(t, 3, cfg.Auth.Lockout.Threshold)
}

func TestLoadConfigRequiresSecrets(t *testing.T) {
	t.Setenv("BREWSTORE_AUTH_JWT_ACCESS_SECRET", "")
	t.Setenv("BREWSTORE_AUTH_JWT_REFRESH_SECRET", "")

	_, err := LoadConfig(t.TempDir())
	require.Error(t, err)
}
