package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestTokenService(t *testing.T, clock func() time.Time) *TokenService {
	t.Helper()

	svc, err := NewTokenService(TokenConfig{
		AccessSecret:  "access-secret",
		RefreshSecret: "refresh-secret",
		Issuer:        "brewstore",
		Clock:         clock,
	})
	require.NoError(t, err)
	return svc
}

func TestTokenServiceRequiresBothSecrets(t *testing.T) {
	_, err := NewTokenService(TokenConfig{RefreshSecret: "r"})
	require.Error(t, err)

	_, err = NewTokenService(TokenConfig{AccessSecret: "a"})
	require.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	svc := newTestTokenService(t, nil)

	access, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	claims, err := svc.ValidateAccessToken(access)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
	require.Equal(t, "brewstore", claims.Issuer)

	refresh, err := svc.IssueRefreshToken("user-1")
	require.NoError(t, err)

	claims, err = svc.ValidateRefreshToken(refresh)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.UserID)
}

func TestTokenSecretsAreIndependent(t *testing.T) {
	svc := newTestTokenService(t, nil)

	refresh, err := svc.IssueRefreshToken("user-1")
	require.NoError(t, err)

	// A refresh token must never authenticate as an access token.
	_, err = svc.ValidateAccessToken(refresh)
	require.Error(t, err)

	access, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = svc.ValidateRefreshToken(access)
	require.Error(t, err)
}

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	clock := &now
	svc := newTestTokenService(t, func() time.Time { return *clock })

	access, err := svc.IssueAccessToken("user-1")
	require.NoError(t, err)

	_, err = svc.ValidateAccessToken(access)
	require.NoError(t, err)

	expired := now.Add(DefaultAccessTokenTTL + time.Minute)
	clock = &expired
	_, err = svc.ValidateAccessToken(access)
	require.Error(t, err)
}
