package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brewstore/brewstore-server/pkg/crypto"
)

func TestValidateStrength(t *testing.T) {
	policy := NewPasswordPolicy()

	cases := []struct {
		name     string
		password string
		want     bool
	}{
		{"valid", "Sup3r$ecret", true},
		{"too short", "S3c$et", false},
		{"missing upper", "sup3r$ecret", false},
		{"missing lower", "SUP3R$ECRET", false},
		{"missing digit", "Super$ecret", false},
		{"missing symbol", "Sup3rSecret", false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, policy.ValidateStrength(tc.password))
		})
	}
}

func TestIsExpired(t *testing.T) {
	policy := NewPasswordPolicy()
	now := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)

	require.False(t, policy.IsExpired(now.Add(-6*24*time.Hour), now))
	require.False(t, policy.IsExpired(now.Add(-7*24*time.Hour), now), "exactly seven days old is still valid")
	require.True(t, policy.IsExpired(now.Add(-7*24*time.Hour-time.Second), now))
	require.False(t, policy.IsExpired(time.Time{}, now), "unset timestamp never expires")
}

func TestCheckNotReused(t *testing.T) {
	policy := NewPasswordPolicy()

	current, err := crypto.HashPassword("Curr3nt$pass")
	require.NoError(t, err)
	previous, err := crypto.HashPassword("Prev1ous$pass")
	require.NoError(t, err)

	history := []string{current, previous}

	require.False(t, policy.CheckNotReused("Curr3nt$pass", history))
	require.False(t, policy.CheckNotReused("Prev1ous$pass", history))
	require.True(t, policy.CheckNotReused("Brand-N3w$pass", history))
}

func TestRecordTruncatesHistory(t *testing.T) {
	policy := NewPasswordPolicy()

	history := policy.Record(nil, "hash-1")
	history = policy.Record(history, "hash-2")
	history = policy.Record(history, "hash-3")

	require.Equal(t, []string{"hash-3", "hash-2"}, history)
}
