package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
)

func newVerifyServer(t *testing.T, success bool) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		require.Equal(t, "test-secret", r.PostFormValue("secret"))

		w.Header().Set("Content-Type", "application/json")
		if success {
			_, _ = w.Write([]byte(`{"success": true}`))
		} else {
			_, _ = w.Write([]byte(`{"success": false, "error-codes": ["invalid-input-response"]}`))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRecaptchaDisabledAcceptsEverything(t *testing.T) {
	svc, err := NewRecaptchaService(RecaptchaConfig{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, svc.Verify(context.Background(), ""))
	require.NoError(t, svc.Verify(context.Background(), "anything"))
}

func TestRecaptchaRequiresSecretWhenEnabled(t *testing.T) {
	_, err := NewRecaptchaService(RecaptchaConfig{Enabled: true})
	require.Error(t, err)
}

func TestRecaptchaVerifySuccess(t *testing.T) {
	server := newVerifyServer(t, true)

	svc, err := NewRecaptchaService(RecaptchaConfig{
		Enabled:  true,
		Secret:   "test-secret",
		Endpoint: server.URL,
	})
	require.NoError(t, err)
	require.NoError(t, svc.Verify(context.Background(), "challenge-token"))
}

func TestRecaptchaVerifyRejection(t *testing.T) {
	server := newVerifyServer(t, false)

	svc, err := NewRecaptchaService(RecaptchaConfig{
		Enabled:  true,
		Secret:   "test-secret",
		Endpoint: server.URL,
	})
	require.NoError(t, err)

	err = svc.Verify(context.Background(), "challenge-token")
	require.ErrorIs(t, err, apperrors.ErrRecaptchaFailed)
}

func TestRecaptchaVerifyEmptyToken(t *testing.T) {
	svc, err := NewRecaptchaService(RecaptchaConfig{Enabled: true, Secret: "test-secret"})
	require.NoError(t, err)

	err = svc.Verify(context.Background(), "   ")
	require.ErrorIs(t, err, apperrors.ErrRecaptchaFailed)
}

func TestRecaptchaVerifyTransportError(t *testing.T) {
	server := newVerifyServer(t, true)
	server.Close()

	svc, err := NewRecaptchaService(RecaptchaConfig{
		Enabled:  true,
		Secret:   "test-secret",
		Endpoint: server.URL,
	})
	require.NoError(t, err)

	err = svc.Verify(context.Background(), "challenge-token")
	require.Error(t, err)
	require.Equal(t, apperrors.ErrInternalServer.Message, apperrors.FromError(err).Message)
}
