package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/brewstore/brewstore-server/pkg/errors"
	"github.com/brewstore/brewstore-server/pkg/logger"
)

const defaultRecaptchaEndpoint = "https://www.google.com/recaptcha/api/siteverify"

const defaultRecaptchaTimeout = 10 * time.Second

// RecaptchaConfig controls verification of registration challenge tokens.
type RecaptchaConfig struct {
	// Enabled gates the whole check. When false, Verify accepts everything;
	// useful for local development and tests.
	Enabled  bool
	Secret   string
	Endpoint string
	Timeout  time.Duration
}

// RecaptchaService verifies Google reCAPTCHA responses submitted at
// registration.
type RecaptchaService struct {
	enabled  bool
	secret   string
	endpoint string
	client   *http.Client
}

// NewRecaptchaService builds a verifier from the given config.
func NewRecaptchaService(cfg RecaptchaConfig) (*RecaptchaService, error) {
	if cfg.Enabled && strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("recaptcha service: secret is required when enabled")
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = defaultRecaptchaEndpoint
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultRecaptchaTimeout
	}

	return &RecaptchaService{
		enabled:  cfg.Enabled,
		secret:   cfg.Secret,
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// Verify checks the challenge token with the verification endpoint. A token
// the endpoint rejects fails the registration; an unreachable endpoint is an
// internal error rather than a user-facing rejection.
func (s *RecaptchaService) Verify(ctx context.Context, token string) error {
	if !s.enabled {
		return nil
	}

	if strings.TrimSpace(token) == "" {
		return apperrors.ErrRecaptchaFailed
	}

	form := url.Values{}
	form.Set("secret", s.secret)
	form.Set("response", token)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint,
		strings.NewReader(form.Encode()))
	if err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		logger.Error("recaptcha verification request failed", zap.Error(err))
		return apperrors.ErrInternalServer.WithInternal(err)
	}
	defer resp.Body.Close()

	var payload struct {
		Success    bool     `json:"success"`
		ErrorCodes []string `json:"error-codes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return apperrors.ErrInternalServer.WithInternal(err)
	}

	if !payload.Success {
		logger.Warn("recaptcha verification rejected",
			zap.Strings("error_codes", payload.ErrorCodes))
		return apperrors.ErrRecaptchaFailed
	}

	return nil
}
