package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// AuthAttempts records login attempts by result
	// (success|failure|locked|two_factor_pending|otp_pending).
	AuthAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brewstore_auth_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// Lockouts counts accounts transitioning into the locked state.
	Lockouts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "brewstore_lockouts_total",
			Help: "Total number of account lockouts triggered",
		},
	)

	// OTPIssued counts one-time codes generated, by channel (email|resend).
	OTPIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brewstore_otp_issued_total",
			Help: "Total number of one-time codes issued",
		},
		[]string{"channel"},
	)

	// TokenRefreshes counts refresh-token rotations by result (success|failure).
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "brewstore_token_refreshes_total",
			Help: "Total number of refresh token rotations",
		},
		[]string{"result"},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "brewstore_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
