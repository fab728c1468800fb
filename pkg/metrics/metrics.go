package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// LoginAttempts records login attempts by result
	// (success|invalid_credentials|invalid_two_factor|banned|challenge|error).
	LoginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagehub_auth_login_attempts_total",
			Help: "Total number of login attempts",
		},
		[]string{"result"},
	)

	// SourceBans counts temporary bans applied by the brute-force guard.
	SourceBans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "garagehub_auth_source_bans_total",
			Help: "Total number of source addresses banned for repeated failures",
		},
	)

	// TokensIssued counts signed tokens by kind (access|refresh).
	TokensIssued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagehub_auth_tokens_issued_total",
			Help: "Total number of tokens issued",
		},
		[]string{"kind"},
	)

	// TokenVerifications counts verification outcomes by kind and result
	// (ok|invalid|kind_mismatch).
	TokenVerifications = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagehub_auth_token_verifications_total",
			Help: "Total number of token verifications",
		},
		[]string{"kind", "result"},
	)

	// SecondFactorChecks counts second-factor verifications by method and result
	// (totp|recovery, ok|fail).
	SecondFactorChecks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "garagehub_auth_second_factor_checks_total",
			Help: "Total number of second-factor verifications",
		},
		[]string{"method", "result"},
	)

	// ActiveSessions tracks live refresh-token records (not expired/revoked).
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "garagehub_auth_active_sessions",
			Help: "Number of live refresh-token records",
		},
	)

	// APILatency measures HTTP request latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "garagehub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
