package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service's Prometheus collectors.
type Metrics struct {
	requests        *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	errors          *prometheus.CounterVec

	loginAttempts      *prometheus.CounterVec
	sessionsIssued     *prometheus.CounterVec
	tokenVerifications *prometheus.CounterVec
	magicLinks         *prometheus.CounterVec
}

// NewMetrics registers collectors on the given registry.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "HTTP requests by path, method and status.",
		}, []string{"path", "method", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"path", "method"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_request_errors_total",
			Help: "Request errors by path, method and error code.",
		}, []string{"path", "method", "code"}),
		loginAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_login_attempts_total",
			Help: "Login attempts by provider and outcome.",
		}, []string{"provider", "outcome"}),
		sessionsIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_sessions_issued_total",
			Help: "Session tokens minted by provider, including sliding renewals.",
		}, []string{"provider"}),
		tokenVerifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_token_verifications_total",
			Help: "Session token verifications by result.",
		}, []string{"result"}),
		magicLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "auth_magic_links_total",
			Help: "Magic link operations by action and outcome.",
		}, []string{"action", "outcome"}),
	}

	reg.MustRegister(m.requests, m.requestDuration, m.errors,
		m.loginAttempts, m.sessionsIssued, m.tokenVerifications, m.magicLinks)
	return m
}

// RecordRequest increments request counters.
func (m *Metrics) RecordRequest(path, method string, status int, seconds float64) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(path, method, strconv.Itoa(status)).Inc()
	m.requestDuration.WithLabelValues(path, method).Observe(seconds)
}

// RecordError increments error counters.
func (m *Metrics) RecordError(path, method, code string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(path, method, code).Inc()
}

// RecordLoginAttempt tracks issuance outcomes per provider.
func (m *Metrics) RecordLoginAttempt(provider, outcome string) {
	if m == nil {
		return
	}
	m.loginAttempts.WithLabelValues(provider, outcome).Inc()
}

// RecordSessionIssued counts minted tokens including sliding renewals.
func (m *Metrics) RecordSessionIssued(provider string) {
	if m == nil {
		return
	}
	m.sessionsIssued.WithLabelValues(provider).Inc()
}

// RecordTokenVerification counts verifications by result label
// (ok, expired, invalid_signature, malformed, version_mismatch).
func (m *Metrics) RecordTokenVerification(result string) {
	if m == nil {
		return
	}
	m.tokenVerifications.WithLabelValues(result).Inc()
}

// RecordMagicLink counts request/verify operations.
func (m *Metrics) RecordMagicLink(action, outcome string) {
	if m == nil {
		return
	}
	m.magicLinks.WithLabelValues(action, outcome).Inc()
}
