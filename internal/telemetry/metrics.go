package telemetry

import (
	"crypto/tls"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/eirenox/kdata-gateway/pkg/tlspolicy"
)

// Metrics holds all Prometheus metrics for the kdata gateway.
type Metrics struct {
	RequestTotal      *prometheus.CounterVec
	RequestDurationMs *prometheus.HistogramVec
	HandshakeTotal    *prometheus.CounterVec
	RateLimitTotal    *prometheus.CounterVec
	CacheEventTotal   *prometheus.CounterVec
	BreakerState      *prometheus.GaugeVec
}

// NewMetrics creates and registers all Prometheus metrics on the default
// registry.
func NewMetrics() *Metrics {
	return &Metrics{
		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kdata_request_total",
			Help: "Total number of requests forwarded through the gateway.",
		}, []string{"endpoint", "method", "status", "cache"}),

		RequestDurationMs: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "kdata_request_duration_ms",
			Help:    "Forwarded request duration in milliseconds, including upstream latency.",
			Buckets: []float64{50, 100, 250, 500, 1000, 2500, 5000, 10000, 30000},
		}, []string{"endpoint"}),

		HandshakeTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kdata_handshake_total",
			Help: "TLS handshake attempts against upstream hosts by negotiated parameters.",
		}, []string{"host", "tls_version", "cipher", "outcome"}),

		RateLimitTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kdata_ratelimit_total",
			Help: "Requests rejected by rate limiting, by dimension (rpm, quota).",
		}, []string{"dimension"}),

		CacheEventTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "kdata_cache_events_total",
			Help: "Response cache events (hit, miss, store).",
		}, []string{"endpoint", "event"}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "kdata_breaker_state",
			Help: "Circuit breaker state per endpoint (0=closed, 1=open, 2=half-open).",
		}, []string{"endpoint"}),
	}
}

// RecordRequest records a completed forwarded request.
func (m *Metrics) RecordRequest(endpoint, method, status, cache string, durationMs float64) {
	m.RequestTotal.WithLabelValues(endpoint, method, status, cache).Inc()
	m.RequestDurationMs.WithLabelValues(endpoint).Observe(durationMs)
}

// RecordHandshake records a TLS handshake attempt. It satisfies
// portal.HandshakeObserver.
func (m *Metrics) RecordHandshake(host string, state tls.ConnectionState, err error) {
	if err != nil {
		m.HandshakeTotal.WithLabelValues(host, "", "", "failure").Inc()
		return
	}
	m.HandshakeTotal.WithLabelValues(
		host,
		tlspolicy.VersionName(state.Version),
		tls.CipherSuiteName(state.CipherSuite),
		"success",
	).Inc()
}

// RecordRateLimit records a rejected request.
func (m *Metrics) RecordRateLimit(dimension string) {
	m.RateLimitTotal.WithLabelValues(dimension).Inc()
}

// RecordCacheEvent records a response-cache hit, miss or store.
func (m *Metrics) RecordCacheEvent(endpoint, event string) {
	m.CacheEventTotal.WithLabelValues(endpoint, event).Inc()
}

// SetBreakerState publishes the current breaker state for an endpoint.
func (m *Metrics) SetBreakerState(endpoint string, state float64) {
	m.BreakerState.WithLabelValues(endpoint).Set(state)
}
