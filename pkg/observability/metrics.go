package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the bridge's Prometheus metrics.
type Metrics struct {
	// Login pipeline metrics
	LoginAttemptsTotal *prometheus.CounterVec
	VerifyDuration     prometheus.Histogram

	// Signing key metrics
	KeyFetchesTotal     *prometheus.CounterVec
	KeyCacheHitsTotal   prometheus.Counter
	KeyCacheMissesTotal prometheus.Counter

	// Provisioning metrics
	ProvisionedUsersTotal prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates and registers all bridge metrics. If registry is nil
// a private registry is created.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	m := &Metrics{
		LoginAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgebridge_login_attempts_total",
				Help: "Total number of SSO login attempts by outcome",
			},
			[]string{"outcome"},
		),
		VerifyDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "edgebridge_verify_duration_seconds",
				Help:    "Token verification duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),
		KeyFetchesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgebridge_key_fetches_total",
				Help: "Total number of signing key fetches from the issuer",
			},
			[]string{"forced", "status"},
		),
		KeyCacheHitsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edgebridge_key_cache_hits_total",
				Help: "Total number of signing key cache hits",
			},
		),
		KeyCacheMissesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edgebridge_key_cache_misses_total",
				Help: "Total number of signing key cache misses",
			},
		),
		ProvisionedUsersTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "edgebridge_provisioned_users_total",
				Help: "Total number of users created by just-in-time provisioning",
			},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.LoginAttemptsTotal,
		m.VerifyDuration,
		m.KeyFetchesTotal,
		m.KeyCacheHitsTotal,
		m.KeyCacheMissesTotal,
		m.ProvisionedUsersTotal,
	)

	return m
}

// Handler returns an HTTP handler serving the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry, for hosts that expose their
// own metrics endpoint.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
