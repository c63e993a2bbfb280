package observability

import (
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetrics_RegistersAll(t *testing.T) {
	m := NewMetrics(nil)
	require.NotNil(t, m.Registry())

	m.LoginAttemptsTotal.WithLabelValues("done").Inc()
	m.KeyFetchesTotal.WithLabelValues("true", "ok").Inc()
	m.KeyCacheHitsTotal.Inc()
	m.ProvisionedUsersTotal.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.LoginAttemptsTotal.WithLabelValues("done")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.KeyCacheHitsTotal))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ProvisionedUsersTotal))
}

func TestMetrics_Handler(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.KeyCacheMissesTotal.Inc()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	m.Handler().ServeHTTP(rec, req)

	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, rec.Body.String(), "edgebridge_key_cache_misses_total 1")
}
