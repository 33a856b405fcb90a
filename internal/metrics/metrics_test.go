package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsolatedRegistries(t *testing.T) {
	a := New()
	b := New()

	a.ObserveRetry("weather")
	assert.Equal(t, 1.0, testutil.ToFloat64(a.retries.WithLabelValues("weather")))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.retries.WithLabelValues("weather")))
}

func TestObserve(t *testing.T) {
	m := New()

	m.ObserveAttempt("places", "ok", 120*time.Millisecond)
	m.ObserveAttempt("places", "server_error", time.Second)
	m.ObserveAttempt("places", "server_error", time.Second)
	m.SetBreakerState("places", 1)
	m.ObserveBreakerRejection("places")
	m.ObserveCache("weather", CacheHitMemory)
	m.ObserveCache("weather", CacheMiss)
	m.ObserveLimiterWait("weather", 50*time.Millisecond)
	m.ObserveRequest("GetWeather", "200", 10*time.Millisecond)
	m.ObserveThrottled()

	assert.Equal(t, 1.0, testutil.ToFloat64(m.upstreamAttempts.WithLabelValues("places", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.upstreamAttempts.WithLabelValues("places", "server_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerState.WithLabelValues("places")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.breakerRejects.WithLabelValues("places")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheLookups.WithLabelValues("weather", CacheMiss)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("GetWeather", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.throttled))
	assert.Equal(t, 1, testutil.CollectAndCount(m.limiterWait))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAttempt("weather", "ok", time.Millisecond)
		m.ObserveRetry("weather")
		m.SetBreakerState("weather", 0)
		m.ObserveCache("weather", CacheMiss)
		m.ObserveThrottled()
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveRetry("hotels")

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `wayfarer_upstream_retries_total{service="hotels"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
