// Package metrics provides Prometheus instrumentation for the gateway.
// Collectors live on a private registry so tests can build isolated sets.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Cache lookup outcomes.
const (
	CacheHitMemory = "hit_memory"
	CacheHitRedis  = "hit_redis"
	CacheMiss      = "miss"
)

// Metrics holds the gateway collectors.
type Metrics struct {
	registry *prometheus.Registry

	upstreamAttempts *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	retries          *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	breakerRejects   *prometheus.CounterVec
	cacheLookups     *prometheus.CounterVec
	limiterWait      *prometheus.HistogramVec
	requests         *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	throttled        prometheus.Counter
}

// New creates and registers all collectors, including the Go and process
// collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		upstreamAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_upstream_attempts_total",
			Help: "Outbound provider attempts by service and outcome kind",
		}, []string{"service", "outcome"}),
		upstreamDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wayfarer_upstream_duration_seconds",
			Help:    "Outbound attempt latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"service"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_upstream_retries_total",
			Help: "Retries scheduled after a transient failure",
		}, []string{"service"}),
		breakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "wayfarer_breaker_state",
			Help: "Circuit breaker state (0 closed, 1 open, 2 half-open)",
		}, []string{"service"}),
		breakerRejects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_breaker_rejections_total",
			Help: "Calls rejected by an open circuit",
		}, []string{"service"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_cache_lookups_total",
			Help: "Response cache lookups by service and result",
		}, []string{"service", "result"}),
		limiterWait: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wayfarer_limiter_wait_seconds",
			Help:    "Time spent waiting for rate limiter tokens",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"service"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wayfarer_requests_total",
			Help: "Inbound API requests by operation and status",
		}, []string{"operation", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "wayfarer_request_duration_seconds",
			Help:    "Inbound API latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		throttled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wayfarer_requests_throttled_total",
			Help: "Inbound requests rejected by the client throttle",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.upstreamAttempts,
		m.upstreamDuration,
		m.retries,
		m.breakerState,
		m.breakerRejects,
		m.cacheLookups,
		m.limiterWait,
		m.requests,
		m.requestDuration,
		m.throttled,
	)
	return m
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an http.Handler that serves the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveAttempt records one outbound attempt. outcome is "ok" or an
// error kind name.
func (m *Metrics) ObserveAttempt(service, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.upstreamAttempts.WithLabelValues(service, outcome).Inc()
	m.upstreamDuration.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveRetry records a scheduled retry.
func (m *Metrics) ObserveRetry(service string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(service).Inc()
}

// SetBreakerState records the current breaker state as 0, 1 or 2.
func (m *Metrics) SetBreakerState(service string, state int) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(service).Set(float64(state))
}

// ObserveBreakerRejection records a call rejected by an open circuit.
func (m *Metrics) ObserveBreakerRejection(service string) {
	if m == nil {
		return
	}
	m.breakerRejects.WithLabelValues(service).Inc()
}

// ObserveCache records a cache lookup result.
func (m *Metrics) ObserveCache(service, result string) {
	if m == nil {
		return
	}
	m.cacheLookups.WithLabelValues(service, result).Inc()
}

// ObserveLimiterWait records how long a caller waited for tokens.
func (m *Metrics) ObserveLimiterWait(service string, d time.Duration) {
	if m == nil {
		return
	}
	m.limiterWait.WithLabelValues(service).Observe(d.Seconds())
}

// ObserveRequest records a finished inbound request.
func (m *Metrics) ObserveRequest(operation, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(operation, status).Inc()
	m.requestDuration.WithLabelValues(operation).Observe(d.Seconds())
}

// ObserveThrottled records an inbound request rejected by the throttle.
func (m *Metrics) ObserveThrottled() {
	if m == nil {
		return
	}
	m.throttled.Inc()
}
