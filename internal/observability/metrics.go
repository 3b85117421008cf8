// Package observability provides Prometheus collectors for the relay's
// cache, upstream and circuit-breaker behavior.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Breaker state codes exported on the gauge.
const (
	BreakerClosed   = 0
	BreakerOpen     = 1
	BreakerHalfOpen = 2
)

// Metrics holds all collectors. A nil *Metrics is valid and turns every
// method into a no-op, so components can run unobserved in tests.
type Metrics struct {
	cacheLookups     *prometheus.CounterVec
	cacheStores      prometheus.Counter
	upstreamAttempts *prometheus.CounterVec
	fallbacks        prometheus.Counter
	breakerState     *prometheus.GaugeVec
	inflightStreams  prometheus.Gauge
}

// New creates and registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_cache_lookups_total",
			Help: "Response cache lookups by result.",
		}, []string{"result"}),
		cacheStores: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_cache_stores_total",
			Help: "Responses written to the cache.",
		}),
		upstreamAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "chatrelay_upstream_attempts_total",
			Help: "Upstream call attempts by outcome.",
		}, []string{"outcome"}),
		fallbacks: factory.NewCounter(prometheus.CounterOpts{
			Name: "chatrelay_fallback_responses_total",
			Help: "Requests answered with the fallback message.",
		}),
		breakerState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "chatrelay_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=open, 2=half-open).",
		}, []string{"name"}),
		inflightStreams: factory.NewGauge(prometheus.GaugeOpts{
			Name: "chatrelay_inflight_streams",
			Help: "Token streams currently being served.",
		}),
	}
}

// CacheLookup records a cache lookup outcome.
func (m *Metrics) CacheLookup(hit bool) {
	if m == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.cacheLookups.WithLabelValues(result).Inc()
}

// CacheStore records a response written to the cache.
func (m *Metrics) CacheStore() {
	if m == nil {
		return
	}
	m.cacheStores.Inc()
}

// UpstreamAttempt records one upstream call attempt with its outcome
// ("success" or an error kind).
func (m *Metrics) UpstreamAttempt(outcome string) {
	if m == nil {
		return
	}
	m.upstreamAttempts.WithLabelValues(outcome).Inc()
}

// FallbackServed records a request resolved with the fallback message.
func (m *Metrics) FallbackServed() {
	if m == nil {
		return
	}
	m.fallbacks.Inc()
}

// SetBreakerState exports the breaker state for the named call-site using
// the Breaker* codes.
func (m *Metrics) SetBreakerState(name string, code float64) {
	if m == nil {
		return
	}
	m.breakerState.WithLabelValues(name).Set(code)
}

// StreamOpened increments the in-flight stream gauge.
func (m *Metrics) StreamOpened() {
	if m == nil {
		return
	}
	m.inflightStreams.Inc()
}

// StreamClosed decrements the in-flight stream gauge.
func (m *Metrics) StreamClosed() {
	if m == nil {
		return
	}
	m.inflightStreams.Dec()
}
