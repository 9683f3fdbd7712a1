package formhydrate

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MetricsCollector provides Prometheus metrics for the hydrator's request
// lifecycle and reliability layers. It is safe for concurrent use.
type MetricsCollector struct {
	requestsTotal    *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	requestsInFlight *prometheus.GaugeVec

	retriesTotal *prometheus.CounterVec

	circuitBreakerState *prometheus.GaugeVec

	rateLimiterTokens *prometheus.GaugeVec

	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheRevalidations *prometheus.CounterVec
	cacheSize          *prometheus.GaugeVec

	coalescingHits *prometheus.CounterVec

	errorsTotal *prometheus.CounterVec
}

// NewMetricsCollector creates a collector on the default registerer.
func NewMetricsCollector() *MetricsCollector {
	return NewMetricsCollectorWithRegistry(prometheus.DefaultRegisterer)
}

// NewMetricsCollectorWithRegistry creates a collector using the supplied
// registerer, for tests and multi-client processes.
func NewMetricsCollectorWithRegistry(registry prometheus.Registerer) *MetricsCollector {
	return &MetricsCollector{
		requestsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_requests_total",
				Help: "Total number of logical form fetches",
			},
			[]string{"route", "status_code"},
		),
		requestDuration: promauto.With(registry).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formhydrate_request_duration_seconds",
				Help:    "Duration of logical form fetches in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "status_code"},
		),
		requestsInFlight: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formhydrate_requests_in_flight",
				Help: "Number of logical form fetches currently in flight",
			},
			[]string{"route"},
		),
		retriesTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_retries_total",
				Help: "Total number of retry attempts",
			},
			[]string{"route", "attempt"},
		),
		circuitBreakerState: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formhydrate_circuit_breaker_state",
				Help: "Current state of circuit breaker per route (0=closed, 1=open, 2=half-open)",
			},
			[]string{"route"},
		),
		rateLimiterTokens: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formhydrate_rate_limiter_tokens",
				Help: "Current number of available rate limiter tokens",
			},
			[]string{"name"},
		),
		cacheHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_cache_hits_total",
				Help: "Total number of cache entries found for revalidation",
			},
			[]string{"route"},
		),
		cacheMisses: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_cache_misses_total",
				Help: "Total number of cache misses",
			},
			[]string{"route"},
		),
		cacheRevalidations: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_cache_revalidations_total",
				Help: "Total number of 304 responses answered from the cached body",
			},
			[]string{"route"},
		),
		cacheSize: promauto.With(registry).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "formhydrate_cache_size",
				Help: "Current number of entries in cache",
			},
			[]string{"name"},
		),
		coalescingHits: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_coalescing_hits_total",
				Help: "Total number of callers that joined an in-flight request",
			},
			[]string{"route"},
		),
		errorsTotal: promauto.With(registry).NewCounterVec(
			prometheus.CounterOpts{
				Name: "formhydrate_errors_total",
				Help: "Total number of errors by kind",
			},
			[]string{"kind", "route"},
		),
	}
}

// RecordRequestStart increments the in-flight gauge.
func (mc *MetricsCollector) RecordRequestStart(route Route) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(string(route)).Inc()
}

// RecordRequestEnd decrements the in-flight gauge.
func (mc *MetricsCollector) RecordRequestEnd(route Route) {
	if mc == nil {
		return
	}
	mc.requestsInFlight.WithLabelValues(string(route)).Dec()
}

// RecordRequest records a finished logical fetch with its terminal status.
func (mc *MetricsCollector) RecordRequest(route Route, statusCode int, duration time.Duration) {
	if mc == nil {
		return
	}
	status := strconv.Itoa(statusCode)
	mc.requestsTotal.WithLabelValues(string(route), status).Inc()
	mc.requestDuration.WithLabelValues(string(route), status).Observe(duration.Seconds())
}

// RecordRetry records one retry attempt.
func (mc *MetricsCollector) RecordRetry(route Route, attempt int) {
	if mc == nil {
		return
	}
	mc.retriesTotal.WithLabelValues(string(route), strconv.Itoa(attempt)).Inc()
}

// RecordCircuitBreakerState records the breaker state for a route.
func (mc *MetricsCollector) RecordCircuitBreakerState(route Route, state CircuitState) {
	if mc == nil {
		return
	}
	mc.circuitBreakerState.WithLabelValues(string(route)).Set(float64(state))
}

// RecordRateLimiterTokens records the available token count.
func (mc *MetricsCollector) RecordRateLimiterTokens(name string, tokens int) {
	if mc == nil {
		return
	}
	mc.rateLimiterTokens.WithLabelValues(name).Set(float64(tokens))
}

// RecordCacheHit records a cache entry found for revalidation.
func (mc *MetricsCollector) RecordCacheHit(route Route) {
	if mc == nil {
		return
	}
	mc.cacheHits.WithLabelValues(string(route)).Inc()
}

// RecordCacheMiss records a cache miss.
func (mc *MetricsCollector) RecordCacheMiss(route Route) {
	if mc == nil {
		return
	}
	mc.cacheMisses.WithLabelValues(string(route)).Inc()
}

// RecordCacheRevalidation records a 304 served from the cached body.
func (mc *MetricsCollector) RecordCacheRevalidation(route Route) {
	if mc == nil {
		return
	}
	mc.cacheRevalidations.WithLabelValues(string(route)).Inc()
}

// RecordCacheSize records the entry count of a named cache.
func (mc *MetricsCollector) RecordCacheSize(name string, size int) {
	if mc == nil {
		return
	}
	mc.cacheSize.WithLabelValues(name).Set(float64(size))
}

// RecordCoalescingHit records a caller that joined an in-flight request.
func (mc *MetricsCollector) RecordCoalescingHit(route Route) {
	if mc == nil {
		return
	}
	mc.coalescingHits.WithLabelValues(string(route)).Inc()
}

// RecordError records an error by kind.
func (mc *MetricsCollector) RecordError(kind string, route Route) {
	if mc == nil {
		return
	}
	mc.errorsTotal.WithLabelValues(kind, string(route)).Inc()
}
