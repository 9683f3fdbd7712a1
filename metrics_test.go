package formhydrate

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsCollectorRecordsRequests(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequest(RouteMetadata, 200, 42*time.Millisecond)
	mc.RecordRequest(RouteMetadata, 200, 10*time.Millisecond)
	mc.RecordRequest(RouteFields, 503, time.Second)

	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("metadata", "200")); got != 2 {
		t.Errorf("requests_total{metadata,200} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.requestsTotal.WithLabelValues("fields", "503")); got != 1 {
		t.Errorf("requests_total{fields,503} = %v, want 1", got)
	}
}

func TestMetricsCollectorInFlight(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRequestStart(RouteIDLookup)
	mc.RecordRequestStart(RouteIDLookup)
	mc.RecordRequestEnd(RouteIDLookup)

	if got := testutil.ToFloat64(mc.requestsInFlight.WithLabelValues("id_lookup")); got != 1 {
		t.Errorf("requests_in_flight = %v, want 1", got)
	}
}

func TestMetricsCollectorCacheCounters(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordCacheHit(RouteFields)
	mc.RecordCacheMiss(RouteFields)
	mc.RecordCacheMiss(RouteFields)
	mc.RecordCacheRevalidation(RouteFields)
	mc.RecordCacheSize("default", 12)

	if got := testutil.ToFloat64(mc.cacheHits.WithLabelValues("fields")); got != 1 {
		t.Errorf("cache_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheMisses.WithLabelValues("fields")); got != 2 {
		t.Errorf("cache_misses_total = %v, want 2", got)
	}
	if got := testutil.ToFloat64(mc.cacheRevalidations.WithLabelValues("fields")); got != 1 {
		t.Errorf("cache_revalidations_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.cacheSize.WithLabelValues("default")); got != 12 {
		t.Errorf("cache_size = %v, want 12", got)
	}
}

func TestMetricsCollectorBreakerAndRetries(t *testing.T) {
	registry := prometheus.NewRegistry()
	mc := NewMetricsCollectorWithRegistry(registry)

	mc.RecordRetry(RouteMetadata, 1)
	mc.RecordRetry(RouteMetadata, 2)
	mc.RecordCircuitBreakerState(RouteMetadata, StateOpen)
	mc.RecordCoalescingHit(RouteMetadata)
	mc.RecordError(ErrorTypeHTTP, RouteMetadata)

	if got := testutil.ToFloat64(mc.retriesTotal.WithLabelValues("metadata", "1")); got != 1 {
		t.Errorf("retries_total{attempt=1} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.circuitBreakerState.WithLabelValues("metadata")); got != float64(StateOpen) {
		t.Errorf("circuit_breaker_state = %v, want %v", got, float64(StateOpen))
	}
	if got := testutil.ToFloat64(mc.coalescingHits.WithLabelValues("metadata")); got != 1 {
		t.Errorf("coalescing_hits_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(mc.errorsTotal.WithLabelValues("HTTP", "metadata")); got != 1 {
		t.Errorf("errors_total = %v, want 1", got)
	}
}

func TestMetricsCollectorNilSafe(t *testing.T) {
	var mc *MetricsCollector

	// A nil collector is the disabled state; every recorder must be a no-op.
	mc.RecordRequestStart(RouteMetadata)
	mc.RecordRequestEnd(RouteMetadata)
	mc.RecordRequest(RouteMetadata, 200, time.Millisecond)
	mc.RecordRetry(RouteMetadata, 1)
	mc.RecordCircuitBreakerState(RouteMetadata, StateClosed)
	mc.RecordRateLimiterTokens("default", 5)
	mc.RecordCacheHit(RouteMetadata)
	mc.RecordCacheMiss(RouteMetadata)
	mc.RecordCacheRevalidation(RouteMetadata)
	mc.RecordCacheSize("default", 1)
	mc.RecordCoalescingHit(RouteMetadata)
	mc.RecordError(ErrorTypeNetwork, RouteMetadata)
}
