// Package formhydrate fetches Formidable Forms definitions from the
// WordPress REST API with composable reliability primitives:
//
//   - Conditional-GET caching (ETag / If-None-Match / 304) with per-route TTLs
//   - Retries with exponential backoff + jitter, honoring Retry-After
//   - Per-route circuit breaker (open / half-open / closed)
//   - Coalescing of concurrent identical in-flight requests
//   - Optional token-bucket rate limiting
//   - Prometheus metrics and lightweight structured debug logging
//
// The client hydrates a form in three dependent GETs: resolve the form key
// to an id, then fetch metadata and field definitions concurrently. It only
// exposes the fetched JSON payloads; rendering, validation and submission
// are the caller's concern.
//
// Typical usage:
//
//	client := formhydrate.New("https://example.com/wp-json",
//	    formhydrate.WithNonce(nonce),
//	    formhydrate.WithCircuitBreaker(formhydrate.CircuitBreakerConfig{}),
//	    formhydrate.WithMetrics(),
//	)
//	form, err := client.Hydrate(ctx, "contact_form")
//
// The cache store is pluggable: anything implementing the three-method
// Cache contract can back it, including the bundled Redis store for
// deployments with several frontends sharing one revalidation cache.
package formhydrate
