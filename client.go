package formhydrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/vfontjr/formhydrate/internal/singleflight"
)

const maxBodySize = 10 * 1024 * 1024

// Client is a resilient fetch client for Formidable form definitions. It
// layers conditional-GET caching, retries with backoff, per-route circuit
// breaking, request coalescing and optional rate limiting around the three
// REST endpoints the hydration flow depends on. It is safe for concurrent
// use; every map it owns is instance state, so independently configured
// clients coexist without interference.
type Client struct {
	httpClient *http.Client
	baseURL    string
	endpoints  Endpoints
	headers    map[string]string
	nonce      string
	timeout    time.Duration
	retry      RetryPolicy
	breaker    *CircuitBreaker
	limiter    *RateLimiter
	cache      Cache
	ttls       RouteTTLs
	inflight   *singleflight.Group
	metrics    *MetricsCollector
	debug      *DebugConfig
	logger     Logger
	observer   Observer

	validationError error
}

// New constructs a Client for the WordPress REST root at baseURL using the
// provided functional options. A best effort validation is performed; call
// IsValid / ValidationError for errors.
func New(baseURL string, options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{},
		baseURL:    strings.TrimRight(baseURL, "/"),
		endpoints:  DefaultEndpoints(),
		headers:    map[string]string{},
		timeout:    10 * time.Second,
		retry:      DefaultRetryPolicy(),
		breaker:    NewCircuitBreaker(CircuitBreakerConfig{}),
		cache:      NewInMemoryCache(),
		ttls: RouteTTLs{
			IDLookup: 15 * time.Minute,
			Metadata: 5 * time.Minute,
			Fields:   5 * time.Minute,
		},
		inflight: singleflight.New(),
		debug:    DefaultDebugConfig(),
	}

	for _, option := range options {
		option(client)
	}

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// fetchResult is the settled outcome of one logical GET, shared between
// coalesced callers.
type fetchResult struct {
	body        json.RawMessage
	status      int
	revalidated bool
}

// getJSON runs the full pipeline for one logical GET: rate limiter and
// breaker pre-flight, cache lookup for a stored ETag, coalescing, the
// retried conditional network fetch, write-through on success and the
// breaker report on the terminal outcome.
func (c *Client) getJSON(ctx context.Context, route Route, path string, opts *callOptions) (json.RawMessage, error) {
	start := time.Now()

	var requestID string
	if c.debug != nil && c.debug.Enabled && c.debug.RequestIDGen != nil {
		requestID = c.debug.RequestIDGen()
	}

	if c.debug != nil && c.debug.Enabled && c.debug.LogRequests && c.logger != nil {
		c.logger.Debug("Starting request", "requestID", requestID, "route", route, "path", path)
	}

	c.emit(opts, RequestEvent{Phase: PhaseStart, Route: route, Path: path})
	c.metrics.RecordRequestStart(route)
	defer c.metrics.RecordRequestEnd(route)

	if c.limiter != nil {
		if !c.limiter.Allow() {
			err := &ClientError{
				Type:      ErrorTypeRateLimit,
				Message:   "rate limit exceeded",
				Path:      path,
				RequestID: requestID,
			}
			c.metrics.RecordError(ErrorTypeRateLimit, route)
			c.emit(opts, RequestEvent{Phase: PhaseFailure, Route: route, Path: path, Duration: time.Since(start), Err: err})
			return nil, err
		}
		c.metrics.RecordRateLimiterTokens("default", c.limiter.Tokens())
	}

	if !c.breaker.Allow(path) {
		if c.debug != nil && c.debug.Enabled && c.debug.LogCircuit && c.logger != nil {
			c.logger.Warn("Circuit breaker open", "requestID", requestID, "path", path)
		}
		err := &ClientError{
			Type:      ErrorTypeCircuitOpen,
			Message:   "circuit breaker is open",
			Path:      path,
			RequestID: requestID,
		}
		c.metrics.RecordError(ErrorTypeCircuitOpen, route)
		c.metrics.RecordCircuitBreakerState(route, c.breaker.State(path))
		c.emit(opts, RequestEvent{Phase: PhaseFailure, Route: route, Path: path, Duration: time.Since(start), Err: err})
		return nil, err
	}

	var cached *CacheEntry
	if c.cache != nil && !opts.bypassCache {
		if entry, found := c.cache.Get(path); found {
			cached = entry
			c.metrics.RecordCacheHit(route)
			if c.debug != nil && c.debug.Enabled && c.debug.LogCache && c.logger != nil {
				c.logger.Debug("Cache entry found", "requestID", requestID, "path", path, "etag", entry.ETag)
			}
		} else {
			c.metrics.RecordCacheMiss(route)
		}
	}

	var attempts int
	v, err, shared := c.inflight.Do(ctx, c.coalesceKey(path, opts), func() (interface{}, error) {
		res, n, fetchErr := c.fetchWithRetry(ctx, route, path, cached, opts, requestID)
		attempts = n

		// Caller cancellation says nothing about endpoint health, so it is
		// the one terminal failure the breaker does not count.
		if fetchErr != nil {
			if ErrorKind(fetchErr) != ErrorTypeCanceled {
				c.breaker.RecordFailure(path)
			}
		} else {
			c.breaker.RecordSuccess(path)
		}
		c.metrics.RecordCircuitBreakerState(route, c.breaker.State(path))

		if fetchErr != nil {
			return nil, fetchErr
		}
		return res, nil
	})

	if shared {
		c.metrics.RecordCoalescingHit(route)
	}

	duration := time.Since(start)

	if err != nil {
		// A waiter cancelled while joined to another caller's fetch gets a
		// raw context error back from the coalescer.
		var clientErr *ClientError
		if !errors.As(err, &clientErr) {
			err = &ClientError{
				Type:      ErrorTypeCanceled,
				Message:   "canceled while awaiting coalesced request",
				Path:      path,
				RequestID: requestID,
				Cause:     err,
			}
		}
		if kind := ErrorKind(err); kind != "" {
			c.metrics.RecordError(kind, route)
		}
		c.emit(opts, RequestEvent{
			Phase:     PhaseFailure,
			Route:     route,
			Path:      path,
			Attempts:  attempts,
			Status:    StatusCode(err),
			Duration:  duration,
			Coalesced: shared,
			Err:       err,
		})
		return nil, err
	}

	res := v.(*fetchResult)
	c.metrics.RecordRequest(route, res.status, duration)
	c.emit(opts, RequestEvent{
		Phase:     PhaseSuccess,
		Route:     route,
		Path:      path,
		Attempts:  attempts,
		Status:    res.status,
		Duration:  duration,
		Coalesced: shared,
	})

	return res.body, nil
}

// fetchWithRetry drives the network attempt loop for one logical GET and
// reports how many attempts were made.
func (c *Client) fetchWithRetry(ctx context.Context, route Route, path string, cached *CacheEntry, opts *callOptions, requestID string) (*fetchResult, int, error) {
	policy := c.retry
	if opts.retry != nil {
		policy = *opts.retry
	}

	var result *fetchResult
	attempts := 0

	onRetry := func(retry int, delay time.Duration) {
		c.metrics.RecordRetry(route, retry)
		if c.debug != nil && c.debug.Enabled && c.debug.LogRetries && c.logger != nil {
			c.logger.Info("Scheduling retry", "requestID", requestID, "retry", retry, "maxRetries", policy.MaxRetries, "backoff", delay, "path", path)
		}
	}

	err := runWithRetry(ctx, policy, onRetry, func(attempt int) error {
		attempts = attempt + 1
		res, attemptErr := c.attempt(ctx, route, path, cached, opts, attempt)
		if attemptErr != nil {
			return attemptErr
		}
		result = res
		return nil
	})

	return result, attempts, err
}

// attempt performs a single conditional GET bounded by the per-attempt
// timeout, classifies failures into the error taxonomy, and writes
// successful bodies through to the cache.
func (c *Client) attempt(ctx context.Context, route Route, path string, cached *CacheEntry, opts *callOptions, attempt int) (*fetchResult, error) {
	timeout := c.timeout
	if opts.timeout > 0 {
		timeout = opts.timeout
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, c.baseURL+"/"+path, nil)
	if err != nil {
		return nil, &ClientError{
			Type:    ErrorTypeInvalidArgument,
			Message: "building request failed",
			Path:    path,
			Attempt: attempt,
			Cause:   err,
		}
	}

	req.Header.Set("Accept", "application/json")
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	for k, v := range opts.headers {
		req.Header.Set(k, v)
	}

	nonce := c.nonce
	if opts.nonceSet {
		nonce = opts.nonce
	}
	if nonce != "" {
		req.Header.Set("X-WP-Nonce", nonce)
	}

	if cached != nil && cached.ETag != "" {
		req.Header.Set("If-None-Match", cached.ETag)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, c.classifyTransportError(ctx, attemptCtx, err, path, attempt)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxBodySize))
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotModified:
		if cached == nil {
			return nil, &ClientError{
				Type:       ErrorTypeHTTP,
				Message:    "304 received without a cached body",
				StatusCode: resp.StatusCode,
				Path:       path,
				Attempt:    attempt,
			}
		}
		// Unchanged upstream: reuse the cached body and restart its TTL clock.
		c.cacheSet(path, &CacheEntry{
			Body:     cached.Body,
			ETag:     cached.ETag,
			StoredAt: time.Now(),
			TTL:      c.ttlFor(route, opts),
		})
		c.metrics.RecordCacheRevalidation(route)
		return &fetchResult{body: cached.Body, status: resp.StatusCode, revalidated: true}, nil

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
		if readErr != nil {
			return nil, &ClientError{
				Type:    ErrorTypeNetwork,
				Message: "reading response body failed",
				Path:    path,
				Attempt: attempt,
				Cause:   readErr,
			}
		}
		c.cacheSet(path, &CacheEntry{
			Body:     body,
			ETag:     resp.Header.Get("ETag"),
			StoredAt: time.Now(),
			TTL:      c.ttlFor(route, opts),
		})
		return &fetchResult{body: body, status: resp.StatusCode}, nil

	default:
		return nil, &ClientError{
			Type:       ErrorTypeHTTP,
			Message:    fmt.Sprintf("server returned %s", resp.Status),
			StatusCode: resp.StatusCode,
			Path:       path,
			Attempt:    attempt,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
		}
	}
}

// classifyTransportError maps a transport failure onto the error taxonomy:
// caller cancellation is fatal, the client's own deadline is a retriable
// timeout, anything else is a retriable network failure.
func (c *Client) classifyTransportError(ctx, attemptCtx context.Context, err error, path string, attempt int) *ClientError {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return &ClientError{
			Type:    ErrorTypeCanceled,
			Message: "request canceled by caller",
			Path:    path,
			Attempt: attempt,
			Cause:   err,
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
		return &ClientError{
			Type:    ErrorTypeTimeout,
			Message: "request timed out",
			Path:    path,
			Attempt: attempt,
			Cause:   err,
		}
	}

	return &ClientError{
		Type:    ErrorTypeNetwork,
		Message: "network request failed",
		Path:    path,
		Attempt: attempt,
		Cause:   err,
	}
}

// cacheSet writes through to the cache; cache failures stay inside the
// store and never reach the request path.
func (c *Client) cacheSet(path string, entry *CacheEntry) {
	if c.cache == nil {
		return
	}
	c.cache.Set(path, entry)

	if inMemory, ok := c.cache.(*InMemoryCache); ok {
		c.metrics.RecordCacheSize("default", inMemory.Len())
	}
}

func (c *Client) ttlFor(route Route, opts *callOptions) time.Duration {
	if opts.ttlSet {
		return opts.ttl
	}
	switch route {
	case RouteIDLookup:
		return c.ttls.IDLookup
	case RouteMetadata:
		return c.ttls.Metadata
	default:
		return c.ttls.Fields
	}
}

// coalesceKey fingerprints the path plus every per-call input that varies
// the response, so calls with different effective headers never merge.
func (c *Client) coalesceKey(path string, opts *callOptions) string {
	h := fnv.New64a()
	_, _ = h.Write([]byte(path))

	for _, k := range sortedKeys(opts.headers) {
		_, _ = io.WriteString(h, ";"+k+"="+opts.headers[k])
	}
	if opts.nonceSet {
		_, _ = io.WriteString(h, ";nonce="+opts.nonce)
	}
	if opts.bypassCache {
		_, _ = io.WriteString(h, ";bypass")
	}

	return path + "|" + strconv.FormatUint(h.Sum64(), 16)
}

func (c *Client) emit(opts *callOptions, event RequestEvent) {
	if opts.observer != nil {
		opts.observer(event)
	}
	if c.observer != nil {
		c.observer(event)
	}
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}
