package formhydrate

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Option represents a configuration option for New.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithEndpoints overrides the REST route templates.
func WithEndpoints(endpoints Endpoints) Option {
	return func(c *Client) {
		c.endpoints = endpoints
	}
}

// WithTimeout sets the per-attempt request timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// WithHeader adds an instance-level header sent on every request.
func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers[key] = value
	}
}

// WithNonce sets the instance-level X-WP-Nonce value. A per-call nonce
// overrides it for that call only.
func WithNonce(nonce string) Option {
	return func(c *Client) {
		c.nonce = nonce
	}
}

// WithRetryPolicy replaces the instance retry policy.
func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

// WithCircuitBreaker sets the circuit breaker configuration.
func WithCircuitBreaker(config CircuitBreakerConfig) Option {
	return func(c *Client) {
		c.breaker = NewCircuitBreaker(config)
	}
}

// WithRateLimiter enables the token-bucket rate limiter.
func WithRateLimiter(maxTokens int, refillRate time.Duration) Option {
	return func(c *Client) {
		c.limiter = NewRateLimiter(maxTokens, refillRate)
	}
}

// WithCache sets a custom cache implementation. Pass nil to disable
// caching entirely.
func WithCache(cache Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

// WithRouteTTLs overrides the per-route cache lifetimes. Zero means the
// entry never expires.
func WithRouteTTLs(ttls RouteTTLs) Option {
	return func(c *Client) {
		c.ttls = ttls
	}
}

// WithMetrics enables Prometheus metrics on the default registerer.
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsCollector sets a custom metrics collector.
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithLogger sets the logger for debug output and non-fatal cache noise.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithDebug enables debug logging with the default configuration.
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets a custom debug configuration.
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithObserver sets the instance-level request event sink.
func WithObserver(observer Observer) Option {
	return func(c *Client) {
		c.observer = observer
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs.
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// callOptions carries the per-call overrides for one operation.
type callOptions struct {
	headers     map[string]string
	timeout     time.Duration
	nonce       string
	nonceSet    bool
	bypassCache bool
	ttl         time.Duration
	ttlSet      bool
	observer    Observer
	retry       *RetryPolicy
}

// CallOption overrides an instance default for a single call.
type CallOption func(*callOptions)

// WithCallHeader adds a header for this call only.
func WithCallHeader(key, value string) CallOption {
	return func(o *callOptions) {
		if o.headers == nil {
			o.headers = map[string]string{}
		}
		o.headers[key] = value
	}
}

// WithCallTimeout overrides the per-attempt timeout for this call.
func WithCallTimeout(d time.Duration) CallOption {
	return func(o *callOptions) {
		o.timeout = d
	}
}

// WithCallNonce overrides the X-WP-Nonce value for this call, e.g. a
// one-time credential. An empty value suppresses the instance nonce.
func WithCallNonce(nonce string) CallOption {
	return func(o *callOptions) {
		o.nonce = nonce
		o.nonceSet = true
	}
}

// WithCacheBypass skips the cache lookup for this call; the fresh response
// still writes through.
func WithCacheBypass() CallOption {
	return func(o *callOptions) {
		o.bypassCache = true
	}
}

// WithCallTTL overrides the cache TTL for entries written by this call.
// Zero means the entry never expires.
func WithCallTTL(ttl time.Duration) CallOption {
	return func(o *callOptions) {
		o.ttl = ttl
		o.ttlSet = true
	}
}

// WithCallObserver adds an event sink for this call only.
func WithCallObserver(observer Observer) CallOption {
	return func(o *callOptions) {
		o.observer = observer
	}
}

// WithCallRetryPolicy replaces the retry policy for this call.
func WithCallRetryPolicy(policy RetryPolicy) CallOption {
	return func(o *callOptions) {
		o.retry = &policy
	}
}

func applyCallOptions(opts []CallOption) *callOptions {
	o := &callOptions{}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ValidateConfiguration validates the client configuration and returns an
// error if invalid.
func (c *Client) ValidateConfiguration() error {
	var problems []string

	problems = append(problems, c.validateBaseConfig()...)
	problems = append(problems, c.validateRetryConfig()...)
	problems = append(problems, c.validateBreakerConfig()...)
	problems = append(problems, c.validateRateLimiterConfig()...)
	problems = append(problems, c.validateTTLConfig()...)
	problems = append(problems, c.validateDebugConfig()...)

	if len(problems) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", problems),
		}
	}

	return nil
}

func (c *Client) validateBaseConfig() []string {
	var problems []string

	if c.baseURL == "" {
		problems = append(problems, "base URL must not be empty")
	} else if u, err := url.Parse(c.baseURL); err != nil || u.Scheme == "" || u.Host == "" {
		problems = append(problems, "base URL must be an absolute URL")
	}

	if c.httpClient == nil {
		problems = append(problems, "HTTP client cannot be nil")
	}

	if c.timeout <= 0 {
		problems = append(problems, "timeout must be positive")
	}

	if !strings.Contains(c.endpoints.IDLookup, "%s") {
		problems = append(problems, "IDLookup endpoint must contain a %s verb")
	}
	if !strings.Contains(c.endpoints.Metadata, "%d") {
		problems = append(problems, "Metadata endpoint must contain a %d verb")
	}
	if !strings.Contains(c.endpoints.Fields, "%d") {
		problems = append(problems, "Fields endpoint must contain a %d verb")
	}

	return problems
}

func (c *Client) validateRetryConfig() []string {
	var problems []string

	if c.retry.MaxRetries < 0 {
		problems = append(problems, "maxRetries must be non-negative")
	}
	if c.retry.BackoffBase <= 0 {
		problems = append(problems, "backoffBase must be positive")
	}
	if c.retry.BackoffCap < c.retry.BackoffBase {
		problems = append(problems, "backoffCap must be greater than or equal to backoffBase")
	}

	return problems
}

func (c *Client) validateBreakerConfig() []string {
	var problems []string

	if c.breaker != nil {
		if c.breaker.config.FailureThreshold <= 0 {
			problems = append(problems, "circuitBreaker FailureThreshold must be positive")
		}
		if c.breaker.config.CoolOff <= 0 {
			problems = append(problems, "circuitBreaker CoolOff must be positive")
		}
	}

	return problems
}

func (c *Client) validateRateLimiterConfig() []string {
	var problems []string

	if c.limiter != nil {
		if c.limiter.maxTokens <= 0 {
			problems = append(problems, "rateLimiter maxTokens must be positive")
		}
		if c.limiter.refillRate <= 0 {
			problems = append(problems, "rateLimiter refillRate must be positive")
		}
	}

	return problems
}

func (c *Client) validateTTLConfig() []string {
	var problems []string

	if c.ttls.IDLookup < 0 || c.ttls.Metadata < 0 || c.ttls.Fields < 0 {
		problems = append(problems, "route TTLs must be non-negative")
	}

	return problems
}

func (c *Client) validateDebugConfig() []string {
	var problems []string

	if c.debug != nil && c.debug.Enabled {
		if c.debug.RequestIDGen == nil {
			problems = append(problems, "debug RequestIDGen must be set when debug is enabled")
		}
		if c.logger == nil {
			problems = append(problems, "logger must be set when debug is enabled")
		}
	}

	return problems
}
