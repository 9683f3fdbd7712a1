package formhydrate

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML config files can use readable values
// like "250ms" or "5m". Bare integers are taken as seconds.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var seconds int64
	if err := value.Decode(&seconds); err != nil {
		return fmt.Errorf("invalid duration value %q", value.Value)
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Config is the YAML file representation of a client configuration, for
// services that wire the hydrator from deployment config instead of code.
type Config struct {
	BaseURL string            `yaml:"base_url"`
	Nonce   string            `yaml:"nonce"`
	Timeout Duration          `yaml:"timeout"`
	Headers map[string]string `yaml:"headers"`

	Retry struct {
		MaxRetries        int      `yaml:"max_retries"`
		BackoffBase       Duration `yaml:"backoff_base"`
		BackoffCap        Duration `yaml:"backoff_cap"`
		Jitter            bool     `yaml:"jitter"`
		RetriableStatuses []int    `yaml:"retriable_statuses"`
	} `yaml:"retry"`

	Breaker struct {
		FailureThreshold int      `yaml:"failure_threshold"`
		CoolOff          Duration `yaml:"cool_off"`
	} `yaml:"breaker"`

	Cache struct {
		// Type is memory, redis or none.
		Type string `yaml:"type"`
		TTL  struct {
			IDLookup Duration `yaml:"id_lookup"`
			Metadata Duration `yaml:"metadata"`
			Fields   Duration `yaml:"fields"`
		} `yaml:"ttl"`
		Redis RedisConfig `yaml:"redis"`
	} `yaml:"cache"`

	RateLimit struct {
		Enabled        bool     `yaml:"enabled"`
		MaxTokens      int      `yaml:"max_tokens"`
		RefillInterval Duration `yaml:"refill_interval"`
	} `yaml:"rate_limit"`

	Metrics struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"metrics"`

	Debug struct {
		Enabled bool `yaml:"enabled"`
	} `yaml:"debug"`
}

// DefaultConfig returns a Config mirroring the in-code defaults.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Timeout = Duration(10 * time.Second)
	cfg.Retry.MaxRetries = 3
	cfg.Retry.BackoffBase = Duration(250 * time.Millisecond)
	cfg.Retry.BackoffCap = Duration(8 * time.Second)
	cfg.Retry.Jitter = true
	cfg.Retry.RetriableStatuses = []int{429, 500, 502, 503, 504}
	cfg.Breaker.FailureThreshold = 5
	cfg.Breaker.CoolOff = Duration(30 * time.Second)
	cfg.Cache.Type = "memory"
	cfg.Cache.TTL.IDLookup = Duration(15 * time.Minute)
	cfg.Cache.TTL.Metadata = Duration(5 * time.Minute)
	cfg.Cache.TTL.Fields = Duration(5 * time.Minute)
	cfg.RateLimit.MaxTokens = 10
	cfg.RateLimit.RefillInterval = Duration(100 * time.Millisecond)
	return cfg
}

// LoadConfig reads and validates a YAML config file, with defaults applied
// before unmarshalling so absent keys keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("formhydrate: reading config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("formhydrate: parsing config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the loaded configuration.
func (cfg *Config) Validate() error {
	if cfg.BaseURL == "" {
		return &ClientError{Type: ErrorTypeValidation, Message: "base_url is required"}
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return &ClientError{Type: ErrorTypeValidation, Message: "base_url must be an absolute URL"}
	}
	if cfg.Timeout <= 0 {
		return &ClientError{Type: ErrorTypeValidation, Message: "timeout must be positive"}
	}
	if cfg.Retry.MaxRetries < 0 {
		return &ClientError{Type: ErrorTypeValidation, Message: "retry.max_retries must be non-negative"}
	}
	if cfg.Retry.BackoffBase <= 0 || cfg.Retry.BackoffCap < cfg.Retry.BackoffBase {
		return &ClientError{Type: ErrorTypeValidation, Message: "retry backoff bounds are invalid"}
	}
	switch cfg.Cache.Type {
	case "memory", "redis", "none":
	default:
		return &ClientError{Type: ErrorTypeValidation, Message: fmt.Sprintf("cache.type %q is not one of memory, redis, none", cfg.Cache.Type)}
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxTokens <= 0 || cfg.RateLimit.RefillInterval <= 0) {
		return &ClientError{Type: ErrorTypeValidation, Message: "rate_limit requires positive max_tokens and refill_interval"}
	}
	return nil
}

// NewFromConfig builds a Client from a loaded Config. extra options are
// applied after the config-derived ones, so code-level options win.
func NewFromConfig(cfg *Config, logger Logger, extra ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	retriable := make(map[int]bool, len(cfg.Retry.RetriableStatuses))
	for _, status := range cfg.Retry.RetriableStatuses {
		retriable[status] = true
	}

	options := []Option{
		WithTimeout(cfg.Timeout.Std()),
		WithRetryPolicy(RetryPolicy{
			MaxRetries:      cfg.Retry.MaxRetries,
			BackoffBase:     cfg.Retry.BackoffBase.Std(),
			BackoffCap:      cfg.Retry.BackoffCap.Std(),
			Jitter:          cfg.Retry.Jitter,
			RetriableStatus: retriable,
		}),
		WithCircuitBreaker(CircuitBreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			CoolOff:          cfg.Breaker.CoolOff.Std(),
		}),
		WithRouteTTLs(RouteTTLs{
			IDLookup: cfg.Cache.TTL.IDLookup.Std(),
			Metadata: cfg.Cache.TTL.Metadata.Std(),
			Fields:   cfg.Cache.TTL.Fields.Std(),
		}),
	}

	if cfg.Nonce != "" {
		options = append(options, WithNonce(cfg.Nonce))
	}
	for k, v := range cfg.Headers {
		options = append(options, WithHeader(k, v))
	}

	switch cfg.Cache.Type {
	case "redis":
		redisCache, err := NewRedisCache(cfg.Cache.Redis, logger)
		if err != nil {
			return nil, err
		}
		options = append(options, WithCache(redisCache))
	case "none":
		options = append(options, WithCache(nil))
	}

	if cfg.RateLimit.Enabled {
		options = append(options, WithRateLimiter(cfg.RateLimit.MaxTokens, cfg.RateLimit.RefillInterval.Std()))
	}
	if cfg.Metrics.Enabled {
		options = append(options, WithMetrics())
	}
	if logger != nil {
		options = append(options, WithLogger(logger))
	}
	if cfg.Debug.Enabled {
		options = append(options, WithDebug())
	}

	options = append(options, extra...)

	client := New(cfg.BaseURL, options...)
	if err := client.ValidationError(); err != nil {
		return nil, err
	}
	return client, nil
}
