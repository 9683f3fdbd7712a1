package formhydrate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	Addr         string   `yaml:"addr"`
	Password     string   `yaml:"password"`
	DB           int      `yaml:"db"`
	PoolSize     int      `yaml:"pool_size"`
	DialTimeout  Duration `yaml:"dial_timeout"`
	ReadTimeout  Duration `yaml:"read_timeout"`
	WriteTimeout Duration `yaml:"write_timeout"`
	KeyPrefix    string   `yaml:"key_prefix"`
}

func (c *RedisConfig) withDefaults() *RedisConfig {
	out := *c
	if out.Addr == "" {
		out.Addr = "localhost:6379"
	}
	if out.PoolSize == 0 {
		out.PoolSize = 10
	}
	if out.DialTimeout == 0 {
		out.DialTimeout = Duration(5 * time.Second)
	}
	if out.ReadTimeout == 0 {
		out.ReadTimeout = Duration(3 * time.Second)
	}
	if out.WriteTimeout == 0 {
		out.WriteTimeout = Duration(3 * time.Second)
	}
	if out.KeyPrefix == "" {
		out.KeyPrefix = "formhydrate"
	}
	return &out
}

// RedisCache backs the Cache contract with a shared Redis instance so
// multiple frontends revalidate against one store. Every Redis failure is
// logged and degraded to a miss or no-op; the request path never sees it.
type RedisCache struct {
	client *redis.Client
	config *RedisConfig
	logger Logger
}

// NewRedisCache creates a RedisCache and verifies connectivity with a ping.
func NewRedisCache(config RedisConfig, logger Logger) (*RedisCache, error) {
	cfg := config.withDefaults()
	if logger == nil {
		logger = noopLogger{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		DialTimeout:  cfg.DialTimeout.Std(),
		ReadTimeout:  cfg.ReadTimeout.Std(),
		WriteTimeout: cfg.WriteTimeout.Std(),
	})

	ctx, cancel := context.WithTimeout(context.Background(), cfg.DialTimeout.Std())
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("formhydrate: redis ping failed: %w", err)
	}

	return &RedisCache{
		client: client,
		config: cfg,
		logger: logger,
	}, nil
}

// Get retrieves an entry, treating any Redis or decode failure as a miss.
func (r *RedisCache) Get(key string) (*CacheEntry, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.ReadTimeout.Std())
	defer cancel()

	data, err := r.client.Get(ctx, r.fullKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			r.logger.Warn("redis cache read failed", "key", key, "error", err)
		}
		return nil, false
	}

	var entry CacheEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		r.logger.Warn("redis cache entry corrupt, dropping", "key", key, "error", err)
		r.Delete(key)
		return nil, false
	}

	if entry.Expired(time.Now()) {
		r.Delete(key)
		return nil, false
	}

	return &entry, true
}

// Set stores an entry. Entries with a positive TTL also get a Redis expiry
// so abandoned keys age out server-side.
func (r *RedisCache) Set(key string, entry *CacheEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		r.logger.Warn("redis cache entry marshal failed", "key", key, "error", err)
		return
	}

	var expiry time.Duration
	if entry.TTL > 0 {
		expiry = entry.TTL
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout.Std())
	defer cancel()

	if err := r.client.Set(ctx, r.fullKey(key), data, expiry).Err(); err != nil {
		r.logger.Warn("redis cache write failed", "key", key, "error", err)
	}
}

// Delete removes the entry for key, best-effort.
func (r *RedisCache) Delete(key string) {
	ctx, cancel := context.WithTimeout(context.Background(), r.config.WriteTimeout.Std())
	defer cancel()

	if err := r.client.Del(ctx, r.fullKey(key)).Err(); err != nil {
		r.logger.Warn("redis cache delete failed", "key", key, "error", err)
	}
}

// Close releases the underlying Redis client.
func (r *RedisCache) Close() error {
	return r.client.Close()
}

func (r *RedisCache) fullKey(key string) string {
	return r.config.KeyPrefix + ":" + key
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}
