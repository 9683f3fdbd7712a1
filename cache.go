package formhydrate

import (
	"encoding/json"
	"hash/fnv"
	"sync"
	"time"
)

// CacheEntry is a stored response body plus the validation metadata needed
// for conditional revalidation. ETag, when present, is always the value the
// most recent non-304 response carried for the key.
type CacheEntry struct {
	Body     json.RawMessage `json:"body"`
	ETag     string          `json:"etag,omitempty"`
	StoredAt time.Time       `json:"stored_at"`
	TTL      time.Duration   `json:"ttl"`
}

// Expired reports whether the entry has outlived its TTL. TTL 0 means the
// entry never expires.
func (e *CacheEntry) Expired(now time.Time) bool {
	if e == nil {
		return true
	}
	return e.TTL > 0 && now.After(e.StoredAt.Add(e.TTL))
}

// Cache is the pluggable store contract. Implementations must treat their
// own failures as non-fatal: a broken read is a miss, a broken write is a
// no-op, and neither may surface an error to the request path. Expiry is
// checked lazily on Get; expired entries are purged and reported as misses.
type Cache interface {
	Get(key string) (*CacheEntry, bool)
	Set(key string, entry *CacheEntry)
	Delete(key string)
}

// InMemoryCache is a sharded in-process Cache implementation. It is safe
// for concurrent use.
type InMemoryCache struct {
	shards    []*cacheShard
	numShards int
}

type cacheShard struct {
	mu    sync.RWMutex
	store map[string]*CacheEntry
}

// NewInMemoryCache creates an InMemoryCache with 16 shards.
func NewInMemoryCache() *InMemoryCache {
	numShards := 16
	shards := make([]*cacheShard, numShards)
	for i := range shards {
		shards[i] = &cacheShard{
			store: make(map[string]*CacheEntry),
		}
	}
	return &InMemoryCache{
		shards:    shards,
		numShards: numShards,
	}
}

func (c *InMemoryCache) getShard(key string) *cacheShard {
	hash := fnv.New32a()
	hash.Write([]byte(key))
	return c.shards[hash.Sum32()%uint32(c.numShards)]
}

// Get returns the entry for key, purging it first if expired.
func (c *InMemoryCache) Get(key string) (*CacheEntry, bool) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	entry, exists := shard.store[key]
	if !exists {
		return nil, false
	}

	if entry.Expired(time.Now()) {
		delete(shard.store, key)
		return nil, false
	}

	return entry, true
}

// Set stores an entry, overwriting any previous value for key.
func (c *InMemoryCache) Set(key string, entry *CacheEntry) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	shard.store[key] = entry
}

// Delete removes the entry for key.
func (c *InMemoryCache) Delete(key string) {
	shard := c.getShard(key)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	delete(shard.store, key)
}

// Clear removes all entries.
func (c *InMemoryCache) Clear() {
	for _, shard := range c.shards {
		shard.mu.Lock()
		shard.store = make(map[string]*CacheEntry)
		shard.mu.Unlock()
	}
}

// Len reports the total number of stored entries across shards.
func (c *InMemoryCache) Len() int {
	total := 0
	for _, shard := range c.shards {
		shard.mu.RLock()
		total += len(shard.store)
		shard.mu.RUnlock()
	}
	return total
}

// RouteTTLs holds the per-route cache lifetimes. A zero value means the
// entry never expires; the client defaults are applied in New.
type RouteTTLs struct {
	IDLookup time.Duration
	Metadata time.Duration
	Fields   time.Duration
}
