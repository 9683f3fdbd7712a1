package formhydrate

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"
)

func TestInMemoryCacheSetGet(t *testing.T) {
	cache := NewInMemoryCache()
	entry := &CacheEntry{
		Body:     json.RawMessage(`{"id": 7}`),
		ETag:     `"v1"`,
		StoredAt: time.Now(),
		TTL:      time.Minute,
	}

	cache.Set("custom/v1/form-id/contact_form", entry)

	got, found := cache.Get("custom/v1/form-id/contact_form")
	if !found {
		t.Fatal("expected entry to be found")
	}
	if got.ETag != `"v1"` {
		t.Errorf("ETag = %q, want %q", got.ETag, `"v1"`)
	}
	if string(got.Body) != `{"id": 7}` {
		t.Errorf("Body = %s", got.Body)
	}
}

func TestInMemoryCacheMiss(t *testing.T) {
	cache := NewInMemoryCache()
	if _, found := cache.Get("missing"); found {
		t.Error("expected miss for unknown key")
	}
}

func TestInMemoryCacheExpiry(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("key", &CacheEntry{
		Body:     json.RawMessage(`{}`),
		StoredAt: time.Now().Add(-time.Minute),
		TTL:      time.Second,
	})

	if _, found := cache.Get("key"); found {
		t.Error("expected expired entry to be reported as a miss")
	}
	if cache.Len() != 0 {
		t.Errorf("Len() = %d after expired Get, want 0 (lazy purge)", cache.Len())
	}
}

func TestInMemoryCacheZeroTTLNeverExpires(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("key", &CacheEntry{
		Body:     json.RawMessage(`{}`),
		StoredAt: time.Now().Add(-24 * time.Hour),
		TTL:      0,
	})

	if _, found := cache.Get("key"); !found {
		t.Error("expected TTL 0 entry to survive indefinitely")
	}
}

func TestInMemoryCacheDelete(t *testing.T) {
	cache := NewInMemoryCache()
	cache.Set("key", &CacheEntry{Body: json.RawMessage(`{}`), StoredAt: time.Now()})
	cache.Delete("key")

	if _, found := cache.Get("key"); found {
		t.Error("expected deleted entry to be gone")
	}
}

func TestInMemoryCacheClearAndLen(t *testing.T) {
	cache := NewInMemoryCache()
	for i := 0; i < 20; i++ {
		cache.Set(fmt.Sprintf("key-%d", i), &CacheEntry{Body: json.RawMessage(`{}`), StoredAt: time.Now()})
	}
	if got := cache.Len(); got != 20 {
		t.Errorf("Len() = %d, want 20", got)
	}

	cache.Clear()
	if got := cache.Len(); got != 0 {
		t.Errorf("Len() after Clear = %d, want 0", got)
	}
}

func TestInMemoryCacheConcurrentAccess(t *testing.T) {
	cache := NewInMemoryCache()
	var wg sync.WaitGroup

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := fmt.Sprintf("key-%d", i%10)
			cache.Set(key, &CacheEntry{Body: json.RawMessage(`{}`), StoredAt: time.Now()})
			cache.Get(key)
			cache.Delete(key)
		}(i)
	}
	wg.Wait()
}

func TestCacheEntryExpired(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		entry *CacheEntry
		want  bool
	}{
		{"nil entry", nil, true},
		{"fresh", &CacheEntry{StoredAt: now, TTL: time.Minute}, false},
		{"stale", &CacheEntry{StoredAt: now.Add(-2 * time.Minute), TTL: time.Minute}, true},
		{"no ttl", &CacheEntry{StoredAt: now.Add(-time.Hour), TTL: 0}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.entry.Expired(now); got != tt.want {
				t.Errorf("Expired() = %v, want %v", got, tt.want)
			}
		})
	}
}
