package cache

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

// MemoryCache implements ResultCache with ttlcache.
type MemoryCache struct {
	cache *ttlcache.Cache[string, Entry]
}

// NewMemoryCache creates an in-memory result cache with automatic cleanup.
func NewMemoryCache(defaultTTL time.Duration) *MemoryCache {
	c := ttlcache.New(
		ttlcache.WithTTL[string, Entry](defaultTTL),
		ttlcache.WithDisableTouchOnHit[string, Entry](),
	)
	go c.Start()

	return &MemoryCache{cache: c}
}

// Get implements ResultCache.Get.
func (m *MemoryCache) Get(_ context.Context, key string) (Entry, bool) {
	item := m.cache.Get(key)
	if item == nil {
		return Entry{}, false
	}
	return item.Value(), true
}

// Set implements ResultCache.Set.
func (m *MemoryCache) Set(_ context.Context, key string, entry Entry, ttl time.Duration) {
	m.cache.Set(key, entry, ttl)
}

// Stop terminates the cleanup goroutine.
func (m *MemoryCache) Stop() {
	m.cache.Stop()
}
