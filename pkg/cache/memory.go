package cache

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/boogy/health-journal/pkg/types"
)

// localTier is the in-process LRU used on its own by the memory backend and
// in front of the remote backends.
type localTier struct {
	mu      sync.Mutex
	data    map[string]*cacheItem
	maxSize int
	now     func() time.Time
}

type cacheItem struct {
	value      *types.JWKS
	expiration time.Time
	lastAccess time.Time // For LRU eviction
}

func newLocalTier(maxSize int, now func() time.Time) *localTier {
	return &localTier{
		data:    make(map[string]*cacheItem),
		maxSize: maxSize,
		now:     now,
	}
}

func (l *localTier) get(key string) (*types.JWKS, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	item, found := l.data[key]
	if !found {
		return nil, false
	}

	now := l.now()
	if now.After(item.expiration) {
		delete(l.data, key)
		return nil, false
	}

	item.lastAccess = now
	return item.value, true
}

func (l *localTier) set(key string, value *types.JWKS, expiration time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, exists := l.data[key]; !exists && len(l.data) >= l.maxSize {
		l.evictLRU()
	}

	l.data[key] = &cacheItem{
		value:      value,
		expiration: expiration,
		lastAccess: l.now(),
	}
}

// evictLRU removes the least recently used item. Caller holds mu.
func (l *localTier) evictLRU() {
	var oldestKey string
	var oldestTime time.Time

	for k, entry := range l.data {
		if oldestTime.IsZero() || entry.lastAccess.Before(oldestTime) {
			oldestKey = k
			oldestTime = entry.lastAccess
		}
	}

	if oldestKey != "" {
		slog.Debug("Evicting LRU cache item", "key", oldestKey, "lastAccess", oldestTime)
		delete(l.data, oldestKey)
	}
}

func (l *localTier) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.data)
}

type memoryCache struct {
	local      *localTier
	defaultTTL time.Duration
	now        func() time.Time
}

// NewMemoryCache returns a process-local store. It only helps when the
// identity provider fails after the first successful fetch of this process.
func NewMemoryCache(opts ...Option) Cache {
	o := newOptions(opts)
	return &memoryCache{
		local:      newLocalTier(o.maxLocalSize, o.now),
		defaultTTL: o.defaultTTL,
		now:        o.now,
	}
}

func (c *memoryCache) Get(_ context.Context, key string) (*types.JWKS, bool) {
	value, found := c.local.get(key)
	if !found {
		slog.Debug("Cache miss", "key", key)
		return nil, false
	}
	slog.Debug("Cache hit", "key", key)
	return value, true
}

func (c *memoryCache) Set(_ context.Context, key string, value *types.JWKS, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.local.set(key, value, c.now().Add(ttl))
	slog.Debug("Cached value", "key", key, "ttl", ttl)
}
