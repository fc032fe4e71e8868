package cache

import (
	"context"
	"sync"
	"time"
)

// Store is a TTL-gated key/value cache.
type Store[V any] interface {
	Get(ctx context.Context, key string) (V, bool)
	Set(ctx context.Context, key string, value V, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

type item[V any] struct {
	value     V
	expiresAt time.Time
}

// MemoryStore is a process-local Store. Expired entries are dropped lazily on read.
type MemoryStore[V any] struct {
	mu    sync.RWMutex
	items map[string]item[V]
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store. A nil clock means time.Now.
func NewMemoryStore[V any](now func() time.Time) *MemoryStore[V] {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore[V]{
		items: make(map[string]item[V]),
		now:   now,
	}
}

func (c *MemoryStore[V]) Get(_ context.Context, key string) (V, bool) {
	c.mu.RLock()
	it, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		var zero V
		return zero, false
	}
	if !c.now().Before(it.expiresAt) {
		c.mu.Lock()
		// Re-check: a writer may have refreshed the entry meanwhile.
		if cur, ok := c.items[key]; ok && !c.now().Before(cur.expiresAt) {
			delete(c.items, key)
		}
		c.mu.Unlock()
		var zero V
		return zero, false
	}
	return it.value, true
}

func (c *MemoryStore[V]) Set(_ context.Context, key string, value V, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = item[V]{value: value, expiresAt: c.now().Add(ttl)}
}

func (c *MemoryStore[V]) Delete(_ context.Context, key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
}

// Len returns the number of entries, including ones that have expired but were not read since.
func (c *MemoryStore[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}
