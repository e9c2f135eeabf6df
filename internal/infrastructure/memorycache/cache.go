package memorycache

import (
	"context"
	"sync"
	"time"

	"github.com/flashmart/reservation/internal/pkg/clock"
)

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Cache is an in-process TTL byte cache with lazy expiry on read. It backs
// the product read side when no Redis is configured and in tests.
type Cache struct {
	mu      sync.RWMutex
	clock   clock.Clock
	entries map[string]entry
}

func New(clk clock.Clock) *Cache {
	return &Cache{
		clock:   clk,
		entries: make(map[string]entry),
	}
}

func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	_ = ctx

	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.expiresAt.After(c.clock.Now()) {
		c.mu.Lock()
		// Re-check: a concurrent Set may have refreshed the entry.
		if cur, ok := c.entries[key]; ok && !cur.expiresAt.After(c.clock.Now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false, nil
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

func (c *Cache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	_ = ctx
	if ttl <= 0 {
		return nil
	}

	stored := make([]byte, len(value))
	copy(stored, value)

	c.mu.Lock()
	c.entries[key] = entry{value: stored, expiresAt: c.clock.Now().Add(ttl)}
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(ctx context.Context, key string) error {
	_ = ctx

	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}
