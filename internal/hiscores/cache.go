package hiscores

import (
	"context"
	"strings"
	"sync"
	"time"

	"clanbot/internal/event"
)

// Cache is an explicit short-lived snapshot cache in front of a Client.
//
// The TTL matches the refresh cadence: two overlapping refresh cycles (or a
// user stats command racing a refresh) reuse one lookup instead of hitting
// the remote API twice. Entries are keyed by case-folded account name.
type Cache struct {
	inner Client
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	snap event.Snapshot
	at   time.Time
}

func NewCache(inner Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Cache{
		inner:   inner,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

func (c *Cache) Lookup(ctx context.Context, name string) (event.Snapshot, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	now := c.now()

	c.mu.Lock()
	if e, ok := c.entries[key]; ok && now.Sub(e.at) < c.ttl {
		c.mu.Unlock()
		return e.snap, nil
	}
	c.mu.Unlock()

	snap, err := c.inner.Lookup(ctx, name)
	if err != nil {
		// Failures are not cached; the next cycle retries.
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = cacheEntry{snap: snap, at: now}
	// Opportunistic prune keeps the map bounded without a sweeper goroutine.
	for k, e := range c.entries {
		if now.Sub(e.at) >= c.ttl {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
	return snap, nil
}
