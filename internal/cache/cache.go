package cache

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/local-briefing/internal/models"
)

// LocationCache stores resolved locations with a TTL.
// Get returns (loc, true, nil) on hit and (zero, false, nil) on miss or expiry.
type LocationCache interface {
	Get(ctx context.Context, key string) (models.Location, bool, error)
	Set(ctx context.Context, key string, loc models.Location, ttl time.Duration) error
}

// Pinger is implemented by backends that can report reachability for health checks.
// MemcachedCache implements it; the in-memory backend is always reachable.
type Pinger interface {
	Ping() error
}

// InMemoryCache implements LocationCache using a map guarded by a mutex.
// Expired entries are removed on access.
type InMemoryCache struct {
	mu   sync.Mutex
	data map[string]cacheEntry
	now  func() time.Time
}

type cacheEntry struct {
	value     models.Location
	expiresAt time.Time
}

func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		data: make(map[string]cacheEntry),
		now:  time.Now,
	}
}

func (c *InMemoryCache) Get(ctx context.Context, key string) (models.Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.data[key]
	if !ok {
		return models.Location{}, false, nil
	}
	if c.now().After(entry.expiresAt) {
		delete(c.data, key)
		return models.Location{}, false, nil
	}
	return entry.value, true, nil
}

func (c *InMemoryCache) Set(ctx context.Context, key string, loc models.Location, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	c.data[key] = cacheEntry{
		value:     loc,
		expiresAt: c.now().Add(ttl),
	}
	c.mu.Unlock()
	return nil
}
