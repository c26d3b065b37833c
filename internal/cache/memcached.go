package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/local-briefing/internal/models"
)

// locationKeyPrefix is versioned so a change to storedLocation can be rolled out without
// reading entries written by older builds.
const locationKeyPrefix = "briefing:v1:location:"

// maxKeyLen is memcached's key length limit.
const maxKeyLen = 250

// MemcachedCache keeps resolved locations in memcached so serve instances behind one
// egress IP share a resolution instead of each probing the geolocation endpoints.
type MemcachedCache struct {
	client *memcache.Client
}

// storedLocation is the wire form of a cached resolution.
type storedLocation struct {
	City        string    `json:"city"`
	Country     string    `json:"country"`
	CountryCode string    `json:"cc"`
	ResolvedAt  time.Time `json:"at"`
}

// NewMemcachedCache connects lazily to addrs, a comma-separated server list such as
// "host1:11211,host2:11211". Zero timeout or maxIdleConns keep the client defaults.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	mc := memcache.New(servers...)
	if timeout > 0 {
		mc.Timeout = timeout
	}
	if maxIdleConns > 0 {
		mc.MaxIdleConns = maxIdleConns
	}
	return &MemcachedCache{client: mc}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		if a = strings.TrimSpace(a); a != "" {
			out = append(out, a)
		}
	}
	return out
}

// locationKey maps a resolution scope to a memcached key. Memcached rejects spaces and
// control characters, so those become underscores; over-long scopes are truncated.
func locationKey(scope string) string {
	key := []byte(locationKeyPrefix + strings.ToLower(strings.TrimSpace(scope)))
	for i, b := range key {
		if b <= ' ' || b == 0x7f {
			key[i] = '_'
		}
	}
	if len(key) > maxKeyLen {
		key = key[:maxKeyLen]
	}
	return string(key)
}

// Get returns the location stored for scope. Entries that fail to decode or carry no
// country code are deleted and reported as a miss: a stale writer must not pin a bad
// location until its TTL runs out.
func (c *MemcachedCache) Get(ctx context.Context, scope string) (models.Location, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Location{}, false, err
	}
	key := locationKey(scope)
	item, err := c.client.Get(key)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.Location{}, false, nil
	}
	if err != nil {
		return models.Location{}, false, fmt.Errorf("memcached get %s: %w", key, err)
	}

	loc, ok := decodeLocation(item.Value)
	if !ok {
		_ = c.client.Delete(key)
		return models.Location{}, false, nil
	}
	return loc, true, nil
}

// Set stores loc under scope for ttl.
func (c *MemcachedCache) Set(ctx context.Context, scope string, loc models.Location, ttl time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	raw, err := encodeLocation(loc, time.Now())
	if err != nil {
		return err
	}
	key := locationKey(scope)
	if err := c.client.Set(&memcache.Item{Key: key, Value: raw, Expiration: expirationSeconds(ttl)}); err != nil {
		return fmt.Errorf("memcached set %s: %w", key, err)
	}
	return nil
}

func encodeLocation(loc models.Location, at time.Time) ([]byte, error) {
	return json.Marshal(storedLocation{
		City:        loc.City,
		Country:     loc.Country,
		CountryCode: loc.CountryCode,
		ResolvedAt:  at.UTC(),
	})
}

func decodeLocation(raw []byte) (models.Location, bool) {
	var s storedLocation
	if err := json.Unmarshal(raw, &s); err != nil || s.CountryCode == "" {
		return models.Location{}, false
	}
	return models.Location{City: s.City, Country: s.Country, CountryCode: s.CountryCode}, true
}

// expirationSeconds converts ttl to memcached's relative expiry. Values above
// 30 days would be read as a unix timestamp, so they fall back to one hour.
func expirationSeconds(ttl time.Duration) int32 {
	const maxRelativeExp = 30 * 24 * 60 * 60
	sec := int64(ttl / time.Second)
	if sec <= 0 || sec > maxRelativeExp {
		return 3600
	}
	return int32(sec)
}

// Ping implements Pinger for the health check.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
