package geo

import (
	"context"
	"sync"
	"time"
)

type ttlEntry struct {
	country string
	exp     int64
}

// CachedResolver keeps successful lookups for ttl. When full, an arbitrary
// entry is evicted.
type CachedResolver struct {
	next Resolver
	mu   sync.Mutex
	ttl  time.Duration
	cap  int
	m    map[string]ttlEntry
}

func NewCachedResolver(next Resolver, capacity int, ttl time.Duration) *CachedResolver {
	if capacity <= 0 {
		capacity = 65536
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &CachedResolver{next: next, ttl: ttl, cap: capacity, m: make(map[string]ttlEntry)}
}

func (c *CachedResolver) Country(ctx context.Context, ip string) (string, error) {
	if country, ok := c.get(ip); ok {
		return country, nil
	}
	country, err := c.next.Country(ctx, ip)
	if err != nil {
		return "", err
	}
	c.set(ip, country)
	return country, nil
}

// Purge drops every cached answer, e.g. after the database was reloaded.
func (c *CachedResolver) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m = make(map[string]ttlEntry)
}

func (c *CachedResolver) get(k string) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.m[k]; ok {
		if time.Now().UnixNano() < e.exp {
			return e.country, true
		}
		delete(c.m, k)
	}
	return "", false
}

func (c *CachedResolver) set(k string, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.m) >= c.cap {
		for k0 := range c.m {
			delete(c.m, k0)
			break
		}
	}
	c.m[k] = ttlEntry{country: v, exp: time.Now().Add(c.ttl).UnixNano()}
}
