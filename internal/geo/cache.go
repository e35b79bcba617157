package geo

import (
	"context"
	"sync"
)

// Resolver is the lookup surface the cache memoizes.
type Resolver interface {
	Lookup(ctx context.Context, ip string) (Location, error)
}

// CachedResolver memoizes successful lookups per IP. The cache is a derived,
// rebuildable structure and registers with the idle reclaimer as a light
// target: clearing it mid-lookup only costs one extra remote call.
type CachedResolver struct {
	inner Resolver

	mu    sync.Mutex
	cache map[string]Location
}

// NewCachedResolver wraps a resolver with an in-memory memo.
func NewCachedResolver(inner Resolver) *CachedResolver {
	return &CachedResolver{
		inner: inner,
		cache: map[string]Location{},
	}
}

// Lookup serves from the memo when possible; failures are not cached.
func (c *CachedResolver) Lookup(ctx context.Context, ip string) (Location, error) {
	c.mu.Lock()
	if loc, ok := c.cache[ip]; ok {
		c.mu.Unlock()
		return loc, nil
	}
	c.mu.Unlock()

	loc, err := c.inner.Lookup(ctx, ip)
	if err != nil {
		return Location{}, err
	}

	c.mu.Lock()
	c.cache[ip] = loc
	c.mu.Unlock()
	return loc, nil
}

// Size returns the number of memoized entries.
func (c *CachedResolver) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}

// Name implements the reclaimable contract.
func (c *CachedResolver) Name() string { return "geo_cache" }

// Reclaim drops the memo. Idempotent.
func (c *CachedResolver) Reclaim() error {
	c.mu.Lock()
	c.cache = map[string]Location{}
	c.mu.Unlock()
	return nil
}
