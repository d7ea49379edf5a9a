package routing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"backend-fieldops/internal/gps"
)

// DefaultCacheTTL matches how long a computed route stays trustworthy.
const DefaultCacheTTL = 24 * time.Hour

// signatureDecimals rounds coordinates for the cache key; 6 decimals is
// roughly 10cm, well under GPS accuracy.
const signatureDecimals = 6

// Router is the computation the cache memoizes.
type Router interface {
	Route(ctx context.Context, samples []gps.Sample, mode TravelMode) RouteResult
}

type cacheEntry struct {
	result     RouteResult
	computedAt time.Time
}

// Cache memoizes route results by a signature of the rounded coordinate
// sequence. Expiry is purely time-based; a sweep removes expired entries
// but never evicts valid ones early. Construct once per process and
// inject it; there is no package-level instance.
type Cache struct {
	router  Router
	ttl     time.Duration
	mu      sync.RWMutex
	entries map[string]cacheEntry
	now     func() time.Time
}

func NewCache(router Router, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		router:  router,
		ttl:     ttl,
		entries: make(map[string]cacheEntry),
		now:     time.Now,
	}
}

// GetOrCompute returns a cached result when one exists and has not
// expired, otherwise computes, stores, and returns it. CacheHit reports
// which happened.
func (c *Cache) GetOrCompute(ctx context.Context, samples []gps.Sample, mode TravelMode) RouteResult {
	key := Signature(samples, mode)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()

	if ok && c.now().Sub(entry.computedAt) < c.ttl {
		res := entry.result
		res.CacheHit = true
		return res
	}

	res := c.router.Route(ctx, samples, mode)
	res.CacheHit = false

	c.mu.Lock()
	c.entries[key] = cacheEntry{result: res, computedAt: c.now()}
	c.mu.Unlock()

	return res
}

// Cleanup removes expired entries and reports how many were dropped.
func (c *Cache) Cleanup() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if now.Sub(entry.computedAt) >= c.ttl {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Clear drops every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Len reports the number of entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// StartSweeper runs Cleanup on the interval until ctx is done.
func (c *Cache) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.Cleanup()
			}
		}
	}()
}

// Signature builds a deterministic key from the rounded coordinate
// sequence and travel mode.
func Signature(samples []gps.Sample, mode TravelMode) string {
	var b strings.Builder
	for _, s := range samples {
		fmt.Fprintf(&b, "%.*f,%.*f|", signatureDecimals, s.Lat, signatureDecimals, s.Lng)
	}
	b.WriteString(string(mode))
	return b.String()
}
