package oidc

import (
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/rjw57/componentsdb/internal/pkg/metrics"
)

const (
	// DefaultCacheTTL is how long a fetched document is reused
	DefaultCacheTTL = 5 * time.Minute

	// DefaultCacheCapacity bounds the number of cached documents
	DefaultCacheCapacity = 256
)

// ResponseCache holds fetched discovery and JWKS documents keyed by URL.
// Concurrent misses for the same URL are not deduplicated; the last write wins.
type ResponseCache struct {
	cache *ttlcache.Cache[string, []byte]
}

// NewResponseCache creates a cache and starts its expiry loop. Zero values
// select DefaultCacheTTL and DefaultCacheCapacity. Call Stop when done.
func NewResponseCache(ttl time.Duration, capacity uint64) *ResponseCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if capacity == 0 {
		capacity = DefaultCacheCapacity
	}

	cache := ttlcache.New(
		ttlcache.WithTTL[string, []byte](ttl),
		ttlcache.WithCapacity[string, []byte](capacity),
		ttlcache.WithDisableTouchOnHit[string, []byte](),
	)
	go cache.Start()

	return &ResponseCache{cache: cache}
}

// Get returns the cached body for url, if present and unexpired
func (c *ResponseCache) Get(url string) ([]byte, bool) {
	item := c.cache.Get(url)
	if item == nil || item.IsExpired() {
		metrics.CacheMisses.WithLabelValues("oidc", "documents").Inc()
		return nil, false
	}
	metrics.CacheHits.WithLabelValues("oidc", "documents").Inc()
	return item.Value(), true
}

// Set stores body for url, replacing any existing entry
func (c *ResponseCache) Set(url string, body []byte) {
	c.cache.Set(url, body, ttlcache.DefaultTTL)
	metrics.CacheSize.WithLabelValues("oidc", "documents").Set(float64(c.cache.Len()))
}

// Delete removes the entry for url
func (c *ResponseCache) Delete(url string) {
	c.cache.Delete(url)
}

// Len returns the number of entries, including expired ones not yet collected
func (c *ResponseCache) Len() int {
	return c.cache.Len()
}

// Stop ends the expiry loop
func (c *ResponseCache) Stop() {
	c.cache.Stop()
}
