package metrics

import "sync/atomic"

// CacheMetric counts lookups of one cache.
type CacheMetric struct {
	name      string
	hits      int64
	misses    int64
	evictions int64
}

func newCacheMetric(name string) *CacheMetric {
	return &CacheMetric{name: name}
}

// Name returns the metric name.
func (c *CacheMetric) Name() string { return c.name }

// Hit records a cache hit.
func (c *CacheMetric) Hit() {
	if enabled {
		atomic.AddInt64(&c.hits, 1)
	}
}

// Miss records a cache miss.
func (c *CacheMetric) Miss() {
	if enabled {
		atomic.AddInt64(&c.misses, 1)
	}
}

// Evict records entries dropped by invalidation or capacity.
func (c *CacheMetric) Evict(n int) {
	if enabled && n > 0 {
		atomic.AddInt64(&c.evictions, int64(n))
	}
}

// Hits returns the hit count.
func (c *CacheMetric) Hits() int64 { return atomic.LoadInt64(&c.hits) }

// Misses returns the miss count.
func (c *CacheMetric) Misses() int64 { return atomic.LoadInt64(&c.misses) }

// Evictions returns the eviction count.
func (c *CacheMetric) Evictions() int64 { return atomic.LoadInt64(&c.evictions) }

// HitRate returns hits / lookups, or 0 before the first lookup.
func (c *CacheMetric) HitRate() float64 {
	h, m := c.Hits(), c.Misses()
	if h+m == 0 {
		return 0
	}
	return float64(h) / float64(h+m)
}

// Reset clears the counters.
func (c *CacheMetric) Reset() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// CacheStats is a snapshot of one cache metric.
type CacheStats struct {
	Name      string  `json:"name"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Stats returns a snapshot.
func (c *CacheMetric) Stats() CacheStats {
	return CacheStats{Name: c.name, Hits: c.Hits(), Misses: c.Misses(), Evictions: c.Evictions(), HitRate: c.HitRate()}
}

// Global cache metrics.
var (
	TraversalCache = newCacheMetric("traversal_cache")
	HandleRegistry = newCacheMetric("handle_registry")
)

// AllCacheMetrics returns all registered cache metrics.
func AllCacheMetrics() []*CacheMetric {
	return []*CacheMetric{TraversalCache, HandleRegistry}
}
