// Package cache implements the bounded in-memory metadata cache with
// per-entry TTL, LRU eviction and hit/miss statistics. Negative results
// (provider-confirmed not-found) are cached to damp repeated misses.
package cache

import (
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/use-agent/metascraper/models"
)

// Key identifies one cached record.
type Key struct {
	Provider string
	ID       string
}

// entry wraps a positive record or a not-found marker.
type entry struct {
	meta     *models.Metadata
	negative bool
}

// MetadataCache maps (provider, id) to Metadata or a NotFound marker.
// Safe for concurrent use. The cache does not coalesce concurrent
// producers; coalescing happens in the orchestrator's double-checked
// lookup under slot ownership.
type MetadataCache struct {
	lru      *expirable.LRU[Key, *entry]
	ttl      time.Duration
	capacity int

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Int64
}

// New creates a cache holding up to capacity entries, each readable for
// ttl after insertion.
func New(capacity int, ttl time.Duration) *MetadataCache {
	if capacity < 1 {
		capacity = 1
	}
	c := &MetadataCache{ttl: ttl, capacity: capacity}
	c.lru = expirable.NewLRU[Key, *entry](capacity, func(Key, *entry) {
		c.evictions.Add(1)
	}, ttl)
	return c
}

// TryGet returns the cached record for (provider, id).
//
//	meta != nil, ok == true  → positive hit
//	meta == nil, ok == true  → cached not-found
//	meta == nil, ok == false → miss (expired, evicted, or never stored)
func (c *MetadataCache) TryGet(provider, id string) (*models.Metadata, bool) {
	e, ok := c.lru.Get(Key{Provider: provider, ID: id})
	if !ok {
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	if e.negative {
		return nil, true
	}
	return e.meta, true
}

// Put stores a positive record, or a not-found marker when meta is nil.
func (c *MetadataCache) Put(provider, id string, meta *models.Metadata) {
	c.lru.Add(Key{Provider: provider, ID: id}, &entry{meta: meta, negative: meta == nil})
}

// Remove drops one entry. Returns whether it existed.
func (c *MetadataCache) Remove(provider, id string) bool {
	if c.lru.Remove(Key{Provider: provider, ID: id}) {
		// The eviction callback fires on explicit removal too; an
		// administrative remove is not an eviction.
		c.evictions.Add(-1)
		return true
	}
	return false
}

// Clear drops all entries.
func (c *MetadataCache) Clear() {
	n := int64(c.lru.Len())
	c.lru.Purge()
	c.evictions.Add(-n)
}

// Stats returns a snapshot of the cache counters.
func (c *MetadataCache) Stats() models.CacheStats {
	hits := c.hits.Load()
	misses := c.misses.Load()
	total := hits + misses
	var ratio float64
	if total > 0 {
		ratio = float64(hits) / float64(total)
	}
	ev := c.evictions.Load()
	if ev < 0 {
		ev = 0
	}
	return models.CacheStats{
		Entries:       c.lru.Len(),
		Capacity:      c.capacity,
		Hits:          hits,
		Misses:        misses,
		Evictions:     uint64(ev),
		TotalRequests: total,
		HitRatio:      ratio,
		TTLSeconds:    c.ttl.Seconds(),
	}
}
