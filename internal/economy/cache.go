package economy

import (
	"log/slog"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/talgya/mini-market/internal/metrics"
)

// Cache defaults.
const (
	DefaultCacheSize      = 4096
	DefaultRetentionWeeks = 2
)

// CacheKey is the full input tuple of a price computation.
type CacheKey struct {
	ProductID      string
	Week           int
	PrevPrice      int64
	PrevWeek       int
	HistoryHash    uint64
	LocationFactor float64
	Fingerprint    uint64 // Effective modifier fingerprint
}

// KeyFor builds the cache key for a CalculatePrice call.
func KeyFor(productID string, week int, prev PriceRecord, locationFactor float64, eff Effective) CacheKey {
	return CacheKey{
		ProductID:      productID,
		Week:           week,
		PrevPrice:      prev.Price,
		PrevWeek:       prev.Week,
		HistoryHash:    prev.History.Hash(),
		LocationFactor: locationFactor,
		Fingerprint:    eff.Fingerprint,
	}
}

// PriceCache memoizes price results. Entries are bounded by an LRU and by a
// week-retention window; past weeks are dropped once a newer week is seen.
// Errors are never cached. Safe for concurrent use.
type PriceCache struct {
	mu        sync.Mutex
	entries   *lru.Cache[CacheKey, PriceResult]
	retention int
	newest    int
	gen       uint64 // Bumped by Invalidate; a compute that straddles it is not stored
}

// NewPriceCache creates a cache holding at most size entries and keeping
// retentionWeeks weeks behind the newest week seen.
func NewPriceCache(size, retentionWeeks int) *PriceCache {
	if size < 1 {
		size = DefaultCacheSize
	}
	if retentionWeeks < 0 {
		retentionWeeks = DefaultRetentionWeeks
	}
	entries, _ := lru.New[CacheKey, PriceResult](size)
	return &PriceCache{entries: entries, retention: retentionWeeks}
}

// GetOrCompute returns the cached result for key, or runs compute and stores
// its result. A failed compute is returned as-is and not stored.
func (c *PriceCache) GetOrCompute(key CacheKey, compute func() (PriceResult, error)) (PriceResult, error) {
	c.mu.Lock()
	if key.Week > c.newest {
		c.newest = key.Week
		c.evictBefore(key.Week - c.retention)
	}
	if res, ok := c.entries.Get(key); ok {
		c.mu.Unlock()
		metrics.CacheAccess.WithLabelValues("hit").Inc()
		return res, nil
	}
	gen := c.gen
	c.mu.Unlock()
	metrics.CacheAccess.WithLabelValues("miss").Inc()

	res, err := compute()
	if err != nil {
		return PriceResult{}, err
	}

	c.mu.Lock()
	if gen == c.gen {
		if evicted := c.entries.Add(key, res); evicted {
			metrics.CacheEvictions.WithLabelValues("lru").Inc()
		}
	}
	c.mu.Unlock()
	return res, nil
}

// Invalidate drops the entries of the given products, or every entry when
// called with no ids.
func (c *PriceCache) Invalidate(productIDs ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++

	if len(productIDs) == 0 {
		c.entries.Purge()
		slog.Debug("price cache purged")
		return
	}

	drop := make(map[string]bool, len(productIDs))
	for _, id := range productIDs {
		drop[id] = true
	}
	removed := 0
	for _, k := range c.entries.Keys() {
		if drop[k.ProductID] {
			c.entries.Remove(k)
			removed++
		}
	}
	slog.Debug("price cache invalidated", "products", len(productIDs), "entries", removed)
}

// Len returns the number of cached entries.
func (c *PriceCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entries.Len()
}

func (c *PriceCache) evictBefore(week int) {
	for _, k := range c.entries.Keys() {
		if k.Week < week {
			c.entries.Remove(k)
			metrics.CacheEvictions.WithLabelValues("retention").Inc()
		}
	}
}
