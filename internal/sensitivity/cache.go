// Package sensitivity derives and memoizes the variable insulin-sensitivity
// estimate from TDD statistics.
package sensitivity

import (
	"math"
	"time"
)

// #region key

// Key buckets a timestamp to 30 minutes and folds in the glucose value,
// which affects the calculation.
func Key(ts time.Time, glucose float64) int64 {
	ms := ts.UnixMilli()
	bucket := 30 * time.Minute.Milliseconds()
	return ms - ms%bucket + int64(math.Floor(glucose))
}

// #endregion key

// #region cache

// DefaultCapacity bounds the cache. Overflow clears the whole cache rather
// than evicting piecemeal; entries are cheap to recompute.
const DefaultCapacity = 1000

// Cache is a bounded sensitivity memo keyed by (30-min bucket, glucose).
// Not internally synchronized: callers serialize whole
// read-then-write sequences (the engine's cycle lock provides this).
type Cache struct {
	entries  map[int64]float64
	capacity int
}

// NewCache creates a cache with the given capacity; capacity <= 0 uses
// DefaultCapacity.
func NewCache(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{entries: make(map[int64]float64), capacity: capacity}
}

// Get returns the cached sensitivity for key, if present.
func (c *Cache) Get(key int64) (float64, bool) {
	v, ok := c.entries[key]
	return v, ok
}

// Put stores a sensitivity, clearing the entire cache first when it has
// outgrown its capacity.
func (c *Cache) Put(key int64, sens float64) {
	if len(c.entries) >= c.capacity {
		c.entries = make(map[int64]float64)
	}
	c.entries[key] = sens
}

// Len returns the number of cached entries.
func (c *Cache) Len() int { return len(c.entries) }

// #endregion cache
