package dedupe

import (
	"sync"
	"time"
)

type entry struct {
	fingerprint string
	ts          time.Time
}

// Cache keeps a fixed-size set of recently indexed chunk fingerprints so
// reprocessing the same page does not write the same chunks twice.
type Cache struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
}

// NewCache creates a cache with the provided capacity and ttl.
func NewCache(capacity int, ttl time.Duration) *Cache {
	if capacity <= 0 {
		capacity = 1
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &Cache{
		items:    make(map[string]time.Time, capacity),
		order:    make([]entry, 0, capacity),
		capacity: capacity,
		ttl:      ttl,
	}
}

// Seen reports whether the fingerprint was recorded inside the ttl window.
// It does not record anything; use Add for that.
func (c *Cache) Seen(fingerprint string) bool {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	if ts, ok := c.items[fingerprint]; ok {
		return now.Sub(ts) <= c.ttl
	}
	return false
}

// Add records that a chunk fingerprint has been indexed.
func (c *Cache) Add(fingerprint string) {
	now := time.Now()

	c.mu.Lock()
	defer c.mu.Unlock()

	c.items[fingerprint] = now
	c.order = append(c.order, entry{fingerprint: fingerprint, ts: now})
	c.compact(now)
}

// compact evicts expired entries and, when over capacity, the oldest ones.
func (c *Cache) compact(now time.Time) {
	cutoff := now.Add(-c.ttl)

	for len(c.order) > 0 && (len(c.items) > c.capacity || c.order[0].ts.Before(cutoff)) {
		oldest := c.order[0]
		c.order = c.order[1:]

		if ts, ok := c.items[oldest.fingerprint]; ok && ts == oldest.ts {
			delete(c.items, oldest.fingerprint)
		}
	}
}
