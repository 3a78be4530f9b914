// Package localcache provides the process-local, time-boxed cache used as
// the first tier of the dataset read path. One entry exists per dataset
// key, each with its own refresh duration.
package localcache

import (
	"sync"
	"time"
)

// entry holds a cached value and the instant it was last refreshed.
type entry struct {
	value       []byte
	lastRefresh time.Time
	duration    time.Duration
}

// valid reports whether the entry is still inside its refresh window.
func (e *entry) valid(now time.Time) bool {
	return now.Sub(e.lastRefresh) < e.duration
}

// Cache is a concurrency-safe map of dataset entries. Contention is low and
// updates are small, so a single mutex is sufficient.
type Cache struct {
	mu   sync.RWMutex
	data map[string]*entry
	now  func() time.Time
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		data: make(map[string]*entry),
		now:  time.Now,
	}
}

// NewWithClock creates a cache with an injected clock, used by tests.
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// Get returns the cached value for key while its refresh window holds.
// Expired entries are treated as absent.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.data[key]
	if !ok || !e.valid(c.now()) {
		return nil, false
	}

	// Return a copy to prevent mutation of the cached bytes.
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true
}

// Set stores a value with its own refresh duration, stamping the refresh
// instant.
func (c *Cache) Set(key string, value []byte, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stored := make([]byte, len(value))
	copy(stored, value)
	c.data[key] = &entry{
		value:       stored,
		lastRefresh: c.now(),
		duration:    duration,
	}
}

// Invalidate drops the entry for key, if any.
func (c *Cache) Invalidate(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.data[key]
	delete(c.data, key)
	return ok
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = make(map[string]*entry)
}

// Size returns the number of entries, valid or expired.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}
