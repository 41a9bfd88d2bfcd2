package layout

import (
	"slices"
	"sync"
)

// Cache holds the scanned ranges per calibration ID.
//
// It is a read-through accelerator: the directory tree stays the source of
// truth. Entries are replaced whole and returned as copies.
type Cache struct {
	mu     sync.RWMutex
	ranges map[string][]Range
}

// NewCache initializes an empty cache.
func NewCache() *Cache {
	return &Cache{ranges: make(map[string][]Range)}
}

// Get returns a copy of the cached ranges for id.
func (c *Cache) Get(id string) ([]Range, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	r, ok := c.ranges[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(r), true
}

// Set caches a copy of ranges for id.
func (c *Cache) Set(id string, ranges []Range) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ranges[id] = slices.Clone(ranges)
}

// Invalidate drops the entry for id.
func (c *Cache) Invalidate(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ranges, id)
}

// InvalidateAll drops every entry.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.ranges)
}

// Len returns the number of cached calibration IDs.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.ranges)
}
