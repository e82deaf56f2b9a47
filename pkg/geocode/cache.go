package geocode

import (
	"context"
	"sync"

	"github.com/sells-group/jobatlas/internal/model"
)

// Cache memoizes geocode lookups. A stored nil value is a valid negative
// entry ("unresolvable"); the found flag distinguishes it from a miss.
// Implementations must be safe for concurrent use.
type Cache interface {
	Get(ctx context.Context, key string) (coords *model.Coordinates, found bool, err error)
	Put(ctx context.Context, key string, coords *model.Coordinates) error
}

// MemoryCache is the in-process Cache used by default and in tests.
type MemoryCache struct {
	mu      sync.RWMutex
	entries map[string]*model.Coordinates
}

// NewMemoryCache creates an empty MemoryCache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]*model.Coordinates)}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, key string) (*model.Coordinates, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	coords, ok := c.entries[key]
	return coords, ok, nil
}

// Put implements Cache. Entries are immutable within a cache generation, so
// an existing entry is left untouched.
func (c *MemoryCache) Put(_ context.Context, key string, coords *model.Coordinates) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.entries[key]; !ok {
		c.entries[key] = coords
	}
	return nil
}

// Len returns the number of cached entries.
func (c *MemoryCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
