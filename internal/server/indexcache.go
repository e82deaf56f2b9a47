package server

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sells-group/jobatlas/internal/cluster"
)

// IndexCache is a concurrent-safe LRU cache of built cluster indexes with
// TTL expiration. A clusters response hands its index key to the client so
// a follow-up expand call can resolve cluster members against the exact
// index that produced them.
type IndexCache struct {
	mu         sync.Mutex
	entries    map[string]*indexCacheEntry
	order      []string // LRU order: front=oldest, back=newest
	maxEntries int
	ttl        time.Duration
}

type indexCacheEntry struct {
	index     *cluster.Index
	createdAt time.Time
}

// NewIndexCache creates an IndexCache with the given capacity and TTL.
func NewIndexCache(maxEntries int, ttl time.Duration) *IndexCache {
	return &IndexCache{
		entries:    make(map[string]*indexCacheEntry),
		maxEntries: maxEntries,
		ttl:        ttl,
	}
}

// Put stores a built index and returns its key, evicting the oldest entry
// if at capacity.
func (c *IndexCache) Put(idx *cluster.Index) string {
	key := uuid.New().String()

	c.mu.Lock()
	defer c.mu.Unlock()

	for len(c.entries) >= c.maxEntries && len(c.order) > 0 {
		oldest := c.order[0]
		c.order = c.order[1:]
		delete(c.entries, oldest)
	}

	c.entries[key] = &indexCacheEntry{index: idx, createdAt: time.Now()}
	c.order = append(c.order, key)
	return key
}

// Get retrieves a cached index. Returns false on miss or expiration.
func (c *IndexCache) Get(key string) (*cluster.Index, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if time.Since(entry.createdAt) > c.ttl {
		delete(c.entries, key)
		c.removeFromOrder(key)
		return nil, false
	}

	c.removeFromOrder(key)
	c.order = append(c.order, key)
	return entry.index, true
}

// Len reports the number of live entries.
func (c *IndexCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *IndexCache) removeFromOrder(key string) {
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			return
		}
	}
}
