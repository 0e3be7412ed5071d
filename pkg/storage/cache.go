package storage

import (
	"container/list"
	"sync"

	"github.com/capview/capview/pkg/metrics"
	"github.com/capview/capview/pkg/types"
)

// FileCache keeps the fully-parsed contents of closed segment files,
// evicting whole files in strict least-recently-used order. Evicting an
// entry drops only the parse, never the file on disk. The active
// segment must never be stored here; the Scanner enforces that.
type FileCache struct {
	mu       sync.Mutex
	capacity int
	loader   func(path string) []types.Record

	entries map[string]*list.Element
	order   *list.List // front = most recently used
	loads   uint64
}

type cacheEntry struct {
	path    string
	records []types.Record
}

// NewFileCache creates a cache of up to capacity parsed files. loader
// is invoked on a miss and must absorb its own read faults.
func NewFileCache(capacity int, loader func(path string) []types.Record) *FileCache {
	if capacity < 1 {
		capacity = 1
	}
	return &FileCache{
		capacity: capacity,
		loader:   loader,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// GetOrLoad returns the parsed records of path, loading from disk on a
// miss and updating recency on a hit.
func (c *FileCache) GetOrLoad(path string) []types.Record {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.entries[path]; ok {
		c.order.MoveToFront(el)
		metrics.CacheHits.Inc()
		return el.Value.(*cacheEntry).records
	}

	metrics.CacheMisses.Inc()
	c.loads++
	records := c.loader(path)

	for len(c.entries) >= c.capacity {
		back := c.order.Back()
		if back == nil {
			break
		}
		c.order.Remove(back)
		delete(c.entries, back.Value.(*cacheEntry).path)
		metrics.CacheEvictions.Inc()
	}

	c.entries[path] = c.order.PushFront(&cacheEntry{path: path, records: records})
	return records
}

// Contains reports whether path is cached, without touching recency.
func (c *FileCache) Contains(path string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.entries[path]
	return ok
}

// Loads returns how many disk loads the cache has performed.
func (c *FileCache) Loads() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loads
}

// Len returns the number of cached files.
func (c *FileCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
