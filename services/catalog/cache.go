package catalog

import (
	"container/list"
	"sync"
	"time"

	"github.com/upb/llm-gateway/models"
)

// cacheEntry represents a single cache entry with TTL
type cacheEntry struct {
	name       string
	model      *models.PublicModel
	insertedAt time.Time
	element    *list.Element // For LRU tracking
}

// ModelCache is an in-memory LRU cache with TTL for normalized public models.
// Cached models are shared between callers and must be treated as read-only.
type ModelCache struct {
	mu      sync.Mutex
	entries map[string]*cacheEntry
	lruList *list.List
	maxSize int
	ttl     time.Duration
	now     func() time.Time
	hits    uint64
	misses  uint64
}

// NewModelCache creates a new ModelCache with specified max size and TTL.
// A non-positive ttl disables caching.
func NewModelCache(maxSize int, ttl time.Duration) *ModelCache {
	return &ModelCache{
		entries: make(map[string]*cacheEntry),
		lruList: list.New(),
		maxSize: maxSize,
		ttl:     ttl,
		now:     time.Now,
	}
}

func (c *ModelCache) expired(e *cacheEntry) bool {
	return c.now().Sub(e.insertedAt) > c.ttl
}

// Get returns the cached model, or nil when missing or expired
func (c *ModelCache) Get(name string) *models.PublicModel {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[name]
	if !exists || c.expired(entry) {
		c.misses++
		if exists {
			c.removeEntry(name)
		}
		return nil
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.model
}

// Set stores a model under its public name
func (c *ModelCache) Set(m *models.PublicModel) {
	if c.ttl <= 0 || c.maxSize <= 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, exists := c.entries[m.PublicName]; exists {
		entry.model = m
		entry.insertedAt = c.now()
		c.lruList.MoveToFront(entry.element)
		return
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry{name: m.PublicName, model: m, insertedAt: c.now()}
	entry.element = c.lruList.PushFront(m.PublicName)
	c.entries[m.PublicName] = entry
}

// Invalidate removes a single model
func (c *ModelCache) Invalidate(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeEntry(name)
}

// Clear removes all entries from the cache
func (c *ModelCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *ModelCache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var rate float64
	if total := c.hits + c.misses; total > 0 {
		rate = float64(c.hits) / float64(total)
	}
	return CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
		HitRate: rate,
	}
}

// must be called with lock held
func (c *ModelCache) removeEntry(name string) {
	if entry, exists := c.entries[name]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, name)
	}
}

// must be called with lock held
func (c *ModelCache) evictLRU() {
	back := c.lruList.Back()
	if back == nil {
		return
	}
	name := back.Value.(string)
	c.lruList.Remove(back)
	delete(c.entries, name)
}
