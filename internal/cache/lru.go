package cache

import (
	"container/list"
	"sync"

	"readingroom/internal/metrics"
)

// Stats is a point-in-time view of one cache, served by the diagnostics endpoint
type Stats struct {
	Size      int    `json:"size"`
	Max       int    `json:"max"`
	Hits      uint64 `json:"hits"`
	Misses    uint64 `json:"misses"`
	Evictions uint64 `json:"evictions"`
}

// LRU is a bounded key/value store with strict access-recency eviction.
// ARCHITECTURAL DISCOVERY: One mutex per instance. The synthesis and translation
// caches never share a lock with each other or with the session registry.
type LRU[V any] struct {
	name     string
	capacity int

	mu      sync.Mutex
	items   map[string]*list.Element
	recency *list.List // front = most recently used

	hits      uint64
	misses    uint64
	evictions uint64
}

type entry[V any] struct {
	key   string
	value V
}

// NewLRU creates a cache holding at most capacity entries. name labels its metrics.
func NewLRU[V any](name string, capacity int) *LRU[V] {
	if capacity < 1 {
		capacity = 1
	}
	return &LRU[V]{
		name:     name,
		capacity: capacity,
		items:    make(map[string]*list.Element),
		recency:  list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
// A miss returns the zero value and leaves the cache untouched.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.misses++
		metrics.RecordCacheLookup(c.name, false)
		var zero V
		return zero, false
	}

	c.recency.MoveToFront(elem)
	c.hits++
	metrics.RecordCacheLookup(c.name, true)
	return elem.Value.(*entry[V]).value, true
}

// Put inserts or refreshes key. Inserting past capacity evicts the least recently used entry.
func (c *LRU[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.items[key]; ok {
		elem.Value.(*entry[V]).value = value
		c.recency.MoveToFront(elem)
		return
	}

	c.items[key] = c.recency.PushFront(&entry[V]{key: key, value: value})

	// TECHNICAL DISCOVERY: Insert then trim keeps eviction inside the same critical
	// section, so no reader observes the cache above capacity
	for c.recency.Len() > c.capacity {
		oldest := c.recency.Back()
		c.recency.Remove(oldest)
		delete(c.items, oldest.Value.(*entry[V]).key)
		c.evictions++
		metrics.RecordCacheEviction(c.name)
	}
	metrics.SetCacheEntries(c.name, c.recency.Len())
}

// Len returns the current entry count
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.recency.Len()
}

// Capacity returns the configured maximum entry count
func (c *LRU[V]) Capacity() int {
	return c.capacity
}

// Stats returns size, bound and counters
func (c *LRU[V]) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Size:      c.recency.Len(),
		Max:       c.capacity,
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
	}
}
