// Package cache implements the bounded memory of previously seen content.
package cache

import (
	"container/list"
	"errors"
	"sync"

	"repost_bot/internal/fingerprint"
	"repost_bot/internal/model"
)

// ErrZeroCapacity is returned by New for a zero limit.
var ErrZeroCapacity = errors.New("cache limit must be greater than zero")

// Entry records the first sighting of a fingerprint. Entries are never
// modified after insertion.
type Entry struct {
	Fingerprint fingerprint.Fingerprint
	FirstSeen   model.Origin
	Order       uint64
}

// Cache is a fixed-capacity, thread-safe set of fingerprints with FIFO
// eviction: when full, the oldest inserted entry makes room for the new one.
// Lookups do not refresh an entry's position.
type Cache struct {
	mu      sync.Mutex
	limit   uint64
	seq     uint64
	entries map[fingerprint.Fingerprint]*list.Element
	order   *list.List // *Entry values, oldest at front
}

// New creates a cache holding at most limit entries.
func New(limit uint64) (*Cache, error) {
	if limit == 0 {
		return nil, ErrZeroCapacity
	}
	return &Cache{
		limit:   limit,
		entries: make(map[fingerprint.Fingerprint]*list.Element),
		order:   list.New(),
	}, nil
}

// CheckAndInsert atomically looks up fp. If it is present, the existing
// entry is returned with true and nothing changes. Otherwise a new entry is
// inserted, evicting the oldest one if the cache is full, and returned with
// false.
func (c *Cache) CheckAndInsert(fp fingerprint.Fingerprint, origin model.Origin) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if elem, ok := c.entries[fp]; ok {
		return *elem.Value.(*Entry), true
	}

	for uint64(c.order.Len()) >= c.limit {
		c.evictOldestLocked()
	}

	c.seq++
	entry := &Entry{Fingerprint: fp, FirstSeen: origin, Order: c.seq}
	c.entries[fp] = c.order.PushBack(entry)
	return *entry, false
}

// Get returns the entry for fp without modifying the cache.
func (c *Cache) Get(fp fingerprint.Fingerprint) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.entries[fp]
	if !ok {
		return Entry{}, false
	}
	return *elem.Value.(*Entry), true
}

// Len returns the number of entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Limit returns the configured capacity.
func (c *Cache) Limit() uint64 {
	return c.limit
}

// evictOldestLocked must be called with mu held.
func (c *Cache) evictOldestLocked() {
	front := c.order.Front()
	if front == nil {
		return
	}
	entry, _ := c.order.Remove(front).(*Entry)
	delete(c.entries, entry.Fingerprint)
}
