package cache

import (
	"sort"
	"sync"
	"time"
)

// TTLCache is a bounded in-process cache with per-entry expiry. When an
// insert brings the size to maxEntries, cleanup removes all expired entries;
// if the cache is still above half capacity, the entries closest to expiry
// are evicted until exactly half capacity remains.
type TTLCache[V any] struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxEntries int
	entries    map[string]ttlEntry[V]

	now func() time.Time
}

type ttlEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// NewTTLCache returns a cache holding at most maxEntries values for ttl each.
func NewTTLCache[V any](ttl time.Duration, maxEntries int) *TTLCache[V] {
	if maxEntries < 2 {
		maxEntries = 2
	}
	return &TTLCache[V]{
		ttl:        ttl,
		maxEntries: maxEntries,
		entries:    make(map[string]ttlEntry[V]),
		now:        time.Now,
	}
}

// Get returns the cached value when present and unexpired. Expired entries
// are removed on access.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return entry.value, true
}

// Put stores a value, triggering cleanup when the cache reaches capacity.
func (c *TTLCache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[key] = ttlEntry[V]{value: value, expiresAt: c.now().Add(c.ttl)}
	if len(c.entries) >= c.maxEntries {
		c.cleanupLocked()
	}
}

// Len returns the current entry count.
func (c *TTLCache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// cleanupLocked drops expired entries, then evicts the oldest-expiring
// entries until the cache is at half capacity. Callers hold c.mu.
func (c *TTLCache[V]) cleanupLocked() {
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}

	target := c.maxEntries / 2
	if len(c.entries) <= target {
		return
	}

	type keyed struct {
		key       string
		expiresAt time.Time
	}
	ordered := make([]keyed, 0, len(c.entries))
	for key, entry := range c.entries {
		ordered = append(ordered, keyed{key, entry.expiresAt})
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].expiresAt.Before(ordered[j].expiresAt)
	})

	for _, k := range ordered[:len(ordered)-target] {
		delete(c.entries, k.key)
	}
}
