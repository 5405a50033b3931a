// Package locks provides a process-wide pool of named locks used to
// serialize graph writes. Multi-key acquisition always locks in sorted key
// order, so overlapping writers cannot deadlock.
package locks

import (
	"sort"
	"sync"
)

// PairSeparator joins the two ids of a normalized pair key.
const PairSeparator = "::"

// NormalizePair returns the canonical key for an undirected pair: the two
// ids sorted lexicographically and joined with "::". NormalizePair(a, b)
// and NormalizePair(b, a) are always equal.
func NormalizePair(srcID, tgtID string) string {
	if srcID <= tgtID {
		return srcID + PairSeparator + tgtID
	}
	return tgtID + PairSeparator + srcID
}

// Registry hands out one lock per key. The same *sync.Mutex instance is
// returned for every request of the same key, so lock identity is stable
// across call sites. Locks are never evicted; Reset drops the pool (tests).
type Registry struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewRegistry() *Registry {
	return &Registry{
		locks: make(map[string]*sync.Mutex),
	}
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry.
func Default() *Registry {
	return defaultRegistry
}

// Get returns the lock for key, allocating it on first use.
func (r *Registry) Get(key string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.locks[key]
	if !ok {
		l = &sync.Mutex{}
		r.locks[key] = l
	}
	return l
}

// AcquireInOrder locks every given key and returns a Handle that releases
// them. Keys are deduplicated and locked in ascending lexicographic order;
// any two callers overlapping on a subset of keys therefore acquire the
// shared locks in the same order. Release unlocks in reverse order and is
// idempotent.
func (r *Registry) AcquireInOrder(keys ...string) *Handle {
	sorted := make([]string, 0, len(keys))
	seen := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		if _, dup := seen[k]; dup || k == "" {
			continue
		}
		seen[k] = struct{}{}
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)

	h := &Handle{locks: make([]*sync.Mutex, 0, len(sorted))}
	for _, k := range sorted {
		l := r.Get(k)
		l.Lock()
		h.locks = append(h.locks, l)
	}
	return h
}

// Len returns the number of allocated locks.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Reset drops every allocated lock. Only for tests; callers must not hold
// any lock from this registry when calling it.
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.locks = make(map[string]*sync.Mutex)
}

// Handle owns a set of acquired locks.
type Handle struct {
	once  sync.Once
	locks []*sync.Mutex
}

// Release unlocks the held locks in reverse acquisition order. Safe to call
// more than once.
func (h *Handle) Release() {
	h.once.Do(func() {
		for i := len(h.locks) - 1; i >= 0; i-- {
			h.locks[i].Unlock()
		}
	})
}
