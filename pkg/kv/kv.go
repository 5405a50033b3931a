// Package kv provides key-value lookup of chunk content by chunk id.
package kv

import (
	"context"
	"sort"
	"sync"
)

// Store resolves chunk ids to their stored content.
type Store interface {
	// Get returns the value for key. The second return is false when the key
	// is absent.
	Get(ctx context.Context, key string) (string, bool, error)

	// Keys returns all stored keys.
	Keys(ctx context.Context) ([]string, error)
}

// MemoryStore is an in-memory Store for tests and standalone setups.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]string
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]string)}
}

// Set stores a value. Intended for test and ingestion seeding.
func (s *MemoryStore) Set(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = value
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.data[key]
	return v, ok, nil
}

// Keys implements Store.
func (s *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	keys := make([]string, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}
