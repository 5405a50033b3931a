package cache

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for tests and single-process setups.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]Entry
	nextID  int
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory cache store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func entryKey(projectID string, typ Type, contentHash string) string {
	return projectID + "|" + string(typ) + "|" + contentHash
}

// Get implements Store.
func (s *MemoryStore) Get(ctx context.Context, projectID string, typ Type, contentHash string) (*Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[entryKey(projectID, typ, contentHash)]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

// Put implements Store.
func (s *MemoryStore) Put(ctx context.Context, entry Entry) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	entry.ID = fmt.Sprintf("%d", s.nextID)
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	s.entries[entryKey(entry.ProjectID, entry.Type, entry.ContentHash)] = entry
	return entry.ID, nil
}

// DeleteByProject implements Store.
func (s *MemoryStore) DeleteByProject(ctx context.Context, projectID string, typ Type) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for key, entry := range s.entries {
		if entry.ProjectID == projectID && entry.Type == typ {
			delete(s.entries, key)
			deleted++
		}
	}
	return deleted, nil
}
