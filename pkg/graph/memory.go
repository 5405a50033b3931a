package graph

import (
	"context"
	"sync"
)

// MemoryStore is an in-memory Store for tests and standalone setups.
type MemoryStore struct {
	mu        sync.RWMutex
	entities  map[string]map[string]Entity // projectID -> name -> entity
	relations map[string][]Relation        // projectID -> relations
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory graph store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entities:  make(map[string]map[string]Entity),
		relations: make(map[string][]Relation),
	}
}

// GetEntities implements Store.
func (s *MemoryStore) GetEntities(ctx context.Context, projectID string, names []string) ([]Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byName := s.entities[projectID]
	out := make([]Entity, 0, len(names))
	for _, name := range names {
		if e, ok := byName[name]; ok {
			out = append(out, e)
		}
	}
	return out, nil
}

// GetRelationsForEntity implements Store.
func (s *MemoryStore) GetRelationsForEntity(ctx context.Context, projectID string, name string) ([]Relation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Relation
	for _, r := range s.relations[projectID] {
		if r.SrcID == name || r.TgtID == name {
			out = append(out, r)
		}
	}
	return out, nil
}

// UpsertEntity implements Store. Source chunk ids are unioned with any
// existing entry; all other fields are replaced.
func (s *MemoryStore) UpsertEntity(ctx context.Context, projectID string, entity Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	byName, ok := s.entities[projectID]
	if !ok {
		byName = make(map[string]Entity)
		s.entities[projectID] = byName
	}

	if existing, ok := byName[entity.Name]; ok {
		seen := make(map[string]bool, len(existing.SourceChunkIDs))
		merged := append([]string(nil), existing.SourceChunkIDs...)
		for _, id := range merged {
			seen[id] = true
		}
		for _, id := range entity.SourceChunkIDs {
			if !seen[id] {
				seen[id] = true
				merged = append(merged, id)
			}
		}
		entity.SourceChunkIDs = merged
	}

	byName[entity.Name] = entity
	return nil
}

// AddRelation appends a relation edge. Intended for test and ingestion
// seeding.
func (s *MemoryStore) AddRelation(projectID string, relation Relation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.relations[projectID] = append(s.relations[projectID], relation)
}
