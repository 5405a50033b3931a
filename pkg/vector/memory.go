package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
)

// MemoryStore is a brute-force cosine similarity store. It exists for tests
// and small datasets; everything lives in process memory.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]memoryDoc
}

type memoryDoc struct {
	vec      []float32
	metadata map[string]any
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]memoryDoc)}
}

// Upsert implements Store.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, id string, vec []float32, metadata map[string]any) error {
	if id == "" {
		return fmt.Errorf("document id is required")
	}

	copied := make(map[string]any, len(metadata))
	for k, v := range metadata {
		copied[k] = v
	}
	vecCopy := make([]float32, len(vec))
	copy(vecCopy, vec)

	s.mu.Lock()
	defer s.mu.Unlock()
	col, ok := s.collections[collection]
	if !ok {
		col = make(map[string]memoryDoc)
		s.collections[collection] = col
	}
	col[id] = memoryDoc{vec: vecCopy, metadata: copied}
	return nil
}

// Search implements Store.
func (s *MemoryStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]SearchResult, error) {
	return s.SearchWithFilter(ctx, collection, vec, topK, nil)
}

// SearchWithFilter implements Store.
func (s *MemoryStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]SearchResult, error) {
	if topK <= 0 {
		return nil, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	col := s.collections[collection]
	results := make([]SearchResult, 0, len(col))
	for id, doc := range col {
		if !matchesFilter(doc.metadata, filter) {
			continue
		}
		if len(doc.vec) != len(vec) {
			continue
		}
		content, _ := doc.metadata[MetaContent].(string)
		results = append(results, SearchResult{
			ID:       id,
			Content:  content,
			Score:    cosineSimilarity(vec, doc.vec),
			Metadata: doc.metadata,
		})
	}

	// Ties break on ID so result order is deterministic.
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Count returns the number of documents in a collection.
func (s *MemoryStore) Count(collection string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.collections[collection])
}

// Close implements Store.
func (s *MemoryStore) Close() error {
	return nil
}

func matchesFilter(metadata map[string]any, filter map[string]any) bool {
	for k, want := range filter {
		got, ok := metadata[k]
		if !ok || fmt.Sprint(got) != fmt.Sprint(want) {
			return false
		}
	}
	return true
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
