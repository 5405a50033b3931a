package selector

import (
	"context"
	"fmt"

	"github.com/latticeai/lattice/pkg/vector"
)

// VectorSelector selects chunks by similarity score alone, in the order
// the vector store returns them.
type VectorSelector struct {
	store      vector.Store
	collection string
}

var _ Selector = (*VectorSelector)(nil)

// NewVectorSelector returns the plain similarity strategy reading from the
// given chunk collection.
func NewVectorSelector(store vector.Store, collection string) *VectorSelector {
	return &VectorSelector{store: store, collection: collection}
}

// Name implements Selector.
func (s *VectorSelector) Name() string { return "vector" }

// Select implements Selector.
func (s *VectorSelector) Select(ctx context.Context, embedding []float32, projectID string, topK int, _ *Context) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	results, err := s.store.SearchWithFilter(ctx, s.collection, embedding, topK,
		map[string]any{vector.MetaProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, fromSearchResult(r))
	}
	return chunks, nil
}
