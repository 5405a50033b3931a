// Package selector picks the top-K chunks for a query embedding. Two
// strategies ship: plain vector similarity, and a weighted variant that
// boosts chunks connected to the entities and relations already retrieved
// for the query.
package selector

import (
	"context"

	"github.com/latticeai/lattice/pkg/vector"
)

// ScoredChunk is one selected chunk with its final score.
type ScoredChunk struct {
	ID         string
	Content    string
	Score      float64
	DocumentID string
	ChunkIndex int
}

// Context carries the graph-derived signals the weighted strategy boosts
// by. A nil Context disables boosting, making any strategy equivalent to
// plain vector selection.
type Context struct {
	// EntityNames are the entities retrieved for the query.
	EntityNames []string

	// RelationKeywords are keywords from retrieved relations.
	RelationKeywords []string

	// EntityChunkWeights adds a per-chunk custom boost by chunk id.
	EntityChunkWeights map[string]float64
}

// Selector returns the topK chunks for an embedding, best first.
type Selector interface {
	// Name identifies the strategy.
	Name() string

	// Select returns at most topK chunks ordered by descending score.
	Select(ctx context.Context, embedding []float32, projectID string, topK int, sel *Context) ([]ScoredChunk, error)
}

// fromSearchResult maps a vector hit to a scored chunk.
func fromSearchResult(r vector.SearchResult) ScoredChunk {
	c := ScoredChunk{
		ID:      r.ID,
		Content: r.Content,
		Score:   float64(r.Score),
	}
	if docID, ok := r.Metadata[vector.MetaDocumentID].(string); ok {
		c.DocumentID = docID
	}
	switch idx := r.Metadata[vector.MetaChunkIndex].(type) {
	case int:
		c.ChunkIndex = idx
	case int64:
		c.ChunkIndex = int(idx)
	case float64:
		c.ChunkIndex = int(idx)
	}
	return c
}
