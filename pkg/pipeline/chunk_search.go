package pipeline

import (
	"context"
	"fmt"
	"strings"

	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/keywords"
	"github.com/latticeai/lattice/pkg/selector"
)

// ChunkSearchStage retrieves chunk candidates by vector similarity. When a
// keyword extractor is configured, the embedding input is the query
// augmented with the low-level keywords, which steers retrieval toward the
// concrete entities the query mentions.
type ChunkSearchStage struct {
	embedder  embedder.Embedder
	selector  selector.Selector
	extractor *keywords.Extractor

	// selection, when set, feeds the weighted selector's boost signals.
	selection *selector.Context
}

// NewChunkSearchStage returns the stage. The extractor may be nil; the raw
// query is then embedded as-is.
func NewChunkSearchStage(emb embedder.Embedder, sel selector.Selector, extractor *keywords.Extractor) *ChunkSearchStage {
	return &ChunkSearchStage{embedder: emb, selector: sel, extractor: extractor}
}

// WithSelection attaches graph-derived boost signals for the weighted
// selector.
func (s *ChunkSearchStage) WithSelection(sel *selector.Context) *ChunkSearchStage {
	s.selection = sel
	return s
}

// Name implements Stage.
func (s *ChunkSearchStage) Name() string { return "chunk_search" }

// ShouldSkip implements Skippable.
func (s *ChunkSearchStage) ShouldSkip(p *Context) bool {
	return p.ChunkTopK <= 0
}

// Run implements Stage. Keyword extraction, when due, completes before the
// embedding call that depends on its output.
func (s *ChunkSearchStage) Run(ctx context.Context, p *Context) error {
	if s.extractor != nil && p.Keywords == nil {
		kw, err := s.extractor.Extract(ctx, p.ProjectID, p.Query)
		if err != nil {
			return err
		}
		p.Keywords = &kw
	}

	input := p.Query
	if p.Keywords != nil && len(p.Keywords.LowLevel) > 0 {
		input = p.Query + " " + strings.Join(p.Keywords.LowLevel, " ")
	}

	emb, err := s.resolveEmbedding(ctx, p, input)
	if err != nil {
		return fmt.Errorf("failed to embed query: %w", err)
	}

	chunks, err := s.selector.Select(ctx, emb, p.ProjectID, p.ChunkTopK, s.selection)
	if err != nil {
		return err
	}

	p.ChunkCandidates = make([]SourceChunk, 0, len(chunks))
	for _, c := range chunks {
		p.ChunkCandidates = append(p.ChunkCandidates, SourceChunk{
			ID:         c.ID,
			Content:    c.Content,
			Score:      c.Score,
			DocumentID: c.DocumentID,
			SourceID:   c.ID,
			ChunkIndex: c.ChunkIndex,
			Type:       SourceTypeChunk,
		})
	}
	return nil
}

// resolveEmbedding reuses a preseeded context embedding when the input is
// the unaugmented query; augmented inputs always embed fresh. The result is
// not written back, so parallel legs embedding different inputs never race.
func (s *ChunkSearchStage) resolveEmbedding(ctx context.Context, p *Context, input string) ([]float32, error) {
	if p.Embedding != nil && input == p.Query {
		return p.Embedding, nil
	}
	return s.embedder.Embed(ctx, input)
}
