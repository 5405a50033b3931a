package pipeline

import (
	"context"
	"fmt"

	"github.com/latticeai/lattice/pkg/merge"
)

// MergeOrder fixes the round-robin source order, which decides which type
// wins ties when the budget runs short.
type MergeOrder int

const (
	// OrderEntityRelationChunk favors graph context (global search).
	OrderEntityRelationChunk MergeOrder = iota

	// OrderChunkEntityRelation favors source text (hybrid search).
	OrderChunkEntityRelation

	// OrderRelationEntityChunk favors relation context.
	OrderRelationEntityChunk
)

// MergeStage fuses the truncated per-type lists round-robin under the
// merger's token budget. The merge budget is the hard cap: when it is
// tighter than the sum of the per-type truncation budgets, the merge
// decides what is kept.
type MergeStage struct {
	merger    *merge.Merger
	order     MergeOrder
	maxTokens int
}

// NewMergeStage returns the stage.
func NewMergeStage(merger *merge.Merger, order MergeOrder, maxTokens int) *MergeStage {
	return &MergeStage{merger: merger, order: order, maxTokens: maxTokens}
}

// Name implements Stage.
func (s *MergeStage) Name() string { return "merge" }

// Run implements Stage.
func (s *MergeStage) Run(ctx context.Context, p *Context) error {
	var sources [][]merge.ContextItem
	switch s.order {
	case OrderEntityRelationChunk:
		sources = [][]merge.ContextItem{p.TruncatedEntities, p.TruncatedRelations, p.TruncatedChunks}
	case OrderChunkEntityRelation:
		sources = [][]merge.ContextItem{p.TruncatedChunks, p.TruncatedEntities, p.TruncatedRelations}
	case OrderRelationEntityChunk:
		sources = [][]merge.ContextItem{p.TruncatedRelations, p.TruncatedEntities, p.TruncatedChunks}
	default:
		return fmt.Errorf("unknown merge order %d", s.order)
	}

	p.Merged = s.merger.Merge(sources, s.maxTokens)
	p.FinalContext = p.Merged.MergedContext
	return nil
}
