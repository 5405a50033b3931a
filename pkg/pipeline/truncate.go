package pipeline

import (
	"context"
	"fmt"

	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/merge"
	"github.com/latticeai/lattice/pkg/summary"
	"github.com/latticeai/lattice/pkg/tokens"
)

// TruncateStage formats candidates into context items and cuts each type to
// its share of the token budget. Candidates are taken in input (ranking)
// order; inclusion stops at the first item that would exceed the type's
// budget.
type TruncateStage struct {
	est       *tokens.Estimator
	ratios    tokens.BudgetRatios
	maxTokens int

	// summarizer, when set, condenses over-sized entity descriptions before
	// formatting. Cached summaries make this cheap on repeat queries.
	summarizer *summary.Summarizer
}

// NewTruncateStage returns the stage with the given budget split.
func NewTruncateStage(est *tokens.Estimator, ratios tokens.BudgetRatios, maxTokens int) *TruncateStage {
	return &TruncateStage{est: est, ratios: ratios, maxTokens: maxTokens}
}

// WithSummarizer enables description summarization for over-sized entity
// descriptions.
func (s *TruncateStage) WithSummarizer(sum *summary.Summarizer) *TruncateStage {
	s.summarizer = sum
	return s
}

// Name implements Stage.
func (s *TruncateStage) Name() string { return "truncate" }

// Run implements Stage.
func (s *TruncateStage) Run(ctx context.Context, p *Context) error {
	chunkBudget, entityBudget, relationBudget := s.ratios.Split(s.maxTokens)

	p.TruncatedChunks, p.ChunkTokens = s.truncateChunks(p, chunkBudget)
	p.TruncatedEntities, p.EntityTokens = s.truncateEntities(ctx, p, entityBudget)
	p.TruncatedRelations, p.RelationTokens = s.truncateRelations(p, relationBudget)
	p.TotalTokens = p.ChunkTokens + p.EntityTokens + p.RelationTokens

	return nil
}

func (s *TruncateStage) truncateChunks(p *Context, budget int) ([]merge.ContextItem, int) {
	var (
		items []merge.ContextItem
		used  int
	)
	for _, chunk := range p.ChunkCandidates {
		content := FormatChunk(chunk)
		t := s.est.Estimate(content)
		if used+t > budget {
			break
		}
		items = append(items, merge.ContextItem{
			Content:  content,
			Type:     merge.TypeChunk,
			SourceID: chunk.SourceID,
			Tokens:   t,
		})
		used += t
		p.AllSources = append(p.AllSources, chunk)
	}
	return items, used
}

func (s *TruncateStage) truncateEntities(ctx context.Context, p *Context, budget int) ([]merge.ContextItem, int) {
	var (
		items []merge.ContextItem
		used  int
	)
	for _, entity := range p.EntityCandidates {
		if s.summarizer != nil {
			if condensed, err := s.summarizer.Condense(ctx, p.ProjectID, entity.Name, entity.Type, entity.Description); err == nil {
				entity.Description = condensed
			}
		}

		content := FormatEntity(entity)
		t := s.est.Estimate(content)
		if used+t > budget {
			break
		}
		items = append(items, merge.ContextItem{
			Content:  content,
			Type:     merge.TypeEntity,
			SourceID: entity.SourceID,
			FilePath: entity.FilePath,
			Tokens:   t,
		})
		used += t
	}
	return items, used
}

func (s *TruncateStage) truncateRelations(p *Context, budget int) ([]merge.ContextItem, int) {
	var (
		items []merge.ContextItem
		used  int
	)
	for _, rel := range p.RelationCandidates {
		content := FormatRelation(rel)
		t := s.est.Estimate(content)
		if used+t > budget {
			break
		}
		items = append(items, merge.ContextItem{
			Content:  content,
			Type:     merge.TypeRelation,
			SourceID: rel.PairKey(),
			FilePath: rel.FilePath,
			Tokens:   t,
		})
		used += t
	}
	return items, used
}

// FormatChunk renders a chunk for the context: "[{documentID}] {content}"
// when a document id is present, bare content otherwise.
func FormatChunk(chunk SourceChunk) string {
	if chunk.DocumentID != "" {
		return fmt.Sprintf("[%s] %s", chunk.DocumentID, chunk.Content)
	}
	return chunk.Content
}

// FormatEntity renders "{name} ({type}): {description}" with the type and
// description parts omitted when empty.
func FormatEntity(entity graph.Entity) string {
	out := entity.Name
	if entity.Type != "" {
		out += fmt.Sprintf(" (%s)", entity.Type)
	}
	if entity.Description != "" {
		out += ": " + entity.Description
	}
	return out
}

// FormatRelation renders "{src} -> {tgt}: {description}" with the
// description omitted when empty.
func FormatRelation(rel graph.Relation) string {
	out := fmt.Sprintf("%s -> %s", rel.SrcID, rel.TgtID)
	if rel.Description != "" {
		out += ": " + rel.Description
	}
	return out
}
