// Package merge fuses ranked context lists into one budget-bounded context.
// Sources are interleaved round-robin so that no single context type
// monopolizes the token budget, regardless of how ranking scores are
// distributed across types.
package merge

import (
	"strings"

	"github.com/latticeai/lattice/pkg/tokens"
)

// Context item types.
const (
	TypeEntity   = "entity"
	TypeRelation = "relation"
	TypeChunk    = "chunk"
)

// Separator joins merged items in the output context.
const Separator = "\n\n"

// ContextItem is one formatted unit of retrieval context.
type ContextItem struct {
	// Content is the display-formatted text.
	Content string

	// Type is one of entity, relation, chunk.
	Type string

	// SourceID records where the item came from.
	SourceID string

	// FilePath is the originating file, when known.
	FilePath string

	// Tokens is the token count of Content. Zero means unknown; the merger
	// re-estimates it on ingress.
	Tokens int
}

// Result is the outcome of a merge.
type Result struct {
	// MergedContext is the included items joined by Separator.
	MergedContext string

	// Included lists the items that made it under the budget, in merge order.
	Included []ContextItem

	// TotalTokens is the token cost of MergedContext, separators included.
	TotalTokens int

	ItemsIncluded  int
	ItemsTruncated int
}

// Empty returns the zero-value result for degenerate inputs.
func Empty() Result {
	return Result{}
}

// Merger interleaves ranked source lists under a shared token budget.
type Merger struct {
	est *tokens.Estimator

	// sepTokens is the cost of one inter-item separator, computed once.
	sepTokens int
}

// NewMerger returns a Merger counting with the given estimator.
func NewMerger(est *tokens.Estimator) *Merger {
	return &Merger{
		est:       est,
		sepTokens: est.Estimate(Separator),
	}
}

// Merge interleaves the sources round-robin under maxTokens. One item is
// taken per source per round, in source order. An item that does not fit is
// skipped (its cursor still advances), so smaller later items may still be
// included. The merge stops once no cursor can advance or the budget is
// exhausted.
//
// Given identical inputs the output is deterministic: ties break by source
// order, then by input order within a source.
func (m *Merger) Merge(sources [][]ContextItem, maxTokens int) Result {
	total := 0
	for _, src := range sources {
		total += len(src)
	}
	if total == 0 || maxTokens <= 0 {
		return Empty()
	}

	cursors := make([]int, len(sources))
	var (
		sb          strings.Builder
		included    []ContextItem
		totalTokens int
	)

	for {
		advanced := false
		for si, src := range sources {
			if cursors[si] >= len(src) {
				continue
			}
			if totalTokens >= maxTokens {
				cursors[si] = len(src)
				continue
			}

			item := src[cursors[si]]
			cursors[si]++
			advanced = true

			if item.Tokens <= 0 {
				item.Tokens = m.est.Estimate(item.Content)
			}

			needed := item.Tokens
			if len(included) > 0 {
				needed += m.sepTokens
			}
			if totalTokens+needed > maxTokens {
				continue
			}

			if len(included) > 0 {
				sb.WriteString(Separator)
			}
			sb.WriteString(item.Content)
			included = append(included, item)
			totalTokens += needed
		}
		if !advanced {
			break
		}
	}

	return Result{
		MergedContext:  sb.String(),
		Included:       included,
		TotalTokens:    totalTokens,
		ItemsIncluded:  len(included),
		ItemsTruncated: total - len(included),
	}
}
