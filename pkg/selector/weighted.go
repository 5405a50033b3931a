package selector

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/vector"
)

// Boost constants for the weighted strategy.
const (
	// EntityBoost applies when a chunk is a direct source of a retrieved
	// entity.
	EntityBoost = 0.30

	// PartialEntityBoost applies when the chunk merely mentions a retrieved
	// entity name.
	PartialEntityBoost = 0.15

	// RelationKeywordBoost applies when the chunk mentions a relation
	// keyword.
	RelationKeywordBoost = 0.20

	// SearchMultiplier widens the candidate pool before re-ranking.
	SearchMultiplier = 2
)

// WeightedSelector re-ranks similarity candidates by graph connectivity.
// Candidates are fetched at SearchMultiplier times topK, boosted, and cut
// back to topK.
//
// Keyword and entity-name matching is a case-insensitive whole-string
// substring test against the chunk content. No stemming or tokenization is
// applied.
type WeightedSelector struct {
	store      vector.Store
	graph      graph.Store
	collection string
}

var _ Selector = (*WeightedSelector)(nil)

// NewWeightedSelector returns the weighted strategy. The graph store is
// consulted for entity source chunks; failures there degrade to plain
// vector scores.
func NewWeightedSelector(store vector.Store, graphStore graph.Store, collection string) *WeightedSelector {
	return &WeightedSelector{store: store, graph: graphStore, collection: collection}
}

// Name implements Selector.
func (s *WeightedSelector) Name() string { return "weighted" }

// Select implements Selector.
func (s *WeightedSelector) Select(ctx context.Context, embedding []float32, projectID string, topK int, sel *Context) ([]ScoredChunk, error) {
	if topK <= 0 {
		return nil, nil
	}

	results, err := s.store.SearchWithFilter(ctx, s.collection, embedding, topK*SearchMultiplier,
		map[string]any{vector.MetaProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("chunk search failed: %w", err)
	}

	chunks := make([]ScoredChunk, 0, len(results))
	for _, r := range results {
		chunks = append(chunks, fromSearchResult(r))
	}

	if sel != nil {
		sourceChunks := s.entitySourceChunks(ctx, projectID, sel.EntityNames)
		for i := range chunks {
			boost := s.boostFor(&chunks[i], sel, sourceChunks)
			chunks[i].Score *= 1 + boost
		}
	}

	sort.SliceStable(chunks, func(i, j int) bool {
		return chunks[i].Score > chunks[j].Score
	})
	if len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

// boostFor computes the additive boost for one chunk. The direct-source
// boost and the partial-mention boost are exclusive; relation keywords and
// custom weights stack on top.
func (s *WeightedSelector) boostFor(chunk *ScoredChunk, sel *Context, sourceChunks map[string]bool) float64 {
	var boost float64
	content := strings.ToLower(chunk.Content)

	if sourceChunks[chunk.ID] {
		boost += EntityBoost
	} else {
		for _, name := range sel.EntityNames {
			if name != "" && strings.Contains(content, strings.ToLower(name)) {
				boost += PartialEntityBoost
				break
			}
		}
	}

	for _, kw := range sel.RelationKeywords {
		if kw != "" && strings.Contains(content, strings.ToLower(kw)) {
			boost += RelationKeywordBoost
			break
		}
	}

	if w, ok := sel.EntityChunkWeights[chunk.ID]; ok {
		boost += w
	}
	return boost
}

// entitySourceChunks resolves the named entities and collects their source
// chunk ids. Graph failures yield an empty map, leaving scores unboosted.
func (s *WeightedSelector) entitySourceChunks(ctx context.Context, projectID string, names []string) map[string]bool {
	if s.graph == nil || len(names) == 0 {
		return nil
	}

	entities, err := s.graph.GetEntities(ctx, projectID, names)
	if err != nil {
		slog.Warn("Entity lookup failed, selecting on vector scores only",
			"project_id", projectID, "error", err)
		return nil
	}

	ids := make(map[string]bool)
	for _, e := range entities {
		for _, id := range e.SourceChunkIDs {
			ids[id] = true
		}
	}
	return ids
}
