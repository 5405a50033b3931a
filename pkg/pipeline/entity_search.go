package pipeline

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/keywords"
	"github.com/latticeai/lattice/pkg/vector"
)

// EntitySearchStage retrieves entity candidates by vector similarity over
// the entity collection, hydrates them from graph storage, and optionally
// fetches their one-hop relations. The embedding input is the query
// augmented with the high-level keywords, steering retrieval toward themes
// rather than literals.
type EntitySearchStage struct {
	embedder  embedder.Embedder
	store     vector.Store
	graph     graph.Store
	extractor *keywords.Extractor

	collection       string
	includeRelations bool

	// maxParallel caps concurrent relation fetches.
	maxParallel int
}

// NewEntitySearchStage returns the stage. The extractor may be nil.
func NewEntitySearchStage(emb embedder.Embedder, store vector.Store, graphStore graph.Store, extractor *keywords.Extractor, collection string, includeRelations bool) *EntitySearchStage {
	return &EntitySearchStage{
		embedder:         emb,
		store:            store,
		graph:            graphStore,
		extractor:        extractor,
		collection:       collection,
		includeRelations: includeRelations,
		maxParallel:      8,
	}
}

// Name implements Stage.
func (s *EntitySearchStage) Name() string { return "entity_search" }

// ShouldSkip implements Skippable.
func (s *EntitySearchStage) ShouldSkip(p *Context) bool {
	return p.TopK <= 0
}

// Run implements Stage.
func (s *EntitySearchStage) Run(ctx context.Context, p *Context) error {
	if s.extractor != nil && p.Keywords == nil {
		kw, err := s.extractor.Extract(ctx, p.ProjectID, p.Query)
		if err != nil {
			return err
		}
		p.Keywords = &kw
	}

	input := p.Query
	if p.Keywords != nil && len(p.Keywords.HighLevel) > 0 {
		input = p.Query + " " + strings.Join(p.Keywords.HighLevel, " ")
	}

	emb := p.Embedding
	if emb == nil || input != p.Query {
		var err error
		emb, err = s.embedder.Embed(ctx, input)
		if err != nil {
			return fmt.Errorf("failed to embed query: %w", err)
		}
	}

	results, err := s.store.SearchWithFilter(ctx, s.collection, emb, p.TopK,
		map[string]any{vector.MetaProjectID: p.ProjectID})
	if err != nil {
		return fmt.Errorf("entity search failed: %w", err)
	}

	names := make([]string, 0, len(results))
	for _, r := range results {
		name := r.ID
		if n, ok := r.Metadata[vector.MetaEntityName].(string); ok && n != "" {
			name = n
		}
		names = append(names, name)
	}
	if len(names) == 0 {
		return nil
	}

	entities, err := s.graph.GetEntities(ctx, p.ProjectID, names)
	if err != nil {
		return fmt.Errorf("failed to hydrate entities: %w", err)
	}
	p.EntityCandidates = entities

	if !s.includeRelations || len(entities) == 0 {
		return nil
	}

	relations, err := s.fetchRelations(ctx, p.ProjectID, entities)
	if err != nil {
		return err
	}
	p.RelationCandidates = relations
	return nil
}

// fetchRelations gathers one-hop relations for every entity concurrently
// and deduplicates them by normalized pair key, preserving entity order.
func (s *EntitySearchStage) fetchRelations(ctx context.Context, projectID string, entities []graph.Entity) ([]graph.Relation, error) {
	fetched := make([][]graph.Relation, len(entities))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.maxParallel)
	for i, entity := range entities {
		g.Go(func() error {
			rels, err := s.graph.GetRelationsForEntity(gctx, projectID, entity.Name)
			if err != nil {
				return fmt.Errorf("failed to fetch relations for %s: %w", entity.Name, err)
			}
			fetched[i] = rels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var relations []graph.Relation
	for _, rels := range fetched {
		for _, rel := range rels {
			if key := rel.PairKey(); !seen[key] {
				seen[key] = true
				relations = append(relations, rel)
			}
		}
	}
	return relations, nil
}
