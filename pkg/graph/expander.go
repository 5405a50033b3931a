package graph

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Expansion is the result of a BFS walk: every entity name reached (seeds
// included, discovery order) and every distinct relation crossed.
type Expansion struct {
	EntityNames []string
	Relations   []Relation
}

// Expander walks the relation structure outward from seed entities.
type Expander struct {
	store Store

	// maxParallel caps concurrent relation fetches per frontier.
	maxParallel int
}

// NewExpander returns an Expander reading from the given store.
func NewExpander(store Store) *Expander {
	return &Expander{store: store, maxParallel: 8}
}

// Expand performs a breadth-first walk from the seed entity names, following
// relations for at most hops iterations. Relations within a frontier are
// fetched concurrently. Each relation appears once, keyed by its normalized
// pair; revisited entities are not re-expanded, so cycles terminate.
func (e *Expander) Expand(ctx context.Context, projectID string, seeds []string, hops int) (*Expansion, error) {
	visited := make(map[string]bool, len(seeds))
	var order []string
	for _, seed := range seeds {
		if seed == "" || visited[seed] {
			continue
		}
		visited[seed] = true
		order = append(order, seed)
	}

	seenPairs := make(map[string]bool)
	var relations []Relation

	frontier := append([]string(nil), order...)
	for hop := 0; hop < hops && len(frontier) > 0; hop++ {
		fetched := make([][]Relation, len(frontier))

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.maxParallel)
		for i, name := range frontier {
			g.Go(func() error {
				rels, err := e.store.GetRelationsForEntity(gctx, projectID, name)
				if err != nil {
					return err
				}
				fetched[i] = rels
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}

		var next []string
		for _, rels := range fetched {
			for _, rel := range rels {
				if key := rel.PairKey(); !seenPairs[key] {
					seenPairs[key] = true
					relations = append(relations, rel)
				}
				for _, endpoint := range [2]string{rel.SrcID, rel.TgtID} {
					if endpoint == "" || visited[endpoint] {
						continue
					}
					visited[endpoint] = true
					order = append(order, endpoint)
					next = append(next, endpoint)
				}
			}
		}
		frontier = next
	}

	slog.Debug("Graph expansion complete",
		"project_id", projectID,
		"seeds", len(seeds),
		"entities", len(order),
		"relations", len(relations))

	return &Expansion{EntityNames: order, Relations: relations}, nil
}
