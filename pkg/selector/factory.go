package selector

import (
	"log/slog"

	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/registry"
	"github.com/latticeai/lattice/pkg/vector"
)

// Factory builds a Selector from its collaborators.
type Factory func(store vector.Store, graphStore graph.Store, collection string) Selector

var strategies = registry.NewBaseRegistry[Factory]()

func init() {
	_ = strategies.Register("vector", func(store vector.Store, _ graph.Store, collection string) Selector {
		return NewVectorSelector(store, collection)
	})
	_ = strategies.Register("weighted", func(store vector.Store, graphStore graph.Store, collection string) Selector {
		return NewWeightedSelector(store, graphStore, collection)
	})
}

// New resolves a strategy by name (case-insensitive) and builds it. Unknown
// names are not an error: the vector strategy is used with a warning.
func New(strategy string, store vector.Store, graphStore graph.Store, collection string) Selector {
	factory, ok := strategies.Get(strategy)
	if !ok {
		slog.Warn("Unknown chunk selection strategy, using vector",
			"strategy", strategy, "known", strategies.Names())
		factory, _ = strategies.Get("vector")
	}
	return factory(store, graphStore, collection)
}
