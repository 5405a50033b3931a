// Package lattice is a graph-augmented retrieval engine: the query side of
// a graph RAG system.
//
// Given a question and a project id, the engine extracts search keywords,
// retrieves text chunks and knowledge-graph entities and relations from the
// project's storage backends, assembles a token-budgeted context, and asks
// an LLM for the answer. Five retrieval modes blend vector similarity,
// graph traversal, and keyword steering differently: naive, local, global,
// hybrid, and mix.
//
// # Quick Start
//
// Build an engine from a config and its collaborators:
//
//	cfg := config.Config{}
//	cfg.SetDefaults()
//
//	engine, err := query.New(cfg, query.Dependencies{
//		LLM:      model.NewOpenAIClient(cfg.LLM),
//		Embedder: embedder.NewOpenAIEmbedder(cfg.Embedder),
//		Vector:   vectorStore,
//		Graph:    graphStore,
//		Cache:    cacheStore,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer engine.Close()
//
//	result, err := engine.Query(ctx, "p1", "who supplies acme?", query.Param{
//		Mode: query.ModeHybrid,
//	})
//
// Or run a query from the CLI:
//
//	lattice query "who supplies acme?" --project p1 --mode hybrid
//
// # Packages
//
//   - pkg/query: engine facade, mode executors, response cache
//   - pkg/pipeline: retrieval stages and the per-query context
//   - pkg/keywords, pkg/selector, pkg/merge, pkg/summary: pipeline collaborators
//   - pkg/graph, pkg/vector, pkg/kv, pkg/cache, pkg/storage: storage backends
//   - pkg/tokens, pkg/locks, pkg/retry: token budgeting, keyed locking, retry
package lattice
