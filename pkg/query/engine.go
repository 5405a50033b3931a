package query

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/keywords"
	"github.com/latticeai/lattice/pkg/kv"
	"github.com/latticeai/lattice/pkg/locks"
	"github.com/latticeai/lattice/pkg/merge"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/observability"
	"github.com/latticeai/lattice/pkg/pipeline"
	"github.com/latticeai/lattice/pkg/selector"
	"github.com/latticeai/lattice/pkg/summary"
	"github.com/latticeai/lattice/pkg/tokens"
	"github.com/latticeai/lattice/pkg/vector"
)

// AnswerPrompt is the system prompt for answer generation.
const AnswerPrompt = `You are a helpful assistant answering questions from retrieved context.

Rules:
- Answer using only the provided context. If the context does not contain the answer, say so.
- When a source carries a bracketed document id, cite it inline, e.g. [doc-123].
- Be direct and factual.`

// Dependencies are the collaborators the engine is built from. LLM,
// Embedder, Vector, and Graph are required; the rest have working defaults.
type Dependencies struct {
	LLM      model.LLM
	Embedder embedder.Embedder
	Vector   vector.Store
	Graph    graph.Store

	// Chunks resolves chunk content by id. Optional.
	Chunks kv.Store

	// Cache is the persistent extraction cache backing keyword, response,
	// and summary caching. Optional; nil disables persistence.
	Cache cache.Store

	// Locks serializes graph writes. Defaults to the process-wide registry.
	Locks *locks.Registry

	// Metrics records engine activity. Defaults to no-op.
	Metrics observability.Metrics
}

// Engine answers queries against one deployment's storage backends.
type Engine struct {
	cfg config.Config

	llm      model.LLM
	embedder embedder.Embedder
	vector   vector.Store
	graph    graph.Store
	chunks   kv.Store

	collections vector.Collections

	est        *tokens.Estimator
	merger     *merge.Merger
	extractor  *keywords.Extractor
	summarizer *summary.Summarizer
	expander   *graph.Expander
	selector   selector.Selector

	respCache    *responseCache
	cacheEnabled bool

	metrics observability.Metrics
}

// New validates the dependencies and wires the engine.
func New(cfg config.Config, deps Dependencies) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("llm is required")
	}
	if deps.Embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if deps.Vector == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if deps.Graph == nil {
		return nil, fmt.Errorf("graph store is required")
	}
	if deps.Locks == nil {
		deps.Locks = locks.Default()
	}
	if deps.Metrics == nil {
		deps.Metrics = observability.NoopMetrics{}
	}

	est := tokens.New()
	collections := vector.CollectionsFor(cfg.VectorStore.Collection)

	e := &Engine{
		cfg:          cfg,
		llm:          deps.LLM,
		embedder:     deps.Embedder,
		vector:       deps.Vector,
		graph:        deps.Graph,
		chunks:       deps.Chunks,
		collections:  collections,
		est:          est,
		merger:       merge.NewMerger(est),
		summarizer:   summary.New(deps.LLM, deps.Cache, est, deps.Graph, deps.Locks, cfg.Description),
		expander:     graph.NewExpander(deps.Graph),
		selector:     selector.New(cfg.Query.ChunkSelection.Strategy, deps.Vector, deps.Graph, collections.Chunks),
		respCache:    &responseCache{store: deps.Cache},
		cacheEnabled: cfg.Query.ResponseCache.IsEnabled(),
		metrics:      deps.Metrics,
	}

	if cfg.Query.KeywordExtraction.IsEnabled() {
		e.extractor = keywords.New(deps.LLM, deps.Cache, cfg.Query.KeywordExtraction)
	}

	return e, nil
}

// Query answers one question. The response cache is consulted first unless
// the caller asked for raw context or prompt; a hit skips retrieval and the
// LLM entirely.
func (e *Engine) Query(ctx context.Context, projectID, queryText string, param Param) (*Result, error) {
	if strings.TrimSpace(projectID) == "" {
		return nil, fmt.Errorf("projectID must not be empty")
	}
	if queryText == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	param = param.withDefaults(e.cfg.Query)
	if err := param.validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	queryID := uuid.NewString()

	contextOnly := param.OnlyNeedContext || param.OnlyNeedPrompt
	if e.cacheEnabled && !contextOnly {
		cached := e.respCache.get(ctx, projectID, queryText, param)
		e.metrics.RecordCacheLookup(ctx, string(cache.TypeQueryResponse), cached != nil)
		if cached != nil {
			slog.Debug("Query served from response cache",
				"query_id", queryID, "project_id", projectID, "mode", param.Mode)
			return cached, nil
		}
	}

	executor, err := e.executorFor(param.Mode)
	if err != nil {
		return nil, err
	}

	pctx := &pipeline.Context{
		ProjectID:    projectID,
		Query:        queryText,
		TopK:         param.TopK,
		ChunkTopK:    param.ChunkTopK,
		ResponseType: param.ResponseType,
		History:      param.History,
	}

	if err := executor.run(ctx, pctx); err != nil {
		e.metrics.RecordQuery(ctx, string(param.Mode), time.Since(start), err)
		return nil, &QueryError{Mode: param.Mode, ProjectID: projectID, Op: "retrieval", Err: err}
	}

	result := &Result{
		Mode:         param.Mode,
		Sources:      pctx.AllSources,
		TotalSources: len(pctx.AllSources),
	}

	switch {
	case param.OnlyNeedContext:
		result.Context = pctx.FinalContext
	case param.OnlyNeedPrompt:
		result.Prompt = pctx.FinalPrompt
	default:
		answer, err := e.generateAnswer(ctx, pctx)
		if err != nil {
			e.metrics.RecordQuery(ctx, string(param.Mode), time.Since(start), err)
			return nil, &QueryError{Mode: param.Mode, ProjectID: projectID, Op: "generation", Err: err}
		}
		result.Answer = answer
		if e.cacheEnabled {
			e.respCache.put(ctx, projectID, queryText, param, result)
		}
	}

	e.metrics.RecordQuery(ctx, string(param.Mode), time.Since(start), nil)
	slog.Debug("Query complete",
		"query_id", queryID,
		"project_id", projectID,
		"mode", param.Mode,
		"sources", result.TotalSources,
		"duration", time.Since(start))
	return result, nil
}

// InvalidateCache drops every cached response for the project and returns
// the delete count.
func (e *Engine) InvalidateCache(ctx context.Context, projectID string) (int, error) {
	if strings.TrimSpace(projectID) == "" {
		return 0, fmt.Errorf("projectID must not be empty")
	}
	return e.respCache.invalidate(ctx, projectID), nil
}

// ChunkContent resolves stored chunk content by id, when a chunk store is
// configured.
func (e *Engine) ChunkContent(ctx context.Context, chunkID string) (string, bool, error) {
	if e.chunks == nil {
		return "", false, nil
	}
	return e.chunks.Get(ctx, chunkID)
}

// Close releases the engine's storage handles.
func (e *Engine) Close() error {
	return e.vector.Close()
}

func (e *Engine) generateAnswer(ctx context.Context, pctx *pipeline.Context) (string, error) {
	start := time.Now()
	resp, err := e.llm.Generate(ctx, model.Request{
		System:        AnswerPrompt,
		User:          pctx.FinalPrompt,
		OperationType: model.OpQuery,
	})
	if err != nil {
		e.metrics.RecordLLMCall(ctx, model.OpQuery, time.Since(start), 0, err)
		return "", fmt.Errorf("answer generation failed: %w", err)
	}
	e.metrics.RecordLLMCall(ctx, model.OpQuery, time.Since(start), resp.TokensUsed, nil)
	return resp.Text, nil
}
