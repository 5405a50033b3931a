package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/latticeai/lattice/pkg/pipeline"
	"github.com/latticeai/lattice/pkg/selector"
	"github.com/latticeai/lattice/pkg/tokens"
)

// naiveChunkCap bounds the chunk width in naive mode, which has no graph
// signal to justify a wide candidate pool.
const naiveChunkCap = 5

// modeExecutor drives one retrieval strategy over the per-query context.
// After run returns, the context carries the final context, prompt, and
// sources for the engine to finish.
type modeExecutor interface {
	run(ctx context.Context, p *pipeline.Context) error
}

func (e *Engine) executorFor(mode Mode) (modeExecutor, error) {
	switch mode {
	case ModeNaive:
		return &naiveExecutor{e}, nil
	case ModeLocal:
		return &localExecutor{e}, nil
	case ModeGlobal:
		return &globalExecutor{e}, nil
	case ModeHybrid:
		return &hybridExecutor{e}, nil
	case ModeMix:
		return &mixExecutor{e}, nil
	default:
		return nil, fmt.Errorf("unknown query mode %q", mode)
	}
}

// naiveExecutor: pure vector chunk search, no keywords, no graph.
type naiveExecutor struct{ e *Engine }

func (x *naiveExecutor) run(ctx context.Context, p *pipeline.Context) error {
	if p.ChunkTopK > naiveChunkCap {
		p.ChunkTopK = naiveChunkCap
	}

	maxTokens := x.e.cfg.Query.Context.MaxTokens
	return pipeline.New(
		pipeline.NewChunkSearchStage(x.e.embedder, x.e.selector, nil),
		pipeline.NewTruncateStage(x.e.est, tokens.BudgetRatios{Chunk: 1.0}, maxTokens).
			WithSummarizer(x.e.summarizer),
		pipeline.NewMergeStage(x.e.merger, pipeline.OrderChunkEntityRelation, maxTokens),
		pipeline.NewContextBuilderStage(pipeline.BuilderOptions{Headers: true}),
	).Run(ctx, p)
}

// localExecutor: chunk search steered by low-level keywords.
type localExecutor struct{ e *Engine }

func (x *localExecutor) run(ctx context.Context, p *pipeline.Context) error {
	maxTokens := x.e.cfg.Query.Context.MaxTokens
	chunkStage := pipeline.NewChunkSearchStage(x.e.embedder, x.e.selector, x.e.extractor)

	return pipeline.New(
		chunkStage,
		pipeline.NewTruncateStage(x.e.est, tokens.BudgetRatios{Chunk: 0.90, Entity: 0.05, Relation: 0.05}, maxTokens).
			WithSummarizer(x.e.summarizer),
		pipeline.NewMergeStage(x.e.merger, pipeline.OrderChunkEntityRelation, maxTokens),
		pipeline.NewContextBuilderStage(pipeline.BuilderOptions{Headers: true}),
	).Run(ctx, p)
}

// globalExecutor: entity and relation search steered by high-level
// keywords; chunks get a token budget sliver only.
type globalExecutor struct{ e *Engine }

func (x *globalExecutor) run(ctx context.Context, p *pipeline.Context) error {
	cfg := x.e.cfg.Query.Context
	return pipeline.New(
		pipeline.NewEntitySearchStage(x.e.embedder, x.e.vector, x.e.graph, x.e.extractor, x.e.collections.Entities, true),
		pipeline.NewTruncateStage(x.e.est, tokens.BudgetRatios{Chunk: 0.10, Entity: cfg.EntityRatio, Relation: cfg.RelationRatio}, cfg.MaxTokens).
			WithSummarizer(x.e.summarizer),
		pipeline.NewMergeStage(x.e.merger, pipeline.OrderEntityRelationChunk, cfg.MaxTokens),
		pipeline.NewContextBuilderStage(pipeline.BuilderOptions{Grouped: true, Headers: true}),
	).Run(ctx, p)
}

// hybridExecutor launches the chunk and entity legs concurrently, then
// truncates and merges their union. Keywords are extracted up front so both
// legs read a settled result, and each leg writes only its own candidate
// fields.
type hybridExecutor struct{ e *Engine }

func (x *hybridExecutor) run(ctx context.Context, p *pipeline.Context) error {
	if x.e.extractor != nil && p.Keywords == nil {
		kw, err := x.e.extractor.Extract(ctx, p.ProjectID, p.Query)
		if err != nil {
			return err
		}
		p.Keywords = &kw
	}

	chunkStage := pipeline.NewChunkSearchStage(x.e.embedder, x.e.selector, x.e.extractor).
		WithSelection(x.e.selectionFrom(p))
	entityStage := pipeline.NewEntitySearchStage(x.e.embedder, x.e.vector, x.e.graph, x.e.extractor, x.e.collections.Entities, true)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := chunkStage.Run(gctx, p); err != nil {
			return &pipeline.StageError{Stage: chunkStage.Name(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := entityStage.Run(gctx, p); err != nil {
			return &pipeline.StageError{Stage: entityStage.Name(), Err: err}
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	cfg := x.e.cfg.Query.Context
	return pipeline.New(
		pipeline.NewTruncateStage(x.e.est, tokens.BudgetRatios{Chunk: cfg.ChunkRatio, Entity: cfg.EntityRatio, Relation: cfg.RelationRatio}, cfg.MaxTokens).
			WithSummarizer(x.e.summarizer),
		pipeline.NewMergeStage(x.e.merger, pipeline.OrderChunkEntityRelation, cfg.MaxTokens),
		pipeline.NewContextBuilderStage(pipeline.BuilderOptions{Grouped: true, Headers: true}),
	).Run(ctx, p)
}

// mixExecutor seeds entity search, expands the graph around the seeds, and
// runs chunk search concurrently with the graph leg.
type mixExecutor struct{ e *Engine }

func (x *mixExecutor) run(ctx context.Context, p *pipeline.Context) error {
	if x.e.extractor != nil && p.Keywords == nil {
		kw, err := x.e.extractor.Extract(ctx, p.ProjectID, p.Query)
		if err != nil {
			return err
		}
		p.Keywords = &kw
	}

	chunkStage := pipeline.NewChunkSearchStage(x.e.embedder, x.e.selector, x.e.extractor).
		WithSelection(x.e.selectionFrom(p))
	seedStage := pipeline.NewEntitySearchStage(x.e.embedder, x.e.vector, x.e.graph, x.e.extractor, x.e.collections.Entities, false)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := chunkStage.Run(gctx, p); err != nil {
			return &pipeline.StageError{Stage: chunkStage.Name(), Err: err}
		}
		return nil
	})
	g.Go(func() error {
		if err := seedStage.Run(gctx, p); err != nil {
			return &pipeline.StageError{Stage: seedStage.Name(), Err: err}
		}
		return x.expandSeeds(gctx, p)
	})
	if err := g.Wait(); err != nil {
		return err
	}

	cfg := x.e.cfg.Query.Context
	return pipeline.New(
		pipeline.NewTruncateStage(x.e.est, tokens.BudgetRatios{Chunk: cfg.ChunkRatio, Entity: cfg.EntityRatio, Relation: cfg.RelationRatio}, cfg.MaxTokens).
			WithSummarizer(x.e.summarizer),
		pipeline.NewMergeStage(x.e.merger, pipeline.OrderEntityRelationChunk, cfg.MaxTokens),
		pipeline.NewContextBuilderStage(pipeline.BuilderOptions{Grouped: true, Headers: true}),
	).Run(ctx, p)
}

// expandSeeds walks the graph outward from the seed entities and replaces
// the candidate sets with the hydrated expansion.
func (x *mixExecutor) expandSeeds(ctx context.Context, p *pipeline.Context) error {
	if len(p.EntityCandidates) == 0 {
		return nil
	}

	seeds := make([]string, 0, len(p.EntityCandidates))
	for _, e := range p.EntityCandidates {
		seeds = append(seeds, e.Name)
	}

	expansion, err := x.e.expander.Expand(ctx, p.ProjectID, seeds, x.e.cfg.Query.ExpansionHops)
	if err != nil {
		return fmt.Errorf("graph expansion failed: %w", err)
	}

	entities, err := x.e.graph.GetEntities(ctx, p.ProjectID, expansion.EntityNames)
	if err != nil {
		return fmt.Errorf("failed to hydrate expanded entities: %w", err)
	}

	p.EntityCandidates = entities
	p.RelationCandidates = expansion.Relations
	return nil
}

// selectionFrom derives weighted-selector boost signals from the extracted
// keywords: low-level keywords name candidate entities, high-level keywords
// approximate relation themes.
func (e *Engine) selectionFrom(p *pipeline.Context) *selector.Context {
	if p.Keywords == nil || p.Keywords.Empty() {
		return nil
	}
	return &selector.Context{
		EntityNames:      p.Keywords.LowLevel,
		RelationKeywords: p.Keywords.HighLevel,
	}
}
