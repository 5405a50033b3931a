// Package summary condenses accumulated entity descriptions. Entities gain
// a description fragment per mention during ingestion; once the accumulated
// text exceeds a token threshold it is summarized by the LLM, directly for
// small sets and map-reduce for large ones. Results are cached by content
// hash so re-summarizing the same inputs never calls the LLM twice.
package summary

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/locks"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/tokens"
)

// SummarizePrompt instructs the LLM to merge description fragments without
// inventing facts.
const SummarizePrompt = `You merge entity descriptions for a knowledge graph.

Given several descriptions of the same entity, write one coherent description that:
- keeps every distinct fact from the inputs
- removes repetition
- adds nothing that is not in the inputs

Respond with the merged description only.`

const (
	// directLimit is the description count above which map-reduce kicks in.
	directLimit = 10

	// batchSize is the map-phase batch width.
	batchSize = 5
)

// Summarizer merges entity descriptions, with caching and optional
// write-back to graph storage.
type Summarizer struct {
	llm   model.LLM
	store cache.Store
	est   *tokens.Estimator
	graph graph.Store
	locks *locks.Registry
	cfg   config.DescriptionConfig
}

// New returns a Summarizer. The cache store and graph store may be nil;
// caching and write-back are then disabled.
func New(llm model.LLM, store cache.Store, est *tokens.Estimator, graphStore graph.Store, lockRegistry *locks.Registry, cfg config.DescriptionConfig) *Summarizer {
	cfg.SetDefaults()
	if lockRegistry == nil {
		lockRegistry = locks.Default()
	}
	return &Summarizer{
		llm:   llm,
		store: store,
		est:   est,
		graph: graphStore,
		locks: lockRegistry,
		cfg:   cfg,
	}
}

// NeedsSummarization reports whether the accumulated descriptions exceed
// the configured token threshold.
func (s *Summarizer) NeedsSummarization(descriptions []string) bool {
	total := 0
	for _, d := range descriptions {
		total += s.est.Estimate(d)
	}
	return total > s.cfg.SummarizationThreshold
}

// Summarize merges the descriptions of one entity. Inputs within the
// threshold pass through joined by the configured separator; anything over
// it is condensed, a single over-sized description included. LLM failures
// degrade to the joined concatenation; the only error returned is context
// cancellation.
func (s *Summarizer) Summarize(ctx context.Context, projectID, entityName, entityType string, descriptions []string) (string, error) {
	joined := strings.Join(descriptions, s.cfg.Separator)
	if !s.NeedsSummarization(descriptions) {
		return joined, nil
	}

	hash := cache.Hash(entityName + "\x00" + joined)
	if cached, ok := s.cached(ctx, projectID, hash); ok {
		return cached, nil
	}

	summary, err := s.reduce(ctx, entityName, entityType, descriptions)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		slog.Warn("Description summarization failed, keeping concatenation",
			"project_id", projectID, "entity", entityName, "error", err)
		return joined, nil
	}

	summary = s.est.TruncateToLimit(summary, s.cfg.MaxTokens)
	s.persist(ctx, projectID, hash, summary)
	return summary, nil
}

// Condense summarizes a stored description that already carries joined
// fragments: it is split back on the configured separator so the LLM sees
// the individual fragments. Descriptions within the threshold pass through
// unchanged.
func (s *Summarizer) Condense(ctx context.Context, projectID, entityName, entityType, description string) (string, error) {
	return s.Summarize(ctx, projectID, entityName, entityType,
		strings.Split(description, s.cfg.Separator))
}

// SummarizeEntity summarizes and, when write-back is enabled, persists the
// merged description under the entity-name lock.
func (s *Summarizer) SummarizeEntity(ctx context.Context, projectID string, entity graph.Entity, descriptions []string) (string, error) {
	summary, err := s.Summarize(ctx, projectID, entity.Name, entity.Type, descriptions)
	if err != nil {
		return "", err
	}

	if s.cfg.WriteBack && s.graph != nil {
		handle := s.locks.AcquireInOrder(entityLockKey(projectID, entity.Name))
		defer handle.Release()

		entity.Description = summary
		if len(entity.SourceChunkIDs) > s.cfg.MaxSourceIDs {
			entity.SourceChunkIDs = entity.SourceChunkIDs[:s.cfg.MaxSourceIDs]
		}
		if err := s.graph.UpsertEntity(ctx, projectID, entity); err != nil {
			slog.Warn("Description write-back failed",
				"project_id", projectID, "entity", entity.Name, "error", err)
		}
	}
	return summary, nil
}

// reduce summarizes directly when the set is small, otherwise map-reduce:
// batches of batchSize are summarized concurrently, and the batch summaries
// recurse until a direct pass remains.
func (s *Summarizer) reduce(ctx context.Context, entityName, entityType string, descriptions []string) (string, error) {
	if len(descriptions) <= directLimit {
		return s.callLLM(ctx, entityName, entityType, descriptions)
	}

	batches := make([][]string, 0, (len(descriptions)+batchSize-1)/batchSize)
	for start := 0; start < len(descriptions); start += batchSize {
		end := start + batchSize
		if end > len(descriptions) {
			end = len(descriptions)
		}
		batches = append(batches, descriptions[start:end])
	}

	partials := make([]string, len(batches))
	g, gctx := errgroup.WithContext(ctx)
	for i, batch := range batches {
		g.Go(func() error {
			partial, err := s.callLLM(gctx, entityName, entityType, batch)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	return s.reduce(ctx, entityName, entityType, partials)
}

func (s *Summarizer) callLLM(ctx context.Context, entityName, entityType string, descriptions []string) (string, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Entity: %s\n", entityName)
	if entityType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", entityType)
	}
	sb.WriteString("Descriptions:\n")
	for _, d := range descriptions {
		sb.WriteString("- ")
		sb.WriteString(d)
		sb.WriteString("\n")
	}

	resp, err := s.llm.Generate(ctx, model.Request{
		System:        SummarizePrompt,
		User:          sb.String(),
		OperationType: model.OpSummarization,
		MaxTokens:     s.cfg.MaxTokens,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *Summarizer) cached(ctx context.Context, projectID, hash string) (string, bool) {
	if s.store == nil {
		return "", false
	}
	entry, err := s.store.Get(ctx, projectID, cache.TypeSummarization, hash)
	if err != nil {
		slog.Debug("Summary cache read failed", "project_id", projectID, "error", err)
		return "", false
	}
	if entry == nil {
		return "", false
	}
	return entry.Result, true
}

func (s *Summarizer) persist(ctx context.Context, projectID, hash, summary string) {
	if s.store == nil {
		return
	}
	_, err := s.store.Put(ctx, cache.Entry{
		ProjectID:   projectID,
		Type:        cache.TypeSummarization,
		ContentHash: hash,
		Result:      summary,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		slog.Debug("Summary cache write failed", "project_id", projectID, "error", err)
	}
}

// entityLockKey names the lock serializing writes to one entity.
func entityLockKey(projectID, entityName string) string {
	return "entity" + locks.PairSeparator + projectID + locks.PairSeparator + entityName
}
