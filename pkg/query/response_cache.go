package query

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/pipeline"
)

// cachedResponse is the persisted value. Source chunks are deliberately not
// cached: they dominate entry size and a hit can reconstruct the count
// without them.
type cachedResponse struct {
	Answer       string `json:"answer"`
	Mode         string `json:"mode"`
	TotalSources int    `json:"totalSources"`
}

// responseCache persists complete answers keyed by the query fingerprint.
// Every cache failure is non-fatal: reads degrade to a miss, writes are
// dropped, invalidation reports zero.
type responseCache struct {
	store cache.Store
}

// cacheKey fingerprints the query and the parameters that change its
// answer. Project id is not part of the key; it scopes the storage lookup
// as its own dimension.
func cacheKey(query string, p Param) string {
	return cache.Hash(fmt.Sprintf("%s|%s|%d|%d", query, p.Mode, p.TopK, p.ChunkTopK))
}

// get returns the cached result, or nil on miss.
func (c *responseCache) get(ctx context.Context, projectID, query string, p Param) *Result {
	if c.store == nil {
		return nil
	}

	entry, err := c.store.Get(ctx, projectID, cache.TypeQueryResponse, cacheKey(query, p))
	if err != nil {
		slog.Debug("Response cache read failed", "project_id", projectID, "error", err)
		return nil
	}
	if entry == nil {
		return nil
	}

	var cached cachedResponse
	if err := json.Unmarshal([]byte(entry.Result), &cached); err != nil {
		slog.Debug("Response cache entry malformed", "project_id", projectID, "error", err)
		return nil
	}

	return &Result{
		Answer:       cached.Answer,
		Sources:      []pipeline.SourceChunk{},
		Mode:         Mode(cached.Mode),
		TotalSources: cached.TotalSources,
	}
}

// store persists a result. Only complete answers are cached.
func (c *responseCache) put(ctx context.Context, projectID, query string, p Param, result *Result) {
	if c.store == nil || result.Answer == "" {
		return
	}

	payload, err := json.Marshal(cachedResponse{
		Answer:       result.Answer,
		Mode:         string(result.Mode),
		TotalSources: result.TotalSources,
	})
	if err != nil {
		return
	}

	_, err = c.store.Put(ctx, cache.Entry{
		ProjectID:   projectID,
		Type:        cache.TypeQueryResponse,
		ContentHash: cacheKey(query, p),
		Result:      string(payload),
		CreatedAt:   time.Now(),
	})
	if err != nil {
		slog.Debug("Response cache write failed", "project_id", projectID, "error", err)
	}
}

// invalidate removes every cached response for the project and returns the
// delete count. Failures log a warning and report zero.
func (c *responseCache) invalidate(ctx context.Context, projectID string) int {
	if c.store == nil {
		return 0
	}
	n, err := c.store.DeleteByProject(ctx, projectID, cache.TypeQueryResponse)
	if err != nil {
		slog.Warn("Response cache invalidation failed", "project_id", projectID, "error", err)
		return 0
	}
	return n
}
