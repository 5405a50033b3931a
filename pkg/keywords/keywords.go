// Package keywords extracts high-level and low-level search keywords from a
// query via the LLM, with a two-tier cache in front: an in-process TTL cache
// and the persistent extraction cache.
//
// High-level keywords are thematic terms driving entity and global search;
// low-level keywords are concrete entity terms driving chunk search.
package keywords

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/model"
)

// ExtractionPrompt is the system prompt for keyword extraction. The response
// format is a wire contract: two labeled comma-separated lists, with the
// literal "none" permitted per section.
const ExtractionPrompt = `You are a keyword extraction assistant for a retrieval system.

Given a user query, extract two kinds of search keywords:
- High-level keywords: overarching themes, concepts, and relationships in the query.
- Low-level keywords: specific entities, names, and concrete terms mentioned in the query.

Rules:
- Output keywords in lowercase, without stopwords.
- If a section has no keywords, write the single word: none
- Do not add commentary.

Respond in exactly this format:
HIGH_LEVEL_KEYWORDS: keyword1, keyword2, keyword3
LOW_LEVEL_KEYWORDS: keyword1, keyword2, keyword3`

// Result holds the extracted keywords for one query.
type Result struct {
	// HighLevel keywords, in extraction order.
	HighLevel []string `json:"high_level"`

	// LowLevel keywords, in extraction order.
	LowLevel []string `json:"low_level"`

	// QueryHash is the hex SHA-256 of the query text.
	QueryHash string `json:"-"`

	// CachedAt is when the result entered the persistent cache; zero for
	// fresh extractions.
	CachedAt time.Time `json:"-"`
}

// Empty reports whether no keywords were extracted.
func (r Result) Empty() bool {
	return len(r.HighLevel) == 0 && len(r.LowLevel) == 0
}

var (
	highLevelLine = regexp.MustCompile(`(?im)^\s*HIGH_LEVEL_KEYWORDS\s*:\s*(.*)$`)
	lowLevelLine  = regexp.MustCompile(`(?im)^\s*LOW_LEVEL_KEYWORDS\s*:\s*(.*)$`)
)

// Extractor extracts and caches keywords. Failures are never surfaced to
// callers: a query that cannot be analyzed degrades to empty keywords.
type Extractor struct {
	llm   model.LLM
	store cache.Store
	l1    *cache.TTLCache[Result]
	cfg   config.KeywordExtractionConfig
}

// New returns an Extractor. The persistent store may be nil; caching then
// happens only in memory.
func New(llm model.LLM, store cache.Store, cfg config.KeywordExtractionConfig) *Extractor {
	cfg.SetDefaults()
	return &Extractor{
		llm:   llm,
		store: store,
		l1:    cache.NewTTLCache[Result](time.Duration(cfg.L1TTL)*time.Second, cfg.L1MaxEntries),
		cfg:   cfg,
	}
}

// Extract returns keywords for the query, consulting the L1 then L2 cache
// before calling the LLM. The error return is always nil today; it is kept
// so callers do not change when extraction grows failure modes worth
// surfacing.
func (e *Extractor) Extract(ctx context.Context, projectID, query string) (Result, error) {
	if !e.cfg.IsEnabled() || strings.TrimSpace(query) == "" {
		return Result{}, nil
	}

	hash := cache.Hash(query)
	if r, ok := e.Cached(ctx, projectID, hash); ok {
		return r, nil
	}

	resp, err := e.llm.Generate(ctx, model.Request{
		System:        ExtractionPrompt,
		User:          query,
		OperationType: model.OpKeywordExtraction,
	})
	if err != nil {
		slog.Warn("Keyword extraction failed, continuing without keywords",
			"project_id", projectID, "error", err)
		return Result{QueryHash: hash}, nil
	}

	result := Parse(resp.Text)
	result.QueryHash = hash

	e.l1.Put(l1Key(projectID, hash), result)
	e.persist(ctx, projectID, hash, result, resp.TokensUsed)

	return result, nil
}

// Cached returns the cached result for a query hash, or false on miss.
// Lookup order is L1 memory, then the persistent store; a persistent hit is
// promoted into L1.
func (e *Extractor) Cached(ctx context.Context, projectID, queryHash string) (Result, bool) {
	key := l1Key(projectID, queryHash)
	if r, ok := e.l1.Get(key); ok {
		return r, true
	}

	if e.store == nil {
		return Result{}, false
	}
	entry, err := e.store.Get(ctx, cacheProject(projectID), cache.TypeKeywordExtraction, queryHash)
	if err != nil {
		slog.Debug("Keyword cache read failed", "project_id", projectID, "error", err)
		return Result{}, false
	}
	if entry == nil {
		return Result{}, false
	}
	if ttl := time.Duration(e.cfg.CacheTTL) * time.Second; ttl > 0 && time.Since(entry.CreatedAt) > ttl {
		return Result{}, false
	}

	var r Result
	if err := json.Unmarshal([]byte(entry.Result), &r); err != nil {
		slog.Debug("Keyword cache entry malformed", "project_id", projectID, "error", err)
		return Result{}, false
	}
	r.QueryHash = queryHash
	r.CachedAt = entry.CreatedAt

	e.l1.Put(key, r)
	return r, true
}

// persist writes the result to the persistent cache. Failures are logged
// and ignored.
func (e *Extractor) persist(ctx context.Context, projectID, hash string, result Result, tokensUsed int) {
	if e.store == nil {
		return
	}
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}
	_, err = e.store.Put(ctx, cache.Entry{
		ProjectID:   cacheProject(projectID),
		Type:        cache.TypeKeywordExtraction,
		ContentHash: hash,
		Result:      string(payload),
		TokensUsed:  tokensUsed,
		CreatedAt:   time.Now(),
	})
	if err != nil {
		slog.Debug("Keyword cache write failed", "project_id", projectID, "error", err)
	}
}

// Parse extracts the two keyword sections from an LLM response. Section
// labels match case-insensitively; keywords are trimmed and lowercased. The
// literal "none" yields an empty section, as does a missing label.
func Parse(response string) Result {
	return Result{
		HighLevel: parseSection(highLevelLine, response),
		LowLevel:  parseSection(lowLevelLine, response),
	}
}

func parseSection(re *regexp.Regexp, response string) []string {
	m := re.FindStringSubmatch(response)
	if m == nil {
		return nil
	}

	var out []string
	for _, part := range strings.Split(m[1], ",") {
		kw := strings.ToLower(strings.TrimSpace(part))
		if kw == "" || kw == "none" {
			continue
		}
		out = append(out, kw)
	}
	return out
}

// l1Key scopes the in-memory cache key by project.
func l1Key(projectID, queryHash string) string {
	return cacheProject(projectID) + ":" + queryHash
}

// cacheProject maps an empty project id to the shared scope.
func cacheProject(projectID string) string {
	if projectID == "" {
		return "global"
	}
	return projectID
}
