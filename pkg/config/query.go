package config

import "fmt"

// QueryConfig controls the retrieval pipeline.
//
// Example YAML:
//
//	query:
//	  top_k: 10
//	  chunk_top_k: 5
//	  context:
//	    max_tokens: 4000
//	    chunk_ratio: 0.30
//	    entity_ratio: 0.40
//	    relation_ratio: 0.30
//	  keyword_extraction:
//	    enabled: true
//	    cache_ttl: 3600
//	  chunk_selection:
//	    strategy: weighted
type QueryConfig struct {
	// TopK is the default entity retrieval width.
	TopK int `yaml:"top_k,omitempty"`

	// ChunkTopK is the default chunk retrieval width.
	ChunkTopK int `yaml:"chunk_top_k,omitempty"`

	// ExpansionHops is the BFS depth of mix-mode graph expansion.
	ExpansionHops int `yaml:"expansion_hops,omitempty"`

	Context           ContextConfig           `yaml:"context,omitempty"`
	KeywordExtraction KeywordExtractionConfig `yaml:"keyword_extraction,omitempty"`
	ChunkSelection    ChunkSelectionConfig    `yaml:"chunk_selection,omitempty"`
	ResponseCache     ResponseCacheConfig     `yaml:"response_cache,omitempty"`
}

func (c *QueryConfig) SetDefaults() {
	if c.TopK == 0 {
		c.TopK = 10
	}
	if c.ChunkTopK == 0 {
		c.ChunkTopK = 5
	}
	if c.ExpansionHops == 0 {
		c.ExpansionHops = 1
	}
	c.Context.SetDefaults()
	c.KeywordExtraction.SetDefaults()
	c.ChunkSelection.SetDefaults()
	c.ResponseCache.SetDefaults()
}

func (c *QueryConfig) Validate() error {
	if c.TopK < 1 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.ChunkTopK < 1 {
		return fmt.Errorf("chunk_top_k must be positive, got %d", c.ChunkTopK)
	}
	if c.ExpansionHops < 0 {
		return fmt.Errorf("expansion_hops must not be negative, got %d", c.ExpansionHops)
	}
	if err := c.Context.Validate(); err != nil {
		return fmt.Errorf("context: %w", err)
	}
	if err := c.KeywordExtraction.Validate(); err != nil {
		return fmt.Errorf("keyword_extraction: %w", err)
	}
	return nil
}

// ContextConfig bounds the assembled context.
type ContextConfig struct {
	// MaxTokens is the total context token budget.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// ChunkRatio, EntityRatio, and RelationRatio divide MaxTokens across
	// the three context types. They should sum to 1.0.
	ChunkRatio    float64 `yaml:"chunk_ratio,omitempty"`
	EntityRatio   float64 `yaml:"entity_ratio,omitempty"`
	RelationRatio float64 `yaml:"relation_ratio,omitempty"`
}

func (c *ContextConfig) SetDefaults() {
	if c.MaxTokens == 0 {
		c.MaxTokens = 4000
	}
	if c.ChunkRatio == 0 && c.EntityRatio == 0 && c.RelationRatio == 0 {
		c.ChunkRatio = 0.30
		c.EntityRatio = 0.40
		c.RelationRatio = 0.30
	}
}

func (c *ContextConfig) Validate() error {
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	for name, r := range map[string]float64{
		"chunk_ratio":    c.ChunkRatio,
		"entity_ratio":   c.EntityRatio,
		"relation_ratio": c.RelationRatio,
	} {
		if r < 0 || r > 1 {
			return fmt.Errorf("%s must be within [0, 1], got %v", name, r)
		}
	}
	return nil
}

// KeywordExtractionConfig controls LLM keyword extraction and its caches.
type KeywordExtractionConfig struct {
	// Enabled toggles extraction; disabled extraction yields empty keywords.
	Enabled *bool `yaml:"enabled,omitempty"`

	// CacheTTL is the persistent (L2) cache TTL in seconds.
	CacheTTL int `yaml:"cache_ttl,omitempty"`

	// L1TTL is the in-memory cache TTL in seconds.
	L1TTL int `yaml:"l1_ttl,omitempty"`

	// L1MaxEntries caps the in-memory cache before cleanup.
	L1MaxEntries int `yaml:"l1_max_entries,omitempty"`
}

func (c *KeywordExtractionConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
	if c.CacheTTL == 0 {
		c.CacheTTL = 3600
	}
	if c.L1TTL == 0 {
		c.L1TTL = 300
	}
	if c.L1MaxEntries == 0 {
		c.L1MaxEntries = 1000
	}
}

func (c *KeywordExtractionConfig) Validate() error {
	if c.CacheTTL < 0 || c.L1TTL < 0 {
		return fmt.Errorf("cache TTLs must not be negative")
	}
	if c.L1MaxEntries < 1 {
		return fmt.Errorf("l1_max_entries must be positive, got %d", c.L1MaxEntries)
	}
	return nil
}

// IsEnabled reports whether extraction is on (default true).
func (c *KeywordExtractionConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// ChunkSelectionConfig picks the chunk selection strategy.
// Unknown strategies are not a validation error; the selector factory logs
// a warning and falls back to "vector".
type ChunkSelectionConfig struct {
	// Strategy is "vector" or "weighted" (case-insensitive).
	Strategy string `yaml:"strategy,omitempty"`
}

func (c *ChunkSelectionConfig) SetDefaults() {
	if c.Strategy == "" {
		c.Strategy = "vector"
	}
}

// ResponseCacheConfig toggles the query response cache.
type ResponseCacheConfig struct {
	Enabled *bool `yaml:"enabled,omitempty"`
}

func (c *ResponseCacheConfig) SetDefaults() {
	if c.Enabled == nil {
		c.Enabled = BoolPtr(true)
	}
}

// IsEnabled reports whether response caching is on (default true).
func (c *ResponseCacheConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// DescriptionConfig controls entity description summarization.
type DescriptionConfig struct {
	// SummarizationThreshold is the accumulated-description token count
	// above which summarization kicks in.
	SummarizationThreshold int `yaml:"summarization_threshold,omitempty"`

	// MaxTokens bounds a summarized description.
	MaxTokens int `yaml:"max_tokens,omitempty"`

	// Separator joins merged descriptions.
	Separator string `yaml:"separator,omitempty"`

	// MaxSourceIDs bounds accumulated source chunk ids per entity.
	MaxSourceIDs int `yaml:"max_source_ids,omitempty"`

	// WriteBack persists summarized descriptions to graph storage.
	WriteBack bool `yaml:"write_back,omitempty"`
}

func (c *DescriptionConfig) SetDefaults() {
	if c.SummarizationThreshold == 0 {
		c.SummarizationThreshold = 300
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 500
	}
	if c.Separator == "" {
		c.Separator = " | "
	}
	if c.MaxSourceIDs == 0 {
		c.MaxSourceIDs = 50
	}
}

func (c *DescriptionConfig) Validate() error {
	if c.SummarizationThreshold < 1 {
		return fmt.Errorf("summarization_threshold must be positive, got %d", c.SummarizationThreshold)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max_tokens must be positive, got %d", c.MaxTokens)
	}
	return nil
}
