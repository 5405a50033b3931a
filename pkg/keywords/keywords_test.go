package keywords

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/model"
)

func extractionConfig() config.KeywordExtractionConfig {
	cfg := config.KeywordExtractionConfig{}
	cfg.SetDefaults()
	return cfg
}

func TestParse(t *testing.T) {
	tests := []struct {
		name     string
		response string
		high     []string
		low      []string
	}{
		{
			name:     "both sections",
			response: "HIGH_LEVEL_KEYWORDS: AI Safety, policy\nLOW_LEVEL_KEYWORDS: MIT",
			high:     []string{"ai safety", "policy"},
			low:      []string{"mit"},
		},
		{
			name:     "case insensitive labels",
			response: "high_level_keywords: governance\nLow_Level_Keywords: openai, deepmind",
			high:     []string{"governance"},
			low:      []string{"openai", "deepmind"},
		},
		{
			name:     "none literal",
			response: "HIGH_LEVEL_KEYWORDS: none\nLOW_LEVEL_KEYWORDS: warren buffett",
			high:     nil,
			low:      []string{"warren buffett"},
		},
		{
			name:     "missing section",
			response: "LOW_LEVEL_KEYWORDS: x",
			high:     nil,
			low:      []string{"x"},
		},
		{
			name:     "surrounding prose",
			response: "Sure, here are the keywords:\n\nHIGH_LEVEL_KEYWORDS: economics , markets\nLOW_LEVEL_KEYWORDS: none\n\nHope that helps.",
			high:     []string{"economics", "markets"},
			low:      nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := Parse(tt.response)
			assert.Equal(t, tt.high, r.HighLevel)
			assert.Equal(t, tt.low, r.LowLevel)
		})
	}
}

func TestExtract_CachesAcrossTiers(t *testing.T) {
	llm := model.NewMockLLM()
	llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{
			Text:       "HIGH_LEVEL_KEYWORDS: ai safety, policy\nLOW_LEVEL_KEYWORDS: mit",
			TokensUsed: 12,
		}, nil
	}
	store := cache.NewMemoryStore()
	e := New(llm, store, extractionConfig())
	ctx := context.Background()

	r1, err := e.Extract(ctx, "p1", "What is MIT's stance on AI safety?")
	require.NoError(t, err)
	assert.Equal(t, []string{"ai safety", "policy"}, r1.HighLevel)
	assert.Equal(t, []string{"mit"}, r1.LowLevel)
	assert.Equal(t, 1, llm.CallCount())

	// Second call is served from L1.
	r2, err := e.Extract(ctx, "p1", "What is MIT's stance on AI safety?")
	require.NoError(t, err)
	assert.Equal(t, r1.HighLevel, r2.HighLevel)
	assert.Equal(t, 1, llm.CallCount())

	// A fresh extractor sharing the persistent store hits L2.
	e2 := New(llm, store, extractionConfig())
	r3, err := e2.Extract(ctx, "p1", "What is MIT's stance on AI safety?")
	require.NoError(t, err)
	assert.Equal(t, r1.HighLevel, r3.HighLevel)
	assert.Equal(t, r1.LowLevel, r3.LowLevel)
	assert.False(t, r3.CachedAt.IsZero())
	assert.Equal(t, 1, llm.CallCount())
}

func TestExtract_Disabled(t *testing.T) {
	llm := model.NewMockLLM()
	cfg := extractionConfig()
	cfg.Enabled = config.BoolPtr(false)
	e := New(llm, nil, cfg)

	r, err := e.Extract(context.Background(), "p1", "anything")
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.Equal(t, 0, llm.CallCount())
}

func TestExtract_LLMFailureSwallowed(t *testing.T) {
	llm := model.NewMockLLM()
	llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return nil, errors.New("model unavailable")
	}
	e := New(llm, cache.NewMemoryStore(), extractionConfig())

	r, err := e.Extract(context.Background(), "p1", "query")
	require.NoError(t, err)
	assert.True(t, r.Empty())
	assert.NotEmpty(t, r.QueryHash)
}

func TestExtract_ProjectScoping(t *testing.T) {
	llm := model.NewMockLLM()
	llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{Text: "HIGH_LEVEL_KEYWORDS: a\nLOW_LEVEL_KEYWORDS: b"}, nil
	}
	e := New(llm, cache.NewMemoryStore(), extractionConfig())
	ctx := context.Background()

	_, err := e.Extract(ctx, "p1", "same query")
	require.NoError(t, err)
	_, err = e.Extract(ctx, "p2", "same query")
	require.NoError(t, err)

	// Different projects never share cache entries.
	assert.Equal(t, 2, llm.CallCount())
}

func TestCached_MissOnUnknownHash(t *testing.T) {
	e := New(model.NewMockLLM(), cache.NewMemoryStore(), extractionConfig())

	_, ok := e.Cached(context.Background(), "p1", cache.Hash("never extracted"))
	assert.False(t, ok)
}
