package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/locks"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/vector"
)

// testFixture wires an engine over in-memory stores with a deterministic
// embedder and a scripted LLM.
type testFixture struct {
	engine   *Engine
	llm      *model.MockLLM
	embedder *embedder.MockEmbedder
	vectors  *vector.MemoryStore
	graph    *graph.MemoryStore
	cache    *cache.MemoryStore
}

func newFixture(t *testing.T, mutate func(*config.Config)) *testFixture {
	t.Helper()

	cfg := config.Config{}
	cfg.SetDefaults()
	cfg.VectorStore.Type = "memory"
	if mutate != nil {
		mutate(&cfg)
	}

	f := &testFixture{
		llm:      model.NewMockLLM(),
		embedder: embedder.NewMockEmbedder(8),
		vectors:  vector.NewMemoryStore(),
		graph:    graph.NewMemoryStore(),
		cache:    cache.NewMemoryStore(),
	}
	f.llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		switch req.OperationType {
		case model.OpKeywordExtraction:
			return &model.Response{Text: "HIGH_LEVEL_KEYWORDS: none\nLOW_LEVEL_KEYWORDS: none"}, nil
		default:
			return &model.Response{Text: "generated answer", TokensUsed: 10}, nil
		}
	}

	eng, err := New(cfg, Dependencies{
		LLM:      f.llm,
		Embedder: f.embedder,
		Vector:   f.vectors,
		Graph:    f.graph,
		Cache:    f.cache,
		Locks:    locks.NewRegistry(),
	})
	require.NoError(t, err)
	f.engine = eng
	return f
}

// seedChunk ingests one chunk into the chunk collection under its own
// deterministic embedding.
func (f *testFixture) seedChunk(t *testing.T, projectID, id, content, documentID string) {
	t.Helper()
	vec, err := f.embedder.Embed(context.Background(), content)
	require.NoError(t, err)
	metadata := map[string]any{
		vector.MetaContent:   content,
		vector.MetaProjectID: projectID,
	}
	if documentID != "" {
		metadata[vector.MetaDocumentID] = documentID
	}
	require.NoError(t, f.vectors.Upsert(context.Background(), f.engine.collections.Chunks, id, vec, metadata))
}

// seedEntity ingests an entity into both the graph and the entity
// collection.
func (f *testFixture) seedEntity(t *testing.T, projectID string, e graph.Entity) {
	t.Helper()
	require.NoError(t, f.graph.UpsertEntity(context.Background(), projectID, e))
	vec, err := f.embedder.Embed(context.Background(), e.Name+" "+e.Description)
	require.NoError(t, err)
	require.NoError(t, f.vectors.Upsert(context.Background(), f.engine.collections.Entities, e.Name, vec, map[string]any{
		vector.MetaContent:    e.Description,
		vector.MetaProjectID:  projectID,
		vector.MetaEntityName: e.Name,
	}))
}

func TestEngine_RequiresCollaborators(t *testing.T) {
	cfg := config.Config{}
	_, err := New(cfg, Dependencies{})
	assert.ErrorContains(t, err, "llm is required")
}

func TestEngine_ValidatesInputs(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.engine.Query(context.Background(), "", "question", Param{})
	assert.ErrorContains(t, err, "projectID")

	_, err = f.engine.Query(context.Background(), "p1", "", Param{})
	assert.ErrorContains(t, err, "query")

	_, err = f.engine.Query(context.Background(), "p1", "q", Param{Mode: "turbo"})
	assert.ErrorContains(t, err, "unknown query mode")
}

func TestEngine_NaiveAnswersFromChunks(t *testing.T) {
	f := newFixture(t, nil)
	f.seedChunk(t, "p1", "c1", "the reactor shipped in 2019", "doc-1")
	f.seedChunk(t, "p1", "c2", "unrelated gardening advice", "")

	result, err := f.engine.Query(context.Background(), "p1", "when did the reactor ship?", Param{Mode: ModeNaive})
	require.NoError(t, err)

	assert.Equal(t, "generated answer", result.Answer)
	assert.Equal(t, ModeNaive, result.Mode)
	assert.Equal(t, len(result.Sources), result.TotalSources)
	assert.NotEmpty(t, result.Sources)

	// The answer prompt contains the cited chunk.
	prompt := f.llm.LastCall()
	assert.Equal(t, model.OpQuery, prompt.OperationType)
	assert.Contains(t, prompt.User, "[doc-1] the reactor shipped in 2019")
}

func TestEngine_NaiveCapsChunkTopK(t *testing.T) {
	f := newFixture(t, nil)
	for i := 0; i < 10; i++ {
		f.seedChunk(t, "p1", fmt.Sprintf("c%d", i), fmt.Sprintf("chunk content number %d", i), "")
	}

	result, err := f.engine.Query(context.Background(), "p1", "anything", Param{Mode: ModeNaive, ChunkTopK: 10})
	require.NoError(t, err)
	assert.LessOrEqual(t, result.TotalSources, naiveChunkCap)
}

func TestEngine_OnlyNeedPromptSkipsLLMAnswer(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Query.KeywordExtraction.Enabled = config.BoolPtr(false)
	})
	f.seedChunk(t, "p1", "c1", "some content", "")

	result, err := f.engine.Query(context.Background(), "p1", "question", Param{Mode: ModeLocal, OnlyNeedPrompt: true})
	require.NoError(t, err)

	assert.Empty(t, result.Answer)
	assert.Contains(t, result.Prompt, "## Query\nquestion")
	assert.Equal(t, 0, f.llm.CallCount())
}

func TestEngine_OnlyNeedContext(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Query.KeywordExtraction.Enabled = config.BoolPtr(false)
	})
	f.seedChunk(t, "p1", "c1", "raw context text", "")

	result, err := f.engine.Query(context.Background(), "p1", "question", Param{Mode: ModeNaive, OnlyNeedContext: true})
	require.NoError(t, err)
	assert.Contains(t, result.Context, "raw context text")
	assert.Empty(t, result.Prompt)
}

func TestEngine_GlobalRetrievesEntitiesAndRelations(t *testing.T) {
	f := newFixture(t, nil)
	f.seedEntity(t, "p1", graph.Entity{Name: "Acme", Type: "org", Description: "widget maker"})
	f.seedEntity(t, "p1", graph.Entity{Name: "Globex", Type: "org", Description: "rival firm"})
	f.graph.AddRelation("p1", graph.Relation{SrcID: "Acme", TgtID: "Globex", Description: "competitors"})

	result, err := f.engine.Query(context.Background(), "p1", "who competes with acme?", Param{Mode: ModeGlobal, OnlyNeedPrompt: true})
	require.NoError(t, err)

	assert.Contains(t, result.Prompt, "### Entities")
	assert.Contains(t, result.Prompt, "Acme (org): widget maker")
	assert.Contains(t, result.Prompt, "### Relations")
	assert.Contains(t, result.Prompt, "Acme -> Globex: competitors")
}

func TestEngine_HybridCombinesBothLegs(t *testing.T) {
	f := newFixture(t, nil)
	f.seedChunk(t, "p1", "c1", "acme quarterly report", "doc-7")
	f.seedEntity(t, "p1", graph.Entity{Name: "Acme", Type: "org", Description: "widget maker"})

	result, err := f.engine.Query(context.Background(), "p1", "tell me about acme", Param{Mode: ModeHybrid, OnlyNeedPrompt: true})
	require.NoError(t, err)

	assert.Contains(t, result.Prompt, "[doc-7] acme quarterly report")
	assert.Contains(t, result.Prompt, "Acme (org): widget maker")
}

func TestEngine_MixExpandsGraphWithCycle(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Query.ExpansionHops = 2
	})
	// Cycle A-B-C-A plus a tail C-D; only A is vector-visible.
	f.seedEntity(t, "p1", graph.Entity{Name: "A", Description: "seed entity"})
	for _, name := range []string{"B", "C", "D"} {
		require.NoError(t, f.graph.UpsertEntity(context.Background(), "p1", graph.Entity{Name: name, Description: "expanded " + name}))
	}
	f.graph.AddRelation("p1", graph.Relation{SrcID: "A", TgtID: "B"})
	f.graph.AddRelation("p1", graph.Relation{SrcID: "B", TgtID: "C"})
	f.graph.AddRelation("p1", graph.Relation{SrcID: "C", TgtID: "A"})
	f.graph.AddRelation("p1", graph.Relation{SrcID: "C", TgtID: "D"})

	result, err := f.engine.Query(context.Background(), "p1", "seed entity", Param{Mode: ModeMix, TopK: 1, OnlyNeedPrompt: true})
	require.NoError(t, err)

	assert.Contains(t, result.Prompt, "A: seed entity")
	for _, name := range []string{"B", "C", "D"} {
		assert.Contains(t, result.Prompt, "expanded "+name, "entity %s missing", name)
	}
	// Four distinct relations, each rendered once.
	assert.Equal(t, 1, strings.Count(result.Prompt, "A -> B"))
	assert.Equal(t, 1, strings.Count(result.Prompt, "B -> C"))
	assert.Equal(t, 1, strings.Count(result.Prompt, "C -> A"))
	assert.Equal(t, 1, strings.Count(result.Prompt, "C -> D"))
}

func TestEngine_ResponseCacheHit(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Query.KeywordExtraction.Enabled = config.BoolPtr(false)
	})
	f.seedChunk(t, "p1", "c1", "cached content", "")

	param := Param{Mode: ModeLocal, TopK: 10, ChunkTopK: 5}
	first, err := f.engine.Query(context.Background(), "p1", "q", param)
	require.NoError(t, err)
	llmCalls := f.llm.CallCount()
	embedCalls := len(f.embedder.Inputs)

	second, err := f.engine.Query(context.Background(), "p1", "q", param)
	require.NoError(t, err)

	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Mode, second.Mode)
	assert.Equal(t, first.TotalSources, second.TotalSources)
	assert.Empty(t, second.Sources)

	// The hit cost no LLM call and no embedding.
	assert.Equal(t, llmCalls, f.llm.CallCount())
	assert.Equal(t, embedCalls, len(f.embedder.Inputs))
}

func TestEngine_InvalidateCache(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config) {
		cfg.Query.KeywordExtraction.Enabled = config.BoolPtr(false)
	})
	f.seedChunk(t, "p1", "c1", "content", "")

	param := Param{Mode: ModeNaive}
	_, err := f.engine.Query(context.Background(), "p1", "q", param)
	require.NoError(t, err)

	n, err := f.engine.InvalidateCache(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	// Invalidated: the next identical query calls the LLM again.
	before := f.llm.CallCount()
	_, err = f.engine.Query(context.Background(), "p1", "q", param)
	require.NoError(t, err)
	assert.Equal(t, before+1, f.llm.CallCount())
}

func TestCacheKey_Determinism(t *testing.T) {
	base := Param{Mode: ModeLocal, TopK: 10, ChunkTopK: 5}

	assert.Equal(t, cacheKey("q", base), cacheKey("q", Param{Mode: ModeLocal, TopK: 10, ChunkTopK: 5}))

	// Fields that do not affect the answer do not affect the key.
	withExtras := base
	withExtras.ResponseType = "Short"
	withExtras.OnlyNeedPrompt = true
	assert.Equal(t, cacheKey("q", base), cacheKey("q", withExtras))

	assert.NotEqual(t, cacheKey("q", base), cacheKey("q2", base))
	assert.NotEqual(t, cacheKey("q", base), cacheKey("q", Param{Mode: ModeGlobal, TopK: 10, ChunkTopK: 5}))
	assert.NotEqual(t, cacheKey("q", base), cacheKey("q", Param{Mode: ModeLocal, TopK: 11, ChunkTopK: 5}))
	assert.NotEqual(t, cacheKey("q", base), cacheKey("q", Param{Mode: ModeLocal, TopK: 10, ChunkTopK: 6}))
}

func TestEngine_WrapsGenerationFailures(t *testing.T) {
	f := newFixture(t, nil)
	f.seedChunk(t, "p1", "c1", "some indexed content", "doc-1")

	llmErr := errors.New("model unavailable")
	f.llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return nil, llmErr
	}

	_, err := f.engine.Query(context.Background(), "p1", "anything", Param{Mode: ModeNaive})
	require.Error(t, err)

	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, ModeNaive, qerr.Mode)
	assert.Equal(t, "p1", qerr.ProjectID)
	assert.Equal(t, "generation", qerr.Op)
	assert.ErrorIs(t, err, llmErr)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("HYBRID")
	require.NoError(t, err)
	assert.Equal(t, ModeHybrid, m)

	_, err = ParseMode("bogus")
	assert.Error(t, err)
}
