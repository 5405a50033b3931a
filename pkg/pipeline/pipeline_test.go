package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeai/lattice/pkg/cache"
	"github.com/latticeai/lattice/pkg/config"
	"github.com/latticeai/lattice/pkg/embedder"
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/keywords"
	"github.com/latticeai/lattice/pkg/locks"
	"github.com/latticeai/lattice/pkg/merge"
	"github.com/latticeai/lattice/pkg/model"
	"github.com/latticeai/lattice/pkg/selector"
	"github.com/latticeai/lattice/pkg/summary"
	"github.com/latticeai/lattice/pkg/tokens"
	"github.com/latticeai/lattice/pkg/vector"
)

type recordingStage struct {
	name string
	skip bool
	err  error
	ran  *[]string
}

func (s *recordingStage) Name() string { return s.name }

func (s *recordingStage) ShouldSkip(p *Context) bool { return s.skip }

func (s *recordingStage) Run(ctx context.Context, p *Context) error {
	*s.ran = append(*s.ran, s.name)
	return s.err
}

func TestPipeline_RunsInOrderAndSkips(t *testing.T) {
	var ran []string
	p := New(
		&recordingStage{name: "a", ran: &ran},
		&recordingStage{name: "b", skip: true, ran: &ran},
		&recordingStage{name: "c", ran: &ran},
	)

	require.NoError(t, p.Run(context.Background(), &Context{}))
	assert.Equal(t, []string{"a", "c"}, ran)
}

func TestPipeline_StageFailureAborts(t *testing.T) {
	var ran []string
	cause := errors.New("boom")
	p := New(
		&recordingStage{name: "a", ran: &ran},
		&recordingStage{name: "b", err: cause, ran: &ran},
		&recordingStage{name: "c", ran: &ran},
	)

	err := p.Run(context.Background(), &Context{})
	require.Error(t, err)

	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, "b", stageErr.Stage)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []string{"a", "b"}, ran)
}

// keywordLLM answers the extraction prompt with fixed keyword sections.
func keywordLLM() *model.MockLLM {
	llm := model.NewMockLLM()
	llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{
			Text: "HIGH_LEVEL_KEYWORDS: ai safety, policy\nLOW_LEVEL_KEYWORDS: mit",
		}, nil
	}
	return llm
}

func newExtractor(llm model.LLM) *keywords.Extractor {
	cfg := config.KeywordExtractionConfig{}
	cfg.SetDefaults()
	return keywords.New(llm, cache.NewMemoryStore(), cfg)
}

// emptyVectorStore satisfies vector.Store with no data.
type emptyVectorStore struct{}

func (emptyVectorStore) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	return nil
}

func (emptyVectorStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.SearchResult, error) {
	return nil, nil
}

func (emptyVectorStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.SearchResult, error) {
	return nil, nil
}

func (emptyVectorStore) Close() error { return nil }

func TestChunkSearch_EmbedsQueryWithLowLevelKeywords(t *testing.T) {
	emb := embedder.NewMockEmbedder(8)
	sel := selector.NewVectorSelector(emptyVectorStore{}, "chunks")
	stage := NewChunkSearchStage(emb, sel, newExtractor(keywordLLM()))

	p := &Context{
		ProjectID: "p1",
		Query:     "What is MIT's stance on AI safety?",
		ChunkTopK: 5,
	}
	require.NoError(t, stage.Run(context.Background(), p))

	assert.Equal(t, "What is MIT's stance on AI safety? mit", emb.LastInput())
	require.NotNil(t, p.Keywords)
	assert.Equal(t, []string{"mit"}, p.Keywords.LowLevel)
}

func TestChunkSearch_RawQueryWithoutExtractor(t *testing.T) {
	emb := embedder.NewMockEmbedder(8)
	sel := selector.NewVectorSelector(emptyVectorStore{}, "chunks")
	stage := NewChunkSearchStage(emb, sel, nil)

	p := &Context{ProjectID: "p1", Query: "plain question", ChunkTopK: 5}
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, "plain question", emb.LastInput())
}

func TestEntitySearch_EmbedsQueryWithHighLevelKeywords(t *testing.T) {
	emb := embedder.NewMockEmbedder(8)
	stage := NewEntitySearchStage(emb, emptyVectorStore{}, graph.NewMemoryStore(), newExtractor(keywordLLM()), "entities", false)

	p := &Context{
		ProjectID: "p1",
		Query:     "What is MIT's stance on AI safety?",
		TopK:      10,
	}
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, "What is MIT's stance on AI safety? ai safety policy", emb.LastInput())
}

// entityVectorStore returns fixed entity hits.
type entityVectorStore struct {
	names []string
}

func (s entityVectorStore) Upsert(ctx context.Context, collection, id string, vec []float32, metadata map[string]any) error {
	return nil
}

func (s entityVectorStore) Search(ctx context.Context, collection string, vec []float32, topK int) ([]vector.SearchResult, error) {
	return s.SearchWithFilter(ctx, collection, vec, topK, nil)
}

func (s entityVectorStore) SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]vector.SearchResult, error) {
	var out []vector.SearchResult
	for i, name := range s.names {
		out = append(out, vector.SearchResult{
			ID:    name,
			Score: float32(1) / float32(i+1),
			Metadata: map[string]any{
				vector.MetaEntityName: name,
			},
		})
	}
	return out, nil
}

func (s entityVectorStore) Close() error { return nil }

func TestEntitySearch_HydratesAndDeduplicatesRelations(t *testing.T) {
	ctx := context.Background()
	g := graph.NewMemoryStore()
	require.NoError(t, g.UpsertEntity(ctx, "p1", graph.Entity{Name: "A", Type: "org", Description: "alpha"}))
	require.NoError(t, g.UpsertEntity(ctx, "p1", graph.Entity{Name: "B", Type: "org", Description: "beta"}))
	// A-B appears from both endpoints; it must surface once.
	g.AddRelation("p1", graph.Relation{SrcID: "A", TgtID: "B", Description: "partners"})
	g.AddRelation("p1", graph.Relation{SrcID: "B", TgtID: "C", Description: "suppliers"})

	stage := NewEntitySearchStage(embedder.NewMockEmbedder(8), entityVectorStore{names: []string{"A", "B"}}, g, nil, "entities", true)

	p := &Context{ProjectID: "p1", Query: "q", TopK: 10}
	require.NoError(t, stage.Run(ctx, p))

	require.Len(t, p.EntityCandidates, 2)
	assert.Equal(t, "A", p.EntityCandidates[0].Name)

	require.Len(t, p.RelationCandidates, 2)
	keys := map[string]bool{}
	for _, rel := range p.RelationCandidates {
		keys[rel.PairKey()] = true
	}
	assert.True(t, keys["A::B"])
	assert.True(t, keys["B::C"])
}

func TestTruncate_FormatsAndBudgets(t *testing.T) {
	est := tokens.NewHeuristic()
	stage := NewTruncateStage(est, tokens.BudgetRatios{Chunk: 0.30, Entity: 0.40, Relation: 0.30}, 100)

	p := &Context{
		ProjectID: "p1",
		ChunkCandidates: []SourceChunk{
			{ID: "c1", Content: "chunk text", DocumentID: "doc-9", SourceID: "c1", Type: SourceTypeChunk},
			{ID: "c2", Content: "no document id", SourceID: "c2", Type: SourceTypeChunk},
		},
		EntityCandidates: []graph.Entity{
			{Name: "acme", Type: "org", Description: "widgets"},
			{Name: "untyped"},
		},
		RelationCandidates: []graph.Relation{
			{SrcID: "acme", TgtID: "globex", Description: "rivals"},
			{SrcID: "x", TgtID: "y"},
		},
	}
	require.NoError(t, stage.Run(context.Background(), p))

	require.Len(t, p.TruncatedChunks, 2)
	assert.Equal(t, "[doc-9] chunk text", p.TruncatedChunks[0].Content)
	assert.Equal(t, "no document id", p.TruncatedChunks[1].Content)

	require.Len(t, p.TruncatedEntities, 2)
	assert.Equal(t, "acme (org): widgets", p.TruncatedEntities[0].Content)
	assert.Equal(t, "untyped", p.TruncatedEntities[1].Content)

	require.Len(t, p.TruncatedRelations, 2)
	assert.Equal(t, "acme -> globex: rivals", p.TruncatedRelations[0].Content)
	assert.Equal(t, "x -> y", p.TruncatedRelations[1].Content)

	assert.Equal(t, p.TotalTokens, p.ChunkTokens+p.EntityTokens+p.RelationTokens)
	assert.Len(t, p.AllSources, 2)
}

func TestTruncate_StopsAtBudget(t *testing.T) {
	est := tokens.NewHeuristic()
	// Chunk budget: 10 tokens. Each chunk is 5 tokens (20 chars).
	stage := NewTruncateStage(est, tokens.BudgetRatios{Chunk: 1.0}, 10)

	content := "01234567890123456789"
	p := &Context{
		ChunkCandidates: []SourceChunk{
			{ID: "a", Content: content},
			{ID: "b", Content: content},
			{ID: "c", Content: content},
		},
	}
	require.NoError(t, stage.Run(context.Background(), p))

	assert.Len(t, p.TruncatedChunks, 2)
	assert.Equal(t, 10, p.ChunkTokens)
}

func TestTruncate_CondensesOversizedDescriptions(t *testing.T) {
	est := tokens.NewHeuristic()
	llm := model.NewMockLLM()
	llm.GenerateFunc = func(ctx context.Context, req model.Request) (*model.Response, error) {
		return &model.Response{Text: "condensed widgets maker"}, nil
	}
	store := cache.NewMemoryStore()
	descCfg := config.DescriptionConfig{SummarizationThreshold: 20, MaxTokens: 100}
	descCfg.SetDefaults()

	// Three accumulated fragments, 32 heuristic tokens against a threshold
	// of 20.
	oversized := strings.Repeat("a", 40) + " | " + strings.Repeat("b", 40) + " | " + strings.Repeat("c", 40)
	run := func() *Context {
		stage := NewTruncateStage(est, tokens.BudgetRatios{Entity: 1.0}, 400).
			WithSummarizer(summary.New(llm, store, est, nil, locks.NewRegistry(), descCfg))
		p := &Context{
			ProjectID:        "p1",
			EntityCandidates: []graph.Entity{{Name: "acme", Type: "org", Description: oversized}},
		}
		require.NoError(t, stage.Run(context.Background(), p))
		return p
	}

	p := run()
	require.Len(t, p.TruncatedEntities, 1)
	assert.Equal(t, "acme (org): condensed widgets maker", p.TruncatedEntities[0].Content)
	assert.Equal(t, 1, llm.CallCount())

	// A repeat query over the same stored description is served from the
	// summarization cache.
	p2 := run()
	require.Len(t, p2.TruncatedEntities, 1)
	assert.Equal(t, "acme (org): condensed widgets maker", p2.TruncatedEntities[0].Content)
	assert.Equal(t, 1, llm.CallCount())
}

func TestMergeStage_OrderAndHardCap(t *testing.T) {
	est := tokens.NewHeuristic()
	merger := merge.NewMerger(est)

	p := &Context{
		TruncatedEntities:  []merge.ContextItem{{Content: "E1", Type: merge.TypeEntity, Tokens: 10}},
		TruncatedRelations: []merge.ContextItem{{Content: "R1", Type: merge.TypeRelation, Tokens: 10}},
		TruncatedChunks:    []merge.ContextItem{{Content: "C1", Type: merge.TypeChunk, Tokens: 10}},
	}

	stage := NewMergeStage(merger, OrderEntityRelationChunk, 1000)
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, "E1\n\nR1\n\nC1", p.FinalContext)

	// The merge budget is the hard cap even though truncation passed all
	// three items: only the first two fit in 21 tokens.
	stage = NewMergeStage(merger, OrderEntityRelationChunk, 21)
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, 2, p.Merged.ItemsIncluded)
	assert.Equal(t, "E1\n\nR1", p.FinalContext)

	stage = NewMergeStage(merger, OrderChunkEntityRelation, 1000)
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, "C1\n\nE1\n\nR1", p.FinalContext)
}

func TestMergeStage_UnknownOrder(t *testing.T) {
	stage := NewMergeStage(merge.NewMerger(tokens.NewHeuristic()), MergeOrder(99), 100)
	assert.Error(t, stage.Run(context.Background(), &Context{}))
}

func TestBuilder_EmptyQueryYieldsQuerySection(t *testing.T) {
	stage := NewContextBuilderStage(BuilderOptions{Headers: true})

	p := &Context{Query: ""}
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Equal(t, "## Query\n\n", p.FinalPrompt)
}

func TestBuilder_GroupedSectionsAndHistory(t *testing.T) {
	stage := NewContextBuilderStage(BuilderOptions{Grouped: true, Headers: true})

	p := &Context{
		Query:        "what happened?",
		ResponseType: "Multiple Paragraphs",
		History: []model.Turn{
			{Role: "user", Content: "hello"},
			{Role: "assistant", Content: "hi"},
		},
		Merged: merge.Result{Included: []merge.ContextItem{
			{Content: "acme (org)", Type: merge.TypeEntity},
			{Content: "acme -> globex", Type: merge.TypeRelation},
			{Content: "[d1] text", Type: merge.TypeChunk},
		}},
	}
	require.NoError(t, stage.Run(context.Background(), p))

	prompt := p.FinalPrompt
	assert.Contains(t, prompt, "## Conversation History\nUser: hello\nAssistant: hi\n")
	assert.Contains(t, prompt, "### Entities\nacme (org)\n")
	assert.Contains(t, prompt, "### Relations\nacme -> globex\n")
	assert.Contains(t, prompt, "### Sources\n[d1] text\n")
	assert.Contains(t, prompt, "## Query\nwhat happened?\n")
	assert.Contains(t, prompt, "Please respond with: Multiple Paragraphs\n")

	// Section order: history, context, query, trailer.
	assert.Less(t,
		strings.Index(prompt, "## Conversation History"),
		strings.Index(prompt, "### Entities"))
	assert.Less(t,
		strings.Index(prompt, "### Sources"),
		strings.Index(prompt, "## Query"))
}

func TestBuilder_FlatLabels(t *testing.T) {
	stage := NewContextBuilderStage(BuilderOptions{})

	p := &Context{
		Query: "q",
		Merged: merge.Result{Included: []merge.ContextItem{
			{Content: "e", Type: merge.TypeEntity},
			{Content: "c", Type: merge.TypeChunk},
		}},
	}
	require.NoError(t, stage.Run(context.Background(), p))
	assert.Contains(t, p.FinalPrompt, "[Entity] e\n")
	assert.Contains(t, p.FinalPrompt, "[Source] c\n")
}
