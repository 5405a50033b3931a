package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedMemoryStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore()
	ctx := context.Background()

	docs := []struct {
		id   string
		vec  []float32
		meta map[string]any
	}{
		{"c1", []float32{1, 0, 0}, map[string]any{MetaContent: "alpha", MetaProjectID: "p1"}},
		{"c2", []float32{0.9, 0.1, 0}, map[string]any{MetaContent: "beta", MetaProjectID: "p1"}},
		{"c3", []float32{0, 1, 0}, map[string]any{MetaContent: "gamma", MetaProjectID: "p2"}},
		{"c4", []float32{0, 0, 1}, map[string]any{MetaContent: "delta", MetaProjectID: "p2"}},
	}
	for _, d := range docs {
		require.NoError(t, s.Upsert(ctx, "chunks", d.id, d.vec, d.meta))
	}
	return s
}

func TestMemoryStoreSearchOrdering(t *testing.T) {
	s := seedMemoryStore(t)

	results, err := s.Search(context.Background(), "chunks", []float32{1, 0, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, "c2", results[1].ID)
	assert.Equal(t, "alpha", results[0].Content)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
	assert.Greater(t, results[0].Score, results[1].Score)
}

func TestMemoryStoreTopKClamp(t *testing.T) {
	s := seedMemoryStore(t)

	results, err := s.Search(context.Background(), "chunks", []float32{1, 0, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 4)

	results, err = s.Search(context.Background(), "chunks", []float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreFilter(t *testing.T) {
	s := seedMemoryStore(t)

	results, err := s.SearchWithFilter(context.Background(), "chunks", []float32{1, 0, 0}, 10,
		map[string]any{MetaProjectID: "p2"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, "p2", r.Metadata[MetaProjectID])
	}
}

func TestMemoryStoreUnknownCollection(t *testing.T) {
	s := NewMemoryStore()
	results, err := s.Search(context.Background(), "nope", []float32{1}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryStoreUpsertReplaces(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Upsert(ctx, "chunks", "c1", []float32{1, 0}, map[string]any{MetaContent: "old"}))
	require.NoError(t, s.Upsert(ctx, "chunks", "c1", []float32{1, 0}, map[string]any{MetaContent: "new"}))

	assert.Equal(t, 1, s.Count("chunks"))
	results, err := s.Search(ctx, "chunks", []float32{1, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "new", results[0].Content)
}

func TestMemoryStoreDimensionMismatchSkipped(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Upsert(ctx, "chunks", "c1", []float32{1, 0, 0}, nil))
	require.NoError(t, s.Upsert(ctx, "chunks", "c2", []float32{1, 0}, nil))

	results, err := s.Search(ctx, "chunks", []float32{1, 0, 0}, 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "c1", results[0].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, float64(cosineSimilarity([]float32{1, 2}, []float32{2, 4})), 1e-6)
	assert.InDelta(t, 0.0, float64(cosineSimilarity([]float32{1, 0}, []float32{0, 1})), 1e-6)
	assert.InDelta(t, -1.0, float64(cosineSimilarity([]float32{1, 0}, []float32{-1, 0})), 1e-6)
	assert.Equal(t, float32(0), cosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}

func TestCollectionsFor(t *testing.T) {
	cols := CollectionsFor("myproj")
	assert.Equal(t, "myproj_chunks", cols.Chunks)
	assert.Equal(t, "myproj_entities", cols.Entities)
	assert.Equal(t, "myproj_relations", cols.Relations)

	cols = CollectionsFor("")
	assert.Equal(t, "lattice_chunks", cols.Chunks)
}
