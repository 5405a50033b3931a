// Package pipeline implements the composable retrieval stages: chunk
// search, entity search with relation expansion, per-type token truncation,
// round-robin merging, and prompt assembly. A mode executor composes these
// into a pipeline and runs them against one per-query Context.
package pipeline

import (
	"github.com/latticeai/lattice/pkg/graph"
	"github.com/latticeai/lattice/pkg/keywords"
	"github.com/latticeai/lattice/pkg/merge"
	"github.com/latticeai/lattice/pkg/model"
)

// Source chunk types.
const (
	SourceTypeChunk    = "chunk"
	SourceTypeEntity   = "entity"
	SourceTypeRelation = "relation"
)

// SourceChunk is one retrieved piece of source material, surfaced to the
// caller alongside the answer.
type SourceChunk struct {
	ID      string
	Content string

	// Score is the retrieval relevance, higher is better.
	Score float64

	// DocumentID identifies the source document; presence gates inline
	// citation formatting.
	DocumentID string

	SourceID   string
	ChunkIndex int

	// Type is one of chunk, entity, relation.
	Type string
}

// Context is the per-query state threaded through the stages. It lives for
// one query, is confined to that query's task tree, and is never shared
// between concurrent stages except where a mode executor documents the
// disjoint fields each parallel leg writes.
type Context struct {
	// ProjectID scopes every storage call.
	ProjectID string

	// Query is the original question text.
	Query string

	// TopK is the entity retrieval width; ChunkTopK the chunk width.
	TopK      int
	ChunkTopK int

	// ResponseType, when set, is appended to the prompt as a response
	// instruction.
	ResponseType string

	// History holds prior conversation turns, oldest first.
	History []model.Turn

	// Embedding is the query embedding. Stages compute it on demand and a
	// caller may preseed it.
	Embedding []float32

	// Keywords is the extraction result, populated by the first stage that
	// needs it and reused afterwards.
	Keywords *keywords.Result

	// Candidates per type, set by the search stages.
	ChunkCandidates    []SourceChunk
	EntityCandidates   []graph.Entity
	RelationCandidates []graph.Relation

	// Truncated context items per type, set by the truncate stage.
	TruncatedChunks    []merge.ContextItem
	TruncatedEntities  []merge.ContextItem
	TruncatedRelations []merge.ContextItem

	// Token counters, updated by the truncate stage.
	ChunkTokens    int
	EntityTokens   int
	RelationTokens int
	TotalTokens    int

	// Merged is the round-robin fusion result.
	Merged merge.Result

	// FinalContext is the raw merged context string.
	FinalContext string

	// FinalPrompt is the assembled prompt.
	FinalPrompt string

	// AllSources lists the chunks that survived truncation, in inclusion
	// order. Returned to the caller as provenance.
	AllSources []SourceChunk
}
