// Package cache defines the persistent extraction cache shared by keyword
// extraction, query responses, and description summarization, plus an
// in-process TTL cache used as a first-level lookaside.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// Type discriminates cache entries by the operation that produced them.
type Type string

const (
	TypeKeywordExtraction Type = "KEYWORD_EXTRACTION"
	TypeQueryResponse     Type = "QUERY_RESPONSE"
	TypeSummarization     Type = "SUMMARIZATION"
)

// Entry is one persistent cache row. Uniqueness is defined by
// (ProjectID, Type, ContentHash).
type Entry struct {
	// ID is the storage-assigned identifier.
	ID string

	// ProjectID scopes the entry. Callers without a project use "global".
	ProjectID string

	Type Type

	// ChunkID optionally ties the entry to a source chunk.
	ChunkID string

	// ContentHash is the hex SHA-256 of the cached operation's input.
	ContentHash string

	// Result is the cached payload.
	Result string

	// TokensUsed records the LLM spend that produced the result, zero when
	// unknown.
	TokensUsed int

	CreatedAt time.Time
}

// Store is the persistent cache interface.
type Store interface {
	// Get returns the entry for (projectID, typ, contentHash), or nil on miss.
	Get(ctx context.Context, projectID string, typ Type, contentHash string) (*Entry, error)

	// Put inserts or replaces an entry and returns its storage id.
	Put(ctx context.Context, entry Entry) (string, error)

	// DeleteByProject removes all entries for (projectID, typ) and returns
	// the number removed.
	DeleteByProject(ctx context.Context, projectID string, typ Type) (int, error)
}

// Hash returns the hex SHA-256 of the input.
func Hash(input string) string {
	sum := sha256.Sum256([]byte(input))
	return hex.EncodeToString(sum[:])
}
