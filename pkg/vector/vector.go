// Package vector provides similarity search over embedded documents.
//
// Three backends are supported: an embedded chromem-go store (zero-config,
// optional file persistence), a Qdrant server, and a brute-force in-memory
// store for tests. All backends receive pre-computed vectors; embedding
// happens upstream in the embedder package.
package vector

import "context"

// Metadata keys shared by all backends. Writers populate these at ingestion
// time; the retrieval pipeline reads them back from search results.
const (
	MetaContent    = "content"
	MetaDocumentID = "document_id"
	MetaChunkIndex = "chunk_index"
	MetaProjectID  = "project_id"
	MetaEntityName = "entity_name"
	MetaSrcID      = "src_id"
	MetaTgtID      = "tgt_id"
)

// SearchResult is one similarity match.
type SearchResult struct {
	// ID is the document identifier.
	ID string
	// Content is the stored text, taken from the content metadata key.
	Content string
	// Score is the similarity, higher is closer.
	Score float32
	// Metadata holds the stored payload.
	Metadata map[string]any
}

// Store is the similarity search interface.
type Store interface {
	// Upsert adds or replaces a document with its pre-computed vector.
	Upsert(ctx context.Context, collection string, id string, vec []float32, metadata map[string]any) error

	// Search returns the topK most similar documents, best first.
	Search(ctx context.Context, collection string, vec []float32, topK int) ([]SearchResult, error)

	// SearchWithFilter restricts results to documents whose metadata matches
	// every filter entry exactly.
	SearchWithFilter(ctx context.Context, collection string, vec []float32, topK int, filter map[string]any) ([]SearchResult, error)

	// Close releases backend resources.
	Close() error
}

// Collections holds the per-kind collection names derived from a base name.
type Collections struct {
	Chunks    string
	Entities  string
	Relations string
}

// CollectionsFor derives the chunk, entity, and relation collection names
// from a configured base name.
func CollectionsFor(base string) Collections {
	if base == "" {
		base = "lattice"
	}
	return Collections{
		Chunks:    base + "_chunks",
		Entities:  base + "_entities",
		Relations: base + "_relations",
	}
}
