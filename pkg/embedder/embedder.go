// Package embedder converts text into dense vectors for similarity search.
package embedder

import "context"

// Embedder produces embeddings for query text.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the vector size this embedder produces.
	Dimension() int
}
