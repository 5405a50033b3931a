package embedder

import (
	"context"
	"hash/fnv"
	"math"
	"sync"
)

// MockEmbedder is a deterministic test double. The same text always yields
// the same unit-length vector, so similarity comparisons are stable across
// runs. EmbedFunc, when set, overrides the default behavior.
type MockEmbedder struct {
	mu        sync.Mutex
	dimension int
	EmbedFunc func(ctx context.Context, text string) ([]float32, error)
	Inputs    []string
}

var _ Embedder = (*MockEmbedder)(nil)

// NewMockEmbedder returns a mock producing vectors of the given dimension.
func NewMockEmbedder(dimension int) *MockEmbedder {
	if dimension <= 0 {
		dimension = 8
	}
	return &MockEmbedder{dimension: dimension}
}

func (m *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	m.mu.Lock()
	m.Inputs = append(m.Inputs, text)
	fn := m.EmbedFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, text)
	}
	return deterministicVector(text, m.dimension), nil
}

func (m *MockEmbedder) Dimension() int {
	return m.dimension
}

// LastInput returns the most recent text passed to Embed.
func (m *MockEmbedder) LastInput() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Inputs) == 0 {
		return ""
	}
	return m.Inputs[len(m.Inputs)-1]
}

// deterministicVector hashes the text into a pseudo-random unit vector.
func deterministicVector(text string, dimension int) []float32 {
	h := fnv.New64a()
	h.Write([]byte(text))
	state := h.Sum64()
	if state == 0 {
		state = 1
	}

	vec := make([]float32, dimension)
	var norm float64
	for i := range vec {
		// xorshift64 keeps the sequence reproducible without math/rand.
		state ^= state << 13
		state ^= state >> 7
		state ^= state << 17
		v := float64(int64(state)) / math.MaxInt64
		vec[i] = float32(v)
		norm += v * v
	}
	if norm > 0 {
		scale := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= scale
		}
	}
	return vec
}
