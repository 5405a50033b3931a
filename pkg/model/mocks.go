package model

import (
	"context"
	"sync"
)

// MockLLM is a test double. GenerateFunc, when set, handles calls; otherwise
// a canned response is returned. Calls are recorded for assertions.
type MockLLM struct {
	mu           sync.Mutex
	GenerateFunc func(ctx context.Context, req Request) (*Response, error)
	Calls        []Request
}

var _ LLM = (*MockLLM)(nil)

// NewMockLLM returns a mock that echoes a fixed response.
func NewMockLLM() *MockLLM {
	return &MockLLM{}
}

func (m *MockLLM) Generate(ctx context.Context, req Request) (*Response, error) {
	m.mu.Lock()
	m.Calls = append(m.Calls, req)
	fn := m.GenerateFunc
	m.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return &Response{Text: "mock response", TokensUsed: 2}, nil
}

// CallCount returns how many times Generate was invoked.
func (m *MockLLM) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Calls)
}

// LastCall returns the most recent request, or a zero Request when none.
func (m *MockLLM) LastCall() Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.Calls) == 0 {
		return Request{}
	}
	return m.Calls[len(m.Calls)-1]
}
