package model

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latticeai/lattice/pkg/config"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *OpenAIClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewOpenAIClient(config.LLMConfig{
		BaseURL: server.URL,
		APIKey:  "test-key",
		Model:   "test-model",
	})
}

func TestOpenAIClientGenerate(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": "hello there"}},
			},
			"usage": map[string]int{"total_tokens": 42},
		})
	})

	resp, err := client.Generate(context.Background(), Request{
		System:        "be terse",
		User:          "hi",
		History:       []Turn{{Role: "user", Content: "earlier"}, {Role: "assistant", Content: "noted"}},
		OperationType: OpQuery,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", resp.Text)
	assert.Equal(t, 42, resp.TokensUsed)

	require.Len(t, captured.Messages, 4)
	assert.Equal(t, chatMessage{Role: "system", Content: "be terse"}, captured.Messages[0])
	assert.Equal(t, chatMessage{Role: "user", Content: "earlier"}, captured.Messages[1])
	assert.Equal(t, chatMessage{Role: "assistant", Content: "noted"}, captured.Messages[2])
	assert.Equal(t, chatMessage{Role: "user", Content: "hi"}, captured.Messages[3])
	assert.Equal(t, "test-model", captured.Model)
}

func TestOpenAIClientGenerateNoSystem(t *testing.T) {
	var captured chatRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	})

	_, err := client.Generate(context.Background(), Request{User: "hi"})
	require.NoError(t, err)
	require.Len(t, captured.Messages, 1)
	assert.Equal(t, "user", captured.Messages[0].Role)
}

func TestOpenAIClientGenerateAPIError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]string{"message": "rate limit exceeded", "type": "rate_limit"},
		})
	})

	_, err := client.Generate(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rate limit exceeded")
	assert.Contains(t, err.Error(), "429")
}

func TestOpenAIClientGenerateEmptyChoices(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"choices": []any{}})
	})

	_, err := client.Generate(context.Background(), Request{User: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no choices")
}

func TestOpenAIClientGenerateContextCancelled(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.Generate(ctx, Request{User: "hi"})
	require.Error(t, err)
}

func TestMockLLM(t *testing.T) {
	mock := NewMockLLM()
	resp, err := mock.Generate(context.Background(), Request{User: "x", OperationType: OpSummarization})
	require.NoError(t, err)
	assert.Equal(t, "mock response", resp.Text)
	assert.Equal(t, 1, mock.CallCount())
	assert.Equal(t, OpSummarization, mock.LastCall().OperationType)
}
