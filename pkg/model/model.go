// Package model defines the chat-completion interface used for keyword
// extraction, description summarization, and answer generation, together
// with an OpenAI-compatible implementation.
package model

import "context"

// Operation types tagged on requests so callers can attribute token usage.
const (
	OpKeywordExtraction = "keyword_extraction"
	OpSummarization     = "summarization"
	OpQuery             = "query"
)

// Turn is a single prior exchange in a conversation history.
type Turn struct {
	// Role is the speaker, typically "user" or "assistant".
	Role string
	// Content is the utterance text.
	Content string
}

// Request describes one completion call.
type Request struct {
	// System is the system prompt. Empty means no system message.
	System string
	// User is the user message for this turn.
	User string
	// History holds prior turns, oldest first. They are sent before User.
	History []Turn
	// OperationType labels the call for logging and metrics. See the Op*
	// constants.
	OperationType string
	// MaxTokens caps the completion length. Zero applies the provider default.
	MaxTokens int
	// Temperature controls sampling. Zero is a valid (deterministic-ish) value
	// and is sent as-is.
	Temperature float64
}

// Response is the completion result.
type Response struct {
	// Text is the assistant message content.
	Text string
	// TokensUsed is the total token count reported by the provider, zero if
	// the provider did not report usage.
	TokensUsed int
}

// LLM generates chat completions.
type LLM interface {
	// Generate performs a single completion call. Implementations honor
	// context cancellation.
	Generate(ctx context.Context, req Request) (*Response, error)
}
