// Package llm wraps the language-model collaborators the turn pipeline
// depends on: plain chat completion, prompt safety scoring, and structured
// conversation analysis. All of them speak to an OpenAI-compatible API
// through the Provider interface so tests can substitute fakes or an
// httptest-backed client.
package llm

import (
	"context"
	"errors"
	"time"
)

// TimeoutCompletion bounds a single completion request. The turn pipeline
// itself specifies no timeouts; they live here, at the collaborator edge.
const TimeoutCompletion = 60 * time.Second

var (
	// ErrNoChoices is returned when the upstream API answers without any
	// completion choice.
	ErrNoChoices = errors.New("completion returned no choices")
)

// Provider is the completion service abstraction.
type Provider interface {
	// Name returns the provider identifier (e.g. "openai").
	Name() string
	// Complete sends a chat completion request and returns the response.
	Complete(ctx context.Context, req *Request) (*Response, error)
}

// Request represents one chat completion request.
type Request struct {
	Model       string
	Messages    []Message
	Temperature float64
	MaxTokens   int
	// JSONOnly forces the model into JSON object output mode. Used by the
	// safety scorer and the conversation analyzer.
	JSONOnly bool
}

// Message is a chat message in provider-neutral form.
type Message struct {
	Role    string // "system", "user", "assistant"
	Content string
}

// Response represents a chat completion response.
type Response struct {
	Content      string
	FinishReason string
	InputTokens  int
	OutputTokens int
	Model        string
}
