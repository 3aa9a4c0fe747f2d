// Package llm defines the Provider interface for conversational model
// backends.
//
// An LLM provider wraps a remote model API (Gemini, OpenAI, or any backend
// reachable through any-llm-go) and exposes a uniform completion call so the
// chat session does not couple to a specific SDK.
//
// Implementors must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/makanmate/makanmate/pkg/types"
)

// ErrAudioUnsupported is returned by text-only providers when a request
// carries an audio message.
var ErrAudioUnsupported = errors.New("llm: audio input not supported by this provider")

// Usage holds token accounting information returned by the backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the model needs to produce a reply.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// Messages is the ordered conversation history. The last message is
	// typically from the user and drives the response.
	Messages []types.Message

	// SystemPrompt is an optional instruction placed before the history.
	SystemPrompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero means the
	// provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means the provider default.
	MaxTokens int
}

// CompletionResponse is the model's reply.
type CompletionResponse struct {
	// Content is the full text of the reply. It may be empty.
	Content string

	// Usage contains token accounting for this request.
	Usage Usage
}

// Provider is the abstraction over any conversational backend.
type Provider interface {
	// Complete sends req and waits for the full reply. A request holding an
	// audio message fails with [ErrAudioUnsupported] unless
	// Capabilities().SupportsAudio is true.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)

	// Capabilities returns static metadata about the underlying model.
	Capabilities() types.ModelCapabilities
}

// HasAudio reports whether any message in msgs carries audio.
func HasAudio(msgs []types.Message) bool {
	for _, m := range msgs {
		if m.IsAudio || m.Audio != nil {
			return true
		}
	}
	return false
}
