// Package llm defines the Provider interface for Large Language Model backends.
//
// An LLM provider wraps a remote or local model API (OpenAI, Anthropic, a local
// Ollama instance ...) and exposes the single call the sentence generator
// needs: a non-streaming chat completion, optionally constrained to emit a JSON
// object.
//
// Implementations must be safe for concurrent use.
package llm

import (
	"context"
	"errors"

	"github.com/MrWong99/happysentences/pkg/types"
)

// Usage holds token accounting information returned by the LLM backend.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// CompletionRequest carries everything the LLM needs to produce a response.
// At minimum Messages must be non-empty.
type CompletionRequest struct {
	// SystemPrompt is an optional high-priority instruction sent before the
	// conversation as a "system"-role message.
	SystemPrompt string

	// Messages is the ordered conversation history.
	Messages []types.Message

	// Temperature controls output randomness in the range [0.0, 2.0]. Zero
	// leaves the provider default in place.
	Temperature float64

	// MaxTokens caps the number of completion tokens. Zero means provider
	// default.
	MaxTokens int

	// JSONMode asks the model to reply with a single JSON object. Providers
	// without a native response-format switch fall back to an instruction in
	// the system prompt.
	JSONMode bool
}

// CompletionResponse is returned by Complete.
type CompletionResponse struct {
	// Content is the full text of the assistant's reply.
	Content string

	// Usage contains token accounting for this request/response pair.
	Usage Usage

	// Model is the model that actually answered, when the backend reports it.
	Model string

	// Truncated is set when the reply stopped at the token limit. A truncated
	// JSON reply is almost never parseable.
	Truncated bool
}

// ErrRefused is wrapped by providers when the model declined to answer.
var ErrRefused = errors.New("llm: model refused the request")

// StoppedAtLimit reports whether a finish reason means the token cap was hit.
// OpenAI-style backends say "length", Anthropic says "max_tokens".
func StoppedAtLimit(finishReason string) bool {
	return finishReason == "length" || finishReason == "max_tokens"
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response.
	//
	// Returns an error if the request fails or if ctx is cancelled before the
	// completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
}

// jsonInstruction is appended to the system prompt by providers that cannot
// switch the response format natively.
const jsonInstruction = "Respond with a single valid JSON object and nothing else."

// SystemPromptWithJSON returns the system prompt to send for req, adding the
// JSON-only instruction when req.JSONMode is set.
func SystemPromptWithJSON(req CompletionRequest) string {
	if !req.JSONMode {
		return req.SystemPrompt
	}
	if req.SystemPrompt == "" {
		return jsonInstruction
	}
	return req.SystemPrompt + "\n\n" + jsonInstruction
}
