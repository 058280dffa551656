// Package mock provides a test double for the llm.Provider interface.
//
// Use Provider in unit tests to verify that the generator sends the correct
// CompletionRequests and to feed controlled responses without a live backend.
// Responses are consumed in order; once exhausted, CompleteResponse is used.
//
// Example:
//
//	p := &mock.Provider{
//	    Responses: []mock.Response{
//	        {Content: "not json"},
//	        {Content: `{"summary": "..."}`},
//	    },
//	}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/happysentences/pkg/provider/llm"
)

// CompleteCall records a single invocation of Complete.
type CompleteCall struct {
	// Ctx is the context passed to Complete.
	Ctx context.Context
	// Req is the CompletionRequest passed to Complete.
	Req llm.CompletionRequest
}

// Response is one scripted reply.
type Response struct {
	Content string

	// Truncated marks the reply as cut off at the token limit.
	Truncated bool

	Err error
}

// Provider is a mock implementation of llm.Provider.
type Provider struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// Responses is consumed one entry per Complete call.
	Responses []Response

	// CompleteResponse is returned once Responses is exhausted. May be nil
	// (returns nil, nil).
	CompleteResponse *llm.CompletionResponse

	// CompleteErr, if non-nil, is returned once Responses is exhausted.
	CompleteErr error

	// --- Call records (read after test) ---

	// CompleteCalls records every invocation of Complete in order.
	CompleteCalls []CompleteCall
}

// Complete records the call and returns the next scripted response.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	idx := len(p.CompleteCalls)
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	if idx < len(p.Responses) {
		r := p.Responses[idx]
		if r.Err != nil {
			return nil, r.Err
		}
		return &llm.CompletionResponse{Content: r.Content, Truncated: r.Truncated}, nil
	}
	return p.CompleteResponse, p.CompleteErr
}

// Calls returns a copy of the recorded calls. Thread-safe.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]CompleteCall, len(p.CompleteCalls))
	copy(out, p.CompleteCalls)
	return out
}

// Reset clears all recorded calls. Thread-safe.
func (p *Provider) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.CompleteCalls = nil
}

// Ensure Provider implements llm.Provider at compile time.
var _ llm.Provider = (*Provider)(nil)
