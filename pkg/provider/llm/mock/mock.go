// Package mock is a scriptable llm.Provider for chat tests.
//
//	p := &mock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Try the laksa."}}
//	s := chat.New(p)
//	...
//	req := p.Calls()[0].Req
package mock

import (
	"context"
	"slices"
	"sync"

	"github.com/makanmate/makanmate/pkg/provider/llm"
	"github.com/makanmate/makanmate/pkg/types"
)

var _ llm.Provider = (*Provider)(nil)

// CompleteCall is one recorded Complete invocation. Req.Messages is cloned,
// so later changes to the caller's history do not show up here.
type CompleteCall struct {
	Ctx context.Context
	Req llm.CompletionRequest
}

// Provider answers every turn with CompleteResponse and CompleteErr unless
// CompleteFunc is set. Configure it before use; tests that change the
// fields between turns must not race with an in-flight Complete.
type Provider struct {
	CompleteResponse  *llm.CompletionResponse
	CompleteErr       error
	CompleteFunc      func(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error)
	ModelCapabilities types.ModelCapabilities

	// CompleteCalls is appended under the lock; read it through [Provider.Calls]
	// while calls may still be running.
	CompleteCalls []CompleteCall

	mu sync.Mutex
}

// Complete implements llm.Provider.
func (p *Provider) Complete(ctx context.Context, req llm.CompletionRequest) (*llm.CompletionResponse, error) {
	req.Messages = slices.Clone(req.Messages)

	p.mu.Lock()
	p.CompleteCalls = append(p.CompleteCalls, CompleteCall{Ctx: ctx, Req: req})
	fn, resp, err := p.CompleteFunc, p.CompleteResponse, p.CompleteErr
	p.mu.Unlock()

	if fn != nil {
		return fn(ctx, req)
	}
	return resp, err
}

// Capabilities implements llm.Provider.
func (p *Provider) Capabilities() types.ModelCapabilities {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ModelCapabilities
}

// Calls returns a copy of the recorded turns.
func (p *Provider) Calls() []CompleteCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.CompleteCalls)
}
