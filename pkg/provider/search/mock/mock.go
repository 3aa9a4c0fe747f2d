// Package mock provides a test double for the search.Provider interface.
//
// Example:
//
//	p := &mock.Provider{Result: &search.Result{Text: "Try Jalan Alor."}}
//	res, err := p.Query(ctx, search.Request{Prompt: "satay"})
package mock

import (
	"context"
	"sync"

	"github.com/makanmate/makanmate/pkg/provider/search"
)

// Provider is a mock implementation of search.Provider.
type Provider struct {
	mu sync.Mutex

	// Result is returned by Query. May be nil.
	Result *search.Result

	// Err, if non-nil, is returned as the error from Query.
	Err error

	// Requests records every request passed to Query in order.
	Requests []search.Request
}

// Query records req and returns Result, Err.
func (p *Provider) Query(_ context.Context, req search.Request) (*search.Result, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Requests = append(p.Requests, req)
	return p.Result, p.Err
}

// Calls returns a snapshot of the recorded requests.
func (p *Provider) Calls() []search.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]search.Request, len(p.Requests))
	copy(out, p.Requests)
	return out
}

var _ search.Provider = (*Provider)(nil)
