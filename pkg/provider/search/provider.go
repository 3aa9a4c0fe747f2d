// Package search defines the Provider interface for one-shot grounded place
// queries.
//
// A search provider takes a single prompt, optionally with a recorded voice
// query and the user's location, and returns a text answer together with
// the places the answer was grounded on. There is no conversation state:
// each call is independent and is never retried.
package search

import (
	"context"
	"errors"
	"fmt"

	"github.com/makanmate/makanmate/pkg/audio"
	"github.com/makanmate/makanmate/pkg/types"
)

// NoResultsText replaces an empty answer.
const NoResultsText = "I couldn't find any specific places matching your request."

// AudioHint is prepended to the prompt when a recording is attached.
const AudioHint = "The user has provided audio input. Listen to it to understand their request for food or restaurants. "

// ErrQueryFailed is matched by every [*QueryError].
var ErrQueryFailed = errors.New("search: query failed")

// QueryError reports a failed query. Err holds the transport, status or
// decode failure.
type QueryError struct {
	Provider string
	Err      error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("search: %s: query failed: %v", e.Provider, e.Err)
}

// Is reports whether target is [ErrQueryFailed].
func (e *QueryError) Is(target error) bool { return target == ErrQueryFailed }

// Unwrap returns the underlying failure.
func (e *QueryError) Unwrap() error { return e.Err }

// Request is a single query.
type Request struct {
	// Prompt is the typed request. May be empty when Audio is set.
	Prompt string

	// Audio is an optional recorded voice query.
	Audio *audio.Packet

	// Location biases results toward the user. Nil means no bias.
	Location *types.Coordinates
}

// Empty reports whether r carries neither text nor audio.
func (r Request) Empty() bool {
	return r.Prompt == "" && r.Audio == nil
}

// Result is the answer to a [Request].
type Result struct {
	// Text is the answer as markdown. Never empty on success.
	Text string

	// Places lists grounding sources in the order the service returned them.
	Places []types.PlaceReference
}

// Provider answers one-shot queries.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Query sends req and waits for the answer. Failures are returned as a
	// [*QueryError].
	Query(ctx context.Context, req Request) (*Result, error)
}
