package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrAllFailed is returned when every member of a [Group] failed, was skipped
// or had an open breaker. The error also wraps the last member failure.
var ErrAllFailed = errors.New("resilience: all providers failed")

// ErrSkipped may be returned by a [Group] call to move on to the next member
// without charging the current member's breaker.
var ErrSkipped = errors.New("resilience: provider skipped")

// GroupConfig configures a [Group].
type GroupConfig struct {
	// Breaker is the template for each member's breaker. Name is replaced by
	// the member name.
	Breaker BreakerConfig

	// Logger receives failover events. Defaults to slog.Default().
	Logger *slog.Logger
}

// member pairs a backend with its breaker.
type member[T any] struct {
	name    string
	value   T
	breaker *Breaker
}

// Group chains a primary backend and its fallbacks. Calls go to the first
// member whose breaker admits them; on failure the next member is tried.
//
// Members are fixed after construction, so a Group is safe for concurrent
// use once built.
type Group[T any] struct {
	members []member[T]
	cfg     GroupConfig
	log     *slog.Logger
}

// NewGroup returns a group whose first member is primary.
func NewGroup[T any](name string, primary T, cfg GroupConfig) *Group[T] {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Breaker.Logger == nil {
		cfg.Breaker.Logger = cfg.Logger
	}
	g := &Group[T]{cfg: cfg, log: cfg.Logger.With("component", "failover")}
	g.Add(name, primary)
	return g
}

// Add appends a fallback. Fallbacks are tried in the order they are added.
// Add must not be called concurrently with [Do].
func (g *Group[T]) Add(name string, value T) {
	bc := g.cfg.Breaker
	bc.Name = name
	g.members = append(g.members, member[T]{name: name, value: value, breaker: NewBreaker(bc)})
}

// Len returns the number of members.
func (g *Group[T]) Len() int { return len(g.members) }

// Each calls fn for every member in order.
func (g *Group[T]) Each(fn func(name string, value T)) {
	for _, m := range g.members {
		fn(m.name, m.value)
	}
}

// States returns each member's breaker state keyed by member name.
func (g *Group[T]) States() map[string]State {
	out := make(map[string]State, len(g.members))
	for _, m := range g.members {
		out[m.name] = m.breaker.State()
	}
	return out
}

// Do runs fn against each member in turn and returns the first success along
// with the name of the member that produced it. A cancelled ctx stops the
// failover and returns ctx's error.
func Do[T, R any](ctx context.Context, g *Group[T], fn func(ctx context.Context, v T) (R, error)) (R, string, error) {
	var (
		zero    R
		lastErr error
	)
	for i := range g.members {
		m := &g.members[i]
		if err := ctx.Err(); err != nil {
			return zero, "", err
		}

		var res R
		err := m.breaker.Do(func() error {
			r, err := fn(ctx, m.value)
			res = r
			return err
		})
		switch {
		case errors.Is(err, ErrSkipped):
			g.log.Debug("provider skipped", "provider", m.name, "reason", err)
		case err == nil:
			if i > 0 {
				g.log.Info("served by fallback provider", "provider", m.name)
			}
			return res, m.name, nil
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return zero, "", err
		case errors.Is(err, ErrCircuitOpen):
			g.log.Debug("provider circuit open", "provider", m.name)
		default:
			g.log.Warn("provider failed, trying next", "provider", m.name, "err", err)
		}
		lastErr = err
	}
	return zero, "", fmt.Errorf("%w: %w", ErrAllFailed, lastErr)
}
