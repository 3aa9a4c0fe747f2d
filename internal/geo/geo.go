// Package geo supplies the optional location used to bias place searches.
//
// A missing location is normal: every query path works without one, so
// [Resolve] turns absence and failure alike into a nil result.
package geo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/makanmate/makanmate/pkg/types"
)

// ErrUnavailable is returned by a [Locator] that has no position to offer.
var ErrUnavailable = errors.New("geo: location unavailable")

// Locator produces the user's current position.
type Locator interface {
	Locate(ctx context.Context) (types.Coordinates, error)
}

// Static is a Locator with a fixed position, typically from configuration or
// command-line flags.
type Static struct {
	coords *types.Coordinates
}

var _ Locator = (*Static)(nil)

// NewStatic returns a Locator that always reports lat/lng.
func NewStatic(lat, lng float64) (*Static, error) {
	c := types.Coordinates{Latitude: lat, Longitude: lng}
	if !c.Valid() {
		return nil, fmt.Errorf("geo: coordinates %v,%v out of range", lat, lng)
	}
	return &Static{coords: &c}, nil
}

// None returns a Locator that never has a position.
func None() *Static { return &Static{} }

// Locate implements Locator.
func (s *Static) Locate(context.Context) (types.Coordinates, error) {
	if s == nil || s.coords == nil {
		return types.Coordinates{}, ErrUnavailable
	}
	return *s.coords, nil
}

// Resolve asks l for a position. It returns nil when l is nil, has no
// position, fails, or ctx is already done. Failures other than
// [ErrUnavailable] are logged at debug level.
func Resolve(ctx context.Context, l Locator) *types.Coordinates {
	if l == nil || ctx.Err() != nil {
		return nil
	}
	c, err := l.Locate(ctx)
	if err != nil {
		if !errors.Is(err, ErrUnavailable) {
			slog.Debug("location lookup failed, continuing without bias", "err", err)
		}
		return nil
	}
	if !c.Valid() {
		return nil
	}
	return &c
}
