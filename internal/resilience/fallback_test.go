package resilience

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func newTestGroup(maxFailures int) *Group[string] {
	g := NewGroup("primary", "primary", GroupConfig{
		Breaker: BreakerConfig{MaxFailures: maxFailures, ResetTimeout: time.Hour},
		Logger:  quiet,
	})
	g.Add("secondary", "secondary")
	return g
}

func TestGroup_PrimaryServes(t *testing.T) {
	t.Parallel()

	g := newTestGroup(3)
	var calls []string
	got, name, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
		calls = append(calls, v)
		return "from " + v, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "from primary" || name != "primary" {
		t.Errorf("Do() = %q, %q; want from primary, primary", got, name)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want only primary", calls)
	}
}

func TestGroup_Failover(t *testing.T) {
	t.Parallel()

	g := newTestGroup(3)
	got, name, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			return "", errBackend
		}
		return "from " + v, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if got != "from secondary" || name != "secondary" {
		t.Errorf("Do() = %q, %q; want from secondary, secondary", got, name)
	}
}

func TestGroup_AllFailWrapsLastError(t *testing.T) {
	t.Parallel()

	g := newTestGroup(3)
	lastErr := errors.New("secondary down")
	_, _, err := Do(context.Background(), g, func(_ context.Context, v string) (int, error) {
		if v == "secondary" {
			return 0, lastErr
		}
		return 0, errBackend
	})
	if !errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, want ErrAllFailed", err)
	}
	if !errors.Is(err, lastErr) {
		t.Errorf("err = %v, want it to wrap the last failure", err)
	}
}

func TestGroup_OpenBreakerIsBypassed(t *testing.T) {
	t.Parallel()

	g := newTestGroup(2)
	fn := func(_ context.Context, v string) (string, error) {
		if v == "primary" {
			return "", errBackend
		}
		return v, nil
	}
	for range 2 {
		if _, _, err := Do(context.Background(), g, fn); err != nil {
			t.Fatalf("Do: %v", err)
		}
	}
	if s := g.States()["primary"]; s != StateOpen {
		t.Fatalf("primary state = %v, want open", s)
	}

	var calls []string
	_, name, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
		calls = append(calls, v)
		return v, nil
	})
	if err != nil {
		t.Fatalf("Do: %v", err)
	}
	if name != "secondary" || len(calls) != 1 {
		t.Errorf("served by %q after calls %v; want only secondary", name, calls)
	}
}

func TestGroup_SkipDoesNotTrip(t *testing.T) {
	t.Parallel()

	g := newTestGroup(1)
	for range 3 {
		_, name, err := Do(context.Background(), g, func(_ context.Context, v string) (string, error) {
			if v == "primary" {
				return "", fmt.Errorf("%w: not suitable", ErrSkipped)
			}
			return v, nil
		})
		if err != nil || name != "secondary" {
			t.Fatalf("Do() = %q, %v; want secondary", name, err)
		}
	}
	if s := g.States()["primary"]; s != StateClosed {
		t.Errorf("primary state = %v, want closed", s)
	}
}

func TestGroup_CancelledContextStops(t *testing.T) {
	t.Parallel()

	g := newTestGroup(3)
	ctx, cancel := context.WithCancel(context.Background())
	var calls []string
	_, _, err := Do(ctx, g, func(ctx context.Context, v string) (string, error) {
		calls = append(calls, v)
		cancel()
		return "", ctx.Err()
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if errors.Is(err, ErrAllFailed) {
		t.Errorf("err = %v, cancellation must not be reported as failover exhaustion", err)
	}
	if len(calls) != 1 {
		t.Errorf("calls = %v, want failover to stop", calls)
	}
	if s := g.States()["primary"]; s != StateClosed {
		t.Errorf("primary state = %v, want closed", s)
	}
}

func TestGroup_LenAndEach(t *testing.T) {
	t.Parallel()

	g := newTestGroup(3)
	if g.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", g.Len())
	}
	var names []string
	g.Each(func(name string, _ string) { names = append(names, name) })
	if len(names) != 2 || names[0] != "primary" || names[1] != "secondary" {
		t.Errorf("Each order = %v, want [primary secondary]", names)
	}
}
