package routing

import (
	"context"
	"sync"
	"time"
)

// RouteResult is the outcome of a route query. Unreachable targets are a
// result value, not an error.
type RouteResult interface {
	Reachable() bool
	Latency() time.Duration
	// AddCalculationDuration returns a result whose next WaitLatency is
	// shortened by d of work already spent on the query.
	AddCalculationDuration(d time.Duration) RouteResult
	// WaitLatency blocks for the remaining simulated latency or until ctx
	// is done.
	WaitLatency(ctx context.Context) error
}

// ZeroLatency is the route from a node to itself.
var ZeroLatency = PreRouteResult{}

// PreRouteResult is a route read from a precomputed table.
type PreRouteResult struct {
	latency time.Duration
}

// NewPreRouteResult clamps negative latencies to zero.
func NewPreRouteResult(latency time.Duration) PreRouteResult {
	return PreRouteResult{latency: max(latency, 0)}
}

func (PreRouteResult) Reachable() bool          { return true }
func (r PreRouteResult) Latency() time.Duration { return r.latency }

func (r PreRouteResult) AddCalculationDuration(d time.Duration) RouteResult {
	return NewOnRouteResult(r.latency, d)
}

func (r PreRouteResult) WaitLatency(ctx context.Context) error {
	return sleep(ctx, r.latency)
}

// OnRouteResult is a route found by an on-demand search. The first wait is
// shortened by the time the search took.
type OnRouteResult struct {
	latency time.Duration

	mu          sync.Mutex
	first       bool
	calculation time.Duration
}

// NewOnRouteResult clamps negative durations to zero.
func NewOnRouteResult(latency, calculation time.Duration) *OnRouteResult {
	return &OnRouteResult{
		latency:     max(latency, 0),
		first:       true,
		calculation: max(calculation, 0),
	}
}

func (*OnRouteResult) Reachable() bool          { return true }
func (r *OnRouteResult) Latency() time.Duration { return r.latency }

// AddCalculationDuration accumulates d while the first wait is pending.
// After it, d becomes the discount for the next wait.
func (r *OnRouteResult) AddCalculationDuration(d time.Duration) RouteResult {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.first {
		r.calculation += max(d, 0)
	} else {
		r.calculation, r.first = max(d, 0), true
	}
	return r
}

func (r *OnRouteResult) WaitLatency(ctx context.Context) error {
	return sleep(ctx, r.remaining())
}

func (r *OnRouteResult) remaining() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	wait := r.latency
	if r.first {
		wait -= r.calculation
		r.first = false
	}
	return wait
}

// Unreachable is the result for targets without an established path.
type Unreachable struct{}

func (Unreachable) Reachable() bool                                    { return false }
func (Unreachable) Latency() time.Duration                             { return 0 }
func (u Unreachable) AddCalculationDuration(time.Duration) RouteResult { return u }
func (Unreachable) WaitLatency(context.Context) error                  { return nil }

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
