package routing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func timed(t *testing.T, r RouteResult) time.Duration {
	t.Helper()
	start := time.Now()
	if err := r.WaitLatency(context.Background()); err != nil {
		t.Fatalf("WaitLatency: %v", err)
	}
	return time.Since(start)
}

func TestPreRouteResultWaitsFullLatency(t *testing.T) {
	r := NewPreRouteResult(30 * time.Millisecond)
	if !r.Reachable() || r.Latency() != 30*time.Millisecond {
		t.Fatalf("result = %v/%v", r.Reachable(), r.Latency())
	}
	if got := timed(t, r); got < 30*time.Millisecond {
		t.Fatalf("waited %v, want at least 30ms", got)
	}
	if NewPreRouteResult(-time.Second).Latency() != 0 {
		t.Fatalf("negative latency not clamped")
	}
}

func TestOnRouteResultDiscountsFirstWait(t *testing.T) {
	r := NewOnRouteResult(40*time.Millisecond, 40*time.Millisecond)
	if got := timed(t, r); got > 30*time.Millisecond {
		t.Fatalf("first wait took %v, want it discounted", got)
	}
	if got := timed(t, r); got < 40*time.Millisecond {
		t.Fatalf("second wait took %v, want full latency", got)
	}

	// After the first wait, an added duration applies to the next one.
	r.AddCalculationDuration(40 * time.Millisecond)
	if got := timed(t, r); got > 30*time.Millisecond {
		t.Fatalf("wait after AddCalculationDuration took %v", got)
	}
}

func TestPreRouteAddCalculationDuration(t *testing.T) {
	r := NewPreRouteResult(40 * time.Millisecond).AddCalculationDuration(25 * time.Millisecond)
	on, ok := r.(*OnRouteResult)
	if !ok {
		t.Fatalf("result is %T, want *OnRouteResult", r)
	}
	on.AddCalculationDuration(15 * time.Millisecond)
	if got := on.remaining(); got != 0 {
		t.Fatalf("remaining = %v, want 0", got)
	}
	if got := on.remaining(); got != 40*time.Millisecond {
		t.Fatalf("remaining after first wait = %v, want 40ms", got)
	}
}

func TestUnreachableResult(t *testing.T) {
	var r RouteResult = Unreachable{}
	if r.Reachable() || r.Latency() != 0 {
		t.Fatalf("unreachable = %v/%v", r.Reachable(), r.Latency())
	}
	if r.AddCalculationDuration(time.Second) != r {
		t.Fatalf("AddCalculationDuration changed the unreachable result")
	}
	if got := timed(t, r); got > 10*time.Millisecond {
		t.Fatalf("unreachable wait took %v", got)
	}
}

func TestWaitLatencyHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := NewPreRouteResult(time.Hour).WaitLatency(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("WaitLatency = %v, want DeadlineExceeded", err)
	}
}
