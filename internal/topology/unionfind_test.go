package topology

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

func TestUnionFindFindIsIdempotent(t *testing.T) {
	uf := newUnionFind(8)
	// Build a long chain 7 -> 6 -> ... -> 0.
	for i := 1; i < 8; i++ {
		uf.parent[core.NodeID(i)] = core.NodeID(i - 1)
	}

	root := uf.find(7)
	if root != 0 {
		t.Fatalf("find(7) = %d, want 0", root)
	}
	if p := uf.parent[7]; p != 0 {
		t.Fatalf("path not flattened: parent(7) = %d", p)
	}
	for i := 0; i < 3; i++ {
		if got := uf.find(7); got != root {
			t.Fatalf("repeated find(7) = %d, want %d", got, root)
		}
	}
}

func TestUnionFindRejectsCycles(t *testing.T) {
	uf := newUnionFind(4)
	if !uf.union(1, 2) || !uf.union(3, 4) || !uf.union(2, 3) {
		t.Fatalf("union of disjoint sets reported false")
	}
	if uf.union(1, 4) {
		t.Fatalf("union within one set reported true")
	}
	if !uf.connected(1, 4) || uf.connected(1, 5) {
		t.Fatalf("connected answers wrong")
	}
}

func TestGateSingleFlight(t *testing.T) {
	var g gate[int]
	calls := 0
	compute := func(_ context.Context) (int, error) {
		calls++
		return calls, nil
	}
	key := core.Vec3{X: 1}

	v, cached, err := g.do(context.Background(), key, compute)
	if err != nil || cached || v != 1 {
		t.Fatalf("first do = %d, %v, %v", v, cached, err)
	}
	v, cached, _ = g.do(context.Background(), key, compute)
	if !cached || v != 1 {
		t.Fatalf("second do = %d, cached=%v; want cached 1", v, cached)
	}
	v, cached, _ = g.do(context.Background(), core.Vec3{X: 2}, compute)
	if cached || v != 2 {
		t.Fatalf("new key do = %d, cached=%v; want fresh 2", v, cached)
	}
	if g.count() != 2 {
		t.Fatalf("count = %d, want 2", g.count())
	}
}

func TestGateRetriesAfterError(t *testing.T) {
	var g gate[int]
	fail := true
	compute := func(_ context.Context) (int, error) {
		if fail {
			fail = false
			return 0, errors.New("boom")
		}
		return 5, nil
	}
	key := core.Vec3{Y: 1}
	if _, _, err := g.do(context.Background(), key, compute); err == nil {
		t.Fatalf("expected first computation to fail")
	}
	v, cached, err := g.do(context.Background(), key, compute)
	if err != nil || cached || v != 5 {
		t.Fatalf("retry = %d, %v, %v; want fresh 5", v, cached, err)
	}
}

func TestGateReleasesWaitersWhenComputePanics(t *testing.T) {
	var g gate[int]
	key := core.Vec3{Z: 1}
	started, release := make(chan struct{}), make(chan struct{})

	go func() {
		defer func() { _ = recover() }()
		_, _, _ = g.do(context.Background(), key, func(context.Context) (int, error) {
			close(started)
			<-release
			panic("compute failed")
		})
	}()
	<-started

	waiter := make(chan error, 1)
	go func() {
		_, _, err := g.do(context.Background(), key, func(context.Context) (int, error) { return 1, nil })
		waiter <- err
	}()
	close(release)

	var waitErr error
	select {
	case waitErr = <-waiter:
		// A waiter that arrives after the abort computes for itself.
		if waitErr != nil && !errors.Is(waitErr, errFlightAborted) {
			t.Fatalf("waiter err = %v, want errFlightAborted or nil", waitErr)
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("waiter still blocked after the computation panicked")
	}

	// The aborted flight is never served from the cache.
	v, cached, err := g.do(context.Background(), key, func(context.Context) (int, error) { return 7, nil })
	if waitErr != nil && (err != nil || cached || v != 7) {
		t.Fatalf("after abort do = %d, %v, %v; want fresh 7", v, cached, err)
	}
	if waitErr == nil && (err != nil || !cached || v != 1) {
		t.Fatalf("after waiter recompute do = %d, %v, %v; want cached 1", v, cached, err)
	}
}
