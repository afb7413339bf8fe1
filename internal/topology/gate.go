package topology

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/signalsfoundry/constellation-testbed/core"
)

var errFlightAborted = errors.New("topology computation aborted")

// flight is one computation for a key. done is closed once result and err
// are final.
type flight[T any] struct {
	key    core.Vec3
	done   chan struct{}
	result T
	err    error
}

func (f *flight[T]) finished() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// gate memoises the last computation keyed by the anchor position.
// Callers with the key of the running or last finished flight share its
// result. A caller with a new key waits for the running flight to finish
// and then computes. Computations never overlap.
type gate[T any] struct {
	mu           sync.Mutex
	last         *flight[T]
	computations atomic.Int64
}

// do returns the result for key and whether it came from the cache.
func (g *gate[T]) do(ctx context.Context, key core.Vec3, compute func(context.Context) (T, error)) (T, bool, error) {
	for {
		g.mu.Lock()
		f := g.last
		if f != nil && f.key == key {
			g.mu.Unlock()
			<-f.done
			return f.result, true, f.err
		}
		if f != nil && !f.finished() {
			g.mu.Unlock()
			<-f.done
			continue
		}
		next := &flight[T]{key: key, done: make(chan struct{})}
		g.last = next
		g.mu.Unlock()

		return g.run(ctx, next, compute)
	}
}

// run computes f. Waiters are released even when compute panics; they then
// see errFlightAborted and the flight is not cached.
func (g *gate[T]) run(ctx context.Context, f *flight[T], compute func(context.Context) (T, error)) (T, bool, error) {
	completed := false
	defer func() {
		if !completed {
			f.err = errFlightAborted
		}
		if f.err != nil {
			g.mu.Lock()
			if g.last == f {
				g.last = nil
			}
			g.mu.Unlock()
		}
		close(f.done)
	}()

	f.result, f.err = compute(ctx)
	completed = true
	g.computations.Add(1)
	return f.result, false, f.err
}

// count returns how many computations have run.
func (g *gate[T]) count() int64 {
	return g.computations.Load()
}
