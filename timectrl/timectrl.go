// Package timectrl owns simulation time and decides when the next step runs.
package timectrl

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrManual is returned by Run when the controller only advances through
// explicit Advance calls.
var ErrManual = errors.New("time controller is in manual mode")

// SimClock gives components read access to simulation time.
type SimClock interface {
	// Now returns the current simulation time.
	Now() time.Time
	// After fires once simulation time has advanced by at least d.
	After(d time.Duration) <-chan time.Time
}

// Mode describes how steps are spaced in wall-clock time.
type Mode int

const (
	// Paced waits a fixed wall-clock interval between steps.
	Paced Mode = iota
	// Fast runs steps back to back.
	Fast
	// Manual only steps when Advance is called.
	Manual
)

func (m Mode) String() string {
	switch m {
	case Paced:
		return "paced"
	case Fast:
		return "fast"
	case Manual:
		return "manual"
	}
	return "unknown"
}

// ModeFor maps a step interval to a mode: positive is paced, zero is fast
// and negative is manual.
func ModeFor(interval time.Duration) Mode {
	switch {
	case interval > 0:
		return Paced
	case interval == 0:
		return Fast
	default:
		return Manual
	}
}

type timer struct {
	at time.Time
	ch chan time.Time
}

// TimeController advances simulation time by a fixed step.
type TimeController struct {
	step     time.Duration
	interval time.Duration

	mu      sync.Mutex
	start   time.Time
	current time.Time
	steps   uint64
	timers  []timer
}

// NewTimeController starts the clock at start. Every step advances it by
// step; interval selects the Mode.
func NewTimeController(start time.Time, step, interval time.Duration) *TimeController {
	return &TimeController{step: step, interval: interval, start: start, current: start}
}

// Now implements SimClock.
func (tc *TimeController) Now() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.current
}

// Steps returns the number of completed steps.
func (tc *TimeController) Steps() uint64 {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	return tc.steps
}

func (tc *TimeController) Mode() Mode          { return ModeFor(tc.interval) }
func (tc *TimeController) Step() time.Duration { return tc.step }

// SetTime moves the clock without counting a step. Pending timers whose
// deadline has passed fire.
func (tc *TimeController) SetTime(t time.Time) {
	tc.mu.Lock()
	tc.current = t
	tc.fireLocked()
	tc.mu.Unlock()
}

// Advance moves the clock forward one step and returns the new time.
func (tc *TimeController) Advance() time.Time {
	tc.mu.Lock()
	defer tc.mu.Unlock()
	tc.current = tc.current.Add(tc.step)
	tc.steps++
	tc.fireLocked()
	return tc.current
}

// After implements SimClock. The channel is buffered and receives the
// simulation time at which the deadline was reached.
func (tc *TimeController) After(d time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	tc.mu.Lock()
	defer tc.mu.Unlock()
	if d <= 0 {
		ch <- tc.current
		return ch
	}
	at := tc.current.Add(d)
	i := sort.Search(len(tc.timers), func(i int) bool { return tc.timers[i].at.After(at) })
	tc.timers = append(tc.timers, timer{})
	copy(tc.timers[i+1:], tc.timers[i:])
	tc.timers[i] = timer{at: at, ch: ch}
	return ch
}

func (tc *TimeController) fireLocked() {
	n := 0
	for n < len(tc.timers) && !tc.timers[n].at.After(tc.current) {
		tc.timers[n].ch <- tc.current
		n++
	}
	tc.timers = tc.timers[n:]
}

// Run calls fn after every step until ctx is done, fn fails, or maxSteps
// steps have run (maxSteps <= 0 means no limit). Cancellation is only
// observed between steps. A cancelled context ends Run without error.
func (tc *TimeController) Run(ctx context.Context, maxSteps int, fn func(context.Context, time.Time) error) error {
	mode := tc.Mode()
	if mode == Manual {
		return ErrManual
	}

	var tick <-chan time.Time
	if mode == Paced {
		ticker := time.NewTicker(tc.interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	for n := 0; maxSteps <= 0 || n < maxSteps; n++ {
		if tick != nil {
			select {
			case <-ctx.Done():
				return nil
			case <-tick:
			}
		} else if ctx.Err() != nil {
			return nil
		}
		if err := fn(ctx, tc.Advance()); err != nil {
			return err
		}
	}
	return nil
}
