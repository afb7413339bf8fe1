package timectrl

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var epoch = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

func TestTimeControllerSetTime(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, time.Second)

	newNow := epoch.Add(42 * time.Second)
	tc.SetTime(newNow)

	if got := tc.Now(); !got.Equal(newNow) {
		t.Fatalf("Now() = %v, want %v", got, newNow)
	}
	if tc.Steps() != 0 {
		t.Fatalf("SetTime counted a step")
	}
}

func TestModeFor(t *testing.T) {
	cases := map[time.Duration]Mode{time.Second: Paced, 0: Fast, -1: Manual}
	for interval, want := range cases {
		if got := ModeFor(interval); got != want {
			t.Fatalf("ModeFor(%v) = %v, want %v", interval, got, want)
		}
	}
}

func TestAdvanceFiresTimers(t *testing.T) {
	tc := NewTimeController(epoch, 10*time.Second, -1)
	late := tc.After(25 * time.Second)
	early := tc.After(5 * time.Second)
	now := tc.After(0)

	if got := <-now; !got.Equal(epoch) {
		t.Fatalf("After(0) = %v, want %v", got, epoch)
	}
	tc.Advance()
	select {
	case got := <-early:
		if !got.Equal(epoch.Add(10 * time.Second)) {
			t.Fatalf("early fired at %v", got)
		}
	default:
		t.Fatalf("early timer did not fire")
	}
	tc.Advance()
	select {
	case <-late:
		t.Fatalf("late timer fired before its deadline")
	default:
	}
	tc.Advance()
	if got := <-late; !got.Equal(epoch.Add(30 * time.Second)) {
		t.Fatalf("late fired at %v", got)
	}
}

func TestRunFastStopsAfterMaxSteps(t *testing.T) {
	tc := NewTimeController(epoch, 5*time.Second, 0)
	var seen []time.Time
	err := tc.Run(context.Background(), 3, func(_ context.Context, now time.Time) error {
		seen = append(seen, now)
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(seen) != 3 || !seen[2].Equal(epoch.Add(15*time.Second)) {
		t.Fatalf("steps = %v", seen)
	}
}

func TestRunPacedHonoursCancellation(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, 5*time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	err := tc.Run(ctx, 0, func(_ context.Context, _ time.Time) error {
		if tc.Steps() == 2 {
			cancel()
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := tc.Steps(); got != 2 {
		t.Fatalf("steps = %d, want 2", got)
	}
}

func TestRunStopsOnError(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, 0)
	boom := errors.New("boom")
	err := tc.Run(context.Background(), 10, func(context.Context, time.Time) error { return boom })
	if !errors.Is(err, boom) || tc.Steps() != 1 {
		t.Fatalf("Run = %v after %d steps", err, tc.Steps())
	}
}

func TestRunRefusesManualMode(t *testing.T) {
	tc := NewTimeController(epoch, time.Second, -1)
	if err := tc.Run(context.Background(), 1, nil); !errors.Is(err, ErrManual) {
		t.Fatalf("Run = %v, want ErrManual", err)
	}
}
