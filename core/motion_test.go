package core

import (
	"math"
	"testing"
	"time"
)

// ISS sample TLE.
const (
	issLine1 = "1 25544U 98067A   21275.59097222  .00000204  00000-0  10270-4 0  9990"
	issLine2 = "2 25544  51.6459 115.9059 0001817  61.3028  35.9198 15.49370953257760"
)

func TestStaticMotion_NoChange(t *testing.T) {
	m := &StaticMotion{Pos: Vec3{X: 1, Y: 2, Z: 3}}
	t1 := time.Now().UTC()
	if got := m.Position(t1); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static motion changed position: %+v", got)
	}
	if got := m.Position(t1.Add(time.Hour)); got != (Vec3{X: 1, Y: 2, Z: 3}) {
		t.Fatalf("static motion changed position after an hour: %+v", got)
	}
}

// Exact orbital values belong to go-satellite; only check movement and a
// plausible LEO radius.
func TestSGP4Motion_ChangesOverTime(t *testing.T) {
	m, err := NewSGP4Motion(issLine1, issLine2)
	if err != nil {
		t.Fatalf("NewSGP4Motion: %v", err)
	}

	t1 := time.Date(2021, 10, 2, 0, 0, 0, 0, time.UTC)
	first := m.Position(t1)
	second := m.Position(t1.Add(5 * time.Minute))

	if first == second {
		t.Fatalf("expected orbital position to change over time, got %+v at both times", first)
	}
	alt := first.Norm() - EarthRadius
	if alt < 300_000 || alt > 500_000 {
		t.Fatalf("ISS altitude = %.0f m, want between 300 and 500 km", alt)
	}
}

func TestNewSGP4Motion_RejectsMalformedLines(t *testing.T) {
	if _, err := NewSGP4Motion("garbage", issLine2); err == nil {
		t.Fatalf("expected error for malformed line 1")
	}
	if _, err := NewSGP4Motion(issLine1, issLine1); err == nil {
		t.Fatalf("expected error when line 2 is a line 1")
	}
}

func TestCircularOrbitMotion_KeepsAltitude(t *testing.T) {
	epoch := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	m := &CircularOrbitMotion{Altitude: 550_000, Inclination: 53, RAAN: 10, Phase: 20, Epoch: epoch}

	for _, dt := range []time.Duration{0, 10 * time.Minute, 47 * time.Minute} {
		p := m.Position(epoch.Add(dt))
		if got := p.Norm() - EarthRadius; math.Abs(got-550_000) > 1 {
			t.Fatalf("altitude at +%s = %.2f, want 550000", dt, got)
		}
	}
	if m.Position(epoch) == m.Position(epoch.Add(time.Minute)) {
		t.Fatalf("expected circular orbit to move")
	}
}

func TestEarthFixedMotion_OnSurface(t *testing.T) {
	m := &EarthFixedMotion{Latitude: 48.2, Longitude: 16.37}
	p := m.Position(time.Now())
	if math.Abs(p.Norm()-EarthRadius) > 1e-6 {
		t.Fatalf("ground station radius = %f, want %f", p.Norm(), EarthRadius)
	}
	if p.Z <= 0 {
		t.Fatalf("northern hemisphere site has Z = %f", p.Z)
	}
}
