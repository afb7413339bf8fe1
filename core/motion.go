package core

import (
	"fmt"
	"math"
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"
)

// EarthMu is the Earth's gravitational parameter in m^3/s^2.
const EarthMu = 398_600_441_800_000.0

// MotionModel returns a node's ECEF position for a simulation time.
type MotionModel interface {
	Position(simTime time.Time) Vec3
}

// StaticMotion keeps a node at a fixed position.
type StaticMotion struct {
	Pos Vec3
}

// Position returns the fixed position.
func (m *StaticMotion) Position(time.Time) Vec3 { return m.Pos }

// EarthFixedMotion places a node on the Earth's surface. ECEF coordinates
// rotate with the Earth, so the position does not depend on time.
type EarthFixedMotion struct {
	Latitude  float64
	Longitude float64
	Altitude  float64
}

// Position returns the ECEF position of the site.
func (m *EarthFixedMotion) Position(time.Time) Vec3 {
	return FromLatLon(m.Latitude, m.Longitude, m.Altitude, 0)
}

// SGP4Motion propagates a TLE with SGP4.
type SGP4Motion struct {
	sat satellite.Satellite
}

// NewSGP4Motion constructs an orbital model from TLE lines.
func NewSGP4Motion(line1, line2 string) (*SGP4Motion, error) {
	line1 = strings.TrimRight(line1, "\r\n ")
	line2 = strings.TrimRight(line2, "\r\n ")
	if len(line1) < 69 || !strings.HasPrefix(line1, "1 ") {
		return nil, fmt.Errorf("malformed TLE line 1: %q", line1)
	}
	if len(line2) < 69 || !strings.HasPrefix(line2, "2 ") {
		return nil, fmt.Errorf("malformed TLE line 2: %q", line2)
	}
	sat := satellite.TLEToSat(line1, line2, satellite.GravityWGS72)
	return &SGP4Motion{sat: sat}, nil
}

// Position propagates the satellite to simTime. go-satellite works in
// kilometres; positions are returned in metres.
func (m *SGP4Motion) Position(simTime time.Time) Vec3 {
	simTime = simTime.UTC()
	year, month, day := simTime.Date()
	hour, min, sec := simTime.Clock()

	posECI, _ := satellite.Propagate(m.sat, year, int(month), day, hour, min, sec)
	const kmToM = 1000.0
	return eciToECEF(Vec3{X: posECI.X, Y: posECI.Y, Z: posECI.Z}, simTime).Scale(kmToM)
}

// CircularOrbitMotion moves a node on a circular Keplerian orbit. It is used
// for synthetic constellations where no TLE is available.
type CircularOrbitMotion struct {
	Altitude    float64 // metres above EarthRadius
	Inclination float64 // degrees
	RAAN        float64 // degrees
	Phase       float64 // argument of latitude at Epoch, degrees
	Epoch       time.Time
}

// Position returns the ECEF position at simTime.
func (m *CircularOrbitMotion) Position(simTime time.Time) Vec3 {
	r := EarthRadius + m.Altitude
	n := math.Sqrt(EarthMu / (r * r * r))
	dt := simTime.Sub(m.Epoch).Seconds()
	u := m.Phase*math.Pi/180 + n*dt
	inc := m.Inclination * math.Pi / 180
	raan := m.RAAN * math.Pi / 180

	// Orbital plane, then inclination around X, then RAAN around Z.
	x, y := r*math.Cos(u), r*math.Sin(u)
	yi, zi := y*math.Cos(inc), y*math.Sin(inc)
	eci := Vec3{
		X: x*math.Cos(raan) - yi*math.Sin(raan),
		Y: x*math.Sin(raan) + yi*math.Cos(raan),
		Z: zi,
	}
	return eciToECEF(eci, simTime)
}

func eciToECEF(eci Vec3, t time.Time) Vec3 {
	t = t.UTC()
	year, month, day := t.Date()
	hour, min, sec := t.Clock()
	jd := satellite.JDay(year, int(month), day, hour, min, sec)
	gmst := satellite.ThetaG_JD(jd)
	ecef := satellite.ECIToECEF(satellite.Vector3{X: eci.X, Y: eci.Y, Z: eci.Z}, gmst)
	return Vec3{X: ecef.X, Y: ecef.Y, Z: ecef.Z}
}
