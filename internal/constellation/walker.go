package constellation

import (
	"fmt"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Walker describes a Walker-delta shell of circular orbits.
type Walker struct {
	Planes      int       `yaml:"planes"`
	PerPlane    int       `yaml:"per_plane"`
	Phasing     int       `yaml:"phasing"`
	Altitude    float64   `yaml:"altitude"`
	Inclination float64   `yaml:"inclination"`
	Epoch       time.Time `yaml:"epoch"`
}

func (w Walker) Validate() error {
	if w.Planes <= 0 || w.PerPlane <= 0 {
		return fmt.Errorf("walker shell needs positive planes and per_plane, got %d/%d", w.Planes, w.PerPlane)
	}
	if w.Phasing < 0 || w.Phasing >= w.Planes {
		return fmt.Errorf("walker phasing %d must be in [0, %d)", w.Phasing, w.Planes)
	}
	if w.Altitude <= 0 {
		return fmt.Errorf("walker altitude %v must be positive", w.Altitude)
	}
	return nil
}

// Satellite is a named orbital model produced by a generator or loader.
type Satellite struct {
	Name   string
	Motion core.MotionModel
}

// Satellites lays out Planes*PerPlane satellites. Planes are spread evenly
// in RAAN over 360 degrees and neighbouring planes are offset in phase by
// Phasing*360/(Planes*PerPlane) degrees.
func (w Walker) Satellites() []Satellite {
	total := w.Planes * w.PerPlane
	out := make([]Satellite, 0, total)
	for p := 0; p < w.Planes; p++ {
		raan := 360 * float64(p) / float64(w.Planes)
		for s := 0; s < w.PerPlane; s++ {
			phase := 360*float64(s)/float64(w.PerPlane) + 360*float64(w.Phasing*p)/float64(total)
			out = append(out, Satellite{
				Name: fmt.Sprintf("W%02d-%02d", p, s),
				Motion: &core.CircularOrbitMotion{
					Altitude:    w.Altitude,
					Inclination: w.Inclination,
					RAAN:        raan,
					Phase:       phase,
					Epoch:       w.Epoch,
				},
			})
		}
	}
	return out
}

// FromTLE converts loaded records into SGP4 satellites.
func FromTLE(records []TLE) ([]Satellite, error) {
	out := make([]Satellite, 0, len(records))
	for _, r := range records {
		m, err := r.Motion()
		if err != nil {
			return nil, err
		}
		out = append(out, Satellite{Name: r.Name, Motion: m})
	}
	return out, nil
}
