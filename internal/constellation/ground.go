package constellation

import (
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// GroundStation is an Earth-fixed site.
type GroundStation struct {
	Name      string  `yaml:"name" json:"name"`
	Latitude  float64 `yaml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" json:"longitude"`
	Altitude  float64 `yaml:"altitude" json:"altitude"`
}

// Validate checks the coordinate ranges.
func (g GroundStation) Validate() error {
	switch {
	case g.Name == "":
		return errors.New("ground station has no name")
	case g.Latitude < -90 || g.Latitude > 90:
		return fmt.Errorf("ground station %q latitude %v out of range", g.Name, g.Latitude)
	case g.Longitude < -180 || g.Longitude > 180:
		return fmt.Errorf("ground station %q longitude %v out of range", g.Name, g.Longitude)
	}
	return nil
}

// Motion returns the Earth-fixed model for the site.
func (g GroundStation) Motion() core.MotionModel {
	return &core.EarthFixedMotion{Latitude: g.Latitude, Longitude: g.Longitude, Altitude: g.Altitude}
}

// DefaultGroundStations is a catalogue of large data-centre cities.
func DefaultGroundStations() []GroundStation {
	return []GroundStation{
		{Name: "Vienna", Latitude: 48.2082, Longitude: 16.3738},
		{Name: "Frankfurt", Latitude: 50.1109, Longitude: 8.6821},
		{Name: "London", Latitude: 51.5072, Longitude: -0.1276},
		{Name: "Madrid", Latitude: 40.4168, Longitude: -3.7038},
		{Name: "Stockholm", Latitude: 59.3293, Longitude: 18.0686},
		{Name: "New York", Latitude: 40.7128, Longitude: -74.0060},
		{Name: "Ashburn", Latitude: 39.0438, Longitude: -77.4874},
		{Name: "Los Angeles", Latitude: 34.0522, Longitude: -118.2437},
		{Name: "Sao Paulo", Latitude: -23.5558, Longitude: -46.6396},
		{Name: "Johannesburg", Latitude: -26.2041, Longitude: 28.0473},
		{Name: "Dubai", Latitude: 25.2048, Longitude: 55.2708},
		{Name: "Mumbai", Latitude: 19.0760, Longitude: 72.8777},
		{Name: "Singapore", Latitude: 1.3521, Longitude: 103.8198},
		{Name: "Tokyo", Latitude: 35.6762, Longitude: 139.6503},
		{Name: "Sydney", Latitude: -33.8688, Longitude: 151.2093},
	}
}

// ReadGroundStations decodes a YAML list of ground stations.
func ReadGroundStations(r io.Reader) ([]GroundStation, error) {
	var out []GroundStation
	if err := yaml.NewDecoder(r).Decode(&out); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode ground stations: %w", err)
	}
	seen := make(map[string]bool, len(out))
	for _, g := range out {
		if err := g.Validate(); err != nil {
			return nil, err
		}
		if seen[g.Name] {
			return nil, fmt.Errorf("ground station %q listed twice", g.Name)
		}
		seen[g.Name] = true
	}
	return out, nil
}
