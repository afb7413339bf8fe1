package constellation

import (
	"context"
	"fmt"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/computing"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
)

// Populate adds satellites with edge ledgers and ground stations with cloud
// ledgers to net. Node names must be unique across both sets.
func Populate(ctx context.Context, net *core.Network, ledgers *computing.Builder, sats []Satellite, stations []GroundStation, log logging.Logger) error {
	if log == nil {
		log = logging.Noop()
	}
	seen := make(map[string]bool, len(sats)+len(stations))
	claim := func(name string) error {
		if name == "" {
			return fmt.Errorf("%w: node without a name", core.ErrConfiguration)
		}
		if seen[name] {
			return fmt.Errorf("%w: duplicate node name %q", core.ErrConfiguration, name)
		}
		if _, err := net.NodeByName(name); err == nil {
			return fmt.Errorf("%w: node %q already in the network", core.ErrConfiguration, name)
		}
		seen[name] = true
		return nil
	}

	for _, s := range sats {
		if err := claim(s.Name); err != nil {
			return err
		}
	}
	for _, g := range stations {
		if err := g.Validate(); err != nil {
			return fmt.Errorf("%w: %v", core.ErrConfiguration, err)
		}
		if err := claim(g.Name); err != nil {
			return err
		}
	}

	for _, s := range sats {
		net.AddNode(s.Name, core.KindSatellite, s.Motion, ledgers.Build(computing.ClassEdge))
	}
	for _, g := range stations {
		net.AddNode(g.Name, core.KindGroundStation, g.Motion(), ledgers.Build(computing.ClassCloud))
	}
	log.Info(ctx, "constellation populated",
		logging.Int("satellites", len(sats)),
		logging.Int("ground_stations", len(stations)),
	)
	return nil
}
