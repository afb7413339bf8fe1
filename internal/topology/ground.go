package topology

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// GroundNearest keeps a ground station connected to its nearest satellite.
// Ground links are created in the arena the first time a satellite is
// chosen and toggled afterwards.
type GroundNearest struct {
	net *core.Network

	mu      sync.Mutex
	mount   mountState
	links   linkSet
	current core.LinkID
	active  bool
}

// NewGroundNearest returns an unmounted ground-link protocol.
func NewGroundNearest(net *core.Network) *GroundNearest {
	return &GroundNearest{net: net, links: newLinkSet()}
}

func (g *GroundNearest) Mount(node *core.Node) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if node != nil && node.Kind != core.KindGroundStation {
		return fmt.Errorf("%w: ground protocol mounted on %s", core.ErrMount, node)
	}
	return g.mount.mount(node, "ground_nearest")
}

func (g *GroundNearest) AddLink(id core.LinkID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.mount.mounted("ground_nearest"); err != nil {
		return err
	}
	g.links.add(id)
	return nil
}

func (g *GroundNearest) Connect(id core.LinkID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.mount.mounted("ground_nearest"); err != nil {
		return err
	}
	g.switchLocked(id)
	return nil
}

func (g *GroundNearest) Disconnect(id core.LinkID) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, err := g.mount.mounted("ground_nearest"); err != nil {
		return err
	}
	if g.active && g.current == id {
		g.net.SetEstablished(id, false)
		g.active = false
	}
	return nil
}

func (g *GroundNearest) Links() []core.LinkID {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.links.sorted()
}

func (g *GroundNearest) Established() []core.LinkID {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.active {
		return nil
	}
	return []core.LinkID{g.current}
}

func (g *GroundNearest) UpdateLinks(_ context.Context) ([]core.LinkID, error) {
	g.mu.Lock()
	node, err := g.mount.mounted("ground_nearest")
	g.mu.Unlock()
	if err != nil {
		return nil, err
	}

	pos := node.Position()
	var nearest *core.Node
	best := math.Inf(1)
	for _, sat := range g.net.NodesOfKind(core.KindSatellite) {
		if d := pos.DistanceTo(sat.Position()); d < best {
			best, nearest = d, sat
		}
	}
	if nearest == nil {
		return nil, nil
	}

	id, err := g.net.AddLink(node.ID, nearest.ID, core.LinkGround)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.links.add(id)
	g.switchLocked(id)
	return []core.LinkID{id}, nil
}

func (g *GroundNearest) switchLocked(id core.LinkID) {
	if g.active && g.current != id {
		g.net.SetEstablished(g.current, false)
	}
	g.current, g.active = id, true
	g.net.SetEstablished(id, true)
}
