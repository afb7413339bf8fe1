package topology

import (
	"context"
	"slices"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// SmartLoop closes the leaves of a shared spanning forest. Every satellite
// that ends up with exactly one link is paired with the nearest other leaf
// in range, provided both stay below Neighbours links. Like the forest it
// wraps, one instance is shared by all satellites.
type SmartLoop struct {
	base Protocol
	net  *core.Network
	cfg  Config
	obs  Observer

	mu    sync.Mutex
	mount mountState

	gate gate[[]core.LinkID]
}

// NewSmartLoop wraps the shared protocol base.
func NewSmartLoop(base Protocol, net *core.Network, cfg Config, obs Observer) *SmartLoop {
	if obs == nil {
		obs = nopObserver{}
	}
	return &SmartLoop{base: base, net: net, cfg: cfg.withDefaults(), obs: obs}
}

// Mount binds the wrapper and the base protocol to the anchor node.
func (s *SmartLoop) Mount(node *core.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.mount.mount(node, "smart_loop"); err != nil {
		return err
	}
	return s.base.Mount(node)
}

func (s *SmartLoop) AddLink(id core.LinkID) error    { return s.base.AddLink(id) }
func (s *SmartLoop) Connect(id core.LinkID) error    { return s.base.Connect(id) }
func (s *SmartLoop) Disconnect(id core.LinkID) error { return s.base.Disconnect(id) }
func (s *SmartLoop) Links() []core.LinkID            { return s.base.Links() }
func (s *SmartLoop) Established() []core.LinkID      { return s.base.Established() }

// Computations returns how many times leaf pairing actually ran.
func (s *SmartLoop) Computations() int64 { return s.gate.count() }

func (s *SmartLoop) UpdateLinks(ctx context.Context) ([]core.LinkID, error) {
	s.mu.Lock()
	node, err := s.mount.mounted("smart_loop")
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result, cached, err := s.gate.do(ctx, node.Position(), s.compute)
	s.obs.TopologyComputation("smart_loop", cached)
	return result, err
}

func (s *SmartLoop) compute(ctx context.Context) ([]core.LinkID, error) {
	tree, err := s.base.UpdateLinks(ctx)
	if err != nil {
		return nil, err
	}

	result := newLinkSet(tree...)
	degree := make(map[core.NodeID]int)
	for _, id := range tree {
		l := s.net.Link(id)
		degree[l.A]++
		degree[l.B]++
	}
	leaf := make(map[core.NodeID]bool)
	var leaves []core.NodeID
	for id, d := range degree {
		if d == 1 {
			leaf[id] = true
			leaves = append(leaves, id)
		}
	}
	slices.Sort(leaves)

	adjacent := make(map[core.NodeID][]weightedLink)
	for _, l := range weigh(s.net, s.base.Links(), s.cfg.MaxDistance) {
		if !leaf[l.a] || !leaf[l.b] {
			continue
		}
		adjacent[l.a] = append(adjacent[l.a], l)
		adjacent[l.b] = append(adjacent[l.b], l)
	}

	for _, sat := range leaves {
		if degree[sat] != 1 {
			continue
		}
		candidates := slices.Clone(adjacent[sat])
		slices.SortFunc(candidates, compareWeighted)
		for _, l := range candidates {
			other := l.a
			if other == sat {
				other = l.b
			}
			if result.has(l.id) || degree[other] >= s.cfg.Neighbours || degree[sat] >= s.cfg.Neighbours {
				continue
			}
			if err := s.base.Connect(l.id); err != nil {
				return nil, err
			}
			result.add(l.id)
			degree[sat]++
			degree[other]++
			break
		}
	}
	return result.sorted(), nil
}
