package topology

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Nearest establishes, per satellite, outgoing links to the K nearest
// reachable candidates. The remote endpoint learns about each new link via
// Connect and records it as incoming; the established set is the union of
// outgoing and incoming links.
type Nearest struct {
	net *core.Network
	reg *Registry
	cfg Config
	obs Observer

	mu       sync.Mutex
	mount    mountState
	links    linkSet
	outgoing linkSet
	incoming linkSet

	gate gate[[]core.LinkID]
}

// NewNearest returns an unmounted nearest-K protocol.
func NewNearest(net *core.Network, reg *Registry, cfg Config, obs Observer) *Nearest {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Nearest{
		net:      net,
		reg:      reg,
		cfg:      cfg.withDefaults(),
		obs:      obs,
		links:    newLinkSet(),
		outgoing: newLinkSet(),
		incoming: newLinkSet(),
	}
}

func (n *Nearest) Mount(node *core.Node) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.mount.mount(node, "nearest")
}

func (n *Nearest) AddLink(id core.LinkID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.mount.mounted("nearest"); err != nil {
		return err
	}
	n.links.add(id)
	return nil
}

// Connect records a link selected by the remote endpoint.
func (n *Nearest) Connect(id core.LinkID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.mount.mounted("nearest"); err != nil {
		return err
	}
	n.incoming.add(id)
	return nil
}

// Disconnect drops a link the remote endpoint no longer selects. The link
// stays established while this side still selects it.
func (n *Nearest) Disconnect(id core.LinkID) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, err := n.mount.mounted("nearest"); err != nil {
		return err
	}
	n.incoming.remove(id)
	if !n.outgoing.has(id) {
		n.net.SetEstablished(id, false)
	}
	return nil
}

func (n *Nearest) Links() []core.LinkID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.links.sorted()
}

func (n *Nearest) Established() []core.LinkID {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.establishedLocked()
}

func (n *Nearest) establishedLocked() []core.LinkID {
	all := newLinkSet()
	for id := range n.outgoing {
		all.add(id)
	}
	for id := range n.incoming {
		all.add(id)
	}
	return all.sorted()
}

// Computations returns how many times the selection actually ran.
func (n *Nearest) Computations() int64 { return n.gate.count() }

func (n *Nearest) UpdateLinks(ctx context.Context) ([]core.LinkID, error) {
	n.mu.Lock()
	node, err := n.mount.mounted("nearest")
	n.mu.Unlock()
	if err != nil {
		return nil, err
	}

	_, cached, err := n.gate.do(ctx, node.Position(), func(ctx context.Context) ([]core.LinkID, error) {
		return n.compute(ctx, node)
	})
	n.obs.TopologyComputation("nearest", cached)
	if err != nil {
		return nil, err
	}
	// Incoming links may change between ticks, so the union is rebuilt.
	return n.Established(), nil
}

func (n *Nearest) compute(_ context.Context, node *core.Node) ([]core.LinkID, error) {
	n.mu.Lock()
	ids := n.links.sorted()
	n.mu.Unlock()

	type candidate struct {
		id       core.LinkID
		distance float64
	}
	candidates := make([]candidate, 0, len(ids))
	for _, id := range ids {
		if !n.net.IsReachable(id) {
			continue
		}
		candidates = append(candidates, candidate{id: id, distance: n.net.Distance(id)})
	}
	slices.SortFunc(candidates, func(a, b candidate) int {
		return cmp.Or(cmp.Compare(a.distance, b.distance), cmp.Compare(a.id, b.id))
	})
	if len(candidates) > n.cfg.Neighbours {
		candidates = candidates[:n.cfg.Neighbours]
	}

	next := newLinkSet()
	var connect []core.LinkID
	n.mu.Lock()
	prev := n.outgoing
	for _, c := range candidates {
		next.add(c.id)
		prev.remove(c.id)
		// A link the remote side already established is not announced
		// again, so the remote's incoming set misses it until the link is
		// dropped. Routers read the network flags and still see it.
		if n.net.Established(c.id) {
			continue
		}
		n.net.SetEstablished(c.id, true)
		connect = append(connect, c.id)
	}
	n.outgoing = next
	n.mu.Unlock()

	// Remote protocols are called without holding n.mu so two satellites
	// updating each other cannot deadlock.
	for _, id := range connect {
		if err := n.remote(node, id, Protocol.Connect); err != nil {
			return nil, err
		}
	}
	for id := range prev {
		if err := n.remote(node, id, Protocol.Disconnect); err != nil {
			return nil, err
		}
	}
	return next.sorted(), nil
}

func (n *Nearest) remote(node *core.Node, id core.LinkID, op func(Protocol, core.LinkID) error) error {
	other := n.net.Other(id, node.ID)
	p, ok := n.reg.Lookup(other)
	if !ok {
		return fmt.Errorf("no protocol registered for node %d", other)
	}
	return op(p, id)
}
