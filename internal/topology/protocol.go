// Package topology decides, every simulation tick, which candidate links of
// the constellation are established.
package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Protocol selects the established links of one mounted node.
//
// Every method fails with core.ErrMount until Mount has been called, and
// Mount itself fails when called twice.
type Protocol interface {
	Mount(node *core.Node) error
	AddLink(id core.LinkID) error
	Connect(id core.LinkID) error
	Disconnect(id core.LinkID) error
	// UpdateLinks recomputes and returns the established links. The
	// returned slice is shared and must not be modified.
	UpdateLinks(ctx context.Context) ([]core.LinkID, error)
	Links() []core.LinkID
	Established() []core.LinkID
}

// Config tunes the link selection strategies.
type Config struct {
	// Protocol is the strategy name used by the Builder.
	Protocol string
	// Neighbours is K for nearest-K and the degree target of the loop wrappers.
	Neighbours int
	// MaxDistance caps inter-satellite link length in metres.
	MaxDistance float64
	// MaxDegree caps the per-satellite degree of the PST protocol.
	MaxDegree int
	// Workers bounds PST partition parallelism.
	Workers int
}

func (c Config) withDefaults() Config {
	if c.Neighbours <= 0 {
		c.Neighbours = 4
	}
	if c.MaxDistance <= 0 {
		c.MaxDistance = core.MaxISLDistance
	}
	if c.MaxDegree <= 0 {
		c.MaxDegree = 4
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	return c
}

// Observer receives a notification for every UpdateLinks call of a caching
// protocol.
type Observer interface {
	TopologyComputation(protocol string, cached bool)
}

type nopObserver struct{}

func (nopObserver) TopologyComputation(string, bool) {}

// Registry maps node ids to the protocol mounted on them so protocols can
// push Connect and Disconnect to remote endpoints.
type Registry struct {
	mu        sync.RWMutex
	protocols map[core.NodeID]Protocol
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{protocols: make(map[core.NodeID]Protocol)}
}

// Register stores p for id.
func (r *Registry) Register(id core.NodeID, p Protocol) {
	r.mu.Lock()
	r.protocols[id] = p
	r.mu.Unlock()
}

// Lookup returns the protocol registered for id.
func (r *Registry) Lookup(id core.NodeID) (Protocol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.protocols[id]
	return p, ok
}

// mountState is embedded by every protocol to implement the single-bind rule.
type mountState struct {
	node *core.Node
}

func (m *mountState) mount(node *core.Node, protocol string) error {
	if node == nil {
		return fmt.Errorf("%w: %s mounted on nil node", core.ErrMount, protocol)
	}
	if m.node != nil {
		return fmt.Errorf("%w: %s already mounted on %s", core.ErrMount, protocol, m.node)
	}
	m.node = node
	return nil
}

func (m *mountState) mounted(protocol string) (*core.Node, error) {
	if m.node == nil {
		return nil, fmt.Errorf("%w: %s is not mounted", core.ErrMount, protocol)
	}
	return m.node, nil
}
