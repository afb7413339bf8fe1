package topology

import (
	"context"
	"fmt"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Loop adds one redundant link to a node whose inner protocol left it with
// spare degree. The new link is the nearest unestablished candidate within
// range whose endpoints both have fewer than Neighbours established links.
type Loop struct {
	inner Protocol
	net   *core.Network
	reg   *Registry
	cfg   Config

	mu    sync.Mutex
	mount mountState
}

// NewLoop wraps inner, which is usually a Filter.
func NewLoop(inner Protocol, net *core.Network, reg *Registry, cfg Config) *Loop {
	return &Loop{inner: inner, net: net, reg: reg, cfg: cfg.withDefaults()}
}

// Mount binds the wrapper and the inner protocol to node.
func (l *Loop) Mount(node *core.Node) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.mount.mount(node, "loop"); err != nil {
		return err
	}
	return l.inner.Mount(node)
}

func (l *Loop) AddLink(id core.LinkID) error    { return l.inner.AddLink(id) }
func (l *Loop) Connect(id core.LinkID) error    { return l.inner.Connect(id) }
func (l *Loop) Disconnect(id core.LinkID) error { return l.inner.Disconnect(id) }
func (l *Loop) Links() []core.LinkID            { return l.inner.Links() }
func (l *Loop) Established() []core.LinkID      { return l.inner.Established() }

func (l *Loop) UpdateLinks(ctx context.Context) ([]core.LinkID, error) {
	l.mu.Lock()
	node, err := l.mount.mounted("loop")
	l.mu.Unlock()
	if err != nil {
		return nil, err
	}

	established, err := l.inner.UpdateLinks(ctx)
	if err != nil {
		return nil, err
	}
	if len(established) == 0 || len(established) >= l.cfg.Neighbours-1 {
		return established, nil
	}

	current := newLinkSet(established...)
	best, found := core.LinkID(0), false
	bestDistance := l.cfg.MaxDistance
	for _, id := range l.inner.Links() {
		if current.has(id) || l.net.Established(id) || !l.net.IsReachable(id) {
			continue
		}
		d := l.net.Distance(id)
		if d > bestDistance || (found && d == bestDistance && id > best) {
			continue
		}
		other := l.net.Other(id, node.ID)
		if l.net.EstablishedDegree(node.ID, core.LinkISL) >= l.cfg.Neighbours ||
			l.net.EstablishedDegree(other, core.LinkISL) >= l.cfg.Neighbours {
			continue
		}
		best, bestDistance, found = id, d, true
	}
	if !found {
		return established, nil
	}

	if err := l.inner.Connect(best); err != nil {
		return nil, err
	}
	other := l.net.Other(best, node.ID)
	if p, ok := l.reg.Lookup(other); ok {
		if err := p.Connect(best); err != nil {
			return nil, fmt.Errorf("connect loop link on node %d: %w", other, err)
		}
	}
	current.add(best)
	return current.sorted(), nil
}
