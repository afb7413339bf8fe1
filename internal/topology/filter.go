package topology

import (
	"context"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Filter exposes the part of a shared protocol's result that touches the
// mounted node. The shared protocol is not mounted by the Filter.
type Filter struct {
	net  *core.Network
	base Protocol

	mu          sync.Mutex
	mount       mountState
	links       linkSet
	established linkSet
}

// NewFilter wraps the shared protocol base.
func NewFilter(net *core.Network, base Protocol) *Filter {
	return &Filter{
		net:         net,
		base:        base,
		links:       newLinkSet(),
		established: newLinkSet(),
	}
}

func (f *Filter) Mount(node *core.Node) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mount.mount(node, "filter")
}

func (f *Filter) node() (*core.Node, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mount.mounted("filter")
}

func (f *Filter) AddLink(id core.LinkID) error {
	node, err := f.node()
	if err != nil {
		return err
	}
	if f.net.Link(id).Touches(node.ID) {
		f.mu.Lock()
		f.links.add(id)
		f.mu.Unlock()
	}
	return f.base.AddLink(id)
}

func (f *Filter) Connect(id core.LinkID) error {
	node, err := f.node()
	if err != nil {
		return err
	}
	if f.net.Link(id).Touches(node.ID) {
		f.mu.Lock()
		f.established.add(id)
		f.mu.Unlock()
	}
	return f.base.Connect(id)
}

func (f *Filter) Disconnect(id core.LinkID) error {
	if _, err := f.node(); err != nil {
		return err
	}
	f.mu.Lock()
	f.established.remove(id)
	f.mu.Unlock()
	return f.base.Disconnect(id)
}

func (f *Filter) Links() []core.LinkID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.links.sorted()
}

func (f *Filter) Established() []core.LinkID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.established.sorted()
}

func (f *Filter) UpdateLinks(ctx context.Context) ([]core.LinkID, error) {
	node, err := f.node()
	if err != nil {
		return nil, err
	}
	all, err := f.base.UpdateLinks(ctx)
	if err != nil {
		return nil, err
	}

	local := newLinkSet()
	for _, id := range all {
		if f.net.Link(id).Touches(node.ID) {
			local.add(id)
		}
	}

	f.mu.Lock()
	f.established = local
	f.mu.Unlock()
	return local.sorted(), nil
}
