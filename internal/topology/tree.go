package topology

import (
	"context"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// treeAlgorithm computes a forest over the weighted candidate links.
type treeAlgorithm func(ctx context.Context, anchor core.NodeID, candidates []weightedLink) (linkSet, error)

// Tree is a constellation-wide protocol. One instance is shared by every
// satellite through a Filter; it is mounted once on an anchor satellite whose
// position keys the single-flight cache.
type Tree struct {
	name string
	net  *core.Network
	cfg  Config
	obs  Observer
	algo treeAlgorithm

	mu          sync.Mutex
	mount       mountState
	links       linkSet
	established linkSet

	gate gate[[]core.LinkID]
}

func newTree(name string, net *core.Network, cfg Config, obs Observer, algo treeAlgorithm) *Tree {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Tree{
		name:        name,
		net:         net,
		cfg:         cfg.withDefaults(),
		obs:         obs,
		algo:        algo,
		links:       newLinkSet(),
		established: newLinkSet(),
	}
}

// NewMST returns the global minimum spanning forest protocol (Kruskal).
func NewMST(net *core.Network, cfg Config, obs Observer) *Tree {
	return newTree("mst", net, cfg, obs, kruskal)
}

// Name returns the strategy name.
func (t *Tree) Name() string { return t.name }

func (t *Tree) Mount(node *core.Node) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.mount.mount(node, t.name)
}

func (t *Tree) AddLink(id core.LinkID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.mount.mounted(t.name); err != nil {
		return err
	}
	t.links.add(id)
	return nil
}

func (t *Tree) Connect(id core.LinkID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.mount.mounted(t.name); err != nil {
		return err
	}
	t.established.add(id)
	t.net.SetEstablished(id, true)
	return nil
}

func (t *Tree) Disconnect(id core.LinkID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, err := t.mount.mounted(t.name); err != nil {
		return err
	}
	if t.established.remove(id) {
		t.net.SetEstablished(id, false)
	}
	return nil
}

func (t *Tree) Links() []core.LinkID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.links.sorted()
}

func (t *Tree) Established() []core.LinkID {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.established.sorted()
}

// Computations returns how many times the algorithm actually ran.
func (t *Tree) Computations() int64 { return t.gate.count() }

func (t *Tree) UpdateLinks(ctx context.Context) ([]core.LinkID, error) {
	t.mu.Lock()
	node, err := t.mount.mounted(t.name)
	t.mu.Unlock()
	if err != nil {
		return nil, err
	}

	result, cached, err := t.gate.do(ctx, node.Position(), func(ctx context.Context) ([]core.LinkID, error) {
		return t.compute(ctx, node.ID)
	})
	t.obs.TopologyComputation(t.name, cached)
	return result, err
}

func (t *Tree) compute(ctx context.Context, anchor core.NodeID) ([]core.LinkID, error) {
	t.mu.Lock()
	ids := t.links.sorted()
	t.mu.Unlock()

	candidates := weigh(t.net, ids, t.cfg.MaxDistance)
	next, err := t.algo(ctx, anchor, candidates)
	if err != nil {
		return nil, err
	}

	t.mu.Lock()
	reconcile(t.net, t.established, next)
	t.established = next
	t.mu.Unlock()
	return next.sorted(), nil
}

// kruskal accepts links in ascending distance order, skipping links whose
// endpoints are already joined, until vertices-1 links are accepted.
func kruskal(_ context.Context, _ core.NodeID, candidates []weightedLink) (linkSet, error) {
	vertices := make(map[core.NodeID]struct{})
	q := make(linkQueue, 0, len(candidates))
	for _, l := range candidates {
		vertices[l.a] = struct{}{}
		vertices[l.b] = struct{}{}
		q.push(l)
	}

	uf := newUnionFind(len(vertices))
	accepted := newLinkSet()
	for q.Len() > 0 && len(accepted) < len(vertices)-1 {
		l := q.pop()
		if !uf.union(l.a, l.b) {
			continue
		}
		accepted.add(l.id)
	}
	return accepted, nil
}
