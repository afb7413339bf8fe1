package core

import (
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-testbed/internal/computing"
)

type pairKey struct {
	lo, hi NodeID
}

func makePair(a, b NodeID) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{lo: a, hi: b}
}

// Network is the arena holding every node and every candidate link of a
// simulation. Links reference nodes by id; the established state of each
// link is kept in a side table indexed by LinkID.
type Network struct {
	mu          sync.RWMutex
	nodes       []*Node
	byName      map[string]NodeID
	links       []Link
	established []bool
	pairs       map[pairKey]LinkID
	adjacency   [][]LinkID
}

// NewNetwork returns an empty arena.
func NewNetwork() *Network {
	return &Network{
		byName: make(map[string]NodeID),
		pairs:  make(map[pairKey]LinkID),
	}
}

// AddNode creates a node. A nil ledger is replaced by computing.None().
func (n *Network) AddNode(name string, kind NodeKind, motion MotionModel, ledger *computing.Computing) *Node {
	if ledger == nil {
		ledger = computing.None()
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	node := &Node{
		ID:        NodeID(len(n.nodes)),
		Name:      name,
		Kind:      kind,
		motion:    motion,
		computing: ledger,
	}
	if motion != nil {
		if s, ok := motion.(*StaticMotion); ok {
			node.position = s.Pos
		}
	}
	n.nodes = append(n.nodes, node)
	n.adjacency = append(n.adjacency, nil)
	if name != "" {
		n.byName[name] = node.ID
	}
	return node
}

// Node returns the node with the given id or nil.
func (n *Network) Node(id NodeID) *Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if id < 0 || int(id) >= len(n.nodes) {
		return nil
	}
	return n.nodes[id]
}

// NodeByName looks a node up by its name.
func (n *Network) NodeByName(name string) (*Node, error) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNodeNotFound, name)
	}
	return n.nodes[id], nil
}

// Nodes returns a snapshot of all nodes in id order.
func (n *Network) Nodes() []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	out := make([]*Node, len(n.nodes))
	copy(out, n.nodes)
	return out
}

// NodesOfKind returns all nodes of the given kind in id order.
func (n *Network) NodesOfKind(kind NodeKind) []*Node {
	n.mu.RLock()
	defer n.mu.RUnlock()
	var out []*Node
	for _, node := range n.nodes {
		if node.Kind == kind {
			out = append(out, node)
		}
	}
	return out
}

// Len returns the number of nodes.
func (n *Network) Len() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.nodes)
}

// AddLink registers a candidate link between a and b and returns its id.
// Registering the same unordered pair again returns the existing id.
func (n *Network) AddLink(a, b NodeID, kind LinkKind) (LinkID, error) {
	if a == b {
		return 0, fmt.Errorf("link endpoints must differ: %d", a)
	}

	n.mu.Lock()
	defer n.mu.Unlock()

	if a < 0 || int(a) >= len(n.nodes) {
		return 0, fmt.Errorf("%w: id %d", ErrNodeNotFound, a)
	}
	if b < 0 || int(b) >= len(n.nodes) {
		return 0, fmt.Errorf("%w: id %d", ErrNodeNotFound, b)
	}

	key := makePair(a, b)
	if id, ok := n.pairs[key]; ok {
		return id, nil
	}

	id := LinkID(len(n.links))
	n.links = append(n.links, Link{ID: id, A: a, B: b, Kind: kind})
	n.established = append(n.established, false)
	n.pairs[key] = id
	n.adjacency[a] = append(n.adjacency[a], id)
	n.adjacency[b] = append(n.adjacency[b], id)
	return id, nil
}

// Link returns the link value for id.
func (n *Network) Link(id LinkID) Link {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.links[id]
}

// LinkBetween returns the link joining a and b, if registered.
func (n *Network) LinkBetween(a, b NodeID) (LinkID, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	id, ok := n.pairs[makePair(a, b)]
	return id, ok
}

// LinkCount returns the number of registered links.
func (n *Network) LinkCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.links)
}

// LinksOf returns every candidate link touching node.
func (n *Network) LinksOf(node NodeID) []LinkID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if node < 0 || int(node) >= len(n.adjacency) {
		return nil
	}
	out := make([]LinkID, len(n.adjacency[node]))
	copy(out, n.adjacency[node])
	return out
}

// Other returns the endpoint of link opposite to node.
func (n *Network) Other(link LinkID, node NodeID) NodeID {
	return n.Link(link).Other(node)
}

// Distance returns the current length of the link in metres.
func (n *Network) Distance(id LinkID) float64 {
	l := n.Link(id)
	return n.Node(l.A).Position().DistanceTo(n.Node(l.B).Position())
}

// Latency returns the current propagation delay of the link.
func (n *Network) Latency(id LinkID) time.Duration {
	l := n.Link(id)
	return PropagationDelay(n.Distance(id), l.Kind)
}

// Bandwidth returns the link bandwidth in bits per second.
func (n *Network) Bandwidth(id LinkID) float64 {
	return n.Link(id).Kind.Bandwidth()
}

// IsReachable reports whether the link has line of sight. Ground links are
// always reachable; inter-satellite links must clear the Earth.
func (n *Network) IsReachable(id LinkID) bool {
	l := n.Link(id)
	if l.Kind == LinkGround {
		return true
	}
	return clearsEarth(n.Node(l.A).Position(), n.Node(l.B).Position())
}

// Established reports the established flag of the link.
func (n *Network) Established(id LinkID) bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.established[id]
}

// SetEstablished flips the established flag of the link.
func (n *Network) SetEstablished(id LinkID, established bool) {
	n.mu.Lock()
	n.established[id] = established
	n.mu.Unlock()
}

// EstablishedLinks returns the established links touching node.
func (n *Network) EstablishedLinks(node NodeID) []LinkID {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if node < 0 || int(node) >= len(n.adjacency) {
		return nil
	}
	var out []LinkID
	for _, id := range n.adjacency[node] {
		if n.established[id] {
			out = append(out, id)
		}
	}
	return out
}

// EstablishedDegree counts the established links of the given kind
// touching node.
func (n *Network) EstablishedDegree(node NodeID, kind LinkKind) int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if node < 0 || int(node) >= len(n.adjacency) {
		return 0
	}
	count := 0
	for _, id := range n.adjacency[node] {
		if n.established[id] && n.links[id].Kind == kind {
			count++
		}
	}
	return count
}

// EstablishedCount returns the total number of established links.
func (n *Network) EstablishedCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	count := 0
	for _, e := range n.established {
		if e {
			count++
		}
	}
	return count
}
