package topology

import "github.com/signalsfoundry/constellation-testbed/core"

// unionFind is a disjoint-set forest over node ids with path compression.
// Unknown ids are their own representative.
type unionFind struct {
	parent map[core.NodeID]core.NodeID
}

func newUnionFind(capacity int) *unionFind {
	return &unionFind{parent: make(map[core.NodeID]core.NodeID, capacity)}
}

// find returns the representative of x and flattens the path to it.
func (u *unionFind) find(x core.NodeID) core.NodeID {
	root := x
	for {
		p, ok := u.parent[root]
		if !ok || p == root {
			break
		}
		root = p
	}
	for x != root {
		next, ok := u.parent[x]
		if !ok {
			break
		}
		u.parent[x] = root
		x = next
	}
	return root
}

// union merges the sets of a and b and reports false when they were
// already joined.
func (u *unionFind) union(a, b core.NodeID) bool {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return false
	}
	u.parent[rb] = ra
	return true
}

func (u *unionFind) connected(a, b core.NodeID) bool {
	return u.find(a) == u.find(b)
}
