package topology

import (
	"cmp"
	"container/heap"
	"slices"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// linkSet is an unordered set of link ids.
type linkSet map[core.LinkID]struct{}

func newLinkSet(ids ...core.LinkID) linkSet {
	s := make(linkSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

func (s linkSet) add(id core.LinkID) bool {
	if _, ok := s[id]; ok {
		return false
	}
	s[id] = struct{}{}
	return true
}

func (s linkSet) remove(id core.LinkID) bool {
	if _, ok := s[id]; !ok {
		return false
	}
	delete(s, id)
	return true
}

func (s linkSet) has(id core.LinkID) bool {
	_, ok := s[id]
	return ok
}

// sorted returns the ids in ascending order.
func (s linkSet) sorted() []core.LinkID {
	out := make([]core.LinkID, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// weightedLink pairs a link with its current distance in metres.
type weightedLink struct {
	id       core.LinkID
	a, b     core.NodeID
	distance float64
}

// compareWeighted orders links by distance, then id.
func compareWeighted(x, y weightedLink) int {
	return cmp.Or(cmp.Compare(x.distance, y.distance), cmp.Compare(x.id, y.id))
}

// linkQueue is a min-heap of weighted links in compareWeighted order.
type linkQueue []weightedLink

func (q linkQueue) Len() int           { return len(q) }
func (q linkQueue) Less(i, j int) bool { return compareWeighted(q[i], q[j]) < 0 }
func (q linkQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *linkQueue) Push(x any)        { *q = append(*q, x.(weightedLink)) }
func (q *linkQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	*q = old[:n-1]
	return item
}

func (q *linkQueue) push(l weightedLink) { heap.Push(q, l) }
func (q *linkQueue) pop() weightedLink  { return heap.Pop(q).(weightedLink) }

// weigh snapshots the geometry of ids, keeping only links that clear the
// Earth and are at most maxDistance long.
func weigh(net *core.Network, ids []core.LinkID, maxDistance float64) []weightedLink {
	out := make([]weightedLink, 0, len(ids))
	for _, id := range ids {
		if !net.IsReachable(id) {
			continue
		}
		d := net.Distance(id)
		if d > maxDistance {
			continue
		}
		l := net.Link(id)
		out = append(out, weightedLink{id: id, a: l.A, b: l.B, distance: d})
	}
	return out
}

// reconcile flips the established flags so that exactly next is
// established among prev ∪ next.
func reconcile(net *core.Network, prev, next linkSet) {
	for id := range next {
		if !prev.has(id) || !net.Established(id) {
			net.SetEstablished(id, true)
		}
	}
	for id := range prev {
		if !next.has(id) {
			net.SetEstablished(id, false)
		}
	}
}
