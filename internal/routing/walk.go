package routing

import (
	"cmp"
	"container/heap"
	"context"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// hop is a node reached by walk. parent is its predecessor on the path from
// the source, link the link from parent and firstHop the source's neighbour
// on that path.
type hop struct {
	node     core.NodeID
	parent   core.NodeID
	link     core.LinkID
	firstHop core.NodeID
	latency  time.Duration
}

type frontier []hop

func (f frontier) Len() int { return len(f) }
func (f frontier) Less(i, j int) bool {
	return cmp.Or(cmp.Compare(f[i].latency, f[j].latency), cmp.Compare(f[i].node, f[j].node)) < 0
}
func (f frontier) Swap(i, j int) { f[i], f[j] = f[j], f[i] }
func (f *frontier) Push(x any)   { *f = append(*f, x.(hop)) }
func (f *frontier) Pop() any {
	old := *f
	h := old[len(old)-1]
	*f = old[:len(old)-1]
	return h
}

// walk visits every node reachable from source over established links in
// order of accumulated latency. The source itself is not visited.
func walk(ctx context.Context, net *core.Network, source core.NodeID, visit func(hop) error) error {
	visited := map[core.NodeID]bool{source: true}
	q := &frontier{}
	for _, id := range net.EstablishedLinks(source) {
		other := net.Other(id, source)
		heap.Push(q, hop{node: other, parent: source, link: id, firstHop: other, latency: net.Latency(id)})
	}

	for q.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}
		h := heap.Pop(q).(hop)
		if visited[h.node] {
			continue
		}
		visited[h.node] = true
		if err := visit(h); err != nil {
			return err
		}
		for _, id := range net.EstablishedLinks(h.node) {
			other := net.Other(id, h.node)
			if visited[other] {
				continue
			}
			heap.Push(q, hop{
				node:     other,
				parent:   h.node,
				link:     id,
				firstHop: h.firstHop,
				latency:  h.latency + net.Latency(id),
			})
		}
	}
	return nil
}
