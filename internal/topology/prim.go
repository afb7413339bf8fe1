package topology

import (
	"context"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// NewSatelliteMST returns the satellite-centric spanning tree protocol. The
// tree is grown with Prim's algorithm from the anchor satellite, so it only
// covers the anchor's component.
func NewSatelliteMST(net *core.Network, cfg Config, obs Observer) *Tree {
	return newTree("other_mst", net, cfg, obs, prim)
}

func prim(_ context.Context, anchor core.NodeID, candidates []weightedLink) (linkSet, error) {
	adjacent := make(map[core.NodeID][]weightedLink)
	for _, l := range candidates {
		adjacent[l.a] = append(adjacent[l.a], l)
		adjacent[l.b] = append(adjacent[l.b], l)
	}

	accepted := newLinkSet()
	visited := map[core.NodeID]bool{anchor: true}
	q := make(linkQueue, 0, len(adjacent[anchor]))
	for _, l := range adjacent[anchor] {
		q.push(l)
	}

	for q.Len() > 0 && len(accepted) < len(adjacent)-1 {
		l := q.pop()
		if visited[l.a] && visited[l.b] {
			continue
		}
		next := l.a
		if visited[l.a] {
			next = l.b
		}
		visited[next] = true
		accepted.add(l.id)
		for _, e := range adjacent[next] {
			other := e.a
			if other == next {
				other = e.b
			}
			if !visited[other] {
				q.push(e)
			}
		}
	}
	return accepted, nil
}
