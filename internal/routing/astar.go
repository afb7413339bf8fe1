package routing

import (
	"cmp"
	"container/heap"
	"context"
	"slices"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// AStar searches a route on every query. It keeps no table.
type AStar struct {
	net *core.Network
	obs Observer

	mount mountState
}

// NewAStar returns an unmounted on-route router.
func NewAStar(net *core.Network, obs Observer) *AStar {
	if obs == nil {
		obs = nopObserver{}
	}
	return &AStar{net: net, obs: obs}
}

func (a *AStar) Mount(node *core.Node) error { return a.mount.mount(node, "a-star") }

func (*AStar) CanPreRouteCalc() bool { return false }
func (*AStar) CanOnRouteCalc() bool  { return true }

func (*AStar) CalculateRoutingTable(context.Context) error               { return nil }
func (*AStar) SendAdvertisements(context.Context) error                  { return nil }
func (*AStar) ReceiveAdvertisement(context.Context, Advertisement) error { return nil }
func (*AStar) AdvertiseNewService(context.Context, string) error         { return nil }

// Route returns the searched latency together with the time the search
// took, so the first wait does not pay for it twice.
func (a *AStar) Route(ctx context.Context, target *core.Node, _ *Payload) (RouteResult, error) {
	self, err := a.mount.mounted("a-star")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	latency, ok, err := a.search(ctx, self, target)
	if err != nil {
		return nil, err
	}
	a.obs.RouteRequest("a-star", ok)
	if !ok {
		return Unreachable{}, nil
	}
	return NewOnRouteResult(latency, time.Since(start)), nil
}

// RouteToService tries the hosts of service nearest first and returns the
// first reachable one.
func (a *AStar) RouteToService(ctx context.Context, service string, _ *Payload) (RouteResult, error) {
	self, err := a.mount.mounted("a-star")
	if err != nil {
		return nil, err
	}
	start := time.Now()
	if self.Computing().HostsService(service) {
		a.obs.RouteRequest("a-star", true)
		return ZeroLatency, nil
	}

	var hosts []*core.Node
	for _, n := range a.net.Nodes() {
		if n.ID != self.ID && n.Computing().HostsService(service) {
			hosts = append(hosts, n)
		}
	}
	pos := self.Position()
	slices.SortFunc(hosts, func(x, y *core.Node) int {
		return cmp.Or(cmp.Compare(pos.DistanceTo(x.Position()), pos.DistanceTo(y.Position())), cmp.Compare(x.ID, y.ID))
	})

	for _, host := range hosts {
		latency, ok, err := a.search(ctx, self, host)
		if err != nil {
			return nil, err
		}
		if ok {
			a.obs.RouteRequest("a-star", true)
			return NewOnRouteResult(latency, time.Since(start)), nil
		}
	}
	a.obs.RouteRequest("a-star", false)
	return Unreachable{}, nil
}

type openNode struct {
	node core.NodeID
	g    time.Duration
	h    time.Duration
}

type openSet []openNode

func (s openSet) Len() int { return len(s) }
func (s openSet) Less(i, j int) bool {
	fi, fj := s[i].g+s[i].h, s[j].g+s[j].h
	return cmp.Or(cmp.Compare(fi, fj), cmp.Compare(s[i].h, s[j].h), cmp.Compare(s[i].node, s[j].node)) < 0
}
func (s openSet) Swap(i, j int) { s[i], s[j] = s[j], s[i] }
func (s *openSet) Push(x any)   { *s = append(*s, x.(openNode)) }
func (s *openSet) Pop() any {
	old := *s
	n := old[len(old)-1]
	*s = old[:len(old)-1]
	return n
}

// heuristic is the latency of a straight line at the fastest propagation
// speed. The slack absorbs nanosecond truncation of per-link latencies so
// the estimate stays below the true cost.
func heuristic(from, to core.Vec3) time.Duration {
	return max(core.MinPropagationDelay(from.DistanceTo(to))-time.Microsecond, 0)
}

func (a *AStar) search(ctx context.Context, self, target *core.Node) (time.Duration, bool, error) {
	if self.ID == target.ID {
		return 0, true, nil
	}
	goal := target.Position()
	// Nodes are reopened when a cheaper path shows up, so an admissible
	// heuristic is enough for an optimal result.
	best := map[core.NodeID]time.Duration{self.ID: 0}
	open := &openSet{{node: self.ID, h: heuristic(self.Position(), goal)}}

	for open.Len() > 0 {
		if err := ctx.Err(); err != nil {
			return 0, false, err
		}
		cur := heap.Pop(open).(openNode)
		if cur.g > best[cur.node] {
			continue
		}
		if cur.node == target.ID {
			return cur.g, true, nil
		}

		for _, id := range a.net.EstablishedLinks(cur.node) {
			other := a.net.Other(id, cur.node)
			g := cur.g + a.net.Latency(id)
			if prev, ok := best[other]; ok && prev <= g {
				continue
			}
			best[other] = g
			heap.Push(open, openNode{node: other, g: g, h: heuristic(a.net.Node(other).Position(), goal)})
		}
	}
	return 0, false, nil
}
