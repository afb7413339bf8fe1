package sim

import (
	"context"
	"fmt"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
)

// NodeView is a point-in-time snapshot of a node.
type NodeView struct {
	ID          core.NodeID `json:"id"`
	Name        string      `json:"name"`
	Kind        string      `json:"kind"`
	Position    core.Vec3   `json:"position"`
	Class       string      `json:"class"`
	CpuUsage    float64     `json:"cpu_usage"`
	MemoryUsage float64     `json:"memory_usage"`
	Services    []string    `json:"services,omitempty"`
	Links       int         `json:"established_links"`
}

// Nodes returns a snapshot of every node in id order.
func (s *Simulation) Nodes() []NodeView {
	nodes := s.net.Nodes()
	out := make([]NodeView, 0, len(nodes))
	for _, n := range nodes {
		c := n.Computing()
		v := NodeView{
			ID:          n.ID,
			Name:        n.Name,
			Kind:        n.Kind.String(),
			Position:    n.Position(),
			Class:       c.Class().String(),
			CpuUsage:    c.CpuUsage(),
			MemoryUsage: c.MemoryUsage(),
			Links:       len(s.net.EstablishedLinks(n.ID)),
		}
		for _, svc := range c.Services() {
			v.Services = append(v.Services, svc.Name)
		}
		out = append(out, v)
	}
	return out
}

// RouteView is the JSON form of a route query.
type RouteView struct {
	From      string        `json:"from"`
	To        string        `json:"to,omitempty"`
	Service   string        `json:"service,omitempty"`
	Reachable bool          `json:"reachable"`
	Latency   time.Duration `json:"latency_ns"`
	LatencyMs float64       `json:"latency_ms"`
	OnRoute   bool          `json:"on_route"`
}

// Route asks the router on node from for a route to node to.
func (s *Simulation) Route(ctx context.Context, from, to string) (routing.RouteResult, error) {
	r, err := s.routerOf(from)
	if err != nil {
		return nil, err
	}
	target, err := s.net.NodeByName(to)
	if err != nil {
		return nil, err
	}
	return r.Route(ctx, target, nil)
}

// RouteToService asks the router on node from for the nearest host of
// service.
func (s *Simulation) RouteToService(ctx context.Context, from, service string) (routing.RouteResult, error) {
	r, err := s.routerOf(from)
	if err != nil {
		return nil, err
	}
	return r.RouteToService(ctx, service, &routing.Payload{Service: service})
}

func (s *Simulation) routerOf(name string) (routing.Router, error) {
	n, err := s.net.NodeByName(name)
	if err != nil {
		return nil, err
	}
	r, ok := s.routers.Lookup(n.ID)
	if !ok {
		return nil, fmt.Errorf("%w: no router on %q", core.ErrMount, name)
	}
	return r, nil
}

// View converts a route result into its JSON form.
func View(from, to, service string, res routing.RouteResult) RouteView {
	v := RouteView{From: from, To: to, Service: service, Reachable: res.Reachable()}
	if v.Reachable {
		v.Latency = res.Latency()
		v.LatencyMs = float64(v.Latency) / float64(time.Millisecond)
	}
	_, v.OnRoute = res.(*routing.OnRouteResult)
	return v
}
