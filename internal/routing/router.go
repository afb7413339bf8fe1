package routing

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Payload describes the workload carried by a routed request. Routers pass
// it through unchanged.
type Payload struct {
	Service string
	Bytes   int64
}

// Route is one table entry: how to reach Target and at which cost.
type Route struct {
	Target  core.NodeID
	NextHop core.NodeID
	Metric  time.Duration
	Seqno   uint32
}

// ServiceRoute is a route to the nearest known host of a service.
type ServiceRoute struct {
	Service string
	Host    core.NodeID
	NextHop core.NodeID
	Metric  time.Duration
	Seqno   uint32
}

// Advertisement carries routes learned by Origin. Link is the link over
// which the receiver is reached.
type Advertisement struct {
	Link     core.LinkID
	Origin   core.NodeID
	Seqno    uint32
	Routes   []Route
	Services []ServiceRoute
}

// Router computes routes for the node it is mounted on.
type Router interface {
	Mount(node *core.Node) error
	Route(ctx context.Context, target *core.Node, payload *Payload) (RouteResult, error)
	RouteToService(ctx context.Context, service string, payload *Payload) (RouteResult, error)
	CalculateRoutingTable(ctx context.Context) error
	SendAdvertisements(ctx context.Context) error
	ReceiveAdvertisement(ctx context.Context, ad Advertisement) error
	AdvertiseNewService(ctx context.Context, service string) error
	CanPreRouteCalc() bool
	CanOnRouteCalc() bool
}

// Observer receives routing events, typically for metrics.
type Observer interface {
	RouteRequest(router string, reachable bool)
}

type nopObserver struct{}

func (nopObserver) RouteRequest(string, bool) {}

// Registry maps node ids to their routers so routers can push
// advertisements to each other.
type Registry struct {
	mu      sync.RWMutex
	routers map[core.NodeID]Router
}

func NewRegistry() *Registry {
	return &Registry{routers: make(map[core.NodeID]Router)}
}

func (r *Registry) Register(id core.NodeID, router Router) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routers[id] = router
}

func (r *Registry) Lookup(id core.NodeID) (Router, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	router, ok := r.routers[id]
	return router, ok
}

type mountState struct {
	mu   sync.Mutex
	node *core.Node
}

func (m *mountState) mount(node *core.Node, router string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if node == nil {
		return fmt.Errorf("%w: %s router mounted on nil node", core.ErrMount, router)
	}
	if m.node != nil {
		return fmt.Errorf("%w: %s router already mounted on %s", core.ErrMount, router, m.node)
	}
	m.node = node
	return nil
}

func (m *mountState) mounted(router string) (*core.Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.node == nil {
		return nil, fmt.Errorf("%w: %s router is not mounted", core.ErrMount, router)
	}
	return m.node, nil
}

// pushService tells every router reachable from self that self now hosts
// service. Each receiver gets the route from its own side of the path.
func pushService(ctx context.Context, net *core.Network, reg *Registry, self core.NodeID, service string, seqno uint32) error {
	return walk(ctx, net, self, func(h hop) error {
		r, ok := reg.Lookup(h.node)
		if !ok {
			return nil
		}
		return r.ReceiveAdvertisement(ctx, Advertisement{
			Link:   h.link,
			Origin: self,
			Seqno:  seqno,
			Services: []ServiceRoute{{
				Service: service,
				Host:    self,
				NextHop: h.parent,
				Metric:  h.latency,
				Seqno:   seqno,
			}},
		})
	})
}
