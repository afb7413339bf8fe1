package routing

import (
	"context"
	"sync"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Entry is a precomputed route from the mounted node.
type Entry struct {
	NextHop core.NodeID
	Link    core.LinkID
	Latency time.Duration
}

// Dijkstra precomputes shortest-latency routes from the mounted node to
// every reachable node and to every service hosted on one.
type Dijkstra struct {
	net *core.Network
	reg *Registry
	obs Observer

	mount mountState

	mu       sync.RWMutex
	nodes    map[core.NodeID]Entry
	services map[string]Entry
	seqno    uint32
}

// NewDijkstra returns an unmounted pre-route router.
func NewDijkstra(net *core.Network, reg *Registry, obs Observer) *Dijkstra {
	if obs == nil {
		obs = nopObserver{}
	}
	return &Dijkstra{
		net:      net,
		reg:      reg,
		obs:      obs,
		nodes:    make(map[core.NodeID]Entry),
		services: make(map[string]Entry),
	}
}

func (d *Dijkstra) Mount(node *core.Node) error { return d.mount.mount(node, "dijkstra") }

func (*Dijkstra) CanPreRouteCalc() bool { return true }
func (*Dijkstra) CanOnRouteCalc() bool  { return false }

// CalculateRoutingTable rebuilds both tables and swaps them in at once.
// For services the first node discovered wins.
func (d *Dijkstra) CalculateRoutingTable(ctx context.Context) error {
	self, err := d.mount.mounted("dijkstra")
	if err != nil {
		return err
	}

	nodes := make(map[core.NodeID]Entry)
	services := make(map[string]Entry)
	for _, svc := range self.Computing().Services() {
		services[svc.Name] = Entry{NextHop: self.ID, Link: -1}
	}
	err = walk(ctx, d.net, self.ID, func(h hop) error {
		e := Entry{NextHop: h.firstHop, Link: d.firstLink(self.ID, h), Latency: h.latency}
		nodes[h.node] = e
		for _, svc := range d.net.Node(h.node).Computing().Services() {
			if _, ok := services[svc.Name]; !ok {
				services[svc.Name] = e
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.nodes, d.services = nodes, services
	d.mu.Unlock()
	return nil
}

func (d *Dijkstra) firstLink(self core.NodeID, h hop) core.LinkID {
	if h.parent == self {
		return h.link
	}
	id, _ := d.net.LinkBetween(self, h.firstHop)
	return id
}

// Lookup returns the table entry for target.
func (d *Dijkstra) Lookup(target core.NodeID) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.nodes[target]
	return e, ok
}

// LookupService returns the table entry for the nearest known host of
// service.
func (d *Dijkstra) LookupService(service string) (Entry, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.services[service]
	return e, ok
}

func (d *Dijkstra) Route(_ context.Context, target *core.Node, _ *Payload) (RouteResult, error) {
	self, err := d.mount.mounted("dijkstra")
	if err != nil {
		return nil, err
	}
	if target.ID == self.ID {
		d.obs.RouteRequest("dijkstra", true)
		return ZeroLatency, nil
	}
	e, ok := d.Lookup(target.ID)
	d.obs.RouteRequest("dijkstra", ok)
	if !ok {
		return Unreachable{}, nil
	}
	return NewPreRouteResult(e.Latency), nil
}

func (d *Dijkstra) RouteToService(_ context.Context, service string, _ *Payload) (RouteResult, error) {
	self, err := d.mount.mounted("dijkstra")
	if err != nil {
		return nil, err
	}
	if self.Computing().HostsService(service) {
		d.obs.RouteRequest("dijkstra", true)
		return ZeroLatency, nil
	}
	e, ok := d.LookupService(service)
	d.obs.RouteRequest("dijkstra", ok)
	if !ok {
		return Unreachable{}, nil
	}
	return NewPreRouteResult(e.Latency), nil
}

// SendAdvertisements pushes a route back to the mounted node to every
// reachable router.
func (d *Dijkstra) SendAdvertisements(ctx context.Context) error {
	self, err := d.mount.mounted("dijkstra")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.seqno++
	seqno := d.seqno
	d.mu.Unlock()

	return walk(ctx, d.net, self.ID, func(h hop) error {
		r, ok := d.reg.Lookup(h.node)
		if !ok {
			return nil
		}
		return r.ReceiveAdvertisement(ctx, Advertisement{
			Link:   h.link,
			Origin: self.ID,
			Seqno:  seqno,
			Routes: []Route{{Target: self.ID, NextHop: h.parent, Metric: h.latency, Seqno: seqno}},
		})
	})
}

// ReceiveAdvertisement inserts each advertised route that is new or
// strictly better than the current entry.
func (d *Dijkstra) ReceiveAdvertisement(_ context.Context, ad Advertisement) error {
	if _, err := d.mount.mounted("dijkstra"); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, r := range ad.Routes {
		if cur, ok := d.nodes[r.Target]; !ok || r.Metric < cur.Latency {
			d.nodes[r.Target] = Entry{NextHop: r.NextHop, Link: ad.Link, Latency: r.Metric}
		}
	}
	for _, s := range ad.Services {
		if cur, ok := d.services[s.Service]; !ok || s.Metric < cur.Latency {
			d.services[s.Service] = Entry{NextHop: s.NextHop, Link: ad.Link, Latency: s.Metric}
		}
	}
	return nil
}

// AdvertiseNewService announces a service just placed on the mounted node.
func (d *Dijkstra) AdvertiseNewService(ctx context.Context, service string) error {
	self, err := d.mount.mounted("dijkstra")
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.services[service] = Entry{NextHop: self.ID, Link: -1}
	d.seqno++
	seqno := d.seqno
	d.mu.Unlock()
	return pushService(ctx, d.net, d.reg, self.ID, service, seqno)
}
