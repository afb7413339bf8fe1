package routing

import (
	"context"
	"sync"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// DefaultRouteTTL is how long a flooded route survives without refresh.
const DefaultRouteTTL = 30 * time.Second

// source is the feasibility distance kept per origin: the newest sequence
// number seen and the best metric for it.
type source struct {
	seqno  uint32
	metric time.Duration
}

// feasible reports whether an update is newer than fd, or equally new and
// strictly better.
func (fd source) feasible(seqno uint32, metric time.Duration) bool {
	return seqnoLess(fd.seqno, seqno) || (fd.seqno == seqno && metric < fd.metric)
}

// seqnoLess compares sequence numbers modulo 2^32.
func seqnoLess(a, b uint32) bool {
	x := b - a
	return 0 < x && x < 1<<31
}

// Flood is a distance-vector router. Each round the mounted node floods a
// route to itself outwards; receivers keep only feasible improvements and
// re-flood them to their neighbours. Routes that are not refreshed expire.
type Flood struct {
	name string
	net  *core.Network
	reg  *Registry
	obs  Observer

	mount mountState

	mu       sync.Mutex
	seqno    uint32
	sources  map[core.NodeID]source
	routes   *ttlcache.Cache[core.NodeID, Route]
	services *ttlcache.Cache[string, ServiceRoute]
}

// NewFlood returns an unmounted flood router. name is reported to the
// observer and is "flood" or "ospf". A non-positive ttl selects
// DefaultRouteTTL.
func NewFlood(name string, net *core.Network, reg *Registry, ttl time.Duration, obs Observer) *Flood {
	if obs == nil {
		obs = nopObserver{}
	}
	if ttl <= 0 {
		ttl = DefaultRouteTTL
	}
	return &Flood{
		name:    name,
		net:     net,
		reg:     reg,
		obs:     obs,
		sources: make(map[core.NodeID]source),
		routes: ttlcache.New[core.NodeID, Route](
			ttlcache.WithTTL[core.NodeID, Route](ttl),
			ttlcache.WithDisableTouchOnHit[core.NodeID, Route](),
		),
		services: ttlcache.New[string, ServiceRoute](
			ttlcache.WithTTL[string, ServiceRoute](ttl),
			ttlcache.WithDisableTouchOnHit[string, ServiceRoute](),
		),
	}
}

func (f *Flood) Mount(node *core.Node) error { return f.mount.mount(node, f.name) }

func (*Flood) CanPreRouteCalc() bool { return true }
func (*Flood) CanOnRouteCalc() bool  { return false }

// CalculateRoutingTable starts a new advertisement round.
func (f *Flood) CalculateRoutingTable(ctx context.Context) error {
	return f.SendAdvertisements(ctx)
}

// SendAdvertisements walks outwards from the mounted node and pushes each
// newly reached router a route back, together with the services hosted
// here.
func (f *Flood) SendAdvertisements(ctx context.Context) error {
	self, err := f.mount.mounted(f.name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.seqno++
	seqno := f.seqno
	f.mu.Unlock()
	f.routes.DeleteExpired()
	f.services.DeleteExpired()

	hosted := self.Computing().Services()
	return walk(ctx, f.net, self.ID, func(h hop) error {
		r, ok := f.reg.Lookup(h.node)
		if !ok {
			return nil
		}
		ad := Advertisement{
			Link:   h.link,
			Origin: self.ID,
			Seqno:  seqno,
			Routes: []Route{{Target: self.ID, NextHop: h.parent, Metric: h.latency, Seqno: seqno}},
		}
		for _, svc := range hosted {
			ad.Services = append(ad.Services, ServiceRoute{
				Service: svc.Name, Host: self.ID, NextHop: h.parent, Metric: h.latency, Seqno: seqno,
			})
		}
		return r.ReceiveAdvertisement(ctx, ad)
	})
}

// ReceiveAdvertisement merges the feasible entries of ad and re-floods
// them to every established neighbour except the one it came from.
func (f *Flood) ReceiveAdvertisement(ctx context.Context, ad Advertisement) error {
	self, err := f.mount.mounted(f.name)
	if err != nil {
		return err
	}
	sender := f.net.Other(ad.Link, self.ID)

	f.mu.Lock()
	var routes []Route
	for _, r := range ad.Routes {
		if r.Target == self.ID {
			continue
		}
		fd, known := f.sources[r.Target]
		if known && !fd.feasible(r.Seqno, r.Metric) {
			continue
		}
		f.sources[r.Target] = source{seqno: r.Seqno, metric: r.Metric}
		f.routes.Set(r.Target, r, ttlcache.DefaultTTL)
		routes = append(routes, r)
	}
	var services []ServiceRoute
	for _, s := range ad.Services {
		if s.Host == self.ID {
			continue
		}
		if item := f.services.Get(s.Service); item != nil {
			cur := item.Value()
			newer := cur.Host == s.Host && seqnoLess(cur.Seqno, s.Seqno)
			if !newer && s.Metric >= cur.Metric {
				continue
			}
		}
		f.services.Set(s.Service, s, ttlcache.DefaultTTL)
		services = append(services, s)
	}
	f.mu.Unlock()

	if len(routes) == 0 && len(services) == 0 {
		return nil
	}
	// Neighbours are called without f.mu held; improvements only shrink
	// metrics so the recursion terminates.
	for _, id := range f.net.EstablishedLinks(self.ID) {
		neighbour := f.net.Other(id, self.ID)
		if neighbour == sender {
			continue
		}
		r, ok := f.reg.Lookup(neighbour)
		if !ok {
			continue
		}
		latency := f.net.Latency(id)
		out := Advertisement{Link: id, Origin: ad.Origin, Seqno: ad.Seqno}
		for _, rt := range routes {
			out.Routes = append(out.Routes, Route{Target: rt.Target, NextHop: self.ID, Metric: rt.Metric + latency, Seqno: rt.Seqno})
		}
		for _, s := range services {
			out.Services = append(out.Services, ServiceRoute{
				Service: s.Service, Host: s.Host, NextHop: self.ID, Metric: s.Metric + latency, Seqno: s.Seqno,
			})
		}
		if err := r.ReceiveAdvertisement(ctx, out); err != nil {
			return err
		}
	}
	return nil
}

// AdvertiseNewService announces a service just placed on the mounted node.
func (f *Flood) AdvertiseNewService(ctx context.Context, service string) error {
	self, err := f.mount.mounted(f.name)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.seqno++
	seqno := f.seqno
	f.mu.Unlock()
	return pushService(ctx, f.net, f.reg, self.ID, service, seqno)
}

// Lookup returns the current unexpired route to target.
func (f *Flood) Lookup(target core.NodeID) (Route, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	item := f.routes.Get(target)
	if item == nil {
		return Route{}, false
	}
	return item.Value(), true
}

func (f *Flood) Route(_ context.Context, target *core.Node, _ *Payload) (RouteResult, error) {
	self, err := f.mount.mounted(f.name)
	if err != nil {
		return nil, err
	}
	if target.ID == self.ID {
		f.obs.RouteRequest(f.name, true)
		return ZeroLatency, nil
	}
	r, ok := f.Lookup(target.ID)
	f.obs.RouteRequest(f.name, ok)
	if !ok {
		return Unreachable{}, nil
	}
	return NewPreRouteResult(r.Metric), nil
}

func (f *Flood) RouteToService(_ context.Context, service string, _ *Payload) (RouteResult, error) {
	self, err := f.mount.mounted(f.name)
	if err != nil {
		return nil, err
	}
	if self.Computing().HostsService(service) {
		f.obs.RouteRequest(f.name, true)
		return ZeroLatency, nil
	}
	f.mu.Lock()
	item := f.services.Get(service)
	f.mu.Unlock()
	f.obs.RouteRequest(f.name, item != nil)
	if item == nil {
		return Unreachable{}, nil
	}
	return NewPreRouteResult(item.Value().Metric), nil
}
