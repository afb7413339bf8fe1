package routing

import (
	"fmt"
	"strings"
	"time"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Names lists the recognised router names.
func Names() []string {
	return []string{"dijkstra", "a-star", "flood", "ospf"}
}

// Config selects and tunes the router.
type Config struct {
	Protocol string
	// RouteTTL bounds how long flooded routes live without refresh.
	RouteTTL time.Duration
}

// Builder creates, mounts and registers one router per node.
type Builder struct {
	net  *core.Network
	reg  *Registry
	cfg  Config
	obs  Observer
	name string
}

// NewBuilder validates cfg.Protocol. Unknown names fail here rather than
// when the first node is built.
func NewBuilder(net *core.Network, reg *Registry, cfg Config, obs Observer) (*Builder, error) {
	name := strings.ToLower(strings.TrimSpace(cfg.Protocol))
	switch name {
	case "dijkstra", "a-star", "flood", "ospf":
	default:
		return nil, fmt.Errorf("%w: unknown routing protocol %q", core.ErrConfiguration, cfg.Protocol)
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Builder{net: net, reg: reg, cfg: cfg, obs: obs, name: name}, nil
}

// Build returns the mounted router for node. The node's computing ledger
// announces newly placed services through it.
func (b *Builder) Build(node *core.Node) (Router, error) {
	var r Router
	switch b.name {
	case "dijkstra":
		r = NewDijkstra(b.net, b.reg, b.obs)
	case "a-star":
		r = NewAStar(b.net, b.obs)
	default:
		r = NewFlood(b.name, b.net, b.reg, b.cfg.RouteTTL, b.obs)
	}
	if err := r.Mount(node); err != nil {
		return nil, err
	}
	b.reg.Register(node.ID, r)
	node.Computing().SetAdvertiser(r)
	return r, nil
}
