package topology

import (
	"fmt"
	"strings"
	"sync"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// Names lists the recognised protocol names.
func Names() []string {
	return []string{
		"nearest",
		"mst", "mst_loop", "mst_smart_loop",
		"pst", "pst_loop", "pst_smart_loop",
		"other_mst", "other_mst_loop", "other_mst_smart_loop",
	}
}

type chain struct {
	base  string // nearest, mst, pst or other_mst
	loop  bool
	smart bool
}

func parseChain(name string) (chain, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "nearest" {
		return chain{base: "nearest"}, nil
	}
	c := chain{base: name}
	switch {
	case strings.HasSuffix(name, "_smart_loop"):
		c.base, c.smart = strings.TrimSuffix(name, "_smart_loop"), true
	case strings.HasSuffix(name, "_loop"):
		c.base, c.loop = strings.TrimSuffix(name, "_loop"), true
	}
	switch c.base {
	case "mst", "pst", "other_mst":
		return c, nil
	}
	return chain{}, fmt.Errorf("%w: unknown inter-satellite link protocol %q", core.ErrConfiguration, name)
}

// Builder composes the configured protocol chain for each satellite. Chains
// built on a spanning forest share one forest instance, mounted on the first
// satellite built.
type Builder struct {
	net   *core.Network
	reg   *Registry
	cfg   Config
	obs   Observer
	chain chain

	mu            sync.Mutex
	shared        Protocol
	sharedMounted bool
}

// NewBuilder validates cfg.Protocol. Unknown names fail here rather than
// when the first satellite is built.
func NewBuilder(net *core.Network, reg *Registry, cfg Config, obs Observer) (*Builder, error) {
	c, err := parseChain(cfg.Protocol)
	if err != nil {
		return nil, err
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Builder{net: net, reg: reg, cfg: cfg.withDefaults(), obs: obs, chain: c}, nil
}

// Shared returns the constellation-wide protocol, or nil for nearest.
func (b *Builder) Shared() Protocol {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.shared
}

// Build returns the mounted, registered protocol chain for a satellite.
func (b *Builder) Build(node *core.Node) (Protocol, error) {
	if node == nil || node.Kind != core.KindSatellite {
		return nil, fmt.Errorf("%w: inter-satellite link protocol needs a satellite, got %s", core.ErrConfiguration, node)
	}

	var p Protocol
	if b.chain.base == "nearest" {
		p = NewNearest(b.net, b.reg, b.cfg, b.obs)
	} else {
		shared, err := b.sharedFor(node)
		if err != nil {
			return nil, err
		}
		p = NewFilter(b.net, shared)
		if b.chain.loop {
			p = NewLoop(p, b.net, b.reg, b.cfg)
		}
	}

	if err := p.Mount(node); err != nil {
		return nil, err
	}
	b.reg.Register(node.ID, p)
	return p, nil
}

// BuildGround returns the mounted, registered ground-link protocol for a
// ground station.
func (b *Builder) BuildGround(node *core.Node) (Protocol, error) {
	p := NewGroundNearest(b.net)
	if err := p.Mount(node); err != nil {
		return nil, err
	}
	b.reg.Register(node.ID, p)
	return p, nil
}

func (b *Builder) sharedFor(anchor *core.Node) (Protocol, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shared == nil {
		var tree *Tree
		switch b.chain.base {
		case "mst":
			tree = NewMST(b.net, b.cfg, b.obs)
		case "pst":
			tree = NewPST(b.net, b.cfg, b.obs)
		case "other_mst":
			tree = NewSatelliteMST(b.net, b.cfg, b.obs)
		}
		b.shared = tree
		if b.chain.smart {
			b.shared = NewSmartLoop(tree, b.net, b.cfg, b.obs)
		}
	}
	if !b.sharedMounted {
		if err := b.shared.Mount(anchor); err != nil {
			return nil, err
		}
		b.sharedMounted = true
	}
	return b.shared, nil
}
