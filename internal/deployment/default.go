package deployment

import (
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
)

// Default spreads replicas over randomly chosen nodes of the requested
// class. It never reschedules.
type Default struct {
	nodes NodeSource
	log   logging.Logger
	obs   Observer

	mu       sync.Mutex
	rng      *rand.Rand
	deployed map[uuid.UUID][]*core.Node
}

// NewDefault returns a Default orchestrator seeded with seed.
func NewDefault(nodes NodeSource, log logging.Logger, obs Observer, seed uint64) *Default {
	if log == nil {
		log = logging.Noop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Default{
		nodes:    nodes,
		log:      log,
		obs:      obs,
		rng:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		deployed: make(map[uuid.UUID][]*core.Node),
	}
}

func (*Default) Kinds() []Kind { return []Kind{KindDefault} }

// Create shuffles the node list and places the service on the first
// Replicas nodes that match the class and have room. Fewer replicas are
// kept when the constellation runs out of room; none at all is an error.
func (d *Default) Create(ctx context.Context, spec Specification) error {
	s, ok := spec.(*DefaultSpec)
	if !ok {
		return fmt.Errorf("%w: default orchestrator got %T", ErrInvalidSpec, spec)
	}

	d.mu.Lock()
	if _, ok := d.deployed[s.ID()]; ok {
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, s)
	}
	// An empty record reserves the id while placing.
	d.deployed[s.ID()] = []*core.Node{}
	nodes := slices.Clone(d.nodes.Nodes())
	d.rng.Shuffle(len(nodes), func(i, j int) { nodes[i], nodes[j] = nodes[j], nodes[i] })
	d.mu.Unlock()

	var placed []*core.Node
	for _, n := range nodes {
		if len(placed) == s.Replicas {
			break
		}
		c := n.Computing()
		if !c.Class().Matches(s.Class) || c.CpuAvailable() < s.Service.Cpu || c.MemoryAvailable() < s.Service.Memory {
			continue
		}
		ok, err := c.TryPlace(ctx, s.Service)
		if err != nil {
			d.log.Warn(ctx, "service placed but not advertised",
				logging.String("service", s.Service.Name),
				logging.String("node", n.String()),
				logging.Err(err),
			)
		}
		if ok {
			placed = append(placed, n)
		}
	}
	d.obs.Placement(KindDefault, len(placed) > 0 || s.Replicas == 0)
	if len(placed) == 0 && s.Replicas > 0 {
		d.mu.Lock()
		delete(d.deployed, s.ID())
		d.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNoCandidate, s)
	}
	if len(placed) < s.Replicas {
		d.log.Warn(ctx, "deployment under-replicated",
			logging.String("service", s.Service.Name),
			logging.Int("replicas", len(placed)),
			logging.Int("wanted", s.Replicas),
		)
	}

	d.mu.Lock()
	d.deployed[s.ID()] = placed
	d.mu.Unlock()
	return nil
}

// Delete removes the service from exactly the nodes recorded by Create.
func (d *Default) Delete(_ context.Context, spec Specification) error {
	s, ok := spec.(*DefaultSpec)
	if !ok {
		return fmt.Errorf("%w: default orchestrator got %T", ErrInvalidSpec, spec)
	}
	d.mu.Lock()
	nodes, ok := d.deployed[s.ID()]
	delete(d.deployed, s.ID())
	d.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotDeployed, s)
	}
	for _, n := range nodes {
		n.Computing().Remove(s.Service)
	}
	return nil
}

func (*Default) CheckReschedule(context.Context, Specification) error { return nil }

// Placement returns the nodes hosting spec.
func (d *Default) Placement(spec Specification) []*core.Node {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.deployed[spec.ID()])
}
