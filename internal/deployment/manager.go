package deployment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
)

// Orchestrator creates, deletes and re-checks specifications of the kinds
// it declares.
type Orchestrator interface {
	Kinds() []Kind
	Create(ctx context.Context, spec Specification) error
	Delete(ctx context.Context, spec Specification) error
	CheckReschedule(ctx context.Context, spec Specification) error
}

// NodeSource lists the nodes available for placement.
type NodeSource interface {
	Nodes() []*core.Node
}

// RouterLookup finds the router mounted on a node.
type RouterLookup interface {
	Lookup(id core.NodeID) (routing.Router, bool)
}

// Observer receives placement outcomes, typically for metrics.
type Observer interface {
	Placement(kind Kind, placed bool)
	Reschedule(kind Kind)
}

type nopObserver struct{}

func (nopObserver) Placement(Kind, bool) {}
func (nopObserver) Reschedule(Kind)      {}

// Resolver maps each kind to exactly one orchestrator.
type Resolver struct {
	orchestrators map[Kind]Orchestrator
}

// NewResolver fails with ErrDuplicateOrchestrator when two orchestrators
// claim the same kind.
func NewResolver(orchestrators ...Orchestrator) (*Resolver, error) {
	r := &Resolver{orchestrators: make(map[Kind]Orchestrator)}
	for _, o := range orchestrators {
		for _, kind := range o.Kinds() {
			if _, dup := r.orchestrators[kind]; dup {
				return nil, fmt.Errorf("%w: kind %q registered twice", ErrDuplicateOrchestrator, kind)
			}
			r.orchestrators[kind] = o
		}
	}
	return r, nil
}

// Resolve returns the orchestrator for spec's kind.
func (r *Resolver) Resolve(spec Specification) (Orchestrator, error) {
	o, ok := r.orchestrators[spec.Kind()]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Kind())
	}
	return o, nil
}

// Manager is the entry point for callers. It dispatches through a Resolver
// and remembers active specifications for periodic reschedule checks.
type Manager struct {
	resolver *Resolver
	log      logging.Logger
	workers  int

	mu      sync.Mutex
	active  map[uuid.UUID]Specification
	pending map[uuid.UUID]struct{}
	order   []uuid.UUID
}

// NewManager bounds CheckRescheduleAll to workers concurrent checks.
func NewManager(resolver *Resolver, log logging.Logger, workers int) *Manager {
	if log == nil {
		log = logging.Noop()
	}
	if workers <= 0 {
		workers = 1
	}
	return &Manager{
		resolver: resolver,
		log:      log,
		workers:  workers,
		active:   make(map[uuid.UUID]Specification),
		pending:  make(map[uuid.UUID]struct{}),
	}
}

// Create deploys spec. Failed deployments are not tracked.
func (m *Manager) Create(ctx context.Context, spec Specification) error {
	o, err := m.resolver.Resolve(spec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	_, active := m.active[spec.ID()]
	_, pending := m.pending[spec.ID()]
	if active || pending {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, spec.ID())
	}
	m.pending[spec.ID()] = struct{}{}
	m.mu.Unlock()

	err = o.Create(ctx, spec)

	m.mu.Lock()
	delete(m.pending, spec.ID())
	if err == nil {
		m.active[spec.ID()] = spec
		m.order = append(m.order, spec.ID())
	}
	m.mu.Unlock()
	if err != nil {
		m.log.Warn(ctx, "deployment failed",
			logging.String("kind", string(spec.Kind())),
			logging.String("id", spec.ID().String()),
			logging.Err(err),
		)
		return err
	}
	m.log.Info(ctx, "deployment created",
		logging.String("kind", string(spec.Kind())),
		logging.String("id", spec.ID().String()),
	)
	return nil
}

// Delete removes spec and reverses its placement.
func (m *Manager) Delete(ctx context.Context, spec Specification) error {
	o, err := m.resolver.Resolve(spec)
	if err != nil {
		return err
	}
	m.mu.Lock()
	if _, ok := m.active[spec.ID()]; !ok {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotDeployed, spec.ID())
	}
	delete(m.active, spec.ID())
	for i, id := range m.order {
		if id == spec.ID() {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	return o.Delete(ctx, spec)
}

// Active returns the tracked specifications in creation order.
func (m *Manager) Active() []Specification {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Specification, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.active[id])
	}
	return out
}

// CheckRescheduleAll re-checks every active specification concurrently and
// returns the first error. A specification that currently has no feasible
// host is logged and stays active for the next check.
func (m *Manager) CheckRescheduleAll(ctx context.Context) error {
	specs := m.Active()
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(m.workers)
	for _, spec := range specs {
		o, err := m.resolver.Resolve(spec)
		if err != nil {
			return err
		}
		g.Go(func() error {
			err := o.CheckReschedule(ctx, spec)
			if errors.Is(err, ErrNoFeasibleNode) || errors.Is(err, ErrNoCandidate) {
				m.log.Warn(ctx, "reschedule found no host",
					logging.String("kind", string(spec.Kind())),
					logging.String("id", spec.ID().String()),
					logging.Err(err),
				)
				return nil
			}
			if err != nil {
				return fmt.Errorf("reschedule %s %s: %w", spec.Kind(), spec.ID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}
