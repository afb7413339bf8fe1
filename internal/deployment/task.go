package deployment

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"

	"github.com/google/uuid"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
)

// Task places latency-bounded tasks. Candidates are sampled in random order
// without replacement, so a task that no node can satisfy fails once every
// candidate has been tried.
//
// A task whose reschedule finds no feasible node stays registered without a
// host and is retried on every later check.
type Task struct {
	nodes   NodeSource
	routers RouterLookup
	log     logging.Logger
	obs     Observer

	mu        sync.Mutex
	rng       *rand.Rand
	scheduled map[uuid.UUID]*slot
}

// slot is the placement state of one task. node is nil while the task is
// being placed or waits for a host; placing is set while a goroutine owns
// the slot.
type slot struct {
	node    *core.Node
	placing bool
}

// NewTask returns a Task orchestrator seeded with seed.
func NewTask(nodes NodeSource, routers RouterLookup, log logging.Logger, obs Observer, seed uint64) *Task {
	if log == nil {
		log = logging.Noop()
	}
	if obs == nil {
		obs = nopObserver{}
	}
	return &Task{
		nodes:     nodes,
		routers:   routers,
		log:       log,
		obs:       obs,
		rng:       rand.New(rand.NewPCG(seed, seed+1)),
		scheduled: make(map[uuid.UUID]*slot),
	}
}

func (*Task) Kinds() []Kind { return []Kind{KindTask} }

func (t *Task) Create(ctx context.Context, spec Specification) error {
	s, ok := spec.(*TaskSpec)
	if !ok {
		return fmt.Errorf("%w: task orchestrator got %T", ErrInvalidSpec, spec)
	}
	return t.create(ctx, s)
}

// create reserves the id before placing so that concurrent creates of the
// same task cannot both consume capacity.
func (t *Task) create(ctx context.Context, s *TaskSpec) error {
	t.mu.Lock()
	if _, ok := t.scheduled[s.ID()]; ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyDeployed, s)
	}
	sl := &slot{placing: true}
	t.scheduled[s.ID()] = sl
	t.mu.Unlock()

	node, err := t.place(ctx, s)

	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		delete(t.scheduled, s.ID())
		return err
	}
	sl.node, sl.placing = node, false
	return nil
}

// place finds a host for s and reserves its capacity.
func (t *Task) place(ctx context.Context, s *TaskSpec) (*core.Node, error) {
	var candidates []*core.Node
	for _, n := range t.nodes.Nodes() {
		if n.Computing().CanPlace(s.Service) {
			candidates = append(candidates, n)
		}
	}
	if len(candidates) == 0 {
		t.obs.Placement(KindTask, false)
		return nil, fmt.Errorf("%w: %s", ErrNoCandidate, s)
	}

	t.mu.Lock()
	order := t.rng.Perm(len(candidates))
	t.mu.Unlock()

	for _, i := range order {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		node := candidates[i]
		// Concurrent placements consume capacity, so every condition is
		// re-checked for each candidate.
		within, err := t.withinBudget(ctx, s, node)
		if err != nil {
			return nil, err
		}
		if !within {
			continue
		}
		placed, err := node.Computing().TryPlace(ctx, s.Service)
		if err != nil {
			t.log.Warn(ctx, "service placed but not advertised",
				logging.String("service", s.Service.Name),
				logging.String("node", node.String()),
				logging.Err(err),
			)
		}
		if !placed {
			continue
		}

		t.obs.Placement(KindTask, true)
		t.log.Debug(ctx, "task placed",
			logging.String("service", s.Service.Name),
			logging.String("node", node.String()),
		)
		return node, nil
	}
	t.obs.Placement(KindTask, false)
	return nil, fmt.Errorf("%w: %s within %v after %d candidates", ErrNoFeasibleNode, s, s.MaxLatency, len(candidates))
}

// withinBudget reports whether node is reachable from the task's source
// within its latency budget. For service-anchored tasks the route runs from
// node to the source service.
func (t *Task) withinBudget(ctx context.Context, s *TaskSpec, node *core.Node) (bool, error) {
	var (
		res routing.RouteResult
		err error
	)
	switch {
	case s.SourceNode != nil:
		r, ok := t.routers.Lookup(s.SourceNode.ID)
		if !ok {
			return false, nil
		}
		res, err = r.Route(ctx, node, &routing.Payload{Service: s.Service.Name})
	case s.SourceService != "":
		r, ok := t.routers.Lookup(node.ID)
		if !ok {
			return false, nil
		}
		res, err = r.RouteToService(ctx, s.SourceService, &routing.Payload{Service: s.Service.Name})
	default:
		return false, fmt.Errorf("%w: %s has neither source node nor source service", ErrInvalidSpec, s)
	}
	if err != nil {
		return false, err
	}
	return res.Reachable() && res.Latency() <= s.MaxLatency, nil
}

func (t *Task) Delete(_ context.Context, spec Specification) error {
	s, ok := spec.(*TaskSpec)
	if !ok {
		return fmt.Errorf("%w: task orchestrator got %T", ErrInvalidSpec, spec)
	}
	return t.delete(s)
}

func (t *Task) delete(s *TaskSpec) error {
	t.mu.Lock()
	sl, ok := t.scheduled[s.ID()]
	if !ok || sl.placing {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotDeployed, s)
	}
	delete(t.scheduled, s.ID())
	t.mu.Unlock()
	if sl.node != nil {
		sl.node.Computing().Remove(s.Service)
	}
	return nil
}

// CheckReschedule re-places the task when the route from its source has
// become unreachable or exceeds the budget, and retries tasks left without
// a host by an earlier check. Finding no host is not an error.
func (t *Task) CheckReschedule(ctx context.Context, spec Specification) error {
	s, ok := spec.(*TaskSpec)
	if !ok {
		return fmt.Errorf("%w: task orchestrator got %T", ErrInvalidSpec, spec)
	}
	t.mu.Lock()
	sl, ok := t.scheduled[s.ID()]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotDeployed, s)
	}
	if sl.placing {
		t.mu.Unlock()
		return nil
	}
	old := sl.node
	t.mu.Unlock()

	if old != nil {
		within, err := t.withinBudget(ctx, s, old)
		if err != nil || within {
			return err
		}
		t.obs.Reschedule(KindTask)
		t.log.Info(ctx, "rescheduling task",
			logging.String("service", s.Service.Name),
			logging.String("from", old.String()),
		)
	}

	t.mu.Lock()
	if sl.placing || sl.node != old || t.scheduled[s.ID()] != sl {
		// Another check or a delete got here first.
		t.mu.Unlock()
		return nil
	}
	sl.node, sl.placing = nil, true
	t.mu.Unlock()
	if old != nil {
		old.Computing().Remove(s.Service)
	}

	node, err := t.place(ctx, s)

	t.mu.Lock()
	sl.node, sl.placing = node, false
	t.mu.Unlock()
	if errors.Is(err, ErrNoFeasibleNode) || errors.Is(err, ErrNoCandidate) {
		t.log.Warn(ctx, "task left without a host; retrying on next check",
			logging.String("service", s.Service.Name),
			logging.Err(err),
		)
		return nil
	}
	return err
}

// Placement returns the node hosting spec. It reports false for tasks that
// are unknown or currently without a host.
func (t *Task) Placement(spec Specification) (*core.Node, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	sl, ok := t.scheduled[spec.ID()]
	if !ok || sl.node == nil {
		return nil, false
	}
	return sl.node, true
}
