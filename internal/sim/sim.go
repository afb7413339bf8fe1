// Package sim drives a constellation through simulated time. Each tick runs
// the position, topology and routing phases in order; each phase fans out
// over a bounded worker pool.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/config"
	"github.com/signalsfoundry/constellation-testbed/internal/constellation"
	"github.com/signalsfoundry/constellation-testbed/internal/deployment"
	"github.com/signalsfoundry/constellation-testbed/internal/logging"
	"github.com/signalsfoundry/constellation-testbed/internal/observability"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/topology"
	"github.com/signalsfoundry/constellation-testbed/timectrl"
)

// Phase names used for spans and metrics.
const (
	PhasePositions  = "positions"
	PhaseTopology   = "topology"
	PhaseRouting    = "routing"
	PhaseReschedule = "reschedule"
)

// Options carries the ambient dependencies of a Simulation. Zero values
// fall back to no-op implementations.
type Options struct {
	Log     logging.Logger
	Metrics *observability.SimulationCollector
	Tracer  trace.Tracer
}

// Simulation owns the network arena and every per-node protocol.
type Simulation struct {
	cfg     config.SimulationConfig
	log     logging.Logger
	metrics *observability.SimulationCollector
	tracer  trace.Tracer

	net       *core.Network
	clock     *timectrl.TimeController
	protocols []topology.Protocol
	ground    []topology.Protocol
	topoReg   *topology.Registry
	routers   *routing.Registry
	routerSet []routing.Router

	deployments *deployment.Manager
	defaults    *deployment.Default
	tasks       *deployment.Task

	// mu serialises ticks.
	mu sync.Mutex
}

// New populates the constellation described by cfg and brings it to the
// configured start time.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Simulation, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if opts.Log == nil {
		opts.Log = logging.LoggerFromContext(ctx, nil)
	}
	if opts.Tracer == nil {
		opts.Tracer = observability.Tracer()
	}

	s := &Simulation{
		cfg:     cfg.Simulation,
		log:     opts.Log,
		metrics: opts.Metrics,
		tracer:  opts.Tracer,
		net:     core.NewNetwork(),
		clock:   timectrl.NewTimeController(cfg.Simulation.Start, cfg.Simulation.Step(), cfg.Simulation.Interval()),
		topoReg: topology.NewRegistry(),
		routers: routing.NewRegistry(),
	}

	ledgers, err := cfg.Ledgers()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrConfiguration, err)
	}
	sats, err := cfg.Satellites()
	if err != nil {
		return nil, err
	}
	stations, err := cfg.Stations()
	if err != nil {
		return nil, err
	}
	if err := constellation.Populate(ctx, s.net, ledgers, sats, stations, s.log); err != nil {
		return nil, err
	}
	if err := s.wire(cfg); err != nil {
		return nil, err
	}

	seed := cfg.Simulation.Seed
	s.defaults = deployment.NewDefault(s.net, s.log, s.metrics, seed)
	s.tasks = deployment.NewTask(s.net, s.routers, s.log, s.metrics, seed+1)
	resolver, err := deployment.NewResolver(s.defaults, s.tasks, deployment.NewWorkflow(s.tasks))
	if err != nil {
		return nil, err
	}
	s.deployments = deployment.NewManager(resolver, s.log, cfg.Simulation.MaxCpuCores)

	if err := s.update(ctx, s.clock.Now()); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "simulation ready",
		logging.Int("nodes", s.net.Len()),
		logging.Int("candidate_links", s.net.LinkCount()),
		logging.String("isl_protocol", cfg.InterSatelliteLinks.Protocol),
		logging.String("router", cfg.Router.Protocol),
		logging.String("mode", s.clock.Mode().String()),
	)
	return s, nil
}

// wire builds the topology protocols and routers and registers every pair
// of satellites as a candidate inter-satellite link.
func (s *Simulation) wire(cfg *config.Config) error {
	topo, err := topology.NewBuilder(s.net, s.topoReg, cfg.Topology(), s.metrics)
	if err != nil {
		return err
	}
	rb, err := routing.NewBuilder(s.net, s.routers, cfg.Routing(), s.metrics)
	if err != nil {
		return err
	}

	sats := s.net.NodesOfKind(core.KindSatellite)
	for i := range sats {
		for j := i + 1; j < len(sats); j++ {
			if _, err := s.net.AddLink(sats[i].ID, sats[j].ID, core.LinkISL); err != nil {
				return err
			}
		}
	}
	for _, sat := range sats {
		p, err := topo.Build(sat)
		if err != nil {
			return err
		}
		for _, id := range s.net.LinksOf(sat.ID) {
			if err := p.AddLink(id); err != nil {
				return err
			}
		}
		s.protocols = append(s.protocols, p)
	}
	for _, gs := range s.net.NodesOfKind(core.KindGroundStation) {
		p, err := topo.BuildGround(gs)
		if err != nil {
			return err
		}
		s.ground = append(s.ground, p)
	}
	for _, n := range s.net.Nodes() {
		r, err := rb.Build(n)
		if err != nil {
			return err
		}
		s.routerSet = append(s.routerSet, r)
	}
	return nil
}

// Step advances the clock by one step and runs a tick. It is the only way
// to advance a simulation in manual mode.
func (s *Simulation) Step(ctx context.Context) (time.Time, error) {
	now := s.clock.Advance()
	return now, s.update(ctx, now)
}

// Run steps the simulation according to its mode until ctx is done or
// maxSteps ticks have run. It returns timectrl.ErrManual in manual mode.
func (s *Simulation) Run(ctx context.Context, maxSteps int) error {
	return s.clock.Run(ctx, maxSteps, s.update)
}

// update runs one tick at now. Phases are not interrupted by cancellation.
func (s *Simulation) update(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ctx = context.WithoutCancel(ctx)

	ctx, span := s.tracer.Start(ctx, "sim.tick", trace.WithAttributes(
		observability.AttrSimTime.String(now.Format(time.RFC3339)),
		observability.AttrSimStep.Int64(int64(s.clock.Steps())),
	))
	defer span.End()

	phases := []struct {
		name string
		run  func(context.Context) error
		skip bool
	}{
		{PhasePositions, func(ctx context.Context) error { return s.positions(ctx, now) }, false},
		{PhaseTopology, s.topology, false},
		{PhaseRouting, s.routing, !s.cfg.UsePreRouteCalc},
		{PhaseReschedule, s.deployments.CheckRescheduleAll, !s.rescheduleDue()},
	}
	for _, p := range phases {
		if p.skip {
			continue
		}
		if err := s.phase(ctx, p.name, p.run); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return err
		}
	}

	established := s.net.EstablishedCount()
	span.SetAttributes(observability.AttrEstablishedLinks.Int(established))
	s.metrics.TickDone(established)
	s.metrics.SetActiveDeployments(len(s.deployments.Active()))
	s.log.Debug(ctx, "tick done",
		logging.String("time", now.Format(time.RFC3339)),
		logging.Int("established_links", established),
	)
	return nil
}

func (s *Simulation) rescheduleDue() bool {
	n := s.cfg.RescheduleEvery
	return n > 0 && s.clock.Steps() > 0 && s.clock.Steps()%uint64(n) == 0
}

func (s *Simulation) phase(ctx context.Context, name string, run func(context.Context) error) error {
	ctx, span := s.tracer.Start(ctx, "sim."+name, trace.WithAttributes(observability.AttrPhase.String(name)))
	defer span.End()
	start := time.Now()
	err := run(ctx)
	s.metrics.ObservePhase(name, time.Since(start))
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("%s phase: %w", name, err)
	}
	return nil
}

func (s *Simulation) fanOut(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.MaxCpuCores)
	for i := 0; i < n; i++ {
		g.Go(func() error { return fn(ctx, i) })
	}
	return g.Wait()
}

func (s *Simulation) positions(ctx context.Context, now time.Time) error {
	nodes := s.net.Nodes()
	return s.fanOut(ctx, len(nodes), func(_ context.Context, i int) error {
		nodes[i].UpdatePosition(now)
		return nil
	})
}

// topology updates the inter-satellite links first so ground stations pick
// their satellite on a settled constellation.
func (s *Simulation) topology(ctx context.Context) error {
	for _, set := range [][]topology.Protocol{s.protocols, s.ground} {
		err := s.fanOut(ctx, len(set), func(ctx context.Context, i int) error {
			_, err := set[i].UpdateLinks(ctx)
			return err
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Simulation) routing(ctx context.Context) error {
	return s.fanOut(ctx, len(s.routerSet), func(ctx context.Context, i int) error {
		if !s.routerSet[i].CanPreRouteCalc() {
			return nil
		}
		return s.routerSet[i].CalculateRoutingTable(ctx)
	})
}

func (s *Simulation) Network() *core.Network                { return s.net }
func (s *Simulation) Routers() *routing.Registry            { return s.routers }
func (s *Simulation) Deployments() *deployment.Manager      { return s.deployments }
func (s *Simulation) Clock() *timectrl.TimeController       { return s.clock }
func (s *Simulation) TaskPlacement() *deployment.Task       { return s.tasks }
func (s *Simulation) DefaultPlacement() *deployment.Default { return s.defaults }
func (s *Simulation) Topology() *topology.Registry          { return s.topoReg }
