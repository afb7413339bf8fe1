package observability

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/signalsfoundry/constellation-testbed/internal/deployment"
)

// SimulationCollector bundles the Prometheus metrics of a simulation run. It
// implements the observer interfaces of the topology, routing and
// deployment packages. All methods are safe on a nil receiver.
type SimulationCollector struct {
	gatherer prometheus.Gatherer

	Ticks               prometheus.Counter
	PhaseDurations      *prometheus.HistogramVec
	EstablishedLinks    prometheus.Gauge
	TopologyComputes    *prometheus.CounterVec
	RouteRequests       *prometheus.CounterVec
	Placements          *prometheus.CounterVec
	Reschedules         *prometheus.CounterVec
	ScheduledDeployment prometheus.Gauge
}

// NewSimulationCollector registers the metrics against reg, defaulting to
// the global registry when nil. Metrics already registered by an earlier
// collector are reused.
func NewSimulationCollector(reg prometheus.Registerer) (*SimulationCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &SimulationCollector{gatherer: gatherer}
	var err error
	if c.Ticks, err = register(reg, prometheus.NewCounter(prometheus.CounterOpts{
		Name: "sim_ticks_total",
		Help: "Number of completed simulation ticks.",
	})); err != nil {
		return nil, err
	}
	if c.PhaseDurations, err = register(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "sim_phase_duration_seconds",
		Help:    "Wall-clock duration of each tick phase.",
		Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
	}, []string{"phase"})); err != nil {
		return nil, err
	}
	if c.EstablishedLinks, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_established_links",
		Help: "Links established at the end of the last topology phase.",
	})); err != nil {
		return nil, err
	}
	if c.TopologyComputes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_topology_computations_total",
		Help: "Topology updates by protocol, split into fresh computations and cache hits.",
	}, []string{"protocol", "result"})); err != nil {
		return nil, err
	}
	if c.RouteRequests, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_route_requests_total",
		Help: "Route requests by router and outcome.",
	}, []string{"router", "result"})); err != nil {
		return nil, err
	}
	if c.Placements, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_placements_total",
		Help: "Deployment placements by kind and outcome.",
	}, []string{"kind", "result"})); err != nil {
		return nil, err
	}
	if c.Reschedules, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "sim_reschedules_total",
		Help: "Deployments moved because their route broke or exceeded its budget.",
	}, []string{"kind"})); err != nil {
		return nil, err
	}
	if c.ScheduledDeployment, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "sim_active_deployments",
		Help: "Deployments currently tracked by the manager.",
	})); err != nil {
		return nil, err
	}
	return c, nil
}

// Handler exposes the collector's registry in the Prometheus text format.
func (c *SimulationCollector) Handler() http.Handler {
	gatherer := prometheus.DefaultGatherer
	if c != nil && c.gatherer != nil {
		gatherer = c.gatherer
	}
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Gatherer returns the registry the collector reports to.
func (c *SimulationCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// ObservePhase records the duration of one tick phase.
func (c *SimulationCollector) ObservePhase(phase string, d time.Duration) {
	if c == nil || c.PhaseDurations == nil {
		return
	}
	c.PhaseDurations.WithLabelValues(phase).Observe(d.Seconds())
}

// TickDone counts a completed tick and publishes the established link count.
func (c *SimulationCollector) TickDone(established int) {
	if c == nil {
		return
	}
	if c.Ticks != nil {
		c.Ticks.Inc()
	}
	if c.EstablishedLinks != nil {
		c.EstablishedLinks.Set(float64(established))
	}
}

// SetActiveDeployments updates the deployment gauge.
func (c *SimulationCollector) SetActiveDeployments(n int) {
	if c == nil || c.ScheduledDeployment == nil {
		return
	}
	c.ScheduledDeployment.Set(float64(n))
}

// TopologyComputation implements topology.Observer.
func (c *SimulationCollector) TopologyComputation(protocol string, cached bool) {
	if c == nil || c.TopologyComputes == nil {
		return
	}
	c.TopologyComputes.WithLabelValues(protocol, outcome(cached, "cached", "computed")).Inc()
}

// RouteRequest implements routing.Observer.
func (c *SimulationCollector) RouteRequest(router string, reachable bool) {
	if c == nil || c.RouteRequests == nil {
		return
	}
	c.RouteRequests.WithLabelValues(router, outcome(reachable, "reachable", "unreachable")).Inc()
}

// Placement implements deployment.Observer.
func (c *SimulationCollector) Placement(kind deployment.Kind, placed bool) {
	if c == nil || c.Placements == nil {
		return
	}
	c.Placements.WithLabelValues(string(kind), outcome(placed, "placed", "failed")).Inc()
}

// Reschedule implements deployment.Observer.
func (c *SimulationCollector) Reschedule(kind deployment.Kind) {
	if c == nil || c.Reschedules == nil {
		return
	}
	c.Reschedules.WithLabelValues(string(kind)).Inc()
}

func outcome(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

// register adds col to reg, returning the existing collector of the same
// type when one is already registered under the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, col C) (C, error) {
	err := reg.Register(col)
	if err == nil {
		return col, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
		return col, fmt.Errorf("collector already registered with incompatible type %T", are.ExistingCollector)
	}
	return col, err
}
