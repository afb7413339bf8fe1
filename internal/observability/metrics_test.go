package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/constellation-testbed/internal/deployment"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/topology"
)

var (
	_ topology.Observer   = (*SimulationCollector)(nil)
	_ routing.Observer    = (*SimulationCollector)(nil)
	_ deployment.Observer = (*SimulationCollector)(nil)
)

func TestCollectorRecordsObserverEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("NewSimulationCollector: %v", err)
	}

	c.TopologyComputation("mst", false)
	c.TopologyComputation("mst", true)
	c.TopologyComputation("mst", true)
	c.RouteRequest("dijkstra", true)
	c.RouteRequest("dijkstra", false)
	c.Placement(deployment.KindTask, true)
	c.Placement(deployment.KindTask, false)
	c.Reschedule(deployment.KindTask)

	checks := []struct {
		name string
		got  float64
		want float64
	}{
		{"computed", testutil.ToFloat64(c.TopologyComputes.WithLabelValues("mst", "computed")), 1},
		{"cached", testutil.ToFloat64(c.TopologyComputes.WithLabelValues("mst", "cached")), 2},
		{"reachable", testutil.ToFloat64(c.RouteRequests.WithLabelValues("dijkstra", "reachable")), 1},
		{"unreachable", testutil.ToFloat64(c.RouteRequests.WithLabelValues("dijkstra", "unreachable")), 1},
		{"placed", testutil.ToFloat64(c.Placements.WithLabelValues("task", "placed")), 1},
		{"failed", testutil.ToFloat64(c.Placements.WithLabelValues("task", "failed")), 1},
		{"rescheduled", testutil.ToFloat64(c.Reschedules.WithLabelValues("task")), 1},
	}
	for _, ch := range checks {
		if ch.got != ch.want {
			t.Fatalf("%s = %v, want %v", ch.name, ch.got, ch.want)
		}
	}
}

func TestCollectorPhasesAndTicks(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("NewSimulationCollector: %v", err)
	}

	c.ObservePhase("topology", 20*time.Millisecond)
	c.ObservePhase("topology", 30*time.Millisecond)
	c.ObservePhase("routing", time.Millisecond)
	c.TickDone(42)
	c.SetActiveDeployments(3)

	if n := histogramSampleCount(t, reg, "sim_phase_duration_seconds", map[string]string{"phase": "topology"}); n != 2 {
		t.Fatalf("topology samples = %d, want 2", n)
	}
	if got := testutil.ToFloat64(c.EstablishedLinks); got != 42 {
		t.Fatalf("established = %v, want 42", got)
	}
	if got := testutil.ToFloat64(c.Ticks); got != 1 {
		t.Fatalf("ticks = %v, want 1", got)
	}
}

func TestCollectorReusesRegisteredMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	first, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	first.Reschedule(deployment.KindWorkflow)
	if got := testutil.ToFloat64(second.Reschedules.WithLabelValues("workflow")); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *SimulationCollector
	c.ObservePhase("positions", time.Second)
	c.TickDone(1)
	c.SetActiveDeployments(1)
	c.TopologyComputation("pst", true)
	c.RouteRequest("flood", true)
	c.Placement(deployment.KindDefault, true)
	c.Reschedule(deployment.KindDefault)
}

func TestMetricsHandlerExposesSimulationMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewSimulationCollector(reg)
	if err != nil {
		t.Fatalf("NewSimulationCollector: %v", err)
	}
	c.TickDone(7)
	c.RouteRequest("a-star", true)
	c.ObservePhase("positions", time.Millisecond)

	rr := httptest.NewRecorder()
	c.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("/metrics status = %d, want 200", rr.Code)
	}
	body := rr.Body.String()
	for _, metric := range []string{
		"sim_ticks_total 1",
		"sim_established_links 7",
		`sim_route_requests_total{result="reachable",router="a-star"} 1`,
		"sim_phase_duration_seconds_count",
	} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in /metrics output:\n%s", metric, body)
		}
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
