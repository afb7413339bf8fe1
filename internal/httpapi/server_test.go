package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/computing"
	"github.com/signalsfoundry/constellation-testbed/internal/deployment"
	"github.com/signalsfoundry/constellation-testbed/internal/routing"
	"github.com/signalsfoundry/constellation-testbed/internal/sim"
)

type fakeSim struct {
	nodes []sim.NodeView
}

func (f *fakeSim) Nodes() []sim.NodeView { return f.nodes }

func (f *fakeSim) Route(_ context.Context, from, to string) (routing.RouteResult, error) {
	if from != "Vienna" || to == "Atlantis" {
		return nil, fmt.Errorf("%w: %q", core.ErrNodeNotFound, to)
	}
	if to == "Moon" {
		return routing.Unreachable{}, nil
	}
	return routing.NewPreRouteResult(42 * time.Millisecond), nil
}

func (f *fakeSim) RouteToService(_ context.Context, _, service string) (routing.RouteResult, error) {
	return routing.NewOnRouteResult(7*time.Millisecond, 0), nil
}

type fakeDeployments []deployment.Specification

func (f fakeDeployments) Active() []deployment.Specification { return f }

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	svc, err := computing.NewService("cache", 1, 1)
	require.NoError(t, err)
	spec, err := deployment.NewDefaultSpec(svc, 2, computing.ClassEdge)
	require.NoError(t, err)

	s := &fakeSim{nodes: []sim.NodeView{
		{ID: 0, Name: "W00-00", Kind: "satellite", Class: "edge", Links: 3},
		{ID: 1, Name: "Vienna", Kind: "ground_station", Class: "cloud", Links: 1, Services: []string{"cache"}},
	}}
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("sim_ticks_total 1\n"))
	})
	return NewRouter(s, fakeDeployments{spec}, metrics, nil)
}

func get(t *testing.T, h http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, get(t, h, "/healthz").Code)

	rr := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rr.Code)
	require.Contains(t, rr.Body.String(), "sim_ticks_total")
}

func TestNodes(t *testing.T) {
	h := newTestRouter(t)

	rr := get(t, h, "/v1/nodes")
	require.Equal(t, http.StatusOK, rr.Code)
	var nodes []sim.NodeView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&nodes))
	require.Len(t, nodes, 2)

	rr = get(t, h, "/v1/nodes/Vienna")
	require.Equal(t, http.StatusOK, rr.Code)
	var node sim.NodeView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&node))
	require.Equal(t, []string{"cache"}, node.Services)

	require.Equal(t, http.StatusNotFound, get(t, h, "/v1/nodes/Atlantis").Code)
}

func TestRoutes(t *testing.T) {
	h := newTestRouter(t)

	rr := get(t, h, "/v1/routes?from=Vienna&to=Sydney")
	require.Equal(t, http.StatusOK, rr.Code)
	var v sim.RouteView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	require.True(t, v.Reachable)
	require.InDelta(t, 42, v.LatencyMs, 1e-9)
	require.False(t, v.OnRoute)

	rr = get(t, h, "/v1/routes?from=Vienna&to=Moon")
	require.Equal(t, http.StatusOK, rr.Code)
	v = sim.RouteView{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	require.False(t, v.Reachable)

	rr = get(t, h, "/v1/routes?from=Vienna&service=cache")
	require.Equal(t, http.StatusOK, rr.Code)
	v = sim.RouteView{}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&v))
	require.True(t, v.OnRoute)
	require.Equal(t, "cache", v.Service)
}

func TestRouteErrors(t *testing.T) {
	h := newTestRouter(t)

	for _, target := range []string{
		"/v1/routes",
		"/v1/routes?from=Vienna",
		"/v1/routes?from=Vienna&to=Sydney&service=cache",
	} {
		rr := get(t, h, target)
		require.Equal(t, http.StatusBadRequest, rr.Code, target)
		var resp Response
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&resp))
		require.NotEmpty(t, resp.Error)
	}
	require.Equal(t, http.StatusNotFound, get(t, h, "/v1/routes?from=Vienna&to=Atlantis").Code)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/nodes", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}

func TestDeployments(t *testing.T) {
	rr := get(t, newTestRouter(t), "/v1/deployments")
	require.Equal(t, http.StatusOK, rr.Code)
	var out []DeploymentView
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&out))
	require.Len(t, out, 1)
	require.Equal(t, "default", out[0].Kind)
	require.Contains(t, out[0].Name, "cache")
}

func TestServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- Serve(ctx, "127.0.0.1:0", newTestRouter(t), nil) }()
	cancel()
	select {
	case err := <-errc:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatalf("Serve did not return after cancellation")
	}
}
