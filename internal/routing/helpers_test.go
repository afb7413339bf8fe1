package routing

import (
	"testing"

	"github.com/signalsfoundry/constellation-testbed/core"
	"github.com/signalsfoundry/constellation-testbed/internal/computing"
)

type testNet struct {
	net   *core.Network
	reg   *Registry
	nodes []*core.Node
}

// newTestNet places one satellite per position. Every node gets an edge
// ledger with room for a handful of services.
func newTestNet(t *testing.T, positions ...core.Vec3) *testNet {
	t.Helper()
	tn := &testNet{net: core.NewNetwork(), reg: NewRegistry()}
	for _, p := range positions {
		ledger := computing.New(computing.ClassEdge, 100, 100)
		tn.nodes = append(tn.nodes, tn.net.AddNode("", core.KindSatellite, &core.StaticMotion{Pos: p}, ledger))
	}
	return tn
}

// along returns points on a line parallel to the Y axis, well clear of the
// Earth, at the given offsets in metres.
func along(offsets ...float64) []core.Vec3 {
	out := make([]core.Vec3, len(offsets))
	for i, y := range offsets {
		out[i] = core.Vec3{X: 7_000_000, Y: y}
	}
	return out
}

// connect adds an established inter-satellite link between nodes i and j.
func (tn *testNet) connect(t *testing.T, i, j int) core.LinkID {
	t.Helper()
	id, err := tn.net.AddLink(tn.nodes[i].ID, tn.nodes[j].ID, core.LinkISL)
	if err != nil {
		t.Fatalf("AddLink(%d, %d): %v", i, j, err)
	}
	tn.net.SetEstablished(id, true)
	return id
}

func (tn *testNet) routers(t *testing.T, protocol string) []Router {
	t.Helper()
	b, err := NewBuilder(tn.net, tn.reg, Config{Protocol: protocol}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	out := make([]Router, len(tn.nodes))
	for i, n := range tn.nodes {
		r, err := b.Build(n)
		if err != nil {
			t.Fatalf("Build(%s): %v", n, err)
		}
		out[i] = r
	}
	return out
}

func (tn *testNet) place(t *testing.T, i int, name string) {
	t.Helper()
	svc, err := computing.NewService(name, 1, 1)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	ok, err := tn.nodes[i].Computing().TryPlace(t.Context(), svc)
	if err != nil || !ok {
		t.Fatalf("TryPlace(%s on %d) = %v, %v", name, i, ok, err)
	}
}
