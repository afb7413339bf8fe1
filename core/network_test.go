package core

import (
	"errors"
	"math"
	"testing"
	"time"
)

func newTestNetwork(t *testing.T, positions ...Vec3) (*Network, []*Node) {
	t.Helper()
	net := NewNetwork()
	nodes := make([]*Node, len(positions))
	for i, p := range positions {
		nodes[i] = net.AddNode("", KindSatellite, &StaticMotion{Pos: p}, nil)
	}
	return net, nodes
}

func TestAddLinkIsIdempotentPerPair(t *testing.T) {
	net, nodes := newTestNetwork(t,
		Vec3{X: 7_000_000},
		Vec3{X: 7_000_000, Y: 1_000_000},
	)

	first, err := net.AddLink(nodes[0].ID, nodes[1].ID, LinkISL)
	if err != nil {
		t.Fatalf("AddLink: %v", err)
	}
	second, err := net.AddLink(nodes[1].ID, nodes[0].ID, LinkISL)
	if err != nil {
		t.Fatalf("AddLink reversed: %v", err)
	}
	if first != second {
		t.Fatalf("AddLink returned %d then %d for the same pair", first, second)
	}
	if got := net.LinkCount(); got != 1 {
		t.Fatalf("LinkCount = %d, want 1", got)
	}
	if got := len(net.LinksOf(nodes[0].ID)); got != 1 {
		t.Fatalf("LinksOf = %d, want 1", got)
	}
}

func TestAddLinkRejectsUnknownAndSelf(t *testing.T) {
	net, nodes := newTestNetwork(t, Vec3{X: 7_000_000})
	if _, err := net.AddLink(nodes[0].ID, nodes[0].ID, LinkISL); err == nil {
		t.Fatalf("expected self link to be rejected")
	}
	if _, err := net.AddLink(nodes[0].ID, 42, LinkISL); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("AddLink unknown = %v, want ErrNodeNotFound", err)
	}
}

func TestLinkLatencyMatchesSpeedFactor(t *testing.T) {
	net, nodes := newTestNetwork(t,
		Vec3{X: 7_000_000},
		Vec3{X: 7_000_000, Y: 300_000_000},
	)
	id, _ := net.AddLink(nodes[0].ID, nodes[1].ID, LinkISL)

	got := net.Latency(id)
	want := 300_000_000 / (SpeedOfLight * 0.99) * float64(time.Second)
	if math.Abs(float64(got)-want) > float64(time.Microsecond) {
		t.Fatalf("Latency = %v, want %v", got, time.Duration(want))
	}
	if got.Round(time.Millisecond) != 1011*time.Millisecond {
		t.Fatalf("Latency rounded = %v, want 1011ms", got.Round(time.Millisecond))
	}

	ground := net.AddNode("gs", KindGroundStation, &StaticMotion{Pos: Vec3{X: EarthRadius}}, nil)
	gid, _ := net.AddLink(ground.ID, nodes[0].ID, LinkGround)
	if net.Bandwidth(gid) != 500_000_000 {
		t.Fatalf("ground bandwidth = %f", net.Bandwidth(gid))
	}
	if !net.IsReachable(gid) {
		t.Fatalf("ground links are always reachable")
	}
}

func TestEstablishedSideTable(t *testing.T) {
	net, nodes := newTestNetwork(t,
		Vec3{X: 7_000_000},
		Vec3{X: 7_000_000, Y: 100_000},
		Vec3{X: 7_000_000, Y: 200_000},
	)
	ab, _ := net.AddLink(nodes[0].ID, nodes[1].ID, LinkISL)
	bc, _ := net.AddLink(nodes[1].ID, nodes[2].ID, LinkISL)

	net.SetEstablished(ab, true)
	if !net.Established(ab) || net.Established(bc) {
		t.Fatalf("established flags wrong: ab=%v bc=%v", net.Established(ab), net.Established(bc))
	}
	if got := net.EstablishedLinks(nodes[1].ID); len(got) != 1 || got[0] != ab {
		t.Fatalf("EstablishedLinks(b) = %v, want [%d]", got, ab)
	}
	if got := net.EstablishedDegree(nodes[1].ID, LinkISL); got != 1 {
		t.Fatalf("EstablishedDegree = %d, want 1", got)
	}
	net.SetEstablished(bc, true)
	if got := net.EstablishedCount(); got != 2 {
		t.Fatalf("EstablishedCount = %d, want 2", got)
	}
}

func TestNodeByName(t *testing.T) {
	net := NewNetwork()
	n := net.AddNode("vienna", KindGroundStation, &EarthFixedMotion{Latitude: 48.2, Longitude: 16.37}, nil)

	got, err := net.NodeByName("vienna")
	if err != nil {
		t.Fatalf("NodeByName: %v", err)
	}
	if got != n {
		t.Fatalf("NodeByName returned %v, want %v", got, n)
	}
	if _, err := net.NodeByName("nowhere"); !errors.Is(err, ErrNodeNotFound) {
		t.Fatalf("NodeByName unknown = %v, want ErrNodeNotFound", err)
	}
	if n.Computing() == nil {
		t.Fatalf("nil ledger should default to an empty one")
	}
}
