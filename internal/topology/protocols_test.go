package topology

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/signalsfoundry/constellation-testbed/core"
)

func TestNearestSelectsKNearest(t *testing.T) {
	// Five satellites on a line, 100 m apart.
	tc := newConstellation(t,
		[2]float64{0, 0}, [2]float64{100, 0}, [2]float64{200, 0}, [2]float64{300, 0}, [2]float64{400, 0},
	)
	tc.linkAll(t)
	_, protocols := tc.build(t, Config{Protocol: "nearest", Neighbours: 2})

	got, err := protocols[0].UpdateLinks(context.Background())
	if err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	want := []core.LinkID{tc.links[[2]int{0, 1}], tc.links[[2]int{0, 2}]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("outgoing mismatch (-want +got):\n%s", diff)
	}
	for _, id := range want {
		if !tc.net.Established(id) {
			t.Fatalf("link %d not flagged established", id)
		}
	}

	// Satellite 3 was pushed an incoming link by satellite 1.
	incoming := protocols[2].Established()
	if diff := cmp.Diff([]core.LinkID{tc.links[[2]int{0, 2}]}, incoming); diff != "" {
		t.Fatalf("incoming mismatch (-want +got):\n%s", diff)
	}
}

func TestNearestDisconnectsDroppedLinks(t *testing.T) {
	tc := newConstellation(t, [2]float64{0, 0}, [2]float64{100, 0}, [2]float64{250, 0})
	tc.linkAll(t)
	_, protocols := tc.build(t, Config{Protocol: "nearest", Neighbours: 1})

	if _, err := protocols[0].UpdateLinks(context.Background()); err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	ab := tc.links[[2]int{0, 1}]
	if !tc.net.Established(ab) {
		t.Fatalf("nearest link not established")
	}

	// Move satellite 3 next to satellite 1; the old link is released.
	tc.sats[2].SetPosition(orbitBase.Add(core.Vec3{Y: -10}))
	tc.sats[0].SetPosition(orbitBase.Add(core.Vec3{Y: 1}))
	if _, err := protocols[0].UpdateLinks(context.Background()); err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	if tc.net.Established(ab) {
		t.Fatalf("dropped link stayed established")
	}
	if ac := tc.links[[2]int{0, 2}]; !tc.net.Established(ac) {
		t.Fatalf("new nearest link not established")
	}
	if got := protocols[1].Established(); len(got) != 0 {
		t.Fatalf("remote still lists dropped link: %v", got)
	}
}

func TestNearestMutualSelectionIsListedOnBothSides(t *testing.T) {
	tc := newConstellation(t, [2]float64{0, 0}, [2]float64{100, 0})
	tc.linkAll(t)
	_, protocols := tc.build(t, Config{Protocol: "nearest", Neighbours: 1})
	tc.updateAll(t, protocols)

	// Satellite 2 picks a link satellite 1 already established, so no
	// Connect is sent back; both sides still list it.
	ab := tc.links[[2]int{0, 1}]
	for i, p := range protocols {
		if got := p.Established(); !containsLink(got, ab) {
			t.Fatalf("satellite %d established = %v, want %d", i+1, got, ab)
		}
	}
	if !tc.net.Established(ab) {
		t.Fatalf("link not flagged established")
	}
}

func TestNearestSkipsOccludedLinks(t *testing.T) {
	net := core.NewNetwork()
	reg := NewRegistry()
	a := net.AddNode("a", core.KindSatellite, &core.StaticMotion{Pos: core.Vec3{X: 7_000_000}}, nil)
	b := net.AddNode("b", core.KindSatellite, &core.StaticMotion{Pos: core.Vec3{X: -7_000_000}}, nil)
	id, _ := net.AddLink(a.ID, b.ID, core.LinkISL)

	builder, err := NewBuilder(net, reg, Config{Protocol: "nearest"}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	pa, _ := builder.Build(a)
	builder.Build(b)
	pa.AddLink(id)

	got, err := pa.UpdateLinks(context.Background())
	if err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	if len(got) != 0 || net.Established(id) {
		t.Fatalf("link through the Earth was established: %v", got)
	}
}

// square returns four satellites on a 100 m square: 0-1-2-3 around the
// perimeter, with diagonals of about 141 m.
func square(t *testing.T) *testConstellation {
	tc := newConstellation(t, [2]float64{0, 0}, [2]float64{100, 0}, [2]float64{100, 100}, [2]float64{0, 100})
	tc.link(t, 0, 1)
	tc.link(t, 1, 2)
	tc.link(t, 2, 3)
	tc.link(t, 3, 0)
	tc.link(t, 0, 2)
	tc.link(t, 1, 3)
	return tc
}

func TestLoopAddsRedundantLink(t *testing.T) {
	tc := square(t)
	_, protocols := tc.build(t, Config{Protocol: "mst_loop", Neighbours: 4})

	got, err := protocols[0].UpdateLinks(context.Background())
	if err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	want := []core.LinkID{tc.links[[2]int{0, 1}], tc.links[[2]int{3, 0}]}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("loop result mismatch (-want +got):\n%s", diff)
	}
	if !tc.net.Established(tc.links[[2]int{3, 0}]) {
		t.Fatalf("loop link not established")
	}
	if got := protocols[3].Established(); !containsLink(got, tc.links[[2]int{3, 0}]) {
		t.Fatalf("remote endpoint did not record loop link: %v", got)
	}
}

func TestLoopLeavesSaturatedNodes(t *testing.T) {
	tc := square(t)
	_, protocols := tc.build(t, Config{Protocol: "mst_loop", Neighbours: 2})

	got, err := protocols[0].UpdateLinks(context.Background())
	if err != nil {
		t.Fatalf("UpdateLinks: %v", err)
	}
	if diff := cmp.Diff([]core.LinkID{tc.links[[2]int{0, 1}]}, got); diff != "" {
		t.Fatalf("loop should not trigger at Neighbours-1 (-want +got):\n%s", diff)
	}
}

func TestSmartLoopClosesLeaves(t *testing.T) {
	tc := square(t)
	b, protocols := tc.build(t, Config{Protocol: "mst_smart_loop", Neighbours: 4})
	tc.updateAll(t, protocols)

	want := []core.LinkID{
		tc.links[[2]int{0, 1}],
		tc.links[[2]int{1, 2}],
		tc.links[[2]int{2, 3}],
		tc.links[[2]int{3, 0}],
	}
	if diff := cmp.Diff(want, tc.established()); diff != "" {
		t.Fatalf("established mismatch (-want +got):\n%s", diff)
	}
	if got := b.Shared().(*SmartLoop).Computations(); got != 1 {
		t.Fatalf("smart loop computations = %d, want 1", got)
	}
	got, _ := protocols[3].UpdateLinks(context.Background())
	if diff := cmp.Diff([]core.LinkID{tc.links[[2]int{2, 3}], tc.links[[2]int{3, 0}]}, got); diff != "" {
		t.Fatalf("filtered result mismatch (-want +got):\n%s", diff)
	}
}

func TestPSTRespectsDegreeCapAndStaysAcyclic(t *testing.T) {
	// A hub surrounded by eight close satellites.
	offsets := [][2]float64{{0, 0}}
	for i := 0; i < 8; i++ {
		offsets = append(offsets, [2]float64{float64(100 + i), float64(i * 1000)})
	}
	tc := newConstellation(t, offsets...)
	for i := 1; i < len(offsets); i++ {
		tc.link(t, 0, i)
	}
	_, protocols := tc.build(t, Config{Protocol: "pst", MaxDegree: 3, Workers: 3})
	tc.updateAll(t, protocols)

	est := tc.established()
	assertForest(t, tc.net, est)
	if got := tc.net.EstablishedDegree(tc.sats[0].ID, core.LinkISL); got != 3 {
		t.Fatalf("hub degree = %d, want 3", got)
	}
	if len(est) > len(tc.sats)-1 {
		t.Fatalf("forest has %d links for %d satellites", len(est), len(tc.sats))
	}
}

func TestPSTApproximatesTree(t *testing.T) {
	offsets := make([][2]float64, 30)
	for i := range offsets {
		offsets[i] = [2]float64{float64(i%6) * 200_000, float64(i/6) * 200_000}
	}
	tc := newConstellation(t, offsets...)
	tc.linkAll(t)
	_, protocols := tc.build(t, Config{Protocol: "pst_loop"})
	tc.updateAll(t, protocols)

	for _, sat := range tc.sats {
		if tc.net.EstablishedDegree(sat.ID, core.LinkISL) == 0 {
			t.Fatalf("%s has no established link", sat)
		}
	}
}

func TestGroundNearestFollowsSatellites(t *testing.T) {
	net := core.NewNetwork()
	reg := NewRegistry()
	gs := net.AddNode("vienna", core.KindGroundStation, &core.StaticMotion{Pos: core.Vec3{X: core.EarthRadius}}, nil)
	s1 := net.AddNode("s1", core.KindSatellite, &core.StaticMotion{Pos: core.Vec3{X: core.EarthRadius + 550_000}}, nil)
	s2 := net.AddNode("s2", core.KindSatellite, &core.StaticMotion{Pos: core.Vec3{X: core.EarthRadius + 550_000, Y: 2_000_000}}, nil)

	b, err := NewBuilder(net, reg, Config{Protocol: "mst"}, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	p, err := b.BuildGround(gs)
	if err != nil {
		t.Fatalf("BuildGround: %v", err)
	}

	first, err := p.UpdateLinks(context.Background())
	if err != nil || len(first) != 1 {
		t.Fatalf("UpdateLinks = %v, %v", first, err)
	}
	if net.Link(first[0]).Other(gs.ID) != s1.ID {
		t.Fatalf("ground station linked to %d, want %d", net.Link(first[0]).Other(gs.ID), s1.ID)
	}

	s1.SetPosition(core.Vec3{X: core.EarthRadius + 550_000, Y: -3_000_000})
	second, _ := p.UpdateLinks(context.Background())
	if net.Link(second[0]).Other(gs.ID) != s2.ID {
		t.Fatalf("ground station did not hand over to s2")
	}
	if net.Established(first[0]) || !net.Established(second[0]) {
		t.Fatalf("handover flags wrong: old=%v new=%v", net.Established(first[0]), net.Established(second[0]))
	}
	if got := len(p.Links()); got != 2 {
		t.Fatalf("ground links = %d, want 2", got)
	}

	if _, err := b.BuildGround(s1); err == nil {
		t.Fatalf("BuildGround accepted a satellite")
	}
}

func containsLink(ids []core.LinkID, id core.LinkID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
