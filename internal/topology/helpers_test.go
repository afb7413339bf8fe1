package topology

import (
	"context"
	"math"
	"testing"

	"github.com/signalsfoundry/constellation-testbed/core"
)

// orbitBase keeps test constellations well above the Earth so every link
// between nearby points clears it.
var orbitBase = core.Vec3{X: 7_000_000}

type testConstellation struct {
	net   *core.Network
	reg   *Registry
	sats  []*core.Node
	links map[[2]int]core.LinkID
}

// newConstellation places satellites at orbitBase + (0, y, z) for each
// given (y, z) offset in metres.
func newConstellation(t *testing.T, offsets ...[2]float64) *testConstellation {
	t.Helper()
	tc := &testConstellation{
		net:   core.NewNetwork(),
		reg:   NewRegistry(),
		links: make(map[[2]int]core.LinkID),
	}
	for _, o := range offsets {
		pos := orbitBase.Add(core.Vec3{Y: o[0], Z: o[1]})
		tc.sats = append(tc.sats, tc.net.AddNode("", core.KindSatellite, &core.StaticMotion{Pos: pos}, nil))
	}
	return tc
}

// link registers a candidate between satellites i and j (0-based).
func (tc *testConstellation) link(t *testing.T, i, j int) core.LinkID {
	t.Helper()
	id, err := tc.net.AddLink(tc.sats[i].ID, tc.sats[j].ID, core.LinkISL)
	if err != nil {
		t.Fatalf("AddLink(%d, %d): %v", i, j, err)
	}
	tc.links[[2]int{i, j}] = id
	tc.links[[2]int{j, i}] = id
	return id
}

func (tc *testConstellation) linkAll(t *testing.T) {
	t.Helper()
	for i := range tc.sats {
		for j := i + 1; j < len(tc.sats); j++ {
			tc.link(t, i, j)
		}
	}
}

// build creates a protocol chain for every satellite and feeds it the
// satellite's candidate links.
func (tc *testConstellation) build(t *testing.T, cfg Config) (*Builder, []Protocol) {
	t.Helper()
	b, err := NewBuilder(tc.net, tc.reg, cfg, nil)
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	protocols := make([]Protocol, len(tc.sats))
	for i, sat := range tc.sats {
		p, err := b.Build(sat)
		if err != nil {
			t.Fatalf("Build(%s): %v", sat, err)
		}
		for _, id := range tc.net.LinksOf(sat.ID) {
			if err := p.AddLink(id); err != nil {
				t.Fatalf("AddLink: %v", err)
			}
		}
		protocols[i] = p
	}
	return b, protocols
}

func (tc *testConstellation) updateAll(t *testing.T, protocols []Protocol) {
	t.Helper()
	for _, p := range protocols {
		if _, err := p.UpdateLinks(context.Background()); err != nil {
			t.Fatalf("UpdateLinks: %v", err)
		}
	}
}

func (tc *testConstellation) established() []core.LinkID {
	var out []core.LinkID
	for id := 0; id < tc.net.LinkCount(); id++ {
		if tc.net.Established(core.LinkID(id)) {
			out = append(out, core.LinkID(id))
		}
	}
	return out
}

// assertForest fails when the links contain a cycle.
func assertForest(t *testing.T, net *core.Network, links []core.LinkID) {
	t.Helper()
	uf := newUnionFind(len(links))
	for _, id := range links {
		l := net.Link(id)
		if !uf.union(l.A, l.B) {
			t.Fatalf("link %s closes a cycle in %v", l, links)
		}
	}
}

// fourSatelliteOffsets returns planar positions with
// d(1,2)=100, d(1,3)=200, d(2,3)=150, d(2,4)=120, d(3,4)=80.
func fourSatelliteOffsets() [][2]float64 {
	p1 := [2]float64{0, 0}
	p2 := [2]float64{100, 0}
	x3 := (200.0*200 - 150*150 + 100*100) / (2 * 100)
	p3 := [2]float64{x3, math.Sqrt(200*200 - x3*x3)}

	// Circle intersection of |P4-P2| = 120 and |P4-P3| = 80.
	d := 150.0
	a := (120.0*120 - 80*80 + d*d) / (2 * d)
	h := math.Sqrt(120*120 - a*a)
	ux, uy := (p3[0]-p2[0])/d, (p3[1]-p2[1])/d
	p4 := [2]float64{p2[0] + a*ux + h*uy, p2[1] + a*uy - h*ux}
	return [][2]float64{p1, p2, p3, p4}
}
