package bus

import (
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/comp"
	"gotest.tools/v3/assert"
)

type node struct {
	info  comp.Info
	conns []string
}

func newTestGraph(t *testing.T, nodes ...node) (*comp.Graph, []comp.State) {
	t.Helper()
	g, err := comp.NewGraph()
	assert.NilError(t, err)
	for _, n := range nodes {
		_, err := g.AddNode(n.info, n.conns)
		assert.NilError(t, err)
	}
	assert.NilError(t, g.Finalize())

	states := make([]comp.State, g.Len())
	for i := range states {
		info := g.Info(i)
		switch info.Type {
		case comp.CB:
			states[i].CB.Closed = true
		case comp.Tie:
			states[i].Tie.Joined = make([]bool, len(g.Conns(i)))
		}
	}
	return g, states
}

func bus(name string) node {
	return node{info: comp.Info{Name: name, Type: comp.Bus}}
}

func link(name string, typ comp.Type, conns ...string) node {
	return node{info: comp.Info{Name: name, Type: typ}, conns: conns}
}

func idx(t *testing.T, g *comp.Graph, name string) int {
	t.Helper()
	i, ok := g.Index(name)
	assert.Assert(t, ok, name)
	return i
}

func TestResolveBreaker(t *testing.T) {
	g, states := newTestGraph(t,
		bus("B1"), bus("B2"),
		link("CB", comp.CB, "B1", "B2"),
	)
	b1, b2, cb := idx(t, g, "B1"), idx(t, g, "B2"), idx(t, g, "CB")

	is := Resolve(g, states)
	assert.Equal(t, is.Len(), 1)
	assert.Equal(t, is.Of[b1], is.Of[b2])
	assert.Equal(t, is.Of[cb], None)
	assert.DeepEqual(t, is.Tree[0], []Edge{{Comp: cb, A: b1, B: b2}})

	states[cb].CB.Closed = false
	is = Resolve(g, states)
	assert.Equal(t, is.Len(), 2)
	assert.Assert(t, is.Of[b1] != is.Of[b2])

	states[cb].CB.Closed = true
	states[cb].Failed = true
	is = Resolve(g, states)
	assert.Equal(t, is.Len(), 2)
}

func TestResolveTiePartialJoin(t *testing.T) {
	g, states := newTestGraph(t,
		bus("B1"), bus("B2"), bus("B3"),
		link("TIE", comp.Tie, "B1", "B2", "B3"),
	)
	b1, b2, b3, tie := idx(t, g, "B1"), idx(t, g, "B2"), idx(t, g, "B3"), idx(t, g, "TIE")

	assert.Equal(t, Resolve(g, states).Len(), 3)

	states[tie].Tie.Joined = []bool{false, true, true}
	is := Resolve(g, states)
	assert.Equal(t, is.Len(), 2)
	assert.Equal(t, is.Of[b2], is.Of[b3])
	assert.Assert(t, is.Of[b1] != is.Of[b2])

	states[tie].Tie.Joined = []bool{true, true, true}
	is = Resolve(g, states)
	assert.Equal(t, is.Len(), 1)
	assert.Equal(t, len(is.Tree[0]), 2)
	assert.Equal(t, is.Tree[0][0].A, b1)

	// a single joined bus joins nothing
	states[tie].Tie.Joined = []bool{false, false, true}
	assert.Equal(t, Resolve(g, states).Len(), 3)
}

func TestResolveRing(t *testing.T) {
	g, states := newTestGraph(t,
		bus("B1"), bus("B2"), bus("B3"),
		link("CB12", comp.CB, "B1", "B2"),
		link("CB23", comp.CB, "B2", "B3"),
		link("CB31", comp.CB, "B3", "B1"),
	)
	is := Resolve(g, states)
	assert.Equal(t, is.Len(), 1)
	assert.Equal(t, len(is.Tree[0]), 2)
	assert.Equal(t, len(is.Ring[0]), 1)
	assert.Equal(t, is.Ring[0][0].Comp, idx(t, g, "CB31"))
}

func TestResolveFailedBus(t *testing.T) {
	g, states := newTestGraph(t,
		bus("B1"), bus("B2"), bus("B3"),
		link("S12", comp.Shunt, "B1", "B2"),
		link("S23", comp.Shunt, "B2", "B3"),
	)
	b1, b2, b3 := idx(t, g, "B1"), idx(t, g, "B2"), idx(t, g, "B3")
	assert.Equal(t, Resolve(g, states).Len(), 1)

	states[b2].Failed = true
	is := Resolve(g, states)
	assert.Equal(t, is.Len(), 2)
	assert.Equal(t, is.Of[b2], None)
	assert.Assert(t, is.Of[b1] != is.Of[b3])
}

func TestResolveShorted(t *testing.T) {
	g, states := newTestGraph(t,
		bus("B1"), bus("B2"), bus("B3"),
		link("CB", comp.CB, "B1", "B2"),
		link("L", comp.Load, "B3"),
	)
	l, b1, b3 := idx(t, g, "L"), idx(t, g, "B1"), idx(t, g, "B3")

	states[l].Shorted = true
	is := Resolve(g, states)
	assert.Assert(t, is.Shorted[is.Of[b3]])
	assert.Assert(t, !is.Shorted[is.Of[b1]])

	// a failed component cannot short
	states[l].Failed = true
	is = Resolve(g, states)
	assert.Assert(t, !is.Shorted[is.Of[b3]])
}

func TestResolveCouplings(t *testing.T) {
	g, states := newTestGraph(t,
		bus("AC"), bus("DC"), bus("BATT_BUS"),
		link("TRU", comp.TRU, "AC", "DC"),
		link("D", comp.Diode, "BATT_BUS", "DC"),
	)
	ac, dc, bb := idx(t, g, "AC"), idx(t, g, "DC"), idx(t, g, "BATT_BUS")
	tru, d := idx(t, g, "TRU"), idx(t, g, "D")

	is := Resolve(g, states)
	assert.Equal(t, is.Len(), 3)
	assert.DeepEqual(t, is.Couplings, []Coupling{
		{Comp: tru, From: is.Of[ac], To: is.Of[dc]},
		{Comp: d, From: is.Of[bb], To: is.Of[dc]},
	})

	// reverse biased diode drops out
	states[bb].OutVolts = 24
	states[dc].OutVolts = 28
	is = Resolve(g, states)
	assert.Equal(t, len(is.Couplings), 1)
	assert.Equal(t, is.Couplings[0].Comp, tru)

	states[tru].Failed = true
	is = Resolve(g, states)
	assert.Equal(t, len(is.Couplings), 0)
}
