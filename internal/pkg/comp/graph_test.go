package comp

import (
	"errors"
	"strings"
	"testing"

	"gotest.tools/v3/assert"
)

func buildGraph(t *testing.T, nodes []Info, conns map[string][]string) *Graph {
	t.Helper()
	g, err := NewGraph()
	assert.NilError(t, err)
	for _, n := range nodes {
		_, err := g.AddNode(n, conns[n.Name])
		assert.NilError(t, err)
	}
	assert.NilError(t, g.Finalize())
	return g
}

func TestParseType(t *testing.T) {
	for _, s := range []string{"GEN", "batt", " Tie ", "LABEL_BOX"} {
		_, err := ParseType(s)
		assert.NilError(t, err)
	}
	typ, _ := ParseType("diode")
	assert.Equal(t, typ, Diode)
	assert.Equal(t, typ.String(), "DIODE")

	_, err := ParseType("FLUXCAP")
	assert.ErrorContains(t, err, "unknown component type")
}

func TestArity(t *testing.T) {
	min, max := Gen.Arity()
	assert.Equal(t, min, 1)
	assert.Equal(t, max, 1)

	min, max = CB.Arity()
	assert.Equal(t, min, 2)
	assert.Equal(t, max, 2)

	min, max = Tie.Arity()
	assert.Equal(t, min, 2)
	assert.Equal(t, max, Unbounded)

	min, max = LabelBox.Arity()
	assert.Equal(t, min, 0)
	assert.Equal(t, max, 0)
}

func TestGraphEndpoints(t *testing.T) {
	g := buildGraph(t,
		[]Info{
			{Name: "batt", Type: Batt},
			{Name: "bus", Type: Bus},
			{Name: "load", Type: Load},
		},
		map[string][]string{
			"batt": {"bus"},
			"load": {"bus"},
		})

	busIdx, ok := g.Index("bus")
	assert.Assert(t, ok)
	eps := g.Endpoints(busIdx)
	assert.Equal(t, len(eps), 2)
	assert.Equal(t, eps[0], Endpoint{Comp: 0, Slot: 0})
	assert.Equal(t, eps[1], Endpoint{Comp: 2, Slot: 0})
	assert.Equal(t, g.Conn(2, 0), busIdx)
	assert.Equal(t, g.Conn(2, 1), Unresolved)
	assert.NilError(t, g.Validate())
	assert.Assert(t, g.CanStart())
}

func TestGraphDuplicateName(t *testing.T) {
	g, _ := NewGraph()
	_, err := g.AddNode(Info{Name: "a", Type: Bus}, nil)
	assert.NilError(t, err)
	_, err = g.AddNode(Info{Name: "a", Type: Load}, nil)
	assert.ErrorContains(t, err, "already exists")
}

func TestGraphNonBusLink(t *testing.T) {
	g, _ := NewGraph()
	g.AddNode(Info{Name: "batt", Type: Batt}, []string{"cb"})
	g.AddNode(Info{Name: "cb", Type: CB}, []string{"batt", "bus"})
	g.AddNode(Info{Name: "bus", Type: Bus}, nil)
	err := g.Finalize()
	assert.ErrorContains(t, err, "connect only to buses")
}

func TestValidateUnresolved(t *testing.T) {
	g := buildGraph(t,
		[]Info{
			{Name: "bus", Type: Bus},
			{Name: "load", Type: Load},
		},
		map[string][]string{
			"load": {"nowhere"},
		})
	err := g.Validate()
	assert.Assert(t, errors.Is(err, ErrValidation))
	assert.Assert(t, strings.Contains(err.Error(), `unknown component "nowhere"`))
	assert.Assert(t, strings.Contains(err.Error(), `bus "bus" has no endpoints`))
	assert.Assert(t, !g.CanStart())
}

func TestValidateOrphanedTie(t *testing.T) {
	g := buildGraph(t,
		[]Info{
			{Name: "gen", Type: Gen, AC: true},
			{Name: "bus1", Type: Bus, AC: true},
			{Name: "tie", Type: Tie, AC: true},
		},
		map[string][]string{
			"gen": {"bus1"},
			"tie": {"bus1", "bus2"},
		})
	err := g.Validate()
	assert.Assert(t, errors.Is(err, ErrValidation))
	assert.ErrorContains(t, err, `tie "tie" is orphaned`)
}

func TestValidateDomain(t *testing.T) {
	g := buildGraph(t,
		[]Info{
			{Name: "ac", Type: Bus, AC: true},
			{Name: "dc", Type: Bus},
			{Name: "tru", Type: TRU},
			{Name: "inv", Type: Inv},
			{Name: "gen", Type: Gen, AC: true},
			{Name: "batt", Type: Batt},
		},
		map[string][]string{
			"tru":  {"ac", "dc"},
			"inv":  {"ac", "dc"},
			"gen":  {"ac"},
			"batt": {"dc"},
		})
	err := g.Validate()
	assert.Assert(t, errors.Is(err, ErrValidation))
	assert.ErrorContains(t, err, `INV "inv" slot 0 expects DC bus`)
	assert.Assert(t, !strings.Contains(err.Error(), `TRU "tru"`))
}

func TestStateClone(t *testing.T) {
	s := State{Tie: TieState{Joined: []bool{true, false}}}
	c := s.Clone()
	c.Tie.Joined[1] = true
	assert.Assert(t, !s.Tie.Joined[1])
	assert.Equal(t, c.Tie.JoinedCount(), 2)
}
