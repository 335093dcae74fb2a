/*
islands.go Topology resolution. Every tick the buses of the network are
partitioned from scratch into electrical islands: maximal sets of buses joined
through closed breakers, shunts and ties. Converters and forward biased diodes
do not merge islands, they couple one island into another.
*/

package bus

import (
	"github.com/ohowland/elec_core/internal/pkg/comp"
)

// None is the island of a component that belongs to no island.
const None = -1

// Edge is a conductor joining two buses of the same island.
type Edge struct {
	Comp int
	A    int
	B    int
}

// Coupling transfers power from one island into another through a TRU, an
// inverter or a diode.
type Coupling struct {
	Comp int
	From int
	To   int
}

// Islands is the partition of the network for one tick.
type Islands struct {
	// Of maps a component index to its island. Only non-failed buses have one.
	Of []int
	// Buses lists the bus indices of each island in definition order.
	Buses [][]int
	// Tree holds the conductors that first joined each island's buses. Conductors
	// closing a ring inside an island are in Ring instead.
	Tree    [][]Edge
	Ring    [][]Edge
	Shorted []bool
	// Couplings are the active couplings between distinct islands.
	Couplings []Coupling
}

// Len is the number of islands.
func (is Islands) Len() int {
	return len(is.Buses)
}

// Slot returns the island behind a component slot, or None.
func (is Islands) Slot(g *comp.Graph, i int, slot int) int {
	b := g.Conn(i, slot)
	if b == comp.Unresolved {
		return None
	}
	return is.Of[b]
}

// Resolve partitions the network given the closure and fault state of the
// current tick. The bias of each diode is taken from the bus voltages of the
// previous tick held in states.
func Resolve(g *comp.Graph, states []comp.State) Islands {
	n := g.Len()
	uf := newUnionFind(n)
	live := func(b int) bool {
		return b != comp.Unresolved && g.Info(b).Type == comp.Bus && !states[b].Failed
	}

	var conductors []Edge
	for i := 0; i < n; i++ {
		info := g.Info(i)
		s := states[i]
		if !info.Type.IsConductor() || s.Failed {
			continue
		}
		switch info.Type {
		case comp.CB:
			if !s.CB.Closed {
				continue
			}
			fallthrough
		case comp.Shunt:
			a, b := g.Conn(i, 0), g.Conn(i, 1)
			if live(a) && live(b) && a != b {
				conductors = append(conductors, Edge{Comp: i, A: a, B: b})
			}
		case comp.Tie:
			// star from the first joined bus
			hub := comp.Unresolved
			for slot, b := range g.Conns(i) {
				if slot >= len(s.Tie.Joined) || !s.Tie.Joined[slot] || !live(b) {
					continue
				}
				if hub == comp.Unresolved {
					hub = b
					continue
				}
				if b != hub {
					conductors = append(conductors, Edge{Comp: i, A: hub, B: b})
				}
			}
		}
	}

	var tree, ring []Edge
	for _, e := range conductors {
		if uf.union(e.A, e.B) {
			tree = append(tree, e)
		} else {
			ring = append(ring, e)
		}
	}

	is := Islands{Of: make([]int, n)}
	rootIsland := make(map[int]int)
	for i := 0; i < n; i++ {
		is.Of[i] = None
		if !live(i) {
			continue
		}
		r := uf.find(i)
		idx, ok := rootIsland[r]
		if !ok {
			idx = len(is.Buses)
			rootIsland[r] = idx
			is.Buses = append(is.Buses, nil)
		}
		is.Of[i] = idx
		is.Buses[idx] = append(is.Buses[idx], i)
	}

	is.Tree = make([][]Edge, len(is.Buses))
	is.Ring = make([][]Edge, len(is.Buses))
	for _, e := range tree {
		k := is.Of[e.A]
		is.Tree[k] = append(is.Tree[k], e)
	}
	for _, e := range ring {
		k := is.Of[e.A]
		is.Ring[k] = append(is.Ring[k], e)
	}

	is.Shorted = make([]bool, len(is.Buses))
	for i := 0; i < n; i++ {
		if !states[i].Shorted || states[i].Failed {
			continue
		}
		if g.Info(i).Type == comp.Bus {
			if k := is.Of[i]; k != None {
				is.Shorted[k] = true
			}
			continue
		}
		for slot := range g.Conns(i) {
			if k := is.Slot(g, i, slot); k != None {
				is.Shorted[k] = true
			}
		}
	}

	for i := 0; i < n; i++ {
		info := g.Info(i)
		if states[i].Failed {
			continue
		}
		switch info.Type {
		case comp.TRU, comp.Inv:
		case comp.Diode:
			if !forwardBiased(g, states, i) {
				continue
			}
		default:
			continue
		}
		from, to := is.Slot(g, i, 0), is.Slot(g, i, 1)
		if from == None || to == None || from == to {
			continue
		}
		is.Couplings = append(is.Couplings, Coupling{Comp: i, From: from, To: to})
	}
	return is
}

// forwardBiased compares the anode and cathode bus voltages of the previous
// tick. A diode with equal voltages on both sides, as on the first tick,
// counts as forward biased.
func forwardBiased(g *comp.Graph, states []comp.State, i int) bool {
	anode, cathode := g.Conn(i, 0), g.Conn(i, 1)
	if anode == comp.Unresolved || cathode == comp.Unresolved {
		return false
	}
	return states[anode].OutVolts >= states[cathode].OutVolts
}
