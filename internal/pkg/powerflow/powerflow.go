/*
powerflow.go Quasi-static power flow. Given the islands of a tick, every island
gets the highest voltage available to it, from its own generators and batteries
or through converters and diodes fed by other islands. Demand is then summed
downstream first and split among each island's suppliers, and the resulting
currents are pushed through the conductors that joined the island.

Generators are regulated and hold their bus at their output voltage. Batteries
are open circuit voltages behind their internal resistance and share what is
left by conductance, so their terminal voltage depends on the demand of the
same tick. Solve repeats the flow until those terminal voltages settle.
*/

package powerflow

import (
	"math"

	"github.com/ohowland/elec_core/internal/pkg/bms"
	"github.com/ohowland/elec_core/internal/pkg/bus"
	"github.com/ohowland/elec_core/internal/pkg/comp"
)

const (
	// epsVolts is the tolerance under which two supply voltages are equal.
	epsVolts = 1e-3
	// epsSettle is the battery terminal voltage change that ends the passes
	// of one tick.
	epsSettle = 1e-9
	maxPasses = 16
	// minOhms floors the internal resistance of a battery.
	minOhms = 1e-6
)

// Env carries the network-wide parameters of the solver.
type Env struct {
	AmbientTemp      float64
	ShortCircuitAmps float64
}

// Result sums the power flows of one tick.
type Result struct {
	Islands   int
	SourcePwr float64 // delivered by generators and discharging batteries
	LoadPwr   float64 // drawn by loads from their buses
	ChargePwr float64 // accepted by charging batteries
	LossPwr   float64 // dissipated in converters and diodes
}

// Solver computes the electrical state of one network.
type Solver struct {
	g     *comp.Graph
	env   Env
	batts map[int]*bms.Model
}

// New returns a solver for g. batts holds the model of every battery by
// component index.
func New(g *comp.Graph, env Env, batts map[int]*bms.Model) *Solver {
	return &Solver{g: g, env: env, batts: batts}
}

// Solve fills the electrical quantities of states for one tick of dt
// simulated seconds. Runtime inputs (fault flags, closure state, generator
// RPM, load demand, battery state) are read from states. Load capacitor
// voltages of the previous tick are read before they are replaced.
func (s *Solver) Solve(is bus.Islands, states []comp.State, dt float64) Result {
	in := make([]comp.State, len(states))
	copy(in, states)

	est := make([]float64, is.Len())
	for k := range est {
		est[k] = -1
	}
	var w *solve
	for pass := 0; pass < maxPasses; pass++ {
		copy(states, in)
		w = s.pass(is, states, dt, est)
		if !w.moved() {
			break
		}
		est = w.next
	}
	w.res.Islands = is.Len()
	return w.res
}

// pass runs the flow once with est as the battery terminal voltage of every
// island, -1 where it is not known yet.
func (s *Solver) pass(is bus.Islands, states []comp.State, dt float64, est []float64) *solve {
	n := s.g.Len()
	w := &solve{
		Solver:   s,
		is:       is,
		st:       states,
		dt:       dt,
		srcV:     make([]float64, n),
		srcF:     make([]float64, n),
		rint:     make([]float64, n),
		supplier: make([]bool, n),
		inj:      make([]float64, n),
		abs:      make([]float64, n),
		condAmps: make([]float64, n),
		ownV:     make([]float64, is.Len()),
		ownF:     make([]float64, is.Len()),
		islV:     make([]float64, is.Len()),
		islF:     make([]float64, is.Len()),
		islP:     make([]float64, is.Len()),
		est:      est,
		next:     make([]float64, is.Len()),
		pout:     make([]float64, len(is.Couplings)),
		pin:      make([]float64, len(is.Couplings)),
		iin:      make([]float64, len(is.Couplings)),
		iout:     make([]float64, len(is.Couplings)),
		byComp:   make(map[int]int, len(is.Couplings)),
	}
	for ci, c := range is.Couplings {
		w.byComp[c.Comp] = ci
	}
	for k := range w.next {
		w.next[k] = -1
	}
	for i := range states {
		states[i].ClearElectrical()
	}

	w.sources()
	w.supply()
	w.loads()
	for idx := len(w.order) - 1; idx >= 0; idx-- {
		k := w.order[idx]
		if is.Shorted[k] {
			w.fault(k)
		} else {
			w.demand(k)
		}
		w.flows(k)
	}
	w.report()
	sanitize(states)
	return w
}

// moved reports whether a battery terminal voltage changed during the pass.
func (w *solve) moved() bool {
	for k, v := range w.next {
		if math.Abs(v-w.est[k]) > epsSettle {
			return true
		}
	}
	return false
}

// solve is the working set of one pass.
type solve struct {
	*Solver
	is bus.Islands
	st []comp.State
	dt float64

	// per component
	srcV     []float64 // open circuit volts of generators and batteries
	srcF     []float64
	rint     []float64 // battery internal resistance
	supplier []bool
	inj      []float64 // net current injected into a bus
	abs      []float64 // current through a bus from its endpoints and conductors
	condAmps []float64

	// per island
	ownV  []float64
	ownF  []float64
	islV  []float64
	islF  []float64
	islP  []float64
	est   []float64 // battery terminal volts from the previous pass
	next  []float64
	order []int

	// per coupling
	accepted []bool
	pout     []float64
	pin      []float64
	iin      []float64
	iout     []float64
	byComp   map[int]int

	res Result
}

// vrep is the voltage and frequency reported for an island. Shorted islands
// are pinned to zero.
func (w *solve) vrep(k int) (float64, float64) {
	if k == bus.None || w.is.Shorted[k] {
		return 0, 0
	}
	return w.islV[k], w.islF[k]
}

// sources computes the open output of every generator and battery and the
// highest own-source voltage of each island. Batteries offer no more than
// the terminal voltage estimated for their island.
func (w *solve) sources() {
	for i := range w.st {
		info := w.g.Info(i)
		st := &w.st[i]
		if st.Failed {
			continue
		}
		var v float64
		switch info.Type {
		case comp.Gen:
			w.srcV[i], w.srcF[i] = genOutput(info, st.Gen.RPM)
			v = w.srcV[i]
		case comp.Batt:
			m, ok := w.batts[i]
			if !ok {
				continue
			}
			w.srcV[i] = m.OpenCircuitVolts(st.Batt.Charge)
			w.rint[i] = math.Max(m.Resistance(st.Batt.Temp), minOhms)
			v = w.srcV[i]
		default:
			continue
		}
		k := w.is.Slot(w.g, i, 0)
		if k == bus.None {
			continue
		}
		if info.Type == comp.Batt && w.est[k] >= 0 {
			v = math.Min(v, w.est[k])
		}
		if v > w.ownV[k] {
			w.ownV[k], w.ownF[k] = v, w.srcF[i]
		}
	}
}

// genOutput scales rated volts and frequency with the rotor speed. An
// unexcited generator produces nothing.
func genOutput(info comp.Info, rpm float64) (float64, float64) {
	g := info.Gen
	rpm = finite(rpm)
	if rpm <= 0 || rpm < g.ExcRPM || g.MinRPM <= 0 {
		return 0, 0
	}
	ratio := math.Min(1, rpm/g.MinRPM)
	v := g.Volts * ratio
	if !info.AC {
		return v, 0
	}
	return v, g.Freq * ratio
}

// couplingOut is the voltage and frequency a coupling offers its output
// island given the current supply of its input island.
func (w *solve) couplingOut(c bus.Coupling) (float64, float64) {
	if w.is.Shorted[c.From] {
		return 0, 0
	}
	vin, fin := w.islV[c.From], w.islF[c.From]
	if vin <= 0 {
		return 0, 0
	}
	info := w.g.Info(c.Comp)
	switch info.Type {
	case comp.TRU:
		if vin < info.Conv.MinInVolts {
			return 0, 0
		}
		return math.Min(info.Conv.OutVolts, div(vin*info.Conv.OutVolts, info.Conv.InVolts)), 0
	case comp.Inv:
		if vin < info.Conv.MinInVolts {
			return 0, 0
		}
		return info.Conv.OutVolts, info.Conv.OutFreq
	case comp.Diode:
		return math.Max(0, vin-info.Diode.Drop), fin
	}
	return 0, 0
}

// supply decides which couplings feed which islands. A coupling is accepted
// when it strictly raises its output island and that island is not upstream
// of its input, so the accepted couplings always form an acyclic feed graph.
// Couplings offering the island voltage are added as co-suppliers last.
func (w *solve) supply() {
	nc := len(w.is.Couplings)
	w.accepted = make([]bool, nc)
	w.settle()

	for iter := 0; iter <= nc*(w.is.Len()+1); iter++ {
		best, bestV := -1, 0.0
		for ci, c := range w.is.Couplings {
			if w.accepted[ci] {
				continue
			}
			v, _ := w.couplingOut(c)
			if v <= w.islV[c.To]+epsVolts || v <= bestV {
				continue
			}
			if w.upstream(c.From)[c.To] {
				continue
			}
			best, bestV = ci, v
		}
		if best < 0 {
			break
		}
		to := w.is.Couplings[best].To
		for ci, c := range w.is.Couplings {
			if w.accepted[ci] && c.To == to {
				w.accepted[ci] = false
			}
		}
		w.accepted[best] = true
		w.settle()
	}

	for ci, c := range w.is.Couplings {
		if !w.accepted[ci] {
			continue
		}
		if v, _ := w.couplingOut(c); v < w.islV[c.To]-epsVolts || v <= 0 {
			w.accepted[ci] = false
		}
	}
	for ci, c := range w.is.Couplings {
		if w.accepted[ci] || w.islV[c.To] <= 0 {
			continue
		}
		v, _ := w.couplingOut(c)
		if v <= 0 || math.Abs(v-w.islV[c.To]) > epsVolts {
			continue
		}
		if w.upstream(c.From)[c.To] {
			continue
		}
		w.accepted[ci] = true
	}
	w.settle()
}

// settle recomputes island voltages from own sources and accepted couplings,
// upstream islands first.
func (w *solve) settle() {
	w.order = w.topo()
	copy(w.islV, w.ownV)
	copy(w.islF, w.ownF)
	for _, k := range w.order {
		for ci, c := range w.is.Couplings {
			if !w.accepted[ci] || c.To != k {
				continue
			}
			if v, f := w.couplingOut(c); v > w.islV[k] {
				w.islV[k], w.islF[k] = v, f
			}
		}
	}
}

// topo orders islands so that every island comes after the islands feeding it.
func (w *solve) topo() []int {
	n := w.is.Len()
	indeg := make([]int, n)
	for ci, c := range w.is.Couplings {
		if w.accepted[ci] {
			indeg[c.To]++
		}
	}
	order := make([]int, 0, n)
	queue := make([]int, 0, n)
	for k := 0; k < n; k++ {
		if indeg[k] == 0 {
			queue = append(queue, k)
		}
	}
	for len(queue) > 0 {
		k := queue[0]
		queue = queue[1:]
		order = append(order, k)
		for ci, c := range w.is.Couplings {
			if !w.accepted[ci] || c.From != k {
				continue
			}
			indeg[c.To]--
			if indeg[c.To] == 0 {
				queue = append(queue, c.To)
			}
		}
	}
	return order
}

// upstream is the set of islands feeding k through accepted couplings,
// including k itself.
func (w *solve) upstream(k int) map[int]bool {
	seen := map[int]bool{k: true}
	stack := []int{k}
	for len(stack) > 0 {
		x := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for ci, c := range w.is.Couplings {
			if w.accepted[ci] && c.To == x && !seen[c.From] {
				seen[c.From] = true
				stack = append(stack, c.From)
			}
		}
	}
	return seen
}

func div(a, b float64) float64 {
	if b == 0 || math.IsNaN(b) || math.IsInf(b, 0) {
		return 0
	}
	return finite(a / b)
}

func finite(x float64) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return x
}

func sanitize(states []comp.State) {
	for i := range states {
		s := &states[i]
		for _, f := range []*float64{
			&s.InVolts, &s.OutVolts, &s.InAmps, &s.OutAmps, &s.InFreq, &s.OutFreq,
			&s.InPwr, &s.OutPwr, &s.IncapVolts, &s.Eff,
		} {
			*f = finite(*f)
		}
	}
}
