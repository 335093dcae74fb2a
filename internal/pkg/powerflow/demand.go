package powerflow

import (
	"math"

	"github.com/ohowland/elec_core/internal/pkg/bus"
	"github.com/ohowland/elec_core/internal/pkg/comp"
)

// feed is one supplier of an island: a source or an accepted coupling.
type feed struct {
	comp     int
	bus      int
	coupling int // index into Couplings, -1 for a source
}

func (w *solve) sink(b int, amps float64) {
	w.inj[b] -= amps
	w.abs[b] += amps
}

func (w *solve) source(b int, amps float64) {
	w.inj[b] += amps
	w.abs[b] += amps
}

// filter moves the load input capacitor toward the bus voltage. Without a
// capacitor it follows the bus; frozen time leaves it unchanged.
func filter(prev, target, tau, dt float64) float64 {
	if tau <= 0 {
		return target
	}
	if dt <= 0 {
		return prev
	}
	alpha := 1 - math.Exp(-dt/tau)
	return prev + (target-prev)*alpha
}

// loads updates every load's input capacitor and its draw on its bus.
// Stabilized loads draw constant power, the others constant current. No load
// draws more than the short circuit current.
func (w *solve) loads() {
	for i := range w.st {
		info := w.g.Info(i)
		if info.Type != comp.Load {
			continue
		}
		st := &w.st[i]
		k := w.is.Slot(w.g, i, 0)
		v, f := w.vrep(k)
		st.InVolts, st.InFreq = v, f

		target := v
		if st.Failed {
			target = 0
		}
		st.IncapVolts = filter(st.IncapVolts, target, info.Load.Tau(), w.dt)
		if st.Failed {
			continue
		}
		st.OutVolts = st.IncapVolts
		st.Load.Powered = st.IncapVolts >= math.Max(info.Load.MinVolts, epsVolts)
		if !st.Load.Powered {
			continue
		}

		demand := math.Max(0, finite(st.Load.Demand))
		if info.Load.Stab {
			st.OutPwr = demand
		} else {
			st.OutPwr = demand * st.IncapVolts
		}
		if v <= epsVolts {
			// running on its capacitor
			continue
		}
		amps := demand
		if info.Load.Stab {
			amps = div(demand, v)
		}
		if w.env.ShortCircuitAmps > 0 {
			amps = math.Min(amps, w.env.ShortCircuitAmps)
		}
		st.InAmps = amps
		st.InPwr = amps * v
		w.sink(w.g.Conn(i, 0), amps)
		w.islP[k] += st.InPwr
		w.res.LoadPwr += st.InPwr
	}
}

// regulated lists the generators at the island voltage and the accepted
// couplings feeding the island.
func (w *solve) regulated(k int, v float64) []feed {
	var out []feed
	for _, b := range w.is.Buses[k] {
		for _, ep := range w.g.Endpoints(b) {
			i := ep.Comp
			if w.g.Info(i).Type != comp.Gen || w.st[i].Failed {
				continue
			}
			if w.srcV[i] > 0 && w.srcV[i] >= v-epsVolts {
				out = append(out, feed{comp: i, bus: b, coupling: -1})
			}
		}
	}
	for ci, c := range w.is.Couplings {
		if w.accepted[ci] && c.To == k {
			out = append(out, feed{comp: c.Comp, bus: w.g.Conn(c.Comp, 1), coupling: ci})
		}
	}
	return out
}

// demand sums the power drawn from island k, which includes what its
// downstream couplings need, and splits it among its suppliers.
func (w *solve) demand(k int) {
	v, _ := w.vrep(k)
	p := w.islP[k]
	var batts []feed
	for _, b := range w.is.Buses[k] {
		for _, ep := range w.g.Endpoints(b) {
			i := ep.Comp
			if w.st[i].Failed {
				continue
			}
			switch w.g.Info(i).Type {
			case comp.Batt:
				if _, ok := w.batts[i]; ok {
					batts = append(batts, feed{comp: i, bus: b, coupling: -1})
				}
			case comp.TRU, comp.Inv, comp.Diode:
				if ep.Slot != 0 {
					continue
				}
				ci, ok := w.byComp[i]
				if !ok || !w.accepted[ci] {
					continue
				}
				w.couplingInput(ci, v)
				w.sink(b, w.iin[ci])
				p += w.pin[ci]
			}
		}
	}
	w.islP[k] = p

	if v <= 0 {
		if len(batts) > 0 && w.est[k] >= 0 {
			// collapsed
			w.next[k] = w.est[k]
		}
		return
	}
	w.split(k, v, div(p, v), w.regulated(k, v), batts)
}

// split covers amps drawn from island k at v. Batteries take or give what
// their open circuit voltage and resistance dictate and the regulated
// suppliers share the rest equally. When no regulated supplier is left, or
// the batteries would push current back into one, the batteries carry the
// whole island and settle at their common terminal voltage.
func (w *solve) split(k int, v, amps float64, reg, batts []feed) {
	if len(batts) > 0 {
		w.next[k] = v
	}
	cur := make([]float64, len(batts))
	net := 0.0
	for j, b := range batts {
		cur[j] = w.battAmps(b.comp, v)
		net += cur[j]
	}
	rest := amps - net
	if len(reg) == 0 || rest < 0 {
		if len(batts) == 0 {
			return
		}
		w.next[k], cur = w.thevenin(batts, amps)
		reg, rest = nil, 0
	}
	for j, b := range batts {
		w.battery(b, v, cur[j])
	}
	for _, s := range reg {
		w.deliver(s, v, rest/float64(len(reg)))
	}
}

// battAmps is the current of battery i on a bus at v, positive when it
// discharges.
func (w *solve) battAmps(i int, v float64) float64 {
	if amps := (w.srcV[i] - v) / w.rint[i]; amps >= 0 {
		return amps
	}
	return -w.batts[i].ChargeAmps(w.st[i].Batt, v)
}

// chargeLimit is the most current battery i accepts.
func (w *solve) chargeLimit(i int) float64 {
	if w.st[i].Batt.Charge >= 1 {
		return 0
	}
	return w.batts[i].Info().MaxChgAmps
}

// thevenin finds the terminal voltage at which the batteries together deliver
// amps, and the current of each. Batteries driven past their charge limit
// are held at it and the rest solved again. A load the batteries cannot
// carry collapses the voltage to zero.
func (w *solve) thevenin(batts []feed, amps float64) (float64, []float64) {
	cur := make([]float64, len(batts))
	held := make([]bool, len(batts))
	for iter := 0; iter <= len(batts); iter++ {
		var g, ge, fixed float64
		for j, b := range batts {
			if held[j] {
				fixed += cur[j]
				continue
			}
			g += 1 / w.rint[b.comp]
			ge += w.srcV[b.comp] / w.rint[b.comp]
		}
		if g == 0 {
			break
		}
		v := (ge + fixed - amps) / g
		if v < 0 {
			return 0, w.collapse(batts, amps)
		}
		again := false
		for j, b := range batts {
			if held[j] {
				continue
			}
			cur[j] = (w.srcV[b.comp] - v) / w.rint[b.comp]
			if limit := w.chargeLimit(b.comp); cur[j] < -limit {
				cur[j] = -limit
				held[j] = true
				again = true
			}
		}
		if !again {
			return v, cur
		}
	}
	return 0, w.collapse(batts, amps)
}

// collapse shares amps among the batteries by their short circuit currents.
func (w *solve) collapse(batts []feed, amps float64) []float64 {
	cur := make([]float64, len(batts))
	total := 0.0
	for j, b := range batts {
		cur[j] = w.srcV[b.comp] / w.rint[b.comp]
		total += cur[j]
	}
	for j := range cur {
		cur[j] = div(cur[j]*amps, total)
	}
	return cur
}

// battery books the current of a battery at v, positive when it discharges.
func (w *solve) battery(b feed, v, amps float64) {
	if amps > 0 {
		w.deliver(b, v, amps)
		return
	}
	if amps == 0 {
		return
	}
	st := &w.st[b.comp]
	st.InVolts = v
	st.InAmps = -amps
	st.InPwr = st.InAmps * v
	w.sink(b.bus, st.InAmps)
	w.res.ChargePwr += st.InPwr
}

// deliver books amps from a supplier into its bus at v.
func (w *solve) deliver(s feed, v, amps float64) {
	pwr := amps * v
	w.source(s.bus, amps)
	if s.coupling >= 0 {
		w.pout[s.coupling] = pwr
		w.iout[s.coupling] = amps
		return
	}
	w.supplier[s.comp] = true
	st := &w.st[s.comp]
	st.OutVolts = v
	st.OutAmps = amps
	st.OutPwr = pwr
	w.res.SourcePwr += pwr
}

// couplingInput derives the input side of a coupling from the power it
// delivers downstream.
func (w *solve) couplingInput(ci int, vin float64) {
	c := w.is.Couplings[ci]
	info := w.g.Info(c.Comp)
	pout := w.pout[ci]

	var pin float64
	switch info.Type {
	case comp.TRU, comp.Inv:
		pin = div(pout, info.Conv.Eff)
	case comp.Diode:
		// same current on both sides, the forward drop is lost
		pin = div(pout*vin, w.islV[c.To])
	}
	w.pin[ci] = pin
	w.iin[ci] = div(pin, vin)
	w.res.LossPwr += pin - pout
}

// fault handles a shorted island. Its voltage is pinned to zero and every
// source and feeding coupling delivers its capped fault current into the
// shorted buses.
func (w *solve) fault(k int) {
	total := 0.0
	for _, b := range w.is.Buses[k] {
		for _, ep := range w.g.Endpoints(b) {
			i := ep.Comp
			if w.st[i].Failed || !w.g.Info(i).Type.IsSource() {
				continue
			}
			amps := w.faultAmps(i)
			if amps <= 0 {
				continue
			}
			w.supplier[i] = true
			w.st[i].OutAmps = amps
			w.source(b, amps)
			total += amps
		}
	}
	for ci, c := range w.is.Couplings {
		if !w.accepted[ci] || c.To != k {
			continue
		}
		if v, _ := w.couplingOut(c); v <= 0 {
			continue
		}
		amps := w.env.ShortCircuitAmps
		w.iout[ci] = amps
		w.source(w.g.Conn(c.Comp, 1), amps)
		total += amps
	}

	var spots, shorted []int
	for _, b := range w.is.Buses[k] {
		spot := w.st[b].Shorted
		for _, ep := range w.g.Endpoints(b) {
			i := ep.Comp
			if !w.st[i].Shorted || w.st[i].Failed {
				continue
			}
			spot = true
			if !contains(shorted, i) {
				shorted = append(shorted, i)
			}
		}
		if spot {
			spots = append(spots, b)
		}
	}
	if len(spots) == 0 {
		return
	}
	each := total / float64(len(spots))
	for _, b := range spots {
		w.sink(b, each)
	}
	if len(shorted) > 0 {
		per := total / float64(len(shorted))
		for _, i := range shorted {
			w.st[i].InAmps = per
			w.st[i].OutAmps = per
		}
	}
}

// faultAmps is the short circuit current of a source behind its internal
// resistance, capped by the network limit.
func (w *solve) faultAmps(i int) float64 {
	var v, r float64
	switch w.g.Info(i).Type {
	case comp.Gen:
		v, r = w.srcV[i], w.g.Info(i).Gen.IntR
	case comp.Batt:
		m, ok := w.batts[i]
		if !ok {
			return 0
		}
		st := w.st[i].Batt
		v, r = m.OpenCircuitVolts(st.Charge), m.Resistance(st.Temp)
	}
	if v <= 0 {
		return 0
	}
	if r <= 0 {
		return w.env.ShortCircuitAmps
	}
	return math.Min(v/r, w.env.ShortCircuitAmps)
}

// flows pushes the bus injections of island k through its spanning tree.
// Every tree edge carries the net injection of the subtree behind it.
// Conductors closing a ring carry nothing.
func (w *solve) flows(k int) {
	buses := w.is.Buses[k]
	edges := w.is.Tree[k]
	if len(edges) == 0 {
		return
	}
	adj := make(map[int][]int, len(buses))
	for ei, e := range edges {
		adj[e.A] = append(adj[e.A], ei)
		adj[e.B] = append(adj[e.B], ei)
	}

	root := buses[0]
	parent := map[int]int{root: -1}
	order := []int{root}
	for q := 0; q < len(order); q++ {
		b := order[q]
		for _, ei := range adj[b] {
			other := edges[ei].A
			if other == b {
				other = edges[ei].B
			}
			if _, seen := parent[other]; seen {
				continue
			}
			parent[other] = ei
			order = append(order, other)
		}
	}

	sub := make(map[int]float64, len(order))
	for q := len(order) - 1; q > 0; q-- {
		b := order[q]
		sub[b] += w.inj[b]
		e := edges[parent[b]]
		up := e.A
		if up == b {
			up = e.B
		}
		sub[up] += sub[b]

		amps := math.Abs(sub[b])
		w.condAmps[e.Comp] += amps
		w.abs[e.A] += amps
		w.abs[e.B] += amps
	}
}

// report fills the remaining reported quantities of buses, conductors,
// couplings and sources.
func (w *solve) report() {
	for i := range w.st {
		info := w.g.Info(i)
		s := &w.st[i]
		switch info.Type {
		case comp.Bus:
			if s.Failed {
				continue
			}
			v, f := w.vrep(w.is.Of[i])
			amps := w.abs[i] / 2
			s.InVolts, s.OutVolts = v, v
			s.InFreq, s.OutFreq = f, f
			s.InAmps, s.OutAmps = amps, amps
			s.InPwr, s.OutPwr = amps*v, amps*v

		case comp.CB, comp.Shunt:
			vin, fin := w.vrep(w.is.Slot(w.g, i, 0))
			s.InVolts, s.InFreq = vin, fin
			if s.Failed {
				continue
			}
			vout, fout := w.vrep(w.is.Slot(w.g, i, 1))
			s.OutVolts, s.OutFreq = vout, fout
			if !s.Shorted {
				s.InAmps, s.OutAmps = w.condAmps[i], w.condAmps[i]
			}
			s.InPwr, s.OutPwr = s.InAmps*vin, s.OutAmps*vout

		case comp.Tie:
			if s.Failed {
				continue
			}
			v, f := w.vrep(w.tieIsland(i))
			s.InVolts, s.OutVolts = v, v
			s.InFreq, s.OutFreq = f, f
			if !s.Shorted {
				s.InAmps, s.OutAmps = w.condAmps[i], w.condAmps[i]
			}
			s.InPwr, s.OutPwr = s.InAmps*v, s.OutAmps*v

		case comp.TRU, comp.Inv, comp.Diode:
			vin, fin := w.vrep(w.is.Slot(w.g, i, 0))
			s.InVolts, s.InFreq = vin, fin
			if s.Failed {
				continue
			}
			vout, fout := w.vrep(w.is.Slot(w.g, i, 1))
			s.OutVolts, s.OutFreq = vout, fout
			if info.Type != comp.Diode {
				s.Eff = info.Conv.Eff
			}
			ci, ok := w.byComp[i]
			if !ok || !w.accepted[ci] || s.Shorted {
				continue
			}
			s.InAmps, s.InPwr = w.iin[ci], w.pin[ci]
			s.OutAmps, s.OutPwr = w.iout[ci], w.pout[ci]
			if info.Type == comp.Diode {
				s.Eff = div(s.OutPwr, s.InPwr)
			}

		case comp.Gen:
			if s.Failed {
				continue
			}
			s.Eff = info.Gen.Eff
			if w.supplier[i] {
				s.OutVolts, s.OutFreq = w.vrep(w.is.Slot(w.g, i, 0))
			} else {
				s.OutVolts, s.OutFreq = w.srcV[i], w.srcF[i]
			}
			s.InPwr = div(s.OutPwr, info.Gen.Eff)

		case comp.Batt:
			if s.Failed {
				continue
			}
			v, _ := w.vrep(w.is.Slot(w.g, i, 0))
			switch {
			case w.supplier[i], s.InAmps > 0:
				s.OutVolts = v
			default:
				s.OutVolts = w.srcV[i]
			}
		}
	}
}

// tieIsland is the island of the first bus a tie joins, or of its first
// bus when it joins none.
func (w *solve) tieIsland(i int) int {
	joined := w.st[i].Tie.Joined
	for slot := range w.g.Conns(i) {
		if slot < len(joined) && joined[slot] {
			if k := w.is.Slot(w.g, i, slot); k != bus.None {
				return k
			}
		}
	}
	return w.is.Slot(w.g, i, 0)
}

func contains(list []int, x int) bool {
	for _, v := range list {
		if v == x {
			return true
		}
	}
	return false
}
