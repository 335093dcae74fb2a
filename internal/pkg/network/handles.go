package network

import (
	"fmt"
	"math"

	"github.com/ohowland/elec_core/internal/pkg/bms"
	"github.com/ohowland/elec_core/internal/pkg/comp"
	"github.com/ohowland/elec_core/internal/pkg/relay"
)

// Breaker is a circuit breaker or fuse.
type Breaker struct {
	*Comp
	relay *relay.Breaker
}

// Closed reports the contact state at the last tick.
func (b *Breaker) Closed() bool {
	return b.State().CB.Closed
}

// Tripped reports whether the breaker opened on overcurrent and has not been
// reclosed since.
func (b *Breaker) Tripped() bool {
	return b.State().CB.Tripped
}

// ThermalCharge is the accumulated I²t charge in seconds.
func (b *Breaker) ThermalCharge() float64 {
	return b.State().CB.ThermalCharge
}

// Temp is the normalized contact temperature.
func (b *Breaker) Temp() float64 {
	return b.State().CB.Temp
}

// Fuse reports whether the component is a fuse.
func (b *Breaker) Fuse() bool {
	return b.relay.Info().Fuse
}

// Trips counts the overcurrent trips since load.
func (b *Breaker) Trips() uint64 {
	return b.relay.Trips()
}

// Rejects counts the close commands refused since load.
func (b *Breaker) Rejects() uint64 {
	return b.relay.Rejects()
}

// SetClosed requests the contacts to open or close at the next tick. A close
// is refused while the breaker is still hot from a trip, and always for a
// blown fuse; refusals are logged and counted.
func (b *Breaker) SetClosed(closed bool) {
	i, r, n := b.idx, b.relay, b.n
	n.enqueue(func(states []comp.State) {
		s, err := r.Command(states[i].CB, closed)
		if err != nil {
			if n.metrics != nil {
				n.metrics.BreakerRejects.WithLabelValues(r.Name()).Inc()
			}
			return
		}
		states[i].CB = s
	})
}

// Tie joins any subset of its buses.
type Tie struct {
	*Comp
}

// Buses returns the names of the tie's buses in slot order.
func (t *Tie) Buses() []string {
	return t.n.g.ConnNames(t.idx)
}

// Joined returns the names of the buses joined at the last tick.
func (t *Tie) Joined() []string {
	names := t.n.g.ConnNames(t.idx)
	joined := t.State().Tie.Joined
	var out []string
	for slot, j := range joined {
		if j && slot < len(names) {
			out = append(out, names[slot])
		}
	}
	return out
}

// JoinAll joins every bus of the tie at the next tick.
func (t *Tie) JoinAll() {
	t.setAll(true)
}

// SplitAll separates every bus of the tie at the next tick.
func (t *Tie) SplitAll() {
	t.setAll(false)
}

func (t *Tie) setAll(joined bool) {
	i := t.idx
	t.n.enqueue(func(states []comp.State) {
		for slot := range states[i].Tie.Joined {
			states[i].Tie.Joined[slot] = joined
		}
	})
}

// SetJoined makes exactly the named buses joined at the next tick.
func (t *Tie) SetJoined(buses ...string) error {
	slots, err := t.slots(buses)
	if err != nil {
		return err
	}
	i := t.idx
	t.n.enqueue(func(states []comp.State) {
		j := states[i].Tie.Joined
		for slot := range j {
			j[slot] = slots[slot]
		}
	})
	return nil
}

// Join adds the named buses to the joined set at the next tick.
func (t *Tie) Join(buses ...string) error {
	return t.update(buses, true)
}

// Split removes the named buses from the joined set at the next tick.
func (t *Tie) Split(buses ...string) error {
	return t.update(buses, false)
}

func (t *Tie) update(buses []string, joined bool) error {
	slots, err := t.slots(buses)
	if err != nil {
		return err
	}
	i := t.idx
	t.n.enqueue(func(states []comp.State) {
		j := states[i].Tie.Joined
		for slot := range j {
			if slots[slot] {
				j[slot] = joined
			}
		}
	})
	return nil
}

// slots maps bus names onto the tie's slots.
func (t *Tie) slots(buses []string) ([]bool, error) {
	names := t.n.g.ConnNames(t.idx)
	out := make([]bool, len(names))
	for _, b := range buses {
		found := false
		for slot, name := range names {
			if name == b {
				out[slot] = true
				found = true
			}
		}
		if !found {
			return nil, fmt.Errorf("%w: tie %q does not connect to %q", ErrInvalidAccess, t.Name(), b)
		}
	}
	return out, nil
}

// Battery is a battery.
type Battery struct {
	*Comp
	model *bms.Model
}

// Charge is the relative state of charge at the last tick.
func (b *Battery) Charge() float64 {
	return b.State().Batt.Charge
}

// Temp is the cell temperature in K at the last tick.
func (b *Battery) Temp() float64 {
	return b.State().Batt.Temp
}

// OpenCircuitVolts is the open circuit voltage at the current charge.
func (b *Battery) OpenCircuitVolts() float64 {
	return b.model.OpenCircuitVolts(b.Charge())
}

// SetCharge overrides the state of charge at the next tick. The value is
// clamped to [0,1].
func (b *Battery) SetCharge(charge float64) error {
	if math.IsNaN(charge) {
		return fmt.Errorf("%w: battery %q charge is NaN", ErrInvalidAccess, b.Name())
	}
	charge = math.Max(0, math.Min(1, charge))
	i := b.idx
	b.n.enqueue(func(states []comp.State) {
		states[i].Batt.Charge = charge
	})
	return nil
}

// SetTemp overrides the cell temperature in K at the next tick.
func (b *Battery) SetTemp(temp float64) error {
	if !(temp > 0) || math.IsInf(temp, 0) {
		return fmt.Errorf("%w: battery %q temperature %v K", ErrInvalidAccess, b.Name(), temp)
	}
	i := b.idx
	b.n.enqueue(func(states []comp.State) {
		states[i].Batt.Temp = temp
	})
	return nil
}

// Generator is a generator driven by an RPM source.
type Generator struct {
	*Comp
}

// RPM is the rotor speed sampled at the last tick.
func (g *Generator) RPM() float64 {
	return g.State().Gen.RPM
}

// SetRPMSource sets the source sampled for the rotor speed every tick. A nil
// source leaves the last sampled speed in place.
func (g *Generator) SetRPMSource(src RPMSource) {
	g.n.srcMux.Lock()
	defer g.n.srcMux.Unlock()
	if src == nil {
		delete(g.n.rpm, g.idx)
		return
	}
	g.n.rpm[g.idx] = src
}

// SetRPM drives the generator at a constant speed.
func (g *Generator) SetRPM(rpm float64) {
	g.SetRPMSource(RPMFunc(func() float64 { return rpm }))
}

// Consumer is the handle of a load.
type Consumer struct {
	*Comp
}

// Demand is the demand sampled at the last tick.
func (l *Consumer) Demand() float64 {
	return l.State().Load.Demand
}

// Powered reports whether the load had enough voltage to run at the last tick.
func (l *Consumer) Powered() bool {
	return l.State().Load.Powered
}

// SetDemandSource sets the source sampled for the demand every tick. A nil
// source leaves the last sampled demand in place.
func (l *Consumer) SetDemandSource(src DemandSource) {
	l.n.srcMux.Lock()
	defer l.n.srcMux.Unlock()
	if src == nil {
		delete(l.n.demand, l.idx)
		return
	}
	l.n.demand[l.idx] = src
}

// SetDemand sets a constant demand.
func (l *Consumer) SetDemand(demand float64) {
	l.SetDemandSource(DemandFunc(func() float64 { return demand }))
}

// Diode is a one way coupling between two buses.
type Diode struct {
	*Comp
}

// Drop is the forward voltage drop.
func (d *Diode) Drop() float64 {
	return d.Info().Diode.Drop
}

// Conducting reports whether current flowed at the last tick.
func (d *Diode) Conducting() bool {
	return d.State().OutAmps > 0
}
