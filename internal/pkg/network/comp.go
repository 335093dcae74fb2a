package network

import (
	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/comp"
)

// Comp is a handle on one component of a network. Reads observe the last
// committed snapshot; writes are queued and take effect at the next tick.
type Comp struct {
	n   *Network
	idx int
}

// Info returns the static properties of the component.
func (c *Comp) Info() comp.Info {
	return c.n.g.Info(c.idx)
}

// Name is the component name.
func (c *Comp) Name() string {
	return c.n.g.Info(c.idx).Name
}

// PID is the component's unique identifier.
func (c *Comp) PID() uuid.UUID {
	return c.n.g.Info(c.idx).PID
}

// Type is the component type.
func (c *Comp) Type() comp.Type {
	return c.n.g.Info(c.idx).Type
}

// AC reports whether the component is on the AC side.
func (c *Comp) AC() bool {
	return c.n.g.Info(c.idx).AC
}

// Autogen reports whether the loader synthesized the component.
func (c *Comp) Autogen() bool {
	return c.n.g.Info(c.idx).Autogen
}

// Conns returns the components attached to each slot, nil where a slot did
// not resolve. For a bus these are its endpoints.
func (c *Comp) Conns() []*Comp {
	if c.Type() == comp.Bus {
		eps := c.n.g.Endpoints(c.idx)
		out := make([]*Comp, len(eps))
		for i, ep := range eps {
			out[i] = c.n.comps[ep.Comp]
		}
		return out
	}
	conns := c.n.g.Conns(c.idx)
	out := make([]*Comp, len(conns))
	for slot, j := range conns {
		if j != comp.Unresolved {
			out[slot] = c.n.comps[j]
		}
	}
	return out
}

// State returns a copy of the component state at the last tick.
func (c *Comp) State() comp.State {
	return c.n.Snapshot().State(c.idx)
}

func (c *Comp) InVolts() float64    { return c.State().InVolts }
func (c *Comp) OutVolts() float64   { return c.State().OutVolts }
func (c *Comp) InAmps() float64     { return c.State().InAmps }
func (c *Comp) OutAmps() float64    { return c.State().OutAmps }
func (c *Comp) InFreq() float64     { return c.State().InFreq }
func (c *Comp) OutFreq() float64    { return c.State().OutFreq }
func (c *Comp) InPwr() float64      { return c.State().InPwr }
func (c *Comp) OutPwr() float64     { return c.State().OutPwr }
func (c *Comp) IncapVolts() float64 { return c.State().IncapVolts }
func (c *Comp) Eff() float64        { return c.State().Eff }

// Failed reports the fault flag as of the last tick.
func (c *Comp) Failed() bool {
	return c.State().Failed
}

// SetFailed fails or restores the component at the next tick. A failed
// component produces and conducts nothing.
func (c *Comp) SetFailed(failed bool) {
	i := c.idx
	c.n.enqueue(func(states []comp.State) {
		states[i].Failed = failed
	})
}

// Shorted reports the short flag as of the last tick.
func (c *Comp) Shorted() bool {
	return c.State().Shorted
}

// SetShorted shorts or restores the component at the next tick. A short
// pulls every bus the component touches to ground.
func (c *Comp) SetShorted(shorted bool) {
	i := c.idx
	c.n.enqueue(func(states []comp.State) {
		states[i].Shorted = shorted
	})
}

// UserInfo returns the value stored with SetUserInfo.
func (c *Comp) UserInfo() interface{} {
	c.n.userMux.Lock()
	defer c.n.userMux.Unlock()
	return c.n.user[c.idx]
}

// SetUserInfo attaches a caller owned value to the component. The network
// only holds the reference.
func (c *Comp) SetUserInfo(v interface{}) {
	c.n.userMux.Lock()
	defer c.n.userMux.Unlock()
	if v == nil {
		delete(c.n.user, c.idx)
		return
	}
	c.n.user[c.idx] = v
}

// AsBreaker narrows the handle to a circuit breaker or fuse.
func (c *Comp) AsBreaker() (*Breaker, bool) {
	b, ok := c.n.relays[c.idx]
	if !ok {
		return nil, false
	}
	return &Breaker{Comp: c, relay: b}, true
}

// AsTie narrows the handle to a tie.
func (c *Comp) AsTie() (*Tie, bool) {
	if c.Type() != comp.Tie {
		return nil, false
	}
	return &Tie{Comp: c}, true
}

// AsBattery narrows the handle to a battery.
func (c *Comp) AsBattery() (*Battery, bool) {
	m, ok := c.n.batts[c.idx]
	if !ok {
		return nil, false
	}
	return &Battery{Comp: c, model: m}, true
}

// AsGenerator narrows the handle to a generator.
func (c *Comp) AsGenerator() (*Generator, bool) {
	if c.Type() != comp.Gen {
		return nil, false
	}
	return &Generator{Comp: c}, true
}

// AsLoad narrows the handle to a load.
func (c *Comp) AsLoad() (*Consumer, bool) {
	if c.Type() != comp.Load {
		return nil, false
	}
	return &Consumer{Comp: c}, true
}

// AsDiode narrows the handle to a diode.
func (c *Comp) AsDiode() (*Diode, bool) {
	if c.Type() != comp.Diode {
		return nil, false
	}
	return &Diode{Comp: c}, true
}
