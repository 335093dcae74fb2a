package network

import (
	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/comp"
	"github.com/ohowland/elec_core/internal/pkg/powerflow"
)

// Snapshot is the immutable state of a network at the end of a tick.
type Snapshot struct {
	Network string
	Tick    uint64
	SimTime float64 // s since load
	SimDt   float64
	Result  powerflow.Result

	g      *comp.Graph
	states []comp.State
}

// State returns a copy of the state of component i.
func (s *Snapshot) State(i int) comp.State {
	return s.states[i].Clone()
}

// Len is the number of components.
func (s *Snapshot) Len() int {
	return len(s.states)
}

// CompStatus is the published state of one component.
type CompStatus struct {
	PID        uuid.UUID `json:"pid"`
	Name       string    `json:"name"`
	Type       string    `json:"type"`
	InVolts    float64   `json:"in_volts"`
	OutVolts   float64   `json:"out_volts"`
	InAmps     float64   `json:"in_amps"`
	OutAmps    float64   `json:"out_amps"`
	InFreq     float64   `json:"in_freq"`
	OutFreq    float64   `json:"out_freq"`
	InPwr      float64   `json:"in_pwr"`
	OutPwr     float64   `json:"out_pwr"`
	IncapVolts float64   `json:"incap_volts,omitempty"`
	Eff        float64   `json:"eff,omitempty"`
	Failed     bool      `json:"failed"`
	Shorted    bool      `json:"shorted"`

	Closed  *bool    `json:"closed,omitempty"`
	Tripped *bool    `json:"tripped,omitempty"`
	Charge  *float64 `json:"charge,omitempty"`
	Temp    *float64 `json:"temp,omitempty"`
	RPM     *float64 `json:"rpm,omitempty"`
	Powered *bool    `json:"powered,omitempty"`
	Joined  []string `json:"joined,omitempty"`
}

// Status returns the state of every component in definition order.
func (s *Snapshot) Status() []CompStatus {
	out := make([]CompStatus, len(s.states))
	for i := range s.states {
		out[i] = s.status(i)
	}
	return out
}

// Find returns the state of the named component.
func (s *Snapshot) Find(name string) (CompStatus, bool) {
	i, ok := s.g.Index(name)
	if !ok {
		return CompStatus{}, false
	}
	return s.status(i), true
}

func (s *Snapshot) status(i int) CompStatus {
	info := s.g.Info(i)
	st := s.states[i]
	cs := CompStatus{
		PID:        info.PID,
		Name:       info.Name,
		Type:       info.Type.String(),
		InVolts:    st.InVolts,
		OutVolts:   st.OutVolts,
		InAmps:     st.InAmps,
		OutAmps:    st.OutAmps,
		InFreq:     st.InFreq,
		OutFreq:    st.OutFreq,
		InPwr:      st.InPwr,
		OutPwr:     st.OutPwr,
		IncapVolts: st.IncapVolts,
		Eff:        st.Eff,
		Failed:     st.Failed,
		Shorted:    st.Shorted,
	}
	switch info.Type {
	case comp.CB:
		closed, tripped := st.CB.Closed, st.CB.Tripped
		cs.Closed, cs.Tripped = &closed, &tripped
	case comp.Batt:
		charge, temp := st.Batt.Charge, st.Batt.Temp
		cs.Charge, cs.Temp = &charge, &temp
	case comp.Gen:
		rpm := st.Gen.RPM
		cs.RPM = &rpm
	case comp.Load:
		powered := st.Load.Powered
		cs.Powered = &powered
	case comp.Tie:
		names := s.g.ConnNames(i)
		cs.Joined = []string{}
		for slot, j := range st.Tie.Joined {
			if j && slot < len(names) {
				cs.Joined = append(cs.Joined, names[slot])
			}
		}
	}
	return cs
}

// CompConfig is the published topology of one component.
type CompConfig struct {
	PID     uuid.UUID `json:"pid"`
	Name    string    `json:"name"`
	Type    string    `json:"type"`
	AC      bool      `json:"ac"`
	Autogen bool      `json:"autogen,omitempty"`
	Conns   []string  `json:"conns,omitempty"`
	X       float64   `json:"x"`
	Y       float64   `json:"y"`
}

// Topology is the published structure of a network.
type Topology struct {
	Network string       `json:"network"`
	Comps   []CompConfig `json:"comps"`
}

// Topology returns the structure of the network.
func (n *Network) Topology() Topology {
	t := Topology{Network: n.name, Comps: make([]CompConfig, n.g.Len())}
	for i := range t.Comps {
		info := n.g.Info(i)
		conns := n.g.ConnNames(i)
		if info.Type == comp.Bus {
			conns = nil
			for _, ep := range n.g.Endpoints(i) {
				conns = append(conns, n.g.Info(ep.Comp).Name)
			}
		}
		t.Comps[i] = CompConfig{
			PID:     info.PID,
			Name:    info.Name,
			Type:    info.Type.String(),
			AC:      info.AC,
			Autogen: info.Autogen,
			Conns:   conns,
			X:       info.Pos.X,
			Y:       info.Pos.Y,
		}
	}
	return t
}
