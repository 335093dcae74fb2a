package comp

// State is the electrical and runtime state of one component at the end of a tick.
type State struct {
	InVolts    float64
	OutVolts   float64
	InAmps     float64
	OutAmps    float64
	InFreq     float64
	OutFreq    float64
	InPwr      float64
	OutPwr     float64
	IncapVolts float64
	Eff        float64

	Failed  bool
	Shorted bool

	CB   CBState
	Batt BattState
	Tie  TieState
	Gen  GenState
	Load LoadState
}

// CBState is the runtime state of a breaker or fuse.
type CBState struct {
	Closed        bool
	Tripped       bool
	ThermalCharge float64 // s
	Temp          float64 // normalized, 0 is ambient and 1 is the rated steady state
}

// BattState is the runtime state of a battery. The battery's discharge current
// of the previous tick is OutAmps, its charge current InAmps.
type BattState struct {
	Charge float64 // relative, [0,1]
	Temp   float64 // K
}

// TieState records which of the tie's buses are joined. Joined is indexed like
// the tie's connections.
type TieState struct {
	Joined []bool
}

// JoinedCount is the number of buses the tie currently joins.
func (t TieState) JoinedCount() int {
	n := 0
	for _, j := range t.Joined {
		if j {
			n++
		}
	}
	return n
}

// GenState holds the rotor speed sampled for the tick.
type GenState struct {
	RPM float64
}

// LoadState holds the demand sampled for the tick and whether the load had
// enough input capacitor voltage to run.
type LoadState struct {
	Demand  float64
	Powered bool
}

// Clone returns a deep copy of the state.
func (s State) Clone() State {
	c := s
	if s.Tie.Joined != nil {
		c.Tie.Joined = make([]bool, len(s.Tie.Joined))
		copy(c.Tie.Joined, s.Tie.Joined)
	}
	return c
}

// CloneStates deep copies a state vector.
func CloneStates(states []State) []State {
	out := make([]State, len(states))
	for i, s := range states {
		out[i] = s.Clone()
	}
	return out
}

// ClearElectrical zeroes the per-tick electrical quantities and keeps the
// runtime state (fault flags, breaker, battery, tie, generator, load demand).
func (s *State) ClearElectrical() {
	s.InVolts, s.OutVolts = 0, 0
	s.InAmps, s.OutAmps = 0, 0
	s.InFreq, s.OutFreq = 0, 0
	s.InPwr, s.OutPwr = 0, 0
	s.Eff = 0
	s.Load.Powered = false
}
