package comp

import "github.com/google/uuid"

// Info holds the static, load-time properties of a component. Only the
// parameter block matching Type is meaningful.
type Info struct {
	PID     uuid.UUID
	Name    string
	Type    Type
	AC      bool
	Autogen bool
	Pos     Pos

	Gen   GenInfo
	Batt  BattInfo
	Conv  ConvInfo
	Load  LoadInfo
	CB    CBInfo
	Diode DiodeInfo
	Tie   TieInfo
}

// Pos is the drawing position used by viewers. It has no electrical meaning.
type Pos struct {
	X float64
	Y float64
}

// GenInfo describes a generator. Output volts and frequency scale with
// RPM/MinRPM up to the rated values; below ExcRPM the generator is unexcited.
type GenInfo struct {
	Volts  float64
	Freq   float64
	MinRPM float64
	MaxRPM float64
	ExcRPM float64
	Eff    float64
	IntR   float64
}

// BattInfo describes a battery.
type BattInfo struct {
	Volts       float64 // nominal terminal volts at full charge
	Capacity    float64 // Wh
	IntR        float64 // ohms at the reference temperature
	MaxChgAmps  float64
	TrickleAmps float64
	CurveK      float64 // shape of the open-circuit voltage curve
	ColdCoeff   float64 // relative internal resistance increase per K below RefTemp
	RefTemp     float64 // K
	ThermalTau  float64 // s
	ThermalR    float64 // K/W
	InitCharge  float64
	InitTemp    float64 // K
}

// AmpHours is the battery capacity expressed in Ah at nominal volts.
func (b BattInfo) AmpHours() float64 {
	if b.Volts <= 0 {
		return 0
	}
	return b.Capacity / b.Volts
}

// ConvInfo describes a TRU or an inverter.
type ConvInfo struct {
	InVolts    float64
	OutVolts   float64
	OutFreq    float64
	MinInVolts float64
	Eff        float64
}

// LoadInfo describes a load. A stabilized load draws constant power (Demand
// in W), an unstabilized one a constant current (Demand in A).
type LoadInfo struct {
	Stab     bool
	Demand   float64
	MinVolts float64
	IncapC   float64 // F, zero disables the input capacitor filter
	IncapR   float64 // ohms
}

// Tau is the input capacitor time constant in seconds.
func (l LoadInfo) Tau() float64 {
	return l.IncapC * l.IncapR
}

// CBInfo describes a circuit breaker or fuse.
type CBInfo struct {
	MaxAmps   float64
	TripLimit float64 // accumulated thermal charge (s) at which the breaker trips
	ResetTemp float64 // normalized temperature below which a reclose is accepted
	CoolTau   float64 // s
	Fuse      bool
	Open      bool // initial state
}

// DiodeInfo describes a diode.
type DiodeInfo struct {
	Drop float64
}

// TieInfo holds the initial join state of a tie, indexed like its connections.
type TieInfo struct {
	Joined []bool
}
