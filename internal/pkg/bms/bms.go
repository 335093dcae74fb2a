/*
bms.go Battery model. The battery has a relative charge in [0,1] and a cell
temperature. Its terminal voltage follows an open circuit voltage curve over the
charge, sagging under load through an internal resistance that grows in the cold.
*/

package bms

import (
	"math"

	"github.com/ohowland/elec_core/internal/pkg/comp"
)

const secondsPerHour = 3600.0

// Mode is the operating mode of a battery during the last tick.
type Mode int

const (
	Idle Mode = iota
	Discharging
	Charging
)

func (m Mode) String() string {
	switch m {
	case Discharging:
		return "discharging"
	case Charging:
		return "charging"
	default:
		return "idle"
	}
}

// Model is the battery model of one battery. It is driven once per tick by
// the owning network.
type Model struct {
	info comp.BattInfo
	sm   *stateMachine
}

// New returns the model of a battery with the given parameters.
func New(info comp.BattInfo) *Model {
	return &Model{
		info: info,
		sm:   &stateMachine{idleState{}},
	}
}

// Info is a getter for the battery parameters.
func (m *Model) Info() comp.BattInfo {
	return m.info
}

// Mode is the state the last Step left the battery in.
func (m *Model) Mode() Mode {
	return m.sm.currentState.mode()
}

// InitState is the state of the battery at network load.
func (m *Model) InitState() comp.BattState {
	return comp.BattState{
		Charge: clamp(m.info.InitCharge, 0, 1),
		Temp:   m.info.InitTemp,
	}
}

// OpenCircuitVolts maps relative charge onto the open circuit voltage. The
// curve rises steeply out of an empty battery and flattens toward the nominal
// voltage at full charge.
func (m *Model) OpenCircuitVolts(charge float64) float64 {
	c := clamp(charge, 0, 1)
	k := m.info.CurveK
	if k <= 0 {
		return m.info.Volts * c
	}
	return m.info.Volts * (1 - math.Exp(-k*c)) / (1 - math.Exp(-k))
}

// Resistance is the internal resistance at the given cell temperature.
func (m *Model) Resistance(temp float64) float64 {
	cold := math.Max(0, m.info.RefTemp-temp)
	return m.info.IntR * (1 + m.info.ColdCoeff*cold)
}

// TerminalVolts is the voltage at the battery terminals while delivering
// dischargeAmps.
func (m *Model) TerminalVolts(s comp.BattState, dischargeAmps float64) float64 {
	v := m.OpenCircuitVolts(s.Charge) - math.Max(0, dischargeAmps)*m.Resistance(s.Temp)
	return math.Max(0, v)
}

// ChargeAmps is the current the battery accepts from a bus held at volts.
func (m *Model) ChargeAmps(s comp.BattState, volts float64) float64 {
	voc := m.OpenCircuitVolts(s.Charge)
	if volts <= voc || s.Charge >= 1 {
		return 0
	}
	r := m.Resistance(s.Temp)
	if r <= 0 {
		return m.info.MaxChgAmps
	}
	return math.Min((volts-voc)/r, m.info.MaxChgAmps)
}

// Input is what the battery saw during one tick.
type Input struct {
	DischargeAmps float64
	ChargeAmps    float64
	Ambient       float64 // K
	Dt            float64 // simulated s
}

// Step integrates charge and temperature over one tick.
func (m *Model) Step(s comp.BattState, in Input) comp.BattState {
	return m.sm.run(m, s, in)
}

// coulombs converts amps over dt into relative charge.
func (m *Model) coulombs(amps, dt float64) float64 {
	ah := m.info.AmpHours()
	if ah <= 0 {
		return 0
	}
	return amps * dt / (secondsPerHour * ah)
}

// heat relaxes the cell temperature toward ambient plus self heating.
func (m *Model) heat(s comp.BattState, in Input) float64 {
	r := m.Resistance(s.Temp)
	amps := math.Max(in.DischargeAmps, in.ChargeAmps)
	target := in.Ambient + amps*amps*r*m.info.ThermalR
	if m.info.ThermalTau <= 0 {
		return target
	}
	alpha := 1 - math.Exp(-in.Dt/m.info.ThermalTau)
	return s.Temp + (target-s.Temp)*alpha
}

type stateMachine struct {
	currentState state
}

func (sm *stateMachine) run(m *Model, s comp.BattState, in Input) comp.BattState {
	sm.currentState = sm.currentState.transition(m, in)
	return sm.currentState.action(m, s, in)
}

type state interface {
	action(*Model, comp.BattState, Input) comp.BattState
	transition(*Model, Input) state
	mode() Mode
}

func next(m *Model, in Input) state {
	switch {
	case in.DischargeAmps > 0:
		return dischargingState{}
	case in.ChargeAmps > m.info.TrickleAmps:
		return chargingState{}
	default:
		return idleState{}
	}
}

// idleState only lets the battery settle thermally.
type idleState struct{}

func (idleState) action(m *Model, s comp.BattState, in Input) comp.BattState {
	return comp.BattState{Charge: s.Charge, Temp: m.heat(s, in)}
}

func (idleState) transition(m *Model, in Input) state { return next(m, in) }

func (idleState) mode() Mode { return Idle }

type dischargingState struct{}

func (dischargingState) action(m *Model, s comp.BattState, in Input) comp.BattState {
	return comp.BattState{
		Charge: clamp(s.Charge-m.coulombs(in.DischargeAmps, in.Dt), 0, 1),
		Temp:   m.heat(s, in),
	}
}

func (dischargingState) transition(m *Model, in Input) state { return next(m, in) }

func (dischargingState) mode() Mode { return Discharging }

// chargingState is entered only above the trickle threshold; a trickle
// current does not add charge.
type chargingState struct{}

func (chargingState) action(m *Model, s comp.BattState, in Input) comp.BattState {
	return comp.BattState{
		Charge: clamp(s.Charge+m.coulombs(in.ChargeAmps, in.Dt), 0, 1),
		Temp:   m.heat(s, in),
	}
}

func (chargingState) transition(m *Model, in Input) state { return next(m, in) }

func (chargingState) mode() Mode { return Charging }

func clamp(x, lo, hi float64) float64 {
	if math.IsNaN(x) {
		return lo
	}
	return math.Max(lo, math.Min(hi, x))
}
