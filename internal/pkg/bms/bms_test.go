package bms

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ohowland/elec_core/internal/pkg/comp"
	"gotest.tools/v3/assert"
)

func testInfo() comp.BattInfo {
	return comp.BattInfo{
		Volts:       24,
		Capacity:    960, // 40 Ah
		IntR:        0.01,
		MaxChgAmps:  8,
		TrickleAmps: 0.1,
		CurveK:      8,
		ColdCoeff:   0.02,
		RefTemp:     288.15,
		ThermalTau:  600,
		ThermalR:    0.05,
		InitCharge:  1,
		InitTemp:    288.15,
	}
}

func TestOpenCircuitVolts(t *testing.T) {
	m := New(testInfo())
	assert.Equal(t, m.OpenCircuitVolts(0), 0.0)
	assert.Assert(t, math.Abs(m.OpenCircuitVolts(1)-24) < 1e-9)
	assert.Assert(t, math.Abs(m.OpenCircuitVolts(2)-24) < 1e-9)

	prev := -1.0
	for c := 0.0; c <= 1.0; c += 0.05 {
		v := m.OpenCircuitVolts(c)
		assert.Assert(t, v > prev, "charge %v", c)
		prev = v
	}
}

func TestLinearCurveWithoutShape(t *testing.T) {
	info := testInfo()
	info.CurveK = 0
	m := New(info)
	assert.Equal(t, m.OpenCircuitVolts(0.5), 12.0)
}

func TestTerminalVoltsSag(t *testing.T) {
	m := New(testInfo())
	s := m.InitState()
	assert.Assert(t, math.Abs(m.TerminalVolts(s, 10)-23.9) < 1e-9)
	assert.Assert(t, math.Abs(m.TerminalVolts(s, 0)-24) < 1e-9)
	assert.Equal(t, m.TerminalVolts(s, 1e6), 0.0)
}

func TestColdResistance(t *testing.T) {
	m := New(testInfo())
	warm := m.Resistance(300)
	cold := m.Resistance(253.15)
	assert.Equal(t, warm, 0.01)
	assert.Assert(t, math.Abs(cold-0.01*(1+0.02*35)) < 1e-12)

	s := comp.BattState{Charge: 1, Temp: 253.15}
	assert.Assert(t, m.TerminalVolts(s, 10) < m.TerminalVolts(m.InitState(), 10))
}

func TestChargeAmps(t *testing.T) {
	m := New(testInfo())
	s := comp.BattState{Charge: 0.5, Temp: 288.15}
	voc := m.OpenCircuitVolts(0.5)

	assert.Equal(t, m.ChargeAmps(s, voc-1), 0.0)
	assert.Assert(t, math.Abs(m.ChargeAmps(s, voc+0.05)-5) < 1e-9)
	assert.Equal(t, m.ChargeAmps(s, 28), 8.0)
	assert.Equal(t, m.ChargeAmps(comp.BattState{Charge: 1, Temp: 288.15}, 28), 0.0)
}

func TestStepModes(t *testing.T) {
	m := New(testInfo())
	s := comp.BattState{Charge: 0.5, Temp: 288.15}

	s1 := m.Step(s, Input{DischargeAmps: 40, Ambient: 288.15, Dt: 36})
	assert.Equal(t, m.Mode(), Discharging)
	assert.Assert(t, math.Abs(s1.Charge-0.49) < 1e-12)

	s2 := m.Step(s1, Input{ChargeAmps: 40, Ambient: 288.15, Dt: 36})
	assert.Equal(t, m.Mode(), Charging)
	assert.Assert(t, math.Abs(s2.Charge-0.5) < 1e-12)

	s3 := m.Step(s2, Input{ChargeAmps: 0.05, Ambient: 288.15, Dt: 3600})
	assert.Equal(t, m.Mode(), Idle)
	assert.Equal(t, s3.Charge, s2.Charge)
	assert.Equal(t, m.Mode().String(), "idle")
}

func TestSelfHeating(t *testing.T) {
	m := New(testInfo())
	s := m.InitState()
	for i := 0; i < 100; i++ {
		s = m.Step(s, Input{DischargeAmps: 100, Ambient: 288.15, Dt: 10})
	}
	assert.Assert(t, s.Temp > 288.15)
	assert.Assert(t, s.Temp <= 288.15+100*100*0.01*0.05+1e-9)
}

func TestFrozenTime(t *testing.T) {
	m := New(testInfo())
	s := comp.BattState{Charge: 0.7, Temp: 280}
	s1 := m.Step(s, Input{DischargeAmps: 100, Ambient: 300, Dt: 0})
	assert.Equal(t, s1, s)
}

func TestChargeProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("charge decreases monotonically under discharge", prop.ForAll(
		func(start float64, amps []float64, dt float64) bool {
			m := New(testInfo())
			s := comp.BattState{Charge: start, Temp: 288.15}
			for _, a := range amps {
				next := m.Step(s, Input{DischargeAmps: a, Ambient: 288.15, Dt: dt})
				if next.Charge > s.Charge {
					return false
				}
				s = next
			}
			return true
		},
		gen.Float64Range(0, 1),
		gen.SliceOf(gen.Float64Range(0, 500)),
		gen.Float64Range(0, 60),
	))

	properties.Property("charge stays within bounds", prop.ForAll(
		func(start float64, amps []float64, dt float64) bool {
			m := New(testInfo())
			s := comp.BattState{Charge: start, Temp: 288.15}
			for _, a := range amps {
				in := Input{Ambient: 288.15, Dt: dt}
				if a >= 0 {
					in.DischargeAmps = a
				} else {
					in.ChargeAmps = -a
				}
				s = m.Step(s, in)
				if s.Charge < 0 || s.Charge > 1 || math.IsNaN(s.Temp) {
					return false
				}
			}
			return true
		},
		gen.Float64Range(0, 1),
		gen.SliceOf(gen.Float64Range(-2000, 2000)),
		gen.Float64Range(0, 3600),
	))

	properties.TestingRun(t)
}
