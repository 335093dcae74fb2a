package netdef

import "strings"

// Defaults for parameters a definition may omit.
const (
	DefaultAmbientTemp      = 288.15 // K, ISA sea level
	DefaultShortCircuitAmps = 5000.0

	DefaultGenIntR = 0.01

	DefaultBattIntR        = 0.01
	DefaultBattTrickleAmps = 0.1
	DefaultBattCurveK      = 8.0
	DefaultBattColdCoeff   = 0.02
	DefaultBattThermalTau  = 600.0
	DefaultBattThermalR    = 0.05

	DefaultMinInRatio = 0.5

	DefaultIncapR = 1.0

	DefaultCBTripLimit = 3.0
	DefaultCBResetTemp = 0.5
	DefaultCBCoolTau   = 10.0

	DefaultDiodeDrop = 0.7
)

func (d *Definition) applyDefaults() {
	if d.AmbientTemp == 0 {
		d.AmbientTemp = DefaultAmbientTemp
	}
	if d.ShortCircuitAmps == 0 {
		d.ShortCircuitAmps = DefaultShortCircuitAmps
	}
	for i := range d.Components {
		d.Components[i].applyDefaults(d.AmbientTemp)
	}
}

func (c *Component) applyDefaults(ambient float64) {
	if g := c.Gen; g != nil {
		if g.MaxRPM == 0 {
			g.MaxRPM = g.MinRPM
		}
		if g.Eff == 0 {
			g.Eff = 1
		}
		if g.IntR == 0 {
			g.IntR = DefaultGenIntR
		}
	}

	if b := c.Batt; b != nil {
		if b.IntR == 0 {
			b.IntR = DefaultBattIntR
		}
		if b.MaxChgAmps == 0 && b.Volts > 0 {
			// C/5 charge rate
			b.MaxChgAmps = b.Capacity / b.Volts / 5
		}
		if b.TrickleAmps == 0 {
			b.TrickleAmps = DefaultBattTrickleAmps
		}
		if b.CurveK == 0 {
			b.CurveK = DefaultBattCurveK
		}
		if b.ColdCoeff == 0 {
			b.ColdCoeff = DefaultBattColdCoeff
		}
		if b.RefTemp == 0 {
			b.RefTemp = ambient
		}
		if b.ThermalTau == 0 {
			b.ThermalTau = DefaultBattThermalTau
		}
		if b.ThermalR == 0 {
			b.ThermalR = DefaultBattThermalR
		}
		if b.InitCharge == nil {
			full := 1.0
			b.InitCharge = &full
		}
		if b.InitTemp == 0 {
			b.InitTemp = ambient
		}
	}

	if v := c.Conv; v != nil {
		if v.MinInVolts == 0 {
			v.MinInVolts = DefaultMinInRatio * v.InVolts
		}
	}

	if l := c.Load; l != nil {
		if l.IncapR == 0 {
			l.IncapR = DefaultIncapR
		}
	}

	if cb := c.CB; cb != nil {
		if cb.TripLimit == 0 {
			cb.TripLimit = DefaultCBTripLimit
		}
		if cb.ResetTemp == 0 {
			cb.ResetTemp = DefaultCBResetTemp
		}
		if cb.CoolTau == 0 {
			cb.CoolTau = DefaultCBCoolTau
		}
	}

	if c.Diode == nil && strings.EqualFold(c.Type, "DIODE") {
		c.Diode = &Diode{}
	}
	if dd := c.Diode; dd != nil && dd.Drop == 0 {
		dd.Drop = DefaultDiodeDrop
	}
}
