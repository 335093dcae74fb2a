package network

// RPMSource supplies the rotor speed of a generator once per tick.
type RPMSource interface {
	RPM() float64
}

// RPMFunc adapts a function to an RPMSource.
type RPMFunc func() float64

// RPM calls f.
func (f RPMFunc) RPM() float64 {
	return f()
}

// DemandSource supplies the demand of a load once per tick, in W for a
// stabilized load and in A for an unstabilized one.
type DemandSource interface {
	Demand() float64
}

// DemandFunc adapts a function to a DemandSource.
type DemandFunc func() float64

// Demand calls f.
func (f DemandFunc) Demand() float64 {
	return f()
}

// StepCallback runs once per tick, before or after the solver.
type StepCallback interface {
	Step(n *Network, simDt float64) error
}

// StepFunc adapts a function to a StepCallback.
type StepFunc func(n *Network, simDt float64) error

// Step calls f.
func (f StepFunc) Step(n *Network, simDt float64) error {
	return f(n, simDt)
}
