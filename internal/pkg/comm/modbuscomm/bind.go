package modbuscomm

import (
	"fmt"

	"github.com/ohowland/elec_core/internal/pkg/network"
)

// Binding drives a generator's RPM or a load's demand from a register.
type Binding struct {
	Register string `json:"Register"`
	Comp     string `json:"Comp"`
}

// Bind attaches registers to the components of n.
func (s *Sources) Bind(n *network.Network, bindings []Binding) error {
	for _, b := range bindings {
		src, err := s.Register(b.Register)
		if err != nil {
			return fmt.Errorf("%w: %q", err, b.Register)
		}
		c, ok := n.FindByName(b.Comp)
		if !ok {
			return fmt.Errorf("%w: no component %q", network.ErrInvalidAccess, b.Comp)
		}
		if gen, ok := c.AsGenerator(); ok {
			gen.SetRPMSource(src)
			continue
		}
		if load, ok := c.AsLoad(); ok {
			load.SetDemandSource(src)
			continue
		}
		return fmt.Errorf("%w: %s %q takes no register input", network.ErrInvalidAccess, c.Type(), b.Comp)
	}
	return nil
}
