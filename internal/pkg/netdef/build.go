package netdef

import (
	"fmt"
	"sort"

	"github.com/ohowland/elec_core/internal/pkg/comp"
)

// AutoBusPrefix starts the name of every bus synthesized between two directly
// connected components.
const AutoBusPrefix = "_AUTO_"

// Env carries the network-wide parameters of a definition.
type Env struct {
	Name             string
	AmbientTemp      float64
	ShortCircuitAmps float64
}

// Env returns the network-wide parameters.
func (d *Definition) Env() Env {
	return Env{
		Name:             d.Name,
		AmbientTemp:      d.AmbientTemp,
		ShortCircuitAmps: d.ShortCircuitAmps,
	}
}

type node struct {
	info  comp.Info
	conns []string
}

// Graph converts the definition into a finalized component graph. Two
// non-bus components that reference each other directly get an autogenerated
// bus between them. Structural problems that Validate reports (unknown
// references, orphaned ties) do not fail the build.
func (d *Definition) Graph() (*comp.Graph, error) {
	nodes := make([]*node, 0, len(d.Components))
	byName := make(map[string]*node, len(d.Components))

	for i := range d.Components {
		n, err := d.Components[i].node()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
		if _, dup := byName[n.info.Name]; dup {
			return nil, fmt.Errorf("%w: component %q defined twice", ErrLoad, n.info.Name)
		}
		nodes = append(nodes, n)
		byName[n.info.Name] = n
	}

	auto, err := synthesizeBuses(nodes, byName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	nodes = append(nodes, auto...)

	g, err := comp.NewGraph()
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if _, err := g.AddNode(n.info, n.conns); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrLoad, err)
		}
	}
	if err := g.Finalize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrLoad, err)
	}
	return g, nil
}

// synthesizeBuses rewrites every direct non-bus to non-bus reference into a
// pair of references to a new bus. The reference must be mutual.
func synthesizeBuses(nodes []*node, byName map[string]*node) ([]*node, error) {
	var auto []*node
	for _, a := range nodes {
		if a.info.Type == comp.Bus {
			continue
		}
		for slot, name := range a.conns {
			b, ok := byName[name]
			if !ok || b.info.Type == comp.Bus {
				continue
			}
			if b == a {
				return nil, fmt.Errorf("%s %q connects to itself", a.info.Type, a.info.Name)
			}
			back := indexOf(b.conns, a.info.Name)
			if back < 0 {
				return nil, fmt.Errorf("%s %q connects to %s %q, which does not connect back",
					a.info.Type, a.info.Name, b.info.Type, b.info.Name)
			}
			if count(a.conns, b.info.Name) > 1 || count(b.conns, a.info.Name) > 1 {
				return nil, fmt.Errorf("%q and %q are directly connected more than once", a.info.Name, b.info.Name)
			}

			pair := []string{a.info.Name, b.info.Name}
			sort.Strings(pair)
			busName := AutoBusPrefix + pair[0] + "_" + pair[1]
			if _, exists := byName[busName]; exists {
				return nil, fmt.Errorf("autogenerated bus name %q is already in use", busName)
			}

			bus := &node{info: comp.Info{
				Name:    busName,
				Type:    comp.Bus,
				AC:      autoBusAC(a, slot, b, back),
				Autogen: true,
			}}
			a.conns[slot] = busName
			b.conns[back] = busName
			byName[busName] = bus
			auto = append(auto, bus)
		}
	}
	return auto, nil
}

// autoBusAC inherits the domain from the side whose slot has a fixed domain.
func autoBusAC(a *node, aSlot int, b *node, bSlot int) bool {
	if ac, fixed := slotDomain(a.info, aSlot); fixed {
		return ac
	}
	if ac, fixed := slotDomain(b.info, bSlot); fixed {
		return ac
	}
	return a.info.AC
}

func slotDomain(info comp.Info, slot int) (ac bool, fixed bool) {
	switch info.Type {
	case comp.Gen, comp.Load:
		return info.AC, true
	case comp.Batt:
		return false, true
	case comp.TRU:
		return slot == 0, true
	case comp.Inv:
		return slot == 1, true
	}
	return info.AC, false
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func count(names []string, name string) int {
	n := 0
	for _, s := range names {
		if s == name {
			n++
		}
	}
	return n
}

// node converts one definition entry, checking its type, its parameter block
// and its slot count.
func (c *Component) node() (*node, error) {
	typ, err := comp.ParseType(c.Type)
	if err != nil {
		return nil, fmt.Errorf("component %q: %v", c.Name, err)
	}

	info := comp.Info{
		Name: c.Name,
		Type: typ,
		AC:   c.AC,
	}
	if c.Pos != nil {
		info.Pos = comp.Pos{X: c.Pos.X, Y: c.Pos.Y}
	}

	missing := func(block string) error {
		return fmt.Errorf("%s %q: missing %s parameter block", typ, c.Name, block)
	}

	switch typ {
	case comp.Gen:
		if c.Gen == nil {
			return nil, missing("gen")
		}
		if c.AC && c.Gen.Freq <= 0 {
			return nil, fmt.Errorf("%s %q: AC generator needs a frequency", typ, c.Name)
		}
		info.Gen = comp.GenInfo(*c.Gen)
	case comp.Batt:
		if c.Batt == nil {
			return nil, missing("batt")
		}
		if c.AC {
			return nil, fmt.Errorf("%s %q: batteries are DC", typ, c.Name)
		}
		b := c.Batt
		info.Batt = comp.BattInfo{
			Volts:       b.Volts,
			Capacity:    b.Capacity,
			IntR:        b.IntR,
			MaxChgAmps:  b.MaxChgAmps,
			TrickleAmps: b.TrickleAmps,
			CurveK:      b.CurveK,
			ColdCoeff:   b.ColdCoeff,
			RefTemp:     b.RefTemp,
			ThermalTau:  b.ThermalTau,
			ThermalR:    b.ThermalR,
			InitCharge:  *b.InitCharge,
			InitTemp:    b.InitTemp,
		}
	case comp.TRU, comp.Inv:
		if c.Conv == nil {
			return nil, missing("conv")
		}
		if typ == comp.Inv && c.Conv.OutFreq <= 0 {
			return nil, fmt.Errorf("%s %q: inverter needs an output frequency", typ, c.Name)
		}
		info.Conv = comp.ConvInfo(*c.Conv)
	case comp.Load:
		if c.Load == nil {
			return nil, missing("load")
		}
		info.Load = comp.LoadInfo(*c.Load)
	case comp.CB:
		if c.CB == nil {
			return nil, missing("cb")
		}
		info.CB = comp.CBInfo(*c.CB)
	case comp.Diode:
		if c.Diode != nil {
			info.Diode = comp.DiodeInfo(*c.Diode)
		}
	case comp.Tie:
		joined := make([]bool, len(c.Conns))
		if c.Tie != nil {
			for i, name := range c.Conns {
				joined[i] = c.Tie.Joined.All || indexOf(c.Tie.Joined.Names, name) >= 0
			}
			for _, name := range c.Tie.Joined.Names {
				if indexOf(c.Conns, name) < 0 {
					return nil, fmt.Errorf("%s %q: joined bus %q is not connected", typ, c.Name, name)
				}
			}
		}
		info.Tie = comp.TieInfo{Joined: joined}
	}

	// tie and bus counts are checked by Validate
	min, max := typ.Arity()
	switch typ {
	case comp.Bus:
		if len(c.Conns) > 0 {
			return nil, fmt.Errorf("%s %q: bus endpoints are derived, remove conns", typ, c.Name)
		}
	case comp.Tie:
	default:
		if len(c.Conns) < min || len(c.Conns) > max {
			return nil, fmt.Errorf("%s %q: has %d connections, expected %d", typ, c.Name, len(c.Conns), max)
		}
	}

	conns := make([]string, len(c.Conns))
	copy(conns, c.Conns)
	return &node{info: info, conns: conns}, nil
}
