package comp

import (
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"
)

// ErrValidation is wrapped by every structural check failure.
var ErrValidation = errors.New("network validation failed")

// Unresolved marks a connection slot whose target name did not resolve.
const Unresolved = -1

// Endpoint is a (component, slot) pair attached to a bus.
type Endpoint struct {
	Comp int
	Slot int
}

// Graph is the immutable component graph of a network. Components are
// addressed by their index, which follows definition order.
type Graph struct {
	pid       uuid.UUID
	infos     []Info
	connNames [][]string
	conns     [][]int
	endpoints [][]Endpoint
	names     map[string]int
	final     bool
}

// NewGraph returns an empty graph.
func NewGraph() (*Graph, error) {
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}
	return &Graph{
		pid:   pid,
		names: make(map[string]int),
	}, nil
}

// PID is a getter for the graph's unique identifier.
func (g *Graph) PID() uuid.UUID {
	return g.pid
}

// AddNode appends a component with the names of the components attached to
// its slots, in slot order. Buses pass no connections; their endpoints are
// derived in Finalize.
func (g *Graph) AddNode(info Info, conns []string) (int, error) {
	if g.final {
		return 0, errors.New("graph is finalized")
	}
	if info.Name == "" {
		return 0, errors.New("component has no name")
	}
	if _, exists := g.names[info.Name]; exists {
		return 0, fmt.Errorf("component %q already exists in graph", info.Name)
	}
	if info.PID == uuid.Nil {
		pid, err := uuid.NewUUID()
		if err != nil {
			return 0, err
		}
		info.PID = pid
	}

	idx := len(g.infos)
	g.infos = append(g.infos, info)
	names := make([]string, len(conns))
	copy(names, conns)
	g.connNames = append(g.connNames, names)
	g.names[info.Name] = idx
	return idx, nil
}

// Finalize resolves connection names and derives bus endpoints. Names that do
// not resolve are kept as Unresolved and reported by Validate. A connection to
// a component that is not a bus is an error.
func (g *Graph) Finalize() error {
	if g.final {
		return nil
	}
	g.conns = make([][]int, len(g.infos))
	g.endpoints = make([][]Endpoint, len(g.infos))

	for i, names := range g.connNames {
		if g.infos[i].Type == Bus && len(names) > 0 {
			return fmt.Errorf("bus %q lists connections, bus endpoints are derived", g.infos[i].Name)
		}
		g.conns[i] = make([]int, len(names))
		for slot, name := range names {
			j, ok := g.names[name]
			if !ok {
				g.conns[i][slot] = Unresolved
				continue
			}
			if g.infos[j].Type != Bus {
				return fmt.Errorf("%s %q slot %d connects to %s %q, components connect only to buses",
					g.infos[i].Type, g.infos[i].Name, slot, g.infos[j].Type, name)
			}
			g.conns[i][slot] = j
			g.endpoints[j] = append(g.endpoints[j], Endpoint{Comp: i, Slot: slot})
		}
	}
	g.final = true
	return nil
}

// Len is the number of components.
func (g *Graph) Len() int {
	return len(g.infos)
}

// Info returns the static properties of component i.
func (g *Graph) Info(i int) Info {
	return g.infos[i]
}

// Infos returns every component's static properties in definition order.
func (g *Graph) Infos() []Info {
	out := make([]Info, len(g.infos))
	copy(out, g.infos)
	return out
}

// Conns returns the bus index attached to each slot of component i.
func (g *Graph) Conns(i int) []int {
	return g.conns[i]
}

// ConnNames returns the names component i was defined with, in slot order.
func (g *Graph) ConnNames(i int) []string {
	out := make([]string, len(g.connNames[i]))
	copy(out, g.connNames[i])
	return out
}

// Conn returns the bus attached to a slot, or Unresolved.
func (g *Graph) Conn(i int, slot int) int {
	if slot < 0 || slot >= len(g.conns[i]) {
		return Unresolved
	}
	return g.conns[i][slot]
}

// Endpoints returns the components attached to bus i.
func (g *Graph) Endpoints(i int) []Endpoint {
	return g.endpoints[i]
}

// Index looks a component up by name.
func (g *Graph) Index(name string) (int, bool) {
	i, ok := g.names[name]
	return i, ok
}

// Validate runs the structural checks required before a network may start.
// All problems are reported, joined, each wrapping ErrValidation.
func (g *Graph) Validate() error {
	if !g.final {
		return fmt.Errorf("%w: graph is not finalized", ErrValidation)
	}
	var errs []error
	fail := func(format string, a ...interface{}) {
		errs = append(errs, fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, a...)))
	}

	for i, info := range g.infos {
		conns := g.conns[i]
		for slot, c := range conns {
			if c == Unresolved {
				fail("%s %q slot %d references unknown component %q", info.Type, info.Name, slot, g.connNames[i][slot])
			}
		}

		min, max := info.Type.Arity()
		n := len(conns)
		if info.Type == Bus {
			n = len(g.endpoints[i])
		}
		switch {
		case info.Type == Tie && g.resolvedCount(i) < 2:
			fail("tie %q is orphaned, it joins %d buses", info.Name, g.resolvedCount(i))
		case info.Type == Bus && n < min:
			fail("bus %q has no endpoints", info.Name)
		case n < min || (max != Unbounded && n > max):
			fail("%s %q has %d connections, expected %s", info.Type, info.Name, n, arityString(min, max))
		}

		if err := g.checkDomain(i); err != nil {
			fail("%v", err)
		}
	}
	return errors.Join(errs...)
}

// CanStart is true when Validate reports no problem.
func (g *Graph) CanStart() bool {
	return g.Validate() == nil
}

func (g *Graph) resolvedCount(i int) int {
	n := 0
	seen := make(map[int]bool)
	for _, c := range g.conns[i] {
		if c != Unresolved && !seen[c] {
			seen[c] = true
			n++
		}
	}
	return n
}

// checkDomain verifies that every component sees buses of the expected kind.
func (g *Graph) checkDomain(i int) error {
	info := g.infos[i]
	want := func(slot int, ac bool) error {
		b := g.Conn(i, slot)
		if b == Unresolved {
			return nil
		}
		if g.infos[b].AC != ac {
			return fmt.Errorf("%s %q slot %d expects %s bus, %q is %s",
				info.Type, info.Name, slot, domain(ac), g.infos[b].Name, domain(g.infos[b].AC))
		}
		return nil
	}

	switch info.Type {
	case Gen, Load:
		return want(0, info.AC)
	case Batt:
		return want(0, false)
	case TRU:
		return errors.Join(want(0, true), want(1, false))
	case Inv:
		return errors.Join(want(0, false), want(1, true))
	case CB, Shunt, Diode, Tie:
		// passive components only need both sides in the same domain
		first := Unresolved
		var errs []error
		for slot, b := range g.conns[i] {
			if b == Unresolved {
				continue
			}
			if first == Unresolved {
				first = b
				continue
			}
			errs = append(errs, want(slot, g.infos[first].AC))
		}
		return errors.Join(errs...)
	}
	return nil
}

func domain(ac bool) string {
	if ac {
		return "AC"
	}
	return "DC"
}

func arityString(min, max int) string {
	switch {
	case max == Unbounded:
		return fmt.Sprintf("at least %d", min)
	case min == max:
		return fmt.Sprintf("%d", min)
	default:
		return fmt.Sprintf("%d to %d", min, max)
	}
}

// SortedNames returns the component names in lexical order.
func (g *Graph) SortedNames() []string {
	out := make([]string, 0, len(g.names))
	for name := range g.names {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
