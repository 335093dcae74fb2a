/*
comp.go Component taxonomy of the electrical network. Every node in the network
graph is one of these types, and each type has a fixed number of connection slots.
*/

package comp

import (
	"fmt"
	"strings"
)

// Type tags a component with its electrical role.
type Type int

// Component types. The order is stable; it is used by the wire formats of the
// recorders.
const (
	Gen Type = iota
	Batt
	TRU
	Inv
	Load
	Bus
	CB
	Shunt
	Tie
	Diode
	LabelBox
)

var typeNames = [...]string{
	Gen:      "GEN",
	Batt:     "BATT",
	TRU:      "TRU",
	Inv:      "INV",
	Load:     "LOAD",
	Bus:      "BUS",
	CB:       "CB",
	Shunt:    "SHUNT",
	Tie:      "TIE",
	Diode:    "DIODE",
	LabelBox: "LABEL_BOX",
}

func (t Type) String() string {
	if t < 0 || int(t) >= len(typeNames) {
		return fmt.Sprintf("Type(%d)", int(t))
	}
	return typeNames[t]
}

// ParseType maps a definition keyword (case insensitive) to a Type.
func ParseType(s string) (Type, error) {
	upper := strings.ToUpper(strings.TrimSpace(s))
	for t, name := range typeNames {
		if name == upper {
			return Type(t), nil
		}
	}
	return 0, fmt.Errorf("unknown component type %q", s)
}

// Unbounded marks a variable slot count in Arity.
const Unbounded = -1

// Arity returns the minimum and maximum number of connection slots of the type.
// Max is Unbounded for buses and ties.
func (t Type) Arity() (min int, max int) {
	switch t {
	case Gen, Batt, Load:
		return 1, 1
	case TRU, Inv, CB, Shunt, Diode:
		return 2, 2
	case Tie:
		return 2, Unbounded
	case Bus:
		return 1, Unbounded
	default:
		return 0, 0
	}
}

// IsSource is true for components that inject energy into a bus on their own.
func (t Type) IsSource() bool {
	return t == Gen || t == Batt
}

// IsConverter is true for components that transfer power from their input
// bus to a separate output bus.
func (t Type) IsConverter() bool {
	return t == TRU || t == Inv
}

// IsConductor is true for components that join buses into one island while
// they conduct.
func (t Type) IsConductor() bool {
	return t == CB || t == Shunt || t == Tie
}
