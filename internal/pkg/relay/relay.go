/*
relay.go Circuit breaker protection. A breaker heats with the square of its
current ratio (I²t) and trips open when the accumulated thermal charge exceeds
its trip limit. It only closes again on an external command.
*/

package relay

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync/atomic"

	"github.com/ohowland/elec_core/internal/pkg/comp"
)

var (
	// ErrFuseBlown rejects closing a fuse that has tripped.
	ErrFuseBlown = errors.New("fuse is blown")
	// ErrTooHot rejects closing a breaker that has not cooled below its reset temperature.
	ErrTooHot = errors.New("breaker has not cooled down")
)

// Breaker is the protection model of one circuit breaker or fuse.
type Breaker struct {
	name    string
	info    comp.CBInfo
	trips   uint64
	rejects uint64
}

// New returns the protection model of a breaker.
func New(name string, info comp.CBInfo) *Breaker {
	return &Breaker{name: name, info: info}
}

// Name is a getter for the breaker name.
func (b *Breaker) Name() string {
	return b.name
}

// Info is a getter for the breaker parameters.
func (b *Breaker) Info() comp.CBInfo {
	return b.info
}

// Trips counts the thermal trips since load.
func (b *Breaker) Trips() uint64 {
	return atomic.LoadUint64(&b.trips)
}

// Rejects counts the close commands refused since load.
func (b *Breaker) Rejects() uint64 {
	return atomic.LoadUint64(&b.rejects)
}

// InitState is the breaker state at network load.
func (b *Breaker) InitState() comp.CBState {
	return comp.CBState{Closed: !b.info.Open}
}

// Step integrates the breaker thermal model over one tick during which amps
// flowed through it, and trips it if the thermal charge exceeds the limit.
func (b *Breaker) Step(s comp.CBState, amps, dt float64) comp.CBState {
	sm := stateMachine{stateOf(s)}
	return sm.run(b, s, math.Abs(amps), dt)
}

// Command applies an external open or close request. Closing an open breaker
// is refused while it is still hot or, for a fuse, once it has blown. An
// accepted close clears the thermal charge.
func (b *Breaker) Command(s comp.CBState, closed bool) (comp.CBState, error) {
	if !closed {
		s.Closed = false
		return s, nil
	}
	if s.Closed {
		return s, nil
	}
	if b.info.Fuse && s.Tripped {
		atomic.AddUint64(&b.rejects, 1)
		log.Printf("[Relay] %s: close rejected, fuse blown\n", b.name)
		return s, fmt.Errorf("%s: %w", b.name, ErrFuseBlown)
	}
	if s.Temp >= b.info.ResetTemp {
		atomic.AddUint64(&b.rejects, 1)
		log.Printf("[Relay] %s: close rejected, temp %.3f above reset %.3f\n", b.name, s.Temp, b.info.ResetTemp)
		return s, fmt.Errorf("%s: %w (temp %.3f, reset %.3f)", b.name, ErrTooHot, s.Temp, b.info.ResetTemp)
	}
	s.Closed = true
	s.Tripped = false
	s.ThermalCharge = 0
	return s, nil
}

// thermal integrates the I²t charge. The normalized temperature relaxes toward
// the squared current ratio above rated current and toward ambient below it.
func (b *Breaker) thermal(s comp.CBState, amps, dt float64) comp.CBState {
	ratio := 0.0
	if b.info.MaxAmps > 0 {
		ratio = amps / b.info.MaxAmps
	}
	heat := ratio * ratio

	s.ThermalCharge = math.Max(0, s.ThermalCharge+(heat-1)*dt)
	target := 0.0
	if heat >= 1 {
		target = heat
	}
	if b.info.CoolTau > 0 {
		alpha := 1 - math.Exp(-dt/b.info.CoolTau)
		s.Temp += (target - s.Temp) * alpha
	} else {
		s.Temp = target
	}
	return s
}

type stateMachine struct {
	currentState state
}

func (sm *stateMachine) run(b *Breaker, s comp.CBState, amps, dt float64) comp.CBState {
	heated := b.thermal(s, amps, dt)
	sm.currentState = sm.currentState.transition(b, heated)
	return sm.currentState.action(b, heated)
}

type state interface {
	action(*Breaker, comp.CBState) comp.CBState
	transition(*Breaker, comp.CBState) state
}

func stateOf(s comp.CBState) state {
	if s.Closed {
		return closedState{}
	}
	return openState{}
}

type closedState struct{}

func (closedState) action(b *Breaker, s comp.CBState) comp.CBState {
	s.Closed = true
	return s
}

func (closedState) transition(b *Breaker, s comp.CBState) state {
	if s.ThermalCharge > b.info.TripLimit {
		atomic.AddUint64(&b.trips, 1)
		log.Printf("[Relay] %s: tripped, thermal charge %.3f s above limit %.3f s\n",
			b.name, s.ThermalCharge, b.info.TripLimit)
		return openState{trip: true}
	}
	return closedState{}
}

// openState holds the breaker open. Only Command leaves it. A trip leaves the
// element at least at its rated temperature so it has to cool before reset.
type openState struct {
	trip bool
}

func (o openState) action(b *Breaker, s comp.CBState) comp.CBState {
	s.Closed = false
	if o.trip {
		s.Tripped = true
		s.Temp = math.Max(s.Temp, 1)
	}
	return s
}

func (openState) transition(b *Breaker, s comp.CBState) state {
	return openState{}
}
