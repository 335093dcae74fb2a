package relay

import (
	"errors"
	"math"
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/comp"
	"gotest.tools/v3/assert"
)

func testInfo() comp.CBInfo {
	return comp.CBInfo{
		MaxAmps:   10,
		TripLimit: 3,
		ResetTemp: 0.5,
		CoolTau:   10,
	}
}

func TestRatedCurrentHolds(t *testing.T) {
	b := New("CB1", testInfo())
	s := b.InitState()
	assert.Assert(t, s.Closed)
	for i := 0; i < 1000; i++ {
		s = b.Step(s, 10, 0.1)
	}
	assert.Assert(t, s.Closed)
	assert.Equal(t, s.ThermalCharge, 0.0)
	assert.Assert(t, math.Abs(s.Temp-1) < 1e-3)
}

func TestOverloadTrips(t *testing.T) {
	b := New("CB1", testInfo())
	s := b.InitState()

	// 2x rated accumulates 3 s of charge per simulated second
	s = b.Step(s, 20, 0.9)
	assert.Assert(t, s.Closed)
	s = b.Step(s, 20, 0.2)
	assert.Assert(t, !s.Closed)
	assert.Assert(t, s.Tripped)
	assert.Equal(t, b.Trips(), uint64(1))
}

func TestTrippedStaysOpen(t *testing.T) {
	b := New("CB1", testInfo())
	s := b.InitState()
	s = b.Step(s, 100, 1)
	assert.Assert(t, !s.Closed)

	for _, dt := range []float64{0, 0.02, 2, 200, 0} {
		s = b.Step(s, 0, dt)
		assert.Assert(t, !s.Closed)
		assert.Assert(t, s.Tripped)
	}
	assert.Equal(t, b.Trips(), uint64(1))
}

func TestCloseRejectedWhileHot(t *testing.T) {
	b := New("CB1", testInfo())
	s := b.InitState()
	s = b.Step(s, 100, 1)
	assert.Assert(t, s.Temp >= 0.5)

	_, err := b.Command(s, true)
	assert.Assert(t, errors.Is(err, ErrTooHot))
	assert.Equal(t, b.Rejects(), uint64(1))

	for s.Temp >= 0.5 {
		s = b.Step(s, 0, 1)
		assert.Assert(t, !s.Closed)
	}
	s, err = b.Command(s, true)
	assert.NilError(t, err)
	assert.Assert(t, s.Closed)
	assert.Assert(t, !s.Tripped)
	assert.Equal(t, s.ThermalCharge, 0.0)
}

func TestTripHoldsAfterMildOverload(t *testing.T) {
	info := testInfo()
	info.MaxAmps = 5
	b := New("CB1", info)
	s := b.InitState()

	// 2x rated trips after about a second, well before the element heats up
	for i := 0; i < 20 && s.Closed; i++ {
		s = b.Step(s, 10, 0.1)
	}
	assert.Assert(t, s.Tripped)
	assert.Assert(t, s.Temp >= 1, s.Temp)

	_, err := b.Command(s, true)
	assert.Assert(t, errors.Is(err, ErrTooHot))

	// ln(2) time constants to fall below a 0.5 reset
	elapsed := 0.0
	for s.Temp >= info.ResetTemp {
		s = b.Step(s, 0, 0.5)
		elapsed += 0.5
	}
	assert.Assert(t, elapsed >= 6.5 && elapsed <= 7.5, elapsed)
	s, err = b.Command(s, true)
	assert.NilError(t, err)
	assert.Assert(t, s.Closed)
}

func TestCoolsTowardAmbientBelowRated(t *testing.T) {
	b := New("CB1", testInfo())
	s := b.InitState()
	for i := 0; i < 100; i++ {
		s = b.Step(s, 11, 0.1)
	}
	assert.Assert(t, s.Closed)
	assert.Assert(t, s.Temp > 0.5, s.Temp)

	// half rated current carries no heat of its own
	for i := 0; i < 1000; i++ {
		s = b.Step(s, 5, 0.1)
	}
	assert.Assert(t, s.Closed)
	assert.Assert(t, s.Temp < 0.01, s.Temp)
	assert.Equal(t, s.ThermalCharge, 0.0)
}

func TestOpenCommand(t *testing.T) {
	b := New("CB1", testInfo())
	s, err := b.Command(b.InitState(), false)
	assert.NilError(t, err)
	assert.Assert(t, !s.Closed)
	assert.Assert(t, !s.Tripped)

	s = b.Step(s, 0, 1)
	assert.Assert(t, !s.Closed)

	s, err = b.Command(s, true)
	assert.NilError(t, err)
	assert.Assert(t, s.Closed)
}

func TestFuseNeverRecloses(t *testing.T) {
	info := testInfo()
	info.Fuse = true
	b := New("F1", info)
	s := b.Step(b.InitState(), 100, 1)
	assert.Assert(t, !s.Closed)

	for i := 0; i < 100; i++ {
		s = b.Step(s, 0, 10)
	}
	assert.Assert(t, s.Temp < 0.5)
	_, err := b.Command(s, true)
	assert.Assert(t, errors.Is(err, ErrFuseBlown))
}

func TestInitiallyOpen(t *testing.T) {
	info := testInfo()
	info.Open = true
	b := New("CB2", info)
	assert.Assert(t, !b.InitState().Closed)
}
