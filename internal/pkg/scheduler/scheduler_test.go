package scheduler

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"gotest.tools/v3/assert"
)

func TestStepScalesTime(t *testing.T) {
	var got []float64
	s := New(0, func(dt float64) { got = append(got, dt) }, nil)
	assert.Equal(t, s.Interval(), DefaultInterval)

	s.Step(0.02)
	assert.NilError(t, s.SetTimeFactor(10))
	s.Step(0.02)
	assert.NilError(t, s.SetTimeFactor(0))
	s.Step(0.02)

	assert.Equal(t, len(got), 3)
	assert.Equal(t, got[0], 0.02)
	assert.Assert(t, got[1] > 0.199 && got[1] < 0.201)
	assert.Equal(t, got[2], 0.0) // frozen, still ticks
}

func TestSetTimeFactorRejectsNegative(t *testing.T) {
	s := New(0, nil, nil)
	assert.Assert(t, errors.Is(s.SetTimeFactor(-1), ErrTimeFactor))
	assert.Equal(t, s.TimeFactor(), 1.0)
}

func TestCallbackOrder(t *testing.T) {
	var order []string
	s := New(0, func(float64) { order = append(order, "tick") }, nil)

	_, err := s.Register(Post, func(float64) error { order = append(order, "post1"); return nil })
	assert.NilError(t, err)
	_, err = s.Register(Pre, func(float64) error { order = append(order, "pre1"); return nil })
	assert.NilError(t, err)
	_, err = s.Register(Pre, func(float64) error { order = append(order, "pre2"); return nil })
	assert.NilError(t, err)
	_, err = s.Register(Post, func(float64) error { order = append(order, "post2"); return nil })
	assert.NilError(t, err)

	s.Step(0.02)
	assert.DeepEqual(t, order, []string{"pre1", "pre2", "tick", "post1", "post2"})
}

func TestCallbackIsolation(t *testing.T) {
	reg := metrics.NewRegistry()
	ticks := 0
	s := New(0, func(float64) { ticks++ }, reg)

	after := 0
	s.Register(Pre, func(float64) error { panic("boom") })
	s.Register(Pre, func(float64) error { return errors.New("bad input") })
	s.Register(Pre, func(float64) error { after++; return nil })

	s.Step(0.02)
	assert.Equal(t, ticks, 1)
	assert.Equal(t, after, 1)

	families, err := reg.GetPrometheusRegistry().Gather()
	assert.NilError(t, err)
	for _, f := range families {
		if f.GetName() == "elec_callback_failures_total" {
			assert.Equal(t, f.GetMetric()[0].GetCounter().GetValue(), 2.0)
		}
	}
}

func TestUnregister(t *testing.T) {
	calls := 0
	s := New(0, nil, nil)
	pid, err := s.Register(Post, func(float64) error { calls++; return nil })
	assert.NilError(t, err)

	s.Step(0.02)
	assert.Assert(t, s.Unregister(pid))
	assert.Assert(t, !s.Unregister(pid))
	s.Step(0.02)
	assert.Equal(t, calls, 1)
}

func TestRunAndStop(t *testing.T) {
	mux := &sync.Mutex{}
	var total float64
	ticks := 0
	s := New(5*time.Millisecond, func(dt float64) {
		mux.Lock()
		defer mux.Unlock()
		total += dt
		ticks++
	}, nil)

	assert.Assert(t, s.Start())
	assert.Assert(t, !s.Start())
	assert.Assert(t, s.Running())
	time.Sleep(100 * time.Millisecond)
	s.Stop()
	assert.Assert(t, !s.Running())

	mux.Lock()
	n, sim := ticks, total
	mux.Unlock()
	assert.Assert(t, n > 2, n)
	assert.Assert(t, sim > 0.02 && sim < 1, sim)

	// no tick after Stop returns
	time.Sleep(20 * time.Millisecond)
	mux.Lock()
	assert.Equal(t, ticks, n)
	mux.Unlock()

	s.Stop()
}

func TestStopWaitsForTick(t *testing.T) {
	entered := make(chan bool, 1)
	finished := false
	s := New(time.Millisecond, func(float64) {
		select {
		case entered <- true:
			time.Sleep(50 * time.Millisecond)
			finished = true
		default:
		}
	}, nil)

	s.Start()
	<-entered
	s.Stop()
	assert.Assert(t, finished)
}
