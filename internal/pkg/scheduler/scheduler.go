/*
scheduler.go Drives the simulation clock. Each tick scales the elapsed wall
time by the time factor, runs the pre-step callbacks, the tick body and the
post-step callbacks, in that order, on a single goroutine.
*/

package scheduler

import (
	"errors"
	"fmt"
	"log"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/metrics"
)

// DefaultInterval is the wall time between two ticks of the run loop.
const DefaultInterval = 20 * time.Millisecond

// ErrTimeFactor is returned for a negative or non-finite time factor.
var ErrTimeFactor = errors.New("time factor must be a finite number >= 0")

// Phase selects when a callback runs relative to the tick body.
type Phase int

const (
	Pre Phase = iota
	Post
)

func (p Phase) String() string {
	switch p {
	case Pre:
		return "pre"
	case Post:
		return "post"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Func is a step callback. It receives the simulated seconds of the tick.
type Func func(simDt float64) error

type entry struct {
	pid uuid.UUID
	fn  Func
}

// Scheduler runs ticks on a fixed interval or on demand.
type Scheduler struct {
	mux      *sync.Mutex
	stepMux  *sync.Mutex
	interval time.Duration
	factor   float64
	tick     func(simDt float64)
	pre      []entry
	post     []entry
	metrics  *metrics.Registry

	running bool
	stop    chan bool
	done    chan bool
}

// New returns a stopped scheduler calling tick once per step. A zero interval
// selects DefaultInterval; a nil registry disables metrics.
func New(interval time.Duration, tick func(simDt float64), reg *metrics.Registry) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	s := &Scheduler{
		mux:      &sync.Mutex{},
		stepMux:  &sync.Mutex{},
		interval: interval,
		factor:   1,
		tick:     tick,
		metrics:  reg,
	}
	if reg != nil {
		reg.TimeFactor.Set(1)
	}
	return s
}

// Interval is the wall time between two ticks of the run loop.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// SetTimeFactor sets the ratio of simulated to wall time. Zero freezes the
// simulation clock, ticks still run.
func (s *Scheduler) SetTimeFactor(f float64) error {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
		return ErrTimeFactor
	}
	s.mux.Lock()
	s.factor = f
	s.mux.Unlock()
	if s.metrics != nil {
		s.metrics.TimeFactor.Set(f)
	}
	return nil
}

// TimeFactor returns the ratio of simulated to wall time.
func (s *Scheduler) TimeFactor() float64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.factor
}

// Register appends fn to the callbacks of phase and returns its handle.
func (s *Scheduler) Register(phase Phase, fn Func) (uuid.UUID, error) {
	if fn == nil {
		return uuid.UUID{}, errors.New("nil callback")
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return uuid.UUID{}, err
	}
	s.mux.Lock()
	defer s.mux.Unlock()
	switch phase {
	case Pre:
		s.pre = append(s.pre, entry{pid, fn})
	case Post:
		s.post = append(s.post, entry{pid, fn})
	default:
		return uuid.UUID{}, fmt.Errorf("unknown phase %v", phase)
	}
	return pid, nil
}

// Unregister removes the callback registered under pid. It reports whether a
// callback was removed.
func (s *Scheduler) Unregister(pid uuid.UUID) bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	var ok bool
	s.pre, ok = remove(s.pre, pid)
	if ok {
		return true
	}
	s.post, ok = remove(s.post, pid)
	return ok
}

func remove(entries []entry, pid uuid.UUID) ([]entry, bool) {
	for i, e := range entries {
		if e.pid == pid {
			out := make([]entry, 0, len(entries)-1)
			out = append(out, entries[:i]...)
			return append(out, entries[i+1:]...), true
		}
	}
	return entries, false
}

// Step runs one tick for wallDt seconds of wall time and returns the
// simulated seconds it covered. Concurrent calls are serialized.
func (s *Scheduler) Step(wallDt float64) float64 {
	if wallDt < 0 || math.IsNaN(wallDt) || math.IsInf(wallDt, 0) {
		wallDt = 0
	}
	s.mux.Lock()
	simDt := wallDt * s.factor
	pre, post := s.pre, s.post
	s.mux.Unlock()

	s.stepMux.Lock()
	defer s.stepMux.Unlock()

	start := time.Now()
	s.runCallbacks(Pre, pre, simDt)
	if s.tick != nil {
		s.tick(simDt)
	}
	s.runCallbacks(Post, post, simDt)
	if s.metrics != nil {
		s.metrics.RecordTick(simDt, time.Since(start))
	}
	return simDt
}

func (s *Scheduler) runCallbacks(phase Phase, entries []entry, simDt float64) {
	for _, e := range entries {
		if err := call(e.fn, simDt); err != nil {
			log.Printf("[Scheduler] %v callback %v failed: %v", phase, e.pid, err)
			if s.metrics != nil {
				s.metrics.RecordCallbackFailure(phase.String())
			}
		}
	}
}

// call runs fn, turning a panic into an error.
func call(fn Func, simDt float64) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(simDt)
}

// Start launches the run loop. It returns false if the loop is already
// running.
func (s *Scheduler) Start() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	if s.running {
		return false
	}
	s.running = true
	s.stop = make(chan bool)
	s.done = make(chan bool)
	go s.run(s.stop, s.done)
	log.Printf("[Scheduler] started, interval %v", s.interval)
	return true
}

// Running reports whether the run loop is active.
func (s *Scheduler) Running() bool {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.running
}

// Stop halts the run loop and waits for the tick in flight to finish. It is a
// no-op on a stopped scheduler. Stop must not be called from a callback.
func (s *Scheduler) Stop() {
	s.mux.Lock()
	if !s.running {
		s.mux.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mux.Unlock()

	close(stop)
	<-done
	log.Println("[Scheduler] stopped")
}

func (s *Scheduler) run(stop <-chan bool, done chan<- bool) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case now := <-ticker.C:
			// a stop requested while waiting wins over the tick
			select {
			case <-stop:
				return
			default:
			}
			s.Step(now.Sub(last).Seconds())
			last = now
		case <-stop:
			return
		}
	}
}
