/*
network.go The façade of the engine. A Network owns the component graph, the
runtime state of every component and the scheduler that steps them. The
simulation goroutine works on a private state vector; readers only ever see
the immutable snapshot committed at the end of the last tick.
*/

package network

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/ohowland/elec_core/internal/pkg/bms"
	"github.com/ohowland/elec_core/internal/pkg/bus"
	"github.com/ohowland/elec_core/internal/pkg/comp"
	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/netdef"
	"github.com/ohowland/elec_core/internal/pkg/powerflow"
	"github.com/ohowland/elec_core/internal/pkg/relay"
	"github.com/ohowland/elec_core/internal/pkg/scheduler"
)

var (
	// ErrLoad wraps every failure to build a network from its definition.
	ErrLoad = netdef.ErrLoad
	// ErrValidation wraps every structural problem that keeps a network from starting.
	ErrValidation = comp.ErrValidation
	// ErrInvalidAccess is returned when an operation does not apply to a component.
	ErrInvalidAccess = errors.New("invalid component access")
	// ErrClosed is returned by operations on a closed network.
	ErrClosed = errors.New("network is closed")
)

// Phase selects whether a step callback runs before or after the solver.
type Phase = scheduler.Phase

const (
	PreStep  = scheduler.Pre
	PostStep = scheduler.Post
)

type mutation func(states []comp.State)

// Network is a loaded electrical network.
type Network struct {
	name    string
	env     netdef.Env
	g       *comp.Graph
	comps   []*Comp
	solver  *powerflow.Solver
	relays  map[int]*relay.Breaker
	batts   map[int]*bms.Model
	sched   *scheduler.Scheduler
	pub     *msg.PubSub
	metrics *metrics.Registry
	valid   error

	// owned by the tick; the scheduler serializes ticks
	work    []comp.State
	ticks   uint64
	simTime float64

	snapMux *sync.RWMutex
	snap    *Snapshot

	queueMux *sync.Mutex
	queue    []mutation

	srcMux  *sync.Mutex
	rpm     map[int]RPMSource
	demand  map[int]DemandSource
	userMux *sync.Mutex
	user    map[int]interface{}

	runMux  *sync.Mutex
	started bool
	closed  bool
}

// Option configures a network at load.
type Option func(*options)

type options struct {
	interval time.Duration
	metrics  *metrics.Registry
}

// WithInterval sets the wall time between ticks of the run loop.
func WithInterval(d time.Duration) Option {
	return func(o *options) { o.interval = d }
}

// WithMetrics selects the registry the network reports to. The default is
// the process wide registry.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// LoadFile reads and loads a YAML network definition.
func LoadFile(path string, opts ...Option) (*Network, error) {
	def, err := netdef.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(def, opts...)
}

// Load builds a network from a parsed definition. The network is stopped;
// structural problems are reported by Validate, not here.
func Load(def *netdef.Definition, opts ...Option) (*Network, error) {
	if def == nil {
		return nil, fmt.Errorf("%w: nil definition", ErrLoad)
	}
	o := options{metrics: metrics.DefaultRegistry()}
	for _, opt := range opts {
		opt(&o)
	}

	g, err := def.Graph()
	if err != nil {
		return nil, err
	}
	pid, err := uuid.NewUUID()
	if err != nil {
		return nil, err
	}

	env := def.Env()
	n := &Network{
		name:     env.Name,
		env:      env,
		g:        g,
		relays:   make(map[int]*relay.Breaker),
		batts:    make(map[int]*bms.Model),
		pub:      msg.NewPublisher(pid),
		metrics:  o.metrics,
		valid:    g.Validate(),
		work:     make([]comp.State, g.Len()),
		snapMux:  &sync.RWMutex{},
		queueMux: &sync.Mutex{},
		srcMux:   &sync.Mutex{},
		rpm:      make(map[int]RPMSource),
		demand:   make(map[int]DemandSource),
		userMux:  &sync.Mutex{},
		user:     make(map[int]interface{}),
		runMux:   &sync.Mutex{},
	}

	n.comps = make([]*Comp, g.Len())
	for i := 0; i < g.Len(); i++ {
		info := g.Info(i)
		n.comps[i] = &Comp{n: n, idx: i}
		s := &n.work[i]
		switch info.Type {
		case comp.CB:
			b := relay.New(info.Name, info.CB)
			n.relays[i] = b
			s.CB = b.InitState()
		case comp.Batt:
			m := bms.New(info.Batt)
			n.batts[i] = m
			s.Batt = m.InitState()
		case comp.Tie:
			s.Tie.Joined = make([]bool, len(g.Conns(i)))
			copy(s.Tie.Joined, info.Tie.Joined)
		case comp.Load:
			s.Load.Demand = info.Load.Demand
		}
	}

	n.solver = powerflow.New(g, powerflow.Env{
		AmbientTemp:      env.AmbientTemp,
		ShortCircuitAmps: env.ShortCircuitAmps,
	}, n.batts)
	n.sched = scheduler.New(o.interval, n.tick, o.metrics)
	n.snap = n.snapshot(powerflow.Result{}, 0)

	log.Printf("[Network] %s: loaded %d components\n", n.name, g.Len())
	return n, nil
}

// Name is the network name from its definition.
func (n *Network) Name() string {
	return n.name
}

// PID is the identifier the network publishes under.
func (n *Network) PID() uuid.UUID {
	return n.pub.PID()
}

// AmbientTemp is the ambient temperature of the network in K.
func (n *Network) AmbientTemp() float64 {
	return n.env.AmbientTemp
}

// Validate reports every structural problem that keeps the network from
// starting, each wrapping ErrValidation.
func (n *Network) Validate() error {
	return n.valid
}

// CanStart is true when Validate reports no problem.
func (n *Network) CanStart() bool {
	return n.valid == nil
}

// Start launches the tick loop. It returns false if the network is already
// started, closed or invalid.
func (n *Network) Start() bool {
	n.runMux.Lock()
	defer n.runMux.Unlock()
	if n.started || n.closed {
		return false
	}
	if n.valid != nil {
		log.Printf("[Network] %s: cannot start: %v\n", n.name, n.valid)
		return false
	}
	n.pub.Publish(msg.Config, n.Topology())
	if !n.sched.Start() {
		return false
	}
	n.started = true
	log.Printf("[Network] %s: started\n", n.name)
	return true
}

// Stop halts the tick loop and waits for the tick in flight. It is a no-op
// on a stopped network. It must not be called from a step callback.
func (n *Network) Stop() {
	n.runMux.Lock()
	if !n.started {
		n.runMux.Unlock()
		return
	}
	n.started = false
	n.runMux.Unlock()

	// the tick in flight may still read the façade
	n.sched.Stop()
	log.Printf("[Network] %s: stopped\n", n.name)
}

// Started reports whether the tick loop is running.
func (n *Network) Started() bool {
	n.runMux.Lock()
	defer n.runMux.Unlock()
	return n.started
}

// Close stops the network and releases its subscribers and callbacks.
func (n *Network) Close() {
	n.Stop()
	n.runMux.Lock()
	defer n.runMux.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.pub.Close()
	n.srcMux.Lock()
	n.rpm = make(map[int]RPMSource)
	n.demand = make(map[int]DemandSource)
	n.srcMux.Unlock()
	n.userMux.Lock()
	n.user = make(map[int]interface{})
	n.userMux.Unlock()
}

func (n *Network) isClosed() bool {
	n.runMux.Lock()
	defer n.runMux.Unlock()
	return n.closed
}

// Step runs one tick for wallDt seconds of wall time, for hosts that drive
// the simulation from their own frame loop. It returns the simulated seconds
// covered, zero on an invalid or closed network.
func (n *Network) Step(wallDt float64) float64 {
	if n.valid != nil || n.isClosed() {
		return 0
	}
	return n.sched.Step(wallDt)
}

// SetTimeFactor sets the ratio of simulated to wall time. Zero freezes time.
func (n *Network) SetTimeFactor(f float64) error {
	return n.sched.SetTimeFactor(f)
}

// TimeFactor returns the ratio of simulated to wall time.
func (n *Network) TimeFactor() float64 {
	return n.sched.TimeFactor()
}

// RegisterCallback adds a step callback. Callbacks of a phase run in
// registration order; a failing callback is logged and skipped.
func (n *Network) RegisterCallback(phase Phase, cb StepCallback) (uuid.UUID, error) {
	if cb == nil {
		return uuid.UUID{}, errors.New("nil callback")
	}
	return n.sched.Register(phase, func(simDt float64) error {
		return cb.Step(n, simDt)
	})
}

// UnregisterCallback removes a step callback. It reports whether one was
// registered under pid.
func (n *Network) UnregisterCallback(pid uuid.UUID) bool {
	return n.sched.Unregister(pid)
}

// Subscribe returns a channel receiving every committed Snapshot (Status) or
// the network Topology on start (Config).
func (n *Network) Subscribe(pid uuid.UUID, topic msg.Topic) (<-chan msg.Msg, error) {
	if n.isClosed() {
		return nil, ErrClosed
	}
	return n.pub.Subscribe(pid, topic)
}

// Unsubscribe pid from all topics.
func (n *Network) Unsubscribe(pid uuid.UUID) {
	n.pub.Unsubscribe(pid)
}

// FindByName looks a component up by name.
func (n *Network) FindByName(name string) (*Comp, bool) {
	i, ok := n.g.Index(name)
	if !ok {
		return nil, false
	}
	return n.comps[i], true
}

// Comps returns every component in definition order. Autogenerated buses
// come last.
func (n *Network) Comps() []*Comp {
	out := make([]*Comp, len(n.comps))
	copy(out, n.comps)
	return out
}

// Walk calls fn for every component in definition order.
func (n *Network) Walk(fn func(c *Comp)) {
	for _, c := range n.comps {
		fn(c)
	}
}

// Snapshot returns the last committed snapshot.
func (n *Network) Snapshot() *Snapshot {
	n.snapMux.RLock()
	defer n.snapMux.RUnlock()
	return n.snap
}

// enqueue schedules a state change for the start of the next tick.
func (n *Network) enqueue(m mutation) {
	n.queueMux.Lock()
	n.queue = append(n.queue, m)
	n.queueMux.Unlock()
}

// tick is one simulation step: queued mutations, sampled inputs, topology,
// power flow, protection and battery models, then commit.
func (n *Network) tick(simDt float64) {
	n.drain()
	n.sample()

	is := bus.Resolve(n.g, n.work)
	res := n.solver.Solve(is, n.work, simDt)
	n.protect(simDt)

	n.ticks++
	n.simTime += simDt
	snap := n.snapshot(res, simDt)
	n.snapMux.Lock()
	n.snap = snap
	n.snapMux.Unlock()

	if n.metrics != nil {
		n.metrics.UpdatePower(res.Islands, res.SourcePwr, res.LoadPwr, res.ChargePwr, res.LossPwr)
	}
	n.pub.Publish(msg.Status, snap)
}

func (n *Network) drain() {
	n.queueMux.Lock()
	queue := n.queue
	n.queue = nil
	n.queueMux.Unlock()
	for _, m := range queue {
		m(n.work)
	}
}

// sample reads generator speed and load demand from their sources.
func (n *Network) sample() {
	n.srcMux.Lock()
	defer n.srcMux.Unlock()
	for i, src := range n.rpm {
		n.work[i].Gen.RPM = sampleSource(n.g.Info(i).Name, src.RPM)
	}
	for i, src := range n.demand {
		n.work[i].Load.Demand = sampleSource(n.g.Info(i).Name, src.Demand)
	}
}

// sampleSource isolates the tick from a failing source, which then reads 0.
func sampleSource(name string, fn func() float64) (v float64) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[Network] %s: source panicked: %v\n", name, r)
			v = 0
		}
	}()
	return fn()
}

func (n *Network) protect(simDt float64) {
	for i, b := range n.relays {
		s := &n.work[i]
		amps := s.InAmps
		if s.OutAmps > amps {
			amps = s.OutAmps
		}
		tripped := s.CB.Tripped
		s.CB = b.Step(s.CB, amps, simDt)
		if s.CB.Tripped && !tripped && n.metrics != nil {
			n.metrics.BreakerTrips.WithLabelValues(b.Name()).Inc()
		}
	}
	for i, m := range n.batts {
		s := &n.work[i]
		s.Batt = m.Step(s.Batt, bms.Input{
			DischargeAmps: s.OutAmps,
			ChargeAmps:    s.InAmps,
			Ambient:       n.env.AmbientTemp,
			Dt:            simDt,
		})
	}
}

func (n *Network) snapshot(res powerflow.Result, simDt float64) *Snapshot {
	return &Snapshot{
		Network: n.name,
		Tick:    n.ticks,
		SimTime: n.simTime,
		SimDt:   simDt,
		Result:  res,
		g:       n.g,
		states:  comp.CloneStates(n.work),
	}
}
