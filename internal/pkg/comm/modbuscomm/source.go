package modbuscomm

import (
	"context"
	"log"
	"math"
	"sync"
	"time"
)

// Sources polls a set of registers in the background and serves the latest
// value of each as a generator RPM or load demand input.
type Sources struct {
	mux       *sync.Mutex
	comm      ModbusComm
	registers []Register
	rate      time.Duration
	values    map[string]float64
}

// NewSources returns sources reading registers through comm every rate.
func NewSources(comm ModbusComm, registers []Register, rate time.Duration) *Sources {
	if rate <= 0 {
		rate = time.Second
	}
	return &Sources{
		mux:       &sync.Mutex{},
		comm:      comm,
		registers: FilterRegisters(registers, ro),
		rate:      rate,
		values:    make(map[string]float64),
	}
}

// Poll reads the registers once. Values that fail to read keep their last
// reading.
func (s *Sources) Poll() error {
	values, err := s.comm.Read(s.registers)
	s.mux.Lock()
	defer s.mux.Unlock()
	for _, reg := range s.registers {
		if raw, ok := values[reg.Name]; ok {
			s.values[reg.Name] = reg.value(raw)
		}
	}
	return err
}

// Run polls until ctx is done.
func (s *Sources) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.rate)
	defer ticker.Stop()
	for {
		if err := s.Poll(); err != nil {
			log.Println("[Modbus] poll:", err)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// Value is the latest reading of a register, 0 before the first read.
func (s *Sources) Value(name string) float64 {
	s.mux.Lock()
	defer s.mux.Unlock()
	v := s.values[name]
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// Register returns the named register as an input source.
func (s *Sources) Register(name string) (RegisterSource, error) {
	if _, err := findIndexByName(s.registers, name); err != nil {
		return RegisterSource{}, err
	}
	return RegisterSource{name: name, src: s}, nil
}

// RegisterSource is one polled register. It satisfies both the generator RPM
// and the load demand source of a network.
type RegisterSource struct {
	name string
	src  *Sources
}

// Name is the register name.
func (r RegisterSource) Name() string {
	return r.name
}

// RPM is the latest reading as a rotor speed.
func (r RegisterSource) RPM() float64 {
	return r.src.Value(r.name)
}

// Demand is the latest reading as a load demand.
func (r RegisterSource) Demand() float64 {
	return r.src.Value(r.name)
}
