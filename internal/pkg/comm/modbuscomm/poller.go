package modbuscomm

import (
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/goburrow/modbus"
)

// Poller reads and writes the holding registers of a Modbus TCP target.
type Poller struct {
	handler  *modbus.TCPClientHandler
	pollRate time.Duration
}

// PollerConfig is the configuration format for Poller
type PollerConfig struct {
	IPAddr       string     `json:"IPAddr"`
	Port         string     `json:"Port"`
	SlaveID      byte       `json:"SlaveID"`
	Timeout      int        `json:"Timeout"`
	PollRate     int        `json:"PollRate"`
	EnableLogger bool       `json:"EnableLogger"`
	Registers    []Register `json:"Registers"`
}

// ReadConfig reads a poller configuration file.
func ReadConfig(path string) (PollerConfig, error) {
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return PollerConfig{}, err
	}
	cfg := PollerConfig{}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return PollerConfig{}, err
	}
	return cfg, nil
}

// NewPoller is a factory for the Poller struct
func NewPoller(cfg PollerConfig) *Poller {
	handler := modbus.NewTCPClientHandler(cfg.IPAddr + ":" + cfg.Port)
	handler.Timeout = time.Millisecond * time.Duration(cfg.Timeout)
	handler.SlaveId = cfg.SlaveID

	if cfg.EnableLogger {
		handler.Logger = log.New(os.Stdout, "modbus: ", log.LstdFlags)
	}

	rate := time.Duration(cfg.PollRate) * time.Millisecond
	if rate <= 0 {
		rate = time.Second
	}
	return &Poller{
		handler:  handler,
		pollRate: rate,
	}
}

// PollRate is the interval between reads.
func (m *Poller) PollRate() time.Duration {
	return m.pollRate
}

// Read reads every register. A failed register reads as 0 and the last
// error is returned alongside the values that did read.
func (m *Poller) Read(registers []Register) (map[string]float64, error) {
	err := m.handler.Connect()
	if err != nil {
		return nil, err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	readValues := make(map[string]float64)
	for _, register := range registers {
		resp, readErr := client.ReadHoldingRegisters(register.Address, sizeOf(register.DataType))
		if readErr != nil {
			err = readErr
			continue
		}
		readValues[register.Name] = decode(resp, register)
	}
	return readValues, err
}

// Write writes the named values to their registers.
func (m *Poller) Write(registers []Register, writeValues map[string]float64) error {
	err := m.handler.Connect()
	if err != nil {
		return err
	}
	defer m.handler.Close()

	client := modbus.NewClient(m.handler)
	for name, val := range writeValues {
		i, writeErr := findIndexByName(registers, name)
		if writeErr != nil {
			err = writeErr
			continue
		}
		reg := registers[i]
		if _, writeErr = client.WriteMultipleRegisters(reg.Address, sizeOf(reg.DataType), encode(val, reg)); writeErr != nil {
			err = writeErr
		}
	}
	return err
}
