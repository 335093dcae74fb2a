package main

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/ohowland/elec_core/internal/pkg/comm/modbuscomm"
)

// runnerConfig wires a network file to the services that run beside it.
// Empty paths disable a service.
type runnerConfig struct {
	Network    string  `json:"Network"`
	Interval   int     `json:"Interval"` // ms
	TimeFactor float64 `json:"TimeFactor"`
	Webservice string  `json:"Webservice"`
	MongoDB    string  `json:"MongoDB"`
	NATS       string  `json:"NATS"`
	SQL        string  `json:"SQL"`
	Webhook    string  `json:"Webhook"`
	Modbus     struct {
		Config   string               `json:"Config"`
		Bindings []modbuscomm.Binding `json:"Bindings"`
	} `json:"Modbus"`
	// RPM holds fixed rotor speeds for generators with no polled register.
	RPM map[string]float64 `json:"RPM"`
}

func readConfig(path string) (runnerConfig, error) {
	cfg := runnerConfig{Interval: 20, TimeFactor: 1}
	jsonConfig, err := os.ReadFile(path)
	if err != nil {
		return runnerConfig{}, err
	}
	if err := json.Unmarshal(jsonConfig, &cfg); err != nil {
		return runnerConfig{}, err
	}
	if cfg.Network == "" {
		return runnerConfig{}, errors.New("runner config names no network")
	}
	return cfg, nil
}
