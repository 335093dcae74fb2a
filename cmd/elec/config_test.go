package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"gotest.tools/v3/assert"
)

func TestReadConfig(t *testing.T) {
	cfg, err := readConfig("../../config/elec.json")
	assert.NilError(t, err)
	assert.Equal(t, cfg.Network, "./config/network/twinbus.yaml")
	assert.Equal(t, cfg.Interval, 20)
	assert.Equal(t, cfg.Modbus.Bindings[0].Comp, "GEN1")
	assert.Equal(t, cfg.RPM["GEN1"], 6000.0)
}

func TestReadConfigNoNetwork(t *testing.T) {
	path := filepath.Join(t.TempDir(), "elec.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"Interval": 10}`), 0o644))
	_, err := readConfig(path)
	assert.ErrorContains(t, err, "no network")
}

func TestSetRPM(t *testing.T) {
	n, err := network.LoadFile("../../config/network/twinbus.yaml", network.WithMetrics(metrics.NewRegistry()))
	assert.NilError(t, err)
	defer n.Close()

	assert.NilError(t, setRPM(n, map[string]float64{"GEN1": 6000}))
	n.Step(0.02)
	c, _ := n.FindByName("GEN1")
	gen, _ := c.AsGenerator()
	assert.Equal(t, gen.RPM(), 6000.0)

	err = setRPM(n, map[string]float64{"AC_BUS1": 1})
	assert.Assert(t, errors.Is(err, network.ErrInvalidAccess))
}
