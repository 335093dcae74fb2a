package natshandler

import (
	"encoding/json"
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/msg"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"gotest.tools/v3/assert"
)

func newNetwork(t *testing.T) *network.Network {
	t.Helper()
	n, err := network.LoadFile("../../netdef/testdata/simple.yaml", network.WithMetrics(metrics.NewRegistry()))
	assert.NilError(t, err)
	t.Cleanup(n.Close)
	return n
}

func TestGetConfig(t *testing.T) {
	n := newNetwork(t)
	h, err := New("./testdata/nats_config.json", n)
	assert.NilError(t, err)
	assert.Equal(t, h.config.Server, "nats://localhost:4222")
	assert.Equal(t, h.config.Prefix, "test")
}

func TestEncodeStatus(t *testing.T) {
	n := newNetwork(t)
	h, err := New("./testdata/nats_config.json", n)
	assert.NilError(t, err)

	n.Step(0.02)
	records, err := h.encode(msg.New(n.PID(), msg.Status, n.Snapshot()))
	assert.NilError(t, err)
	assert.Equal(t, len(records), len(n.Comps()))
	assert.Equal(t, records[3].subject, "test.simple.LIGHTS")

	cs := network.CompStatus{}
	assert.NilError(t, json.Unmarshal(records[3].data, &cs))
	assert.Equal(t, cs.Name, "LIGHTS")
	assert.Equal(t, cs.Type, "LOAD")
	assert.Assert(t, cs.InAmps > 9.99 && cs.InAmps < 10.01)
}

func TestEncodeConfig(t *testing.T) {
	n := newNetwork(t)
	h, err := New("./testdata/nats_config.json", n)
	assert.NilError(t, err)

	records, err := h.encode(msg.New(n.PID(), msg.Config, n.Topology()))
	assert.NilError(t, err)
	assert.Equal(t, len(records), 1)
	assert.Equal(t, records[0].subject, "test.simple.topology")

	// unknown payloads are skipped
	records, err = h.encode(msg.New(n.PID(), msg.Status, 42))
	assert.NilError(t, err)
	assert.Equal(t, len(records), 0)
}

func TestMissingConfig(t *testing.T) {
	_, err := New("./testdata/missing.json", newNetwork(t))
	assert.Assert(t, err != nil)
}
