package sqldb

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/metrics"
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
	h, err := New("./testdata/mysql_config.json", newNetwork(t))
	assert.NilError(t, err)

	assert.Equal(t, h.config.Port, 3306)
	assert.Equal(t, h.config.Server, "localhost")
	assert.Equal(t, h.DSN(), "elec:elec@tcp(localhost:3306)/elec_test")
	assert.Assert(t, strings.Contains(h.upsertStatement(), "ON DUPLICATE KEY UPDATE"))
}

func TestPostgresConfig(t *testing.T) {
	h, err := New("./testdata/postgres_config.json", newNetwork(t))
	assert.NilError(t, err)

	assert.Equal(t, h.DSN(), "host=localhost port=5432 user=postgres password=postgres dbname=elec_test sslmode=disable")
	assert.Assert(t, strings.Contains(h.upsertStatement(), "ON CONFLICT (network, name)"))
}

func TestUnsupportedDriver(t *testing.T) {
	_, err := New("./testdata/bad_driver_config.json", newNetwork(t))
	assert.ErrorContains(t, err, "unsupported sql driver")
}

func TestOpenIsLazy(t *testing.T) {
	for _, path := range []string{"./testdata/mysql_config.json", "./testdata/postgres_config.json"} {
		h, err := New(path, newNetwork(t))
		assert.NilError(t, err)
		db, err := h.DB()
		assert.NilError(t, err)
		db.Close()
	}
}

func TestRows(t *testing.T) {
	n := newNetwork(t)
	n.Step(0.02)

	rs, err := rows(n.Snapshot())
	assert.NilError(t, err)
	assert.Equal(t, len(rs), len(n.Comps()))
	assert.Equal(t, rs[1].network, "simple")
	assert.Equal(t, rs[1].name, "BATT_CB")
	assert.Equal(t, rs[1].typ, "CB")

	cs := network.CompStatus{}
	assert.NilError(t, json.Unmarshal([]byte(rs[1].status), &cs))
	assert.Assert(t, cs.Closed != nil && *cs.Closed)
}
