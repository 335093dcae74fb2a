package mongodb

import (
	"testing"

	"github.com/ohowland/elec_core/internal/pkg/metrics"
	"github.com/ohowland/elec_core/internal/pkg/network"
	"go.mongodb.org/mongo-driver/bson"
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
	h, err := New("./testdata/mongo_config.json", newNetwork(t))
	assert.NilError(t, err)
	assert.Equal(t, h.config.Database, "elec_test")
	assert.Equal(t, h.URI(), "mongodb://localhost:27017")
}

func TestStatusToBSON(t *testing.T) {
	n := newNetwork(t)
	n.Step(0.02)
	cs, ok := n.Snapshot().Find("LIGHTS")
	assert.Assert(t, ok)

	doc := statusToBSON("simple", cs)
	assert.Equal(t, len(doc), 1)
	assert.Equal(t, doc[0].Key, "$set")
	set := doc[0].Value.(bson.M)
	assert.Equal(t, set["name"], "LIGHTS")
	assert.Equal(t, set["type"], "LOAD")
	assert.Equal(t, set["pid"], cs.PID.String())
	assert.Equal(t, set["failed"], false)

	assert.DeepEqual(t, filter("simple", "LIGHTS"), bson.M{"network": "simple", "name": "LIGHTS"})
}

func TestConfigToBSON(t *testing.T) {
	n := newNetwork(t)
	topo := n.Topology()
	doc := configToBSON(topo.Network, topo.Comps[2])
	set := doc[0].Value.(bson.M)
	assert.Equal(t, set["name"], "MAIN_BUS")
	assert.DeepEqual(t, set["conns"], []string{"BATT_CB", "LIGHTS"})
}
