package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

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

func TestNewHandler(t *testing.T) {
	h, err := New("./testdata/webhook_config.json", newNetwork(t))
	assert.NilError(t, err)
	assert.Equal(t, h.config.URL, "http://192.168.0.5")
	assert.Equal(t, h.config.Every, 5)
	assert.Equal(t, h.target("simple", "BATT CB"), "http://192.168.0.5/networks/simple/comps/BATT%20CB/status")
}

func TestBadURL(t *testing.T) {
	path := filepath.Join(t.TempDir(), "webhook.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URL": "not a url"}`), 0o644))
	_, err := New(path, newNetwork(t))
	assert.Assert(t, err != nil)
}

func TestProcess(t *testing.T) {
	var mux sync.Mutex
	posted := make(map[string]network.CompStatus)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		cs := network.CompStatus{}
		if err := json.Unmarshal(body, &cs); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mux.Lock()
		posted[r.URL.Path] = cs
		mux.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	path := filepath.Join(t.TempDir(), "webhook.json")
	assert.NilError(t, os.WriteFile(path, []byte(`{"URL": "`+srv.URL+`"}`), 0o644))

	n := newNetwork(t)
	h, err := New(path, n)
	assert.NilError(t, err)
	done := make(chan error)
	go func() { done <- h.Process() }()

	n.Step(0.02)
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		mux.Lock()
		got := len(posted)
		mux.Unlock()
		if got == len(n.Comps()) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	h.Stop()
	assert.NilError(t, <-done)

	mux.Lock()
	defer mux.Unlock()
	cs, ok := posted["/networks/simple/comps/LIGHTS/status"]
	assert.Assert(t, ok)
	assert.Equal(t, cs.Name, "LIGHTS")
}
