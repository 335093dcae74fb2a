package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
)

func TestNewRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Assert(t, r.TicksTotal != nil)
	assert.Assert(t, r.BreakerTrips != nil)
	assert.Assert(t, r.registry != nil)
}

func TestDefaultRegistry(t *testing.T) {
	assert.Assert(t, DefaultRegistry() == DefaultRegistry())
}

func TestMetricNames(t *testing.T) {
	r := NewRegistry()
	r.RecordTick(0.02, time.Millisecond)
	r.RecordCallbackFailure("pre")
	r.BreakerTrips.WithLabelValues("CB1").Inc()
	r.UpdatePower(2, 100, 90, 0, 10)

	families, err := r.GetPrometheusRegistry().Gather()
	assert.NilError(t, err)
	assert.Assert(t, len(families) > 0)
	for _, f := range families {
		assert.Assert(t, strings.HasPrefix(f.GetName(), "elec_"), f.GetName())
	}
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.RecordTick(0.5, time.Millisecond)
	r.RecordTick(0.5, time.Millisecond)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	assert.Equal(t, rec.Code, 200)
	body := rec.Body.String()
	assert.Assert(t, strings.Contains(body, "elec_ticks_total 2"))
	assert.Assert(t, strings.Contains(body, "elec_sim_seconds_total 1"))
}
