package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the metrics of one engine process.
type Registry struct {
	// Tick metrics
	TicksTotal       prometheus.Counter
	TickDuration     prometheus.Histogram
	SimSecondsTotal  prometheus.Counter
	TimeFactor       prometheus.Gauge
	CallbackFailures *prometheus.CounterVec

	// Network metrics
	Islands        prometheus.Gauge
	SourcePower    prometheus.Gauge
	LoadPower      prometheus.Gauge
	ChargePower    prometheus.Gauge
	LossPower      prometheus.Gauge
	BreakerTrips   *prometheus.CounterVec
	BreakerRejects *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a registry with all metrics initialized.
func NewRegistry() *Registry {
	r := &Registry{registry: prometheus.NewRegistry()}
	r.initTickMetrics()
	r.initNetworkMetrics()
	return r
}

func (r *Registry) initTickMetrics() {
	r.TicksTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "elec_ticks_total",
			Help: "Total number of simulation ticks",
		},
	)

	r.TickDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "elec_tick_duration_seconds",
			Help:    "Wall time spent computing one tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.02, 0.05},
		},
	)

	r.SimSecondsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "elec_sim_seconds_total",
			Help: "Simulated seconds elapsed",
		},
	)

	r.TimeFactor = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_time_factor",
			Help: "Current ratio of simulated to wall time",
		},
	)

	r.CallbackFailures = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "elec_callback_failures_total",
			Help: "Step callbacks that returned an error or panicked",
		},
		[]string{"phase"}, // pre, post
	)
}

func (r *Registry) initNetworkMetrics() {
	r.Islands = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_islands",
			Help: "Number of electrical islands in the last tick",
		},
	)

	r.SourcePower = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_source_power_watts",
			Help: "Power delivered by generators and batteries",
		},
	)

	r.LoadPower = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_load_power_watts",
			Help: "Power drawn by loads",
		},
	)

	r.ChargePower = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_charge_power_watts",
			Help: "Power accepted by charging batteries",
		},
	)

	r.LossPower = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "elec_loss_power_watts",
			Help: "Power dissipated in converters and diodes",
		},
	)

	r.BreakerTrips = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "elec_breaker_trips_total",
			Help: "Thermal trips per circuit breaker",
		},
		[]string{"breaker"},
	)

	r.BreakerRejects = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "elec_breaker_rejected_closes_total",
			Help: "Close commands rejected by a hot or blown breaker",
		},
		[]string{"breaker"},
	)
}

// RecordTick records one completed tick.
func (r *Registry) RecordTick(simDt float64, duration time.Duration) {
	r.TicksTotal.Inc()
	r.TickDuration.Observe(duration.Seconds())
	if simDt > 0 {
		r.SimSecondsTotal.Add(simDt)
	}
}

// RecordCallbackFailure counts a failed step callback.
func (r *Registry) RecordCallbackFailure(phase string) {
	r.CallbackFailures.WithLabelValues(phase).Inc()
}

// UpdatePower sets the power balance of the last tick.
func (r *Registry) UpdatePower(islands int, source, load, charge, loss float64) {
	r.Islands.Set(float64(islands))
	r.SourcePower.Set(source)
	r.LoadPower.Set(load)
	r.ChargePower.Set(charge)
	r.LossPower.Set(loss)
}

// GetPrometheusRegistry returns the underlying registry.
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
