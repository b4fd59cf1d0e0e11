package observability

import (
	"github.com/go-logr/logr"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/hwpulse/internal/ports"
)

type PromObs struct {
	log      logr.Logger
	counters map[string]prometheus.Counter
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
	phases   *prometheus.CounterVec
}

// NewPromObs registers the sampler metrics on reg and logs through log.
// A nil reg falls back to prometheus.DefaultRegisterer.
func NewPromObs(log logr.Logger, reg prometheus.Registerer) *PromObs {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	ticks := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hwpulse_ticks_total",
		Help: "Total sampling ticks executed.",
	})
	forwarded := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hwpulse_points_forwarded_total",
		Help: "Points accepted by the time-series sink.",
	})
	dropped := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hwpulse_points_dropped_total",
		Help: "Accepted points evicted from the sink buffer before being written.",
	})
	writeFailures := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "hwpulse_sink_write_failures_total",
		Help: "Asynchronous sink write failures.",
	})
	tracked := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hwpulse_tracked_processes",
		Help: "Processes known after the last tick.",
	})
	windowKeys := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "hwpulse_window_keys",
		Help: "Metric keys held in the rolling window buffer.",
	})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "hwpulse_tick_duration_seconds",
		Help:    "Wall time spent in one tick, including source queries.",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})
	phases := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "hwpulse_phase_failures_total",
		Help: "Tick phases that returned an error, by phase.",
	}, []string{"phase"})

	reg.MustRegister(ticks, forwarded, dropped, writeFailures, tracked, windowKeys, latency, phases)

	return &PromObs{
		log: log,
		counters: map[string]prometheus.Counter{
			"hwpulse_ticks_total":               ticks,
			"hwpulse_points_forwarded_total":    forwarded,
			"hwpulse_points_dropped_total":      dropped,
			"hwpulse_sink_write_failures_total": writeFailures,
		},
		gauges: map[string]prometheus.Gauge{
			"hwpulse_tracked_processes": tracked,
			"hwpulse_window_keys":       windowKeys,
		},
		histos: map[string]prometheus.Observer{
			"hwpulse_tick_duration_seconds": latency,
		},
		phases: phases,
	}
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.log.Info(msg, keysAndValues(fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.log.Error(err, msg, keysAndValues(fields)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.log.Error(err, msg, append(keysAndValues(fields), "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.counters[name]; ok {
		c.Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordPhaseFailure(phase string, err error) {
	p.phases.WithLabelValues(phase).Inc()
	p.log.Error(err, "tick phase failed", "phase", phase)
}

func keysAndValues(fields []ports.Field) []any {
	if len(fields) == 0 {
		return nil
	}
	kv := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		kv = append(kv, f.Key, f.Value)
	}
	return kv
}

var _ ports.Observability = (*PromObs)(nil)
