// Package telemetry holds the Prometheus instrumentation for the
// classification core.
package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Metrics is the registry of core instruments.
type Metrics struct {
	registry *prometheus.Registry

	CycleDuration  prometheus.Histogram
	CyclesTotal    *prometheus.CounterVec
	RegimeSwitches *prometheus.CounterVec
	ActiveRegime   prometheus.Gauge
	Confidence     prometheus.Gauge
	DivergenceGauge prometheus.Gauge
	DegradedCycles prometheus.Counter
	BlockedTransitions *prometheus.CounterVec
	SkippedCycles  prometheus.Counter
}

// NewMetrics builds and registers all instruments on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "regimed_cycle_duration_seconds",
			Help:    "Duration of one classification cycle",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}),
		CyclesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regimed_cycles_total",
			Help: "Classification cycles by result",
		}, []string{"result"}),
		RegimeSwitches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regimed_regime_switches_total",
			Help: "Accepted regime transitions by destination label",
		}, []string{"to"}),
		ActiveRegime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regimed_active_regime",
			Help: "Current regime label ordinal (0 = strong_uptrend .. 6 = strong_downtrend)",
		}),
		Confidence: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regimed_confidence",
			Help: "Published regime confidence",
		}),
		DivergenceGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "regimed_divergence_level",
			Help: "Breadth divergence level (0 none, 1 moderate, 2 extreme)",
		}),
		DegradedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regimed_degraded_cycles_total",
			Help: "Cycles that fell back to cached or partial inputs",
		}),
		BlockedTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "regimed_blocked_transitions_total",
			Help: "Transitions refused by the smoother, by gate",
		}, []string{"reason"}),
		SkippedCycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "regimed_skipped_cycles_total",
			Help: "Cycles refused because a previous cycle was still in flight",
		}),
	}

	m.registry.MustRegister(
		m.CycleDuration, m.CyclesTotal, m.RegimeSwitches, m.ActiveRegime,
		m.Confidence, m.DivergenceGauge, m.DegradedCycles,
		m.BlockedTransitions, m.SkippedCycles,
	)
	return m
}

// Registry exposes the underlying registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Summary gathers current counter and gauge values into a flat map for
// the status report.
func (m *Metrics) Summary() (map[string]float64, error) {
	families, err := m.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64)
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, lp := range metric.GetLabel() {
				key += "{" + lp.GetName() + "=" + lp.GetValue() + "}"
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = metric.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = metric.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(metric.GetHistogram().GetSampleCount())
			}
		}
	}
	return out, nil
}
