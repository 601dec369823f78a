// Package metrics records conversion and validation metrics in a
// per-session Prometheus registry.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/validate"
)

// Recorder holds the collectors of one run. A nil *Recorder ignores all
// observations.
type Recorder struct {
	reg *prometheus.Registry

	layersConverted *prometheus.CounterVec
	stageDuration   *prometheus.HistogramVec
	verdicts        *prometheus.CounterVec
	maxDiff         *prometheus.GaugeVec
	forwardDuration *prometheus.HistogramVec
}

// New creates a recorder with its own registry.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Recorder{
		reg: reg,
		layersConverted: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caffebridge_layers_converted_total",
				Help: "Layers processed by the converter",
			},
			[]string{"kind", "status"}, // status: ok or an error category
		),
		stageDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caffebridge_conversion_stage_duration_seconds",
				Help:    "Duration of each conversion stage",
				Buckets: []float64{.00001, .0001, .001, .01, .1, 1},
			},
			[]string{"stage"},
		),
		verdicts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "caffebridge_validation_verdicts_total",
				Help: "Validation verdicts by layer kind",
			},
			[]string{"kind", "status"},
		),
		maxDiff: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "caffebridge_validation_max_abs_diff",
				Help: "Largest absolute output difference per layer",
			},
			[]string{"layer", "kind"},
		),
		forwardDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "caffebridge_forward_duration_seconds",
				Help:    "Target layer forward pass duration",
				Buckets: prometheus.ExponentialBuckets(.00001, 4, 10),
			},
			[]string{"kind"},
		),
	}
}

// Registry returns the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveConversion counts one conversion attempt.
func (r *Recorder) ObserveConversion(kind string, err error) {
	if r == nil {
		return
	}
	r.layersConverted.WithLabelValues(kind, convert.Category(err)).Inc()
}

// ObserveStages records per-stage durations of one conversion.
func (r *Recorder) ObserveStages(stages map[string]time.Duration) {
	if r == nil {
		return
	}
	for stage, d := range stages {
		r.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
	}
}

// ObserveVerdict records a validation verdict for the named layer.
func (r *Recorder) ObserveVerdict(layer string, v validate.Verdict) {
	if r == nil {
		return
	}
	kind := v.Kind.String()
	r.verdicts.WithLabelValues(kind, v.Status.String()).Inc()
	r.maxDiff.WithLabelValues(layer, kind).Set(v.Diff.MaxDiff)
}

// ObserveForward records one timed forward pass.
func (r *Recorder) ObserveForward(kind string, d time.Duration) {
	if r == nil {
		return
	}
	r.forwardDuration.WithLabelValues(kind).Observe(d.Seconds())
}

// WriteTextfile writes the registry in the Prometheus text format, for
// collection by a node exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.reg); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
