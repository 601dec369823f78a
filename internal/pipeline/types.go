package pipeline

import (
	"time"

	"github.com/MeKo-Tech/caffebridge/internal/benchmark"
	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
	"github.com/MeKo-Tech/caffebridge/internal/validate"
)

// LayerStatus is the conversion outcome of one layer.
type LayerStatus string

const (
	StatusConverted LayerStatus = "converted"
	StatusSkipped   LayerStatus = "skipped"
	StatusFailed    LayerStatus = "failed"
)

// LayerResult is the per-layer entry of a Report.
type LayerResult struct {
	Index       int          `json:"index" yaml:"index"`
	Name        string       `json:"name" yaml:"name"`
	Type        string       `json:"type" yaml:"type"`
	Kind        string       `json:"kind,omitempty" yaml:"kind,omitempty"`
	Target      string       `json:"target,omitempty" yaml:"target,omitempty"`
	InputShape  tensor.Shape `json:"input_shape" yaml:"input_shape,flow"`
	OutputShape tensor.Shape `json:"output_shape" yaml:"output_shape,flow"`
	Connection  string       `json:"connection,omitempty" yaml:"connection,omitempty"`
	Status      LayerStatus  `json:"status" yaml:"status"`

	// Spec is set when the run keeps canonical specs.
	Spec *convert.Spec `json:"spec,omitempty" yaml:"spec,omitempty"`

	// Error and ErrorCategory are set for skipped and failed layers.
	Error         string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorCategory string `json:"error_category,omitempty" yaml:"error_category,omitempty"`
	Stage         string `json:"stage,omitempty" yaml:"stage,omitempty"`

	// Verdict is nil when validation was disabled or no oracle output
	// was recorded for the layer.
	Verdict         *validate.Verdict `json:"verdict,omitempty" yaml:"verdict,omitempty"`
	ValidationError string            `json:"validation_error,omitempty" yaml:"validation_error,omitempty"`

	Benchmark *benchmark.Result `json:"benchmark,omitempty" yaml:"benchmark,omitempty"`

	Stages map[string]time.Duration `json:"stages,omitempty" yaml:"stages,omitempty"`
}

// Summary counts layer outcomes.
type Summary struct {
	Layers     int `json:"layers" yaml:"layers"`
	Converted  int `json:"converted" yaml:"converted"`
	Skipped    int `json:"skipped" yaml:"skipped"`
	Failed     int `json:"failed" yaml:"failed"`
	Verified   int `json:"verified" yaml:"verified"`
	Mismatched int `json:"mismatched" yaml:"mismatched"`
	Exempt     int `json:"exempt" yaml:"exempt"`
	Unchecked  int `json:"unchecked" yaml:"unchecked"`
}

// Report is the outcome of one pipeline run over a network.
type Report struct {
	Network       string        `json:"network" yaml:"network"`
	Source        string        `json:"source,omitempty" yaml:"source,omitempty"`
	Threshold     float64       `json:"threshold,omitempty" yaml:"threshold,omitempty"`
	PolicyVersion string        `json:"policy_version,omitempty" yaml:"policy_version,omitempty"`
	Layers        []LayerResult `json:"layers" yaml:"layers"`
	Summary       Summary       `json:"summary" yaml:"summary"`
	Duration      time.Duration `json:"duration" yaml:"duration"`
	// Aborted is set when a structural error stopped the run early.
	Aborted bool `json:"aborted,omitempty" yaml:"aborted,omitempty"`
}

// Mismatches returns the layers whose verdict is Mismatched.
func (r *Report) Mismatches() []LayerResult {
	var out []LayerResult
	for _, l := range r.Layers {
		if l.Verdict != nil && l.Verdict.Status == validate.Mismatched {
			out = append(out, l)
		}
	}
	return out
}

// Summarize recomputes Summary from Layers.
func (r *Report) Summarize() {
	s := Summary{Layers: len(r.Layers)}
	for _, l := range r.Layers {
		switch l.Status {
		case StatusConverted:
			s.Converted++
		case StatusSkipped:
			s.Skipped++
		case StatusFailed:
			s.Failed++
		}
		if l.Status != StatusConverted {
			continue
		}
		if l.Verdict == nil {
			s.Unchecked++
			continue
		}
		switch l.Verdict.Status {
		case validate.Verified:
			s.Verified++
		case validate.Mismatched:
			s.Mismatched++
		case validate.Exempt:
			s.Exempt++
		}
	}
	r.Summary = s
}

func resultFromError(index int, name, typ string, err error) LayerResult {
	res := LayerResult{
		Index:         index,
		Name:          name,
		Type:          typ,
		Status:        StatusFailed,
		Error:         err.Error(),
		ErrorCategory: convert.Category(err),
	}
	if k, ok := convert.Lookup(typ); ok {
		res.Kind = k.String()
	}
	if le, ok := asLayerError(err); ok {
		res.Stage = string(le.Stage)
	}
	return res
}
