// Package validate compares target layer outputs with the source runtime's
// recorded outputs and classifies each layer as verified, mismatched or
// exempt.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/target"
)

// DefaultThreshold is the absolute per-element tolerance.
const DefaultThreshold = 1e-4

var (
	// ErrValidationMismatch marks an output divergence beyond the threshold.
	// It is reported, never fatal to a run.
	ErrValidationMismatch = errors.New("validation mismatch")
	// ErrLengthMismatch is returned when the two outputs differ in size.
	ErrLengthMismatch = errors.New("output length mismatch")
)

// Status is the outcome of validating one layer.
type Status int

const (
	Verified Status = iota
	Mismatched
	Exempt
)

func (s Status) String() string {
	switch s {
	case Verified:
		return "verified"
	case Mismatched:
		return "mismatched"
	case Exempt:
		return "exempt"
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	for _, c := range []Status{Verified, Mismatched, Exempt} {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("unknown validation status %q", b)
}

// Diff summarizes an elementwise comparison.
type Diff struct {
	// MaxDiff is the largest absolute difference; +Inf if any element is NaN.
	MaxDiff float64 `json:"max_diff" yaml:"max_diff"`
	// MaxIndex is where MaxDiff occurs.
	MaxIndex int `json:"max_index" yaml:"max_index"`
	// FirstIndex is the first element over the threshold, or -1.
	FirstIndex int `json:"first_index" yaml:"first_index"`
	// Over counts elements over the threshold.
	Over  int `json:"over" yaml:"over"`
	Total int `json:"total" yaml:"total"`
}

// Exceeds reports whether any element was over the threshold.
func (d Diff) Exceeds() bool { return d.FirstIndex >= 0 }

// MarshalJSON writes an infinite MaxDiff as the string "+Inf", which JSON
// numbers cannot carry.
func (d Diff) MarshalJSON() ([]byte, error) {
	type plain Diff
	if !math.IsInf(d.MaxDiff, 0) {
		return json.Marshal(plain(d))
	}
	return json.Marshal(struct {
		plain
		MaxDiff string `json:"max_diff"`
	}{plain(d), "+Inf"})
}

// UnmarshalJSON accepts the "+Inf" form written by MarshalJSON.
func (d *Diff) UnmarshalJSON(b []byte) error {
	type plain Diff
	var aux struct {
		plain
		MaxDiff json.RawMessage `json:"max_diff"`
	}
	if err := json.Unmarshal(b, &aux); err != nil {
		return err
	}
	*d = Diff(aux.plain)
	switch string(aux.MaxDiff) {
	case "", "null":
	case `"+Inf"`:
		d.MaxDiff = math.Inf(1)
	default:
		if err := json.Unmarshal(aux.MaxDiff, &d.MaxDiff); err != nil {
			return fmt.Errorf("max_diff: %w", err)
		}
	}
	return nil
}

// Compare checks got against want elementwise with an absolute threshold.
func Compare(got, want []float32, threshold float64) (Diff, error) {
	if len(got) != len(want) {
		return Diff{}, fmt.Errorf("%w: got %d values, want %d", ErrLengthMismatch, len(got), len(want))
	}
	d := Diff{FirstIndex: -1, Total: len(got)}
	for i := range got {
		diff := math.Abs(float64(got[i]) - float64(want[i]))
		if math.IsNaN(diff) {
			diff = math.Inf(1)
		}
		if diff > d.MaxDiff {
			d.MaxDiff = diff
			d.MaxIndex = i
		}
		if diff > threshold {
			if d.FirstIndex < 0 {
				d.FirstIndex = i
			}
			d.Over++
		}
	}
	return d, nil
}

// Verdict is the validation result for one layer.
type Verdict struct {
	Status        Status       `json:"status" yaml:"status"`
	Kind          convert.Kind `json:"kind" yaml:"kind"`
	Diff          Diff         `json:"diff" yaml:"diff"`
	Threshold     float64      `json:"threshold" yaml:"threshold"`
	PolicyVersion string       `json:"policy_version" yaml:"policy_version"`
}

// Err returns an ErrValidationMismatch error for mismatched verdicts.
func (v Verdict) Err() error {
	if v.Status != Mismatched {
		return nil
	}
	return fmt.Errorf("%w: max diff %.3g at %d, first offending index %d (threshold %g)",
		ErrValidationMismatch, v.Diff.MaxDiff, v.Diff.MaxIndex, v.Diff.FirstIndex, v.Threshold)
}

func (v Verdict) String() string {
	switch v.Status {
	case Mismatched:
		return fmt.Sprintf("mismatched(max_diff=%.3g, first_offending_index=%d)", v.Diff.MaxDiff, v.Diff.FirstIndex)
	case Exempt:
		return fmt.Sprintf("exempt(max_diff=%.3g)", v.Diff.MaxDiff)
	default:
		return fmt.Sprintf("verified(max_diff=%.3g)", v.Diff.MaxDiff)
	}
}

// Validator runs target layers and compares them with oracle outputs.
type Validator struct {
	Threshold float64
	Policy    Policy
	Logger    *slog.Logger
}

// New returns a validator. A non-positive threshold selects DefaultThreshold.
func New(threshold float64, policy Policy) *Validator {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Validator{Threshold: threshold, Policy: policy}
}

func (v *Validator) logger() *slog.Logger {
	if v.Logger != nil {
		return v.Logger
	}
	return slog.Default()
}

// Classify turns a comparison into a verdict under the validator's policy.
// Exempt kinds are still compared so the divergence can be reported.
func (v *Validator) Classify(kind convert.Kind, d Diff) Verdict {
	verdict := Verdict{Kind: kind, Diff: d, Threshold: v.Threshold, PolicyVersion: v.Policy.Version}
	switch {
	case v.Policy.IsExempt(kind):
		verdict.Status = Exempt
		if d.Exceeds() {
			v.logger().Debug("exempt layer diverges", "kind", kind.String(), "max_diff", d.MaxDiff, "policy", v.Policy.Version)
		}
	case d.Exceeds():
		verdict.Status = Mismatched
	default:
		verdict.Status = Verified
	}
	return verdict
}

// Validate runs l forward and compares its output with want. l must already
// hold the oracle input. The oracle is only read.
func (v *Validator) Validate(kind convert.Kind, l target.Layer, want []float32) (Verdict, error) {
	if err := l.Forward(); err != nil {
		return Verdict{}, fmt.Errorf("forward %s: %w", l.Type(), err)
	}
	return v.Check(kind, l, want)
}

// Check compares the current output of l with want without running it.
func (v *Validator) Check(kind convert.Kind, l target.Layer, want []float32) (Verdict, error) {
	d, err := Compare(target.Flatten(l.Output()), want, v.Threshold)
	if err != nil {
		return Verdict{}, err
	}
	return v.Classify(kind, d), nil
}
