// Package target is the in-process inference runtime that converted layers
// execute on. Each layer owns its weights and activation buffers and is only
// mutated by SetInData and its own Forward call.
package target

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// ErrNoInput is returned by Forward when SetInData was never called.
var ErrNoInput = errors.New("layer has no input data")

// Padding selects how a sliding-window layer treats borders.
type Padding int

const (
	// Valid applies no padding.
	Valid Padding = iota
	// Same pads each spatial axis by (kernel-1)/2 on both sides.
	Same
)

func (p Padding) String() string {
	switch p {
	case Valid:
		return "valid"
	case Same:
		return "same"
	default:
		return "unknown"
	}
}

// Pad returns the per-side padding for a window of the given size.
func (p Padding) Pad(window int) int {
	if p == Same {
		return (window - 1) / 2
	}
	return 0
}

// Layer is a runtime layer.
type Layer interface {
	// Type returns the runtime's name for the layer, e.g. "conv".
	Type() string
	InShape() tensor.Shape
	OutShape() tensor.Shape
	// Weights returns the parameter buffers by index: 0 is the weight
	// buffer, 1 the bias. The slices alias layer storage and may be written.
	Weights() [][]float32
	// SetInData installs input activations in NCHW order.
	SetInData(data []float32) error
	Forward() error
	// Output returns the activations as one value sequence per
	// (sample, channel) pair, in NCHW order.
	Output() [][]float32
}

// base carries the activation buffers shared by every layer.
type base struct {
	in, out tensor.Shape
	input   []float32
	output  []float32
}

func newBase(in, out tensor.Shape) (base, error) {
	if err := in.Validate(); err != nil {
		return base{}, fmt.Errorf("input shape %v: %w", in, err)
	}
	if err := out.Validate(); err != nil {
		return base{}, fmt.Errorf("output shape %v: %w", out, err)
	}
	return base{in: in, out: out, output: make([]float32, out.Count())}, nil
}

func (b *base) InShape() tensor.Shape  { return b.in }
func (b *base) OutShape() tensor.Shape { return b.out }

func (b *base) SetInData(data []float32) error {
	if len(data) != b.in.Count() {
		return fmt.Errorf("input length %d != %d for shape %v", len(data), b.in.Count(), b.in)
	}
	b.input = data
	return nil
}

func (b *base) Output() [][]float32 {
	plane := b.out.H() * b.out.W()
	n := b.out.N() * b.out.C()
	res := make([][]float32, n)
	for i := range res {
		res[i] = b.output[i*plane : (i+1)*plane]
	}
	return res
}

func (b *base) ready() error {
	if b.input == nil {
		return ErrNoInput
	}
	return nil
}

// Flatten concatenates an Output() result back into one NCHW slice.
func Flatten(channels [][]float32) []float32 {
	total := 0
	for _, c := range channels {
		total += len(c)
	}
	out := make([]float32, 0, total)
	for _, c := range channels {
		out = append(out, c...)
	}
	return out
}

// outLength is the sliding-window output size for one spatial axis.
func outLength(in, window, stride, pad int) int {
	return (in+2*pad-window)/stride + 1
}

func checkWindow(in, out tensor.Shape, kw, kh, sw, sh int) error {
	if kw < 1 || kh < 1 {
		return fmt.Errorf("kernel %dx%d must be >= 1", kw, kh)
	}
	if sw < 1 || sh < 1 {
		return fmt.Errorf("stride %dx%d must be >= 1", sw, sh)
	}
	if out.H() < 1 || out.W() < 1 {
		return fmt.Errorf("window %dx%d does not fit input %v", kw, kh, in)
	}
	return nil
}
