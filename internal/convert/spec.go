// Package convert turns source layer records into target runtime layers:
// it normalizes parameters into a canonical Spec, infers and checks output
// shapes, relays learned weights into the target layout and builds the layer.
package convert

import (
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/target"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// Window is the sliding-window geometry of convolution and pooling layers.
type Window struct {
	KernelW int `json:"kernel_w" yaml:"kernel_w"`
	KernelH int `json:"kernel_h" yaml:"kernel_h"`
	StrideW int `json:"stride_w" yaml:"stride_w"`
	StrideH int `json:"stride_h" yaml:"stride_h"`
	PadW    int `json:"pad_w" yaml:"pad_w"`
	PadH    int `json:"pad_h" yaml:"pad_h"`
}

// Padding classifies the window's padding. Only symmetric zero padding and
// half-kernel padding are representable.
func (w Window) Padding() (target.Padding, error) {
	if w.PadW != w.PadH {
		return 0, malformed("pad_w %d != pad_h %d", w.PadW, w.PadH)
	}
	if w.PadW == 0 {
		return target.Valid, nil
	}
	if w.PadW == (w.KernelW-1)/2 && w.PadH == (w.KernelH-1)/2 {
		return target.Same, nil
	}
	return 0, malformed("pad %d is neither 0 nor (kernel-1)/2 for kernel %dx%d", w.PadW, w.KernelW, w.KernelH)
}

func (w Window) check() error {
	if w.KernelW < 1 || w.KernelH < 1 {
		return malformed("kernel %dx%d must be >= 1", w.KernelW, w.KernelH)
	}
	if w.StrideW < 1 || w.StrideH < 1 {
		return malformed("stride %dx%d must be >= 1", w.StrideW, w.StrideH)
	}
	if w.PadW < 0 || w.PadH < 0 {
		return malformed("pad %dx%d must be >= 0", w.PadW, w.PadH)
	}
	_, err := w.Padding()
	return err
}

func (w Window) String() string {
	return fmt.Sprintf("k=%dx%d s=%dx%d p=%dx%d", w.KernelH, w.KernelW, w.StrideH, w.StrideW, w.PadH, w.PadW)
}

// ConvParams holds convolution-specific fields.
type ConvParams struct {
	Window         `yaml:",inline"`
	Groups         int  `json:"groups" yaml:"groups"`
	HasBias        bool `json:"has_bias" yaml:"has_bias"`
	OutputChannels int  `json:"output_channels" yaml:"output_channels"`
}

// PoolParams holds pooling-specific fields.
type PoolParams struct {
	Window `yaml:",inline"`
	Method target.PoolMethod `json:"method" yaml:"method"`
	Global bool              `json:"global" yaml:"global"`
}

// DenseParams holds inner-product fields. Transpose is true when the source
// already stores weights input-major.
type DenseParams struct {
	OutputChannels int  `json:"output_channels" yaml:"output_channels"`
	HasBias        bool `json:"has_bias" yaml:"has_bias"`
	Transpose      bool `json:"transpose" yaml:"transpose"`
}

// ActivationParams holds elementwise layer fields.
type ActivationParams struct {
	Func          target.ActivationFunc `json:"func" yaml:"func"`
	NegativeSlope float32               `json:"negative_slope,omitempty" yaml:"negative_slope,omitempty"`
}

// LRNParams holds local response normalization fields.
type LRNParams struct {
	LocalSize int     `json:"local_size" yaml:"local_size"`
	Alpha     float32 `json:"alpha" yaml:"alpha"`
	Beta      float32 `json:"beta" yaml:"beta"`
	K         float32 `json:"k" yaml:"k"`
}

// Spec is the canonical, runtime-independent description of one layer.
// Exactly one of the kind-specific pointers is set for kinds that carry
// parameters. A Spec is not modified after conversion.
type Spec struct {
	Name        string       `json:"name" yaml:"name"`
	Type        string       `json:"type" yaml:"type"`
	Kind        Kind         `json:"kind" yaml:"kind"`
	InputShape  tensor.Shape `json:"input_shape" yaml:"input_shape,flow"`
	OutputShape tensor.Shape `json:"output_shape" yaml:"output_shape,flow"`

	Conv       *ConvParams       `json:"conv,omitempty" yaml:"conv,omitempty"`
	Pool       *PoolParams       `json:"pool,omitempty" yaml:"pool,omitempty"`
	Dense      *DenseParams      `json:"dense,omitempty" yaml:"dense,omitempty"`
	Activation *ActivationParams `json:"activation,omitempty" yaml:"activation,omitempty"`
	LRN        *LRNParams        `json:"lrn,omitempty" yaml:"lrn,omitempty"`
}

// WeightBuffer is a flat parameter buffer with its logical shape.
type WeightBuffer struct {
	Data  []float32
	Shape []int
}

func (b WeightBuffer) count() int {
	n := 1
	for _, d := range b.Shape {
		n *= d
	}
	return n
}
