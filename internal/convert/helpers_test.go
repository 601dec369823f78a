package convert

import (
	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

func intp(v int) *int { return &v }

func boolp(v bool) *bool { return &v }

func f32p(v float32) *float32 { return &v }

func convRecord(numOutput int, p source.ConvolutionParam) *source.LayerRecord {
	p.NumOutput = intp(numOutput)
	return &source.LayerRecord{Name: "conv", Type: "Convolution", Convolution: &p}
}

// convSpec returns a resolved convolution spec for a square kernel.
func convSpec(in tensor.Shape, out, kernel, stride, pad, groups int, bias bool) Spec {
	s := Spec{
		Name: "conv", Type: "Convolution", Kind: Convolution, InputShape: in,
		Conv: &ConvParams{
			Window:         Window{KernelW: kernel, KernelH: kernel, StrideW: stride, StrideH: stride, PadW: pad, PadH: pad},
			Groups:         groups,
			HasBias:        bias,
			OutputChannels: out,
		},
	}
	s.OutputShape, _ = InferShape(s)
	return s
}

func ramp(n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(i + 1)
	}
	return out
}

func blob(data []float32, shape ...int) source.Blob {
	return source.Blob{Shape: shape, Data: data}
}
