package convert

import (
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// OutputLength is the sliding-window output size along one axis:
// floor((in + 2*pad - kernel) / stride) + 1.
func OutputLength(in, kernel, stride, pad int) int {
	return (in+2*pad-kernel)/stride + 1
}

func windowShape(in tensor.Shape, channels int, w Window) (tensor.Shape, error) {
	h := OutputLength(in.H(), w.KernelH, w.StrideH, w.PadH)
	wd := OutputLength(in.W(), w.KernelW, w.StrideW, w.PadW)
	if h < 1 || wd < 1 || in.H()+2*w.PadH < w.KernelH || in.W()+2*w.PadW < w.KernelW {
		return tensor.Shape{}, malformed("window %v does not fit input %v", w, in)
	}
	return tensor.Shape{in.N(), channels, h, wd}, nil
}

// InferShape computes the output shape of s from its input shape.
func InferShape(s Spec) (tensor.Shape, error) {
	in := s.InputShape
	switch s.Kind {
	case Convolution:
		if s.Conv == nil {
			return tensor.Shape{}, malformed("convolution without parameters")
		}
		return windowShape(in, s.Conv.OutputChannels, s.Conv.Window)
	case Pooling:
		if s.Pool == nil {
			return tensor.Shape{}, malformed("pooling without parameters")
		}
		return windowShape(in, in.C(), s.Pool.Window)
	case InnerProduct:
		if s.Dense == nil {
			return tensor.Shape{}, malformed("inner product without parameters")
		}
		return tensor.Shape{in.N(), s.Dense.OutputChannels, 1, 1}, nil
	case Activation, Normalization, Softmax, Dropout:
		return in, nil
	default:
		return tensor.Shape{}, fmt.Errorf("%w: kind %v", ErrUnsupportedLayerKind, s.Kind)
	}
}

// CheckShape compares a computed output shape against the shape the source
// runtime observed.
func CheckShape(computed, observed tensor.Shape) error {
	if computed != observed {
		return fmt.Errorf("%w: computed %v, observed %v", ErrShapeInferenceMismatch, computed, observed)
	}
	return nil
}

// ResolveShape infers the output shape of s and, when observed is non-nil,
// cross-checks it. It returns a copy of s with OutputShape set.
func ResolveShape(s Spec, observed *tensor.Shape) (Spec, error) {
	out, err := InferShape(s)
	if err != nil {
		return Spec{}, err
	}
	if observed != nil {
		if err := CheckShape(out, *observed); err != nil {
			return Spec{}, err
		}
	}
	s.OutputShape = out
	return s, nil
}
