package convert

import (
	"errors"
	"fmt"

	"github.com/MeKo-Tech/caffebridge/internal/target"
)

// Build constructs the target layer for s, installs the relaid buffers and,
// when input is non-nil, feeds it as the layer's input activations.
func Build(s Spec, tbl target.ConnectionTable, bufs []WeightBuffer, input []float32) (target.Layer, error) {
	e, ok := lookup(s.Type)
	if !ok || e.build == nil {
		return nil, unsupported(s.Type)
	}
	l, err := e.build(s, tbl)
	if err != nil {
		if errors.Is(err, ErrMalformedParameters) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrMalformedParameters, err)
	}
	if l.OutShape() != s.OutputShape {
		return nil, fmt.Errorf("%w: target layer produces %v, expected %v",
			ErrShapeInferenceMismatch, l.OutShape(), s.OutputShape)
	}

	dst := l.Weights()
	if len(bufs) != len(dst) {
		return nil, weightMismatch("%d buffers for %d target parameter slots", len(bufs), len(dst))
	}
	for i, b := range bufs {
		if len(b.Data) != len(dst[i]) || b.count() != len(b.Data) {
			return nil, weightMismatch("buffer %d has %d values, target expects %d", i, len(b.Data), len(dst[i]))
		}
		copy(dst[i], b.Data)
	}

	if input != nil {
		if err := l.SetInData(input); err != nil {
			return nil, fmt.Errorf("feed input: %w", err)
		}
	}
	return l, nil
}

func buildConvolution(s Spec, tbl target.ConnectionTable) (target.Layer, error) {
	c := s.Conv
	if c == nil {
		return nil, malformed("convolution without parameters")
	}
	pad, err := c.Padding()
	if err != nil {
		return nil, err
	}
	return target.NewConvolution(target.ConvParams{
		InShape:     s.InputShape,
		KernelW:     c.KernelW,
		KernelH:     c.KernelH,
		OutChannels: c.OutputChannels,
		Padding:     pad,
		HasBias:     c.HasBias,
		StrideW:     c.StrideW,
		StrideH:     c.StrideH,
		Table:       tbl,
	})
}

func buildPooling(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	p := s.Pool
	if p == nil {
		return nil, malformed("pooling without parameters")
	}
	pad, err := p.Padding()
	if err != nil {
		return nil, err
	}
	return target.NewPooling(target.PoolParams{
		InShape: s.InputShape,
		Method:  p.Method,
		KernelW: p.KernelW,
		KernelH: p.KernelH,
		StrideW: p.StrideW,
		StrideH: p.StrideH,
		Padding: pad,
	})
}

func buildInnerProduct(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	if s.Dense == nil {
		return nil, malformed("inner product without parameters")
	}
	return target.NewFullyConnected(s.InputShape, s.Dense.OutputChannels, s.Dense.HasBias)
}

func buildActivation(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	if s.Activation == nil {
		return nil, malformed("activation without parameters")
	}
	return target.NewActivation(s.InputShape, s.Activation.Func, s.Activation.NegativeSlope)
}

func buildLRN(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	l := s.LRN
	if l == nil {
		return nil, malformed("lrn without parameters")
	}
	return target.NewLRN(target.LRNParams{
		InShape:   s.InputShape,
		LocalSize: l.LocalSize,
		Alpha:     l.Alpha,
		Beta:      l.Beta,
		K:         l.K,
	})
}

func buildSoftmax(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	return target.NewSoftmax(s.InputShape)
}

// Dropout is the identity at inference time.
func buildDropout(s Spec, _ target.ConnectionTable) (target.Layer, error) {
	return target.NewActivation(s.InputShape, target.Identity, 0)
}
