package target

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/caffebridge/internal/mempool"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// FullyConnected maps each flattened sample to OutSize values. Weights are
// stored input-major: W[i*out+o].
type FullyConnected struct {
	base
	hasBias bool
	weight  []float32
	bias    []float32
}

// NewFullyConnected allocates a fully connected layer with zeroed weights.
func NewFullyConnected(in tensor.Shape, outSize int, hasBias bool) (*FullyConnected, error) {
	if outSize < 1 {
		return nil, fmt.Errorf("fully-connected: output size must be >= 1, got %d", outSize)
	}
	b, err := newBase(in, tensor.Shape{in.N(), outSize, 1, 1})
	if err != nil {
		return nil, fmt.Errorf("fully-connected: %w", err)
	}
	l := &FullyConnected{
		base:    b,
		hasBias: hasBias,
		weight:  make([]float32, in.SampleCount()*outSize),
	}
	if hasBias {
		l.bias = make([]float32, outSize)
	}
	return l, nil
}

func (l *FullyConnected) Type() string { return "fully-connected" }

// HasBias reports whether the layer adds a bias term.
func (l *FullyConnected) HasBias() bool { return l.hasBias }

func (l *FullyConnected) Weights() [][]float32 {
	if l.hasBias {
		return [][]float32{l.weight, l.bias}
	}
	return [][]float32{l.weight}
}

func (l *FullyConnected) Forward() error {
	if err := l.ready(); err != nil {
		return err
	}
	in, out := l.in.SampleCount(), l.out.C()

	wbuf := mempool.GetFloat64(in * out)
	defer mempool.PutFloat64(wbuf)
	for i, v := range l.weight {
		wbuf[i] = float64(v)
	}
	w := mat.NewDense(in, out, wbuf)

	xbuf := mempool.GetFloat64(in)
	defer mempool.PutFloat64(xbuf)
	ybuf := mempool.GetFloat64(out)
	defer mempool.PutFloat64(ybuf)

	for n := range l.in.N() {
		src := l.input[n*in : (n+1)*in]
		for i, v := range src {
			xbuf[i] = float64(v)
		}
		y := mat.NewVecDense(out, ybuf)
		y.MulVec(w.T(), mat.NewVecDense(in, xbuf))

		dst := l.output[n*out : (n+1)*out]
		for o := range out {
			v := y.AtVec(o)
			if l.hasBias {
				v += float64(l.bias[o])
			}
			dst[o] = float32(v)
		}
	}
	return nil
}
