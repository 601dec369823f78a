package target

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// Softmax normalizes across channels at every spatial position.
type Softmax struct {
	base
}

func NewSoftmax(in tensor.Shape) (*Softmax, error) {
	b, err := newBase(in, in)
	if err != nil {
		return nil, fmt.Errorf("softmax: %w", err)
	}
	return &Softmax{base: b}, nil
}

func (l *Softmax) Type() string { return "softmax" }

func (l *Softmax) Weights() [][]float32 { return nil }

func (l *Softmax) Forward() error {
	if err := l.ready(); err != nil {
		return err
	}
	c, plane := l.in.C(), l.in.H()*l.in.W()
	for n := range l.in.N() {
		src := l.input[n*c*plane : (n+1)*c*plane]
		dst := l.output[n*c*plane : (n+1)*c*plane]
		for p := range plane {
			peak := math.Inf(-1)
			for ch := range c {
				peak = max(peak, float64(src[ch*plane+p]))
			}
			var sum float64
			for ch := range c {
				sum += math.Exp(float64(src[ch*plane+p]) - peak)
			}
			for ch := range c {
				dst[ch*plane+p] = float32(math.Exp(float64(src[ch*plane+p])-peak) / sum)
			}
		}
	}
	return nil
}
