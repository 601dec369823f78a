package target

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// LRNParams configures cross-channel local response normalization.
type LRNParams struct {
	InShape   tensor.Shape
	LocalSize int
	Alpha     float32
	Beta      float32
	K         float32
}

// LRN normalizes each activation by the sum of squares over LocalSize
// neighbouring channels: y = x * (k + alpha/n * sum(x^2))^-beta.
type LRN struct {
	base
	p LRNParams
}

func NewLRN(p LRNParams) (*LRN, error) {
	if p.LocalSize < 1 || p.LocalSize%2 == 0 {
		return nil, fmt.Errorf("lrn: local size must be odd and >= 1, got %d", p.LocalSize)
	}
	b, err := newBase(p.InShape, p.InShape)
	if err != nil {
		return nil, fmt.Errorf("lrn: %w", err)
	}
	return &LRN{base: b, p: p}, nil
}

func (l *LRN) Type() string { return "lrn" }

// Params returns the configuration the layer was built with.
func (l *LRN) Params() LRNParams { return l.p }

func (l *LRN) Weights() [][]float32 { return nil }

func (l *LRN) Forward() error {
	if err := l.ready(); err != nil {
		return err
	}
	c, plane := l.in.C(), l.in.H()*l.in.W()
	half := (l.p.LocalSize - 1) / 2
	alpha := float64(l.p.Alpha) / float64(l.p.LocalSize)

	for n := range l.in.N() {
		src := l.input[n*c*plane : (n+1)*c*plane]
		dst := l.output[n*c*plane : (n+1)*c*plane]
		for ch := range c {
			lo, hi := max(ch-half, 0), min(ch+half, c-1)
			for p := range plane {
				var sq float64
				for j := lo; j <= hi; j++ {
					v := float64(src[j*plane+p])
					sq += v * v
				}
				scale := float64(l.p.K) + alpha*sq
				dst[ch*plane+p] = float32(float64(src[ch*plane+p]) * math.Pow(scale, -float64(l.p.Beta)))
			}
		}
	}
	return nil
}
