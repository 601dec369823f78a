package target

import (
	"fmt"
	"math"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// PoolMethod selects the pooling reduction.
type PoolMethod int

const (
	MaxPool PoolMethod = iota
	AveragePool
)

func (m PoolMethod) String() string {
	switch m {
	case MaxPool:
		return "max"
	case AveragePool:
		return "ave"
	default:
		return "unknown"
	}
}

// PoolParams is the construction-time geometry of a pooling layer.
type PoolParams struct {
	InShape tensor.Shape
	Method  PoolMethod
	KernelW int
	KernelH int
	StrideW int
	StrideH int
	Padding Padding
}

// Pooling reduces each channel over a sliding window.
type Pooling struct {
	base
	p PoolParams
}

// NewPooling builds a pooling layer. Output size uses the floor formula.
func NewPooling(p PoolParams) (*Pooling, error) {
	if p.StrideW == 0 {
		p.StrideW = 1
	}
	if p.StrideH == 0 {
		p.StrideH = 1
	}
	in := p.InShape
	out := tensor.Shape{
		in.N(),
		in.C(),
		outLength(in.H(), p.KernelH, p.StrideH, p.Padding.Pad(p.KernelH)),
		outLength(in.W(), p.KernelW, p.StrideW, p.Padding.Pad(p.KernelW)),
	}
	if err := checkWindow(in, out, p.KernelW, p.KernelH, p.StrideW, p.StrideH); err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	b, err := newBase(in, out)
	if err != nil {
		return nil, fmt.Errorf("pool: %w", err)
	}
	return &Pooling{base: b, p: p}, nil
}

func (l *Pooling) Type() string { return l.p.Method.String() + "-pool" }

// Params returns the geometry the layer was built with.
func (l *Pooling) Params() PoolParams { return l.p }

func (l *Pooling) Weights() [][]float32 { return nil }

// Forward clips windows to the input. Average pooling divides by the window
// area clipped to the padded input, matching the source runtime.
func (l *Pooling) Forward() error {
	if err := l.ready(); err != nil {
		return err
	}
	inH, inW := l.in.H(), l.in.W()
	outH, outW := l.out.H(), l.out.W()
	kh, kw := l.p.KernelH, l.p.KernelW
	padH, padW := l.p.Padding.Pad(kh), l.p.Padding.Pad(kw)

	for nc := range l.in.N() * l.in.C() {
		src := l.input[nc*inH*inW : (nc+1)*inH*inW]
		dst := l.output[nc*outH*outW : (nc+1)*outH*outW]
		for oy := range outH {
			y0 := oy*l.p.StrideH - padH
			y1 := min(y0+kh, inH+padH)
			for ox := range outW {
				x0 := ox*l.p.StrideW - padW
				x1 := min(x0+kw, inW+padW)
				area := (y1 - y0) * (x1 - x0)
				cy0, cy1 := max(y0, 0), min(y1, inH)
				cx0, cx1 := max(x0, 0), min(x1, inW)

				switch l.p.Method {
				case MaxPool:
					best := float32(math.Inf(-1))
					for y := cy0; y < cy1; y++ {
						for x := cx0; x < cx1; x++ {
							best = max(best, src[y*inW+x])
						}
					}
					dst[oy*outW+ox] = best
				case AveragePool:
					var sum float64
					for y := cy0; y < cy1; y++ {
						for x := cx0; x < cx1; x++ {
							sum += float64(src[y*inW+x])
						}
					}
					dst[oy*outW+ox] = float32(sum / float64(area))
				default:
					return fmt.Errorf("pool: unknown method %d", l.p.Method)
				}
			}
		}
	}
	return nil
}

func (m PoolMethod) MarshalText() ([]byte, error) { return []byte(m.String()), nil }
