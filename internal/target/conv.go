package target

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/MeKo-Tech/caffebridge/internal/mempool"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// ConvParams is the construction-time geometry of a convolution.
type ConvParams struct {
	InShape     tensor.Shape
	KernelW     int
	KernelH     int
	OutChannels int
	Padding     Padding
	HasBias     bool
	StrideW     int
	StrideH     int
	Table       ConnectionTable
}

// Convolution is a 2-D convolution over NCHW input. The kernel is stored as
// a dense [out][in][kh][kw] grid; entries for disconnected channel pairs are
// ignored by Forward.
type Convolution struct {
	base
	p      ConvParams
	weight []float32
	bias   []float32
}

// NewConvolution allocates a convolution with zeroed weights.
func NewConvolution(p ConvParams) (*Convolution, error) {
	if p.StrideW == 0 {
		p.StrideW = 1
	}
	if p.StrideH == 0 {
		p.StrideH = 1
	}
	if p.OutChannels < 1 {
		return nil, fmt.Errorf("output channels must be >= 1, got %d", p.OutChannels)
	}
	in := p.InShape
	if !p.Table.IsEmpty() {
		rows, cols := p.Table.Dims()
		if rows != p.OutChannels || cols != in.C() {
			return nil, fmt.Errorf("connection table %v does not match out=%d in=%d", p.Table, p.OutChannels, in.C())
		}
	}
	out := tensor.Shape{
		in.N(),
		p.OutChannels,
		outLength(in.H(), p.KernelH, p.StrideH, p.Padding.Pad(p.KernelH)),
		outLength(in.W(), p.KernelW, p.StrideW, p.Padding.Pad(p.KernelW)),
	}
	if err := checkWindow(in, out, p.KernelW, p.KernelH, p.StrideW, p.StrideH); err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	b, err := newBase(in, out)
	if err != nil {
		return nil, fmt.Errorf("conv: %w", err)
	}
	c := &Convolution{
		base:   b,
		p:      p,
		weight: make([]float32, p.OutChannels*in.C()*p.KernelH*p.KernelW),
	}
	if p.HasBias {
		c.bias = make([]float32, p.OutChannels)
	}
	return c, nil
}

func (c *Convolution) Type() string { return "conv" }

// Params returns the geometry the layer was built with.
func (c *Convolution) Params() ConvParams { return c.p }

func (c *Convolution) Weights() [][]float32 {
	if c.p.HasBias {
		return [][]float32{c.weight, c.bias}
	}
	return [][]float32{c.weight}
}

// WeightIndex returns the offset of kernel coefficient (o, i, y, x).
func (c *Convolution) WeightIndex(o, i, y, x int) int {
	return ((o*c.in.C()+i)*c.p.KernelH+y)*c.p.KernelW + x
}

// Forward lowers each sample with im2col and multiplies by the masked
// kernel matrix.
func (c *Convolution) Forward() error {
	if err := c.ready(); err != nil {
		return err
	}
	inC, inH, inW := c.in.C(), c.in.H(), c.in.W()
	outC, outH, outW := c.out.C(), c.out.H(), c.out.W()
	kh, kw := c.p.KernelH, c.p.KernelW
	padH, padW := c.p.Padding.Pad(kh), c.p.Padding.Pad(kw)
	patch := inC * kh * kw
	plane := outH * outW

	kbuf := mempool.GetFloat64(outC * patch)
	defer mempool.PutFloat64(kbuf)
	for o := range outC {
		for i := range inC {
			if !c.p.Table.IsConnected(o, i) {
				continue
			}
			off := (o*inC + i) * kh * kw
			for k := range kh * kw {
				kbuf[off+k] = float64(c.weight[off+k])
			}
		}
	}
	kernel := mat.NewDense(outC, patch, kbuf)

	cbuf := mempool.GetFloat64(patch * plane)
	defer mempool.PutFloat64(cbuf)
	rbuf := mempool.GetFloat64(outC * plane)
	defer mempool.PutFloat64(rbuf)

	for n := range c.in.N() {
		src := c.input[n*c.in.SampleCount() : (n+1)*c.in.SampleCount()]
		im2col(src, cbuf, inC, inH, inW, kh, kw, padH, padW, c.p.StrideH, c.p.StrideW, outH, outW)
		cols := mat.NewDense(patch, plane, cbuf)
		res := mat.NewDense(outC, plane, rbuf)
		res.Mul(kernel, cols)

		dst := c.output[n*c.out.SampleCount() : (n+1)*c.out.SampleCount()]
		for o := range outC {
			var b float64
			if c.p.HasBias {
				b = float64(c.bias[o])
			}
			row := rbuf[o*plane : (o+1)*plane]
			for j, v := range row {
				dst[o*plane+j] = float32(v + b)
			}
		}
	}
	return nil
}

// im2col writes one column per output position; rows are (channel, ky, kx).
// Padded positions read as zero.
func im2col(src []float32, cols []float64, inC, inH, inW, kh, kw, padH, padW, strideH, strideW, outH, outW int) {
	plane := outH * outW
	for ch := range inC {
		for ky := range kh {
			for kx := range kw {
				row := (ch*kh+ky)*kw + kx
				dst := cols[row*plane : (row+1)*plane]
				for oy := range outH {
					iy := oy*strideH - padH + ky
					for ox := range outW {
						ix := ox*strideW - padW + kx
						if iy < 0 || iy >= inH || ix < 0 || ix >= inW {
							dst[oy*outW+ox] = 0
							continue
						}
						dst[oy*outW+ox] = float64(src[(ch*inH+iy)*inW+ix])
					}
				}
			}
		}
	}
}
