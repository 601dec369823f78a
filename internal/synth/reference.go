// Package synth builds synthetic source-network snapshots. A small
// reference forward pass, written against the source runtime's own
// parameter layout, fills in the activations a real source runtime would
// have recorded.
package synth

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// ErrNoReference is returned for layer types the reference pass cannot run.
var ErrNoReference = errors.New("no reference implementation")

// Forward re-runs every layer of net from the data layer's top blob and
// overwrites the recorded bottom and top activations.
func Forward(net *source.Net) error {
	if net.Len() == 0 {
		return errors.New("network has no layers")
	}
	data := net.Layers[0].Top
	if data == nil || len(data.Data) == 0 {
		return errors.New("data layer has no recorded output")
	}
	cur := *data
	for i := 1; i < net.Len(); i++ {
		rec := &net.Layers[i]
		out, err := ForwardLayer(rec, cur)
		if err != nil {
			return fmt.Errorf("layer %d (%s): %w", i, rec.Name, err)
		}
		rec.Bottom = &source.Blob{Shape: append([]int(nil), cur.Shape...), Data: cur.Data}
		rec.Top = &out
		cur = out
	}
	return nil
}

// ForwardLayer computes one layer on in. Outputs follow the source
// runtime's shape conventions: inner products yield two-axis blobs.
func ForwardLayer(rec *source.LayerRecord, in source.Blob) (source.Blob, error) {
	shape, err := in.Shape4()
	if err != nil {
		return source.Blob{}, err
	}
	if len(in.Data) != shape.Count() {
		return source.Blob{}, fmt.Errorf("input has %d values, shape %v needs %d", len(in.Data), in.Shape, shape.Count())
	}
	switch rec.Type {
	case "Convolution":
		return convolution(rec, in.Data, shape)
	case "Pooling":
		return pooling(rec, in.Data, shape)
	case "InnerProduct":
		return innerProduct(rec, in.Data, shape)
	case "ReLU":
		slope := float32(0)
		if rec.ReLU != nil {
			slope = rec.ReLU.NegativeSlope
		}
		return elementwise(in, func(v float32) float32 {
			if v < 0 {
				return v * slope
			}
			return v
		}), nil
	case "Sigmoid":
		return elementwise(in, func(v float32) float32 { return float32(1 / (1 + math.Exp(-float64(v)))) }), nil
	case "TanH":
		return elementwise(in, func(v float32) float32 { return float32(math.Tanh(float64(v))) }), nil
	case "Dropout":
		// test phase: identity
		return elementwise(in, func(v float32) float32 { return v }), nil
	case "LRN":
		return lrn(rec, in, shape)
	case "Softmax":
		return softmax(in, shape), nil
	default:
		return source.Blob{}, fmt.Errorf("%w for %q", ErrNoReference, rec.Type)
	}
}

func elementwise(in source.Blob, fn func(float32) float32) source.Blob {
	out := make([]float32, len(in.Data))
	for i, v := range in.Data {
		out[i] = fn(v)
	}
	return source.Blob{Shape: append([]int(nil), in.Shape...), Data: out}
}

func deref(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// repeated returns the i-th value of a repeated field, the single value
// if only one is given, or def.
func repeated(vals []int, i, def int) int {
	switch len(vals) {
	case 0:
		return def
	case 1:
		return vals[0]
	default:
		return vals[i]
	}
}

func convolution(rec *source.LayerRecord, in []float32, s tensor.Shape) (source.Blob, error) {
	p := rec.Convolution
	if p == nil || p.NumOutput == nil {
		return source.Blob{}, errors.New("convolution_param.num_output missing")
	}
	numOut := *p.NumOutput
	kh := deref(p.KernelH, repeated(p.KernelSize, 0, 0))
	kw := deref(p.KernelW, repeated(p.KernelSize, 1, 0))
	sh := deref(p.StrideH, repeated(p.Stride, 0, 1))
	sw := deref(p.StrideW, repeated(p.Stride, 1, 1))
	ph := deref(p.PadH, repeated(p.Pad, 0, 0))
	pw := deref(p.PadW, repeated(p.Pad, 1, 0))
	group := deref(p.Group, 1)
	bias := p.BiasTerm == nil || *p.BiasTerm

	inC, inH, inW := s.C(), s.H(), s.W()
	if kh < 1 || kw < 1 || sh < 1 || sw < 1 || group < 1 || inC%group != 0 || numOut%group != 0 {
		return source.Blob{}, fmt.Errorf("bad convolution geometry k=%dx%d s=%dx%d group=%d", kh, kw, sh, sw, group)
	}
	outH := (inH+2*ph-kh)/sh + 1
	outW := (inW+2*pw-kw)/sw + 1
	if outH < 1 || outW < 1 {
		return source.Blob{}, fmt.Errorf("kernel %dx%d larger than padded input %dx%d", kh, kw, inH, inW)
	}
	inPerGroup, outPerGroup := inC/group, numOut/group
	if len(rec.Blobs) == 0 || len(rec.Blobs[0].Data) != numOut*inPerGroup*kh*kw {
		return source.Blob{}, fmt.Errorf("weight blob must hold %d values", numOut*inPerGroup*kh*kw)
	}
	w := rec.Blobs[0].Data
	var b []float32
	if bias {
		if len(rec.Blobs) < 2 || len(rec.Blobs[1].Data) != numOut {
			return source.Blob{}, fmt.Errorf("bias blob must hold %d values", numOut)
		}
		b = rec.Blobs[1].Data
	}

	out := make([]float32, s.N()*numOut*outH*outW)
	for n := range s.N() {
		img := in[n*inC*inH*inW:]
		for o := range numOut {
			g := o / outPerGroup
			for oy := range outH {
				for ox := range outW {
					var acc float64
					for ci := range inPerGroup {
						plane := img[(g*inPerGroup+ci)*inH*inW:]
						for ky := range kh {
							y := oy*sh - ph + ky
							if y < 0 || y >= inH {
								continue
							}
							for kx := range kw {
								x := ox*sw - pw + kx
								if x < 0 || x >= inW {
									continue
								}
								acc += float64(w[((o*inPerGroup+ci)*kh+ky)*kw+kx]) * float64(plane[y*inW+x])
							}
						}
					}
					if b != nil {
						acc += float64(b[o])
					}
					out[((n*numOut+o)*outH+oy)*outW+ox] = float32(acc)
				}
			}
		}
	}
	return source.Blob{Shape: []int{s.N(), numOut, outH, outW}, Data: out}, nil
}

// pooling follows the source runtime: ceil-mode output size, with the last
// window dropped when it would start inside the bottom padding.
func pooling(rec *source.LayerRecord, in []float32, s tensor.Shape) (source.Blob, error) {
	p := rec.Pooling
	if p == nil {
		p = &source.PoolingParam{}
	}
	inH, inW := s.H(), s.W()
	kh := deref(p.KernelH, deref(p.KernelSize, 0))
	kw := deref(p.KernelW, deref(p.KernelSize, 0))
	if p.GlobalPooling {
		kh, kw = inH, inW
	}
	sh := deref(p.StrideH, deref(p.Stride, 1))
	sw := deref(p.StrideW, deref(p.Stride, 1))
	ph := deref(p.PadH, deref(p.Pad, 0))
	pw := deref(p.PadW, deref(p.Pad, 0))
	if kh < 1 || kw < 1 || sh < 1 || sw < 1 {
		return source.Blob{}, fmt.Errorf("bad pooling geometry k=%dx%d s=%dx%d", kh, kw, sh, sw)
	}
	outH := ceilDiv(inH+2*ph-kh, sh) + 1
	outW := ceilDiv(inW+2*pw-kw, sw) + 1
	if ph > 0 && (outH-1)*sh >= inH+ph {
		outH--
	}
	if pw > 0 && (outW-1)*sw >= inW+pw {
		outW--
	}
	if outH < 1 || outW < 1 {
		return source.Blob{}, fmt.Errorf("window %dx%d larger than input %dx%d", kh, kw, inH, inW)
	}
	method := strings.ToUpper(p.Pool)
	if method == "" {
		method = "MAX"
	}
	if method != "MAX" && method != "AVE" {
		return source.Blob{}, fmt.Errorf("%w for %s pooling", ErrNoReference, method)
	}

	out := make([]float32, s.N()*s.C()*outH*outW)
	for nc := range s.N() * s.C() {
		src := in[nc*inH*inW:]
		for oy := range outH {
			y0 := oy*sh - ph
			y1 := min(y0+kh, inH+ph)
			for ox := range outW {
				x0 := ox*sw - pw
				x1 := min(x0+kw, inW+pw)
				area := (y1 - y0) * (x1 - x0)
				best, sum := math.Inf(-1), 0.0
				for y := max(y0, 0); y < min(y1, inH); y++ {
					for x := max(x0, 0); x < min(x1, inW); x++ {
						v := float64(src[y*inW+x])
						best = math.Max(best, v)
						sum += v
					}
				}
				v := best
				if method == "AVE" {
					v = sum / float64(area)
				}
				out[(nc*outH+oy)*outW+ox] = float32(v)
			}
		}
	}
	return source.Blob{Shape: []int{s.N(), s.C(), outH, outW}, Data: out}, nil
}

func ceilDiv(a, b int) int {
	if a <= 0 {
		return a / b
	}
	return (a + b - 1) / b
}

func innerProduct(rec *source.LayerRecord, in []float32, s tensor.Shape) (source.Blob, error) {
	p := rec.InnerProduct
	if p == nil || p.NumOutput == nil {
		return source.Blob{}, errors.New("inner_product_param.num_output missing")
	}
	numOut, k := *p.NumOutput, s.SampleCount()
	bias := p.BiasTerm == nil || *p.BiasTerm
	if len(rec.Blobs) == 0 || len(rec.Blobs[0].Data) != numOut*k {
		return source.Blob{}, fmt.Errorf("weight blob must hold %d values", numOut*k)
	}
	w := rec.Blobs[0].Data
	var b []float32
	if bias {
		if len(rec.Blobs) < 2 || len(rec.Blobs[1].Data) != numOut {
			return source.Blob{}, fmt.Errorf("bias blob must hold %d values", numOut)
		}
		b = rec.Blobs[1].Data
	}
	out := make([]float32, s.N()*numOut)
	for n := range s.N() {
		x := in[n*k : (n+1)*k]
		for o := range numOut {
			var acc float64
			for i, v := range x {
				wi := o*k + i
				if p.Transpose {
					wi = i*numOut + o
				}
				acc += float64(w[wi]) * float64(v)
			}
			if b != nil {
				acc += float64(b[o])
			}
			out[n*numOut+o] = float32(acc)
		}
	}
	return source.Blob{Shape: []int{s.N(), numOut}, Data: out}, nil
}

func lrn(rec *source.LayerRecord, in source.Blob, s tensor.Shape) (source.Blob, error) {
	size, alpha, beta, k := 5, 1.0, 0.75, 1.0
	if p := rec.LRN; p != nil {
		if p.NormRegion != "" && !strings.EqualFold(p.NormRegion, "ACROSS_CHANNELS") {
			return source.Blob{}, fmt.Errorf("%w for %s normalization", ErrNoReference, p.NormRegion)
		}
		size = deref(p.LocalSize, size)
		if p.Alpha != nil {
			alpha = float64(*p.Alpha)
		}
		if p.Beta != nil {
			beta = float64(*p.Beta)
		}
		if p.K != nil {
			k = float64(*p.K)
		}
	}
	c, plane := s.C(), s.H()*s.W()
	half := (size - 1) / 2
	out := make([]float32, len(in.Data))
	for n := range s.N() {
		src := in.Data[n*c*plane:]
		for ch := range c {
			for i := range plane {
				var sq float64
				for j := max(ch-half, 0); j <= min(ch+half, c-1); j++ {
					v := float64(src[j*plane+i])
					sq += v * v
				}
				scale := k + alpha/float64(size)*sq
				out[(n*c+ch)*plane+i] = float32(float64(src[ch*plane+i]) * math.Pow(scale, -beta))
			}
		}
	}
	return source.Blob{Shape: append([]int(nil), in.Shape...), Data: out}, nil
}

func softmax(in source.Blob, s tensor.Shape) source.Blob {
	c, plane := s.C(), s.H()*s.W()
	out := make([]float32, len(in.Data))
	for n := range s.N() {
		for i := range plane {
			at := func(ch int) int { return (n*c+ch)*plane + i }
			peak := math.Inf(-1)
			for ch := range c {
				peak = math.Max(peak, float64(in.Data[at(ch)]))
			}
			var sum float64
			for ch := range c {
				sum += math.Exp(float64(in.Data[at(ch)]) - peak)
			}
			for ch := range c {
				out[at(ch)] = float32(math.Exp(float64(in.Data[at(ch)])-peak) / sum)
			}
		}
	}
	return source.Blob{Shape: append([]int(nil), in.Shape...), Data: out}
}
