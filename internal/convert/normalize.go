package convert

import (
	"strings"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/target"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

// Normalize extracts a canonical Spec from a source layer record whose input
// blob has shape in. The returned Spec has no output shape yet; see
// ResolveShape. Normalize does not modify rec.
func Normalize(rec *source.LayerRecord, in tensor.Shape) (Spec, error) {
	e, ok := lookup(rec.Type)
	if !ok {
		return Spec{}, unsupported(rec.Type)
	}
	if err := in.Validate(); err != nil {
		return Spec{}, malformed("input shape: %v", err)
	}
	s := Spec{Name: rec.Name, Type: rec.Type, Kind: e.kind, InputShape: in}
	if e.normalize != nil {
		if err := e.normalize(rec, &s); err != nil {
			return Spec{}, err
		}
	}
	return s, nil
}

// axisPair resolves a possibly repeated shared field and its per-axis
// overrides into (height, width). One shared value applies to both axes, two
// are height then width. Per-axis fields win.
func axisPair(field string, shared []int, h, w *int, def int, required bool) (int, int, error) {
	var vh, vw int
	switch len(shared) {
	case 0:
		if required && (h == nil || w == nil) {
			return 0, 0, malformed("%s is required", field)
		}
		vh, vw = def, def
	case 1:
		vh, vw = shared[0], shared[0]
	case 2:
		vh, vw = shared[0], shared[1]
	default:
		return 0, 0, malformed("%s has %d values, only 2-D layers are supported", field, len(shared))
	}
	if h != nil {
		vh = *h
	}
	if w != nil {
		vw = *w
	}
	return vh, vw, nil
}

func intList(v *int) []int {
	if v == nil {
		return nil
	}
	return []int{*v}
}

func biasTerm(v *bool) bool { return v == nil || *v }

func normalizeConvolution(rec *source.LayerRecord, s *Spec) error {
	p := rec.Convolution
	if p == nil {
		return malformed("missing convolution_param")
	}
	if p.NumOutput == nil || *p.NumOutput < 1 {
		return malformed("num_output must be set and >= 1")
	}
	kh, kw, err := axisPair("kernel_size", p.KernelSize, p.KernelH, p.KernelW, 0, true)
	if err != nil {
		return err
	}
	sh, sw, err := axisPair("stride", p.Stride, p.StrideH, p.StrideW, 1, false)
	if err != nil {
		return err
	}
	ph, pw, err := axisPair("pad", p.Pad, p.PadH, p.PadW, 0, false)
	if err != nil {
		return err
	}
	if len(p.Dilation) > 2 {
		return malformed("dilation has %d values, only 2-D layers are supported", len(p.Dilation))
	}
	for _, d := range p.Dilation {
		if d != 1 {
			return malformed("dilation %d is not supported", d)
		}
	}
	groups := 1
	if p.Group != nil {
		groups = *p.Group
	}
	if groups < 1 {
		return malformed("group must be >= 1, got %d", groups)
	}

	w := Window{KernelW: kw, KernelH: kh, StrideW: sw, StrideH: sh, PadW: pw, PadH: ph}
	if err := w.check(); err != nil {
		return err
	}
	s.Conv = &ConvParams{
		Window:         w,
		Groups:         groups,
		HasBias:        biasTerm(p.BiasTerm),
		OutputChannels: *p.NumOutput,
	}
	return nil
}

func normalizePooling(rec *source.LayerRecord, s *Spec) error {
	p := rec.Pooling
	if p == nil {
		return malformed("missing pooling_param")
	}
	var method target.PoolMethod
	switch strings.ToUpper(p.Pool) {
	case "", "MAX":
		method = target.MaxPool
	case "AVE":
		method = target.AveragePool
	default:
		return malformed("pool method %q is not supported", p.Pool)
	}

	var w Window
	if p.GlobalPooling {
		if p.KernelSize != nil || p.KernelH != nil || p.KernelW != nil {
			return malformed("kernel size cannot be set with global_pooling")
		}
		w = Window{KernelW: s.InputShape.W(), KernelH: s.InputShape.H(), StrideW: 1, StrideH: 1}
	} else {
		kh, kw, err := axisPair("kernel_size", intList(p.KernelSize), p.KernelH, p.KernelW, 0, true)
		if err != nil {
			return err
		}
		sh, sw, err := axisPair("stride", intList(p.Stride), p.StrideH, p.StrideW, 1, false)
		if err != nil {
			return err
		}
		ph, pw, err := axisPair("pad", intList(p.Pad), p.PadH, p.PadW, 0, false)
		if err != nil {
			return err
		}
		w = Window{KernelW: kw, KernelH: kh, StrideW: sw, StrideH: sh, PadW: pw, PadH: ph}
	}
	if err := w.check(); err != nil {
		return err
	}
	s.Pool = &PoolParams{Window: w, Method: method, Global: p.GlobalPooling}
	return nil
}

func normalizeInnerProduct(rec *source.LayerRecord, s *Spec) error {
	p := rec.InnerProduct
	if p == nil {
		return malformed("missing inner_product_param")
	}
	if p.NumOutput == nil || *p.NumOutput < 1 {
		return malformed("num_output must be set and >= 1")
	}
	if p.Axis != nil && *p.Axis != 1 {
		return malformed("axis %d is not supported", *p.Axis)
	}
	s.Dense = &DenseParams{
		OutputChannels: *p.NumOutput,
		HasBias:        biasTerm(p.BiasTerm),
		Transpose:      p.Transpose,
	}
	return nil
}

func normalizeReLU(rec *source.LayerRecord, s *Spec) error {
	a := &ActivationParams{Func: target.ReLU}
	if rec.ReLU != nil && rec.ReLU.NegativeSlope != 0 {
		a.Func = target.LeakyReLU
		a.NegativeSlope = rec.ReLU.NegativeSlope
	}
	s.Activation = a
	return nil
}

func elementwise(fn target.ActivationFunc) func(*source.LayerRecord, *Spec) error {
	return func(_ *source.LayerRecord, s *Spec) error {
		s.Activation = &ActivationParams{Func: fn}
		return nil
	}
}

func normalizeLRN(rec *source.LayerRecord, s *Spec) error {
	l := LRNParams{LocalSize: 5, Alpha: 1, Beta: 0.75, K: 1}
	if p := rec.LRN; p != nil {
		switch strings.ToUpper(p.NormRegion) {
		case "", "ACROSS_CHANNELS":
		default:
			return malformed("norm_region %q is not supported", p.NormRegion)
		}
		if p.LocalSize != nil {
			l.LocalSize = *p.LocalSize
		}
		if p.Alpha != nil {
			l.Alpha = *p.Alpha
		}
		if p.Beta != nil {
			l.Beta = *p.Beta
		}
		if p.K != nil {
			l.K = *p.K
		}
	}
	if l.LocalSize < 1 || l.LocalSize%2 == 0 {
		return malformed("local_size must be odd and >= 1, got %d", l.LocalSize)
	}
	s.LRN = &l
	return nil
}

func normalizeSoftmax(rec *source.LayerRecord, _ *Spec) error {
	if rec.Softmax != nil && rec.Softmax.Axis != nil && *rec.Softmax.Axis != 1 {
		return malformed("softmax axis %d is not supported", *rec.Softmax.Axis)
	}
	return nil
}

func normalizeDropout(rec *source.LayerRecord, _ *Spec) error {
	if rec.Dropout != nil {
		if r := rec.Dropout.DropoutRatio; r < 0 || r >= 1 {
			return malformed("dropout_ratio %g out of range [0, 1)", r)
		}
	}
	return nil
}
