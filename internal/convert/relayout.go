package convert

import (
	"fmt"
	"log/slog"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/target"
)

// Options tunes conversion of degraded inputs.
type Options struct {
	// AllowScalarBias accepts a single bias value for a multi-channel layer
	// and broadcasts it to every output channel.
	AllowScalarBias bool
	Logger          *slog.Logger
}

func (o Options) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}

// ConnectionTable derives the channel connectivity of s. Layers other than
// grouped convolutions are fully connected. Channel counts that do not split
// evenly into groups are a weight count mismatch.
func ConnectionTable(s Spec) (target.ConnectionTable, error) {
	if s.Kind != Convolution || s.Conv == nil || s.Conv.Groups <= 1 {
		return target.FullConnection(), nil
	}
	t, err := target.NewGroupedTable(s.Conv.Groups, s.InputShape.C(), s.Conv.OutputChannels)
	if err != nil {
		return target.ConnectionTable{}, fmt.Errorf("%w: %w", ErrWeightCountMismatch, err)
	}
	return t, nil
}

// Relayout copies the source parameter blobs of s into target order.
// Index 0 of the result is the weight buffer, index 1 the bias if any.
func Relayout(s Spec, tbl target.ConnectionTable, blobs []source.Blob, opts Options) ([]WeightBuffer, error) {
	e, ok := lookup(s.Type)
	if !ok {
		return nil, unsupported(s.Type)
	}
	if e.relayout == nil {
		if len(blobs) > 0 {
			return nil, weightMismatch("%s layer takes no parameters, got %d blobs", s.Kind, len(blobs))
		}
		return nil, nil
	}
	return e.relayout(s, tbl, blobs, opts)
}

// relayoutConvolution expands the source kernel, which stores only connected
// (output, input) blocks back to back, into a dense [out][in][kh][kw] grid.
// Disconnected blocks stay zero and consume nothing.
func relayoutConvolution(s Spec, tbl target.ConnectionTable, blobs []source.Blob, opts Options) ([]WeightBuffer, error) {
	c := s.Conv
	if c == nil {
		return nil, malformed("convolution without parameters")
	}
	if err := checkBlobCount(blobs, c.HasBias); err != nil {
		return nil, err
	}
	in, out := s.InputShape.C(), c.OutputChannels
	k := c.KernelW * c.KernelH
	src := blobs[0].Data
	expected := tbl.ConnectedCount(out, in) * k

	dst := make([]float32, out*in*k)
	cursor := 0
	for o := range out {
		for i := range in {
			if !tbl.IsConnected(o, i) {
				continue
			}
			if cursor+k > len(src) {
				return nil, weightMismatch("kernel blob exhausted after %d of %d coefficients", len(src), expected)
			}
			d := (o*in + i) * k
			copy(dst[d:d+k], src[cursor:cursor+k])
			cursor += k
		}
	}
	if cursor != len(src) {
		return nil, weightMismatch("kernel blob has %d coefficients, %d consumed", len(src), cursor)
	}

	res := []WeightBuffer{{Data: dst, Shape: []int{out, in, c.KernelH, c.KernelW}}}
	if c.HasBias {
		b, err := relayoutBias(s, out, blobs[1], opts)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

// relayoutInnerProduct transposes the source [out][in] matrix into the
// target's input-major [in][out] layout. A transposed source is copied.
func relayoutInnerProduct(s Spec, _ target.ConnectionTable, blobs []source.Blob, opts Options) ([]WeightBuffer, error) {
	d := s.Dense
	if d == nil {
		return nil, malformed("inner product without parameters")
	}
	if err := checkBlobCount(blobs, d.HasBias); err != nil {
		return nil, err
	}
	in, out := s.InputShape.SampleCount(), d.OutputChannels
	src := blobs[0].Data
	if len(src) != in*out {
		return nil, weightMismatch("weight blob has %d coefficients, want %d (%d x %d)", len(src), in*out, out, in)
	}

	dst := make([]float32, in*out)
	if d.Transpose {
		copy(dst, src)
	} else {
		for o := range out {
			row := src[o*in : (o+1)*in]
			for i, v := range row {
				dst[i*out+o] = v
			}
		}
	}

	res := []WeightBuffer{{Data: dst, Shape: []int{in, out}}}
	if d.HasBias {
		b, err := relayoutBias(s, out, blobs[1], opts)
		if err != nil {
			return nil, err
		}
		res = append(res, b)
	}
	return res, nil
}

func checkBlobCount(blobs []source.Blob, hasBias bool) error {
	want := 1
	if hasBias {
		want = 2
	}
	if len(blobs) != want {
		return weightMismatch("got %d parameter blobs, want %d (bias_term %t)", len(blobs), want, hasBias)
	}
	return nil
}

// relayoutBias copies one bias per output channel. A single shared value is
// only accepted with AllowScalarBias.
func relayoutBias(s Spec, out int, blob source.Blob, opts Options) (WeightBuffer, error) {
	dst := make([]float32, out)
	switch {
	case len(blob.Data) == out:
		copy(dst, blob.Data)
	case len(blob.Data) == 1 && opts.AllowScalarBias:
		opts.logger().Warn("broadcasting scalar bias to all output channels",
			"layer", s.Name, "kind", s.Kind.String(), "channels", out, "value", blob.Data[0])
		for i := range dst {
			dst[i] = blob.Data[0]
		}
	default:
		return WeightBuffer{}, weightMismatch("bias blob has %d values, want %d", len(blob.Data), out)
	}
	return WeightBuffer{Data: dst, Shape: []int{out}}, nil
}
