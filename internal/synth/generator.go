package synth

import (
	"fmt"
	"math"

	exprand "golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/MeKo-Tech/caffebridge/internal/source"
)

// Options controls generated snapshots.
type Options struct {
	// Seed makes weights and inputs reproducible.
	Seed uint64
	// Batch is the number of samples in the recorded forward pass.
	Batch int
	// ChannelDivisor scales every channel and output count down from the
	// full-size topology. Only used by CaffeNet.
	ChannelDivisor int
	// InputSize is the spatial input size. Only used by CaffeNet.
	InputSize int
}

// DefaultOptions returns a one-sample, 1/8-width CaffeNet at 227x227.
func DefaultOptions() Options {
	return Options{Seed: 1, Batch: 1, ChannelDivisor: 8, InputSize: 227}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Batch < 1 {
		o.Batch = d.Batch
	}
	if o.ChannelDivisor < 1 {
		o.ChannelDivisor = d.ChannelDivisor
	}
	if o.InputSize < 1 {
		o.InputSize = d.InputSize
	}
	return o
}

// builder appends layers and runs the reference pass as it goes, so
// parameter blobs can be sized from the actual incoming shape.
type builder struct {
	net *source.Net
	src exprand.Source
	cur source.Blob
	err error
}

func newBuilder(name string, seed uint64, shape []int) *builder {
	b := &builder{net: &source.Net{Name: name}, src: exprand.NewSource(seed)}
	n := 1
	for _, d := range shape {
		n *= d
	}
	data := uniform(b.src, n, 0, 1)
	b.cur = source.Blob{Shape: shape, Data: data}
	b.net.Layers = append(b.net.Layers, source.LayerRecord{
		Name: "data",
		Type: "Input",
		Top:  &source.Blob{Shape: append([]int(nil), shape...), Data: data},
	})
	return b
}

func uniform(src exprand.Source, n int, lo, hi float64) []float32 {
	dist := distuv.Uniform{Min: lo, Max: hi, Src: src}
	out := make([]float32, n)
	for i := range out {
		out[i] = float32(dist.Rand())
	}
	return out
}

// fanIn draws n weights uniformly in +-1/sqrt(fan).
func (b *builder) fanIn(n, fan int) []float32 {
	lim := 1 / math.Sqrt(float64(fan))
	return uniform(b.src, n, -lim, lim)
}

func (b *builder) add(rec source.LayerRecord) *builder {
	if b.err != nil {
		return b
	}
	out, err := ForwardLayer(&rec, b.cur)
	if err != nil {
		b.err = fmt.Errorf("layer %q: %w", rec.Name, err)
		return b
	}
	rec.Bottom = &source.Blob{Shape: append([]int(nil), b.cur.Shape...), Data: b.cur.Data}
	rec.Top = &out
	b.net.Layers = append(b.net.Layers, rec)
	b.cur = out
	return b
}

func (b *builder) channels() int {
	if len(b.cur.Shape) < 2 {
		return 1
	}
	return b.cur.Shape[1]
}

func (b *builder) sampleCount() int {
	n := 1
	for _, d := range b.cur.Shape[1:] {
		n *= d
	}
	return n
}

func (b *builder) conv(name string, out, k, stride, pad, group int) *builder {
	perGroup := b.channels() / max(group, 1)
	rec := source.LayerRecord{
		Name: name,
		Type: "Convolution",
		Blobs: []source.Blob{
			{Shape: []int{out, perGroup, k, k}, Data: b.fanIn(out*perGroup*k*k, perGroup*k*k)},
			{Shape: []int{out}, Data: b.fanIn(out, perGroup*k*k)},
		},
		Convolution: &source.ConvolutionParam{NumOutput: &out, KernelSize: []int{k}},
	}
	if stride != 1 {
		rec.Convolution.Stride = []int{stride}
	}
	if pad != 0 {
		rec.Convolution.Pad = []int{pad}
	}
	if group != 1 {
		rec.Convolution.Group = &group
	}
	return b.add(rec)
}

func (b *builder) fc(name string, out int) *builder {
	in := b.sampleCount()
	return b.add(source.LayerRecord{
		Name: name,
		Type: "InnerProduct",
		Blobs: []source.Blob{
			{Shape: []int{out, in}, Data: b.fanIn(out*in, in)},
			{Shape: []int{out}, Data: b.fanIn(out, in)},
		},
		InnerProduct: &source.InnerProductParam{NumOutput: &out},
	})
}

func (b *builder) pool(name, method string, k, stride int) *builder {
	return b.add(source.LayerRecord{
		Name:    name,
		Type:    "Pooling",
		Pooling: &source.PoolingParam{Pool: method, KernelSize: &k, Stride: &stride},
	})
}

func (b *builder) lrn(name string, size int, alpha, beta float32) *builder {
	return b.add(source.LayerRecord{
		Name: name,
		Type: "LRN",
		LRN:  &source.LRNParam{LocalSize: &size, Alpha: &alpha, Beta: &beta},
	})
}

func (b *builder) simple(name, typ string) *builder {
	return b.add(source.LayerRecord{Name: name, Type: typ})
}

func (b *builder) dropout(name string, ratio float32) *builder {
	return b.add(source.LayerRecord{Name: name, Type: "Dropout", Dropout: &source.DropoutParam{DropoutRatio: ratio}})
}

func (b *builder) build() (*source.Net, error) {
	if b.err != nil {
		return nil, b.err
	}
	return b.net, nil
}

// CaffeNet generates the CaffeNet topology with channel counts divided by
// opts.ChannelDivisor.
func CaffeNet(opts Options) (*source.Net, error) {
	o := opts.normalized()
	d := o.ChannelDivisor
	ch := func(n int) int { return max(n/d, 2) }
	// grouped layers need even channel counts
	even := func(n int) int { return ch(n) + ch(n)%2 }

	b := newBuilder(fmt.Sprintf("caffenet-d%d", d), o.Seed, []int{o.Batch, 3, o.InputSize, o.InputSize})
	b.conv("conv1", even(96), 11, 4, 0, 1).
		simple("relu1", "ReLU").
		pool("pool1", "MAX", 3, 2).
		lrn("norm1", 5, 1e-4, 0.75).
		conv("conv2", even(256), 5, 1, 2, 2).
		simple("relu2", "ReLU").
		pool("pool2", "MAX", 3, 2).
		lrn("norm2", 5, 1e-4, 0.75).
		conv("conv3", even(384), 3, 1, 1, 1).
		simple("relu3", "ReLU").
		conv("conv4", even(384), 3, 1, 1, 2).
		simple("relu4", "ReLU").
		conv("conv5", even(256), 3, 1, 1, 2).
		simple("relu5", "ReLU").
		pool("pool5", "MAX", 3, 2).
		fc("fc6", ch(4096)).
		simple("relu6", "ReLU").
		dropout("drop6", 0.5).
		fc("fc7", ch(4096)).
		simple("relu7", "ReLU").
		dropout("drop7", 0.5).
		fc("fc8", ch(1000)).
		simple("prob", "Softmax")
	return b.build()
}

// Tiny generates a small network touching every supported layer kind,
// including a grouped convolution and both pooling methods.
func Tiny(opts Options) (*source.Net, error) {
	o := opts.normalized()
	b := newBuilder("tiny", o.Seed, []int{o.Batch, 4, 8, 8})
	b.conv("conv1", 6, 3, 1, 1, 2).
		add(source.LayerRecord{Name: "relu1", Type: "ReLU", ReLU: &source.ReLUParam{NegativeSlope: 0.1}}).
		lrn("norm1", 3, 1e-2, 0.75).
		pool("pool1", "MAX", 2, 2).
		conv("conv2", 4, 3, 1, 0, 1).
		simple("sig", "Sigmoid").
		pool("pool2", "AVE", 2, 1).
		fc("fc1", 5).
		simple("tanh", "TanH").
		dropout("drop", 0.5).
		fc("fc2", 3).
		simple("prob", "Softmax")
	return b.build()
}

// Generate returns the named topology: "caffenet" or "tiny".
func Generate(topology string, opts Options) (*source.Net, error) {
	switch topology {
	case "caffenet":
		return CaffeNet(opts)
	case "tiny":
		return Tiny(opts)
	default:
		return nil, fmt.Errorf("unknown topology %q (want caffenet or tiny)", topology)
	}
}

// Topologies lists the names accepted by Generate.
func Topologies() []string { return []string{"caffenet", "tiny"} }
