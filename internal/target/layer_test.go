package target

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

func seq(n int, start float32) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = start + float32(i)
	}
	return out
}

func fill(buf []float32, v float32) {
	for i := range buf {
		buf[i] = v
	}
}

func run(t *testing.T, l Layer, input []float32) []float32 {
	t.Helper()
	require.NoError(t, l.SetInData(input))
	require.NoError(t, l.Forward())
	return Flatten(l.Output())
}

func TestPadding(t *testing.T) {
	assert.Equal(t, 0, Valid.Pad(11))
	assert.Equal(t, 5, Same.Pad(11))
	assert.Equal(t, 1, Same.Pad(4))
	assert.Equal(t, "valid", Valid.String())
	assert.Equal(t, "same", Same.String())
	assert.Equal(t, "unknown", Padding(9).String())
}

func TestConvolution_Valid(t *testing.T) {
	c, err := NewConvolution(ConvParams{
		InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 2, KernelH: 2,
		OutChannels: 1, HasBias: true,
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.MustShape(1, 1, 2, 2), c.OutShape())
	assert.Equal(t, "conv", c.Type())

	w := c.Weights()
	require.Len(t, w, 2)
	fill(w[0], 1)
	w[1][0] = 1

	got := run(t, c, seq(9, 1))
	assert.InDeltaSlice(t, []float32{13, 17, 25, 29}, got, 1e-6)
}

func TestConvolution_Same(t *testing.T) {
	c, err := NewConvolution(ConvParams{
		InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 3, KernelH: 3,
		OutChannels: 1, Padding: Same,
	})
	require.NoError(t, err)
	assert.Equal(t, c.InShape(), c.OutShape())
	require.Len(t, c.Weights(), 1)
	fill(c.Weights()[0], 1)

	got := run(t, c, seq(9, 1))
	assert.InDelta(t, 12, got[0], 1e-6)
	assert.InDelta(t, 45, got[4], 1e-6)
	assert.InDelta(t, 28, got[8], 1e-6)
}

func TestConvolution_Stride(t *testing.T) {
	c, err := NewConvolution(ConvParams{
		InShape: tensor.MustShape(2, 1, 5, 5), KernelW: 3, KernelH: 3,
		OutChannels: 2, StrideW: 2, StrideH: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.MustShape(2, 2, 2, 2), c.OutShape())
	// channel 1 picks the window center
	c.Weights()[0][c.WeightIndex(1, 0, 1, 1)] = 1

	in := append(seq(25, 0), seq(25, 100)...)
	got := run(t, c, in)
	require.Len(t, got, 16)
	assert.Equal(t, []float32{0, 0, 0, 0}, got[0:4])
	assert.InDeltaSlice(t, []float32{6, 8, 16, 18}, got[4:8], 1e-6)
	assert.InDeltaSlice(t, []float32{106, 108, 116, 118}, got[12:16], 1e-6)
}

func TestConvolution_GroupedIgnoresDisconnectedWeights(t *testing.T) {
	tbl, err := NewGroupedTable(2, 2, 2)
	require.NoError(t, err)
	c, err := NewConvolution(ConvParams{
		InShape: tensor.MustShape(1, 2, 2, 2), KernelW: 1, KernelH: 1,
		OutChannels: 2, Table: tbl,
	})
	require.NoError(t, err)
	w := c.Weights()[0]
	fill(w, 100)
	w[c.WeightIndex(0, 0, 0, 0)] = 1
	w[c.WeightIndex(1, 1, 0, 0)] = 1

	in := []float32{1, 1, 1, 1, 2, 2, 2, 2}
	got := run(t, c, in)
	assert.InDeltaSlice(t, in, got, 1e-6)
}

func TestConvolution_Errors(t *testing.T) {
	tbl, err := NewGroupedTable(2, 4, 4)
	require.NoError(t, err)

	tests := []struct {
		name string
		p    ConvParams
	}{
		{name: "no outputs", p: ConvParams{InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 1, KernelH: 1}},
		{name: "kernel too large", p: ConvParams{InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 5, KernelH: 5, OutChannels: 1}},
		{name: "zero kernel", p: ConvParams{InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 0, KernelH: 1, OutChannels: 1}},
		{name: "table mismatch", p: ConvParams{InShape: tensor.MustShape(1, 2, 3, 3), KernelW: 1, KernelH: 1, OutChannels: 4, Table: tbl}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewConvolution(tt.p)
			assert.Error(t, err)
		})
	}
}

func TestLayer_InputChecks(t *testing.T) {
	c, err := NewConvolution(ConvParams{
		InShape: tensor.MustShape(1, 1, 3, 3), KernelW: 1, KernelH: 1, OutChannels: 1,
	})
	require.NoError(t, err)
	assert.ErrorIs(t, c.Forward(), ErrNoInput)
	assert.Error(t, c.SetInData(make([]float32, 8)))
}

func TestOutput_PerChannel(t *testing.T) {
	a, err := NewActivation(tensor.MustShape(2, 3, 2, 2), Identity, 0)
	require.NoError(t, err)
	require.NoError(t, a.SetInData(seq(24, 0)))
	require.NoError(t, a.Forward())

	out := a.Output()
	require.Len(t, out, 6)
	for i, ch := range out {
		assert.Equal(t, seq(4, float32(i*4)), ch)
	}
}

func TestPooling(t *testing.T) {
	tests := []struct {
		method PoolMethod
		typ    string
		want   []float32
	}{
		{method: MaxPool, typ: "max-pool", want: []float32{5, 7, 13, 15}},
		{method: AveragePool, typ: "ave-pool", want: []float32{2.5, 4.5, 10.5, 12.5}},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			p, err := NewPooling(PoolParams{
				InShape: tensor.MustShape(1, 1, 4, 4), Method: tt.method,
				KernelW: 2, KernelH: 2, StrideW: 2, StrideH: 2,
			})
			require.NoError(t, err)
			assert.Equal(t, tt.typ, p.Type())
			assert.Nil(t, p.Weights())
			assert.Equal(t, tensor.MustShape(1, 1, 2, 2), p.OutShape())
			assert.InDeltaSlice(t, tt.want, run(t, p, seq(16, 0)), 1e-6)
		})
	}
}

func TestPooling_OverlappingWindows(t *testing.T) {
	p, err := NewPooling(PoolParams{
		InShape: tensor.MustShape(1, 2, 5, 5), Method: MaxPool,
		KernelW: 3, KernelH: 3, StrideW: 2, StrideH: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, tensor.MustShape(1, 2, 2, 2), p.OutShape())
	got := run(t, p, seq(50, 0))
	assert.InDeltaSlice(t, []float32{12, 14, 22, 24, 37, 39, 47, 49}, got, 1e-6)
}

func TestPooling_SameAverageCountsPadding(t *testing.T) {
	p, err := NewPooling(PoolParams{
		InShape: tensor.MustShape(1, 1, 3, 3), Method: AveragePool,
		KernelW: 3, KernelH: 3, Padding: Same,
	})
	require.NoError(t, err)
	in := make([]float32, 9)
	fill(in, 9)
	got := run(t, p, in)
	// corner window covers 4 real cells out of 9
	assert.InDelta(t, 4, got[0], 1e-6)
	assert.InDelta(t, 9, got[4], 1e-6)
}

func TestFullyConnected(t *testing.T) {
	fc, err := NewFullyConnected(tensor.MustShape(1, 3, 1, 1), 2, true)
	require.NoError(t, err)
	assert.Equal(t, "fully-connected", fc.Type())
	assert.True(t, fc.HasBias())
	assert.Equal(t, tensor.MustShape(1, 2, 1, 1), fc.OutShape())

	w := fc.Weights()
	require.Len(t, w, 2)
	copy(w[0], []float32{1, 0, 0, 1, 1, 1})
	copy(w[1], []float32{0.5, -1})

	got := run(t, fc, []float32{1, 2, 3})
	assert.InDeltaSlice(t, []float32{4.5, 4}, got, 1e-6)
}

func TestFullyConnected_FlattensSpatialInput(t *testing.T) {
	fc, err := NewFullyConnected(tensor.MustShape(2, 2, 2, 1), 1, false)
	require.NoError(t, err)
	require.Len(t, fc.Weights(), 1)
	fill(fc.Weights()[0], 1)

	got := run(t, fc, seq(8, 1))
	assert.InDeltaSlice(t, []float32{10, 26}, got, 1e-6)
}

func TestActivation(t *testing.T) {
	in := []float32{-2, -0.5, 0, 1.5}
	tests := []struct {
		fn    ActivationFunc
		slope float32
		want  []float32
	}{
		{fn: Identity, want: in},
		{fn: ReLU, want: []float32{0, 0, 0, 1.5}},
		{fn: LeakyReLU, slope: 0.1, want: []float32{-0.2, -0.05, 0, 1.5}},
		{fn: Sigmoid, want: []float32{0.11920292, 0.37754067, 0.5, 0.81757448}},
		{fn: TanH, want: []float32{-0.96402758, -0.46211716, 0, 0.90514825}},
	}
	for _, tt := range tests {
		t.Run(tt.fn.String(), func(t *testing.T) {
			a, err := NewActivation(tensor.MustShape(1, 4, 1, 1), tt.fn, tt.slope)
			require.NoError(t, err)
			assert.Equal(t, tt.fn.String(), a.Type())
			assert.InDeltaSlice(t, tt.want, run(t, a, in), 1e-6)
		})
	}

	_, err := NewActivation(tensor.MustShape(1, 1, 1, 1), ActivationFunc(42), 0)
	assert.Error(t, err)
}

func TestLRN(t *testing.T) {
	l, err := NewLRN(LRNParams{InShape: tensor.MustShape(1, 3, 1, 1), LocalSize: 3, Alpha: 3, Beta: 1, K: 1})
	require.NoError(t, err)
	got := run(t, l, []float32{1, 2, 3})
	assert.InDeltaSlice(t, []float32{1.0 / 6, 2.0 / 15, 3.0 / 14}, got, 1e-6)

	_, err = NewLRN(LRNParams{InShape: tensor.MustShape(1, 3, 1, 1), LocalSize: 4})
	assert.Error(t, err)
}

func TestSoftmax(t *testing.T) {
	s, err := NewSoftmax(tensor.MustShape(1, 3, 1, 2))
	require.NoError(t, err)
	got := run(t, s, []float32{1, 5, 1, 5, 1, 5})
	for _, v := range got {
		assert.InDelta(t, 1.0/3, v, 1e-6)
	}

	s, err = NewSoftmax(tensor.MustShape(1, 2, 1, 1))
	require.NoError(t, err)
	got = run(t, s, []float32{0, float32(math.Log(3))})
	assert.InDeltaSlice(t, []float32{0.25, 0.75}, got, 1e-6)
}
