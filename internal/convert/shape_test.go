package convert

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/source"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

func TestScenarioA_ConvShape(t *testing.T) {
	rec := convRecord(96, source.ConvolutionParam{KernelSize: []int{11, 11}, Stride: []int{4, 4}, Pad: []int{0, 0}, Group: intp(1)})
	s, err := Normalize(rec, tensor.MustShape(1, 3, 227, 227))
	require.NoError(t, err)

	observed := tensor.MustShape(1, 96, 55, 55)
	s, err = ResolveShape(s, &observed)
	require.NoError(t, err)
	assert.Equal(t, tensor.MustShape(1, 96, 55, 55), s.OutputShape)
}

func TestInferShape_PerKind(t *testing.T) {
	tests := []struct {
		name string
		rec  source.LayerRecord
		in   tensor.Shape
		want tensor.Shape
	}{
		{
			name: "pool1",
			rec:  source.LayerRecord{Type: "Pooling", Pooling: &source.PoolingParam{KernelSize: intp(3), Stride: intp(2)}},
			in:   tensor.MustShape(1, 96, 55, 55),
			want: tensor.MustShape(1, 96, 27, 27),
		},
		{
			name: "conv2 grouped same",
			rec:  *convRecord(256, source.ConvolutionParam{KernelSize: []int{5}, Pad: []int{2}, Group: intp(2)}),
			in:   tensor.MustShape(1, 96, 27, 27),
			want: tensor.MustShape(1, 256, 27, 27),
		},
		{
			name: "fc6",
			rec:  source.LayerRecord{Type: "InnerProduct", InnerProduct: &source.InnerProductParam{NumOutput: intp(4096)}},
			in:   tensor.MustShape(1, 256, 6, 6),
			want: tensor.MustShape(1, 4096, 1, 1),
		},
		{
			name: "relu propagates",
			rec:  source.LayerRecord{Type: "ReLU"},
			in:   tensor.MustShape(2, 96, 55, 55),
			want: tensor.MustShape(2, 96, 55, 55),
		},
		{
			name: "global pooling",
			rec:  source.LayerRecord{Type: "Pooling", Pooling: &source.PoolingParam{Pool: "AVE", GlobalPooling: true}},
			in:   tensor.MustShape(1, 1024, 7, 7),
			want: tensor.MustShape(1, 1024, 1, 1),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Normalize(&tt.rec, tt.in)
			require.NoError(t, err)
			got, err := InferShape(s)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestInferShape_WindowLargerThanInput(t *testing.T) {
	s := convSpec(tensor.MustShape(1, 1, 4, 4), 1, 7, 1, 0, 1, false)
	_, err := InferShape(s)
	assert.ErrorIs(t, err, ErrMalformedParameters)
}

func TestResolveShape_Mismatch(t *testing.T) {
	rec := convRecord(96, source.ConvolutionParam{KernelSize: []int{11}, Stride: []int{4}})
	s, err := Normalize(rec, tensor.MustShape(1, 3, 227, 227))
	require.NoError(t, err)

	observed := tensor.MustShape(1, 96, 56, 56)
	_, err = ResolveShape(s, &observed)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrShapeInferenceMismatch)
	assert.Contains(t, err.Error(), "(1,96,55,55)")
	assert.Contains(t, err.Error(), "(1,96,56,56)")
}

func TestResolveShape_NoObservation(t *testing.T) {
	s, err := Normalize(&source.LayerRecord{Type: "TanH"}, tensor.MustShape(1, 4, 2, 2))
	require.NoError(t, err)
	s, err = ResolveShape(s, nil)
	require.NoError(t, err)
	assert.Equal(t, s.InputShape, s.OutputShape)
}

func TestSamePaddingPreservesShapeAtUnitStride(t *testing.T) {
	for _, k := range []int{1, 3, 5, 7, 11} {
		in := tensor.MustShape(1, 3, 13, 17)
		s := convSpec(in, 3, k, 1, (k-1)/2, 1, true)
		assert.Equal(t, in, s.OutputShape, "kernel %d", k)
	}
}

func TestInferShape_FormulaProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("conv output matches floor((in+2p-k)/s)+1", prop.ForAll(
		func(h, w, k, stride, out int, same bool) bool {
			pad := 0
			if same {
				pad = (k - 1) / 2
			}
			if h+2*pad < k || w+2*pad < k {
				return true
			}
			rec := convRecord(out, source.ConvolutionParam{KernelSize: []int{k}, Stride: []int{stride}, Pad: []int{pad}})
			in := tensor.MustShape(1, 3, h, w)
			s, err := Normalize(rec, in)
			if err != nil {
				return false
			}
			s, err = ResolveShape(s, nil)
			if err != nil {
				return false
			}
			want := tensor.Shape{1, out, (h+2*pad-k)/stride + 1, (w+2*pad-k)/stride + 1}
			return s.OutputShape == want
		},
		gen.IntRange(1, 64),
		gen.IntRange(1, 64),
		gen.IntRange(1, 11),
		gen.IntRange(1, 5),
		gen.IntRange(1, 32),
		gen.Bool(),
	))

	properties.Property("pooling keeps channels and follows the same formula", prop.ForAll(
		func(c, h, k, stride int) bool {
			if h < k {
				return true
			}
			rec := &source.LayerRecord{Type: "Pooling", Pooling: &source.PoolingParam{KernelSize: intp(k), Stride: intp(stride)}}
			s, err := Normalize(rec, tensor.MustShape(2, c, h, h))
			if err != nil {
				return false
			}
			got, err := InferShape(s)
			if err != nil {
				return false
			}
			n := (h-k)/stride + 1
			return got == tensor.Shape{2, c, n, n}
		},
		gen.IntRange(1, 16),
		gen.IntRange(1, 64),
		gen.IntRange(1, 7),
		gen.IntRange(1, 4),
	))

	properties.TestingRun(t)
}
