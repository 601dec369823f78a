package validate

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MeKo-Tech/caffebridge/internal/convert"
	"github.com/MeKo-Tech/caffebridge/internal/target"
	"github.com/MeKo-Tech/caffebridge/internal/tensor"
)

func identityLayer(t *testing.T, input []float32) target.Layer {
	t.Helper()
	l, err := target.NewActivation(tensor.MustShape(1, len(input), 1, 1), target.Identity, 0)
	require.NoError(t, err)
	require.NoError(t, l.SetInData(input))
	return l
}

func TestScenarioD_SingleElementMismatch(t *testing.T) {
	want := []float32{0.1, 0.2, 0.3, 0.4, 0.5}
	got := append([]float32(nil), want...)
	got[3] += 2e-4

	v := New(1e-4, StrictPolicy())
	verdict, err := v.Validate(convert.Convolution, identityLayer(t, got), want)
	require.NoError(t, err)

	assert.Equal(t, Mismatched, verdict.Status)
	assert.InDelta(t, 2e-4, verdict.Diff.MaxDiff, 1e-6)
	assert.Equal(t, 3, verdict.Diff.FirstIndex)
	assert.Equal(t, 3, verdict.Diff.MaxIndex)
	assert.Equal(t, 1, verdict.Diff.Over)
	assert.ErrorIs(t, verdict.Err(), ErrValidationMismatch)
	assert.Contains(t, verdict.String(), "first_offending_index=3")
}

func TestCompare(t *testing.T) {
	tests := []struct {
		name      string
		got, want []float32
		first     int
		over      int
		maxIndex  int
	}{
		{name: "identical", got: []float32{1, 2, 3}, want: []float32{1, 2, 3}, first: -1},
		{name: "within threshold", got: []float32{1, 2.00005, 3}, want: []float32{1, 2, 3}, first: -1, maxIndex: 1},
		{name: "first offender reported", got: []float32{1, 2.5, 4}, want: []float32{1, 2, 3}, first: 1, over: 2, maxIndex: 2},
		{name: "empty", first: -1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, err := Compare(tt.got, tt.want, 1e-4)
			require.NoError(t, err)
			assert.Equal(t, tt.first, d.FirstIndex)
			assert.Equal(t, tt.over, d.Over)
			assert.Equal(t, tt.maxIndex, d.MaxIndex)
			assert.Equal(t, len(tt.got), d.Total)
			assert.Equal(t, tt.first >= 0, d.Exceeds())
		})
	}
}

func TestCompare_NaN(t *testing.T) {
	nan := float32(0)
	nan /= nan
	d, err := Compare([]float32{1, nan}, []float32{1, 1}, 1e-4)
	require.NoError(t, err)
	assert.True(t, d.Exceeds())
	assert.Equal(t, 1, d.FirstIndex)
}

func TestCompare_LengthMismatch(t *testing.T) {
	_, err := Compare([]float32{1, 2}, []float32{1}, 1e-4)
	assert.ErrorIs(t, err, ErrLengthMismatch)

	v := New(0, StrictPolicy())
	_, err = v.Validate(convert.Activation, identityLayer(t, []float32{1, 2}), []float32{1})
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestValidator_DefaultThreshold(t *testing.T) {
	v := New(0, StrictPolicy())
	assert.InDelta(t, DefaultThreshold, v.Threshold, 0)
}

func TestValidator_ExemptStillCompares(t *testing.T) {
	want := []float32{1, 2, 3}
	got := []float32{1, 2.1, 3}

	lenient := New(1e-4, LenientPolicy())
	verdict, err := lenient.Validate(convert.Convolution, identityLayer(t, got), want)
	require.NoError(t, err)
	assert.Equal(t, Exempt, verdict.Status)
	assert.Equal(t, "lenient/v1", verdict.PolicyVersion)
	assert.InDelta(t, 0.1, verdict.Diff.MaxDiff, 1e-6)
	assert.Equal(t, 1, verdict.Diff.FirstIndex)
	assert.NoError(t, verdict.Err())

	strict := New(1e-4, StrictPolicy())
	verdict, err = strict.Validate(convert.Convolution, identityLayer(t, got), want)
	require.NoError(t, err)
	assert.Equal(t, Mismatched, verdict.Status)
}

func TestValidator_Verified(t *testing.T) {
	v := New(1e-4, LenientPolicy())
	verdict, err := v.Validate(convert.Pooling, identityLayer(t, []float32{4, 5}), []float32{4, 5})
	require.NoError(t, err)
	assert.Equal(t, Verified, verdict.Status)
	assert.Contains(t, verdict.String(), "verified")
}

func TestValidator_ForwardError(t *testing.T) {
	l, err := target.NewSoftmax(tensor.MustShape(1, 2, 1, 1))
	require.NoError(t, err)
	_, err = New(0, StrictPolicy()).Validate(convert.Softmax, l, []float32{0.5, 0.5})
	assert.ErrorIs(t, err, target.ErrNoInput)
}

func TestValidator_Idempotent(t *testing.T) {
	want := []float32{1, 2, 3}
	wantCopy := append([]float32(nil), want...)
	l := identityLayer(t, []float32{1, 2, 3.5})
	v := New(1e-4, StrictPolicy())

	first, err := v.Validate(convert.Activation, l, want)
	require.NoError(t, err)
	second, err := v.Validate(convert.Activation, l, want)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, wantCopy, want)
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "verified", Verified.String())
	assert.Equal(t, "mismatched", Mismatched.String())
	assert.Equal(t, "exempt", Exempt.String())
	assert.Equal(t, "Status(7)", Status(7).String())
}

func TestDiff_MarshalJSON(t *testing.T) {
	b, err := json.Marshal(Diff{MaxDiff: 0.5, MaxIndex: 2, FirstIndex: 2, Over: 1, Total: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_diff":0.5,"max_index":2,"first_index":2,"over":1,"total":4}`, string(b))

	b, err = json.Marshal(Diff{MaxDiff: math.Inf(1), MaxIndex: 1, FirstIndex: 1, Over: 1, Total: 2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"max_diff":"+Inf","max_index":1,"first_index":1,"over":1,"total":2}`, string(b))
}

func TestDiff_UnmarshalJSON(t *testing.T) {
	var d Diff
	require.NoError(t, json.Unmarshal([]byte(`{"max_diff":"+Inf","max_index":1,"first_index":1,"over":1,"total":2}`), &d))
	assert.True(t, math.IsInf(d.MaxDiff, 1))
	assert.Equal(t, 1, d.FirstIndex)
	assert.Equal(t, 2, d.Total)

	require.NoError(t, json.Unmarshal([]byte(`{"max_diff":0.25,"max_index":0,"first_index":-1,"over":0,"total":3}`), &d))
	assert.InDelta(t, 0.25, d.MaxDiff, 0)
	assert.Equal(t, -1, d.FirstIndex)

	assert.Error(t, json.Unmarshal([]byte(`{"max_diff":"lots"}`), &d))
}

func TestStatus_UnmarshalText(t *testing.T) {
	var s Status
	require.NoError(t, s.UnmarshalText([]byte("exempt")))
	assert.Equal(t, Exempt, s)
	assert.Error(t, s.UnmarshalText([]byte("maybe")))
}
