package dsp

import (
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var approx = cmpopts.EquateApprox(0, 1e-9)

func TestToFloat64(t *testing.T) {
	assert.Equal(t, []float64{0, 4095, 12}, ToFloat64([]uint16{0, 4095, 12}))
	assert.Empty(t, ToFloat64(nil))
}

func TestMovingAverage_ConstantInputUnchanged(t *testing.T) {
	for _, w := range []int{2, 3, 4, 5, 9} {
		for _, n := range []int{w, w + 1, 50} {
			data := make([]float64, n)
			for i := range data {
				data[i] = 2048
			}
			got := MovingAverage(data, w)
			require.Len(t, got, n, "w=%d n=%d", w, n)
			for i, v := range got {
				assert.InDelta(t, 2048.0, v, 1e-9, "w=%d n=%d i=%d", w, n, i)
			}
		}
	}
}

func TestMovingAverage_ReflectPadding(t *testing.T) {
	data := []float64{1, 2, 3, 4, 5, 6}
	// padded with w=5: 3 2 | 1 2 3 4 5 6 | 5 4
	want := []float64{
		(3 + 2 + 1 + 2 + 3) / 5.0,
		(2 + 1 + 2 + 3 + 4) / 5.0,
		(1 + 2 + 3 + 4 + 5) / 5.0,
		(2 + 3 + 4 + 5 + 6) / 5.0,
		(3 + 4 + 5 + 6 + 5) / 5.0,
		(4 + 5 + 6 + 5 + 4) / 5.0,
	}
	if diff := cmp.Diff(want, MovingAverage(data, 5), approx); diff != "" {
		t.Errorf("MovingAverage mismatch (-want +got):\n%s", diff)
	}
}

func TestMovingAverage_EvenWindowKeepsLength(t *testing.T) {
	data := []float64{0, 4, 8, 12}
	// w=4 pads two on the left and one on the right: 8 4 | 0 4 8 12 | 8
	want := []float64{(8 + 4 + 0 + 4) / 4.0, (4 + 0 + 4 + 8) / 4.0, (0 + 4 + 8 + 12) / 4.0, (4 + 8 + 12 + 8) / 4.0}
	if diff := cmp.Diff(want, MovingAverage(data, 4), approx); diff != "" {
		t.Errorf("MovingAverage mismatch (-want +got):\n%s", diff)
	}
}

func TestMovingAverage_ShortInputReturnedUnchanged(t *testing.T) {
	data := []float64{10, 20, 30}
	got := MovingAverage(data, DefaultWindow)
	assert.Equal(t, data, got)

	got[0] = -1
	assert.Equal(t, 10.0, data[0], "result must not alias the input")

	assert.Equal(t, data, MovingAverage(data, 1))
	assert.Empty(t, MovingAverage(nil, DefaultWindow))
}

func TestMovingAverage_DoesNotMutateInput(t *testing.T) {
	data := []float64{5, 1, 9, 3, 7, 2}
	orig := append([]float64(nil), data...)
	MovingAverage(data, 3)
	assert.Equal(t, orig, data)
}

func TestDerivative_Linear(t *testing.T) {
	got := Derivative([]float64{0, 1, 2, 3}, []float64{0, 10, 20, 30})
	assert.Equal(t, []float64{10, 10, 10}, got)
	assert.Equal(t, []float64{1, 2, 3}, DerivativeTimes([]float64{0, 1, 2, 3}))
}

func TestDerivative_DuplicateTimestampClamped(t *testing.T) {
	got := Derivative([]float64{0, 0.5, 0.5, 1}, []float64{0, 5, 7, 12})
	require.Len(t, got, 3)
	assert.Equal(t, 10.0, got[0])
	assert.Equal(t, 0.0, got[1])
	assert.Equal(t, 10.0, got[2])
	for _, v := range got {
		assert.False(t, math.IsInf(v, 0) || math.IsNaN(v))
	}
}

func TestDerivative_TooShort(t *testing.T) {
	assert.Nil(t, Derivative([]float64{1}, []float64{1}))
	assert.Nil(t, Derivative(nil, nil))
	assert.Nil(t, DerivativeTimes([]float64{1}))
}

func TestDerivative_UnequalLengthsTruncate(t *testing.T) {
	got := Derivative([]float64{0, 1, 2}, []float64{0, 2, 4, 6, 8})
	assert.Equal(t, []float64{2, 2}, got)
}

func TestGradient(t *testing.T) {
	tm := []float64{0, 1, 2, 4}
	v := []float64{0, 10, 30, 50}
	// ends one-sided, interior centred over the two neighbours
	want := []float64{10, 15, 40.0 / 3.0, 10}
	if diff := cmp.Diff(want, Gradient(tm, v), approx); diff != "" {
		t.Errorf("Gradient mismatch (-want +got):\n%s", diff)
	}

	two := Gradient([]float64{0, 2}, []float64{1, 5})
	assert.Equal(t, []float64{2, 2}, two)

	assert.Equal(t, []float64{0, 0, 0}, Gradient([]float64{1, 1, 1}, []float64{1, 2, 3}))
	assert.Nil(t, Gradient([]float64{0}, []float64{0}))
}
