// Package dsp holds the pure signal-processing functions applied to buffer
// snapshots: smoothing and rate of change. Nothing here keeps state or
// modifies its inputs.
package dsp

import (
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// DefaultWindow is the moving-average width in samples.
const DefaultWindow = 5

// ToFloat64 converts raw ADC values for the float routines below.
func ToFloat64(values []uint16) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = float64(v)
	}
	return out
}

// MovingAverage smooths data with a uniform window of w samples. The input is
// extended at both ends by reflection about the edge sample (d c b | a b c d |
// c b a) so the output has the same length as the input and constant inputs
// come back unchanged. For even w the extra sample goes on the left. Inputs
// shorter than w, or w <= 1, are returned as a copy.
func MovingAverage(data []float64, w int) []float64 {
	out := make([]float64, len(data))
	if w <= 1 || len(data) < w {
		copy(out, data)
		return out
	}

	left := w / 2
	right := w - 1 - left
	padded := reflectPad(data, left, right)
	for i := range out {
		out[i] = stat.Mean(padded[i:i+w], nil)
	}
	return out
}

// reflectPad mirrors data about its end samples without repeating them.
// Both pads must be shorter than len(data).
func reflectPad(data []float64, left, right int) []float64 {
	n := len(data)
	padded := make([]float64, 0, n+left+right)
	for j := left; j >= 1; j-- {
		padded = append(padded, data[j])
	}
	padded = append(padded, data...)
	for j := 1; j <= right; j++ {
		padded = append(padded, data[n-1-j])
	}
	return padded
}

// Derivative returns the forward difference (v[i+1]-v[i]) / (t[i+1]-t[i]),
// one element shorter than its inputs. Pair it with DerivativeTimes for the
// matching time axis. A zero time step yields 0 rather than an infinity.
// Inputs of unequal length are truncated to the shorter one; fewer than two
// points yield nil.
func Derivative(t, v []float64) []float64 {
	n := min(len(t), len(v))
	if n < 2 {
		return nil
	}

	dv := make([]float64, n-1)
	dt := make([]float64, n-1)
	floats.SubTo(dv, v[1:n], v[:n-1])
	floats.SubTo(dt, t[1:n], t[:n-1])
	return safeDiv(dv, dt)
}

// DerivativeTimes returns the time axis for Derivative: every timestamp but
// the first.
func DerivativeTimes(t []float64) []float64 {
	if len(t) < 2 {
		return nil
	}
	out := make([]float64, len(t)-1)
	copy(out, t[1:])
	return out
}

// Gradient returns a centred estimate of dv/dt with the same length as its
// inputs: (v[i+1]-v[i-1]) / (t[i+1]-t[i-1]) inside, one-sided differences at
// the ends. It shares the input time axis, which suits plotting rates next to
// the raw trace. Zero time steps yield 0.
func Gradient(t, v []float64) []float64 {
	n := min(len(t), len(v))
	if n < 2 {
		return nil
	}

	dv := make([]float64, n)
	dt := make([]float64, n)
	dv[0], dt[0] = v[1]-v[0], t[1]-t[0]
	dv[n-1], dt[n-1] = v[n-1]-v[n-2], t[n-1]-t[n-2]
	if n > 2 {
		floats.SubTo(dv[1:n-1], v[2:n], v[:n-2])
		floats.SubTo(dt[1:n-1], t[2:n], t[:n-2])
	}
	return safeDiv(dv, dt)
}

// safeDiv divides element-wise, writing 0 where the divisor is 0. The
// result reuses num.
func safeDiv(num, den []float64) []float64 {
	for i := range num {
		if den[i] == 0 {
			num[i] = 0
			continue
		}
		num[i] /= den[i]
	}
	return num
}
