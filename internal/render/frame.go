// Package render turns buffer snapshots into display frames and pushes them
// to whatever is showing them: the HTTP chart endpoints, a websocket hub or a
// test recorder. Rendering only ever reads from the buffer.
package render

import (
	"math"
	"time"

	"github.com/banshee-data/adcscope/internal/dsp"
)

// Axis limits for the two kinds of trace.
const (
	RawMin  = 0
	RawMax  = 4095
	RateMin = -2000
	RateMax = 2000
)

// Frame is one redraw: the raw trace, its smoothed version and the rate of
// change of each, all on the same time axis.
type Frame struct {
	Times        []float64 `json:"t"`
	Raw          []float64 `json:"raw"`
	Filtered     []float64 `json:"filtered"`
	RawRate      []float64 `json:"raw_rate"`
	FilteredRate []float64 `json:"filtered_rate"`

	// XMin and XMax are the visible time range in seconds since session start.
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`

	// Count is the number of samples the frame was built from, which is
	// larger than len(Times) after Decimate.
	Count int       `json:"count"`
	At    time.Time `json:"at"`
}

// Build derives a frame from a buffer snapshot. It reports false when there
// are fewer than two samples, in which case nothing should be drawn.
func Build(times []float64, values []uint16, window time.Duration, smoothing int) (Frame, bool) {
	n := min(len(times), len(values))
	if n < 2 {
		return Frame{}, false
	}

	t := append([]float64(nil), times[:n]...)
	raw := dsp.ToFloat64(values[:n])
	filtered := dsp.MovingAverage(raw, smoothing)

	f := Frame{
		Times:        t,
		Raw:          raw,
		Filtered:     filtered,
		RawRate:      dsp.Gradient(t, raw),
		FilteredRate: dsp.Gradient(t, filtered),
		XMax:         t[n-1],
		Count:        n,
	}
	f.XMin = math.Max(0, f.XMax-window.Seconds())
	return f, true
}

// Decimate returns a copy of f holding at most maxPoints points per trace,
// chosen at a fixed stride. The last point is always kept so the trace ends
// at XMax.
func Decimate(f Frame, maxPoints int) Frame {
	n := len(f.Times)
	if maxPoints <= 1 || n <= maxPoints {
		return f
	}
	stride := (n + maxPoints - 2) / (maxPoints - 1)

	idx := make([]int, 0, maxPoints)
	for i := 0; i < n-1; i += stride {
		idx = append(idx, i)
	}
	idx = append(idx, n-1)

	pick := func(src []float64) []float64 {
		if len(src) != n {
			return nil
		}
		out := make([]float64, len(idx))
		for j, i := range idx {
			out[j] = src[i]
		}
		return out
	}

	out := f
	out.Times = pick(f.Times)
	out.Raw = pick(f.Raw)
	out.Filtered = pick(f.Filtered)
	out.RawRate = pick(f.RawRate)
	out.FilteredRate = pick(f.FilteredRate)
	return out
}
