// Package timeseries holds the bounded window of recent samples shared by the
// acquisition goroutine (sole writer) and the render loop (reader of copies).
package timeseries

import (
	"sync"
	"time"
)

// Sample is a decoded reading: seconds elapsed since the session start and a
// 12-bit ADC value.
type Sample struct {
	Time  float64 `json:"t"`
	Value uint16  `json:"v"`
}

// CapacityFor returns the number of slots needed to hold window worth of
// samples at rateHz, e.g. 5s at 1000Hz is 5000.
func CapacityFor(window time.Duration, rateHz int) int {
	n := int(window.Seconds() * float64(rateHz))
	if n < 1 {
		return 1
	}
	return n
}

// Buffer is a fixed-capacity ring of (time, value) pairs. One mutex guards
// both rings together so a reader never sees a time without its value; the
// lock is held only for the copy, never across I/O.
type Buffer struct {
	mu     sync.Mutex
	times  []float64
	values []uint16
	head   int // index of the oldest pair
	count  int
	total  int64

	start    time.Time
	hasStart bool
	last     float64
}

// New creates a Buffer holding at most capacity samples.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		times:  make([]float64, capacity),
		values: make([]uint16, capacity),
	}
}

// Append records value observed at the given instant. The first call fixes
// the session start and later calls store seconds elapsed since it, never
// going backwards. When full, the oldest pair is evicted. The stored sample
// is returned.
func (b *Buffer) Append(at time.Time, value uint16) Sample {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.hasStart {
		b.start = at
		b.hasStart = true
	}
	elapsed := at.Sub(b.start).Seconds()
	if elapsed < b.last {
		elapsed = b.last
	}
	b.last = elapsed

	capacity := len(b.times)
	idx := (b.head + b.count) % capacity
	if b.count == capacity {
		// overwrite the oldest slot and advance the head past it
		idx = b.head
		b.head = (b.head + 1) % capacity
	} else {
		b.count++
	}
	b.times[idx] = elapsed
	b.values[idx] = value
	b.total++
	return Sample{Time: elapsed, Value: value}
}

// Snapshot returns independent, oldest-first copies of the buffered times
// and values. Both slices always have the same length.
func (b *Buffer) Snapshot() (times []float64, values []uint16) {
	b.mu.Lock()
	defer b.mu.Unlock()

	times = make([]float64, b.count)
	values = make([]uint16, b.count)
	b.copyOut(times, values)
	return times, values
}

// copyOut unrolls the ring into dst in insertion order. Caller holds mu.
func (b *Buffer) copyOut(times []float64, values []uint16) {
	capacity := len(b.times)
	first := b.count
	if b.head+first > capacity {
		first = capacity - b.head
	}
	copy(times, b.times[b.head:b.head+first])
	copy(values, b.values[b.head:b.head+first])
	copy(times[first:], b.times[:b.count-first])
	copy(values[first:], b.values[:b.count-first])
}

// Samples returns the buffered pairs as a slice of Sample, oldest first.
func (b *Buffer) Samples() []Sample {
	times, values := b.Snapshot()
	out := make([]Sample, len(times))
	for i := range times {
		out[i] = Sample{Time: times[i], Value: values[i]}
	}
	return out
}

// Latest returns the most recently appended sample.
func (b *Buffer) Latest() (Sample, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		return Sample{}, false
	}
	idx := (b.head + b.count - 1) % len(b.times)
	return Sample{Time: b.times[idx], Value: b.values[idx]}, true
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Capacity returns the maximum number of samples the buffer holds.
func (b *Buffer) Capacity() int {
	return len(b.times)
}

// Total returns how many samples have ever been appended, including evicted ones.
func (b *Buffer) Total() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

// SessionStart returns the instant of the first append, if any.
func (b *Buffer) SessionStart() (time.Time, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.start, b.hasStart
}
