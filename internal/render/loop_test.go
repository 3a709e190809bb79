package render

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/adcscope/internal/timeseries"
	"github.com/banshee-data/adcscope/internal/timeutil"
)

type recorder struct {
	mu     sync.Mutex
	frames []Frame
}

func (r *recorder) Present(f Frame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

func TestLoop_TickSkipsUntilTwoSamples(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := timeutil.NewMockClock(start)
	buf := timeseries.New(50)
	rec := &recorder{}
	l := &Loop{Source: buf, Display: rec, Window: 5 * time.Second, Clock: clk}

	assert.False(t, l.Tick())
	buf.Append(start, 100)
	assert.False(t, l.Tick())
	buf.Append(start.Add(100*time.Millisecond), 200)
	require.True(t, l.Tick())

	require.Equal(t, 1, rec.count())
	f := rec.frames[0]
	assert.Equal(t, 2, f.Count)
	assert.Equal(t, start, f.At)
	assert.Equal(t, []float64{100, 200}, f.Raw)
}

func TestLoop_RunPresentsUntilCancelled(t *testing.T) {
	buf := timeseries.New(10)
	now := time.Now()
	for i := 0; i < 5; i++ {
		buf.Append(now.Add(time.Duration(i)*time.Millisecond), uint16(i))
	}
	latest := &Latest{}
	rec := &recorder{}
	l := &Loop{Source: buf, Display: Multi{latest, rec}, Interval: time.Millisecond, Window: time.Second}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()

	require.Eventually(t, func() bool { return rec.count() >= 3 }, 2*time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("render loop did not stop")
	}

	f, ok := latest.Frame()
	require.True(t, ok)
	assert.Equal(t, 5, f.Count)
}

func TestLatest_Empty(t *testing.T) {
	var l Latest
	_, ok := l.Frame()
	assert.False(t, ok)
}
