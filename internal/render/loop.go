package render

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/adcscope/internal/dsp"
	"github.com/banshee-data/adcscope/internal/timeutil"
)

// DefaultInterval is the redraw period.
const DefaultInterval = 40 * time.Millisecond

// Source is where frames come from; *timeseries.Buffer satisfies it.
type Source interface {
	Snapshot() (times []float64, values []uint16)
}

// Display shows frames. Present is called from the render loop goroutine and
// must not block for long.
type Display interface {
	Present(Frame)
}

// Loop periodically snapshots a Source and presents the derived frame.
type Loop struct {
	Source    Source
	Display   Display
	Interval  time.Duration
	Window    time.Duration
	Smoothing int
	Clock     timeutil.Clock
}

func (l *Loop) clock() timeutil.Clock {
	if l.Clock == nil {
		return timeutil.RealClock{}
	}
	return l.Clock
}

// Run redraws on every tick until ctx is done.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := l.clock().NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			l.Tick()
		}
	}
}

// Tick performs one redraw and reports whether a frame was presented.
func (l *Loop) Tick() bool {
	times, values := l.Source.Snapshot()
	smoothing := l.Smoothing
	if smoothing <= 0 {
		smoothing = dsp.DefaultWindow
	}
	f, ok := Build(times, values, l.Window, smoothing)
	if !ok {
		return false
	}
	f.At = l.clock().Now()
	l.Display.Present(f)
	return true
}

// Latest keeps the most recent frame for request/response consumers.
type Latest struct {
	mu    sync.RWMutex
	frame Frame
	ok    bool
}

// Present implements Display.
func (l *Latest) Present(f Frame) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.frame = f
	l.ok = true
}

// Frame returns the last presented frame, if any.
func (l *Latest) Frame() (Frame, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.frame, l.ok
}

// Multi presents each frame to every display in order.
type Multi []Display

// Present implements Display.
func (m Multi) Present(f Frame) {
	for _, d := range m {
		d.Present(f)
	}
}
