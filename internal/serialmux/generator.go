package serialmux

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/banshee-data/adcscope/internal/frame"
)

// SignalGenerator is a fake serial device that emits framed samples of a
// noisy sine wave at a fixed rate, paced by the wall clock. It stands in for
// the sensor in dev mode so the whole pipeline can run without hardware.
type SignalGenerator struct {
	mu          sync.Mutex
	rate        int
	readTimeout time.Duration
	start       time.Time
	emitted     int64
	pending     []byte
	rng         *rand.Rand
	closed      bool
	done        chan struct{}
}

// NewSignalGenerator creates a generator producing rate samples per second.
func NewSignalGenerator(rate int) *SignalGenerator {
	if rate <= 0 {
		rate = 1000
	}
	return &SignalGenerator{
		rate:        rate,
		readTimeout: DefaultReadTimeout,
		start:       time.Now(),
		rng:         rand.New(rand.NewSource(1)),
		done:        make(chan struct{}),
	}
}

// GeneratorOpener returns a SerialPortOpener that ignores the path and hands
// out a fresh SignalGenerator on every open.
func GeneratorOpener(rate int) SerialPortOpener {
	return func(path string, opts PortOptions) (SerialPorter, error) {
		opts, err := opts.Normalise()
		if err != nil {
			return nil, err
		}
		g := NewSignalGenerator(rate)
		g.SetReadTimeout(opts.ReadTimeout)
		return g, nil
	}
}

// sample returns the n-th value: a 1 Hz sine spanning most of the ADC range
// with a little noise on top.
func (g *SignalGenerator) sample(n int64) uint16 {
	t := float64(n) / float64(g.rate)
	v := 2048 + 1500*math.Sin(2*math.Pi*t) + g.rng.NormFloat64()*20
	return uint16(math.Max(0, math.Min(float64(frame.MaxValue), math.Round(v))))
}

// Read returns encoded frames that have come due, waiting up to the read
// timeout for the next one. Like a real port with a timeout it returns
// (0, nil) when nothing arrived in time.
func (g *SignalGenerator) Read(p []byte) (int, error) {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return 0, ErrPortClosed
	}

	if len(g.pending) == 0 {
		elapsed := time.Since(g.start)
		due := int64(elapsed.Seconds()*float64(g.rate)) - g.emitted
		if due <= 0 {
			next := g.start.Add(time.Duration(float64(g.emitted+1) / float64(g.rate) * float64(time.Second)))
			wait := time.Until(next)
			timeout := g.readTimeout
			g.mu.Unlock()

			if wait > timeout {
				wait = timeout
			}
			select {
			case <-time.After(wait):
			case <-g.done:
				return 0, ErrPortClosed
			}

			g.mu.Lock()
			if g.closed {
				g.mu.Unlock()
				return 0, ErrPortClosed
			}
			due = int64(time.Since(g.start).Seconds()*float64(g.rate)) - g.emitted
			if due <= 0 {
				g.mu.Unlock()
				return 0, nil
			}
		}

		if limit := int64(len(p)/frame.Size + 1); due > limit {
			due = limit
		}
		for i := int64(0); i < due; i++ {
			f := frame.Encode(g.sample(g.emitted))
			g.pending = append(g.pending, f[:]...)
			g.emitted++
		}
	}

	n := copy(p, g.pending)
	g.pending = g.pending[n:]
	g.mu.Unlock()
	return n, nil
}

// SetReadTimeout implements TimeoutSerialPorter.
func (g *SignalGenerator) SetReadTimeout(timeout time.Duration) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if timeout > 0 {
		g.readTimeout = timeout
	}
	return nil
}

// Close stops the generator; later reads fail like a removed device.
func (g *SignalGenerator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.closed {
		g.closed = true
		close(g.done)
	}
	return nil
}

// Emitted returns the number of samples generated so far.
func (g *SignalGenerator) Emitted() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.emitted
}
