package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/adcscope/internal/frame"
	"github.com/banshee-data/adcscope/internal/monitoring"
	"github.com/banshee-data/adcscope/internal/serialmux"
	"github.com/banshee-data/adcscope/internal/timeseries"
	"github.com/banshee-data/adcscope/internal/timeutil"
)

// DefaultBackoff is the fixed wait between reconnect attempts.
const DefaultBackoff = time.Second

// subscriberBuffer is how many samples a slow subscriber may lag before
// samples are dropped for it.
const subscriberBuffer = 256

var (
	// ErrConnect wraps a failure to open the serial port.
	ErrConnect = errors.New("connect failed")
	// ErrAlreadyRunning is returned by Run when called a second time.
	ErrAlreadyRunning = errors.New("acquisition loop already started")
)

// Config holds the loop's collaborators. Zero values are replaced with
// defaults by New.
type Config struct {
	Path    string
	Options serialmux.PortOptions
	Backoff time.Duration
	Clock   timeutil.Clock
	Open    serialmux.SerialPortOpener
}

// Loop owns the serial port, decodes frames from it and appends each value
// to a shared buffer. It reconnects indefinitely until its context ends.
type Loop struct {
	cfg   Config
	buf   *timeseries.Buffer
	ready *Ready
	stats frame.Stats

	state   atomic.Int32
	started atomic.Bool
	done    chan struct{}

	mu          sync.Mutex
	sessionID   string
	connects    int64
	failures    int64
	lastErr     string
	connectedAt time.Time

	subscriberMu sync.Mutex
	subscribers  map[string]chan timeseries.Sample
	closed       bool
}

// New creates a loop writing into buf. Options are normalised here; an
// invalid option set is reported now rather than on every reconnect.
func New(cfg Config, buf *timeseries.Buffer) (*Loop, error) {
	if buf == nil {
		return nil, errors.New("acquisition: nil buffer")
	}
	opts, err := cfg.Options.Normalise()
	if err != nil {
		return nil, fmt.Errorf("acquisition: %w", err)
	}
	cfg.Options = opts
	if cfg.Backoff <= 0 {
		cfg.Backoff = DefaultBackoff
	}
	if cfg.Clock == nil {
		cfg.Clock = timeutil.RealClock{}
	}
	if cfg.Open == nil {
		cfg.Open = serialmux.OpenSerialPort
	}
	return &Loop{
		cfg:         cfg,
		buf:         buf,
		ready:       NewReady(),
		done:        make(chan struct{}),
		subscribers: make(map[string]chan timeseries.Sample),
	}, nil
}

// Buffer returns the buffer the loop appends to.
func (l *Loop) Buffer() *timeseries.Buffer { return l.buf }

// Ready returns the loop's readiness signal.
func (l *Loop) Ready() *Ready { return l.ready }

// State returns the current connection state.
func (l *Loop) State() State { return State(l.state.Load()) }

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} { return l.done }

// Wait blocks until Run returns or the timeout elapses, and reports whether
// the loop stopped in time.
func (l *Loop) Wait(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-l.done:
		return true
	case <-t.C:
		return false
	}
}

func (l *Loop) setState(s State) {
	prev := State(l.state.Swap(int32(s)))
	if prev != s {
		monitoring.Debugf("acquisition: %s -> %s", prev, s)
	}
}

// Run drives the loop until ctx is cancelled. Open and read failures are
// logged and retried after the backoff; they never end the loop.
func (l *Loop) Run(ctx context.Context) error {
	if !l.started.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer close(l.done)
	defer l.closeSubscribers()
	defer l.setState(Stopped)

	for {
		if ctx.Err() != nil {
			l.setState(ShuttingDown)
			return nil
		}

		l.setState(Connecting)
		port, err := l.cfg.Open(l.cfg.Path, l.cfg.Options)
		if err != nil {
			l.recordFailure(fmt.Errorf("%w: %s: %w", ErrConnect, l.cfg.Path, err))
		} else {
			err = l.stream(ctx, port)
			if cerr := port.Close(); cerr != nil {
				monitoring.Debugf("acquisition: close %s: %v", l.cfg.Path, cerr)
			}
			l.ready.Clear()
			if err == nil {
				l.setState(ShuttingDown)
				return nil
			}
			l.recordFailure(err)
		}

		if !l.backoff(ctx) {
			l.setState(ShuttingDown)
			return nil
		}
	}
}

// stream reads frames until ctx ends (nil) or the port fails (the error).
func (l *Loop) stream(ctx context.Context, port serialmux.SerialPorter) error {
	if tp, ok := port.(serialmux.TimeoutSerialPorter); ok {
		if err := tp.SetReadTimeout(l.cfg.Options.ReadTimeout); err != nil {
			return fmt.Errorf("set read timeout: %w", err)
		}
	}
	dec := frame.NewDecoderWithStats(serialmux.NewReader(port), &l.stats)

	l.onConnected()

	for {
		if ctx.Err() != nil {
			return nil
		}
		v, err := dec.Next()
		switch {
		case err == nil:
			s := l.buf.Append(l.cfg.Clock.Now(), v)
			l.publish(s)
		case errors.Is(err, frame.ErrTimeout), errors.Is(err, frame.ErrResync):
			continue
		default:
			return err
		}
	}
}

func (l *Loop) onConnected() {
	id := uuid.NewString()

	l.mu.Lock()
	l.sessionID = id
	l.connects++
	l.lastErr = ""
	l.connectedAt = l.cfg.Clock.Now()
	l.mu.Unlock()

	l.setState(Streaming)
	l.ready.Set()
	monitoring.Logf("acquisition: connected to %s (%s), session %s", l.cfg.Path, l.cfg.Options, id)
}

func (l *Loop) recordFailure(err error) {
	l.mu.Lock()
	l.failures++
	l.lastErr = err.Error()
	l.mu.Unlock()

	monitoring.Logf("acquisition: %v; retrying in %s", err, l.cfg.Backoff)
}

// backoff waits for the configured delay and reports false if ctx ended
// first.
func (l *Loop) backoff(ctx context.Context) bool {
	t := l.cfg.Clock.NewTimer(l.cfg.Backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C():
		return true
	}
}

// Status is a point-in-time view of the loop for the status endpoints.
type Status struct {
	State       string              `json:"state"`
	Path        string              `json:"path"`
	Options     string              `json:"options"`
	Ready       bool                `json:"ready"`
	SessionID   string              `json:"session_id,omitempty"`
	ConnectedAt string              `json:"connected_at,omitempty"`
	Connects    int64               `json:"connects"`
	Failures    int64               `json:"failures"`
	LastError   string              `json:"last_error,omitempty"`
	Buffered    int                 `json:"buffered"`
	Capacity    int                 `json:"capacity"`
	Total       int64               `json:"total"`
	Decoder     frame.StatsSnapshot `json:"decoder"`
}

// Status returns the loop's current status.
func (l *Loop) Status() Status {
	st := Status{
		State:    l.State().String(),
		Path:     l.cfg.Path,
		Options:  l.cfg.Options.String(),
		Ready:    l.ready.IsSet(),
		Buffered: l.buf.Len(),
		Capacity: l.buf.Capacity(),
		Total:    l.buf.Total(),
		Decoder:  l.stats.Snapshot(),
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	st.SessionID = l.sessionID
	st.Connects = l.connects
	st.Failures = l.failures
	st.LastError = l.lastErr
	if !l.connectedAt.IsZero() {
		st.ConnectedAt = l.connectedAt.UTC().Format(time.RFC3339Nano)
	}
	return st
}

// Subscribe returns a channel that receives every decoded sample. Delivery
// never blocks the loop: a subscriber that falls behind misses samples. The
// channel is closed by Unsubscribe or when the loop stops.
func (l *Loop) Subscribe() (string, chan timeseries.Sample) {
	id := uuid.NewString()
	ch := make(chan timeseries.Sample, subscriberBuffer)

	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if l.closed {
		close(ch)
		return id, ch
	}
	l.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber channel.
func (l *Loop) Unsubscribe(id string) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	if ch, ok := l.subscribers[id]; ok {
		close(ch)
		delete(l.subscribers, id)
	}
}

func (l *Loop) publish(s timeseries.Sample) {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	for _, ch := range l.subscribers {
		select {
		case ch <- s:
		default:
		}
	}
}

func (l *Loop) closeSubscribers() {
	l.subscriberMu.Lock()
	defer l.subscriberMu.Unlock()
	l.closed = true
	for id, ch := range l.subscribers {
		close(ch)
		delete(l.subscribers, id)
	}
}
