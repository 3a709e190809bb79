package serialmux

import (
	"bytes"
	"errors"
	"sync"
	"time"
)

// ErrPortClosed is returned by the test ports after Close.
var ErrPortClosed = errors.New("serial port closed")

// TestableSerialPort implements TimeoutSerialPorter with configurable
// behaviour for testing. An empty read buffer behaves like an idle device:
// Read waits out the read timeout and returns (0, nil).
type TestableSerialPort struct {
	mu sync.Mutex

	// ReadBuffer holds data to be returned by Read calls
	ReadBuffer *bytes.Buffer

	// ReadError is returned by the next Read call once ReadBuffer is drained
	ReadError error

	// CloseError is returned by Close if set
	CloseError error

	// Closed indicates whether Close was called
	Closed bool

	// ReadCalls records the number of Read calls
	ReadCalls int

	// ReadTimeout is the current read timeout; an idle Read sleeps for it
	ReadTimeout time.Duration

	// MaxChunk limits how many bytes one Read returns; zero means no limit
	MaxChunk int

	dataAdded *sync.Cond
}

// NewTestableSerialPort creates a new TestableSerialPort for testing.
func NewTestableSerialPort() *TestableSerialPort {
	tsp := &TestableSerialPort{
		ReadBuffer:  bytes.NewBuffer(nil),
		ReadTimeout: time.Millisecond,
	}
	tsp.dataAdded = sync.NewCond(&tsp.mu)
	return tsp
}

// Read returns buffered data, the pending ReadError, or (0, nil) after
// ReadTimeout when nothing is available.
func (t *TestableSerialPort) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadCalls++

	if t.Closed {
		return 0, ErrPortClosed
	}

	if t.ReadBuffer.Len() == 0 {
		if t.ReadError != nil {
			err := t.ReadError
			t.ReadError = nil
			return 0, err
		}
		if t.ReadTimeout > 0 {
			timer := time.AfterFunc(t.ReadTimeout, func() {
				t.mu.Lock()
				t.dataAdded.Broadcast()
				t.mu.Unlock()
			})
			t.dataAdded.Wait()
			timer.Stop()
		}
		if t.Closed {
			return 0, ErrPortClosed
		}
	}

	if t.MaxChunk > 0 && len(p) > t.MaxChunk {
		p = p[:t.MaxChunk]
	}
	n, _ := t.ReadBuffer.Read(p)
	return n, nil
}

// Close marks the port as closed.
func (t *TestableSerialPort) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Closed = true
	t.dataAdded.Broadcast()
	return t.CloseError
}

// SetReadTimeout implements TimeoutSerialPorter.
func (t *TestableSerialPort) SetReadTimeout(timeout time.Duration) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadTimeout = timeout
	return nil
}

// AddReadData adds data to be returned by subsequent Read calls.
func (t *TestableSerialPort) AddReadData(data []byte) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadBuffer.Write(data)
	t.dataAdded.Broadcast()
}

// FailNextRead makes the next Read after the buffered data return err.
func (t *TestableSerialPort) FailNextRead(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.ReadError = err
	t.dataAdded.Broadcast()
}

// IsClosed reports whether Close has been called.
func (t *TestableSerialPort) IsClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.Closed
}

// MockSerialPortFactory hands out ports or errors from a script, one per
// Open call. Its Open method satisfies SerialPortOpener.
type MockSerialPortFactory struct {
	mu sync.Mutex

	// Results is consumed in order; once exhausted Open repeats Port/Error.
	Results []MockOpenResult

	// Port is returned when Results is exhausted and Error is nil
	Port SerialPorter

	// Error is returned when Results is exhausted, if set
	Error error

	// OpenCalls records all Open calls
	OpenCalls []MockOpenCall
}

// MockOpenResult is one scripted outcome of Open.
type MockOpenResult struct {
	Port  SerialPorter
	Error error
}

// MockOpenCall records details of an Open call.
type MockOpenCall struct {
	Path    string
	Options PortOptions
	At      time.Time
}

// NewMockSerialPortFactory creates a new MockSerialPortFactory.
func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

// Open returns the next scripted port or error.
func (f *MockSerialPortFactory) Open(path string, opts PortOptions) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Options: opts, At: time.Now()})

	if len(f.Results) > 0 {
		r := f.Results[0]
		f.Results = f.Results[1:]
		if r.Error != nil {
			return nil, r.Error
		}
		return r.Port, nil
	}
	if f.Error != nil {
		return nil, f.Error
	}
	if f.Port == nil {
		return nil, errors.New("no mock port configured")
	}
	return f.Port, nil
}

// Calls returns the number of Open calls so far.
func (f *MockSerialPortFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}

// LastCall returns the most recent Open call, or nil if none.
func (f *MockSerialPortFactory) LastCall() *MockOpenCall {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.OpenCalls) == 0 {
		return nil
	}
	c := f.OpenCalls[len(f.OpenCalls)-1]
	return &c
}
