package serialmux

import (
	"io"
	"time"
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.Reader
	io.Closer
}

// TimeoutSerialPorter extends SerialPorter with timeout capabilities.
// Ports that implement it have their read timeout applied on open so that a
// Read with no data returns (0, nil) instead of blocking forever.
type TimeoutSerialPorter interface {
	SerialPorter
	// SetReadTimeout sets the read timeout for the serial port.
	SetReadTimeout(timeout time.Duration) error
}

// SerialPortOpener opens the port at path with the given options. The
// acquisition loop calls it once per connection attempt; tests and dev mode
// swap in their own openers.
type SerialPortOpener func(path string, opts PortOptions) (SerialPorter, error)
