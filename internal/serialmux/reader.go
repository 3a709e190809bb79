package serialmux

import (
	"errors"
	"fmt"

	"github.com/banshee-data/adcscope/internal/frame"
)

// ErrReadFailed wraps hard I/O errors from the port (device removed,
// permission revoked, broken pipe). It never wraps a plain timeout.
var ErrReadFailed = errors.New("serial read failed")

const readBufferSize = 256

// Reader hands out bytes from a serial port one at a time. A port read that
// returns no data and no error is a read timeout and is reported as
// frame.ErrTimeout; any error from the port is a hard failure.
type Reader struct {
	port SerialPorter
	buf  []byte
	pos  int
	n    int
}

// NewReader creates a Reader over port.
func NewReader(port SerialPorter) *Reader {
	return &Reader{
		port: port,
		buf:  make([]byte, readBufferSize),
	}
}

// ReadByte implements frame.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= r.n {
		n, err := r.port.Read(r.buf)
		if err != nil {
			r.pos, r.n = 0, 0
			return 0, fmt.Errorf("%w: %w", ErrReadFailed, err)
		}
		if n == 0 {
			return 0, frame.ErrTimeout
		}
		r.pos, r.n = 0, n
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

// Buffered returns the number of bytes read from the port but not yet consumed.
func (r *Reader) Buffered() int {
	return r.n - r.pos
}
