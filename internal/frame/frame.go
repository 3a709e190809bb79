// Package frame decodes the sensor's 3-byte wire frame: a 0xAA sync byte
// followed by a little-endian 16-bit payload whose low 12 bits are the ADC
// sample. There is no length prefix, checksum or terminator.
package frame

import (
	"encoding/binary"
	"errors"
	"sync/atomic"

	"github.com/banshee-data/adcscope/internal/monitoring"
)

const (
	// SyncByte marks the start of every frame.
	SyncByte byte = 0xAA
	// Size is the full frame length in bytes.
	Size = 3
	// ValueMask keeps the 12-bit ADC range (0-4095).
	ValueMask uint16 = 0x0FFF
	// MaxValue is the largest sample value a frame can carry.
	MaxValue = ValueMask

	// maxSkip bounds how many non-sync bytes Next discards before handing
	// control back to the caller, so a stream of garbage cannot starve the
	// caller's stop check.
	maxSkip = 256
)

var (
	// ErrTimeout is returned by a ByteReader when no byte arrived within the
	// read timeout. It is the normal idle condition, not a failure.
	ErrTimeout = errors.New("read timeout")

	// ErrResync is returned by Next after discarding maxSkip bytes without
	// finding a sync byte. Callers treat it like ErrTimeout.
	ErrResync = errors.New("no sync byte found")
)

// ByteReader supplies bytes one at a time. Implementations return ErrTimeout
// when nothing arrived within their read timeout; any other error is a hard
// transport failure.
type ByteReader interface {
	ReadByte() (byte, error)
}

// Decode converts the two payload bytes of a frame into a sample value.
func Decode(lo, hi byte) uint16 {
	return binary.LittleEndian.Uint16([]byte{lo, hi}) & ValueMask
}

// Encode builds the wire frame for v. Bits above the 12-bit range are kept
// in the payload; the decoder masks them off.
func Encode(v uint16) [Size]byte {
	var f [Size]byte
	f[0] = SyncByte
	binary.LittleEndian.PutUint16(f[1:], v)
	return f
}

// Decoder turns a byte stream into sample values. It carries no state between
// calls beyond its counters: every call to Next starts by looking for a sync
// byte, so a torn frame is dropped rather than completed by a later read.
type Decoder struct {
	r     ByteReader
	stats *Stats
}

// NewDecoder creates a Decoder reading from r with its own counters.
func NewDecoder(r ByteReader) *Decoder {
	return &Decoder{r: r, stats: &Stats{}}
}

// NewDecoderWithStats creates a Decoder that adds to existing counters, so
// totals survive a reconnect that replaces the decoder.
func NewDecoderWithStats(r ByteReader, stats *Stats) *Decoder {
	if stats == nil {
		stats = &Stats{}
	}
	return &Decoder{r: r, stats: stats}
}

// Stats returns the decoder's counters.
func (d *Decoder) Stats() *Stats {
	return d.stats
}

// Next returns the next complete sample value.
//
// Non-sync bytes are discarded. After a sync byte exactly two payload bytes
// are read whatever their value; a payload byte equal to SyncByte is data,
// not a new frame start. If the payload is cut short by a timeout the partial
// frame is dropped and ErrTimeout is returned; the next call resumes
// sync-seeking. Hard errors from the reader are returned unchanged.
func (d *Decoder) Next() (uint16, error) {
	for skipped := 0; skipped < maxSkip; skipped++ {
		b, err := d.r.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != SyncByte {
			d.stats.skipped.Add(1)
			continue
		}

		var payload [2]byte
		for i := range payload {
			p, err := d.r.ReadByte()
			if err != nil {
				d.stats.torn.Add(1)
				monitoring.Debugf("frame: dropped torn frame after %d payload byte(s): %v", i, err)
				return 0, err
			}
			payload[i] = p
		}
		d.stats.frames.Add(1)
		return Decode(payload[0], payload[1]), nil
	}
	return 0, ErrResync
}

// Stats counts decoder activity. Dropped data stays invisible to the sample
// stream; the counters only make the loss observable.
type Stats struct {
	frames  atomic.Int64
	skipped atomic.Int64
	torn    atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Frames       int64 `json:"frames"`
	SkippedBytes int64 `json:"skipped_bytes"`
	TornFrames   int64 `json:"torn_frames"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Frames:       s.frames.Load(),
		SkippedBytes: s.skipped.Load(),
		TornFrames:   s.torn.Load(),
	}
}

// sliceReader serves bytes from memory and reports ErrTimeout once drained.
type sliceReader struct {
	data []byte
}

func (r *sliceReader) ReadByte() (byte, error) {
	if len(r.data) == 0 {
		return 0, ErrTimeout
	}
	b := r.data[0]
	r.data = r.data[1:]
	return b, nil
}

// DecodeBytes decodes every complete frame in data. A frame cut off by the
// end of data is dropped, as it would be by a read timeout.
func DecodeBytes(data []byte) []uint16 {
	d := NewDecoder(&sliceReader{data: data})
	var out []uint16
	for {
		v, err := d.Next()
		switch {
		case err == nil:
			out = append(out, v)
		case errors.Is(err, ErrResync):
			continue
		default:
			return out
		}
	}
}
