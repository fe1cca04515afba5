// Package csvlog implements the ring-buffered CSV log writer: batched
// writes, a bounded per-tick flush budget, and optional per-record sequence
// numbers and CRC-16/CCITT checksums.
package csvlog

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

const (
	BufferSize      = 4096
	WriteThreshold  = 2048
	FlushInterval   = 1000 * time.Millisecond
	MaxLineLen      = 128
	flushTickBudget = 5 * time.Millisecond
)

// Sink is the storage backend a flush writes to — a file, in the host
// process, or a recording fake in tests.
type Sink interface {
	Write(p []byte) (n int, err error)
}

// Options selects which optional columns a logger instance emits.
type Options struct {
	Sequence bool
	Checksum bool
}

func (o Options) header() string {
	switch {
	case o.Sequence && o.Checksum:
		return "Time(ms),Sequence,VarID,Value,Checksum\n"
	case o.Sequence:
		return "Time(ms),Sequence,VarID,Value\n"
	case o.Checksum:
		return "Time(ms),VarID,Value,Checksum\n"
	default:
		return "Time(ms),VarID,Value\n"
	}
}

// Logger is a bounded ring buffer over raw CSV bytes, drained by Tick into a
// Sink in at most two contiguous writes per call.
type Logger struct {
	sink Sink
	opts Options

	buf            [BufferSize]byte
	head, tail     int
	used           int
	headerWritten  bool
	lastFlush      time.Time
	sequence       uint32
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }

// New constructs a Logger writing to sink with the given feature options.
func New(sink Sink, opts Options) *Logger {
	return &Logger{sink: sink, opts: opts, lastFlush: now()}
}

func (l *Logger) hasSpace(n int) bool {
	return l.used+n <= BufferSize
}

func (l *Logger) enqueue(line []byte) bool {
	if !l.hasSpace(len(line)) {
		return false
	}
	for _, b := range line {
		l.buf[l.head] = b
		l.head = (l.head + 1) % BufferSize
	}
	l.used += len(line)
	return true
}

// WriteHeader enqueues the CSV header line. Idempotent.
func (l *Logger) WriteHeader() bool {
	if l.headerWritten {
		return true
	}
	if !l.enqueue([]byte(l.opts.header())) {
		return false
	}
	l.headerWritten = true
	return true
}

// WriteEntry formats and enqueues one log record. Enqueuing is atomic: if
// the formatted line does not fit, no bytes are written and false is
// returned.
func (l *Logger) WriteEntry(timestampMS uint32, varID uint32, value float32) bool {
	var line string
	if l.opts.Checksum {
		raw := checksumBytes(timestampMS, l.sequence, l.opts.Sequence, varID, value)
		crc := CRC16CCITTFalse(raw)
		if l.opts.Sequence {
			line = fmt.Sprintf("%d,%d,%d,%.6f,%04X\n", timestampMS, l.sequence, varID, value, crc)
		} else {
			line = fmt.Sprintf("%d,%d,%.6f,%04X\n", timestampMS, varID, value, crc)
		}
	} else if l.opts.Sequence {
		line = fmt.Sprintf("%d,%d,%d,%.6f\n", timestampMS, l.sequence, varID, value)
	} else {
		line = fmt.Sprintf("%d,%d,%.6f\n", timestampMS, varID, value)
	}
	if len(line) > MaxLineLen {
		return false
	}
	ok := l.enqueue([]byte(line))
	if ok && l.opts.Sequence {
		l.sequence++
	}
	return ok
}

// checksumBytes canonicalises (timestamp, [sequence], var_id, value) to
// little-endian bytes before hashing, resolving the portability open
// question explicitly rather than relying on host byte order.
func checksumBytes(timestampMS, sequence uint32, withSeq bool, varID uint32, value float32) []byte {
	buf := make([]byte, 0, 12)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], timestampMS)
	buf = append(buf, tmp[:]...)
	if withSeq {
		binary.LittleEndian.PutUint32(tmp[:], sequence)
		buf = append(buf, tmp[:]...)
	}
	binary.LittleEndian.PutUint32(tmp[:], varID)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], math.Float32bits(value))
	buf = append(buf, tmp[:]...)
	return buf
}

// Used returns the number of enqueued-but-not-flushed bytes.
func (l *Logger) Used() int { return l.used }

// Tick flushes the ring when over threshold or past the flush interval,
// honoring a soft 5ms per-call budget — it may return with bytes still
// queued.
func (l *Logger) Tick() {
	due := l.used >= WriteThreshold || now().Sub(l.lastFlush) >= FlushInterval
	if !due {
		return
	}
	l.flush()
}

func (l *Logger) flush() {
	deadline := now().Add(flushTickBudget)
	for l.used > 0 && now().Before(deadline) {
		if !l.flushOnce() {
			break
		}
	}
}

// flushOnce issues at most two contiguous writes (tail-to-end, then
// start-to-head on wraparound) and advances tail/used by exactly what the
// sink acknowledged, even on a short write.
func (l *Logger) flushOnce() bool {
	if l.used == 0 {
		return false
	}
	toWrite := l.used
	var written int
	if l.tail < l.head {
		n, err := l.sink.Write(l.buf[l.tail:l.head])
		written = n
		if err != nil && n == 0 {
			return false
		}
	} else {
		chunk1 := BufferSize - l.tail
		n1, err1 := l.sink.Write(l.buf[l.tail:BufferSize])
		written = n1
		if err1 == nil && n1 == chunk1 && l.head > 0 {
			n2, _ := l.sink.Write(l.buf[0:l.head])
			written += n2
		}
	}
	l.tail = (l.tail + written) % BufferSize
	l.used -= written
	l.lastFlush = now()
	return written == toWrite
}
