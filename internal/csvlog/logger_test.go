package csvlog

import (
	"bytes"
	"strings"
	"testing"
	"time"
)

func TestCRC16CCITTFalseKnownAnswer(t *testing.T) {
	got := CRC16CCITTFalse([]byte("123456789"))
	if got != 0x29B1 {
		t.Errorf("CRC16CCITTFalse(123456789) = %#04x, want 0x29b1", got)
	}
}

type bufSink struct {
	buf bytes.Buffer
}

func (s *bufSink) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func fixedClock(t *testing.T, start time.Time) func(time.Duration) {
	nowFunc = func() time.Time { return start }
	t.Cleanup(func() { nowFunc = time.Now })
	return func(delta time.Duration) {
		cur := start.Add(delta)
		nowFunc = func() time.Time { return cur }
	}
}

func TestWriteHeaderVariants(t *testing.T) {
	cases := []struct {
		opts Options
		want string
	}{
		{Options{}, "Time(ms),VarID,Value\n"},
		{Options{Sequence: true}, "Time(ms),Sequence,VarID,Value\n"},
		{Options{Checksum: true}, "Time(ms),VarID,Value,Checksum\n"},
		{Options{Sequence: true, Checksum: true}, "Time(ms),Sequence,VarID,Value,Checksum\n"},
	}
	for _, c := range cases {
		sink := &bufSink{}
		l := New(sink, c.opts)
		if !l.WriteHeader() {
			t.Fatalf("WriteHeader() failed for %+v", c.opts)
		}
		if !l.WriteHeader() {
			t.Fatalf("second WriteHeader() call should be a no-op success")
		}
		for l.Used() > 0 {
			if !l.flushOnce() {
				break
			}
		}
		if got := sink.buf.String(); got != c.want {
			t.Errorf("header = %q, want %q", got, c.want)
		}
		if strings.Count(sink.buf.String(), "Time(ms)") > 1 {
			t.Errorf("header written more than once for %+v", c.opts)
		}
	}
}

func TestWriteEntryAtomicRejectsOversizeAndPreservesBuffer(t *testing.T) {
	l := New(&bufSink{}, Options{Sequence: true, Checksum: true})
	if !l.WriteEntry(1000, 42, 6500.0) {
		t.Fatal("expected first entry to fit")
	}

	// Force a situation where the buffer is nearly full so the next write
	// cannot fit; WriteEntry must leave `used` unchanged.
	l.used = BufferSize - 5
	before := l.used
	if l.WriteEntry(2000, 42, 1.0) {
		t.Fatal("expected WriteEntry to fail when it would overflow the ring")
	}
	if l.used != before {
		t.Errorf("used changed on rejected write: got %d, want %d", l.used, before)
	}
}

func TestRingBufferConservesBytesAcrossWraparound(t *testing.T) {
	sink := &bufSink{}
	l := New(sink, Options{})
	fixedClock(t, time.Unix(0, 0))

	for i := 0; i < 40; i++ {
		if !l.WriteEntry(uint32(i), uint32(i), float32(i)) {
			t.Fatalf("entry %d rejected", i)
		}
	}
	for l.Used() > 0 {
		if !l.flushOnce() {
			break
		}
	}
	if lines := strings.Count(sink.buf.String(), "\n"); lines != 40 {
		t.Errorf("flushed %d lines, want 40", lines)
	}

	// Now drive enough further entries to force tail/head wraparound and
	// confirm no bytes are lost or duplicated.
	sink.buf.Reset()
	for i := 0; i < 200; i++ {
		l.WriteEntry(uint32(i), uint32(i), float32(i))
		l.flushOnce()
	}
	if lines := strings.Count(sink.buf.String(), "\n"); lines != 200 {
		t.Errorf("after wraparound, flushed %d lines, want 200", lines)
	}
}

func TestTickFlushesOnThresholdAndInterval(t *testing.T) {
	sink := &bufSink{}
	l := New(sink, Options{})
	advance := fixedClock(t, time.Unix(0, 0))

	// Below WriteThreshold and within FlushInterval: no flush yet.
	l.WriteEntry(1, 1, 1.0)
	l.Tick()
	if sink.buf.Len() != 0 {
		t.Error("expected no flush before threshold or interval elapsed")
	}

	advance(FlushInterval + time.Millisecond)
	l.Tick()
	if sink.buf.Len() == 0 {
		t.Error("expected flush once FlushInterval elapses")
	}
}

// delaySink simulates a storage backend with fixed per-write latency by
// advancing the shared fake clock inside Write, so Tick's 5ms soft budget
// check sees real elapsed-time semantics without sleeping.
type delaySink struct {
	buf     bytes.Buffer
	advance func(time.Duration)
	elapsed time.Duration
	perCall time.Duration
}

func (s *delaySink) Write(p []byte) (int, error) {
	s.elapsed += s.perCall
	s.advance(s.elapsed)
	return s.buf.Write(p)
}

func TestTickBoundedLatencyUnderSlowSink(t *testing.T) {
	start := time.Unix(0, 0)
	advance := fixedClock(t, start)
	sink := &delaySink{perCall: 2 * time.Millisecond, advance: advance}
	l := New(sink, Options{})

	for l.Used() < 3000 {
		if !l.WriteEntry(1000, 7, 42.0) {
			break
		}
	}

	l.Tick()

	if l.Used() > WriteThreshold {
		t.Errorf("used after tick = %d, want <= %d", l.Used(), WriteThreshold)
	}
}
