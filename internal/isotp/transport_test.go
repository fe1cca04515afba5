package isotp

import (
	"bytes"
	"testing"
	"time"

	"candiag/internal/canframe"
)

type recordingSender struct {
	frames []sentFrame
	fail   bool
}

type sentFrame struct {
	id   uint32
	data [canframe.MaxDataLen]byte
}

func (r *recordingSender) Send(id uint32, data [canframe.MaxDataLen]byte) error {
	if r.fail {
		return errSendFail
	}
	r.frames = append(r.frames, sentFrame{id: id, data: data})
	return nil
}

type errString string

func (e errString) Error() string { return string(e) }

const errSendFail = errString("send failed")

type recordingSink struct {
	errs []TransportError
}

func (r *recordingSink) OnTransportError(e TransportError) { r.errs = append(r.errs, e) }

func withFixedClock(t *testing.T, start time.Time) func(delta time.Duration) {
	nowFunc = func() time.Time { return start }
	t.Cleanup(func() { nowFunc = time.Now })
	return func(delta time.Duration) {
		cur := start.Add(delta)
		nowFunc = func() time.Time { return cur }
	}
}

func TestMultiFrameReassembly(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	ep := NewEndpoint(sender, sink)
	advance := withFixedClock(t, time.Unix(0, 0))

	payload := []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16, 17, 18, 19, 20}
	ff, err := canframe.EncodeFirst(20, payload[0:5])
	if err != nil {
		t.Fatal(err)
	}
	ep.Feed(ff[:], 0x7E0)

	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 FC frame emitted, got %d", len(sender.frames))
	}
	if sender.frames[0].id != 0x7E8 {
		t.Errorf("FC target id = %#x, want 0x7E8", sender.frames[0].id)
	}
	wantFC := [8]byte{0x30, 0x00, 0x00, 0, 0, 0, 0, 0}
	if sender.frames[0].data != wantFC {
		t.Errorf("FC frame = %v, want %v", sender.frames[0].data, wantFC)
	}

	advance(10 * time.Millisecond)
	cf1 := canframe.EncodeConsecutive(1, payload[5:12])
	ep.Feed(cf1[:], 0x7E0)
	advance(20 * time.Millisecond)
	cf2 := canframe.EncodeConsecutive(2, payload[12:19])
	ep.Feed(cf2[:], 0x7E0)
	advance(30 * time.Millisecond)
	cf3 := canframe.EncodeConsecutive(3, payload[19:20])
	ep.Feed(cf3[:], 0x7E0)

	got, ok := ep.ReceiveComplete()
	if !ok {
		t.Fatal("expected a ready payload")
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %v, want %v", got, payload)
	}
}

func TestSequenceErrorToleranceThenAbort(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	ep := NewEndpoint(sender, sink)
	withFixedClock(t, time.Unix(0, 0))

	ff, _ := canframe.EncodeFirst(20, make([]byte, 5))
	ep.Feed(ff[:], 0x7E0)

	bad := canframe.EncodeConsecutive(5, make([]byte, 7))
	ep.Feed(bad[:], 0x7E0)
	ep.Feed(bad[:], 0x7E0)
	if ep.rxState != rxReceivingCF {
		t.Fatal("expected state to survive two sequence errors")
	}
	ep.Feed(bad[:], 0x7E0)
	if ep.rxState != rxIdle {
		t.Fatal("expected abort on third sequence error")
	}
	if len(sink.errs) != 3 {
		t.Errorf("expected 3 sequence errors reported, got %d", len(sink.errs))
	}
}

func TestReceiveTimeout(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	ep := NewEndpoint(sender, sink)
	advance := withFixedClock(t, time.Unix(0, 0))

	ff, _ := canframe.EncodeFirst(20, make([]byte, 5))
	ep.Feed(ff[:], 0x7E0)

	advance(1001 * time.Millisecond)
	ep.Tick()

	if ep.rxState != rxIdle {
		t.Error("expected idle after N_Cr timeout")
	}
	if len(sink.errs) != 1 || sink.errs[0].Code != ErrTimeout {
		t.Errorf("expected one timeout error, got %v", sink.errs)
	}
}

func TestFlowControlOverflowBackoffThenAbort(t *testing.T) {
	sender := &recordingSender{}
	sink := &recordingSink{}
	ep := NewEndpoint(sender, sink)
	advance := withFixedClock(t, time.Unix(0, 0))

	payload := make([]byte, 50)
	if err := ep.Send(payload, 0x7E8); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(sender.frames) != 1 {
		t.Fatalf("expected 1 FF emitted, got %d", len(sender.frames))
	}

	overflow := canframe.EncodeFlowControl(canframe.FCOverflow, 0, 0)
	ep.Feed(overflow[:], 0x7E8)

	advance(200 * time.Millisecond)
	ep.Tick()
	if len(sender.frames) != 2 {
		t.Fatalf("expected retry FF at +200ms, got %d frames", len(sender.frames))
	}

	ep.Feed(overflow[:], 0x7E8)
	advance(600 * time.Millisecond)
	ep.Tick()
	if len(sender.frames) != 3 {
		t.Fatalf("expected retry FF at cumulative +600ms, got %d frames", len(sender.frames))
	}

	ep.Feed(overflow[:], 0x7E8)
	if len(sink.errs) != 1 || sink.errs[0].Code != ErrFCOverflow {
		t.Fatalf("expected FCOverflow abort after third overflow, got %v", sink.errs)
	}
	if ep.txState != txIdle {
		t.Error("expected tx state idle after abort")
	}
}

func TestSendInvalidLength(t *testing.T) {
	ep := NewEndpoint(&recordingSender{}, nil)
	if err := ep.Send(nil, 0x7E8); err != ErrInvalidLength {
		t.Errorf("got %v, want ErrInvalidLength", err)
	}
	if err := ep.Send(make([]byte, 4096), 0x7E8); err != ErrInvalidLength {
		t.Errorf("got %v, want ErrInvalidLength", err)
	}
}

func TestSendBusy(t *testing.T) {
	ep := NewEndpoint(&recordingSender{}, nil)
	if err := ep.Send(make([]byte, 50), 0x7E8); err != nil {
		t.Fatal(err)
	}
	if err := ep.Send(make([]byte, 50), 0x7E8); err != ErrBusy {
		t.Errorf("got %v, want ErrBusy", err)
	}
}

func TestReadyBufferOverwriteCountsDropped(t *testing.T) {
	ep := NewEndpoint(&recordingSender{}, nil)
	sf1, _ := canframe.EncodeSingle([]byte{1, 2, 3})
	sf2, _ := canframe.EncodeSingle([]byte{4, 5})
	ep.Feed(sf1[:], 0x7E0)
	ep.Feed(sf2[:], 0x7E0)
	if ep.DroppedReady() != 1 {
		t.Errorf("dropped = %d, want 1", ep.DroppedReady())
	}
	got, ok := ep.ReceiveComplete()
	if !ok || !bytes.Equal(got, []byte{4, 5}) {
		t.Errorf("got (%v, %v), want ([4 5], true)", got, ok)
	}
}
