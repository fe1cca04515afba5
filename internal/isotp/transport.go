// Package isotp implements the ISO 15765-2 (DoCAN) segmentation/reassembly
// transport: Single/First/Consecutive/Flow-Control frame handling, sequence
// checking, timeouts, and flow-control-driven retry with exponential
// backoff.
package isotp

import (
	"time"

	"candiag/internal/canframe"
)

const (
	// BufferSize bounds both the receive reassembly buffer and the
	// transmit payload buffer.
	BufferSize = 4096
	// MaxMessageSize is the largest payload representable by the 12-bit
	// First Frame length field.
	MaxMessageSize = 4095

	nAs = 1000 * time.Millisecond
	nAr = 5000 * time.Millisecond
	nBs = 1000 * time.Millisecond
	nCr = 1000 * time.Millisecond

	seqErrorMax    = 3
	maxRetries     = 3
	backoffBase    = 100 * time.Millisecond
	backoffMax     = 1000 * time.Millisecond
	fcResponseBias = 8
)

type rxState int

const (
	rxIdle rxState = iota
	rxReceivingCF
)

type txState int

const (
	txIdle txState = iota
	txSendingCF
	txWaitingFC
)

// FrameSender is the physical CAN driver capability the transport emits
// frames through. Implementations are expected to be non-blocking.
type FrameSender interface {
	Send(id uint32, data [canframe.MaxDataLen]byte) error
}

// Endpoint holds one conversation's reassembly and segmentation state. It is
// not safe for concurrent use: Feed and Tick are mutually exclusive by
// construction, invoked from the single cooperative dispatch loop.
type Endpoint struct {
	sender FrameSender
	sink   ErrorSink

	rxState        rxState
	rxBuf          [BufferSize]byte
	rxTotalLen     int
	rxReceived     int
	rxSeq          uint8
	rxSourceID     uint32
	rxLastCF       time.Time
	rxSeqErrCount  int
	ready          []byte
	readyValid     bool
	droppedReady   int

	txState       txState
	txBuf         [BufferSize]byte
	txTotalLen    int
	txSent        int
	txSeq         uint8
	txDestID      uint32
	txLastSend    time.Time
	txBlockSize   byte
	txSTmin       time.Duration
	txFCWaitStart time.Time
	txOverflow    int
	txRetry       int
	txBackoffUntil time.Time
}

// NewEndpoint constructs an Endpoint that emits frames through sender and
// reports errors through sink. sink may be nil (errors are dropped, per
// NopSink semantics).
func NewEndpoint(sender FrameSender, sink ErrorSink) *Endpoint {
	if sink == nil {
		sink = NopSink{}
	}
	return &Endpoint{sender: sender, sink: sink}
}

// DroppedReady reports how many completed receive payloads were overwritten
// before being read via ReceiveComplete. Observational only; the transport's
// contract does not depend on it (see the ready-buffer overwrite open
// question).
func (e *Endpoint) DroppedReady() int { return e.droppedReady }

// Send begins transmitting payload to destID, choosing a Single or First
// Frame depending on length.
func (e *Endpoint) Send(payload []byte, destID uint32) error {
	n := len(payload)
	if n == 0 || n > MaxMessageSize {
		return ErrInvalidLength
	}
	if n <= 7 {
		frame, err := canframe.EncodeSingle(payload)
		if err != nil {
			return &SendError{Reason: err.Error()}
		}
		return e.sender.Send(destID, frame)
	}
	if e.txState != txIdle {
		return ErrBusy
	}
	copy(e.txBuf[:], payload)
	e.txTotalLen = n
	e.txDestID = destID
	e.txSeq = 0
	e.txOverflow = 0
	e.txRetry = 0
	e.txBlockSize = 0
	e.txSTmin = 0
	return e.startFirstFrame()
}

func (e *Endpoint) startFirstFrame() error {
	first5 := e.txBuf[0:5]
	frame, err := canframe.EncodeFirst(e.txTotalLen, first5)
	if err != nil {
		return &SendError{Reason: err.Error()}
	}
	if err := e.sender.Send(e.txDestID, frame); err != nil {
		return &SendError{Reason: err.Error()}
	}
	e.txSent = 5
	e.txState = txWaitingFC
	e.txFCWaitStart = now()
	return nil
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }

// Feed routes an inbound frame by its PCI type. sourceID is the CAN
// identifier the frame arrived on, used to address any Flow Control
// response (source_id + 8, the ISO 15765-4 convention).
func (e *Endpoint) Feed(data []byte, sourceID uint32) {
	typ, _, err := canframe.PCI(data)
	if err != nil {
		return
	}
	switch typ {
	case canframe.PCISingle:
		e.feedSingle(data)
	case canframe.PCIFirst:
		e.feedFirst(data, sourceID)
	case canframe.PCIConsecutive:
		e.feedConsecutive(data)
	case canframe.PCIFlowControl:
		e.feedFlowControl(data)
	}
}

func (e *Endpoint) feedSingle(data []byte) {
	payload, err := canframe.DecodeSingle(data)
	if err != nil {
		return
	}
	e.setReady(payload)
}

func (e *Endpoint) setReady(payload []byte) {
	if e.readyValid {
		e.droppedReady++
	}
	e.ready = append(e.ready[:0], payload...)
	e.readyValid = true
}

func (e *Endpoint) feedFirst(data []byte, sourceID uint32) {
	totalLen, first5, err := canframe.DecodeFirst(data)
	if err != nil {
		return
	}
	// A new First Frame always resets any in-progress reassembly,
	// without reporting an error — the prior stream is simply
	// abandoned.
	if totalLen < 1 || totalLen > BufferSize {
		report(e.sink, ErrBufferOverflow, "rx buffer overflow")
		e.rxState = rxIdle
		return
	}
	e.rxTotalLen = totalLen
	e.rxReceived = 5
	e.rxSeq = 0
	e.rxSourceID = sourceID
	e.rxSeqErrCount = 0
	copy(e.rxBuf[0:5], first5)
	e.rxLastCF = now()
	e.rxState = rxReceivingCF

	fc := canframe.EncodeFlowControl(canframe.FCContinue, 0, 0)
	_ = e.sender.Send(sourceID+fcResponseBias, fc)
}

func (e *Endpoint) feedConsecutive(data []byte) {
	if e.rxState != rxReceivingCF {
		return
	}
	if now().Sub(e.rxLastCF) > nCr {
		report(e.sink, ErrTimeout, "rx timeout")
		e.rxState = rxIdle
		return
	}
	seq, payload, err := canframe.DecodeConsecutive(data)
	if err != nil {
		return
	}
	expected := (e.rxSeq + 1) & 0x0F
	if seq != expected {
		report(e.sink, ErrSequence, "rx sequence error")
		e.rxSeqErrCount++
		if e.rxSeqErrCount >= seqErrorMax {
			e.rxState = rxIdle
		}
		return
	}
	e.rxSeqErrCount = 0
	remaining := e.rxTotalLen - e.rxReceived
	n := len(payload)
	if n > remaining {
		n = remaining
	}
	if n > 7 {
		n = 7
	}
	copy(e.rxBuf[e.rxReceived:e.rxReceived+n], payload[:n])
	e.rxReceived += n
	e.rxSeq = seq
	e.rxLastCF = now()
	if e.rxReceived == e.rxTotalLen {
		e.setReady(e.rxBuf[:e.rxTotalLen])
		e.rxState = rxIdle
	}
}

func (e *Endpoint) feedFlowControl(data []byte) {
	if e.txState == txIdle {
		return
	}
	fcType, blockSize, stminByte, err := canframe.DecodeFlowControl(data)
	if err != nil {
		return
	}
	e.txBlockSize = blockSize
	e.txSTmin = time.Duration(canframe.STmin(stminByte) * float64(time.Millisecond))

	switch fcType {
	case canframe.FCContinue:
		e.txState = txSendingCF
		e.txFCWaitStart = time.Time{}
		e.txOverflow = 0
		e.txLastSend = now()
	case canframe.FCWait:
		e.txState = txWaitingFC
		e.txFCWaitStart = now()
	case canframe.FCOverflow:
		e.txOverflow++
		if e.txOverflow >= maxRetries {
			report(e.sink, ErrFCOverflow, "fc overflow")
			e.txState = txIdle
			return
		}
		e.txState = txWaitingFC
		shift := e.txOverflow
		if shift > 4 {
			shift = 4
		}
		backoff := backoffBase << uint(shift)
		if backoff > backoffMax {
			backoff = backoffMax
		}
		e.txBackoffUntil = now().Add(backoff)
	}
}

// Tick advances timeouts and paced transmission. It must be invoked
// frequently relative to STmin (10ms is safe for the default STmin=0).
func (e *Endpoint) Tick() {
	switch e.txState {
	case txSendingCF:
		e.tickSendingCF()
	case txWaitingFC:
		e.tickWaitingFC()
	}
	if e.rxState == rxReceivingCF {
		if now().Sub(e.rxLastCF) > nCr {
			report(e.sink, ErrTimeout, "rx timeout")
			e.rxState = rxIdle
		}
	}
}

func (e *Endpoint) tickSendingCF() {
	if now().Sub(e.txLastSend) < e.txSTmin {
		return
	}
	remaining := e.txTotalLen - e.txSent
	n := remaining
	if n > 7 {
		n = 7
	}
	frame := canframe.EncodeConsecutive(e.txSeq+1, e.txBuf[e.txSent:e.txSent+n])
	if err := e.sender.Send(e.txDestID, frame); err != nil {
		e.txRetry++
		if e.txRetry >= maxRetries {
			e.txState = txIdle
		}
		return
	}
	e.txRetry = 0
	e.txSeq = (e.txSeq + 1) & 0x0F
	e.txSent += n
	e.txLastSend = now()
	if e.txSent >= e.txTotalLen {
		e.txState = txIdle
	}
}

func (e *Endpoint) tickWaitingFC() {
	if !e.txFCWaitStart.IsZero() && now().Sub(e.txFCWaitStart) > nBs {
		report(e.sink, ErrFCTimeout, "fc timeout")
		e.txState = txIdle
		return
	}
	if !e.txBackoffUntil.IsZero() && !now().Before(e.txBackoffUntil) {
		e.txBackoffUntil = time.Time{}
		e.txFCWaitStart = now()
		_ = e.startFirstFrame()
	}
}

// ReceiveComplete returns the most recently completed payload and clears the
// ready flag. ok is false if no payload is pending.
func (e *Endpoint) ReceiveComplete() (payload []byte, ok bool) {
	if !e.readyValid {
		return nil, false
	}
	e.readyValid = false
	return e.ready, true
}
