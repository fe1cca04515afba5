// Package dispatch wires the frame bus to the ISO-TP transport, the UDS
// service layer, the broadcast decoder, the variable scheduler and the CSV
// logger in a single cooperative event loop, mirroring the ticker-driven
// polling loop the host daemon otherwise runs over elmobd commands.
package dispatch

import (
	"log"
	"math"
	"time"

	"candiag/internal/bus"
	"candiag/internal/canframe"
	"candiag/internal/csvlog"
	"candiag/internal/dbc"
	"candiag/internal/isotp"
	"candiag/internal/scheduler"
	"candiag/internal/uds"
)

const tickInterval = 10 * time.Millisecond

// BroadcastSink receives every decoded broadcast message, e.g. to feed a
// telemetry websocket or a time-series datastore.
type BroadcastSink interface {
	OnBroadcast(msg dbc.DecodedMessage)
}

// senderAdapter adapts bus.Driver's fixed-size Send to isotp.FrameSender.
type senderAdapter struct {
	driver bus.Driver
}

func (s senderAdapter) Send(id uint32, data [canframe.MaxDataLen]byte) error {
	return s.driver.Send(id, data)
}

// Loop owns every live component reachable from one physical CAN interface
// and one logical ECU.
type Loop struct {
	driver    bus.Driver
	endpoint  *isotp.Endpoint
	session   *uds.SessionState
	scheduler *scheduler.Scheduler
	decoder   *dbc.Decoder
	logger    *csvlog.Logger
	broadcast BroadcastSink
	destID    uint32
	localID   uint32

	frames chan bus.Frame
	log    *log.Logger
}

// Options bundles everything Loop needs to construct its components.
type Options struct {
	Driver        bus.Driver
	Vars          []scheduler.Variable
	DIDMap        []uds.DIDEntry
	Resetter      uds.ResetRequester
	DestID        uint32 // arbitration ID the ECU's requests are sent to
	LocalID       uint32 // arbitration ID this endpoint responds on
	LogOpts       csvlog.Options
	LogSink       csvlog.Sink
	Broadcast     BroadcastSink
	ErrorSink     isotp.ErrorSink
	RequestPeriod time.Duration
	MaxPending    int
	Logger        *log.Logger
}

// New constructs a fully wired Loop. The scheduler and session are linked
// both ways: the scheduler issues reads through the ISO-TP endpoint, and
// the UDS session looks up cached values through the scheduler.
func New(opts Options) *Loop {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	sender := senderAdapter{driver: opts.Driver}
	endpoint := isotp.NewEndpoint(sender, opts.ErrorSink)

	l := &Loop{
		driver:    opts.Driver,
		endpoint:  endpoint,
		decoder:   dbc.NewDecoder(),
		logger:    csvlog.New(opts.LogSink, opts.LogOpts),
		broadcast: opts.Broadcast,
		destID:    opts.DestID,
		localID:   opts.LocalID,
		frames:    make(chan bus.Frame, 256),
		log:       opts.Logger,
	}

	sched := scheduler.New(opts.Vars, requestIssuerFunc(l.issueRead), opts.DestID, opts.RequestPeriod, opts.MaxPending)
	l.scheduler = sched
	l.session = uds.NewSessionState(opts.DIDMap, sched, opts.Resetter)

	opts.Driver.Subscribe(frameListener{loop: l})
	return l
}

type requestIssuerFunc func(did uint16, destID uint32) error

func (f requestIssuerFunc) IssueReadByDID(did uint16, destID uint32) error { return f(did, destID) }

func (l *Loop) issueRead(did uint16, destID uint32) error {
	req := []byte{uds.SvcReadDataByIdentifier, byte(did >> 8), byte(did)}
	return l.endpoint.Send(req, destID)
}

type frameListener struct{ loop *Loop }

func (fl frameListener) Handle(f bus.Frame) {
	select {
	case fl.loop.frames <- f:
	default:
		fl.loop.log.Printf("dispatch: frame queue full, dropping frame %#x", f.ID)
	}
}

// Run drains the frame channel and ticks every component until stop is
// closed.
func (l *Loop) Run(stop <-chan struct{}) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case f := <-l.frames:
			l.handleFrame(f)
		case <-ticker.C:
			l.tick()
		}
	}
}

func (l *Loop) handleFrame(f bus.Frame) {
	if f.ID == l.localID {
		l.endpoint.Feed(f.Data[:f.DLC], f.ID)
		if payload, ok := l.endpoint.ReceiveComplete(); ok {
			l.handleUDSRequest(payload)
		}
		return
	}
	if msg, err := l.decoder.Decode(f.ID, f.Data[:f.DLC]); err == nil {
		l.onBroadcastDecoded(msg)
		return
	}
	// Not a broadcast message and not addressed to us at the transport
	// level: still feed it in case it's a response on our destination ID
	// (e.g. a positive UDS response coming back from the ECU we polled).
	if f.ID == l.destID {
		l.endpoint.Feed(f.Data[:f.DLC], f.ID)
		if payload, ok := l.endpoint.ReceiveComplete(); ok {
			l.handleUDSResponse(payload)
		}
	}
}

func (l *Loop) onBroadcastDecoded(msg dbc.DecodedMessage) {
	if l.broadcast != nil {
		l.broadcast.OnBroadcast(msg)
	}
}

func (l *Loop) handleUDSRequest(request []byte) {
	resp, emit := l.session.Process(request)
	if !emit {
		return
	}
	_ = l.endpoint.Send(resp, l.destID)
}

// handleUDSResponse decodes a positive ReadDataByIdentifier response and
// feeds it back into the scheduler so Lookup reflects the fresh value.
func (l *Loop) handleUDSResponse(response []byte) {
	if len(response) < 7 || response[0] != uds.SvcReadDataByIdentifier+0x40 {
		return
	}
	did := uint16(response[1])<<8 | uint16(response[2])
	bits := uint32(response[3])<<24 | uint32(response[4])<<16 | uint32(response[5])<<8 | uint32(response[6])
	value := math.Float32frombits(bits)
	_ = l.scheduler.OnResponse(did, value)
}

// Snapshot exposes the current scheduler variable table, for a status
// surface running alongside the loop (e.g. internal/httpapi).
func (l *Loop) Snapshot() []scheduler.Snapshot {
	return l.scheduler.Snapshot()
}

func (l *Loop) tick() {
	l.endpoint.Tick()
	l.scheduler.Tick()
	l.session.CheckTesterPresent()
	l.logger.Tick()

	nowMS := uint32(time.Now().UnixMilli())
	for _, snap := range l.scheduler.Snapshot() {
		if !snap.Valid {
			continue
		}
		l.logger.WriteEntry(nowMS, uint32(snap.VarID), snap.Value)
	}
}
