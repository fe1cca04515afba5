// Package uds implements the ISO 14229 diagnostic service layer: session
// state machine with tester-present liveness, service dispatch, and the
// data-identifier-to-variable mapping.
package uds

import (
	"math"
	"time"
)

// Service identifiers.
const (
	SvcDiagnosticSessionControl = 0x10
	SvcECUReset                 = 0x11
	SvcReadDataByIdentifier     = 0x22
	SvcWriteDataByIdentifier    = 0x2E
	SvcSecurityAccess           = 0x27
	SvcTesterPresent            = 0x3E
	SvcReadDTCInformation       = 0x19
	SvcClearDiagnosticInfo      = 0x14

	negativeResponseSID = 0x7F
	positiveOffset       = 0x40
)

// Negative Response Codes.
const (
	NRCGeneralReject               = 0x10
	NRCServiceNotSupported         = 0x11
	NRCSubFunctionNotSupported     = 0x12
	NRCIncorrectMessageLength      = 0x13
	NRCResponseTooLong             = 0x14
	NRCBusyRepeatRequest           = 0x21
	NRCConditionsNotCorrect        = 0x22
	NRCRequestSequenceError        = 0x24
	NRCNoResponseFromSubnet        = 0x25
	NRCFailurePreventExecution     = 0x26
	NRCRequestOutOfRange           = 0x31
	NRCSecurityAccessDenied        = 0x33
	NRCInvalidKey                  = 0x35
	NRCExceedNumberOfAttempts      = 0x36
	NRCRequiredTimeDelayNotExpired = 0x37
)

// Diagnostic session identifiers.
type Session uint8

const (
	SessionDefault      Session = 0x01
	SessionProgramming  Session = 0x02
	SessionExtended     Session = 0x03
	SessionSafetySystem Session = 0x04
)

const testerPresentTimeout = 5000 * time.Millisecond

var nowFunc = time.Now

func now() time.Time { return nowFunc() }

// DIDEntry maps a UDS Data Identifier to an EPIC variable hash id.
type DIDEntry struct {
	DID   uint16
	VarID int32
}

// VariableLookup resolves the current value of a variable backing a DID
// read. ok is false if the variable is unknown to the scheduler; valid is
// false if a value has never successfully been read.
type VariableLookup interface {
	Lookup(varID int32) (value float32, valid bool, ok bool)
}

// ResetRequester is notified after a positive ECUReset response has been
// emitted, so the host process can perform the actual reset. The service
// layer itself never resets anything — it only emits the acknowledgement.
type ResetRequester interface {
	RequestReset(hard bool)
}

// Session holds the diagnostic session state machine, owned singleton per
// ECU endpoint.
type SessionState struct {
	didMap   []DIDEntry
	vars     VariableLookup
	resetter ResetRequester

	current           Session
	lastTesterPresent time.Time
}

// NewSessionState constructs a session state machine starting in the
// Default session. vars resolves DID reads; resetter may be nil if ECUReset
// acknowledgement without actual reset handling is acceptable.
func NewSessionState(didMap []DIDEntry, vars VariableLookup, resetter ResetRequester) *SessionState {
	return &SessionState{
		didMap:   didMap,
		vars:     vars,
		resetter: resetter,
		current:  SessionDefault,
	}
}

// Current returns the active diagnostic session.
func (s *SessionState) Current() Session { return s.current }

func (s *SessionState) findDID(did uint16) (int32, bool) {
	for _, e := range s.didMap {
		if e.DID == did {
			return e.VarID, true
		}
	}
	return 0, false
}

func negativeResponse(sid byte, nrc byte) []byte {
	return []byte{negativeResponseSID, sid, nrc}
}

// Process dispatches a reassembled diagnostic request and returns the
// response to emit. A nil response (with ok=false) means "emit nothing" —
// the suppressed TesterPresent case.
func (s *SessionState) Process(request []byte) (response []byte, emit bool) {
	if len(request) < 1 {
		return nil, false
	}
	sid := request[0]
	switch sid {
	case SvcDiagnosticSessionControl:
		return s.handleSessionControl(request)
	case SvcECUReset:
		return s.handleECUReset(request)
	case SvcReadDataByIdentifier:
		return s.handleReadDataByIdentifier(request)
	case SvcTesterPresent:
		return s.handleTesterPresent(request)
	default:
		return negativeResponse(sid, NRCServiceNotSupported), true
	}
}

func (s *SessionState) handleSessionControl(req []byte) ([]byte, bool) {
	if len(req) < 2 {
		return negativeResponse(req[0], NRCIncorrectMessageLength), true
	}
	sub := Session(req[1])
	if sub == 0 || sub > SessionSafetySystem {
		return negativeResponse(req[0], NRCSubFunctionNotSupported), true
	}
	s.current = sub
	s.lastTesterPresent = now()
	return []byte{SvcDiagnosticSessionControl + positiveOffset, byte(sub)}, true
}

func (s *SessionState) handleECUReset(req []byte) ([]byte, bool) {
	if len(req) < 2 {
		return negativeResponse(req[0], NRCIncorrectMessageLength), true
	}
	sub := req[1]
	if sub != 0x01 && sub != 0x03 {
		return negativeResponse(req[0], NRCSubFunctionNotSupported), true
	}
	if s.resetter != nil {
		s.resetter.RequestReset(sub == 0x01)
	}
	return []byte{SvcECUReset + positiveOffset, sub}, true
}

func (s *SessionState) handleReadDataByIdentifier(req []byte) ([]byte, bool) {
	if len(req) < 3 {
		return negativeResponse(req[0], NRCIncorrectMessageLength), true
	}
	did := uint16(req[1])<<8 | uint16(req[2])
	varID, found := s.findDID(did)
	if !found {
		return negativeResponse(req[0], NRCRequestOutOfRange), true
	}
	value, valid, known := s.vars.Lookup(varID)
	if !known || !valid {
		return negativeResponse(req[0], NRCConditionsNotCorrect), true
	}
	bits := math.Float32bits(value)
	resp := []byte{
		SvcReadDataByIdentifier + positiveOffset,
		byte(did >> 8), byte(did),
		byte(bits >> 24), byte(bits >> 16), byte(bits >> 8), byte(bits),
	}
	return resp, true
}

func (s *SessionState) handleTesterPresent(req []byte) ([]byte, bool) {
	if len(req) < 2 {
		return negativeResponse(req[0], NRCIncorrectMessageLength), true
	}
	s.lastTesterPresent = now()
	if req[1] == 0x00 {
		return nil, false
	}
	if req[1] == 0x01 {
		return []byte{0x7E, 0x01}, true
	}
	return negativeResponse(req[0], NRCSubFunctionNotSupported), true
}

// CheckTesterPresent reverts the session to Default if the tester-present
// timeout has elapsed. Call periodically from the dispatch loop's tick.
func (s *SessionState) CheckTesterPresent() {
	if s.current == SessionDefault {
		return
	}
	if now().Sub(s.lastTesterPresent) > testerPresentTimeout {
		s.current = SessionDefault
	}
}
