// Package scheduler implements the variable request scheduler: round-robin
// DID polling with a bounded number of in-flight requests, response
// correlation, and a cached variable value table.
package scheduler

import (
	"fmt"
	"time"
)

const responseTimeout = 2000 * time.Millisecond

// Variable is one compiled EPIC variable: its signed 32-bit hash id, its
// human-readable name (grounded on the original firmware's named variable
// table), and the UDS DID it is read through.
type Variable struct {
	ID   int32
	Name string
	DID  uint16
}

type entry struct {
	value       float32
	timestampMS uint32
	valid       bool
	inFlight    bool
	requestTime time.Time
}

// RequestIssuer sends a ReadDataByIdentifier request for the given DID,
// through the UDS/ISO-TP stack, to the endpoint identified by destID.
type RequestIssuer interface {
	IssueReadByDID(did uint16, destID uint32) error
}

var nowFunc = time.Now

func now() time.Time { return nowFunc() }

// Scheduler owns the compiled variable list and its response table.
type Scheduler struct {
	vars                []Variable
	table               map[int32]*entry
	issuer              RequestIssuer
	destID              uint32
	requestIntervalMS   time.Duration
	maxPending          int
	lastIssueTime       time.Time
	cursor              int
	pendingCount        int
}

// New constructs a Scheduler over the given compiled variable list.
func New(vars []Variable, issuer RequestIssuer, destID uint32, requestIntervalMS time.Duration, maxPending int) *Scheduler {
	table := make(map[int32]*entry, len(vars))
	for _, v := range vars {
		table[v.ID] = &entry{}
	}
	return &Scheduler{
		vars:              vars,
		table:             table,
		issuer:            issuer,
		destID:            destID,
		requestIntervalMS: requestIntervalMS,
		maxPending:        maxPending,
	}
}

// Lookup implements uds.VariableLookup so the UDS layer can resolve DID
// reads directly against the scheduler's cached table.
func (s *Scheduler) Lookup(varID int32) (value float32, valid bool, ok bool) {
	e, found := s.table[varID]
	if !found {
		return 0, false, false
	}
	return e.value, e.valid, true
}

// Tick issues at most one new request (respecting the interval and pending
// cap) and expires any in-flight request past its response timeout.
func (s *Scheduler) Tick() {
	s.expireStale()
	if len(s.vars) == 0 {
		return
	}
	if s.pendingCount >= s.maxPending {
		return
	}
	if now().Sub(s.lastIssueTime) < s.requestIntervalMS {
		return
	}
	for i := 0; i < len(s.vars); i++ {
		idx := (s.cursor + i) % len(s.vars)
		v := s.vars[idx]
		e := s.table[v.ID]
		if e.inFlight {
			continue
		}
		if err := s.issuer.IssueReadByDID(v.DID, s.destID); err != nil {
			continue
		}
		e.inFlight = true
		e.requestTime = now()
		s.pendingCount++
		s.lastIssueTime = now()
		s.cursor = (idx + 1) % len(s.vars)
		return
	}
}

func (s *Scheduler) expireStale() {
	for _, e := range s.table {
		if e.inFlight && now().Sub(e.requestTime) > responseTimeout {
			e.inFlight = false
			s.pendingCount--
		}
	}
}

// OnResponse records a successful DID read response, clearing in-flight
// status and updating the cached value.
func (s *Scheduler) OnResponse(did uint16, value float32) error {
	for _, v := range s.vars {
		if v.DID != did {
			continue
		}
		e := s.table[v.ID]
		wasInFlight := e.inFlight
		e.value = value
		e.valid = true
		e.timestampMS = uint32(now().UnixMilli())
		if wasInFlight {
			e.inFlight = false
			s.pendingCount--
		}
		return nil
	}
	return fmt.Errorf("scheduler: no variable mapped to DID %#x", did)
}

// Snapshot returns the current (name, value, timestamp, valid) tuple for
// every compiled variable, in declaration order — used by the logger and
// HTTP status surface.
type Snapshot struct {
	Name        string
	VarID       int32
	Value       float32
	TimestampMS uint32
	Valid       bool
}

func (s *Scheduler) Snapshot() []Snapshot {
	out := make([]Snapshot, 0, len(s.vars))
	for _, v := range s.vars {
		e := s.table[v.ID]
		out = append(out, Snapshot{Name: v.Name, VarID: v.ID, Value: e.value, TimestampMS: e.timestampMS, Valid: e.valid})
	}
	return out
}
