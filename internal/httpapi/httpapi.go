// Package httpapi exposes the diagnostic engine's live state to external
// dashboards: a small REST surface over the current variable table, DID
// read history, capture sessions, alerts, and the mirrored ECU
// configuration record, plus a websocket that fans out every decoded
// broadcast signal and log-status tick as it happens. The websocket client
// bookkeeping mirrors the host daemon's own connection-pool pattern: one
// map of live connections guarded by a mutex, broadcast by iterating and
// dropping any connection that errors.
package httpapi

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"candiag/internal/datastore"
	"candiag/internal/dbc"
	"candiag/internal/ecuconfig"
	"candiag/internal/scheduler"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// SignalEvent is one decoded broadcast message, as pushed to websocket
// clients.
type SignalEvent struct {
	Type    string             `json:"type"`
	Message dbc.DecodedMessage `json:"message"`
}

// LogStatusEvent reports the CSV logger's ring-buffer occupancy.
type LogStatusEvent struct {
	Type      string `json:"type"`
	BufferUse int    `json:"buffer_used"`
}

// SignalProvider is the current scheduler variable table, as exposed by
// either a live scheduler.Scheduler or a running dispatch.Loop.
type SignalProvider interface {
	Snapshot() []scheduler.Snapshot
}

// Server is the HTTP/WebSocket surface over the engine's live state.
type Server struct {
	store    datastore.Store
	signals  SignalProvider
	ecuID    uint32
	ecuStore ecuconfig.Store

	router *mux.Router

	clientsMu sync.Mutex
	clients   map[*websocket.Conn]bool
}

// NewServer builds a Server wired to the given datastore and signal
// provider for the given ECU identifier.
func NewServer(store datastore.Store, signals SignalProvider, ecuID uint32) *Server {
	s := &Server{
		store:   store,
		signals: signals,
		ecuID:   ecuID,
		clients: make(map[*websocket.Conn]bool),
	}
	s.router = s.routes()
	return s
}

// SetSignalProvider rebinds the signal provider after construction, for
// callers that must wire the HTTP server before the component providing
// live snapshots exists (e.g. a dispatch.Loop built from Options
// referencing this Server as a broadcast sink).
func (s *Server) SetSignalProvider(signals SignalProvider) {
	s.signals = signals
}

// SetECUConfigStore wires the mirrored ECU configuration-record backend,
// enabling /api/ecuconfig. Left nil, that route reports 501.
func (s *Server) SetECUConfigStore(store ecuconfig.Store) {
	s.ecuStore = store
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/ws", s.handleWebsocket)
	r.HandleFunc("/api/signals", s.handleSignals).Methods(http.MethodGet)
	r.HandleFunc("/api/did/{did}", s.handleDIDHistory).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions", s.handleListSessions).Methods(http.MethodGet)
	r.HandleFunc("/api/sessions/{id}", s.handleGetSession).Methods(http.MethodGet)
	r.HandleFunc("/api/alerts", s.handleAlerts).Methods(http.MethodGet)
	r.HandleFunc("/api/ecuconfig", s.handleGetECUConfig).Methods(http.MethodGet)
	r.HandleFunc("/api/ecuconfig", s.handlePutECUConfig).Methods(http.MethodPut)
	return r
}

// ListenAndServe starts the HTTP server on addr, blocking until it exits.
func (s *Server) ListenAndServe(addr string) error {
	log.Printf("httpapi: listening on http://%s", addr)
	return http.ListenAndServe(addr, s.router)
}

func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("httpapi: websocket upgrade error: %v", err)
		return
	}

	s.clientsMu.Lock()
	s.clients[ws] = true
	s.clientsMu.Unlock()

	defer func() {
		s.clientsMu.Lock()
		delete(s.clients, ws)
		s.clientsMu.Unlock()
		ws.Close()
	}()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}
}

// OnBroadcast implements dispatch.BroadcastSink, so a Server can be passed
// directly as a dispatch.Options.Broadcast sink.
func (s *Server) OnBroadcast(msg dbc.DecodedMessage) {
	s.broadcast(SignalEvent{Type: "signal", Message: msg})
}

// BroadcastLogStatus pushes the logger's current ring-buffer occupancy to
// every connected websocket client.
func (s *Server) BroadcastLogStatus(bufferUsed int) {
	s.broadcast(LogStatusEvent{Type: "log_status", BufferUse: bufferUsed})
}

func (s *Server) broadcast(event interface{}) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("httpapi: marshal broadcast event: %v", err)
		return
	}

	s.clientsMu.Lock()
	defer s.clientsMu.Unlock()

	for client := range s.clients {
		if err := client.WriteMessage(websocket.TextMessage, payload); err != nil {
			client.Close()
			delete(s.clients, client)
		}
	}
}

func (s *Server) handleSignals(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.signals.Snapshot())
}

func (s *Server) handleDIDHistory(w http.ResponseWriter, r *http.Request) {
	didStr := mux.Vars(r)["did"]
	did, err := strconv.ParseUint(didStr, 0, 16)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid DID %q", didStr), http.StatusBadRequest)
		return
	}

	start, end := parseTimeRange(r)
	readings, err := s.store.GetDIDReadings(s.ecuID, uint16(did), start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, readings)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.store.ListSessions()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, sessions)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	session, err := s.store.GetSession(id)
	if err != nil {
		http.Error(w, err.Error(), http.StatusNotFound)
		return
	}
	writeJSON(w, session)
}

func (s *Server) handleAlerts(w http.ResponseWriter, r *http.Request) {
	start, end := parseTimeRange(r)
	alerts, err := s.store.GetAlerts(s.ecuID, start, end)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, alerts)
}

// handleGetECUConfig reports the mirrored ECU configuration record: the
// same validated, checksummed settings the embedded device itself stores.
func (s *Server) handleGetECUConfig(w http.ResponseWriter, r *http.Request) {
	if s.ecuStore == nil {
		http.Error(w, "ecuconfig store not configured", http.StatusNotImplemented)
		return
	}
	writeJSON(w, ecuconfig.Load(s.ecuStore))
}

// handlePutECUConfig validates and persists a replacement ECU configuration
// record, rejecting anything ecuconfig.Validate would reject.
func (s *Server) handlePutECUConfig(w http.ResponseWriter, r *http.Request) {
	if s.ecuStore == nil {
		http.Error(w, "ecuconfig store not configured", http.StatusNotImplemented)
		return
	}
	var rec ecuconfig.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := ecuconfig.Save(s.ecuStore, rec); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, rec)
}

func parseTimeRange(r *http.Request) (time.Time, time.Time) {
	end := time.Now()
	start := end.Add(-1 * time.Hour)

	if v := r.URL.Query().Get("start"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			start = t
		}
	}
	if v := r.URL.Query().Get("end"); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			end = t
		}
	}
	return start, end
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: encode response: %v", err)
	}
}
