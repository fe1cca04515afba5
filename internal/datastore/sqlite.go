package datastore

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteStore persists capture sessions, DID read history, and alerts —
// the relational, low-rate side of the store.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) a SQLite database at dbPath and
// ensures its schema exists.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("datastore: open sqlite %s: %w", dbPath, err)
	}

	s := &SQLiteStore{db: db}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			ecu_id INTEGER NOT NULL,
			start_time TIMESTAMP NOT NULL,
			end_time TIMESTAMP,
			log_path TEXT,
			capture_path TEXT,
			frame_count INTEGER
		)`,
		`CREATE TABLE IF NOT EXISTS did_readings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ecu_id INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			did INTEGER NOT NULL,
			var_id INTEGER NOT NULL,
			value REAL NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alerts (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ecu_id INTEGER NOT NULL,
			timestamp TIMESTAMP NOT NULL,
			signal TEXT NOT NULL,
			severity TEXT NOT NULL,
			message TEXT NOT NULL,
			value REAL,
			threshold REAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_did_readings_ecu_did_time
			ON did_readings(ecu_id, did, timestamp)`,
		`CREATE INDEX IF NOT EXISTS idx_alerts_ecu_time
			ON alerts(ecu_id, timestamp)`,
	}

	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return fmt.Errorf("datastore: create schema: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) SaveSession(sess *CaptureSession) error {
	_, err := s.db.Exec(`
		INSERT OR REPLACE INTO sessions (id, ecu_id, start_time, end_time, log_path, capture_path, frame_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.ECUID, sess.StartTime, sess.EndTime, sess.LogPath, sess.CapturePath, sess.FrameCount)
	if err != nil {
		return fmt.Errorf("datastore: save session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetSession(id string) (*CaptureSession, error) {
	var sess CaptureSession
	err := s.db.QueryRow(`
		SELECT id, ecu_id, start_time, end_time, log_path, capture_path, frame_count
		FROM sessions WHERE id = ?`, id).
		Scan(&sess.ID, &sess.ECUID, &sess.StartTime, &sess.EndTime, &sess.LogPath, &sess.CapturePath, &sess.FrameCount)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("datastore: session not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("datastore: get session: %w", err)
	}
	return &sess, nil
}

func (s *SQLiteStore) ListSessions() ([]*CaptureSession, error) {
	rows, err := s.db.Query(`
		SELECT id, ecu_id, start_time, end_time, log_path, capture_path, frame_count
		FROM sessions ORDER BY start_time DESC`)
	if err != nil {
		return nil, fmt.Errorf("datastore: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*CaptureSession
	for rows.Next() {
		var sess CaptureSession
		if err := rows.Scan(&sess.ID, &sess.ECUID, &sess.StartTime, &sess.EndTime, &sess.LogPath, &sess.CapturePath, &sess.FrameCount); err != nil {
			return nil, fmt.Errorf("datastore: scan session: %w", err)
		}
		out = append(out, &sess)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveDIDReading(ecuID uint32, r *DIDReading) error {
	_, err := s.db.Exec(`
		INSERT INTO did_readings (ecu_id, timestamp, did, var_id, value)
		VALUES (?, ?, ?, ?, ?)`,
		ecuID, r.Timestamp, r.DID, r.VarID, r.Value)
	if err != nil {
		return fmt.Errorf("datastore: save DID reading: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetDIDReadings(ecuID uint32, did uint16, start, end time.Time) ([]*DIDReading, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, did, var_id, value FROM did_readings
		WHERE ecu_id = ? AND did = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp`, ecuID, did, start, end)
	if err != nil {
		return nil, fmt.Errorf("datastore: query DID readings: %w", err)
	}
	defer rows.Close()

	var out []*DIDReading
	for rows.Next() {
		var r DIDReading
		if err := rows.Scan(&r.Timestamp, &r.DID, &r.VarID, &r.Value); err != nil {
			return nil, fmt.Errorf("datastore: scan DID reading: %w", err)
		}
		out = append(out, &r)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) SaveAlert(ecuID uint32, a *Alert) error {
	_, err := s.db.Exec(`
		INSERT INTO alerts (ecu_id, timestamp, signal, severity, message, value, threshold)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ecuID, a.Timestamp, a.Signal, a.Severity, a.Message, a.Value, a.Threshold)
	if err != nil {
		return fmt.Errorf("datastore: save alert: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetAlerts(ecuID uint32, start, end time.Time) ([]*Alert, error) {
	rows, err := s.db.Query(`
		SELECT timestamp, signal, severity, message, value, threshold FROM alerts
		WHERE ecu_id = ? AND timestamp BETWEEN ? AND ?
		ORDER BY timestamp DESC`, ecuID, start, end)
	if err != nil {
		return nil, fmt.Errorf("datastore: query alerts: %w", err)
	}
	defer rows.Close()

	var out []*Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.Timestamp, &a.Signal, &a.Severity, &a.Message, &a.Value, &a.Threshold); err != nil {
			return nil, fmt.Errorf("datastore: scan alert: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("datastore: close sqlite: %w", err)
	}
	return nil
}
