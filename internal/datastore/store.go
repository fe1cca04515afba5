package datastore

import (
	"fmt"
	"time"
)

// Config holds datastore connection parameters for both backing stores.
type Config struct {
	SQLitePath     string
	InfluxDBURL    string
	InfluxDBOrg    string
	InfluxDBToken  string
	InfluxDBBucket string
}

// CombinedStore implements Store by routing relational bookkeeping to
// SQLite and signal time series to InfluxDB.
type CombinedStore struct {
	sqlite *SQLiteStore
	influx *InfluxDBStore
}

// NewStore opens both backing stores and returns a Store wired across them.
func NewStore(config *Config) (Store, error) {
	sqlite, err := NewSQLiteStore(config.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("datastore: create sqlite store: %w", err)
	}

	influx, err := NewInfluxDBStore(
		config.InfluxDBURL,
		config.InfluxDBToken,
		config.InfluxDBOrg,
		config.InfluxDBBucket,
	)
	if err != nil {
		sqlite.Close()
		return nil, fmt.Errorf("datastore: create influxdb store: %w", err)
	}

	return &CombinedStore{sqlite: sqlite, influx: influx}, nil
}

func (s *CombinedStore) SaveSession(sess *CaptureSession) error {
	return s.sqlite.SaveSession(sess)
}

func (s *CombinedStore) GetSession(id string) (*CaptureSession, error) {
	return s.sqlite.GetSession(id)
}

func (s *CombinedStore) ListSessions() ([]*CaptureSession, error) {
	return s.sqlite.ListSessions()
}

func (s *CombinedStore) SaveDIDReading(ecuID uint32, r *DIDReading) error {
	return s.sqlite.SaveDIDReading(ecuID, r)
}

func (s *CombinedStore) GetDIDReadings(ecuID uint32, did uint16, start, end time.Time) ([]*DIDReading, error) {
	return s.sqlite.GetDIDReadings(ecuID, did, start, end)
}

func (s *CombinedStore) SaveSignalPoint(ecuID uint32, p *SignalPoint) error {
	return s.influx.SaveSignalPoint(ecuID, p)
}

func (s *CombinedStore) GetSignalSeries(ecuID uint32, signal string, start, end time.Time) ([]*SignalPoint, error) {
	return s.influx.GetSignalSeries(ecuID, signal, start, end)
}

func (s *CombinedStore) GetLatestSignal(ecuID uint32, signal string) (*SignalPoint, error) {
	return s.influx.GetLatestSignal(ecuID, signal)
}

func (s *CombinedStore) SaveAlert(ecuID uint32, a *Alert) error {
	return s.sqlite.SaveAlert(ecuID, a)
}

func (s *CombinedStore) GetAlerts(ecuID uint32, start, end time.Time) ([]*Alert, error) {
	return s.sqlite.GetAlerts(ecuID, start, end)
}

func (s *CombinedStore) Close() error {
	sqliteErr := s.sqlite.Close()
	influxErr := s.influx.Close()

	if sqliteErr != nil {
		return sqliteErr
	}
	return influxErr
}
