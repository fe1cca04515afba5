package datastore

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// InfluxDBStore persists decoded broadcast-signal samples as a time series,
// one point per (ecu, signal, timestamp). This is the high-rate side of the
// store — every BASE0-BASE10 frame the dispatch loop decodes can fan out
// here without touching SQLite's write path.
type InfluxDBStore struct {
	client   influxdb2.Client
	org      string
	bucket   string
	writeAPI api.WriteAPIBlocking
	queryAPI api.QueryAPI
}

const signalMeasurement = "broadcast_signal"

// NewInfluxDBStore connects to an InfluxDB server and verifies reachability
// before handing back a store bound to the given org/bucket.
func NewInfluxDBStore(url, token, org, bucket string) (*InfluxDBStore, error) {
	client := influxdb2.NewClient(url, token)

	store := &InfluxDBStore{
		client:   client,
		org:      org,
		bucket:   bucket,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		queryAPI: client.QueryAPI(org),
	}

	if _, err := client.Ping(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("datastore: connect to influxdb: %w", err)
	}

	return store, nil
}

func (s *InfluxDBStore) SaveSignalPoint(ecuID uint32, p *SignalPoint) error {
	point := influxdb2.NewPoint(
		signalMeasurement,
		map[string]string{
			"ecu_id": fmt.Sprintf("%d", ecuID),
			"signal": p.Signal,
		},
		map[string]interface{}{
			"value":      p.Value,
			"message_id": p.MessageID,
		},
		p.Timestamp,
	)

	if err := s.writeAPI.WritePoint(context.Background(), point); err != nil {
		return fmt.Errorf("datastore: write signal point: %w", err)
	}
	return nil
}

func (s *InfluxDBStore) GetSignalSeries(ecuID uint32, signal string, start, end time.Time) ([]*SignalPoint, error) {
	query := fmt.Sprintf(`
		from(bucket:"%s")
			|> range(start: %s, stop: %s)
			|> filter(fn: (r) => r["_measurement"] == "%s" and r["ecu_id"] == "%d" and r["signal"] == "%s")
			|> filter(fn: (r) => r["_field"] == "value")
			|> sort(columns: ["_time"])
	`, s.bucket, start.Format(time.RFC3339), end.Format(time.RFC3339), signalMeasurement, ecuID, signal)

	result, err := s.queryAPI.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("datastore: query signal series: %w", err)
	}
	defer result.Close()

	var points []*SignalPoint
	for result.Next() {
		record := result.Record()
		value, _ := record.Value().(float64)
		points = append(points, &SignalPoint{
			Timestamp: record.Time(),
			Signal:    signal,
			Value:     value,
		})
	}
	if result.Err() != nil {
		return nil, fmt.Errorf("datastore: read signal series: %w", result.Err())
	}
	return points, nil
}

func (s *InfluxDBStore) GetLatestSignal(ecuID uint32, signal string) (*SignalPoint, error) {
	query := fmt.Sprintf(`
		from(bucket:"%s")
			|> range(start: -30d)
			|> filter(fn: (r) => r["_measurement"] == "%s" and r["ecu_id"] == "%d" and r["signal"] == "%s")
			|> filter(fn: (r) => r["_field"] == "value")
			|> last()
	`, s.bucket, signalMeasurement, ecuID, signal)

	result, err := s.queryAPI.Query(context.Background(), query)
	if err != nil {
		return nil, fmt.Errorf("datastore: query latest signal: %w", err)
	}
	defer result.Close()

	if !result.Next() {
		if result.Err() != nil {
			return nil, fmt.Errorf("datastore: read latest signal: %w", result.Err())
		}
		return nil, fmt.Errorf("datastore: no data for signal %s", signal)
	}

	record := result.Record()
	value, _ := record.Value().(float64)
	return &SignalPoint{Timestamp: record.Time(), Signal: signal, Value: value}, nil
}

func (s *InfluxDBStore) Close() error {
	s.writeAPI.Flush(context.Background())
	s.client.Close()
	return nil
}
