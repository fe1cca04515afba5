package analysis

import (
	"math"
	"testing"
	"time"

	"candiag/internal/capture"
	"candiag/internal/dbc"
)

func TestAnalyzer(t *testing.T) {
	now := time.Now()
	session := &capture.Session{
		StartTime: now,
		EndTime:   now.Add(10 * time.Second),
		ECUInfo:   "ECU 1",
		Frames: []capture.Frame{
			{
				Type:      "CAN",
				Timestamp: now,
				ID:        512,
				Data:      []byte{0, 0, 0, 0, 0, 0, 0, 0},
				Decoded: dbc.DecodedMessage{
					ID:   512,
					Name: "BASE0",
					Values: map[string]float64{
						"rpm":   800.0,
						"speed": 0.0,
					},
				},
			},
			{
				Type:      "CAN",
				Timestamp: now.Add(2 * time.Second),
				ID:        512,
				Data:      []byte{0, 0, 0, 0, 0, 0, 0, 0},
				Decoded: dbc.DecodedMessage{
					ID:   512,
					Name: "BASE0",
					Values: map[string]float64{
						"rpm":   2500.0,
						"speed": 20.0,
					},
				},
			},
			{
				Type:      "CAN",
				Timestamp: now.Add(4 * time.Second),
				ID:        512,
				Data:      []byte{0, 0, 0, 0, 0, 0, 0, 0},
				Decoded: dbc.DecodedMessage{
					ID:   512,
					Name: "BASE0",
					Values: map[string]float64{
						"rpm":   2000.0,
						"speed": 60.0,
					},
				},
			},
			{
				Type:      "CAN",
				Timestamp: now.Add(8 * time.Second),
				ID:        520,
				Data:      []byte{0x02, 0x41, 0x0D, 0x45, 0x00, 0x00, 0x00, 0x00},
			},
		},
	}

	analyzer := NewAnalyzer(session)

	analysis, err := analyzer.Analyze()
	if err != nil {
		t.Fatalf("Analysis failed: %v", err)
	}

	if analysis.SessionInfo.Duration != 10*time.Second {
		t.Errorf("Expected duration 10s, got %v", analysis.SessionInfo.Duration)
	}
	if analysis.SessionInfo.TotalFrames != 4 {
		t.Errorf("Expected 4 frames, got %d", analysis.SessionInfo.TotalFrames)
	}

	speed, ok := analysis.Signals["speed"]
	if !ok {
		t.Fatal("Expected speed signal stats")
	}
	if speed.Max != 60.0 {
		t.Errorf("Expected max speed 60.0, got %f", speed.Max)
	}

	rpm, ok := analysis.Signals["rpm"]
	if !ok {
		t.Fatal("Expected rpm signal stats")
	}
	if rpm.Min != 800.0 {
		t.Errorf("Expected min RPM 800.0, got %f", rpm.Min)
	}

	if analysis.CANActivity.UniqueIDs != 2 {
		t.Errorf("Expected 2 unique CAN IDs, got %d", analysis.CANActivity.UniqueIDs)
	}
}

func TestCalculateStats(t *testing.T) {
	values := []float64{1.0, 2.0, 3.0, 4.0, 5.0}
	stats := CalculateStats(values)

	expected := Stats{
		Min:    1.0,
		Max:    5.0,
		Mean:   3.0,
		StdDev: 1.5811388300841898,
	}

	if stats.Min != expected.Min {
		t.Errorf("Expected min %f, got %f", expected.Min, stats.Min)
	}
	if stats.Max != expected.Max {
		t.Errorf("Expected max %f, got %f", expected.Max, stats.Max)
	}
	if stats.Mean != expected.Mean {
		t.Errorf("Expected mean %f, got %f", expected.Mean, stats.Mean)
	}
	if math.Abs(stats.StdDev-expected.StdDev) > 0.0001 {
		t.Errorf("Expected stddev %f, got %f", expected.StdDev, stats.StdDev)
	}
}
