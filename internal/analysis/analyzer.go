package analysis

import (
	"fmt"

	"candiag/internal/capture"
	"candiag/internal/dbc"
)

// Analyzer processes capture sessions to generate analysis results.
type Analyzer struct {
	session  *capture.Session
	analysis *Analysis
}

// NewAnalyzer creates a new analyzer instance.
func NewAnalyzer(session *capture.Session) *Analyzer {
	return &Analyzer{
		session:  session,
		analysis: &Analysis{Signals: make(map[string]Stats)},
	}
}

// Analyze processes the session and returns analysis results.
func (a *Analyzer) Analyze() (*Analysis, error) {
	if err := a.analyzeSessionInfo(); err != nil {
		return nil, fmt.Errorf("session info analysis failed: %w", err)
	}
	if err := a.analyzeSignals(); err != nil {
		return nil, fmt.Errorf("signal analysis failed: %w", err)
	}
	if err := a.analyzeCANActivity(); err != nil {
		return nil, fmt.Errorf("CAN activity analysis failed: %w", err)
	}
	return a.analysis, nil
}

func (a *Analyzer) analyzeSessionInfo() error {
	a.analysis.SessionInfo.StartTime = a.session.StartTime
	a.analysis.SessionInfo.EndTime = a.session.EndTime
	a.analysis.SessionInfo.Duration = a.session.EndTime.Sub(a.session.StartTime)
	a.analysis.SessionInfo.ECUInfo = a.session.ECUInfo
	a.analysis.SessionInfo.TotalFrames = len(a.session.Frames)

	duration := a.analysis.SessionInfo.Duration.Seconds()
	if duration > 0 {
		a.analysis.SessionInfo.DataRate = float64(len(a.session.Frames)) / duration
	}
	return nil
}

// analyzeSignals accumulates per-signal-name samples across every decoded
// broadcast frame in the session, then reduces each to a Stats summary.
func (a *Analyzer) analyzeSignals() error {
	samples := make(map[string][]float64)

	for _, frame := range a.session.Frames {
		values := decodedValues(frame)
		for name, v := range values {
			samples[name] = append(samples[name], v)
		}
	}

	for name, vals := range samples {
		a.analysis.Signals[name] = CalculateStats(vals)
	}
	return nil
}

// decodedValues extracts signal name/value pairs from a frame's Decoded
// field, which may be a live dbc.DecodedMessage or, for a session round
// tripped through JSON, the map[string]interface{} the decoder produces.
func decodedValues(frame capture.Frame) map[string]float64 {
	switch decoded := frame.Decoded.(type) {
	case dbc.DecodedMessage:
		return decoded.Values
	case map[string]interface{}:
		raw, ok := decoded["Values"].(map[string]interface{})
		if !ok {
			return nil
		}
		out := make(map[string]float64, len(raw))
		for k, v := range raw {
			if f, ok := v.(float64); ok {
				out[k] = f
			}
		}
		return out
	default:
		return nil
	}
}

func (a *Analyzer) analyzeCANActivity() error {
	idCounts := make(map[uint32]int)
	totalBits := 0

	for _, frame := range a.session.Frames {
		idCounts[frame.ID]++
		// Standard CAN frame overhead (arbitration, control, CRC, ACK, EOF)
		// plus 8 bits per payload byte.
		totalBits += 108 + len(frame.Data)*8
	}

	a.analysis.CANActivity.UniqueIDs = len(idCounts)
	a.analysis.CANActivity.IDCounts = idCounts

	duration := a.analysis.SessionInfo.Duration.Seconds()
	if duration > 0 {
		bitsPerSecond := float64(totalBits) / duration
		a.analysis.CANActivity.BusLoad = bitsPerSecond / 1_000_000 * 100 // percentage of 1Mbps
	}

	return nil
}
