package analysis

import (
	"encoding/csv"
	"fmt"
	"os"
)

// ExportToCSV writes one row per decoded signal sample across the session:
// timestamp, CAN arbitration ID, signal name, value.
func (a *Analyzer) ExportToCSV(filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("analysis: create export file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"Timestamp", "CAN ID", "Signal", "Value"}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("analysis: write header: %w", err)
	}

	for _, frame := range a.session.Frames {
		values := decodedValues(frame)
		if len(values) == 0 {
			continue
		}
		timestamp := frame.Timestamp.Format("2006-01-02T15:04:05.000Z07:00")
		for name, v := range values {
			record := []string{
				timestamp,
				fmt.Sprintf("0x%X", frame.ID),
				name,
				fmt.Sprintf("%.4f", v),
			}
			if err := writer.Write(record); err != nil {
				return fmt.Errorf("analysis: write record: %w", err)
			}
		}
	}

	return nil
}
