// Command analyze loads a capture session from disk and prints signal
// statistics and CAN bus activity, with an optional CSV export.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"candiag/internal/analysis"
	"candiag/internal/capture"
)

func main() {
	var (
		inputFile string
		exportCsv string
	)

	flag.StringVar(&inputFile, "file", "", "capture session file to analyze")
	flag.StringVar(&exportCsv, "export-csv", "", "export decoded signal samples to this CSV file")
	flag.Parse()

	if inputFile == "" {
		fmt.Println("Please specify a capture file with -file")
		os.Exit(1)
	}

	session, err := capture.LoadSession(inputFile)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	analyzer := analysis.NewAnalyzer(session)
	result, err := analyzer.Analyze()
	if err != nil {
		log.Fatalf("Analysis failed: %v", err)
	}

	fmt.Printf("\nSession Analysis for %s\n", filepath.Base(inputFile))
	fmt.Printf("=================================\n")
	fmt.Printf("ECU: %s\n", result.SessionInfo.ECUInfo)
	fmt.Printf("Duration: %s\n", result.SessionInfo.Duration)
	fmt.Printf("Total Frames: %d\n", result.SessionInfo.TotalFrames)
	fmt.Printf("Data Rate: %.2f frames/sec\n", result.SessionInfo.DataRate)

	fmt.Printf("\nCAN Bus Activity:\n")
	fmt.Printf("- Unique CAN IDs: %d\n", result.CANActivity.UniqueIDs)
	fmt.Printf("- Bus Load: %.2f%%\n", result.CANActivity.BusLoad)

	if len(result.Signals) == 0 {
		fmt.Printf("\nNo decoded signals found in this session.\n")
	} else {
		fmt.Printf("\nSignal Statistics:\n")
		for name, stats := range result.Signals {
			fmt.Printf("- %s: min=%.2f max=%.2f mean=%.2f stddev=%.2f (n=%d)\n",
				name, stats.Min, stats.Max, stats.Mean, stats.StdDev, stats.Samples)
		}
	}

	if exportCsv != "" {
		fmt.Printf("\nExporting decoded signals to %s...\n", exportCsv)
		if err := analyzer.ExportToCSV(exportCsv); err != nil {
			log.Fatalf("Failed to export CSV: %v", err)
		}
		fmt.Println("Export complete!")
	}
}
