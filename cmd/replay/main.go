// Command replay plays back a recorded capture session, printing each
// frame at (or faster/slower than) its original timing.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"candiag/internal/capture"
)

func main() {
	var (
		captureFile string
		speed       float64
		list        bool
	)

	flag.StringVar(&captureFile, "file", "", "capture session file to replay")
	flag.Float64Var(&speed, "speed", 1.0, "replay speed multiplier (1.0 = real-time)")
	flag.BoolVar(&list, "list", false, "list available capture session files")
	flag.Parse()

	if list {
		listCaptureFiles()
		return
	}

	if captureFile == "" {
		fmt.Println("Please specify a capture file with -file")
		os.Exit(1)
	}

	session, err := capture.LoadSession(captureFile)
	if err != nil {
		log.Fatalf("Failed to load session: %v", err)
	}

	replayer := capture.NewReplayer(session)
	replayer.SetSpeed(speed)

	fmt.Printf("Replaying session from %s\n", session.StartTime)
	fmt.Printf("ECU Info: %s\n", session.ECUInfo)
	fmt.Printf("Total frames: %d\n", len(session.Frames))

	if err := replayer.Play(func(frame capture.Frame) {
		fmt.Printf("Frame ID: 0x%X, Data: %X\n", frame.ID, frame.Data)
	}); err != nil {
		log.Fatalf("Replay failed: %v", err)
	}
}

func listCaptureFiles() {
	files, err := filepath.Glob("captures/*.json")
	if err != nil {
		log.Fatalf("Failed to list capture files: %v", err)
	}

	if len(files) == 0 {
		fmt.Println("No capture files found")
		return
	}

	fmt.Println("Available capture files:")
	for _, file := range files {
		session, err := capture.LoadSession(file)
		if err != nil {
			fmt.Printf("  %s (error: %v)\n", file, err)
			continue
		}

		duration := session.EndTime.Sub(session.StartTime)
		fmt.Printf("  %s:\n", filepath.Base(file))
		fmt.Printf("    Date: %s\n", session.StartTime)
		fmt.Printf("    Duration: %s\n", duration)
		fmt.Printf("    ECU: %s\n", session.ECUInfo)
		fmt.Printf("    Frames: %d\n", len(session.Frames))
		fmt.Println()
	}
}
