package capture

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	ecuInfo := "Test ECU"
	session := NewSession(ecuInfo)

	if session.ECUInfo != ecuInfo {
		t.Errorf("Expected ECU info %s, got %s", ecuInfo, session.ECUInfo)
	}

	if session.StartTime.IsZero() {
		t.Error("Expected start time to be set")
	}

	if len(session.Frames) != 0 {
		t.Error("Expected empty frames slice")
	}
}

func TestAddFrame(t *testing.T) {
	session := NewSession("Test ECU")
	frame := Frame{
		Timestamp: time.Now(),
		Type:      "CAN",
		ID:        0x200,
		Data:      []byte{0x01, 0x02, 0x03},
	}

	session.AddFrame(frame)

	if len(session.Frames) != 1 {
		t.Error("Expected one frame in session")
	}

	if session.Frames[0].ID != frame.ID {
		t.Errorf("Expected frame ID %x, got %x", frame.ID, session.Frames[0].ID)
	}
}

func TestSaveAndLoadSession(t *testing.T) {
	tempDir := t.TempDir()

	session := NewSession("Test ECU")
	session.filePath = filepath.Join(tempDir, "test_session.json")

	session.AddFrame(Frame{
		Timestamp: time.Now(),
		Type:      "CAN",
		ID:        0x201,
		Data:      []byte{0x01, 0x02, 0x03},
	})

	if err := session.Save(); err != nil {
		t.Fatalf("Failed to save session: %v", err)
	}

	if _, err := os.Stat(session.filePath); os.IsNotExist(err) {
		t.Error("Expected session file to exist")
	}

	loaded, err := LoadSession(session.filePath)
	if err != nil {
		t.Fatalf("Failed to load session: %v", err)
	}
	if len(loaded.Frames) != 1 || loaded.Frames[0].ID != 0x201 {
		t.Errorf("Loaded session frames mismatch: %+v", loaded.Frames)
	}
}

func TestRecorder(t *testing.T) {
	recorder := NewRecorder("Test ECU")

	if err := recorder.Start(); err != nil {
		t.Fatalf("Failed to start recorder: %v", err)
	}

	if !recorder.IsRunning() {
		t.Error("Expected recorder to be running")
	}

	frame := Frame{
		Timestamp: time.Now(),
		Type:      "CAN",
		ID:        0x202,
		Data:      []byte{0x01, 0x02, 0x03},
	}

	if err := recorder.Record(frame); err != nil {
		t.Errorf("Failed to record frame: %v", err)
	}

	recorder.session.filePath = filepath.Join(t.TempDir(), "recorder_session.json")

	if err := recorder.Stop(); err != nil {
		t.Errorf("Failed to stop recorder: %v", err)
	}

	if recorder.IsRunning() {
		t.Error("Expected recorder to be stopped")
	}
}
