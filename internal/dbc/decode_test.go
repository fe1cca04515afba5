package dbc

import (
	"math/rand"
	"testing"
)

func TestExtractSignalFastMatchesGeneric(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 2000; i++ {
		var data [8]byte
		r.Read(data[:])
		alignedStarts := []int{0, 8, 16, 24, 32, 40, 48, 56}
		start := alignedStarts[r.Intn(len(alignedStarts))]
		length := 8
		if start <= 48 && r.Intn(2) == 0 {
			length = 16
		}
		if start+length > 64 {
			length = 8
		}
		signed := r.Intn(2) == 0

		generic := ExtractSignal(data[:], start, length, signed)
		fast := extractSignalFast(data[:], start, length, signed)
		if generic != fast {
			t.Fatalf("mismatch at start=%d len=%d signed=%v data=%v: generic=%d fast=%d",
				start, length, signed, data, generic, fast)
		}
	}
}

func TestExtractSignalSignExtension(t *testing.T) {
	data := []byte{0x80, 0, 0, 0, 0, 0, 0, 0}
	got := ExtractSignal(data, 0, 8, true)
	if got >= 0 {
		t.Errorf("expected negative value for top-bit-set signed field, got %d", got)
	}
}

func TestDecodeBase1(t *testing.T) {
	data := []byte{0x19, 0x64, 0x00, 0x64, 0x32, 0x96, 0x28, 0x50}
	msg, ok := Decode(MsgBase1, data)
	if !ok {
		t.Fatal("Decode returned false")
	}
	want := map[string]float64{
		"RPM":            6500,
		"IgnitionTiming": 2.0,
		"InjDuty":        25.0,
		"IgnDuty":        75.0,
		"VehicleSpeed":   40,
		"FlexPct":        80,
	}
	for name, w := range want {
		got := msg.Values[name]
		if diff := got - w; diff > 1e-4 || diff < -1e-4 {
			t.Errorf("%s = %v, want %v", name, got, w)
		}
	}
}

func TestDecodeUnknownID(t *testing.T) {
	if _, ok := Decode(999, make([]byte, 8)); ok {
		t.Error("expected false for unknown identifier")
	}
}

func TestDecodeShortFrame(t *testing.T) {
	if _, ok := Decode(MsgBase1, []byte{1, 2, 3}); ok {
		t.Error("expected false for short frame")
	}
}
