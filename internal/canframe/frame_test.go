package canframe

import (
	"bytes"
	"testing"
)

func TestSingleFrameRoundtrip(t *testing.T) {
	payload := []byte{0x22, 0xF1, 0x91}
	enc, err := EncodeSingle(payload)
	if err != nil {
		t.Fatalf("EncodeSingle: %v", err)
	}
	got, err := DecodeSingle(enc[:])
	if err != nil {
		t.Fatalf("DecodeSingle: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("got %v, want %v", got, payload)
	}
}

func TestSingleFrameLengthBounds(t *testing.T) {
	if _, err := EncodeSingle(nil); err == nil {
		t.Error("expected error for empty payload")
	}
	if _, err := EncodeSingle(make([]byte, 8)); err == nil {
		t.Error("expected error for 8-byte payload")
	}
}

func TestFirstFrameRoundtrip(t *testing.T) {
	first5 := []byte{1, 2, 3, 4, 5}
	enc, err := EncodeFirst(20, first5)
	if err != nil {
		t.Fatalf("EncodeFirst: %v", err)
	}
	total, got, err := DecodeFirst(enc[:])
	if err != nil {
		t.Fatalf("DecodeFirst: %v", err)
	}
	if total != 20 {
		t.Errorf("total = %d, want 20", total)
	}
	if !bytes.Equal(got, first5) {
		t.Errorf("got %v, want %v", got, first5)
	}
}

func TestConsecutiveFramePadding(t *testing.T) {
	enc := EncodeConsecutive(3, []byte{0xAA})
	seq, payload, err := DecodeConsecutive(enc[:])
	if err != nil {
		t.Fatalf("DecodeConsecutive: %v", err)
	}
	if seq != 3 {
		t.Errorf("seq = %d, want 3", seq)
	}
	want := []byte{0xAA, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}
	if !bytes.Equal(payload, want) {
		t.Errorf("payload = %v, want %v", payload, want)
	}
}

func TestFlowControlRoundtrip(t *testing.T) {
	enc := EncodeFlowControl(FCWait, 8, 20)
	typ, bs, stmin, err := DecodeFlowControl(enc[:])
	if err != nil {
		t.Fatalf("DecodeFlowControl: %v", err)
	}
	if typ != FCWait || bs != 8 || stmin != 20 {
		t.Errorf("got (%v, %d, %d), want (FCWait, 8, 20)", typ, bs, stmin)
	}
}

func TestPCITotality(t *testing.T) {
	var data [8]byte
	for b := 0; b < 256; b++ {
		data[0] = byte(b)
		typ, got, err := PCI(data[:])
		if err != nil {
			t.Fatalf("PCI(%#x): unexpected error %v", b, err)
		}
		if got != data[0] {
			t.Errorf("PCI(%#x) returned wrong raw byte", b)
		}
		_ = typ
	}
}

func TestSTmin(t *testing.T) {
	cases := []struct {
		raw  byte
		want float64
	}{
		{0x00, 0},
		{0x7F, 127},
		{0xF1, 0.1},
		{0xF9, 0.9},
		{0xFA, 127},
	}
	for _, c := range cases {
		if got := STmin(c.raw); got != c.want {
			t.Errorf("STmin(%#x) = %v, want %v", c.raw, got, c.want)
		}
	}
}
