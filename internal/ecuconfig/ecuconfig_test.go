package ecuconfig

import (
	"errors"
	"testing"
)

func TestLoadAppliesDefaultsForMissingKeys(t *testing.T) {
	s := NewMemStore()
	r := Load(s)
	if r != Default() {
		t.Errorf("Load(empty store) = %+v, want defaults %+v", r, Default())
	}
}

func TestSaveThenLoadRoundtrips(t *testing.T) {
	s := NewMemStore()
	want := Record{
		ECUID:             3,
		CANSpeedKbps:      250,
		RequestIntervalMS: 100,
		MaxPending:        8,
		ShiftLightRPM:     65,
		DebugEnabled:      true,
		LogFlushMS:        500,
		WiFiSSID:          "GarageNet",
		WiFiPassword:      "supersecret",
	}
	if err := Save(s, want); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := Load(s)
	if got != want {
		t.Errorf("Load() = %+v, want %+v", got, want)
	}
}

func TestChecksumMismatchRevertsToDefaults(t *testing.T) {
	s := NewMemStore()
	custom := Record{
		ECUID:             3,
		CANSpeedKbps:      250,
		RequestIntervalMS: 100,
		MaxPending:        8,
		ShiftLightRPM:     65,
		DebugEnabled:      true,
		LogFlushMS:        500,
		WiFiSSID:          "GarageNet",
		WiFiPassword:      "supersecret",
	}
	if err := Save(s, custom); err != nil {
		t.Fatal(err)
	}
	// Corrupt the stored checksum so it no longer matches the record.
	if err := s.Put("checksum", "7"); err != nil {
		t.Fatal(err)
	}

	got := Load(s)
	if got != Default() {
		t.Errorf("Load() after checksum corruption = %+v, want defaults", got)
	}
	// The revert must have been persisted.
	reloaded := Load(s)
	if reloaded != Default() {
		t.Errorf("second Load() = %+v, want defaults to have been saved back", reloaded)
	}
}

func TestValidateRejectsOutOfRangeFields(t *testing.T) {
	cases := []struct {
		name string
		mut  func(r Record) Record
	}{
		{"ecu id too high", func(r Record) Record { r.ECUID = 16; return r }},
		{"request interval zero", func(r Record) Record { r.RequestIntervalMS = 0; return r }},
		{"max pending zero", func(r Record) Record { r.MaxPending = 0; return r }},
		{"shift light too low", func(r Record) Record { r.ShiftLightRPM = 9; return r }},
		{"ssid empty", func(r Record) Record { r.WiFiSSID = ""; return r }},
		{"password too short", func(r Record) Record { r.WiFiPassword = "short"; return r }},
	}
	for _, c := range cases {
		r := c.mut(Default())
		var target ErrOutOfRange
		if err := Validate(r); !errors.As(err, &target) {
			t.Errorf("%s: Validate() = %v, want ErrOutOfRange", c.name, err)
		}
	}
}

func TestValidateDistinguishesNonStandardBitRate(t *testing.T) {
	r := Default()
	r.CANSpeedKbps = 333
	var nonStandard ErrNonStandardBitRate
	if err := Validate(r); !errors.As(err, &nonStandard) {
		t.Fatalf("Validate() = %v, want ErrNonStandardBitRate", err)
	}

	s := NewMemStore()
	if err := Save(s, r); err == nil {
		t.Error("Save() should still reject a non-standard bit-rate under the strict enum")
	}
}

func TestSaveRejectsInvalidRecordWithoutWriting(t *testing.T) {
	s := NewMemStore()
	bad := Default()
	bad.ECUID = 200
	if err := Save(s, bad); err == nil {
		t.Fatal("expected Save to reject an out-of-range record")
	}
	if _, ok := s.Get("ecu_id"); ok {
		t.Error("Save should not have written any keys on validation failure")
	}
}
