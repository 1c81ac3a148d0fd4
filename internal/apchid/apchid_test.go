package apchid

import (
	"reflect"
	"testing"
)

func firstUpdate(t *testing.T, id byte, data []byte) Update {
	t.Helper()
	updates := Decode(id, data)
	if len(updates) == 0 {
		t.Fatalf("expected updates for report 0x%02X", id)
	}
	return updates[0]
}

func TestDecodeChargeAndRuntime(t *testing.T) {
	updates := Decode(0x0C, []byte{0x0C, 100, 0x10, 0x0E})
	if len(updates) != 2 {
		t.Fatalf("expected 2 updates, got %d", len(updates))
	}
	if updates[0].Field != FieldBatteryCharge || updates[0].Num != 100.0 {
		t.Errorf("charge: got %+v", updates[0])
	}
	if updates[1].Field != FieldBatteryRuntime || updates[1].Num != 3600.0 {
		t.Errorf("runtime: got %+v", updates[1])
	}
}

func TestDecodeNumericScales(t *testing.T) {
	tests := []struct {
		name  string
		id    byte
		data  []byte
		field Field
		want  float64
	}{
		{"battery voltage u16/100", 0x09, []byte{0x09, 0x5C, 0x05}, FieldBatteryVoltage, 13.72},
		{"nominal voltage u16/100", 0x08, []byte{0x08, 0xB0, 0x04}, FieldBatteryNominalVoltage, 12.0},
		{"battery voltage u8/10", 0x0D, []byte{0x0D, 137}, FieldBatteryVoltage, 13.7},
		{"input voltage u16", 0x31, []byte{0x31, 0x79, 0x00}, FieldInputVoltage, 121.0},
		{"load percent u8", 0x50, []byte{0x50, 14}, FieldLoadPercent, 14.0},
		{"low transfer u16", 0x32, []byte{0x32, 0x58, 0x00}, FieldLowVoltageTransfer, 88.0},
		{"high transfer u16", 0x33, []byte{0x33, 0x8B, 0x00}, FieldHighVoltageTransfer, 139.0},
		{"nominal power u16", 0x52, []byte{0x52, 0x58, 0x02}, FieldNominalPower, 600.0},
		{"shutdown timer s16 inactive", 0x15, []byte{0x15, 0xFF, 0xFF}, FieldShutdownTimer, -1.0},
		{"runtime low threshold", 0x24, []byte{0x24, 0x78, 0x00}, FieldLowBatteryRuntimeThreshold, 120.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := firstUpdate(t, tt.id, tt.data)
			if u.Field != tt.field {
				t.Fatalf("field: got %v, want %v", u.Field, tt.field)
			}
			if u.Num != tt.want {
				t.Errorf("value: got %v, want %v", u.Num, tt.want)
			}
		})
	}
}

func TestDecodeEnums(t *testing.T) {
	tests := []struct {
		name string
		id   byte
		code byte
		want string
	}{
		{"chemistry NiMH", 0x03, 4, "NiMH"},
		{"chemistry PbAc", 0x03, 1, "PbAc"},
		{"beeper enabled", 0x10, 1, "enabled"},
		{"sensitivity medium", 0x35, 1, "medium"},
		{"self test passed", 0x18, 1, "Test passed"},
		{"transfer reason blackout", 0x21, 3, "Blackout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := firstUpdate(t, tt.id, []byte{tt.id, tt.code})
			if u.Str != tt.want {
				t.Errorf("got %q, want %q", u.Str, tt.want)
			}
		})
	}
}

func TestDecodeEnumUnknownCodeDeclines(t *testing.T) {
	for _, id := range []byte{0x03, 0x10, 0x35, 0x18, 0x21} {
		if updates := Decode(id, []byte{id, 0x7F}); len(updates) != 0 {
			t.Errorf("report 0x%02X: unknown code produced updates: %+v", id, updates)
		}
	}
}

func TestDecodeUnknownReportID(t *testing.T) {
	if updates := Decode(0xEE, []byte{0xEE, 1, 2, 3, 4}); updates != nil {
		t.Fatalf("unknown id produced updates: %+v", updates)
	}
}

func TestDecodeShortPayload(t *testing.T) {
	for id, r := range reportTable {
		data := make([]byte, r.minLen-1)
		data[0] = id
		if updates := Decode(id, data); len(updates) != 0 {
			t.Errorf("report 0x%02X: short payload produced updates", id)
		}
	}
}

func TestDecodeDiagnosticOnly(t *testing.T) {
	tests := []struct {
		id   byte
		data []byte
	}{
		{0x0E, []byte{0x0E, 100}},       // full charge capacity
		{0x07, []byte{0x07, 0xD6, 0x54}}, // unconfirmed date field
		{0x34, []byte{0x34, 1}},          // sensitivity adjustment
	}
	for _, tt := range tests {
		if updates := Decode(tt.id, tt.data); len(updates) != 0 {
			t.Errorf("report 0x%02X must never merge, got %+v", tt.id, updates)
		}
	}
}

func TestDecodeFrequencyZeroSentinel(t *testing.T) {
	if updates := Decode(0x36, []byte{0x36, 0}); len(updates) != 0 {
		t.Fatalf("zero frequency must not update, got %+v", updates)
	}
	u := firstUpdate(t, 0x36, []byte{0x36, 60})
	if u.Field != FieldInputFrequency || u.Num != 60.0 {
		t.Fatalf("got %+v", u)
	}
}

func TestDecodeManufactureDate(t *testing.T) {
	u := firstUpdate(t, 0x1C, []byte{0x1C, 0xE7, 0x07, 6, 15})
	if u.Str != "2023/06/15" {
		t.Errorf("date: got %q", u.Str)
	}

	// Day byte missing: defaults to the first of the month.
	u = firstUpdate(t, 0x1C, []byte{0x1C, 0xE7, 0x07, 6})
	if u.Str != "2023/06/01" {
		t.Errorf("date without day: got %q", u.Str)
	}

	// 0x20 keeps the raw day count; no epoch conversion.
	u = firstUpdate(t, 0x20, []byte{0x20, 0xBA, 0x54})
	if u.Str != "21690 days" {
		t.Errorf("day count: got %q", u.Str)
	}
}

func TestDecodeDeterministic(t *testing.T) {
	data := []byte{0x0C, 87, 0x40, 0x06}
	first := Decode(0x0C, data)
	for i := 0; i < 3; i++ {
		if again := Decode(0x0C, data); !reflect.DeepEqual(first, again) {
			t.Fatalf("decode not deterministic: %+v vs %+v", first, again)
		}
	}
}

func TestSweepOrderIsKnown(t *testing.T) {
	seen := make(map[byte]bool)
	for _, id := range SweepOrder {
		if _, ok := reportTable[id]; !ok {
			t.Errorf("sweep id 0x%02X missing from report table", id)
		}
		if seen[id] {
			t.Errorf("sweep id 0x%02X listed twice", id)
		}
		seen[id] = true
	}
}

func TestSensorsCoverMergedFields(t *testing.T) {
	for id, r := range reportTable {
		if r.diagnostic {
			continue
		}
		for _, e := range r.fields {
			if _, ok := Sensors[e.field]; !ok {
				t.Errorf("report 0x%02X: field %v has no sensor mapping", id, e.field)
			}
		}
	}
}
