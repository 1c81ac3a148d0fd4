package apchid

import "testing"

func TestStatusString(t *testing.T) {
	tests := []struct {
		name string
		s    Status
		want string
	}{
		{"online", StatusOnline, "OL"},
		{"on battery", StatusDischarging, "OB"},
		{"online charging", StatusOnline | StatusCharging, "OL CHRG"},
		{"online wins over discharging", StatusOnline | StatusDischarging, "OL"},
		{"low battery on battery", StatusDischarging | StatusLowBattery, "OB LB"},
		{"everything", statusAll, "OL CHRG LB OVER RB BOOST TRIM"},
		{"nothing", 0, "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDecodePresentStatus(t *testing.T) {
	u := firstUpdate(t, 0x16, []byte{0x16, 0b00000101})
	if u.Field != FieldStatus {
		t.Fatalf("field: got %v", u.Field)
	}
	if u.Flags != StatusOnline|StatusCharging {
		t.Errorf("flags: got %08b", u.Flags)
	}
	if u.Mask != statusAll {
		t.Errorf("present status must replace the whole set, mask %08b", u.Mask)
	}
	if got := u.Flags.String(); got != "OL CHRG" {
		t.Errorf("status string: got %q", got)
	}
}

func TestDecodeStatusSummary(t *testing.T) {
	// Summary layout: bit3 online, bit0 discharging, bit1 charging,
	// bit2 low battery, carried in byte 3.
	u := firstUpdate(t, 0x06, []byte{0x06, 0, 0, 0b00001010})
	if u.Flags != StatusOnline|StatusCharging {
		t.Errorf("flags: got %08b", u.Flags)
	}
	wantMask := StatusOnline | StatusDischarging | StatusCharging | StatusLowBattery
	if u.Mask != wantMask {
		t.Errorf("mask: got %08b, want %08b", u.Mask, wantMask)
	}
}

func TestStatusMergePreservesUnmappedBits(t *testing.T) {
	old := StatusOverload | StatusDischarging
	flags, mask := decodeStatusSummary(0b00001000) // online only
	merged := old.Merge(flags, mask)
	if merged&StatusOverload == 0 {
		t.Error("overload bit lost on summary merge")
	}
	if merged&StatusDischarging != 0 {
		t.Error("discharging bit should be cleared by summary merge")
	}
	if merged&StatusOnline == 0 {
		t.Error("online bit should be set")
	}
}
