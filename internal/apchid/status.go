package apchid

import "strings"

// Status is the UPS status flag set. The bit positions match the wire
// layout of the PresentStatus report (0x16).
type Status uint8

const (
	StatusOnline Status = 1 << iota
	StatusDischarging
	StatusCharging
	StatusLowBattery
	StatusOverload
	StatusReplaceBattery
	StatusBoost
	StatusTrim
)

const statusAll = Status(0xFF)

// decodeStatusSummary maps the summary report's bit layout (0x06, byte 3)
// onto Status. Only four flags are carried there; the mask tells the store
// which bits to replace.
func decodeStatusSummary(b byte) (Status, Status) {
	var s Status
	if b&0x08 != 0 {
		s |= StatusOnline
	}
	if b&0x01 != 0 {
		s |= StatusDischarging
	}
	if b&0x02 != 0 {
		s |= StatusCharging
	}
	if b&0x04 != 0 {
		s |= StatusLowBattery
	}
	return s, StatusOnline | StatusDischarging | StatusCharging | StatusLowBattery
}

// Merge returns s with the masked bits replaced by those of other.
func (s Status) Merge(other, mask Status) Status {
	return (s &^ mask) | (other & mask)
}

// String renders the NUT-style status summary: online or on-battery first,
// then the remaining flags in fixed priority order. "UNKNOWN" when nothing
// is set.
func (s Status) String() string {
	var tokens []string
	if s&StatusOnline != 0 {
		tokens = append(tokens, "OL")
	} else if s&StatusDischarging != 0 {
		tokens = append(tokens, "OB")
	}
	if s&StatusCharging != 0 {
		tokens = append(tokens, "CHRG")
	}
	if s&StatusLowBattery != 0 {
		tokens = append(tokens, "LB")
	}
	if s&StatusOverload != 0 {
		tokens = append(tokens, "OVER")
	}
	if s&StatusReplaceBattery != 0 {
		tokens = append(tokens, "RB")
	}
	if s&StatusBoost != 0 {
		tokens = append(tokens, "BOOST")
	}
	if s&StatusTrim != 0 {
		tokens = append(tokens, "TRIM")
	}
	if len(tokens) == 0 {
		return "UNKNOWN"
	}
	return strings.Join(tokens, " ")
}
