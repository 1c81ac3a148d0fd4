// Package apchid decodes the HID reports of APC Back-UPS devices into typed
// field updates. Report layouts and scales follow the values NUT documents
// for the usbhid-ups subdriver, verified against a Back-UPS XS 1000M.
package apchid

import (
	"encoding/binary"
	"fmt"
)

// Vendor/product pair of the target device. VID 0x051D is American Power
// Conversion; PID 0x0002 covers the Back-UPS series.
const (
	APCVendorID  uint16 = 0x051D
	BackUPSPID   uint16 = 0x0002
	HIDInterface        = 0
)

// Field identifies one metric in the snapshot.
type Field int

const (
	FieldBatteryCharge Field = iota
	FieldBatteryVoltage
	FieldBatteryRuntime
	FieldBatteryNominalVoltage
	FieldBatteryWarningThreshold
	FieldBatteryChemistry
	FieldBatteryMfrDate
	FieldInputVoltage
	FieldInputVoltageNominal
	FieldInputFrequency
	FieldLoadPercent
	FieldNominalPower
	FieldHighVoltageTransfer
	FieldLowVoltageTransfer
	FieldInputSensitivity
	FieldLastTransferReason
	FieldLowBatteryChargeThreshold
	FieldLowBatteryRuntimeThreshold
	FieldShutdownTimer
	FieldRebootTimer
	FieldDelayBeforeReboot
	FieldDelayBeforeShutdown
	FieldFirmwareVersion
	FieldBeeperStatus
	FieldSelfTestResult
	FieldStatus
)

// Update is one decoded field value. Numeric fields carry Num, categorical
// fields carry Str, and FieldStatus carries Flags plus the mask of bits the
// report actually maps (a report that maps only some bits still yields one
// whole-set replacement after the store folds in the unmapped bits).
type Update struct {
	Field Field
	Num   float64
	Str   string
	Flags Status
	Mask  Status
}

type codec int

const (
	codecU8 codec = iota
	codecU8Tenth   // u8 scaled by 1/10
	codecU16       // little-endian u16
	codecU16Centi  // little-endian u16 scaled by 1/100
	codecS16       // little-endian s16 (timers report -1 when inactive)
	codecEnum      // ordinal with label table
	codecDate      // u16 year, u8 month, u8 day
	codecDayCount  // u16 day count, recorded verbatim
	codecVersion   // two bytes joined as "major.minor"
	codecStatusFull
	codecStatusSummary
)

type extractor struct {
	field        Field
	offset       int
	codec        codec
	labels       []string
	zeroIsAbsent bool // zero on the wire means "not available", not a reading
}

type rule struct {
	name   string
	minLen int

	// diagnostic entries are decoded so the raw value can be logged but are
	// never merged into the snapshot.
	diagnostic bool

	fields []extractor
}

var (
	chemistryLabels = []string{"Unknown", "PbAc", "Li-ion", "NiCd", "NiMH"}
	beeperLabels    = []string{"disabled", "enabled", "muted"}
	sensitivityLabels = []string{"low", "medium", "high"}
	selfTestLabels  = []string{
		"No test initiated",
		"Test passed",
		"Test in progress",
		"General test failed",
		"Battery failed",
		"Deep battery test failed",
		"Test aborted",
	}
	transferReasonLabels = []string{
		"No transfer",
		"High line voltage",
		"Brownout",
		"Blackout",
		"Small momentary sag",
		"Deep momentary sag",
		"Small momentary spike",
		"Large momentary spike",
		"Self test",
		"Input frequency out of range",
		"Input voltage out of range",
	}
)

// reportTable maps report ids to their layout. Offsets count from the
// report id byte at offset 0, matching the wire form of both pushed reports
// and GET_REPORT responses.
var reportTable = map[byte]rule{
	0x03: {name: "battery chemistry", minLen: 2, fields: []extractor{
		{field: FieldBatteryChemistry, offset: 1, codec: codecEnum, labels: chemistryLabels},
	}},
	0x06: {name: "status summary", minLen: 4, fields: []extractor{
		{field: FieldStatus, offset: 3, codec: codecStatusSummary},
	}},
	// Nominally UPS.ManufacturerDate, but the hardware returns the same
	// implausible value as 0x20. Logged only, until the encoding is known.
	0x07: {name: "ups manufacture date", minLen: 3, diagnostic: true},
	0x08: {name: "battery nominal voltage", minLen: 3, fields: []extractor{
		{field: FieldBatteryNominalVoltage, offset: 1, codec: codecU16Centi},
	}},
	0x09: {name: "battery voltage", minLen: 3, fields: []extractor{
		{field: FieldBatteryVoltage, offset: 1, codec: codecU16Centi},
	}},
	0x0B: {name: "battery nominal voltage", minLen: 2, fields: []extractor{
		{field: FieldBatteryNominalVoltage, offset: 1, codec: codecU8},
	}},
	0x0C: {name: "charge and runtime", minLen: 4, fields: []extractor{
		{field: FieldBatteryCharge, offset: 1, codec: codecU8},
		{field: FieldBatteryRuntime, offset: 2, codec: codecU16},
	}},
	0x0D: {name: "battery voltage", minLen: 2, fields: []extractor{
		{field: FieldBatteryVoltage, offset: 1, codec: codecU8Tenth},
	}},
	// FullChargeCapacity: the constant 100%, not the low battery threshold.
	// Never merged, or it would shadow the real threshold from 0x11.
	0x0E: {name: "full charge capacity", minLen: 2, diagnostic: true},
	0x0F: {name: "battery warning threshold", minLen: 2, fields: []extractor{
		{field: FieldBatteryWarningThreshold, offset: 1, codec: codecU8},
	}},
	0x10: {name: "beeper status", minLen: 2, fields: []extractor{
		{field: FieldBeeperStatus, offset: 1, codec: codecEnum, labels: beeperLabels},
	}},
	0x11: {name: "battery low charge threshold", minLen: 2, fields: []extractor{
		{field: FieldLowBatteryChargeThreshold, offset: 1, codec: codecU8},
	}},
	0x12: {name: "low battery runtime threshold", minLen: 3, fields: []extractor{
		{field: FieldLowBatteryRuntimeThreshold, offset: 1, codec: codecU16},
	}},
	0x13: {name: "delay before reboot", minLen: 2, fields: []extractor{
		{field: FieldDelayBeforeReboot, offset: 1, codec: codecU8},
	}},
	0x14: {name: "delay before shutdown", minLen: 2, fields: []extractor{
		{field: FieldDelayBeforeShutdown, offset: 1, codec: codecU8},
	}},
	0x15: {name: "shutdown timer", minLen: 3, fields: []extractor{
		{field: FieldShutdownTimer, offset: 1, codec: codecS16},
	}},
	0x16: {name: "present status", minLen: 2, fields: []extractor{
		{field: FieldStatus, offset: 1, codec: codecStatusFull},
	}},
	0x17: {name: "reboot timer", minLen: 3, fields: []extractor{
		{field: FieldRebootTimer, offset: 1, codec: codecU16},
	}},
	0x18: {name: "self-test result", minLen: 2, fields: []extractor{
		{field: FieldSelfTestResult, offset: 1, codec: codecEnum, labels: selfTestLabels},
	}},
	0x1C: {name: "battery manufacture date", minLen: 4, fields: []extractor{
		{field: FieldBatteryMfrDate, offset: 1, codec: codecDate},
	}},
	// Aliased with 0x07 on the reference hardware; kept as the raw day
	// count rather than converted through a guessed epoch.
	0x20: {name: "battery manufacture date", minLen: 3, fields: []extractor{
		{field: FieldBatteryMfrDate, offset: 1, codec: codecDayCount},
	}},
	0x21: {name: "last transfer reason", minLen: 2, fields: []extractor{
		{field: FieldLastTransferReason, offset: 1, codec: codecEnum, labels: transferReasonLabels},
	}},
	0x24: {name: "battery runtime low threshold", minLen: 3, fields: []extractor{
		{field: FieldLowBatteryRuntimeThreshold, offset: 1, codec: codecU16},
	}},
	0x25: {name: "nominal power", minLen: 3, fields: []extractor{
		{field: FieldNominalPower, offset: 1, codec: codecU16},
	}},
	0x30: {name: "input nominal voltage", minLen: 2, fields: []extractor{
		{field: FieldInputVoltageNominal, offset: 1, codec: codecU8},
	}},
	0x31: {name: "input voltage", minLen: 3, fields: []extractor{
		{field: FieldInputVoltage, offset: 1, codec: codecU16},
	}},
	0x32: {name: "low voltage transfer", minLen: 3, fields: []extractor{
		{field: FieldLowVoltageTransfer, offset: 1, codec: codecU16},
	}},
	0x33: {name: "high voltage transfer", minLen: 3, fields: []extractor{
		{field: FieldHighVoltageTransfer, offset: 1, codec: codecU16},
	}},
	// Writable sensitivity setting; read value duplicates 0x35.
	0x34: {name: "input sensitivity adjustment", minLen: 2, diagnostic: true},
	0x35: {name: "input sensitivity", minLen: 2, fields: []extractor{
		{field: FieldInputSensitivity, offset: 1, codec: codecEnum, labels: sensitivityLabels},
	}},
	// The reference hardware reports 0 Hz here; zero means unavailable.
	0x36: {name: "input frequency", minLen: 2, fields: []extractor{
		{field: FieldInputFrequency, offset: 1, codec: codecU8, zeroIsAbsent: true},
	}},
	0x50: {name: "load percentage", minLen: 2, fields: []extractor{
		{field: FieldLoadPercent, offset: 1, codec: codecU8},
	}},
	0x52: {name: "nominal real power", minLen: 3, fields: []extractor{
		{field: FieldNominalPower, offset: 1, codec: codecU16},
	}},
	0x60: {name: "firmware version", minLen: 3, fields: []extractor{
		{field: FieldFirmwareVersion, offset: 1, codec: codecVersion},
	}},
}

// SweepOrder lists the feature report ids the scheduler requests on a full
// sweep, in the order verified against the device.
var SweepOrder = []byte{
	// Real-time metrics.
	0x09, 0x31, 0x50,
	// Battery information.
	0x08, 0x0E, 0x0F, 0x11, 0x24, 0x17, 0x03, 0x07, 0x20,
	// Input power configuration.
	0x30, 0x32, 0x33, 0x34, 0x35, 0x36,
	// UPS configuration.
	0x52, 0x15, 0x10, 0x18,
}

// ReportName returns the table's description of a report id, for logging.
func ReportName(id byte) string {
	if r, ok := reportTable[id]; ok {
		return r.name
	}
	return "unknown"
}

// Decode maps one raw report to its field updates. data carries the report
// id at offset 0. Unknown ids, short payloads, diagnostic-only ids and
// unrecognized enumeration codes all yield zero updates; none of them is an
// error. Decode is pure: identical input always yields identical updates.
func Decode(id byte, data []byte) []Update {
	r, ok := reportTable[id]
	if !ok || r.diagnostic || len(data) < r.minLen {
		return nil
	}

	var updates []Update
	for _, e := range r.fields {
		u, ok := e.decode(data)
		if !ok {
			continue
		}
		updates = append(updates, u)
	}
	return updates
}

func (e extractor) decode(data []byte) (Update, bool) {
	u := Update{Field: e.field}

	switch e.codec {
	case codecU8:
		raw := data[e.offset]
		if e.zeroIsAbsent && raw == 0 {
			return Update{}, false
		}
		u.Num = float64(raw)
	case codecU8Tenth:
		u.Num = float64(data[e.offset]) / 10
	case codecU16:
		u.Num = float64(binary.LittleEndian.Uint16(data[e.offset:]))
	case codecU16Centi:
		u.Num = float64(binary.LittleEndian.Uint16(data[e.offset:])) / 100
	case codecS16:
		u.Num = float64(int16(binary.LittleEndian.Uint16(data[e.offset:])))
	case codecEnum:
		code := int(data[e.offset])
		if code >= len(e.labels) {
			return Update{}, false
		}
		u.Str = e.labels[code]
	case codecDate:
		year := binary.LittleEndian.Uint16(data[e.offset:])
		month, day := byte(1), byte(1)
		if len(data) > e.offset+2 {
			month = data[e.offset+2]
		}
		if len(data) > e.offset+3 {
			day = data[e.offset+3]
		}
		u.Str = fmt.Sprintf("%04d/%02d/%02d", year, month, day)
	case codecDayCount:
		u.Str = fmt.Sprintf("%d days", binary.LittleEndian.Uint16(data[e.offset:]))
	case codecVersion:
		u.Str = fmt.Sprintf("%d.%d", data[e.offset], data[e.offset+1])
	case codecStatusFull:
		u.Flags = Status(data[e.offset])
		u.Mask = statusAll
	case codecStatusSummary:
		u.Flags, u.Mask = decodeStatusSummary(data[e.offset])
	}

	return u, true
}
