// Package state owns the single metrics snapshot shared between the
// acquisition loop and its readers.
package state

import (
	"sync"
	"time"

	"github.com/seagrayinc/upsbridge/internal/apchid"
)

// Snapshot is the most recently decoded view of the UPS. Readers receive
// copies; no cross-field transactional consistency is promised between two
// reads.
type Snapshot struct {
	BatteryCharge              float64
	BatteryVoltage             float64
	BatteryRuntime             float64
	BatteryNominalVoltage      float64
	BatteryWarningThreshold    float64
	BatteryChemistry           string
	BatteryMfrDate             string
	InputVoltage               float64
	InputVoltageNominal        float64
	InputFrequency             float64
	LoadPercent                float64
	NominalPower               float64
	HighVoltageTransfer        float64
	LowVoltageTransfer         float64
	InputSensitivity           string
	LastTransferReason         string
	LowBatteryChargeThreshold  float64
	LowBatteryRuntimeThreshold float64
	ShutdownTimer              float64
	RebootTimer                float64
	DelayBeforeReboot          float64
	DelayBeforeShutdown        float64
	FirmwareVersion            string
	BeeperStatus               string
	SelfTestResult             string

	Status       apchid.Status
	StatusString string

	// Valid flips true on the first successful decode and never reverts;
	// staleness is judged from UpdatedAt instead.
	Valid     bool
	UpdatedAt time.Time
}

// Store holds exactly one Snapshot. The poll scheduler's goroutine is the
// sole writer; any goroutine may read.
type Store struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

func NewStore() *Store {
	return &Store{
		snap: Snapshot{
			// Chemistry default for APC hardware, until report 0x03 says
			// otherwise.
			BatteryChemistry: "PbAc",
			StatusString:     apchid.Status(0).String(),
		},
		now: time.Now,
	}
}

// Apply merges decoded field updates into the snapshot. A nil or empty set
// leaves the snapshot untouched, including timestamp and validity. Returns
// whether anything was merged.
func (s *Store) Apply(updates []apchid.Update) bool {
	if len(updates) == 0 {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range updates {
		s.snap.merge(u)
	}
	s.snap.StatusString = s.snap.Status.String()
	s.snap.Valid = true
	s.snap.UpdatedAt = s.now()
	return true
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// Age reports how long ago the snapshot was last updated. Zero until the
// first successful decode.
func (s *Store) Age() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.snap.Valid {
		return 0
	}
	return s.now().Sub(s.snap.UpdatedAt)
}

func (snap *Snapshot) merge(u apchid.Update) {
	switch u.Field {
	case apchid.FieldBatteryCharge:
		snap.BatteryCharge = u.Num
	case apchid.FieldBatteryVoltage:
		snap.BatteryVoltage = u.Num
	case apchid.FieldBatteryRuntime:
		snap.BatteryRuntime = u.Num
	case apchid.FieldBatteryNominalVoltage:
		snap.BatteryNominalVoltage = u.Num
	case apchid.FieldBatteryWarningThreshold:
		snap.BatteryWarningThreshold = u.Num
	case apchid.FieldBatteryChemistry:
		snap.BatteryChemistry = u.Str
	case apchid.FieldBatteryMfrDate:
		snap.BatteryMfrDate = u.Str
	case apchid.FieldInputVoltage:
		snap.InputVoltage = u.Num
	case apchid.FieldInputVoltageNominal:
		snap.InputVoltageNominal = u.Num
	case apchid.FieldInputFrequency:
		snap.InputFrequency = u.Num
	case apchid.FieldLoadPercent:
		snap.LoadPercent = u.Num
	case apchid.FieldNominalPower:
		snap.NominalPower = u.Num
	case apchid.FieldHighVoltageTransfer:
		snap.HighVoltageTransfer = u.Num
	case apchid.FieldLowVoltageTransfer:
		snap.LowVoltageTransfer = u.Num
	case apchid.FieldInputSensitivity:
		snap.InputSensitivity = u.Str
	case apchid.FieldLastTransferReason:
		snap.LastTransferReason = u.Str
	case apchid.FieldLowBatteryChargeThreshold:
		snap.LowBatteryChargeThreshold = u.Num
	case apchid.FieldLowBatteryRuntimeThreshold:
		snap.LowBatteryRuntimeThreshold = u.Num
	case apchid.FieldShutdownTimer:
		snap.ShutdownTimer = u.Num
	case apchid.FieldRebootTimer:
		snap.RebootTimer = u.Num
	case apchid.FieldDelayBeforeReboot:
		snap.DelayBeforeReboot = u.Num
	case apchid.FieldDelayBeforeShutdown:
		snap.DelayBeforeShutdown = u.Num
	case apchid.FieldFirmwareVersion:
		snap.FirmwareVersion = u.Str
	case apchid.FieldBeeperStatus:
		snap.BeeperStatus = u.Str
	case apchid.FieldSelfTestResult:
		snap.SelfTestResult = u.Str
	case apchid.FieldStatus:
		snap.Status = snap.Status.Merge(u.Flags, u.Mask)
	}
}

// Lookup returns the published value for a field: numeric fields report
// (num, "", true), categorical ones ("", str, false). FieldStatus yields the
// derived status string.
func (snap Snapshot) Lookup(f apchid.Field) (float64, string, bool) {
	switch f {
	case apchid.FieldBatteryCharge:
		return snap.BatteryCharge, "", true
	case apchid.FieldBatteryVoltage:
		return snap.BatteryVoltage, "", true
	case apchid.FieldBatteryRuntime:
		return snap.BatteryRuntime, "", true
	case apchid.FieldBatteryNominalVoltage:
		return snap.BatteryNominalVoltage, "", true
	case apchid.FieldBatteryWarningThreshold:
		return snap.BatteryWarningThreshold, "", true
	case apchid.FieldBatteryChemistry:
		return 0, snap.BatteryChemistry, false
	case apchid.FieldBatteryMfrDate:
		return 0, snap.BatteryMfrDate, false
	case apchid.FieldInputVoltage:
		return snap.InputVoltage, "", true
	case apchid.FieldInputVoltageNominal:
		return snap.InputVoltageNominal, "", true
	case apchid.FieldInputFrequency:
		return snap.InputFrequency, "", true
	case apchid.FieldLoadPercent:
		return snap.LoadPercent, "", true
	case apchid.FieldNominalPower:
		return snap.NominalPower, "", true
	case apchid.FieldHighVoltageTransfer:
		return snap.HighVoltageTransfer, "", true
	case apchid.FieldLowVoltageTransfer:
		return snap.LowVoltageTransfer, "", true
	case apchid.FieldInputSensitivity:
		return 0, snap.InputSensitivity, false
	case apchid.FieldLastTransferReason:
		return 0, snap.LastTransferReason, false
	case apchid.FieldLowBatteryChargeThreshold:
		return snap.LowBatteryChargeThreshold, "", true
	case apchid.FieldLowBatteryRuntimeThreshold:
		return snap.LowBatteryRuntimeThreshold, "", true
	case apchid.FieldShutdownTimer:
		return snap.ShutdownTimer, "", true
	case apchid.FieldRebootTimer:
		return snap.RebootTimer, "", true
	case apchid.FieldDelayBeforeReboot:
		return snap.DelayBeforeReboot, "", true
	case apchid.FieldDelayBeforeShutdown:
		return snap.DelayBeforeShutdown, "", true
	case apchid.FieldFirmwareVersion:
		return 0, snap.FirmwareVersion, false
	case apchid.FieldBeeperStatus:
		return 0, snap.BeeperStatus, false
	case apchid.FieldSelfTestResult:
		return 0, snap.SelfTestResult, false
	case apchid.FieldStatus:
		return 0, snap.StatusString, false
	}
	return 0, "", false
}
