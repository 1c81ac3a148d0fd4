package apchid

// Sensor describes how a decoded field is published: the topic key, the
// friendly name, and the measurement unit / device class Home Assistant
// uses to categorize it. Unit and Class are empty for categorical fields.
type Sensor struct {
	Key   string
	Name  string
	Unit  string
	Class string
}

// Sensors is the decoder's field-to-unit mapping, consumed by the telemetry
// publisher for discovery and state topics.
var Sensors = map[Field]Sensor{
	FieldBatteryCharge:              {Key: "battery_charge", Name: "Battery Charge", Unit: "%", Class: "battery"},
	FieldBatteryVoltage:             {Key: "battery_voltage", Name: "Battery Voltage", Unit: "V", Class: "voltage"},
	FieldBatteryNominalVoltage:      {Key: "battery_voltage_nominal", Name: "Battery Nominal Voltage", Unit: "V", Class: "voltage"},
	FieldBatteryRuntime:             {Key: "battery_runtime", Name: "Battery Runtime", Unit: "s", Class: "duration"},
	FieldLowBatteryRuntimeThreshold: {Key: "battery_runtime_low", Name: "Battery Low Runtime", Unit: "s", Class: "duration"},
	FieldLowBatteryChargeThreshold:  {Key: "battery_charge_low", Name: "Battery Low Charge", Unit: "%", Class: "battery"},
	FieldBatteryWarningThreshold:    {Key: "battery_charge_warning", Name: "Battery Warning Charge", Unit: "%", Class: "battery"},
	FieldBatteryChemistry:           {Key: "battery_type", Name: "Battery Type"},
	FieldBatteryMfrDate:             {Key: "battery_mfr_date", Name: "Battery Manufacture Date"},
	FieldInputVoltage:               {Key: "input_voltage", Name: "Input Voltage", Unit: "V", Class: "voltage"},
	FieldInputVoltageNominal:        {Key: "input_voltage_nominal", Name: "Input Nominal Voltage", Unit: "V", Class: "voltage"},
	FieldInputFrequency:             {Key: "input_frequency", Name: "Input Frequency", Unit: "Hz", Class: "frequency"},
	FieldLowVoltageTransfer:         {Key: "input_transfer_low", Name: "Low Voltage Transfer", Unit: "V", Class: "voltage"},
	FieldHighVoltageTransfer:        {Key: "input_transfer_high", Name: "High Voltage Transfer", Unit: "V", Class: "voltage"},
	FieldInputSensitivity:           {Key: "input_sensitivity", Name: "Input Sensitivity"},
	FieldLastTransferReason:         {Key: "input_transfer_reason", Name: "Last Transfer Reason"},
	FieldLoadPercent:                {Key: "load_percent", Name: "Load", Unit: "%", Class: "power_factor"},
	FieldNominalPower:               {Key: "nominal_power", Name: "Nominal Power", Unit: "W", Class: "power"},
	FieldStatus:                     {Key: "status", Name: "UPS Status"},
	FieldBeeperStatus:               {Key: "beeper_status", Name: "Beeper Status"},
	FieldDelayBeforeReboot:          {Key: "delay_reboot", Name: "Reboot Delay", Unit: "s", Class: "duration"},
	FieldDelayBeforeShutdown:        {Key: "delay_shutdown", Name: "Shutdown Delay", Unit: "s", Class: "duration"},
	FieldRebootTimer:                {Key: "reboot_timer", Name: "Reboot Timer", Unit: "s", Class: "duration"},
	FieldShutdownTimer:              {Key: "shutdown_timer", Name: "Shutdown Timer", Unit: "s", Class: "duration"},
	FieldSelfTestResult:             {Key: "self_test_result", Name: "Self-Test Result"},
	FieldFirmwareVersion:            {Key: "firmware_version", Name: "Firmware Version"},
}

// SensorOrder fixes the discovery and publish order.
var SensorOrder = []Field{
	FieldBatteryCharge,
	FieldBatteryVoltage,
	FieldBatteryNominalVoltage,
	FieldBatteryRuntime,
	FieldLowBatteryRuntimeThreshold,
	FieldLowBatteryChargeThreshold,
	FieldBatteryWarningThreshold,
	FieldBatteryChemistry,
	FieldBatteryMfrDate,
	FieldInputVoltage,
	FieldInputVoltageNominal,
	FieldInputFrequency,
	FieldLowVoltageTransfer,
	FieldHighVoltageTransfer,
	FieldInputSensitivity,
	FieldLastTransferReason,
	FieldLoadPercent,
	FieldNominalPower,
	FieldStatus,
	FieldBeeperStatus,
	FieldDelayBeforeReboot,
	FieldDelayBeforeShutdown,
	FieldRebootTimer,
	FieldShutdownTimer,
	FieldSelfTestResult,
	FieldFirmwareVersion,
}
