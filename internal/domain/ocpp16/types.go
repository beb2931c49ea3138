package ocpp16

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// MessageType OCPP-J帧类型标识（数组第一个元素）
type MessageType int

const (
	MessageTypeCall       MessageType = 2
	MessageTypeCallResult MessageType = 3
	MessageTypeCallError  MessageType = 4
)

// Valid 是否为协议定义的帧类型
func (t MessageType) Valid() bool {
	return t == MessageTypeCall || t == MessageTypeCallResult || t == MessageTypeCallError
}

func (t MessageType) String() string {
	switch t {
	case MessageTypeCall:
		return "Call"
	case MessageTypeCallResult:
		return "CallResult"
	case MessageTypeCallError:
		return "CallError"
	default:
		return fmt.Sprintf("MessageType(%d)", int(t))
	}
}

// Action OCPP动作名称
type Action string

const (
	// Core Profile
	ActionAuthorize              Action = "Authorize"
	ActionBootNotification       Action = "BootNotification"
	ActionChangeAvailability     Action = "ChangeAvailability"
	ActionChangeConfiguration    Action = "ChangeConfiguration"
	ActionClearCache             Action = "ClearCache"
	ActionDataTransfer           Action = "DataTransfer"
	ActionGetConfiguration       Action = "GetConfiguration"
	ActionHeartbeat              Action = "Heartbeat"
	ActionMeterValues            Action = "MeterValues"
	ActionRemoteStartTransaction Action = "RemoteStartTransaction"
	ActionRemoteStopTransaction  Action = "RemoteStopTransaction"
	ActionReset                  Action = "Reset"
	ActionStartTransaction       Action = "StartTransaction"
	ActionStatusNotification     Action = "StatusNotification"
	ActionStopTransaction        Action = "StopTransaction"
	ActionUnlockConnector        Action = "UnlockConnector"

	// Firmware Management Profile
	ActionGetDiagnostics                Action = "GetDiagnostics"
	ActionDiagnosticsStatusNotification Action = "DiagnosticsStatusNotification"
	ActionFirmwareStatusNotification    Action = "FirmwareStatusNotification"
	ActionUpdateFirmware                Action = "UpdateFirmware"

	// Local Auth List Management Profile
	ActionGetLocalListVersion Action = "GetLocalListVersion"
	ActionSendLocalList       Action = "SendLocalList"

	// Reservation Profile
	ActionCancelReservation Action = "CancelReservation"
	ActionReserveNow        Action = "ReserveNow"

	// Smart Charging Profile
	ActionClearChargingProfile Action = "ClearChargingProfile"
	ActionGetCompositeSchedule Action = "GetCompositeSchedule"
	ActionSetChargingProfile   Action = "SetChargingProfile"

	// Trigger Message Profile
	ActionTriggerMessage Action = "TriggerMessage"
)

// ErrInvalidEnum 枚举值不在封闭集合内
var ErrInvalidEnum = errors.New("ocpp16: value is not a member of the enumeration")

// Enum 封闭字符串枚举
type Enum interface {
	~string
	Valid() bool
}

// ParseEnum 将外部字符串转换为枚举值，未知取值返回 ErrInvalidEnum
func ParseEnum[E Enum](s string) (E, error) {
	e := E(s)
	if !e.Valid() {
		var zero E
		return zero, fmt.Errorf("%w: %q is not a valid %T", ErrInvalidEnum, s, zero)
	}
	return e, nil
}

// ChargePointStatus 连接器状态
type ChargePointStatus string

const (
	ChargePointStatusAvailable     ChargePointStatus = "Available"
	ChargePointStatusPreparing     ChargePointStatus = "Preparing"
	ChargePointStatusCharging      ChargePointStatus = "Charging"
	ChargePointStatusSuspendedEVSE ChargePointStatus = "SuspendedEVSE"
	ChargePointStatusSuspendedEV   ChargePointStatus = "SuspendedEV"
	ChargePointStatusFinishing     ChargePointStatus = "Finishing"
	ChargePointStatusReserved      ChargePointStatus = "Reserved"
	ChargePointStatusUnavailable   ChargePointStatus = "Unavailable"
	ChargePointStatusFaulted       ChargePointStatus = "Faulted"
)

func (s ChargePointStatus) Valid() bool {
	switch s {
	case ChargePointStatusAvailable, ChargePointStatusPreparing, ChargePointStatusCharging,
		ChargePointStatusSuspendedEVSE, ChargePointStatusSuspendedEV, ChargePointStatusFinishing,
		ChargePointStatusReserved, ChargePointStatusUnavailable, ChargePointStatusFaulted:
		return true
	}
	return false
}

// ChargePointErrorCode 充电桩上报的故障代码
type ChargePointErrorCode string

const (
	ChargePointErrorCodeConnectorLockFailure ChargePointErrorCode = "ConnectorLockFailure"
	ChargePointErrorCodeEVCommunicationError ChargePointErrorCode = "EVCommunicationError"
	ChargePointErrorCodeGroundFailure        ChargePointErrorCode = "GroundFailure"
	ChargePointErrorCodeHighTemperature      ChargePointErrorCode = "HighTemperature"
	ChargePointErrorCodeInternalError        ChargePointErrorCode = "InternalError"
	ChargePointErrorCodeLocalListConflict    ChargePointErrorCode = "LocalListConflict"
	ChargePointErrorCodeNoError              ChargePointErrorCode = "NoError"
	ChargePointErrorCodeOtherError           ChargePointErrorCode = "OtherError"
	ChargePointErrorCodeOverCurrentFailure   ChargePointErrorCode = "OverCurrentFailure"
	ChargePointErrorCodeOverVoltage          ChargePointErrorCode = "OverVoltage"
	ChargePointErrorCodePowerMeterFailure    ChargePointErrorCode = "PowerMeterFailure"
	ChargePointErrorCodePowerSwitchFailure   ChargePointErrorCode = "PowerSwitchFailure"
	ChargePointErrorCodeReaderFailure        ChargePointErrorCode = "ReaderFailure"
	ChargePointErrorCodeResetFailure         ChargePointErrorCode = "ResetFailure"
	ChargePointErrorCodeUnderVoltage         ChargePointErrorCode = "UnderVoltage"
	ChargePointErrorCodeWeakSignal           ChargePointErrorCode = "WeakSignal"
)

func (c ChargePointErrorCode) Valid() bool {
	switch c {
	case ChargePointErrorCodeConnectorLockFailure, ChargePointErrorCodeEVCommunicationError,
		ChargePointErrorCodeGroundFailure, ChargePointErrorCodeHighTemperature,
		ChargePointErrorCodeInternalError, ChargePointErrorCodeLocalListConflict,
		ChargePointErrorCodeNoError, ChargePointErrorCodeOtherError,
		ChargePointErrorCodeOverCurrentFailure, ChargePointErrorCodeOverVoltage,
		ChargePointErrorCodePowerMeterFailure, ChargePointErrorCodePowerSwitchFailure,
		ChargePointErrorCodeReaderFailure, ChargePointErrorCodeResetFailure,
		ChargePointErrorCodeUnderVoltage, ChargePointErrorCodeWeakSignal:
		return true
	}
	return false
}

// RegistrationStatus BootNotification注册结果
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

func (s RegistrationStatus) Valid() bool {
	switch s {
	case RegistrationStatusAccepted, RegistrationStatusPending, RegistrationStatusRejected:
		return true
	}
	return false
}

// AuthorizationStatus 授权状态
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

func (s AuthorizationStatus) Valid() bool {
	switch s {
	case AuthorizationStatusAccepted, AuthorizationStatusBlocked, AuthorizationStatusExpired,
		AuthorizationStatusInvalid, AuthorizationStatusConcurrentTx:
		return true
	}
	return false
}

// Reason 交易停止原因
type Reason string

const (
	ReasonEmergencyStop  Reason = "EmergencyStop"
	ReasonEVDisconnected Reason = "EVDisconnected"
	ReasonHardReset      Reason = "HardReset"
	ReasonLocal          Reason = "Local"
	ReasonOther          Reason = "Other"
	ReasonPowerLoss      Reason = "PowerLoss"
	ReasonReboot         Reason = "Reboot"
	ReasonRemote         Reason = "Remote"
	ReasonSoftReset      Reason = "SoftReset"
	ReasonUnlockCommand  Reason = "UnlockCommand"
	ReasonDeAuthorized   Reason = "DeAuthorized"
)

func (r Reason) Valid() bool {
	switch r {
	case ReasonEmergencyStop, ReasonEVDisconnected, ReasonHardReset, ReasonLocal, ReasonOther,
		ReasonPowerLoss, ReasonReboot, ReasonRemote, ReasonSoftReset, ReasonUnlockCommand,
		ReasonDeAuthorized:
		return true
	}
	return false
}

// DataTransferStatus 数据传输结果
type DataTransferStatus string

const (
	DataTransferStatusAccepted         DataTransferStatus = "Accepted"
	DataTransferStatusRejected         DataTransferStatus = "Rejected"
	DataTransferStatusUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferStatusUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

func (s DataTransferStatus) Valid() bool {
	switch s {
	case DataTransferStatusAccepted, DataTransferStatusRejected,
		DataTransferStatusUnknownMessageId, DataTransferStatusUnknownVendorId:
		return true
	}
	return false
}

// DiagnosticsStatus 诊断上传状态
type DiagnosticsStatus string

const (
	DiagnosticsStatusIdle         DiagnosticsStatus = "Idle"
	DiagnosticsStatusUploaded     DiagnosticsStatus = "Uploaded"
	DiagnosticsStatusUploadFailed DiagnosticsStatus = "UploadFailed"
	DiagnosticsStatusUploading    DiagnosticsStatus = "Uploading"
)

func (s DiagnosticsStatus) Valid() bool {
	switch s {
	case DiagnosticsStatusIdle, DiagnosticsStatusUploaded, DiagnosticsStatusUploadFailed, DiagnosticsStatusUploading:
		return true
	}
	return false
}

// FirmwareStatus 固件升级状态
type FirmwareStatus string

const (
	FirmwareStatusDownloaded         FirmwareStatus = "Downloaded"
	FirmwareStatusDownloadFailed     FirmwareStatus = "DownloadFailed"
	FirmwareStatusDownloading        FirmwareStatus = "Downloading"
	FirmwareStatusIdle               FirmwareStatus = "Idle"
	FirmwareStatusInstallationFailed FirmwareStatus = "InstallationFailed"
	FirmwareStatusInstalling         FirmwareStatus = "Installing"
	FirmwareStatusInstalled          FirmwareStatus = "Installed"
)

func (s FirmwareStatus) Valid() bool {
	switch s {
	case FirmwareStatusDownloaded, FirmwareStatusDownloadFailed, FirmwareStatusDownloading,
		FirmwareStatusIdle, FirmwareStatusInstallationFailed, FirmwareStatusInstalling,
		FirmwareStatusInstalled:
		return true
	}
	return false
}

// UpdateType 本地授权列表更新方式
type UpdateType string

const (
	UpdateTypeDifferential UpdateType = "Differential"
	UpdateTypeFull         UpdateType = "Full"
)

func (t UpdateType) Valid() bool {
	return t == UpdateTypeDifferential || t == UpdateTypeFull
}

// UpdateStatus 本地授权列表更新结果
type UpdateStatus string

const (
	UpdateStatusAccepted        UpdateStatus = "Accepted"
	UpdateStatusFailed          UpdateStatus = "Failed"
	UpdateStatusNotSupported    UpdateStatus = "NotSupported"
	UpdateStatusVersionMismatch UpdateStatus = "VersionMismatch"
)

func (s UpdateStatus) Valid() bool {
	switch s {
	case UpdateStatusAccepted, UpdateStatusFailed, UpdateStatusNotSupported, UpdateStatusVersionMismatch:
		return true
	}
	return false
}

// ResetType 重置方式
type ResetType string

const (
	ResetTypeHard ResetType = "Hard"
	ResetTypeSoft ResetType = "Soft"
)

func (t ResetType) Valid() bool {
	return t == ResetTypeHard || t == ResetTypeSoft
}

// ResetStatus 重置请求结果
type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

func (s ResetStatus) Valid() bool {
	return s == ResetStatusAccepted || s == ResetStatusRejected
}

// AvailabilityType 可用性目标状态
type AvailabilityType string

const (
	AvailabilityTypeInoperative AvailabilityType = "Inoperative"
	AvailabilityTypeOperative   AvailabilityType = "Operative"
)

func (t AvailabilityType) Valid() bool {
	return t == AvailabilityTypeInoperative || t == AvailabilityTypeOperative
}

// AvailabilityStatus 可用性变更结果
type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

func (s AvailabilityStatus) Valid() bool {
	switch s {
	case AvailabilityStatusAccepted, AvailabilityStatusRejected, AvailabilityStatusScheduled:
		return true
	}
	return false
}

// ReadingContext 读数上下文
type ReadingContext string

const (
	ReadingContextInterruptionBegin ReadingContext = "Interruption.Begin"
	ReadingContextInterruptionEnd   ReadingContext = "Interruption.End"
	ReadingContextSampleClock       ReadingContext = "Sample.Clock"
	ReadingContextSamplePeriodic    ReadingContext = "Sample.Periodic"
	ReadingContextTransactionBegin  ReadingContext = "Transaction.Begin"
	ReadingContextTransactionEnd    ReadingContext = "Transaction.End"
	ReadingContextTrigger           ReadingContext = "Trigger"
	ReadingContextOther             ReadingContext = "Other"
)

func (c ReadingContext) Valid() bool {
	switch c {
	case ReadingContextInterruptionBegin, ReadingContextInterruptionEnd, ReadingContextSampleClock,
		ReadingContextSamplePeriodic, ReadingContextTransactionBegin, ReadingContextTransactionEnd,
		ReadingContextTrigger, ReadingContextOther:
		return true
	}
	return false
}

// ValueFormat 采样值格式
type ValueFormat string

const (
	ValueFormatRaw        ValueFormat = "Raw"
	ValueFormatSignedData ValueFormat = "SignedData"
)

func (f ValueFormat) Valid() bool {
	return f == ValueFormatRaw || f == ValueFormatSignedData
}

// Measurand 测量量
type Measurand string

const (
	MeasurandCurrentExport                Measurand = "Current.Export"
	MeasurandCurrentImport                Measurand = "Current.Import"
	MeasurandCurrentOffered               Measurand = "Current.Offered"
	MeasurandEnergyActiveExportRegister   Measurand = "Energy.Active.Export.Register"
	MeasurandEnergyActiveImportRegister   Measurand = "Energy.Active.Import.Register"
	MeasurandEnergyReactiveExportRegister Measurand = "Energy.Reactive.Export.Register"
	MeasurandEnergyReactiveImportRegister Measurand = "Energy.Reactive.Import.Register"
	MeasurandEnergyActiveExportInterval   Measurand = "Energy.Active.Export.Interval"
	MeasurandEnergyActiveImportInterval   Measurand = "Energy.Active.Import.Interval"
	MeasurandEnergyReactiveExportInterval Measurand = "Energy.Reactive.Export.Interval"
	MeasurandEnergyReactiveImportInterval Measurand = "Energy.Reactive.Import.Interval"
	MeasurandFrequency                    Measurand = "Frequency"
	MeasurandPowerActiveExport            Measurand = "Power.Active.Export"
	MeasurandPowerActiveImport            Measurand = "Power.Active.Import"
	MeasurandPowerFactor                  Measurand = "Power.Factor"
	MeasurandPowerOffered                 Measurand = "Power.Offered"
	MeasurandPowerReactiveExport          Measurand = "Power.Reactive.Export"
	MeasurandPowerReactiveImport          Measurand = "Power.Reactive.Import"
	MeasurandRPM                          Measurand = "RPM"
	MeasurandSoC                          Measurand = "SoC"
	MeasurandTemperature                  Measurand = "Temperature"
	MeasurandVoltage                      Measurand = "Voltage"
)

func (m Measurand) Valid() bool {
	switch m {
	case MeasurandCurrentExport, MeasurandCurrentImport, MeasurandCurrentOffered,
		MeasurandEnergyActiveExportRegister, MeasurandEnergyActiveImportRegister,
		MeasurandEnergyReactiveExportRegister, MeasurandEnergyReactiveImportRegister,
		MeasurandEnergyActiveExportInterval, MeasurandEnergyActiveImportInterval,
		MeasurandEnergyReactiveExportInterval, MeasurandEnergyReactiveImportInterval,
		MeasurandFrequency, MeasurandPowerActiveExport, MeasurandPowerActiveImport,
		MeasurandPowerFactor, MeasurandPowerOffered, MeasurandPowerReactiveExport,
		MeasurandPowerReactiveImport, MeasurandRPM, MeasurandSoC, MeasurandTemperature,
		MeasurandVoltage:
		return true
	}
	return false
}

// Phase 相位
type Phase string

const (
	PhaseL1   Phase = "L1"
	PhaseL2   Phase = "L2"
	PhaseL3   Phase = "L3"
	PhaseN    Phase = "N"
	PhaseL1N  Phase = "L1-N"
	PhaseL2N  Phase = "L2-N"
	PhaseL3N  Phase = "L3-N"
	PhaseL1L2 Phase = "L1-L2"
	PhaseL2L3 Phase = "L2-L3"
	PhaseL3L1 Phase = "L3-L1"
)

func (p Phase) Valid() bool {
	switch p {
	case PhaseL1, PhaseL2, PhaseL3, PhaseN, PhaseL1N, PhaseL2N, PhaseL3N, PhaseL1L2, PhaseL2L3, PhaseL3L1:
		return true
	}
	return false
}

// Location 测量位置
type Location string

const (
	LocationBody   Location = "Body"
	LocationCable  Location = "Cable"
	LocationEV     Location = "EV"
	LocationInlet  Location = "Inlet"
	LocationOutlet Location = "Outlet"
)

func (l Location) Valid() bool {
	switch l {
	case LocationBody, LocationCable, LocationEV, LocationInlet, LocationOutlet:
		return true
	}
	return false
}

// UnitOfMeasure 测量单位
type UnitOfMeasure string

const (
	UnitOfMeasureWh         UnitOfMeasure = "Wh"
	UnitOfMeasureKWh        UnitOfMeasure = "kWh"
	UnitOfMeasureVarh       UnitOfMeasure = "varh"
	UnitOfMeasureKvarh      UnitOfMeasure = "kvarh"
	UnitOfMeasureW          UnitOfMeasure = "W"
	UnitOfMeasureKW         UnitOfMeasure = "kW"
	UnitOfMeasureVA         UnitOfMeasure = "VA"
	UnitOfMeasureKVA        UnitOfMeasure = "kVA"
	UnitOfMeasureVar        UnitOfMeasure = "var"
	UnitOfMeasureKvar       UnitOfMeasure = "kvar"
	UnitOfMeasureA          UnitOfMeasure = "A"
	UnitOfMeasureV          UnitOfMeasure = "V"
	UnitOfMeasureCelsius    UnitOfMeasure = "Celsius"
	UnitOfMeasureFahrenheit UnitOfMeasure = "Fahrenheit"
	UnitOfMeasureK          UnitOfMeasure = "K"
	UnitOfMeasurePercent    UnitOfMeasure = "Percent"
)

func (u UnitOfMeasure) Valid() bool {
	switch u {
	case UnitOfMeasureWh, UnitOfMeasureKWh, UnitOfMeasureVarh, UnitOfMeasureKvarh, UnitOfMeasureW,
		UnitOfMeasureKW, UnitOfMeasureVA, UnitOfMeasureKVA, UnitOfMeasureVar, UnitOfMeasureKvar,
		UnitOfMeasureA, UnitOfMeasureV, UnitOfMeasureCelsius, UnitOfMeasureFahrenheit,
		UnitOfMeasureK, UnitOfMeasurePercent:
		return true
	}
	return false
}

// DateTime OCPP时间戳，序列化为UTC的RFC3339格式
type DateTime struct {
	time.Time
}

// NewDateTime 以UTC包装时间
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t.UTC()}
}

// MarshalJSON 实现JSON序列化
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.Time.UTC().Format(time.RFC3339Nano))
}

// UnmarshalJSON 实现JSON反序列化，接受带或不带小数秒的RFC3339时间
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("timestamp must be a string: %w", err)
	}
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return fmt.Errorf("invalid timestamp %q: %w", str, err)
	}
	dt.Time = t
	return nil
}
