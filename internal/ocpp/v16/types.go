package v16

import (
	"time"
)

// Action OCPP 1.6动作类型
type Action string

const (
	// Core Profile Actions
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

	// Firmware Management Profile Actions
	ActionGetDiagnostics                Action = "GetDiagnostics"
	ActionDiagnosticsStatusNotification Action = "DiagnosticsStatusNotification"
	ActionFirmwareStatusNotification    Action = "FirmwareStatusNotification"
	ActionUpdateFirmware                Action = "UpdateFirmware"

	// Reservation Profile Actions
	ActionCancelReservation Action = "CancelReservation"
	ActionReserveNow        Action = "ReserveNow"

	// Smart Charging Profile Actions
	ActionClearChargingProfile Action = "ClearChargingProfile"
	ActionGetCompositeSchedule Action = "GetCompositeSchedule"
	ActionSetChargingProfile   Action = "SetChargingProfile"

	// Trigger Message Profile Actions
	ActionTriggerMessage Action = "TriggerMessage"
)

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

// ChargePointErrorCode 连接器错误代码
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

// RegistrationStatus 注册状态
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// AuthorizationStatus 授权状态
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
)

// ResetType 重置类型
type ResetType string

const (
	ResetTypeHard ResetType = "Hard"
	ResetTypeSoft ResetType = "Soft"
)

// ResetStatus 重置状态
type ResetStatus string

const (
	ResetStatusAccepted ResetStatus = "Accepted"
	ResetStatusRejected ResetStatus = "Rejected"
)

// AvailabilityType 可用性类型
type AvailabilityType string

const (
	AvailabilityTypeInoperative AvailabilityType = "Inoperative"
	AvailabilityTypeOperative   AvailabilityType = "Operative"
)

// AvailabilityStatus 可用性变更结果
type AvailabilityStatus string

const (
	AvailabilityStatusAccepted  AvailabilityStatus = "Accepted"
	AvailabilityStatusRejected  AvailabilityStatus = "Rejected"
	AvailabilityStatusScheduled AvailabilityStatus = "Scheduled"
)

// ConfigurationStatus 配置变更结果
type ConfigurationStatus string

const (
	ConfigurationStatusAccepted       ConfigurationStatus = "Accepted"
	ConfigurationStatusRejected       ConfigurationStatus = "Rejected"
	ConfigurationStatusRebootRequired ConfigurationStatus = "RebootRequired"
	ConfigurationStatusNotSupported   ConfigurationStatus = "NotSupported"
)

// ClearCacheStatus 清除缓存结果
type ClearCacheStatus string

const (
	ClearCacheStatusAccepted ClearCacheStatus = "Accepted"
	ClearCacheStatusRejected ClearCacheStatus = "Rejected"
)

// UnlockStatus 解锁结果
type UnlockStatus string

const (
	UnlockStatusUnlocked     UnlockStatus = "Unlocked"
	UnlockStatusUnlockFailed UnlockStatus = "UnlockFailed"
	UnlockStatusNotSupported UnlockStatus = "NotSupported"
)

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

// RemoteStartStopStatus 远程启停结果
type RemoteStartStopStatus string

const (
	RemoteStartStopStatusAccepted RemoteStartStopStatus = "Accepted"
	RemoteStartStopStatusRejected RemoteStartStopStatus = "Rejected"
)

// DataTransferStatus 数据传输结果
type DataTransferStatus string

const (
	DataTransferStatusAccepted         DataTransferStatus = "Accepted"
	DataTransferStatusRejected         DataTransferStatus = "Rejected"
	DataTransferStatusUnknownMessageId DataTransferStatus = "UnknownMessageId"
	DataTransferStatusUnknownVendorId  DataTransferStatus = "UnknownVendorId"
)

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

// DiagnosticsStatus 诊断上传状态
type DiagnosticsStatus string

const (
	DiagnosticsStatusIdle         DiagnosticsStatus = "Idle"
	DiagnosticsStatusUploaded     DiagnosticsStatus = "Uploaded"
	DiagnosticsStatusUploadFailed DiagnosticsStatus = "UploadFailed"
	DiagnosticsStatusUploading    DiagnosticsStatus = "Uploading"
)

// TriggerMessageStatus 触发消息结果
type TriggerMessageStatus string

const (
	TriggerMessageStatusAccepted       TriggerMessageStatus = "Accepted"
	TriggerMessageStatusRejected       TriggerMessageStatus = "Rejected"
	TriggerMessageStatusNotImplemented TriggerMessageStatus = "NotImplemented"
)

// MessageTrigger 可触发的消息类型
type MessageTrigger string

const (
	MessageTriggerBootNotification              MessageTrigger = "BootNotification"
	MessageTriggerDiagnosticsStatusNotification MessageTrigger = "DiagnosticsStatusNotification"
	MessageTriggerFirmwareStatusNotification    MessageTrigger = "FirmwareStatusNotification"
	MessageTriggerHeartbeat                     MessageTrigger = "Heartbeat"
	MessageTriggerMeterValues                   MessageTrigger = "MeterValues"
	MessageTriggerStatusNotification            MessageTrigger = "StatusNotification"
)

// ReservationStatus 预约结果
type ReservationStatus string

const (
	ReservationStatusAccepted    ReservationStatus = "Accepted"
	ReservationStatusFaulted     ReservationStatus = "Faulted"
	ReservationStatusOccupied    ReservationStatus = "Occupied"
	ReservationStatusRejected    ReservationStatus = "Rejected"
	ReservationStatusUnavailable ReservationStatus = "Unavailable"
)

// CancelReservationStatus 取消预约结果
type CancelReservationStatus string

const (
	CancelReservationStatusAccepted CancelReservationStatus = "Accepted"
	CancelReservationStatusRejected CancelReservationStatus = "Rejected"
)

// GetCompositeScheduleStatus 组合计划查询结果
type GetCompositeScheduleStatus string

const (
	GetCompositeScheduleStatusAccepted GetCompositeScheduleStatus = "Accepted"
	GetCompositeScheduleStatusRejected GetCompositeScheduleStatus = "Rejected"
)

// DateTime 自定义时间类型，序列化为RFC3339
type DateTime struct {
	time.Time
}

// NewDateTime 包装time.Time
func NewDateTime(t time.Time) DateTime {
	return DateTime{Time: t}
}

// MarshalJSON 实现JSON序列化
func (dt DateTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + dt.Time.Format(time.RFC3339) + `"`), nil
}

// UnmarshalJSON 实现JSON反序列化
func (dt *DateTime) UnmarshalJSON(data []byte) error {
	str := string(data)
	if str == "null" {
		return nil
	}
	if len(str) < 2 {
		return nil
	}
	str = str[1 : len(str)-1]
	t, err := time.Parse(time.RFC3339, str)
	if err != nil {
		return err
	}
	dt.Time = t
	return nil
}

// IdTagInfo ID标签信息
type IdTagInfo struct {
	ExpiryDate  *DateTime           `json:"expiryDate,omitempty"`
	ParentIdTag *string             `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	Status      AuthorizationStatus `json:"status" validate:"required"`
}

// KeyValue 配置键值对
type KeyValue struct {
	Key      string  `json:"key" validate:"required,max=50"`
	Readonly bool    `json:"readonly"`
	Value    *string `json:"value,omitempty" validate:"omitempty,max=500"`
}

// MeterValue 电表值
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// SampledValue 采样值
type SampledValue struct {
	Value     string          `json:"value" validate:"required"`
	Context   *ReadingContext `json:"context,omitempty"`
	Format    *ValueFormat    `json:"format,omitempty"`
	Measurand *Measurand      `json:"measurand,omitempty"`
	Phase     *Phase          `json:"phase,omitempty"`
	Location  *Location       `json:"location,omitempty"`
	Unit      *UnitOfMeasure  `json:"unit,omitempty"`
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

// ValueFormat 值格式
type ValueFormat string

const (
	ValueFormatRaw        ValueFormat = "Raw"
	ValueFormatSignedData ValueFormat = "SignedData"
)

// Measurand 测量值类型
type Measurand string

const (
	MeasurandCurrentImport              Measurand = "Current.Import"
	MeasurandCurrentOffered             Measurand = "Current.Offered"
	MeasurandEnergyActiveImportRegister Measurand = "Energy.Active.Import.Register"
	MeasurandEnergyActiveImportInterval Measurand = "Energy.Active.Import.Interval"
	MeasurandFrequency                  Measurand = "Frequency"
	MeasurandPowerActiveImport          Measurand = "Power.Active.Import"
	MeasurandPowerFactor                Measurand = "Power.Factor"
	MeasurandPowerOffered               Measurand = "Power.Offered"
	MeasurandSoC                        Measurand = "SoC"
	MeasurandTemperature                Measurand = "Temperature"
	MeasurandVoltage                    Measurand = "Voltage"
)

// Phase 相位
type Phase string

const (
	PhaseL1 Phase = "L1"
	PhaseL2 Phase = "L2"
	PhaseL3 Phase = "L3"
	PhaseN  Phase = "N"
)

// Location 采样位置
type Location string

const (
	LocationBody   Location = "Body"
	LocationCable  Location = "Cable"
	LocationEV     Location = "EV"
	LocationInlet  Location = "Inlet"
	LocationOutlet Location = "Outlet"
)

// UnitOfMeasure 测量单位
type UnitOfMeasure string

const (
	UnitOfMeasureWh      UnitOfMeasure = "Wh"
	UnitOfMeasureKWh     UnitOfMeasure = "kWh"
	UnitOfMeasureW       UnitOfMeasure = "W"
	UnitOfMeasureKW      UnitOfMeasure = "kW"
	UnitOfMeasureA       UnitOfMeasure = "A"
	UnitOfMeasureV       UnitOfMeasure = "V"
	UnitOfMeasureCelsius UnitOfMeasure = "Celsius"
	UnitOfMeasurePercent UnitOfMeasure = "Percent"
)
