package v201

import (
	"time"
)

// Action OCPP 2.0.1动作类型
type Action string

const (
	ActionBootNotification        Action = "BootNotification"
	ActionClearCache              Action = "ClearCache"
	ActionGetBaseReport           Action = "GetBaseReport"
	ActionGetVariables            Action = "GetVariables"
	ActionHeartbeat               Action = "Heartbeat"
	ActionNotifyReport            Action = "NotifyReport"
	ActionRequestStartTransaction Action = "RequestStartTransaction"
	ActionRequestStopTransaction  Action = "RequestStopTransaction"
	ActionReset                   Action = "Reset"
	ActionSetVariables            Action = "SetVariables"
	ActionStatusNotification      Action = "StatusNotification"
	ActionTransactionEvent        Action = "TransactionEvent"
)

// RegistrationStatus 注册状态
type RegistrationStatus string

const (
	RegistrationStatusAccepted RegistrationStatus = "Accepted"
	RegistrationStatusPending  RegistrationStatus = "Pending"
	RegistrationStatusRejected RegistrationStatus = "Rejected"
)

// ConnectorStatus 连接器状态
type ConnectorStatus string

const (
	ConnectorStatusAvailable   ConnectorStatus = "Available"
	ConnectorStatusOccupied    ConnectorStatus = "Occupied"
	ConnectorStatusReserved    ConnectorStatus = "Reserved"
	ConnectorStatusUnavailable ConnectorStatus = "Unavailable"
	ConnectorStatusFaulted     ConnectorStatus = "Faulted"
)

// OperationalStatus EVSE/站点运行状态
type OperationalStatus string

const (
	OperationalStatusInoperative OperationalStatus = "Inoperative"
	OperationalStatusOperative   OperationalStatus = "Operative"
)

// BootReason 启动原因
type BootReason string

const (
	BootReasonApplicationReset BootReason = "ApplicationReset"
	BootReasonFirmwareUpdate   BootReason = "FirmwareUpdate"
	BootReasonLocalReset       BootReason = "LocalReset"
	BootReasonPowerUp          BootReason = "PowerUp"
	BootReasonRemoteReset      BootReason = "RemoteReset"
	BootReasonScheduledReset   BootReason = "ScheduledReset"
	BootReasonTriggered        BootReason = "Triggered"
	BootReasonUnknown          BootReason = "Unknown"
	BootReasonWatchdog         BootReason = "Watchdog"
)

// ResetType 重置类型
type ResetType string

const (
	ResetTypeImmediate ResetType = "Immediate"
	ResetTypeOnIdle    ResetType = "OnIdle"
)

// ResetStatus 重置结果
type ResetStatus string

const (
	ResetStatusAccepted  ResetStatus = "Accepted"
	ResetStatusRejected  ResetStatus = "Rejected"
	ResetStatusScheduled ResetStatus = "Scheduled"
)

// RequestStartStopStatus 远程启停结果
type RequestStartStopStatus string

const (
	RequestStartStopStatusAccepted RequestStartStopStatus = "Accepted"
	RequestStartStopStatusRejected RequestStartStopStatus = "Rejected"
)

// ClearCacheStatus 清除缓存结果
type ClearCacheStatus string

const (
	ClearCacheStatusAccepted ClearCacheStatus = "Accepted"
	ClearCacheStatusRejected ClearCacheStatus = "Rejected"
)

// TransactionEventType 交易事件类型
type TransactionEventType string

const (
	TransactionEventStarted TransactionEventType = "Started"
	TransactionEventUpdated TransactionEventType = "Updated"
	TransactionEventEnded   TransactionEventType = "Ended"
)

// TriggerReason 交易事件触发原因
type TriggerReason string

const (
	TriggerReasonAuthorized           TriggerReason = "Authorized"
	TriggerReasonCablePluggedIn       TriggerReason = "CablePluggedIn"
	TriggerReasonChargingRateChanged  TriggerReason = "ChargingRateChanged"
	TriggerReasonChargingStateChanged TriggerReason = "ChargingStateChanged"
	TriggerReasonDeauthorized         TriggerReason = "Deauthorized"
	TriggerReasonEnergyLimitReached   TriggerReason = "EnergyLimitReached"
	TriggerReasonEVCommunicationLost  TriggerReason = "EVCommunicationLost"
	TriggerReasonEVConnectTimeout     TriggerReason = "EVConnectTimeout"
	TriggerReasonMeterValueClock      TriggerReason = "MeterValueClock"
	TriggerReasonMeterValuePeriodic   TriggerReason = "MeterValuePeriodic"
	TriggerReasonTimeLimitReached     TriggerReason = "TimeLimitReached"
	TriggerReasonTrigger              TriggerReason = "Trigger"
	TriggerReasonUnlockCommand        TriggerReason = "UnlockCommand"
	TriggerReasonStopAuthorized       TriggerReason = "StopAuthorized"
	TriggerReasonEVDeparted           TriggerReason = "EVDeparted"
	TriggerReasonEVDetected           TriggerReason = "EVDetected"
	TriggerReasonRemoteStop           TriggerReason = "RemoteStop"
	TriggerReasonRemoteStart          TriggerReason = "RemoteStart"
	TriggerReasonAbnormalCondition    TriggerReason = "AbnormalCondition"
	TriggerReasonSignedDataReceived   TriggerReason = "SignedDataReceived"
	TriggerReasonResetCommand         TriggerReason = "ResetCommand"
)

// ChargingState 充电状态
type ChargingState string

const (
	ChargingStateCharging      ChargingState = "Charging"
	ChargingStateEVConnected   ChargingState = "EVConnected"
	ChargingStateSuspendedEV   ChargingState = "SuspendedEV"
	ChargingStateSuspendedEVSE ChargingState = "SuspendedEVSE"
	ChargingStateIdle          ChargingState = "Idle"
)

// StoppedReason 交易结束原因
type StoppedReason string

const (
	StoppedReasonDeAuthorized   StoppedReason = "DeAuthorized"
	StoppedReasonEmergencyStop  StoppedReason = "EmergencyStop"
	StoppedReasonEVDisconnected StoppedReason = "EVDisconnected"
	StoppedReasonImmediateReset StoppedReason = "ImmediateReset"
	StoppedReasonLocal          StoppedReason = "Local"
	StoppedReasonOther          StoppedReason = "Other"
	StoppedReasonPowerLoss      StoppedReason = "PowerLoss"
	StoppedReasonReboot         StoppedReason = "Reboot"
	StoppedReasonRemote         StoppedReason = "Remote"
	StoppedReasonStoppedByEV    StoppedReason = "StoppedByEV"
	StoppedReasonTimeLimit      StoppedReason = "TimeLimitReached"
	StoppedReasonUnlockCommand  StoppedReason = "UnlockCommand"
)

// AttributeType 变量属性类型
type AttributeType string

const (
	AttributeTypeActual AttributeType = "Actual"
	AttributeTypeTarget AttributeType = "Target"
	AttributeTypeMinSet AttributeType = "MinSet"
	AttributeTypeMaxSet AttributeType = "MaxSet"
)

// MutabilityType 变量可变性
type MutabilityType string

const (
	MutabilityReadOnly  MutabilityType = "ReadOnly"
	MutabilityWriteOnly MutabilityType = "WriteOnly"
	MutabilityReadWrite MutabilityType = "ReadWrite"
)

// DataType 变量数据类型
type DataType string

const (
	DataTypeString       DataType = "string"
	DataTypeDecimal      DataType = "decimal"
	DataTypeInteger      DataType = "integer"
	DataTypeDateTime     DataType = "dateTime"
	DataTypeBoolean      DataType = "boolean"
	DataTypeOptionList   DataType = "OptionList"
	DataTypeSequenceList DataType = "SequenceList"
	DataTypeMemberList   DataType = "MemberList"
)

// GetVariableStatus 变量读取结果
type GetVariableStatus string

const (
	GetVariableStatusAccepted                  GetVariableStatus = "Accepted"
	GetVariableStatusRejected                  GetVariableStatus = "Rejected"
	GetVariableStatusUnknownComponent          GetVariableStatus = "UnknownComponent"
	GetVariableStatusUnknownVariable           GetVariableStatus = "UnknownVariable"
	GetVariableStatusNotSupportedAttributeType GetVariableStatus = "NotSupportedAttributeType"
)

// SetVariableStatus 变量写入结果
type SetVariableStatus string

const (
	SetVariableStatusAccepted                  SetVariableStatus = "Accepted"
	SetVariableStatusRejected                  SetVariableStatus = "Rejected"
	SetVariableStatusUnknownComponent          SetVariableStatus = "UnknownComponent"
	SetVariableStatusUnknownVariable           SetVariableStatus = "UnknownVariable"
	SetVariableStatusNotSupportedAttributeType SetVariableStatus = "NotSupportedAttributeType"
	SetVariableStatusRebootRequired            SetVariableStatus = "RebootRequired"
)

// ReportBase 基础报告类型
type ReportBase string

const (
	ReportBaseConfigurationInventory ReportBase = "ConfigurationInventory"
	ReportBaseFullInventory          ReportBase = "FullInventory"
	ReportBaseSummaryInventory       ReportBase = "SummaryInventory"
)

// GenericDeviceModelStatus 设备模型操作结果
type GenericDeviceModelStatus string

const (
	GenericDeviceModelStatusAccepted       GenericDeviceModelStatus = "Accepted"
	GenericDeviceModelStatusRejected       GenericDeviceModelStatus = "Rejected"
	GenericDeviceModelStatusNotSupported   GenericDeviceModelStatus = "NotSupported"
	GenericDeviceModelStatusEmptyResultSet GenericDeviceModelStatus = "EmptyResultSet"
)

// ReasonCode 拒绝理由码，附在StatusInfo中
const (
	ReasonCodeTooManyElements  = "TooManyElements"
	ReasonCodeTooLargeElement  = "TooLargeElement"
	ReasonCodeUnknownEvse      = "UnknownEvse"
	ReasonCodeNoTransaction    = "NoTransaction"
	ReasonCodeInvalidProfile   = "InvalidProfile"
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

// StatusInfo 状态附加信息
type StatusInfo struct {
	ReasonCode     string  `json:"reasonCode" validate:"required,max=20"`
	AdditionalInfo *string `json:"additionalInfo,omitempty" validate:"omitempty,max=512"`
}

// ChargingStation 站点标识信息
type ChargingStation struct {
	SerialNumber    *string `json:"serialNumber,omitempty" validate:"omitempty,max=25"`
	Model           string  `json:"model" validate:"required,max=20"`
	VendorName      string  `json:"vendorName" validate:"required,max=50"`
	FirmwareVersion *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
}

// EVSE EVSE定位
type EVSE struct {
	Id          int  `json:"id" validate:"min=0"`
	ConnectorId *int `json:"connectorId,omitempty" validate:"omitempty,min=0"`
}

// IdTokenType 令牌类型
type IdTokenType string

const (
	IdTokenTypeCentral     IdTokenType = "Central"
	IdTokenTypeISO14443    IdTokenType = "ISO14443"
	IdTokenTypeISO15693    IdTokenType = "ISO15693"
	IdTokenTypeKeyCode     IdTokenType = "KeyCode"
	IdTokenTypeLocal       IdTokenType = "Local"
	IdTokenTypeMacAddress  IdTokenType = "MacAddress"
	IdTokenTypeNoAuth      IdTokenType = "NoAuthorization"
)

// IdToken 令牌
type IdToken struct {
	IdToken string      `json:"idToken" validate:"max=36"`
	Type    IdTokenType `json:"type" validate:"required"`
}

// Component 设备模型组件定位
type Component struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
	Evse     *EVSE   `json:"evse,omitempty"`
}

// Variable 设备模型变量定位
type Variable struct {
	Name     string  `json:"name" validate:"required,max=50"`
	Instance *string `json:"instance,omitempty" validate:"omitempty,max=50"`
}

// SampledValue 采样值
type SampledValue struct {
	Value     float64 `json:"value"`
	Context   *string `json:"context,omitempty"`
	Measurand *string `json:"measurand,omitempty"`
	Phase     *string `json:"phase,omitempty"`
	Location  *string `json:"location,omitempty"`
	UnitOfMeasure *UnitOfMeasure `json:"unitOfMeasure,omitempty"`
}

// UnitOfMeasure 测量单位
type UnitOfMeasure struct {
	Unit       *string `json:"unit,omitempty" validate:"omitempty,max=20"`
	Multiplier *int    `json:"multiplier,omitempty"`
}

// MeterValue 电表值
type MeterValue struct {
	Timestamp    DateTime       `json:"timestamp" validate:"required"`
	SampledValue []SampledValue `json:"sampledValue" validate:"required,min=1,dive"`
}

// Transaction 交易信息
type Transaction struct {
	TransactionId     string         `json:"transactionId" validate:"required,max=36"`
	ChargingState     *ChargingState `json:"chargingState,omitempty"`
	TimeSpentCharging *int           `json:"timeSpentCharging,omitempty"`
	StoppedReason     *StoppedReason `json:"stoppedReason,omitempty"`
	RemoteStartId     *int           `json:"remoteStartId,omitempty"`
}

// VariableAttribute 变量属性
type VariableAttribute struct {
	Type       *AttributeType  `json:"type,omitempty"`
	Value      *string         `json:"value,omitempty" validate:"omitempty,max=2500"`
	Mutability *MutabilityType `json:"mutability,omitempty"`
	Persistent *bool           `json:"persistent,omitempty"`
	Constant   *bool           `json:"constant,omitempty"`
}

// VariableCharacteristics 变量特征
type VariableCharacteristics struct {
	Unit               *string  `json:"unit,omitempty" validate:"omitempty,max=16"`
	DataType           DataType `json:"dataType" validate:"required"`
	MinLimit           *float64 `json:"minLimit,omitempty"`
	MaxLimit           *float64 `json:"maxLimit,omitempty"`
	ValuesList         *string  `json:"valuesList,omitempty" validate:"omitempty,max=1000"`
	SupportsMonitoring bool     `json:"supportsMonitoring"`
}

// ReportData 报告条目
type ReportData struct {
	Component               Component                `json:"component" validate:"required"`
	Variable                Variable                 `json:"variable" validate:"required"`
	VariableAttribute       []VariableAttribute      `json:"variableAttribute" validate:"required,min=1,max=4,dive"`
	VariableCharacteristics *VariableCharacteristics `json:"variableCharacteristics,omitempty"`
}

// GetVariableData 变量读取请求条目
type GetVariableData struct {
	AttributeType *AttributeType `json:"attributeType,omitempty"`
	Component     Component      `json:"component" validate:"required"`
	Variable      Variable       `json:"variable" validate:"required"`
}

// GetVariableResult 变量读取结果条目
type GetVariableResult struct {
	AttributeStatus     GetVariableStatus `json:"attributeStatus" validate:"required"`
	AttributeType       *AttributeType    `json:"attributeType,omitempty"`
	AttributeValue      *string           `json:"attributeValue,omitempty" validate:"omitempty,max=2500"`
	Component           Component         `json:"component" validate:"required"`
	Variable            Variable          `json:"variable" validate:"required"`
	AttributeStatusInfo *StatusInfo       `json:"attributeStatusInfo,omitempty"`
}

// SetVariableData 变量写入请求条目
type SetVariableData struct {
	AttributeType  *AttributeType `json:"attributeType,omitempty"`
	AttributeValue string         `json:"attributeValue" validate:"max=2500"`
	Component      Component      `json:"component" validate:"required"`
	Variable       Variable       `json:"variable" validate:"required"`
}

// SetVariableResult 变量写入结果条目
type SetVariableResult struct {
	AttributeType       *AttributeType    `json:"attributeType,omitempty"`
	AttributeStatus     SetVariableStatus `json:"attributeStatus" validate:"required"`
	Component           Component         `json:"component" validate:"required"`
	Variable            Variable          `json:"variable" validate:"required"`
	AttributeStatusInfo *StatusInfo       `json:"attributeStatusInfo,omitempty"`
}
