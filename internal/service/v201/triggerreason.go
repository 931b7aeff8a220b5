package v201

import (
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// 远程命令来源
const (
	CommandRequestStart    = "RequestStartTransaction"
	CommandRequestStop     = "RequestStopTransaction"
	CommandReset           = "Reset"
	CommandTriggerMessage  = "TriggerMessage"
	CommandUnlockConnector = "UnlockConnector"
)

// 本地授权动作
const (
	LocalAuthStart        = "start"
	LocalAuthStop         = "stop"
	LocalAuthDeauthorized = "deauthorized"
)

// 插枪动作
const (
	CableDetected  = "detected"
	CablePluggedIn = "plugged_in"
	CableUnplugged = "unplugged"
)

// 电表值来源
const (
	MeterValueSigned   = "signed"
	MeterValuePeriodic = "periodic"
	MeterValueClock    = "clock"
)

// 限制来源
const (
	LimitEnergy   = "energy_limit"
	LimitTime     = "time_limit"
	LimitExternal = "external_limit"
)

// TriggerContext 交易事件的来源上下文，用于选择triggerReason
type TriggerContext struct {
	RemoteCommand      string
	LocalAuthorization string
	CableAction        string
	ChargingState      bool
	SystemEvent        bool
	MeterValue         string
	Limit              string
	AbnormalCondition  bool
}

// SelectTriggerReason 按优先级从上下文推导triggerReason：
// 远程命令 > 本地授权 > 插枪动作 > 充电状态 > 系统事件 > 电表值 > 限制 > 异常。
// 无匹配时回落到Trigger
func SelectTriggerReason(ctx TriggerContext) ocpp201.TriggerReason {
	switch ctx.RemoteCommand {
	case CommandRequestStart:
		return ocpp201.TriggerReasonRemoteStart
	case CommandRequestStop:
		return ocpp201.TriggerReasonRemoteStop
	case CommandReset:
		return ocpp201.TriggerReasonResetCommand
	case CommandTriggerMessage:
		return ocpp201.TriggerReasonTrigger
	case CommandUnlockConnector:
		return ocpp201.TriggerReasonUnlockCommand
	}

	switch ctx.LocalAuthorization {
	case LocalAuthStart:
		return ocpp201.TriggerReasonAuthorized
	case LocalAuthStop:
		return ocpp201.TriggerReasonStopAuthorized
	case LocalAuthDeauthorized:
		return ocpp201.TriggerReasonDeauthorized
	}

	switch ctx.CableAction {
	case CableDetected:
		return ocpp201.TriggerReasonEVDetected
	case CablePluggedIn:
		return ocpp201.TriggerReasonCablePluggedIn
	case CableUnplugged:
		return ocpp201.TriggerReasonEVDeparted
	}

	if ctx.ChargingState {
		return ocpp201.TriggerReasonChargingStateChanged
	}

	if ctx.SystemEvent {
		return ocpp201.TriggerReasonTrigger
	}

	if ctx.MeterValue != "" {
		switch ctx.MeterValue {
		case MeterValueSigned:
			return ocpp201.TriggerReasonSignedDataReceived
		case MeterValuePeriodic:
			return ocpp201.TriggerReasonMeterValuePeriodic
		default:
			return ocpp201.TriggerReasonMeterValueClock
		}
	}

	switch ctx.Limit {
	case LimitEnergy:
		return ocpp201.TriggerReasonEnergyLimitReached
	case LimitTime:
		return ocpp201.TriggerReasonTimeLimitReached
	case LimitExternal:
		return ocpp201.TriggerReasonChargingRateChanged
	}

	if ctx.AbnormalCondition {
		return ocpp201.TriggerReasonAbnormalCondition
	}

	return ocpp201.TriggerReasonTrigger
}
