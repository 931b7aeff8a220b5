package v16

import (
	"reflect"
)

// payloadTypes 每个action的请求/响应载荷类型注册表
var payloadTypes = map[Action]map[bool]reflect.Type{
	ActionAuthorize: {
		true:  reflect.TypeOf(AuthorizeRequest{}),
		false: reflect.TypeOf(AuthorizeResponse{}),
	},
	ActionBootNotification: {
		true:  reflect.TypeOf(BootNotificationRequest{}),
		false: reflect.TypeOf(BootNotificationResponse{}),
	},
	ActionChangeAvailability: {
		true:  reflect.TypeOf(ChangeAvailabilityRequest{}),
		false: reflect.TypeOf(ChangeAvailabilityResponse{}),
	},
	ActionChangeConfiguration: {
		true:  reflect.TypeOf(ChangeConfigurationRequest{}),
		false: reflect.TypeOf(ChangeConfigurationResponse{}),
	},
	ActionClearCache: {
		true:  reflect.TypeOf(ClearCacheRequest{}),
		false: reflect.TypeOf(ClearCacheResponse{}),
	},
	ActionClearChargingProfile: {
		true:  reflect.TypeOf(ClearChargingProfileRequest{}),
		false: reflect.TypeOf(ClearChargingProfileResponse{}),
	},
	ActionDataTransfer: {
		true:  reflect.TypeOf(DataTransferRequest{}),
		false: reflect.TypeOf(DataTransferResponse{}),
	},
	ActionDiagnosticsStatusNotification: {
		true:  reflect.TypeOf(DiagnosticsStatusNotificationRequest{}),
		false: reflect.TypeOf(DiagnosticsStatusNotificationResponse{}),
	},
	ActionFirmwareStatusNotification: {
		true:  reflect.TypeOf(FirmwareStatusNotificationRequest{}),
		false: reflect.TypeOf(FirmwareStatusNotificationResponse{}),
	},
	ActionGetCompositeSchedule: {
		true:  reflect.TypeOf(GetCompositeScheduleRequest{}),
		false: reflect.TypeOf(GetCompositeScheduleResponse{}),
	},
	ActionGetConfiguration: {
		true:  reflect.TypeOf(GetConfigurationRequest{}),
		false: reflect.TypeOf(GetConfigurationResponse{}),
	},
	ActionGetDiagnostics: {
		true:  reflect.TypeOf(GetDiagnosticsRequest{}),
		false: reflect.TypeOf(GetDiagnosticsResponse{}),
	},
	ActionHeartbeat: {
		true:  reflect.TypeOf(HeartbeatRequest{}),
		false: reflect.TypeOf(HeartbeatResponse{}),
	},
	ActionMeterValues: {
		true:  reflect.TypeOf(MeterValuesRequest{}),
		false: reflect.TypeOf(MeterValuesResponse{}),
	},
	ActionRemoteStartTransaction: {
		true:  reflect.TypeOf(RemoteStartTransactionRequest{}),
		false: reflect.TypeOf(RemoteStartTransactionResponse{}),
	},
	ActionRemoteStopTransaction: {
		true:  reflect.TypeOf(RemoteStopTransactionRequest{}),
		false: reflect.TypeOf(RemoteStopTransactionResponse{}),
	},
	ActionReserveNow: {
		true:  reflect.TypeOf(ReserveNowRequest{}),
		false: reflect.TypeOf(ReserveNowResponse{}),
	},
	ActionCancelReservation: {
		true:  reflect.TypeOf(CancelReservationRequest{}),
		false: reflect.TypeOf(CancelReservationResponse{}),
	},
	ActionReset: {
		true:  reflect.TypeOf(ResetRequest{}),
		false: reflect.TypeOf(ResetResponse{}),
	},
	ActionSetChargingProfile: {
		true:  reflect.TypeOf(SetChargingProfileRequest{}),
		false: reflect.TypeOf(SetChargingProfileResponse{}),
	},
	ActionStartTransaction: {
		true:  reflect.TypeOf(StartTransactionRequest{}),
		false: reflect.TypeOf(StartTransactionResponse{}),
	},
	ActionStatusNotification: {
		true:  reflect.TypeOf(StatusNotificationRequest{}),
		false: reflect.TypeOf(StatusNotificationResponse{}),
	},
	ActionStopTransaction: {
		true:  reflect.TypeOf(StopTransactionRequest{}),
		false: reflect.TypeOf(StopTransactionResponse{}),
	},
	ActionTriggerMessage: {
		true:  reflect.TypeOf(TriggerMessageRequest{}),
		false: reflect.TypeOf(TriggerMessageResponse{}),
	},
	ActionUnlockConnector: {
		true:  reflect.TypeOf(UnlockConnectorRequest{}),
		false: reflect.TypeOf(UnlockConnectorResponse{}),
	},
	ActionUpdateFirmware: {
		true:  reflect.TypeOf(UpdateFirmwareRequest{}),
		false: reflect.TypeOf(UpdateFirmwareResponse{}),
	},
}

// IsValidAction 检查action是否为1.6协议定义的动作
func IsValidAction(action string) bool {
	_, ok := payloadTypes[Action(action)]
	return ok
}

// NewRequest 创建action对应的请求载荷实例，未知action返回nil
func NewRequest(action Action) interface{} {
	return newPayload(action, true)
}

// NewResponse 创建action对应的响应载荷实例，未知action返回nil
func NewResponse(action Action) interface{} {
	return newPayload(action, false)
}

func newPayload(action Action, isRequest bool) interface{} {
	actionTypes, ok := payloadTypes[action]
	if !ok {
		return nil
	}
	t, ok := actionTypes[isRequest]
	if !ok {
		return nil
	}
	return reflect.New(t).Interface()
}
