package v201

import (
	"reflect"
)

// payloadTypes 每个action的请求/响应载荷类型注册表
var payloadTypes = map[Action]map[bool]reflect.Type{
	ActionBootNotification: {
		true:  reflect.TypeOf(BootNotificationRequest{}),
		false: reflect.TypeOf(BootNotificationResponse{}),
	},
	ActionClearCache: {
		true:  reflect.TypeOf(ClearCacheRequest{}),
		false: reflect.TypeOf(ClearCacheResponse{}),
	},
	ActionGetBaseReport: {
		true:  reflect.TypeOf(GetBaseReportRequest{}),
		false: reflect.TypeOf(GetBaseReportResponse{}),
	},
	ActionGetVariables: {
		true:  reflect.TypeOf(GetVariablesRequest{}),
		false: reflect.TypeOf(GetVariablesResponse{}),
	},
	ActionHeartbeat: {
		true:  reflect.TypeOf(HeartbeatRequest{}),
		false: reflect.TypeOf(HeartbeatResponse{}),
	},
	ActionNotifyReport: {
		true:  reflect.TypeOf(NotifyReportRequest{}),
		false: reflect.TypeOf(NotifyReportResponse{}),
	},
	ActionRequestStartTransaction: {
		true:  reflect.TypeOf(RequestStartTransactionRequest{}),
		false: reflect.TypeOf(RequestStartTransactionResponse{}),
	},
	ActionRequestStopTransaction: {
		true:  reflect.TypeOf(RequestStopTransactionRequest{}),
		false: reflect.TypeOf(RequestStopTransactionResponse{}),
	},
	ActionReset: {
		true:  reflect.TypeOf(ResetRequest{}),
		false: reflect.TypeOf(ResetResponse{}),
	},
	ActionSetVariables: {
		true:  reflect.TypeOf(SetVariablesRequest{}),
		false: reflect.TypeOf(SetVariablesResponse{}),
	},
	ActionStatusNotification: {
		true:  reflect.TypeOf(StatusNotificationRequest{}),
		false: reflect.TypeOf(StatusNotificationResponse{}),
	},
	ActionTransactionEvent: {
		true:  reflect.TypeOf(TransactionEventRequest{}),
		false: reflect.TypeOf(TransactionEventResponse{}),
	},
}

// IsValidAction 检查action是否为2.0.1协议定义的动作
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
