package v16

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// csmsTransport 模拟CSMS的传输替身：记录发出的帧并按脚本应答出站CALL
type csmsTransport struct {
	mu      sync.Mutex
	open    bool
	frames  [][]byte
	router  *router.Router
	respond func(action string, payload json.RawMessage) (interface{}, *wire.Error)
}

func (t *csmsTransport) Send(data []byte) error {
	t.mu.Lock()
	if !t.open {
		t.mu.Unlock()
		return errors.New("websocket closed")
	}
	t.frames = append(t.frames, data)
	t.mu.Unlock()

	frame, err := wire.Unmarshal(data)
	if err != nil || frame.Type != wire.Call || t.respond == nil {
		return nil
	}

	go func() {
		response, ocppErr := t.respond(frame.Action, frame.Payload)
		if ocppErr != nil {
			reply, _ := wire.MarshalCallError(frame.MessageID, ocppErr)
			t.router.HandleFrame(reply)
			return
		}
		reply, _ := wire.MarshalCallResult(frame.MessageID, response)
		t.router.HandleFrame(reply)
	}()
	return nil
}

func (t *csmsTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.open
}

// sentCalls 发往CSMS的指定action的CALL载荷
func (t *csmsTransport) sentCalls(action string) []json.RawMessage {
	t.mu.Lock()
	defer t.mu.Unlock()

	var payloads []json.RawMessage
	for _, data := range t.frames {
		frame, err := wire.Unmarshal(data)
		if err == nil && frame.Type == wire.Call && frame.Action == action {
			payloads = append(payloads, frame.Payload)
		}
	}
	return payloads
}

// repliesTo 站点对指定messageId的应答帧
func (t *csmsTransport) repliesTo(messageID string) *wire.Frame {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, data := range t.frames {
		frame, err := wire.Unmarshal(data)
		if err == nil && frame.Type != wire.Call && frame.MessageID == messageID {
			return frame
		}
	}
	return nil
}

// defaultResponder 标准CSMS脚本：授权通过，交易接受
func defaultResponder(action string, payload json.RawMessage) (interface{}, *wire.Error) {
	switch action {
	case "Authorize":
		return &ocpp16.AuthorizeResponse{IdTagInfo: ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted}}, nil
	case "StartTransaction":
		return &ocpp16.StartTransactionResponse{
			IdTagInfo:     ocpp16.IdTagInfo{Status: ocpp16.AuthorizationStatusAccepted},
			TransactionId: 1001,
		}, nil
	case "StopTransaction":
		return &ocpp16.StopTransactionResponse{}, nil
	case "Heartbeat":
		return &ocpp16.HeartbeatResponse{CurrentTime: ocpp16.NewDateTime(time.Now())}, nil
	case "BootNotification":
		return &ocpp16.BootNotificationResponse{
			Status:      ocpp16.RegistrationStatusAccepted,
			CurrentTime: ocpp16.NewDateTime(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)),
			Interval:    45,
		}, nil
	default:
		// StatusNotification、MeterValues等空应答
		return map[string]interface{}{}, nil
	}
}

type testEnv struct {
	station   *station.Station
	service   *Service
	transport *csmsTransport
}

func newTestEnv(t *testing.T, stationCfg config.StationConfig) *testEnv {
	t.Helper()

	if stationCfg.ID == "" {
		stationCfg.ID = "CP-TEST"
	}
	if stationCfg.OCPPVersion == "" {
		stationCfg.OCPPVersion = "1.6"
	}
	if stationCfg.Vendor == "" {
		stationCfg.Vendor = "V"
	}
	if stationCfg.Model == "" {
		stationCfg.Model = "M"
	}
	if stationCfg.ConnectorCount == 0 {
		stationCfg.ConnectorCount = 2
	}

	st := station.New(stationCfg, nil, nil, nil)
	t.Cleanup(st.Stop)

	transport := &csmsTransport{open: true, respond: defaultResponder}
	rt := router.New(st.ID(), transport, 2*time.Second, nil)
	transport.router = rt
	t.Cleanup(rt.Stop)

	ocppCfg := config.OCPPConfig{
		RequestTimeout:           2 * time.Second,
		TriggerMessageDelay:      time.Millisecond,
		IdleResetPollInterval:    10 * time.Millisecond,
		HeartbeatInterval:        300 * time.Second,
		MeterValueSampleInterval: time.Minute,
	}
	fwCfg := config.FirmwareConfig{
		MinDelay:                time.Millisecond,
		MaxDelay:                2 * time.Millisecond,
		TransactionPollInterval: 5 * time.Millisecond,
	}
	diagCfg := config.DiagnosticsConfig{LogDir: t.TempDir(), ArchiveName: "diagnostics"}

	svc := NewService(st, rt, ocppCfg, fwCfg, diagCfg, nil, nil)

	return &testEnv{station: st, service: svc, transport: transport}
}

// callResultPayload 取站点对messageId的CALLRESULT载荷并反序列化
func callResultPayload(t *testing.T, env *testEnv, messageID string, target interface{}) {
	t.Helper()
	frame := env.transport.repliesTo(messageID)
	require.NotNil(t, frame, "no reply for message %s", messageID)
	require.Equal(t, wire.CallResult, frame.Type, "expected CallResult, got error %s: %s", frame.ErrorCode, frame.ErrorDescription)
	require.NoError(t, json.Unmarshal(frame.Payload, target))
}

func TestRegistrationGateRejectsUnregistered(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{StrictCompliance: true})

	// Unknown + 严格合规 => SecurityError，且无状态变化
	env.service.HandleIncoming("msg-1", "Reset", json.RawMessage(`{"type":"Soft"}`))

	frame := env.transport.repliesTo("msg-1")
	require.NotNil(t, frame)
	assert.Equal(t, wire.CallError, frame.Type)
	assert.Equal(t, string(wire.ErrSecurityError), frame.ErrorCode)
}

func TestRegistrationGateAllowsUnknownWhenNotStrict(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})

	env.service.HandleIncoming("msg-1", "ClearCache", json.RawMessage(`{}`))

	response := &ocpp16.ClearCacheResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.ClearCacheStatusAccepted, response.Status)
}

func TestUnsupportedActionNotImplemented(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "SendLocalList", json.RawMessage(`{}`))

	frame := env.transport.repliesTo("msg-1")
	require.NotNil(t, frame)
	assert.Equal(t, wire.CallError, frame.Type)
	assert.Equal(t, string(wire.ErrNotImplemented), frame.ErrorCode)
}

func TestMalformedPayloadFormationViolation(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	// 缺少必填的key
	env.service.HandleIncoming("msg-1", "ChangeConfiguration", json.RawMessage(`{"value":"1"}`))

	frame := env.transport.repliesTo("msg-1")
	require.NotNil(t, frame)
	assert.Equal(t, wire.CallError, frame.Type)
	assert.Equal(t, string(wire.ErrFormationViolation), frame.ErrorCode)

	// 无状态变化
	_, ok := env.station.ConfigStore().GetValue("")
	assert.False(t, ok)
}

func TestBootNotificationAcceptedStoresInterval(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})

	require.NoError(t, env.service.SendBootNotification(context.Background(), nil))

	assert.True(t, env.station.IsRegistered())

	value, ok := env.station.ConfigStore().GetValue(station.KeyHeartbeatInterval)
	require.True(t, ok)
	assert.Equal(t, "45", value)

	legacy, ok := env.station.ConfigStore().GetValue(station.KeyHeartBeatIntervalLegacy)
	require.True(t, ok)
	assert.Equal(t, "45", legacy)

	// 只带已定义的字段
	calls := env.transport.sentCalls("BootNotification")
	require.Len(t, calls, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(calls[0], &payload))
	assert.Equal(t, "V", payload["chargePointVendor"])
	assert.NotContains(t, payload, "chargePointSerialNumber")
}

func TestChangeConfigurationHeartbeatMirror(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "ChangeConfiguration", json.RawMessage(`{"key":"HeartbeatInterval","value":"30"}`))

	response := &ocpp16.ChangeConfigurationResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.ConfigurationStatusAccepted, response.Status)

	modern, _ := env.station.ConfigStore().GetValue(station.KeyHeartbeatInterval)
	legacy, _ := env.station.ConfigStore().GetValue(station.KeyHeartBeatIntervalLegacy)
	assert.Equal(t, "30", modern)
	assert.Equal(t, "30", legacy)

	// 等值重写同样Accepted且无副作用
	env.service.HandleIncoming("msg-2", "ChangeConfiguration", json.RawMessage(`{"key":"HeartbeatInterval","value":"30"}`))
	response = &ocpp16.ChangeConfigurationResponse{}
	callResultPayload(t, env, "msg-2", response)
	assert.Equal(t, ocpp16.ConfigurationStatusAccepted, response.Status)
}

func TestChangeConfigurationReadonlyRejected(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "ChangeConfiguration", json.RawMessage(`{"key":"NumberOfConnectors","value":"5"}`))

	response := &ocpp16.ChangeConfigurationResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.ConfigurationStatusRejected, response.Status)

	// 存储值不变
	value, _ := env.station.ConfigStore().GetValue(station.KeyNumberOfConnectors)
	assert.Equal(t, "2", value)
}

func TestChangeConfigurationUnknownKey(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "ChangeConfiguration", json.RawMessage(`{"key":"NoSuchKey","value":"1"}`))

	response := &ocpp16.ChangeConfigurationResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.ConfigurationStatusNotSupported, response.Status)
}

func TestGetConfigurationOmitsHiddenKeys(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "GetConfiguration", json.RawMessage(`{}`))

	response := &ocpp16.GetConfigurationResponse{}
	callResultPayload(t, env, "msg-1", response)

	for _, key := range response.ConfigurationKey {
		assert.NotEqual(t, "AuthorizationKey", key.Key)
	}

	// 指定键查询：未知键单列，隐藏键静默省略
	env.service.HandleIncoming("msg-2", "GetConfiguration", json.RawMessage(`{"key":["HeartbeatInterval","AuthorizationKey","NoSuchKey"]}`))

	response = &ocpp16.GetConfigurationResponse{}
	callResultPayload(t, env, "msg-2", response)
	require.Len(t, response.ConfigurationKey, 1)
	assert.Equal(t, "HeartbeatInterval", response.ConfigurationKey[0].Key)
	assert.Equal(t, []string{"NoSuchKey"}, response.UnknownKey)
}

func TestRemoteStartHappyPath(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{
		AuthorizeRemoteTx:    true,
		LocalAuthListEnabled: true,
		LocalAuthTags:        []string{"TAG-1"},
	})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "RemoteStartTransaction", json.RawMessage(`{"connectorId":1,"idTag":"TAG-1"}`))

	response := &ocpp16.RemoteStartTransactionResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, response.Status)

	// StatusNotification(Preparing)先于StartTransaction
	statusCalls := env.transport.sentCalls("StatusNotification")
	require.NotEmpty(t, statusCalls)
	var firstStatus ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(statusCalls[0], &firstStatus))
	assert.Equal(t, ocpp16.ChargePointStatusPreparing, firstStatus.Status)

	require.Len(t, env.transport.sentCalls("StartTransaction"), 1)

	connector := env.station.GetConnector(1)
	assert.Equal(t, ocpp16.ChargePointStatusCharging, connector.Status16)
	assert.True(t, connector.TransactionStarted)
	assert.Equal(t, 1001, connector.TransactionID)
	assert.Equal(t, "TAG-1", connector.TransactionIdTag)
}

func TestRemoteStartRejectedUnauthorized(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{
		AuthorizeRemoteTx:    true,
		LocalAuthListEnabled: true,
		LocalAuthTags:        []string{"TAG-1"},
		MustAuthorizeAtStart: false,
	})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "RemoteStartTransaction", json.RawMessage(`{"connectorId":1,"idTag":"TAG-X"}`))

	response := &ocpp16.RemoteStartTransactionResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, response.Status)

	// 回退到Available
	connector := env.station.GetConnector(1)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, connector.Status16)
	assert.False(t, connector.TransactionStarted)

	// Preparing后有Available回补通知
	statusCalls := env.transport.sentCalls("StatusNotification")
	require.GreaterOrEqual(t, len(statusCalls), 2)
	var lastStatus ocpp16.StatusNotificationRequest
	require.NoError(t, json.Unmarshal(statusCalls[len(statusCalls)-1], &lastStatus))
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, lastStatus.Status)

	// 未发出StartTransaction
	assert.Empty(t, env.transport.sentCalls("StartTransaction"))
}

func TestRemoteStartUnknownConnectorRejected(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "RemoteStartTransaction", json.RawMessage(`{"connectorId":9,"idTag":"TAG-1"}`))

	response := &ocpp16.RemoteStartTransactionResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, response.Status)
}

func TestRemoteStopTransaction(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{
		AuthorizeRemoteTx:    true,
		LocalAuthListEnabled: true,
		LocalAuthTags:        []string{"TAG-1"},
	})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "RemoteStartTransaction", json.RawMessage(`{"connectorId":1,"idTag":"TAG-1"}`))
	require.True(t, env.station.GetConnector(1).TransactionStarted)

	env.service.HandleIncoming("msg-2", "RemoteStopTransaction", json.RawMessage(`{"transactionId":1001}`))

	response := &ocpp16.RemoteStopTransactionResponse{}
	callResultPayload(t, env, "msg-2", response)
	assert.Equal(t, ocpp16.RemoteStartStopStatusAccepted, response.Status)

	connector := env.station.GetConnector(1)
	assert.False(t, connector.TransactionStarted)
	assert.Equal(t, ocpp16.ChargePointStatusAvailable, connector.Status16)

	// 停止原因为Remote
	stopCalls := env.transport.sentCalls("StopTransaction")
	require.Len(t, stopCalls, 1)
	var stopRequest ocpp16.StopTransactionRequest
	require.NoError(t, json.Unmarshal(stopCalls[0], &stopRequest))
	require.NotNil(t, stopRequest.Reason)
	assert.Equal(t, ocpp16.ReasonRemote, *stopRequest.Reason)

	// 未知交易号被拒绝
	env.service.HandleIncoming("msg-3", "RemoteStopTransaction", json.RawMessage(`{"transactionId":9999}`))
	response = &ocpp16.RemoteStopTransactionResponse{}
	callResultPayload(t, env, "msg-3", response)
	assert.Equal(t, ocpp16.RemoteStartStopStatusRejected, response.Status)
}

func TestDataTransfer(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{VendorIDs: []string{"GoodVendor"}})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "DataTransfer", json.RawMessage(`{"vendorId":"GoodVendor"}`))
	response := &ocpp16.DataTransferResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.DataTransferStatusAccepted, response.Status)

	// 未知vendorId是纯函数，无副作用
	env.service.HandleIncoming("msg-2", "DataTransfer", json.RawMessage(`{"vendorId":"BadVendor"}`))
	response = &ocpp16.DataTransferResponse{}
	callResultPayload(t, env, "msg-2", response)
	assert.Equal(t, ocpp16.DataTransferStatusUnknownVendorId, response.Status)
}

func TestClearChargingProfileAcceptedThenUnknown(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	setPayload := `{"connectorId":1,"csChargingProfiles":{"chargingProfileId":7,"stackLevel":1,"chargingProfilePurpose":"TxDefaultProfile","chargingProfileKind":"Absolute","chargingSchedule":{"chargingRateUnit":"A","chargingSchedulePeriod":[{"startPeriod":0,"limit":16}]}}}`
	env.service.HandleIncoming("msg-1", "SetChargingProfile", json.RawMessage(setPayload))

	setResponse := &ocpp16.SetChargingProfileResponse{}
	callResultPayload(t, env, "msg-1", setResponse)
	require.Equal(t, ocpp16.SetChargingProfileStatusAccepted, setResponse.Status)

	env.service.HandleIncoming("msg-2", "ClearChargingProfile", json.RawMessage(`{"id":7}`))
	clearResponse := &ocpp16.ClearChargingProfileResponse{}
	callResultPayload(t, env, "msg-2", clearResponse)
	assert.Equal(t, ocpp16.ClearChargingProfileStatusAccepted, clearResponse.Status)

	env.service.HandleIncoming("msg-3", "ClearChargingProfile", json.RawMessage(`{"id":7}`))
	clearResponse = &ocpp16.ClearChargingProfileResponse{}
	callResultPayload(t, env, "msg-3", clearResponse)
	assert.Equal(t, ocpp16.ClearChargingProfileStatusUnknown, clearResponse.Status)
}

func TestChangeAvailabilityScheduledWithTransaction(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{
		AuthorizeRemoteTx:    true,
		LocalAuthListEnabled: true,
		LocalAuthTags:        []string{"TAG-1"},
	})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "RemoteStartTransaction", json.RawMessage(`{"connectorId":1,"idTag":"TAG-1"}`))
	require.True(t, env.station.GetConnector(1).TransactionStarted)

	env.service.HandleIncoming("msg-2", "ChangeAvailability", json.RawMessage(`{"connectorId":1,"type":"Inoperative"}`))

	response := &ocpp16.ChangeAvailabilityResponse{}
	callResultPayload(t, env, "msg-2", response)
	assert.Equal(t, ocpp16.AvailabilityStatusScheduled, response.Status)

	// 可用性立即记录
	assert.Equal(t, ocpp16.AvailabilityTypeInoperative, env.station.GetConnector(1).Availability)
}

func TestChangeAvailabilityAcceptedWithoutTransaction(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "ChangeAvailability", json.RawMessage(`{"connectorId":1,"type":"Inoperative"}`))

	response := &ocpp16.ChangeAvailabilityResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.AvailabilityStatusAccepted, response.Status)
	assert.Equal(t, ocpp16.ChargePointStatusUnavailable, env.station.GetConnector(1).Status16)
}

func TestUnlockConnectorWithoutTransaction(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "UnlockConnector", json.RawMessage(`{"connectorId":1}`))

	response := &ocpp16.UnlockConnectorResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.UnlockStatusUnlocked, response.Status)
}

func TestTriggerMessageHeartbeat(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "TriggerMessage", json.RawMessage(`{"requestedMessage":"Heartbeat"}`))

	response := &ocpp16.TriggerMessageResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.TriggerMessageStatusAccepted, response.Status)

	// 延迟后补发Heartbeat
	require.Eventually(t, func() bool {
		return len(env.transport.sentCalls("Heartbeat")) == 1
	}, time.Second, 10*time.Millisecond)
}

func TestTriggerMessageUnsupported(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "TriggerMessage", json.RawMessage(`{"requestedMessage":"SignCertificate"}`))

	response := &ocpp16.TriggerMessageResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Equal(t, ocpp16.TriggerMessageStatusNotImplemented, response.Status)
}

func TestGetDiagnosticsUnsupportedScheme(t *testing.T) {
	env := newTestEnv(t, config.StationConfig{})
	env.station.SetRegistration(station.RegistrationAccepted)

	env.service.HandleIncoming("msg-1", "GetDiagnostics", json.RawMessage(`{"location":"http://example.com/upload"}`))

	response := &ocpp16.GetDiagnosticsResponse{}
	callResultPayload(t, env, "msg-1", response)
	assert.Nil(t, response.FileName)

	// 发出UploadFailed通知
	diagCalls := env.transport.sentCalls("DiagnosticsStatusNotification")
	require.Len(t, diagCalls, 1)
	var notification ocpp16.DiagnosticsStatusNotificationRequest
	require.NoError(t, json.Unmarshal(diagCalls[0], &notification))
	assert.Equal(t, ocpp16.DiagnosticsStatusUploadFailed, notification.Status)
}
