package v16

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

func newFirmwareEnv(t *testing.T, failureStatus string) *testEnv {
	t.Helper()

	st := station.New(config.StationConfig{
		ID:             "CP-FW",
		OCPPVersion:    "1.6",
		Vendor:         "V",
		Model:          "M",
		ConnectorCount: 1,
	}, nil, nil, nil)
	t.Cleanup(st.Stop)

	transport := &csmsTransport{open: true, respond: defaultResponder}
	rt := router.New(st.ID(), transport, 2*time.Second, nil)
	transport.router = rt
	t.Cleanup(rt.Stop)

	ocppCfg := config.OCPPConfig{
		RequestTimeout:           2 * time.Second,
		TriggerMessageDelay:      time.Millisecond,
		HeartbeatInterval:        300 * time.Second,
		MeterValueSampleInterval: time.Minute,
	}
	fwCfg := config.FirmwareConfig{
		MinDelay:                time.Millisecond,
		MaxDelay:                2 * time.Millisecond,
		FailureStatus:           failureStatus,
		ResetOnUpgrade:          true,
		TransactionPollInterval: 5 * time.Millisecond,
	}

	svc := NewService(st, rt, ocppCfg, fwCfg, config.DiagnosticsConfig{LogDir: t.TempDir()}, nil, nil)
	return &testEnv{station: st, service: svc, transport: transport}
}

func firmwareStatuses(env *testEnv) []ocpp16.FirmwareStatus {
	var statuses []ocpp16.FirmwareStatus
	for _, payload := range env.transport.sentCalls("FirmwareStatusNotification") {
		var notification ocpp16.FirmwareStatusNotificationRequest
		if err := json.Unmarshal(payload, &notification); err == nil {
			statuses = append(statuses, notification.Status)
		}
	}
	return statuses
}

func TestFirmwareUpdateDownloadFailed(t *testing.T) {
	env := newFirmwareEnv(t, string(ocpp16.FirmwareStatusDownloadFailed))
	env.station.SetRegistration(station.RegistrationAccepted)

	retrieveDate := time.Now().UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{"location":"ftp://firmware.example.com/fw.bin","retrieveDate":%q}`, retrieveDate)
	env.service.HandleIncoming("msg-1", "UpdateFirmware", json.RawMessage(payload))

	response := env.transport.repliesTo("msg-1")
	require.NotNil(t, response)

	// 失败场景只发出Downloading与DownloadFailed两条通知后终止
	require.Eventually(t, func() bool {
		statuses := firmwareStatuses(env)
		return len(statuses) == 2
	}, 2*time.Second, 10*time.Millisecond)

	statuses := firmwareStatuses(env)
	assert.Equal(t, []ocpp16.FirmwareStatus{
		ocpp16.FirmwareStatusDownloading,
		ocpp16.FirmwareStatusDownloadFailed,
	}, statuses)

	assert.Equal(t, ocpp16.FirmwareStatusDownloadFailed, env.station.FirmwareStatus())
}

func TestFirmwareUpdateHappyPath(t *testing.T) {
	env := newFirmwareEnv(t, "")
	env.station.SetRegistration(station.RegistrationAccepted)

	resetDone := make(chan string, 1)
	env.station.SetResetHook(func(reason string) { resetDone <- reason })

	retrieveDate := time.Now().UTC().Format(time.RFC3339)
	payload := fmt.Sprintf(`{"location":"ftp://firmware.example.com/fw.bin","retrieveDate":%q}`, retrieveDate)
	env.service.HandleIncoming("msg-1", "UpdateFirmware", json.RawMessage(payload))

	select {
	case reason := <-resetDone:
		assert.Equal(t, string(ocpp16.ReasonReboot), reason)
	case <-time.After(3 * time.Second):
		t.Fatal("firmware simulation did not reset the station")
	}

	statuses := firmwareStatuses(env)
	assert.Equal(t, []ocpp16.FirmwareStatus{
		ocpp16.FirmwareStatusDownloading,
		ocpp16.FirmwareStatusDownloaded,
		ocpp16.FirmwareStatusInstalling,
		ocpp16.FirmwareStatusInstalled,
	}, statuses)

	// 空闲连接器在下载前被置为不可用
	connector := env.station.GetConnector(1)
	assert.Equal(t, ocpp16.ChargePointStatusUnavailable, connector.Status16)

	// 升级进行中再次触发被忽略
	env.station.SetFirmwareStatus(ocpp16.FirmwareStatusDownloading)
	env.service.HandleIncoming("msg-2", "UpdateFirmware", json.RawMessage(payload))
	require.NotNil(t, env.transport.repliesTo("msg-2"))
}
