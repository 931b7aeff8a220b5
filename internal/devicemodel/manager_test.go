package devicemodel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

func newTestStation(t *testing.T) *station.Station {
	t.Helper()
	st := station.New(config.StationConfig{
		ID:              "CP-DM",
		OCPPVersion:     "2.0.1",
		Vendor:          "V",
		Model:           "M",
		SerialNumber:    "SN",
		FirmwareVersion: "1.0",
		ConnectorCount:  1,
		EvseCount:       1,
	}, nil, nil, nil)
	t.Cleanup(st.Stop)
	return st
}

func getRequest(entries ...ocpp201.GetVariableData) *ocpp201.GetVariablesRequest {
	return &ocpp201.GetVariablesRequest{GetVariableData: entries}
}

func variableRef(component, variable string) ocpp201.GetVariableData {
	return ocpp201.GetVariableData{
		Component: ocpp201.Component{Name: component},
		Variable:  ocpp201.Variable{Name: variable},
	}
}

func TestGetVariablesAccepted(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	response := manager.GetVariables(st, getRequest(variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval)), 100)
	require.Len(t, response.GetVariableResult, 1)

	result := response.GetVariableResult[0]
	assert.Equal(t, ocpp201.GetVariableStatusAccepted, result.AttributeStatus)
	require.NotNil(t, result.AttributeValue)
	assert.Equal(t, "300", *result.AttributeValue)
}

func TestGetVariablesUnknownComponent(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	response := manager.GetVariables(st, getRequest(variableRef("NoSuchCtrlr", "X")), 100)
	assert.Equal(t, ocpp201.GetVariableStatusUnknownComponent, response.GetVariableResult[0].AttributeStatus)
}

func TestGetVariablesUnknownVariable(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	response := manager.GetVariables(st, getRequest(variableRef(ComponentOCPPCommCtrlr, "NoSuchVariable")), 100)
	assert.Equal(t, ocpp201.GetVariableStatusUnknownVariable, response.GetVariableResult[0].AttributeStatus)
}

func TestGetVariablesCaseInsensitiveLookup(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	response := manager.GetVariables(st, getRequest(variableRef("ocppcommctrlr", "heartbeatinterval")), 100)
	assert.Equal(t, ocpp201.GetVariableStatusAccepted, response.GetVariableResult[0].AttributeStatus)
}

func TestGetVariablesNotSupportedAttributeType(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	target := ocpp201.AttributeTypeTarget
	request := getRequest(variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval))
	request.GetVariableData[0].AttributeType = &target

	response := manager.GetVariables(st, request, 100)
	assert.Equal(t, ocpp201.GetVariableStatusNotSupportedAttributeType, response.GetVariableResult[0].AttributeStatus)
}

func TestGetVariablesTooManyElements(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)
	st.ConfigStore().SetValue(station.KeyItemsPerMessageGetVariables, "2")

	request := getRequest(
		variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval),
		variableRef(ComponentOCPPCommCtrlr, VariableWebSocketPingInterval),
		variableRef(ComponentTxCtrlr, VariableEVConnectionTimeOut),
	)

	response := manager.GetVariables(st, request, 100)
	require.Len(t, response.GetVariableResult, 3)
	for _, result := range response.GetVariableResult {
		assert.Equal(t, ocpp201.GetVariableStatusRejected, result.AttributeStatus)
		require.NotNil(t, result.AttributeStatusInfo)
		assert.Equal(t, ocpp201.ReasonCodeTooManyElements, result.AttributeStatusInfo.ReasonCode)
	}

	// 限制内的请求正常
	within := getRequest(
		variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval),
		variableRef(ComponentOCPPCommCtrlr, VariableWebSocketPingInterval),
	)
	response = manager.GetVariables(st, within, 100)
	for _, result := range response.GetVariableResult {
		assert.Equal(t, ocpp201.GetVariableStatusAccepted, result.AttributeStatus)
	}
}

func TestGetVariablesTooLargeElement(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)
	st.ConfigStore().SetValue(station.KeyBytesPerMessageGetVariables, "64")

	// 入站包超限
	response := manager.GetVariables(st, getRequest(variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval)), 1000)
	result := response.GetVariableResult[0]
	assert.Equal(t, ocpp201.GetVariableStatusRejected, result.AttributeStatus)
	require.NotNil(t, result.AttributeStatusInfo)
	assert.Equal(t, ocpp201.ReasonCodeTooLargeElement, result.AttributeStatusInfo.ReasonCode)

	// 应答包超限：请求虽小，计算后的应答超过64字节
	response = manager.GetVariables(st, getRequest(variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval)), 10)
	result = response.GetVariableResult[0]
	assert.Equal(t, ocpp201.GetVariableStatusRejected, result.AttributeStatus)
	require.NotNil(t, result.AttributeStatusInfo)
	assert.Equal(t, ocpp201.ReasonCodeTooLargeElement, result.AttributeStatusInfo.ReasonCode)
}

func TestSetVariablesReadOnlyRejected(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	request := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "5",
		Component:      ocpp201.Component{Name: ComponentDeviceDataCtrlr},
		Variable:       ocpp201.Variable{Name: VariableItemsPerMessage, Instance: stringPtr(InstanceGetVariables)},
	}}}

	response := manager.SetVariables(st, request, 100)
	assert.Equal(t, ocpp201.SetVariableStatusRejected, response.SetVariableResult[0].AttributeStatus)
}

func TestSetVariablesUnknownVariable(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	request := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "1",
		Component:      ocpp201.Component{Name: ComponentOCPPCommCtrlr},
		Variable:       ocpp201.Variable{Name: "Bogus"},
	}}}

	response := manager.SetVariables(st, request, 100)
	assert.Equal(t, ocpp201.SetVariableStatusUnknownVariable, response.SetVariableResult[0].AttributeStatus)
}

func TestSetVariablesRebootRequired(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	request := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "5",
		Component:      ocpp201.Component{Name: ComponentOCPPCommCtrlr},
		Variable:       ocpp201.Variable{Name: VariableNetworkProfileConnectionAttempts},
	}}}

	response := manager.SetVariables(st, request, 100)
	assert.Equal(t, ocpp201.SetVariableStatusRebootRequired, response.SetVariableResult[0].AttributeStatus)
}

func TestSetThenGetRoundTrip(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	setRequest := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "120",
		Component:      ocpp201.Component{Name: ComponentOCPPCommCtrlr},
		Variable:       ocpp201.Variable{Name: VariableHeartbeatInterval},
	}}}

	setResponse := manager.SetVariables(st, setRequest, 100)
	require.Equal(t, ocpp201.SetVariableStatusAccepted, setResponse.SetVariableResult[0].AttributeStatus)

	getResponse := manager.GetVariables(st, getRequest(variableRef(ComponentOCPPCommCtrlr, VariableHeartbeatInterval)), 100)
	result := getResponse.GetVariableResult[0]
	require.Equal(t, ocpp201.GetVariableStatusAccepted, result.AttributeStatus)
	assert.Equal(t, "120", *result.AttributeValue)

	// 镜像写入站点配置键
	value, ok := st.ConfigStore().GetValue(station.KeyHeartbeatInterval)
	require.True(t, ok)
	assert.Equal(t, "120", value)
}

func TestSetVariablesValueOutOfRange(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	request := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "not-a-number",
		Component:      ocpp201.Component{Name: ComponentOCPPCommCtrlr},
		Variable:       ocpp201.Variable{Name: VariableHeartbeatInterval},
	}}}

	response := manager.SetVariables(st, request, 100)
	assert.Equal(t, ocpp201.SetVariableStatusRejected, response.SetVariableResult[0].AttributeStatus)
}

func TestBuildBaseReportConfiguration(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	status, items := manager.BuildBaseReport(st, 1, ocpp201.ReportBaseConfigurationInventory)
	assert.Equal(t, ocpp201.GenericDeviceModelStatusAccepted, status)
	assert.Equal(t, len(st.ConfigStore().Visible()), items)

	report := manager.TakeReport(st.ID(), 1)
	assert.Len(t, report, items)
	for _, entry := range report {
		assert.Equal(t, ComponentOCPPCommCtrlr, entry.Component.Name)
	}

	// 报告取走后缓存清空
	assert.Nil(t, manager.TakeReport(st.ID(), 1))
}

func TestBuildBaseReportFullInventory(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	status, items := manager.BuildBaseReport(st, 7, ocpp201.ReportBaseFullInventory)
	require.Equal(t, ocpp201.GenericDeviceModelStatusAccepted, status)

	// 标识4条 + 非隐藏配置键 + 注册表非live变量 + EVSE/连接器条目
	registryVariables := 0
	for _, c := range manager.registry {
		if !c.Live {
			registryVariables++
		}
	}
	topology := 0
	for _, evseID := range st.EvseIDs() {
		topology += 1 + len(st.GetEvse(evseID).Connectors)
	}
	expected := 4 + len(st.ConfigStore().Visible()) + registryVariables + topology
	assert.Equal(t, expected, items)
}

func TestBuildBaseReportUnknownBase(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	status, items := manager.BuildBaseReport(st, 2, ocpp201.ReportBase("Bogus"))
	assert.Equal(t, ocpp201.GenericDeviceModelStatusNotSupported, status)
	assert.Equal(t, 0, items)
}

func TestResetRuntimeOverrides(t *testing.T) {
	manager := NewVariableManager(nil)
	st := newTestStation(t)

	setRequest := &ocpp201.SetVariablesRequest{SetVariableData: []ocpp201.SetVariableData{{
		AttributeValue: "90",
		Component:      ocpp201.Component{Name: ComponentTxCtrlr},
		Variable:       ocpp201.Variable{Name: VariableEVConnectionTimeOut},
	}}}
	manager.SetVariables(st, setRequest, 100)

	manager.ResetRuntimeOverrides(st.ID())

	// 覆盖被清除后回退到配置镜像值
	getResponse := manager.GetVariables(st, getRequest(variableRef(ComponentTxCtrlr, VariableEVConnectionTimeOut)), 100)
	result := getResponse.GetVariableResult[0]
	require.Equal(t, ocpp201.GetVariableStatusAccepted, result.AttributeStatus)
	assert.Equal(t, "90", *result.AttributeValue)
}

func stringPtr(s string) *string {
	return &s
}
