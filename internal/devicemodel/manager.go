package devicemodel

import (
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	"github.com/charging-platform/charge-station-simulator/internal/logger"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// Manager V201设备模型管理器接口
type Manager interface {
	// GetVariables 处理变量读取，requestSize为入站请求包大小
	GetVariables(st *station.Station, req *v201.GetVariablesRequest, requestSize int) *v201.GetVariablesResponse
	// SetVariables 处理变量写入
	SetVariables(st *station.Station, req *v201.SetVariablesRequest, requestSize int) *v201.SetVariablesResponse
	// BuildBaseReport 构建基础报告并缓存，返回操作结果与条目数
	BuildBaseReport(st *station.Station, requestID int, base v201.ReportBase) (v201.GenericDeviceModelStatus, int)
	// TakeReport 取走并清除缓存的报告
	TakeReport(stationID string, requestID int) []v201.ReportData
	// ResetRuntimeOverrides 清除单个站点的运行时覆盖，站点停止时调用
	ResetRuntimeOverrides(stationID string)
	// Shutdown 清除全部运行时状态
	Shutdown()
}

// VariableManager 设备模型管理器。注册表构造后只读；
// 运行时覆盖为进程级共享状态，跨站点并发安全
type VariableManager struct {
	registry map[string]*Characteristics

	mu          sync.RWMutex
	overrides   map[string]map[string]string        // stationID -> composite key -> value
	reportCache map[string]map[int][]v201.ReportData // stationID -> requestId -> report

	logger *logger.Logger
}

// NewVariableManager 创建设备模型管理器
func NewVariableManager(log *logger.Logger) *VariableManager {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}
	return &VariableManager{
		registry:    defaultRegistry(),
		overrides:   make(map[string]map[string]string),
		reportCache: make(map[string]map[int][]v201.ReportData),
		logger:      log.WithComponent("devicemodel"),
	}
}

// configKeyFor 组合键到站点配置键的映射
func configKeyFor(c *Characteristics) string {
	switch c.Key() {
	case CompositeKey(ComponentOCPPCommCtrlr, VariableHeartbeatInterval, ""):
		return station.KeyHeartbeatInterval
	case CompositeKey(ComponentOCPPCommCtrlr, VariableWebSocketPingInterval, ""):
		return station.KeyWebSocketPingInterval
	case CompositeKey(ComponentDeviceDataCtrlr, VariableItemsPerMessage, InstanceGetVariables):
		return station.KeyItemsPerMessageGetVariables
	case CompositeKey(ComponentDeviceDataCtrlr, VariableItemsPerMessage, InstanceSetVariables):
		return station.KeyItemsPerMessageSetVariables
	case CompositeKey(ComponentDeviceDataCtrlr, VariableBytesPerMessage, InstanceGetVariables):
		return station.KeyBytesPerMessageGetVariables
	case CompositeKey(ComponentDeviceDataCtrlr, VariableBytesPerMessage, InstanceSetVariables):
		return station.KeyBytesPerMessageSetVariables
	case CompositeKey(ComponentTxCtrlr, VariableEVConnectionTimeOut, ""):
		return station.KeyConnectionTimeOut
	default:
		return ""
	}
}

// resolveValue 解析变量当前值：live推导 > 运行时覆盖 > 配置键镜像 > 默认值
func (m *VariableManager) resolveValue(st *station.Station, c *Characteristics) string {
	if c.Live {
		return m.liveValue(st, c)
	}

	m.mu.RLock()
	if stationOverrides, ok := m.overrides[st.ID()]; ok {
		if value, ok := stationOverrides[c.Key()]; ok {
			m.mu.RUnlock()
			return value
		}
	}
	m.mu.RUnlock()

	if configKey := configKeyFor(c); configKey != "" {
		if value, ok := st.ConfigStore().GetValue(configKey); ok {
			return value
		}
	}

	return c.DefaultValue
}

// liveValue 由站点状态即时推导的变量值
func (m *VariableManager) liveValue(st *station.Station, c *Characteristics) string {
	info := st.Info()
	switch c.Variable {
	case VariableAvailabilityState:
		if connector := st.GetConnector(0); connector != nil {
			return string(connector.Status201)
		}
		return string(v201.ConnectorStatusAvailable)
	case VariableConnectorType:
		return "cType2"
	case VariableModel:
		return info.Model
	case VariableVendorName:
		return info.Vendor
	case VariableSerialNumber:
		return info.SerialNumber
	case VariableFirmwareVersion:
		return info.FirmwareVersion
	case VariableIdentity:
		return st.ID()
	default:
		return ""
	}
}

// intLimit 从站点配置读整数上限，缺失或非法时返回fallback
func intLimit(st *station.Station, key string, fallback int) int {
	value, ok := st.ConfigStore().GetValue(key)
	if !ok {
		return fallback
	}
	limit, err := strconv.Atoi(value)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}

// GetVariables 实现Manager接口
func (m *VariableManager) GetVariables(st *station.Station, req *v201.GetVariablesRequest, requestSize int) *v201.GetVariablesResponse {
	items := req.GetVariableData

	rejectAll := func(reasonCode string) *v201.GetVariablesResponse {
		results := make([]v201.GetVariableResult, len(items))
		for i, item := range items {
			results[i] = v201.GetVariableResult{
				AttributeStatus:     v201.GetVariableStatusRejected,
				AttributeType:       item.AttributeType,
				Component:           item.Component,
				Variable:            item.Variable,
				AttributeStatusInfo: &v201.StatusInfo{ReasonCode: reasonCode},
			}
		}
		return &v201.GetVariablesResponse{GetVariableResult: results}
	}

	itemsLimit := intLimit(st, station.KeyItemsPerMessageGetVariables, 10)
	if len(items) > itemsLimit {
		return rejectAll(v201.ReasonCodeTooManyElements)
	}

	bytesLimit := intLimit(st, station.KeyBytesPerMessageGetVariables, 8192)
	if requestSize > bytesLimit {
		return rejectAll(v201.ReasonCodeTooLargeElement)
	}

	results := make([]v201.GetVariableResult, len(items))
	for i, item := range items {
		results[i] = m.getVariable(st, item)
	}

	response := &v201.GetVariablesResponse{GetVariableResult: results}

	// 应答计算完成后复测包大小
	if encoded, err := json.Marshal(response); err == nil && len(encoded) > bytesLimit {
		return rejectAll(v201.ReasonCodeTooLargeElement)
	}

	return response
}

// getVariable 单条变量读取
func (m *VariableManager) getVariable(st *station.Station, item v201.GetVariableData) v201.GetVariableResult {
	result := v201.GetVariableResult{
		AttributeType: item.AttributeType,
		Component:     item.Component,
		Variable:      item.Variable,
	}

	attributeType := v201.AttributeTypeActual
	if item.AttributeType != nil {
		attributeType = *item.AttributeType
	}

	instance := ""
	if item.Variable.Instance != nil {
		instance = *item.Variable.Instance
	}

	if !componentKnown(m.registry, item.Component.Name) {
		result.AttributeStatus = v201.GetVariableStatusUnknownComponent
		return result
	}

	characteristics := lookup(m.registry, item.Component.Name, item.Variable.Name, instance)
	if characteristics == nil {
		result.AttributeStatus = v201.GetVariableStatusUnknownVariable
		return result
	}

	if !characteristics.SupportsAttribute(attributeType) {
		result.AttributeStatus = v201.GetVariableStatusNotSupportedAttributeType
		return result
	}

	value := m.resolveValue(st, characteristics)
	result.AttributeStatus = v201.GetVariableStatusAccepted
	result.AttributeValue = &value
	return result
}

// SetVariables 实现Manager接口
func (m *VariableManager) SetVariables(st *station.Station, req *v201.SetVariablesRequest, requestSize int) *v201.SetVariablesResponse {
	items := req.SetVariableData

	rejectAll := func(reasonCode string) *v201.SetVariablesResponse {
		results := make([]v201.SetVariableResult, len(items))
		for i, item := range items {
			results[i] = v201.SetVariableResult{
				AttributeStatus:     v201.SetVariableStatusRejected,
				AttributeType:       item.AttributeType,
				Component:           item.Component,
				Variable:            item.Variable,
				AttributeStatusInfo: &v201.StatusInfo{ReasonCode: reasonCode},
			}
		}
		return &v201.SetVariablesResponse{SetVariableResult: results}
	}

	itemsLimit := intLimit(st, station.KeyItemsPerMessageSetVariables, 10)
	if len(items) > itemsLimit {
		return rejectAll(v201.ReasonCodeTooManyElements)
	}

	bytesLimit := intLimit(st, station.KeyBytesPerMessageSetVariables, 8192)
	if requestSize > bytesLimit {
		return rejectAll(v201.ReasonCodeTooLargeElement)
	}

	results := make([]v201.SetVariableResult, len(items))
	for i, item := range items {
		results[i] = m.setVariable(st, item)
	}

	return &v201.SetVariablesResponse{SetVariableResult: results}
}

// setVariable 单条变量写入
func (m *VariableManager) setVariable(st *station.Station, item v201.SetVariableData) v201.SetVariableResult {
	result := v201.SetVariableResult{
		AttributeType: item.AttributeType,
		Component:     item.Component,
		Variable:      item.Variable,
	}

	attributeType := v201.AttributeTypeActual
	if item.AttributeType != nil {
		attributeType = *item.AttributeType
	}

	instance := ""
	if item.Variable.Instance != nil {
		instance = *item.Variable.Instance
	}

	if !componentKnown(m.registry, item.Component.Name) {
		result.AttributeStatus = v201.SetVariableStatusUnknownComponent
		return result
	}

	characteristics := lookup(m.registry, item.Component.Name, item.Variable.Name, instance)
	if characteristics == nil {
		result.AttributeStatus = v201.SetVariableStatusUnknownVariable
		return result
	}

	if !characteristics.SupportsAttribute(attributeType) {
		result.AttributeStatus = v201.SetVariableStatusNotSupportedAttributeType
		return result
	}

	if characteristics.Mutability == v201.MutabilityReadOnly {
		result.AttributeStatus = v201.SetVariableStatusRejected
		return result
	}

	if err := validateValue(characteristics, item.AttributeValue); err != nil {
		result.AttributeStatus = v201.SetVariableStatusRejected
		result.AttributeStatusInfo = &v201.StatusInfo{ReasonCode: "ValueOutOfRange"}
		return result
	}

	m.storeOverride(st.ID(), characteristics.Key(), item.AttributeValue)

	// 镜像到站点配置键并触发相应任务重启
	if configKey := configKeyFor(characteristics); configKey != "" {
		st.ConfigStore().SetValue(configKey, item.AttributeValue)
		switch configKey {
		case station.KeyHeartbeatInterval:
			st.RestartHeartbeat()
		case station.KeyWebSocketPingInterval:
			st.RestartWebSocketPing()
		}
	}

	if characteristics.RebootRequired {
		result.AttributeStatus = v201.SetVariableStatusRebootRequired
		return result
	}

	result.AttributeStatus = v201.SetVariableStatusAccepted
	return result
}

// validateValue 按特征校验写入值
func validateValue(c *Characteristics, value string) error {
	switch c.DataType {
	case v201.DataTypeInteger:
		n, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("not an integer: %s", value)
		}
		if c.MinLimit != nil && n < *c.MinLimit {
			return fmt.Errorf("value %s below minimum %v", value, *c.MinLimit)
		}
		if c.MaxLimit != nil && n > *c.MaxLimit {
			return fmt.Errorf("value %s above maximum %v", value, *c.MaxLimit)
		}
	case v201.DataTypeOptionList:
		for _, option := range c.Enumeration {
			if option == value {
				return nil
			}
		}
		if len(c.Enumeration) > 0 {
			return fmt.Errorf("value %s not in enumeration", value)
		}
	}
	if c.MaxLength != nil && len(value) > *c.MaxLength {
		return fmt.Errorf("value exceeds max length %d", *c.MaxLength)
	}
	return nil
}

// storeOverride 写入运行时覆盖
func (m *VariableManager) storeOverride(stationID, key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overrides[stationID] == nil {
		m.overrides[stationID] = make(map[string]string)
	}
	m.overrides[stationID][key] = value
}

// BuildBaseReport 实现Manager接口
func (m *VariableManager) BuildBaseReport(st *station.Station, requestID int, base v201.ReportBase) (v201.GenericDeviceModelStatus, int) {
	var report []v201.ReportData

	switch base {
	case v201.ReportBaseConfigurationInventory:
		report = m.configurationReport(st)
	case v201.ReportBaseSummaryInventory:
		report = m.summaryReport(st)
	case v201.ReportBaseFullInventory:
		report = append(report, m.identityReport(st)...)
		report = append(report, m.configurationReport(st)...)
		report = append(report, m.registryReport(st)...)
		report = append(report, m.topologyReport(st)...)
	default:
		return v201.GenericDeviceModelStatusNotSupported, 0
	}

	if len(report) == 0 {
		return v201.GenericDeviceModelStatusEmptyResultSet, 0
	}

	m.mu.Lock()
	if m.reportCache[st.ID()] == nil {
		m.reportCache[st.ID()] = make(map[int][]v201.ReportData)
	}
	m.reportCache[st.ID()][requestID] = report
	m.mu.Unlock()

	return v201.GenericDeviceModelStatusAccepted, len(report)
}

// reportEntry 构造单条报告数据
func reportEntry(component, instance string, componentEvse *v201.EVSE, variable string, value string, mutability v201.MutabilityType) v201.ReportData {
	actual := v201.AttributeTypeActual
	mutabilityCopy := mutability
	valueCopy := value
	entry := v201.ReportData{
		Component: v201.Component{Name: component, Evse: componentEvse},
		Variable:  v201.Variable{Name: variable},
		VariableAttribute: []v201.VariableAttribute{{
			Type:       &actual,
			Value:      &valueCopy,
			Mutability: &mutabilityCopy,
		}},
	}
	if instance != "" {
		instanceCopy := instance
		entry.Variable.Instance = &instanceCopy
	}
	return entry
}

// identityReport 站点标识条目
func (m *VariableManager) identityReport(st *station.Station) []v201.ReportData {
	info := st.Info()
	return []v201.ReportData{
		reportEntry(ComponentChargingStation, "", nil, VariableModel, info.Model, v201.MutabilityReadOnly),
		reportEntry(ComponentChargingStation, "", nil, VariableVendorName, info.Vendor, v201.MutabilityReadOnly),
		reportEntry(ComponentChargingStation, "", nil, VariableSerialNumber, info.SerialNumber, v201.MutabilityReadOnly),
		reportEntry(ComponentChargingStation, "", nil, VariableFirmwareVersion, info.FirmwareVersion, v201.MutabilityReadOnly),
	}
}

// configurationReport 全部非隐藏配置键，挂在OCPPCommCtrlr下
func (m *VariableManager) configurationReport(st *station.Station) []v201.ReportData {
	var report []v201.ReportData
	for _, key := range st.ConfigStore().Visible() {
		mutability := v201.MutabilityReadWrite
		if key.Readonly {
			mutability = v201.MutabilityReadOnly
		}
		report = append(report, reportEntry(ComponentOCPPCommCtrlr, "", nil, key.Key, key.Value, mutability))
	}
	return report
}

// summaryReport 站点标识与可用性
func (m *VariableManager) summaryReport(st *station.Station) []v201.ReportData {
	report := m.identityReport(st)
	availability := string(v201.ConnectorStatusAvailable)
	if connector := st.GetConnector(0); connector != nil {
		availability = string(connector.Status201)
	}
	report = append(report, reportEntry(ComponentChargingStation, "", nil, VariableAvailabilityState, availability, v201.MutabilityReadOnly))
	return report
}

// registryReport 注册表中非live变量的当前值
func (m *VariableManager) registryReport(st *station.Station) []v201.ReportData {
	var report []v201.ReportData
	for _, c := range m.registry {
		if c.Live {
			continue
		}
		report = append(report, reportEntry(c.Component, c.Instance, nil, c.Variable, m.resolveValue(st, c), c.Mutability))
	}
	return report
}

// topologyReport 每个EVSE与连接器的条目
func (m *VariableManager) topologyReport(st *station.Station) []v201.ReportData {
	var report []v201.ReportData
	for _, evseID := range st.EvseIDs() {
		evse := st.GetEvse(evseID)
		if evse == nil {
			continue
		}
		evseRef := &v201.EVSE{Id: evseID}
		report = append(report, reportEntry(ComponentEVSE, "", evseRef, VariableAvailabilityState, string(evse.Availability), v201.MutabilityReadOnly))
		for _, connectorID := range evse.Connectors {
			connectorRef := &v201.EVSE{Id: evseID, ConnectorId: &connectorID}
			report = append(report, reportEntry(ComponentConnector, "", connectorRef, VariableConnectorType, "cType2", v201.MutabilityReadOnly))
		}
	}
	return report
}

// TakeReport 实现Manager接口
func (m *VariableManager) TakeReport(stationID string, requestID int) []v201.ReportData {
	m.mu.Lock()
	defer m.mu.Unlock()

	stationReports, ok := m.reportCache[stationID]
	if !ok {
		return nil
	}
	report := stationReports[requestID]
	delete(stationReports, requestID)
	return report
}

// ResetRuntimeOverrides 实现Manager接口
func (m *VariableManager) ResetRuntimeOverrides(stationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.overrides, stationID)
	delete(m.reportCache, stationID)
}

// Shutdown 实现Manager接口
func (m *VariableManager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides = make(map[string]map[string]string)
	m.reportCache = make(map[string]map[int][]v201.ReportData)
}
