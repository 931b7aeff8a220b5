package devicemodel

import (
	"strings"

	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// 组件名
const (
	ComponentChargingStation = "ChargingStation"
	ComponentConnector       = "Connector"
	ComponentEVSE            = "EVSE"
	ComponentOCPPCommCtrlr   = "OCPPCommCtrlr"
	ComponentDeviceDataCtrlr = "DeviceDataCtrlr"
	ComponentTxCtrlr         = "TxCtrlr"
	ComponentSecurityCtrlr   = "SecurityCtrlr"
)

// 变量名
const (
	VariableHeartbeatInterval     = "HeartbeatInterval"
	VariableWebSocketPingInterval = "WebSocketPingInterval"
	VariableItemsPerMessage       = "ItemsPerMessage"
	VariableBytesPerMessage       = "BytesPerMessage"
	VariableAvailabilityState     = "AvailabilityState"
	VariableConnectorType         = "ConnectorType"
	VariableModel                 = "Model"
	VariableVendorName            = "VendorName"
	VariableSerialNumber          = "SerialNumber"
	VariableFirmwareVersion       = "FirmwareVersion"
	VariableEVConnectionTimeOut   = "EVConnectionTimeOut"
	VariableNetworkProfileConnectionAttempts = "NetworkProfileConnectionAttempts"
	VariableIdentity              = "Identity"

	// ItemsPerMessage/BytesPerMessage的实例名
	InstanceGetVariables = "GetVariables"
	InstanceSetVariables = "SetVariables"
)

// Characteristics 变量特征，构造后只读
type Characteristics struct {
	Component           string
	Variable            string
	Instance            string
	DataType            v201.DataType
	Mutability          v201.MutabilityType
	Persistent          bool
	SupportedAttributes []v201.AttributeType
	MinLimit            *float64
	MaxLimit            *float64
	MaxLength           *int
	Enumeration         []string
	RebootRequired      bool
	Unit                string
	DefaultValue        string
	// Live变量的值由站点状态即时推导，不走存储
	Live bool
}

// Key 组合键 component::variable[::instance]
func (c *Characteristics) Key() string {
	return CompositeKey(c.Component, c.Variable, c.Instance)
}

// CompositeKey 构造组合键
func CompositeKey(component, variable, instance string) string {
	key := component + "::" + variable
	if instance != "" {
		key += "::" + instance
	}
	return key
}

// SupportsAttribute 是否支持指定属性类型
func (c *Characteristics) SupportsAttribute(attr v201.AttributeType) bool {
	for _, supported := range c.SupportedAttributes {
		if supported == attr {
			return true
		}
	}
	return false
}

func floatPtr(f float64) *float64 { return &f }
func intPtr(i int) *int           { return &i }

// defaultRegistry 默认变量注册表
func defaultRegistry() map[string]*Characteristics {
	actual := []v201.AttributeType{v201.AttributeTypeActual}

	entries := []*Characteristics{
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableHeartbeatInterval,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadWrite, Persistent: true,
			SupportedAttributes: actual, MinLimit: floatPtr(0), Unit: "s", DefaultValue: "300",
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableWebSocketPingInterval,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadWrite, Persistent: true,
			SupportedAttributes: actual, MinLimit: floatPtr(0), Unit: "s", DefaultValue: "30",
		},
		{
			Component: ComponentOCPPCommCtrlr, Variable: VariableNetworkProfileConnectionAttempts,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadWrite, Persistent: true,
			SupportedAttributes: actual, MinLimit: floatPtr(1), RebootRequired: true, DefaultValue: "3",
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableItemsPerMessage, Instance: InstanceGetVariables,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadOnly, Persistent: true,
			SupportedAttributes: actual, DefaultValue: "10",
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableItemsPerMessage, Instance: InstanceSetVariables,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadOnly, Persistent: true,
			SupportedAttributes: actual, DefaultValue: "10",
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableBytesPerMessage, Instance: InstanceGetVariables,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadOnly, Persistent: true,
			SupportedAttributes: actual, DefaultValue: "8192",
		},
		{
			Component: ComponentDeviceDataCtrlr, Variable: VariableBytesPerMessage, Instance: InstanceSetVariables,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadOnly, Persistent: true,
			SupportedAttributes: actual, DefaultValue: "8192",
		},
		{
			Component: ComponentChargingStation, Variable: VariableAvailabilityState,
			DataType: v201.DataTypeOptionList, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true,
			Enumeration: []string{"Available", "Occupied", "Reserved", "Unavailable", "Faulted"},
		},
		{
			Component: ComponentConnector, Variable: VariableConnectorType,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(20),
		},
		{
			Component: ComponentChargingStation, Variable: VariableModel,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(20),
		},
		{
			Component: ComponentChargingStation, Variable: VariableVendorName,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(50),
		},
		{
			Component: ComponentChargingStation, Variable: VariableSerialNumber,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(25),
		},
		{
			Component: ComponentChargingStation, Variable: VariableFirmwareVersion,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(50),
		},
		{
			Component: ComponentTxCtrlr, Variable: VariableEVConnectionTimeOut,
			DataType: v201.DataTypeInteger, Mutability: v201.MutabilityReadWrite, Persistent: true,
			SupportedAttributes: actual, MinLimit: floatPtr(0), Unit: "s", DefaultValue: "60",
		},
		{
			Component: ComponentSecurityCtrlr, Variable: VariableIdentity,
			DataType: v201.DataTypeString, Mutability: v201.MutabilityReadOnly,
			SupportedAttributes: actual, Live: true, MaxLength: intPtr(48),
		},
	}

	registry := make(map[string]*Characteristics, len(entries))
	for _, entry := range entries {
		registry[entry.Key()] = entry
	}
	return registry
}

// lookup 精确查找，未命中时大小写不敏感回退
func lookup(registry map[string]*Characteristics, component, variable, instance string) *Characteristics {
	key := CompositeKey(component, variable, instance)
	if c, ok := registry[key]; ok {
		return c
	}
	lowerKey := strings.ToLower(key)
	for registered, c := range registry {
		if strings.ToLower(registered) == lowerKey {
			return c
		}
	}
	return nil
}

// componentKnown 组件名是否注册过（含大小写不敏感）
func componentKnown(registry map[string]*Characteristics, component string) bool {
	lower := strings.ToLower(component)
	for _, c := range registry {
		if strings.ToLower(c.Component) == lower {
			return true
		}
	}
	return false
}
