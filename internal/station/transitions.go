package station

import (
	v16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// statusPair16 V16状态迁移对
type statusPair16 struct {
	from v16.ChargePointStatus
	to   v16.ChargePointStatus
}

// connectorTransitions16 V16连接器状态迁移允许表，按OCPP 1.6规范推导。
// Faulted可从任意状态进入并回到任意非Faulted状态；Unavailable同样宽松。
var connectorTransitions16 = buildConnectorTransitions16()

func buildConnectorTransitions16() map[statusPair16]bool {
	all := []v16.ChargePointStatus{
		v16.ChargePointStatusAvailable,
		v16.ChargePointStatusPreparing,
		v16.ChargePointStatusCharging,
		v16.ChargePointStatusSuspendedEV,
		v16.ChargePointStatusSuspendedEVSE,
		v16.ChargePointStatusFinishing,
		v16.ChargePointStatusReserved,
		v16.ChargePointStatusUnavailable,
		v16.ChargePointStatusFaulted,
	}

	allowed := map[statusPair16]bool{
		{v16.ChargePointStatusAvailable, v16.ChargePointStatusPreparing}: true,
		{v16.ChargePointStatusAvailable, v16.ChargePointStatusCharging}:  true,
		{v16.ChargePointStatusAvailable, v16.ChargePointStatusSuspendedEV}:   true,
		{v16.ChargePointStatusAvailable, v16.ChargePointStatusSuspendedEVSE}: true,
		{v16.ChargePointStatusAvailable, v16.ChargePointStatusReserved}:      true,

		{v16.ChargePointStatusPreparing, v16.ChargePointStatusAvailable}: true,
		{v16.ChargePointStatusPreparing, v16.ChargePointStatusCharging}:  true,
		{v16.ChargePointStatusPreparing, v16.ChargePointStatusSuspendedEV}:   true,
		{v16.ChargePointStatusPreparing, v16.ChargePointStatusSuspendedEVSE}: true,
		{v16.ChargePointStatusPreparing, v16.ChargePointStatusFinishing}:     true,

		{v16.ChargePointStatusCharging, v16.ChargePointStatusAvailable}:     true,
		{v16.ChargePointStatusCharging, v16.ChargePointStatusSuspendedEV}:   true,
		{v16.ChargePointStatusCharging, v16.ChargePointStatusSuspendedEVSE}: true,
		{v16.ChargePointStatusCharging, v16.ChargePointStatusFinishing}:     true,

		{v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusAvailable}:     true,
		{v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusCharging}:      true,
		{v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusSuspendedEVSE}: true,
		{v16.ChargePointStatusSuspendedEV, v16.ChargePointStatusFinishing}:     true,

		{v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusAvailable}:   true,
		{v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusCharging}:    true,
		{v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusSuspendedEV}: true,
		{v16.ChargePointStatusSuspendedEVSE, v16.ChargePointStatusFinishing}:   true,

		{v16.ChargePointStatusFinishing, v16.ChargePointStatusAvailable}: true,
		{v16.ChargePointStatusFinishing, v16.ChargePointStatusPreparing}: true,

		{v16.ChargePointStatusReserved, v16.ChargePointStatusAvailable}: true,
		{v16.ChargePointStatusReserved, v16.ChargePointStatusPreparing}: true,
		{v16.ChargePointStatusReserved, v16.ChargePointStatusCharging}:  true,
	}

	// Faulted与Unavailable的进出宽松规则
	for _, s := range all {
		if s != v16.ChargePointStatusFaulted {
			allowed[statusPair16{s, v16.ChargePointStatusFaulted}] = true
			allowed[statusPair16{v16.ChargePointStatusFaulted, s}] = true
		}
		if s != v16.ChargePointStatusUnavailable {
			allowed[statusPair16{s, v16.ChargePointStatusUnavailable}] = true
			allowed[statusPair16{v16.ChargePointStatusUnavailable, s}] = true
		}
	}

	return allowed
}

// stationTransitions16 V16站点级（连接器0）状态迁移允许表，比连接器表更窄
var stationTransitions16 = map[statusPair16]bool{
	{v16.ChargePointStatusAvailable, v16.ChargePointStatusUnavailable}: true,
	{v16.ChargePointStatusUnavailable, v16.ChargePointStatusAvailable}: true,
	{v16.ChargePointStatusAvailable, v16.ChargePointStatusFaulted}:     true,
	{v16.ChargePointStatusUnavailable, v16.ChargePointStatusFaulted}:   true,
	{v16.ChargePointStatusFaulted, v16.ChargePointStatusAvailable}:     true,
	{v16.ChargePointStatusFaulted, v16.ChargePointStatusUnavailable}:   true,
}

// IsConnectorTransitionAllowed16 V16连接器状态迁移是否允许
func IsConnectorTransitionAllowed16(from, to v16.ChargePointStatus) bool {
	if from == to {
		return true
	}
	return connectorTransitions16[statusPair16{from, to}]
}

// IsStationTransitionAllowed16 V16站点级状态迁移是否允许
func IsStationTransitionAllowed16(from, to v16.ChargePointStatus) bool {
	if from == to {
		return true
	}
	return stationTransitions16[statusPair16{from, to}]
}

// statusPair201 V201状态迁移对
type statusPair201 struct {
	from v201.ConnectorStatus
	to   v201.ConnectorStatus
}

// connectorTransitions201 V201连接器状态迁移允许表
var connectorTransitions201 = buildConnectorTransitions201()

func buildConnectorTransitions201() map[statusPair201]bool {
	all := []v201.ConnectorStatus{
		v201.ConnectorStatusAvailable,
		v201.ConnectorStatusOccupied,
		v201.ConnectorStatusReserved,
		v201.ConnectorStatusUnavailable,
		v201.ConnectorStatusFaulted,
	}

	allowed := map[statusPair201]bool{
		{v201.ConnectorStatusAvailable, v201.ConnectorStatusOccupied}: true,
		{v201.ConnectorStatusAvailable, v201.ConnectorStatusReserved}: true,
		{v201.ConnectorStatusOccupied, v201.ConnectorStatusAvailable}: true,
		{v201.ConnectorStatusReserved, v201.ConnectorStatusAvailable}: true,
		{v201.ConnectorStatusReserved, v201.ConnectorStatusOccupied}:  true,
	}

	for _, s := range all {
		if s != v201.ConnectorStatusFaulted {
			allowed[statusPair201{s, v201.ConnectorStatusFaulted}] = true
			allowed[statusPair201{v201.ConnectorStatusFaulted, s}] = true
		}
		if s != v201.ConnectorStatusUnavailable {
			allowed[statusPair201{s, v201.ConnectorStatusUnavailable}] = true
			allowed[statusPair201{v201.ConnectorStatusUnavailable, s}] = true
		}
	}

	return allowed
}

// IsConnectorTransitionAllowed201 V201连接器状态迁移是否允许
func IsConnectorTransitionAllowed201(from, to v201.ConnectorStatus) bool {
	if from == to {
		return true
	}
	return connectorTransitions201[statusPair201{from, to}]
}
