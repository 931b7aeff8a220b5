package v201

import (
	"context"
	"fmt"
	"time"

	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// StartHeartbeat 启动心跳任务，重复调用等价于重启
func (s *Service) StartHeartbeat() {
	s.mu.Lock()
	if s.heartbeatStarted {
		s.mu.Unlock()
		s.RestartHeartbeat()
		return
	}
	s.heartbeatStarted = true
	s.mu.Unlock()

	s.station.Spawn("heartbeat", func(stop <-chan struct{}) {
		s.heartbeatLoop(stop)
	})
}

// RestartHeartbeat 以当前配置间隔重启心跳，等值写入下幂等
func (s *Service) RestartHeartbeat() {
	select {
	case s.heartbeatRestartCh <- struct{}{}:
	default:
	}
}

// heartbeatLoop 心跳循环
func (s *Service) heartbeatLoop(stop <-chan struct{}) {
	interval := s.configSeconds(station.KeyHeartbeatInterval, s.ocppCfg.HeartbeatInterval)
	if interval <= 0 {
		interval = 300 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-s.heartbeatRestartCh:
			newInterval := s.configSeconds(station.KeyHeartbeatInterval, s.ocppCfg.HeartbeatInterval)
			if newInterval != interval {
				interval = newInterval
				s.log.Infof("Heartbeat interval is now %v", interval)
			}
			ticker.Reset(interval)
		case <-ticker.C:
			if err := s.SendHeartbeat(context.Background()); err != nil {
				s.log.Warnf("Heartbeat failed: %v", err)
			}
		}
	}
}

// startMeterTask 启动EVSE的周期交易事件任务
func (s *Service) startMeterTask(evseID int) {
	s.mu.Lock()
	if _, running := s.meterTasks[evseID]; running {
		s.mu.Unlock()
		return
	}
	stopCh := make(chan struct{})
	s.meterTasks[evseID] = stopCh
	s.mu.Unlock()

	s.station.Spawn(fmt.Sprintf("transaction-updates-%d", evseID), func(stationStop <-chan struct{}) {
		s.meterLoop(evseID, stopCh, stationStop)
	})
}

// stopMeterTask 停止EVSE的周期交易事件任务
func (s *Service) stopMeterTask(evseID int) {
	s.mu.Lock()
	stopCh, running := s.meterTasks[evseID]
	if running {
		delete(s.meterTasks, evseID)
	}
	s.mu.Unlock()

	if running {
		close(stopCh)
	}
}

// meterLoop 周期推进能量寄存器并发送TransactionEvent(Updated)
func (s *Service) meterLoop(evseID int, stop <-chan struct{}, stationStop <-chan struct{}) {
	interval := s.configSeconds(station.KeyMeterValueSampleInterval, s.ocppCfg.MeterValueSampleInterval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-stationStop:
			return
		case <-ticker.C:
			s.sampleAndSend(evseID, interval)
		}
	}
}

// sampleAndSend 采样并发送周期交易事件
func (s *Service) sampleAndSend(evseID int, interval time.Duration) {
	connector := s.station.GetConnector(evseID)
	if connector == nil || !connector.TransactionStarted {
		return
	}

	power := s.station.RNG().FloatFluctuation(7000, 20)
	energyWh := int64(power * interval.Seconds() / 3600)

	var register int64
	s.station.WithConnector(evseID, func(c *station.Connector) error {
		c.EnergyActiveImportRegister += energyWh
		c.TransactionEnergyActiveImportRegister += energyWh
		register = c.EnergyActiveImportRegister
		return nil
	})

	_, err := s.SendTransactionEvent(context.Background(), evseID, ocpp201.TransactionEventUpdated,
		TriggerContext{MeterValue: MeterValuePeriodic},
		&TransactionEventOptions{
			MeterValue:    []ocpp201.MeterValue{s.buildEnergyMeterValue(register)},
			ChargingState: chargingStatePtr(ocpp201.ChargingStateCharging),
		})
	if err != nil {
		s.log.Warnf("Periodic TransactionEvent failed: %v", err)
	}
}
