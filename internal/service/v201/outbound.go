package v201

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// notifyReportChunkSize NotifyReport单包最大条目数
const notifyReportChunkSize = 100

// call 出站请求管线：出站校验、发送、应答校验
func (s *Service) call(ctx context.Context, action ocpp201.Action, request interface{}, response interface{}, opts *router.SendOptions) error {
	if err := s.validator.ValidateStruct(request); err != nil {
		return wire.NewError(wire.ErrInternalError, "outbound payload invalid: "+err.Error())
	}

	raw, err := s.router.Call(ctx, string(action), request, opts)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(raw, response); err != nil {
		return wire.NewError(wire.ErrFormationViolation, "malformed response payload: "+err.Error())
	}
	if err := s.validator.ValidateStruct(response); err != nil {
		return wire.NewError(wire.ErrFormationViolation, "response validation failed: "+err.Error())
	}
	return nil
}

// SendBootNotification 发送启动通知并处理注册结果
func (s *Service) SendBootNotification(ctx context.Context, reason ocpp201.BootReason, opts *router.SendOptions) error {
	info := s.station.Info()

	chargingStation := ocpp201.ChargingStation{
		Model:      info.Model,
		VendorName: info.Vendor,
	}
	if info.SerialNumber != "" {
		serial := info.SerialNumber
		chargingStation.SerialNumber = &serial
	}
	if info.FirmwareVersion != "" {
		firmware := info.FirmwareVersion
		chargingStation.FirmwareVersion = &firmware
	}

	request := &ocpp201.BootNotificationRequest{
		ChargingStation: chargingStation,
		Reason:          reason,
	}

	response := &ocpp201.BootNotificationResponse{}
	if err := s.call(ctx, ocpp201.ActionBootNotification, request, response, opts); err != nil {
		return err
	}

	switch response.Status {
	case ocpp201.RegistrationStatusAccepted:
		s.station.SetRegistration(station.RegistrationAccepted)
		s.station.ConfigStore().SetValue(station.KeyHeartbeatInterval, intToString(response.Interval))
		s.StartHeartbeat()
		s.publish(events.EventTypeStationRegistered, nil)
		s.log.Infof("Registration accepted, heartbeat interval %d s", response.Interval)

	case ocpp201.RegistrationStatusPending:
		s.station.SetRegistration(station.RegistrationPending)
		s.log.Warn("Registration pending, waiting for CSMS approval")

	case ocpp201.RegistrationStatusRejected:
		s.station.SetRegistration(station.RegistrationRejected)
		s.log.Error("Registration rejected by CSMS")
	}
	return nil
}

// SendHeartbeat 发送心跳
func (s *Service) SendHeartbeat(ctx context.Context) error {
	response := &ocpp201.HeartbeatResponse{}
	if err := s.call(ctx, ocpp201.ActionHeartbeat, &ocpp201.HeartbeatRequest{}, response, nil); err != nil {
		return err
	}
	s.log.Debugf("Heartbeat acknowledged at %s", response.CurrentTime.Time)
	return nil
}

// SendStatusNotification 发送状态通知
func (s *Service) SendStatusNotification(ctx context.Context, evseID int, status ocpp201.ConnectorStatus) error {
	var from ocpp201.ConnectorStatus
	if connector := s.station.GetConnector(evseID); connector != nil {
		from = connector.Status201
	}

	request := &ocpp201.StatusNotificationRequest{
		Timestamp:       s.now(),
		ConnectorStatus: status,
		EvseId:          evseID,
		ConnectorId:     1,
	}

	response := &ocpp201.StatusNotificationResponse{}
	if err := s.call(ctx, ocpp201.ActionStatusNotification, request, response, nil); err != nil {
		return err
	}

	if from != status {
		s.publish(events.EventTypeConnectorStatusChanged, &events.StatusChangedPayload{
			ConnectorID: evseID,
			From:        string(from),
			To:          string(status),
		})
	}
	return nil
}

// TransactionEventOptions 交易事件可选字段透传
type TransactionEventOptions struct {
	IdToken            *ocpp201.IdToken
	MeterValue         []ocpp201.MeterValue
	ChargingState      *ocpp201.ChargingState
	StoppedReason      *ocpp201.StoppedReason
	RemoteStartId      *int
	CableMaxCurrent    *int
	NumberOfPhasesUsed *int
	Offline            *bool
	ReservationId      *int
	CustomData         interface{}
}

// BuildTransactionEvent 构造交易事件。序号首次为0其后递增；
// evse与idToken只随交易的首个事件发送一次
func (s *Service) BuildTransactionEvent(evseID int, eventType ocpp201.TransactionEventType, triggerCtx TriggerContext, opts *TransactionEventOptions) (*ocpp201.TransactionEventRequest, error) {
	if opts == nil {
		opts = &TransactionEventOptions{}
	}

	var request *ocpp201.TransactionEventRequest
	err := s.station.WithConnector(evseID, func(c *station.Connector) error {
		transactionID := c.TransactionID201
		if transactionID == "" || len(transactionID) > 36 {
			return wire.NewError(wire.ErrPropertyConstraintViolation, "transactionId must be a non-empty string of at most 36 characters")
		}

		request = &ocpp201.TransactionEventRequest{
			EventType:     eventType,
			Timestamp:     s.now(),
			TriggerReason: SelectTriggerReason(triggerCtx),
			SeqNo:         c.NextSeqNo(),
			TransactionInfo: ocpp201.Transaction{
				TransactionId: transactionID,
				ChargingState: opts.ChargingState,
				StoppedReason: opts.StoppedReason,
			},
			MeterValue:         opts.MeterValue,
			CableMaxCurrent:    opts.CableMaxCurrent,
			NumberOfPhasesUsed: opts.NumberOfPhasesUsed,
			Offline:            opts.Offline,
			ReservationId:      opts.ReservationId,
			CustomData:         opts.CustomData,
		}
		if opts.RemoteStartId != nil {
			request.TransactionInfo.RemoteStartId = opts.RemoteStartId
		}

		// evse只在交易首个事件中携带
		if !c.TransactionEvseSent {
			connectorID := 1
			request.Evse = &ocpp201.EVSE{Id: evseID, ConnectorId: &connectorID}
			c.TransactionEvseSent = true
		}
		// idToken同理
		if opts.IdToken != nil && !c.TransactionIdTokenSent {
			request.IdToken = opts.IdToken
			c.TransactionIdTokenSent = true
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return request, nil
}

// SendTransactionEvent 发送交易事件。套接字断开时入离线队列并返回合成应答
func (s *Service) SendTransactionEvent(ctx context.Context, evseID int, eventType ocpp201.TransactionEventType, triggerCtx TriggerContext, opts *TransactionEventOptions) (*ocpp201.TransactionEventResponse, error) {
	request, err := s.BuildTransactionEvent(evseID, eventType, triggerCtx, opts)
	if err != nil {
		return nil, err
	}
	return s.sendTransactionEventRequest(ctx, evseID, request)
}

// sendTransactionEventRequest 发送已构造好的交易事件
func (s *Service) sendTransactionEventRequest(ctx context.Context, evseID int, request *ocpp201.TransactionEventRequest) (*ocpp201.TransactionEventResponse, error) {
	if !s.router.IsTransportOpen() {
		now := s.station.Clock().Now()
		s.station.WithConnector(evseID, func(c *station.Connector) error {
			c.EnqueueTransactionEvent(request, now)
			return nil
		})
		metrics.QueuedTransactionEvents.WithLabelValues(s.station.ID()).Inc()
		s.log.Debugf("Queued TransactionEvent seqNo %d while offline", request.SeqNo)
		// 合成空应答
		return &ocpp201.TransactionEventResponse{}, nil
	}

	response := &ocpp201.TransactionEventResponse{}
	if err := s.call(ctx, ocpp201.ActionTransactionEvent, request, response, nil); err != nil {
		return nil, err
	}
	return response, nil
}

// SendQueuedTransactionEvents 重连后按序尽力清空离线队列，单条失败不中断
func (s *Service) SendQueuedTransactionEvents(ctx context.Context) {
	for _, evseID := range s.station.ConnectorIDs() {
		var queued []station.QueuedTransactionEvent
		s.station.WithConnector(evseID, func(c *station.Connector) error {
			queued = c.DrainTransactionEventQueue()
			return nil
		})

		for _, item := range queued {
			response := &ocpp201.TransactionEventResponse{}
			if err := s.call(ctx, ocpp201.ActionTransactionEvent, item.Request, response, nil); err != nil {
				s.log.Warnf("Failed to deliver queued TransactionEvent seqNo %d: %v", item.SeqNo, err)
				continue
			}
			s.log.Debugf("Delivered queued TransactionEvent seqNo %d", item.SeqNo)
		}
	}
}

// stopTransactionWithReason 结束交易：发送Ended事件并复位连接器
func (s *Service) stopTransactionWithReason(ctx context.Context, evseID int, reason ocpp201.StoppedReason, triggerCtx TriggerContext) (bool, error) {
	connector := s.station.GetConnector(evseID)
	if connector == nil || !connector.TransactionStarted {
		return false, nil
	}

	transactionID := connector.TransactionID201
	stoppedReason := reason
	_, err := s.SendTransactionEvent(ctx, evseID, ocpp201.TransactionEventEnded, triggerCtx,
		&TransactionEventOptions{
			StoppedReason: &stoppedReason,
			ChargingState: chargingStatePtr(ocpp201.ChargingStateIdle),
			MeterValue:    []ocpp201.MeterValue{s.buildEnergyMeterValue(connector.EnergyActiveImportRegister)},
		})
	if err != nil {
		return false, err
	}

	s.stopMeterTask(evseID)
	s.station.WithConnector(evseID, func(c *station.Connector) error {
		c.ResetTransaction()
		return nil
	})

	if notifyErr := s.SendStatusNotification(ctx, evseID, ocpp201.ConnectorStatusAvailable); notifyErr != nil {
		s.log.Warnf("StatusNotification after transaction end failed: %v", notifyErr)
	}
	s.station.SetConnectorStatus201(evseID, ocpp201.ConnectorStatusAvailable)

	metrics.TransactionsStopped.WithLabelValues(s.station.ID()).Inc()
	s.publish(events.EventTypeTransactionStopped, &events.TransactionPayload{
		ConnectorID:   evseID,
		TransactionID: transactionID,
	})

	return true, nil
}

// sendNotifyReportSequence 将缓存的报告按块推送，至少推送一个NotifyReport
func (s *Service) sendNotifyReportSequence(ctx context.Context, requestID int) {
	report := s.deviceModel.TakeReport(s.station.ID(), requestID)

	seqNo := 0
	generatedAt := s.now()

	send := func(chunk []ocpp201.ReportData, tbc bool) {
		request := &ocpp201.NotifyReportRequest{
			RequestId:   requestID,
			GeneratedAt: generatedAt,
			ReportData:  chunk,
			Tbc:         tbc,
			SeqNo:       seqNo,
		}
		response := &ocpp201.NotifyReportResponse{}
		if err := s.call(ctx, ocpp201.ActionNotifyReport, request, response, nil); err != nil {
			s.log.Errorf("NotifyReport seqNo %d failed: %v", seqNo, err)
		}
		metrics.NotifyReportChunks.WithLabelValues(s.station.ID()).Inc()
		seqNo++
	}

	if len(report) == 0 {
		// 空报告也至少推送一次，reportData省略
		send(nil, false)
		return
	}

	for start := 0; start < len(report); start += notifyReportChunkSize {
		end := start + notifyReportChunkSize
		if end > len(report) {
			end = len(report)
		}
		send(report[start:end], end < len(report))
	}
}

// buildEnergyMeterValue 构造单条能量寄存器读数
func (s *Service) buildEnergyMeterValue(register int64) ocpp201.MeterValue {
	measurand := "Energy.Active.Import.Register"
	unit := "Wh"
	return ocpp201.MeterValue{
		Timestamp: s.now(),
		SampledValue: []ocpp201.SampledValue{{
			Value:         float64(register),
			Measurand:     &measurand,
			UnitOfMeasure: &ocpp201.UnitOfMeasure{Unit: &unit},
		}},
	}
}

// intToString 辅助函数
func intToString(n int) string {
	return strconv.Itoa(n)
}
