package v16

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// triggeredSendOptions TriggerMessage补发消息的发送选项
func triggeredSendOptions() *router.SendOptions {
	return &router.SendOptions{TriggerMessage: true}
}

// call 出站请求管线：出站校验、发送、应答校验
func (s *Service) call(ctx context.Context, action ocpp16.Action, request interface{}, response interface{}, opts *router.SendOptions) error {
	// 出站载荷校验失败属编码错误
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
func (s *Service) SendBootNotification(ctx context.Context, opts *router.SendOptions) error {
	info := s.station.Info()

	request := &ocpp16.BootNotificationRequest{
		ChargePointVendor: info.Vendor,
		ChargePointModel:  info.Model,
	}
	// 只带已定义的可选字段
	if info.SerialNumber != "" {
		serial := info.SerialNumber
		request.ChargePointSerialNumber = &serial
	}
	if info.FirmwareVersion != "" {
		firmware := info.FirmwareVersion
		request.FirmwareVersion = &firmware
	}

	response := &ocpp16.BootNotificationResponse{}
	if err := s.call(ctx, ocpp16.ActionBootNotification, request, response, opts); err != nil {
		return err
	}

	s.handleBootNotificationResponse(response)
	return nil
}

// handleBootNotificationResponse 启动通知应答处理
func (s *Service) handleBootNotificationResponse(response *ocpp16.BootNotificationResponse) {
	switch response.Status {
	case ocpp16.RegistrationStatusAccepted:
		s.station.SetRegistration(station.RegistrationAccepted)

		interval := strconv.Itoa(response.Interval)
		store := s.station.ConfigStore()
		store.SetValue(station.KeyHeartbeatInterval, interval)
		store.SetValue(station.KeyHeartBeatIntervalLegacy, interval)

		s.StartHeartbeat()
		s.publish(events.EventTypeStationRegistered, nil)
		s.log.Infof("Registration accepted, heartbeat interval %d s", response.Interval)

	case ocpp16.RegistrationStatusPending:
		s.station.SetRegistration(station.RegistrationPending)
		s.log.Warn("Registration pending, waiting for CSMS approval")

	case ocpp16.RegistrationStatusRejected:
		s.station.SetRegistration(station.RegistrationRejected)
		s.log.Error("Registration rejected by CSMS")
	}
}

// SendHeartbeat 发送心跳
func (s *Service) SendHeartbeat(ctx context.Context) error {
	response := &ocpp16.HeartbeatResponse{}
	if err := s.call(ctx, ocpp16.ActionHeartbeat, &ocpp16.HeartbeatRequest{}, response, nil); err != nil {
		return err
	}
	s.log.Debugf("Heartbeat acknowledged at %s", response.CurrentTime.Time)
	return nil
}

// Authorize 发送授权请求，返回令牌是否被接受
func (s *Service) Authorize(ctx context.Context, connectorID int, idTag string) (bool, error) {
	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.AuthorizeIdTag = idTag
		return nil
	})

	request := &ocpp16.AuthorizeRequest{IdTag: idTag}
	response := &ocpp16.AuthorizeResponse{}
	if err := s.call(ctx, ocpp16.ActionAuthorize, request, response, nil); err != nil {
		return false, err
	}

	accepted := response.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted
	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		if c.AuthorizeIdTag == idTag {
			c.IdTagAuthorized = accepted
			if !accepted {
				c.AuthorizeIdTag = ""
			}
		}
		return nil
	})

	if accepted {
		s.station.AddAuthorizedTag(idTag)
	}
	return accepted, nil
}

// StartTransaction 发送开始交易并执行应答侧状态迁移，返回CSMS是否接受
func (s *Service) StartTransaction(ctx context.Context, connectorID int, idTag string) (bool, error) {
	connector := s.station.GetConnector(connectorID)
	if connector == nil {
		return false, wire.NewError(wire.ErrInternalError, "unknown connector")
	}

	request := &ocpp16.StartTransactionRequest{
		ConnectorId: connectorID,
		IdTag:       idTag,
		MeterStart:  int(connector.EnergyActiveImportRegister),
		Timestamp:   s.now(),
	}

	response := &ocpp16.StartTransactionResponse{}
	if err := s.call(ctx, ocpp16.ActionStartTransaction, request, response, nil); err != nil {
		return false, err
	}

	return s.handleStartTransactionResponse(ctx, connectorID, request, response)
}

// handleStartTransactionResponse 开始交易应答处理：前置校验按序执行，失败回滚连接器
func (s *Service) handleStartTransactionResponse(ctx context.Context, connectorID int, request *ocpp16.StartTransactionRequest, response *ocpp16.StartTransactionResponse) (bool, error) {
	connector := s.station.GetConnector(connectorID)
	if connector == nil {
		return false, wire.NewError(wire.ErrInternalError, "unknown connector")
	}

	reject := func(reason string) (bool, error) {
		s.log.Warnf("StartTransaction rejected locally on connector %d: %s", connectorID, reason)
		s.resetConnectorOnStartTransactionError(ctx, connectorID)
		return false, nil
	}

	if connector.TransactionRemoteStarted && s.configBool(station.KeyAuthorizeRemoteTxRequests) {
		if s.configBool(station.KeyLocalAuthListEnabled) {
			if !connector.IdTagLocalAuthorized {
				return reject("local authorization required but token not locally authorized")
			}
			if connector.LocalAuthorizeIdTag != request.IdTag {
				return reject("idTag does not match locally authorized token")
			}
		} else if s.station.Info().MustAuthorizeAtStart {
			if !connector.IdTagAuthorized {
				return reject("token not authorized")
			}
			if connector.AuthorizeIdTag != request.IdTag {
				return reject("idTag does not match authorize request token")
			}
		}
	}

	if connector.Status16 != ocpp16.ChargePointStatusAvailable && connector.Status16 != ocpp16.ChargePointStatusPreparing {
		return reject("connector status " + string(connector.Status16) + " does not allow a new transaction")
	}

	if connector.TransactionStarted {
		return reject("transaction already in progress")
	}

	if response.IdTagInfo.Status != ocpp16.AuthorizationStatusAccepted {
		s.log.Warnf("StartTransaction rejected by CSMS: %s", response.IdTagInfo.Status)
		s.resetConnectorOnStartTransactionError(ctx, connectorID)
		return false, nil
	}

	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.TransactionStarted = true
		c.TransactionID = response.TransactionId
		c.TransactionIdTag = request.IdTag
		c.TransactionStart = request.Timestamp.Time
		c.TransactionEnergyActiveImportRegister = 0
		return nil
	})

	// 交易起始电表读数
	if s.configBool(station.KeyTransactionDataMeterValues) {
		beginValue := s.buildEnergyMeterValue(connector.EnergyActiveImportRegister, ocpp16.ReadingContextTransactionBegin)
		transactionID := response.TransactionId
		if err := s.SendMeterValues(ctx, connectorID, &transactionID, []ocpp16.MeterValue{beginValue}); err != nil {
			s.log.Warnf("Transaction begin MeterValues failed: %v", err)
		}
	}

	if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusCharging, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification(Charging) failed: %v", err)
	}
	s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusCharging)

	if s.station.Info().PowerShared {
		s.station.IncrementPowerDivider()
	}

	s.startMeterValuesTask(connectorID)
	metrics.TransactionsStarted.WithLabelValues(s.station.ID()).Inc()
	s.publish(events.EventTypeTransactionStarted, &events.TransactionPayload{
		ConnectorID:   connectorID,
		TransactionID: strconv.Itoa(response.TransactionId),
		IdTag:         request.IdTag,
	})

	return true, nil
}

// resetConnectorOnStartTransactionError 开始交易失败后的连接器回滚
func (s *Service) resetConnectorOnStartTransactionError(ctx context.Context, connectorID int) {
	s.stopMeterValuesTask(connectorID)
	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.ResetTransaction()
		c.RestoreStatus()
		return nil
	})
}

// StopTransaction 发送停止交易并执行应答侧状态迁移，返回CSMS是否接受
func (s *Service) StopTransaction(ctx context.Context, connectorID int, reason ocpp16.Reason) (bool, error) {
	connector := s.station.GetConnector(connectorID)
	if connector == nil || !connector.TransactionStarted {
		return false, nil
	}

	request := &ocpp16.StopTransactionRequest{
		MeterStop:     int(connector.EnergyActiveImportRegister),
		Timestamp:     s.now(),
		TransactionId: connector.TransactionID,
		Reason:        &reason,
	}
	if connector.TransactionIdTag != "" {
		idTag := connector.TransactionIdTag
		request.IdTag = &idTag
	}
	// 交易数据只在开关打开时附带
	if s.configBool(station.KeyTransactionDataMeterValues) {
		request.TransactionData = []ocpp16.MeterValue{
			s.buildEnergyMeterValue(connector.EnergyActiveImportRegister, ocpp16.ReadingContextTransactionEnd),
		}
	}

	response := &ocpp16.StopTransactionResponse{}
	if err := s.call(ctx, ocpp16.ActionStopTransaction, request, response, nil); err != nil {
		return false, err
	}

	s.handleStopTransactionResponse(ctx, connectorID, response)

	accepted := response.IdTagInfo == nil || response.IdTagInfo.Status == ocpp16.AuthorizationStatusAccepted
	return accepted, nil
}

// handleStopTransactionResponse 停止交易应答处理
func (s *Service) handleStopTransactionResponse(ctx context.Context, connectorID int, response *ocpp16.StopTransactionResponse) {
	connector := s.station.GetConnector(connectorID)
	if connector == nil {
		return
	}

	transactionID := connector.TransactionID

	// 非严格模式下按需补发收尾电表值
	if !s.station.StrictCompliance() && s.configBool(station.KeyOutOfOrderEndMeterValues) {
		endValue := s.buildEnergyMeterValue(connector.EnergyActiveImportRegister, ocpp16.ReadingContextTransactionEnd)
		if err := s.SendMeterValues(ctx, connectorID, &transactionID, []ocpp16.MeterValue{endValue}); err != nil {
			s.log.Warnf("Out of order end MeterValues failed: %v", err)
		}
	}

	targetStatus := ocpp16.ChargePointStatusAvailable
	if !s.station.StationAvailable() || !connector.IsOperative() {
		targetStatus = ocpp16.ChargePointStatusUnavailable
	}

	if err := s.SendStatusNotification(ctx, connectorID, targetStatus, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification after stop failed: %v", err)
	}
	s.station.SetConnectorStatus16(connectorID, targetStatus)

	if s.station.Info().PowerShared {
		s.station.DecrementPowerDivider()
	}

	meterValue := connector.TransactionEnergyActiveImportRegister
	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.ResetTransaction()
		return nil
	})
	s.stopMeterValuesTask(connectorID)

	metrics.TransactionsStopped.WithLabelValues(s.station.ID()).Inc()
	s.publish(events.EventTypeTransactionStopped, &events.TransactionPayload{
		ConnectorID:   connectorID,
		TransactionID: strconv.Itoa(transactionID),
		MeterValue:    meterValue,
	})
}

// SendStatusNotification 发送状态通知
func (s *Service) SendStatusNotification(ctx context.Context, connectorID int, status ocpp16.ChargePointStatus, errorCode ocpp16.ChargePointErrorCode) error {
	var from ocpp16.ChargePointStatus
	if connector := s.station.GetConnector(connectorID); connector != nil {
		from = connector.Status16
	}

	timestamp := s.now()
	request := &ocpp16.StatusNotificationRequest{
		ConnectorId: connectorID,
		ErrorCode:   errorCode,
		Status:      status,
		Timestamp:   &timestamp,
	}

	response := &ocpp16.StatusNotificationResponse{}
	if err := s.call(ctx, ocpp16.ActionStatusNotification, request, response, nil); err != nil {
		return err
	}

	if from != status {
		s.publishStatusChange(connectorID, from, status)
	}
	return nil
}

// SendMeterValues 发送电表值
func (s *Service) SendMeterValues(ctx context.Context, connectorID int, transactionID *int, values []ocpp16.MeterValue) error {
	request := &ocpp16.MeterValuesRequest{
		ConnectorId:   connectorID,
		TransactionId: transactionID,
		MeterValue:    values,
	}
	response := &ocpp16.MeterValuesResponse{}
	return s.call(ctx, ocpp16.ActionMeterValues, request, response, nil)
}

// SendFirmwareStatusNotification 发送固件状态通知并记录状态
func (s *Service) SendFirmwareStatusNotification(ctx context.Context, status ocpp16.FirmwareStatus) error {
	s.station.SetFirmwareStatus(status)
	s.publish(events.EventTypeFirmwareStatusChanged, string(status))

	request := &ocpp16.FirmwareStatusNotificationRequest{Status: status}
	response := &ocpp16.FirmwareStatusNotificationResponse{}
	return s.call(ctx, ocpp16.ActionFirmwareStatusNotification, request, response, nil)
}

// SendDiagnosticsStatusNotification 发送诊断状态通知并记录状态
func (s *Service) SendDiagnosticsStatusNotification(ctx context.Context, status ocpp16.DiagnosticsStatus) error {
	s.station.SetDiagnosticsStatus(status)
	s.publish(events.EventTypeDiagnosticsStatusChanged, string(status))

	request := &ocpp16.DiagnosticsStatusNotificationRequest{Status: status}
	response := &ocpp16.DiagnosticsStatusNotificationResponse{}
	return s.call(ctx, ocpp16.ActionDiagnosticsStatusNotification, request, response, nil)
}

// SendDataTransfer 发送数据传输
func (s *Service) SendDataTransfer(ctx context.Context, vendorID string, messageID *string, data interface{}) (*ocpp16.DataTransferResponse, error) {
	request := &ocpp16.DataTransferRequest{
		VendorId:  vendorID,
		MessageId: messageID,
		Data:      data,
	}
	response := &ocpp16.DataTransferResponse{}
	if err := s.call(ctx, ocpp16.ActionDataTransfer, request, response, nil); err != nil {
		return nil, err
	}
	return response, nil
}

// buildEnergyMeterValue 构造单条能量寄存器读数
func (s *Service) buildEnergyMeterValue(register int64, context ocpp16.ReadingContext) ocpp16.MeterValue {
	measurand := ocpp16.MeasurandEnergyActiveImportRegister
	unit := ocpp16.UnitOfMeasureWh
	readingContext := context
	return ocpp16.MeterValue{
		Timestamp: s.now(),
		SampledValue: []ocpp16.SampledValue{{
			Value:     strconv.FormatInt(register, 10),
			Context:   &readingContext,
			Measurand: &measurand,
			Unit:      &unit,
		}},
	}
}

// sendCurrentMeterValues 发送连接器当前读数
func (s *Service) sendCurrentMeterValues(ctx context.Context, connectorID int, context ocpp16.ReadingContext) error {
	connector := s.station.GetConnector(connectorID)
	if connector == nil {
		return nil
	}

	var transactionID *int
	if connector.TransactionStarted {
		id := connector.TransactionID
		transactionID = &id
	}

	value := s.buildEnergyMeterValue(connector.EnergyActiveImportRegister, context)
	return s.SendMeterValues(ctx, connectorID, transactionID, []ocpp16.MeterValue{value})
}
