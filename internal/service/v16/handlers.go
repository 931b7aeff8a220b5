package v16

import (
	"context"
	"strings"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// handleReset 重置站点。Hard重置先停掉活跃交易（严格合规模式下跳过），与2.0.1的Immediate语义对齐
func (s *Service) handleReset(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.ResetRequest)

	resetType := req.Type
	s.runAsync("reset", func() {
		reason := ocpp16.ReasonSoftReset
		if resetType == ocpp16.ResetTypeHard {
			reason = ocpp16.ReasonHardReset
		}

		if resetType == ocpp16.ResetTypeSoft || !s.station.StrictCompliance() {
			for _, connectorID := range s.station.ConnectorIDs() {
				connector := s.station.GetConnector(connectorID)
				if connector != nil && connector.TransactionStarted {
					if _, err := s.StopTransaction(context.Background(), connectorID, reason); err != nil {
						s.log.Errorf("Failed to stop transaction on connector %d before reset: %v", connectorID, err)
					}
				}
			}
		}

		s.station.Reset(string(req.Type))
	})

	return &ocpp16.ResetResponse{Status: ocpp16.ResetStatusAccepted}, nil
}

// handleClearCache 清空授权缓存
func (s *Service) handleClearCache(ctx context.Context, payload interface{}) (interface{}, error) {
	s.station.ClearAuthorizationCache()
	return &ocpp16.ClearCacheResponse{Status: ocpp16.ClearCacheStatusAccepted}, nil
}

// handleUnlockConnector 解锁连接器。有活跃交易时先停交易，停成功才算解锁成功
func (s *Service) handleUnlockConnector(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.UnlockConnectorRequest)

	connector := s.station.GetConnector(req.ConnectorId)
	if connector == nil || req.ConnectorId == 0 {
		return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusNotSupported}, nil
	}

	if connector.TransactionStarted {
		accepted, err := s.StopTransaction(ctx, req.ConnectorId, ocpp16.ReasonUnlockCommand)
		if err != nil {
			s.log.Errorf("Failed to stop transaction for unlock on connector %d: %v", req.ConnectorId, err)
			return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlockFailed}, nil
		}
		if !accepted {
			return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlockFailed}, nil
		}
		return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked}, nil
	}

	if err := s.SendStatusNotification(ctx, req.ConnectorId, ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification after unlock failed: %v", err)
	}
	s.station.SetConnectorStatus16(req.ConnectorId, ocpp16.ChargePointStatusAvailable)
	return &ocpp16.UnlockConnectorResponse{Status: ocpp16.UnlockStatusUnlocked}, nil
}

// handleGetConfiguration 返回配置键。不带key返回全部非隐藏键；隐藏键静默省略
func (s *Service) handleGetConfiguration(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.GetConfigurationRequest)

	response := &ocpp16.GetConfigurationResponse{}

	toKeyValue := func(key station.ConfigurationKey) ocpp16.KeyValue {
		value := key.Value
		return ocpp16.KeyValue{Key: key.Key, Readonly: key.Readonly, Value: &value}
	}

	if len(req.Key) == 0 {
		for _, key := range s.station.ConfigStore().Visible() {
			response.ConfigurationKey = append(response.ConfigurationKey, toKeyValue(key))
		}
		return response, nil
	}

	for _, requested := range req.Key {
		key, found := s.station.ConfigStore().Get(requested)
		if !found {
			response.UnknownKey = append(response.UnknownKey, requested)
			continue
		}
		if !key.Visible {
			continue
		}
		response.ConfigurationKey = append(response.ConfigurationKey, toKeyValue(key))
	}
	return response, nil
}

// isHeartbeatKey 是否为心跳间隔键（含遗留别名）
func isHeartbeatKey(key string) bool {
	lower := strings.ToLower(key)
	return lower == strings.ToLower(station.KeyHeartbeatInterval)
}

// handleChangeConfiguration 修改配置键。心跳键双向镜像，一次迁移内完成
func (s *Service) handleChangeConfiguration(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.ChangeConfigurationRequest)

	store := s.station.ConfigStore()
	key, found := store.Get(req.Key)
	if !found {
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusNotSupported}, nil
	}

	if key.Readonly {
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusRejected}, nil
	}

	// 值未变化时无副作用
	if key.Value == req.Value {
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusAccepted}, nil
	}

	store.SetValue(req.Key, req.Value)

	if isHeartbeatKey(req.Key) {
		// 两个心跳键互为镜像，统一写两份并只重启一次
		store.SetValue(station.KeyHeartbeatInterval, req.Value)
		store.SetValue(station.KeyHeartBeatIntervalLegacy, req.Value)
		s.RestartHeartbeat()
	}

	if strings.EqualFold(req.Key, station.KeyWebSocketPingInterval) {
		s.station.RestartWebSocketPing()
	}

	if key.Reboot {
		return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusRebootRequired}, nil
	}
	return &ocpp16.ChangeConfigurationResponse{Status: ocpp16.ConfigurationStatusAccepted}, nil
}

// handleSetChargingProfile 设置充电配置
func (s *Service) handleSetChargingProfile(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.SetChargingProfileRequest)

	connector := s.station.GetConnector(req.ConnectorId)
	if connector == nil {
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.SetChargingProfileStatusRejected}, nil
	}

	profile := req.CsChargingProfiles
	if err := s.station.ValidateChargingProfile16(req.ConnectorId, &profile, s.station.Clock().Now()); err != nil {
		s.log.Warnf("SetChargingProfile rejected: %v", err)
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.SetChargingProfileStatusRejected}, nil
	}

	if profile.ChargingProfilePurpose == ocpp16.ChargingProfilePurposeTxProfile &&
		profile.TransactionId != nil && *profile.TransactionId != connector.TransactionID {
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.SetChargingProfileStatusRejected}, nil
	}

	if err := s.station.StoreChargingProfile16(req.ConnectorId, profile); err != nil {
		return &ocpp16.SetChargingProfileResponse{Status: ocpp16.SetChargingProfileStatusRejected}, nil
	}
	return &ocpp16.SetChargingProfileResponse{Status: ocpp16.SetChargingProfileStatusAccepted}, nil
}

// handleClearChargingProfile 按条件清除充电配置，至少命中一个才返回Accepted
func (s *Service) handleClearChargingProfile(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.ClearChargingProfileRequest)

	removed := s.station.ClearChargingProfiles16(station.ClearCriteria16{
		Id:          req.Id,
		ConnectorId: req.ConnectorId,
		Purpose:     req.ChargingProfilePurpose,
		StackLevel:  req.StackLevel,
	})

	if removed > 0 {
		return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusAccepted}, nil
	}
	return &ocpp16.ClearChargingProfileResponse{Status: ocpp16.ClearChargingProfileStatusUnknown}, nil
}

// handleGetCompositeSchedule 组合计划计算不在模拟范围内，一律拒绝
func (s *Service) handleGetCompositeSchedule(ctx context.Context, payload interface{}) (interface{}, error) {
	return &ocpp16.GetCompositeScheduleResponse{Status: ocpp16.GetCompositeScheduleStatusRejected}, nil
}

// handleChangeAvailability 改变可用性。连接器0作用于全部连接器；
// 有活跃交易时返回Scheduled但立即记录可用性
func (s *Service) handleChangeAvailability(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.ChangeAvailabilityRequest)

	availability := req.Type
	targetStatus := ocpp16.ChargePointStatusAvailable
	if availability == ocpp16.AvailabilityTypeInoperative {
		targetStatus = ocpp16.ChargePointStatusUnavailable
	}

	applyConnector := func(connectorID int) (scheduled bool) {
		var hasTransaction bool
		s.station.WithConnector(connectorID, func(c *station.Connector) error {
			c.Availability = availability
			hasTransaction = c.TransactionStarted
			return nil
		})
		if hasTransaction {
			return true
		}
		if err := s.SendStatusNotification(ctx, connectorID, targetStatus, ocpp16.ChargePointErrorCodeNoError); err != nil {
			s.log.Warnf("StatusNotification for availability change failed: %v", err)
		}
		s.station.SetConnectorStatus16(connectorID, targetStatus)
		return false
	}

	if req.ConnectorId == 0 {
		scheduled := false
		s.station.WithConnector(0, func(c *station.Connector) error {
			c.Availability = availability
			return nil
		})
		for _, connectorID := range s.station.ConnectorIDs() {
			if applyConnector(connectorID) {
				scheduled = true
			}
		}
		if scheduled {
			return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusScheduled}, nil
		}
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}, nil
	}

	if s.station.GetConnector(req.ConnectorId) == nil {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusRejected}, nil
	}

	if applyConnector(req.ConnectorId) {
		return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusScheduled}, nil
	}
	return &ocpp16.ChangeAvailabilityResponse{Status: ocpp16.AvailabilityStatusAccepted}, nil
}

// rejectRemoteStart 远程启动失败回退：状态已偏离Available时补发通知并复位
func (s *Service) rejectRemoteStart(ctx context.Context, connectorID int) *ocpp16.RemoteStartTransactionResponse {
	connector := s.station.GetConnector(connectorID)
	if connector != nil && connector.Status16 != ocpp16.ChargePointStatusAvailable {
		if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointErrorCodeNoError); err != nil {
			s.log.Warnf("StatusNotification on remote start revert failed: %v", err)
		}
		s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusAvailable)
	}
	return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}
}

// handleRemoteStartTransaction 远程启动交易状态机
func (s *Service) handleRemoteStartTransaction(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.RemoteStartTransactionRequest)

	connectorID := 1
	if req.ConnectorId != nil {
		connectorID = *req.ConnectorId
	}

	connector := s.station.GetConnector(connectorID)
	if connector == nil || connectorID == 0 {
		s.log.Warnf("Remote start for unknown connector %d", connectorID)
		return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}

	connector.SaveStatus()

	if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusPreparing, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification(Preparing) failed: %v", err)
	}
	s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusPreparing)

	if !s.station.StationAvailable() || !connector.IsOperative() {
		return s.rejectRemoteStart(ctx, connectorID), nil
	}

	if s.configBool(station.KeyAuthorizeRemoteTxRequests) {
		authorized := false
		if s.configBool(station.KeyLocalAuthListEnabled) && s.station.IsTagInLocalList(req.IdTag) {
			s.station.WithConnector(connectorID, func(c *station.Connector) error {
				c.LocalAuthorizeIdTag = req.IdTag
				c.IdTagLocalAuthorized = true
				return nil
			})
			authorized = true
		} else if s.station.Info().MustAuthorizeAtStart {
			accepted, err := s.Authorize(ctx, connectorID, req.IdTag)
			if err != nil {
				s.log.Errorf("Authorize for remote start failed: %v", err)
			}
			authorized = accepted
		} else {
			s.log.Warnf("Remote start token %s not authorized: not in local list and remote authorize disabled", req.IdTag)
		}

		if !authorized {
			return s.rejectRemoteStart(ctx, connectorID), nil
		}
	}

	if req.ChargingProfile != nil {
		if req.ChargingProfile.ChargingProfilePurpose != ocpp16.ChargingProfilePurposeTxProfile {
			s.log.Warnf("Remote start charging profile must be TxProfile")
			return s.rejectRemoteStart(ctx, connectorID), nil
		}
		// TxProfile在交易开始后生效，先暂存
		s.station.WithConnector(connectorID, func(c *station.Connector) error {
			c.ChargingProfiles = append(c.ChargingProfiles, *req.ChargingProfile)
			return nil
		})
	}

	s.station.WithConnector(connectorID, func(c *station.Connector) error {
		c.TransactionRemoteStarted = true
		return nil
	})

	accepted, err := s.StartTransaction(ctx, connectorID, req.IdTag)
	if err != nil {
		s.log.Errorf("StartTransaction for remote start failed: %v", err)
		return s.rejectRemoteStart(ctx, connectorID), nil
	}
	if !accepted {
		return s.rejectRemoteStart(ctx, connectorID), nil
	}

	return &ocpp16.RemoteStartTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}

// handleRemoteStopTransaction 远程停止交易
func (s *Service) handleRemoteStopTransaction(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.RemoteStopTransactionRequest)

	connector := s.station.FindConnectorByTransactionID(req.TransactionId)
	if connector == nil {
		s.log.Warnf("Remote stop for unknown transaction %d", req.TransactionId)
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}

	connectorID := connector.ID
	if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusFinishing, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification(Finishing) failed: %v", err)
	}
	s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusFinishing)

	accepted, err := s.StopTransaction(ctx, connectorID, ocpp16.ReasonRemote)
	if err != nil {
		s.log.Errorf("StopTransaction for remote stop failed: %v", err)
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}
	if !accepted {
		return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusRejected}, nil
	}
	return &ocpp16.RemoteStopTransactionResponse{Status: ocpp16.RemoteStartStopStatusAccepted}, nil
}

// handleTriggerMessage 延迟后补发请求的消息
func (s *Service) handleTriggerMessage(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.TriggerMessageRequest)

	switch req.RequestedMessage {
	case ocpp16.MessageTriggerBootNotification,
		ocpp16.MessageTriggerHeartbeat,
		ocpp16.MessageTriggerMeterValues,
		ocpp16.MessageTriggerStatusNotification,
		ocpp16.MessageTriggerDiagnosticsStatusNotification,
		ocpp16.MessageTriggerFirmwareStatusNotification:
	default:
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusNotImplemented}, nil
	}

	if req.ConnectorId != nil && s.station.GetConnector(*req.ConnectorId) == nil {
		return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusRejected}, nil
	}

	requested := req.RequestedMessage
	connectorID := req.ConnectorId
	s.runAsync("trigger-message", func() {
		s.station.Clock().Sleep(s.ocppCfg.TriggerMessageDelay)
		s.fireTriggeredMessage(context.Background(), requested, connectorID)
	})

	return &ocpp16.TriggerMessageResponse{Status: ocpp16.TriggerMessageStatusAccepted}, nil
}

// fireTriggeredMessage 发出被触发的消息，错误只记录
func (s *Service) fireTriggeredMessage(ctx context.Context, requested ocpp16.MessageTrigger, connectorID *int) {
	opts := triggeredSendOptions()

	switch requested {
	case ocpp16.MessageTriggerBootNotification:
		if err := s.SendBootNotification(ctx, opts); err != nil {
			s.log.Errorf("Triggered BootNotification failed: %v", err)
		}
	case ocpp16.MessageTriggerHeartbeat:
		if err := s.SendHeartbeat(ctx); err != nil {
			s.log.Errorf("Triggered Heartbeat failed: %v", err)
		}
	case ocpp16.MessageTriggerStatusNotification:
		targets := s.station.ConnectorIDs()
		if connectorID != nil {
			targets = []int{*connectorID}
		}
		for _, id := range targets {
			connector := s.station.GetConnector(id)
			if connector == nil {
				continue
			}
			if err := s.SendStatusNotification(ctx, id, connector.Status16, ocpp16.ChargePointErrorCodeNoError); err != nil {
				s.log.Errorf("Triggered StatusNotification failed: %v", err)
			}
		}
	case ocpp16.MessageTriggerMeterValues:
		targets := s.station.ConnectorIDs()
		if connectorID != nil {
			targets = []int{*connectorID}
		}
		for _, id := range targets {
			if err := s.sendCurrentMeterValues(ctx, id, ocpp16.ReadingContextTrigger); err != nil {
				s.log.Errorf("Triggered MeterValues failed: %v", err)
			}
		}
	case ocpp16.MessageTriggerDiagnosticsStatusNotification:
		status := s.station.DiagnosticsStatus()
		if status == "" {
			status = ocpp16.DiagnosticsStatusIdle
		}
		if err := s.SendDiagnosticsStatusNotification(ctx, status); err != nil {
			s.log.Errorf("Triggered DiagnosticsStatusNotification failed: %v", err)
		}
	case ocpp16.MessageTriggerFirmwareStatusNotification:
		status := s.station.FirmwareStatus()
		if status == "" {
			status = ocpp16.FirmwareStatusIdle
		}
		if err := s.SendFirmwareStatusNotification(ctx, status); err != nil {
			s.log.Errorf("Triggered FirmwareStatusNotification failed: %v", err)
		}
	}
}

// handleDataTransfer vendorId被认可即接受
func (s *Service) handleDataTransfer(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.DataTransferRequest)

	for _, vendor := range s.station.Info().VendorIDs {
		if vendor == req.VendorId {
			return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusAccepted}, nil
		}
	}
	return &ocpp16.DataTransferResponse{Status: ocpp16.DataTransferStatusUnknownVendorId}, nil
}

// handleUpdateFirmware 启动固件升级模拟
func (s *Service) handleUpdateFirmware(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.UpdateFirmwareRequest)

	current := s.station.FirmwareStatus()
	if current != "" && current != ocpp16.FirmwareStatusInstalled {
		s.log.Warnf("Firmware update already in progress (status %s), ignoring", current)
		return &ocpp16.UpdateFirmwareResponse{}, nil
	}

	retrieveDate := req.RetrieveDate.Time
	s.runAsync("firmware-update", func() {
		s.runFirmwareUpdateSimulation(context.Background(), retrieveDate)
	})

	return &ocpp16.UpdateFirmwareResponse{}, nil
}

// handleGetDiagnostics 诊断上传，仅支持ftp://
func (s *Service) handleGetDiagnostics(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.GetDiagnosticsRequest)
	return s.uploadDiagnostics(ctx, req.Location)
}

// handleReserveNow 预约空闲连接器
func (s *Service) handleReserveNow(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.ReserveNowRequest)

	connector := s.station.GetConnector(req.ConnectorId)
	if connector == nil || req.ConnectorId == 0 {
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusRejected}, nil
	}

	switch connector.Status16 {
	case ocpp16.ChargePointStatusFaulted:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusFaulted}, nil
	case ocpp16.ChargePointStatusUnavailable:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusUnavailable}, nil
	case ocpp16.ChargePointStatusAvailable:
	default:
		return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusOccupied}, nil
	}

	reservationID := req.ReservationId
	s.station.WithConnector(req.ConnectorId, func(c *station.Connector) error {
		c.ReservationID = &reservationID
		c.ReservationIdTag = req.IdTag
		c.ReservationExpiry = req.ExpiryDate.Time
		return nil
	})

	if err := s.SendStatusNotification(ctx, req.ConnectorId, ocpp16.ChargePointStatusReserved, ocpp16.ChargePointErrorCodeNoError); err != nil {
		s.log.Warnf("StatusNotification(Reserved) failed: %v", err)
	}
	s.station.SetConnectorStatus16(req.ConnectorId, ocpp16.ChargePointStatusReserved)

	return &ocpp16.ReserveNowResponse{Status: ocpp16.ReservationStatusAccepted}, nil
}

// handleCancelReservation 取消预约
func (s *Service) handleCancelReservation(ctx context.Context, payload interface{}) (interface{}, error) {
	req := payload.(*ocpp16.CancelReservationRequest)

	for _, connectorID := range s.station.ConnectorIDs() {
		connector := s.station.GetConnector(connectorID)
		if connector == nil || connector.ReservationID == nil || *connector.ReservationID != req.ReservationId {
			continue
		}

		s.station.WithConnector(connectorID, func(c *station.Connector) error {
			c.ReservationID = nil
			c.ReservationIdTag = ""
			return nil
		})

		if err := s.SendStatusNotification(ctx, connectorID, ocpp16.ChargePointStatusAvailable, ocpp16.ChargePointErrorCodeNoError); err != nil {
			s.log.Warnf("StatusNotification after reservation cancel failed: %v", err)
		}
		s.station.SetConnectorStatus16(connectorID, ocpp16.ChargePointStatusAvailable)

		return &ocpp16.CancelReservationResponse{Status: ocpp16.CancelReservationStatusAccepted}, nil
	}

	return &ocpp16.CancelReservationResponse{Status: ocpp16.CancelReservationStatusRejected}, nil
}

// 发布连接器状态事件
func (s *Service) publishStatusChange(connectorID int, from, to ocpp16.ChargePointStatus) {
	s.publish(events.EventTypeConnectorStatusChanged, &events.StatusChangedPayload{
		ConnectorID: connectorID,
		From:        string(from),
		To:          string(to),
	})
}
