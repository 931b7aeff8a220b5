package v201

import (
	"context"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// handleClearCache 清空授权缓存
func (s *Service) handleClearCache(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	s.station.ClearAuthorizationCache()
	return &ocpp201.ClearCacheResponse{Status: ocpp201.ClearCacheStatusAccepted}, nil
}

// handleReset 重置整个站点，不支持只重启单个EVSE；evseId只限定Immediate结束哪个EVSE上的活跃交易。
// Immediate先结束活跃交易；OnIdle轮询到交易数为0后重启
func (s *Service) handleReset(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.ResetRequest)

	if req.EvseId != nil && s.station.GetEvse(*req.EvseId) == nil {
		return &ocpp201.ResetResponse{
			Status:     ocpp201.ResetStatusRejected,
			StatusInfo: &ocpp201.StatusInfo{ReasonCode: ocpp201.ReasonCodeUnknownEvse},
		}, nil
	}

	targetEvse := req.EvseId
	resetType := req.Type

	s.runAsync("reset", func() {
		background := context.Background()
		switch resetType {
		case ocpp201.ResetTypeImmediate:
			s.stopTransactionsForReset(background, targetEvse)
			s.station.Reset(string(ocpp201.BootReasonRemoteReset))

		case ocpp201.ResetTypeOnIdle:
			// 轮询直到没有活跃交易
			for s.station.ActiveTransactionCount() > 0 {
				select {
				case <-s.station.Stopped():
					return
				default:
				}
				s.station.Clock().Sleep(s.ocppCfg.IdleResetPollInterval)
			}
			s.station.Reset(string(ocpp201.BootReasonScheduledReset))
		}
	})

	return &ocpp201.ResetResponse{Status: ocpp201.ResetStatusAccepted}, nil
}

// stopTransactionsForReset 结束目标范围内的活跃交易
func (s *Service) stopTransactionsForReset(ctx context.Context, evseID *int) {
	for _, connectorID := range s.station.ConnectorIDs() {
		if evseID != nil && connectorID != *evseID {
			continue
		}
		connector := s.station.GetConnector(connectorID)
		if connector == nil || !connector.TransactionStarted {
			continue
		}
		if _, err := s.stopTransactionWithReason(ctx, connectorID, ocpp201.StoppedReasonImmediateReset, TriggerContext{RemoteCommand: CommandReset}); err != nil {
			s.log.Errorf("Failed to end transaction on evse %d before reset: %v", connectorID, err)
		}
	}
}

// handleGetBaseReport 构建基础报告，NotifyReport序列在应答发出后推送
func (s *Service) handleGetBaseReport(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.GetBaseReportRequest)

	switch req.ReportBase {
	case ocpp201.ReportBaseConfigurationInventory, ocpp201.ReportBaseFullInventory, ocpp201.ReportBaseSummaryInventory:
	default:
		return &ocpp201.GetBaseReportResponse{Status: ocpp201.GenericDeviceModelStatusNotSupported}, nil
	}

	status, items := s.deviceModel.BuildBaseReport(s.station, req.RequestId, req.ReportBase)
	if status == ocpp201.GenericDeviceModelStatusAccepted {
		s.mu.Lock()
		s.pendingReports = append(s.pendingReports, req.RequestId)
		s.mu.Unlock()
		s.log.Infof("Base report %d (%s) accepted with %d items", req.RequestId, req.ReportBase, items)
	}

	return &ocpp201.GetBaseReportResponse{Status: status}, nil
}

// handleGetVariables 变量读取，整包限制与单条语义由设备模型管理器执行
func (s *Service) handleGetVariables(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.GetVariablesRequest)
	return s.deviceModel.GetVariables(s.station, req, rawSize), nil
}

// handleSetVariables 变量写入
func (s *Service) handleSetVariables(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.SetVariablesRequest)
	return s.deviceModel.SetVariables(s.station, req, rawSize), nil
}

// rejectRequestStart 远程启动失败回退
func (s *Service) rejectRequestStart(ctx context.Context, evseID int) *ocpp201.RequestStartTransactionResponse {
	connector := s.station.GetConnector(evseID)
	if connector != nil && connector.Status201 != ocpp201.ConnectorStatusAvailable {
		s.station.WithConnector(evseID, func(c *station.Connector) error {
			c.ResetTransaction()
			c.RestoreStatus()
			return nil
		})
		if err := s.SendStatusNotification(ctx, evseID, ocpp201.ConnectorStatusAvailable); err != nil {
			s.log.Warnf("StatusNotification on request start revert failed: %v", err)
		}
		s.station.SetConnectorStatus201(evseID, ocpp201.ConnectorStatusAvailable)
	}
	return &ocpp201.RequestStartTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}
}

// handleRequestStartTransaction 远程启动交易状态机
func (s *Service) handleRequestStartTransaction(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.RequestStartTransactionRequest)

	// evseId必填
	if req.EvseId == nil {
		return nil, wire.NewError(wire.ErrPropertyConstraintViolation, "evseId is required")
	}
	evseID := *req.EvseId

	if s.station.GetEvse(evseID) == nil || s.station.GetConnector(evseID) == nil {
		return &ocpp201.RequestStartTransactionResponse{
			Status:     ocpp201.RequestStartStopStatusRejected,
			StatusInfo: &ocpp201.StatusInfo{ReasonCode: ocpp201.ReasonCodeUnknownEvse},
		}, nil
	}

	connector := s.station.GetConnector(evseID)
	if connector.TransactionStarted {
		return &ocpp201.RequestStartTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}, nil
	}

	connector.SaveStatus()

	if !s.station.StationAvailable() || !connector.IsOperative() {
		return s.rejectRequestStart(ctx, evseID), nil
	}

	// 令牌授权：本地列表校验，组令牌也必须通过
	if s.station.Info().AuthorizeRemoteTx {
		if !s.authorizeToken(req.IdToken) {
			s.log.Warnf("Request start token %s not authorized", req.IdToken.IdToken)
			return s.rejectRequestStart(ctx, evseID), nil
		}
		if req.GroupIdToken != nil && !s.authorizeToken(*req.GroupIdToken) {
			s.log.Warnf("Request start group token %s not authorized", req.GroupIdToken.IdToken)
			return s.rejectRequestStart(ctx, evseID), nil
		}
	}

	if req.ChargingProfile != nil {
		if err := s.station.ValidateChargingProfile201(evseID, req.ChargingProfile, s.station.Clock().Now()); err != nil {
			s.log.Warnf("Request start charging profile rejected: %v", err)
			return &ocpp201.RequestStartTransactionResponse{
				Status:     ocpp201.RequestStartStopStatusRejected,
				StatusInfo: &ocpp201.StatusInfo{ReasonCode: ocpp201.ReasonCodeInvalidProfile},
			}, nil
		}
		if err := s.station.StoreChargingProfile201(evseID, *req.ChargingProfile); err != nil {
			return s.rejectRequestStart(ctx, evseID), nil
		}
	}

	// 生成交易并重置逐交易计数器
	transactionID := s.station.RNG().UUID()
	remoteStartID := req.RemoteStartId
	s.station.WithConnector(evseID, func(c *station.Connector) error {
		c.TransactionStarted = true
		c.TransactionID201 = transactionID
		c.TransactionIdTag = req.IdToken.IdToken
		c.TransactionStart = s.station.Clock().Now()
		c.TransactionRemoteStarted = true
		c.RemoteStartID = remoteStartID
		c.TransactionEnergyActiveImportRegister = 0
		c.TransactionSeqNo = nil
		c.TransactionEvseSent = false
		c.TransactionIdTokenSent = false
		return nil
	})

	if err := s.SendStatusNotification(ctx, evseID, ocpp201.ConnectorStatusOccupied); err != nil {
		s.log.Warnf("StatusNotification(Occupied) failed: %v", err)
	}
	s.station.SetConnectorStatus201(evseID, ocpp201.ConnectorStatusOccupied)

	idToken := req.IdToken
	_, err := s.SendTransactionEvent(ctx, evseID, ocpp201.TransactionEventStarted,
		TriggerContext{RemoteCommand: CommandRequestStart},
		&TransactionEventOptions{
			IdToken:       &idToken,
			ChargingState: chargingStatePtr(ocpp201.ChargingStateCharging),
			RemoteStartId: &remoteStartID,
		})
	if err != nil {
		s.log.Errorf("TransactionEvent(Started) failed: %v", err)
		return s.rejectRequestStart(ctx, evseID), nil
	}

	s.startMeterTask(evseID)
	metrics.TransactionsStarted.WithLabelValues(s.station.ID()).Inc()
	s.publish(events.EventTypeTransactionStarted, &events.TransactionPayload{
		ConnectorID:   evseID,
		TransactionID: transactionID,
		IdTag:         req.IdToken.IdToken,
	})

	return &ocpp201.RequestStartTransactionResponse{
		Status:        ocpp201.RequestStartStopStatusAccepted,
		TransactionId: &transactionID,
	}, nil
}

// authorizeToken 本地令牌授权：授权缓存或本地列表命中即通过
func (s *Service) authorizeToken(token ocpp201.IdToken) bool {
	if token.Type == ocpp201.IdTokenTypeNoAuth {
		return true
	}
	if s.station.IsTagCached(token.IdToken) {
		return true
	}
	if s.station.Info().LocalAuthListEnabled && s.station.IsTagInLocalList(token.IdToken) {
		s.station.AddAuthorizedTag(token.IdToken)
		return true
	}
	return false
}

// handleRequestStopTransaction 远程停止交易
func (s *Service) handleRequestStopTransaction(ctx context.Context, payload interface{}, rawSize int) (interface{}, error) {
	req := payload.(*ocpp201.RequestStopTransactionRequest)

	connector := s.station.FindConnectorByTransactionID201(req.TransactionId)
	if connector == nil {
		s.log.Warnf("Request stop for unknown transaction %s", req.TransactionId)
		return &ocpp201.RequestStopTransactionResponse{
			Status:     ocpp201.RequestStartStopStatusRejected,
			StatusInfo: &ocpp201.StatusInfo{ReasonCode: ocpp201.ReasonCodeNoTransaction},
		}, nil
	}

	accepted, err := s.stopTransactionWithReason(ctx, connector.ID, ocpp201.StoppedReasonRemote, TriggerContext{RemoteCommand: CommandRequestStop})
	if err != nil {
		s.log.Errorf("TransactionEvent(Ended) for request stop failed: %v", err)
		return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}, nil
	}
	if !accepted {
		return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusRejected}, nil
	}
	return &ocpp201.RequestStopTransactionResponse{Status: ocpp201.RequestStartStopStatusAccepted}, nil
}

// chargingStatePtr 辅助函数
func chargingStatePtr(state ocpp201.ChargingState) *ocpp201.ChargingState {
	return &state
}
