package v201

import (
	"context"
	"encoding/json"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// remoteCommands 注册门在Pending状态下额外拦截的命令
var remoteCommands = map[ocpp201.Action]bool{
	ocpp201.ActionRequestStartTransaction: true,
	ocpp201.ActionRequestStopTransaction:  true,
}

// HandleIncoming 处理一条入站CSMS命令
func (s *Service) HandleIncoming(messageID, action string, payload json.RawMessage) {
	ctx := context.Background()

	response, err := s.dispatch(ctx, ocpp201.Action(action), payload)
	if err != nil {
		ocppErr := wire.AsError(err)
		s.log.Errorf("Request %s (%s) failed: %v", messageID, action, ocppErr)
		metrics.CallErrors.WithLabelValues(s.station.ID(), string(ocppErr.Code)).Inc()
		if sendErr := s.router.SendCallError(messageID, ocppErr); sendErr != nil {
			s.log.Errorf("Failed to send CallError for %s: %v", messageID, sendErr)
		}
		s.publish(events.EventTypeActionProcessed, &events.ActionProcessedPayload{
			Action: action, MessageID: messageID, Success: false, ErrorCode: string(ocppErr.Code),
		})
		return
	}

	if sendErr := s.router.SendCallResult(messageID, response); sendErr != nil {
		s.log.Errorf("Failed to send CallResult for %s: %v", messageID, sendErr)
		return
	}

	// 应答发出后联动外围副作用
	s.afterReply(ocpp201.Action(action), response)

	s.publish(events.EventTypeActionProcessed, &events.ActionProcessedPayload{
		Action: action, MessageID: messageID, Success: true,
	})
}

// afterReply 同步应答后的联动：GetBaseReport触发NotifyReport序列
func (s *Service) afterReply(action ocpp201.Action, response interface{}) {
	if action != ocpp201.ActionGetBaseReport {
		return
	}
	report, ok := response.(*ocpp201.GetBaseReportResponse)
	if !ok || report.Status != ocpp201.GenericDeviceModelStatusAccepted {
		return
	}

	s.mu.Lock()
	if len(s.pendingReports) == 0 {
		s.mu.Unlock()
		return
	}
	requestID := s.pendingReports[0]
	s.pendingReports = s.pendingReports[1:]
	s.mu.Unlock()

	s.runAsync("notify-report", func() {
		s.sendNotifyReportSequence(context.Background(), requestID)
	})
}

// dispatch 命令分发管线
func (s *Service) dispatch(ctx context.Context, action ocpp201.Action, payload json.RawMessage) (interface{}, error) {
	// 1. 注册门：2.0.1允许Pending状态处理命令，远程启停在严格模式下除外
	if err := s.checkRegistrationGate(action); err != nil {
		return nil, err
	}

	// 2. 支持检查
	handler, registered := s.handlers[action]
	if !registered {
		return nil, wire.NewError(wire.ErrNotImplemented, "unsupported action "+string(action))
	}

	// 3. 载荷校验
	request := ocpp201.NewRequest(action)
	if request == nil {
		return nil, wire.NewError(wire.ErrNotImplemented, "unsupported action "+string(action))
	}
	if err := json.Unmarshal(payload, request); err != nil {
		return nil, wire.NewError(wire.ErrFormationViolation, "malformed payload: "+err.Error())
	}
	if err := s.validator.ValidateStruct(request); err != nil {
		return nil, wire.NewErrorWithDetails(wire.ErrFormationViolation, "payload validation failed", err.Error())
	}

	// 4. 分发
	return handler(ctx, request, rawSize(payload))
}

// checkRegistrationGate 注册状态前置检查
func (s *Service) checkRegistrationGate(action ocpp201.Action) error {
	strict := s.station.StrictCompliance()

	if remoteCommands[action] && s.station.InPendingState() && strict {
		return wire.NewError(wire.ErrSecurityError, "station registration is Pending")
	}

	accepted := s.station.InAcceptedState()
	pending := s.station.InPendingState()
	unknownTolerated := s.station.InUnknownState() && !strict
	if !accepted && !pending && !unknownTolerated {
		return wire.NewError(wire.ErrSecurityError, "station not registered (state "+string(s.station.Registration())+")")
	}
	return nil
}
