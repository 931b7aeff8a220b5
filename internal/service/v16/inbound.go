package v16

import (
	"context"
	"encoding/json"

	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
)

// remoteCommands 注册门在Pending状态下额外拦截的命令
var remoteCommands = map[ocpp16.Action]bool{
	ocpp16.ActionRemoteStartTransaction: true,
	ocpp16.ActionRemoteStopTransaction:  true,
}

// HandleIncoming 处理一条入站CSMS命令：注册门、支持检查、载荷校验、分发、应答
func (s *Service) HandleIncoming(messageID, action string, payload json.RawMessage) {
	ctx := context.Background()

	response, err := s.dispatch(ctx, messageID, ocpp16.Action(action), payload)
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

	// 应答发出后发布事件，供外围观察者联动
	s.publish(events.EventTypeActionProcessed, &events.ActionProcessedPayload{
		Action: action, MessageID: messageID, Success: true,
	})
}

// dispatch 命令分发管线
func (s *Service) dispatch(ctx context.Context, messageID string, action ocpp16.Action, payload json.RawMessage) (interface{}, error) {
	// 1. 注册门
	if err := s.checkRegistrationGate(action); err != nil {
		return nil, err
	}

	// 2. 支持检查
	handler, registered := s.handlers[action]
	if !registered || !s.profileEnabled(action) {
		return nil, wire.NewError(wire.ErrNotImplemented, "unsupported action "+string(action))
	}

	// 3. 载荷校验
	request := ocpp16.NewRequest(action)
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
	return handler(ctx, request)
}

// checkRegistrationGate 注册状态前置检查
func (s *Service) checkRegistrationGate(action ocpp16.Action) error {
	registration := s.station.Registration()
	strict := s.station.StrictCompliance()

	if remoteCommands[action] && s.station.InPendingState() && strict {
		return wire.NewError(wire.ErrSecurityError, "station registration is Pending")
	}

	accepted := s.station.InAcceptedState()
	unknownTolerated := s.station.InUnknownState() && !strict
	if !accepted && !unknownTolerated {
		return wire.NewError(wire.ErrSecurityError, "station not registered (state "+string(registration)+")")
	}
	return nil
}
