package router

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/metrics"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/wire"
)

// Transport 站点到CSMS的传输层窄接口
type Transport interface {
	Send(data []byte) error
	IsOpen() bool
}

// InboundHandler 入站CALL帧的处理回调
type InboundHandler func(messageID, action string, payload json.RawMessage)

// SendOptions 发送选项
type SendOptions struct {
	SkipBufferingOnError bool
	TriggerMessage       bool
	Timeout              time.Duration
}

// callResult 挂起请求的应答
type callResult struct {
	payload json.RawMessage
	err     *wire.Error
}

// pendingCall 挂起的出站请求
type pendingCall struct {
	messageID string
	action    string
	resultCh  chan callResult
	createdAt time.Time
}

// bufferedCall 套接字断开期间缓存的出站帧
type bufferedCall struct {
	messageID string
	data      []byte
}

// Router 单站点消息路由器：帧编解码、消息ID关联、断线缓冲
type Router struct {
	stationID string
	transport Transport

	pending map[string]*pendingCall
	buffer  []bufferedCall
	mu      sync.Mutex

	inbound        InboundHandler
	defaultTimeout time.Duration
	newMessageID   func() string
	stopped        bool

	logger *logger.Logger
}

// New 创建站点路由器
func New(stationID string, transport Transport, defaultTimeout time.Duration, log *logger.Logger) *Router {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}
	if defaultTimeout <= 0 {
		defaultTimeout = 30 * time.Second
	}

	return &Router{
		stationID:      stationID,
		transport:      transport,
		pending:        make(map[string]*pendingCall),
		defaultTimeout: defaultTimeout,
		newMessageID:   func() string { return uuid.New().String() },
		logger:         log.WithStation(stationID),
	}
}

// SetInboundHandler 设置入站CALL处理回调
func (r *Router) SetInboundHandler(handler InboundHandler) {
	r.inbound = handler
}

// SetMessageIDFactory 覆盖消息ID生成器，测试注入用
func (r *Router) SetMessageIDFactory(factory func() string) {
	r.newMessageID = factory
}

// Call 发送CALL帧并等待关联应答
func (r *Router) Call(ctx context.Context, action string, payload interface{}, opts *SendOptions) (json.RawMessage, error) {
	if opts == nil {
		opts = &SendOptions{}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.defaultTimeout
	}

	messageID := r.newMessageID()
	data, err := wire.MarshalCall(messageID, action, payload)
	if err != nil {
		return nil, wire.NewError(wire.ErrInternalError, err.Error())
	}

	call := &pendingCall{
		messageID: messageID,
		action:    action,
		resultCh:  make(chan callResult, 1),
		createdAt: time.Now(),
	}

	r.mu.Lock()
	if r.stopped {
		r.mu.Unlock()
		return nil, wire.NewError(wire.ErrCancelled, "router stopped")
	}
	r.pending[messageID] = call
	r.mu.Unlock()

	if sendErr := r.sendOrBuffer(messageID, data, opts.SkipBufferingOnError); sendErr != nil {
		r.removePending(messageID)
		return nil, sendErr
	}

	metrics.MessagesSent.WithLabelValues(r.stationID, action).Inc()

	select {
	case result := <-call.resultCh:
		if result.err != nil {
			return nil, result.err
		}
		return result.payload, nil
	case <-time.After(timeout):
		r.removePending(messageID)
		r.logger.Warnf("Request %s (%s) timed out after %v", messageID, action, timeout)
		return nil, wire.NewError(wire.ErrTimeout, "no response for "+action)
	case <-ctx.Done():
		r.removePending(messageID)
		return nil, wire.NewError(wire.ErrCancelled, ctx.Err().Error())
	}
}

// sendOrBuffer 发送帧，套接字断开时按策略缓冲
func (r *Router) sendOrBuffer(messageID string, data []byte, skipBuffering bool) error {
	if r.transport.IsOpen() {
		if err := r.transport.Send(data); err == nil {
			return nil
		} else if skipBuffering {
			return wire.NewError(wire.ErrGenericError, err.Error())
		}
	} else if skipBuffering {
		return wire.NewError(wire.ErrGenericError, "websocket closed")
	}

	r.mu.Lock()
	r.buffer = append(r.buffer, bufferedCall{messageID: messageID, data: data})
	buffered := len(r.buffer)
	r.mu.Unlock()

	metrics.MessagesBuffered.WithLabelValues(r.stationID).Inc()
	r.logger.Debugf("Buffered outgoing request %s (%d pending in buffer)", messageID, buffered)
	return nil
}

// SendCallResult 发送CALLRESULT帧
func (r *Router) SendCallResult(messageID string, payload interface{}) error {
	data, err := wire.MarshalCallResult(messageID, payload)
	if err != nil {
		return wire.NewError(wire.ErrInternalError, err.Error())
	}
	return r.transport.Send(data)
}

// SendCallError 发送CALLERROR帧
func (r *Router) SendCallError(messageID string, ocppErr *wire.Error) error {
	data, err := wire.MarshalCallError(messageID, ocppErr)
	if err != nil {
		return wire.NewError(wire.ErrInternalError, err.Error())
	}
	return r.transport.Send(data)
}

// HandleFrame 处理一帧入站数据
func (r *Router) HandleFrame(data []byte) {
	frame, err := wire.Unmarshal(data)
	if err != nil {
		// 尽力提取消息ID以便回CALLERROR
		messageID := extractMessageID(data)
		r.logger.Warnf("Malformed frame received: %v", err)
		if messageID != "" {
			if sendErr := r.SendCallError(messageID, wire.AsError(err)); sendErr != nil {
				r.logger.Errorf("Failed to send FormationViolation: %v", sendErr)
			}
		}
		return
	}

	switch frame.Type {
	case wire.Call:
		metrics.MessagesReceived.WithLabelValues(r.stationID, frame.Action).Inc()
		if r.inbound == nil {
			r.logger.Errorf("No inbound handler set, dropping %s", frame.Action)
			return
		}
		r.inbound(frame.MessageID, frame.Action, frame.Payload)

	case wire.CallResult:
		r.deliver(frame.MessageID, callResult{payload: frame.Payload})

	case wire.CallError:
		r.deliver(frame.MessageID, callResult{
			err: wire.NewErrorWithDetails(wire.ErrorCode(frame.ErrorCode), frame.ErrorDescription, frame.ErrorDetails),
		})
	}
}

// deliver 将应答投递给挂起的等待者，未知消息ID记录后丢弃
func (r *Router) deliver(messageID string, result callResult) {
	r.mu.Lock()
	call, exists := r.pending[messageID]
	if exists {
		delete(r.pending, messageID)
	}
	r.mu.Unlock()

	if !exists {
		r.logger.Warnf("Reply for unknown message id %s, dropping", messageID)
		return
	}

	call.resultCh <- result
}

// OnReconnect 套接字重连后按序重放缓冲的出站帧
func (r *Router) OnReconnect() {
	r.mu.Lock()
	replaying := r.buffer
	r.buffer = nil
	r.mu.Unlock()

	for _, buffered := range replaying {
		if err := r.transport.Send(buffered.data); err != nil {
			r.logger.Errorf("Failed to replay buffered request %s: %v", buffered.messageID, err)
			continue
		}
		r.logger.Debugf("Replayed buffered request %s", buffered.messageID)
	}
}

// IsTransportOpen 传输层是否在线
func (r *Router) IsTransportOpen() bool {
	return r.transport.IsOpen()
}

// PendingCount 当前挂起请求数量
func (r *Router) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// BufferedCount 当前缓冲帧数量
func (r *Router) BufferedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buffer)
}

// Stop 停止路由器，挂起请求全部以Cancelled失败
func (r *Router) Stop() {
	r.mu.Lock()
	r.stopped = true
	pending := r.pending
	r.pending = make(map[string]*pendingCall)
	r.buffer = nil
	r.mu.Unlock()

	for _, call := range pending {
		call.resultCh <- callResult{err: wire.NewError(wire.ErrCancelled, "station stopping")}
	}
}

// removePending 移除挂起请求
func (r *Router) removePending(messageID string) {
	r.mu.Lock()
	delete(r.pending, messageID)
	r.mu.Unlock()
}

// extractMessageID 从原始帧中尽力提取消息ID
func extractMessageID(data []byte) string {
	var elements []json.RawMessage
	if err := json.Unmarshal(data, &elements); err != nil || len(elements) < 2 {
		return ""
	}
	var messageID string
	if err := json.Unmarshal(elements[1], &messageID); err != nil {
		return ""
	}
	return messageID
}
