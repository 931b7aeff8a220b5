package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// EventType 事件类型
type EventType string

const (
	// 站点生命周期事件
	EventTypeStationConnected    EventType = "station.connected"
	EventTypeStationDisconnected EventType = "station.disconnected"
	EventTypeStationRegistered   EventType = "station.registered"

	// 状态事件
	EventTypeConnectorStatusChanged EventType = "connector.status_changed"

	// 交易事件
	EventTypeTransactionStarted EventType = "transaction.started"
	EventTypeTransactionStopped EventType = "transaction.stopped"

	// 命令处理事件，应答发出后发布
	EventTypeActionProcessed EventType = "action.processed"

	// 固件与诊断事件
	EventTypeFirmwareStatusChanged    EventType = "firmware.status_changed"
	EventTypeDiagnosticsStatusChanged EventType = "diagnostics.status_changed"
)

// Event 站点业务事件
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	StationID string      `json:"station_id"`
	Timestamp time.Time   `json:"timestamp"`
	Payload   interface{} `json:"payload,omitempty"`
}

// ToJSON 序列化为JSON
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// StatusChangedPayload 状态变更载荷
type StatusChangedPayload struct {
	ConnectorID int    `json:"connector_id"`
	From        string `json:"from"`
	To          string `json:"to"`
}

// TransactionPayload 交易事件载荷
type TransactionPayload struct {
	ConnectorID   int    `json:"connector_id"`
	TransactionID string `json:"transaction_id"`
	IdTag         string `json:"id_tag,omitempty"`
	MeterValue    int64  `json:"meter_value,omitempty"`
}

// ActionProcessedPayload 命令处理载荷
type ActionProcessedPayload struct {
	Action    string `json:"action"`
	MessageID string `json:"message_id"`
	Success   bool   `json:"success"`
	ErrorCode string `json:"error_code,omitempty"`
}

// Factory 事件工厂
type Factory struct{}

// NewFactory 创建事件工厂
func NewFactory() *Factory {
	return &Factory{}
}

// New 创建事件
func (f *Factory) New(eventType EventType, stationID string, payload interface{}) *Event {
	return &Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		StationID: stationID,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

// Bus 进程内事件总线：有界通道，满时丢弃并计数
type Bus struct {
	ch      chan *Event
	dropped int64
}

// NewBus 创建事件总线
func NewBus(size int) *Bus {
	if size <= 0 {
		size = 1024
	}
	return &Bus{ch: make(chan *Event, size)}
}

// Publish 发布事件，通道满时丢弃
func (b *Bus) Publish(event *Event) bool {
	select {
	case b.ch <- event:
		return true
	default:
		b.dropped++
		return false
	}
}

// Events 订阅通道
func (b *Bus) Events() <-chan *Event {
	return b.ch
}

// Close 关闭总线
func (b *Bus) Close() {
	close(b.ch)
}
