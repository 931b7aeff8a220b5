package station

import (
	"encoding/json"
	"time"

	v16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// QueuedTransactionEvent 离线期间排队的TransactionEvent
type QueuedTransactionEvent struct {
	Request   *v201.TransactionEventRequest
	SeqNo     int
	Timestamp time.Time
}

// Connector 连接器可变状态记录
type Connector struct {
	ID int

	// 状态，两个方言各维护一份
	Status16  v16.ChargePointStatus
	Status201 v201.ConnectorStatus

	Availability v16.AvailabilityType

	// 交易状态
	TransactionStarted       bool
	TransactionID            int    // V16整数交易ID
	TransactionID201         string // V201 UUID交易ID
	TransactionIdTag         string
	TransactionStart         time.Time
	TransactionRemoteStarted bool
	RemoteStartID            int

	// 电表寄存器，单位Wh
	EnergyActiveImportRegister            int64
	TransactionEnergyActiveImportRegister int64

	// 授权状态
	AuthorizeIdTag       string
	LocalAuthorizeIdTag  string
	IdTagAuthorized      bool
	IdTagLocalAuthorized bool

	// 充电配置
	ChargingProfiles    []v16.ChargingProfile
	ChargingProfiles201 []v201.ChargingProfile

	// V201交易事件序列与首发标记
	TransactionSeqNo       *int
	TransactionEvseSent    bool
	TransactionIdTokenSent bool

	// V201离线队列
	TransactionEventQueue []QueuedTransactionEvent

	// 预约
	ReservationID    *int
	ReservationIdTag string
	ReservationExpiry time.Time

	// 回滚用的前一状态
	previousStatus16  v16.ChargePointStatus
	previousStatus201 v201.ConnectorStatus
}

// NewConnector 创建初始状态的连接器
func NewConnector(id int) *Connector {
	return &Connector{
		ID:           id,
		Status16:     v16.ChargePointStatusAvailable,
		Status201:    v201.ConnectorStatusAvailable,
		Availability: v16.AvailabilityTypeOperative,
	}
}

// IsOperative 连接器是否可用
func (c *Connector) IsOperative() bool {
	return c.Availability == v16.AvailabilityTypeOperative
}

// SaveStatus 记录当前状态，供失败回滚
func (c *Connector) SaveStatus() {
	c.previousStatus16 = c.Status16
	c.previousStatus201 = c.Status201
}

// RestoreStatus 恢复SaveStatus记录的状态
func (c *Connector) RestoreStatus() {
	if c.previousStatus16 != "" {
		c.Status16 = c.previousStatus16
	}
	if c.previousStatus201 != "" {
		c.Status201 = c.previousStatus201
	}
}

// ResetTransaction 清除全部交易字段
func (c *Connector) ResetTransaction() {
	c.TransactionStarted = false
	c.TransactionID = 0
	c.TransactionID201 = ""
	c.TransactionIdTag = ""
	c.TransactionStart = time.Time{}
	c.TransactionRemoteStarted = false
	c.RemoteStartID = 0
	c.TransactionEnergyActiveImportRegister = 0
	c.AuthorizeIdTag = ""
	c.LocalAuthorizeIdTag = ""
	c.IdTagAuthorized = false
	c.IdTagLocalAuthorized = false
	c.TransactionSeqNo = nil
	c.TransactionEvseSent = false
	c.TransactionIdTokenSent = false
}

// NextSeqNo 取下一个交易事件序号：首次为0，其后递增
func (c *Connector) NextSeqNo() int {
	if c.TransactionSeqNo == nil {
		zero := 0
		c.TransactionSeqNo = &zero
		return 0
	}
	next := *c.TransactionSeqNo + 1
	c.TransactionSeqNo = &next
	return next
}

// EnqueueTransactionEvent 离线时排队交易事件
func (c *Connector) EnqueueTransactionEvent(req *v201.TransactionEventRequest, now time.Time) {
	c.TransactionEventQueue = append(c.TransactionEventQueue, QueuedTransactionEvent{
		Request:   req,
		SeqNo:     req.SeqNo,
		Timestamp: now,
	})
}

// DrainTransactionEventQueue 取走队列快照并清空
func (c *Connector) DrainTransactionEventQueue() []QueuedTransactionEvent {
	queue := c.TransactionEventQueue
	c.TransactionEventQueue = nil
	return queue
}

// Clone 深拷贝连接器状态，UI/调试快照用
func (c *Connector) Clone() *Connector {
	data, err := json.Marshal(c)
	if err != nil {
		clone := *c
		return &clone
	}
	var clone Connector
	if err := json.Unmarshal(data, &clone); err != nil {
		shallow := *c
		return &shallow
	}
	return &clone
}

// Evse EVSE及其连接器
type Evse struct {
	ID           int
	Availability v201.OperationalStatus
	Connectors   []int
}

// NewEvse 创建初始状态的EVSE
func NewEvse(id int, connectors []int) *Evse {
	return &Evse{
		ID:           id,
		Availability: v201.OperationalStatusOperative,
		Connectors:   connectors,
	}
}
