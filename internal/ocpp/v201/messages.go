package v201

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargingStation ChargingStation `json:"chargingStation" validate:"required"`
	Reason          BootReason      `json:"reason" validate:"required"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"min=0"`
	Status      RegistrationStatus `json:"status" validate:"required"`
	StatusInfo  *StatusInfo        `json:"statusInfo,omitempty"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	Timestamp       DateTime        `json:"timestamp" validate:"required"`
	ConnectorStatus ConnectorStatus `json:"connectorStatus" validate:"required"`
	EvseId          int             `json:"evseId" validate:"min=0"`
	ConnectorId     int             `json:"connectorId" validate:"min=0"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// TransactionEventRequest 交易事件请求
type TransactionEventRequest struct {
	EventType          TransactionEventType `json:"eventType" validate:"required"`
	MeterValue         []MeterValue         `json:"meterValue,omitempty" validate:"omitempty,min=1,dive"`
	Timestamp          DateTime             `json:"timestamp" validate:"required"`
	TriggerReason      TriggerReason        `json:"triggerReason" validate:"required"`
	SeqNo              int                  `json:"seqNo" validate:"min=0"`
	Offline            *bool                `json:"offline,omitempty"`
	NumberOfPhasesUsed *int                 `json:"numberOfPhasesUsed,omitempty" validate:"omitempty,min=1,max=3"`
	CableMaxCurrent    *int                 `json:"cableMaxCurrent,omitempty"`
	ReservationId      *int                 `json:"reservationId,omitempty"`
	TransactionInfo    Transaction          `json:"transactionInfo" validate:"required"`
	Evse               *EVSE                `json:"evse,omitempty"`
	IdToken            *IdToken             `json:"idToken,omitempty"`
	CustomData         interface{}          `json:"customData,omitempty"`
}

// TransactionEventResponse 交易事件响应
type TransactionEventResponse struct {
	TotalCost              *float64    `json:"totalCost,omitempty"`
	ChargingPriority       *int        `json:"chargingPriority,omitempty" validate:"omitempty,min=-9,max=9"`
	IdTokenInfo            *IdTokenInfo `json:"idTokenInfo,omitempty"`
	UpdatedPersonalMessage interface{} `json:"updatedPersonalMessage,omitempty"`
}

// AuthorizationStatus 授权状态
type AuthorizationStatus string

const (
	AuthorizationStatusAccepted     AuthorizationStatus = "Accepted"
	AuthorizationStatusBlocked      AuthorizationStatus = "Blocked"
	AuthorizationStatusConcurrentTx AuthorizationStatus = "ConcurrentTx"
	AuthorizationStatusExpired      AuthorizationStatus = "Expired"
	AuthorizationStatusInvalid      AuthorizationStatus = "Invalid"
	AuthorizationStatusUnknown      AuthorizationStatus = "Unknown"
)

// IdTokenInfo 令牌授权信息
type IdTokenInfo struct {
	Status              AuthorizationStatus `json:"status" validate:"required"`
	CacheExpiryDateTime *DateTime           `json:"cacheExpiryDateTime,omitempty"`
	GroupIdToken        *IdToken            `json:"groupIdToken,omitempty"`
}

// ClearCacheRequest 清除缓存请求
type ClearCacheRequest struct{}

// ClearCacheResponse 清除缓存响应
type ClearCacheResponse struct {
	Status     ClearCacheStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo      `json:"statusInfo,omitempty"`
}

// ResetRequest 重置请求
type ResetRequest struct {
	Type   ResetType `json:"type" validate:"required"`
	EvseId *int      `json:"evseId,omitempty" validate:"omitempty,min=1"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status     ResetStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo `json:"statusInfo,omitempty"`
}

// RequestStartTransactionRequest 远程开始交易请求
type RequestStartTransactionRequest struct {
	EvseId          *int             `json:"evseId,omitempty" validate:"omitempty,min=1"`
	RemoteStartId   int              `json:"remoteStartId"`
	IdToken         IdToken          `json:"idToken" validate:"required"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
	GroupIdToken    *IdToken         `json:"groupIdToken,omitempty"`
}

// RequestStartTransactionResponse 远程开始交易响应
type RequestStartTransactionResponse struct {
	Status        RequestStartStopStatus `json:"status" validate:"required"`
	TransactionId *string                `json:"transactionId,omitempty" validate:"omitempty,max=36"`
	StatusInfo    *StatusInfo            `json:"statusInfo,omitempty"`
}

// RequestStopTransactionRequest 远程停止交易请求
type RequestStopTransactionRequest struct {
	TransactionId string `json:"transactionId" validate:"required,max=36"`
}

// RequestStopTransactionResponse 远程停止交易响应
type RequestStopTransactionResponse struct {
	Status     RequestStartStopStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo            `json:"statusInfo,omitempty"`
}

// GetVariablesRequest 变量读取请求
type GetVariablesRequest struct {
	GetVariableData []GetVariableData `json:"getVariableData" validate:"required,min=1,dive"`
}

// GetVariablesResponse 变量读取响应
type GetVariablesResponse struct {
	GetVariableResult []GetVariableResult `json:"getVariableResult" validate:"required,min=1,dive"`
}

// SetVariablesRequest 变量写入请求
type SetVariablesRequest struct {
	SetVariableData []SetVariableData `json:"setVariableData" validate:"required,min=1,dive"`
}

// SetVariablesResponse 变量写入响应
type SetVariablesResponse struct {
	SetVariableResult []SetVariableResult `json:"setVariableResult" validate:"required,min=1,dive"`
}

// GetBaseReportRequest 基础报告请求
type GetBaseReportRequest struct {
	RequestId  int        `json:"requestId"`
	ReportBase ReportBase `json:"reportBase" validate:"required"`
}

// GetBaseReportResponse 基础报告响应
type GetBaseReportResponse struct {
	Status     GenericDeviceModelStatus `json:"status" validate:"required"`
	StatusInfo *StatusInfo              `json:"statusInfo,omitempty"`
}

// NotifyReportRequest 报告推送请求
type NotifyReportRequest struct {
	RequestId   int          `json:"requestId"`
	GeneratedAt DateTime     `json:"generatedAt" validate:"required"`
	ReportData  []ReportData `json:"reportData,omitempty" validate:"omitempty,dive"`
	Tbc         bool         `json:"tbc"`
	SeqNo       int          `json:"seqNo" validate:"min=0"`
}

// NotifyReportResponse 报告推送响应
type NotifyReportResponse struct{}
