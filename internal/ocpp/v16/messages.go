package v16

// BootNotificationRequest 启动通知请求
type BootNotificationRequest struct {
	ChargePointVendor       string  `json:"chargePointVendor" validate:"required,max=20"`
	ChargePointModel        string  `json:"chargePointModel" validate:"required,max=20"`
	ChargePointSerialNumber *string `json:"chargePointSerialNumber,omitempty" validate:"omitempty,max=25"`
	ChargeBoxSerialNumber   *string `json:"chargeBoxSerialNumber,omitempty" validate:"omitempty,max=25"`
	FirmwareVersion         *string `json:"firmwareVersion,omitempty" validate:"omitempty,max=50"`
	Iccid                   *string `json:"iccid,omitempty" validate:"omitempty,max=20"`
	Imsi                    *string `json:"imsi,omitempty" validate:"omitempty,max=20"`
	MeterType               *string `json:"meterType,omitempty" validate:"omitempty,max=25"`
	MeterSerialNumber       *string `json:"meterSerialNumber,omitempty" validate:"omitempty,max=25"`
}

// BootNotificationResponse 启动通知响应
type BootNotificationResponse struct {
	Status      RegistrationStatus `json:"status" validate:"required"`
	CurrentTime DateTime           `json:"currentTime" validate:"required"`
	Interval    int                `json:"interval" validate:"min=0"`
}

// HeartbeatRequest 心跳请求
type HeartbeatRequest struct{}

// HeartbeatResponse 心跳响应
type HeartbeatResponse struct {
	CurrentTime DateTime `json:"currentTime" validate:"required"`
}

// StatusNotificationRequest 状态通知请求
type StatusNotificationRequest struct {
	ConnectorId     int                  `json:"connectorId" validate:"min=0"`
	ErrorCode       ChargePointErrorCode `json:"errorCode" validate:"required"`
	Info            *string              `json:"info,omitempty" validate:"omitempty,max=50"`
	Status          ChargePointStatus    `json:"status" validate:"required"`
	Timestamp       *DateTime            `json:"timestamp,omitempty"`
	VendorId        *string              `json:"vendorId,omitempty" validate:"omitempty,max=255"`
	VendorErrorCode *string              `json:"vendorErrorCode,omitempty" validate:"omitempty,max=50"`
}

// StatusNotificationResponse 状态通知响应
type StatusNotificationResponse struct{}

// AuthorizeRequest 授权请求
type AuthorizeRequest struct {
	IdTag string `json:"idTag" validate:"required,max=20"`
}

// AuthorizeResponse 授权响应
type AuthorizeResponse struct {
	IdTagInfo IdTagInfo `json:"idTagInfo" validate:"required"`
}

// StartTransactionRequest 开始交易请求
type StartTransactionRequest struct {
	ConnectorId   int      `json:"connectorId" validate:"required,min=1"`
	IdTag         string   `json:"idTag" validate:"required,max=20"`
	MeterStart    int      `json:"meterStart" validate:"min=0"`
	ReservationId *int     `json:"reservationId,omitempty"`
	Timestamp     DateTime `json:"timestamp" validate:"required"`
}

// StartTransactionResponse 开始交易响应
type StartTransactionResponse struct {
	IdTagInfo     IdTagInfo `json:"idTagInfo" validate:"required"`
	TransactionId int       `json:"transactionId"`
}

// StopTransactionRequest 停止交易请求
type StopTransactionRequest struct {
	IdTag           *string      `json:"idTag,omitempty" validate:"omitempty,max=20"`
	MeterStop       int          `json:"meterStop" validate:"min=0"`
	Timestamp       DateTime     `json:"timestamp" validate:"required"`
	TransactionId   int          `json:"transactionId"`
	Reason          *Reason      `json:"reason,omitempty"`
	TransactionData []MeterValue `json:"transactionData,omitempty" validate:"omitempty,dive"`
}

// StopTransactionResponse 停止交易响应
type StopTransactionResponse struct {
	IdTagInfo *IdTagInfo `json:"idTagInfo,omitempty"`
}

// MeterValuesRequest 电表值请求
type MeterValuesRequest struct {
	ConnectorId   int          `json:"connectorId" validate:"min=0"`
	TransactionId *int         `json:"transactionId,omitempty"`
	MeterValue    []MeterValue `json:"meterValue" validate:"required,min=1,dive"`
}

// MeterValuesResponse 电表值响应
type MeterValuesResponse struct{}

// DataTransferRequest 数据传输请求
type DataTransferRequest struct {
	VendorId  string      `json:"vendorId" validate:"required,max=255"`
	MessageId *string     `json:"messageId,omitempty" validate:"omitempty,max=50"`
	Data      interface{} `json:"data,omitempty"`
}

// DataTransferResponse 数据传输响应
type DataTransferResponse struct {
	Status DataTransferStatus `json:"status" validate:"required"`
	Data   interface{}        `json:"data,omitempty"`
}

// ResetRequest 重置请求
type ResetRequest struct {
	Type ResetType `json:"type" validate:"required"`
}

// ResetResponse 重置响应
type ResetResponse struct {
	Status ResetStatus `json:"status" validate:"required"`
}

// ChangeAvailabilityRequest 改变可用性请求
type ChangeAvailabilityRequest struct {
	ConnectorId int              `json:"connectorId" validate:"min=0"`
	Type        AvailabilityType `json:"type" validate:"required"`
}

// ChangeAvailabilityResponse 改变可用性响应
type ChangeAvailabilityResponse struct {
	Status AvailabilityStatus `json:"status" validate:"required"`
}

// GetConfigurationRequest 获取配置请求
type GetConfigurationRequest struct {
	Key []string `json:"key,omitempty" validate:"omitempty,dive,max=50"`
}

// GetConfigurationResponse 获取配置响应
type GetConfigurationResponse struct {
	ConfigurationKey []KeyValue `json:"configurationKey,omitempty"`
	UnknownKey       []string   `json:"unknownKey,omitempty"`
}

// ChangeConfigurationRequest 改变配置请求
type ChangeConfigurationRequest struct {
	Key   string `json:"key" validate:"required,max=50"`
	Value string `json:"value" validate:"max=500"`
}

// ChangeConfigurationResponse 改变配置响应
type ChangeConfigurationResponse struct {
	Status ConfigurationStatus `json:"status" validate:"required"`
}

// ClearCacheRequest 清除缓存请求
type ClearCacheRequest struct{}

// ClearCacheResponse 清除缓存响应
type ClearCacheResponse struct {
	Status ClearCacheStatus `json:"status" validate:"required"`
}

// UnlockConnectorRequest 解锁连接器请求
type UnlockConnectorRequest struct {
	ConnectorId int `json:"connectorId" validate:"required,min=1"`
}

// UnlockConnectorResponse 解锁连接器响应
type UnlockConnectorResponse struct {
	Status UnlockStatus `json:"status" validate:"required"`
}

// RemoteStartTransactionRequest 远程开始交易请求
type RemoteStartTransactionRequest struct {
	ConnectorId     *int             `json:"connectorId,omitempty" validate:"omitempty,min=1"`
	IdTag           string           `json:"idTag" validate:"required,max=20"`
	ChargingProfile *ChargingProfile `json:"chargingProfile,omitempty"`
}

// RemoteStartTransactionResponse 远程开始交易响应
type RemoteStartTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

// RemoteStopTransactionRequest 远程停止交易请求
type RemoteStopTransactionRequest struct {
	TransactionId int `json:"transactionId"`
}

// RemoteStopTransactionResponse 远程停止交易响应
type RemoteStopTransactionResponse struct {
	Status RemoteStartStopStatus `json:"status" validate:"required"`
}

// TriggerMessageRequest 触发消息请求
type TriggerMessageRequest struct {
	RequestedMessage MessageTrigger `json:"requestedMessage" validate:"required"`
	ConnectorId      *int           `json:"connectorId,omitempty" validate:"omitempty,min=1"`
}

// TriggerMessageResponse 触发消息响应
type TriggerMessageResponse struct {
	Status TriggerMessageStatus `json:"status" validate:"required"`
}

// GetDiagnosticsRequest 获取诊断请求
type GetDiagnosticsRequest struct {
	Location      string    `json:"location" validate:"required"`
	Retries       *int      `json:"retries,omitempty" validate:"omitempty,min=0"`
	RetryInterval *int      `json:"retryInterval,omitempty" validate:"omitempty,min=0"`
	StartTime     *DateTime `json:"startTime,omitempty"`
	StopTime      *DateTime `json:"stopTime,omitempty"`
}

// GetDiagnosticsResponse 获取诊断响应
type GetDiagnosticsResponse struct {
	FileName *string `json:"fileName,omitempty" validate:"omitempty,max=255"`
}

// DiagnosticsStatusNotificationRequest 诊断状态通知请求
type DiagnosticsStatusNotificationRequest struct {
	Status DiagnosticsStatus `json:"status" validate:"required"`
}

// DiagnosticsStatusNotificationResponse 诊断状态通知响应
type DiagnosticsStatusNotificationResponse struct{}

// FirmwareStatusNotificationRequest 固件状态通知请求
type FirmwareStatusNotificationRequest struct {
	Status FirmwareStatus `json:"status" validate:"required"`
}

// FirmwareStatusNotificationResponse 固件状态通知响应
type FirmwareStatusNotificationResponse struct{}

// UpdateFirmwareRequest 固件升级请求
type UpdateFirmwareRequest struct {
	Location      string   `json:"location" validate:"required"`
	Retries       *int     `json:"retries,omitempty" validate:"omitempty,min=0"`
	RetrieveDate  DateTime `json:"retrieveDate" validate:"required"`
	RetryInterval *int     `json:"retryInterval,omitempty" validate:"omitempty,min=0"`
}

// UpdateFirmwareResponse 固件升级响应
type UpdateFirmwareResponse struct{}

// ReserveNowRequest 预约请求
type ReserveNowRequest struct {
	ConnectorId   int      `json:"connectorId" validate:"min=0"`
	ExpiryDate    DateTime `json:"expiryDate" validate:"required"`
	IdTag         string   `json:"idTag" validate:"required,max=20"`
	ParentIdTag   *string  `json:"parentIdTag,omitempty" validate:"omitempty,max=20"`
	ReservationId int      `json:"reservationId"`
}

// ReserveNowResponse 预约响应
type ReserveNowResponse struct {
	Status ReservationStatus `json:"status" validate:"required"`
}

// CancelReservationRequest 取消预约请求
type CancelReservationRequest struct {
	ReservationId int `json:"reservationId"`
}

// CancelReservationResponse 取消预约响应
type CancelReservationResponse struct {
	Status CancelReservationStatus `json:"status" validate:"required"`
}
