package v16

// ChargingProfilePurpose 充电配置目的
type ChargingProfilePurpose string

const (
	ChargingProfilePurposeChargePointMaxProfile ChargingProfilePurpose = "ChargePointMaxProfile"
	ChargingProfilePurposeTxDefaultProfile      ChargingProfilePurpose = "TxDefaultProfile"
	ChargingProfilePurposeTxProfile             ChargingProfilePurpose = "TxProfile"
)

// ChargingProfileKind 充电配置类型
type ChargingProfileKind string

const (
	ChargingProfileKindAbsolute  ChargingProfileKind = "Absolute"
	ChargingProfileKindRecurring ChargingProfileKind = "Recurring"
	ChargingProfileKindRelative  ChargingProfileKind = "Relative"
)

// RecurrencyKind 重复类型
type RecurrencyKind string

const (
	RecurrencyKindDaily  RecurrencyKind = "Daily"
	RecurrencyKindWeekly RecurrencyKind = "Weekly"
)

// ChargingRateUnit 充电速率单位
type ChargingRateUnit string

const (
	ChargingRateUnitW ChargingRateUnit = "W"
	ChargingRateUnitA ChargingRateUnit = "A"
)

// ChargingProfile 充电配置
type ChargingProfile struct {
	ChargingProfileId      int                    `json:"chargingProfileId"`
	TransactionId          *int                   `json:"transactionId,omitempty"`
	StackLevel             int                    `json:"stackLevel" validate:"min=0"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKind        `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty"`
	ChargingSchedule       ChargingSchedule       `json:"chargingSchedule" validate:"required"`
}

// ChargingSchedule 充电计划
type ChargingSchedule struct {
	Duration               *int                     `json:"duration,omitempty" validate:"omitempty,gt=0"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" validate:"required"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,dive"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" validate:"omitempty,min=0"`
}

// ChargingSchedulePeriod 充电计划周期
type ChargingSchedulePeriod struct {
	StartPeriod  int     `json:"startPeriod" validate:"min=0"`
	Limit        float64 `json:"limit" validate:"gt=0"`
	NumberPhases *int    `json:"numberPhases,omitempty" validate:"omitempty,min=1,max=3"`
}

// SetChargingProfileStatus 设置充电配置结果
type SetChargingProfileStatus string

const (
	SetChargingProfileStatusAccepted     SetChargingProfileStatus = "Accepted"
	SetChargingProfileStatusRejected     SetChargingProfileStatus = "Rejected"
	SetChargingProfileStatusNotSupported SetChargingProfileStatus = "NotSupported"
)

// ClearChargingProfileStatus 清除充电配置结果
type ClearChargingProfileStatus string

const (
	ClearChargingProfileStatusAccepted ClearChargingProfileStatus = "Accepted"
	ClearChargingProfileStatusUnknown  ClearChargingProfileStatus = "Unknown"
)

// SetChargingProfileRequest 设置充电配置请求
type SetChargingProfileRequest struct {
	ConnectorId        int             `json:"connectorId" validate:"min=0"`
	CsChargingProfiles ChargingProfile `json:"csChargingProfiles" validate:"required"`
}

// SetChargingProfileResponse 设置充电配置响应
type SetChargingProfileResponse struct {
	Status SetChargingProfileStatus `json:"status" validate:"required"`
}

// ClearChargingProfileRequest 清除充电配置请求
type ClearChargingProfileRequest struct {
	Id                     *int                    `json:"id,omitempty"`
	ConnectorId            *int                    `json:"connectorId,omitempty" validate:"omitempty,min=0"`
	ChargingProfilePurpose *ChargingProfilePurpose `json:"chargingProfilePurpose,omitempty"`
	StackLevel             *int                    `json:"stackLevel,omitempty" validate:"omitempty,min=0"`
}

// ClearChargingProfileResponse 清除充电配置响应
type ClearChargingProfileResponse struct {
	Status ClearChargingProfileStatus `json:"status" validate:"required"`
}

// GetCompositeScheduleRequest 组合计划查询请求
type GetCompositeScheduleRequest struct {
	ConnectorId      int               `json:"connectorId" validate:"min=0"`
	Duration         int               `json:"duration" validate:"gt=0"`
	ChargingRateUnit *ChargingRateUnit `json:"chargingRateUnit,omitempty"`
}

// GetCompositeScheduleResponse 组合计划查询响应
type GetCompositeScheduleResponse struct {
	Status           GetCompositeScheduleStatus `json:"status" validate:"required"`
	ConnectorId      *int                       `json:"connectorId,omitempty"`
	ScheduleStart    *DateTime                  `json:"scheduleStart,omitempty"`
	ChargingSchedule *ChargingSchedule          `json:"chargingSchedule,omitempty"`
}
