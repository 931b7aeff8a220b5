package v201

// ChargingProfilePurpose 充电配置目的
type ChargingProfilePurpose string

const (
	ChargingProfilePurposeChargingStationMaxProfile ChargingProfilePurpose = "ChargingStationMaxProfile"
	ChargingProfilePurposeTxDefaultProfile          ChargingProfilePurpose = "TxDefaultProfile"
	ChargingProfilePurposeTxProfile                 ChargingProfilePurpose = "TxProfile"
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

// ChargingProfile 充电配置，stackLevel限制在0..9
type ChargingProfile struct {
	Id                     int                    `json:"id"`
	StackLevel             int                    `json:"stackLevel" validate:"min=0,max=9"`
	ChargingProfilePurpose ChargingProfilePurpose `json:"chargingProfilePurpose" validate:"required"`
	ChargingProfileKind    ChargingProfileKind    `json:"chargingProfileKind" validate:"required"`
	RecurrencyKind         *RecurrencyKind        `json:"recurrencyKind,omitempty"`
	ValidFrom              *DateTime              `json:"validFrom,omitempty"`
	ValidTo                *DateTime              `json:"validTo,omitempty"`
	TransactionId          *string                `json:"transactionId,omitempty" validate:"omitempty,max=36"`
	ChargingSchedule       []ChargingSchedule     `json:"chargingSchedule" validate:"required,min=1,max=3,dive"`
}

// ChargingSchedule 充电计划
type ChargingSchedule struct {
	Id                     int                      `json:"id" validate:"gt=0"`
	StartSchedule          *DateTime                `json:"startSchedule,omitempty"`
	Duration               *int                     `json:"duration,omitempty" validate:"omitempty,gt=0"`
	ChargingRateUnit       ChargingRateUnit         `json:"chargingRateUnit" validate:"required"`
	MinChargingRate        *float64                 `json:"minChargingRate,omitempty" validate:"omitempty,min=0"`
	ChargingSchedulePeriod []ChargingSchedulePeriod `json:"chargingSchedulePeriod" validate:"required,min=1,dive"`
}

// ChargingSchedulePeriod 充电计划周期
type ChargingSchedulePeriod struct {
	StartPeriod  int      `json:"startPeriod" validate:"min=0"`
	Limit        float64  `json:"limit" validate:"gt=0"`
	NumberPhases *int     `json:"numberPhases,omitempty" validate:"omitempty,min=1,max=3"`
	PhaseToUse   *int     `json:"phaseToUse,omitempty" validate:"omitempty,min=1,max=3"`
}
