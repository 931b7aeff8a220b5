package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

func TestValidateStructBootNotification(t *testing.T) {
	v := NewValidator()

	valid := &ocpp16.BootNotificationRequest{
		ChargePointVendor: "Vendor",
		ChargePointModel:  "Model",
	}
	assert.NoError(t, v.ValidateStruct(valid))

	// 缺失必填字段
	missing := &ocpp16.BootNotificationRequest{ChargePointModel: "Model"}
	err := v.ValidateStruct(missing)
	require.Error(t, err)

	validationErrors, ok := err.(ValidationErrors)
	require.True(t, ok)
	assert.Equal(t, "ChargePointVendor", validationErrors[0].Field)
	assert.Equal(t, "required", validationErrors[0].Tag)

	// 超长字段
	tooLong := &ocpp16.BootNotificationRequest{
		ChargePointVendor: "VendorNameThatIsFarTooLongForTheSpec",
		ChargePointModel:  "Model",
	}
	assert.Error(t, v.ValidateStruct(tooLong))
}

func TestValidateStructChargingSchedulePeriods(t *testing.T) {
	v := NewValidator()

	profile := &ocpp16.ChargingProfile{
		ChargingProfileId:      1,
		StackLevel:             0,
		ChargingProfilePurpose: ocpp16.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    ocpp16.ChargingProfileKindAbsolute,
		ChargingSchedule: ocpp16.ChargingSchedule{
			ChargingRateUnit: ocpp16.ChargingRateUnitA,
			ChargingSchedulePeriod: []ocpp16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 16},
			},
		},
	}
	assert.NoError(t, v.ValidateStruct(profile))

	// 空周期列表
	profile.ChargingSchedule.ChargingSchedulePeriod = nil
	assert.Error(t, v.ValidateStruct(profile))

	// limit必须为正
	profile.ChargingSchedule.ChargingSchedulePeriod = []ocpp16.ChargingSchedulePeriod{
		{StartPeriod: 0, Limit: 0},
	}
	assert.Error(t, v.ValidateStruct(profile))
}

func TestValidateStructV201TransactionEvent(t *testing.T) {
	v := NewValidator()

	event := &ocpp201.TransactionEventRequest{
		EventType:     ocpp201.TransactionEventStarted,
		Timestamp:     ocpp201.DateTime{},
		TriggerReason: ocpp201.TriggerReasonRemoteStart,
		SeqNo:         0,
		TransactionInfo: ocpp201.Transaction{
			TransactionId: "tx-1",
		},
	}
	assert.NoError(t, v.ValidateStruct(event))

	// transactionId缺失
	event.TransactionInfo.TransactionId = ""
	assert.Error(t, v.ValidateStruct(event))
}

func TestValidateMessageSize(t *testing.T) {
	v := NewValidator()

	assert.NoError(t, v.ValidateMessageSize(make([]byte, 100), 100))
	assert.Error(t, v.ValidateMessageSize(make([]byte, 101), 100))
}

func TestValidationErrorsJoined(t *testing.T) {
	errs := ValidationErrors{
		{Message: "first"},
		{Message: "second"},
	}
	assert.Equal(t, "first; second", errs.Error())
}
