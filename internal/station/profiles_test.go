package station

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	v16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

func newProfileStation(t *testing.T) *Station {
	t.Helper()
	st := New(config.StationConfig{ID: "CP-PROFILE", OCPPVersion: "1.6", ConnectorCount: 2}, nil, nil, nil)
	t.Cleanup(st.Stop)
	return st
}

func validProfile16(id int) v16.ChargingProfile {
	return v16.ChargingProfile{
		ChargingProfileId:      id,
		StackLevel:             1,
		ChargingProfilePurpose: v16.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    v16.ChargingProfileKindAbsolute,
		ChargingSchedule: v16.ChargingSchedule{
			ChargingRateUnit: v16.ChargingRateUnitA,
			ChargingSchedulePeriod: []v16.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 16},
				{StartPeriod: 3600, Limit: 10},
			},
		},
	}
}

func TestValidateChargingProfile16(t *testing.T) {
	st := newProfileStation(t)
	now := time.Now()

	profile := validProfile16(1)
	assert.NoError(t, st.ValidateChargingProfile16(1, &profile, now))

	// ChargePointMaxProfile只能挂在连接器0
	maxProfile := validProfile16(2)
	maxProfile.ChargingProfilePurpose = v16.ChargingProfilePurposeChargePointMaxProfile
	assert.Error(t, st.ValidateChargingProfile16(1, &maxProfile, now))
	assert.NoError(t, st.ValidateChargingProfile16(0, &maxProfile, now))

	// TxProfile要求连接器非0且有活跃交易
	txProfile := validProfile16(3)
	txProfile.ChargingProfilePurpose = v16.ChargingProfilePurposeTxProfile
	assert.Error(t, st.ValidateChargingProfile16(0, &txProfile, now))
	assert.Error(t, st.ValidateChargingProfile16(1, &txProfile, now))

	st.WithConnector(1, func(c *Connector) error {
		c.TransactionStarted = true
		return nil
	})
	assert.NoError(t, st.ValidateChargingProfile16(1, &txProfile, now))
}

func TestValidateChargingProfile16Recurrency(t *testing.T) {
	st := newProfileStation(t)
	now := time.Now()

	// Recurring必须带recurrencyKind
	recurring := validProfile16(1)
	recurring.ChargingProfileKind = v16.ChargingProfileKindRecurring
	assert.Error(t, st.ValidateChargingProfile16(1, &recurring, now))

	daily := v16.RecurrencyKindDaily
	recurring.RecurrencyKind = &daily
	assert.NoError(t, st.ValidateChargingProfile16(1, &recurring, now))

	// 非Recurring不得带recurrencyKind
	absolute := validProfile16(2)
	absolute.RecurrencyKind = &daily
	assert.Error(t, st.ValidateChargingProfile16(1, &absolute, now))
}

func TestValidateChargingProfile16Validity(t *testing.T) {
	st := newProfileStation(t)
	now := time.Now()

	// validFrom必须早于validTo
	profile := validProfile16(1)
	from := v16.NewDateTime(now.Add(time.Hour))
	to := v16.NewDateTime(now.Add(30 * time.Minute))
	profile.ValidFrom = &from
	profile.ValidTo = &to
	assert.Error(t, st.ValidateChargingProfile16(1, &profile, now))

	// 已过期的配置被拒绝
	expired := validProfile16(2)
	past := v16.NewDateTime(now.Add(-time.Hour))
	expired.ValidTo = &past
	assert.Error(t, st.ValidateChargingProfile16(1, &expired, now))
}

func TestValidateChargingProfile16Periods(t *testing.T) {
	st := newProfileStation(t)
	now := time.Now()

	// startPeriod必须严格递增
	profile := validProfile16(1)
	profile.ChargingSchedule.ChargingSchedulePeriod = []v16.ChargingSchedulePeriod{
		{StartPeriod: 0, Limit: 16},
		{StartPeriod: 0, Limit: 10},
	}
	assert.Error(t, st.ValidateChargingProfile16(1, &profile, now))

	// limit必须为正
	profile.ChargingSchedule.ChargingSchedulePeriod = []v16.ChargingSchedulePeriod{
		{StartPeriod: 0, Limit: 0},
	}
	assert.Error(t, st.ValidateChargingProfile16(1, &profile, now))
}

func TestStoreChargingProfile16Replaces(t *testing.T) {
	st := newProfileStation(t)

	require.NoError(t, st.StoreChargingProfile16(1, validProfile16(1)))
	require.NoError(t, st.StoreChargingProfile16(1, validProfile16(2)))
	// 同purpose同stackLevel只保留最新
	assert.Len(t, st.GetConnector(1).ChargingProfiles, 1)
	assert.Equal(t, 2, st.GetConnector(1).ChargingProfiles[0].ChargingProfileId)

	// 同id覆盖
	replacement := validProfile16(2)
	replacement.StackLevel = 5
	require.NoError(t, st.StoreChargingProfile16(1, replacement))
	assert.Len(t, st.GetConnector(1).ChargingProfiles, 1)
	assert.Equal(t, 5, st.GetConnector(1).ChargingProfiles[0].StackLevel)
}

func TestClearChargingProfiles16(t *testing.T) {
	st := newProfileStation(t)

	profile := validProfile16(7)
	require.NoError(t, st.StoreChargingProfile16(1, profile))

	// 按id清除：第一次命中，第二次Unknown
	id := 7
	assert.Equal(t, 1, st.ClearChargingProfiles16(ClearCriteria16{Id: &id}))
	assert.Equal(t, 0, st.ClearChargingProfiles16(ClearCriteria16{Id: &id}))
}

func TestClearChargingProfiles16Matching(t *testing.T) {
	st := newProfileStation(t)

	profile := validProfile16(1)
	profile.StackLevel = 3
	require.NoError(t, st.StoreChargingProfile16(1, profile))

	other := validProfile16(2)
	other.StackLevel = 4
	other.ChargingProfilePurpose = v16.ChargingProfilePurposeChargePointMaxProfile
	require.NoError(t, st.StoreChargingProfile16(0, other))

	// 只给stackLevel：匹配对应层级
	level := 3
	assert.Equal(t, 1, st.ClearChargingProfiles16(ClearCriteria16{StackLevel: &level}))

	// 只给purpose：匹配对应目的
	purpose := v16.ChargingProfilePurposeChargePointMaxProfile
	assert.Equal(t, 1, st.ClearChargingProfiles16(ClearCriteria16{Purpose: &purpose}))

	// 无条件不命中
	assert.Equal(t, 0, st.ClearChargingProfiles16(ClearCriteria16{}))
}

func TestClearChargingProfiles16CombinedCriteria(t *testing.T) {
	st := newProfileStation(t)

	profile := validProfile16(7)
	profile.StackLevel = 2
	require.NoError(t, st.StoreChargingProfile16(1, profile))

	// id不匹配但无purpose过滤且stackLevel匹配：按或语义仍命中
	wrongID := 5
	level := 2
	assert.Equal(t, 1, st.ClearChargingProfiles16(ClearCriteria16{Id: &wrongID, StackLevel: &level}))

	// stackLevel与purpose同时给出时两者都要匹配
	again := validProfile16(8)
	again.StackLevel = 2
	require.NoError(t, st.StoreChargingProfile16(1, again))

	otherPurpose := v16.ChargingProfilePurposeChargePointMaxProfile
	assert.Equal(t, 0, st.ClearChargingProfiles16(ClearCriteria16{StackLevel: &level, Purpose: &otherPurpose}))

	samePurpose := v16.ChargingProfilePurposeTxDefaultProfile
	assert.Equal(t, 1, st.ClearChargingProfiles16(ClearCriteria16{StackLevel: &level, Purpose: &samePurpose}))
}

func TestValidateChargingProfile201(t *testing.T) {
	st := New(config.StationConfig{ID: "CP-201", OCPPVersion: "2.0.1", ConnectorCount: 1}, nil, nil, nil)
	t.Cleanup(st.Stop)
	now := time.Now()

	profile := &v201.ChargingProfile{
		Id:                     1,
		StackLevel:             2,
		ChargingProfilePurpose: v201.ChargingProfilePurposeTxDefaultProfile,
		ChargingProfileKind:    v201.ChargingProfileKindAbsolute,
		ChargingSchedule: []v201.ChargingSchedule{{
			Id:               1,
			ChargingRateUnit: v201.ChargingRateUnitW,
			ChargingSchedulePeriod: []v201.ChargingSchedulePeriod{
				{StartPeriod: 0, Limit: 11000},
			},
		}},
	}
	assert.NoError(t, st.ValidateChargingProfile201(1, profile, now))

	// stackLevel超出0..9
	badLevel := *profile
	badLevel.StackLevel = 10
	assert.Error(t, st.ValidateChargingProfile201(1, &badLevel, now))

	// phaseToUse不能超过numberPhases
	phases := 1
	phaseToUse := 3
	badPhase := *profile
	badPhase.ChargingSchedule = []v201.ChargingSchedule{{
		Id:               1,
		ChargingRateUnit: v201.ChargingRateUnitW,
		ChargingSchedulePeriod: []v201.ChargingSchedulePeriod{
			{StartPeriod: 0, Limit: 11000, NumberPhases: &phases, PhaseToUse: &phaseToUse},
		},
	}}
	assert.Error(t, st.ValidateChargingProfile201(1, &badPhase, now))

	// ChargingStationMaxProfile只能挂在evse 0
	maxProfile := *profile
	maxProfile.ChargingProfilePurpose = v201.ChargingProfilePurposeChargingStationMaxProfile
	assert.Error(t, st.ValidateChargingProfile201(1, &maxProfile, now))
	assert.NoError(t, st.ValidateChargingProfile201(0, &maxProfile, now))
}
