package station

import (
	"fmt"
	"time"

	v16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// ProfileError 充电配置校验错误
type ProfileError struct {
	Reason string
}

// Error 实现error接口
func (e *ProfileError) Error() string {
	return e.Reason
}

func profileErrorf(format string, args ...interface{}) *ProfileError {
	return &ProfileError{Reason: fmt.Sprintf(format, args...)}
}

// validateSchedulePeriods 校验周期序列：startPeriod严格递增、limit为正
func validateSchedulePeriods(periods []struct {
	StartPeriod int
	Limit       float64
}) error {
	last := -1
	for i, p := range periods {
		if p.StartPeriod < 0 {
			return profileErrorf("schedule period %d: startPeriod must be >= 0", i)
		}
		if p.StartPeriod <= last && i > 0 {
			return profileErrorf("schedule period %d: startPeriod must be strictly increasing", i)
		}
		if p.Limit <= 0 {
			return profileErrorf("schedule period %d: limit must be > 0", i)
		}
		last = p.StartPeriod
	}
	return nil
}

// ValidateChargingProfile16 按不变量校验V16充电配置
func (s *Station) ValidateChargingProfile16(connectorID int, profile *v16.ChargingProfile, now time.Time) error {
	switch profile.ChargingProfilePurpose {
	case v16.ChargingProfilePurposeChargePointMaxProfile:
		if connectorID != 0 {
			return profileErrorf("ChargePointMaxProfile only applies to connector 0, got %d", connectorID)
		}
	case v16.ChargingProfilePurposeTxProfile:
		if connectorID == 0 {
			return profileErrorf("TxProfile cannot target connector 0")
		}
		connector := s.GetConnector(connectorID)
		if connector == nil || !connector.TransactionStarted {
			return profileErrorf("TxProfile requires an active transaction on connector %d", connectorID)
		}
	}

	hasRecurrency := profile.RecurrencyKind != nil
	if (profile.ChargingProfileKind == v16.ChargingProfileKindRecurring) != hasRecurrency {
		return profileErrorf("recurrencyKind must be present exactly for Recurring profiles")
	}

	if profile.ValidFrom != nil && profile.ValidTo != nil && !profile.ValidFrom.Time.Before(profile.ValidTo.Time) {
		return profileErrorf("validFrom must be before validTo")
	}
	if profile.ValidTo != nil && profile.ValidTo.Time.Before(now) {
		return profileErrorf("profile %d is already expired", profile.ChargingProfileId)
	}

	periods := make([]struct {
		StartPeriod int
		Limit       float64
	}, len(profile.ChargingSchedule.ChargingSchedulePeriod))
	for i, p := range profile.ChargingSchedule.ChargingSchedulePeriod {
		periods[i].StartPeriod = p.StartPeriod
		periods[i].Limit = p.Limit
	}
	return validateSchedulePeriods(periods)
}

// StoreChargingProfile16 存储V16充电配置，同id或同(purpose,stackLevel)的旧配置被替换
func (s *Station) StoreChargingProfile16(connectorID int, profile v16.ChargingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector := s.connectors[connectorID]
	if connector == nil {
		return profileErrorf("unknown connector %d", connectorID)
	}

	kept := connector.ChargingProfiles[:0]
	for _, existing := range connector.ChargingProfiles {
		if existing.ChargingProfileId == profile.ChargingProfileId {
			continue
		}
		if existing.ChargingProfilePurpose == profile.ChargingProfilePurpose && existing.StackLevel == profile.StackLevel {
			continue
		}
		kept = append(kept, existing)
	}
	connector.ChargingProfiles = append(kept, profile)
	return nil
}

// ClearCriteria16 V16清除充电配置的匹配条件
type ClearCriteria16 struct {
	Id          *int
	ConnectorId *int
	Purpose     *v16.ChargingProfilePurpose
	StackLevel  *int
}

// matchesClearCriteria16 单个配置是否命中清除条件。
// 四个条件取或：id相等；无purpose过滤且stackLevel相等；
// 无stackLevel过滤且purpose相等；stackLevel与purpose同时相等
func matchesClearCriteria16(profile v16.ChargingProfile, criteria ClearCriteria16) bool {
	idMatch := criteria.Id != nil && profile.ChargingProfileId == *criteria.Id
	stackMatch := criteria.StackLevel != nil && profile.StackLevel == *criteria.StackLevel
	purposeMatch := criteria.Purpose != nil && profile.ChargingProfilePurpose == *criteria.Purpose

	return idMatch ||
		(criteria.Purpose == nil && stackMatch) ||
		(criteria.StackLevel == nil && purposeMatch) ||
		(stackMatch && purposeMatch)
}

// ClearChargingProfiles16 清除命中的V16充电配置，返回清除数量
func (s *Station) ClearChargingProfiles16(criteria ClearCriteria16) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, connector := range s.connectors {
		if criteria.ConnectorId != nil && id != *criteria.ConnectorId {
			continue
		}
		kept := connector.ChargingProfiles[:0]
		for _, profile := range connector.ChargingProfiles {
			if matchesClearCriteria16(profile, criteria) {
				removed++
				continue
			}
			kept = append(kept, profile)
		}
		connector.ChargingProfiles = kept
	}
	return removed
}

// ValidateChargingProfile201 按不变量校验V201充电配置
func (s *Station) ValidateChargingProfile201(evseID int, profile *v201.ChargingProfile, now time.Time) error {
	switch profile.ChargingProfilePurpose {
	case v201.ChargingProfilePurposeChargingStationMaxProfile:
		if evseID != 0 {
			return profileErrorf("ChargingStationMaxProfile only applies to evse 0, got %d", evseID)
		}
	case v201.ChargingProfilePurposeTxProfile:
		if evseID == 0 {
			return profileErrorf("TxProfile cannot target evse 0")
		}
		connector := s.GetConnector(evseID)
		if connector == nil || !connector.TransactionStarted {
			return profileErrorf("TxProfile requires an active transaction on evse %d", evseID)
		}
	}

	if profile.StackLevel < 0 || profile.StackLevel > 9 {
		return profileErrorf("stackLevel must be in 0..9")
	}

	hasRecurrency := profile.RecurrencyKind != nil
	if (profile.ChargingProfileKind == v201.ChargingProfileKindRecurring) != hasRecurrency {
		return profileErrorf("recurrencyKind must be present exactly for Recurring profiles")
	}

	if profile.ValidFrom != nil && profile.ValidTo != nil && !profile.ValidFrom.Time.Before(profile.ValidTo.Time) {
		return profileErrorf("validFrom must be before validTo")
	}
	if profile.ValidTo != nil && profile.ValidTo.Time.Before(now) {
		return profileErrorf("profile %d is already expired", profile.Id)
	}

	for _, schedule := range profile.ChargingSchedule {
		if schedule.Id <= 0 {
			return profileErrorf("schedule id must be > 0")
		}
		if schedule.Duration != nil && *schedule.Duration <= 0 {
			return profileErrorf("schedule duration must be > 0")
		}
		if schedule.MinChargingRate != nil && *schedule.MinChargingRate < 0 {
			return profileErrorf("minChargingRate must be >= 0")
		}
		periods := make([]struct {
			StartPeriod int
			Limit       float64
		}, len(schedule.ChargingSchedulePeriod))
		for i, p := range schedule.ChargingSchedulePeriod {
			periods[i].StartPeriod = p.StartPeriod
			periods[i].Limit = p.Limit
			if p.PhaseToUse != nil {
				phases := 3
				if p.NumberPhases != nil {
					phases = *p.NumberPhases
				}
				if *p.PhaseToUse > phases {
					return profileErrorf("phaseToUse %d exceeds numberPhases %d", *p.PhaseToUse, phases)
				}
			}
		}
		if err := validateSchedulePeriods(periods); err != nil {
			return err
		}
	}
	return nil
}

// StoreChargingProfile201 存储V201充电配置
func (s *Station) StoreChargingProfile201(evseID int, profile v201.ChargingProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector := s.connectors[evseID]
	if connector == nil {
		return profileErrorf("unknown evse %d", evseID)
	}

	kept := connector.ChargingProfiles201[:0]
	for _, existing := range connector.ChargingProfiles201 {
		if existing.Id == profile.Id {
			continue
		}
		if existing.ChargingProfilePurpose == profile.ChargingProfilePurpose && existing.StackLevel == profile.StackLevel {
			continue
		}
		kept = append(kept, existing)
	}
	connector.ChargingProfiles201 = append(kept, profile)
	return nil
}
