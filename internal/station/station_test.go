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

func newTestStation(t *testing.T, version string) *Station {
	t.Helper()
	st := New(config.StationConfig{
		ID:              "CP-TEST",
		OCPPVersion:     version,
		Vendor:          "V",
		Model:           "M",
		SerialNumber:    "SN",
		FirmwareVersion: "1.0",
		ConnectorCount:  2,
		LocalAuthTags:   []string{"TAG-1"},
	}, nil, nil, nil)
	t.Cleanup(st.Stop)
	return st
}

func TestNewStation(t *testing.T) {
	st := newTestStation(t, "1.6")

	assert.Equal(t, "CP-TEST", st.ID())
	assert.Equal(t, VersionV16, st.Version())
	assert.Equal(t, RegistrationUnknown, st.Registration())
	assert.True(t, st.InUnknownState())
	assert.False(t, st.IsRegistered())

	// 连接器0 + 2个连接器
	assert.NotNil(t, st.GetConnector(0))
	assert.Equal(t, []int{1, 2}, st.ConnectorIDs())
	assert.Nil(t, st.GetConnector(3))
}

func TestNewStationV201HasEvses(t *testing.T) {
	st := newTestStation(t, "2.0.1")

	assert.Equal(t, VersionV201, st.Version())
	assert.Equal(t, []int{1, 2}, st.EvseIDs())
	require.NotNil(t, st.GetEvse(1))
	assert.Equal(t, v201.OperationalStatusOperative, st.GetEvse(1).Availability)
}

func TestRegistrationTransitions(t *testing.T) {
	st := newTestStation(t, "1.6")

	st.SetRegistration(RegistrationPending)
	assert.True(t, st.InPendingState())

	st.SetRegistration(RegistrationAccepted)
	assert.True(t, st.IsRegistered())
	assert.True(t, st.InAcceptedState())
}

func TestConnectorTransitionAllowList16(t *testing.T) {
	assert.True(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusAvailable, v16.ChargePointStatusPreparing))
	assert.True(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusPreparing, v16.ChargePointStatusCharging))
	assert.True(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusCharging, v16.ChargePointStatusFinishing))
	assert.False(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusFinishing, v16.ChargePointStatusCharging))
	assert.False(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusAvailable, v16.ChargePointStatusFinishing))

	// Faulted可从任意状态进入并离开
	for _, status := range []v16.ChargePointStatus{
		v16.ChargePointStatusAvailable, v16.ChargePointStatusCharging, v16.ChargePointStatusReserved,
	} {
		assert.True(t, IsConnectorTransitionAllowed16(status, v16.ChargePointStatusFaulted))
		assert.True(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusFaulted, status))
	}

	// 同状态迁移恒被允许
	assert.True(t, IsConnectorTransitionAllowed16(v16.ChargePointStatusCharging, v16.ChargePointStatusCharging))
}

func TestStationTransitionAllowList16(t *testing.T) {
	assert.True(t, IsStationTransitionAllowed16(v16.ChargePointStatusAvailable, v16.ChargePointStatusUnavailable))
	assert.True(t, IsStationTransitionAllowed16(v16.ChargePointStatusFaulted, v16.ChargePointStatusAvailable))
	assert.False(t, IsStationTransitionAllowed16(v16.ChargePointStatusAvailable, v16.ChargePointStatusCharging))
	assert.False(t, IsStationTransitionAllowed16(v16.ChargePointStatusAvailable, v16.ChargePointStatusPreparing))
}

func TestSetConnectorStatusRejectsDisallowed(t *testing.T) {
	st := newTestStation(t, "1.6")

	require.True(t, st.SetConnectorStatus16(1, v16.ChargePointStatusPreparing))
	assert.Equal(t, v16.ChargePointStatusPreparing, st.GetConnector(1).Status16)

	// Preparing -> Reserved不在允许表中
	assert.False(t, st.SetConnectorStatus16(1, v16.ChargePointStatusReserved))
	assert.Equal(t, v16.ChargePointStatusPreparing, st.GetConnector(1).Status16)

	// 站点级表更窄
	assert.False(t, st.SetConnectorStatus16(0, v16.ChargePointStatusCharging))
}

func TestConnectorTransitionAllowList201(t *testing.T) {
	assert.True(t, IsConnectorTransitionAllowed201(v201.ConnectorStatusAvailable, v201.ConnectorStatusOccupied))
	assert.True(t, IsConnectorTransitionAllowed201(v201.ConnectorStatusOccupied, v201.ConnectorStatusAvailable))
	assert.True(t, IsConnectorTransitionAllowed201(v201.ConnectorStatusReserved, v201.ConnectorStatusOccupied))
	assert.False(t, IsConnectorTransitionAllowed201(v201.ConnectorStatusOccupied, v201.ConnectorStatusReserved))
	assert.True(t, IsConnectorTransitionAllowed201(v201.ConnectorStatusOccupied, v201.ConnectorStatusFaulted))
}

func TestAuthorizationCache(t *testing.T) {
	st := newTestStation(t, "1.6")

	assert.False(t, st.IsTagCached("TAG-9"))
	st.AddAuthorizedTag("TAG-9")
	assert.True(t, st.IsTagCached("TAG-9"))

	st.ClearAuthorizationCache()
	assert.False(t, st.IsTagCached("TAG-9"))

	// 本地授权列表独立于缓存
	assert.True(t, st.IsTagInLocalList("TAG-1"))
	assert.False(t, st.IsTagInLocalList("TAG-9"))
}

func TestPowerDivider(t *testing.T) {
	st := newTestStation(t, "1.6")

	assert.Equal(t, 0, st.PowerDivider())
	st.IncrementPowerDivider()
	st.IncrementPowerDivider()
	assert.Equal(t, 2, st.PowerDivider())
	st.DecrementPowerDivider()
	assert.Equal(t, 1, st.PowerDivider())

	st.DecrementPowerDivider()
	st.DecrementPowerDivider() // 不会降到负数
	assert.Equal(t, 0, st.PowerDivider())
}

func TestActiveTransactionCount(t *testing.T) {
	st := newTestStation(t, "1.6")

	assert.Equal(t, 0, st.ActiveTransactionCount())
	st.WithConnector(1, func(c *Connector) error {
		c.TransactionStarted = true
		c.TransactionID = 42
		return nil
	})
	assert.Equal(t, 1, st.ActiveTransactionCount())

	found := st.FindConnectorByTransactionID(42)
	require.NotNil(t, found)
	assert.Equal(t, 1, found.ID)
	assert.Nil(t, st.FindConnectorByTransactionID(43))
}

func TestConnectorSeqNo(t *testing.T) {
	c := NewConnector(1)

	// 首个序号为0，之后逐一递增
	assert.Equal(t, 0, c.NextSeqNo())
	assert.Equal(t, 1, c.NextSeqNo())
	assert.Equal(t, 2, c.NextSeqNo())

	c.ResetTransaction()
	assert.Equal(t, 0, c.NextSeqNo())
}

func TestConnectorTransactionEventQueue(t *testing.T) {
	c := NewConnector(1)
	now := time.Now()

	c.EnqueueTransactionEvent(&v201.TransactionEventRequest{SeqNo: 0}, now)
	c.EnqueueTransactionEvent(&v201.TransactionEventRequest{SeqNo: 1}, now)
	assert.Len(t, c.TransactionEventQueue, 2)

	drained := c.DrainTransactionEventQueue()
	require.Len(t, drained, 2)
	assert.Equal(t, 0, drained[0].SeqNo)
	assert.Equal(t, 1, drained[1].SeqNo)
	assert.Empty(t, c.TransactionEventQueue)
}

func TestConnectorSaveRestoreStatus(t *testing.T) {
	c := NewConnector(1)
	c.Status16 = v16.ChargePointStatusAvailable
	c.SaveStatus()

	c.Status16 = v16.ChargePointStatusPreparing
	c.RestoreStatus()
	assert.Equal(t, v16.ChargePointStatusAvailable, c.Status16)
}

func TestConfigStore(t *testing.T) {
	store := NewConfigStore()
	store.Put(ConfigurationKey{Key: "HeartbeatInterval", Value: "300", Visible: true})
	store.Put(ConfigurationKey{Key: "NumberOfConnectors", Value: "2", Readonly: true, Visible: true})
	store.Put(ConfigurationKey{Key: "AuthorizationKey", Value: "secret", Visible: false})

	// 大小写不敏感查找，保留原始大小写
	key, ok := store.Get("heartbeatinterval")
	require.True(t, ok)
	assert.Equal(t, "HeartbeatInterval", key.Key)
	assert.Equal(t, "300", key.Value)

	// 隐藏键不出现在Visible中
	visible := store.Visible()
	require.Len(t, visible, 2)
	assert.Equal(t, "HeartbeatInterval", visible[0].Key)
	assert.Equal(t, "NumberOfConnectors", visible[1].Key)

	// SetValue只更新已存在的键
	assert.True(t, store.SetValue("HeartbeatInterval", "60"))
	assert.False(t, store.SetValue("NoSuchKey", "1"))

	value, ok := store.GetValue("HeartbeatInterval")
	require.True(t, ok)
	assert.Equal(t, "60", value)
}

func TestSeededConfiguration(t *testing.T) {
	st := newTestStation(t, "1.6")
	store := st.ConfigStore()

	// V16站点带心跳遗留别名
	_, hasModern := store.Get(KeyHeartbeatInterval)
	_, hasLegacy := store.Get(KeyHeartBeatIntervalLegacy)
	assert.True(t, hasModern)
	assert.True(t, hasLegacy)

	connectors, ok := store.GetValue(KeyNumberOfConnectors)
	require.True(t, ok)
	assert.Equal(t, "2", connectors)

	// 隐藏键存在但不可见
	authKey, ok := store.Get("AuthorizationKey")
	require.True(t, ok)
	assert.False(t, authKey.Visible)
}

func TestSpawnStopsWithStation(t *testing.T) {
	st := newTestStation(t, "1.6")

	stopped := make(chan struct{})
	st.Spawn("test-task", func(stop <-chan struct{}) {
		<-stop
		close(stopped)
	})

	st.Stop()

	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("background task did not stop")
	}

	// 停止后Spawn不再启动任务
	st.Spawn("late-task", func(stop <-chan struct{}) {
		t.Error("late task must not run")
	})
	time.Sleep(20 * time.Millisecond)
}
