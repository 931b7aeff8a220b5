package station

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	v16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	v201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
)

// ProtocolVersion 站点协议版本
type ProtocolVersion string

const (
	// VersionV16 OCPP 1.6-J
	VersionV16 ProtocolVersion = "1.6"
	// VersionV201 OCPP 2.0.1
	VersionV201 ProtocolVersion = "2.0.1"
)

// RegistrationState 注册状态机
type RegistrationState string

const (
	RegistrationUnknown  RegistrationState = "Unknown"
	RegistrationPending  RegistrationState = "Pending"
	RegistrationAccepted RegistrationState = "Accepted"
	RegistrationRejected RegistrationState = "Rejected"
)

// StopTransactionFunc 停止连接器上交易的钩子，由出站服务在装配时注入
type StopTransactionFunc func(ctx context.Context, connectorID int, reason string) (bool, error)

// Station 模拟充电站聚合根，单写者并发模型：所有可变状态经mu串行化
type Station struct {
	mu sync.Mutex

	cfg     config.StationConfig
	version ProtocolVersion

	registration RegistrationState

	connectors     map[int]*Connector
	connectorOrder []int
	evses          map[int]*Evse
	evseOrder      []int

	configStore *ConfigStore

	// 授权缓存与本地授权列表
	authorizedTags map[string]bool
	localAuthList  map[string]bool

	powerDivider int

	firmwareStatus    v16.FirmwareStatus
	diagnosticsStatus v16.DiagnosticsStatus

	clock Clock
	rng   RNG
	log   *logger.Logger

	// 装配时注入的钩子
	heartbeatRestart func()
	pingRestart      func()
	resetHook        func(reason string)
	stopTransaction  StopTransactionFunc

	stopCh  chan struct{}
	stopped bool
	bg      sync.WaitGroup
}

// New 按配置创建站点及其连接器/EVSE
func New(cfg config.StationConfig, clock Clock, rng RNG, log *logger.Logger) *Station {
	if clock == nil {
		clock = WallClock{}
	}
	if rng == nil {
		rng = NewDefaultRNG()
	}
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	version := VersionV16
	if cfg.OCPPVersion == string(VersionV201) {
		version = VersionV201
	}

	s := &Station{
		cfg:            cfg,
		version:        version,
		registration:   RegistrationUnknown,
		connectors:     make(map[int]*Connector),
		evses:          make(map[int]*Evse),
		configStore:    NewConfigStore(),
		authorizedTags: make(map[string]bool),
		localAuthList:  make(map[string]bool),
		firmwareStatus: "",
		clock:          clock,
		rng:            rng,
		log:            log.WithStation(cfg.ID),
		stopCh:         make(chan struct{}),
	}

	connectorCount := cfg.ConnectorCount
	if connectorCount <= 0 {
		connectorCount = 1
	}

	// 连接器0表示站点本身
	for id := 0; id <= connectorCount; id++ {
		s.connectors[id] = NewConnector(id)
		s.connectorOrder = append(s.connectorOrder, id)
	}

	if version == VersionV201 {
		evseCount := cfg.EvseCount
		if evseCount <= 0 {
			evseCount = connectorCount
		}
		for id := 1; id <= evseCount; id++ {
			s.evses[id] = NewEvse(id, []int{1})
			s.evseOrder = append(s.evseOrder, id)
		}
	}

	for _, tag := range cfg.LocalAuthTags {
		s.localAuthList[tag] = true
	}

	s.seedConfiguration()

	return s
}

// seedConfiguration 预置默认配置键
func (s *Station) seedConfiguration() {
	boolValue := func(b bool) string {
		return strconv.FormatBool(b)
	}

	s.configStore.Put(ConfigurationKey{Key: KeyHeartbeatInterval, Value: "300", Visible: true})
	if s.version == VersionV16 {
		s.configStore.Put(ConfigurationKey{Key: KeyHeartBeatIntervalLegacy, Value: "300", Visible: true})
	}
	s.configStore.Put(ConfigurationKey{Key: KeyWebSocketPingInterval, Value: "30", Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyMeterValueSampleInterval, Value: "60", Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyNumberOfConnectors, Value: strconv.Itoa(len(s.connectorOrder) - 1), Readonly: true, Visible: true})
	s.configStore.Put(ConfigurationKey{
		Key:      KeySupportedFeatureProfiles,
		Value:    "Core,FirmwareManagement,LocalAuthListManagement,Reservation,SmartCharging,RemoteTrigger",
		Readonly: true,
		Visible:  true,
	})
	s.configStore.Put(ConfigurationKey{Key: KeyAuthorizeRemoteTxRequests, Value: boolValue(s.cfg.AuthorizeRemoteTx), Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyLocalAuthListEnabled, Value: boolValue(s.cfg.LocalAuthListEnabled), Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyTransactionDataMeterValues, Value: "false", Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyOutOfOrderEndMeterValues, Value: "false", Visible: true})
	s.configStore.Put(ConfigurationKey{Key: KeyConnectionTimeOut, Value: "60", Visible: true, Reboot: true})
	// 授权密钥对CSMS隐藏
	s.configStore.Put(ConfigurationKey{Key: "AuthorizationKey", Value: "", Visible: false})

	if s.version == VersionV201 {
		s.configStore.Put(ConfigurationKey{Key: KeyItemsPerMessageGetVariables, Value: "10", Visible: true})
		s.configStore.Put(ConfigurationKey{Key: KeyItemsPerMessageSetVariables, Value: "10", Visible: true})
		s.configStore.Put(ConfigurationKey{Key: KeyBytesPerMessageGetVariables, Value: "8192", Visible: true})
		s.configStore.Put(ConfigurationKey{Key: KeyBytesPerMessageSetVariables, Value: "8192", Visible: true})
	}
}

// ID 站点标识
func (s *Station) ID() string { return s.cfg.ID }

// Version 协议版本
func (s *Station) Version() ProtocolVersion { return s.version }

// Info 站点静态配置
func (s *Station) Info() config.StationConfig { return s.cfg }

// Clock 时钟
func (s *Station) Clock() Clock { return s.clock }

// RNG 随机源
func (s *Station) RNG() RNG { return s.rng }

// Logger 站点日志器
func (s *Station) Logger() *logger.Logger { return s.log }

// ConfigStore 配置存储
func (s *Station) ConfigStore() *ConfigStore { return s.configStore }

// StrictCompliance 是否启用严格OCPP合规
func (s *Station) StrictCompliance() bool { return s.cfg.StrictCompliance }

// Registration 当前注册状态
func (s *Station) Registration() RegistrationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registration
}

// SetRegistration 更新注册状态
func (s *Station) SetRegistration(state RegistrationState) {
	s.mu.Lock()
	s.registration = state
	s.mu.Unlock()
	s.log.Infof("Registration state is now %s", state)
}

// IsRegistered 是否已被CSMS接受
func (s *Station) IsRegistered() bool { return s.Registration() == RegistrationAccepted }

// InAcceptedState 注册状态是否为Accepted
func (s *Station) InAcceptedState() bool { return s.Registration() == RegistrationAccepted }

// InPendingState 注册状态是否为Pending
func (s *Station) InPendingState() bool { return s.Registration() == RegistrationPending }

// InUnknownState 注册状态是否为Unknown
func (s *Station) InUnknownState() bool { return s.Registration() == RegistrationUnknown }

// GetConnector 按ID取连接器，不存在返回nil
func (s *Station) GetConnector(id int) *Connector {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectors[id]
}

// ConnectorIDs 非零连接器ID，升序
func (s *Station) ConnectorIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.connectorOrder))
	for _, id := range s.connectorOrder {
		if id != 0 {
			ids = append(ids, id)
		}
	}
	sort.Ints(ids)
	return ids
}

// GetEvse 按ID取EVSE，不存在返回nil
func (s *Station) GetEvse(id int) *Evse {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.evses[id]
}

// EvseIDs EVSE的ID，升序
func (s *Station) EvseIDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, len(s.evseOrder))
	copy(ids, s.evseOrder)
	sort.Ints(ids)
	return ids
}

// WithConnector 在站点锁内操作连接器，串行化状态变更
func (s *Station) WithConnector(id int, fn func(c *Connector) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector := s.connectors[id]
	if connector == nil {
		return fmt.Errorf("unknown connector %d", id)
	}
	return fn(connector)
}

// SetConnectorStatus16 尝试V16状态迁移，不在允许表中的迁移被拒绝并记录
func (s *Station) SetConnectorStatus16(id int, to v16.ChargePointStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector := s.connectors[id]
	if connector == nil {
		return false
	}

	from := connector.Status16
	allowed := false
	if id == 0 {
		allowed = IsStationTransitionAllowed16(from, to)
	} else {
		allowed = IsConnectorTransitionAllowed16(from, to)
	}

	if !allowed {
		s.log.Warnf("Rejected connector %d status transition %s -> %s", id, from, to)
		return false
	}

	connector.Status16 = to
	return true
}

// SetConnectorStatus201 尝试V201状态迁移
func (s *Station) SetConnectorStatus201(id int, to v201.ConnectorStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	connector := s.connectors[id]
	if connector == nil {
		return false
	}

	from := connector.Status201
	if !IsConnectorTransitionAllowed201(from, to) {
		s.log.Warnf("Rejected connector %d status transition %s -> %s", id, from, to)
		return false
	}

	connector.Status201 = to
	return true
}

// StationAvailable 站点级（连接器0）是否可用
func (s *Station) StationAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	station := s.connectors[0]
	if station == nil {
		return true
	}
	return station.Availability == v16.AvailabilityTypeOperative
}

// ActiveTransactionCount 活跃交易数
func (s *Station) ActiveTransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for id, connector := range s.connectors {
		if id != 0 && connector.TransactionStarted {
			count++
		}
	}
	return count
}

// FindConnectorByTransactionID 按V16交易ID查连接器
func (s *Station) FindConnectorByTransactionID(transactionID int) *Connector {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, connector := range s.connectors {
		if id != 0 && connector.TransactionStarted && connector.TransactionID == transactionID {
			return connector
		}
	}
	return nil
}

// FindConnectorByTransactionID201 按V201交易ID查连接器
func (s *Station) FindConnectorByTransactionID201(transactionID string) *Connector {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, connector := range s.connectors {
		if id != 0 && connector.TransactionStarted && connector.TransactionID201 == transactionID {
			return connector
		}
	}
	return nil
}

// AddAuthorizedTag 加入授权缓存
func (s *Station) AddAuthorizedTag(tag string) {
	s.mu.Lock()
	s.authorizedTags[tag] = true
	s.mu.Unlock()
}

// IsTagCached 令牌是否在授权缓存中
func (s *Station) IsTagCached(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.authorizedTags[tag]
}

// ClearAuthorizationCache 清空授权缓存
func (s *Station) ClearAuthorizationCache() {
	s.mu.Lock()
	s.authorizedTags = make(map[string]bool)
	s.mu.Unlock()
}

// IsTagInLocalList 令牌是否在本地授权列表
func (s *Station) IsTagInLocalList(tag string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localAuthList[tag]
}

// IncrementPowerDivider 功率分配器+1，功率共享模式下交易开始时调用
func (s *Station) IncrementPowerDivider() {
	s.mu.Lock()
	s.powerDivider++
	s.mu.Unlock()
}

// DecrementPowerDivider 功率分配器-1
func (s *Station) DecrementPowerDivider() {
	s.mu.Lock()
	if s.powerDivider > 0 {
		s.powerDivider--
	}
	s.mu.Unlock()
}

// PowerDivider 当前功率分配器
func (s *Station) PowerDivider() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.powerDivider
}

// FirmwareStatus 当前固件状态
func (s *Station) FirmwareStatus() v16.FirmwareStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firmwareStatus
}

// SetFirmwareStatus 更新固件状态
func (s *Station) SetFirmwareStatus(status v16.FirmwareStatus) {
	s.mu.Lock()
	s.firmwareStatus = status
	s.mu.Unlock()
}

// DiagnosticsStatus 当前诊断状态
func (s *Station) DiagnosticsStatus() v16.DiagnosticsStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.diagnosticsStatus
}

// SetDiagnosticsStatus 更新诊断状态
func (s *Station) SetDiagnosticsStatus(status v16.DiagnosticsStatus) {
	s.mu.Lock()
	s.diagnosticsStatus = status
	s.mu.Unlock()
}

// SetHeartbeatRestart 注入心跳重启钩子
func (s *Station) SetHeartbeatRestart(fn func()) { s.heartbeatRestart = fn }

// RestartHeartbeat 重启心跳任务
func (s *Station) RestartHeartbeat() {
	if s.heartbeatRestart != nil {
		s.heartbeatRestart()
	}
}

// SetWebSocketPingRestart 注入保活重启钩子
func (s *Station) SetWebSocketPingRestart(fn func()) { s.pingRestart = fn }

// RestartWebSocketPing 重启保活任务
func (s *Station) RestartWebSocketPing() {
	if s.pingRestart != nil {
		s.pingRestart()
	}
}

// SetResetHook 注入重启钩子，由站点生命周期管理器实现
func (s *Station) SetResetHook(fn func(reason string)) { s.resetHook = fn }

// Reset 模拟站点重启
func (s *Station) Reset(reason string) {
	s.log.Infof("Resetting station, reason: %s", reason)
	if s.resetHook != nil {
		s.resetHook(reason)
	}
}

// SetStopTransactionFunc 注入停止交易钩子
func (s *Station) SetStopTransactionFunc(fn StopTransactionFunc) { s.stopTransaction = fn }

// StopTransactionOnConnector 停止连接器上的交易，返回CSMS是否接受
func (s *Station) StopTransactionOnConnector(ctx context.Context, connectorID int, reason string) (bool, error) {
	if s.stopTransaction == nil {
		return false, fmt.Errorf("no stop transaction hook installed")
	}
	return s.stopTransaction(ctx, connectorID, reason)
}

// Spawn 启动绑定站点生命周期的后台任务，任务错误只记录不上抛
func (s *Station) Spawn(name string, fn func(stop <-chan struct{})) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.bg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.bg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Errorf("Background task %s panicked: %v", name, r)
			}
		}()
		fn(s.stopCh)
	}()
}

// Stopped 站点停止信号
func (s *Station) Stopped() <-chan struct{} { return s.stopCh }

// Stop 停止站点，取消全部后台任务并等待退出
func (s *Station) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.stopCh)
	s.mu.Unlock()

	s.bg.Wait()
	s.log.Info("Station stopped")
}
