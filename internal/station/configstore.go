package station

import (
	"strings"
	"sync"
)

// 常用OCPP配置键
const (
	KeyHeartbeatInterval           = "HeartbeatInterval"
	KeyHeartBeatIntervalLegacy     = "HeartBeatInterval" // V16遗留别名，与HeartbeatInterval互为镜像
	KeyWebSocketPingInterval       = "WebSocketPingInterval"
	KeyMeterValueSampleInterval    = "MeterValueSampleInterval"
	KeyNumberOfConnectors          = "NumberOfConnectors"
	KeySupportedFeatureProfiles    = "SupportedFeatureProfiles"
	KeyAuthorizeRemoteTxRequests   = "AuthorizeRemoteTxRequests"
	KeyLocalAuthListEnabled        = "LocalAuthListEnabled"
	KeyTransactionDataMeterValues  = "TransactionDataMeterValues"
	KeyOutOfOrderEndMeterValues    = "OutOfOrderEndMeterValues"
	KeyConnectionTimeOut           = "ConnectionTimeOut"
	KeyItemsPerMessageGetVariables = "ItemsPerMessageGetVariables"
	KeyItemsPerMessageSetVariables = "ItemsPerMessageSetVariables"
	KeyBytesPerMessageGetVariables = "BytesPerMessageGetVariables"
	KeyBytesPerMessageSetVariables = "BytesPerMessageSetVariables"
)

// 特性档
const (
	ProfileCore               = "Core"
	ProfileFirmwareManagement = "FirmwareManagement"
	ProfileLocalAuthList      = "LocalAuthListManagement"
	ProfileReservation        = "Reservation"
	ProfileSmartCharging      = "SmartCharging"
	ProfileRemoteTrigger      = "RemoteTrigger"
)

// ConfigurationKey 单个配置键
type ConfigurationKey struct {
	Key      string
	Value    string
	Readonly bool
	Visible  bool // false = 对GetConfiguration隐藏
	Reboot   bool // true = 修改后需要重启
}

// ConfigStore 站点配置键存储，保持插入顺序。
// 键名精确匹配优先，未命中时大小写不敏感回退，
// 因此HeartbeatInterval与遗留别名HeartBeatInterval可共存
type ConfigStore struct {
	mu    sync.RWMutex
	order []string // 键的插入顺序，原始大小写
	keys  map[string]*ConfigurationKey
}

// NewConfigStore 创建空配置存储
func NewConfigStore() *ConfigStore {
	return &ConfigStore{
		keys: make(map[string]*ConfigurationKey),
	}
}

// Put 新增或覆盖配置键
func (s *ConfigStore) Put(key ConfigurationKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.keys[key.Key]; !exists {
		s.order = append(s.order, key.Key)
	}
	stored := key
	s.keys[key.Key] = &stored
}

// lookup 精确匹配优先，未命中按插入顺序做大小写不敏感回退。调用方持锁
func (s *ConfigStore) lookup(key string) *ConfigurationKey {
	if stored, ok := s.keys[key]; ok {
		return stored
	}
	lower := strings.ToLower(key)
	for _, name := range s.order {
		if strings.ToLower(name) == lower {
			return s.keys[name]
		}
	}
	return nil
}

// Get 按键名查找，返回副本
func (s *ConfigStore) Get(key string) (ConfigurationKey, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.lookup(key)
	if stored == nil {
		return ConfigurationKey{}, false
	}
	return *stored, true
}

// GetValue 按键名取值
func (s *ConfigStore) GetValue(key string) (string, bool) {
	stored, ok := s.Get(key)
	if !ok {
		return "", false
	}
	return stored.Value, true
}

// SetValue 更新已存在键的值，键不存在返回false
func (s *ConfigStore) SetValue(key, value string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := s.lookup(key)
	if stored == nil {
		return false
	}
	stored.Value = value
	return true
}

// All 按插入顺序返回全部键的副本
func (s *ConfigStore) All() []ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ConfigurationKey, 0, len(s.order))
	for _, name := range s.order {
		result = append(result, *s.keys[name])
	}
	return result
}

// Visible 按插入顺序返回非隐藏键的副本
func (s *ConfigStore) Visible() []ConfigurationKey {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]ConfigurationKey, 0, len(s.order))
	for _, name := range s.order {
		if s.keys[name].Visible {
			result = append(result, *s.keys[name])
		}
	}
	return result
}

// Len 键数量
func (s *ConfigStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.keys)
}
