package v16

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/validation"
	ocpp16 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v16"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// handlerFunc 入站命令处理函数
type handlerFunc func(ctx context.Context, payload interface{}) (interface{}, error)

// Service OCPP 1.6协议引擎：入站命令分发与出站请求构建
type Service struct {
	station   *station.Station
	router    *router.Router
	validator *validation.Validator

	bus     *events.Bus
	factory *events.Factory

	ocppCfg config.OCPPConfig
	fwCfg   config.FirmwareConfig
	diagCfg config.DiagnosticsConfig

	ftp station.FtpClient

	handlers map[ocpp16.Action]handlerFunc

	// 按特性档分组的动作，支持检查用
	actionProfiles map[ocpp16.Action]string

	heartbeatRestartCh chan struct{}
	heartbeatStarted   bool

	meterTasks map[int]chan struct{}
	mu         sync.Mutex

	log *logger.Logger
}

// NewService 创建V16协议服务并注册全部处理器
func NewService(st *station.Station, rt *router.Router, ocppCfg config.OCPPConfig, fwCfg config.FirmwareConfig, diagCfg config.DiagnosticsConfig, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	s := &Service{
		station:            st,
		router:             rt,
		validator:          validation.NewValidator(),
		bus:                bus,
		factory:            events.NewFactory(),
		ocppCfg:            ocppCfg,
		fwCfg:              fwCfg,
		diagCfg:            diagCfg,
		heartbeatRestartCh: make(chan struct{}, 1),
		meterTasks:         make(map[int]chan struct{}),
		log:                log.WithStation(st.ID()),
	}

	s.registerHandlers()

	st.SetHeartbeatRestart(s.RestartHeartbeat)
	st.SetStopTransactionFunc(func(ctx context.Context, connectorID int, reason string) (bool, error) {
		return s.StopTransaction(ctx, connectorID, ocpp16.Reason(reason))
	})
	rt.SetInboundHandler(s.HandleIncoming)

	return s
}

// SetFtpClient 注入诊断上传使用的FTP客户端
func (s *Service) SetFtpClient(client station.FtpClient) {
	s.ftp = client
}

// registerHandlers 构建命令到处理器的映射表
func (s *Service) registerHandlers() {
	s.handlers = map[ocpp16.Action]handlerFunc{
		ocpp16.ActionReset:                  s.handleReset,
		ocpp16.ActionClearCache:             s.handleClearCache,
		ocpp16.ActionUnlockConnector:        s.handleUnlockConnector,
		ocpp16.ActionGetConfiguration:       s.handleGetConfiguration,
		ocpp16.ActionChangeConfiguration:    s.handleChangeConfiguration,
		ocpp16.ActionSetChargingProfile:     s.handleSetChargingProfile,
		ocpp16.ActionClearChargingProfile:   s.handleClearChargingProfile,
		ocpp16.ActionGetCompositeSchedule:   s.handleGetCompositeSchedule,
		ocpp16.ActionChangeAvailability:     s.handleChangeAvailability,
		ocpp16.ActionRemoteStartTransaction: s.handleRemoteStartTransaction,
		ocpp16.ActionRemoteStopTransaction:  s.handleRemoteStopTransaction,
		ocpp16.ActionGetDiagnostics:         s.handleGetDiagnostics,
		ocpp16.ActionTriggerMessage:         s.handleTriggerMessage,
		ocpp16.ActionDataTransfer:           s.handleDataTransfer,
		ocpp16.ActionUpdateFirmware:         s.handleUpdateFirmware,
		ocpp16.ActionReserveNow:             s.handleReserveNow,
		ocpp16.ActionCancelReservation:      s.handleCancelReservation,
	}

	s.actionProfiles = map[ocpp16.Action]string{
		ocpp16.ActionReset:                  station.ProfileCore,
		ocpp16.ActionClearCache:             station.ProfileCore,
		ocpp16.ActionUnlockConnector:        station.ProfileCore,
		ocpp16.ActionGetConfiguration:       station.ProfileCore,
		ocpp16.ActionChangeConfiguration:    station.ProfileCore,
		ocpp16.ActionChangeAvailability:     station.ProfileCore,
		ocpp16.ActionRemoteStartTransaction: station.ProfileCore,
		ocpp16.ActionRemoteStopTransaction:  station.ProfileCore,
		ocpp16.ActionDataTransfer:           station.ProfileCore,
		ocpp16.ActionSetChargingProfile:     station.ProfileSmartCharging,
		ocpp16.ActionClearChargingProfile:   station.ProfileSmartCharging,
		ocpp16.ActionGetCompositeSchedule:   station.ProfileSmartCharging,
		ocpp16.ActionGetDiagnostics:         station.ProfileFirmwareManagement,
		ocpp16.ActionUpdateFirmware:         station.ProfileFirmwareManagement,
		ocpp16.ActionTriggerMessage:         station.ProfileRemoteTrigger,
		ocpp16.ActionReserveNow:             station.ProfileReservation,
		ocpp16.ActionCancelReservation:      station.ProfileReservation,
	}
}

// profileEnabled 动作所属特性档是否启用
func (s *Service) profileEnabled(action ocpp16.Action) bool {
	profile, ok := s.actionProfiles[action]
	if !ok {
		return false
	}
	supported, ok := s.station.ConfigStore().GetValue(station.KeySupportedFeatureProfiles)
	if !ok {
		return profile == station.ProfileCore
	}
	for _, p := range strings.Split(supported, ",") {
		if strings.TrimSpace(p) == profile {
			return true
		}
	}
	return false
}

// configBool 读取布尔配置键
func (s *Service) configBool(key string) bool {
	value, ok := s.station.ConfigStore().GetValue(key)
	if !ok {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	return err == nil && parsed
}

// configSeconds 读取秒数配置键
func (s *Service) configSeconds(key string, fallback time.Duration) time.Duration {
	value, ok := s.station.ConfigStore().GetValue(key)
	if !ok {
		return fallback
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// publish 发布站点事件，总线缺省时丢弃
func (s *Service) publish(eventType events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(s.factory.New(eventType, s.station.ID(), payload))
}

// now 站点时钟当前时间
func (s *Service) now() ocpp16.DateTime {
	return ocpp16.NewDateTime(s.station.Clock().Now())
}

// runAsync 运行即发即弃的副作用任务，错误只记录不回传
func (s *Service) runAsync(name string, fn func()) {
	s.station.Spawn(name, func(stop <-chan struct{}) {
		fn()
	})
}
