package v201

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/devicemodel"
	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/validation"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
)

// handlerFunc 入站命令处理函数，rawSize为入站载荷字节数
type handlerFunc func(ctx context.Context, payload interface{}, rawSize int) (interface{}, error)

// Service OCPP 2.0.1协议引擎
type Service struct {
	station   *station.Station
	router    *router.Router
	validator *validation.Validator

	deviceModel devicemodel.Manager

	bus     *events.Bus
	factory *events.Factory

	ocppCfg config.OCPPConfig

	handlers map[ocpp201.Action]handlerFunc

	heartbeatRestartCh chan struct{}
	heartbeatStarted   bool

	meterTasks map[int]chan struct{}

	// 待推送NotifyReport的requestId，应答发出后消费
	pendingReports []int

	mu sync.Mutex

	log *logger.Logger
}

// NewService 创建V201协议服务
func NewService(st *station.Station, rt *router.Router, deviceModel devicemodel.Manager, ocppCfg config.OCPPConfig, bus *events.Bus, log *logger.Logger) *Service {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	s := &Service{
		station:            st,
		router:             rt,
		validator:          validation.NewValidator(),
		deviceModel:        deviceModel,
		bus:                bus,
		factory:            events.NewFactory(),
		ocppCfg:            ocppCfg,
		heartbeatRestartCh: make(chan struct{}, 1),
		meterTasks:         make(map[int]chan struct{}),
		log:                log.WithStation(st.ID()),
	}

	s.registerHandlers()

	st.SetHeartbeatRestart(s.RestartHeartbeat)
	st.SetStopTransactionFunc(func(ctx context.Context, connectorID int, reason string) (bool, error) {
		return s.stopTransactionWithReason(ctx, connectorID, ocpp201.StoppedReason(reason), TriggerContext{RemoteCommand: CommandRequestStop})
	})
	rt.SetInboundHandler(s.HandleIncoming)

	return s
}

// registerHandlers 构建命令到处理器的映射表
func (s *Service) registerHandlers() {
	s.handlers = map[ocpp201.Action]handlerFunc{
		ocpp201.ActionClearCache:              s.handleClearCache,
		ocpp201.ActionReset:                   s.handleReset,
		ocpp201.ActionGetBaseReport:           s.handleGetBaseReport,
		ocpp201.ActionGetVariables:            s.handleGetVariables,
		ocpp201.ActionSetVariables:            s.handleSetVariables,
		ocpp201.ActionRequestStartTransaction: s.handleRequestStartTransaction,
		ocpp201.ActionRequestStopTransaction:  s.handleRequestStopTransaction,
	}
}

// publish 发布站点事件
func (s *Service) publish(eventType events.EventType, payload interface{}) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(s.factory.New(eventType, s.station.ID(), payload))
}

// now 站点时钟当前时间
func (s *Service) now() ocpp201.DateTime {
	return ocpp201.NewDateTime(s.station.Clock().Now())
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

// runAsync 即发即弃的副作用任务
func (s *Service) runAsync(name string, fn func()) {
	s.station.Spawn(name, func(stop <-chan struct{}) {
		fn()
	})
}

// rawSize 序列化后的字节数
func rawSize(payload json.RawMessage) int {
	return len(payload)
}
