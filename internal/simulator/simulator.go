package simulator

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/devicemodel"
	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/ocpp/router"
	ocpp201 "github.com/charging-platform/charge-station-simulator/internal/ocpp/v201"
	"github.com/charging-platform/charge-station-simulator/internal/registry"
	v16svc "github.com/charging-platform/charge-station-simulator/internal/service/v16"
	v201svc "github.com/charging-platform/charge-station-simulator/internal/service/v201"
	"github.com/charging-platform/charge-station-simulator/internal/station"
	"github.com/charging-platform/charge-station-simulator/internal/transport/websocket"
)

// Instance 一个装配完成的模拟站点
type Instance struct {
	Station *station.Station
	Client  *websocket.Client
	Router  *router.Router

	Service16  *v16svc.Service
	Service201 *v201svc.Service
}

// Simulator 站点车队
type Simulator struct {
	cfg *config.Config

	instances []*Instance

	bus         *events.Bus
	deviceModel devicemodel.Manager
	registry    registry.FleetRegistry

	log *logger.Logger
}

// New 按配置装配车队
func New(cfg *config.Config, bus *events.Bus, fleetRegistry registry.FleetRegistry, log *logger.Logger) (*Simulator, error) {
	if log == nil {
		log, _ = logger.New(logger.DefaultConfig())
	}

	sim := &Simulator{
		cfg:         cfg,
		bus:         bus,
		deviceModel: devicemodel.NewVariableManager(log),
		registry:    fleetRegistry,
		log:         log,
	}

	for _, stationCfg := range cfg.Stations {
		instance, err := sim.buildInstance(stationCfg)
		if err != nil {
			return nil, fmt.Errorf("failed to build station %s: %w", stationCfg.ID, err)
		}
		sim.instances = append(sim.instances, instance)
	}

	return sim, nil
}

// DeviceModel 设备模型管理器
func (s *Simulator) DeviceModel() devicemodel.Manager {
	return s.deviceModel
}

// Instances 车队中的站点
func (s *Simulator) Instances() []*Instance {
	return s.instances
}

// buildInstance 装配单个站点：传输、路由器、协议服务、钩子
func (s *Simulator) buildInstance(stationCfg config.StationConfig) (*Instance, error) {
	st := station.New(stationCfg, station.WallClock{}, station.NewDefaultRNG(), s.log)

	subprotocol := websocket.SubprotocolOCPP16
	if st.Version() == station.VersionV201 {
		subprotocol = websocket.SubprotocolOCPP201
	}

	client, err := websocket.NewClient(st.ID(), subprotocol, s.cfg.CSMS, s.cfg.WebSocket, s.log)
	if err != nil {
		return nil, err
	}

	rt := router.New(st.ID(), client, s.cfg.OCPP.RequestTimeout, s.log)
	client.SetOnFrame(rt.HandleFrame)

	st.SetWebSocketPingRestart(func() {
		if value, ok := st.ConfigStore().GetValue(station.KeyWebSocketPingInterval); ok {
			if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
				client.RestartPing(time.Duration(seconds) * time.Second)
			}
		}
	})

	instance := &Instance{Station: st, Client: client, Router: rt}

	if st.Version() == station.VersionV201 {
		instance.Service201 = v201svc.NewService(st, rt, s.deviceModel, s.cfg.OCPP, s.bus, s.log)
	} else {
		instance.Service16 = v16svc.NewService(st, rt, s.cfg.OCPP, s.cfg.Firmware, s.cfg.Diagnostics, s.bus, s.log)
	}

	client.SetOnOpen(func() {
		s.onConnected(instance)
	})
	client.SetOnClose(func(err error) {
		st.Logger().Warnf("Connection to CSMS lost: %v", err)
		if s.bus != nil {
			s.bus.Publish(events.NewFactory().New(events.EventTypeStationDisconnected, st.ID(), nil))
		}
	})

	return instance, nil
}

// onConnected 连接建立后的站点侧动作：重放缓冲、启动通知、清离线队列、上报注册表
func (s *Simulator) onConnected(instance *Instance) {
	st := instance.Station
	ctx := context.Background()

	if s.bus != nil {
		s.bus.Publish(events.NewFactory().New(events.EventTypeStationConnected, st.ID(), nil))
	}

	instance.Router.OnReconnect()

	st.Spawn("boot-sequence", func(stop <-chan struct{}) {
		if instance.Service201 != nil {
			if err := instance.Service201.SendBootNotification(ctx, ocpp201.BootReasonPowerUp, nil); err != nil {
				st.Logger().Errorf("BootNotification failed: %v", err)
			}
			instance.Service201.SendQueuedTransactionEvents(ctx)
		} else if instance.Service16 != nil {
			if err := instance.Service16.SendBootNotification(ctx, nil); err != nil {
				st.Logger().Errorf("BootNotification failed: %v", err)
			}
		}

		s.refreshRegistration(ctx, st)
	})
}

// refreshRegistration 上报注册表
func (s *Simulator) refreshRegistration(ctx context.Context, st *station.Station) {
	if s.registry == nil {
		return
	}
	if err := s.registry.SetStation(ctx, st.ID(), string(st.Registration()), s.cfg.Registry.TTL); err != nil {
		st.Logger().Warnf("Fleet registry update failed: %v", err)
	}
}

// Start 启动车队
func (s *Simulator) Start() {
	for _, instance := range s.instances {
		instance.Client.Start()

		// 注册表保活
		if s.registry != nil {
			st := instance.Station
			refreshInterval := s.cfg.Registry.TTL / 2
			if refreshInterval <= 0 {
				refreshInterval = time.Minute
			}
			st.Spawn("registry-refresh", func(stop <-chan struct{}) {
				ticker := time.NewTicker(refreshInterval)
				defer ticker.Stop()
				for {
					select {
					case <-stop:
						return
					case <-ticker.C:
						s.refreshRegistration(context.Background(), st)
					}
				}
			})
		}
	}
	s.log.Infof("Simulator started with %d stations", len(s.instances))
}

// Stop 停止车队：后台任务取消、挂起请求清空、运行时覆盖清除
func (s *Simulator) Stop() {
	for _, instance := range s.instances {
		st := instance.Station
		st.Stop()
		instance.Router.Stop()
		instance.Client.Stop()

		s.deviceModel.ResetRuntimeOverrides(st.ID())

		if s.registry != nil {
			if err := s.registry.DeleteStation(context.Background(), st.ID()); err != nil {
				s.log.Warnf("Failed to deregister station %s: %v", st.ID(), err)
			}
		}
	}
	s.log.Info("Simulator stopped")
}
