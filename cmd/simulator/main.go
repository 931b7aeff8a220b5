package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/charging-platform/charge-station-simulator/internal/config"
	"github.com/charging-platform/charge-station-simulator/internal/events"
	"github.com/charging-platform/charge-station-simulator/internal/logger"
	"github.com/charging-platform/charge-station-simulator/internal/registry"
	"github.com/charging-platform/charge-station-simulator/internal/simulator"
	"github.com/charging-platform/charge-station-simulator/internal/telemetry"
)

func main() {
	// 1. 加载配置
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	log, err := logger.New(&logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: cfg.Log.Output,
		Async:  cfg.Log.Async,
	})
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	log.Info("Logger initialized")

	// 3. 事件总线
	bus := events.NewBus(4096)

	// 4. 可选：车队注册表
	var fleetRegistry registry.FleetRegistry
	if cfg.Registry.Enabled {
		fleetRegistry, err = registry.NewRedisRegistry(cfg.Registry)
		if err != nil {
			log.Fatalf("Failed to initialize fleet registry: %v", err)
		}
		log.Info("Fleet registry initialized")
	}

	// 5. 可选：Kafka遥测
	var publisher *telemetry.Publisher
	if cfg.Telemetry.Enabled {
		publisher, err = telemetry.NewPublisher(cfg.Telemetry, log)
		if err != nil {
			log.Fatalf("Failed to initialize telemetry publisher: %v", err)
		}
		go publisher.Run(bus)
		log.Info("Telemetry publisher initialized")
	}

	// 6. 装配车队
	sim, err := simulator.New(cfg, bus, fleetRegistry, log)
	if err != nil {
		log.Fatalf("Failed to build simulator: %v", err)
	}

	// 7. 监控端点
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.GetMetricsAddr(), nil); err != nil {
			log.Errorf("Metrics server stopped: %v", err)
		}
	}()

	// 8. 启动
	sim.Start()
	log.Infof("Charge station simulator %s started, connecting to %s", cfg.App.Version, cfg.CSMS.URL)

	// 9. 等待退出信号
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("Shutting down")
	sim.Stop()
	sim.DeviceModel().Shutdown()
	if publisher != nil {
		publisher.Close()
	}
	if fleetRegistry != nil {
		fleetRegistry.Close()
	}
	bus.Close()
}
