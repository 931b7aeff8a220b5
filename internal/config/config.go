package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config 模拟器配置结构
type Config struct {
	App         AppConfig         `mapstructure:"app"`
	CSMS        CSMSConfig        `mapstructure:"csms"`
	Stations    []StationConfig   `mapstructure:"stations"`
	OCPP        OCPPConfig        `mapstructure:"ocpp"`
	WebSocket   WebSocketConfig   `mapstructure:"websocket"`
	Firmware    FirmwareConfig    `mapstructure:"firmware"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Registry    RegistryConfig    `mapstructure:"registry"`
	Telemetry   TelemetryConfig   `mapstructure:"telemetry"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	Log         LogConfig         `mapstructure:"log"`
}

// AppConfig 应用程序基本信息
type AppConfig struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
	Profile string `mapstructure:"profile"`
}

// CSMSConfig 中央系统连接配置
type CSMSConfig struct {
	URL               string        `mapstructure:"url"`
	BasicAuthUser     string        `mapstructure:"basic_auth_user"`
	BasicAuthPassword string        `mapstructure:"basic_auth_password"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	MaxReconnects     int           `mapstructure:"max_reconnects"`
}

// StationConfig 单个模拟充电站配置
type StationConfig struct {
	ID                   string `mapstructure:"id"`
	OCPPVersion          string `mapstructure:"ocpp_version"` // "1.6" or "2.0.1"
	Vendor               string `mapstructure:"vendor"`
	Model                string `mapstructure:"model"`
	SerialNumber         string `mapstructure:"serial_number"`
	FirmwareVersion      string `mapstructure:"firmware_version"`
	ConnectorCount       int    `mapstructure:"connector_count"`
	EvseCount            int    `mapstructure:"evse_count"`
	StrictCompliance     bool   `mapstructure:"ocpp_strict_compliance"`
	PowerShared          bool   `mapstructure:"power_shared_by_connectors"`
	AuthorizeRemoteTx    bool   `mapstructure:"authorize_remote_tx_requests"`
	LocalAuthListEnabled bool   `mapstructure:"local_auth_list_enabled"`
	MustAuthorizeAtStart bool   `mapstructure:"must_authorize_at_remote_start"`
	LocalAuthTags        []string `mapstructure:"local_auth_tags"`
	VendorIDs            []string `mapstructure:"vendor_ids"` // DataTransfer认可的vendorId
}

// OCPPConfig OCPP协议引擎配置
type OCPPConfig struct {
	RequestTimeout          time.Duration `mapstructure:"request_timeout"`
	TriggerMessageDelay     time.Duration `mapstructure:"trigger_message_delay"`
	IdleResetPollInterval   time.Duration `mapstructure:"idle_reset_poll_interval"`
	HeartbeatInterval       time.Duration `mapstructure:"heartbeat_interval"`
	MeterValueSampleInterval time.Duration `mapstructure:"meter_value_sample_interval"`
	MaxMessageSize          int           `mapstructure:"max_message_size"`
}

// WebSocketConfig WebSocket客户端配置
type WebSocketConfig struct {
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	WriteBufferSize  int           `mapstructure:"write_buffer_size"`
	HandshakeTimeout time.Duration `mapstructure:"handshake_timeout"`
	PingInterval     time.Duration `mapstructure:"ping_interval"`
	PongTimeout      time.Duration `mapstructure:"pong_timeout"`
	MaxMessageSize   int64         `mapstructure:"max_message_size"`
}

// FirmwareConfig 固件升级模拟配置
type FirmwareConfig struct {
	MinDelay      time.Duration `mapstructure:"min_delay"`
	MaxDelay      time.Duration `mapstructure:"max_delay"`
	FailureStatus string        `mapstructure:"failure_status"` // DownloadFailed / InstallationFailed / 空
	ResetOnUpgrade bool         `mapstructure:"reset_on_upgrade"`
	TransactionPollInterval time.Duration `mapstructure:"transaction_poll_interval"`
}

// DiagnosticsConfig 诊断上传配置
type DiagnosticsConfig struct {
	LogDir      string `mapstructure:"log_dir"`
	ArchiveName string `mapstructure:"archive_name"`
}

// RegistryConfig Redis车队注册表配置
type RegistryConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	TTL          time.Duration `mapstructure:"ttl"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// TelemetryConfig Kafka遥测配置
type TelemetryConfig struct {
	Enabled        bool           `mapstructure:"enabled"`
	Brokers        []string       `mapstructure:"brokers"`
	Topic          string         `mapstructure:"topic"`
	Producer       ProducerConfig `mapstructure:"producer"`
}

// ProducerConfig Kafka生产者配置
type ProducerConfig struct {
	RetryMax       int           `mapstructure:"retry_max"`
	ReturnSuccess  bool          `mapstructure:"return_successes"`
	FlushFrequency time.Duration `mapstructure:"flush_frequency"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	MetricsAddr  string `mapstructure:"metrics_addr"`
	PprofEnabled bool   `mapstructure:"pprof_enabled"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
	Async  bool   `mapstructure:"async"`
}

// Load 加载配置 - 多环境配置: application.yaml + application-{profile}.yaml
func Load() (*Config, error) {
	// 1. 设置默认值
	setDefaults()

	// 2. 确定运行环境
	profile := getProfile()

	// 3. 加载默认配置文件 application.yaml
	if err := loadConfigFile("application"); err != nil {
		fmt.Printf("Warning: Could not load default config file: %v\n", err)
	}

	// 4. 加载环境特定配置文件 application-{profile}.yaml
	if profile != "" {
		configName := fmt.Sprintf("application-%s", profile)
		if err := loadConfigFile(configName); err != nil {
			fmt.Printf("Warning: Could not load profile config file %s: %v\n", configName, err)
		}
	}

	// 5. 环境变量覆盖配置文件（最高优先级）
	setupEnvironmentVariables()

	// 6. 解析最终配置
	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.App.Profile = profile

	// 7. 打印配置加载信息（调试用）
	printConfigInfo(&cfg)

	return &cfg, nil
}

// printConfigInfo 打印配置加载信息（调试用）
func printConfigInfo(cfg *Config) {
	fmt.Printf("=== Configuration Loaded ===\n")

	// 应用信息
	fmt.Printf("App:\n")
	fmt.Printf("  Name: %s\n", cfg.App.Name)
	fmt.Printf("  Version: %s\n", cfg.App.Version)
	fmt.Printf("  Profile: %s\n", cfg.App.Profile)

	// CSMS连接
	fmt.Printf("CSMS:\n")
	fmt.Printf("  URL: %s\n", cfg.CSMS.URL)
	fmt.Printf("  Reconnect Interval: %v\n", cfg.CSMS.ReconnectInterval)
	fmt.Printf("  Max Reconnects: %d\n", cfg.CSMS.MaxReconnects)

	// 站点
	fmt.Printf("Stations: %d\n", len(cfg.Stations))
	for _, station := range cfg.Stations {
		fmt.Printf("  - %s (OCPP %s, %d connectors, strict=%v)\n",
			station.ID, station.OCPPVersion, station.ConnectorCount, station.StrictCompliance)
	}

	// OCPP引擎
	fmt.Printf("OCPP:\n")
	fmt.Printf("  Request Timeout: %v\n", cfg.OCPP.RequestTimeout)
	fmt.Printf("  Trigger Message Delay: %v\n", cfg.OCPP.TriggerMessageDelay)
	fmt.Printf("  Idle Reset Poll Interval: %v\n", cfg.OCPP.IdleResetPollInterval)
	fmt.Printf("  Heartbeat Interval: %v\n", cfg.OCPP.HeartbeatInterval)
	fmt.Printf("  Meter Value Sample Interval: %v\n", cfg.OCPP.MeterValueSampleInterval)
	fmt.Printf("  Max Message Size: %d\n", cfg.OCPP.MaxMessageSize)

	// WebSocket
	fmt.Printf("WebSocket:\n")
	fmt.Printf("  Handshake Timeout: %v\n", cfg.WebSocket.HandshakeTimeout)
	fmt.Printf("  Ping Interval: %v\n", cfg.WebSocket.PingInterval)
	fmt.Printf("  Pong Timeout: %v\n", cfg.WebSocket.PongTimeout)
	fmt.Printf("  Max Message Size: %d\n", cfg.WebSocket.MaxMessageSize)

	// 固件升级模拟
	fmt.Printf("Firmware:\n")
	fmt.Printf("  Delay: %v .. %v\n", cfg.Firmware.MinDelay, cfg.Firmware.MaxDelay)
	fmt.Printf("  Failure Status: %q\n", cfg.Firmware.FailureStatus)
	fmt.Printf("  Reset On Upgrade: %v\n", cfg.Firmware.ResetOnUpgrade)

	// 车队注册表
	fmt.Printf("Registry:\n")
	fmt.Printf("  Enabled: %v\n", cfg.Registry.Enabled)
	if cfg.Registry.Enabled {
		fmt.Printf("  Address: %s\n", cfg.Registry.Addr)
		fmt.Printf("  TTL: %v\n", cfg.Registry.TTL)
	}

	// 遥测
	fmt.Printf("Telemetry:\n")
	fmt.Printf("  Enabled: %v\n", cfg.Telemetry.Enabled)
	if cfg.Telemetry.Enabled {
		fmt.Printf("  Brokers: %v\n", cfg.Telemetry.Brokers)
		fmt.Printf("  Topic: %s\n", cfg.Telemetry.Topic)
	}

	// 监控与日志
	fmt.Printf("Monitoring:\n")
	fmt.Printf("  Metrics Address: %s\n", cfg.Monitoring.MetricsAddr)
	fmt.Printf("Log:\n")
	fmt.Printf("  Level: %s\n", cfg.Log.Level)
	fmt.Printf("  Format: %s\n", cfg.Log.Format)
	fmt.Printf("  Output: %s\n", cfg.Log.Output)

	fmt.Printf("============================\n")
}

// getProfile 获取运行环境配置
func getProfile() string {
	if profile := os.Getenv("APP_PROFILE"); profile != "" {
		return profile
	}
	if profile := viper.GetString("app.profile"); profile != "" {
		return profile
	}
	return "local"
}

// loadConfigFile 加载指定的配置文件
func loadConfigFile(configName string) error {
	viper.SetConfigName(configName)
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	return viper.MergeInConfig()
}

// setupEnvironmentVariables 设置环境变量映射
func setupEnvironmentVariables() {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.BindEnv("csms.url", "CSMS_URL")
	viper.BindEnv("log.level", "LOG_LEVEL")
	viper.BindEnv("registry.addr", "REDIS_ADDR")
	viper.BindEnv("monitoring.metrics_addr", "MONITORING_METRICS_ADDR")
	viper.BindEnv("app.profile", "APP_PROFILE")

	// 逗号分隔的多个broker地址
	if kafkaBrokers := os.Getenv("KAFKA_BROKERS"); kafkaBrokers != "" {
		brokers := strings.Split(kafkaBrokers, ",")
		for i, broker := range brokers {
			brokers[i] = strings.TrimSpace(broker)
		}
		viper.Set("telemetry.brokers", brokers)
	}
}

// setDefaults 设置默认配置
func setDefaults() {
	// 应用信息
	viper.SetDefault("app.name", "charge-station-simulator")
	viper.SetDefault("app.version", "1.0.0")
	viper.SetDefault("app.profile", "local")

	// CSMS连接
	viper.SetDefault("csms.url", "ws://localhost:8080/ocpp")
	viper.SetDefault("csms.reconnect_interval", "5s")
	viper.SetDefault("csms.max_reconnects", 0) // 0 = 无限重连

	// OCPP引擎
	viper.SetDefault("ocpp.request_timeout", "30s")
	viper.SetDefault("ocpp.trigger_message_delay", "500ms")
	viper.SetDefault("ocpp.idle_reset_poll_interval", "5s")
	viper.SetDefault("ocpp.heartbeat_interval", "300s")
	viper.SetDefault("ocpp.meter_value_sample_interval", "60s")
	viper.SetDefault("ocpp.max_message_size", 1048576) // 1MB

	// WebSocket
	viper.SetDefault("websocket.read_buffer_size", 4096)
	viper.SetDefault("websocket.write_buffer_size", 4096)
	viper.SetDefault("websocket.handshake_timeout", "10s")
	viper.SetDefault("websocket.ping_interval", "30s")
	viper.SetDefault("websocket.pong_timeout", "10s")
	viper.SetDefault("websocket.max_message_size", 1048576)

	// 固件升级模拟
	viper.SetDefault("firmware.min_delay", "5s")
	viper.SetDefault("firmware.max_delay", "15s")
	viper.SetDefault("firmware.failure_status", "")
	viper.SetDefault("firmware.reset_on_upgrade", true)
	viper.SetDefault("firmware.transaction_poll_interval", "15s")

	// 诊断上传
	viper.SetDefault("diagnostics.log_dir", "./logs")
	viper.SetDefault("diagnostics.archive_name", "diagnostics")

	// 车队注册表
	viper.SetDefault("registry.enabled", false)
	viper.SetDefault("registry.addr", "localhost:6379")
	viper.SetDefault("registry.password", "")
	viper.SetDefault("registry.db", 0)
	viper.SetDefault("registry.pool_size", 100)
	viper.SetDefault("registry.ttl", "5m")
	viper.SetDefault("registry.dial_timeout", "5s")
	viper.SetDefault("registry.read_timeout", "3s")
	viper.SetDefault("registry.write_timeout", "3s")

	// 遥测
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.brokers", []string{"localhost:9092"})
	viper.SetDefault("telemetry.topic", "simulator-events")
	viper.SetDefault("telemetry.producer.retry_max", 3)
	viper.SetDefault("telemetry.producer.return_successes", true)
	viper.SetDefault("telemetry.producer.flush_frequency", "500ms")

	// 监控
	viper.SetDefault("monitoring.metrics_addr", ":9090")
	viper.SetDefault("monitoring.pprof_enabled", false)

	// 日志
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
}

// GetMetricsAddr 获取监控地址
func (c *Config) GetMetricsAddr() string {
	return c.Monitoring.MetricsAddr
}

// IsProduction 判断是否为生产环境
func (c *Config) IsProduction() bool {
	return c.App.Profile == "prod"
}

// IsTest 判断是否为测试环境
func (c *Config) IsTest() bool {
	return c.App.Profile == "test" || c.App.Profile == "local"
}
