package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/diode"
	"github.com/rs/zerolog/log"
)

// Logger 日志管理器
type Logger struct {
	logger zerolog.Logger
	config *Config
}

// Config 日志配置
type Config struct {
	Level      string `json:"level"`      // 日志级别: debug, info, warn, error
	Format     string `json:"format"`     // 输出格式: console, json
	Output     string `json:"output"`     // 输出目标: stdout, stderr, file path
	TimeFormat string `json:"timeFormat"` // 时间格式
	Caller     bool   `json:"caller"`     // 是否显示调用者信息
	Async      bool   `json:"async"`      // 是否启用异步日志
}

// DefaultConfig 默认日志配置
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Caller:     false,
		Async:      false,
	}
}

// New 创建新的日志管理器
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	// 设置全局时间格式
	zerolog.TimeFieldFormat = config.TimeFormat

	// 设置日志级别
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}
	zerolog.SetGlobalLevel(level)

	// 配置输出目标
	var output io.Writer
	switch strings.ToLower(config.Output) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	default:
		// 文件输出
		if err := ensureDir(filepath.Dir(config.Output)); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		output = file
	}

	// 如果启用异步，使用diode包装输出
	if config.Async {
		output = diode.NewWriter(output, 1000, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "Logger dropped %d messages\n", missed)
		})
	}

	// 配置输出格式
	var logger zerolog.Logger
	switch strings.ToLower(config.Format) {
	case "console":
		logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
		})
	case "json":
		logger = zerolog.New(output)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}

	// 添加时间戳
	logger = logger.With().Timestamp().Logger()

	// 添加调用者信息
	if config.Caller {
		logger = logger.With().Caller().Logger()
	}

	logger = logger.Level(level)

	// 设置为全局日志器
	log.Logger = logger

	globalLogger = &Logger{
		logger: logger,
		config: config,
	}

	return &Logger{
		logger: logger,
		config: config,
	}, nil
}

// GetLogger 获取日志器实例
func (l *Logger) GetLogger() zerolog.Logger {
	return l.logger
}

// WithStation 创建带充电站标识的子日志器，station字段用于日志关联
func (l *Logger) WithStation(stationID string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("station", stationID).Logger(),
		config: l.config,
	}
}

// WithComponent 创建带组件名的子日志器
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		logger: l.logger.With().Str("component", name).Logger(),
		config: l.config,
	}
}

// Debug 调试日志
func (l *Logger) Debug(msg string) {
	l.logger.Debug().Msg(msg)
}

// Debugf 格式化调试日志
func (l *Logger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info 信息日志
func (l *Logger) Info(msg string) {
	l.logger.Info().Msg(msg)
}

// Infof 格式化信息日志
func (l *Logger) Infof(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string) {
	l.logger.Warn().Msg(msg)
}

// Warnf 格式化警告日志
func (l *Logger) Warnf(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Error 错误日志
func (l *Logger) Error(msg string) {
	l.logger.Error().Msg(msg)
}

// Errorf 格式化错误日志
func (l *Logger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// ErrorWithErr 带错误对象的错误日志
func (l *Logger) ErrorWithErr(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

// Fatalf 格式化致命错误日志
func (l *Logger) Fatalf(format string, args ...interface{}) {
	l.logger.Fatal().Msgf(format, args...)
}

// SetLevel 动态设置日志级别
func (l *Logger) SetLevel(level string) error {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %s: %w", level, err)
	}

	l.logger = l.logger.Level(lvl)
	l.config.Level = level
	return nil
}

// GetLevel 获取当前日志级别
func (l *Logger) GetLevel() string {
	return l.config.Level
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}

// 全局便捷函数
var globalLogger *Logger

// InitGlobalLogger 初始化全局日志器
func InitGlobalLogger(config *Config) error {
	logger, err := New(config)
	if err != nil {
		return err
	}
	globalLogger = logger
	return nil
}

// Debugf 全局格式化调试日志
func Debugf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Debugf(format, args...)
	}
}

// Infof 全局格式化信息日志
func Infof(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Infof(format, args...)
	}
}

// Warnf 全局格式化警告日志
func Warnf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Warnf(format, args...)
	}
}

// Errorf 全局格式化错误日志
func Errorf(format string, args ...interface{}) {
	if globalLogger != nil {
		globalLogger.Errorf(format, args...)
	}
}

// ErrorWithErr 全局带错误对象的错误日志
func ErrorWithErr(err error, msg string) {
	if globalLogger != nil {
		globalLogger.ErrorWithErr(err, msg)
	}
}
