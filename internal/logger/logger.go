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

// Logger 日志管理器，对 zerolog.Logger 的轻量封装
type Logger struct {
	logger  zerolog.Logger
	config  *Config
	closers []io.Closer
}

// Config 日志配置
type Config struct {
	Level      string `mapstructure:"level"`       // 日志级别: debug, info, warn, error
	Format     string `mapstructure:"format"`      // 输出格式: console, json
	Output     string `mapstructure:"output"`      // 输出目标: stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // 时间格式
	Caller     bool   `mapstructure:"caller"`      // 是否显示调用者信息
	Async      bool   `mapstructure:"async"`       // 是否启用异步日志
}

// DefaultConfig 默认日志配置
func DefaultConfig() *Config {
	return &Config{
		Level:      "info",
		Format:     "console",
		Output:     "stdout",
		TimeFormat: time.RFC3339,
		Caller:     true,
		Async:      false,
	}
}

// New 创建新的日志管理器
func New(config *Config) (*Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if config.TimeFormat == "" {
		config.TimeFormat = time.RFC3339
	}

	zerolog.TimeFieldFormat = config.TimeFormat

	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %s: %w", config.Level, err)
	}

	l := &Logger{config: config}

	var output io.Writer
	switch strings.ToLower(config.Output) {
	case "", "stdout":
		output = writerOnly{os.Stdout}
	case "stderr":
		output = writerOnly{os.Stderr}
	default:
		if err := ensureDir(filepath.Dir(config.Output)); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		file, err := os.OpenFile(config.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file %s: %w", config.Output, err)
		}
		output = file
		l.closers = append(l.closers, file)
	}

	// 异步模式下由diode缓冲，缓冲区满时丢弃并计数；diode关闭时会连带关闭下层文件
	if config.Async {
		dw := diode.NewWriter(output, 1000, 10*time.Millisecond, func(missed int) {
			fmt.Fprintf(os.Stderr, "Logger dropped %d messages\n", missed)
		})
		output = dw
		l.closers = []io.Closer{dw}
	}

	var zl zerolog.Logger
	switch strings.ToLower(config.Format) {
	case "console":
		zl = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: config.TimeFormat,
		})
	case "json":
		zl = zerolog.New(output)
	default:
		return nil, fmt.Errorf("unsupported log format: %s", config.Format)
	}

	zl = zl.With().Timestamp().Logger()
	if config.Caller {
		zl = zl.With().Caller().Logger()
	}
	zl = zl.Level(level)

	// 第三方库通过 zerolog/log 输出时使用同一配置
	log.Logger = zl

	l.logger = zl
	return l, nil
}

// NewWithWriter 输出到指定writer的JSON日志器，主要用于测试断言日志内容
func NewWithWriter(w io.Writer, level string) *Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return &Logger{
		logger: zerolog.New(w).With().Timestamp().Logger().Level(lvl),
		config: &Config{Level: lvl.String(), Format: "json"},
	}
}

// Nop 不输出任何内容的日志器
func Nop() *Logger {
	return &Logger{logger: zerolog.Nop(), config: &Config{Level: "disabled"}}
}

// GetLogger 获取底层 zerolog 实例，用于结构化字段日志
func (l *Logger) GetLogger() *zerolog.Logger {
	return &l.logger
}

// With 派生带固定字段的子日志器
func (l *Logger) With(fields map[string]interface{}) *Logger {
	return &Logger{logger: l.logger.With().Fields(fields).Logger(), config: l.config}
}

// WithComponent 派生带 component 字段的子日志器
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{logger: l.logger.With().Str("component", name).Logger(), config: l.config}
}

// WithChargePoint 派生带 charge_point_id 字段的子日志器
func (l *Logger) WithChargePoint(chargePointID string) *Logger {
	return &Logger{logger: l.logger.With().Str("charge_point_id", chargePointID).Logger(), config: l.config}
}

func (l *Logger) Debug(msg string) { l.logger.Debug().Msg(msg) }

func (l *Logger) Debugf(format string, args ...interface{}) { l.logger.Debug().Msgf(format, args...) }

func (l *Logger) Info(msg string) { l.logger.Info().Msg(msg) }

func (l *Logger) Infof(format string, args ...interface{}) { l.logger.Info().Msgf(format, args...) }

func (l *Logger) Warn(msg string) { l.logger.Warn().Msg(msg) }

func (l *Logger) Warnf(format string, args ...interface{}) { l.logger.Warn().Msgf(format, args...) }

func (l *Logger) Error(msg string) { l.logger.Error().Msg(msg) }

func (l *Logger) Errorf(format string, args ...interface{}) { l.logger.Error().Msgf(format, args...) }

// ErrorWithErr 带错误对象的错误日志
func (l *Logger) ErrorWithErr(err error, msg string) {
	l.logger.Error().Err(err).Msg(msg)
}

func (l *Logger) Fatalf(format string, args ...interface{}) { l.logger.Fatal().Msgf(format, args...) }

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

// Close 刷新异步缓冲并关闭日志文件
func (l *Logger) Close() error {
	var firstErr error
	for _, c := range l.closers {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	l.closers = nil
	return firstErr
}

// writerOnly 隐藏标准输出的Close，避免diode关闭时连带关闭进程的stdout
type writerOnly struct {
	io.Writer
}

// ensureDir 确保目录存在
func ensureDir(dir string) error {
	if dir == "" {
		return nil
	}
	return os.MkdirAll(dir, 0755)
}
