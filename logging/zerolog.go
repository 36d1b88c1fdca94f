package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// ZerologLogger 将 Logger 接口适配到 zerolog
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger 包装已有的 zerolog.Logger
func NewZerologLogger(logger zerolog.Logger) *ZerologLogger {
	return &ZerologLogger{logger: logger}
}

// SetupZerolog 按配置创建 zerolog 记录器
// text 格式使用 ConsoleWriter，json 格式直接输出
func SetupZerolog(cfg *Config) (*ZerologLogger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	var w io.Writer = output
	if parseFormat(cfg.Format) == FormatText {
		w = zerolog.ConsoleWriter{Out: output, TimeFormat: time.RFC3339}
	}

	ctx := zerolog.New(w).Level(zerologLevel(parseLevel(cfg.Level))).With().Timestamp()
	if cfg.Component != "" {
		ctx = ctx.Str("component", cfg.Component)
	}
	return NewZerologLogger(ctx.Logger()), nil
}

// zerologLevel 转换日志级别
func zerologLevel(l Level) zerolog.Level {
	switch l {
	case LevelDebug:
		return zerolog.DebugLevel
	case LevelWarn:
		return zerolog.WarnLevel
	case LevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func (z *ZerologLogger) Info(msg string, fields ...interface{}) {
	z.logger.Info().Fields(fieldMap(fields)).Msg(msg)
}

func (z *ZerologLogger) Warn(msg string, fields ...interface{}) {
	z.logger.Warn().Fields(fieldMap(fields)).Msg(msg)
}

func (z *ZerologLogger) Error(msg string, fields ...interface{}) {
	z.logger.Error().Fields(fieldMap(fields)).Msg(msg)
}

func (z *ZerologLogger) Debug(msg string, fields ...interface{}) {
	z.logger.Debug().Fields(fieldMap(fields)).Msg(msg)
}

// stderrZerolog 在无配置时使用
var stderrZerolog = zerolog.New(os.Stderr).With().Timestamp().Logger()

// DefaultZerolog 返回写入 stderr 的 zerolog 适配器
func DefaultZerolog() *ZerologLogger {
	return NewZerologLogger(stderrZerolog)
}
