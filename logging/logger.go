package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"
	"time"
)

// Logger 定义日志记录器接口
// 所有校验组件只依赖该接口，具体实现由调用方注入
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})
}

// Level 日志级别
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// Format 日志格式
type Format int

const (
	FormatText Format = iota
	FormatJSON
)

// LogEntry 日志条目
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Component string                 `json:"component,omitempty"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// DefaultLogger 默认日志记录器实现
type DefaultLogger struct {
	level     Level
	format    Format
	component string
	output    io.Writer
	mu        *sync.Mutex
}

// Config 日志配置
type Config struct {
	Level     string // "debug", "info", "warn", "error"
	Format    string // "text", "json"
	Output    string // "stdout", "stderr", or file path
	Component string // 组件名称，写入每条日志
}

// NewLogger 创建新的日志记录器
func NewLogger(cfg *Config) (*DefaultLogger, error) {
	if cfg == nil {
		cfg = &Config{}
	}

	output, err := openOutput(cfg.Output)
	if err != nil {
		return nil, err
	}

	return &DefaultLogger{
		level:     parseLevel(cfg.Level),
		format:    parseFormat(cfg.Format),
		component: cfg.Component,
		output:    output,
		mu:        &sync.Mutex{},
	}, nil
}

// NewWriterLogger 创建写入指定 io.Writer 的日志记录器
func NewWriterLogger(w io.Writer, level Level, format Format) *DefaultLogger {
	return &DefaultLogger{
		level:  level,
		format: format,
		output: w,
		mu:     &sync.Mutex{},
	}
}

// openOutput 解析输出目标
func openOutput(target string) (io.Writer, error) {
	switch target {
	case "stdout", "":
		return os.Stdout, nil
	case "stderr":
		return os.Stderr, nil
	default:
		f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return f, nil
	}
}

// parseLevel 解析日志级别字符串
func parseLevel(s string) Level {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// parseFormat 解析日志格式字符串
func parseFormat(s string) Format {
	if strings.ToLower(s) == "json" {
		return FormatJSON
	}
	return FormatText
}

// WithComponent 返回带组件名称的子记录器，共享输出与锁
func (l *DefaultLogger) WithComponent(component string) *DefaultLogger {
	child := *l
	child.component = component
	return &child
}

// log 内部日志记录方法
func (l *DefaultLogger) log(level Level, msg string, fields ...interface{}) {
	if level < l.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().Format(time.RFC3339),
		Level:     levelString(level),
		Component: l.component,
		Message:   msg,
		Fields:    fieldMap(fields),
	}

	var line string
	if l.format == FormatJSON {
		data, err := json.Marshal(entry)
		if err != nil {
			data, _ = json.Marshal(LogEntry{Timestamp: entry.Timestamp, Level: entry.Level, Message: msg})
		}
		line = string(data)
	} else {
		line = textLine(entry)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	fmt.Fprintln(l.output, line)
}

// fieldMap 解析 fields（key-value pairs），奇数个参数时最后一个被丢弃
func fieldMap(fields []interface{}) map[string]interface{} {
	if len(fields) < 2 {
		return nil
	}
	m := make(map[string]interface{}, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		key := fmt.Sprintf("%v", fields[i])
		value := fields[i+1]
		// []byte 字段（AKI/SKI 等）以十六进制输出
		if b, ok := value.([]byte); ok {
			value = fmt.Sprintf("%x", b)
		}
		if err, ok := value.(error); ok {
			value = err.Error()
		}
		m[key] = value
	}
	return m
}

// textLine 生成文本格式日志行，字段按键名排序
func textLine(entry LogEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s:", entry.Timestamp, entry.Level)
	if entry.Component != "" {
		fmt.Fprintf(&b, " (%s)", entry.Component)
	}
	b.WriteString(" ")
	b.WriteString(entry.Message)

	keys := make([]string, 0, len(entry.Fields))
	for k := range entry.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, " %s=%v", k, entry.Fields[k])
	}
	return b.String()
}

// levelString 将日志级别转换为字符串
func levelString(l Level) string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Debug 记录调试级别日志
func (l *DefaultLogger) Debug(msg string, fields ...interface{}) {
	l.log(LevelDebug, msg, fields...)
}

// Info 记录信息级别日志
func (l *DefaultLogger) Info(msg string, fields ...interface{}) {
	l.log(LevelInfo, msg, fields...)
}

// Warn 记录警告级别日志
func (l *DefaultLogger) Warn(msg string, fields ...interface{}) {
	l.log(LevelWarn, msg, fields...)
}

// Error 记录错误级别日志
func (l *DefaultLogger) Error(msg string, fields ...interface{}) {
	l.log(LevelError, msg, fields...)
}

// nopLogger 丢弃所有日志
type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
func (nopLogger) Debug(string, ...interface{}) {}

// Nop 返回不输出任何内容的记录器
func Nop() Logger {
	return nopLogger{}
}

// OrNop 在 l 为 nil 时返回 Nop()
func OrNop(l Logger) Logger {
	if l == nil {
		return Nop()
	}
	return l
}
