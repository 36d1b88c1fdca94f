package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditLogger 审计日志记录器接口
type AuditLogger interface {
	LogSecurity(ctx context.Context, event *SecurityEvent) error
	Query(ctx context.Context, filter *AuditFilter) ([]*AuditLog, error)
}

// FileAuditLogger 以 JSON Lines 形式记录安全事件
type FileAuditLogger struct {
	logger Logger
	out    io.WriteCloser
	mu     sync.Mutex
	seq    uint64
	logs   []*AuditLog
}

// NewFileAuditLogger 创建新的文件审计日志记录器
func NewFileAuditLogger(outputPath string, logger Logger) (*FileAuditLogger, error) {
	f, err := os.OpenFile(outputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("open audit log file: %w", err)
	}
	return newAuditLogger(f, logger), nil
}

func newAuditLogger(out io.WriteCloser, logger Logger) *FileAuditLogger {
	return &FileAuditLogger{
		logger: OrNop(logger),
		out:    out,
	}
}

// LogSecurity 记录安全事件，同时写入结构化日志
func (a *FileAuditLogger) LogSecurity(ctx context.Context, event *SecurityEvent) error {
	if event == nil {
		return fmt.Errorf("security event cannot be nil")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Severity == "" {
		event.Severity = SeverityMedium
	}

	a.logger.Warn("Security Event",
		"event_type", event.EventType,
		"severity", event.Severity,
		"subject", event.Subject,
		"message", event.Message,
	)

	a.mu.Lock()
	defer a.mu.Unlock()

	a.seq++
	entry := &AuditLog{
		ID:        fmt.Sprintf("sec_%d_%d", event.Timestamp.UnixNano(), a.seq),
		Timestamp: event.Timestamp,
		Event:     event,
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal audit log: %w", err)
	}
	if _, err := a.out.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write audit log: %w", err)
	}

	a.logs = append(a.logs, entry)
	return nil
}

// Query 查询本进程记录的审计日志
func (a *FileAuditLogger) Query(ctx context.Context, filter *AuditFilter) ([]*AuditLog, error) {
	if filter == nil {
		filter = &AuditFilter{}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	var results []*AuditLog
	for _, l := range a.logs {
		if matchFilter(l, filter) {
			results = append(results, l)
		}
	}

	start := filter.Offset
	if start > len(results) {
		start = len(results)
	}
	end := len(results)
	if filter.Limit > 0 && start+filter.Limit < end {
		end = start + filter.Limit
	}
	return results[start:end], nil
}

func matchFilter(l *AuditLog, filter *AuditFilter) bool {
	if !filter.StartTime.IsZero() && l.Timestamp.Before(filter.StartTime) {
		return false
	}
	if !filter.EndTime.IsZero() && l.Timestamp.After(filter.EndTime) {
		return false
	}
	if filter.EventType != "" && l.Event.EventType != filter.EventType {
		return false
	}
	if filter.Severity != "" && l.Event.Severity != filter.Severity {
		return false
	}
	if filter.Subject != "" && l.Event.Subject != filter.Subject {
		return false
	}
	return true
}

// Close 关闭审计日志记录器
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.out != nil {
		return a.out.Close()
	}
	return nil
}
