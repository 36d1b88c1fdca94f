package logging

import "time"

// SecurityEvent 信任校验安全事件
// 证书、链路或签名校验失败时记录
type SecurityEvent struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType SecurityEventType      `json:"event_type"`
	Severity  Severity               `json:"severity"`
	Subject   string                 `json:"subject,omitempty"` // 主机名或签名者名称
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// SecurityEventType 安全事件类型
type SecurityEventType string

const (
	EventCertInvalid      SecurityEventType = "cert_invalid"
	EventUntrustedChain   SecurityEventType = "untrusted_chain"
	EventHostnameMismatch SecurityEventType = "hostname_mismatch"
	EventSignatureInvalid SecurityEventType = "signature_invalid"
	EventPinMismatch      SecurityEventType = "pin_mismatch"
)

// Severity 严重程度
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// AuditFilter 审计日志查询过滤器
type AuditFilter struct {
	EventType SecurityEventType `json:"event_type,omitempty"`
	Severity  Severity          `json:"severity,omitempty"`
	Subject   string            `json:"subject,omitempty"`
	StartTime time.Time         `json:"start_time,omitempty"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Limit     int               `json:"limit,omitempty"`
	Offset    int               `json:"offset,omitempty"`
}

// AuditLog 审计日志记录
type AuditLog struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Event     *SecurityEvent `json:"event"`
}
