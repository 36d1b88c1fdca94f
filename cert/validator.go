package cert

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"time"

	"github.com/houzhh15/httpsecurity/logging"
)

// ErrEmptyChain 待评估链为空
var ErrEmptyChain = errors.New("certificate chain is empty")

// EvaluatorConfig 信任评估器配置
type EvaluatorConfig struct {
	// SystemRoots 加载平台默认信任库，为 nil 时使用 x509.SystemCertPool
	SystemRoots func() (*x509.CertPool, error)
	Logger      logging.Logger
	Audit       logging.AuditLogger
}

// TrustEvaluator 服务端证书链信任评估器（无状态）
type TrustEvaluator struct {
	systemRoots func() (*x509.CertPool, error)
	logger      logging.Logger
	audit       logging.AuditLogger
}

// NewTrustEvaluator 创建信任评估器
func NewTrustEvaluator(config *EvaluatorConfig) *TrustEvaluator {
	if config == nil {
		config = &EvaluatorConfig{}
	}

	e := &TrustEvaluator{
		systemRoots: config.SystemRoots,
		logger:      logging.OrNop(config.Logger),
		audit:       config.Audit,
	}
	if e.systemRoots == nil {
		e.systemRoots = x509.SystemCertPool
	}
	return e
}

// Evaluate 评估服务端证书链
// trustedAnchors 解码后为空时使用平台默认信任库，否则仅信任这些锚点
func (e *TrustEvaluator) Evaluate(serverChain []*x509.Certificate, policy Policy, trustedAnchors [][]byte) bool {
	err := e.verify(serverChain, policy, trustedAnchors)
	if err != nil {
		e.logger.Warn("Server trust evaluation failed", "hostname", policy.Hostname, "error", err)
		e.reportUntrusted(policy.Hostname, err)
		trustEvaluations.WithLabelValues("untrusted").Inc()
		return false
	}

	e.logger.Debug("Server trust evaluation succeeded", "hostname", policy.Hostname)
	trustEvaluations.WithLabelValues("trusted").Inc()
	return true
}

// EvaluateRaw 解析原始证书链后评估，任一条目无法解析即失败
func (e *TrustEvaluator) EvaluateRaw(serverChain [][]byte, policy Policy, trustedAnchors [][]byte) bool {
	chain := make([]*x509.Certificate, 0, len(serverChain))
	for i, raw := range serverChain {
		c := Parse(raw)
		if c == nil {
			e.logger.Warn("Malformed certificate in server chain", "position", i)
			trustEvaluations.WithLabelValues("malformed").Inc()
			if e.audit != nil {
				_ = e.audit.LogSecurity(context.Background(), &logging.SecurityEvent{
					EventType: logging.EventCertInvalid,
					Severity:  logging.SeverityMedium,
					Subject:   policy.Hostname,
					Message:   fmt.Sprintf("certificate %d in server chain does not parse", i),
				})
			}
			return false
		}
		chain = append(chain, c.X509())
	}
	return e.Evaluate(chain, policy, trustedAnchors)
}

// Roots 根据锚点集合构建根证书池
// 返回的 exclusive 表示是否仅使用给定锚点
func (e *TrustEvaluator) Roots(trustedAnchors [][]byte) (pool *x509.CertPool, exclusive bool, err error) {
	pool = x509.NewCertPool()
	for i, raw := range trustedAnchors {
		c := Parse(raw)
		if c == nil {
			e.logger.Error("Skipping undecodable trust anchor", "position", i)
			continue
		}
		pool.AddCert(c.X509())
		exclusive = true
	}
	if exclusive {
		return pool, true, nil
	}

	pool, err = e.systemRoots()
	if err != nil {
		return nil, false, fmt.Errorf("load system roots: %w", err)
	}
	if pool == nil {
		return nil, false, errors.New("system roots unavailable")
	}
	return pool, false, nil
}

// verify 执行链路构建与策略校验
func (e *TrustEvaluator) verify(serverChain []*x509.Certificate, policy Policy, trustedAnchors [][]byte) error {
	if len(serverChain) == 0 || serverChain[0] == nil {
		return ErrEmptyChain
	}

	roots, exclusive, err := e.Roots(trustedAnchors)
	if err != nil {
		return err
	}
	e.logger.Debug("Evaluating server chain", "length", len(serverChain), "exclusive_anchors", exclusive)

	intermediates := x509.NewCertPool()
	for _, c := range serverChain[1:] {
		if c != nil {
			intermediates.AddCert(c)
		}
	}

	opts := x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		DNSName:       policy.Hostname,
		KeyUsages:     policy.KeyUsages,
		CurrentTime:   policy.CurrentTime,
	}
	if opts.CurrentTime.IsZero() {
		opts.CurrentTime = time.Now()
	}

	if _, err := serverChain[0].Verify(opts); err != nil {
		return fmt.Errorf("certificate verification failed: %w", err)
	}
	return nil
}

func (e *TrustEvaluator) reportUntrusted(hostname string, cause error) {
	if e.audit == nil {
		return
	}

	eventType := logging.EventUntrustedChain
	var hostErr x509.HostnameError
	if errors.As(cause, &hostErr) {
		eventType = logging.EventHostnameMismatch
	}

	_ = e.audit.LogSecurity(context.Background(), &logging.SecurityEvent{
		EventType: eventType,
		Severity:  logging.SeverityHigh,
		Subject:   hostname,
		Message:   cause.Error(),
	})
}
