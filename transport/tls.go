package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/logging"
)

var (
	// ErrUntrustedServer 对端证书链未通过信任评估
	ErrUntrustedServer = errors.New("server certificate chain is not trusted")
	// ErrHostnameMismatch 对端证书 SAN 不包含目标主机名
	ErrHostnameMismatch = errors.New("server certificate does not match hostname")
)

// ClientConfig 客户端信任配置
type ClientConfig struct {
	// Anchors 信任锚（PEM 或 DER），为空时使用系统证书库
	Anchors [][]byte
	// ServerName 用于 SNI 与主机名校验，为空时取连接目标
	ServerName string
	// Evaluator 为 nil 时使用默认评估器
	Evaluator  *cert.TrustEvaluator
	MinVersion uint16 // 默认 tls.VersionTLS12
	Logger     logging.Logger
}

// NewClientTLSConfig 创建客户端 tls.Config
// 标准库校验被关闭，信任判定完全交给 TrustEvaluator 与 SAN 主机名匹配
func NewClientTLSConfig(cfg *ClientConfig) *tls.Config {
	if cfg == nil {
		cfg = &ClientConfig{}
	}

	evaluator := cfg.Evaluator
	if evaluator == nil {
		evaluator = cert.NewTrustEvaluator(&cert.EvaluatorConfig{Logger: cfg.Logger})
	}
	logger := logging.OrNop(cfg.Logger)
	anchors := append([][]byte(nil), cfg.Anchors...)

	tlsConfig := &tls.Config{
		ServerName:         cfg.ServerName,
		MinVersion:         cfg.MinVersion,
		InsecureSkipVerify: true,
		VerifyConnection: func(cs tls.ConnectionState) error {
			hostname := cfg.ServerName
			if hostname == "" {
				hostname = cs.ServerName
			}
			return verifyPeer(evaluator, logger, cs.PeerCertificates, hostname, anchors)
		},
	}

	if tlsConfig.MinVersion == 0 {
		tlsConfig.MinVersion = tls.VersionTLS12
	}

	return tlsConfig
}

// VerifyPeer 按 SSL 策略评估对端证书链并检查叶证书 SAN；evaluator 为 nil 时使用默认评估器
func VerifyPeer(evaluator *cert.TrustEvaluator, chain []*x509.Certificate, hostname string, anchors [][]byte) error {
	if evaluator == nil {
		evaluator = cert.NewTrustEvaluator(nil)
	}
	return verifyPeer(evaluator, logging.Nop(), chain, hostname, anchors)
}

func verifyPeer(evaluator *cert.TrustEvaluator, logger logging.Logger, chain []*x509.Certificate, hostname string, anchors [][]byte) error {
	if !evaluator.Evaluate(chain, cert.SSLPolicy(hostname), anchors) {
		handshakeRejections.WithLabelValues("untrusted").Inc()
		return ErrUntrustedServer
	}

	if !cert.MatchesHostname(hostname, cert.FromX509(chain[0])) {
		handshakeRejections.WithLabelValues("hostname").Inc()
		logger.Warn("Peer certificate SAN does not match", "hostname", hostname)
		return fmt.Errorf("%w: %s", ErrHostnameMismatch, hostname)
	}

	handshakesAccepted.Inc()
	return nil
}

// FetchChain 连接 addr 并返回对端证书链，不做任何信任判定
func FetchChain(ctx context.Context, addr, serverName string, timeout time.Duration) ([]*x509.Certificate, error) {
	if serverName == "" {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address %s: %w", addr, err)
		}
		serverName = host
	}

	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: timeout},
		Config: &tls.Config{
			ServerName:         serverName,
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: true,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}
	defer conn.Close()

	return conn.(*tls.Conn).ConnectionState().PeerCertificates, nil
}
