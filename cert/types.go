package cert

import (
	"crypto/x509"
	"time"
)

// CertStatus 证书状态
type CertStatus string

const (
	StatusActive      CertStatus = "active"        // 有效期内
	StatusExpired     CertStatus = "expired"       // 已过期
	StatusNotYetValid CertStatus = "not_yet_valid" // 尚未生效
)

// Info 证书摘要信息
type Info struct {
	Fingerprint            string     `json:"fingerprint"` // 证书指纹（SHA256）
	Subject                string     `json:"subject"`
	Issuer                 string     `json:"issuer"`
	CommonName             string     `json:"common_name,omitempty"`
	SerialNumber           string     `json:"serial_number"`
	DNSNames               []string   `json:"dns_names,omitempty"`
	AuthorityKeyIdentifier string     `json:"authority_key_identifier,omitempty"` // 十六进制
	SubjectKeyIdentifier   string     `json:"subject_key_identifier,omitempty"`   // 十六进制
	NotBefore              time.Time  `json:"not_before"`
	NotAfter               time.Time  `json:"not_after"`
	Status                 CertStatus `json:"status"`
}

// SigningCertificate 签名者固定描述
// 可选约束为 nil 时不检查对应属性
type SigningCertificate struct {
	Name                   string  // 仅用于诊断
	Certificate            string  // PEM 文本
	CommonName             *string // CN 后缀约束，空串等同于不约束
	AuthorityKeyIdentifier []byte  // 与签名者证书 AKI 原始编码逐字节比较
	SubjectKeyIdentifier   []byte  // 与描述证书自身 SKI 比较
	RootSerial             *uint64 // 与描述证书序列号比较
}

// Policy 信任评估策略
type Policy struct {
	Hostname    string             // 为空时不绑定主机名
	KeyUsages   []x509.ExtKeyUsage // 为空时默认 ServerAuth
	CurrentTime time.Time          // 零值表示当前时间
}

// SSLPolicy 返回绑定主机名的 SSL 服务端策略
func SSLPolicy(hostname string) Policy {
	return Policy{
		Hostname:  hostname,
		KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
}

// BasicPolicy 只校验链路，不绑定主机名与用途
func BasicPolicy() Policy {
	return Policy{KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageAny}}
}
