package cert

import (
	"bytes"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/hex"
	"math/big"
	"strings"
	"time"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidCommonName             = asn1.ObjectIdentifier{2, 5, 4, 3}
	oidAuthorityKeyIdentifier = asn1.ObjectIdentifier{2, 5, 29, 35}
	oidSubjectAltName         = asn1.ObjectIdentifier{2, 5, 29, 17}

	pemMarker = []byte("-----BEGIN")
)

const (
	pemBegin = "-----BEGIN CERTIFICATE-----"
	pemEnd   = "-----END CERTIFICATE-----"
)

// Certificate 不可变的证书值，持有 DER 编码与解析结果
type Certificate struct {
	der  []byte
	cert *x509.Certificate
}

// DecodePEM 解码 PEM 证书，只取第一个 CERTIFICATE 块
// 正文中的换行与结束标记前多余的 \r 会被忽略，任何错误返回 nil
func DecodePEM(data []byte) *Certificate {
	s := string(data)
	start := strings.Index(s, pemBegin)
	if start < 0 {
		return nil
	}
	body := s[start+len(pemBegin):]
	end := strings.Index(body, pemEnd)
	if end < 0 {
		return nil
	}

	body = strings.Map(func(r rune) rune {
		switch r {
		case '\r', '\n', ' ', '\t':
			return -1
		}
		return r
	}, body[:end])

	der, err := base64.StdEncoding.DecodeString(body)
	if err != nil {
		return nil
	}
	return ParseDER(der)
}

// ParseDER 解析 DER 证书，失败返回 nil
func ParseDER(der []byte) *Certificate {
	if len(der) == 0 {
		return nil
	}
	owned := append([]byte(nil), der...)
	c, err := x509.ParseCertificate(owned)
	if err != nil {
		return nil
	}
	return &Certificate{der: owned, cert: c}
}

// Parse 自动识别 PEM 或 DER
func Parse(data []byte) *Certificate {
	if bytes.Contains(data, pemMarker) {
		return DecodePEM(data)
	}
	return ParseDER(data)
}

// FromX509 包装已解析的证书
func FromX509(c *x509.Certificate) *Certificate {
	if c == nil {
		return nil
	}
	return ParseDER(c.Raw)
}

// Equal 判断两个证书（PEM 或 DER）是否相同
func Equal(a, b []byte) bool {
	ca, cb := Parse(a), Parse(b)
	if ca == nil || cb == nil {
		return false
	}
	return bytes.Equal(ca.der, cb.der)
}

// DER 返回 DER 编码副本
func (c *Certificate) DER() []byte {
	return append([]byte(nil), c.der...)
}

// X509 返回解析后的证书
func (c *Certificate) X509() *x509.Certificate {
	return c.cert
}

// CommonName 返回主题 CN，不存在时 ok 为 false
func (c *Certificate) CommonName() (string, bool) {
	for _, atv := range c.cert.Subject.Names {
		if atv.Type.Equal(oidCommonName) {
			if s, ok := atv.Value.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// AuthorityKeyIdentifier 返回 AKI 扩展的原始 extnValue（含 SEQUENCE 标签与长度）
func (c *Certificate) AuthorityKeyIdentifier() []byte {
	for _, ext := range c.cert.Extensions {
		if ext.Id.Equal(oidAuthorityKeyIdentifier) {
			return append([]byte(nil), ext.Value...)
		}
	}
	return nil
}

// SubjectKeyIdentifier 返回 SKI 密钥标识
func (c *Certificate) SubjectKeyIdentifier() []byte {
	if len(c.cert.SubjectKeyId) == 0 {
		return nil
	}
	return append([]byte(nil), c.cert.SubjectKeyId...)
}

// SubjectAlternativeDNSNames 按编码顺序返回 SAN 中的 dNSName
func (c *Certificate) SubjectAlternativeDNSNames() []string {
	for _, ext := range c.cert.Extensions {
		if ext.Id.Equal(oidSubjectAltName) {
			return dnsNames(ext.Value)
		}
	}
	return nil
}

// dnsNames 遍历 GeneralNames，跳过非 dNSName 条目
func dnsNames(value []byte) []string {
	var names []string
	input := cryptobyte.String(value)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) {
		return nil
	}
	for !seq.Empty() {
		var (
			entry cryptobyte.String
			tag   cryptobyte_asn1.Tag
		)
		if !seq.ReadAnyASN1(&entry, &tag) {
			return names
		}
		if tag == cryptobyte_asn1.Tag(2).ContextSpecific() {
			names = append(names, string(entry))
		}
	}
	return names
}

// SerialNumber 返回序列号
func (c *Certificate) SerialNumber() *big.Int {
	return new(big.Int).Set(c.cert.SerialNumber)
}

// Fingerprint 获取证书指纹（SHA256）
func (c *Certificate) Fingerprint() string {
	hash := sha256.Sum256(c.der)
	return "sha256:" + hex.EncodeToString(hash[:])
}

// Status 返回给定时间的有效期状态
func (c *Certificate) Status(at time.Time) CertStatus {
	switch {
	case at.Before(c.cert.NotBefore):
		return StatusNotYetValid
	case at.After(c.cert.NotAfter):
		return StatusExpired
	default:
		return StatusActive
	}
}

// Info 获取证书信息
func (c *Certificate) Info() *Info {
	cn, _ := c.CommonName()
	return &Info{
		Fingerprint:            c.Fingerprint(),
		Subject:                c.cert.Subject.String(),
		Issuer:                 c.cert.Issuer.String(),
		CommonName:             cn,
		SerialNumber:           c.cert.SerialNumber.String(),
		DNSNames:               c.SubjectAlternativeDNSNames(),
		AuthorityKeyIdentifier: hex.EncodeToString(c.AuthorityKeyIdentifier()),
		SubjectKeyIdentifier:   hex.EncodeToString(c.SubjectKeyIdentifier()),
		NotBefore:              c.cert.NotBefore,
		NotAfter:               c.cert.NotAfter,
		Status:                 c.Status(time.Now()),
	}
}
