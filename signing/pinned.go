package signing

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/cms"
	"github.com/houzhh15/httpsecurity/logging"
)

// Config CMS 校验器配置
type Config struct {
	Logger logging.Logger
	Audit  logging.AuditLogger
	// Now 链路校验时间，为 nil 时使用 time.Now
	Now func() time.Time
}

// CMSValidator 固定签名者校验器
// 按顺序检查签名者描述，第一个全部约束通过的描述即判定有效
type CMSValidator struct {
	signers []cert.SigningCertificate
	logger  logging.Logger
	audit   logging.AuditLogger
	now     func() time.Time
}

// NewCMSValidator 创建固定签名者校验器
func NewCMSValidator(signers []cert.SigningCertificate, config *Config) *CMSValidator {
	if config == nil {
		config = &Config{}
	}

	v := &CMSValidator{
		signers: append([]cert.SigningCertificate(nil), signers...),
		logger:  logging.OrNop(config.Logger),
		audit:   config.Audit,
		now:     config.Now,
	}
	if v.now == nil {
		v.now = time.Now
	}
	return v
}

// verification 单次 Validate 调用内的签名校验结果，只计算一次
type verification struct {
	signature, content []byte

	done   bool
	sd     *cms.SignedData
	signer *cert.Certificate
	err    error
}

func (r *verification) run() error {
	if r.done {
		return r.err
	}
	r.done = true

	sd, err := cms.Parse(r.signature)
	if err != nil {
		r.err = err
		return err
	}
	signer, err := sd.VerifyContent(r.content)
	if err != nil {
		r.err = err
		return err
	}
	r.sd = sd
	r.signer = cert.FromX509(signer)
	if r.signer == nil {
		r.err = errors.New("signer certificate cannot be re-encoded")
	}
	return r.err
}

// Validate 校验签名，任一签名者描述全部约束通过即返回 true
func (v *CMSValidator) Validate(signature, content []byte) bool {
	result := &verification{signature: signature, content: content}

	for i := range v.signers {
		sc := &v.signers[i]
		reason := v.check(sc, result)
		if reason == "" {
			v.logger.Debug("Signature accepted", "signer", sc.Name)
			signatureValidations.WithLabelValues("valid").Inc()
			return true
		}
		signerRejections.WithLabelValues(reason).Inc()
		v.logger.Debug("Signer descriptor rejected", "signer", sc.Name, "reason", reason)
	}

	signatureValidations.WithLabelValues("invalid").Inc()
	v.reportRejected(len(v.signers), result.err)
	return false
}

// check 返回空字符串表示通过，否则返回排除原因
func (v *CMSValidator) check(sc *cert.SigningCertificate, result *verification) string {
	pinned := cert.DecodePEM([]byte(sc.Certificate))
	if pinned == nil {
		return "descriptor_invalid"
	}

	if sc.SubjectKeyIdentifier != nil {
		ski := pinned.SubjectKeyIdentifier()
		if ski == nil || !bytes.Equal(ski, sc.SubjectKeyIdentifier) {
			return "ski_mismatch"
		}
	}

	if sc.RootSerial != nil {
		serial := pinned.SerialNumber()
		if !serial.IsUint64() || serial.Uint64() != *sc.RootSerial {
			return "serial_mismatch"
		}
	}

	if err := result.run(); err != nil {
		return "signature_invalid"
	}

	if err := result.sd.VerifyChain(pinned.X509(), v.now()); err != nil {
		v.logger.Debug("Signer does not chain to pinned certificate", "signer", sc.Name, "error", err)
		return "chain_invalid"
	}

	if sc.AuthorityKeyIdentifier != nil {
		aki := result.signer.AuthorityKeyIdentifier()
		if aki == nil || !bytes.Equal(aki, sc.AuthorityKeyIdentifier) {
			return "aki_mismatch"
		}
	}

	if sc.CommonName != nil && *sc.CommonName != "" {
		cn, ok := result.signer.CommonName()
		if !ok || !MatchesCommonNameSuffix(cn, *sc.CommonName) {
			return "common_name_mismatch"
		}
	}

	return ""
}

func (v *CMSValidator) reportRejected(candidates int, cause error) {
	if v.audit == nil {
		return
	}

	eventType := logging.EventPinMismatch
	message := "no pinned signer matched"
	if cause != nil {
		eventType = logging.EventSignatureInvalid
		message = cause.Error()
	}

	_ = v.audit.LogSecurity(context.Background(), &logging.SecurityEvent{
		EventType: eventType,
		Severity:  logging.SeverityHigh,
		Message:   message,
		Details:   map[string]interface{}{"candidates": candidates},
	})
}

// SignerOf 返回签名中嵌入的签名者证书，仅用于诊断，不做任何信任判断
func SignerOf(signature []byte) (*x509.Certificate, error) {
	sd, err := cms.Parse(signature)
	if err != nil {
		return nil, err
	}
	return sd.SignerCertificate()
}
