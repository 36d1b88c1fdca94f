package cms

import (
	"crypto/subtle"
	"crypto/x509"
	"encoding/asn1"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/logging"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// Result 校验结果，Signer 仅在 Valid 为 true 时设置
type Result struct {
	Valid  bool
	Signer *cert.Certificate
}

// Verifier 分离式签名校验器（无状态）
type Verifier struct {
	logger logging.Logger
}

// NewVerifier 创建校验器，logger 为 nil 时不输出日志
func NewVerifier(logger logging.Logger) *Verifier {
	return &Verifier{logger: logging.OrNop(logger)}
}

var defaultVerifier = NewVerifier(nil)

// Verify 校验 signature 是否为 content 的有效分离式签名
func Verify(signature, content []byte) Result {
	return defaultVerifier.Verify(signature, content)
}

// Verify 校验 signature 是否为 content 的有效分离式签名
// 解析失败、摘要不符或签名不符时 Valid 为 false
func (v *Verifier) Verify(signature, content []byte) Result {
	sd, err := Parse(signature)
	if err != nil {
		v.logger.Debug("Failed to parse CMS signature", "error", err)
		return Result{}
	}

	signer, err := sd.VerifyContent(content)
	if err != nil {
		v.logger.Debug("CMS signature rejected", "error", err)
		return Result{}
	}

	c := cert.FromX509(signer)
	if c == nil {
		return Result{}
	}
	return Result{Valid: true, Signer: c}
}

// VerifyContent 校验签名并返回签名者证书
func (sd *SignedData) VerifyContent(content []byte) (*x509.Certificate, error) {
	signer, err := sd.SignerCertificate()
	if err != nil {
		return nil, err
	}

	h, err := digestHash(sd.signer.digestAlgorithm)
	if err != nil {
		return nil, err
	}

	message := content
	if sd.signer.signedAttrs != nil {
		hasher := h.New()
		hasher.Write(content)
		if err := sd.checkSignedAttributes(hasher.Sum(nil)); err != nil {
			return nil, err
		}
		// 签名覆盖的是 SET OF 编码，而非 [0] IMPLICIT
		message = append([]byte(nil), sd.signer.signedAttrs...)
		message[0] = 0x31
	}

	if err := verifySignature(signer.PublicKey, sd.signer.signatureAlgorithm, h, message, sd.signer.signature); err != nil {
		return nil, err
	}
	return signer, nil
}

// checkSignedAttributes 校验 content-type 与 message-digest 属性
func (sd *SignedData) checkSignedAttributes(digest []byte) error {
	input := cryptobyte.String(sd.signer.signedAttrs)
	var attrs cryptobyte.String
	if !input.ReadASN1(&attrs, tagContext0) {
		return newError(CodeParse, "malformed signed attributes")
	}

	seen := make(map[string]bool)
	var contentType, messageDigest cryptobyte.String
	for !attrs.Empty() {
		var (
			attr   cryptobyte.String
			oid    asn1.ObjectIdentifier
			values cryptobyte.String
		)
		if !attrs.ReadASN1(&attr, cryptobyte_asn1.SEQUENCE) ||
			!attr.ReadASN1ObjectIdentifier(&oid) ||
			!attr.ReadASN1(&values, cryptobyte_asn1.SET) || !attr.Empty() {
			return newError(CodeParse, "malformed signed attribute")
		}
		if seen[oid.String()] {
			return newError(CodeAttributeInvalid, "duplicate signed attribute "+oid.String())
		}
		seen[oid.String()] = true

		switch {
		case oid.Equal(oidContentType):
			contentType = values
		case oid.Equal(oidMessageDigest):
			messageDigest = values
		}
	}

	if contentType == nil {
		return newError(CodeAttributeInvalid, "content-type attribute missing")
	}
	var ct asn1.ObjectIdentifier
	if !contentType.ReadASN1ObjectIdentifier(&ct) || !contentType.Empty() {
		return newError(CodeAttributeInvalid, "content-type attribute must hold one object identifier")
	}
	if !ct.Equal(sd.ContentType) {
		return newError(CodeAttributeInvalid, "content-type attribute does not match encapsulated content type")
	}

	if messageDigest == nil {
		return newError(CodeAttributeInvalid, "message-digest attribute missing")
	}
	var md cryptobyte.String
	if !messageDigest.ReadASN1(&md, cryptobyte_asn1.OCTET_STRING) || !messageDigest.Empty() {
		return newError(CodeAttributeInvalid, "message-digest attribute must hold one octet string")
	}
	if subtle.ConstantTimeCompare(md, digest) != 1 {
		return newError(CodeAttributeInvalid, "message digest does not match content")
	}
	return nil
}

// VerifyChain 校验签名者证书能以 root 为唯一根构建证书链
// 内嵌证书作为中间证书，不限制扩展密钥用途
func (sd *SignedData) VerifyChain(root *x509.Certificate, at time.Time) error {
	if root == nil {
		return newError(CodeCertificateChain, "trust root is required")
	}
	signer, err := sd.SignerCertificate()
	if err != nil {
		return err
	}

	roots := x509.NewCertPool()
	roots.AddCert(root)
	intermediates := x509.NewCertPool()
	for _, c := range sd.Certificates {
		intermediates.AddCert(c)
	}
	if at.IsZero() {
		at = time.Now()
	}

	_, err = signer.Verify(x509.VerifyOptions{
		Roots:         roots,
		Intermediates: intermediates,
		CurrentTime:   at,
		KeyUsages:     []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	if err != nil {
		return wrapError(CodeCertificateChain, "signer does not chain to the pinned certificate", err)
	}
	return nil
}
