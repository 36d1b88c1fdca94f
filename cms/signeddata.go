// Package cms 解析并校验分离式 CMS SignedData 签名
package cms

import (
	"bytes"
	"crypto/x509"
	"encoding/asn1"
	"fmt"
	"math/big"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	tagContext0 = cryptobyte_asn1.Tag(0).ContextSpecific().Constructed()
	tagContext1 = cryptobyte_asn1.Tag(1).ContextSpecific().Constructed()
	tagSKI      = cryptobyte_asn1.Tag(0).ContextSpecific()
)

// SignedData 解析后的 SignedData，只包含一个 SignerInfo
type SignedData struct {
	Version          int64
	DigestAlgorithms []asn1.ObjectIdentifier
	ContentType      asn1.ObjectIdentifier
	Certificates     []*x509.Certificate

	signer signerInfo
}

// signerInfo 唯一的 SignerInfo
type signerInfo struct {
	version            int64
	issuer             []byte // IssuerAndSerialNumber 中的原始 Name
	serial             *big.Int
	subjectKeyID       []byte
	digestAlgorithm    algorithmIdentifier
	signedAttrs        []byte // [0] IMPLICIT 完整编码，缺省时为 nil
	signatureAlgorithm algorithmIdentifier
	signature          []byte
}

// Parse 解析 BER 或 DER 编码的 ContentInfo(SignedData)，BER 先规范化为 DER
// 内嵌 eContent 的签名返回 ErrNotDetached
func Parse(data []byte) (*SignedData, error) {
	der, err := normalizeBER(data)
	if err != nil {
		return nil, wrapError(CodeParse, "malformed ContentInfo", err)
	}
	input := cryptobyte.String(der)

	var contentInfo cryptobyte.String
	if !input.ReadASN1(&contentInfo, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, newError(CodeParse, "malformed ContentInfo")
	}

	var contentType asn1.ObjectIdentifier
	if !contentInfo.ReadASN1ObjectIdentifier(&contentType) {
		return nil, newError(CodeParse, "malformed ContentInfo content type")
	}
	if !contentType.Equal(oidSignedData) {
		return nil, newError(CodeParse, fmt.Sprintf("content type %s is not signed-data", contentType))
	}

	var explicit, body cryptobyte.String
	if !contentInfo.ReadASN1(&explicit, tagContext0) || !contentInfo.Empty() ||
		!explicit.ReadASN1(&body, cryptobyte_asn1.SEQUENCE) || !explicit.Empty() {
		return nil, newError(CodeParse, "malformed SignedData wrapper")
	}

	sd := &SignedData{}
	if !body.ReadASN1Integer(&sd.Version) {
		return nil, newError(CodeParse, "malformed SignedData version")
	}

	var digestSet cryptobyte.String
	if !body.ReadASN1(&digestSet, cryptobyte_asn1.SET) {
		return nil, newError(CodeParse, "malformed digest algorithm set")
	}
	for !digestSet.Empty() {
		var alg algorithmIdentifier
		if !readAlgorithm(&digestSet, &alg) {
			return nil, newError(CodeParse, "malformed digest algorithm")
		}
		sd.DigestAlgorithms = append(sd.DigestAlgorithms, alg.OID)
	}

	var encap cryptobyte.String
	if !body.ReadASN1(&encap, cryptobyte_asn1.SEQUENCE) || !encap.ReadASN1ObjectIdentifier(&sd.ContentType) {
		return nil, newError(CodeParse, "malformed EncapsulatedContentInfo")
	}
	if !encap.Empty() {
		if encap.PeekASN1Tag(tagContext0) {
			return nil, newError(CodeNotDetached, "signature carries encapsulated content")
		}
		return nil, newError(CodeParse, "trailing data in EncapsulatedContentInfo")
	}

	if body.PeekASN1Tag(tagContext0) {
		var certs cryptobyte.String
		if !body.ReadASN1(&certs, tagContext0) {
			return nil, newError(CodeParse, "malformed certificate set")
		}
		for !certs.Empty() {
			var (
				element cryptobyte.String
				tag     cryptobyte_asn1.Tag
			)
			if !certs.ReadAnyASN1Element(&element, &tag) {
				return nil, newError(CodeParse, "malformed certificate choice")
			}
			// 只接受 X.509 证书，其它 CertificateChoices 忽略
			if tag != cryptobyte_asn1.SEQUENCE {
				continue
			}
			c, err := x509.ParseCertificate(element)
			if err != nil {
				return nil, wrapError(CodeParse, "malformed embedded certificate", err)
			}
			sd.Certificates = append(sd.Certificates, c)
		}
	}

	if body.PeekASN1Tag(tagContext1) && !body.SkipASN1(tagContext1) {
		return nil, newError(CodeParse, "malformed revocation info")
	}

	var signerSet cryptobyte.String
	if !body.ReadASN1(&signerSet, cryptobyte_asn1.SET) || !body.Empty() {
		return nil, newError(CodeParse, "malformed SignerInfo set")
	}

	var count int
	for !signerSet.Empty() {
		var raw cryptobyte.String
		if !signerSet.ReadASN1(&raw, cryptobyte_asn1.SEQUENCE) {
			return nil, newError(CodeParse, "malformed SignerInfo")
		}
		count++
		if count > 1 {
			return nil, newError(CodeParse, "expected exactly one SignerInfo")
		}
		if err := parseSignerInfo(raw, &sd.signer); err != nil {
			return nil, err
		}
	}
	if count == 0 {
		return nil, newError(CodeParse, "expected exactly one SignerInfo")
	}

	return sd, nil
}

func parseSignerInfo(s cryptobyte.String, si *signerInfo) error {
	if !s.ReadASN1Integer(&si.version) {
		return newError(CodeParse, "malformed SignerInfo version")
	}

	switch {
	case s.PeekASN1Tag(cryptobyte_asn1.SEQUENCE):
		var (
			ias    cryptobyte.String
			issuer cryptobyte.String
		)
		si.serial = new(big.Int)
		if !s.ReadASN1(&ias, cryptobyte_asn1.SEQUENCE) ||
			!ias.ReadASN1Element(&issuer, cryptobyte_asn1.SEQUENCE) ||
			!ias.ReadASN1Integer(si.serial) || !ias.Empty() {
			return newError(CodeParse, "malformed IssuerAndSerialNumber")
		}
		si.issuer = issuer
	case s.PeekASN1Tag(tagSKI):
		var ski cryptobyte.String
		if !s.ReadASN1(&ski, tagSKI) {
			return newError(CodeParse, "malformed SubjectKeyIdentifier")
		}
		si.subjectKeyID = ski
	default:
		return newError(CodeParse, "unknown SignerIdentifier choice")
	}

	if !readAlgorithm(&s, &si.digestAlgorithm) {
		return newError(CodeParse, "malformed SignerInfo digest algorithm")
	}

	if s.PeekASN1Tag(tagContext0) {
		var attrs cryptobyte.String
		if !s.ReadASN1Element(&attrs, tagContext0) {
			return newError(CodeParse, "malformed signed attributes")
		}
		si.signedAttrs = attrs
	}

	if !readAlgorithm(&s, &si.signatureAlgorithm) {
		return newError(CodeParse, "malformed SignerInfo signature algorithm")
	}
	var sig cryptobyte.String
	if !s.ReadASN1(&sig, cryptobyte_asn1.OCTET_STRING) {
		return newError(CodeParse, "malformed SignerInfo signature")
	}
	si.signature = sig

	if s.PeekASN1Tag(tagContext1) && !s.SkipASN1(tagContext1) {
		return newError(CodeParse, "malformed unsigned attributes")
	}
	if !s.Empty() {
		return newError(CodeParse, "trailing data in SignerInfo")
	}
	return nil
}

// SignerCertificate 按 SignerIdentifier 在内嵌证书中查找签名者证书
func (sd *SignedData) SignerCertificate() (*x509.Certificate, error) {
	for _, c := range sd.Certificates {
		if sd.signer.subjectKeyID != nil {
			if len(c.SubjectKeyId) > 0 && bytes.Equal(c.SubjectKeyId, sd.signer.subjectKeyID) {
				return c, nil
			}
			continue
		}
		if bytes.Equal(c.RawIssuer, sd.signer.issuer) && c.SerialNumber.Cmp(sd.signer.serial) == 0 {
			return c, nil
		}
	}
	return nil, newError(CodeMissingCertificate, "no embedded certificate matches the signer identifier")
}
