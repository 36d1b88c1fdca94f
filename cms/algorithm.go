package cms

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	"encoding/asn1"
	"fmt"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidData          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData    = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidContentType   = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}

	oidDigestSHA1   = asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidDigestSHA256 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidDigestSHA384 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidDigestSHA512 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	oidDigestSHA224 = asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}

	oidRSAEncryption = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidMGF1          = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	oidRSAPSS        = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidSHA256WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidSHA224WithRSA = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 14}

	oidECPublicKey     = asn1.ObjectIdentifier{1, 2, 840, 10045, 2, 1}
	oidECDSAWithSHA224 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 1}
	oidECDSAWithSHA256 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
)

// digestHashes 允许的摘要算法，SHA-1 不在其中
var digestHashes = map[string]crypto.Hash{
	oidDigestSHA224.String(): crypto.SHA224,
	oidDigestSHA256.String(): crypto.SHA256,
	oidDigestSHA384.String(): crypto.SHA384,
	oidDigestSHA512.String(): crypto.SHA512,
}

// rsaPKCS1Hashes sha*WithRSAEncryption 隐含的摘要算法
var rsaPKCS1Hashes = map[string]crypto.Hash{
	oidSHA224WithRSA.String(): crypto.SHA224,
	oidSHA256WithRSA.String(): crypto.SHA256,
	oidSHA384WithRSA.String(): crypto.SHA384,
	oidSHA512WithRSA.String(): crypto.SHA512,
}

// ecdsaHashes ecdsa-with-SHA* 隐含的摘要算法
var ecdsaHashes = map[string]crypto.Hash{
	oidECDSAWithSHA224.String(): crypto.SHA224,
	oidECDSAWithSHA256.String(): crypto.SHA256,
	oidECDSAWithSHA384.String(): crypto.SHA384,
	oidECDSAWithSHA512.String(): crypto.SHA512,
}

// algorithmIdentifier AlgorithmIdentifier，Params 为完整 TLV，NULL 或缺省时为 nil
type algorithmIdentifier struct {
	OID    asn1.ObjectIdentifier
	Params []byte
}

// readAlgorithm 读取 AlgorithmIdentifier
func readAlgorithm(s *cryptobyte.String, out *algorithmIdentifier) bool {
	var seq cryptobyte.String
	if !s.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !seq.ReadASN1ObjectIdentifier(&out.OID) {
		return false
	}
	out.Params = nil
	if seq.Empty() {
		return true
	}

	var (
		params cryptobyte.String
		tag    cryptobyte_asn1.Tag
	)
	if !seq.ReadAnyASN1Element(&params, &tag) || !seq.Empty() {
		return false
	}
	if tag != cryptobyte_asn1.NULL {
		out.Params = params
	}
	return true
}

// digestHash 将摘要算法标识映射为 crypto.Hash
func digestHash(alg algorithmIdentifier) (crypto.Hash, error) {
	if alg.OID.Equal(oidDigestSHA1) {
		return 0, newError(CodeUnsupportedAlgorithm, "SHA-1 digests are not accepted")
	}
	h, ok := digestHashes[alg.OID.String()]
	if !ok {
		return 0, newError(CodeUnsupportedAlgorithm, fmt.Sprintf("digest algorithm %s is not supported", alg.OID))
	}
	return h, nil
}

// pssParams RSASSA-PSS-params
type pssParams struct {
	Hash       crypto.Hash
	MGFHash    crypto.Hash
	SaltLength int
}

// parsePSSParams 解析 RSASSA-PSS-params，缺省值按 RFC 4055（SHA-1、MGF1-SHA-1、盐长 20）
func parsePSSParams(raw []byte) (*pssParams, error) {
	params := &pssParams{Hash: crypto.SHA1, MGFHash: crypto.SHA1, SaltLength: 20}
	if raw == nil {
		return params, nil
	}

	input := cryptobyte.String(raw)
	var seq cryptobyte.String
	if !input.ReadASN1(&seq, cryptobyte_asn1.SEQUENCE) || !input.Empty() {
		return nil, newError(CodeParse, "malformed RSASSA-PSS parameters")
	}

	var (
		field   cryptobyte.String
		present bool
	)

	if !seq.ReadOptionalASN1(&field, &present, cryptobyte_asn1.Tag(0).ContextSpecific().Constructed()) {
		return nil, newError(CodeParse, "malformed PSS hash algorithm")
	}
	if present {
		var alg algorithmIdentifier
		if !readAlgorithm(&field, &alg) || !field.Empty() {
			return nil, newError(CodeParse, "malformed PSS hash algorithm")
		}
		h, err := digestHash(alg)
		if err != nil {
			return nil, err
		}
		params.Hash = h
	}

	if !seq.ReadOptionalASN1(&field, &present, cryptobyte_asn1.Tag(1).ContextSpecific().Constructed()) {
		return nil, newError(CodeParse, "malformed PSS mask generation algorithm")
	}
	if present {
		var mgf algorithmIdentifier
		if !readAlgorithm(&field, &mgf) || !field.Empty() {
			return nil, newError(CodeParse, "malformed PSS mask generation algorithm")
		}
		if !mgf.OID.Equal(oidMGF1) {
			return nil, newError(CodeUnsupportedAlgorithm, fmt.Sprintf("mask generation function %s is not supported", mgf.OID))
		}
		inner := cryptobyte.String(mgf.Params)
		var mgfHash algorithmIdentifier
		if !readAlgorithm(&inner, &mgfHash) || !inner.Empty() {
			return nil, newError(CodeParse, "malformed MGF1 hash algorithm")
		}
		h, err := digestHash(mgfHash)
		if err != nil {
			return nil, err
		}
		params.MGFHash = h
	}

	if !seq.ReadOptionalASN1(&field, &present, cryptobyte_asn1.Tag(2).ContextSpecific().Constructed()) {
		return nil, newError(CodeParse, "malformed PSS salt length")
	}
	if present {
		var salt int64
		if !field.ReadASN1Integer(&salt) || !field.Empty() || salt < 0 || salt > 1<<16 {
			return nil, newError(CodeParse, "malformed PSS salt length")
		}
		params.SaltLength = int(salt)
	}

	if !seq.ReadOptionalASN1(&field, &present, cryptobyte_asn1.Tag(3).ContextSpecific().Constructed()) {
		return nil, newError(CodeParse, "malformed PSS trailer field")
	}
	if present {
		var trailer int64
		if !field.ReadASN1Integer(&trailer) || !field.Empty() || trailer != 1 {
			return nil, newError(CodeUnsupportedAlgorithm, "PSS trailer field must be 1")
		}
	}

	if !seq.Empty() {
		return nil, newError(CodeParse, "trailing data in RSASSA-PSS parameters")
	}
	return params, nil
}

// verifySignature 按签名算法 OID 选择填充方式并校验签名
// h 为 SignerInfo 声明的摘要算法，message 为被签名的原始字节
func verifySignature(pub crypto.PublicKey, alg algorithmIdentifier, h crypto.Hash, message, signature []byte) error {
	hasher := h.New()
	hasher.Write(message)
	digest := hasher.Sum(nil)

	key := alg.OID.String()
	switch {
	case alg.OID.Equal(oidRSAEncryption) || rsaPKCS1Hashes[key] != 0:
		if implied := rsaPKCS1Hashes[key]; implied != 0 && implied != h {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("signature algorithm %s does not match digest %v", alg.OID, h))
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("RSA signature with %T key", pub))
		}
		if err := rsa.VerifyPKCS1v15(rsaPub, h, digest, signature); err != nil {
			return wrapError(CodeInvalidSignature, "RSA PKCS#1 v1.5 verification failed", err)
		}
		return nil

	case alg.OID.Equal(oidRSAPSS):
		params, err := parsePSSParams(alg.Params)
		if err != nil {
			return err
		}
		if params.Hash != h || params.MGFHash != h {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("PSS hash %v / MGF1 %v does not match digest %v", params.Hash, params.MGFHash, h))
		}
		rsaPub, ok := pub.(*rsa.PublicKey)
		if !ok {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("RSA-PSS signature with %T key", pub))
		}
		opts := &rsa.PSSOptions{SaltLength: params.SaltLength, Hash: h}
		if err := rsa.VerifyPSS(rsaPub, h, digest, signature, opts); err != nil {
			return wrapError(CodeInvalidSignature, "RSA-PSS verification failed", err)
		}
		return nil

	case alg.OID.Equal(oidECPublicKey) || ecdsaHashes[key] != 0:
		if implied := ecdsaHashes[key]; implied != 0 && implied != h {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("signature algorithm %s does not match digest %v", alg.OID, h))
		}
		ecPub, ok := pub.(*ecdsa.PublicKey)
		if !ok {
			return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("ECDSA signature with %T key", pub))
		}
		if !ecdsa.VerifyASN1(ecPub, digest, signature) {
			return newError(CodeInvalidSignature, "ECDSA verification failed")
		}
		return nil

	default:
		return newError(CodeUnsupportedAlgorithm, fmt.Sprintf("signature algorithm %s is not supported", alg.OID))
	}
}
