package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	_ "crypto/sha256"
	_ "crypto/sha512"
	encoding_asn1 "encoding/asn1"
	"testing"

	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

var (
	oidData            = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 1}
	oidSignedData      = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}
	oidContentType     = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 3}
	oidMessageDigest   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 9, 4}
	oidRSAEncryption   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 1}
	oidRSAPSS          = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 10}
	oidMGF1            = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 8}
	oidSHA224WithRSA   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 14}
	oidSHA256WithRSA   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 11}
	oidSHA384WithRSA   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 12}
	oidSHA512WithRSA   = encoding_asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 1, 13}
	oidECDSAWithSHA256 = encoding_asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 2}
	oidECDSAWithSHA384 = encoding_asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 3}
	oidECDSAWithSHA512 = encoding_asn1.ObjectIdentifier{1, 2, 840, 10045, 4, 3, 4}
	oidSHA1            = encoding_asn1.ObjectIdentifier{1, 3, 14, 3, 2, 26}
	oidSHA256          = encoding_asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 1}
	oidSHA384          = encoding_asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 2}
	oidSHA512          = encoding_asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 3}
	oidSHA224          = encoding_asn1.ObjectIdentifier{2, 16, 840, 1, 101, 3, 4, 2, 4}
)

// Padding RSA 签名填充方式
type Padding int

const (
	PaddingPKCS1v15 Padding = iota
	PaddingPSS
)

// SignOptions CMS 签名参数，零值为 SHA-256、PKCS#1 v1.5、带签名属性、IssuerAndSerialNumber
type SignOptions struct {
	Hash             crypto.Hash
	Padding          Padding
	PSSSaltLength    int  // 0 表示与摘要等长
	RSAEncryptionOID bool // 使用 rsaEncryption 而非 sha*WithRSAEncryption
	NoSignedAttrs    bool
	UseSKI           bool // sid 使用 [0] SubjectKeyIdentifier
	Attached         bool // 嵌入 eContent
	OmitSignerCert   bool
	WrongDigestAttr  bool
	WrongContentType bool
	DigestOIDSHA1    bool // 声明 SHA-1 摘要算法
	ExtraCerts       []*Issued
}

// SignDetached 生成分离式 CMS SignedData（DER）
func SignDetached(t testing.TB, content []byte, signer *Issued, opts SignOptions) []byte {
	t.Helper()

	hash := opts.Hash
	if hash == 0 {
		hash = crypto.SHA256
	}

	h := hash.New()
	h.Write(content)
	contentDigest := h.Sum(nil)

	var attrs []byte
	toSign := contentDigest
	if !opts.NoSignedAttrs {
		digestAttr := contentDigest
		if opts.WrongDigestAttr {
			digestAttr = append([]byte{}, contentDigest...)
			digestAttr[0] ^= 0xff
		}
		ctype := oidData
		if opts.WrongContentType {
			ctype = oidSignedData
		}
		attrs = mustBytes(t, func(b *cryptobyte.Builder) {
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidContentType)
				b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
					b.AddASN1ObjectIdentifier(ctype)
				})
			})
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1ObjectIdentifier(oidMessageDigest)
				b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
					b.AddASN1OctetString(digestAttr)
				})
			})
		})
		set := mustBytes(t, func(b *cryptobyte.Builder) {
			b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
				b.AddBytes(attrs)
			})
		})
		h := hash.New()
		h.Write(set)
		toSign = h.Sum(nil)
	}

	sig, sigAlg := sign(t, signer.Key, hash, toSign, opts)

	digestOID := hashOID(hash)
	if opts.DigestOIDSHA1 {
		digestOID = oidSHA1
	}

	version := int64(1)
	if opts.UseSKI {
		version = 3
	}

	certs := append([]*Issued{}, opts.ExtraCerts...)
	if !opts.OmitSignerCert {
		certs = append([]*Issued{signer}, certs...)
	}

	return mustBytes(t, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidSignedData)
			b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
				b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
					b.AddASN1Int64(version)
					b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
						addAlgorithm(b, digestOID, true)
					})
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1ObjectIdentifier(oidData)
						if opts.Attached {
							b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
								b.AddASN1OctetString(content)
							})
						}
					})
					if len(certs) > 0 {
						b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
							for _, c := range certs {
								b.AddBytes(c.DER)
							}
						})
					}
					b.AddASN1(cryptobyte_asn1.SET, func(b *cryptobyte.Builder) {
						b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
							b.AddASN1Int64(version)
							if opts.UseSKI {
								b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific(), func(b *cryptobyte.Builder) {
									b.AddBytes(signer.Cert.SubjectKeyId)
								})
							} else {
								b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
									b.AddBytes(signer.Cert.RawIssuer)
									b.AddASN1BigInt(signer.Cert.SerialNumber)
								})
							}
							addAlgorithm(b, digestOID, true)
							if attrs != nil {
								b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
									b.AddBytes(attrs)
								})
							}
							b.AddBytes(sigAlg)
							b.AddASN1OctetString(sig)
						})
					})
				})
			})
		})
	})
}

func sign(t testing.TB, key crypto.Signer, hash crypto.Hash, digest []byte, opts SignOptions) ([]byte, []byte) {
	t.Helper()

	switch k := key.(type) {
	case *rsa.PrivateKey:
		if opts.Padding == PaddingPSS {
			salt := opts.PSSSaltLength
			if salt == 0 {
				salt = hash.Size()
			}
			sig, err := rsa.SignPSS(rand.Reader, k, hash, digest, &rsa.PSSOptions{SaltLength: salt, Hash: hash})
			if err != nil {
				t.Fatalf("sign PSS: %v", err)
			}
			return sig, pssAlgorithm(t, hash, salt)
		}
		sig, err := rsa.SignPKCS1v15(rand.Reader, k, hash, digest)
		if err != nil {
			t.Fatalf("sign PKCS#1 v1.5: %v", err)
		}
		oid := rsaOID(hash)
		if opts.RSAEncryptionOID {
			oid = oidRSAEncryption
		}
		return sig, mustBytes(t, func(b *cryptobyte.Builder) { addAlgorithm(b, oid, true) })
	case *ecdsa.PrivateKey:
		sig, err := ecdsa.SignASN1(rand.Reader, k, digest)
		if err != nil {
			t.Fatalf("sign ECDSA: %v", err)
		}
		return sig, mustBytes(t, func(b *cryptobyte.Builder) { addAlgorithm(b, ecdsaOID(hash), false) })
	default:
		t.Fatalf("unsupported key type %T", key)
		return nil, nil
	}
}

func pssAlgorithm(t testing.TB, hash crypto.Hash, salt int) []byte {
	return mustBytes(t, func(b *cryptobyte.Builder) {
		b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
			b.AddASN1ObjectIdentifier(oidRSAPSS)
			b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
				b.AddASN1(cryptobyte_asn1.Tag(0).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
					addAlgorithm(b, hashOID(hash), true)
				})
				b.AddASN1(cryptobyte_asn1.Tag(1).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
					b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
						b.AddASN1ObjectIdentifier(oidMGF1)
						addAlgorithm(b, hashOID(hash), true)
					})
				})
				b.AddASN1(cryptobyte_asn1.Tag(2).ContextSpecific().Constructed(), func(b *cryptobyte.Builder) {
					b.AddASN1Int64(int64(salt))
				})
			})
		})
	})
}

func addAlgorithm(b *cryptobyte.Builder, oid encoding_asn1.ObjectIdentifier, withNull bool) {
	b.AddASN1(cryptobyte_asn1.SEQUENCE, func(b *cryptobyte.Builder) {
		b.AddASN1ObjectIdentifier(oid)
		if withNull {
			b.AddASN1NULL()
		}
	})
}

func hashOID(h crypto.Hash) encoding_asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA224:
		return oidSHA224
	case crypto.SHA384:
		return oidSHA384
	case crypto.SHA512:
		return oidSHA512
	default:
		return oidSHA256
	}
}

func rsaOID(h crypto.Hash) encoding_asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA224:
		return oidSHA224WithRSA
	case crypto.SHA384:
		return oidSHA384WithRSA
	case crypto.SHA512:
		return oidSHA512WithRSA
	default:
		return oidSHA256WithRSA
	}
}

func ecdsaOID(h crypto.Hash) encoding_asn1.ObjectIdentifier {
	switch h {
	case crypto.SHA384:
		return oidECDSAWithSHA384
	case crypto.SHA512:
		return oidECDSAWithSHA512
	default:
		return oidECDSAWithSHA256
	}
}

func mustBytes(t testing.TB, fn cryptobyte.BuilderContinuation) []byte {
	t.Helper()
	var b cryptobyte.Builder
	fn(&b)
	out, err := b.Bytes()
	if err != nil {
		t.Fatalf("build DER: %v", err)
	}
	return out
}
