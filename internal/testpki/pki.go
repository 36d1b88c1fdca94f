// Package testpki 在测试运行时生成证书链与 CMS 签名
package testpki

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"math/big"
	"net"
	"testing"
	"time"
)

// KeyType 密钥类型
type KeyType int

const (
	KeyRSA KeyType = iota
	KeyECDSA
)

// Options 证书生成参数
type Options struct {
	CommonName     string
	OmitCommonName bool
	DNSNames       []string
	IPAddresses    []net.IP
	EmailAddresses []string
	Serial         int64 // 0 表示随机
	IsCA           bool
	KeyType        KeyType
	NotBefore      time.Time
	NotAfter       time.Time
	ExtKeyUsage    []x509.ExtKeyUsage
	OmitSKI        bool
}

// Issued 生成的证书与私钥
type Issued struct {
	Cert *x509.Certificate
	Key  crypto.Signer
	DER  []byte
}

// PEM 返回 PEM 编码的证书
func (i *Issued) PEM() string {
	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: i.DER}))
}

// NewRoot 生成自签名根证书
func NewRoot(t testing.TB, opts Options) *Issued {
	t.Helper()
	opts.IsCA = true
	return issue(t, opts, nil)
}

// Issue 使用当前证书签发子证书
func (i *Issued) Issue(t testing.TB, opts Options) *Issued {
	t.Helper()
	return issue(t, opts, i)
}

// Chain 生成 depth 层 CA 链及末端证书，返回顺序为根到叶
func Chain(t testing.TB, depth int, leaf Options) []*Issued {
	t.Helper()
	chain := []*Issued{NewRoot(t, Options{CommonName: "Test Root CA"})}
	for n := 1; n < depth; n++ {
		chain = append(chain, chain[n-1].Issue(t, Options{
			CommonName: fmt.Sprintf("Test Intermediate %d", n),
			IsCA:       true,
		}))
	}
	return append(chain, chain[len(chain)-1].Issue(t, leaf))
}

func issue(t testing.TB, opts Options, parent *Issued) *Issued {
	t.Helper()

	key := newKey(t, opts.KeyType)

	serial := big.NewInt(opts.Serial)
	if opts.Serial == 0 {
		var err error
		serial, err = rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 62))
		if err != nil {
			t.Fatalf("generate serial: %v", err)
		}
		serial.Add(serial, big.NewInt(1))
	}

	notBefore := opts.NotBefore
	if notBefore.IsZero() {
		notBefore = time.Now().Add(-time.Hour)
	}
	notAfter := opts.NotAfter
	if notAfter.IsZero() {
		notAfter = time.Now().Add(24 * time.Hour)
	}

	subject := pkix.Name{Organization: []string{"Test Trust"}}
	if !opts.OmitCommonName {
		subject.CommonName = opts.CommonName
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               subject,
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		DNSNames:              opts.DNSNames,
		IPAddresses:           opts.IPAddresses,
		EmailAddresses:        opts.EmailAddresses,
		BasicConstraintsValid: true,
		IsCA:                  opts.IsCA,
		ExtKeyUsage:           opts.ExtKeyUsage,
	}
	if opts.IsCA {
		template.KeyUsage = x509.KeyUsageCertSign | x509.KeyUsageCRLSign | x509.KeyUsageDigitalSignature
	} else {
		template.KeyUsage = x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment
	}
	if !opts.OmitSKI {
		template.SubjectKeyId = keyID(t, key.Public())
	}

	issuerCert, issuerKey := template, key
	if parent != nil {
		issuerCert, issuerKey = parent.Cert, parent.Key
	}

	der, err := x509.CreateCertificate(rand.Reader, template, issuerCert, key.Public(), issuerKey)
	if err != nil {
		t.Fatalf("create certificate %q: %v", opts.CommonName, err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatalf("parse certificate %q: %v", opts.CommonName, err)
	}
	return &Issued{Cert: cert, Key: key, DER: der}
}

func newKey(t testing.TB, kt KeyType) crypto.Signer {
	t.Helper()
	var (
		key crypto.Signer
		err error
	)
	switch kt {
	case KeyECDSA:
		key, err = ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	default:
		key, err = rsa.GenerateKey(rand.Reader, 2048)
	}
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

// keyID 取 SubjectPublicKeyInfo 的 SHA-1 作为密钥标识
func keyID(t testing.TB, pub crypto.PublicKey) []byte {
	t.Helper()
	spki, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	sum := sha1.Sum(spki)
	return sum[:]
}
