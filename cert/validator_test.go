package cert

import (
	"bytes"
	"context"
	"crypto/x509"
	"errors"
	"testing"
	"time"

	"github.com/houzhh15/httpsecurity/internal/testpki"
	"github.com/houzhh15/httpsecurity/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingAudit 记录安全事件
type recordingAudit struct {
	events []*logging.SecurityEvent
}

func (a *recordingAudit) LogSecurity(_ context.Context, ev *logging.SecurityEvent) error {
	a.events = append(a.events, ev)
	return nil
}

func (a *recordingAudit) Query(context.Context, *logging.AuditFilter) ([]*logging.AuditLog, error) {
	return nil, nil
}

// serverChain 生成 根 -> 中间 -> 服务端 链，返回叶到根顺序
func serverChain(t *testing.T, host string) (chain []*x509.Certificate, root *testpki.Issued) {
	t.Helper()
	issued := testpki.Chain(t, 2, testpki.Options{
		CommonName:  host,
		DNSNames:    []string{host},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return []*x509.Certificate{issued[2].Cert, issued[1].Cert}, issued[0]
}

func poolOf(certs ...*testpki.Issued) func() (*x509.CertPool, error) {
	return func() (*x509.CertPool, error) {
		pool := x509.NewCertPool()
		for _, c := range certs {
			pool.AddCert(c.Cert)
		}
		return pool, nil
	}
}

func TestTrustEvaluator_ExplicitAnchors(t *testing.T) {
	chain, root := serverChain(t, "api.example.nl")
	other := testpki.NewRoot(t, testpki.Options{CommonName: "Unrelated Root"})

	e := NewTrustEvaluator(&EvaluatorConfig{SystemRoots: poolOf(root)})

	tests := []struct {
		name    string
		chain   []*x509.Certificate
		policy  Policy
		anchors [][]byte
		want    bool
	}{
		{"DER anchor", chain, SSLPolicy("api.example.nl"), [][]byte{root.DER}, true},
		{"PEM anchor", chain, SSLPolicy("api.example.nl"), [][]byte{[]byte(root.PEM())}, true},
		{"hostname case folded", chain, SSLPolicy("API.example.nl"), [][]byte{root.DER}, true},
		{"no hostname binding", chain, Policy{}, [][]byte{root.DER}, true},
		{"hostname mismatch", chain, SSLPolicy("evil.example.nl"), [][]byte{root.DER}, false},
		// 非空锚点完全替换系统信任库
		{"unrelated anchors replace system store", chain, SSLPolicy("api.example.nl"), [][]byte{other.DER}, false},
		{"undecodable anchor skipped", chain, SSLPolicy("api.example.nl"), [][]byte{[]byte("junk"), root.DER}, true},
		{"missing intermediate", chain[:1], SSLPolicy("api.example.nl"), [][]byte{root.DER}, false},
		{"empty chain", nil, SSLPolicy("api.example.nl"), [][]byte{root.DER}, false},
		{"expired at evaluation time", chain, Policy{Hostname: "api.example.nl", CurrentTime: time.Now().AddDate(1, 0, 0)}, [][]byte{root.DER}, false},
		{"wrong key usage", chain, Policy{KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageCodeSigning}}, [][]byte{root.DER}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.chain, tt.policy, tt.anchors); got != tt.want {
				t.Errorf("Evaluate() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTrustEvaluator_EmptyAnchorsUseSystemStore(t *testing.T) {
	chain, root := serverChain(t, "api.example.nl")
	foreignChain, _ := serverChain(t, "api.example.nl")

	e := NewTrustEvaluator(&EvaluatorConfig{SystemRoots: poolOf(root)})

	assert.True(t, e.Evaluate(chain, SSLPolicy("api.example.nl"), nil))
	assert.True(t, e.Evaluate(chain, SSLPolicy("api.example.nl"), [][]byte{}))
	// 只有无法解码的锚点时同样回退到系统信任库
	assert.True(t, e.Evaluate(chain, SSLPolicy("api.example.nl"), [][]byte{[]byte("junk")}))
	assert.False(t, e.Evaluate(foreignChain, SSLPolicy("api.example.nl"), nil))
}

func TestTrustEvaluator_SystemStoreFailure(t *testing.T) {
	chain, root := serverChain(t, "api.example.nl")

	failing := NewTrustEvaluator(&EvaluatorConfig{
		SystemRoots: func() (*x509.CertPool, error) { return nil, errors.New("keychain locked") },
	})
	assert.False(t, failing.Evaluate(chain, SSLPolicy("api.example.nl"), nil))
	assert.True(t, failing.Evaluate(chain, SSLPolicy("api.example.nl"), [][]byte{root.DER}))

	nilPool := NewTrustEvaluator(&EvaluatorConfig{
		SystemRoots: func() (*x509.CertPool, error) { return nil, nil },
	})
	assert.False(t, nilPool.Evaluate(chain, SSLPolicy("api.example.nl"), nil))
}

func TestTrustEvaluator_EvaluateRaw(t *testing.T) {
	chain, root := serverChain(t, "api.example.nl")
	e := NewTrustEvaluator(nil)

	raw := [][]byte{chain[0].Raw, chain[1].Raw}
	assert.True(t, e.EvaluateRaw(raw, SSLPolicy("api.example.nl"), [][]byte{root.DER}))
	assert.False(t, e.EvaluateRaw([][]byte{chain[0].Raw, []byte("bad")}, SSLPolicy("api.example.nl"), [][]byte{root.DER}))
}

func TestTrustEvaluator_AuditAndLogging(t *testing.T) {
	chain, root := serverChain(t, "api.example.nl")
	audit := &recordingAudit{}
	var buf bytes.Buffer

	e := NewTrustEvaluator(&EvaluatorConfig{
		Logger: logging.NewWriterLogger(&buf, logging.LevelDebug, logging.FormatText),
		Audit:  audit,
	})

	require.False(t, e.Evaluate(chain, SSLPolicy("other.example.nl"), [][]byte{root.DER}))
	require.False(t, e.Evaluate(chain[:1], SSLPolicy("api.example.nl"), [][]byte{root.DER}))

	require.False(t, e.EvaluateRaw([][]byte{[]byte("bad")}, SSLPolicy("api.example.nl"), [][]byte{root.DER}))

	require.Len(t, audit.events, 3)
	assert.Equal(t, logging.EventHostnameMismatch, audit.events[0].EventType)
	assert.Equal(t, "other.example.nl", audit.events[0].Subject)
	assert.Equal(t, logging.EventUntrustedChain, audit.events[1].EventType)
	assert.Equal(t, logging.EventCertInvalid, audit.events[2].EventType)
	assert.Contains(t, buf.String(), "Server trust evaluation failed")
}

func TestTrustEvaluator_Policies(t *testing.T) {
	root := testpki.NewRoot(t, testpki.Options{CommonName: "Policy Root"})
	client := root.Issue(t, testpki.Options{
		CommonName:  "device",
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	})
	chain := []*x509.Certificate{client.Cert}
	anchors := [][]byte{root.DER}
	e := NewTrustEvaluator(nil)

	assert.True(t, e.Evaluate(chain, BasicPolicy(), anchors))
	assert.False(t, e.Evaluate(chain, SSLPolicy(""), anchors), "client-only EKU under SSL policy")
	assert.False(t, e.Evaluate(chain, Policy{CurrentTime: time.Now().AddDate(2, 0, 0)}, anchors), "expired")
	assert.True(t, e.Evaluate(chain, Policy{KeyUsages: []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth}}, anchors))
}
