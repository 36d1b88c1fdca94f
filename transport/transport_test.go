package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/houzhh15/httpsecurity/cert"
	"github.com/houzhh15/httpsecurity/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

const serverName = "api.example.nl"

type serverPKI struct {
	root, intermediate, leaf *testpki.Issued
}

func newServerPKI(t *testing.T) *serverPKI {
	t.Helper()
	root := testpki.NewRoot(t, testpki.Options{CommonName: "Server Root"})
	intermediate := root.Issue(t, testpki.Options{CommonName: "Server Intermediate", IsCA: true})
	leaf := intermediate.Issue(t, testpki.Options{
		CommonName:  "not-" + serverName,
		DNSNames:    []string{serverName},
		ExtKeyUsage: []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	})
	return &serverPKI{root: root, intermediate: intermediate, leaf: leaf}
}

func (p *serverPKI) serverTLS() *tls.Config {
	return &tls.Config{
		Certificates: []tls.Certificate{{
			Certificate: [][]byte{p.leaf.DER, p.intermediate.DER},
			PrivateKey:  p.leaf.Key,
		}},
	}
}

func startHTTPS(t *testing.T, p *serverPKI) *httptest.Server {
	t.Helper()
	srv := httptest.NewUnstartedServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	srv.TLS = p.serverTLS()
	srv.StartTLS()
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPClient(t *testing.T) {
	p := newServerPKI(t)
	other := testpki.NewRoot(t, testpki.Options{CommonName: "Other Root"})
	srv := startHTTPS(t, p)

	tests := []struct {
		name       string
		anchors    [][]byte
		serverName string
		wantErr    bool
	}{
		{"root anchor", [][]byte{p.root.DER}, serverName, false},
		{"PEM anchor", [][]byte{[]byte(p.root.PEM())}, serverName, false},
		{"intermediate anchor", [][]byte{p.intermediate.DER}, serverName, false},
		{"case insensitive hostname", [][]byte{p.root.DER}, "API.Example.NL", false},
		{"unrelated anchor", [][]byte{other.DER}, serverName, true},
		{"undecodable anchor ignored", [][]byte{[]byte("garbage"), p.root.DER}, serverName, false},
		{"wrong hostname", [][]byte{p.root.DER}, "www.example.nl", true},
		{"common name never matched", [][]byte{p.root.DER}, "not-" + serverName, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := NewHTTPClient(&ClientConfig{Anchors: tt.anchors, ServerName: tt.serverName}, 5*time.Second)
			resp, err := client.Get(srv.URL)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "not trusted")
				return
			}
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		})
	}
}

func TestHTTPClient_SystemRoots(t *testing.T) {
	p := newServerPKI(t)
	srv := startHTTPS(t, p)

	evaluator := cert.NewTrustEvaluator(&cert.EvaluatorConfig{
		SystemRoots: func() (*x509.CertPool, error) {
			pool := x509.NewCertPool()
			pool.AddCert(p.root.Cert)
			return pool, nil
		},
	})

	client := NewHTTPClient(&ClientConfig{ServerName: serverName, Evaluator: evaluator}, 5*time.Second)
	resp, err := client.Get(srv.URL)
	require.NoError(t, err)
	resp.Body.Close()

	// 显式信任锚替换系统证书库
	other := testpki.NewRoot(t, testpki.Options{CommonName: "Other Root"})
	client = NewHTTPClient(&ClientConfig{ServerName: serverName, Evaluator: evaluator, Anchors: [][]byte{other.DER}}, 5*time.Second)
	_, err = client.Get(srv.URL)
	assert.Error(t, err)
}

func TestVerifyPeer(t *testing.T) {
	p := newServerPKI(t)
	evaluator := cert.NewTrustEvaluator(nil)
	chain := []*x509.Certificate{p.leaf.Cert, p.intermediate.Cert}
	anchors := [][]byte{p.root.DER}

	assert.NoError(t, VerifyPeer(evaluator, chain, serverName, anchors))
	assert.NoError(t, VerifyPeer(evaluator, chain, serverName+".", anchors))

	err := VerifyPeer(evaluator, chain, "", anchors)
	assert.True(t, errors.Is(err, ErrHostnameMismatch), "got %v", err)

	err = VerifyPeer(evaluator, nil, serverName, anchors)
	assert.True(t, errors.Is(err, ErrUntrustedServer), "got %v", err)

	err = VerifyPeer(evaluator, chain[:1], serverName, anchors)
	assert.True(t, errors.Is(err, ErrUntrustedServer), "missing intermediate: %v", err)
}

func TestVerifyPeer_DefaultEvaluator(t *testing.T) {
	p := newServerPKI(t)
	chain := []*x509.Certificate{p.leaf.Cert, p.intermediate.Cert}

	assert.NoError(t, VerifyPeer(nil, chain, serverName, [][]byte{p.root.DER}))

	other := testpki.NewRoot(t, testpki.Options{CommonName: "Other Root"})
	err := VerifyPeer(nil, chain, serverName, [][]byte{other.DER})
	assert.True(t, errors.Is(err, ErrUntrustedServer), "got %v", err)

	err = VerifyPeer(nil, chain, serverName, nil)
	assert.True(t, errors.Is(err, ErrUntrustedServer), "system roots: %v", err)
}

func TestNewClientTLSConfig_Defaults(t *testing.T) {
	cfg := NewClientTLSConfig(nil)
	assert.Equal(t, uint16(tls.VersionTLS12), cfg.MinVersion)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.NotNil(t, cfg.VerifyConnection)

	cfg = NewClientTLSConfig(&ClientConfig{MinVersion: tls.VersionTLS13, ServerName: serverName})
	assert.Equal(t, uint16(tls.VersionTLS13), cfg.MinVersion)
	assert.Equal(t, serverName, cfg.ServerName)
}

func TestFetchChain(t *testing.T) {
	p := newServerPKI(t)
	srv := startHTTPS(t, p)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chain, err := FetchChain(ctx, srv.Listener.Addr().String(), serverName, 5*time.Second)
	require.NoError(t, err)
	require.Len(t, chain, 2)
	assert.Equal(t, p.leaf.DER, chain[0].Raw)
	assert.Equal(t, p.intermediate.DER, chain[1].Raw)

	_, err = FetchChain(ctx, "no-port", "", time.Second)
	assert.Error(t, err)
}

func TestGRPCCredentials(t *testing.T) {
	p := newServerPKI(t)

	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := grpc.NewServer(grpc.Creds(credentials.NewTLS(p.serverTLS())))
	healthpb.RegisterHealthServer(server, health.NewServer())
	go server.Serve(lis)
	t.Cleanup(server.Stop)

	check := func(anchors [][]byte) error {
		conn, err := grpc.Dial(lis.Addr().String(),
			grpc.WithTransportCredentials(NewGRPCCredentials(&ClientConfig{Anchors: anchors, ServerName: serverName})))
		require.NoError(t, err)
		defer conn.Close()

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err = healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{})
		return err
	}

	assert.NoError(t, check([][]byte{p.root.DER}))

	other := testpki.NewRoot(t, testpki.Options{CommonName: "Other Root"})
	assert.Error(t, check([][]byte{other.DER}))
}
