package cms

import (
	"crypto"
	"errors"
	"testing"
	"time"

	"github.com/houzhh15/httpsecurity/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var payload = []byte(`{"payload":"eyJ0eXBlIjoiY29uZmlnIn0=","signature":"..."}`)

func TestVerify_Algorithms(t *testing.T) {
	rsaLeaf := testpki.NewRoot(t, testpki.Options{CommonName: "RSA Root"}).
		Issue(t, testpki.Options{CommonName: "signer.rdobeheer.nl"})
	ecLeaf := testpki.NewRoot(t, testpki.Options{CommonName: "EC Root", KeyType: testpki.KeyECDSA}).
		Issue(t, testpki.Options{CommonName: "ec.rdobeheer.nl", KeyType: testpki.KeyECDSA})

	tests := []struct {
		name   string
		signer *testpki.Issued
		opts   testpki.SignOptions
	}{
		{"PKCS1v15 SHA-256", rsaLeaf, testpki.SignOptions{}},
		{"PKCS1v15 SHA-384", rsaLeaf, testpki.SignOptions{Hash: crypto.SHA384}},
		{"PKCS1v15 SHA-512", rsaLeaf, testpki.SignOptions{Hash: crypto.SHA512}},
		{"PKCS1v15 SHA-224", rsaLeaf, testpki.SignOptions{Hash: crypto.SHA224}},
		{"rsaEncryption OID", rsaLeaf, testpki.SignOptions{RSAEncryptionOID: true}},
		{"PSS SHA-256", rsaLeaf, testpki.SignOptions{Padding: testpki.PaddingPSS}},
		{"PSS SHA-512 salt 20", rsaLeaf, testpki.SignOptions{Padding: testpki.PaddingPSS, Hash: crypto.SHA512, PSSSaltLength: 20}},
		{"ECDSA SHA-256", ecLeaf, testpki.SignOptions{}},
		{"ECDSA SHA-384", ecLeaf, testpki.SignOptions{Hash: crypto.SHA384}},
		{"no signed attributes", rsaLeaf, testpki.SignOptions{NoSignedAttrs: true}},
		{"PSS without signed attributes", rsaLeaf, testpki.SignOptions{Padding: testpki.PaddingPSS, NoSignedAttrs: true}},
		{"subject key identifier sid", rsaLeaf, testpki.SignOptions{UseSKI: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sig := testpki.SignDetached(t, payload, tt.signer, tt.opts)

			res := Verify(sig, payload)
			require.True(t, res.Valid)
			require.NotNil(t, res.Signer)
			assert.Equal(t, tt.signer.DER, res.Signer.DER())

			// 内容被篡改后必须失败
			tampered := append(append([]byte{}, payload...), 'X')
			res = Verify(sig, tampered)
			assert.False(t, res.Valid)
			assert.Nil(t, res.Signer)
		})
	}
}

func TestVerifyContent_Errors(t *testing.T) {
	root := testpki.NewRoot(t, testpki.Options{CommonName: "Root"})
	leaf := root.Issue(t, testpki.Options{CommonName: "leaf"})
	other := root.Issue(t, testpki.Options{CommonName: "other"})

	tests := []struct {
		name    string
		opts    testpki.SignOptions
		content []byte
		want    error
	}{
		{"digest attribute mismatch", testpki.SignOptions{WrongDigestAttr: true}, payload, ErrAttributeInvalid},
		{"content type attribute mismatch", testpki.SignOptions{WrongContentType: true}, payload, ErrAttributeInvalid},
		{"tampered content", testpki.SignOptions{}, []byte("other"), ErrAttributeInvalid},
		{"tampered content without attributes", testpki.SignOptions{NoSignedAttrs: true}, []byte("other"), ErrInvalidSignature},
		{"signer certificate missing", testpki.SignOptions{OmitSignerCert: true, ExtraCerts: []*testpki.Issued{other}}, payload, ErrMissingCertificate},
		{"SHA-1 refused", testpki.SignOptions{DigestOIDSHA1: true}, payload, ErrUnsupportedAlgorithm},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sd, err := Parse(testpki.SignDetached(t, payload, leaf, tt.opts))
			require.NoError(t, err)

			_, err = sd.VerifyContent(tt.content)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v, want %v", err, tt.want)
		})
	}
}

func TestVerify_WrongKey(t *testing.T) {
	root := testpki.NewRoot(t, testpki.Options{CommonName: "Root"})
	leaf := root.Issue(t, testpki.Options{CommonName: "leaf"})
	impostor := root.Issue(t, testpki.Options{CommonName: "leaf"})

	// 使用 impostor 的私钥签名但宣称是 leaf
	forged := &testpki.Issued{Cert: leaf.Cert, DER: leaf.DER, Key: impostor.Key}
	sig := testpki.SignDetached(t, payload, forged, testpki.SignOptions{})

	sd, err := Parse(sig)
	require.NoError(t, err)
	_, err = sd.VerifyContent(payload)
	assert.ErrorIs(t, err, ErrInvalidSignature)
	assert.False(t, Verify(sig, payload).Valid)
}

func TestVerifyChain(t *testing.T) {
	chain := testpki.Chain(t, 4, testpki.Options{CommonName: "leaf"})
	root, leaf := chain[0], chain[len(chain)-1]
	unrelated := testpki.NewRoot(t, testpki.Options{CommonName: "Unrelated"})

	withIntermediates := testpki.SignDetached(t, payload, leaf, testpki.SignOptions{ExtraCerts: chain[1 : len(chain)-1]})
	leafOnly := testpki.SignDetached(t, payload, leaf, testpki.SignOptions{})

	sd, err := Parse(withIntermediates)
	require.NoError(t, err)
	assert.NoError(t, sd.VerifyChain(root.Cert, time.Time{}))
	// 中间证书也可以作为固定根
	assert.NoError(t, sd.VerifyChain(chain[2].Cert, time.Time{}))
	assert.ErrorIs(t, sd.VerifyChain(unrelated.Cert, time.Time{}), ErrCertificateChain)
	assert.ErrorIs(t, sd.VerifyChain(root.Cert, time.Now().AddDate(2, 0, 0)), ErrCertificateChain)
	assert.ErrorIs(t, sd.VerifyChain(nil, time.Time{}), ErrCertificateChain)

	sd, err = Parse(leafOnly)
	require.NoError(t, err)
	assert.ErrorIs(t, sd.VerifyChain(root.Cert, time.Time{}), ErrCertificateChain)
	assert.NoError(t, sd.VerifyChain(chain[len(chain)-2].Cert, time.Time{}))
}

func TestError_Is(t *testing.T) {
	err := wrapError(CodeInvalidSignature, "bad", errors.New("cause"))

	assert.True(t, errors.Is(err, ErrInvalidSignature))
	assert.False(t, errors.Is(err, ErrParse))
	assert.Contains(t, err.Error(), "cause")
	assert.Equal(t, "cause", errors.Unwrap(err).Error())

	var cmsErr *Error
	require.True(t, errors.As(error(err), &cmsErr))
	assert.Equal(t, CodeInvalidSignature, cmsErr.Code)
}
