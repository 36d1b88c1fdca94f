package cms

import (
	"bytes"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/houzhh15/httpsecurity/internal/testpki"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/cryptobyte"
	cryptobyte_asn1 "golang.org/x/crypto/cryptobyte/asn1"
)

// indefinite 将所有构造型元素改写为不定长编码
func indefinite(t *testing.T, der []byte) []byte {
	t.Helper()

	var out []byte
	s := cryptobyte.String(der)
	for !s.Empty() {
		var (
			el  cryptobyte.String
			tag cryptobyte_asn1.Tag
		)
		require.True(t, s.ReadAnyASN1Element(&el, &tag))
		if byte(tag)&berConstructed == 0 {
			out = append(out, el...)
			continue
		}
		var body cryptobyte.String
		require.True(t, el.ReadAnyASN1(&body, &tag))
		out = append(out, byte(tag), berIndefinite)
		out = append(out, indefinite(t, body)...)
		out = append(out, 0x00, 0x00)
	}
	return out
}

// outerIndefinite 只把最外层 ContentInfo 改为不定长
func outerIndefinite(t *testing.T, der []byte) []byte {
	t.Helper()

	s := cryptobyte.String(der)
	var body cryptobyte.String
	require.True(t, s.ReadASN1(&body, cryptobyte_asn1.SEQUENCE))
	out := append([]byte{0x30, berIndefinite}, body...)
	return append(out, 0x00, 0x00)
}

func TestVerify_BEREncoded(t *testing.T) {
	chain := testpki.Chain(t, 1, testpki.Options{CommonName: "signer.rdobeheer.nl"})
	der := testpki.SignDetached(t, payload, chain[1], testpki.SignOptions{})
	pss := testpki.SignDetached(t, payload, chain[1], testpki.SignOptions{Padding: testpki.PaddingPSS, NoSignedAttrs: true})

	tests := []struct {
		name string
		sig  []byte
	}{
		{"outer ContentInfo indefinite", outerIndefinite(t, der)},
		{"every constructed element indefinite", indefinite(t, der)},
		{"PSS without signed attributes indefinite", indefinite(t, pss)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotEqual(t, der, tt.sig)

			res := Verify(tt.sig, payload)
			require.True(t, res.Valid)
			assert.Equal(t, chain[1].DER, res.Signer.DER())

			assert.False(t, Verify(tt.sig, append(append([]byte{}, payload...), 'X')).Valid)
		})
	}
}

func TestNormalizeBER_DERUnchanged(t *testing.T) {
	leaf := testpki.NewRoot(t, testpki.Options{CommonName: "Root"}).Issue(t, testpki.Options{CommonName: "leaf"})
	der := testpki.SignDetached(t, payload, leaf, testpki.SignOptions{})

	got, err := normalizeBER(der)
	require.NoError(t, err)
	assert.True(t, bytes.Equal(der, got))

	got, err = normalizeBER(indefinite(t, der))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(der, got))
}

func TestNormalizeBER(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"empty indefinite sequence", "30800000", "3000"},
		{"nested indefinite", "3080308002010500000000", "30053003020105"},
		{"long form length", "3081030201 05", "3003020105"},
		{"four byte length", "308400000003020105", "3003020105"},
		{"constructed octet string", "2480040201020401030000", "0403010203"},
		{"nested constructed octet string", "248024800401010000040102 0000", "04020102"},
		{"definite constructed octet string", "2406040101040102", "04020102"},
		{"constructed bit string", "2380030200aa030204b00000", "030304aab0"},
		{"context specific kept constructed", "a080020101 0000", "a003020101"},
		{"integer leading zeros", "0203000005", "020105"},
		{"integer sign byte kept", "02020080", "02020080"},
		{"boolean true", "010101", "0101ff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in, err := hex.DecodeString(strings.ReplaceAll(tt.in, " ", ""))
			require.NoError(t, err)
			want, err := hex.DecodeString(tt.want)
			require.NoError(t, err)

			got, err := normalizeBER(in)
			require.NoError(t, err)
			assert.Equal(t, want, got)
		})
	}
}

func TestNormalizeBER_Errors(t *testing.T) {
	deep := append(bytes.Repeat([]byte{0x30, berIndefinite}, maxBERDepth+2), bytes.Repeat([]byte{0x00, 0x00}, maxBERDepth+2)...)

	tests := []struct {
		name string
		in   []byte
	}{
		{"empty", nil},
		{"single byte", []byte{0x30}},
		{"missing end-of-contents", []byte{0x30, 0x80, 0x02, 0x01, 0x05}},
		{"indefinite primitive", []byte{0x04, 0x80, 0x01, 0x00, 0x00}},
		{"truncated content", []byte{0x30, 0x05, 0x02, 0x01}},
		{"truncated long form", []byte{0x30, 0x82, 0x01}},
		{"oversized length field", []byte{0x30, 0x85, 0x00, 0x00, 0x00, 0x00, 0x01, 0x05}},
		{"trailing data", []byte{0x30, 0x00, 0x00}},
		{"stray end-of-contents", []byte{0x30, 0x02, 0x00, 0x00}},
		{"high tag number", []byte{0x1f, 0x81, 0x00, 0x00}},
		{"mixed string segments", []byte{0x24, 0x80, 0x04, 0x01, 0x01, 0x0c, 0x01, 0x41, 0x00, 0x00}},
		{"bit string unused bits before last segment", []byte{0x23, 0x80, 0x03, 0x02, 0x04, 0xa0, 0x03, 0x02, 0x00, 0xb0, 0x00, 0x00}},
		{"nesting too deep", deep},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := normalizeBER(tt.in)
			assert.Error(t, err)
		})
	}
}
