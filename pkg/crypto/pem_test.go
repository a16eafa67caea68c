package crypto

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeParsePublicKeyPEMRoundTrip(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	pemBytes, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	require.Contains(t, string(pemBytes), "BEGIN PUBLIC KEY")

	parsed, err := ParsePublicKeyPEM(pemBytes)
	require.NoError(t, err)
	require.True(t, PublicKeysEqual(&key.PublicKey, parsed))
}

func TestEncodePublicKeyPEMNilInput(t *testing.T) {
	_, err := EncodePublicKeyPEM(nil)
	require.ErrorIs(t, err, ErrResourceIsNil)
}

func TestParsePublicKeyPEMInvalidInput(t *testing.T) {
	testCases := []struct {
		name  string
		input []byte
	}{
		{"empty", []byte{}},
		{"invalid PEM", []byte("not a pem block")},
		{"wrong type", []byte("-----BEGIN CERTIFICATE-----\ndata\n-----END CERTIFICATE-----")},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParsePublicKeyPEM(tc.input)
			require.Error(t, err)
		})
	}
}

func TestParsePublicKeyPEMTrailingData(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	pemBytes, err := EncodePublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.Write(pemBytes)
	buf.WriteString("trailing garbage")

	_, err = ParsePublicKeyPEM(buf.Bytes())
	require.Error(t, err)
}
