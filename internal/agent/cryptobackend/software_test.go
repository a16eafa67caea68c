package cryptobackend

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSoftwareGenerateSignVerifyRoundTrip(t *testing.T) {
	ctx := context.Background()
	keyPath := filepath.Join(t.TempDir(), "agent.key")

	s, err := NewSoftware(keyPath)
	require.NoError(t, err)
	require.NoError(t, s.GenerateKeys(ctx))

	pubPEM, err := s.PublicKeyPEM(ctx)
	require.NoError(t, err)
	require.Contains(t, string(pubPEM), "BEGIN PUBLIC KEY")

	payload := []byte("manifest contents")
	sig, err := s.Sign(ctx, payload)
	require.NoError(t, err)

	require.NoError(t, s.Verify(ctx, pubPEM, payload, sig))
	require.Error(t, s.Verify(ctx, pubPEM, []byte("tampered"), sig))
}

func TestSoftwarePersistsKeyAcrossReload(t *testing.T) {
	ctx := context.Background()
	keyPath := filepath.Join(t.TempDir(), "agent.key")

	s1, err := NewSoftware(keyPath)
	require.NoError(t, err)
	require.NoError(t, s1.GenerateKeys(ctx))
	pub1, err := s1.PublicKeyPEM(ctx)
	require.NoError(t, err)

	s2, err := NewSoftware(keyPath)
	require.NoError(t, err)
	pub2, err := s2.PublicKeyPEM(ctx)
	require.NoError(t, err)

	require.Equal(t, pub1, pub2)
}

func TestSoftwareNoKeyYet(t *testing.T) {
	ctx := context.Background()
	s, err := NewSoftware(filepath.Join(t.TempDir(), "missing.key"))
	require.NoError(t, err)

	_, err = s.PublicKeyPEM(ctx)
	require.Error(t, err)

	_, err = s.Sign(ctx, []byte("x"))
	require.Error(t, err)
}
