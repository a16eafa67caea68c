package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestFileStoreSetGetDelete(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, KeyArtifactName)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Set(ctx, KeyArtifactName, []byte("fw-1.2.3")))
	v, err := s.Get(ctx, KeyArtifactName)
	require.NoError(t, err)
	require.Equal(t, "fw-1.2.3", string(v))

	require.NoError(t, s.Set(ctx, KeyArtifactName, []byte("fw-1.3.0")))
	v, err = s.Get(ctx, KeyArtifactName)
	require.NoError(t, err)
	require.Equal(t, "fw-1.3.0", string(v))

	require.NoError(t, s.Delete(ctx, KeyArtifactName))
	_, err = s.Get(ctx, KeyArtifactName)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreDeleteMissingKeyIsNotAnError(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, s.Delete(context.Background(), KeyPrivateKey))
}

func TestFileStoreHoldsExclusiveFlockDuringAnOperation(t *testing.T) {
	dir := t.TempDir()
	s1, err := NewFileStore(dir)
	require.NoError(t, err)
	s2, err := NewFileStore(dir)
	require.NoError(t, err)

	unlock, err := s1.lock()
	require.NoError(t, err)
	defer unlock()

	// A second, independent file description on the same lock file must
	// not be able to acquire it non-blockingly while s1 holds it.
	err = unix.Flock(int(s2.lockFile.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	require.ErrorIs(t, err, unix.EWOULDBLOCK)
}

func TestFileStoreRejectsUnsafeKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = s.Get(ctx, "../escape")
	require.Error(t, err)
	require.NoError(t, s.Set(ctx, "ok_key-1", []byte("v")))
}
