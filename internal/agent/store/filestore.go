package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/google/renameio"
	"golang.org/x/sys/unix"
)

// keyFileRE restricts keys to safe filename characters, since each key
// maps directly to a file under dir.
var keyFileRE = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

const lockFileName = ".lock"

// FileStore is the default Store: one file per key under a directory,
// written atomically via write-to-temp-then-rename so a crash mid-write
// never leaves a torn value behind for the next boot to read. A single
// flock-guarded lock file serializes access across processes — two
// agent binaries (e.g. the long-running daemon and a config-check
// invocation) must never read a half-written deployment-state blob.
type FileStore struct {
	dir      string
	lockFile *os.File
}

// NewFileStore returns a FileStore rooted at dir. dir is created if it
// does not already exist.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("store: creating %s: %w", dir, err)
	}
	lockFile, err := os.OpenFile(filepath.Join(dir, lockFileName), os.O_CREATE|os.O_RDWR, 0600)
	if err != nil {
		return nil, fmt.Errorf("store: opening lock file: %w", err)
	}
	return &FileStore{dir: dir, lockFile: lockFile}, nil
}

// lock acquires an exclusive flock on the store's lock file, returning
// an unlock function to defer. Held only for the duration of a single
// Get/Set/Delete so it never spans a blocking network call.
func (f *FileStore) lock() (func(), error) {
	if err := unix.Flock(int(f.lockFile.Fd()), unix.LOCK_EX); err != nil {
		return nil, fmt.Errorf("store: locking %s: %w", f.lockFile.Name(), err)
	}
	return func() { _ = unix.Flock(int(f.lockFile.Fd()), unix.LOCK_UN) }, nil
}

func (f *FileStore) path(key string) (string, error) {
	if !keyFileRE.MatchString(key) {
		return "", fmt.Errorf("store: invalid key %q", key)
	}
	return filepath.Join(f.dir, key), nil
}

func (f *FileStore) Get(ctx context.Context, key string) ([]byte, error) {
	p, err := f.path(key)
	if err != nil {
		return nil, err
	}
	unlock, err := f.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	b, err := os.ReadFile(p)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("store: reading %s: %w", key, err)
	}
	return b, nil
}

func (f *FileStore) Set(ctx context.Context, key string, value []byte) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := renameio.WriteFile(p, value, 0600); err != nil {
		return fmt.Errorf("store: writing %s: %w", key, err)
	}
	return nil
}

func (f *FileStore) Delete(ctx context.Context, key string) error {
	p, err := f.path(key)
	if err != nil {
		return err
	}
	unlock, err := f.lock()
	if err != nil {
		return err
	}
	defer unlock()

	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("store: deleting %s: %w", key, err)
	}
	return nil
}
