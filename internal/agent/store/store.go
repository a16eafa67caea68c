// Package store defines the agent's persistent key/value blob
// collaborator (§6): the one piece of local state that must survive a
// reboot mid-deployment — the device's private key, its current
// artifact name, and the in-progress deployment's state record.
package store

//go:generate mockgen -source=store.go -destination=mock_store.go -package=store

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no value has ever been Set for a key.
var ErrNotFound = errors.New("store: key not found")

// Well-known keys the agent persists. Platform storage backends need
// not treat these specially; they are opaque strings from the store's
// point of view.
const (
	KeyArtifactName   = "artifact_name"
	KeyPrivateKey     = "private_key"
	KeyPublicKey      = "public_key"
	KeyDeploymentData = "deployment_data"
	KeyProvides       = "provides"
)

// Store persists named byte blobs across process restarts. Get and Set
// must each be atomic with respect to a concurrent crash: a reader
// must never observe a partially written value.
type Store interface {
	// Get returns the blob stored under key, or ErrNotFound if none
	// has been set.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set atomically writes value under key, replacing any previous
	// value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a key that was never set is not an error.
	Delete(ctx context.Context, key string) error
}
