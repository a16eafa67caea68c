// Package cryptobackend defines the agent's crypto collaborator (§6):
// the device's signing identity. The agent never touches private key
// material directly — every signature is produced by calling through
// this interface, so a platform can back it with a software key, a
// TPM, or a secure element without the rest of the agent knowing the
// difference.
package cryptobackend

//go:generate mockgen -source=cryptobackend.go -destination=mock_cryptobackend.go -package=cryptobackend

import "context"

// Backend signs payloads on the agent's behalf and reports the public
// key half of its identity.
type Backend interface {
	// PublicKeyPEM returns the PEM-encoded public key the deployment
	// service should use to verify this device's signatures.
	PublicKeyPEM(ctx context.Context) ([]byte, error)

	// Sign returns a signature over payload using the device's private
	// key. The signature format (ASN.1 DER for ECDSA, PKCS#1 v1.5 for
	// RSA) is determined by the backend's key type.
	Sign(ctx context.Context, payload []byte) ([]byte, error)

	// Verify checks signature over payload using the public key
	// previously returned by PublicKeyPEM. The artifact parser uses it
	// to validate a detached artifact manifest.sig against the
	// backend's own public key.
	Verify(ctx context.Context, publicKeyPEM, payload, signature []byte) error
}

// KeyGenerator is an optional capability a Backend may additionally
// implement: generating a fresh device key pair. Backends whose key is
// provisioned externally (a TPM-resident key, a factory-injected key)
// need not implement it.
type KeyGenerator interface {
	// GenerateKeys creates (or rotates) the device's key pair. Any
	// previous key becomes unusable for future Sign calls once this
	// returns successfully.
	GenerateKeys(ctx context.Context) error
}
