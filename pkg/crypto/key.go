// Package crypto provides the PEM encoding and key-comparison helpers
// shared by the agent's crypto backend implementations (§6 of the
// device-facing crypto collaborator: get_public_key_pem, sign_payload,
// generate_keys).
package crypto

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
)

// ErrResourceIsNil is returned by the PEM encoders when passed a nil key.
var ErrResourceIsNil = errors.New("resource is nil")

const publicKeyPEMType = "PUBLIC KEY"

// EncodePublicKeyPEM marshals a public key to PKIX, PEM-encoded form.
func EncodePublicKeyPEM(pub crypto.PublicKey) ([]byte, error) {
	if pub == nil {
		return nil, ErrResourceIsNil
	}
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(&pem.Block{Type: publicKeyPEMType, Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a single PKIX PEM block into a public key.
func ParsePublicKeyPEM(pemBytes []byte) (crypto.PublicKey, error) {
	block, rest := pem.Decode(pemBytes)
	if block == nil {
		return nil, errors.New("no PEM block found")
	}
	if block.Type != publicKeyPEMType {
		return nil, errors.New("unexpected PEM block type " + block.Type)
	}
	if len(rest) != 0 {
		return nil, errors.New("trailing data after PEM block")
	}
	return x509.ParsePKIXPublicKey(block.Bytes)
}

// PublicKeysEqual reports whether a and b are the same public key. It
// supports RSA and ECDSA keys; any other type, or a nil operand,
// reports false rather than panicking.
func PublicKeysEqual(a, b crypto.PublicKey) bool {
	if a == nil || b == nil {
		return false
	}
	switch ak := a.(type) {
	case *rsa.PublicKey:
		bk, ok := b.(*rsa.PublicKey)
		return ok && ak.Equal(bk)
	case *ecdsa.PublicKey:
		bk, ok := b.(*ecdsa.PublicKey)
		return ok && ak.Equal(bk)
	default:
		return false
	}
}
