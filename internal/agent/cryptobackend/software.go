package cryptobackend

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/google/renameio"

	pkgcrypto "github.com/edgeupdate/agent/pkg/crypto"
)

const privateKeyPEMType = "EC PRIVATE KEY"

// Software is the default Backend: an ECDSA P-256 key pair held in a
// single PEM file on disk, written atomically via renameio so a crash
// mid-write never leaves a truncated or torn key file behind.
type Software struct {
	keyPath string
	key     *ecdsa.PrivateKey
}

// NewSoftware loads an existing key from keyPath, or returns a backend
// with no key yet if the file does not exist; callers should follow up
// with GenerateKeys in that case.
func NewSoftware(keyPath string) (*Software, error) {
	s := &Software{keyPath: keyPath}
	b, err := os.ReadFile(keyPath)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("reading key %s: %w", keyPath, err)
	}
	key, err := parsePrivateKeyPEM(b)
	if err != nil {
		return nil, fmt.Errorf("parsing key %s: %w", keyPath, err)
	}
	s.key = key
	return s, nil
}

// GenerateKeys creates a new P-256 key pair and persists it to keyPath.
func (s *Software) GenerateKeys(ctx context.Context) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return fmt.Errorf("generating key: %w", err)
	}
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return fmt.Errorf("marshalling key: %w", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: privateKeyPEMType, Bytes: der})
	if err := renameio.WriteFile(s.keyPath, pemBytes, 0600); err != nil {
		return fmt.Errorf("writing key %s: %w", s.keyPath, err)
	}
	s.key = key
	return nil
}

func (s *Software) PublicKeyPEM(ctx context.Context) ([]byte, error) {
	if s.key == nil {
		return nil, fmt.Errorf("cryptobackend: no key loaded, call GenerateKeys first")
	}
	return pkgcrypto.EncodePublicKeyPEM(&s.key.PublicKey)
}

func (s *Software) Sign(ctx context.Context, payload []byte) ([]byte, error) {
	if s.key == nil {
		return nil, fmt.Errorf("cryptobackend: no key loaded, call GenerateKeys first")
	}
	digest := sha256.Sum256(payload)
	return ecdsa.SignASN1(rand.Reader, s.key, digest[:])
}

func (s *Software) Verify(ctx context.Context, publicKeyPEM, payload, signature []byte) error {
	pub, err := pkgcrypto.ParsePublicKeyPEM(publicKeyPEM)
	if err != nil {
		return fmt.Errorf("parsing public key: %w", err)
	}
	ecdsaPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return fmt.Errorf("cryptobackend: unsupported public key type %T", pub)
	}
	digest := sha256.Sum256(payload)
	if !ecdsa.VerifyASN1(ecdsaPub, digest[:], signature) {
		return fmt.Errorf("cryptobackend: signature verification failed")
	}
	return nil
}

func parsePrivateKeyPEM(b []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(b)
	if block == nil || block.Type != privateKeyPEMType {
		return nil, fmt.Errorf("no %s PEM block found", privateKeyPEMType)
	}
	return x509.ParseECPrivateKey(block.Bytes)
}
