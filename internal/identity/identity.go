// Package identity converts between ed25519 keys and base58 holder identities.
package identity

import (
	"crypto/ed25519"
	"fmt"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"

	"bridge-ledger/internal/domain"
)

// FromPublicKey encodes an ed25519 public key as an identity.
func FromPublicKey(pub ed25519.PublicKey) domain.Identity {
	return domain.Identity(base58.Encode(pub))
}

// PublicKey decodes id into an ed25519 public key.
func PublicKey(id domain.Identity) (ed25519.PublicKey, error) {
	raw, err := base58.Decode(string(id))
	if err != nil {
		return nil, fmt.Errorf("%w: decode %q: %v", domain.ErrInvalidIdentity, id, err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("%w: %q has %d bytes, want %d", domain.ErrInvalidIdentity, id, len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// ValidateKey checks that id decodes to a point on the ed25519 curve.
// Off-curve keys can never produce a verifiable signature.
func ValidateKey(id domain.Identity) error {
	pub, err := PublicKey(id)
	if err != nil {
		return err
	}
	if _, err := new(edwards25519.Point).SetBytes(pub); err != nil {
		return fmt.Errorf("%w: %q is not a curve point", domain.ErrInvalidIdentity, id)
	}
	return nil
}

// EncodeSignature encodes a signature for transport.
func EncodeSignature(sig []byte) string {
	return base58.Encode(sig)
}

// DecodeSignature decodes a base58 signature and checks its length.
func DecodeSignature(s string) ([]byte, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode signature: %w", err)
	}
	if len(raw) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature has %d bytes, want %d", len(raw), ed25519.SignatureSize)
	}
	return raw, nil
}

// Verify reports whether sig is id's signature over msg.
func Verify(id domain.Identity, msg, sig []byte) bool {
	pub, err := PublicKey(id)
	if err != nil {
		return false
	}
	return ed25519.Verify(pub, msg, sig)
}

// Signer holds a private key and the identity derived from it.
type Signer struct {
	key ed25519.PrivateKey
	id  domain.Identity
}

// NewSigner wraps an ed25519 private key.
func NewSigner(key ed25519.PrivateKey) *Signer {
	return &Signer{
		key: key,
		id:  FromPublicKey(key.Public().(ed25519.PublicKey)),
	}
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*Signer, error) {
	_, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return NewSigner(priv), nil
}

// ParseSigner decodes a base58 64-byte private key or 32-byte seed.
func ParseSigner(s string) (*Signer, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode private key: %w", err)
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return NewSigner(ed25519.NewKeyFromSeed(raw)), nil
	case ed25519.PrivateKeySize:
		return NewSigner(ed25519.PrivateKey(raw)), nil
	}
	return nil, fmt.Errorf("private key has %d bytes", len(raw))
}

// Identity returns the signer's identity.
func (s *Signer) Identity() domain.Identity {
	return s.id
}

// Sign signs msg.
func (s *Signer) Sign(msg []byte) []byte {
	return ed25519.Sign(s.key, msg)
}

// Encode returns the base58 private key accepted by ParseSigner.
func (s *Signer) Encode() string {
	return base58.Encode(s.key)
}
