package identity

import (
	"errors"
	"testing"

	"github.com/mr-tron/base58"

	"bridge-ledger/internal/domain"
)

func TestSigner_RoundTrip(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}

	msg := []byte("lock 40000 USDT")
	sig := s.Sign(msg)

	if !Verify(s.Identity(), msg, sig) {
		t.Error("signature should verify")
	}
	if Verify(s.Identity(), []byte("lock 40001 USDT"), sig) {
		t.Error("signature should not verify for a different message")
	}

	decoded, err := DecodeSignature(EncodeSignature(sig))
	if err != nil {
		t.Fatalf("DecodeSignature: %v", err)
	}
	if !Verify(s.Identity(), msg, decoded) {
		t.Error("decoded signature should verify")
	}
}

func TestValidateKey(t *testing.T) {
	s, err := GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner: %v", err)
	}
	if err := ValidateKey(s.Identity()); err != nil {
		t.Errorf("generated key should be valid: %v", err)
	}

	tests := []struct {
		name string
		id   domain.Identity
	}{
		{"not base58", "0OIl"},
		{"short", domain.Identity(base58.Encode([]byte{1, 2, 3}))},
		{"custody account", domain.CustodyAccount},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := ValidateKey(tt.id); !errors.Is(err, domain.ErrInvalidIdentity) {
				t.Errorf("Expected ErrInvalidIdentity, got %v", err)
			}
		})
	}
}

func TestParseSigner(t *testing.T) {
	seed := make([]byte, 32)
	for i := range seed {
		seed[i] = byte(i)
	}

	a, err := ParseSigner(base58.Encode(seed))
	if err != nil {
		t.Fatalf("ParseSigner: %v", err)
	}
	b, err := ParseSigner(base58.Encode(seed))
	if err != nil {
		t.Fatalf("ParseSigner: %v", err)
	}
	if a.Identity() != b.Identity() {
		t.Error("same seed should yield the same identity")
	}

	c, err := ParseSigner(a.Encode())
	if err != nil {
		t.Fatalf("ParseSigner(Encode): %v", err)
	}
	if c.Identity() != a.Identity() {
		t.Error("encoded key should parse back to the same identity")
	}

	if _, err := ParseSigner(base58.Encode([]byte{1})); err == nil {
		t.Error("expected error for short key")
	}
}
