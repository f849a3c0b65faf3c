package proof

import (
	"errors"
	"testing"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
)

type validatorSet map[domain.Identity]bool

func (v validatorSet) HasRole(role domain.Role, holder domain.Identity) bool {
	return role == domain.RoleValidator && v[holder]
}

func newSigners(t *testing.T, n int) []*identity.Signer {
	t.Helper()
	out := make([]*identity.Signer, n)
	for i := range out {
		s, err := identity.GenerateSigner()
		if err != nil {
			t.Fatalf("GenerateSigner failed: %v", err)
		}
		out[i] = s
	}
	return out
}

func testClaim() Claim {
	return Claim{
		Kind:             domain.DepositKindMint,
		SourceChain:      "chain-a",
		DestinationChain: "chain-b",
		Asset:            "USDT",
		Amount:           40000,
		Recipient:        "alice",
		DepositID:        "D1",
	}
}

func TestVerify_Threshold(t *testing.T) {
	signers := newSigners(t, 3)
	set := validatorSet{}
	for _, s := range signers {
		set[s.Identity()] = true
	}
	c := testClaim()

	tests := []struct {
		name      string
		signers   []*identity.Signer
		threshold int
		wantErr   bool
	}{
		{"2 of 3", signers[:2], 2, false},
		{"3 of 3", signers, 2, false},
		{"1 of 2 required", signers[:1], 2, true},
		{"zero threshold treated as one", signers[:1], 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Verify(c, Sign(c, tt.signers...), set, tt.threshold)
			if tt.wantErr && !errors.Is(err, domain.ErrInvalidProof) {
				t.Errorf("Expected ErrInvalidProof, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestVerify_NonValidatorsDoNotCount(t *testing.T) {
	signers := newSigners(t, 2)
	set := validatorSet{signers[0].Identity(): true}
	c := testClaim()

	if err := Verify(c, Sign(c, signers...), set, 2); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("Expected ErrInvalidProof, got %v", err)
	}
}

func TestVerify_DuplicateSignerCountsOnce(t *testing.T) {
	signers := newSigners(t, 1)
	set := validatorSet{signers[0].Identity(): true}
	c := testClaim()

	p := Sign(c, signers[0], signers[0])
	if err := Verify(c, p, set, 2); !errors.Is(err, domain.ErrInvalidProof) {
		t.Errorf("Expected ErrInvalidProof, got %v", err)
	}
}

func TestVerify_BindsEveryField(t *testing.T) {
	signers := newSigners(t, 1)
	set := validatorSet{signers[0].Identity(): true}
	c := testClaim()
	p := Sign(c, signers...)

	mutations := map[string]func(*Claim){
		"kind":        func(c *Claim) { c.Kind = domain.DepositKindRelease },
		"destination": func(c *Claim) { c.DestinationChain = "chain-c" },
		"asset":       func(c *Claim) { c.Asset = "USDC" },
		"amount":      func(c *Claim) { c.Amount++ },
		"recipient":   func(c *Claim) { c.Recipient = "mallory" },
		"deposit":     func(c *Claim) { c.DepositID = "D2" },
	}

	for name, mutate := range mutations {
		t.Run(name, func(t *testing.T) {
			other := c
			mutate(&other)
			if err := Verify(other, p, set, 1); !errors.Is(err, domain.ErrInvalidProof) {
				t.Errorf("Expected ErrInvalidProof, got %v", err)
			}
		})
	}

	t.Run("source", func(t *testing.T) {
		other := c
		other.SourceChain = "chain-x"
		if err := Verify(other, p, set, 1); !errors.Is(err, domain.ErrInvalidProof) {
			t.Errorf("Expected ErrInvalidProof, got %v", err)
		}
	})
}

func TestDigest_FieldBoundaries(t *testing.T) {
	a := testClaim()
	b := testClaim()
	a.Asset, a.Recipient = "US", "DTalice"
	b.Asset, b.Recipient = "USDT", "alice"
	if a.Digest() == b.Digest() {
		t.Error("Digest must not depend on field concatenation only")
	}
}

func TestDecode(t *testing.T) {
	signers := newSigners(t, 2)
	c := testClaim()
	raw, err := Sign(c, signers...).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	p, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	set := validatorSet{signers[0].Identity(): true, signers[1].Identity(): true}
	if err := Verify(c, p, set, 2); err != nil {
		t.Errorf("Verify after decode failed: %v", err)
	}

	dup, err := Sign(c, signers[0], signers[0]).Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	bad := []struct {
		name string
		raw  string
	}{
		{"not json", "nope"},
		{"no source chain", `{"signatures":[]}`},
		{"no signatures", `{"source_chain":"chain-a","signatures":[]}`},
		{"bad validator", `{"source_chain":"chain-a","signatures":[{"validator":"0OIl","signature":"1"}]}`},
		{"short signature", `{"source_chain":"chain-a","signatures":[{"validator":"` + string(signers[0].Identity()) + `","signature":"3yZe7d"}]}`},
		{"duplicate signer", string(dup)},
	}
	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode([]byte(tt.raw)); !errors.Is(err, domain.ErrInvalidProof) {
				t.Errorf("Expected ErrInvalidProof, got %v", err)
			}
		})
	}
}
