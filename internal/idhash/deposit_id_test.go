package idhash

import (
	"testing"
)

func TestComputeDepositID(t *testing.T) {
	tests := []struct {
		name        string
		sourceChain string
		txRef       string
		nonce       uint64
	}{
		{"ethereum lock", "ethereum", "0f7c2f0e-5d1b-4a53-9a33-6a3c1f0b9c11", 1},
		{"bsc burn", "bsc", "3b4e7b7a-0c0e-4c1b-8f6e-2b1a9d0e7c22", 42},
		{"empty ref", "polygon", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ComputeDepositID(tt.sourceChain, tt.txRef, tt.nonce)

			if len(got) != 64 {
				t.Errorf("ComputeDepositID() length = %d, want 64", len(got))
			}

			// Verify determinism: same inputs should produce same output
			got2 := ComputeDepositID(tt.sourceChain, tt.txRef, tt.nonce)
			if got != got2 {
				t.Errorf("ComputeDepositID() not deterministic: %s != %s", got, got2)
			}
		})
	}
}

func TestComputeDepositID_DifferentInputs(t *testing.T) {
	base := ComputeDepositID("ethereum", "ref", 1)

	if base == ComputeDepositID("bsc", "ref", 1) {
		t.Error("Different chain should produce different hash")
	}
	if base == ComputeDepositID("ethereum", "other", 1) {
		t.Error("Different tx ref should produce different hash")
	}
	if base == ComputeDepositID("ethereum", "ref", 2) {
		t.Error("Different nonce should produce different hash")
	}
}
