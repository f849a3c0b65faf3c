package replay

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/proof"
	"bridge-ledger/internal/storage/memory"
)

func newSigner(t *testing.T) *identity.Signer {
	t.Helper()
	s, err := identity.GenerateSigner()
	if err != nil {
		t.Fatalf("GenerateSigner failed: %v", err)
	}
	return s
}

// buildHistory drives a ledger through every kind of transition.
func buildHistory(t *testing.T, journal *memory.JournalStore, admin, relayer, validator *identity.Signer) *ledger.Ledger {
	t.Helper()
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time { return now }

	l, err := ledger.New("chain-b", []domain.Identity{admin.Identity()},
		ledger.WithJournal(journal), ledger.WithClock(clock))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a := admin.Identity()
	must := func(_ *domain.Event, err error) {
		t.Helper()
		if err != nil {
			t.Fatalf("Operation failed: %v", err)
		}
	}

	must(l.Grant(ctx, a, domain.RoleRelayer, relayer.Identity()))
	must(l.Grant(ctx, a, domain.RoleValidator, validator.Identity()))
	must(l.Grant(ctx, a, domain.RoleOperator, "ops"))
	must(l.Revoke(ctx, a, domain.RoleOperator, "ops"))
	must(l.Configure(ctx, a, "USDT", 1, 100000, 50000))
	must(l.Configure(ctx, a, "USDC", 1, 100, 100))
	must(l.Disable(ctx, a, "USDC"))
	must(l.Fund(ctx, a, "USDT", "bob", 5000))

	lock1, err := l.Lock(ctx, "bob", "USDT", 2000, "chain-a")
	must(lock1, err)
	lock2, err := l.Lock(ctx, "bob", "USDT", 1000, "chain-a")
	must(lock2, err)
	must(l.Finalize(ctx, relayer.Identity(), lock1.Lock.DepositID))
	must(l.Refund(ctx, a, lock2.Lock.DepositID))

	claim := proof.Claim{
		Kind:             domain.DepositKindMint,
		SourceChain:      "chain-a",
		DestinationChain: "chain-b",
		Asset:            "USDT",
		Amount:           700,
		Recipient:        "alice",
		DepositID:        "D1",
	}
	must(l.Mint(ctx, relayer.Identity(), ledger.CreditRequest{
		Asset: "USDT", Recipient: "alice", Amount: 700, DepositID: "D1",
		Proof: proof.Sign(claim, validator),
	}))

	claim.Kind, claim.DepositID, claim.Amount = domain.DepositKindRelease, "D2", 500
	must(l.Release(ctx, relayer.Identity(), ledger.CreditRequest{
		Asset: "USDT", Recipient: "alice", Amount: 500, DepositID: "D2",
		Proof: proof.Sign(claim, validator),
	}))

	burn, err := l.Burn(ctx, "alice", "USDT", 300, "chain-a")
	must(burn, err)
	must(l.Refund(ctx, a, burn.Burn.DepositID))

	must(l.Pause(ctx, a, "drill"))
	must(l.EmergencyWithdraw(ctx, a, "USDT", "treasury", 100))
	must(l.Unpause(ctx, a))
	must(l.SetValidatorThreshold(ctx, a, 2))
	must(l.Pause(ctx, a, "final"))
	return l
}

func TestRebuild_ReproducesState(t *testing.T) {
	admin, relayer, validator := newSigner(t), newSigner(t), newSigner(t)
	journal := memory.NewJournalStore()
	original := buildHistory(t, journal, admin, relayer, validator)

	fresh, err := ledger.New("chain-b", []domain.Identity{admin.Identity()}, ledger.WithJournal(journal))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	last, err := Rebuild(context.Background(), journal, fresh)
	if err != nil {
		t.Fatalf("Rebuild failed: %v", err)
	}
	want, _ := journal.Last(context.Background())
	if last != want {
		t.Errorf("Rebuild stopped at %d, journal ends at %d", last, want)
	}

	if got, exp := fresh.Snapshot(), original.Snapshot(); !reflect.DeepEqual(got, exp) {
		t.Errorf("Rebuilt state differs:\ngot  %+v\nwant %+v", got, exp)
	}
	if !fresh.IsConsumed("D1") || !fresh.IsConsumed("D2") {
		t.Error("Consumed deposits must be restored")
	}
	if !fresh.Paused() {
		t.Error("Paused flag must be restored")
	}
}

func TestRebuild_Deterministic(t *testing.T) {
	admin, relayer, validator := newSigner(t), newSigner(t), newSigner(t)
	journal := memory.NewJournalStore()
	buildHistory(t, journal, admin, relayer, validator)

	var first ledger.Snapshot
	for run := 0; run < 3; run++ {
		l, err := ledger.New("chain-b", []domain.Identity{admin.Identity()})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		if _, err := NewRunner(journal).WithPageSize(4).Run(context.Background(), 0, Into(l)); err != nil {
			t.Fatalf("Run %d: replay failed: %v", run, err)
		}
		if run == 0 {
			first = l.Snapshot()
			continue
		}
		if !reflect.DeepEqual(first, l.Snapshot()) {
			t.Errorf("Run %d: state differs from first run", run)
		}
	}
}

func TestRebuild_WrongChain(t *testing.T) {
	admin, relayer, validator := newSigner(t), newSigner(t), newSigner(t)
	journal := memory.NewJournalStore()
	buildHistory(t, journal, admin, relayer, validator)

	l, err := ledger.New("chain-z", []domain.Identity{admin.Identity()})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := Rebuild(context.Background(), journal, l); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestCheckOrdering(t *testing.T) {
	entries := func(seqs ...uint64) []*domain.JournalEntry {
		out := make([]*domain.JournalEntry, len(seqs))
		for i, s := range seqs {
			out[i] = &domain.JournalEntry{Seq: s}
		}
		return out
	}

	tests := []struct {
		name    string
		after   uint64
		seqs    []uint64
		wantErr bool
	}{
		{"contiguous", 0, []uint64{1, 2, 3}, false},
		{"continues page", 3, []uint64{4, 5}, false},
		{"empty", 7, nil, false},
		{"gap", 0, []uint64{1, 3}, true},
		{"repeat", 0, []uint64{1, 1}, true},
		{"backwards", 0, []uint64{2, 1}, true},
		{"does not continue", 3, []uint64{5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckOrdering(tt.after, entries(tt.seqs...))
			if tt.wantErr && !errors.Is(err, ErrInvalidOrdering) {
				t.Errorf("Expected ErrInvalidOrdering, got %v", err)
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestRunner_StopsOnEngineError(t *testing.T) {
	journal := memory.NewJournalStore()
	ctx := context.Background()
	for _, id := range []string{"e1", "e2", "e3"} {
		if _, err := journal.Append(ctx, &domain.JournalEntry{EntryID: id, Kind: domain.EntryPause}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	boom := errors.New("boom")
	var seen []uint64
	last, err := NewRunner(journal).Run(ctx, 0, EngineFunc(func(_ context.Context, e *domain.JournalEntry) error {
		if e.Seq == 2 {
			return boom
		}
		seen = append(seen, e.Seq)
		return nil
	}))
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if last != 1 || len(seen) != 1 {
		t.Errorf("Expected to stop after seq 1, got last=%d seen=%v", last, seen)
	}
}
