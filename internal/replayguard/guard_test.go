package replayguard

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"bridge-ledger/internal/domain"
)

func TestGuard_Consume(t *testing.T) {
	g := New()

	if g.IsConsumed("D1") {
		t.Fatal("D1 should not be consumed yet")
	}
	if err := g.Consume("D1", 100); err != nil {
		t.Fatalf("Consume failed: %v", err)
	}
	if !g.IsConsumed("D1") {
		t.Error("D1 should be consumed")
	}

	err := g.Consume("D1", 200)
	if !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Fatalf("Expected ErrAlreadyConsumed, got %v", err)
	}

	rec, ok := g.Get("D1")
	if !ok {
		t.Fatal("Get returned no record")
	}
	if rec.ConsumedAt != 100 {
		t.Errorf("ConsumedAt = %d, want 100 (tombstone must not be overwritten)", rec.ConsumedAt)
	}
}

func TestGuard_EmptyDepositID(t *testing.T) {
	g := New()
	if err := g.Consume("", 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput, got %v", err)
	}
}

func TestGuard_WithDepositRollsBack(t *testing.T) {
	g := New()

	boom := errors.New("credit failed")
	err := g.WithDeposit("D1", func(tx *DepositTx) error {
		if err := tx.Consume(domain.DepositRecord{Amount: 10}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Expected boom, got %v", err)
	}
	if g.IsConsumed("D1") {
		t.Error("D1 must not be consumed after a failed transaction")
	}

	// The id is still usable.
	if err := g.Consume("D1", 1); err != nil {
		t.Errorf("Consume after rollback failed: %v", err)
	}
}

func TestGuard_StagedTwice(t *testing.T) {
	g := New()
	err := g.WithDeposit("D1", func(tx *DepositTx) error {
		if err := tx.Consume(domain.DepositRecord{}); err != nil {
			return err
		}
		return tx.Consume(domain.DepositRecord{})
	})
	if !errors.Is(err, domain.ErrAlreadyConsumed) {
		t.Errorf("Expected ErrAlreadyConsumed, got %v", err)
	}
}

func TestGuard_ConcurrentConsume(t *testing.T) {
	g := New()

	var ok, rejected atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			err := g.Consume("D1", int64(i))
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, domain.ErrAlreadyConsumed):
				rejected.Add(1)
			default:
				t.Errorf("Unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	if ok.Load() != 1 {
		t.Errorf("Expected exactly one success, got %d", ok.Load())
	}
	if rejected.Load() != 99 {
		t.Errorf("Expected 99 rejections, got %d", rejected.Load())
	}
}

func TestGuard_DistinctDepositsInParallel(t *testing.T) {
	g := New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := g.Consume(fmt.Sprintf("D%d", i), 1); err != nil {
				t.Errorf("Consume D%d failed: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	if g.Count() != 50 {
		t.Errorf("Count = %d, want 50", g.Count())
	}
}
