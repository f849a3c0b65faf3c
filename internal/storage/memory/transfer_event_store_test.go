package memory

import (
	"context"
	"errors"
	"testing"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

const day0 = int64(1704067200) // 2024-01-01T00:00:00Z

func TestTransferEventStore_InsertBulk(t *testing.T) {
	store := NewTransferEventStore()
	ctx := context.Background()

	events := []*storage.TransferEvent{
		{ChainID: "chain-a", Seq: 1, Type: domain.EventTypeLock, DepositID: "D1", Asset: "USDT", Amount: 100, Timestamp: day0 + 10},
		{ChainID: "chain-b", Seq: 1, Type: domain.EventTypeMint, DepositID: "D1", Asset: "USDT", Amount: 100, Timestamp: day0 + 20},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.GetByDepositID(ctx, "D1")
	if err != nil {
		t.Fatalf("GetByDepositID failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(got))
	}
	if got[0].Type != domain.EventTypeLock || got[1].Type != domain.EventTypeMint {
		t.Errorf("Events out of order: %s, %s", got[0].Type, got[1].Type)
	}
}

func TestTransferEventStore_DuplicateFailsWholeBatch(t *testing.T) {
	store := NewTransferEventStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*storage.TransferEvent{
		{ChainID: "chain-a", Seq: 1, DepositID: "D1"},
	}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*storage.TransferEvent{
		{ChainID: "chain-a", Seq: 2, DepositID: "D2"},
		{ChainID: "chain-a", Seq: 1, DepositID: "D1"},
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	got, _ := store.GetByDepositID(ctx, "D2")
	if len(got) != 0 {
		t.Error("Batch must not partially apply")
	}
}

func TestTransferEventStore_DailyVolume(t *testing.T) {
	store := NewTransferEventStore()
	ctx := context.Background()

	events := []*storage.TransferEvent{
		{ChainID: "chain-a", Seq: 1, Type: domain.EventTypeLock, DepositID: "D1", Asset: "USDT", Amount: 100, Timestamp: day0 + 1},
		{ChainID: "chain-a", Seq: 2, Type: domain.EventTypeLock, DepositID: "D2", Asset: "USDT", Amount: 50, Timestamp: day0 + 3600},
		{ChainID: "chain-a", Seq: 3, Type: domain.EventTypeRelease, DepositID: "D3", Asset: "USDT", Amount: 30, Timestamp: day0 + 7200},
		{ChainID: "chain-a", Seq: 4, Type: domain.EventTypeLock, DepositID: "D4", Asset: "USDT", Amount: 70, Timestamp: day0 + 86400 + 5},
		{ChainID: "chain-a", Seq: 5, Type: domain.EventTypeLock, DepositID: "D5", Asset: "USDC", Amount: 9, Timestamp: day0 + 5},
		{ChainID: "chain-b", Seq: 1, Type: domain.EventTypeMint, DepositID: "D1", Asset: "USDT", Amount: 100, Timestamp: day0 + 5},
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	got, err := store.DailyVolume(ctx, "chain-a", "USDT", day0, day0+2*86400)
	if err != nil {
		t.Fatalf("DailyVolume failed: %v", err)
	}

	want := []storage.VolumeBucket{
		{Day: day0, Type: domain.EventTypeLock, Count: 2, Amount: 150},
		{Day: day0, Type: domain.EventTypeRelease, Count: 1, Amount: 30},
		{Day: day0 + 86400, Type: domain.EventTypeLock, Count: 1, Amount: 70},
	}
	if len(got) != len(want) {
		t.Fatalf("Expected %d buckets, got %d: %+v", len(want), len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Bucket %d: got %+v, want %+v", i, got[i], want[i])
		}
	}
}
