package postgres

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

func entry(id string, kind domain.EntryKind, depositID string) *domain.JournalEntry {
	return &domain.JournalEntry{
		EntryID:   id,
		ChainID:   "chain-b",
		Kind:      kind,
		Caller:    "relayer",
		Timestamp: 1_700_000_000,
		Asset:     "USDT",
		Holder:    "alice",
		Amount:    40000,
		DepositID: depositID,
		Chain:     "chain-a",
		Config: &domain.TokenConfig{
			Asset:       "USDT",
			IsSupported: true,
			MinAmount:   1,
			MaxAmount:   100000,
			DailyLimit:  50000,
			DailyUsed:   40000,
		},
	}
}

func TestJournalStore_AppendAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	last, err := store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), last)

	e1 := entry("e1", domain.EntryConfigure, "")
	seq, err := store.Append(ctx, e1)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), seq)
	assert.Equal(t, uint64(1), e1.Seq)

	seq, err = store.Append(ctx, entry("e2", domain.EntryMint, "D1"))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)

	got, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(1), got[0].Seq)
	assert.Equal(t, domain.EntryConfigure, got[0].Kind)
	assert.Equal(t, "D1", got[1].DepositID)
	require.NotNil(t, got[1].Config)
	assert.Equal(t, uint64(40000), got[1].Config.DailyUsed)

	got, err = store.List(ctx, 1, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, uint64(2), got[0].Seq)

	last, err = store.Last(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), last)
}

func TestJournalStore_RejectsSecondConsumption(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	_, err := store.Append(ctx, entry("m1", domain.EntryMint, "D1"))
	require.NoError(t, err)

	_, err = store.Append(ctx, entry("m2", domain.EntryRelease, "D1"))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	_, err = store.Append(ctx, entry("m1", domain.EntryFund, ""))
	assert.True(t, errors.Is(err, storage.ErrDuplicateKey))

	consumed, err := store.IsConsumed(ctx, "chain-b", "D1")
	require.NoError(t, err)
	assert.True(t, consumed)

	// A rejected append leaves no gap in the sequence.
	seq, err := store.Append(ctx, entry("f1", domain.EntryFund, ""))
	require.NoError(t, err)
	assert.Equal(t, uint64(2), seq)
}

func TestJournalStore_ConcurrentAppendsAreDense(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewJournalStore(pool)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := store.Append(ctx, entry(fmt.Sprintf("c%d", i), domain.EntryMint, fmt.Sprintf("D%d", i)))
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	got, err := store.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, got, n)
	for i, e := range got {
		assert.Equal(t, uint64(i+1), e.Seq)
	}
}

func TestJournalStore_InvalidInput(t *testing.T) {
	store := NewJournalStore(nil)

	_, err := store.Append(context.Background(), &domain.JournalEntry{Kind: domain.EntryFund})
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}
