package memory

import (
	"context"
	"sort"
	"sync"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

// JournalStore is an in-memory implementation of storage.JournalStore.
type JournalStore struct {
	mu       sync.RWMutex
	entries  []*domain.JournalEntry
	ids      map[string]struct{} // entry ids
	deposits map[string]struct{} // chain_id|deposit_id of consumed deposits
}

// NewJournalStore creates a new in-memory journal store.
func NewJournalStore() *JournalStore {
	return &JournalStore{
		ids:      make(map[string]struct{}),
		deposits: make(map[string]struct{}),
	}
}

func depositKey(chainID, depositID string) string {
	return chainID + "|" + depositID
}

// Append persists e and assigns its sequence number.
func (s *JournalStore) Append(_ context.Context, e *domain.JournalEntry) (uint64, error) {
	if e == nil || e.EntryID == "" || e.Kind == "" {
		return 0, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.ids[e.EntryID]; exists {
		return 0, storage.ErrDuplicateKey
	}

	consumes := e.Kind == domain.EntryMint || e.Kind == domain.EntryRelease
	key := depositKey(e.ChainID, e.DepositID)
	if consumes {
		if _, exists := s.deposits[key]; exists {
			return 0, storage.ErrDuplicateKey
		}
	}

	e.Seq = uint64(len(s.entries)) + 1
	copy := *e
	s.entries = append(s.entries, &copy)
	s.ids[e.EntryID] = struct{}{}
	if consumes {
		s.deposits[key] = struct{}{}
	}
	return e.Seq, nil
}

// List returns up to limit entries with Seq > after, ordered by Seq ASC.
func (s *JournalStore) List(_ context.Context, after uint64, limit int) ([]*domain.JournalEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := sort.Search(len(s.entries), func(i int) bool { return s.entries[i].Seq > after })

	var result []*domain.JournalEntry
	for _, e := range s.entries[start:] {
		if limit > 0 && len(result) >= limit {
			break
		}
		copy := *e
		result = append(result, &copy)
	}
	return result, nil
}

// Last returns the highest assigned sequence number.
func (s *JournalStore) Last(_ context.Context) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return uint64(len(s.entries)), nil
}

var _ storage.JournalStore = (*JournalStore)(nil)
