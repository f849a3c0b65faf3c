package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bridge-ledger/internal/storage"
)

// TransferEventStore is an in-memory implementation of storage.TransferEventStore.
type TransferEventStore struct {
	mu   sync.RWMutex
	data map[string]*storage.TransferEvent // keyed by chain_id|seq
}

// NewTransferEventStore creates a new in-memory transfer event store.
func NewTransferEventStore() *TransferEventStore {
	return &TransferEventStore{
		data: make(map[string]*storage.TransferEvent),
	}
}

func eventKey(chainID string, seq uint64) string {
	return fmt.Sprintf("%s|%d", chainID, seq)
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *TransferEventStore) InsertBulk(_ context.Context, events []*storage.TransferEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batchKeys := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.ChainID == "" || e.DepositID == "" {
			return storage.ErrInvalidInput
		}
		key := eventKey(e.ChainID, e.Seq)
		if _, exists := s.data[key]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batchKeys[key]; exists {
			return storage.ErrDuplicateKey
		}
		batchKeys[key] = struct{}{}
	}

	for _, e := range events {
		copy := *e
		s.data[eventKey(e.ChainID, e.Seq)] = &copy
	}
	return nil
}

// GetByDepositID retrieves all events of a deposit, ordered by timestamp ASC.
func (s *TransferEventStore) GetByDepositID(_ context.Context, depositID string) ([]*storage.TransferEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.TransferEvent
	for _, e := range s.data {
		if e.DepositID == depositID {
			copy := *e
			result = append(result, &copy)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].Timestamp != result[j].Timestamp {
			return result[i].Timestamp < result[j].Timestamp
		}
		return result[i].ChainID < result[j].ChainID
	})
	return result, nil
}

// DailyVolume aggregates asset volume per day and type within [start, end] (inclusive).
func (s *TransferEventStore) DailyVolume(_ context.Context, chainID, asset string, start, end int64) ([]storage.VolumeBucket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	type bucketKey struct {
		day int64
		typ string
	}
	buckets := make(map[bucketKey]*storage.VolumeBucket)
	for _, e := range s.data {
		if e.ChainID != chainID || e.Asset != asset || e.Timestamp < start || e.Timestamp > end {
			continue
		}
		k := bucketKey{day: storage.DayStart(e.Timestamp), typ: string(e.Type)}
		b, ok := buckets[k]
		if !ok {
			b = &storage.VolumeBucket{Day: k.day, Type: e.Type}
			buckets[k] = b
		}
		b.Count++
		b.Amount += e.Amount
	}

	result := make([]storage.VolumeBucket, 0, len(buckets))
	for _, b := range buckets {
		result = append(result, *b)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Day != result[j].Day {
			return result[i].Day < result[j].Day
		}
		return result[i].Type < result[j].Type
	})
	return result, nil
}

var _ storage.TransferEventStore = (*TransferEventStore)(nil)
