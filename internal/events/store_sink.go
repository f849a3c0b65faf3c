package events

import (
	"context"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/storage"
)

// StoreSink writes transfer events to an analytics store. Audit events are
// skipped.
type StoreSink struct {
	store storage.TransferEventStore
}

// NewStoreSink creates a sink over store.
func NewStoreSink(store storage.TransferEventStore) *StoreSink {
	return &StoreSink{store: store}
}

// Name implements Sink.
func (s *StoreSink) Name() string {
	return "analytics"
}

// Publish implements Sink.
func (s *StoreSink) Publish(ctx context.Context, e *domain.Event) error {
	te, ok := storage.TransferEventFromEvent(e)
	if !ok {
		return nil
	}
	return s.store.InsertBulk(ctx, []*storage.TransferEvent{te})
}

var _ Sink = (*StoreSink)(nil)
