package replay

import (
	"context"

	"bridge-ledger/internal/domain"
)

// Engine processes journal entries in sequence order.
type Engine interface {
	// OnEntry is called for each entry. Entries are guaranteed to be ordered
	// by Seq with no gaps.
	OnEntry(ctx context.Context, e *domain.JournalEntry) error
}

// EngineFunc adapts a function to Engine.
type EngineFunc func(ctx context.Context, e *domain.JournalEntry) error

// OnEntry implements Engine.
func (f EngineFunc) OnEntry(ctx context.Context, e *domain.JournalEntry) error {
	return f(ctx, e)
}

// Restorer applies journaled effects without re-authorizing them.
type Restorer interface {
	Restore(e *domain.JournalEntry) error
}

// Into returns an engine that restores every entry into r.
func Into(r Restorer) Engine {
	return EngineFunc(func(_ context.Context, e *domain.JournalEntry) error {
		return r.Restore(e)
	})
}
