package replay

import (
	"context"
	"fmt"

	"bridge-ledger/internal/storage"
)

// DefaultPageSize is the number of entries loaded per journal read.
const DefaultPageSize = 500

// Runner loads the journal page by page and replays it through an engine.
type Runner struct {
	journal  storage.JournalStore
	pageSize int
}

// NewRunner creates a new replay runner.
func NewRunner(journal storage.JournalStore) *Runner {
	return &Runner{journal: journal, pageSize: DefaultPageSize}
}

// WithPageSize overrides the page size.
func (r *Runner) WithPageSize(n int) *Runner {
	if n > 0 {
		r.pageSize = n
	}
	return r
}

// Run replays every entry with Seq > after through engine and returns the
// last replayed sequence number.
func (r *Runner) Run(ctx context.Context, after uint64, engine Engine) (uint64, error) {
	last := after
	for {
		if err := ctx.Err(); err != nil {
			return last, err
		}

		page, err := r.journal.List(ctx, last, r.pageSize)
		if err != nil {
			return last, fmt.Errorf("list journal after %d: %w", last, err)
		}
		if len(page) == 0 {
			return last, nil
		}
		if err := CheckOrdering(last, page); err != nil {
			return last, err
		}

		for _, e := range page {
			if err := engine.OnEntry(ctx, e); err != nil {
				return last, fmt.Errorf("replay seq %d: %w", e.Seq, err)
			}
			last = e.Seq
		}

		if len(page) < r.pageSize {
			return last, nil
		}
	}
}

// Rebuild restores the whole journal into target.
func Rebuild(ctx context.Context, journal storage.JournalStore, target Restorer) (uint64, error) {
	return NewRunner(journal).Run(ctx, 0, Into(target))
}
