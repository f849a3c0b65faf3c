package replay

import (
	"fmt"

	"bridge-ledger/internal/domain"
)

// CheckOrdering verifies that entries continue the sequence after `after`
// with no gaps or repeats.
func CheckOrdering(after uint64, entries []*domain.JournalEntry) error {
	want := after + 1
	for _, e := range entries {
		if e.Seq != want {
			return fmt.Errorf("%w: expected seq %d, got %d", ErrInvalidOrdering, want, e.Seq)
		}
		want++
	}
	return nil
}
