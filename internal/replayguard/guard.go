// Package replayguard records consumed deposit identifiers so each deposit
// credits the destination ledger at most once.
package replayguard

import (
	"fmt"
	"sync"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/keylock"
)

// Guard holds write-once deposit tombstones. Records are never deleted.
type Guard struct {
	mu      sync.RWMutex
	records map[string]domain.DepositRecord // keyed by deposit id
	locks   *keylock.Set
}

// New creates an empty guard.
func New() *Guard {
	return &Guard{
		records: make(map[string]domain.DepositRecord),
		locks:   keylock.New(),
	}
}

// IsConsumed reports whether depositID has been consumed.
func (g *Guard) IsConsumed(depositID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.records[depositID].Consumed
}

// Get returns the tombstone for depositID.
func (g *Guard) Get(depositID string) (domain.DepositRecord, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	rec, ok := g.records[depositID]
	return rec, ok
}

// Count returns the number of consumed deposits.
func (g *Guard) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.records)
}

// Consume marks depositID consumed at the given time.
func (g *Guard) Consume(depositID string, at int64) error {
	return g.WithDeposit(depositID, func(tx *DepositTx) error {
		return tx.Consume(domain.DepositRecord{ConsumedAt: at})
	})
}

// WithDeposit runs fn while holding depositID's lock. A tombstone staged on
// tx is committed only if fn returns nil.
func (g *Guard) WithDeposit(depositID string, fn func(tx *DepositTx) error) error {
	if depositID == "" {
		return fmt.Errorf("%w: empty deposit id", domain.ErrInvalidInput)
	}

	unlock := g.locks.Lock(depositID)
	defer unlock()

	tx := &DepositTx{depositID: depositID, consumed: g.IsConsumed(depositID)}
	if err := fn(tx); err != nil {
		return err
	}

	if tx.staged != nil {
		g.Restore(*tx.staged)
	}
	return nil
}

// Restore writes a tombstone without checks. Used for journal replay.
func (g *Guard) Restore(rec domain.DepositRecord) {
	rec.Consumed = true

	g.mu.Lock()
	defer g.mu.Unlock()
	g.records[rec.DepositID] = rec
}

// DepositTx stages the consumption of one deposit id.
type DepositTx struct {
	depositID string
	consumed  bool
	staged    *domain.DepositRecord
}

// DepositID returns the deposit the transaction is bound to.
func (tx *DepositTx) DepositID() string {
	return tx.depositID
}

// Check returns ErrAlreadyConsumed if the deposit is consumed or staged.
func (tx *DepositTx) Check() error {
	if tx.consumed || tx.staged != nil {
		return fmt.Errorf("%w: %s", domain.ErrAlreadyConsumed, tx.depositID)
	}
	return nil
}

// Consume stages the tombstone. DepositID and Consumed are filled in.
func (tx *DepositTx) Consume(rec domain.DepositRecord) error {
	if err := tx.Check(); err != nil {
		return err
	}
	rec.DepositID = tx.depositID
	rec.Consumed = true
	tx.staged = &rec
	return nil
}
