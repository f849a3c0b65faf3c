package ledger

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/observability"
	"bridge-ledger/internal/storage"
)

// commit appends e to the journal and applies its effects. The caller holds
// every lock covering the keys e touches.
func (l *Ledger) commit(ctx context.Context, e *domain.JournalEntry) error {
	if e.EntryID == "" {
		e.EntryID = l.newID()
	}
	e.ChainID = l.chainID

	start := time.Now()
	seq, err := l.journal.Append(ctx, e)
	observability.RecordJournalAppend(time.Since(start).Seconds(), seq)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) && consumesDeposit(e.Kind) {
			return fmt.Errorf("%w: %s", domain.ErrAlreadyConsumed, e.DepositID)
		}
		return fmt.Errorf("journal append: %w", err)
	}

	if err := l.apply(e); err != nil {
		// Checks ran under the same locks, so this means a bug.
		l.logger.Error().Err(err).Uint64("seq", seq).Str("kind", string(e.Kind)).Msg("journaled entry failed to apply")
		return fmt.Errorf("apply seq %d: %w", seq, err)
	}
	return nil
}

func consumesDeposit(k domain.EntryKind) bool {
	return k == domain.EntryMint || k == domain.EntryRelease
}

// apply mutates balances, supply, transfers and flags for e. Role, token
// configuration and replay guard effects are committed by their owners.
func (l *Ledger) apply(e *domain.JournalEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	custody := domain.CustodyAccount

	switch e.Kind {
	case domain.EntryFund:
		return l.move(e.Asset, "", e.Holder, e.Amount, 0)

	case domain.EntryLock:
		if err := l.move(e.Asset, e.Holder, custody, e.Amount, 0); err != nil {
			return err
		}
		l.openTransfer(e, domain.TransferKindLock)

	case domain.EntryBurn:
		if err := l.move(e.Asset, e.Holder, "", e.Amount, -1); err != nil {
			return err
		}
		l.openTransfer(e, domain.TransferKindBurn)

	case domain.EntryMint:
		return l.move(e.Asset, "", e.Holder, e.Amount, +1)

	case domain.EntryRelease, domain.EntryEmergencyWithdraw:
		return l.move(e.Asset, custody, e.Holder, e.Amount, 0)

	case domain.EntryFinalize, domain.EntryRefund:
		t, ok := l.transfers[e.DepositID]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrTransferNotFound, e.DepositID)
		}
		if !t.Pending() {
			return fmt.Errorf("%w: %s is %s", domain.ErrTransferClosed, e.DepositID, t.Status)
		}
		if e.Kind == domain.EntryRefund {
			var err error
			if t.Kind == domain.TransferKindLock {
				err = l.move(t.Asset, custody, t.Sender, t.Amount, 0)
			} else {
				err = l.move(t.Asset, "", t.Sender, t.Amount, +1)
			}
			if err != nil {
				return err
			}
			t.Status = domain.TransferRefunded
		} else {
			t.Status = domain.TransferCompleted
		}
		t.UpdatedAt = e.Timestamp

	case domain.EntryPause:
		l.paused = true
		observability.UpdatePaused(true)

	case domain.EntryUnpause:
		l.paused = false
		observability.UpdatePaused(false)

	case domain.EntryThreshold:
		if e.Threshold < 1 {
			return fmt.Errorf("%w: threshold %d", domain.ErrInvalidInput, e.Threshold)
		}
		l.threshold = e.Threshold

	case domain.EntryGrant, domain.EntryRevoke, domain.EntryConfigure, domain.EntryDisable:
		// Owned by the registry and the token store.

	default:
		return fmt.Errorf("%w: unknown entry kind %q", domain.ErrInvalidInput, e.Kind)
	}
	return nil
}

// move transfers amount of asset from one holder to another. An empty from
// or to is outside the ledger. supplyDelta adjusts wrapped supply by
// +amount, -amount or not at all. Nothing changes on error.
// Caller holds l.mu.
func (l *Ledger) move(asset string, from, to domain.Identity, amount uint64, supplyDelta int) error {
	holders := l.balances[asset]
	if holders == nil {
		holders = make(map[domain.Identity]uint64)
		l.balances[asset] = holders
	}

	if from != "" && holders[from] < amount {
		if from == domain.CustodyAccount {
			return fmt.Errorf("%w: %s custody %d < %d", domain.ErrInsufficientCustody, asset, holders[from], amount)
		}
		return fmt.Errorf("%w: %s has %d %s, needs %d", domain.ErrInsufficientBalance, from, holders[from], asset, amount)
	}
	if supplyDelta < 0 && l.supply[asset] < amount {
		return fmt.Errorf("%w: %s supply %d < %d", domain.ErrInsufficientSupply, asset, l.supply[asset], amount)
	}
	if err := l.checkHeadroom(asset, to, amount, supplyDelta > 0); err != nil {
		return err
	}

	if from != "" {
		holders[from] -= amount
		if holders[from] == 0 {
			delete(holders, from)
		}
	}
	if to != "" {
		holders[to] += amount
	}
	switch {
	case supplyDelta > 0:
		l.supply[asset] += amount
	case supplyDelta < 0:
		l.supply[asset] -= amount
	}
	return nil
}

// checkHeadroom reports ErrBalanceOverflow when crediting amount to holder,
// or to wrapped supply when mint is set, would wrap. An empty holder is
// outside the ledger. Caller holds l.mu.
func (l *Ledger) checkHeadroom(asset string, holder domain.Identity, amount uint64, mint bool) error {
	if holder != "" {
		if bal := l.balances[asset][holder]; bal > math.MaxUint64-amount {
			return fmt.Errorf("%w: %s holds %d %s, cannot credit %d", domain.ErrBalanceOverflow, holder, bal, asset, amount)
		}
	}
	if mint {
		if supply := l.supply[asset]; supply > math.MaxUint64-amount {
			return fmt.Errorf("%w: %s supply %d, cannot mint %d", domain.ErrBalanceOverflow, asset, supply, amount)
		}
	}
	return nil
}

// canCredit runs checkHeadroom under the read lock, for checks made before
// an entry is journaled.
func (l *Ledger) canCredit(asset string, holder domain.Identity, amount uint64, mint bool) error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.checkHeadroom(asset, holder, amount, mint)
}

// openTransfer records the saga of a lock or burn. Caller holds l.mu.
func (l *Ledger) openTransfer(e *domain.JournalEntry, kind domain.TransferKind) {
	l.transfers[e.DepositID] = &domain.Transfer{
		DepositID:        e.DepositID,
		Kind:             kind,
		Asset:            e.Asset,
		Amount:           e.Amount,
		Sender:           e.Holder,
		DestinationChain: e.Chain,
		Nonce:            e.Nonce,
		Status:           domain.TransferPending,
		CreatedAt:        e.Timestamp,
		UpdatedAt:        e.Timestamp,
	}
}

// Restore applies a journaled entry without authorization or policy checks.
// Entries must be restored in sequence order into a ledger created with the
// same chain id and initial admins.
func (l *Ledger) Restore(e *domain.JournalEntry) error {
	if e == nil {
		return fmt.Errorf("%w: nil entry", domain.ErrInvalidInput)
	}
	if e.ChainID != l.chainID {
		return fmt.Errorf("%w: entry %d belongs to chain %q, ledger is %q", domain.ErrInvalidInput, e.Seq, e.ChainID, l.chainID)
	}

	switch e.Kind {
	case domain.EntryConfigure, domain.EntryDisable:
		if e.Config == nil {
			return fmt.Errorf("%w: %s entry %d has no config", domain.ErrInvalidInput, e.Kind, e.Seq)
		}
	case domain.EntryMint, domain.EntryRelease:
		if l.guard.IsConsumed(e.DepositID) {
			return fmt.Errorf("entry %d: %w: %s", e.Seq, domain.ErrAlreadyConsumed, e.DepositID)
		}
	}

	if err := l.apply(e); err != nil {
		return fmt.Errorf("entry %d: %w", e.Seq, err)
	}

	switch e.Kind {
	case domain.EntryGrant:
		l.roles.Restore(e.Role, e.Holder, true)
	case domain.EntryRevoke:
		l.roles.Restore(e.Role, e.Holder, false)
	case domain.EntryConfigure, domain.EntryDisable:
		l.tokens.Restore(*e.Config)
	case domain.EntryMint, domain.EntryRelease:
		if e.Config != nil {
			l.tokens.Restore(*e.Config)
		}
		l.guard.Restore(depositRecord(e))
	case domain.EntryLock, domain.EntryBurn:
		if e.Nonce > l.nonce.Load() {
			l.nonce.Store(e.Nonce)
		}
	}
	return nil
}

func depositRecord(e *domain.JournalEntry) domain.DepositRecord {
	kind := domain.DepositKindMint
	if e.Kind == domain.EntryRelease {
		kind = domain.DepositKindRelease
	}
	return domain.DepositRecord{
		DepositID:  e.DepositID,
		Consumed:   true,
		Kind:       kind,
		Asset:      e.Asset,
		Amount:     e.Amount,
		Recipient:  e.Holder,
		ConsumedAt: e.Timestamp,
	}
}

// EventFromEntry derives the published event of a journal entry.
func EventFromEntry(e *domain.JournalEntry) *domain.Event {
	ev := &domain.Event{
		Seq:       e.Seq,
		ChainID:   e.ChainID,
		Timestamp: e.Timestamp,
	}

	switch e.Kind {
	case domain.EntryLock:
		ev.Type = domain.EventTypeLock
		ev.Lock = &domain.LockEvent{
			DepositID:        e.DepositID,
			Asset:            e.Asset,
			Amount:           e.Amount,
			Sender:           e.Holder,
			DestinationChain: e.Chain,
		}
	case domain.EntryBurn:
		ev.Type = domain.EventTypeBurn
		ev.Burn = &domain.BurnEvent{
			DepositID:        e.DepositID,
			Asset:            e.Asset,
			Amount:           e.Amount,
			Sender:           e.Holder,
			DestinationChain: e.Chain,
		}
	case domain.EntryMint, domain.EntryRelease:
		credit := &domain.CreditEvent{
			DepositID:   e.DepositID,
			Asset:       e.Asset,
			Amount:      e.Amount,
			Recipient:   e.Holder,
			SourceChain: e.Chain,
			Relayer:     e.Caller,
		}
		if e.Kind == domain.EntryMint {
			ev.Type, ev.Mint = domain.EventTypeMint, credit
		} else {
			ev.Type, ev.Release = domain.EventTypeRelease, credit
		}
	default:
		ev.Type = domain.EventTypeAudit
		ev.Audit = &domain.AuditEvent{
			Action:    strings.ToLower(string(e.Kind)),
			Caller:    e.Caller,
			Asset:     e.Asset,
			Holder:    e.Holder,
			Role:      e.Role,
			Amount:    e.Amount,
			DepositID: e.DepositID,
			Detail:    e.Reason,
		}
	}
	return ev
}

// publish logs a committed entry and hands its event to the sink.
func (l *Ledger) publish(ctx context.Context, e *domain.JournalEntry) *domain.Event {
	ev := EventFromEntry(e)

	l.logger.Info().
		Uint64("seq", e.Seq).
		Str("kind", string(e.Kind)).
		Str("caller", string(e.Caller)).
		Str("asset", e.Asset).
		Uint64("amount", e.Amount).
		Str("deposit_id", e.DepositID).
		Msg("committed")

	switch e.Kind {
	case domain.EntryLock, domain.EntryBurn, domain.EntryMint, domain.EntryRelease:
		observability.RecordTransfer(strings.ToLower(string(e.Kind)), e.Asset, e.Amount)
	}

	if err := l.sink.Publish(ctx, ev); err != nil {
		l.logger.Warn().Err(err).Uint64("seq", e.Seq).Msg("event not delivered; available from the journal")
	}
	return ev
}

// observe records the outcome of op for metrics and logs rejections.
func (l *Ledger) observe(op string, caller domain.Identity, err error) {
	kind := domain.KindOf(err)
	observability.RecordOperation(op, string(kind))
	if err == nil {
		return
	}

	ev := l.logger.Debug()
	switch kind {
	case domain.KindAuthorization:
		ev = l.logger.Warn()
	case domain.KindIntegrity, domain.KindInternal:
		ev = l.logger.Error()
	}
	ev.Err(err).
		Str("op", op).
		Str("caller", string(caller)).
		Str("kind", string(kind)).
		Msg("operation rejected")
}
