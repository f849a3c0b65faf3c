package ledger

import (
	"context"
	"fmt"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/idhash"
	"bridge-ledger/internal/tokenconfig"
)

// Lock moves amount of caller's asset into custody and opens a PENDING
// transfer to destinationChain. The returned event carries the fresh
// deposit id the destination mint must consume.
func (l *Ledger) Lock(ctx context.Context, caller domain.Identity, asset string, amount uint64, destinationChain string) (*domain.Event, error) {
	ev, err := l.outbound(ctx, domain.EntryLock, caller, asset, amount, destinationChain)
	l.observe("lock", caller, err)
	return ev, err
}

// Burn destroys amount of caller's wrapped asset and opens a PENDING
// transfer whose deposit id releases collateral on destinationChain.
func (l *Ledger) Burn(ctx context.Context, caller domain.Identity, asset string, amount uint64, destinationChain string) (*domain.Event, error) {
	ev, err := l.outbound(ctx, domain.EntryBurn, caller, asset, amount, destinationChain)
	l.observe("burn", caller, err)
	return ev, err
}

func (l *Ledger) outbound(ctx context.Context, kind domain.EntryKind, caller domain.Identity, asset string, amount uint64, destinationChain string) (*domain.Event, error) {
	if err := l.checkPaused(); err != nil {
		return nil, err
	}
	if err := checkCaller(caller); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}
	if destinationChain == "" || destinationChain == l.chainID {
		return nil, fmt.Errorf("%w: destination chain %q", domain.ErrInvalidInput, destinationChain)
	}

	var entry *domain.JournalEntry
	err := l.tokens.WithAsset(asset, func(tx *tokenconfig.AssetTx) error {
		if kind == domain.EntryLock {
			if err := tx.Supported(); err != nil {
				return err
			}
		}
		if bal := l.Balance(asset, caller); bal < amount {
			return fmt.Errorf("%w: %s has %d %s, needs %d", domain.ErrInsufficientBalance, caller, bal, asset, amount)
		}
		if kind == domain.EntryBurn {
			if supply := l.Supply(asset); supply < amount {
				return fmt.Errorf("%w: %s supply %d < %d", domain.ErrInsufficientSupply, asset, supply, amount)
			}
		}
		if kind == domain.EntryLock {
			if err := l.canCredit(asset, domain.CustodyAccount, amount, false); err != nil {
				return err
			}
		}

		e := &domain.JournalEntry{
			Kind:      kind,
			Caller:    caller,
			Timestamp: l.now(),
			Asset:     asset,
			Holder:    caller,
			Amount:    amount,
			Chain:     destinationChain,
			Nonce:     l.nonce.Add(1),
		}
		e.EntryID = l.newID()
		e.DepositID = idhash.ComputeDepositID(l.chainID, e.EntryID, e.Nonce)
		if err := l.commit(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.publish(ctx, entry), nil
}

// Finalize marks a PENDING transfer COMPLETED after its destination credit.
// Finalizing a COMPLETED transfer is a no-op and returns a nil event.
func (l *Ledger) Finalize(ctx context.Context, caller domain.Identity, depositID string) (*domain.Event, error) {
	ev, err := l.closeTransfer(ctx, domain.EntryFinalize, caller, depositID, domain.RoleRelayer, domain.RoleBridge)
	l.observe("finalize", caller, err)
	return ev, err
}

// Refund reverses a PENDING transfer that was never relayed: a lock returns
// custody to the sender, a burn re-mints the sender's wrapped supply.
func (l *Ledger) Refund(ctx context.Context, caller domain.Identity, depositID string) (*domain.Event, error) {
	ev, err := l.closeTransfer(ctx, domain.EntryRefund, caller, depositID, domain.RoleAdmin)
	l.observe("refund", caller, err)
	return ev, err
}

func (l *Ledger) closeTransfer(ctx context.Context, kind domain.EntryKind, caller domain.Identity, depositID string, allowed ...domain.Role) (*domain.Event, error) {
	if err := l.roles.Require(caller, allowed...); err != nil {
		return nil, err
	}

	unlock := l.transferLocks.Lock(depositID)
	defer unlock()

	t, err := l.Transfer(depositID)
	if err != nil {
		return nil, err
	}
	switch {
	case kind == domain.EntryFinalize && t.Status == domain.TransferCompleted:
		return nil, nil
	case !t.Pending():
		return nil, fmt.Errorf("%w: %s is %s", domain.ErrTransferClosed, depositID, t.Status)
	}

	var entry *domain.JournalEntry
	err = l.tokens.WithAsset(t.Asset, func(*tokenconfig.AssetTx) error {
		if kind == domain.EntryRefund && t.Kind == domain.TransferKindLock {
			if custody := l.Custody(t.Asset); custody < t.Amount {
				return fmt.Errorf("%w: %s custody %d < %d", domain.ErrInsufficientCustody, t.Asset, custody, t.Amount)
			}
		}
		if kind == domain.EntryRefund {
			if err := l.canCredit(t.Asset, t.Sender, t.Amount, t.Kind == domain.TransferKindBurn); err != nil {
				return err
			}
		}
		e := &domain.JournalEntry{
			Kind:      kind,
			Caller:    caller,
			Timestamp: l.now(),
			Asset:     t.Asset,
			Holder:    t.Sender,
			Amount:    t.Amount,
			DepositID: depositID,
			Chain:     t.DestinationChain,
		}
		if err := l.commit(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil {
		return nil, err
	}
	return l.publish(ctx, entry), nil
}

func (l *Ledger) checkPaused() error {
	if l.Paused() {
		return domain.ErrPaused
	}
	return nil
}

func checkCaller(caller domain.Identity) error {
	if caller == "" || caller == domain.CustodyAccount || caller == domain.BreakerAccount {
		return fmt.Errorf("%w: caller %q", domain.ErrInvalidIdentity, caller)
	}
	return nil
}
