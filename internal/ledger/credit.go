package ledger

import (
	"context"
	"fmt"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/observability"
	"bridge-ledger/internal/proof"
	"bridge-ledger/internal/replayguard"
	"bridge-ledger/internal/tokenconfig"
)

// CreditRequest is a relayed mint or release. The source chain is taken
// from the proof.
type CreditRequest struct {
	Asset     string
	Recipient domain.Identity
	Amount    uint64
	DepositID string
	Proof     *proof.Proof
}

// Mint credits wrapped supply to the recipient of a deposit locked on
// another chain. Caller must hold MINTER or RELAYER.
func (l *Ledger) Mint(ctx context.Context, caller domain.Identity, req CreditRequest) (*domain.Event, error) {
	ev, err := l.credit(ctx, domain.EntryMint, caller, req, domain.RoleMinter, domain.RoleRelayer)
	l.afterCredit(ctx, "mint", caller, err)
	return ev, err
}

// Release pays custodied collateral to the recipient of a burn on another
// chain. Caller must hold BURNER or RELAYER.
func (l *Ledger) Release(ctx context.Context, caller domain.Identity, req CreditRequest) (*domain.Event, error) {
	ev, err := l.credit(ctx, domain.EntryRelease, caller, req, domain.RoleBurner, domain.RoleRelayer)
	l.afterCredit(ctx, "release", caller, err)
	return ev, err
}

// credit runs one atomic mint or release. Checks run in a fixed order:
// paused, role, replay guard, token policy, proof, custody. The deposit
// lock is taken before the asset lock.
func (l *Ledger) credit(ctx context.Context, kind domain.EntryKind, caller domain.Identity, req CreditRequest, allowed ...domain.Role) (*domain.Event, error) {
	if err := l.checkPaused(); err != nil {
		return nil, err
	}
	if err := l.roles.Require(caller, allowed...); err != nil {
		return nil, err
	}
	depositKind := domain.DepositKindMint
	if kind == domain.EntryRelease {
		depositKind = domain.DepositKindRelease
	}

	var entry *domain.JournalEntry
	err := l.guard.WithDeposit(req.DepositID, func(dtx *replayguard.DepositTx) error {
		if err := dtx.Check(); err != nil {
			return err
		}
		if err := checkCaller(req.Recipient); err != nil {
			return err
		}
		if req.Amount == 0 {
			return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
		}

		return l.tokens.WithAsset(req.Asset, func(atx *tokenconfig.AssetTx) error {
			now := l.now()
			cfg, err := atx.Reserve(req.Amount, now)
			if err != nil {
				return err
			}

			if req.Proof == nil {
				return fmt.Errorf("%w: missing proof", domain.ErrInvalidProof)
			}
			claim := proof.Claim{
				Kind:             depositKind,
				SourceChain:      req.Proof.SourceChain,
				DestinationChain: l.chainID,
				Asset:            req.Asset,
				Amount:           req.Amount,
				Recipient:        req.Recipient,
				DepositID:        req.DepositID,
			}
			if claim.SourceChain == l.chainID {
				return fmt.Errorf("%w: source chain equals destination %q", domain.ErrInvalidProof, l.chainID)
			}
			if err := proof.Verify(claim, req.Proof, l.roles, l.ValidatorThreshold()); err != nil {
				return err
			}

			if kind == domain.EntryRelease {
				if custody := l.Custody(req.Asset); custody < req.Amount {
					return fmt.Errorf("%w: %s custody %d < %d", domain.ErrInsufficientCustody, req.Asset, custody, req.Amount)
				}
			}
			if err := l.canCredit(req.Asset, req.Recipient, req.Amount, kind == domain.EntryMint); err != nil {
				return err
			}

			e := &domain.JournalEntry{
				Kind:      kind,
				Caller:    caller,
				Timestamp: now,
				Asset:     req.Asset,
				Holder:    req.Recipient,
				Amount:    req.Amount,
				DepositID: req.DepositID,
				Chain:     claim.SourceChain,
				Config:    &cfg,
			}
			if err := l.commit(ctx, e); err != nil {
				return err
			}
			entry = e
			return dtx.Consume(depositRecord(e))
		})
	})
	if err != nil {
		return nil, err
	}

	if cfg, ok := l.tokens.Get(req.Asset); ok {
		observability.UpdateDailyUsed(cfg.Asset, cfg.DailyUsed)
	}
	return l.publish(ctx, entry), nil
}

// afterCredit records the outcome and feeds integrity failures to the breaker.
func (l *Ledger) afterCredit(ctx context.Context, op string, caller domain.Identity, err error) {
	l.observe(op, caller, err)
	if err == nil || !domain.IsIntegrity(err) {
		return
	}
	if n, tripped := l.breaker.record(caller, l.clock()); tripped {
		l.trip(ctx, caller, n)
	}
}
