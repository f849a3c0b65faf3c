package ledger

import (
	"context"
	"fmt"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/roles"
	"bridge-ledger/internal/tokenconfig"
)

// Fund credits native collateral entering the ledger from outside the
// bridge. Caller must hold ADMIN.
func (l *Ledger) Fund(ctx context.Context, caller domain.Identity, asset string, holder domain.Identity, amount uint64) (*domain.Event, error) {
	ev, err := l.fund(ctx, caller, asset, holder, amount)
	l.observe("fund", caller, err)
	return ev, err
}

func (l *Ledger) fund(ctx context.Context, caller domain.Identity, asset string, holder domain.Identity, amount uint64) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := checkCaller(holder); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	return l.withAssetEntry(ctx, asset, func(*tokenconfig.AssetTx) (*domain.JournalEntry, error) {
		if err := l.canCredit(asset, holder, amount, false); err != nil {
			return nil, err
		}
		return &domain.JournalEntry{
			Kind:   domain.EntryFund,
			Caller: caller,
			Asset:  asset,
			Holder: holder,
			Amount: amount,
		}, nil
	})
}

// EmergencyWithdraw moves custodied collateral to recipient. Caller must
// hold ADMIN. It works while paused.
func (l *Ledger) EmergencyWithdraw(ctx context.Context, caller domain.Identity, asset string, recipient domain.Identity, amount uint64) (*domain.Event, error) {
	ev, err := l.emergencyWithdraw(ctx, caller, asset, recipient, amount)
	l.observe("emergency_withdraw", caller, err)
	return ev, err
}

func (l *Ledger) emergencyWithdraw(ctx context.Context, caller domain.Identity, asset string, recipient domain.Identity, amount uint64) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if err := checkCaller(recipient); err != nil {
		return nil, err
	}
	if amount == 0 {
		return nil, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidAmount)
	}

	return l.withAssetEntry(ctx, asset, func(*tokenconfig.AssetTx) (*domain.JournalEntry, error) {
		if custody := l.Custody(asset); custody < amount {
			return nil, fmt.Errorf("%w: %s custody %d < %d", domain.ErrInsufficientCustody, asset, custody, amount)
		}
		if err := l.canCredit(asset, recipient, amount, false); err != nil {
			return nil, err
		}
		return &domain.JournalEntry{
			Kind:   domain.EntryEmergencyWithdraw,
			Caller: caller,
			Asset:  asset,
			Holder: recipient,
			Amount: amount,
		}, nil
	})
}

// Configure onboards or reconfigures asset. Caller must hold OPERATOR or ADMIN.
func (l *Ledger) Configure(ctx context.Context, caller domain.Identity, asset string, minAmount, maxAmount, dailyLimit uint64) (*domain.Event, error) {
	ev, err := l.configure(ctx, caller, asset, minAmount, maxAmount, dailyLimit)
	l.observe("configure", caller, err)
	return ev, err
}

func (l *Ledger) configure(ctx context.Context, caller domain.Identity, asset string, minAmount, maxAmount, dailyLimit uint64) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleOperator, domain.RoleAdmin); err != nil {
		return nil, err
	}

	return l.withAssetEntry(ctx, asset, func(tx *tokenconfig.AssetTx) (*domain.JournalEntry, error) {
		cfg, err := tx.Configure(minAmount, maxAmount, dailyLimit, l.now())
		if err != nil {
			return nil, err
		}
		return &domain.JournalEntry{
			Kind:      domain.EntryConfigure,
			Caller:    caller,
			Timestamp: cfg.LastResetTime,
			Asset:     asset,
			Reason:    fmt.Sprintf("min=%d max=%d daily_limit=%d", minAmount, maxAmount, dailyLimit),
			Config:    &cfg,
		}, nil
	})
}

// Disable stops transfers of asset without erasing its limits. Caller must
// hold OPERATOR or ADMIN.
func (l *Ledger) Disable(ctx context.Context, caller domain.Identity, asset string) (*domain.Event, error) {
	ev, err := l.disable(ctx, caller, asset)
	l.observe("disable", caller, err)
	return ev, err
}

func (l *Ledger) disable(ctx context.Context, caller domain.Identity, asset string) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleOperator, domain.RoleAdmin); err != nil {
		return nil, err
	}

	return l.withAssetEntry(ctx, asset, func(tx *tokenconfig.AssetTx) (*domain.JournalEntry, error) {
		cfg, err := tx.Disable()
		if err != nil {
			return nil, err
		}
		return &domain.JournalEntry{
			Kind:   domain.EntryDisable,
			Caller: caller,
			Asset:  asset,
			Config: &cfg,
		}, nil
	})
}

// withAssetEntry builds an entry under asset's lock, commits it, and
// publishes its event. A nil entry from build commits nothing.
func (l *Ledger) withAssetEntry(ctx context.Context, asset string, build func(tx *tokenconfig.AssetTx) (*domain.JournalEntry, error)) (*domain.Event, error) {
	var entry *domain.JournalEntry
	err := l.tokens.WithAsset(asset, func(tx *tokenconfig.AssetTx) error {
		e, err := build(tx)
		if err != nil || e == nil {
			return err
		}
		if e.Timestamp == 0 {
			e.Timestamp = l.now()
		}
		if err := l.commit(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil || entry == nil {
		return nil, err
	}
	return l.publish(ctx, entry), nil
}

// Grant gives role to holder. Caller must hold ADMIN. Granting a held role
// is a no-op and returns a nil event.
func (l *Ledger) Grant(ctx context.Context, caller domain.Identity, role domain.Role, holder domain.Identity) (*domain.Event, error) {
	ev, err := l.changeRole(ctx, caller, roles.Change{Grant: true, Role: role, Holder: holder})
	l.observe("grant", caller, err)
	return ev, err
}

// Revoke removes role from holder. Caller must hold ADMIN.
func (l *Ledger) Revoke(ctx context.Context, caller domain.Identity, role domain.Role, holder domain.Identity) (*domain.Event, error) {
	ev, err := l.changeRole(ctx, caller, roles.Change{Grant: false, Role: role, Holder: holder})
	l.observe("revoke", caller, err)
	return ev, err
}

func (l *Ledger) changeRole(ctx context.Context, caller domain.Identity, c roles.Change) (*domain.Event, error) {
	kind := domain.EntryRevoke
	if c.Grant {
		kind = domain.EntryGrant
	}

	var entry *domain.JournalEntry
	_, err := l.roles.Apply(caller, c, func() error {
		e := &domain.JournalEntry{
			Kind:      kind,
			Caller:    caller,
			Timestamp: l.now(),
			Role:      c.Role,
			Holder:    c.Holder,
		}
		if err := l.commit(ctx, e); err != nil {
			return err
		}
		entry = e
		return nil
	})
	if err != nil || entry == nil {
		return nil, err
	}
	return l.publish(ctx, entry), nil
}

// SetValidatorThreshold sets how many validator signatures a proof needs.
// Caller must hold ADMIN.
func (l *Ledger) SetValidatorThreshold(ctx context.Context, caller domain.Identity, n int) (*domain.Event, error) {
	ev, err := l.setThreshold(ctx, caller, n)
	l.observe("set_threshold", caller, err)
	return ev, err
}

func (l *Ledger) setThreshold(ctx context.Context, caller domain.Identity, n int) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: threshold must be at least 1, got %d", domain.ErrInvalidInput, n)
	}

	l.adminMu.Lock()
	defer l.adminMu.Unlock()

	if l.ValidatorThreshold() == n {
		return nil, nil
	}
	e := &domain.JournalEntry{
		Kind:      domain.EntryThreshold,
		Caller:    caller,
		Timestamp: l.now(),
		Threshold: n,
	}
	if err := l.commit(ctx, e); err != nil {
		return nil, err
	}
	return l.publish(ctx, e), nil
}

// Pause halts lock, burn, mint and release. Caller must hold ADMIN,
// OPERATOR or BRIDGE. Pausing a paused ledger is a no-op.
func (l *Ledger) Pause(ctx context.Context, caller domain.Identity, reason string) (*domain.Event, error) {
	ev, err := l.pause(ctx, caller, reason)
	l.observe("pause", caller, err)
	return ev, err
}

func (l *Ledger) pause(ctx context.Context, caller domain.Identity, reason string) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleAdmin, domain.RoleOperator, domain.RoleBridge); err != nil {
		return nil, err
	}
	return l.setPaused(ctx, caller, "", true, reason)
}

// Unpause resumes transfers and clears the integrity breaker. Caller must
// hold ADMIN.
func (l *Ledger) Unpause(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
	ev, err := l.unpause(ctx, caller)
	l.observe("unpause", caller, err)
	return ev, err
}

func (l *Ledger) unpause(ctx context.Context, caller domain.Identity) (*domain.Event, error) {
	if err := l.roles.Require(caller, domain.RoleAdmin); err != nil {
		return nil, err
	}
	ev, err := l.setPaused(ctx, caller, "", false, "")
	if err == nil {
		l.breaker.reset()
	}
	return ev, err
}

// setPaused journals a pause or unpause. holder names the account the
// change concerns, if any.
func (l *Ledger) setPaused(ctx context.Context, caller, holder domain.Identity, paused bool, reason string) (*domain.Event, error) {
	l.adminMu.Lock()
	defer l.adminMu.Unlock()

	if l.Paused() == paused {
		return nil, nil
	}
	kind := domain.EntryUnpause
	if paused {
		kind = domain.EntryPause
	}
	e := &domain.JournalEntry{
		Kind:      kind,
		Caller:    caller,
		Holder:    holder,
		Timestamp: l.now(),
		Reason:    reason,
	}
	if err := l.commit(ctx, e); err != nil {
		return nil, err
	}
	return l.publish(ctx, e), nil
}
