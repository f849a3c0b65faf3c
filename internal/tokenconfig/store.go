// Package tokenconfig holds per-asset transfer policy and the rolling
// daily volume cap.
package tokenconfig

import (
	"fmt"
	"sort"
	"sync"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/keylock"
)

// Store is the token configuration store. Check-and-reserve is atomic per
// asset; different assets never contend.
type Store struct {
	mu      sync.RWMutex
	configs map[string]*domain.TokenConfig // keyed by asset
	locks   *keylock.Set
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		configs: make(map[string]*domain.TokenConfig),
		locks:   keylock.New(),
	}
}

// ValidateRange checks configure arguments.
func ValidateRange(minAmount, maxAmount, dailyLimit uint64) error {
	if minAmount > maxAmount {
		return fmt.Errorf("%w: min %d > max %d", domain.ErrInvalidRange, minAmount, maxAmount)
	}
	if dailyLimit != 0 && (minAmount == 0 || maxAmount == 0) {
		return fmt.Errorf("%w: min and max must be nonzero when a daily limit is set", domain.ErrInvalidRange)
	}
	return nil
}

// Get returns the configuration of asset.
func (s *Store) Get(asset string) (domain.TokenConfig, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.configs[asset]
	if !ok {
		return domain.TokenConfig{}, false
	}
	return *c, true
}

// List returns all configurations ordered by asset.
func (s *Store) List() []domain.TokenConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.TokenConfig, 0, len(s.configs))
	for _, c := range s.configs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Asset < out[j].Asset })
	return out
}

// Configure onboards or reconfigures asset and restarts its daily window at now.
func (s *Store) Configure(asset string, minAmount, maxAmount, dailyLimit uint64, now int64) (domain.TokenConfig, error) {
	var out domain.TokenConfig
	err := s.WithAsset(asset, func(tx *AssetTx) error {
		cfg, err := tx.Configure(minAmount, maxAmount, dailyLimit, now)
		out = cfg
		return err
	})
	return out, err
}

// Disable marks asset unsupported, keeping its limits.
func (s *Store) Disable(asset string) error {
	return s.WithAsset(asset, func(tx *AssetTx) error {
		_, err := tx.Disable()
		return err
	})
}

// CheckAndReserve reserves amount of asset's daily volume at now.
func (s *Store) CheckAndReserve(asset string, amount uint64, now int64) error {
	return s.WithAsset(asset, func(tx *AssetTx) error {
		_, err := tx.Reserve(amount, now)
		return err
	})
}

// WithAsset runs fn while holding asset's lock. Changes staged on tx are
// committed only if fn returns nil.
func (s *Store) WithAsset(asset string, fn func(tx *AssetTx) error) error {
	if asset == "" {
		return fmt.Errorf("%w: empty asset", domain.ErrInvalidInput)
	}

	unlock := s.locks.Lock(asset)
	defer unlock()

	tx := &AssetTx{asset: asset}
	if cfg, ok := s.Get(asset); ok {
		tx.cfg = cfg
		tx.found = true
	}

	if err := fn(tx); err != nil {
		return err
	}

	if tx.dirty {
		s.Restore(tx.cfg)
	}
	return nil
}

// Restore overwrites a configuration without validation. Used for journal replay.
func (s *Store) Restore(cfg domain.TokenConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.Asset] = &cfg
}

// AssetTx stages changes to one asset's configuration.
type AssetTx struct {
	asset string
	cfg   domain.TokenConfig
	found bool
	dirty bool
}

// Asset returns the asset the transaction is bound to.
func (tx *AssetTx) Asset() string {
	return tx.asset
}

// Config returns the staged configuration.
func (tx *AssetTx) Config() (domain.TokenConfig, bool) {
	return tx.cfg, tx.found
}

// Supported returns ErrUnsupportedAsset unless the asset is configured and enabled.
func (tx *AssetTx) Supported() error {
	if !tx.found || !tx.cfg.IsSupported {
		return fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, tx.asset)
	}
	return nil
}

// Reserve checks amount against the policy at now and stages the increment.
func (tx *AssetTx) Reserve(amount uint64, now int64) (domain.TokenConfig, error) {
	if err := tx.Supported(); err != nil {
		return tx.cfg, err
	}

	cfg := tx.cfg
	if amount < cfg.MinAmount || amount > cfg.MaxAmount {
		return tx.cfg, fmt.Errorf("%w: %d not in [%d, %d]", domain.ErrAmountOutOfRange, amount, cfg.MinAmount, cfg.MaxAmount)
	}

	// Lazy rollover: the window only advances when touched.
	if cfg.WindowExpired(now) {
		cfg.DailyUsed = 0
		cfg.LastResetTime = now
	}

	if amount > cfg.Remaining() {
		return tx.cfg, fmt.Errorf("%w: %s used %d + %d > %d",
			domain.ErrDailyLimitExceeded, tx.asset, cfg.DailyUsed, amount, cfg.DailyLimit)
	}

	cfg.DailyUsed += amount
	tx.cfg = cfg
	tx.dirty = true
	return cfg, nil
}

// Configure stages a new policy and restarts the daily window.
func (tx *AssetTx) Configure(minAmount, maxAmount, dailyLimit uint64, now int64) (domain.TokenConfig, error) {
	if err := ValidateRange(minAmount, maxAmount, dailyLimit); err != nil {
		return tx.cfg, err
	}
	tx.cfg = domain.TokenConfig{
		Asset:         tx.asset,
		IsSupported:   true,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
		DailyLimit:    dailyLimit,
		DailyUsed:     0,
		LastResetTime: now,
	}
	tx.found = true
	tx.dirty = true
	return tx.cfg, nil
}

// Disable stages IsSupported = false.
func (tx *AssetTx) Disable() (domain.TokenConfig, error) {
	if !tx.found {
		return tx.cfg, fmt.Errorf("%w: %s", domain.ErrUnsupportedAsset, tx.asset)
	}
	tx.cfg.IsSupported = false
	tx.dirty = true
	return tx.cfg, nil
}
