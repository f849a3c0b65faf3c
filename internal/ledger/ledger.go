// Package ledger implements the bridge state machine: lock, mint, burn and
// release against balances, the role registry, the token configuration
// store and the replay guard.
//
// Every transition is journaled before it is applied. A transition whose
// journal append fails leaves no trace in memory.
package ledger

import (
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/events"
	"bridge-ledger/internal/keylock"
	"bridge-ledger/internal/replayguard"
	"bridge-ledger/internal/roles"
	"bridge-ledger/internal/storage"
	"bridge-ledger/internal/storage/memory"
	"bridge-ledger/internal/tokenconfig"
)

// Default integrity breaker settings.
const (
	DefaultBreakerThreshold = 5
	DefaultBreakerWindow    = time.Hour
)

// Ledger is the bridge ledger of one chain.
type Ledger struct {
	chainID string
	roles   *roles.Registry
	tokens  *tokenconfig.Store
	guard   *replayguard.Guard
	journal storage.JournalStore
	sink    events.Sink
	clock   func() time.Time
	newID   func() string
	logger  zerolog.Logger
	breaker *breaker

	transferLocks *keylock.Set
	adminMu       sync.Mutex // serializes pause, unpause and threshold changes
	nonce         atomic.Uint64

	mu        sync.RWMutex
	balances  map[string]map[domain.Identity]uint64 // asset -> holder -> amount
	supply    map[string]uint64                     // wrapped supply by asset
	transfers map[string]*domain.Transfer           // outbound, keyed by deposit id
	paused    bool
	threshold int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithJournal sets the journal store. Defaults to an in-memory journal.
func WithJournal(j storage.JournalStore) Option {
	return func(l *Ledger) { l.journal = j }
}

// WithSink sets the sink committed events are published to.
func WithSink(s events.Sink) Option {
	return func(l *Ledger) { l.sink = s }
}

// WithClock overrides the wall clock.
func WithClock(clock func() time.Time) Option {
	return func(l *Ledger) { l.clock = clock }
}

// WithLogger sets the logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Ledger) { l.logger = logger }
}

// WithValidatorThreshold sets the initial number of validator signatures a proof needs.
func WithValidatorThreshold(n int) Option {
	return func(l *Ledger) { l.threshold = n }
}

// WithBreaker sets the integrity breaker: threshold integrity errors by one
// caller within window pause the ledger. threshold <= 0 disables it.
func WithBreaker(threshold int, window time.Duration) Option {
	return func(l *Ledger) { l.breaker = newBreaker(threshold, window) }
}

// New creates the ledger of chainID with the given initial ADMIN holders.
func New(chainID string, admins []domain.Identity, opts ...Option) (*Ledger, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: empty chain id", domain.ErrInvalidInput)
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("%w: at least one admin is required", domain.ErrInvalidInput)
	}
	for _, a := range admins {
		if a == "" || a == domain.CustodyAccount {
			return nil, fmt.Errorf("%w: admin %q", domain.ErrInvalidIdentity, a)
		}
	}

	l := &Ledger{
		chainID:       chainID,
		roles:         roles.NewRegistry(admins...),
		tokens:        tokenconfig.NewStore(),
		guard:         replayguard.New(),
		journal:       memory.NewJournalStore(),
		sink:          events.Nop{},
		clock:         time.Now,
		newID:         func() string { return uuid.NewString() },
		logger:        zerolog.Nop(),
		breaker:       newBreaker(DefaultBreakerThreshold, DefaultBreakerWindow),
		transferLocks: keylock.New(),
		balances:      make(map[string]map[domain.Identity]uint64),
		supply:        make(map[string]uint64),
		transfers:     make(map[string]*domain.Transfer),
		threshold:     1,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.threshold < 1 {
		return nil, fmt.Errorf("%w: validator threshold %d", domain.ErrInvalidInput, l.threshold)
	}
	return l, nil
}

// ChainID returns the chain this ledger serves.
func (l *Ledger) ChainID() string {
	return l.chainID
}

func (l *Ledger) now() int64 {
	return l.clock().Unix()
}

// Balance returns holder's balance of asset.
func (l *Ledger) Balance(asset string, holder domain.Identity) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[asset][holder]
}

// Custody returns the collateral of asset held by the bridge.
func (l *Ledger) Custody(asset string) uint64 {
	return l.Balance(asset, domain.CustodyAccount)
}

// Supply returns the wrapped supply of asset minted on this ledger.
func (l *Ledger) Supply(asset string) uint64 {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply[asset]
}

// Transfer returns the outbound transfer with depositID.
func (l *Ledger) Transfer(depositID string) (domain.Transfer, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	t, ok := l.transfers[depositID]
	if !ok {
		return domain.Transfer{}, fmt.Errorf("%w: %s", domain.ErrTransferNotFound, depositID)
	}
	return *t, nil
}

// PendingTransfers returns the PENDING transfers of asset ordered by creation.
// An empty asset matches all assets.
func (l *Ledger) PendingTransfers(asset string) []domain.Transfer {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Transfer
	for _, t := range l.transfers {
		if t.Pending() && (asset == "" || t.Asset == asset) {
			out = append(out, *t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Nonce != out[j].Nonce {
			return out[i].Nonce < out[j].Nonce
		}
		return out[i].DepositID < out[j].DepositID
	})
	return out
}

// TokenConfig returns the policy of asset.
func (l *Ledger) TokenConfig(asset string) (domain.TokenConfig, bool) {
	return l.tokens.Get(asset)
}

// TokenConfigs returns all asset policies.
func (l *Ledger) TokenConfigs() []domain.TokenConfig {
	return l.tokens.List()
}

// HasRole reports whether holder holds role.
func (l *Ledger) HasRole(role domain.Role, holder domain.Identity) bool {
	return l.roles.HasRole(role, holder)
}

// Holders returns the holders of role.
func (l *Ledger) Holders(role domain.Role) []domain.Identity {
	return l.roles.Holders(role)
}

// IsConsumed reports whether an inbound deposit has been minted or released.
func (l *Ledger) IsConsumed(depositID string) bool {
	return l.guard.IsConsumed(depositID)
}

// Deposit returns the tombstone of a consumed inbound deposit.
func (l *Ledger) Deposit(depositID string) (domain.DepositRecord, bool) {
	return l.guard.Get(depositID)
}

// Paused reports whether transfers are halted.
func (l *Ledger) Paused() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.paused
}

// ValidatorThreshold returns the number of validator signatures a proof needs.
func (l *Ledger) ValidatorThreshold() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.threshold
}

// Snapshot is a point-in-time copy of the ledger state.
type Snapshot struct {
	ChainID   string                                `json:"chain_id"`
	Balances  map[string]map[domain.Identity]uint64 `json:"balances"`
	Supply    map[string]uint64                     `json:"supply"`
	Transfers []domain.Transfer                     `json:"transfers"`
	Tokens    []domain.TokenConfig                  `json:"tokens"`
	Roles     map[domain.Role][]domain.Identity     `json:"roles"`
	Consumed  int                                   `json:"consumed"`
	Paused    bool                                  `json:"paused"`
	Threshold int                                   `json:"threshold"`
	Nonce     uint64                                `json:"nonce"`
}

// Snapshot copies the current state. It is not atomic across assets.
func (l *Ledger) Snapshot() Snapshot {
	s := Snapshot{
		ChainID:  l.chainID,
		Balances: make(map[string]map[domain.Identity]uint64),
		Supply:   make(map[string]uint64),
		Tokens:   l.tokens.List(),
		Roles:    make(map[domain.Role][]domain.Identity),
		Consumed: l.guard.Count(),
		Nonce:    l.nonce.Load(),
	}
	for _, r := range domain.AllRoles {
		if h := l.roles.Holders(r); len(h) > 0 {
			s.Roles[r] = h
		}
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	for asset, holders := range l.balances {
		m := make(map[domain.Identity]uint64, len(holders))
		for h, v := range holders {
			if v > 0 {
				m[h] = v
			}
		}
		if len(m) > 0 {
			s.Balances[asset] = m
		}
	}
	for asset, v := range l.supply {
		if v > 0 {
			s.Supply[asset] = v
		}
	}
	for _, t := range l.transfers {
		s.Transfers = append(s.Transfers, *t)
	}
	sort.Slice(s.Transfers, func(i, j int) bool { return s.Transfers[i].DepositID < s.Transfers[j].DepositID })
	s.Paused = l.paused
	s.Threshold = l.threshold
	return s
}
