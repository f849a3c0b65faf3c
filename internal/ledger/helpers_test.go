package ledger

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
	"bridge-ledger/internal/proof"
	"bridge-ledger/internal/storage"
	"bridge-ledger/internal/storage/memory"
)

const (
	chainA = "chain-a"
	chainB = "chain-b"
	t0     = int64(1_700_000_000)
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(t0, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type captureSink struct {
	mu     sync.Mutex
	events []*domain.Event
}

func (s *captureSink) Name() string { return "capture" }

func (s *captureSink) Publish(_ context.Context, e *domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
	return nil
}

func (s *captureSink) ofType(t domain.EventType) []*domain.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*domain.Event
	for _, e := range s.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

// failingJournal fails appends while fail is set.
type failingJournal struct {
	storage.JournalStore
	mu   sync.Mutex
	fail bool
}

func (j *failingJournal) setFail(v bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fail = v
}

func (j *failingJournal) Append(ctx context.Context, e *domain.JournalEntry) (uint64, error) {
	j.mu.Lock()
	fail := j.fail
	j.mu.Unlock()
	if fail {
		return 0, errors.New("disk full")
	}
	return j.JournalStore.Append(ctx, e)
}

type actors struct {
	admin      *identity.Signer
	operator   *identity.Signer
	relayer    *identity.Signer
	outsider   *identity.Signer
	alice      *identity.Signer
	validators []*identity.Signer
}

func newActors(t *testing.T) *actors {
	t.Helper()
	gen := func() *identity.Signer {
		s, err := identity.GenerateSigner()
		if err != nil {
			t.Fatalf("GenerateSigner failed: %v", err)
		}
		return s
	}
	return &actors{
		admin:      gen(),
		operator:   gen(),
		relayer:    gen(),
		outsider:   gen(),
		alice:      gen(),
		validators: []*identity.Signer{gen(), gen(), gen()},
	}
}

type fixture struct {
	t       *testing.T
	ctx     context.Context
	clock   *fakeClock
	actors  *actors
	ledger  *Ledger
	sink    *captureSink
	journal *failingJournal
}

// newFixture builds a ledger with an operator, a relayer, three validators
// (threshold 2) and USDT configured as {1, 100000, 50000}.
func newFixture(t *testing.T, chainID string, a *actors, clock *fakeClock, opts ...Option) *fixture {
	t.Helper()

	f := &fixture{
		t:       t,
		ctx:     context.Background(),
		clock:   clock,
		actors:  a,
		sink:    &captureSink{},
		journal: &failingJournal{JournalStore: memory.NewJournalStore()},
	}

	base := []Option{
		WithClock(clock.Now),
		WithSink(f.sink),
		WithJournal(f.journal),
	}
	l, err := New(chainID, []domain.Identity{a.admin.Identity()}, append(base, opts...)...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	f.ledger = l

	admin := a.admin.Identity()
	f.must(l.Grant(f.ctx, admin, domain.RoleOperator, a.operator.Identity()))
	f.must(l.Grant(f.ctx, admin, domain.RoleRelayer, a.relayer.Identity()))
	for _, v := range a.validators {
		f.must(l.Grant(f.ctx, admin, domain.RoleValidator, v.Identity()))
	}
	f.must(l.SetValidatorThreshold(f.ctx, admin, 2))
	f.must(l.Configure(f.ctx, a.operator.Identity(), "USDT", 1, 100000, 50000))
	return f
}

// must fails the test on err.
func (f *fixture) must(ev *domain.Event, err error) *domain.Event {
	f.t.Helper()
	if err != nil {
		f.t.Fatalf("Operation failed: %v", err)
	}
	return ev
}

// creditRequest builds a request signed by the first two validators.
func (f *fixture) creditRequest(kind domain.DepositKind, source, asset string, recipient domain.Identity, amount uint64, depositID string) CreditRequest {
	c := proof.Claim{
		Kind:             kind,
		SourceChain:      source,
		DestinationChain: f.ledger.ChainID(),
		Asset:            asset,
		Amount:           amount,
		Recipient:        recipient,
		DepositID:        depositID,
	}
	return CreditRequest{
		Asset:     asset,
		Recipient: recipient,
		Amount:    amount,
		DepositID: depositID,
		Proof:     proof.Sign(c, f.actors.validators[:2]...),
	}
}

func (f *fixture) mintRequest(recipient domain.Identity, amount uint64, depositID string) CreditRequest {
	return f.creditRequest(domain.DepositKindMint, chainA, "USDT", recipient, amount, depositID)
}
