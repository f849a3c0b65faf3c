package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/observability"
)

// breaker counts integrity errors per caller in a window that restarts
// lazily on the first strike after it expires.
type breaker struct {
	mu        sync.Mutex
	threshold int
	window    time.Duration
	strikes   map[domain.Identity]*strikes
}

type strikes struct {
	start time.Time
	n     int
}

func newBreaker(threshold int, window time.Duration) *breaker {
	return &breaker{
		threshold: threshold,
		window:    window,
		strikes:   make(map[domain.Identity]*strikes),
	}
}

// record adds a strike for caller at now and reports whether the caller
// reached the threshold. The caller's count restarts after a trip.
func (b *breaker) record(caller domain.Identity, now time.Time) (int, bool) {
	if b.threshold <= 0 {
		return 0, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.strikes[caller]
	if !ok || now.Sub(s.start) >= b.window {
		s = &strikes{start: now}
		b.strikes[caller] = s
	}
	s.n++

	if s.n >= b.threshold {
		delete(b.strikes, caller)
		return s.n, true
	}
	return s.n, false
}

func (b *breaker) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.strikes = make(map[domain.Identity]*strikes)
}

// trip pauses the ledger on behalf of the breaker. The pause is recorded
// under BreakerAccount with the offending caller as holder.
func (l *Ledger) trip(ctx context.Context, caller domain.Identity, n int) {
	observability.RecordBreakerTrip(string(caller))

	reason := fmt.Sprintf("integrity breaker: %d integrity errors from %s within %s", n, caller, l.breaker.window)
	l.logger.Error().
		Str("caller", string(caller)).
		Int("strikes", n).
		Msg("integrity breaker tripped, pausing")

	if _, err := l.setPaused(ctx, domain.BreakerAccount, caller, true, reason); err != nil {
		l.logger.Error().Err(err).Msg("breaker failed to pause ledger")
	}
}
