package events

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/observability"
)

// DefaultSubscriberBuffer is the number of events a subscriber may fall
// behind before it is dropped.
const DefaultSubscriberBuffer = 256

// Hub broadcasts events to in-process subscribers such as websocket
// connections. A subscriber that cannot keep up is closed; it resumes from
// the journal by sequence.
type Hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
	logger zerolog.Logger
}

// Subscription receives events from a Hub.
type Subscription struct {
	hub  *Hub
	ch   chan *domain.Event
	once sync.Once
}

// NewHub creates a hub. buffer <= 0 uses DefaultSubscriberBuffer.
func NewHub(buffer int, logger zerolog.Logger) *Hub {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Hub{
		subs:   make(map[*Subscription]struct{}),
		buffer: buffer,
		logger: logger,
	}
}

// Name implements Sink.
func (h *Hub) Name() string {
	return "stream"
}

// Publish implements Sink. It never blocks on a subscriber.
func (h *Hub) Publish(_ context.Context, e *domain.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	for s := range h.subs {
		select {
		case s.ch <- e:
		default:
			h.logger.Warn().Uint64("seq", e.Seq).Msg("dropping slow subscriber")
			h.remove(s)
		}
	}
	return nil
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscription {
	s := &Subscription{hub: h, ch: make(chan *domain.Event, h.buffer)}

	h.mu.Lock()
	h.subs[s] = struct{}{}
	n := len(h.subs)
	h.mu.Unlock()

	observability.UpdateStreamSubscribers(n)
	return s
}

// Len returns the number of active subscribers.
func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// Close drops every subscriber.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for s := range h.subs {
		h.remove(s)
	}
}

// remove must be called with h.mu held.
func (h *Hub) remove(s *Subscription) {
	if _, ok := h.subs[s]; !ok {
		return
	}
	delete(h.subs, s)
	s.once.Do(func() { close(s.ch) })
	observability.UpdateStreamSubscribers(len(h.subs))
}

// Events returns the event channel. It is closed when the subscription
// ends, either by Close or because the subscriber fell behind.
func (s *Subscription) Events() <-chan *domain.Event {
	return s.ch
}

// Close ends the subscription.
func (s *Subscription) Close() {
	s.hub.mu.Lock()
	defer s.hub.mu.Unlock()
	s.hub.remove(s)
}

var _ Sink = (*Hub)(nil)
