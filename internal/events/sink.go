// Package events delivers committed ledger events to relayers and
// downstream consumers.
package events

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/observability"
)

// Sink receives committed events. Sinks treat e as read-only.
type Sink interface {
	Name() string
	Publish(ctx context.Context, e *domain.Event) error
}

// Fanout publishes each event to every sink. A failing sink does not stop
// delivery to the others.
type Fanout struct {
	sinks  []Sink
	logger zerolog.Logger
}

// NewFanout creates a fanout over sinks.
func NewFanout(logger zerolog.Logger, sinks ...Sink) *Fanout {
	return &Fanout{sinks: sinks, logger: logger}
}

// Name implements Sink.
func (f *Fanout) Name() string {
	return "fanout"
}

// Publish implements Sink. It returns the joined errors of all failing sinks.
func (f *Fanout) Publish(ctx context.Context, e *domain.Event) error {
	var errs []error
	for _, s := range f.sinks {
		err := s.Publish(ctx, e)
		observability.RecordEventPublished(s.Name(), string(e.Type), err)
		if err != nil {
			f.logger.Error().Err(err).
				Str("sink", s.Name()).
				Uint64("seq", e.Seq).
				Str("type", string(e.Type)).
				Msg("event publish failed")
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	return errors.Join(errs...)
}

// Nop discards events.
type Nop struct{}

// Name implements Sink.
func (Nop) Name() string { return "nop" }

// Publish implements Sink.
func (Nop) Publish(context.Context, *domain.Event) error { return nil }

var (
	_ Sink = (*Fanout)(nil)
	_ Sink = Nop{}
)
