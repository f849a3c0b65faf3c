package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"bridge-ledger/internal/config"
	"bridge-ledger/internal/events"
	"bridge-ledger/internal/ledger"
	"bridge-ledger/internal/logging"
	"bridge-ledger/internal/replay"
	"bridge-ledger/internal/storage"
	chstore "bridge-ledger/internal/storage/clickhouse"
	"bridge-ledger/internal/storage/memory"
	"bridge-ledger/internal/storage/migrations"
	pgstore "bridge-ledger/internal/storage/postgres"
)

const amqpDialRetries = 5

// stores holds the storage and outbound sinks of a node.
type stores struct {
	journal storage.JournalStore
	volume  storage.TransferEventStore // nil when analytics are off
	sinks   []events.Sink
	closers []func()
}

// Close releases every connection in reverse order of opening.
func (s *stores) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// openStores connects the journal and, when configured, the analytics
// store and the AMQP publisher. withSinks is false for read-only commands.
func openStores(ctx context.Context, cfg config.Config, withSinks bool, logger zerolog.Logger) (*stores, error) {
	s := &stores{}

	if cfg.UseMemory {
		s.journal = memory.NewJournalStore()
	} else {
		pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("connect to postgres: %w", err)
		}
		s.closers = append(s.closers, pool.Close)
		if _, err := migrations.RunPostgresMigrations(ctx, pool, logging.Component(logger, "migrations")); err != nil {
			s.Close()
			return nil, err
		}
		s.journal = pgstore.NewJournalStore(pool)
	}

	if !withSinks {
		return s, nil
	}

	switch {
	case cfg.ClickhouseDSN != "":
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN, logging.Component(logger, "migrations"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() { conn.Close() })
		s.volume = chstore.NewTransferEventStore(conn)
	case cfg.UseMemory:
		s.volume = memory.NewTransferEventStore()
	}
	if s.volume != nil {
		s.sinks = append(s.sinks, events.NewStoreSink(s.volume))
	}

	if cfg.RabbitMQURL != "" {
		conn, ch, err := events.DialAMQP(ctx, cfg.RabbitMQURL, cfg.RabbitMQExchange, amqpDialRetries, logging.Component(logger, "amqp"))
		if err != nil {
			s.Close()
			return nil, err
		}
		s.closers = append(s.closers, func() {
			ch.Close()
			conn.Close()
		})
		s.sinks = append(s.sinks, events.NewAMQPSink(ch, cfg.RabbitMQExchange, ""))
	}
	return s, nil
}

// rebuildLedger creates the ledger for cfg and restores the journal into it.
func rebuildLedger(ctx context.Context, cfg config.Config, journal storage.JournalStore, sink events.Sink, logger zerolog.Logger) (*ledger.Ledger, uint64, error) {
	opts := []ledger.Option{
		ledger.WithJournal(journal),
		ledger.WithLogger(logging.Component(logger, "ledger")),
		ledger.WithValidatorThreshold(cfg.ValidatorThreshold),
		ledger.WithBreaker(cfg.BreakerThreshold, cfg.BreakerWindow),
	}
	if sink != nil {
		opts = append(opts, ledger.WithSink(sink))
	}

	l, err := ledger.New(cfg.ChainID, cfg.Admins, opts...)
	if err != nil {
		return nil, 0, err
	}
	last, err := replay.Rebuild(ctx, journal, l)
	if err != nil {
		return nil, 0, fmt.Errorf("rebuild from journal: %w", err)
	}
	return l, last, nil
}
