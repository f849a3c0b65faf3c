package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"bridge-ledger/internal/events"
	"bridge-ledger/internal/logging"
	"bridge-ledger/internal/relay"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ledger and its relay API",
	Long:  `Restore the ledger from its journal and serve relay, transfer, admin and query endpoints`,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&overrides.addr, "addr", "", "HTTP listen address (BRIDGE_HTTP_ADDR)")
	serveCmd.Flags().StringVar(&overrides.rabbitmqURL, "rabbitmq-url", "", "RabbitMQ URL for the event publisher (RABBITMQ_URL)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := logging.New(cfg.LogLevel, cfg.LogPretty).With().Str("chain", cfg.ChainID).Logger()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, true, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	hub := events.NewHub(cfg.StreamBuffer, logging.Component(logger, "stream"))
	sinks := append([]events.Sink{hub}, st.sinks...)
	fanout := events.NewFanout(logging.Component(logger, "events"), sinks...)

	l, last, err := rebuildLedger(ctx, cfg, st.journal, fanout, logger)
	if err != nil {
		return err
	}
	logger.Info().
		Uint64("last_seq", last).
		Bool("paused", l.Paused()).
		Int("sinks", len(sinks)).
		Msg("ledger restored")

	server := relay.NewServer(relay.ServerConfig{
		Addr:    cfg.HTTPAddr,
		Ledger:  l,
		Journal: st.journal,
		Hub:     hub,
		Volume:  st.volume,
		Logger:  logging.Component(logger, "relay"),
		MaxSkew: cfg.MaxSkew,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	logger.Info().Msg("shutdown complete")
	return nil
}
