// Command bridged runs one ledger of the cross-chain bridge and its relay
// API, applies storage migrations and audits the journal.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bridge-ledger/internal/config"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:           "bridged",
	Short:         "Cross-chain bridge ledger node",
	Long:          `Serve a bridge ledger over HTTP, migrate its stores and verify its journal`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// overrides are flag values that take precedence over the environment.
var overrides struct {
	chainID       string
	addr          string
	postgresDSN   string
	clickhouseDSN string
	rabbitmqURL   string
	logLevel      string
	useMemory     bool
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	pf.StringVar(&overrides.chainID, "chain-id", "", "chain served by this ledger (BRIDGE_CHAIN_ID)")
	pf.StringVar(&overrides.postgresDSN, "postgres-dsn", "", "PostgreSQL connection string (POSTGRES_DSN)")
	pf.StringVar(&overrides.clickhouseDSN, "clickhouse-dsn", "", "ClickHouse connection string (CLICKHOUSE_DSN)")
	pf.StringVar(&overrides.logLevel, "log-level", "", "log level (LOG_LEVEL)")
	pf.BoolVar(&overrides.useMemory, "use-memory", false, "keep the journal in memory (BRIDGE_USE_MEMORY)")

	rootCmd.AddCommand(serveCmd, migrateCmd, verifyCmd, keygenCmd)
}

// loadConfig reads the environment and applies the flags set on cmd.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return config.Config{}, err
	}

	flags := cmd.Flags()
	if flags.Changed("chain-id") {
		cfg.ChainID = overrides.chainID
	}
	if flags.Changed("addr") {
		cfg.HTTPAddr = overrides.addr
	}
	if flags.Changed("postgres-dsn") {
		cfg.PostgresDSN = overrides.postgresDSN
	}
	if flags.Changed("clickhouse-dsn") {
		cfg.ClickhouseDSN = overrides.clickhouseDSN
	}
	if flags.Changed("rabbitmq-url") {
		cfg.RabbitMQURL = overrides.rabbitmqURL
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = overrides.logLevel
	}
	if flags.Changed("use-memory") {
		cfg.UseMemory = overrides.useMemory
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
