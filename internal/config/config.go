// Package config loads bridge daemon settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"bridge-ledger/internal/domain"
	"bridge-ledger/internal/identity"
)

// Environment variable names.
const (
	EnvChainID            = "BRIDGE_CHAIN_ID"
	EnvHTTPAddr           = "BRIDGE_HTTP_ADDR"
	EnvAdmins             = "BRIDGE_ADMINS"
	EnvValidatorThreshold = "BRIDGE_VALIDATOR_THRESHOLD"
	EnvBreakerThreshold   = "BRIDGE_BREAKER_THRESHOLD"
	EnvBreakerWindow      = "BRIDGE_BREAKER_WINDOW"
	EnvMaxSkew            = "BRIDGE_MAX_SKEW"
	EnvStreamBuffer       = "BRIDGE_STREAM_BUFFER"
	EnvUseMemory          = "BRIDGE_USE_MEMORY"
	EnvPostgresDSN        = "POSTGRES_DSN"
	EnvClickhouseDSN      = "CLICKHOUSE_DSN"
	EnvRabbitMQURL        = "RABBITMQ_URL"
	EnvRabbitMQExchange   = "RABBITMQ_EXCHANGE"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogPretty          = "LOG_PRETTY"
)

// Config holds daemon settings.
type Config struct {
	ChainID            string
	HTTPAddr           string
	Admins             []domain.Identity
	ValidatorThreshold int
	BreakerThreshold   int
	BreakerWindow      time.Duration
	MaxSkew            time.Duration
	StreamBuffer       int

	// UseMemory keeps the journal in memory. State does not survive a restart.
	UseMemory        bool
	PostgresDSN      string
	ClickhouseDSN    string // optional; enables volume analytics
	RabbitMQURL      string // optional; enables the AMQP event sink
	RabbitMQExchange string

	LogLevel  string
	LogPretty bool
}

// Default returns the settings used when nothing is configured.
func Default() Config {
	return Config{
		HTTPAddr:           ":8080",
		ValidatorThreshold: 1,
		BreakerThreshold:   5,
		BreakerWindow:      time.Hour,
		MaxSkew:            5 * time.Minute,
		StreamBuffer:       256,
		RabbitMQExchange:   "bridge.events",
		LogLevel:           "info",
	}
}

// Load reads files (default ".env") into the environment without
// overriding variables already set, then builds a Config from the
// environment over Default. Missing files are ignored.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}
	return FromEnv()
}

// FromEnv builds a Config from environment variables over Default.
func FromEnv() (Config, error) {
	c := Default()
	var err error

	c.ChainID = envString(EnvChainID, c.ChainID)
	c.HTTPAddr = envString(EnvHTTPAddr, c.HTTPAddr)
	c.PostgresDSN = envString(EnvPostgresDSN, c.PostgresDSN)
	c.ClickhouseDSN = envString(EnvClickhouseDSN, c.ClickhouseDSN)
	c.RabbitMQURL = envString(EnvRabbitMQURL, c.RabbitMQURL)
	c.RabbitMQExchange = envString(EnvRabbitMQExchange, c.RabbitMQExchange)
	c.LogLevel = envString(EnvLogLevel, c.LogLevel)
	c.Admins = ParseAdmins(os.Getenv(EnvAdmins))

	if c.ValidatorThreshold, err = envInt(EnvValidatorThreshold, c.ValidatorThreshold); err != nil {
		return Config{}, err
	}
	if c.BreakerThreshold, err = envInt(EnvBreakerThreshold, c.BreakerThreshold); err != nil {
		return Config{}, err
	}
	if c.StreamBuffer, err = envInt(EnvStreamBuffer, c.StreamBuffer); err != nil {
		return Config{}, err
	}
	if c.BreakerWindow, err = envDuration(EnvBreakerWindow, c.BreakerWindow); err != nil {
		return Config{}, err
	}
	if c.MaxSkew, err = envDuration(EnvMaxSkew, c.MaxSkew); err != nil {
		return Config{}, err
	}
	if c.UseMemory, err = envBool(EnvUseMemory, c.UseMemory); err != nil {
		return Config{}, err
	}
	if c.LogPretty, err = envBool(EnvLogPretty, c.LogPretty); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.ChainID == "" {
		return fmt.Errorf("%s is required", EnvChainID)
	}
	if len(c.Admins) == 0 {
		return fmt.Errorf("%s must list at least one admin", EnvAdmins)
	}
	for _, a := range c.Admins {
		if _, err := identity.PublicKey(a); err != nil {
			return fmt.Errorf("%s: %w", EnvAdmins, err)
		}
	}
	if c.ValidatorThreshold < 1 {
		return fmt.Errorf("%s must be at least 1, got %d", EnvValidatorThreshold, c.ValidatorThreshold)
	}
	if c.BreakerThreshold < 0 {
		return fmt.Errorf("%s must not be negative, got %d", EnvBreakerThreshold, c.BreakerThreshold)
	}
	if c.BreakerThreshold > 0 && c.BreakerWindow <= 0 {
		return fmt.Errorf("%s must be positive when the breaker is enabled", EnvBreakerWindow)
	}
	if c.MaxSkew <= 0 {
		return fmt.Errorf("%s must be positive", EnvMaxSkew)
	}
	if !c.UseMemory && c.PostgresDSN == "" {
		return fmt.Errorf("%s is required unless %s is set", EnvPostgresDSN, EnvUseMemory)
	}
	if c.RabbitMQURL != "" && c.RabbitMQExchange == "" {
		return fmt.Errorf("%s is required with %s", EnvRabbitMQExchange, EnvRabbitMQURL)
	}
	return nil
}

// ParseAdmins splits a comma-separated identity list, dropping blanks.
func ParseAdmins(s string) []domain.Identity {
	var out []domain.Identity
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, domain.Identity(p))
		}
	}
	return out
}

func envString(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}
