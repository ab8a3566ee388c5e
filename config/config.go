// Package config loads gateway configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the gateway configuration. All values come from the
// environment with the WALLETGATE_ prefix; a .env file is honored in
// development.
type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"development"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	ListenAddr  string `envconfig:"LISTEN_ADDR" default:":9000"`

	// ProviderRPCURL points at the wallet bridge. Empty means no wallet
	// capability is present, which is a valid configuration.
	ProviderRPCURL string        `envconfig:"PROVIDER_RPC_URL"`
	PollInterval   time.Duration `envconfig:"PROVIDER_POLL_INTERVAL" default:"2s"`

	IdentityURL string `envconfig:"IDENTITY_URL" default:"http://localhost:8080"`

	// RedisURL enables the Redis persistence store and the audit stream.
	// Empty falls back to in-memory persistence and log-based audit.
	RedisURL string `envconfig:"REDIS_URL"`

	AuditTopic string `envconfig:"AUDIT_TOPIC" default:"walletgate.audit"`

	ConnectTimeout time.Duration `envconfig:"CONNECT_TIMEOUT" default:"30s"`
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("walletgate", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return &cfg, nil
}
