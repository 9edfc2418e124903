// Package config defines the environment-driven configuration for the
// auth core, one struct per concern.
package config

import (
	"fmt"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// AuthAPIConfig configures the remote authentication API client.
type AuthAPIConfig struct {
	BaseURL string        `env:"AUTH_API_BASE_URL" env-default:"https://control.badmagic-qa.com/api"`
	Timeout time.Duration `env:"AUTH_API_TIMEOUT" env-default:"30s"`
}

// VaultConfig configures the secret vault.
type VaultConfig struct {
	PersistenceType string        `env:"VAULT_PERSISTENCE_TYPE" env-default:"file"`
	DataDir         string        `env:"VAULT_DATA_DIR" env-default:".badmagic/vault"`
	Passphrase      string        `env:"VAULT_PASSPHRASE" env-default:""`
	DefaultTimeout  time.Duration `env:"VAULT_DEFAULT_TIMEOUT" env-default:"10s"`
	PromptTimeout   time.Duration `env:"VAULT_PROMPT_TIMEOUT" env-default:"30s"`
}

// SessionConfig configures the session controller.
type SessionConfig struct {
	// ClockDrift is the shared safety margin for both the proactive
	// refresh schedule and the refresh-token usability check.
	ClockDrift time.Duration `env:"SESSION_CLOCK_DRIFT" env-default:"30s"`
}

// Config is the root configuration.
type Config struct {
	AuthAPI AuthAPIConfig
	Vault   VaultConfig
	Session SessionConfig
}

// Load reads configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read environment config: %w", err)
	}
	return &cfg, nil
}
