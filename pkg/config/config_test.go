package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://control.badmagic-qa.com/api", cfg.AuthAPI.BaseURL)
	assert.Equal(t, "file", cfg.Vault.PersistenceType)
	assert.Equal(t, 10*time.Second, cfg.Vault.DefaultTimeout)
	assert.Equal(t, 30*time.Second, cfg.Vault.PromptTimeout)
	assert.Equal(t, 30*time.Second, cfg.Session.ClockDrift)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("AUTH_API_BASE_URL", "http://localhost:4000")
	t.Setenv("SESSION_CLOCK_DRIFT", "45s")
	t.Setenv("VAULT_PERSISTENCE_TYPE", "inmem")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:4000", cfg.AuthAPI.BaseURL)
	assert.Equal(t, 45*time.Second, cfg.Session.ClockDrift)
	assert.Equal(t, "inmem", cfg.Vault.PersistenceType)
}
