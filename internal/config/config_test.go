package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 60*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 1, cfg.Worker.Concurrency)
	assert.Equal(t, "memory", cfg.Mailbox.Provider)
	assert.Equal(t, "none", cfg.Worker.AutoResolveStrategy)
}

func TestDefaultStationTable(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("ROUTING_STATIONS", "")

	cfg, err := Load("")
	require.NoError(t, err)
	for _, code := range []string{"DEL", "BOM", "BLR", "HYD", "CCU"} {
		assert.NotEmpty(t, cfg.Routing.Stations[code], code)
	}
	assert.Equal(t, "ccu.ops@airline.example", cfg.Routing.MailboxFor(" ccu "))
}

func TestLoadYAMLThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlDoc := `
worker:
  poll_interval: 15s
  concurrency: 4
  auto_resolve_strategy: weather,policy
routing:
  cx_mailbox: cx@airline.test
  fallback_mailbox: cr@airline.test
  stations:
    DEL: baseopsdelhi@airline.test
    BOM: baseopsmumbai@airline.test
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o600))
	t.Setenv("WORKER_CONCURRENCY", "2")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 15*time.Second, cfg.Worker.PollInterval)
	assert.Equal(t, 2, cfg.Worker.Concurrency, "env overrides file")
	assert.Equal(t, "weather,policy", cfg.Worker.AutoResolveStrategy)
	assert.Equal(t, "baseopsdelhi@airline.test", cfg.Routing.MailboxFor("del"))
	assert.Equal(t, "cr@airline.test", cfg.Routing.MailboxFor("XYZ"))
}

func TestRoutingStationsFromEnv(t *testing.T) {
	t.Setenv("ROUTING_STATIONS", "DEL=a@x.test, hyd = b@x.test")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "b@x.test", cfg.Routing.MailboxFor("HYD"))

	t.Setenv("ROUTING_STATIONS", "DEL")
	_, err = Load("")
	assert.Error(t, err)
}

func TestValidateRejectsUnknownProviders(t *testing.T) {
	cfg := Default()
	cfg.Mailbox.Provider = "pop3"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Mailbox.Provider = "graph"
	assert.Error(t, cfg.Validate(), "graph requires a target mailbox")

	cfg = Default()
	cfg.Events.Sink = "kafka"
	assert.Error(t, cfg.Validate(), "kafka requires brokers")

	cfg = Default()
	cfg.App.Env = "production"
	assert.Error(t, cfg.Validate(), "production keeps the development jwt secret")
	cfg.Auth.JWTSecret = "rotated"
	assert.NoError(t, cfg.Validate())
}
