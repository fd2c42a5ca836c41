package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lk2023060901/agent-bridge/internal/serving"
)

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("MicrosoftAppId", "app-id")
	t.Setenv("MicrosoftAppPassword", "secret")
	t.Setenv("ConnectionName", "dbx")
	t.Setenv("DATABRICKS_HOST", "https://adb.example.net")
	t.Setenv("SERVING_ENDPOINT_NAME", "agent-ep")
	t.Setenv("PORT", "3978")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, "app-id", cfg.Bot.AppID)
	assert.Equal(t, "secret", cfg.Bot.AppPassword)
	assert.Equal(t, "dbx", cfg.Bot.ConnectionName)
	assert.Equal(t, "https://adb.example.net", cfg.Serving.Host)
	assert.Equal(t, "agent-ep", cfg.Serving.EndpointName)
	assert.Equal(t, 3978, cfg.Server.Port)

	// defaults survive
	assert.Equal(t, 300*time.Second, cfg.Serving.RequestTimeout)
	assert.Equal(t, 10*time.Second, cfg.Serving.ExchangeTimeout)
	assert.Equal(t, 5*time.Minute, cfg.Bot.SignInTimeout)
	assert.Equal(t, DriverMemory, cfg.State.Driver)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigPrefixedEnv(t *testing.T) {
	t.Setenv("AGENT_BRIDGE_SERVING_MODE", "space")
	t.Setenv("AGENT_BRIDGE_SERVING_REQUEST_TIMEOUT", "90s")
	t.Setenv("AGENT_BRIDGE_STATE_DRIVER", "redis")
	t.Setenv("AGENT_BRIDGE_STATE_REDIS_ADDR", "redis:6379")
	t.Setenv("AGENT_BRIDGE_WORKER_WORKERS", "8")
	t.Setenv("AGENT_BRIDGE_WORKER_TURN_TIMEOUT", "2m")
	t.Setenv("AGENT_BRIDGE_LOG_LEVEL", "debug")

	cfg, err := LoadConfig("")
	require.NoError(t, err)

	assert.Equal(t, serving.ModeSpace, cfg.Serving.Mode)
	assert.Equal(t, 90*time.Second, cfg.Serving.RequestTimeout)
	assert.Equal(t, DriverRedis, cfg.State.Driver)
	assert.Equal(t, "redis:6379", cfg.State.Redis.Addr)
	assert.Equal(t, 8, cfg.Worker.Workers)
	assert.Equal(t, 16, cfg.Worker.MaxQueue)
	assert.Equal(t, 2*time.Minute, cfg.Worker.TurnTimeout)
	assert.Equal(t, "debug", cfg.Log.Level)

	// untouched defaults
	assert.Equal(t, "agent-bridge:", cfg.State.Redis.KeyPrefix)
	assert.Equal(t, 10*time.Second, cfg.Serving.ExchangeTimeout)
}

func TestLoadConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
bot:
  connection_name: dbx
serving:
  host: adb.example.net
  space_id: space-1
  mode: space
  request_timeout: 2m
state:
  driver: redis
  ttl: 24h
  redis:
    addr: localhost:6380
worker:
  workers: 8
  turn_timeout: 3m
`), 0o644))

	t.Setenv("GENIE_SPACE_ID", "space-from-env")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, serving.ModeSpace, cfg.Serving.Mode)
	assert.Equal(t, "space-from-env", cfg.Serving.SpaceID)
	assert.Equal(t, 2*time.Minute, cfg.Serving.RequestTimeout)
	assert.Equal(t, DriverRedis, cfg.State.Driver)
	assert.Equal(t, 24*time.Hour, cfg.State.TTL)
	assert.Equal(t, "localhost:6380", cfg.State.Redis.Addr)
	assert.Equal(t, "agent-bridge:", cfg.State.Redis.KeyPrefix)
	assert.Equal(t, 8, cfg.Worker.Workers)
	assert.Equal(t, 3*time.Minute, cfg.Worker.TurnTimeout)

	require.NoError(t, cfg.Validate())
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Bot.ConnectionName = "dbx"
		cfg.Serving.Host = "adb.example.net"
		cfg.Serving.EndpointName = "ep"
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"bad port", func(c *Config) { c.Server.Port = 0 }, true},
		{"bad log level", func(c *Config) { c.Log.Level = "loud" }, true},
		{"missing connection", func(c *Config) { c.Bot.ConnectionName = "" }, true},
		{"missing endpoint", func(c *Config) { c.Serving.EndpointName = "" }, true},
		{"unknown driver", func(c *Config) { c.State.Driver = "etcd" }, true},
		{"postgres", func(c *Config) { c.State.Driver = DriverPostgres }, false},
		{"redis without addr", func(c *Config) { c.State.Driver = DriverRedis; c.State.Redis.Addr = "" }, true},
		{"no workers", func(c *Config) { c.Worker.Workers = 0 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
