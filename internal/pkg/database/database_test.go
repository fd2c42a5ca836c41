package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "default", mutate: func(*Config) {}},
		{name: "missing host", mutate: func(c *Config) { c.Host = "" }, wantErr: true},
		{name: "bad port", mutate: func(c *Config) { c.Port = 70000 }, wantErr: true},
		{name: "missing user", mutate: func(c *Config) { c.User = "" }, wantErr: true},
		{name: "missing db", mutate: func(c *Config) { c.DBName = "" }, wantErr: true},
		{name: "bad ssl", mutate: func(c *Config) { c.SSLMode = "prefer" }, wantErr: true},
		{name: "bad log level", mutate: func(c *Config) { c.LogLevel = "debug" }, wantErr: true},
		{name: "idle over open", mutate: func(c *Config) { c.MaxIdleConns = 50 }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestDSN(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Timezone = ""

	assert.Equal(t,
		"host=localhost port=5432 user=postgres password=postgres dbname=agent_bridge sslmode=disable TimeZone=UTC",
		cfg.DSN())
}
