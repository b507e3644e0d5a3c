package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileAndDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://localhost/dalil"
auth:
  jwt_secret: "secret"
realtime:
  driver: memory
cache:
  stale_time: 10s
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "postgres://localhost/dalil", cfg.Database.DSN)
	assert.Equal(t, "secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "memory", cfg.Realtime.Driver)
	assert.Equal(t, 10*time.Second, cfg.Cache.StaleTime)

	assert.Equal(t, ":8080", cfg.App.Addr)
	assert.Equal(t, int32(25), cfg.Database.MaxConns)
	assert.Equal(t, "dalil", cfg.Realtime.ChannelPrefix)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  dsn: "postgres://localhost/dalil"
auth:
  jwt_secret: "from-file"
`)
	t.Setenv("DALIL_AUTH_JWT_SECRET", "from-env")
	t.Setenv("DALIL_APP_ADDR", ":9090")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Auth.JWTSecret)
	assert.Equal(t, ":9090", cfg.App.Addr)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "missing dsn", mutate: func(c *Config) { c.Database.DSN = "" }, wantErr: true},
		{name: "missing secret", mutate: func(c *Config) { c.Auth.JWTSecret = "" }, wantErr: true},
		{name: "unknown driver", mutate: func(c *Config) { c.Realtime.Driver = "kafka" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				Database: DatabaseConfig{DSN: "postgres://localhost/dalil"},
				Auth:     AuthConfig{JWTSecret: "secret"},
				Realtime: RealtimeConfig{Driver: "nats"},
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
