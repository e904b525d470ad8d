package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"pnl-arena/internal/errs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yml"), []byte(body), 0o600))
	return dir
}

func TestLoadConfig_Defaults(t *testing.T) {
	// Arrange
	dir := t.TempDir()

	// Act
	cfg, err := LoadConfig(dir)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "@every 30s", cfg.Battle.PollSpec)
	assert.Equal(t, 5*time.Minute, cfg.Battle.MinDuration)
	assert.Equal(t, 28*24*time.Hour, cfg.Battle.MaxDuration)
	assert.Equal(t, 10, cfg.Engine.DefaultLimit)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 15*time.Minute, cfg.Session.TTL)
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	dir := writeConfig(t, `
database:
  driver: postgres
  dsn: host=db user=arena
server:
  port: 9000
battle:
  min_duration: 10m
session:
  backend: redis
`)
	t.Setenv("SERVER_PORT", "9100")
	t.Setenv("REDIS_ADDR", "cache:6379")

	cfg, err := LoadConfig(dir)

	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "host=db user=arena", cfg.Database.DSN)
	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, 10*time.Minute, cfg.Battle.MinDuration)
	assert.Equal(t, "redis", cfg.Session.Backend)
	assert.Equal(t, "cache:6379", cfg.Redis.Addr)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "driver", body: "database:\n  driver: mysql\n"},
		{name: "session backend", body: "session:\n  backend: disk\n"},
		{name: "duration bounds", body: "battle:\n  min_duration: 2h\n  max_duration: 1h\n"},
		{name: "default limit", body: "engine:\n  default_limit: 500\n"},
		{name: "server mode", body: "server:\n  mode: loud\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tt.body))
			assert.ErrorIs(t, err, errs.ErrInvalidConfiguration)
		})
	}
}

func TestLoadConfig_Malformed(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "database: [unclosed\n"))
	assert.Error(t, err)
}
