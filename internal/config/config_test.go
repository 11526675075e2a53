package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 8080\n")

	cfg, err := Load(path)
	assert.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 20, cfg.Auth.MaxInflight)
	assert.Equal(t, 5*time.Minute, cfg.Auth.RendezvousTimeout)
	assert.Equal(t, 50, cfg.Cursor.DefaultLimit)
	assert.Equal(t, 100, cfg.Cursor.MaxLimit)
	assert.Equal(t, "obstacle-finishes", cfg.Kafka.Topic)
}

func TestLoadExpandsEnvPlaceholders(t *testing.T) {
	t.Setenv("TEST_CFG_REDIS", "redis://cache.internal:6379/2")
	path := writeConfig(t, "redis:\n  url: ${TEST_CFG_REDIS}\n")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "redis://cache.internal:6379/2", cfg.Redis.URL)
}

func TestEnvOverridesFile(t *testing.T) {
	t.Setenv("DB_URL", "records:secret@tcp(db.internal:3306)/obs_records?parseTime=true")
	t.Setenv("CURSOR_MAX_LIMIT", "250")
	t.Setenv("AUTH_TOKEN_TTL", "3600")
	path := writeConfig(t, "mysql:\n  url: ignored\ncursor:\n  max_limit: 10\n")

	cfg, err := Load(path)
	assert.NoError(t, err)
	assert.Equal(t, "records:secret@tcp(db.internal:3306)/obs_records?parseTime=true", cfg.MySQL.URL)
	assert.Equal(t, 250, cfg.Cursor.MaxLimit)
	// bare numbers are read as seconds
	assert.Equal(t, time.Hour, cfg.Auth.TokenTTL)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
