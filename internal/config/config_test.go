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
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "Asia/Tokyo", cfg.Numbering.TimeZone)
	assert.Equal(t, 3*time.Second, cfg.Numbering.LockTimeout)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
}

func TestLoadFileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "staffcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  port: 9000
database:
  url: postgres://file/db
numbering:
  lock_timeout: 500ms
storage:
  backend: memory
`), 0o600))

	t.Setenv("CONFIG_FILE", path)
	t.Setenv("DATABASE_URL", "postgres://env/db")
	t.Setenv("JWT_SECRET", "s3cret")
	t.Setenv("RENDER_FONT_PATH", "/fonts/ipaexg.ttf")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 9000, cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.Database.URL)
	assert.Equal(t, 500*time.Millisecond, cfg.Numbering.LockTimeout)
	assert.Equal(t, 20, cfg.Database.MaxConns)
	assert.NoError(t, cfg.Validate())
}

func TestLoadRejectsBadInt(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")
	t.Setenv("SERVER_PORT", "eighty")
	_, err := Load()
	assert.Error(t, err)
}

func TestValidateListsMissing(t *testing.T) {
	cfg := defaults()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "RENDER_FONT_PATH")
}

func TestValidateRequiresFont(t *testing.T) {
	cfg := defaults()
	cfg.Database.URL = "postgres://localhost/staffcore"
	cfg.Auth.JWTSecret = "s3cret"
	cfg.Storage.Backend = "memory"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Equal(t, "missing required env vars: RENDER_FONT_PATH", err.Error())

	cfg.Render.FontPath = "/fonts/ipaexg.ttf"
	assert.NoError(t, cfg.Validate())
}

func TestLocation(t *testing.T) {
	cfg := defaults()
	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Tokyo", loc.String())
}
