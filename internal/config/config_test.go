package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = strings.Repeat("s", MinSecretBytes)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("MONETA_JWT_SECRET", testSecret)

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":9090", cfg.GRPCAddr)
	assert.Equal(t, time.Hour, cfg.TokenTTL())
	assert.Equal(t, "bcrypt", cfg.PasswordHasher)
	assert.Equal(t, 80, cfg.BudgetWarnPercent)
	assert.Empty(t, cfg.PGDSN)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("MONETA_JWT_SECRET", testSecret)
	t.Setenv("MONETA_JWT_TTL_MS", "60000")
	t.Setenv("MONETA_HTTP_ADDR", ":9999")
	t.Setenv("MONETA_PASSWORD_HASHER", "ARGON2ID")
	t.Setenv("MONETA_REDIS_DB", "3")

	cfg, err := LoadFile("")
	require.NoError(t, err)
	assert.Equal(t, time.Minute, cfg.TokenTTL())
	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, "argon2id", cfg.PasswordHasher)
	assert.Equal(t, 3, cfg.RedisDB)
}

func TestLoadDotEnvFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("MONETA_JWT_SECRET="+testSecret+"\nMONETA_GRPC_ADDR=:7070\n"), 0o600))
	t.Cleanup(func() {
		os.Unsetenv("MONETA_JWT_SECRET")
		os.Unsetenv("MONETA_GRPC_ADDR")
	})

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, ":7070", cfg.GRPCAddr)
}

func TestLoadRejectsSecrets(t *testing.T) {
	t.Setenv("MONETA_JWT_SECRET", "")
	_, err := LoadFile("")
	assert.ErrorIs(t, err, ErrMissingSecret)

	t.Setenv("MONETA_JWT_SECRET", "too-short")
	_, err = LoadFile("")
	assert.ErrorIs(t, err, ErrWeakSecret)
}

func TestStringMasksSecrets(t *testing.T) {
	cfg := &Config{JWTSecret: testSecret, RedisPassword: "hunter2", JWTTTLMs: 1000}
	out := cfg.String()
	assert.NotContains(t, out, testSecret)
	assert.NotContains(t, out, "hunter2")
}
