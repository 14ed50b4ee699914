package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/flowcore/orco/pkg/orco/config"
	"github.com/flowcore/orco/pkg/orco/domain"
)

func TestStringAndDefault(t *testing.T) {
	cfg := config.New(map[string]any{"name": "alice", "bad": 5})
	assert.Equal(t, "alice", cfg.String("name", "default"))
	assert.Equal(t, "default", cfg.String("missing", "default"))
	assert.Equal(t, "default", cfg.String("bad", "default"))
}

func TestDuration(t *testing.T) {
	cfg := config.New(map[string]any{"timeout": "5s", "secs": 3})
	assert.Equal(t, 5*time.Second, cfg.Duration("timeout", time.Second))
	assert.Equal(t, 3*time.Second, cfg.Duration("secs", 0))
	assert.Equal(t, time.Minute, cfg.Duration("missing", time.Minute))
}

func TestStringSlice(t *testing.T) {
	cfg := config.New(map[string]any{"units": []any{"cpu:1", "mem:256"}})
	assert.Equal(t, []string{"cpu:1", "mem:256"}, cfg.StringSlice("units", nil))
	assert.Nil(t, cfg.StringSlice("missing", nil))
}

func TestSub(t *testing.T) {
	cfg := config.New(map[string]any{"nested": map[string]any{"a": "b"}})
	sub := cfg.Sub("nested")
	assert.Equal(t, "b", sub.String("a", ""))
	assert.False(t, cfg.Sub("missing").Has("a"))
}

func TestFromFileDetectsFormat(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "setup.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("memoryBackend: sqlite\nsqlitePath: /tmp/orco.db\n"), 0o644))
	cfg, err := config.FromFile(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.String("memoryBackend", ""))

	jsonPath := filepath.Join(dir, "setup.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"memoryBackend":"memory"}`), 0o644))
	cfg, err = config.FromFile(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.String("memoryBackend", ""))

	_, err = config.FromFile(filepath.Join(dir, "setup.txt"))
	assert.Error(t, err)
}

func TestParseSetupDefaults(t *testing.T) {
	setup, err := config.ParseSetup(config.New(nil))
	require.NoError(t, err)
	assert.Equal(t, config.MemoryBackendInMemory, setup.MemoryBackend)
	assert.Equal(t, domain.Local, setup.SystemErrorDomain)
	assert.Nil(t, setup.DefaultExecutionUnits)
}

func TestParseSetupExplicit(t *testing.T) {
	cfg := config.New(map[string]any{
		"memoryBackend":         "sqlite",
		"sqlitePath":            "/var/orco/state.db",
		"systemErrorDomain":     "self",
		"defaultExecutionUnits": []any{"cpu:1"},
	})
	setup, err := config.ParseSetup(cfg)
	require.NoError(t, err)
	assert.Equal(t, config.MemoryBackendSQLite, setup.MemoryBackend)
	assert.Equal(t, "/var/orco/state.db", setup.SQLitePath)
	assert.Equal(t, domain.FromSelfContract, setup.SystemErrorDomain)
	assert.Equal(t, []string{"cpu:1"}, setup.DefaultExecutionUnits)
}

func TestParseSetupRejectsUnknownBackend(t *testing.T) {
	_, err := config.ParseSetup(config.New(map[string]any{"memoryBackend": "redis"}))
	assert.Error(t, err)
}

func TestParseSetupLiteralDomain(t *testing.T) {
	setup, err := config.ParseSetup(config.New(map[string]any{"systemErrorDomain": "tenant-42"}))
	require.NoError(t, err)
	assert.Equal(t, domain.Literal("tenant-42"), setup.SystemErrorDomain)
}
