package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/lsmkv/pkg/compaction"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/KevoDB/lsmkv/pkg/sstable"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	EnvDataDir, EnvLevelConfig, EnvMemTableBackend, EnvMemTableCapacity,
	EnvSkipListMaxLevel, EnvSkipListProbability, EnvBlockCapacity,
	EnvFlushOnClose, EnvLogLevel,
}

// clearEnv unsets every LSMKV_* variable for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		if prev, ok := os.LookupEnv(key); ok {
			t.Cleanup(func() { os.Setenv(key, prev) })
		} else {
			t.Cleanup(func() { os.Unsetenv(key) })
		}
		os.Unsetenv(key)
	}
}

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig("/tmp/testdb")

	assert.Equal(t, CurrentManifestVersion, cfg.Version)
	assert.Equal(t, "/tmp/testdb", cfg.DataDir)
	assert.Equal(t, DefaultLevels(), cfg.Levels)
	assert.Equal(t, "rbtree", cfg.MemTableBackend)
	assert.Equal(t, memtable.BackendRBTree, cfg.Backend())
	assert.Equal(t, int64(sstable.DefaultCapacity), cfg.MemTableCapacity)
	assert.Equal(t, sstable.DefaultCapacity, cfg.BlockCapacity)
	assert.Equal(t, 12, cfg.SkipListMaxLevel)
	assert.Equal(t, 0.25, cfg.SkipListProbability)
	assert.True(t, cfg.FlushOnClose)
	require.NoError(t, cfg.Validate())
}

func TestConfigValidate(t *testing.T) {
	testCases := []struct {
		name     string
		mutate   func(*Config)
		expected string
	}{
		{"invalid version", func(c *Config) { c.Version = 0 }, "invalid version 0"},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, "data directory not specified"},
		{"no levels", func(c *Config) { c.Levels = nil }, "no levels configured"},
		{"misnumbered levels", func(c *Config) { c.Levels[1].ID = 5 }, "level 1 has id 5"},
		{"zero limit", func(c *Config) { c.Levels[0].Limit = 0 }, "block limit must be at least 1"},
		{"unknown backend", func(c *Config) { c.MemTableBackend = "btree" }, "unknown memtable backend"},
		{"zero capacity", func(c *Config) { c.MemTableCapacity = 0 }, "MemTable capacity must be positive"},
		{"zero skip list level", func(c *Config) { c.SkipListMaxLevel = 0 }, "max level must be positive"},
		{"probability one", func(c *Config) { c.SkipListProbability = 1 }, "probability must be in (0, 1)"},
		{"zero block capacity", func(c *Config) { c.BlockCapacity = 0 }, "block capacity must be positive"},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log level"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig("/tmp/testdb")
			tc.mutate(cfg)

			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tc.expected)
		})
	}

	t.Run("level file replaces inline levels", func(t *testing.T) {
		cfg := NewDefaultConfig("/tmp/testdb")
		cfg.Levels = nil
		cfg.LevelConfigPath = "/etc/levels.conf"
		assert.NoError(t, cfg.Validate())
	})
}

func TestResolveLevels(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/levels.conf", []byte("0 3 Leveling\n"), 0o644))

	cfg := NewDefaultConfig("/db")
	levels, err := cfg.ResolveLevels(fs)
	require.NoError(t, err)
	assert.Equal(t, DefaultLevels(), levels)

	cfg.LevelConfigPath = "/levels.conf"
	levels, err = cfg.ResolveLevels(fs)
	require.NoError(t, err)
	assert.Equal(t, []LevelSpec{{ID: 0, Limit: 3, Policy: compaction.Leveling}}, levels)

	cfg.LevelConfigPath = "/missing.conf"
	_, err = cfg.ResolveLevels(fs)
	assert.Error(t, err)
}

func TestResolveLevelsPrefersManifest(t *testing.T) {
	fs := afero.NewMemMapFs()
	created := []LevelSpec{{ID: 0, Limit: 2, Policy: compaction.Tiering}, {ID: 1, Limit: 3, Policy: compaction.Leveling}}

	cfg := NewDefaultConfig("/db")
	require.NoError(t, cfg.SaveManifest(fs, created))

	levels, err := cfg.ResolveLevels(fs)
	require.NoError(t, err)
	assert.Equal(t, created, levels, "inline levels give way to the manifest")

	require.NoError(t, afero.WriteFile(fs, "/same.conf", []byte("0 2 Tiering\n1 3 Leveling\n"), 0o644))
	cfg.LevelConfigPath = "/same.conf"
	levels, err = cfg.ResolveLevels(fs)
	require.NoError(t, err)
	assert.Equal(t, created, levels)

	require.NoError(t, afero.WriteFile(fs, "/other.conf", []byte("0 2 Tiering\n"), 0o644))
	cfg.LevelConfigPath = "/other.conf"
	_, err = cfg.ResolveLevels(fs)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	require.NoError(t, afero.WriteFile(fs, "/db/MANIFEST", []byte("{not json"), 0o644))
	cfg.LevelConfigPath = ""
	_, err = cfg.ResolveLevels(fs)
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestConfigManifestSaveLoad(t *testing.T) {
	fs := afero.NewMemMapFs()

	_, err := LoadConfigFromManifest(fs, "/db")
	require.ErrorIs(t, err, ErrManifestNotFound)

	cfg := NewDefaultConfig("/db")
	cfg.MemTableBackend = "skiplist"
	cfg.LevelConfigPath = "/levels.conf"
	levels := []LevelSpec{{ID: 0, Limit: 1, Policy: compaction.Tiering}, {ID: 1, Limit: 2, Policy: compaction.Leveling}}
	require.NoError(t, cfg.SaveManifest(fs, levels))

	data, err := afero.ReadFile(fs, filepath.Join("/db", DefaultManifestFileName))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"policy": "Leveling"`)

	loaded, err := LoadConfigFromManifest(fs, "/db")
	require.NoError(t, err)
	assert.Equal(t, "skiplist", loaded.MemTableBackend)
	assert.Equal(t, levels, loaded.Levels)
	assert.Empty(t, loaded.LevelConfigPath, "the manifest stores resolved levels")

	require.NoError(t, afero.WriteFile(fs, "/db/MANIFEST", []byte("{not json"), 0o644))
	_, err = LoadConfigFromManifest(fs, "/db")
	assert.ErrorIs(t, err, ErrInvalidManifest)
}

func TestConfigUpdate(t *testing.T) {
	cfg := NewDefaultConfig("/db")
	cfg.Update(func(c *Config) {
		c.MemTableBackend = "avl"
		c.FlushOnClose = false
	})
	assert.Equal(t, memtable.BackendAVL, cfg.Backend())
	assert.False(t, cfg.FlushOnClose)
}

func TestLoadEnv(t *testing.T) {
	clearEnv(t)

	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	content := strings.Join([]string{
		EnvMemTableBackend + "=skiplist",
		EnvMemTableCapacity + "=4096",
		EnvSkipListMaxLevel + "=8",
		EnvSkipListProbability + "=0.5",
		EnvBlockCapacity + "=1024",
		EnvFlushOnClose + "=false",
		EnvLogLevel + "=debug",
		EnvLevelConfig + "=/etc/lsmkv/levels.conf",
	}, "\n")
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o644))
	t.Setenv(EnvDataDir, "/from/environment")

	cfg := NewDefaultConfig("/db")
	require.NoError(t, cfg.LoadEnv(envFile))

	assert.Equal(t, "/from/environment", cfg.DataDir)
	assert.Equal(t, memtable.BackendSkipList, cfg.Backend())
	assert.Equal(t, int64(4096), cfg.MemTableCapacity)
	assert.Equal(t, 8, cfg.SkipListMaxLevel)
	assert.Equal(t, 0.5, cfg.SkipListProbability)
	assert.Equal(t, 1024, cfg.BlockCapacity)
	assert.False(t, cfg.FlushOnClose)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/etc/lsmkv/levels.conf", cfg.LevelConfigPath)
	require.NoError(t, cfg.Validate())
}

func TestLoadEnvMissingFileAndBadValues(t *testing.T) {
	clearEnv(t)

	cfg := NewDefaultConfig("/db")
	require.NoError(t, cfg.LoadEnv(filepath.Join(t.TempDir(), "absent.env")))
	assert.Equal(t, NewDefaultConfig("/db").MemTableBackend, cfg.MemTableBackend)

	t.Setenv(EnvMemTableCapacity, "lots")
	err := cfg.LoadEnv("")
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), EnvMemTableCapacity)
}
