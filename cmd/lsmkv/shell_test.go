package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/config"
	"github.com/KevoDB/lsmkv/pkg/engine"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestShell(t *testing.T) (*shell, *bytes.Buffer) {
	t.Helper()
	fs := afero.NewMemMapFs()
	eng, err := engine.NewEngine(config.NewDefaultConfig("/db"),
		engine.WithFs(fs), engine.WithLogger(log.NewDiscardLogger()))
	require.NoError(t, err)
	t.Cleanup(func() { eng.Close() })

	var out bytes.Buffer
	return newShell(eng, fs, &out), &out
}

// run executes each line and returns what the shell printed.
func run(t *testing.T, sh *shell, out *bytes.Buffer, lines ...string) string {
	t.Helper()
	out.Reset()
	for _, line := range lines {
		require.NoError(t, sh.execute(line))
	}
	return out.String()
}

func TestShellPutGetDel(t *testing.T) {
	sh, out := newTestShell(t)

	assert.Equal(t, "Value stored\n", run(t, sh, out, "PUT 123 hello world"))
	assert.Equal(t, "hello world\n", run(t, sh, out, "get 123"))
	assert.Equal(t, "Key deleted\n", run(t, sh, out, "DEL 123"))
	assert.Equal(t, "Key not found\n", run(t, sh, out, "GET 123"))
	assert.Equal(t, "Key not found\n", run(t, sh, out, "DEL 123"))
}

func TestShellScan(t *testing.T) {
	sh, out := newTestShell(t)
	run(t, sh, out, "PUT 1 a", "PUT 2 b", ".flush", "PUT 3 c", "DEL 2")

	assert.Equal(t, "1: a\n3: c\n2 entries found\n", run(t, sh, out, "SCAN"))
	assert.Equal(t, "3: c\n1 entries found\n", run(t, sh, out, "SCAN 2 9"))
	assert.Contains(t, run(t, sh, out, "SCAN 9 2"), engine.ErrInvalidRange.Error())
}

func TestShellErrors(t *testing.T) {
	sh, out := newTestShell(t)

	assert.Contains(t, run(t, sh, out, "PUT abc v"), "invalid key")
	assert.Contains(t, run(t, sh, out, "PUT 1"), "usage: PUT")
	assert.Contains(t, run(t, sh, out, "GET"), "usage: GET")
	assert.Contains(t, run(t, sh, out, "FROB 1"), "unknown command")
	assert.Contains(t, run(t, sh, out, "PUT 1 ~DELETED~"), engine.ErrReservedValue.Error())
	assert.Empty(t, run(t, sh, out, "   "))
}

func TestShellMaintenance(t *testing.T) {
	sh, out := newTestShell(t)
	run(t, sh, out, "PUT 1 a")

	assert.Contains(t, run(t, sh, out, ".flush"), "Memtable flushed")
	assert.Equal(t, "Compaction ran 0 merges\n", run(t, sh, out, ".compact"))

	levels := run(t, sh, out, ".levels")
	lines := strings.Split(strings.TrimSpace(levels), "\n")
	require.Len(t, lines, 1+len(config.DefaultLevels()))
	assert.Contains(t, lines[1], "Tiering")
	assert.Equal(t, []string{"0", "Tiering", "2", "1", "1"}, strings.Fields(lines[1])[:5])

	assert.Contains(t, run(t, sh, out, ".stats"), "put_ops")

	filtered := run(t, sh, out, ".stats memtable")
	assert.Contains(t, filtered, "memtable_backend")
	assert.NotContains(t, filtered, "put_ops")
	assert.Contains(t, run(t, sh, out, ".stats a b"), "usage: .stats")

	assert.Equal(t, "Store reset\n", run(t, sh, out, ".reset"))
	assert.Equal(t, "Key not found\n", run(t, sh, out, "GET 1"))
}

func TestShellExportImport(t *testing.T) {
	sh, out := newTestShell(t)
	run(t, sh, out, "PUT 1 one", "PUT 2 two", ".flush", "PUT 3 three")

	assert.Contains(t, run(t, sh, out, ".export /snap.zst"), "3 entries")
	assert.Contains(t, run(t, sh, out, ".export /snap.raw none"), "codec none")
	assert.Contains(t, run(t, sh, out, ".export /snap.x lz4"), "unknown compression codec")

	run(t, sh, out, ".reset")
	assert.Contains(t, run(t, sh, out, ".import /snap.zst"), "Imported 3 entries")
	assert.Equal(t, "1: one\n2: two\n3: three\n3 entries found\n", run(t, sh, out, "SCAN"))

	assert.Contains(t, run(t, sh, out, ".import /missing"), "Error:")
}

func TestShellExit(t *testing.T) {
	sh, _ := newTestShell(t)
	assert.ErrorIs(t, sh.execute(".exit"), errExit)
	assert.ErrorIs(t, sh.execute(".QUIT"), errExit)
}

func TestBuildConfig(t *testing.T) {
	// godotenv never overrides a variable that is already set, even to ""
	for _, key := range []string{config.EnvDataDir, config.EnvMemTableBackend, config.EnvMemTableCapacity, config.EnvLevelConfig, config.EnvLogLevel} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}

	dir := t.TempDir()
	env := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(env, []byte("LSMKV_MEMTABLE_BACKEND=avl\nLSMKV_MEMTABLE_CAPACITY=4096\n"), 0644))

	cfg, err := buildConfig(Options{DataDir: dir, EnvFile: env})
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, "avl", cfg.MemTableBackend)
	assert.Equal(t, int64(4096), cfg.MemTableCapacity)

	cfg, err = buildConfig(Options{DataDir: dir, EnvFile: env, Backend: "skl"})
	require.NoError(t, err)
	assert.Equal(t, "skiplist", cfg.MemTableBackend)

	_, err = buildConfig(Options{DataDir: dir, EnvFile: env, Backend: "btree"})
	assert.Error(t, err)
}
