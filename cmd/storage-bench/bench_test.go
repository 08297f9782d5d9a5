package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func smallMatrix(fs afero.Fs) Matrix {
	return Matrix{
		Fs:            fs,
		BaseDir:       "/bench",
		Backends:      memtable.Backends,
		Profiles:      profileNames(),
		Workloads:     allWorkloads,
		MemTableBytes: 512,
		Workload: WorkloadOptions{
			NumKeys:    200,
			ValueSize:  16,
			ScanSize:   10,
			Sequential: true,
			ReadRatio:  0.5,
			Seed:       42,
		},
	}
}

func TestMatrixRun(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := smallMatrix(fs)

	results, err := m.Run()
	require.NoError(t, err)
	require.Len(t, results, len(memtable.Backends)*len(profiles)*len(allWorkloads))

	for _, r := range results {
		assert.Positive(t, r.Operations, "%s/%s/%s", r.Backend, r.Profile, r.BenchmarkType)
		assert.Equal(t, "sequential", r.Mode)

		switch r.BenchmarkType {
		case WorkloadWrite:
			assert.Equal(t, 200, r.Operations)
			assert.Positive(t, r.Flushes, "a 512 byte memtable must flush during %s/%s", r.Backend, r.Profile)
		case WorkloadRead:
			assert.Equal(t, 100.0, r.HitRate)
		case WorkloadScan:
			assert.Equal(t, 20, r.Operations)
		case WorkloadMixed:
			assert.Equal(t, 50.0, r.ReadRatio)
			assert.Equal(t, 50.0, r.WriteRatio)
		case WorkloadDelete:
			assert.Equal(t, 100, r.Operations)
			assert.Equal(t, 100.0, r.HitRate)
		}
	}

	// each backend and profile pair gets its own directory
	exists, err := afero.DirExists(fs, "/bench/avl-leveling")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestMatrixRandomKeys(t *testing.T) {
	m := smallMatrix(afero.NewMemMapFs())
	m.Backends = []memtable.Backend{memtable.BackendSkipList}
	m.Profiles = []string{"default"}
	m.Workload.Sequential = false

	results, err := m.Run()
	require.NoError(t, err)
	require.Len(t, results, len(allWorkloads))
	assert.Equal(t, "random", results[0].Mode)
	assert.Equal(t, 100.0, results[1].HitRate)
}

func TestMatrixUnknownProfile(t *testing.T) {
	m := smallMatrix(afero.NewMemMapFs())
	m.Profiles = []string{"bogus"}

	_, err := m.Run()
	assert.ErrorContains(t, err, "unknown level profile")
}

func TestWorkloadNeedsWrite(t *testing.T) {
	m := smallMatrix(afero.NewMemMapFs())
	m.Backends = []memtable.Backend{memtable.BackendAVL}
	m.Profiles = []string{"default"}
	m.Workloads = []string{WorkloadRead}

	_, err := m.Run()
	assert.ErrorContains(t, err, "nothing written yet")
}

func TestResultCSV(t *testing.T) {
	fs := afero.NewMemMapFs()
	m := smallMatrix(fs)
	m.Backends = []memtable.Backend{memtable.BackendRBTree}
	m.Profiles = []string{"tiering"}

	results, err := m.Run()
	require.NoError(t, err)

	require.NoError(t, SaveResultCSV(fs, results, "/out/results.csv"))
	loaded, err := LoadResultCSV(fs, "/out/results.csv")
	require.NoError(t, err)
	require.Len(t, loaded, len(results))

	for i := range results {
		assert.Equal(t, results[i].BenchmarkType, loaded[i].BenchmarkType)
		assert.Equal(t, "rbtree", loaded[i].Backend)
		assert.Equal(t, "tiering", loaded[i].Profile)
		assert.Equal(t, results[i].Operations, loaded[i].Operations)
		assert.Equal(t, results[i].Flushes, loaded[i].Flushes)
		assert.Equal(t, results[i].Blocks, loaded[i].Blocks)
	}
}

func TestPrintResultTable(t *testing.T) {
	var out bytes.Buffer
	PrintResultTable(&out, nil)
	assert.Equal(t, "No results to display\n", out.String())

	out.Reset()
	PrintResultTable(&out, []BenchmarkResult{
		{BenchmarkType: WorkloadRead, Backend: "avl", Profile: "default", HitRate: 50, Latency: 2500},
		{BenchmarkType: WorkloadMixed, Backend: "avl", Profile: "default", ReadRatio: 80, WriteRatio: 20},
	})
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[3], "50.00%")
	assert.Contains(t, lines[3], "2.50ms")
	assert.Contains(t, lines[4], "R:80/W:20")
}

func TestSplitList(t *testing.T) {
	all := []string{"a", "b"}
	assert.Equal(t, []string{"a", "b"}, splitList("all", all))
	assert.Equal(t, []string{"b", "a", "b"}, splitList(" B , all,", all))
	assert.Empty(t, splitList("", all))
}
