package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/compaction"
	"github.com/KevoDB/lsmkv/pkg/config"
	"github.com/KevoDB/lsmkv/pkg/engine"
	"github.com/KevoDB/lsmkv/pkg/memtable"
	"github.com/spf13/afero"
)

// profiles are the level configurations the benchmark can compare.
var profiles = map[string][]config.LevelSpec{
	"default": config.DefaultLevels(),
	"tiering": {
		{ID: 0, Limit: 4, Policy: compaction.Tiering},
		{ID: 1, Limit: 4, Policy: compaction.Tiering},
		{ID: 2, Limit: 4, Policy: compaction.Tiering},
		{ID: 3, Limit: 64, Policy: compaction.Tiering},
	},
	"leveling": {
		{ID: 0, Limit: 2, Policy: compaction.Tiering},
		{ID: 1, Limit: 4, Policy: compaction.Leveling},
		{ID: 2, Limit: 16, Policy: compaction.Leveling},
		{ID: 3, Limit: 64, Policy: compaction.Leveling},
	},
}

func profileNames() []string {
	names := make([]string, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Matrix is one benchmark plan: every workload runs once per backend and
// level profile, each pair on a fresh directory.
type Matrix struct {
	Fs            afero.Fs
	BaseDir       string
	Backends      []memtable.Backend
	Profiles      []string
	Workloads     []string
	Workload      WorkloadOptions
	MemTableBytes int64
	Logger        log.Logger
}

// Run executes the matrix and returns one result per workload run.
func (m Matrix) Run() ([]BenchmarkResult, error) {
	var results []BenchmarkResult

	for _, backend := range m.Backends {
		for _, profile := range m.Profiles {
			levels, ok := profiles[profile]
			if !ok {
				return results, fmt.Errorf("unknown level profile %q (known: %s)", profile, strings.Join(profileNames(), ", "))
			}

			dir := filepath.Join(m.BaseDir, fmt.Sprintf("%s-%s", backend, profile))
			if err := m.Fs.RemoveAll(dir); err != nil {
				return results, fmt.Errorf("failed to clean %s: %w", dir, err)
			}

			cfg := config.NewDefaultConfig(dir)
			cfg.Levels = levels
			cfg.MemTableBackend = string(backend)
			if m.MemTableBytes > 0 {
				cfg.MemTableCapacity = m.MemTableBytes
			}

			run, err := m.runOne(cfg, backend, profile)
			results = append(results, run...)
			if err != nil {
				return results, err
			}
		}
	}
	return results, nil
}

func (m Matrix) runOne(cfg *config.Config, backend memtable.Backend, profile string) ([]BenchmarkResult, error) {
	logger := m.Logger
	if logger == nil {
		logger = log.NewDiscardLogger()
	}

	e, err := engine.NewEngine(cfg, engine.WithFs(m.Fs), engine.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to open engine for %s/%s: %w", backend, profile, err)
	}
	defer e.Close()

	r := newRunner(e, m.Workload)
	var results []BenchmarkResult
	for _, workload := range m.Workloads {
		result, err := r.run(workload)
		if err != nil {
			return results, fmt.Errorf("%s/%s: %w", backend, profile, err)
		}
		result.Backend = string(backend)
		result.Profile = profile

		stats := e.GetStats()
		result.Flushes = toUint64(stats["flush_count"])
		result.Merges = toUint64(stats["compaction_count"])
		result.Blocks = toUint64(stats["blocks"])

		results = append(results, result)
	}
	return results, nil
}

func toUint64(v interface{}) uint64 {
	switch n := v.(type) {
	case uint64:
		return n
	case int64:
		return uint64(n)
	case int:
		return uint64(n)
	default:
		return 0
	}
}
