package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/pprof"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/KevoDB/lsmkv/pkg/common/log"
	"github.com/KevoDB/lsmkv/pkg/memtable"
)

const (
	defaultValueSize = 100
	defaultKeyCount  = 100000
)

var (
	// Command line flags
	workloads   = flag.String("workloads", "all", "Comma separated workloads to run (write, read, scan, mixed, delete, or all)")
	backends    = flag.String("backends", "all", "Comma separated memtable backends (avl, rbtree, skiplist, or all)")
	levelSets   = flag.String("profiles", "default", "Comma separated level profiles (default, tiering, leveling, or all)")
	numKeys     = flag.Int("keys", defaultKeyCount, "Number of keys to use")
	valueSize   = flag.Int("value-size", defaultValueSize, "Size of values in bytes")
	scanSize    = flag.Int("scan-size", 100, "Number of entries covered by each range scan")
	sequential  = flag.Bool("sequential", false, "Use sequential keys instead of random")
	readRatio   = flag.Float64("read-ratio", 0.8, "Fraction of reads in the mixed workload")
	seed        = flag.Int64("seed", 0, "Random seed, 0 picks one from the clock")
	memtableCap = flag.Int64("memtable-bytes", 0, "Memtable capacity in bytes, 0 keeps the default")
	dataDir     = flag.String("data-dir", "./benchmark-data", "Directory to store benchmark data")
	cpuProfile  = flag.String("cpu-profile", "", "Write CPU profile to file")
	resultsFile = flag.String("results", "", "CSV file to write results to (in addition to stdout)")
	verbose     = flag.Bool("v", false, "Log engine flushes and compactions")
)

func main() {
	flag.Parse()

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Could not create CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Could not start CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	m, err := buildMatrix(afero.NewOsFs())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		flag.Usage()
		os.Exit(2)
	}

	fmt.Printf("Benchmark Report (%s)\n", time.Now().Format(time.RFC3339))
	fmt.Printf("Keys: %d, Value Size: %d bytes, Mode: %s, Seed: %d\n\n",
		m.Workload.NumKeys, m.Workload.ValueSize, m.Workload.keyMode(), m.Workload.Seed)

	results, err := m.Run()
	PrintResultTable(os.Stdout, results)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Benchmark failed: %v\n", err)
	}

	if *resultsFile != "" && len(results) > 0 {
		if saveErr := SaveResultCSV(afero.NewOsFs(), results, *resultsFile); saveErr != nil {
			fmt.Fprintf(os.Stderr, "Failed to write results: %v\n", saveErr)
		} else {
			fmt.Printf("Results written to %s\n", *resultsFile)
		}
	}

	if err := m.Fs.RemoveAll(m.BaseDir); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to clean benchmark directory: %v\n", err)
	}
	if err != nil {
		os.Exit(1)
	}
}

// buildMatrix validates the flags and turns them into a benchmark plan.
func buildMatrix(fs afero.Fs) (Matrix, error) {
	m := Matrix{
		Fs:            fs,
		BaseDir:       *dataDir,
		MemTableBytes: *memtableCap,
		Workload: WorkloadOptions{
			NumKeys:    *numKeys,
			ValueSize:  *valueSize,
			ScanSize:   *scanSize,
			Sequential: *sequential,
			ReadRatio:  *readRatio,
			Seed:       *seed,
		},
	}
	if m.Workload.Seed == 0 {
		m.Workload.Seed = time.Now().UnixNano()
	}

	switch {
	case m.Workload.NumKeys < 1:
		return m, fmt.Errorf("-keys must be positive, got %d", m.Workload.NumKeys)
	case m.Workload.ValueSize < 0:
		return m, fmt.Errorf("-value-size must not be negative, got %d", m.Workload.ValueSize)
	case m.Workload.ScanSize < 1:
		return m, fmt.Errorf("-scan-size must be positive, got %d", m.Workload.ScanSize)
	case m.Workload.ReadRatio < 0 || m.Workload.ReadRatio > 1:
		return m, fmt.Errorf("-read-ratio must be within [0, 1], got %v", m.Workload.ReadRatio)
	case m.MemTableBytes < 0:
		return m, fmt.Errorf("-memtable-bytes must not be negative, got %d", m.MemTableBytes)
	}

	m.Workloads = splitList(*workloads, allWorkloads)
	for _, w := range m.Workloads {
		if !contains(allWorkloads, w) {
			return m, fmt.Errorf("unknown workload %q", w)
		}
	}

	backendNames := make([]string, len(memtable.Backends))
	for i, b := range memtable.Backends {
		backendNames[i] = string(b)
	}
	for _, name := range splitList(*backends, backendNames) {
		b, err := memtable.ParseBackend(name)
		if err != nil {
			return m, err
		}
		m.Backends = append(m.Backends, b)
	}

	m.Profiles = splitList(*levelSets, profileNames())
	for _, p := range m.Profiles {
		if _, ok := profiles[p]; !ok {
			return m, fmt.Errorf("unknown level profile %q", p)
		}
	}

	if *verbose {
		m.Logger = log.NewStandardLogger(log.WithLevel(log.LevelInfo), log.WithOutput(os.Stderr))
	}
	return m, nil
}

// splitList splits a comma separated flag value, expanding "all" to every
// known name.
func splitList(value string, all []string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.ToLower(strings.TrimSpace(part))
		switch part {
		case "":
		case "all":
			out = append(out, all...)
		default:
			out = append(out, part)
		}
	}
	return out
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
