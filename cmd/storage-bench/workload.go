package main

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/KevoDB/lsmkv/pkg/engine"
)

// Workload names accepted by -workloads, in the order they run.
const (
	WorkloadWrite  = "write"
	WorkloadRead   = "read"
	WorkloadScan   = "scan"
	WorkloadMixed  = "mixed"
	WorkloadDelete = "delete"
)

var allWorkloads = []string{WorkloadWrite, WorkloadRead, WorkloadScan, WorkloadMixed, WorkloadDelete}

// WorkloadOptions configures a single benchmark run over one engine.
type WorkloadOptions struct {
	NumKeys    int
	ValueSize  int
	ScanSize   int
	Sequential bool
	ReadRatio  float64
	Seed       int64
}

// runner executes the workloads against one engine. Keys written by the
// write workload are remembered so the later workloads hit existing data.
type runner struct {
	e     *engine.Engine
	opts  WorkloadOptions
	rng   *rand.Rand
	keys  []uint64
	value []byte
}

func newRunner(e *engine.Engine, opts WorkloadOptions) *runner {
	value := make([]byte, opts.ValueSize)
	for i := range value {
		value[i] = byte('a' + i%26)
	}
	return &runner{
		e:     e,
		opts:  opts,
		rng:   rand.New(rand.NewSource(opts.Seed)),
		value: value,
	}
}

func (o WorkloadOptions) keyMode() string {
	if o.Sequential {
		return "sequential"
	}
	return "random"
}

// nextKey returns the i-th key to write.
func (r *runner) nextKey(i int) uint64 {
	if r.opts.Sequential {
		return uint64(i)
	}
	return r.rng.Uint64()
}

func (r *runner) run(workload string) (BenchmarkResult, error) {
	result := BenchmarkResult{
		BenchmarkType: workload,
		NumKeys:       r.opts.NumKeys,
		ValueSize:     r.opts.ValueSize,
		Mode:          r.opts.keyMode(),
		Timestamp:     time.Now(),
	}

	var err error
	start := time.Now()
	switch workload {
	case WorkloadWrite:
		err = r.write(&result)
	case WorkloadRead:
		err = r.read(&result)
	case WorkloadScan:
		err = r.scan(&result)
	case WorkloadMixed:
		err = r.mixed(&result)
	case WorkloadDelete:
		err = r.delete(&result)
	default:
		return result, fmt.Errorf("unknown workload %q", workload)
	}
	if err != nil {
		return result, fmt.Errorf("%s workload: %w", workload, err)
	}

	elapsed := time.Since(start)
	result.Duration = elapsed.Seconds()
	if result.Operations > 0 && elapsed > 0 {
		result.Throughput = float64(result.Operations) / elapsed.Seconds()
		result.Latency = float64(elapsed.Microseconds()) / float64(result.Operations)
	}
	return result, nil
}

func (r *runner) write(result *BenchmarkResult) error {
	for i := 0; i < r.opts.NumKeys; i++ {
		key := r.nextKey(i)
		if err := r.e.Put(key, r.value); err != nil {
			return err
		}
		r.keys = append(r.keys, key)
		result.Operations++
	}
	return nil
}

// read looks up random written keys. Misses are counted, not failures.
func (r *runner) read(result *BenchmarkResult) error {
	if len(r.keys) == 0 {
		return errors.New("nothing written yet")
	}

	hits := 0
	for i := 0; i < r.opts.NumKeys; i++ {
		_, err := r.e.Get(r.keys[r.rng.Intn(len(r.keys))])
		switch {
		case err == nil:
			hits++
		case errors.Is(err, engine.ErrKeyNotFound):
		default:
			return err
		}
		result.Operations++
	}
	result.HitRate = float64(hits) / float64(result.Operations) * 100
	return nil
}

// scan runs range scans starting at random written keys. Operations counts
// the scans; EntriesPerSec is filled in from the entries they returned.
func (r *runner) scan(result *BenchmarkResult) error {
	if len(r.keys) == 0 {
		return errors.New("nothing written yet")
	}

	scans := r.opts.NumKeys / r.opts.ScanSize
	if scans < 1 {
		scans = 1
	}

	start := time.Now()
	entries := 0
	for i := 0; i < scans; i++ {
		span := uint64(r.opts.ScanSize)
		if !r.opts.Sequential {
			// random keys are sparse, scan a proportional slice of the key space
			if r.opts.ScanSize >= len(r.keys) {
				span = ^uint64(0)
			} else {
				span *= ^uint64(0) / uint64(len(r.keys))
			}
		}
		lo := r.keys[r.rng.Intn(len(r.keys))]
		hi := lo + span
		if hi < lo {
			hi = ^uint64(0)
		}

		found, err := r.e.Scan(lo, hi)
		if err != nil {
			return err
		}
		entries += len(found)
		result.Operations++
	}
	if elapsed := time.Since(start); elapsed > 0 {
		result.EntriesPerSec = float64(entries) / elapsed.Seconds()
	}
	return nil
}

// mixed interleaves reads and overwrites of written keys.
func (r *runner) mixed(result *BenchmarkResult) error {
	if len(r.keys) == 0 {
		return errors.New("nothing written yet")
	}

	result.ReadRatio = r.opts.ReadRatio * 100
	result.WriteRatio = 100 - result.ReadRatio
	for i := 0; i < r.opts.NumKeys; i++ {
		key := r.keys[r.rng.Intn(len(r.keys))]
		if r.rng.Float64() < r.opts.ReadRatio {
			if _, err := r.e.Get(key); err != nil && !errors.Is(err, engine.ErrKeyNotFound) {
				return err
			}
		} else if err := r.e.Put(key, r.value); err != nil {
			return err
		}
		result.Operations++
	}
	return nil
}

// delete removes every other written key.
func (r *runner) delete(result *BenchmarkResult) error {
	hits := 0
	for i := 0; i < len(r.keys); i += 2 {
		existed, err := r.e.Delete(r.keys[i])
		if err != nil {
			return err
		}
		if existed {
			hits++
		}
		result.Operations++
	}
	if result.Operations > 0 {
		result.HitRate = float64(hits) / float64(result.Operations) * 100
	}
	return nil
}
