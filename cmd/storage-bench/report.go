package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/afero"
)

// BenchmarkResult stores the results of one workload run
type BenchmarkResult struct {
	BenchmarkType string
	Backend       string
	Profile       string
	NumKeys       int
	ValueSize     int
	Mode          string
	Operations    int
	Duration      float64
	Throughput    float64
	Latency       float64
	HitRate       float64 // For read and delete benchmarks
	EntriesPerSec float64 // For scan benchmarks
	ReadRatio     float64 // For mixed benchmarks
	WriteRatio    float64 // For mixed benchmarks
	Flushes       uint64
	Merges        uint64
	Blocks        uint64
	Timestamp     time.Time
}

var csvHeader = []string{
	"Timestamp", "BenchmarkType", "Backend", "Profile", "NumKeys", "ValueSize", "Mode",
	"Operations", "Duration", "Throughput", "Latency", "HitRate",
	"EntriesPerSec", "ReadRatio", "WriteRatio", "Flushes", "Merges", "Blocks",
}

// SaveResultCSV saves benchmark results to a CSV file
func SaveResultCSV(fs afero.Fs, results []BenchmarkResult, filename string) error {
	if err := fs.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return err
	}

	file, err := fs.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	if err := writer.Write(csvHeader); err != nil {
		return err
	}

	for _, r := range results {
		record := []string{
			r.Timestamp.Format(time.RFC3339),
			r.BenchmarkType,
			r.Backend,
			r.Profile,
			strconv.Itoa(r.NumKeys),
			strconv.Itoa(r.ValueSize),
			r.Mode,
			strconv.Itoa(r.Operations),
			fmt.Sprintf("%.2f", r.Duration),
			fmt.Sprintf("%.2f", r.Throughput),
			fmt.Sprintf("%.3f", r.Latency),
			fmt.Sprintf("%.2f", r.HitRate),
			fmt.Sprintf("%.2f", r.EntriesPerSec),
			fmt.Sprintf("%.1f", r.ReadRatio),
			fmt.Sprintf("%.1f", r.WriteRatio),
			strconv.FormatUint(r.Flushes, 10),
			strconv.FormatUint(r.Merges, 10),
			strconv.FormatUint(r.Blocks, 10),
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

// LoadResultCSV loads benchmark results from a CSV file
func LoadResultCSV(fs afero.Fs, filename string) ([]BenchmarkResult, error) {
	file, err := fs.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	records, err := csv.NewReader(file).ReadAll()
	if err != nil {
		return nil, err
	}

	// Skip header
	if len(records) <= 1 {
		return []BenchmarkResult{}, nil
	}
	records = records[1:]

	results := make([]BenchmarkResult, 0, len(records))
	for _, record := range records {
		if len(record) < len(csvHeader) {
			continue
		}

		timestamp, _ := time.Parse(time.RFC3339, record[0])
		numKeys, _ := strconv.Atoi(record[4])
		valueSize, _ := strconv.Atoi(record[5])
		operations, _ := strconv.Atoi(record[7])
		duration, _ := strconv.ParseFloat(record[8], 64)
		throughput, _ := strconv.ParseFloat(record[9], 64)
		latency, _ := strconv.ParseFloat(record[10], 64)
		hitRate, _ := strconv.ParseFloat(record[11], 64)
		entriesPerSec, _ := strconv.ParseFloat(record[12], 64)
		readRatio, _ := strconv.ParseFloat(record[13], 64)
		writeRatio, _ := strconv.ParseFloat(record[14], 64)
		flushes, _ := strconv.ParseUint(record[15], 10, 64)
		merges, _ := strconv.ParseUint(record[16], 10, 64)
		blocks, _ := strconv.ParseUint(record[17], 10, 64)

		results = append(results, BenchmarkResult{
			Timestamp:     timestamp,
			BenchmarkType: record[1],
			Backend:       record[2],
			Profile:       record[3],
			NumKeys:       numKeys,
			ValueSize:     valueSize,
			Mode:          record[6],
			Operations:    operations,
			Duration:      duration,
			Throughput:    throughput,
			Latency:       latency,
			HitRate:       hitRate,
			EntriesPerSec: entriesPerSec,
			ReadRatio:     readRatio,
			WriteRatio:    writeRatio,
			Flushes:       flushes,
			Merges:        merges,
			Blocks:        blocks,
		})
	}

	return results, nil
}

const tableRule = "+----------+----------+----------+------------+-----------+--------------+---------+--------+--------+"

// PrintResultTable prints a formatted table of benchmark results
func PrintResultTable(w io.Writer, results []BenchmarkResult) {
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	fmt.Fprintln(w, tableRule)
	fmt.Fprintln(w, "| Workload | Backend  | Profile  | Throughput | Latency   | Hit Rate     | Flushes | Merges | Blocks |")
	fmt.Fprintln(w, tableRule)

	for _, r := range results {
		hitRateStr := "-"
		switch r.BenchmarkType {
		case WorkloadRead, WorkloadDelete:
			hitRateStr = fmt.Sprintf("%.2f%%", r.HitRate)
		case WorkloadMixed:
			hitRateStr = fmt.Sprintf("R:%.0f/W:%.0f", r.ReadRatio, r.WriteRatio)
		}

		latencyUnit := "us"
		latency := r.Latency
		if latency > 1000 {
			latencyUnit = "ms"
			latency /= 1000
		}

		fmt.Fprintf(w, "| %-8s | %-8s | %-8s | %10.2f | %7.2f%s | %12s | %7d | %6d | %6d |\n",
			r.BenchmarkType,
			r.Backend,
			r.Profile,
			r.Throughput,
			latency, latencyUnit,
			hitRateStr,
			r.Flushes,
			r.Merges,
			r.Blocks)
	}
	fmt.Fprintln(w, tableRule)
}
