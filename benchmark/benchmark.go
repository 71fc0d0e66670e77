package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"sync"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/scan"
)

// Suite manages and executes benchmark scenarios.
type Suite struct {
	options   scan.Options
	outputDir string
	logger    *slog.Logger
	now       func() time.Time

	mu        sync.RWMutex
	scenarios []Scenario
	results   []PerformanceMetrics
}

// NewSuite creates a new benchmark suite.
//
// Arguments:
//   - options: The scan service options every scenario runs with.
//   - outputDir: Where SaveResults writes its files.
//   - logger: Receives one line per finished scenario. Nil uses slog.Default.
//
// Returns:
//   - *Suite: The benchmark suite.
func NewSuite(options scan.Options, outputDir string, logger *slog.Logger) *Suite {
	if logger == nil {
		logger = slog.Default()
	}
	return &Suite{
		options:   options,
		outputDir: outputDir,
		logger:    logger,
		now:       time.Now,
	}
}

// AddScenario adds a test scenario to the benchmark suite.
func (bs *Suite) AddScenario(scenario Scenario) {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.scenarios = append(bs.scenarios, scenario)
}

// AddScenarioSet adds every scenario in set.
func (bs *Suite) AddScenarioSet(set *ScenarioSet) {
	for _, s := range set.Scenarios {
		bs.AddScenario(s)
	}
}

// RunScenario executes a single benchmark scenario.
//
// A fresh service is built per scenario around a detector that reports the
// scene's ground truth, so the timings cover decoding, pooling and
// measurement without model inference.
//
// Returns:
//   - *PerformanceMetrics: The measured throughput, latency and memory.
//   - error: A validation, encoding or setup error.
func (bs *Suite) RunScenario(ctx context.Context, scenario Scenario) (*PerformanceMetrics, error) {
	if err := scenario.Validate(); err != nil {
		return nil, err
	}

	scene := scenario.Scene()
	payload, err := images.Encode(scene.Image(), scenario.ImageFormat)
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	opts := bs.options
	opts.Workers = max(opts.Workers, scenario.Concurrency)
	svc, err := scan.NewService(scene.Detector(), opts, scan.WithLogger(discardLogger))
	if err != nil {
		return nil, fmt.Errorf("scenario %s: %w", scenario.Name, err)
	}

	for i := 0; i < scenario.WarmupRuns; i++ {
		svc.Scan(ctx, scan.Request{ScanID: fmt.Sprintf("%s-warmup-%d", scenario.Name, i), Image: payload})
	}

	var startMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&startMem)

	metrics := &PerformanceMetrics{
		Scenario:  scenario,
		Timestamp: bs.now(),
		Statuses:  make(map[string]int),
	}
	latencies := make([]float64, scenario.Iterations)

	jobs := make(chan int)
	var mu sync.Mutex
	var wg sync.WaitGroup
	start := time.Now()
	for w := 0; w < scenario.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				began := time.Now()
				result := svc.Scan(ctx, scan.Request{ScanID: fmt.Sprintf("%s-%d", scenario.Name, i), Image: payload})
				latencies[i] = float64(time.Since(began)) / float64(time.Millisecond)

				mu.Lock()
				metrics.Statuses[result.Status.String()]++
				metrics.LeafCount += len(result.Measurements)
				mu.Unlock()
			}
		}()
	}
	for i := 0; i < scenario.Iterations; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	metrics.TotalDuration = time.Since(start)

	var endMem runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&endMem)

	metrics.ScansPerSecond = float64(scenario.Iterations) / metrics.TotalDuration.Seconds()
	metrics.Latency = latencyStats(latencies)
	metrics.ErrorRate = 1 - float64(metrics.Statuses["ok"])/float64(scenario.Iterations)
	metrics.MemoryStats = MemoryMetrics{
		AllocBytes:      endMem.Alloc,
		TotalAllocBytes: endMem.TotalAlloc - startMem.TotalAlloc,
		SysBytes:        endMem.Sys,
		NumGC:           endMem.NumGC - startMem.NumGC,
		HeapAllocBytes:  endMem.HeapAlloc,
		HeapSysBytes:    endMem.HeapSys,
	}
	metrics.CPUStats = CPUMetrics{NumCPU: runtime.NumCPU()}

	return metrics, nil
}

// RunAllScenarios executes all configured benchmark scenarios. A failing
// scenario is logged and skipped.
func (bs *Suite) RunAllScenarios(ctx context.Context) error {
	bs.mu.RLock()
	scenarios := make([]Scenario, len(bs.scenarios))
	copy(scenarios, bs.scenarios)
	bs.mu.RUnlock()

	for _, scenario := range scenarios {
		if err := ctx.Err(); err != nil {
			return err
		}
		metrics, err := bs.RunScenario(ctx, scenario)
		if err != nil {
			bs.logger.Error("scenario failed", "scenario", scenario.Name, "error", err)
			continue
		}

		bs.mu.Lock()
		bs.results = append(bs.results, *metrics)
		bs.mu.Unlock()

		bs.logger.Info("scenario completed",
			"scenario", scenario.Name,
			"scans_per_second", metrics.ScansPerSecond,
			"p95_ms", metrics.Latency.P95,
			"error_rate", metrics.ErrorRate)
	}
	return nil
}

// SaveResults persists benchmark results to the output directory as a
// detailed JSON file and a CSV summary.
//
// Returns:
//   - string: The JSON results path.
//   - string: The CSV summary path.
//   - error: A filesystem or encoding error.
func (bs *Suite) SaveResults() (string, string, error) {
	results := bs.Results()

	if err := os.MkdirAll(bs.outputDir, 0o755); err != nil {
		return "", "", fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := bs.now().Format("2006-01-02_15-04-05")
	resultsFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_results_%s.json", timestamp))
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return "", "", fmt.Errorf("failed to marshal results: %w", err)
	}
	if err := os.WriteFile(resultsFile, data, 0o644); err != nil {
		return "", "", fmt.Errorf("failed to write results file: %w", err)
	}

	summaryFile := filepath.Join(bs.outputDir, fmt.Sprintf("benchmark_summary_%s.csv", timestamp))
	if err := saveSummaryCSV(summaryFile, results); err != nil {
		return "", "", fmt.Errorf("failed to save summary CSV: %w", err)
	}
	return resultsFile, summaryFile, nil
}

// Results returns all benchmark results.
func (bs *Suite) Results() []PerformanceMetrics {
	bs.mu.RLock()
	defer bs.mu.RUnlock()

	results := make([]PerformanceMetrics, len(bs.results))
	copy(results, bs.results)
	return results
}

var summaryHeader = []string{
	"scenario", "resolution", "format", "leaves", "concurrency",
	"scans_per_second", "mean_ms", "p50_ms", "p95_ms", "max_ms", "error_rate",
}

func saveSummaryCSV(filename string, results []PerformanceMetrics) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if err := w.Write(summaryHeader); err != nil {
		return err
	}
	for _, r := range results {
		row := []string{
			r.Scenario.Name,
			r.Scenario.Resolution.Name,
			string(r.Scenario.ImageFormat),
			strconv.Itoa(r.Scenario.Leaves),
			strconv.Itoa(r.Scenario.Concurrency),
			formatFloat(r.ScansPerSecond),
			formatFloat(r.Latency.Mean),
			formatFloat(r.Latency.P50),
			formatFloat(r.Latency.P95),
			formatFloat(r.Latency.Max),
			strconv.FormatFloat(r.ErrorRate, 'f', 4, 64),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// latencyStats summarises per-scan latencies in milliseconds.
func latencyStats(ms []float64) LatencyStats {
	if len(ms) == 0 {
		return LatencyStats{}
	}
	sorted := append([]float64(nil), ms...)
	sort.Float64s(sorted)
	return LatencyStats{
		Mean: stat.Mean(sorted, nil),
		P50:  stat.Quantile(0.5, stat.Empirical, sorted, nil),
		P95:  stat.Quantile(0.95, stat.Empirical, sorted, nil),
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
	}
}

var discardLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
