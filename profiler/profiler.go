// Package profiler - Runtime and scan pipeline statistics.
package profiler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"time"
)

// MetricsCollector defines the interface for collecting custom metrics.
type MetricsCollector interface {
	CollectMetrics() map[string]float64
}

// MetricsCollectorFunc adapts a function to MetricsCollector.
type MetricsCollectorFunc func() map[string]float64

// CollectMetrics calls f().
func (f MetricsCollectorFunc) CollectMetrics() map[string]float64 {
	return f()
}

// RuntimeProfiler tracks operation timings, event counters and sampled
// gauges, and optionally logs a periodic report.
//
// All methods are safe for concurrent use.
type RuntimeProfiler struct {
	reportInterval time.Duration
	sampleInterval time.Duration
	maxSamples     int
	logger         *slog.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.RWMutex
	startTime time.Time
	running   bool

	memStats runtime.MemStats

	customMetrics  map[string]*MetricTracker
	counters       map[string]int64
	collectors     []MetricsCollector
	operationTimes map[string]*TimeTracker
}

// MetricTracker tracks a rolling window of gauge samples.
type MetricTracker struct {
	values []float64
	sum    float64
	min    float64
	max    float64
	count  int64
}

// TimeTracker tracks a rolling window of operation durations.
type TimeTracker struct {
	durations []time.Duration
	totalTime time.Duration
	minTime   time.Duration
	maxTime   time.Duration
	count     int64
}

// ProfilingOptions configures the runtime profiler.
type ProfilingOptions struct {
	// ReportInterval specifies how often to log a report (default: 1m).
	ReportInterval time.Duration
	// SampleInterval specifies how often collectors are sampled (default: 1s).
	SampleInterval time.Duration
	// MaxSamples bounds every rolling window (default: 1000).
	MaxSamples int
	// Logger receives the periodic report (default: slog.Default()).
	Logger *slog.Logger
}

// NewRuntimeProfiler creates a new runtime profiler with the specified options.
//
// Arguments:
// - opts: Configuration options for the profiler
//
// Returns:
// - A configured RuntimeProfiler instance
func NewRuntimeProfiler(opts ProfilingOptions) *RuntimeProfiler {
	if opts.ReportInterval == 0 {
		opts.ReportInterval = time.Minute
	}
	if opts.SampleInterval == 0 {
		opts.SampleInterval = time.Second
	}
	if opts.MaxSamples == 0 {
		opts.MaxSamples = 1000
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &RuntimeProfiler{
		reportInterval: opts.ReportInterval,
		sampleInterval: opts.SampleInterval,
		maxSamples:     opts.MaxSamples,
		logger:         opts.Logger,
		ctx:            ctx,
		cancel:         cancel,
		startTime:      time.Now(),
		customMetrics:  make(map[string]*MetricTracker),
		counters:       make(map[string]int64),
		operationTimes: make(map[string]*TimeTracker),
	}
}

// Start begins sampling collectors and logging periodic reports. Calling it
// on a running profiler does nothing.
func (rp *RuntimeProfiler) Start() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	if rp.running {
		return
	}
	rp.running = true

	rp.wg.Add(2)
	go rp.sampleLoop()
	go func() {
		defer rp.wg.Done()

		ticker := time.NewTicker(rp.reportInterval)
		defer ticker.Stop()

		for {
			select {
			case <-rp.ctx.Done():
				return
			case <-ticker.C:
				rp.emitStatusReport()
			}
		}
	}()
}

// Stop stops the background goroutines and waits for them to exit.
func (rp *RuntimeProfiler) Stop() {
	rp.mu.Lock()
	if !rp.running {
		rp.mu.Unlock()
		return
	}
	rp.running = false
	rp.mu.Unlock()

	rp.cancel()
	rp.wg.Wait()
}

// AddMetricsCollector registers a collector sampled every SampleInterval.
//
// Arguments:
// - collector: An implementation of MetricsCollector interface
func (rp *RuntimeProfiler) AddMetricsCollector(collector MetricsCollector) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.collectors = append(rp.collectors, collector)
}

// RecordMetric records a gauge sample.
//
// Arguments:
// - name: The name of the metric
// - value: The metric value to record
func (rp *RuntimeProfiler) RecordMetric(name string, value float64) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.recordMetricLocked(name, value)
}

func (rp *RuntimeProfiler) recordMetricLocked(name string, value float64) {
	tracker, exists := rp.customMetrics[name]
	if !exists {
		tracker = &MetricTracker{min: value, max: value}
		rp.customMetrics[name] = tracker
	}

	tracker.values = append(tracker.values, value)
	if len(tracker.values) > rp.maxSamples {
		tracker.sum -= tracker.values[0]
		tracker.values = tracker.values[1:]
	}
	tracker.sum += value
	tracker.count++
	tracker.min = min(tracker.min, value)
	tracker.max = max(tracker.max, value)
}

// IncrementCounter adds one to a named event counter.
func (rp *RuntimeProfiler) IncrementCounter(name string) {
	rp.mu.Lock()
	defer rp.mu.Unlock()
	rp.counters[name]++
}

// StartOperation begins timing an operation.
//
// Arguments:
// - name: The name of the operation to track
//
// Returns:
// - A function to call when the operation completes
//
// @example
// done := profiler.StartOperation("detect")
// defer done()
func (rp *RuntimeProfiler) StartOperation(name string) func() {
	start := time.Now()
	return func() {
		rp.RecordOperation(name, time.Since(start))
	}
}

// RecordOperation records the duration of a completed operation.
func (rp *RuntimeProfiler) RecordOperation(name string, duration time.Duration) {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	tracker, exists := rp.operationTimes[name]
	if !exists {
		tracker = &TimeTracker{minTime: duration, maxTime: duration}
		rp.operationTimes[name] = tracker
	}

	tracker.durations = append(tracker.durations, duration)
	if len(tracker.durations) > rp.maxSamples {
		tracker.totalTime -= tracker.durations[0]
		tracker.durations = tracker.durations[1:]
	}
	tracker.totalTime += duration
	tracker.count++
	tracker.minTime = min(tracker.minTime, duration)
	tracker.maxTime = max(tracker.maxTime, duration)
}

func (rp *RuntimeProfiler) sampleLoop() {
	defer rp.wg.Done()

	ticker := time.NewTicker(rp.sampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rp.ctx.Done():
			return
		case <-ticker.C:
			rp.sample()
		}
	}
}

func (rp *RuntimeProfiler) sample() {
	rp.mu.Lock()
	collectors := append([]MetricsCollector(nil), rp.collectors...)
	rp.mu.Unlock()

	// Collectors may take their own locks; call them outside ours.
	samples := make([]map[string]float64, 0, len(collectors))
	for _, c := range collectors {
		samples = append(samples, c.CollectMetrics())
	}

	rp.mu.Lock()
	defer rp.mu.Unlock()
	for _, metrics := range samples {
		for name, value := range metrics {
			rp.recordMetricLocked(name, value)
		}
	}
}

func (rp *RuntimeProfiler) emitStatusReport() {
	s := rp.Snapshot()

	attrs := []any{
		"uptime", s.Uptime.Truncate(time.Second).String(),
		"goroutines", s.Goroutines,
		"heap_alloc", formatBytes(s.Memory.HeapAlloc),
		"gc_cycles", s.Memory.GCCycles,
	}
	for _, name := range sortedKeys(s.Counters) {
		attrs = append(attrs, name, s.Counters[name])
	}
	for _, name := range sortedKeys(s.Operations) {
		op := s.Operations[name]
		attrs = append(attrs, name+"_avg", op.Avg.Truncate(time.Microsecond).String(), name+"_count", op.Count)
	}
	rp.logger.Info("profiler report", attrs...)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func formatBytes(bytes uint64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := uint64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
