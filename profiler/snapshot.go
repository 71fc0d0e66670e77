package profiler

import (
	"runtime"
	"time"
)

// Snapshot is a point-in-time copy of the profiler statistics.
type Snapshot struct {
	Uptime     time.Duration             `json:"uptime"`
	Goroutines int                       `json:"goroutines"`
	CgoCalls   int64                     `json:"cgo_calls"`
	Memory     MemoryStats               `json:"memory"`
	Counters   map[string]int64          `json:"counters"`
	Metrics    map[string]MetricStats    `json:"metrics"`
	Operations map[string]OperationStats `json:"operations"`
}

// MemoryStats is the subset of runtime.MemStats worth reporting.
type MemoryStats struct {
	Alloc         uint64  `json:"alloc"`
	TotalAlloc    uint64  `json:"total_alloc"`
	Sys           uint64  `json:"sys"`
	HeapAlloc     uint64  `json:"heap_alloc"`
	HeapObjects   uint64  `json:"heap_objects"`
	GCCycles      uint32  `json:"gc_cycles"`
	GCCPUFraction float64 `json:"gc_cpu_fraction"`
}

// MetricStats summarises a gauge window.
type MetricStats struct {
	Avg     float64 `json:"avg"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Samples int     `json:"samples"`
}

// OperationStats summarises an operation timing window. Count is the
// lifetime total; the other fields cover the window.
type OperationStats struct {
	Avg   time.Duration `json:"avg"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Count int64         `json:"count"`
}

// Snapshot returns the current statistics.
//
// Returns:
// - A copy that is safe to read and serialise after the call.
func (rp *RuntimeProfiler) Snapshot() Snapshot {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	runtime.ReadMemStats(&rp.memStats)

	s := Snapshot{
		Uptime:     time.Since(rp.startTime),
		Goroutines: runtime.NumGoroutine(),
		CgoCalls:   runtime.NumCgoCall(),
		Memory: MemoryStats{
			Alloc:         rp.memStats.Alloc,
			TotalAlloc:    rp.memStats.TotalAlloc,
			Sys:           rp.memStats.Sys,
			HeapAlloc:     rp.memStats.HeapAlloc,
			HeapObjects:   rp.memStats.HeapObjects,
			GCCycles:      rp.memStats.NumGC,
			GCCPUFraction: rp.memStats.GCCPUFraction,
		},
		Counters:   make(map[string]int64, len(rp.counters)),
		Metrics:    make(map[string]MetricStats, len(rp.customMetrics)),
		Operations: make(map[string]OperationStats, len(rp.operationTimes)),
	}

	for name, n := range rp.counters {
		s.Counters[name] = n
	}
	for name, t := range rp.customMetrics {
		if len(t.values) == 0 {
			continue
		}
		s.Metrics[name] = MetricStats{
			Avg:     t.sum / float64(len(t.values)),
			Min:     t.min,
			Max:     t.max,
			Samples: len(t.values),
		}
	}
	for name, t := range rp.operationTimes {
		if len(t.durations) == 0 {
			continue
		}
		s.Operations[name] = OperationStats{
			Avg:   t.totalTime / time.Duration(len(t.durations)),
			Min:   t.minTime,
			Max:   t.maxTime,
			Count: t.count,
		}
	}
	return s
}
