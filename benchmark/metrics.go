package benchmark

import "time"

// PerformanceMetrics captures detailed performance data
type PerformanceMetrics struct {
	Scenario       Scenario      `json:"scenario"`
	Timestamp      time.Time     `json:"timestamp"`
	TotalDuration  time.Duration `json:"total_duration"`
	ScansPerSecond float64       `json:"scans_per_second"`
	Latency        LatencyStats  `json:"latency_ms"`
	MemoryStats    MemoryMetrics `json:"memory_stats"`
	CPUStats       CPUMetrics    `json:"cpu_stats"`
	// Statuses counts results by status name.
	Statuses map[string]int `json:"statuses"`
	// LeafCount is the number of measured leaves across all iterations.
	LeafCount int `json:"leaf_count"`
	// ErrorRate is the fraction of scans that did not finish with status ok.
	ErrorRate float64 `json:"error_rate"`
}

// LatencyStats summarises per-scan latency in milliseconds.
type LatencyStats struct {
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P95  float64 `json:"p95"`
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
}

// MemoryMetrics captures memory usage statistics
type MemoryMetrics struct {
	AllocBytes      uint64 `json:"alloc_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	SysBytes        uint64 `json:"sys_bytes"`
	NumGC           uint32 `json:"num_gc"`
	HeapAllocBytes  uint64 `json:"heap_alloc_bytes"`
	HeapSysBytes    uint64 `json:"heap_sys_bytes"`
}

// CPUMetrics captures CPU usage statistics
type CPUMetrics struct {
	NumCPU int `json:"num_cpu"`
}
