package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/nvr-ai/leafscan/benchmark"
	"github.com/nvr-ai/leafscan/config"
	"github.com/nvr-ai/leafscan/images"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configFile   = flag.String("config", "", "Path to leafscan configuration file (thresholds, workers, timeout)")
		scenarioFile = flag.String("scenarios", "", "Path to YAML scenario set")
		outputDir    = flag.String("output", "./benchmark_results", "Output directory for results")
		quick        = flag.Bool("quick", false, "Run quick benchmark scenarios")
		resolutions  = flag.Bool("resolutions", false, "Compare different photo resolutions")
		formats      = flag.Bool("formats", false, "Compare different image formats")
		concurrency  = flag.Int("concurrency", 1, "Scans in flight for the resolution and format sets")
		timeout      = flag.Duration("timeout", 30*time.Minute, "Benchmark timeout duration")
	)
	flag.Parse()

	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to load config: %v\n", err)
			return 1
		}
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}
	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}

	suite := benchmark.NewSuite(cfg.ScanOptions(), *outputDir, logger)

	if *scenarioFile != "" {
		set, err := benchmark.LoadScenarioSet(*scenarioFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to load scenario file: %v\n", err)
			return 1
		}
		suite.AddScenarioSet(set)
		fmt.Printf("Loaded %d scenarios from %s\n", len(set.Scenarios), *scenarioFile)
	} else {
		if *resolutions {
			set := benchmark.ResolutionScenarios(images.FormatJPEG, *concurrency)
			suite.AddScenarioSet(set)
			fmt.Printf("Added %d resolution comparison scenarios\n", len(set.Scenarios))
		}
		if *formats {
			set := benchmark.FormatScenarios(benchmark.CommonResolutions[1], *concurrency)
			suite.AddScenarioSet(set)
			fmt.Printf("Added %d format comparison scenarios\n", len(set.Scenarios))
		}
		if *quick || (!*resolutions && !*formats) {
			set := benchmark.QuickScenarios()
			suite.AddScenarioSet(set)
			fmt.Printf("Added %d quick scenarios\n", len(set.Scenarios))
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	fmt.Println("🚀 Starting benchmark execution...")
	start := time.Now()
	if err := suite.RunAllScenarios(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "❌ Benchmark execution failed: %v\n", err)
		return 1
	}
	fmt.Printf("✅ Benchmark completed in %v\n", time.Since(start))

	resultsFile, summaryFile, err := suite.SaveResults()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ %v\n", err)
		return 1
	}

	results := suite.Results()
	fmt.Printf("\n=== BENCHMARK RESULTS SUMMARY ===\n")
	fmt.Printf("Total scenarios: %d\n", len(results))
	fmt.Printf("Results saved to: %s\n", resultsFile)
	fmt.Printf("Summary saved to: %s\n", summaryFile)

	var best benchmark.PerformanceMetrics
	for _, r := range results {
		if r.ScansPerSecond > best.ScansPerSecond {
			best = r
		}
		fmt.Printf("  %s: %.2f scans/s (p95 %.2f ms, %.2f MB memory)\n",
			r.Scenario.Name,
			r.ScansPerSecond,
			r.Latency.P95,
			float64(r.MemoryStats.AllocBytes)/(1024*1024))
	}
	if len(results) > 0 {
		fmt.Printf("\nBest performing scenario: %s (%.2f scans/s)\n", best.Scenario.Name, best.ScansPerSecond)
	}
	return 0
}

func init() {
	flag.Usage = func() {
		name := filepath.Base(os.Args[0])
		fmt.Fprintf(os.Stderr, "Usage: %s [options]\n\n", name)
		fmt.Fprintf(os.Stderr, "Measures scan throughput on synthetic coin-and-leaf photographs.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s -quick\n", name)
		fmt.Fprintf(os.Stderr, "  %s -config ./leafscan.yaml -resolutions -formats -concurrency 4\n", name)
		fmt.Fprintf(os.Stderr, "  %s -scenarios ./scenarios.yaml -output ./results\n", name)
	}
}
