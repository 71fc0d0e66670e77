package benchmark

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/scan"
)

func TestScenarioBuilder(t *testing.T) {
	scenario := NewScenarioBuilder("test_scenario").
		WithResolution(320, 240).
		WithImageFormat(images.FormatPNG).
		WithLeaves(3).
		WithIterations(5).
		WithWarmupRuns(1).
		WithConcurrency(2).
		Build()

	assert.Equal(t, "test_scenario", scenario.Name)
	assert.Equal(t, Resolution{Width: 320, Height: 240, Name: "320x240"}, scenario.Resolution)
	assert.Equal(t, images.FormatPNG, scenario.ImageFormat)
	assert.Equal(t, 3, scenario.Leaves)
	assert.Equal(t, 5, scenario.Iterations)
	assert.Equal(t, 1, scenario.WarmupRuns)
	assert.Equal(t, 2, scenario.Concurrency)
	assert.NoError(t, scenario.Validate())
}

func TestScenarioValidate(t *testing.T) {
	base := NewScenarioBuilder("s").WithResolution(320, 240).Build()

	tests := []struct {
		name   string
		mutate func(*Scenario)
	}{
		{"missing name", func(s *Scenario) { s.Name = "" }},
		{"tiny resolution", func(s *Scenario) { s.Resolution.Width = 10 }},
		{"negative leaves", func(s *Scenario) { s.Leaves = -1 }},
		{"no iterations", func(s *Scenario) { s.Iterations = 0 }},
		{"no concurrency", func(s *Scenario) { s.Concurrency = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := base
			tt.mutate(&s)
			assert.Error(t, s.Validate())
		})
	}
}

func TestScenarioScene(t *testing.T) {
	for _, leaves := range []int{0, 1, 4, 7} {
		s := NewScenarioBuilder("scene").WithResolution(320, 240).WithLeaves(leaves).Build()
		scene := s.Scene()
		assert.Equal(t, 320, scene.Width())
		assert.Equal(t, 240, scene.Height())
		assert.Len(t, scene.Instances(), leaves+1, "coin plus %d leaves", leaves)
	}
}

func TestPredefinedSets(t *testing.T) {
	assert.Len(t, QuickScenarios().Scenarios, 3)
	assert.Len(t, FormatScenarios(CommonResolutions[0], 2).Scenarios, 4)
	assert.Len(t, ResolutionScenarios(images.FormatJPEG, 1).Scenarios, len(CommonResolutions))

	for _, set := range []*ScenarioSet{QuickScenarios(), FormatScenarios(CommonResolutions[0], 2)} {
		for _, s := range set.Scenarios {
			assert.NoError(t, s.Validate(), s.Name)
		}
	}
}

func TestLoadScenarioSet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenarios.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
name: custom
scenarios:
  - name: small
    resolution: {width: 320, height: 240}
    leaves: 2
    iterations: 3
  - name: webp
    resolution: {width: 320, height: 240}
    image_format: webp
    iterations: 2
    concurrency: 2
`), 0o644))

	set, err := LoadScenarioSet(path)
	require.NoError(t, err)
	require.Len(t, set.Scenarios, 2)
	assert.Equal(t, "320x240", set.Scenarios[0].Resolution.Name)
	assert.Equal(t, images.FormatJPEG, set.Scenarios[0].ImageFormat)
	assert.Equal(t, 1, set.Scenarios[0].Concurrency)
	assert.Equal(t, images.FormatWebP, set.Scenarios[1].ImageFormat)

	require.NoError(t, os.WriteFile(path, []byte("scenarios:\n  - name: broken\n"), 0o644))
	_, err = LoadScenarioSet(path)
	assert.Error(t, err)
}

func testOptions() scan.Options {
	opts := scan.DefaultOptions()
	opts.DetectionTimeout = 5 * time.Second
	return opts
}

func TestRunScenario(t *testing.T) {
	suite := NewSuite(testOptions(), t.TempDir(), nil)

	for _, format := range []images.ImageFormat{images.FormatRaw, images.FormatPNG} {
		t.Run(string(format), func(t *testing.T) {
			s := NewScenarioBuilder("run").
				WithResolution(320, 240).
				WithImageFormat(format).
				WithLeaves(4).
				WithIterations(6).
				WithWarmupRuns(1).
				WithConcurrency(3).
				Build()

			metrics, err := suite.RunScenario(context.Background(), s)
			require.NoError(t, err)
			assert.Equal(t, map[string]int{"ok": 6}, metrics.Statuses)
			assert.Equal(t, 24, metrics.LeafCount)
			assert.Zero(t, metrics.ErrorRate)
			assert.Positive(t, metrics.ScansPerSecond)
			assert.LessOrEqual(t, metrics.Latency.Min, metrics.Latency.P50)
			assert.LessOrEqual(t, metrics.Latency.P50, metrics.Latency.P95)
			assert.LessOrEqual(t, metrics.Latency.P95, metrics.Latency.Max)
		})
	}
}

func TestRunScenarioWithoutLeaves(t *testing.T) {
	suite := NewSuite(testOptions(), t.TempDir(), nil)
	s := NewScenarioBuilder("empty").WithResolution(320, 240).WithLeaves(0).WithIterations(2).WithWarmupRuns(0).Build()

	metrics, err := suite.RunScenario(context.Background(), s)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"no_leaf_detected": 2}, metrics.Statuses)
	assert.Equal(t, 1.0, metrics.ErrorRate)
}

func TestRunAllAndSave(t *testing.T) {
	dir := t.TempDir()
	suite := NewSuite(testOptions(), dir, nil)
	suite.now = func() time.Time { return time.Date(2026, 1, 18, 9, 30, 0, 0, time.UTC) }

	suite.AddScenario(NewScenarioBuilder("a").WithResolution(320, 240).WithIterations(2).WithWarmupRuns(0).Build())
	suite.AddScenario(Scenario{Name: "invalid"})
	suite.AddScenario(NewScenarioBuilder("b").WithResolution(320, 240).WithLeaves(2).WithIterations(2).WithWarmupRuns(0).Build())

	require.NoError(t, suite.RunAllScenarios(context.Background()))
	results := suite.Results()
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].Scenario.Name)
	assert.Equal(t, "b", results[1].Scenario.Name)

	jsonPath, csvPath, err := suite.SaveResults()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "benchmark_results_2026-01-18_09-30-00.json"), jsonPath)

	data, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	var saved []PerformanceMetrics
	require.NoError(t, json.Unmarshal(data, &saved))
	assert.Len(t, saved, 2)

	f, err := os.Open(csvPath)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, summaryHeader, rows[0])
	assert.Equal(t, "b", rows[2][0])
	assert.Equal(t, "2", rows[2][3])
}

func TestRunAllScenariosCancelled(t *testing.T) {
	suite := NewSuite(testOptions(), t.TempDir(), nil)
	suite.AddScenario(NewScenarioBuilder("a").WithResolution(320, 240).Build())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, suite.RunAllScenarios(ctx), context.Canceled)
	assert.Empty(t, suite.Results())
}

func TestLatencyStats(t *testing.T) {
	assert.Equal(t, LatencyStats{}, latencyStats(nil))

	stats := latencyStats([]float64{4, 1, 3, 2})
	assert.Equal(t, 2.5, stats.Mean)
	assert.Equal(t, 1.0, stats.Min)
	assert.Equal(t, 4.0, stats.Max)
	assert.Equal(t, 2.0, stats.P50)
	assert.Equal(t, 4.0, stats.P95)
}
