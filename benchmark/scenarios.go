// Package benchmark - Measures scan throughput and latency on synthetic photographs.
package benchmark

import (
	"fmt"
	"image"
	"math"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/test"
)

// Resolution represents image dimensions for benchmarking.
type Resolution struct {
	Width  int    `json:"width"  yaml:"width"`
	Height int    `json:"height" yaml:"height"`
	Name   string `json:"name"   yaml:"name"`
}

// CommonResolutions are the photo sizes the predefined sets sweep.
var CommonResolutions = []Resolution{
	{Width: 640, Height: 480, Name: "640x480"},
	{Width: 1280, Height: 960, Name: "1280x960"},
	{Width: 2048, Height: 1536, Name: "2048x1536"},
}

// Scenario defines a specific test configuration.
type Scenario struct {
	Name        string             `json:"name"         yaml:"name"`
	Resolution  Resolution         `json:"resolution"   yaml:"resolution"`
	ImageFormat images.ImageFormat `json:"image_format" yaml:"image_format"`
	// Leaves is the number of leaves laid out next to the coin.
	Leaves      int `json:"leaves"      yaml:"leaves"`
	Iterations  int `json:"iterations"  yaml:"iterations"`
	WarmupRuns  int `json:"warmup_runs" yaml:"warmup_runs"`
	Concurrency int `json:"concurrency" yaml:"concurrency"`
}

// Validate checks that the scenario can run.
func (s Scenario) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("scenario name is required")
	case s.Resolution.Width < 64 || s.Resolution.Height < 64:
		return fmt.Errorf("scenario %s: resolution %dx%d is below 64x64", s.Name, s.Resolution.Width, s.Resolution.Height)
	case s.Leaves < 0:
		return fmt.Errorf("scenario %s: leaves must not be negative", s.Name)
	case s.Iterations < 1:
		return fmt.Errorf("scenario %s: iterations must be at least 1", s.Name)
	case s.Concurrency < 1:
		return fmt.Errorf("scenario %s: concurrency must be at least 1", s.Name)
	}
	return nil
}

// Scene lays out one reference coin on the left and the scenario's leaves in
// a grid on the right.
//
// Returns:
//   - *test.Scene: The synthetic photograph and its detections.
func (s Scenario) Scene() *test.Scene {
	w, h := s.Resolution.Width, s.Resolution.Height
	r := min(w, h) / 20
	scene := test.NewScene(w, h).Coin(w/8, h/2, r, 0.95)
	if s.Leaves == 0 {
		return scene
	}

	cols := int(math.Ceil(math.Sqrt(float64(s.Leaves))))
	rows := (s.Leaves + cols - 1) / cols
	area := image.Rect(w/4, 0, w, h)
	cellW, cellH := area.Dx()/cols, area.Dy()/rows
	for i := 0; i < s.Leaves; i++ {
		cx := area.Min.X + (i%cols)*cellW + cellW/2
		cy := area.Min.Y + (i/cols)*cellH + cellH/2
		scene.Leaf(cx, cy, max(cellW*35/100, 2), max(cellH*30/100, 2), 0.9)
	}
	return scene
}

// ScenarioBuilder helps build test scenarios with fluent API.
type ScenarioBuilder struct {
	scenario Scenario
}

// NewScenarioBuilder creates a new scenario builder.
func NewScenarioBuilder(name string) *ScenarioBuilder {
	return &ScenarioBuilder{
		scenario: Scenario{
			Name:        name,
			Resolution:  CommonResolutions[0],
			ImageFormat: images.FormatJPEG,
			Leaves:      1,
			Iterations:  100,
			WarmupRuns:  10,
			Concurrency: 1,
		},
	}
}

// WithResolution sets the image resolution.
func (sb *ScenarioBuilder) WithResolution(width, height int) *ScenarioBuilder {
	sb.scenario.Resolution = Resolution{
		Width:  width,
		Height: height,
		Name:   fmt.Sprintf("%dx%d", width, height),
	}
	return sb
}

// WithImageFormat sets the image format.
func (sb *ScenarioBuilder) WithImageFormat(format images.ImageFormat) *ScenarioBuilder {
	sb.scenario.ImageFormat = format
	return sb
}

// WithLeaves sets the number of leaves in the photograph.
func (sb *ScenarioBuilder) WithLeaves(n int) *ScenarioBuilder {
	sb.scenario.Leaves = n
	return sb
}

// WithIterations sets the number of test iterations.
func (sb *ScenarioBuilder) WithIterations(iterations int) *ScenarioBuilder {
	sb.scenario.Iterations = iterations
	return sb
}

// WithWarmupRuns sets the number of warmup runs.
func (sb *ScenarioBuilder) WithWarmupRuns(warmups int) *ScenarioBuilder {
	sb.scenario.WarmupRuns = warmups
	return sb
}

// WithConcurrency sets how many scans are in flight at once.
func (sb *ScenarioBuilder) WithConcurrency(n int) *ScenarioBuilder {
	sb.scenario.Concurrency = n
	return sb
}

// Build returns the configured test scenario.
func (sb *ScenarioBuilder) Build() Scenario {
	return sb.scenario
}

// ScenarioSet represents a collection of related test scenarios.
type ScenarioSet struct {
	Name        string     `json:"name"        yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Scenarios   []Scenario `json:"scenarios"   yaml:"scenarios"`
}

// QuickScenarios returns one small scenario per leaf count.
func QuickScenarios() *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Quick",
		Description: "Single worker, small photo, growing leaf counts",
	}
	for _, leaves := range []int{1, 4, 9} {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("quick_%d_leaves", leaves)).
			WithLeaves(leaves).
			WithIterations(20).
			WithWarmupRuns(2).
			Build())
	}
	return set
}

// FormatScenarios compares decode cost across the supported payload formats.
func FormatScenarios(res Resolution, concurrency int) *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Formats",
		Description: "Same scene encoded as each supported format",
	}
	for _, format := range []images.ImageFormat{images.FormatRaw, images.FormatJPEG, images.FormatPNG, images.FormatWebP} {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("format_%s_%s", format, res.Name)).
			WithResolution(res.Width, res.Height).
			WithImageFormat(format).
			WithLeaves(4).
			WithConcurrency(concurrency).
			Build())
	}
	return set
}

// ResolutionScenarios sweeps CommonResolutions.
func ResolutionScenarios(format images.ImageFormat, concurrency int) *ScenarioSet {
	set := &ScenarioSet{
		Name:        "Resolutions",
		Description: "Same layout at each common photo size",
	}
	for _, res := range CommonResolutions {
		set.Scenarios = append(set.Scenarios, NewScenarioBuilder(fmt.Sprintf("resolution_%s_%s", res.Name, format)).
			WithResolution(res.Width, res.Height).
			WithImageFormat(format).
			WithLeaves(4).
			WithConcurrency(concurrency).
			Build())
	}
	return set
}

// LoadScenarioSet reads a YAML scenario set.
func LoadScenarioSet(path string) (*ScenarioSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var set ScenarioSet
	if err := yaml.Unmarshal(data, &set); err != nil {
		return nil, fmt.Errorf("failed to parse scenario file: %w", err)
	}
	for i := range set.Scenarios {
		s := &set.Scenarios[i]
		if s.Resolution.Name == "" {
			s.Resolution.Name = fmt.Sprintf("%dx%d", s.Resolution.Width, s.Resolution.Height)
		}
		if s.ImageFormat == images.FormatUnknown {
			s.ImageFormat = images.FormatJPEG
		}
		if s.Concurrency == 0 {
			s.Concurrency = 1
		}
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return &set, nil
}
