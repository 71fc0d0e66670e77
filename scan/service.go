// Package scan - Runs one photograph through detection and measurement.
package scan

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/profiler"
)

// Options configures a Service.
type Options struct {
	// Measure holds the measurement thresholds and reference diameter.
	Measure measure.Config
	// DetectionTimeout bounds waiting for a pool slot plus detection.
	DetectionTimeout time.Duration
	// Workers is the number of concurrent detections.
	Workers int
	// MaxEdge shrinks larger photos before decoding. Zero disables it.
	MaxEdge int
}

// DefaultOptions returns the service defaults.
func DefaultOptions() Options {
	return Options{
		Measure:          measure.DefaultConfig(),
		DetectionTimeout: 30 * time.Second,
		Workers:          2,
	}
}

// Validate checks the options.
func (o Options) Validate() error {
	if err := o.Measure.Validate(); err != nil {
		return err
	}
	if o.DetectionTimeout <= 0 {
		return fmt.Errorf("detection_timeout must be positive, got %v", o.DetectionTimeout)
	}
	if o.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", o.Workers)
	}
	if o.MaxEdge < 0 {
		return fmt.Errorf("max_edge must not be negative, got %d", o.MaxEdge)
	}
	return nil
}

// Annotator renders a finished scan, for example to disk.
type Annotator interface {
	Annotate(result measure.ScanResult, img image.Image) (measure.ImagePaths, error)
}

// Option customises a Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithProfiler records timings and per-status counters.
func WithProfiler(p *profiler.RuntimeProfiler) Option {
	return func(s *Service) { s.profiler = p }
}

// WithAnnotator renders every finished scan.
func WithAnnotator(a Annotator) Option {
	return func(s *Service) { s.annotator = a }
}

// WithClock replaces time.Now, for deterministic scan IDs.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service measures leaf area in photographs. Scans are independent; the
// only shared state is the read-only detector and the worker pool.
type Service struct {
	detector  inference.Detector
	opts      Options
	pool      *Pool
	logger    *slog.Logger
	profiler  *profiler.RuntimeProfiler
	annotator Annotator
	now       func() time.Time
}

// NewService creates a scan service.
//
// Arguments:
//   - detector: The instance detector shared by every scan.
//   - opts: The service options.
//   - options: Optional logger, profiler, annotator or clock.
//
// Returns:
//   - *Service: The service.
//   - error: An error if the options are invalid.
//
// @example
// svc, err := scan.NewService(engine, scan.DefaultOptions(), scan.WithLogger(logger))
func NewService(detector inference.Detector, opts Options, options ...Option) (*Service, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s := &Service{
		detector: detector,
		opts:     opts,
		pool:     NewPool(opts.Workers),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, o := range options {
		o(s)
	}
	if s.profiler != nil {
		s.profiler.AddMetricsCollector(s.pool)
	}
	return s, nil
}

// Pool returns the detection worker pool.
func (s *Service) Pool() *Pool {
	return s.pool
}

// Scan measures one photograph. It never returns an error: every failure,
// including a malformed image, a detector error or a timeout, is reported
// as the result status.
func (s *Service) Scan(ctx context.Context, req Request) measure.ScanResult {
	start := s.now()
	scanID := req.ScanID
	if scanID == "" {
		scanID = NewScanID(start)
	}
	logger := s.logger.With("scan_id", scanID)

	ctx, cancel := context.WithTimeout(ctx, s.opts.DetectionTimeout)
	defer cancel()

	result, img := s.run(ctx, scanID, req)

	if s.annotator != nil && img != nil {
		paths, err := s.annotator.Annotate(result, img)
		if err != nil {
			logger.Warn("annotation failed", "error", err)
		} else {
			result.ImagePaths = &paths
		}
	}

	duration := time.Since(start)
	if s.profiler != nil {
		s.profiler.RecordOperation("scan", duration)
		s.profiler.IncrementCounter("status." + result.Status.String())
	}

	attrs := []any{
		"status", result.Status.String(),
		"leaves", len(result.Measurements),
		"duration", duration,
	}
	if result.Status.OK() {
		attrs = append(attrs, "total_area", result.Summary().TotalArea)
		logger.Info("scan complete", attrs...)
	} else {
		attrs = append(attrs, "warnings", result.Warnings)
		logger.Warn("scan failed", attrs...)
	}
	return result
}

func (s *Service) run(ctx context.Context, scanID string, req Request) (measure.ScanResult, image.Image) {
	img, err := s.decode(req.Image)
	if err != nil {
		return measure.Failed(scanID, measure.StatusDetectionFailed, fmt.Sprintf("malformed image: %v", err)), nil
	}

	instances, err := s.detect(ctx, img)
	if err != nil {
		return s.detectionFailure(ctx, scanID, err), img
	}

	if err := checkMasks(instances, img.Bounds()); err != nil {
		return measure.Failed(scanID, measure.StatusDetectionFailed, err.Error()), img
	}

	var done func()
	if s.profiler != nil {
		done = s.profiler.StartOperation("measure")
	}
	result := measure.Measure(scanID, instances, s.opts.Measure)
	if done != nil {
		done()
	}
	return result, img
}

func (s *Service) decode(src images.Image) (image.Image, error) {
	if src.Format != images.FormatRaw && s.opts.MaxEdge > 0 {
		data, resized, err := images.Shrink(src.Data, s.opts.MaxEdge)
		if err != nil {
			return nil, err
		}
		if resized {
			src = images.Image{Format: images.FormatJPEG, Data: data}
		}
	}
	return src.Decode()
}

type detection struct {
	instances []inference.Instance
	err       error
}

// detect runs the detector on a pool slot. When ctx ends first, detect
// returns immediately; the detector call keeps its slot until it returns and
// its result is dropped.
func (s *Service) detect(ctx context.Context, img image.Image) ([]inference.Instance, error) {
	if err := s.pool.Acquire(ctx); err != nil {
		return nil, err
	}

	done := make(chan detection, 1)
	go func() {
		defer s.pool.Release()
		defer func() {
			if r := recover(); r != nil {
				done <- detection{err: fmt.Errorf("panic during detection: %v", r)}
			}
		}()

		var finish func()
		if s.profiler != nil {
			finish = s.profiler.StartOperation("detect")
		}
		instances, err := s.detector.Detect(ctx, img)
		if finish != nil {
			finish()
		}
		done <- detection{instances: instances, err: err}
	}()

	select {
	case d := <-done:
		return d.instances, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) detectionFailure(ctx context.Context, scanID string, err error) measure.ScanResult {
	switch {
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return measure.Failed(scanID, measure.StatusDetectionTimeout,
			fmt.Sprintf("detection did not finish within %v", s.opts.DetectionTimeout))
	case errors.Is(err, context.Canceled) || ctx.Err() != nil:
		return measure.Failed(scanID, measure.StatusDetectionFailed, "scan cancelled")
	default:
		return measure.Failed(scanID, measure.StatusDetectionFailed, err.Error())
	}
}

// checkMasks rejects detector output whose masks do not cover the image.
func checkMasks(instances []inference.Instance, bounds image.Rectangle) error {
	for i, inst := range instances {
		if inst.Mask == nil {
			continue
		}
		if inst.Mask.Width() != bounds.Dx() || inst.Mask.Height() != bounds.Dy() {
			return fmt.Errorf("instance %d mask is %dx%d, image is %dx%d",
				i+1, inst.Mask.Width(), inst.Mask.Height(), bounds.Dx(), bounds.Dy())
		}
	}
	return nil
}
