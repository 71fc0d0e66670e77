package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nvr-ai/leafscan/annotate"
	"github.com/nvr-ai/leafscan/config"
	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
	"github.com/nvr-ai/leafscan/inference/detectors"
	"github.com/nvr-ai/leafscan/inference/providers"
	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/models"
	"github.com/nvr-ai/leafscan/profiler"
	"github.com/nvr-ai/leafscan/scan"
	"github.com/nvr-ai/leafscan/server"
	"github.com/nvr-ai/leafscan/util"
)

// shutdownGrace is how long in-flight scans may run after a stop signal.
const shutdownGrace = 30 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath   string
		imagePath    string
		dirPath      string
		serve        bool
		outputDir    string
		modelPath    string
		inferenceURL string
		diameter     float64
		jsonOutput   bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML configuration file")
	flag.StringVar(&imagePath, "image", "", "Measure a single photo (.jpg, .jpeg, .png, .webp)")
	flag.StringVar(&dirPath, "dir", "", "Measure every photo in a directory")
	flag.BoolVar(&serve, "serve", false, "Run the HTTP server")
	flag.StringVar(&outputDir, "output-dir", "", "Write annotated images to this directory")
	flag.StringVar(&modelPath, "model", "", "Path to the ONNX segmentation model")
	flag.StringVar(&inferenceURL, "inference-url", "", "Use a remote inference service instead of a local model")
	flag.Float64Var(&diameter, "diameter", 0, "Reference coin diameter (default 2.72 cm, 500 IDR coin)")
	flag.BoolVar(&jsonOutput, "json", false, "Print results as JSON")
	flag.Parse()

	modes := 0
	for _, set := range []bool{imagePath != "", dirPath != "", serve} {
		if set {
			modes++
		}
	}
	if modes != 1 {
		fmt.Fprintln(os.Stderr, "exactly one of -image, -dir or -serve is required")
		flag.Usage()
		return 2
	}

	cfg := config.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			log.Fatal(err)
		}
	}
	if err := cfg.ApplyEnv(); err != nil {
		log.Fatal(err)
	}
	if outputDir != "" {
		cfg.OutputDir = outputDir
	}
	if modelPath != "" {
		cfg.Model.Path = modelPath
	}
	if inferenceURL != "" {
		cfg.Model.InferenceURL = inferenceURL
	}
	if diameter != 0 {
		cfg.Measure.ReferenceDiameter = diameter
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	logger, err := config.NewLogger(os.Stderr, cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	slog.SetDefault(logger)

	engine, err := buildEngine(cfg)
	if err != nil {
		fmt.Printf("❌ Failed to initialize detector: %v\n", err)
		return 1
	}
	defer providers.Shutdown()
	defer engine.Close()
	fmt.Printf("✅ Detector ready: %s\n", engine.Name())
	fmt.Printf("🏷️  Classes: %s\n", strings.Join(cfg.Model.Detector.Classes, ", "))
	fmt.Printf("🪙 Reference diameter: %.2f cm\n", cfg.Measure.ReferenceDiameter)

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{Logger: logger})
	options := []scan.Option{scan.WithLogger(logger), scan.WithProfiler(prof)}
	if cfg.OutputDir != "" {
		annotator, err := annotate.New(cfg.OutputDir, "cm")
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return 1
		}
		options = append(options, scan.WithAnnotator(annotator))
		fmt.Printf("💾 Output directory: %s\n", cfg.OutputDir)
	}

	svc, err := scan.NewService(engine, cfg.ScanOptions(), options...)
	if err != nil {
		fmt.Printf("❌ %v\n", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case serve:
		prof.Start()
		defer prof.Stop()

		handler := server.NewHandler(svc, server.Options{
			MaxUploadBytes: cfg.Server.MaxUploadBytes,
			Profiler:       prof,
			Health:         engine,
		})
		fmt.Printf("🚀 Server starting on http://localhost%s\n", cfg.Server.Addr)
		if err := server.ListenAndServe(ctx, cfg.Server.Addr, handler.Routes(), shutdownGrace, logger); err != nil {
			logger.Error("server stopped", "error", err)
			return 1
		}
	case imagePath != "":
		file, err := util.LoadImageFile(imagePath)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return 1
		}
		if !report(svc.Scan(ctx, requestFor(file)), jsonOutput) {
			return 1
		}
	default:
		files, err := util.LoadDirectoryImageFiles(dirPath)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return 1
		}
		fmt.Printf("📂 Found %d photos in %s\n", len(files), dirPath)
		failed := 0
		for _, file := range files {
			if ctx.Err() != nil {
				break
			}
			fmt.Printf("\n🍃 %s\n", file.Path)
			if !report(svc.Scan(ctx, requestFor(file)), jsonOutput) {
				failed++
			}
		}
		fmt.Printf("\n📊 %d/%d photos measured\n", len(files)-failed, len(files))
		if failed > 0 {
			return 1
		}
	}
	return 0
}

func buildEngine(cfg config.Config) (*inference.Engine, error) {
	builder := inference.NewEngineBuilder()
	if cfg.Remote() {
		builder.WithRemote(detectors.RemoteConfig{
			URL:     cfg.Model.InferenceURL,
			Timeout: cfg.Model.RemoteTimeout,
		})
	} else {
		builder.
			WithProvider(cfg.Model.Provider).
			WithModel(inference.ModelArgs{Name: cfg.Model.Name, Path: cfg.Model.Path}).
			WithDetector(cfg.Model.Detector)
	}
	return builder.Build()
}

func requestFor(file util.ImageFile) scan.Request {
	return scan.Request{ScanID: file.Name, Image: images.Image{Data: file.Data}}
}

// report prints a result and reports whether it was successful.
func report(result measure.ScanResult, asJSON bool) bool {
	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(result); err != nil {
			fmt.Printf("❌ Failed to encode result: %v\n", err)
		}
		return result.Status.OK()
	}

	if paths := result.ImagePaths; paths != nil {
		defer fmt.Printf("   💾 %s, %s\n", paths.Original, paths.Segmented)
	}
	if !result.Status.OK() {
		fmt.Printf("❌ %s: %s\n", result.ScanID, result.Status)
		for _, w := range result.Warnings {
			fmt.Printf("   ⚠️  %s\n", w)
		}
		return false
	}

	summary := result.Summary()
	fmt.Printf("✅ %s: %d leaves, total %.2f cm²\n", result.ScanID, summary.Count, summary.TotalArea)
	if cal := result.Calibration; cal != nil {
		fmt.Printf("   🪙 Scale: %.2f px/cm (coin %.1f px across)\n", cal.PixelsPerUnit, cal.PixelDiameter)
	}
	for i, m := range result.Measurements {
		fmt.Printf("   🍃 #%d: %.2f cm² (%d px, confidence %.2f, shape %.3f)\n",
			i+1, m.Area, m.PixelArea, m.Confidence, m.ShapeFactor)
	}
	if summary.Count > 1 {
		fmt.Printf("   📈 Mean %.2f cm², std dev %.2f cm²\n", summary.MeanArea, summary.StdDevArea)
	}
	for _, w := range result.Warnings {
		fmt.Printf("   ⚠️  %s\n", w)
	}
	return true
}

// Registered models are listed in the usage text.
func init() {
	flag.CommandLine.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: leafscan [-config file] (-image photo | -dir photos | -serve)\n\n")
		flag.PrintDefaults()
		fmt.Fprintf(flag.CommandLine.Output(), "\nModels: %s\n", strings.Join(models.Names(), ", "))
	}
}
