// Package server - HTTP interface for submitting scans.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/profiler"
	"github.com/nvr-ai/leafscan/scan"
)

// Scanner runs one scan. *scan.Service implements it.
type Scanner interface {
	Scan(ctx context.Context, req scan.Request) measure.ScanResult
}

// HealthChecker reports whether the detector backend is usable.
type HealthChecker interface {
	CheckHealth(ctx context.Context) error
}

// Options configures the handler.
type Options struct {
	// MaxUploadBytes caps request bodies.
	MaxUploadBytes int64
	// Profiler backs /debug/stats when set.
	Profiler *profiler.RuntimeProfiler
	// Health is consulted by /health when set.
	Health HealthChecker
}

// Handler serves the scan endpoints.
type Handler struct {
	scanner Scanner
	opts    Options
}

// NewHandler creates the scan handler.
func NewHandler(scanner Scanner, opts Options) *Handler {
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = 50 << 20
	}
	return &Handler{scanner: scanner, opts: opts}
}

// Routes returns the mux with every endpoint wrapped in the CORS middleware.
//
// Returns:
//   - http.Handler: The routed handler.
//
// @example
// srv := &http.Server{Addr: ":8080", Handler: server.NewHandler(svc, opts).Routes()}
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/scan", h.ScanHandler)
	mux.HandleFunc("/scan/raw", h.RawScanHandler)
	mux.HandleFunc("/health", h.HealthHandler)
	mux.HandleFunc("/debug/stats", h.StatsHandler)
	return corsMiddleware(mux)
}

// ScanHandler handles POST /scan with a multipart "file" upload and an
// optional "scan_id" field.
func (h *Handler) ScanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes)

	if err := r.ParseMultipartForm(h.opts.MaxUploadBytes); err != nil {
		respondError(w, "failed to parse form", uploadStatus(err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, "no file uploaded", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, "failed to read file", http.StatusBadRequest)
		return
	}
	if _, _, err := images.DecodeConfig(data); err != nil {
		respondError(w, "undecodable image: "+err.Error(), http.StatusBadRequest)
		return
	}

	h.scan(w, r, scan.Request{
		ScanID: r.FormValue("scan_id"),
		Image:  images.Image{Data: data},
	})
}

// RawScanHandler handles POST /scan/raw?width=W&height=H[&scan_id=ID] with a
// body of RGB or RGBA pixels.
func (h *Handler) RawScanHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	width, werr := strconv.Atoi(q.Get("width"))
	height, herr := strconv.Atoi(q.Get("height"))
	if werr != nil || herr != nil || width <= 0 || height <= 0 {
		respondError(w, "width and height must be positive integers", http.StatusBadRequest)
		return
	}
	// An RGB body of MaxUploadBytes holds at most MaxUploadBytes/3 pixels.
	if maxPixels := h.opts.MaxUploadBytes / 3; int64(width) > maxPixels/int64(height) {
		respondError(w, "width and height exceed the upload limit", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, h.opts.MaxUploadBytes))
	if err != nil {
		respondError(w, "failed to read body", uploadStatus(err))
		return
	}
	if n := width * height; len(data) != n*3 && len(data) != n*4 {
		respondError(w, "body size does not match width and height", http.StatusBadRequest)
		return
	}

	h.scan(w, r, scan.Request{
		ScanID: q.Get("scan_id"),
		Image:  images.Image{Format: images.FormatRaw, Data: data, Width: width, Height: height},
	})
}

func (h *Handler) scan(w http.ResponseWriter, r *http.Request, req scan.Request) {
	result := h.scanner.Scan(r.Context(), req)
	respondJSON(w, result, http.StatusOK)
}

// HealthHandler reports service health, including the detector backend
// when it can be checked.
func (h *Handler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if h.opts.Health != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := h.opts.Health.CheckHealth(ctx); err != nil {
			respondJSON(w, map[string]string{"status": "unavailable", "error": err.Error()}, http.StatusServiceUnavailable)
			return
		}
	}
	respondJSON(w, map[string]string{"status": "ok"}, http.StatusOK)
}

// StatsHandler returns a profiler snapshot.
func (h *Handler) StatsHandler(w http.ResponseWriter, _ *http.Request) {
	if h.opts.Profiler == nil {
		respondError(w, "profiling disabled", http.StatusNotFound)
		return
	}
	respondJSON(w, h.opts.Profiler.Snapshot(), http.StatusOK)
}

func uploadStatus(err error) int {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return http.StatusRequestEntityTooLarge
	}
	return http.StatusBadRequest
}

func respondJSON(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, message string, status int) {
	respondJSON(w, map[string]string{"error": message}, status)
}

// corsMiddleware adds permissive CORS headers and answers preflight requests.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully, giving in-flight scans up to grace to finish.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, grace time.Duration, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	logger.Info("server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
