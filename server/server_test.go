package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image/png"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/measure"
	"github.com/nvr-ai/leafscan/profiler"
	"github.com/nvr-ai/leafscan/scan"
	"github.com/nvr-ai/leafscan/test"
)

const (
	width  = 160
	height = 120
)

func leafScene() *test.Scene {
	return test.NewScene(width, height).
		Coin(30, 30, 15, 0.9).
		Leaf(100, 70, 40, 30, 0.9)
}

func newServer(t *testing.T, opts Options) (*httptest.Server, *test.Scene) {
	t.Helper()
	scene := leafScene()
	svc, err := scan.NewService(scene.Detector(), scan.DefaultOptions())
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(svc, opts).Routes())
	t.Cleanup(srv.Close)
	return srv, scene
}

func multipartBody(t *testing.T, fields map[string]string, file []byte) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if file != nil {
		fw, err := mw.CreateFormFile("file", "leaf.png")
		require.NoError(t, err)
		_, err = fw.Write(file)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func pngBytes(t *testing.T, scene *test.Scene) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, scene.Image()))
	return buf.Bytes()
}

type scanResponse struct {
	ScanID       string `json:"scan_id"`
	Status       string `json:"status"`
	Measurements []struct {
		Area        float64 `json:"area"`
		Confidence  float64 `json:"confidence"`
		PixelArea   int     `json:"pixel_area"`
		ShapeFactor float64 `json:"shape_factor"`
	} `json:"measurements"`
	Warnings    []string        `json:"warnings"`
	Calibration json.RawMessage `json:"calibration"`
	Summary     measure.Summary `json:"summary"`
}

func decode(t *testing.T, resp *http.Response) scanResponse {
	t.Helper()
	defer resp.Body.Close()
	var out scanResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestScanUpload(t *testing.T) {
	srv, scene := newServer(t, Options{})

	body, contentType := multipartBody(t, map[string]string{"scan_id": "upload-1"}, pngBytes(t, scene))
	resp, err := http.Post(srv.URL+"/scan", contentType, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	out := decode(t, resp)
	assert.Equal(t, "upload-1", out.ScanID)
	assert.Equal(t, "ok", out.Status)
	require.Len(t, out.Measurements, 1)
	assert.Greater(t, out.Measurements[0].Area, 0.0)
	assert.NotEmpty(t, out.Calibration)
	assert.Equal(t, 1, out.Summary.Count)
	assert.NotNil(t, out.Warnings)
}

func TestScanRaw(t *testing.T) {
	srv, scene := newServer(t, Options{})
	pix := scene.Image().Pix

	resp, err := http.Post(srv.URL+"/scan/raw?width=160&height=120&scan_id=raw-1", "application/octet-stream", bytes.NewReader(pix))
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, "raw-1", out.ScanID)
	assert.Equal(t, "ok", out.Status)
}

func TestScanBadRequests(t *testing.T) {
	srv, scene := newServer(t, Options{MaxUploadBytes: 1 << 20})

	tests := []struct {
		name     string
		do       func() (*http.Response, error)
		wantCode int
	}{
		{
			name:     "wrong method",
			do:       func() (*http.Response, error) { return http.Get(srv.URL + "/scan") },
			wantCode: http.StatusMethodNotAllowed,
		},
		{
			name: "no file",
			do: func() (*http.Response, error) {
				body, ct := multipartBody(t, map[string]string{"scan_id": "x"}, nil)
				return http.Post(srv.URL+"/scan", ct, body)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "undecodable image",
			do: func() (*http.Response, error) {
				body, ct := multipartBody(t, nil, []byte("definitely not a photo"))
				return http.Post(srv.URL+"/scan", ct, body)
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "not multipart",
			do: func() (*http.Response, error) {
				return http.Post(srv.URL+"/scan", "text/plain", strings.NewReader("hello"))
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "raw without dimensions",
			do: func() (*http.Response, error) {
				return http.Post(srv.URL+"/scan/raw", "application/octet-stream", bytes.NewReader(scene.Image().Pix))
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "raw with wrong size",
			do: func() (*http.Response, error) {
				return http.Post(srv.URL+"/scan/raw?width=10&height=10", "application/octet-stream", bytes.NewReader(make([]byte, 17)))
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "raw dimensions overflow",
			do: func() (*http.Response, error) {
				// width*height*4 wraps to 4 on 64-bit ints.
				return http.Post(srv.URL+"/scan/raw?width=4611686018427387905&height=1",
					"application/octet-stream", bytes.NewReader([]byte{1, 2, 3, 4}))
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name: "raw dimensions above upload limit",
			do: func() (*http.Response, error) {
				return http.Post(srv.URL+"/scan/raw?width=1000&height=1000", "application/octet-stream", bytes.NewReader(make([]byte, 12)))
			},
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := tt.do()
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.NotEmpty(t, out["error"])
		})
	}
}

func TestScanFailureIsStillOK(t *testing.T) {
	svc, err := scan.NewService(&test.StaticDetector{Err: errors.New("model unavailable")}, scan.DefaultOptions())
	require.NoError(t, err)
	srv := httptest.NewServer(NewHandler(svc, Options{}).Routes())
	defer srv.Close()

	body, ct := multipartBody(t, nil, pngBytes(t, leafScene()))
	resp, err := http.Post(srv.URL+"/scan", ct, body)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	out := decode(t, resp)
	assert.Equal(t, "detection_failed", out.Status)
	assert.Empty(t, out.Measurements)
	assert.Contains(t, out.Warnings, "model unavailable")
	assert.Empty(t, out.Calibration)
}

type healthFunc func(ctx context.Context) error

func (f healthFunc) CheckHealth(ctx context.Context) error { return f(ctx) }

func TestHealth(t *testing.T) {
	tests := []struct {
		name       string
		health     HealthChecker
		wantCode   int
		wantStatus string
	}{
		{name: "no checker", wantCode: http.StatusOK, wantStatus: "ok"},
		{name: "healthy backend", health: healthFunc(func(context.Context) error { return nil }), wantCode: http.StatusOK, wantStatus: "ok"},
		{
			name:       "backend down",
			health:     healthFunc(func(context.Context) error { return errors.New("connection refused") }),
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: "unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := newServer(t, Options{Health: tt.health})
			resp, err := http.Get(srv.URL + "/health")
			require.NoError(t, err)
			defer resp.Body.Close()
			assert.Equal(t, tt.wantCode, resp.StatusCode)

			var out map[string]string
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
			assert.Equal(t, tt.wantStatus, out["status"])
		})
	}
}

func TestStats(t *testing.T) {
	srv, _ := newServer(t, Options{})
	resp, err := http.Get(srv.URL + "/debug/stats")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	prof := profiler.NewRuntimeProfiler(profiler.ProfilingOptions{})
	prof.IncrementCounter("status.ok")
	srv, _ = newServer(t, Options{Profiler: prof})
	resp, err = http.Get(srv.URL + "/debug/stats")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snap profiler.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snap))
	assert.Equal(t, int64(1), snap.Counters["status.ok"])
}

func TestCORSPreflight(t *testing.T) {
	srv, _ := newServer(t, Options{})
	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/scan", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "POST, GET, OPTIONS", resp.Header.Get("Access-Control-Allow-Methods"))
}

type recordingScanner struct {
	mu   sync.Mutex
	reqs []scan.Request
}

func (s *recordingScanner) Scan(_ context.Context, req scan.Request) measure.ScanResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reqs = append(s.reqs, req)
	return measure.Failed(req.ScanID, measure.StatusNoLeafDetected)
}

func TestRawRequestForwarding(t *testing.T) {
	rec := &recordingScanner{}
	srv := httptest.NewServer(NewHandler(rec, Options{}).Routes())
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/scan/raw?width=2&height=2&scan_id=fwd", "application/octet-stream", bytes.NewReader(make([]byte, 12)))
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, rec.reqs, 1)
	assert.Equal(t, "fwd", rec.reqs[0].ScanID)
	assert.Equal(t, images.FormatRaw, rec.reqs[0].Image.Format)
	assert.Equal(t, 2, rec.reqs[0].Image.Width)
	assert.Len(t, rec.reqs[0].Image.Data, 12)
}

func TestListenAndServeShutsDown(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), time.Second, slogDiscard())
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func slogDiscard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestUploadStatus(t *testing.T) {
	assert.Equal(t, http.StatusRequestEntityTooLarge, uploadStatus(&http.MaxBytesError{Limit: 1}))
	assert.Equal(t, http.StatusBadRequest, uploadStatus(errors.New("bad form")))
}
