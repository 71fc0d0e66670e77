package detectors

import (
	"context"
	"encoding/json"
	"image"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/models"
)

func TestRLEDecode(t *testing.T) {
	m, err := RLE{Size: [2]int{2, 3}, Counts: []int{1, 2, 3}}.Decode()
	require.NoError(t, err)
	assert.Equal(t, 2, m.Area())
	assert.True(t, m.At(0, 1))
	assert.True(t, m.At(1, 0))

	_, err = RLE{Size: [2]int{2, 2}, Counts: []int{1, 9}}.Decode()
	assert.Error(t, err)
}

func TestRemoteDetect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/predict", func(w http.ResponseWriter, r *http.Request) {
		_, _, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "no file", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"width":  50,
			"height": 40,
			"instances": []map[string]any{
				{
					"label":      "coin",
					"confidence": 0.95,
					"polygon":    [][2]float64{{5, 5}, {15, 5}, {15, 15}, {5, 15}},
				},
				{
					"label":      "leaf",
					"confidence": 0.8,
					"box":        []float64{20, 10, 40, 30},
					"polygon":    [][2]float64{{20, 10}, {40, 10}, {40, 30}, {20, 30}},
				},
			},
		})
	})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	remote, err := NewRemote(RemoteConfig{URL: srv.URL + "/predict", Timeout: 5 * time.Second})
	require.NoError(t, err)
	require.NoError(t, remote.CheckHealth(context.Background()))

	// The service saw a 50x40 frame; the source is twice as large.
	img := image.NewRGBA(image.Rect(0, 0, 100, 80))
	instances, err := remote.Detect(context.Background(), img)
	require.NoError(t, err)
	require.Len(t, instances, 2)

	coin := instances[0]
	assert.Equal(t, models.LabelReference, coin.Label)
	assert.Equal(t, 400, coin.PixelArea())
	assert.Equal(t, images.Rect{X1: 10, Y1: 10, X2: 30, Y2: 30}, coin.Box)
	assert.InDelta(t, 400, images.PolygonArea(coin.Polygon), 1e-9)

	leaf := instances[1]
	assert.Equal(t, models.LabelLeaf, leaf.Label)
	assert.Equal(t, images.Rect{X1: 40, Y1: 20, X2: 80, Y2: 60}, leaf.Box)
	assert.Equal(t, 1600, leaf.PixelArea())
}

func TestRemoteDetectRLE(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"detections": []map[string]any{
				{"label": "leaf", "confidence": 0.7, "rle": map[string]any{"size": []int{2, 3}, "counts": []int{0, 6}}},
			},
		})
	}))
	defer srv.Close()

	remote, err := NewRemote(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)

	instances, err := remote.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 3, 2)))
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, 6, instances[0].PixelArea())
	assert.Equal(t, images.Rect{X1: 0, Y1: 0, X2: 3, Y2: 2}, instances[0].Box)

	// A mask for another frame size is rejected.
	_, err = remote.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.Error(t, err)
}

func TestRemoteDetectErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	remote, err := NewRemote(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)
	_, err = remote.Detect(context.Background(), image.NewRGBA(image.Rect(0, 0, 4, 4)))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "503")
	assert.Error(t, remote.CheckHealth(context.Background()))

	_, err = NewRemote(RemoteConfig{})
	assert.Error(t, err)
}

func TestRemoteDetectCancelled(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer srv.Close()
	defer close(release)

	remote, err := NewRemote(RemoteConfig{URL: srv.URL})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = remote.Detect(ctx, image.NewRGBA(image.Rect(0, 0, 4, 4)))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
