package test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nvr-ai/leafscan/images"
	"github.com/nvr-ai/leafscan/inference"
)

func TestDiscMask(t *testing.T) {
	m := DiscMask(200, 200, 100, 100, 40)
	want := math.Pi * 40 * 40
	assert.InEpsilon(t, want, float64(m.Area()), 0.02)
	assert.True(t, m.At(100, 100))
	assert.False(t, m.At(100, 150))

	clipped := DiscMask(50, 50, 0, 0, 20)
	assert.Less(t, clipped.Area(), int(want))
	assert.Zero(t, DiscMask(50, 50, 25, 25, 0).Area())
}

func TestAreaMask(t *testing.T) {
	r := images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 20}
	m := AreaMask(64, 64, r, 37)
	assert.Equal(t, 37, m.Area())
	assert.Equal(t, images.Rect{X1: 10, Y1: 10, X2: 20, Y2: 14}, m.Bounds())

	assert.Panics(t, func() { AreaMask(64, 64, r, 101) })
}

func TestScene(t *testing.T) {
	scene := NewScene(160, 120).
		Coin(30, 30, 10, 0.9).
		Leaf(100, 60, 30, 20, 0.8).
		Other(images.Rect{X1: 0, Y1: 100, X2: 20, Y2: 120}, 0.7)

	instances := scene.Instances()
	require.Len(t, instances, 3)
	assert.Equal(t, inference.LabelReference, instances[0].Label)
	assert.Equal(t, inference.LabelLeaf, instances[1].Label)
	assert.Equal(t, inference.LabelOther, instances[2].Label)
	assert.Equal(t, instances[1].Mask.Bounds(), instances[1].Box)

	img := scene.Image()
	assert.Equal(t, 160, img.Bounds().Dx())
	assert.NotEqual(t, img.RGBAAt(100, 60), img.RGBAAt(150, 5), "leaf pixel differs from background")
	assert.NotEqual(t, img.RGBAAt(100, 60), img.RGBAAt(30, 30), "leaf pixel differs from coin")
}

func TestStaticDetector(t *testing.T) {
	scene := NewScene(64, 64).Coin(20, 20, 5, 0.9)
	det := scene.Detector()

	got, err := det.Detect(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, got, 1)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = det.Detect(ctx, nil)
	assert.ErrorIs(t, err, context.Canceled)

	det.Err = errors.New("boom")
	_, err = det.Detect(context.Background(), nil)
	assert.EqualError(t, err, "boom")
	assert.Equal(t, int64(3), det.Calls())
}

func TestBlockingDetector(t *testing.T) {
	det := NewBlockingDetector(true, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := det.Detect(ctx, nil)
		done <- err
	}()
	<-det.Started
	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int64(1), det.Finished())

	det = NewBlockingDetector(false, nil)
	go func() {
		_, err := det.Detect(context.Background(), nil)
		done <- err
	}()
	<-det.Started
	close(det.Release)
	assert.NoError(t, <-done)
}
