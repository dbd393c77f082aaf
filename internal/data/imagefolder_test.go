package data_test

import (
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentml/vae/internal/data"
)

func writeSolidPNG(t *testing.T, path string, c color.NRGBA, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

// TestImageFolder_ScanAndOrder finds images recursively in sorted order.
func TestImageFolder_ScanAndOrder(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "b.png"), color.NRGBA{A: 255}, 8, 8)
	writeSolidPNG(t, filepath.Join(dir, "sub", "a.png"), color.NRGBA{A: 255}, 8, 8)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("skip me"), 0o644))

	ds, err := data.NewImageFolder(dir, 4, 3)
	require.NoError(t, err)
	assert.Equal(t, 2, ds.Len())
	assert.Equal(t, 3*4*4, ds.Dim())
}

// TestImageFolder_Normalization maps 8-bit values into (-1, 1) channel-major.
func TestImageFolder_Normalization(t *testing.T) {
	dir := t.TempDir()
	// Pure red at full intensity: R=255, G=0, B=0.
	writeSolidPNG(t, filepath.Join(dir, "red.png"), color.NRGBA{R: 255, A: 255}, 16, 16)

	ds, err := data.NewImageFolder(dir, 4, 3)
	require.NoError(t, err)

	img, err := ds.Image(0)
	require.NoError(t, err)
	require.Len(t, img, 48)

	plane := 4 * 4 // resized to 4x4
	for p := 0; p < plane; p++ {
		assert.InDelta(t, 1.0, img[p], 1e-6, "red channel")
		assert.InDelta(t, -1.0, img[plane+p], 1e-6, "green channel")
		assert.InDelta(t, -1.0, img[2*plane+p], 1e-6, "blue channel")
	}
}

// TestImageFolder_Grayscale collapses RGB with BT.601 luma.
func TestImageFolder_Grayscale(t *testing.T) {
	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "white.png"), color.NRGBA{R: 255, G: 255, B: 255, A: 255}, 8, 8)

	ds, err := data.NewImageFolder(dir, 4, 1)
	require.NoError(t, err)
	require.Equal(t, 16, ds.Dim())

	img, err := ds.Image(0)
	require.NoError(t, err)
	for _, v := range img {
		assert.InDelta(t, 1.0, v, 1e-2)
	}
}

// TestImageFolder_Errors covers empty dirs and bad channel counts.
func TestImageFolder_Errors(t *testing.T) {
	_, err := data.NewImageFolder(t.TempDir(), 4, 3)
	assert.Error(t, err, "empty folder")

	dir := t.TempDir()
	writeSolidPNG(t, filepath.Join(dir, "a.png"), color.NRGBA{A: 255}, 8, 8)
	_, err = data.NewImageFolder(dir, 4, 2)
	assert.Error(t, err, "channels must be 1 or 3")

	ds, err := data.NewImageFolder(dir, 4, 1)
	require.NoError(t, err)
	_, err = ds.Image(5)
	assert.Error(t, err, "index out of range")
}
