// Package imageio renders decoded sample batches into image grids on disk.
package imageio

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/latentml/vae/internal/tensor"
)

// gridPadding is the pixel gap between cells in a grid.
const gridPadding = 2

// Grid assembles a batch [n, channels*height*width] into a single image
// with perRow cells per row.
//
// Values are denormalized from (-1, 1) to 8-bit; out-of-range values are
// clipped rather than wrapped.
func Grid(batch *tensor.Tensor, channels, height, width, perRow int) (*image.NRGBA, error) {
	shape := batch.Shape()
	if len(shape) != 2 {
		return nil, fmt.Errorf("grid: expected 2D batch, got shape %v", shape)
	}
	n, dim := shape[0], shape[1]
	if dim != channels*height*width {
		return nil, fmt.Errorf("grid: image dim mismatch: batch has %d, expected %d (%d×%d×%d)",
			dim, channels*height*width, channels, height, width)
	}
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("grid: channels must be 1 or 3, got %d", channels)
	}
	if perRow <= 0 {
		perRow = n
	}

	rows := (n + perRow - 1) / perRow
	out := image.NewNRGBA(image.Rect(0, 0,
		perRow*width+(perRow+1)*gridPadding,
		rows*height+(rows+1)*gridPadding,
	))

	plane := height * width
	for i := 0; i < n; i++ {
		img := batch.Row(i)
		cellX := (i % perRow) * (width + gridPadding)
		cellY := (i / perRow) * (height + gridPadding)
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				p := y*width + x
				var r, g, b uint8
				if channels == 1 {
					v := to8bit(img[p])
					r, g, b = v, v, v
				} else {
					r = to8bit(img[p])
					g = to8bit(img[plane+p])
					b = to8bit(img[2*plane+p])
				}
				out.SetNRGBA(gridPadding+cellX+x, gridPadding+cellY+y, color.NRGBA{R: r, G: g, B: b, A: 255})
			}
		}
	}
	return out, nil
}

// to8bit maps (-1, 1) to [0, 255] with clipping.
func to8bit(v float32) uint8 {
	scaled := (v + 1) * 127.5
	if scaled < 0 {
		return 0
	}
	if scaled > 255 {
		return 255
	}
	return uint8(scaled)
}

// Upscale enlarges img by an integer factor with nearest-neighbor
// filtering, keeping low-resolution samples inspectable.
func Upscale(img image.Image, factor int) image.Image {
	if factor <= 1 {
		return img
	}
	b := img.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx()*factor, b.Dy()*factor))
	draw.NearestNeighbor.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// WritePNG writes img to path, creating parent directories as needed.
func WritePNG(path string, img image.Image) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer file.Close()
	if err := png.Encode(file, img); err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	return nil
}
