package data

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"

	// Register decoders for the formats an image folder may contain.
	_ "image/jpeg"
	_ "image/png"

	"golang.org/x/image/draw"
)

// ImageFolder is a dataset over a directory of image files.
//
// Images are decoded on demand, resized to size×size with bilinear
// filtering, and flattened channel-major into (-1, 1). Decoding on demand
// keeps memory flat for large datasets; the Loader's prefetch pool hides
// the decode latency.
type ImageFolder struct {
	paths    []string
	size     int
	channels int
}

// NewImageFolder scans dir recursively for .png/.jpg/.jpeg files.
//
// channels must be 1 (grayscale) or 3 (RGB).
func NewImageFolder(dir string, size, channels int) (*ImageFolder, error) {
	if channels != 1 && channels != 3 {
		return nil, fmt.Errorf("image folder: channels must be 1 or 3, got %d", channels)
	}
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".png", ".jpg", ".jpeg":
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan image folder %s: %w", dir, err)
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("image folder %s contains no images", dir)
	}
	sort.Strings(paths)
	return &ImageFolder{paths: paths, size: size, channels: channels}, nil
}

// Len returns the number of images.
func (f *ImageFolder) Len() int { return len(f.paths) }

// Dim returns channels*size*size.
func (f *ImageFolder) Dim() int { return f.channels * f.size * f.size }

// Image decodes, resizes, and normalizes image i.
func (f *ImageFolder) Image(i int) ([]float32, error) {
	if i < 0 || i >= len(f.paths) {
		return nil, fmt.Errorf("image folder: index %d out of range [0, %d)", i, len(f.paths))
	}
	file, err := os.Open(f.paths[i])
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", f.paths[i], err)
	}
	defer file.Close()

	src, _, err := image.Decode(file)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", f.paths[i], err)
	}

	dst := image.NewRGBA(image.Rect(0, 0, f.size, f.size))
	draw.BiLinear.Scale(dst, dst.Bounds(), src, src.Bounds(), draw.Src, nil)

	out := make([]float32, f.Dim())
	plane := f.size * f.size
	for y := 0; y < f.size; y++ {
		for x := 0; x < f.size; x++ {
			o := dst.PixOffset(x, y)
			r := float32(dst.Pix[o])
			g := float32(dst.Pix[o+1])
			b := float32(dst.Pix[o+2])
			p := y*f.size + x
			if f.channels == 1 {
				// ITU-R BT.601 luma.
				out[p] = (0.299*r+0.587*g+0.114*b)/127.5 - 1.0
			} else {
				out[p] = r/127.5 - 1.0
				out[plane+p] = g/127.5 - 1.0
				out[2*plane+p] = b/127.5 - 1.0
			}
		}
	}
	return out, nil
}
