// Package data provides the datasets and the prefetching batch loader
// feeding the training loop.
//
// A Dataset is an opaque indexed collection of flattened images; the
// trainer never sees files or decoding, only float32 vectors in the
// decoder's output range (-1, 1). The Loader turns a dataset into an
// infinite, deterministically shuffled stream of batches with bounded
// asynchronous prefetch.
package data

import (
	"fmt"
	"math"
)

// Dataset is an opaque indexed collection of images.
type Dataset interface {
	// Len returns the number of images.
	Len() int

	// Image returns image i as a flattened float32 vector in (-1, 1).
	Image(i int) ([]float32, error)

	// Dim returns the flattened image length (channels*height*width).
	Dim() int
}

// Synthetic is a deterministic in-memory dataset of smooth 2D patterns.
//
// It exists for tests and for exercising the full pipeline without any
// files on disk.
type Synthetic struct {
	n      int
	height int
	width  int
	images [][]float32
}

// NewSynthetic creates n grayscale height×width pattern images.
func NewSynthetic(n, height, width int) *Synthetic {
	s := &Synthetic{n: n, height: height, width: width}
	s.images = make([][]float32, n)
	for i := range s.images {
		img := make([]float32, height*width)
		// Phase-shifted sinusoid grids so each image is distinct but smooth.
		fx := 1.0 + float64(i%5)
		fy := 1.0 + float64((i/5)%5)
		phase := float64(i) * 0.7
		for y := 0; y < height; y++ {
			for x := 0; x < width; x++ {
				v := math.Sin(fx*float64(x)/float64(width)*2*math.Pi+phase) *
					math.Cos(fy*float64(y)/float64(height)*2*math.Pi)
				img[y*width+x] = float32(v)
			}
		}
		s.images[i] = img
	}
	return s
}

// Len returns the number of images.
func (s *Synthetic) Len() int { return s.n }

// Dim returns height*width.
func (s *Synthetic) Dim() int { return s.height * s.width }

// Image returns image i.
func (s *Synthetic) Image(i int) ([]float32, error) {
	if i < 0 || i >= s.n {
		return nil, fmt.Errorf("synthetic: index %d out of range [0, %d)", i, s.n)
	}
	return s.images[i], nil
}
