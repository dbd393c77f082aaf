// Package sample implements post-training inference: random sampling,
// latent interpolation, and per-dimension traversal.
//
// All modes run strictly in inference: parameters are never mutated and no
// gradients are accumulated (gradients only exist when a Backward pass is
// invoked, which the sampler never does). Output is deterministic for a
// fixed seed.
package sample

import (
	"errors"
	"fmt"
	"path/filepath"

	"gonum.org/v1/gonum/floats"

	"github.com/latentml/vae/internal/imageio"
	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// Mode selects the sampling procedure. Modes are mutually exclusive per
// invocation.
type Mode string

// Sampling modes.
const (
	ModeSample      Mode = "sample"      // decode prior draws
	ModeInterpolate Mode = "interpolate" // decode lines between latent pairs
	ModeTraverse    Mode = "traverse"    // sweep one latent dimension
)

// ErrInvalidArgument marks argument validation failures. The sampler
// checks every option before the first decode call.
var ErrInvalidArgument = errors.New("invalid argument")

// Options configures one sampler invocation. Zero values take the
// documented defaults.
type Options struct {
	Mode          Mode
	NSamples      int     // number of outputs (images or sequences); required
	BatchSize     int     // decode batch size (default 500)
	NInterpolate  int     // points per interpolation, endpoints included (default 15)
	NTraverse     int     // points per traversal (default 15)
	TraverseRange float64 // sweep covers [-range, +range] (default 3)
	TraverseDim   int     // latent dimension to sweep (default 0)
	SaveDir       string  // output directory; required
	Upscale       int     // integer upscale factor for written grids (default 1)
}

func (o Options) withDefaults() Options {
	if o.Mode == "" {
		o.Mode = ModeSample
	}
	if o.BatchSize == 0 {
		o.BatchSize = 500
	}
	if o.NInterpolate == 0 {
		o.NInterpolate = 15
	}
	if o.NTraverse == 0 {
		o.NTraverse = 15
	}
	if o.TraverseRange == 0 {
		o.TraverseRange = 3
	}
	return o
}

// Sampler decodes latent vectors into image grids.
type Sampler struct {
	dec      nn.Decoder
	channels int
	height   int
	width    int
	gen      *rng.Generator
}

// New creates a sampler around a decoder with the given output geometry.
func New(dec nn.Decoder, channels, height, width int, g *rng.Generator) (*Sampler, error) {
	if dec.OutDim() != channels*height*width {
		return nil, fmt.Errorf("sampler: decoder out_dim mismatch: expected %d (%d×%d×%d), got %d",
			channels*height*width, channels, height, width, dec.OutDim())
	}
	return &Sampler{dec: dec, channels: channels, height: height, width: width, gen: g}, nil
}

// Run validates opts and dispatches to the selected mode.
func (s *Sampler) Run(opts Options) error {
	opts = opts.withDefaults()
	if err := s.validate(opts); err != nil {
		return err
	}
	switch opts.Mode {
	case ModeSample:
		return s.sample(opts)
	case ModeInterpolate:
		return s.interpolate(opts)
	case ModeTraverse:
		return s.traverse(opts)
	default:
		return fmt.Errorf("%w: unknown sample mode %q", ErrInvalidArgument, opts.Mode)
	}
}

// validate fails fast, before any decode call.
func (s *Sampler) validate(opts Options) error {
	if opts.NSamples <= 0 {
		return fmt.Errorf("%w: n_samples must be positive, got %d", ErrInvalidArgument, opts.NSamples)
	}
	if opts.SaveDir == "" {
		return fmt.Errorf("%w: save_dir is required", ErrInvalidArgument)
	}
	if opts.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive, got %d", ErrInvalidArgument, opts.BatchSize)
	}
	switch opts.Mode {
	case ModeInterpolate:
		if opts.NInterpolate < 2 {
			return fmt.Errorf("%w: n_interpolate must be at least 2, got %d", ErrInvalidArgument, opts.NInterpolate)
		}
	case ModeTraverse:
		if opts.NTraverse < 2 {
			return fmt.Errorf("%w: n_traverse must be at least 2, got %d", ErrInvalidArgument, opts.NTraverse)
		}
		if opts.TraverseDim < 0 || opts.TraverseDim >= s.dec.ZDim() {
			return fmt.Errorf("%w: traverse_dim %d out of range [0, %d)", ErrInvalidArgument, opts.TraverseDim, s.dec.ZDim())
		}
	}
	return nil
}

// amortize splits n into chunks of at most batchSize.
func amortize(n, batchSize int) []int {
	var folds []int
	for n > 0 {
		b := min(n, batchSize)
		folds = append(folds, b)
		n -= b
	}
	return folds
}

// sample decodes NSamples prior draws and writes one PNG per sample.
func (s *Sampler) sample(opts Options) error {
	idx := 0
	for _, bs := range amortize(opts.NSamples, opts.BatchSize) {
		z := tensor.Randn(tensor.Shape{bs, s.dec.ZDim()}, s.gen)
		decoded := s.dec.Decode(z)
		for i := 0; i < bs; i++ {
			if err := s.writeSequence(decoded, i, i+1, opts, fmt.Sprintf("sample_%06d.png", idx)); err != nil {
				return err
			}
			idx++
		}
	}
	return nil
}

// interpolate writes NSamples sequences, each a row of NInterpolate
// decodes along the line between two prior draws. For t over
// linspace(0, 1, n), the latent is z1*t + z2*(1-t); with n=3 the middle
// latent is exactly (z1+z2)/2.
func (s *Sampler) interpolate(opts Options) error {
	zDim := s.dec.ZDim()
	ts := floats.Span(make([]float64, opts.NInterpolate), 0, 1)

	for seq := 0; seq < opts.NSamples; seq++ {
		z1 := tensor.Randn(tensor.Shape{1, zDim}, s.gen)
		z2 := tensor.Randn(tensor.Shape{1, zDim}, s.gen)

		z := tensor.New(tensor.Shape{opts.NInterpolate, zDim})
		for i, t := range ts {
			row := z.Row(i)
			a, b := z1.Row(0), z2.Row(0)
			for j := range row {
				row[j] = a[j]*float32(t) + b[j]*float32(1-t)
			}
		}
		decoded := s.dec.Decode(z)
		if err := s.writeSequence(decoded, 0, opts.NInterpolate, opts, fmt.Sprintf("interpolate_%06d.png", seq)); err != nil {
			return err
		}
	}
	return nil
}

// traverse writes NSamples sequences. Each starts from one prior draw and
// sweeps TraverseDim over linspace(-range, +range, NTraverse) while all
// other dimensions stay fixed.
func (s *Sampler) traverse(opts Options) error {
	zDim := s.dec.ZDim()
	vals := floats.Span(make([]float64, opts.NTraverse), -opts.TraverseRange, opts.TraverseRange)

	for seq := 0; seq < opts.NSamples; seq++ {
		base := tensor.Randn(tensor.Shape{1, zDim}, s.gen)

		z := tensor.New(tensor.Shape{opts.NTraverse, zDim})
		for i, v := range vals {
			row := z.Row(i)
			copy(row, base.Row(0))
			row[opts.TraverseDim] = float32(v)
		}
		decoded := s.dec.Decode(z)
		if err := s.writeSequence(decoded, 0, opts.NTraverse, opts, fmt.Sprintf("traverse_dim%d_%06d.png", opts.TraverseDim, seq)); err != nil {
			return err
		}
	}
	return nil
}

// writeSequence renders rows [from, to) of decoded as a single-row grid.
func (s *Sampler) writeSequence(decoded *tensor.Tensor, from, to int, opts Options, name string) error {
	n := to - from
	seq := tensor.New(tensor.Shape{n, decoded.Shape()[1]})
	for i := 0; i < n; i++ {
		copy(seq.Row(i), decoded.Row(from+i))
	}
	grid, err := imageio.Grid(seq, s.channels, s.height, s.width, n)
	if err != nil {
		return err
	}
	return imageio.WritePNG(filepath.Join(opts.SaveDir, name), imageio.Upscale(grid, opts.Upscale))
}

// WriteRandomGrid decodes n prior draws into one roughly square grid at
// path. Used by the training loop for periodic sample dumps.
func (s *Sampler) WriteRandomGrid(n int, path string) error {
	if n <= 0 {
		return fmt.Errorf("%w: n must be positive, got %d", ErrInvalidArgument, n)
	}
	z := tensor.Randn(tensor.Shape{n, s.dec.ZDim()}, s.gen)
	decoded := s.dec.Decode(z)

	perRow := 1
	for perRow*perRow < n {
		perRow++
	}
	grid, err := imageio.Grid(decoded, s.channels, s.height, s.width, perRow)
	if err != nil {
		return err
	}
	return imageio.WritePNG(path, grid)
}
