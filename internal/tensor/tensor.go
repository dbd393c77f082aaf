// Package tensor implements the float32 tensors used by the VAE training
// engine.
//
// The engine works on flattened image batches of shape [batch, dim] and
// latent batches of shape [batch, z_dim], so the package keeps to dense
// row-major float32 storage plus the elementwise and matrix operations the
// loss engine and layers need. Random creation is RNG-explicit: Randn takes
// a *rng.Generator so every noise draw is attributable to a serializable
// stream.
package tensor

import (
	"fmt"

	"github.com/latentml/vae/internal/rng"
)

// Tensor is a dense row-major float32 tensor.
type Tensor struct {
	shape Shape
	data  []float32
}

// New creates a zero-filled tensor with the given shape.
func New(shape Shape) *Tensor {
	if err := shape.Validate(); err != nil {
		panic(fmt.Sprintf("tensor.New: %v", err))
	}
	return &Tensor{
		shape: shape.Clone(),
		data:  make([]float32, shape.NumElements()),
	}
}

// FromSlice creates a tensor backed by a copy of data.
func FromSlice(data []float32, shape Shape) (*Tensor, error) {
	if err := shape.Validate(); err != nil {
		return nil, err
	}
	if len(data) != shape.NumElements() {
		return nil, fmt.Errorf("data length %d does not match shape %v (%d elements)",
			len(data), shape, shape.NumElements())
	}
	t := New(shape)
	copy(t.data, data)
	return t, nil
}

// Full creates a tensor filled with value.
func Full(shape Shape, value float32) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = value
	}
	return t
}

// Randn creates a tensor with values drawn from N(0, 1) using g.
func Randn(shape Shape, g *rng.Generator) *Tensor {
	t := New(shape)
	for i := range t.data {
		t.data[i] = float32(g.NormFloat64())
	}
	return t
}

// Shape returns the tensor shape. The returned slice must not be mutated.
func (t *Tensor) Shape() Shape { return t.shape }

// Data returns the backing slice. Mutations are visible to the tensor.
func (t *Tensor) Data() []float32 { return t.data }

// NumElements returns the total element count.
func (t *Tensor) NumElements() int { return len(t.data) }

// Clone returns a deep copy.
func (t *Tensor) Clone() *Tensor {
	c := New(t.shape)
	copy(c.data, t.data)
	return c
}

// Row returns a view of row i of a 2D tensor.
func (t *Tensor) Row(i int) []float32 {
	if len(t.shape) != 2 {
		panic(fmt.Sprintf("tensor.Row: expected 2D tensor, got shape %v", t.shape))
	}
	cols := t.shape[1]
	return t.data[i*cols : (i+1)*cols]
}
