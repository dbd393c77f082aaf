package nn

import (
	"fmt"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// MLPDecoder maps latent vectors back to flattened images.
//
// When withTanh is set (the default), the output is squashed into (-1, 1)
// to match the input normalization.
type MLPDecoder struct {
	zDim   int
	outDim int

	net *Sequential
}

// NewMLPDecoder creates a decoder with the given hidden layer widths.
func NewMLPDecoder(zDim, outDim int, hidden []int, withTanh bool, g *rng.Generator) *MLPDecoder {
	if len(hidden) == 0 {
		hidden = []int{256, 512}
	}

	var layers []Module
	prev := zDim
	for i, h := range hidden {
		layers = append(layers,
			NewLinear(fmt.Sprintf("net.%d", i), prev, h, g),
			NewLeakyReLU(0.2),
		)
		prev = h
	}
	layers = append(layers, NewLinear("out", prev, outDim, g))
	if withTanh {
		layers = append(layers, NewTanh())
	}

	return &MLPDecoder{
		zDim:   zDim,
		outDim: outDim,
		net:    NewSequential(layers...),
	}
}

// Decode maps [batch, z_dim] to [batch, out_dim].
func (d *MLPDecoder) Decode(z *tensor.Tensor) *tensor.Tensor {
	return d.net.Forward(z)
}

// DecodeBackward accumulates gradients and returns dL/dz.
func (d *MLPDecoder) DecodeBackward(grad *tensor.Tensor) *tensor.Tensor {
	return d.net.Backward(grad)
}

// Parameters returns all trainable parameters.
func (d *MLPDecoder) Parameters() []*Parameter {
	return d.net.Parameters()
}

// ZDim returns the latent dimension.
func (d *MLPDecoder) ZDim() int { return d.zDim }

// OutDim returns the flattened output dimension.
func (d *MLPDecoder) OutDim() int { return d.outDim }
