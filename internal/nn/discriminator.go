package nn

import (
	"fmt"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// LatentMLP is a discriminator over latent codes.
//
// It scores each code with a single logit: high for codes that look like
// draws from the standard normal prior, low for encoder outputs. Used by
// the adversarial loss variant; its parameters are disjoint from the
// encoder and decoder so the two optimizer updates cannot interfere.
type LatentMLP struct {
	zDim int
	net  *Sequential
}

// NewLatentMLP creates a latent discriminator with the given hidden widths.
func NewLatentMLP(zDim int, hidden []int, g *rng.Generator) *LatentMLP {
	if len(hidden) == 0 {
		hidden = []int{256, 256}
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
	layers = append(layers, NewLinear("out", prev, 1, g))

	return &LatentMLP{zDim: zDim, net: NewSequential(layers...)}
}

// Discriminate maps [batch, z_dim] to logits [batch, 1].
func (d *LatentMLP) Discriminate(z *tensor.Tensor) *tensor.Tensor {
	return d.net.Forward(z)
}

// DiscriminateBackward accumulates gradients and returns dL/dz.
func (d *LatentMLP) DiscriminateBackward(dLogits *tensor.Tensor) *tensor.Tensor {
	return d.net.Backward(dLogits)
}

// Parameters returns all trainable parameters.
func (d *LatentMLP) Parameters() []*Parameter {
	return d.net.Parameters()
}

// ZDim returns the latent dimension.
func (d *LatentMLP) ZDim() int { return d.zDim }
