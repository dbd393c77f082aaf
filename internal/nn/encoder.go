package nn

import (
	"fmt"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// MLPEncoder maps flattened images to the parameters of a diagonal
// Gaussian over the latent space.
//
// A shared trunk of Linear+LeakyReLU blocks feeds two separate heads, one
// producing the mean and one the log-variance, mirroring the usual
// two-head VAE encoder.
type MLPEncoder struct {
	inDim int
	zDim  int

	trunk      *Sequential
	meanHead   *Linear
	logvarHead *Linear
}

// NewMLPEncoder creates an encoder with the given hidden layer widths.
func NewMLPEncoder(inDim, zDim int, hidden []int, g *rng.Generator) *MLPEncoder {
	if len(hidden) == 0 {
		hidden = []int{512, 256}
	}

	var layers []Module
	prev := inDim
	for i, h := range hidden {
		layers = append(layers,
			NewLinear(fmt.Sprintf("trunk.%d", i), prev, h, g),
			NewLeakyReLU(0.2),
		)
		prev = h
	}

	return &MLPEncoder{
		inDim:      inDim,
		zDim:       zDim,
		trunk:      NewSequential(layers...),
		meanHead:   NewLinear("mean_head", prev, zDim, g),
		logvarHead: NewLinear("logvar_head", prev, zDim, g),
	}
}

// Encode returns (mean, logvar), each [batch, z_dim].
func (e *MLPEncoder) Encode(input *tensor.Tensor) (mean, logvar *tensor.Tensor) {
	h := e.trunk.Forward(input)
	return e.meanHead.Forward(h), e.logvarHead.Forward(h)
}

// EncodeBackward accumulates gradients from both heads through the trunk.
func (e *MLPEncoder) EncodeBackward(dMean, dLogvar *tensor.Tensor) {
	dh := e.meanHead.Backward(dMean)
	dh.AddInPlace(e.logvarHead.Backward(dLogvar))
	e.trunk.Backward(dh)
}

// Parameters returns all trainable parameters.
func (e *MLPEncoder) Parameters() []*Parameter {
	params := e.trunk.Parameters()
	params = append(params, e.meanHead.Parameters()...)
	params = append(params, e.logvarHead.Parameters()...)
	return params
}

// InDim returns the flattened input dimension.
func (e *MLPEncoder) InDim() int { return e.inDim }

// ZDim returns the latent dimension.
func (e *MLPEncoder) ZDim() int { return e.zDim }
