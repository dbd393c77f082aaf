// Package nn implements the neural network modules the VAE trainer
// orchestrates.
//
// Modules are black-box differentiable functions: Forward computes the
// output, Backward takes the gradient of the loss with respect to the
// output, accumulates parameter gradients, and returns the gradient with
// respect to the input. The trainer never inspects a module beyond this
// contract, so encoders and decoders of any architecture can be plugged in.
package nn

import (
	"github.com/latentml/vae/internal/tensor"
)

// Module is the base interface for all neural network components.
type Module interface {
	// Forward computes the output of the module given an input tensor.
	Forward(input *tensor.Tensor) *tensor.Tensor

	// Backward takes dL/d(output), accumulates gradients into the module's
	// parameters, and returns dL/d(input). It must be called after Forward
	// with tensors from the same step.
	Backward(grad *tensor.Tensor) *tensor.Tensor

	// Parameters returns all trainable parameters of this module.
	Parameters() []*Parameter
}

// Encoder maps an image batch [batch, in_dim] to the per-sample latent
// distribution (mean, log-variance), each [batch, z_dim].
type Encoder interface {
	Encode(input *tensor.Tensor) (mean, logvar *tensor.Tensor)

	// EncodeBackward accumulates gradients given dL/d(mean) and dL/d(logvar).
	EncodeBackward(dMean, dLogvar *tensor.Tensor)

	Parameters() []*Parameter
	InDim() int
	ZDim() int
}

// Decoder maps a latent batch [batch, z_dim] to a reconstructed image
// batch [batch, out_dim].
type Decoder interface {
	Decode(z *tensor.Tensor) *tensor.Tensor

	// DecodeBackward accumulates gradients and returns dL/dz.
	DecodeBackward(grad *tensor.Tensor) *tensor.Tensor

	Parameters() []*Parameter
	ZDim() int
	OutDim() int
}

// Discriminator scores latent codes, producing one logit per sample.
// Positive logits mean "drawn from the prior".
type Discriminator interface {
	Discriminate(z *tensor.Tensor) *tensor.Tensor

	// DiscriminateBackward accumulates gradients and returns dL/dz.
	DiscriminateBackward(dLogits *tensor.Tensor) *tensor.Tensor

	Parameters() []*Parameter
	ZDim() int
}

// Sequential chains modules, feeding each output into the next input.
type Sequential struct {
	layers []Module
}

// NewSequential creates a sequential container over layers.
func NewSequential(layers ...Module) *Sequential {
	return &Sequential{layers: layers}
}

// Forward runs the input through every layer in order.
func (s *Sequential) Forward(input *tensor.Tensor) *tensor.Tensor {
	x := input
	for _, layer := range s.layers {
		x = layer.Forward(x)
	}
	return x
}

// Backward propagates the gradient through the layers in reverse order.
func (s *Sequential) Backward(grad *tensor.Tensor) *tensor.Tensor {
	g := grad
	for i := len(s.layers) - 1; i >= 0; i-- {
		g = s.layers[i].Backward(g)
	}
	return g
}

// Parameters returns the parameters of all layers.
func (s *Sequential) Parameters() []*Parameter {
	var params []*Parameter
	for _, layer := range s.layers {
		params = append(params, layer.Parameters()...)
	}
	return params
}
