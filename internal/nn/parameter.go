package nn

import (
	"github.com/latentml/vae/internal/tensor"
)

// Parameter represents a trainable parameter in a neural network.
//
// Parameters hold the tensor being optimized and a gradient buffer into
// which Backward passes accumulate. Distinct parameter sets (for example
// the VAE models versus the discriminator) accumulate independently.
type Parameter struct {
	name   string
	tensor *tensor.Tensor
	grad   *tensor.Tensor
}

// NewParameter creates a new trainable parameter.
//
// The name should be qualified by the owning model (e.g. "trunk.0.weight")
// so state dictionaries have stable, unique keys.
func NewParameter(name string, t *tensor.Tensor) *Parameter {
	return &Parameter{name: name, tensor: t}
}

// Name returns the parameter name.
func (p *Parameter) Name() string { return p.name }

// Tensor returns the parameter tensor.
func (p *Parameter) Tensor() *tensor.Tensor { return p.tensor }

// Grad returns the accumulated gradient, or nil before the first backward
// pass since the last ZeroGrad.
func (p *Parameter) Grad() *tensor.Tensor { return p.grad }

// AccumGrad adds g into the parameter's gradient buffer.
func (p *Parameter) AccumGrad(g *tensor.Tensor) {
	if p.grad == nil {
		p.grad = g.Clone()
		return
	}
	p.grad.AddInPlace(g)
}

// ZeroGrad clears the gradient buffer.
//
// Called after each optimizer step to avoid accumulating gradients
// across iterations.
func (p *Parameter) ZeroGrad() { p.grad = nil }

// ZeroGrad clears the gradients of every parameter in params.
func ZeroGrad(params []*Parameter) {
	for _, p := range params {
		p.ZeroGrad()
	}
}
