package nn

import (
	"math"

	"github.com/latentml/vae/internal/tensor"
)

// ReLU applies max(0, x) elementwise.
type ReLU struct {
	input *tensor.Tensor
}

// NewReLU creates a ReLU activation.
func NewReLU() *ReLU { return &ReLU{} }

// Forward computes max(0, x).
func (r *ReLU) Forward(input *tensor.Tensor) *tensor.Tensor {
	r.input = input
	out := tensor.New(input.Shape())
	in, o := input.Data(), out.Data()
	for i, v := range in {
		if v > 0 {
			o[i] = v
		}
	}
	return out
}

// Backward passes the gradient through where the input was positive.
func (r *ReLU) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(grad.Shape())
	in, g, o := r.input.Data(), grad.Data(), out.Data()
	for i := range g {
		if in[i] > 0 {
			o[i] = g[i]
		}
	}
	return out
}

// Parameters returns nil; activations have no trainable parameters.
func (r *ReLU) Parameters() []*Parameter { return nil }

// LeakyReLU applies x for x > 0 and alpha*x otherwise.
type LeakyReLU struct {
	alpha float32
	input *tensor.Tensor
}

// NewLeakyReLU creates a LeakyReLU with the given negative slope.
func NewLeakyReLU(alpha float32) *LeakyReLU {
	return &LeakyReLU{alpha: alpha}
}

// Forward computes the leaky rectifier.
func (l *LeakyReLU) Forward(input *tensor.Tensor) *tensor.Tensor {
	l.input = input
	out := tensor.New(input.Shape())
	in, o := input.Data(), out.Data()
	for i, v := range in {
		if v > 0 {
			o[i] = v
		} else {
			o[i] = l.alpha * v
		}
	}
	return out
}

// Backward scales the gradient by 1 or alpha depending on the input sign.
func (l *LeakyReLU) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(grad.Shape())
	in, g, o := l.input.Data(), grad.Data(), out.Data()
	for i := range g {
		if in[i] > 0 {
			o[i] = g[i]
		} else {
			o[i] = l.alpha * g[i]
		}
	}
	return out
}

// Parameters returns nil.
func (l *LeakyReLU) Parameters() []*Parameter { return nil }

// Tanh applies tanh elementwise. Used as the decoder output activation so
// reconstructions live in (-1, 1).
type Tanh struct {
	output *tensor.Tensor
}

// NewTanh creates a Tanh activation.
func NewTanh() *Tanh { return &Tanh{} }

// Forward computes tanh(x).
func (t *Tanh) Forward(input *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(input.Shape())
	in, o := input.Data(), out.Data()
	for i, v := range in {
		o[i] = float32(math.Tanh(float64(v)))
	}
	t.output = out
	return out
}

// Backward computes grad * (1 - tanh(x)^2) using the cached output.
func (t *Tanh) Backward(grad *tensor.Tensor) *tensor.Tensor {
	out := tensor.New(grad.Shape())
	y, g, o := t.output.Data(), grad.Data(), out.Data()
	for i := range g {
		o[i] = g[i] * (1 - y[i]*y[i])
	}
	return out
}

// Parameters returns nil.
func (t *Tanh) Parameters() []*Parameter { return nil }
