package nn

import (
	"fmt"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// Linear implements a fully connected layer: y = x @ W.T + b.
//
// Weight shape is [out_features, in_features], bias is [out_features].
// Weights use Xavier/Glorot uniform initialization, biases start at zero.
type Linear struct {
	inFeatures  int
	outFeatures int
	weight      *Parameter
	bias        *Parameter

	input *tensor.Tensor // cached by Forward for the backward pass
}

// NewLinear creates a Linear layer whose parameters are named
// name+".weight" and name+".bias".
func NewLinear(name string, inFeatures, outFeatures int, g *rng.Generator) *Linear {
	weight := NewParameter(name+".weight", Xavier(inFeatures, outFeatures, tensor.Shape{outFeatures, inFeatures}, g))
	bias := NewParameter(name+".bias", tensor.New(tensor.Shape{outFeatures}))
	return &Linear{
		inFeatures:  inFeatures,
		outFeatures: outFeatures,
		weight:      weight,
		bias:        bias,
	}
}

// Forward computes y = x @ W.T + b for input [batch, in_features].
func (l *Linear) Forward(input *tensor.Tensor) *tensor.Tensor {
	shape := input.Shape()
	if len(shape) != 2 {
		panic(fmt.Sprintf("Linear.Forward: expected 2D input [batch, features], got shape %v", shape))
	}
	if shape[1] != l.inFeatures {
		panic(fmt.Sprintf("Linear.Forward: expected input with %d features, got %d", l.inFeatures, shape[1]))
	}
	l.input = input

	out := input.MatMul(l.weight.Tensor().Transpose())
	outData := out.Data()
	biasData := l.bias.Tensor().Data()
	batch := shape[0]
	for i := 0; i < batch; i++ {
		row := outData[i*l.outFeatures : (i+1)*l.outFeatures]
		for j := range row {
			row[j] += biasData[j]
		}
	}
	return out
}

// Backward accumulates dW = dY.T @ X and db = column sums of dY, and
// returns dX = dY @ W.
func (l *Linear) Backward(grad *tensor.Tensor) *tensor.Tensor {
	if l.input == nil {
		panic("Linear.Backward: called before Forward")
	}
	gradShape := grad.Shape()
	if len(gradShape) != 2 || gradShape[1] != l.outFeatures {
		panic(fmt.Sprintf("Linear.Backward: expected grad shape [batch, %d], got %v", l.outFeatures, gradShape))
	}

	l.weight.AccumGrad(grad.Transpose().MatMul(l.input))

	db := tensor.New(tensor.Shape{l.outFeatures})
	dbData := db.Data()
	gradData := grad.Data()
	batch := gradShape[0]
	for i := 0; i < batch; i++ {
		row := gradData[i*l.outFeatures : (i+1)*l.outFeatures]
		for j := range row {
			dbData[j] += row[j]
		}
	}
	l.bias.AccumGrad(db)

	return grad.MatMul(l.weight.Tensor())
}

// Parameters returns [weight, bias].
func (l *Linear) Parameters() []*Parameter {
	return []*Parameter{l.weight, l.bias}
}

// InFeatures returns the number of input features.
func (l *Linear) InFeatures() int { return l.inFeatures }

// OutFeatures returns the number of output features.
func (l *Linear) OutFeatures() int { return l.outFeatures }
