package nn

import (
	"fmt"

	"github.com/latentml/vae/internal/tensor"
)

// ShapeError reports a mismatch between a configured parameter shape and
// the shape found in a state dictionary.
type ShapeError struct {
	Name string
	Want tensor.Shape
	Got  tensor.Shape
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("parameter %q: shape mismatch: expected %v, got %v", e.Name, e.Want, e.Got)
}

// StateDict returns a map of parameter names to tensors.
//
// The tensors are the live parameter tensors, not copies; callers that
// persist them must copy or encode before the next optimizer step.
func StateDict(params []*Parameter) map[string]*tensor.Tensor {
	dict := make(map[string]*tensor.Tensor, len(params))
	for _, p := range params {
		dict[p.Name()] = p.Tensor()
	}
	return dict
}

// LoadStateDict copies tensors from dict into params.
//
// Every parameter must be present with a matching shape; a partial restore
// is an error, never a silent skip.
func LoadStateDict(params []*Parameter, dict map[string]*tensor.Tensor) error {
	for _, p := range params {
		src, ok := dict[p.Name()]
		if !ok {
			return fmt.Errorf("missing parameter %q in state dict", p.Name())
		}
		if !src.Shape().Equal(p.Tensor().Shape()) {
			return &ShapeError{Name: p.Name(), Want: p.Tensor().Shape(), Got: src.Shape()}
		}
		copy(p.Tensor().Data(), src.Data())
	}
	return nil
}

// NumParameters returns the total element count across params.
func NumParameters(params []*Parameter) int {
	n := 0
	for _, p := range params {
		n += p.Tensor().NumElements()
	}
	return n
}
