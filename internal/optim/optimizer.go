// Package optim implements the optimizers driving parameter updates.
//
// Optimizers are black-box step functions over a fixed parameter set: the
// training loop accumulates gradients into the parameters via the modules'
// backward passes, calls Step to mutate the parameters, then ZeroGrad.
// Optimizer state (momentum buffers, Adam moments, timestep) is exposed as
// a state dictionary so checkpoints can restore it exactly.
package optim

import (
	"fmt"

	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/tensor"
)

// Optimizer is the base interface for all optimization algorithms.
type Optimizer interface {
	// Step applies the accumulated parameter gradients. Parameters whose
	// gradient buffer is nil are skipped.
	Step()

	// ZeroGrad clears all parameter gradients.
	ZeroGrad()

	// LR returns the current learning rate.
	LR() float64

	// StateDict returns the optimizer state for serialization.
	StateDict() map[string]*tensor.Tensor

	// LoadStateDict restores optimizer state. Missing or misshapen entries
	// are an error; resume must never silently drop state.
	LoadStateDict(dict map[string]*tensor.Tensor) error
}

// loadBuffer copies a named buffer from dict into dst, validating shape.
func loadBuffer(dict map[string]*tensor.Tensor, name string, dst *tensor.Tensor) error {
	src, ok := dict[name]
	if !ok {
		return fmt.Errorf("missing optimizer buffer %q in state dict", name)
	}
	if !src.Shape().Equal(dst.Shape()) {
		return &nn.ShapeError{Name: name, Want: dst.Shape(), Got: src.Shape()}
	}
	copy(dst.Data(), src.Data())
	return nil
}
