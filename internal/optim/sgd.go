package optim

import (
	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/tensor"
)

// SGD implements stochastic gradient descent with optional momentum.
//
// Update rule with momentum:
//
//	v_t = momentum * v_{t-1} + gradient
//	param = param - lr * v_t
type SGD struct {
	params   []*nn.Parameter
	lr       float32
	momentum float32
	velocity []*tensor.Tensor // one buffer per parameter, allocated eagerly
}

// SGDConfig holds configuration for the SGD optimizer.
type SGDConfig struct {
	LR       float64 // Learning rate (default: 0.01)
	Momentum float64 // Momentum factor (default: 0, plain SGD)
}

// NewSGD creates an SGD optimizer over params.
func NewSGD(params []*nn.Parameter, config SGDConfig) *SGD {
	if config.LR == 0 {
		config.LR = 0.01
	}
	velocity := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		velocity[i] = tensor.New(p.Tensor().Shape())
	}
	return &SGD{
		params:   params,
		lr:       float32(config.LR),
		momentum: float32(config.Momentum),
		velocity: velocity,
	}
}

// Step applies one SGD update to every parameter with a gradient.
func (s *SGD) Step() {
	for i, p := range s.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		gradData := grad.Data()
		paramData := p.Tensor().Data()
		if s.momentum == 0 {
			for j := range paramData {
				paramData[j] -= s.lr * gradData[j]
			}
			continue
		}
		velData := s.velocity[i].Data()
		for j := range paramData {
			velData[j] = s.momentum*velData[j] + gradData[j]
			paramData[j] -= s.lr * velData[j]
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (s *SGD) ZeroGrad() { nn.ZeroGrad(s.params) }

// LR returns the current learning rate.
func (s *SGD) LR() float64 { return float64(s.lr) }

// StateDict returns the momentum buffers keyed by parameter name.
func (s *SGD) StateDict() map[string]*tensor.Tensor {
	dict := make(map[string]*tensor.Tensor, len(s.params))
	for i, p := range s.params {
		dict["momentum."+p.Name()] = s.velocity[i]
	}
	return dict
}

// LoadStateDict restores the momentum buffers.
func (s *SGD) LoadStateDict(dict map[string]*tensor.Tensor) error {
	for i, p := range s.params {
		if err := loadBuffer(dict, "momentum."+p.Name(), s.velocity[i]); err != nil {
			return err
		}
	}
	return nil
}
