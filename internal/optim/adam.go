package optim

import (
	"math"

	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/tensor"
)

// Adam implements the Adam (Adaptive Moment Estimation) optimizer.
//
// Update rule:
//
//	m_t = beta1 * m_{t-1} + (1-beta1) * gradient
//	v_t = beta2 * v_{t-1} + (1-beta2) * gradient²
//	m_hat = m_t / (1 - beta1^t)
//	v_hat = v_t / (1 - beta2^t)
//	param = param - lr * m_hat / (sqrt(v_hat) + eps)
//
// Reference: "Adam: A Method for Stochastic Optimization" (Kingma & Ba, 2014).
type Adam struct {
	params []*nn.Parameter
	lr     float32
	beta1  float32
	beta2  float32
	eps    float32
	t      int64
	m      []*tensor.Tensor // first moment estimates
	v      []*tensor.Tensor // second moment estimates
}

// AdamConfig holds configuration for the Adam optimizer.
type AdamConfig struct {
	LR    float64    // Learning rate (default: 0.001)
	Betas [2]float64 // Running-average coefficients (default: [0.9, 0.999])
	Eps   float64    // Numerical stability term (default: 1e-8)
}

// NewAdam creates an Adam optimizer over params.
func NewAdam(params []*nn.Parameter, config AdamConfig) *Adam {
	if config.LR == 0 {
		config.LR = 0.001
	}
	if config.Betas[0] == 0 {
		config.Betas[0] = 0.9
	}
	if config.Betas[1] == 0 {
		config.Betas[1] = 0.999
	}
	if config.Eps == 0 {
		config.Eps = 1e-8
	}

	m := make([]*tensor.Tensor, len(params))
	v := make([]*tensor.Tensor, len(params))
	for i, p := range params {
		m[i] = tensor.New(p.Tensor().Shape())
		v[i] = tensor.New(p.Tensor().Shape())
	}

	return &Adam{
		params: params,
		lr:     float32(config.LR),
		beta1:  float32(config.Betas[0]),
		beta2:  float32(config.Betas[1]),
		eps:    float32(config.Eps),
		m:      m,
		v:      v,
	}
}

// Step applies one Adam update to every parameter with a gradient.
func (a *Adam) Step() {
	a.t++
	biasCorrection1 := float32(1.0 - math.Pow(float64(a.beta1), float64(a.t)))
	biasCorrection2 := float32(1.0 - math.Pow(float64(a.beta2), float64(a.t)))

	for i, p := range a.params {
		grad := p.Grad()
		if grad == nil {
			continue
		}
		gradData := grad.Data()
		mData := a.m[i].Data()
		vData := a.v[i].Data()
		paramData := p.Tensor().Data()

		for j := range paramData {
			g := gradData[j]
			mData[j] = a.beta1*mData[j] + (1.0-a.beta1)*g
			vData[j] = a.beta2*vData[j] + (1.0-a.beta2)*g*g
			mHat := mData[j] / biasCorrection1
			vHat := vData[j] / biasCorrection2
			paramData[j] -= a.lr * mHat / (float32(math.Sqrt(float64(vHat))) + a.eps)
		}
	}
}

// ZeroGrad clears gradients for all parameters.
func (a *Adam) ZeroGrad() { nn.ZeroGrad(a.params) }

// LR returns the current learning rate.
func (a *Adam) LR() float64 { return float64(a.lr) }

// StateDict returns the moment buffers and timestep.
//
// The timestep rides along as a one-element tensor so the whole state fits
// the checkpoint's tensor table.
func (a *Adam) StateDict() map[string]*tensor.Tensor {
	dict := make(map[string]*tensor.Tensor, 2*len(a.params)+1)
	for i, p := range a.params {
		dict["m."+p.Name()] = a.m[i]
		dict["v."+p.Name()] = a.v[i]
	}
	dict["t"] = tensor.Full(tensor.Shape{1}, float32(a.t))
	return dict
}

// LoadStateDict restores the moment buffers and timestep.
func (a *Adam) LoadStateDict(dict map[string]*tensor.Tensor) error {
	for i, p := range a.params {
		if err := loadBuffer(dict, "m."+p.Name(), a.m[i]); err != nil {
			return err
		}
		if err := loadBuffer(dict, "v."+p.Name(), a.v[i]); err != nil {
			return err
		}
	}
	t := tensor.New(tensor.Shape{1})
	if err := loadBuffer(dict, "t", t); err != nil {
		return err
	}
	a.t = int64(t.Data()[0])
	return nil
}
