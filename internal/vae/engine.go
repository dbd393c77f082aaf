// Package vae implements the reparameterization trick and the VAE loss
// engine.
//
// The engine owns one training step's math: encode the batch, draw a
// latent sample through the reparameterized affine transform, decode,
// compute the reconstruction and KL terms, and push gradients back through
// decoder and encoder. Two variants exist as distinct types: Plain (the
// standard VAE / β-VAE loss) and WithAdversary (adds a latent-code
// discriminator in the adversarial-autoencoder style).
package vae

import (
	"math"

	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// LogvarBound is the numeric safety bound on log-variance. Values outside
// ±LogvarBound are clamped before exponentiation so exp cannot overflow
// and poison the loss with NaNs. Gradients through clamped elements are
// zeroed, matching the clamp's true (sub)gradient.
const LogvarBound = 20.0

// Losses holds the per-step loss terms.
//
// Total = Recon + coefKL*KL (+ advWeight*Adv for the adversarial variant).
// Disc is the discriminator's own loss, reported for logging but never part
// of Total. Finite is false when numeric instability was detected; in that
// case no gradients were applied for the step.
type Losses struct {
	Total  float64
	Recon  float64
	KL     float64
	Adv    float64
	Disc   float64
	Finite bool
}

// Engine is a loss engine usable by the training loop. TrainStep runs the
// forward and backward passes for one batch and leaves gradients
// accumulated in the encoder and decoder parameters.
type Engine interface {
	TrainStep(x *tensor.Tensor) Losses
	Encoder() nn.Encoder
	Decoder() nn.Decoder
}

// Reparameterize draws z = mean + exp(0.5*logvar) * eps with eps ~ N(0, I).
//
// The stochasticity lives entirely in eps; z is a deterministic affine
// function of mean and logvar, so gradients flow through both. The eps
// tensor is returned because the backward pass needs it.
func Reparameterize(mean, logvar *tensor.Tensor, g *rng.Generator) (z, eps *tensor.Tensor) {
	eps = tensor.Randn(mean.Shape(), g)
	z = tensor.New(mean.Shape())
	zd, md, lvd, ed := z.Data(), mean.Data(), logvar.Data(), eps.Data()
	for i := range zd {
		std := float32(math.Exp(0.5 * float64(lvd[i])))
		zd[i] = md[i] + std*ed[i]
	}
	return z, eps
}

// KLDivergence computes the closed-form KL divergence between
// N(mean, exp(logvar)) and the standard normal prior, summed over latent
// dimensions and averaged over the batch:
//
//	KL = -0.5/N * Σ (1 + logvar - mean² - exp(logvar))
//
// It is zero exactly when mean == 0 and logvar == 0 everywhere.
func KLDivergence(mean, logvar *tensor.Tensor) float64 {
	md, lvd := mean.Data(), logvar.Data()
	var sum float64
	for i := range md {
		m := float64(md[i])
		lv := float64(lvd[i])
		sum += 1 + lv - m*m - math.Exp(lv)
	}
	batch := mean.Shape()[0]
	return -0.5 * sum / float64(batch)
}

// reconLoss computes the squared reconstruction error summed over pixels
// and averaged over the batch, plus dL/d(xhat).
func reconLoss(xhat, x *tensor.Tensor) (float64, *tensor.Tensor) {
	batch := x.Shape()[0]
	grad := tensor.New(xhat.Shape())
	gd, hd, xd := grad.Data(), xhat.Data(), x.Data()
	var sum float64
	invN := 1.0 / float32(batch)
	for i := range hd {
		d := hd[i] - xd[i]
		sum += float64(d) * float64(d)
		gd[i] = 2 * d * invN
	}
	return sum / float64(batch), grad
}

// Plain is the standard VAE / β-VAE loss engine.
//
// coefKL is the β weight on the KL term: 1.0 gives the standard VAE,
// larger values trade reconstruction fidelity for latent disentanglement.
// It is a pure multiplier applied at loss-combination time; nothing else
// differs between the two regimes.
type Plain struct {
	enc    nn.Encoder
	dec    nn.Decoder
	coefKL float64
	gen    *rng.Generator
}

// NewPlain creates a standard VAE loss engine.
func NewPlain(enc nn.Encoder, dec nn.Decoder, coefKL float64, g *rng.Generator) *Plain {
	return &Plain{enc: enc, dec: dec, coefKL: coefKL, gen: g}
}

// Encoder returns the wrapped encoder.
func (p *Plain) Encoder() nn.Encoder { return p.enc }

// Decoder returns the wrapped decoder.
func (p *Plain) Decoder() nn.Decoder { return p.dec }

// CoefKL returns the β weight on the KL term.
func (p *Plain) CoefKL() float64 { return p.coefKL }

// TrainStep runs one forward/backward pass and accumulates gradients into
// the encoder and decoder parameters.
//
// If the loss comes out non-finite, the backward pass is skipped so the
// instability cannot propagate into the weights, and Losses.Finite is
// false.
func (p *Plain) TrainStep(x *tensor.Tensor) Losses {
	losses, _ := p.step(x, nil, 0)
	return losses
}

// step is the shared forward/backward core. When disc is non-nil, the
// generator-side adversarial term weighted by advWeight is added, and the
// latent batch is returned for the subsequent discriminator update.
func (p *Plain) step(x *tensor.Tensor, disc nn.Discriminator, advWeight float64) (Losses, *tensor.Tensor) {
	batch := x.Shape()[0]

	mean, logvarRaw := p.enc.Encode(x)
	logvar := logvarRaw.Clamp(-LogvarBound, LogvarBound)

	z, _ := Reparameterize(mean, logvar, p.gen)
	xhat := p.dec.Decode(z)

	recon, dxhat := reconLoss(xhat, x)
	kl := KLDivergence(mean, logvar)
	total := recon + p.coefKL*kl

	var adv float64
	var dzAdv *tensor.Tensor
	if disc != nil {
		// Non-saturating generator objective: push encoder codes toward
		// the discriminator's "prior" label.
		logits := disc.Discriminate(z)
		var dLogits *tensor.Tensor
		adv, dLogits = bceWithLogits(logits, 1)
		dzAdv = disc.DiscriminateBackward(dLogits.Scale(float32(advWeight)))
		total += advWeight * adv
	}

	losses := Losses{Total: total, Recon: recon, KL: kl, Adv: adv, Finite: true}
	if !finite(total) {
		losses.Finite = false
		return losses, z
	}

	dz := p.dec.DecodeBackward(dxhat)
	if dzAdv != nil {
		dz.AddInPlace(dzAdv)
	}

	// dKL/dmean = mean/N, dKL/dlogvar = (exp(logvar)-1)/(2N).
	// dz/dmean = 1, dz/dlogvar = eps * 0.5 * exp(0.5*logvar) = 0.5*(z-mean).
	dMean := tensor.New(mean.Shape())
	dLogvar := tensor.New(logvar.Shape())
	dmd, dlvd := dMean.Data(), dLogvar.Data()
	md, lvd, rawd, zd, dzd := mean.Data(), logvar.Data(), logvarRaw.Data(), z.Data(), dz.Data()
	invN := 1.0 / float32(batch)
	coef := float32(p.coefKL)
	for i := range dmd {
		dmd[i] = dzd[i] + coef*md[i]*invN
		dlvd[i] = dzd[i]*0.5*(zd[i]-md[i]) +
			coef*0.5*(float32(math.Exp(float64(lvd[i])))-1)*invN
		if rawd[i] < -LogvarBound || rawd[i] > LogvarBound {
			dlvd[i] = 0
		}
	}
	p.enc.EncodeBackward(dMean, dLogvar)

	return losses, z
}

// WithAdversary augments the VAE loss with a latent-code adversarial term.
//
// The encoder is additionally trained to make its codes indistinguishable
// from prior draws; the discriminator is trained by AdversaryStep on a
// separate parameter set with its own optimizer.
type WithAdversary struct {
	Plain
	disc      nn.Discriminator
	advWeight float64
	lastZ     *tensor.Tensor
}

// NewWithAdversary creates the adversarial variant. advWeight defaults to
// 1.0 when zero.
func NewWithAdversary(enc nn.Encoder, dec nn.Decoder, disc nn.Discriminator, coefKL, advWeight float64, g *rng.Generator) *WithAdversary {
	if advWeight == 0 {
		advWeight = 1.0
	}
	return &WithAdversary{
		Plain:     Plain{enc: enc, dec: dec, coefKL: coefKL, gen: g},
		disc:      disc,
		advWeight: advWeight,
	}
}

// Discriminator returns the latent discriminator.
func (w *WithAdversary) Discriminator() nn.Discriminator { return w.disc }

// TrainStep runs the VAE update including the generator-side adversarial
// term, and caches the latent batch for AdversaryStep.
func (w *WithAdversary) TrainStep(x *tensor.Tensor) Losses {
	losses, z := w.step(x, w.disc, w.advWeight)
	w.lastZ = z
	return losses
}

// AdversaryStep trains the discriminator to separate the last encoded
// latent batch from fresh prior draws and accumulates gradients into the
// discriminator parameters only.
//
// Gradients that leaked into the discriminator during the generator pass
// are cleared first, so the two updates use distinct gradient
// accumulations as required.
func (w *WithAdversary) AdversaryStep() float64 {
	if w.lastZ == nil {
		return 0
	}
	nn.ZeroGrad(w.disc.Parameters())

	batch := w.lastZ.Shape()[0]
	zReal := tensor.Randn(tensor.Shape{batch, w.disc.ZDim()}, w.gen)

	logitsReal := w.disc.Discriminate(zReal)
	lossReal, dReal := bceWithLogits(logitsReal, 1)
	w.disc.DiscriminateBackward(dReal.Scale(0.5))

	logitsFake := w.disc.Discriminate(w.lastZ)
	lossFake, dFake := bceWithLogits(logitsFake, 0)
	w.disc.DiscriminateBackward(dFake.Scale(0.5))

	return 0.5 * (lossReal + lossFake)
}

// bceWithLogits computes the numerically stable binary cross entropy with
// logits against a constant target, averaged over the batch. Returns the
// loss and dL/d(logits).
func bceWithLogits(logits *tensor.Tensor, target float32) (float64, *tensor.Tensor) {
	grad := tensor.New(logits.Shape())
	ld, gd := logits.Data(), grad.Data()
	n := float64(len(ld))
	invN := float32(1.0 / n)
	var sum float64
	for i, l := range ld {
		fl := float64(l)
		// max(l,0) - l*t + log(1 + exp(-|l|))
		sum += math.Max(fl, 0) - fl*float64(target) + math.Log1p(math.Exp(-math.Abs(fl)))
		sig := float32(1.0 / (1.0 + math.Exp(-fl)))
		gd[i] = (sig - target) * invN
	}
	return sum / n, grad
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
