package vae_test

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
	"github.com/latentml/vae/internal/vae"
)

// TestKLDivergence_ZeroAtPrior verifies KL is zero exactly when the
// posterior equals the standard normal prior.
func TestKLDivergence_ZeroAtPrior(t *testing.T) {
	mean := tensor.New(tensor.Shape{4, 8})
	logvar := tensor.New(tensor.Shape{4, 8})
	assert.Zero(t, vae.KLDivergence(mean, logvar))

	// Any deviation makes it strictly positive.
	mean.Data()[0] = 0.5
	assert.Greater(t, vae.KLDivergence(mean, logvar), 0.0)

	mean.Data()[0] = 0
	logvar.Data()[0] = 1
	assert.Greater(t, vae.KLDivergence(mean, logvar), 0.0)
	logvar.Data()[0] = -1
	assert.Greater(t, vae.KLDivergence(mean, logvar), 0.0)
}

// TestKLDivergence_ClosedForm checks one term against the formula.
func TestKLDivergence_ClosedForm(t *testing.T) {
	mean, err := tensor.FromSlice([]float32{1.5}, tensor.Shape{1, 1})
	require.NoError(t, err)
	logvar, err := tensor.FromSlice([]float32{0.3}, tensor.Shape{1, 1})
	require.NoError(t, err)

	want := -0.5 * (1 + 0.3 - 1.5*1.5 - math.Exp(0.3))
	assert.InDelta(t, want, vae.KLDivergence(mean, logvar), 1e-6)
}

// TestReparameterize_Statistics draws many samples for one (mean, logvar)
// pair and checks the sample mean and variance.
func TestReparameterize_Statistics(t *testing.T) {
	g := rng.New(42)
	const n = 20000
	mean := tensor.Full(tensor.Shape{n, 1}, 2.0)
	logvar := tensor.Full(tensor.Shape{n, 1}, float32(math.Log(0.25))) // std 0.5

	z, eps := vae.Reparameterize(mean, logvar, g)
	require.True(t, z.Shape().Equal(tensor.Shape{n, 1}))
	require.True(t, eps.Shape().Equal(tensor.Shape{n, 1}))

	var sum, sumSq float64
	for _, v := range z.Data() {
		sum += float64(v)
		sumSq += float64(v) * float64(v)
	}
	sampleMean := sum / n
	sampleVar := sumSq/n - sampleMean*sampleMean

	assert.InDelta(t, 2.0, sampleMean, 0.02)
	assert.InDelta(t, 0.25, sampleVar, 0.02)
}

// TestReparameterize_GradientIdentity verifies z = mean + std*eps holds
// elementwise, which is what the backward pass relies on.
func TestReparameterize_GradientIdentity(t *testing.T) {
	g := rng.New(7)
	mean := tensor.Randn(tensor.Shape{3, 5}, g)
	logvar := tensor.Randn(tensor.Shape{3, 5}, g)

	z, eps := vae.Reparameterize(mean, logvar, g)
	zd, md, lvd, ed := z.Data(), mean.Data(), logvar.Data(), eps.Data()
	for i := range zd {
		std := float32(math.Exp(0.5 * float64(lvd[i])))
		assert.InDelta(t, float64(md[i]+std*ed[i]), float64(zd[i]), 1e-6)
	}
}

func newSmallEngine(t *testing.T, coefKL float64, seed uint64) (*vae.Plain, *tensor.Tensor) {
	t.Helper()
	g := rng.New(seed)
	enc := nn.NewMLPEncoder(12, 3, []int{8}, g)
	dec := nn.NewMLPDecoder(3, 12, []int{8}, true, g)
	x := tensor.Randn(tensor.Shape{4, 12}, rng.New(99)).Clamp(-1, 1)
	return vae.NewPlain(enc, dec, coefKL, g), x
}

// TestPlain_TrainStep runs one step and checks the loss decomposition and
// that every parameter received a gradient.
func TestPlain_TrainStep(t *testing.T) {
	eng, x := newSmallEngine(t, 1.0, 1)

	losses := eng.TrainStep(x)
	require.True(t, losses.Finite)
	assert.InDelta(t, losses.Recon+losses.KL, losses.Total, 1e-9)
	assert.GreaterOrEqual(t, losses.KL, 0.0)
	assert.Greater(t, losses.Recon, 0.0)

	for _, p := range eng.Encoder().Parameters() {
		assert.NotNil(t, p.Grad(), "encoder parameter %q", p.Name())
	}
	for _, p := range eng.Decoder().Parameters() {
		assert.NotNil(t, p.Grad(), "decoder parameter %q", p.Name())
	}
}

// TestPlain_CoefKLScalesOnlyKL verifies β multiplies the KL term and
// nothing else.
func TestPlain_CoefKLScalesOnlyKL(t *testing.T) {
	a, x := newSmallEngine(t, 1.0, 1)
	b, _ := newSmallEngine(t, 4.0, 1)

	la := a.TrainStep(x)
	lb := b.TrainStep(x)

	// Same seed, so forward passes are identical; only the combination differs.
	assert.InDelta(t, la.Recon, lb.Recon, 1e-9)
	assert.InDelta(t, la.KL, lb.KL, 1e-9)
	assert.InDelta(t, lb.Recon+4.0*lb.KL, lb.Total, 1e-9)
}

// TestPlain_Deterministic verifies the same seed reproduces the step exactly.
func TestPlain_Deterministic(t *testing.T) {
	a, x := newSmallEngine(t, 1.0, 5)
	b, _ := newSmallEngine(t, 1.0, 5)

	la := a.TrainStep(x)
	lb := b.TrainStep(x)
	assert.Equal(t, la, lb)
}

// TestPlain_NonFiniteSkipsBackward poisons the input and checks that no
// gradients are applied.
func TestPlain_NonFiniteSkipsBackward(t *testing.T) {
	eng, x := newSmallEngine(t, 1.0, 2)
	x.Data()[0] = float32(math.NaN())

	losses := eng.TrainStep(x)
	require.False(t, losses.Finite)

	for _, p := range eng.Encoder().Parameters() {
		assert.Nil(t, p.Grad(), "encoder parameter %q should have no gradient", p.Name())
	}
}

// TestPlain_LogvarClamp feeds an encoder biased to extreme log-variance
// and checks the loss stays finite.
func TestPlain_LogvarClamp(t *testing.T) {
	g := rng.New(3)
	enc := nn.NewMLPEncoder(12, 3, []int{8}, g)
	dec := nn.NewMLPDecoder(3, 12, []int{8}, true, g)

	// Push the logvar head bias far past the clamp bound.
	for _, p := range enc.Parameters() {
		if p.Name() == "logvar_head.bias" {
			for i := range p.Tensor().Data() {
				p.Tensor().Data()[i] = 500
			}
		}
	}

	eng := vae.NewPlain(enc, dec, 1.0, g)
	x := tensor.Randn(tensor.Shape{4, 12}, rng.New(99)).Clamp(-1, 1)
	losses := eng.TrainStep(x)
	require.True(t, losses.Finite, "clamped logvar must keep the loss finite")
	assert.False(t, math.IsInf(losses.KL, 0))
}

// TestWithAdversary_Step checks the adversarial variant: the generator
// pass adds the Adv term to Total, and AdversaryStep trains only the
// discriminator.
func TestWithAdversary_Step(t *testing.T) {
	g := rng.New(11)
	enc := nn.NewMLPEncoder(12, 3, []int{8}, g)
	dec := nn.NewMLPDecoder(3, 12, []int{8}, true, g)
	disc := nn.NewLatentMLP(3, []int{8}, g)

	eng := vae.NewWithAdversary(enc, dec, disc, 1.0, 1.0, g)
	x := tensor.Randn(tensor.Shape{4, 12}, rng.New(99)).Clamp(-1, 1)

	losses := eng.TrainStep(x)
	require.True(t, losses.Finite)
	assert.Greater(t, losses.Adv, 0.0)
	assert.InDelta(t, losses.Recon+losses.KL+losses.Adv, losses.Total, 1e-9)

	// The generator pass must not leave usable gradients in the
	// discriminator: AdversaryStep clears them before its own backward.
	encGrad := enc.Parameters()[0].Grad().Clone()

	discLoss := eng.AdversaryStep()
	assert.Greater(t, discLoss, 0.0)

	for _, p := range disc.Parameters() {
		require.NotNil(t, p.Grad(), "discriminator parameter %q", p.Name())
	}
	// Encoder gradients are untouched by the discriminator update.
	assert.Equal(t, encGrad.Data(), enc.Parameters()[0].Grad().Data())
}

// TestWithAdversary_NoStepBeforeTrain returns zero when no latent batch is
// cached yet.
func TestWithAdversary_NoStepBeforeTrain(t *testing.T) {
	g := rng.New(12)
	enc := nn.NewMLPEncoder(12, 3, []int{8}, g)
	dec := nn.NewMLPDecoder(3, 12, []int{8}, true, g)
	disc := nn.NewLatentMLP(3, []int{8}, g)

	eng := vae.NewWithAdversary(enc, dec, disc, 1.0, 1.0, g)
	assert.Zero(t, eng.AdversaryStep())
}
