package train_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/latentml/vae/internal/checkpoint"
	"github.com/latentml/vae/internal/config"
	"github.com/latentml/vae/internal/train"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, overrides ...string) *config.Config {
	t.Helper()
	base := `
seed: 8888
data:
  target: synthetic
  params:
    n: 40
    img_size: 8
encoder:
  target: mlp_encoder
  params:
    z_dim: 4
    hidden: [16]
decoder:
  target: mlp_decoder
  params:
    z_dim: 4
    hidden: [16]
train:
  n_steps: 6
  batch_size: 10
  save_freq: 3
  sample_freq: 1000
  print_freq: 1000
`
	cfg, err := config.Parse([]byte(base), overrides)
	require.NoError(t, err)
	return cfg
}

func runLoop(t *testing.T, cfg *config.Config, expDir string) {
	t.Helper()
	loop, err := train.New(cfg, expDir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, loop.Run(context.Background()))
}

func ckptPath(expDir string, step int) string {
	return filepath.Join(expDir, "ckpt", fmt.Sprintf("step%08d.ckpt", step))
}

// TestLoop_WritesCheckpoints runs a short training and checks the
// checkpoint cadence and contents.
func TestLoop_WritesCheckpoints(t *testing.T) {
	expDir := t.TempDir()
	runLoop(t, testConfig(t), expDir)

	for _, step := range []int{3, 6} {
		snap, err := checkpoint.Load(ckptPath(expDir, step))
		require.NoError(t, err, "checkpoint at step %d", step)
		assert.Equal(t, int64(step), snap.Step)
		assert.NotEmpty(t, snap.RNGState)
		assert.NotEmpty(t, snap.Scoped("encoder"))
		assert.NotEmpty(t, snap.Scoped("decoder"))
		assert.NotEmpty(t, snap.Scoped("optim"))
		assert.Empty(t, snap.Scoped("disc"))
	}
}

// TestLoop_ResumeMatchesUninterrupted is the resume equivalence check: a
// run interrupted at step 3 and resumed to step 6 must land on exactly the
// same parameters as an uninterrupted 6-step run.
func TestLoop_ResumeMatchesUninterrupted(t *testing.T) {
	// Reference: 6 uninterrupted steps.
	refDir := t.TempDir()
	runLoop(t, testConfig(t), refDir)

	// Interrupted: stop at 3, then resume to 6.
	expDir := t.TempDir()
	runLoop(t, testConfig(t, "train.n_steps=3"), expDir)
	runLoop(t, testConfig(t, "train.resume="+ckptPath(expDir, 3)), expDir)

	ref, err := checkpoint.Load(ckptPath(refDir, 6))
	require.NoError(t, err)
	got, err := checkpoint.Load(ckptPath(expDir, 6))
	require.NoError(t, err)

	require.Equal(t, ref.Step, got.Step)
	for name, want := range ref.Tensors {
		have, ok := got.Tensors[name]
		require.True(t, ok, "tensor %q missing after resume", name)
		assert.Equal(t, want.Data(), have.Data(), "tensor %q diverged after resume", name)
	}
}

// TestLoop_ResumeRejectsMismatchedArchitecture fails loudly instead of
// partially restoring.
func TestLoop_ResumeRejectsMismatchedArchitecture(t *testing.T) {
	expDir := t.TempDir()
	runLoop(t, testConfig(t, "train.n_steps=3"), expDir)

	cfg := testConfig(t,
		"train.resume="+ckptPath(expDir, 3),
		"encoder.params.z_dim=8",
		"decoder.params.z_dim=8",
	)
	loop, err := train.New(cfg, t.TempDir(), quietLogger())
	require.NoError(t, err)
	err = loop.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "resume")
}

// TestLoop_Adversarial exercises the discriminator path end to end.
func TestLoop_Adversarial(t *testing.T) {
	expDir := t.TempDir()
	cfg := testConfig(t,
		"train.n_steps=3",
		"discriminator.target=latent_mlp",
		"discriminator.params.hidden=[8]",
		"train.optim_disc.target=adam",
	)
	runLoop(t, cfg, expDir)

	snap, err := checkpoint.Load(ckptPath(expDir, 3))
	require.NoError(t, err)
	assert.NotEmpty(t, snap.Scoped("disc"))
	assert.NotEmpty(t, snap.Scoped("optim_disc"))
}

// TestLoop_WritesSamples checks the periodic sample grid.
func TestLoop_WritesSamples(t *testing.T) {
	expDir := t.TempDir()
	cfg := testConfig(t, "train.n_steps=4", "train.sample_freq=2", "train.n_samples=9")
	runLoop(t, cfg, expDir)

	for _, step := range []int{2, 4} {
		path := filepath.Join(expDir, "samples", fmt.Sprintf("step%08d_sample.png", step))
		_, err := os.Stat(path)
		assert.NoError(t, err, "sample grid at step %d", step)
	}
}

// TestLoop_ContextCancel verifies cancellation checkpoints and returns the
// context error without corrupting earlier checkpoints.
func TestLoop_ContextCancel(t *testing.T) {
	expDir := t.TempDir()
	cfg := testConfig(t, "train.n_steps=100000", "train.save_freq=100000")

	loop, err := train.New(cfg, expDir, quietLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // cancel before the first step; the loop finishes step 1 and exits
	err = loop.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	snap, err := checkpoint.Load(ckptPath(expDir, 1))
	require.NoError(t, err)
	assert.Equal(t, int64(1), snap.Step)
}
