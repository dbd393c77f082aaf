// Package train implements the training loop.
//
// The loop owns all mutable training state: the step counter, the model
// parameters (mutated only through the optimizers), the latent-noise RNG,
// and the running loss averages. Side effects run on a fixed cadence:
// metrics every print_freq steps, a sample grid every sample_freq steps,
// and an atomic checkpoint every save_freq steps and at the final step.
// Sampling and logging failures are reported and survived; a failed
// checkpoint write aborts the run so no training can proceed past
// unsaved state.
package train

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/latentml/vae/internal/checkpoint"
	"github.com/latentml/vae/internal/config"
	"github.com/latentml/vae/internal/data"
	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/optim"
	"github.com/latentml/vae/internal/registry"
	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/sample"
	"github.com/latentml/vae/internal/vae"
)

// Loop drives a single training run.
type Loop struct {
	cfg    *config.Config
	comps  *registry.Components
	engine vae.Engine
	adv    *vae.WithAdversary // nil for the plain variant

	opt     optim.Optimizer
	optDisc optim.Optimizer // nil for the plain variant

	sampler *sample.Sampler
	gen     *rng.Generator
	log     *slog.Logger

	expDir string
	runID  string
	step   int64
}

// New builds a training loop from a validated config.
//
// Component instantiation, optimizer construction, and all shape checks
// happen here; any error is fatal before training starts.
func New(cfg *config.Config, expDir string, log *slog.Logger) (*Loop, error) {
	gen := rng.New(cfg.Seed)

	comps, err := registry.Build(cfg, gen)
	if err != nil {
		return nil, err
	}

	vaeParams := append(comps.Encoder.Parameters(), comps.Decoder.Parameters()...)
	opt, err := registry.BuildOptimizer(cfg.Train.Optim, vaeParams)
	if err != nil {
		return nil, fmt.Errorf("train.optim: %w", err)
	}

	l := &Loop{
		cfg:    cfg,
		comps:  comps,
		opt:    opt,
		gen:    gen,
		log:    log,
		expDir: expDir,
		runID:  uuid.NewString(),
	}

	if comps.Discriminator != nil {
		advEngine := vae.NewWithAdversary(comps.Encoder, comps.Decoder, comps.Discriminator, cfg.Train.KL(), 1.0, gen)
		l.engine = advEngine
		l.adv = advEngine
		l.optDisc, err = registry.BuildOptimizer(*cfg.Train.OptimDisc, comps.Discriminator.Parameters())
		if err != nil {
			return nil, fmt.Errorf("train.optim_disc: %w", err)
		}
	} else {
		l.engine = vae.NewPlain(comps.Encoder, comps.Decoder, cfg.Train.KL(), gen)
	}

	geom := comps.Geometry
	l.sampler, err = sample.New(comps.Decoder, geom.Channels, geom.Height, geom.Width, gen)
	if err != nil {
		return nil, err
	}

	return l, nil
}

// RunID returns the unique identifier of this run.
func (l *Loop) RunID() string { return l.runID }

// Components returns the instantiated components, mainly for startup
// reporting.
func (l *Loop) Components() *registry.Components { return l.comps }

// Run executes the training loop until n_steps or ctx cancellation.
//
// On cancellation the current step is finished, a best-effort checkpoint
// is attempted, and the loop returns ctx.Err(). The last good checkpoint
// is never at risk: checkpoints publish atomically.
func (l *Loop) Run(ctx context.Context) error {
	if err := os.MkdirAll(l.checkpointDir(), 0o755); err != nil {
		return fmt.Errorf("create checkpoint directory: %w", err)
	}

	if l.cfg.Train.Resume != "" {
		if err := l.resume(l.cfg.Train.Resume); err != nil {
			return fmt.Errorf("resume from %s: %w", l.cfg.Train.Resume, err)
		}
		l.log.Info("resumed from checkpoint", "path", l.cfg.Train.Resume, "step", l.step)
	}

	loader, err := data.NewLoader(l.comps.Dataset, data.LoaderConfig{
		BatchSize: l.cfg.Train.BatchSize,
		Seed:      l.cfg.Seed,
		StartStep: l.step,
		Prefetch:  l.cfg.Dataloader.Prefetch,
		Workers:   l.cfg.Dataloader.NumWorkers,
	})
	if err != nil {
		return err
	}
	defer loader.Close()

	l.log.Info("training started",
		"run_id", l.runID,
		"from_step", l.step+1,
		"n_steps", l.cfg.Train.NSteps,
		"coef_kl", l.cfg.Train.KL(),
		"adversarial", l.adv != nil,
	)

	m := newMeter()
	var lastLoss float64 // last finite total, recorded in checkpoints
	for l.step < l.cfg.Train.NSteps {
		l.step++
		step := l.step

		batch, err := loader.Next()
		if err != nil {
			return fmt.Errorf("step %d: next batch: %w", step, err)
		}

		losses := l.engine.TrainStep(batch)
		if losses.Finite {
			l.opt.Step()
			lastLoss = losses.Total
		}
		l.opt.ZeroGrad()

		if l.adv != nil && losses.Finite {
			losses.Disc = l.adv.AdversaryStep()
			l.optDisc.Step()
			l.optDisc.ZeroGrad()
		}
		m.add(losses)

		if step%l.cfg.Train.PrintFreq == 0 {
			l.report(step, m)
			m.reset()
		}

		if step%l.cfg.Train.SampleFreq == 0 {
			path := filepath.Join(l.expDir, "samples", fmt.Sprintf("step%08d_sample.png", step))
			if err := l.sampler.WriteRandomGrid(l.cfg.Train.NSamples, path); err != nil {
				// Sample writes are best-effort; training continues.
				l.log.Warn("sample write failed", "step", step, "error", err)
			}
		}

		if step%l.cfg.Train.SaveFreq == 0 || step == l.cfg.Train.NSteps {
			if err := l.writeCheckpoint(step, lastLoss); err != nil {
				return fmt.Errorf("step %d: checkpoint: %w", step, err)
			}
		}

		select {
		case <-ctx.Done():
			l.log.Info("interrupt received, checkpointing before exit", "step", step)
			if err := l.writeCheckpoint(step, lastLoss); err != nil {
				l.log.Error("checkpoint on interrupt failed; last good checkpoint is intact", "error", err)
			}
			return ctx.Err()
		default:
		}
	}

	l.log.Info("training finished", "run_id", l.runID, "steps", l.step)
	return nil
}

// report logs aggregated metrics for the last print interval. Non-finite
// losses are surfaced here so an operator can intervene.
func (l *Loop) report(step int64, m *meter) {
	total, recon, kl, adv, disc := m.means()
	attrs := []any{
		"step", step,
		"loss", total,
		"recon", recon,
		"kl", kl,
	}
	if l.adv != nil {
		attrs = append(attrs, "adv", adv, "disc", disc)
	}
	l.log.Info("train", attrs...)
	if m.nonFinite > 0 {
		l.log.Warn("numeric instability: non-finite loss detected; affected steps skipped",
			"step", step, "count", m.nonFinite)
	}
}

func (l *Loop) checkpointDir() string {
	return filepath.Join(l.expDir, "ckpt")
}

// writeCheckpoint captures the full training state and publishes it
// atomically. Failure is fatal to the run.
func (l *Loop) writeCheckpoint(step int64, loss float64) error {
	rngState, err := l.gen.MarshalBinary()
	if err != nil {
		return err
	}

	snap := &checkpoint.Snapshot{
		Step:     step,
		Loss:     loss,
		RunID:    l.runID,
		RNGState: rngState,
		Metadata: map[string]string{
			"coef_kl": fmt.Sprintf("%g", l.cfg.Train.KL()),
		},
	}
	snap.Merge("encoder", nn.StateDict(l.comps.Encoder.Parameters()))
	snap.Merge("decoder", nn.StateDict(l.comps.Decoder.Parameters()))
	snap.Merge("optim", l.opt.StateDict())
	if l.adv != nil {
		snap.Merge("disc", nn.StateDict(l.comps.Discriminator.Parameters()))
		snap.Merge("optim_disc", l.optDisc.StateDict())
	}

	path := filepath.Join(l.checkpointDir(), fmt.Sprintf("step%08d.ckpt", step))
	if err := checkpoint.Save(path, snap); err != nil {
		return err
	}
	l.log.Info("checkpoint written", "step", step, "path", path)
	return nil
}

// resume restores models, optimizers, RNG state, and the step counter.
// Any mismatch with the configured architecture fails loudly; a partial
// restore never happens because every load validates before returning.
func (l *Loop) resume(path string) error {
	snap, err := checkpoint.Load(path)
	if err != nil {
		return err
	}

	if err := nn.LoadStateDict(l.comps.Encoder.Parameters(), snap.Scoped("encoder")); err != nil {
		return fmt.Errorf("encoder: %w", err)
	}
	if err := nn.LoadStateDict(l.comps.Decoder.Parameters(), snap.Scoped("decoder")); err != nil {
		return fmt.Errorf("decoder: %w", err)
	}
	if err := l.opt.LoadStateDict(snap.Scoped("optim")); err != nil {
		return fmt.Errorf("optimizer: %w", err)
	}
	if l.adv != nil {
		if err := nn.LoadStateDict(l.comps.Discriminator.Parameters(), snap.Scoped("disc")); err != nil {
			return fmt.Errorf("discriminator: %w", err)
		}
		if err := l.optDisc.LoadStateDict(snap.Scoped("optim_disc")); err != nil {
			return fmt.Errorf("discriminator optimizer: %w", err)
		}
	}
	if len(snap.RNGState) > 0 {
		if err := l.gen.UnmarshalBinary(snap.RNGState); err != nil {
			return err
		}
	}
	l.step = snap.Step
	return nil
}
