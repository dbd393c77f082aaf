// Package main provides the vae command line interface.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/latentml/vae/internal/checkpoint"
	"github.com/latentml/vae/internal/config"
	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/registry"
	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/sample"
	"github.com/latentml/vae/internal/train"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := NewCLI().ExecuteContext(ctx); err != nil {
		if !errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// NewCLI assembles the command tree.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "vae",
		Short:         "Train and sample variational autoencoders",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	trainCmd := &cobra.Command{
		Use:   "train -c CONFIG [KEY=VALUE ...]",
		Short: "Train a model from a YAML config",
		Long: `Train a model from a YAML config.

Positional arguments are dotted-path overrides applied on top of the
config file, e.g.:

  vae train -c configs/mnist.yaml train.coef_kl=4.0 seed=1234`,
		RunE: runTrain,
	}
	trainCmd.Flags().StringP("config", "c", "", "path to the YAML config (required)")
	trainCmd.Flags().StringP("exp_dir", "e", "runs", "experiment directory for checkpoints and samples")
	_ = trainCmd.MarkFlagRequired("config")

	sampleCmd := &cobra.Command{
		Use:   "sample -c CONFIG --weights CKPT --n_samples N --save_dir DIR",
		Short: "Generate images from a trained decoder",
		Long: `Generate images from a trained decoder.

Modes:
  sample       decode random prior draws (one PNG per sample)
  interpolate  decode lines between pairs of prior draws (one row per PNG)
  traverse     sweep one latent dimension around a prior draw (one row per PNG)`,
		Args: cobra.NoArgs,
		RunE: runSample,
	}
	sampleCmd.Flags().StringP("config", "c", "", "path to the YAML config (required)")
	sampleCmd.Flags().String("weights", "", "checkpoint to load the decoder from (required)")
	sampleCmd.Flags().String("save_dir", "", "output directory (required)")
	sampleCmd.Flags().Int("n_samples", 0, "number of outputs (required)")
	sampleCmd.Flags().String("mode", "sample", "one of: sample, interpolate, traverse")
	sampleCmd.Flags().Uint64("seed", 8888, "random seed")
	sampleCmd.Flags().Int("batch_size", 500, "decode batch size")
	sampleCmd.Flags().Int("n_interpolate", 15, "points per interpolation, endpoints included")
	sampleCmd.Flags().Int("n_traverse", 15, "points per traversal")
	sampleCmd.Flags().Float64("traverse_range", 3, "traversal covers [-range, +range]")
	sampleCmd.Flags().Int("traverse_dim", 0, "latent dimension to traverse")
	sampleCmd.Flags().Int("upscale", 1, "integer upscale factor for written images")
	for _, f := range []string{"config", "weights", "save_dir", "n_samples"} {
		_ = sampleCmd.MarkFlagRequired(f)
	}

	rootCmd.AddCommand(trainCmd, sampleCmd)
	return rootCmd
}

func runTrain(cmd *cobra.Command, args []string) error {
	configPath, _ := cmd.Flags().GetString("config")
	expDir, _ := cmd.Flags().GetString("exp_dir")

	for _, a := range args {
		if !strings.Contains(a, "=") {
			return fmt.Errorf("argument %q is not a KEY=VALUE override", a)
		}
	}

	cfg, err := config.Load(configPath, args)
	if err != nil {
		return err
	}

	loop, err := train.New(cfg, expDir, slog.Default())
	if err != nil {
		return err
	}

	printSummary(cmd, cfg, loop.Components())
	return loop.Run(cmd.Context())
}

// printSummary renders the instantiated components and their parameter
// counts before training starts.
func printSummary(cmd *cobra.Command, cfg *config.Config, comps *registry.Components) {
	table := tablewriter.NewWriter(cmd.OutOrStdout())
	table.SetHeader([]string{"Component", "Target", "Parameters"})
	table.SetBorder(false)
	table.SetColumnSeparator("")

	geom := comps.Geometry
	table.Append([]string{"data", cfg.Data.Target, fmt.Sprintf("%d images (%d×%d×%d)", comps.Dataset.Len(), geom.Channels, geom.Height, geom.Width)})
	table.Append([]string{"encoder", cfg.Encoder.Target, fmt.Sprintf("%d", nn.NumParameters(comps.Encoder.Parameters()))})
	table.Append([]string{"decoder", cfg.Decoder.Target, fmt.Sprintf("%d", nn.NumParameters(comps.Decoder.Parameters()))})
	if comps.Discriminator != nil {
		table.Append([]string{"discriminator", cfg.Discriminator.Target, fmt.Sprintf("%d", nn.NumParameters(comps.Discriminator.Parameters()))})
	}
	table.Render()
	fmt.Fprintln(cmd.OutOrStdout())
}

func runSample(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	configPath, _ := flags.GetString("config")
	weights, _ := flags.GetString("weights")
	saveDir, _ := flags.GetString("save_dir")
	nSamples, _ := flags.GetInt("n_samples")
	mode, _ := flags.GetString("mode")
	seed, _ := flags.GetUint64("seed")
	batchSize, _ := flags.GetInt("batch_size")
	nInterpolate, _ := flags.GetInt("n_interpolate")
	nTraverse, _ := flags.GetInt("n_traverse")
	traverseRange, _ := flags.GetFloat64("traverse_range")
	traverseDim, _ := flags.GetInt("traverse_dim")
	upscale, _ := flags.GetInt("upscale")

	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return err
	}

	gen := rng.New(seed)
	comps, err := registry.Build(cfg, gen)
	if err != nil {
		return err
	}

	snap, err := checkpoint.Load(weights)
	if err != nil {
		return err
	}
	if err := nn.LoadStateDict(comps.Decoder.Parameters(), snap.Scoped("decoder")); err != nil {
		return fmt.Errorf("decoder weights from %s: %w", weights, err)
	}

	geom := comps.Geometry
	s, err := sample.New(comps.Decoder, geom.Channels, geom.Height, geom.Width, gen)
	if err != nil {
		return err
	}

	slog.Info("sampling", "mode", mode, "weights", weights, "step", snap.Step, "n_samples", nSamples, "save_dir", saveDir)
	if err := os.MkdirAll(saveDir, 0o755); err != nil {
		return err
	}
	return s.Run(sample.Options{
		Mode:          sample.Mode(mode),
		NSamples:      nSamples,
		BatchSize:     batchSize,
		NInterpolate:  nInterpolate,
		NTraverse:     nTraverse,
		TraverseRange: traverseRange,
		TraverseDim:   traverseDim,
		SaveDir:       saveDir,
		Upscale:       upscale,
	})
}
