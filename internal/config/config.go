// Package config loads the declarative experiment configuration.
//
// A config names every component (dataset, encoder, decoder, optional
// discriminator, optimizers) as {target, params} pairs plus the train
// block. Dotted-path overrides from the command line are merged before
// validation, so any field can be changed per run:
//
//	vae train -c config.yaml train.coef_kl=4.0 encoder.params.z_dim=32
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Component is a declarative component spec: a registry target plus its
// parameters.
type Component struct {
	Target string         `yaml:"target"`
	Params map[string]any `yaml:"params"`
}

// Dataloader controls batch prefetching.
type Dataloader struct {
	NumWorkers int `yaml:"num_workers"` // per-batch read concurrency
	Prefetch   int `yaml:"prefetch"`    // prefetch queue depth
}

// Train is the training block.
type Train struct {
	NSteps     int64      `yaml:"n_steps"`
	BatchSize  int        `yaml:"batch_size"`
	Resume     string     `yaml:"resume"`
	PrintFreq  int64      `yaml:"print_freq"`
	SampleFreq int64      `yaml:"sample_freq"`
	SaveFreq   int64      `yaml:"save_freq"`
	NSamples   int        `yaml:"n_samples"`
	CoefKL     *float64   `yaml:"coef_kl"` // β weight on the KL term; nil means 1.0
	Optim      Component  `yaml:"optim"`
	OptimDisc  *Component `yaml:"optim_disc"`
}

// KL returns the effective KL coefficient (β), defaulting to 1.0.
func (t *Train) KL() float64 {
	if t.CoefKL == nil {
		return 1.0
	}
	return *t.CoefKL
}

// Config is the top-level experiment configuration.
type Config struct {
	Seed          uint64     `yaml:"seed"`
	Data          Component  `yaml:"data"`
	Dataloader    Dataloader `yaml:"dataloader"`
	Encoder       Component  `yaml:"encoder"`
	Decoder       Component  `yaml:"decoder"`
	Discriminator *Component `yaml:"discriminator"`
	Train         Train      `yaml:"train"`
}

// Load reads a YAML config from path and merges dotted-path overrides of
// the form "a.b.c=value" before validating.
func Load(path string, overrides []string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(raw, overrides)
}

// Parse decodes and validates a YAML config with overrides applied.
func Parse(raw []byte, overrides []string) (*Config, error) {
	var tree map[string]any
	if err := yaml.Unmarshal(raw, &tree); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if tree == nil {
		tree = make(map[string]any)
	}

	for _, o := range overrides {
		if err := applyOverride(tree, o); err != nil {
			return nil, err
		}
	}

	merged, err := yaml.Marshal(tree)
	if err != nil {
		return nil, fmt.Errorf("merge config: %w", err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(merged))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyOverride sets one dotted-path key in the config tree. The value is
// parsed as YAML, so numbers, booleans, and lists work as expected.
func applyOverride(tree map[string]any, override string) error {
	key, value, ok := strings.Cut(override, "=")
	if !ok {
		return fmt.Errorf("override %q: expected key=value", override)
	}

	var parsed any
	if err := yaml.Unmarshal([]byte(value), &parsed); err != nil {
		return fmt.Errorf("override %q: %w", override, err)
	}

	parts := strings.Split(key, ".")
	node := tree
	for _, part := range parts[:len(parts)-1] {
		child, ok := node[part].(map[string]any)
		if !ok {
			child = make(map[string]any)
			node[part] = child
		}
		node = child
	}
	node[parts[len(parts)-1]] = parsed
	return nil
}

func (c *Config) applyDefaults() {
	if c.Seed == 0 {
		c.Seed = 8888
	}
	if c.Train.PrintFreq == 0 {
		c.Train.PrintFreq = 100
	}
	if c.Train.SampleFreq == 0 {
		c.Train.SampleFreq = 1000
	}
	if c.Train.SaveFreq == 0 {
		c.Train.SaveFreq = 1000
	}
	if c.Train.NSamples == 0 {
		c.Train.NSamples = 64
	}
	if c.Dataloader.NumWorkers == 0 {
		c.Dataloader.NumWorkers = 4
	}
	if c.Dataloader.Prefetch == 0 {
		c.Dataloader.Prefetch = 2
	}
	if c.Train.Optim.Target == "" {
		c.Train.Optim = Component{Target: "adam"}
	}
}

// validate checks everything that must hold before any compute resource
// is allocated.
func (c *Config) validate() error {
	if c.Data.Target == "" {
		return fmt.Errorf("config: data.target is required")
	}
	if c.Encoder.Target == "" {
		return fmt.Errorf("config: encoder.target is required")
	}
	if c.Decoder.Target == "" {
		return fmt.Errorf("config: decoder.target is required")
	}
	if c.Train.NSteps <= 0 {
		return fmt.Errorf("config: train.n_steps must be positive, got %d", c.Train.NSteps)
	}
	if c.Train.BatchSize <= 0 {
		return fmt.Errorf("config: train.batch_size must be positive, got %d", c.Train.BatchSize)
	}
	if c.Train.KL() < 0 {
		return fmt.Errorf("config: train.coef_kl must be non-negative, got %g", c.Train.KL())
	}
	if c.Discriminator != nil && c.Train.OptimDisc == nil {
		return fmt.Errorf("config: discriminator is configured but train.optim_disc is missing")
	}
	return nil
}

// DecodeParams maps a component's params into a typed struct, rejecting
// unknown keys.
func DecodeParams(params map[string]any, out any) error {
	if len(params) == 0 {
		return nil
	}
	raw, err := yaml.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}
