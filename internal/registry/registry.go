// Package registry instantiates components from their declarative specs.
//
// Every config "target" maps to a factory in a closed set, validated at
// startup: an unknown target is a fatal configuration error that names
// the known alternatives. Cross-component shape contracts (encoder z_dim
// versus decoder z_dim, dataset dim versus encoder in_dim) are checked
// here, before any training compute starts.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/latentml/vae/internal/config"
	"github.com/latentml/vae/internal/data"
	"github.com/latentml/vae/internal/nn"
	"github.com/latentml/vae/internal/optim"
	"github.com/latentml/vae/internal/rng"
)

// Geometry describes the image layout of a dataset.
type Geometry struct {
	Channels int
	Height   int
	Width    int
}

// Dim returns the flattened image length.
func (g Geometry) Dim() int { return g.Channels * g.Height * g.Width }

// Components holds the instantiated model and data components of a run.
type Components struct {
	Dataset       data.Dataset
	Geometry      Geometry
	Encoder       nn.Encoder
	Decoder       nn.Decoder
	Discriminator nn.Discriminator // nil when not configured
}

// Build instantiates every component named by cfg.
func Build(cfg *config.Config, g *rng.Generator) (*Components, error) {
	ds, geom, err := BuildDataset(cfg.Data)
	if err != nil {
		return nil, err
	}

	enc, err := BuildEncoder(cfg.Encoder, ds.Dim(), g)
	if err != nil {
		return nil, err
	}
	dec, err := BuildDecoder(cfg.Decoder, ds.Dim(), g)
	if err != nil {
		return nil, err
	}
	if enc.ZDim() != dec.ZDim() {
		return nil, fmt.Errorf("shape mismatch: encoder z_dim is %d but decoder z_dim is %d", enc.ZDim(), dec.ZDim())
	}

	c := &Components{Dataset: ds, Geometry: geom, Encoder: enc, Decoder: dec}
	if cfg.Discriminator != nil {
		disc, err := BuildDiscriminator(*cfg.Discriminator, enc.ZDim(), g)
		if err != nil {
			return nil, err
		}
		c.Discriminator = disc
	}
	return c, nil
}

func knownTargets[T any](m map[string]T) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, ", ")
}

// Dataset factories.

type mnistParams struct {
	Root       string `yaml:"root"`
	Train      *bool  `yaml:"train"`
	MaxSamples int    `yaml:"max_samples"`
}

type imageFolderParams struct {
	Root     string `yaml:"root"`
	ImgSize  int    `yaml:"img_size"`
	Channels int    `yaml:"channels"`
}

type syntheticParams struct {
	N       int `yaml:"n"`
	ImgSize int `yaml:"img_size"`
}

var datasetFactories = map[string]func(params map[string]any) (data.Dataset, Geometry, error){
	"mnist": func(params map[string]any) (data.Dataset, Geometry, error) {
		var p mnistParams
		if err := config.DecodeParams(params, &p); err != nil {
			return nil, Geometry{}, err
		}
		if p.Root == "" {
			return nil, Geometry{}, fmt.Errorf("dataset mnist: required param %q is missing", "root")
		}
		train := p.Train == nil || *p.Train
		ds, err := data.LoadMNIST(p.Root, train, p.MaxSamples)
		if err != nil {
			return nil, Geometry{}, err
		}
		return ds, Geometry{Channels: 1, Height: 28, Width: 28}, nil
	},
	"image_folder": func(params map[string]any) (data.Dataset, Geometry, error) {
		var p imageFolderParams
		if err := config.DecodeParams(params, &p); err != nil {
			return nil, Geometry{}, err
		}
		if p.Root == "" {
			return nil, Geometry{}, fmt.Errorf("dataset image_folder: required param %q is missing", "root")
		}
		if p.ImgSize == 0 {
			p.ImgSize = 64
		}
		if p.Channels == 0 {
			p.Channels = 3
		}
		ds, err := data.NewImageFolder(p.Root, p.ImgSize, p.Channels)
		if err != nil {
			return nil, Geometry{}, err
		}
		return ds, Geometry{Channels: p.Channels, Height: p.ImgSize, Width: p.ImgSize}, nil
	},
	"synthetic": func(params map[string]any) (data.Dataset, Geometry, error) {
		var p syntheticParams
		if err := config.DecodeParams(params, &p); err != nil {
			return nil, Geometry{}, err
		}
		if p.N == 0 {
			p.N = 1000
		}
		if p.ImgSize == 0 {
			p.ImgSize = 32
		}
		return data.NewSynthetic(p.N, p.ImgSize, p.ImgSize), Geometry{Channels: 1, Height: p.ImgSize, Width: p.ImgSize}, nil
	},
}

// BuildDataset instantiates the dataset named by spec.
func BuildDataset(spec config.Component) (data.Dataset, Geometry, error) {
	factory, ok := datasetFactories[spec.Target]
	if !ok {
		return nil, Geometry{}, fmt.Errorf("unknown dataset target %q (known: %s)", spec.Target, knownTargets(datasetFactories))
	}
	return factory(spec.Params)
}

// Model factories.

type encoderParams struct {
	ZDim   int   `yaml:"z_dim"`
	InDim  int   `yaml:"in_dim"`
	Hidden []int `yaml:"hidden"`
}

// BuildEncoder instantiates the encoder named by spec for flattened
// images of length inDim.
func BuildEncoder(spec config.Component, inDim int, g *rng.Generator) (nn.Encoder, error) {
	switch spec.Target {
	case "mlp_encoder":
		var p encoderParams
		if err := config.DecodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		if p.ZDim <= 0 {
			return nil, fmt.Errorf("encoder mlp_encoder: required param %q is missing or non-positive", "z_dim")
		}
		if p.InDim != 0 && p.InDim != inDim {
			return nil, fmt.Errorf("shape mismatch: encoder in_dim is %d but dataset images have %d elements", p.InDim, inDim)
		}
		return nn.NewMLPEncoder(inDim, p.ZDim, p.Hidden, g), nil
	default:
		return nil, fmt.Errorf("unknown encoder target %q (known: mlp_encoder)", spec.Target)
	}
}

type decoderParams struct {
	ZDim     int   `yaml:"z_dim"`
	OutDim   int   `yaml:"out_dim"`
	Hidden   []int `yaml:"hidden"`
	WithTanh *bool `yaml:"with_tanh"`
}

// BuildDecoder instantiates the decoder named by spec for flattened
// images of length outDim.
func BuildDecoder(spec config.Component, outDim int, g *rng.Generator) (nn.Decoder, error) {
	switch spec.Target {
	case "mlp_decoder":
		var p decoderParams
		if err := config.DecodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		if p.ZDim <= 0 {
			return nil, fmt.Errorf("decoder mlp_decoder: required param %q is missing or non-positive", "z_dim")
		}
		if p.OutDim != 0 && p.OutDim != outDim {
			return nil, fmt.Errorf("shape mismatch: decoder out_dim is %d but dataset images have %d elements", p.OutDim, outDim)
		}
		withTanh := p.WithTanh == nil || *p.WithTanh
		return nn.NewMLPDecoder(p.ZDim, outDim, p.Hidden, withTanh, g), nil
	default:
		return nil, fmt.Errorf("unknown decoder target %q (known: mlp_decoder)", spec.Target)
	}
}

type discriminatorParams struct {
	ZDim   int   `yaml:"z_dim"`
	Hidden []int `yaml:"hidden"`
}

// BuildDiscriminator instantiates the latent discriminator named by spec.
func BuildDiscriminator(spec config.Component, zDim int, g *rng.Generator) (nn.Discriminator, error) {
	switch spec.Target {
	case "latent_mlp":
		var p discriminatorParams
		if err := config.DecodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		if p.ZDim != 0 && p.ZDim != zDim {
			return nil, fmt.Errorf("shape mismatch: discriminator z_dim is %d but encoder z_dim is %d", p.ZDim, zDim)
		}
		return nn.NewLatentMLP(zDim, p.Hidden, g), nil
	default:
		return nil, fmt.Errorf("unknown discriminator target %q (known: latent_mlp)", spec.Target)
	}
}

// Optimizer factories.

type adamParams struct {
	LR    float64   `yaml:"lr"`
	Betas []float64 `yaml:"betas"`
	Eps   float64   `yaml:"eps"`
}

type sgdParams struct {
	LR       float64 `yaml:"lr"`
	Momentum float64 `yaml:"momentum"`
}

// BuildOptimizer instantiates the optimizer named by spec over params.
func BuildOptimizer(spec config.Component, params []*nn.Parameter) (optim.Optimizer, error) {
	switch spec.Target {
	case "adam":
		var p adamParams
		if err := config.DecodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		cfg := optim.AdamConfig{LR: p.LR, Eps: p.Eps}
		if len(p.Betas) == 2 {
			cfg.Betas = [2]float64{p.Betas[0], p.Betas[1]}
		} else if len(p.Betas) != 0 {
			return nil, fmt.Errorf("optimizer adam: betas must have exactly 2 entries, got %d", len(p.Betas))
		}
		return optim.NewAdam(params, cfg), nil
	case "sgd":
		var p sgdParams
		if err := config.DecodeParams(spec.Params, &p); err != nil {
			return nil, err
		}
		return optim.NewSGD(params, optim.SGDConfig{LR: p.LR, Momentum: p.Momentum}), nil
	default:
		return nil, fmt.Errorf("unknown optimizer target %q (known: adam, sgd)", spec.Target)
	}
}
