package nn

import (
	"math"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// Xavier (Glorot) initialization for weights.
//
// Values are drawn from U(-b, b) with b = sqrt(6 / (fan_in + fan_out)),
// which keeps activation variance roughly constant across layers.
func Xavier(fanIn, fanOut int, shape tensor.Shape, g *rng.Generator) *tensor.Tensor {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	t := tensor.New(shape)
	data := t.Data()
	for i := range data {
		data[i] = float32((g.Float64()*2.0 - 1.0) * bound)
	}
	return t
}
