package train

import (
	"gonum.org/v1/gonum/stat"

	"github.com/latentml/vae/internal/vae"
)

// meter accumulates per-step losses between print intervals.
type meter struct {
	total     []float64
	recon     []float64
	kl        []float64
	adv       []float64
	disc      []float64
	nonFinite int
}

func newMeter() *meter { return &meter{} }

func (m *meter) add(l vae.Losses) {
	if !l.Finite {
		m.nonFinite++
		return
	}
	m.total = append(m.total, l.Total)
	m.recon = append(m.recon, l.Recon)
	m.kl = append(m.kl, l.KL)
	m.adv = append(m.adv, l.Adv)
	m.disc = append(m.disc, l.Disc)
}

func (m *meter) reset() { *m = meter{} }

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	return stat.Mean(xs, nil)
}

func (m *meter) means() (total, recon, kl, adv, disc float64) {
	return mean(m.total), mean(m.recon), mean(m.kl), mean(m.adv), mean(m.disc)
}
