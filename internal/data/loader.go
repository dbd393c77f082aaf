package data

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/latentml/vae/internal/rng"
	"github.com/latentml/vae/internal/tensor"
)

// Loader turns a Dataset into an infinite stream of shuffled batches.
//
// Batch composition is a pure function of (seed, step): each epoch's
// permutation is derived from the seed and the epoch number, and batch s
// covers global positions [s*batchSize, (s+1)*batchSize) across the
// concatenated permutations. Because no mutable shuffle state exists, a
// loader restarted at step N reproduces the exact batch sequence of an
// uninterrupted run, which is what makes checkpoint resume deterministic.
//
// A producer goroutine assembles batches ahead of the consumer into a
// bounded channel (the prefetch queue); per-image reads within a batch
// fan out over a bounded worker pool. This is the only concurrency in the
// training path: the training step blocks only on Next.
type Loader struct {
	ch   chan batchResult
	stop chan struct{}
}

type batchResult struct {
	batch *tensor.Tensor
	err   error
}

// LoaderConfig controls batching and prefetch.
type LoaderConfig struct {
	BatchSize int
	Seed      uint64
	StartStep int64 // first step to produce batches for (0 for fresh runs)
	Prefetch  int   // queue depth (default 2)
	Workers   int   // per-batch read concurrency (default 4)
}

// NewLoader starts the prefetching producer.
func NewLoader(ds Dataset, cfg LoaderConfig) (*Loader, error) {
	if ds.Len() == 0 {
		return nil, fmt.Errorf("loader: dataset is empty")
	}
	if cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("loader: batch size must be positive, got %d", cfg.BatchSize)
	}
	if cfg.Prefetch <= 0 {
		cfg.Prefetch = 2
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}

	l := &Loader{
		ch:   make(chan batchResult, cfg.Prefetch),
		stop: make(chan struct{}),
	}
	go l.produce(ds, cfg)
	return l, nil
}

// Next blocks until the next batch is ready.
func (l *Loader) Next() (*tensor.Tensor, error) {
	r, ok := <-l.ch
	if !ok {
		return nil, fmt.Errorf("loader: closed")
	}
	return r.batch, r.err
}

// Close stops the producer. Safe to call once.
func (l *Loader) Close() { close(l.stop) }

func (l *Loader) produce(ds Dataset, cfg LoaderConfig) {
	defer close(l.ch)

	n := int64(ds.Len())
	dim := ds.Dim()
	var epoch int64 = -1
	var perm []int

	indexFor := func(globalPos int64) int {
		e := globalPos / n
		if e != epoch {
			epoch = e
			g := rng.New(cfg.Seed ^ uint64(e+1)*0x9e3779b97f4a7c15)
			perm = g.Perm(int(n))
		}
		return perm[globalPos%n]
	}

	for step := cfg.StartStep; ; step++ {
		batch := tensor.New(tensor.Shape{cfg.BatchSize, dim})

		// Resolve indices sequentially (the permutation cache is not
		// goroutine-safe), then read rows in parallel.
		indices := make([]int, cfg.BatchSize)
		for j := range indices {
			indices[j] = indexFor(step*int64(cfg.BatchSize) + int64(j))
		}

		var g errgroup.Group
		g.SetLimit(cfg.Workers)
		for j, idx := range indices {
			row := batch.Row(j)
			g.Go(func() error {
				img, err := ds.Image(idx)
				if err != nil {
					return err
				}
				if len(img) != dim {
					return fmt.Errorf("image %d: length %d, want %d", idx, len(img), dim)
				}
				copy(row, img)
				return nil
			})
		}
		err := g.Wait()

		select {
		case l.ch <- batchResult{batch: batch, err: err}:
		case <-l.stop:
			return
		}
		if err != nil {
			return
		}
	}
}
