// Package forest implements a bagged ensemble of CART decision trees.
package forest

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"golang.org/x/sync/errgroup"
)

// ErrShape is returned for inconsistent training or query dimensions
var ErrShape = errors.New("shape mismatch")

// Forest is a fitted ensemble. It is read-only and safe for concurrent use.
type Forest struct {
	trees    []*tree
	classes  int
	features int
	cfg      Config
}

// Fit grows cfg.Trees trees, each on its own bootstrap sample. Every tree
// draws from a PCG stream keyed by (cfg.Seed, tree index), so the result
// depends only on (x, y, cfg) however the trees are scheduled.
func Fit(ctx context.Context, x [][]float64, y []int, cfg Config) (*Forest, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(x) == 0 {
		return nil, fmt.Errorf("no training rows: %w", ErrShape)
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("%d rows but %d labels: %w", len(x), len(y), ErrShape)
	}

	features := len(x[0])
	if features == 0 {
		return nil, fmt.Errorf("rows have no features: %w", ErrShape)
	}
	classes := 2
	for i, row := range x {
		if len(row) != features {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(row), features, ErrShape)
		}
		if y[i] < 0 {
			return nil, fmt.Errorf("row %d has negative label %d", i, y[i])
		}
		if y[i]+1 > classes {
			classes = y[i] + 1
		}
	}

	f := &Forest{
		trees:    make([]*tree, cfg.Trees),
		classes:  classes,
		features: features,
		cfg:      cfg,
	}
	maxFeatures := cfg.featuresPerSplit(features)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.workers())
	for t := 0; t < cfg.Trees; t++ {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			rng := rand.New(rand.NewPCG(cfg.Seed, uint64(t)+1))
			bootstrap := make([]int, len(x))
			for i := range bootstrap {
				bootstrap[i] = rng.IntN(len(x))
			}

			b := &builder{
				x:           x,
				y:           y,
				classes:     classes,
				maxFeatures: maxFeatures,
				cfg:         cfg,
				rng:         rng,
				t:           &tree{},
			}
			b.build(bootstrap, 0)
			f.trees[t] = b.t
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return f, nil
}

// PredictProba averages the leaf class distributions of all trees
func (f *Forest) PredictProba(x []float64) ([]float64, error) {
	if len(x) != f.features {
		return nil, fmt.Errorf("query has %d features, want %d: %w", len(x), f.features, ErrShape)
	}

	out := make([]float64, f.classes)
	for _, t := range f.trees {
		for k, p := range t.predict(x) {
			out[k] += p
		}
	}
	for k := range out {
		out[k] /= float64(len(f.trees))
	}
	return out, nil
}

// Predict returns the most probable class; ties go to the lower class
func (f *Forest) Predict(x []float64) (int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return 0, err
	}
	return argmax(proba), nil
}

func argmax(p []float64) int {
	best := 0
	for k := 1; k < len(p); k++ {
		if p[k] > p[best] {
			best = k
		}
	}
	return best
}

// Stats summarises the fitted trees
type Stats struct {
	Trees     int     `json:"trees"`
	Classes   int     `json:"classes"`
	Features  int     `json:"features"`
	Nodes     int     `json:"nodes"`
	MaxDepth  int     `json:"maxDepth"`
	MeanDepth float64 `json:"meanDepth"`
}

// Stats reports the ensemble's size
func (f *Forest) Stats() Stats {
	s := Stats{Trees: len(f.trees), Classes: f.classes, Features: f.features}
	total := 0
	for _, t := range f.trees {
		s.Nodes += len(t.nodes)
		total += t.depth
		if t.depth > s.MaxDepth {
			s.MaxDepth = t.depth
		}
	}
	if len(f.trees) > 0 {
		s.MeanDepth = float64(total) / float64(len(f.trees))
	}
	return s
}

// Config returns the settings the forest was fitted with
func (f *Forest) Config() Config { return f.cfg }
