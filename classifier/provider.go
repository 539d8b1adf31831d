package classifier

import (
	"context"
	"sync"

	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/synth"
)

// Provider fits the model on first use and hands out the same *Model for
// the rest of the process. Construct one at startup and pass it down.
type Provider struct {
	opts        Options
	catalogSize int
	labeler     synth.Labeler
	onFit       func(Metadata)

	once  sync.Once
	model *Model
	err   error
	ready chan struct{}
}

// ProviderOption customizes a Provider
type ProviderOption func(*Provider)

// OnFit registers a callback run once after a successful fit
func OnFit(fn func(Metadata)) ProviderOption {
	return func(p *Provider) { p.onFit = fn }
}

// NewProvider prepares a lazily fitted model; nothing is trained yet
func NewProvider(opts Options, catalogSize int, labeler synth.Labeler, popts ...ProviderOption) *Provider {
	p := &Provider{
		opts:        opts,
		catalogSize: catalogSize,
		labeler:     labeler,
		ready:       make(chan struct{}),
	}
	for _, o := range popts {
		o(p)
	}
	return p
}

// Model returns the fitted model, fitting it on the first call. Concurrent
// first calls wait for the same fit. A failed fit is not retried.
func (p *Provider) Model(ctx context.Context) (*Model, error) {
	p.once.Do(func() {
		defer close(p.ready)

		// A cancelled first request must not poison the shared model
		fitCtx := context.WithoutCancel(ctx)

		logger.Info("fitting classifier", "samples", p.opts.SampleCount, "seed", p.opts.Seed, "trees", p.opts.Forest.Trees)
		p.model, p.err = Train(fitCtx, p.opts, p.catalogSize, p.labeler)
		if p.err != nil {
			logger.Error("classifier fit failed", "error", p.err)
			return
		}

		meta := p.model.Metadata()
		logger.Info("classifier fitted",
			"samples", meta.Samples,
			"positives", meta.Positives,
			"trainingAccuracy", meta.TrainingAccuracy,
			"duration", meta.FitDuration.String(),
		)
		if p.onFit != nil {
			p.onFit(meta)
		}
	})
	return p.model, p.err
}

// Ready reports whether a fit has finished (successfully or not)
func (p *Provider) Ready() bool {
	select {
	case <-p.ready:
		return true
	default:
		return false
	}
}

// Warm fits the model in the background so the first query does not pay
// for it
func (p *Provider) Warm(ctx context.Context) {
	go func() { _, _ = p.Model(ctx) }()
}

// Options returns the training options
func (p *Provider) Options() Options { return p.opts }
