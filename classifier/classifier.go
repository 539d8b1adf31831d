// Package classifier fits the irrigation-need model on synthetic data and
// serves predictions from it.
package classifier

import (
	"context"
	"fmt"
	"time"

	"github.com/liamcoop/irrigation/forest"
	"github.com/liamcoop/irrigation/irrigation"
	"github.com/liamcoop/irrigation/synth"
)

// Options controls training
type Options struct {
	SampleCount int           `yaml:"samples" json:"samples"`
	Seed        uint64        `yaml:"seed" json:"seed"`
	Forest      forest.Config `yaml:"forest" json:"forest"`
}

// DefaultOptions trains 100 trees on 2000 samples with seed 42
func DefaultOptions() Options {
	return Options{
		SampleCount: 2000,
		Seed:        42,
		Forest:      forest.DefaultConfig(),
	}
}

// Metadata describes a fitted model
type Metadata struct {
	Samples          int           `json:"samples"`
	Positives        int           `json:"positives"`
	Seed             uint64        `json:"seed"`
	TrainingAccuracy float64       `json:"trainingAccuracy"`
	FitDuration      time.Duration `json:"fitDuration"`
	FittedAt         time.Time     `json:"fittedAt"`
	Forest           forest.Stats  `json:"forest"`
}

// Model is a fitted classifier. It is immutable and safe to share.
type Model struct {
	forest *forest.Forest
	meta   Metadata
}

// Fit trains a model on set
func Fit(ctx context.Context, set *synth.TrainingSet, opts Options) (*Model, error) {
	if set == nil || set.Len() == 0 {
		return nil, fmt.Errorf("empty training set: %w", irrigation.ErrInvalidInput)
	}

	start := time.Now()
	x, y := set.Features(), set.Labels()
	f, err := forest.Fit(ctx, x, y, opts.Forest)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	m := &Model{forest: f}
	correct := 0
	for i, row := range x {
		label, err := f.Predict(row)
		if err != nil {
			return nil, err
		}
		if label == y[i] {
			correct++
		}
	}

	m.meta = Metadata{
		Samples:          set.Len(),
		Positives:        set.Positives(),
		Seed:             set.Seed,
		TrainingAccuracy: float64(correct) / float64(set.Len()),
		FitDuration:      time.Since(start),
		FittedAt:         time.Now().UTC(),
		Forest:           f.Stats(),
	}
	return m, nil
}

// Train generates the training set and fits a model on it
func Train(ctx context.Context, opts Options, catalogSize int, labeler synth.Labeler) (*Model, error) {
	set, err := synth.Generate(opts.SampleCount, opts.Seed, catalogSize, labeler)
	if err != nil {
		return nil, fmt.Errorf("generate training set: %w", err)
	}
	return Fit(ctx, set, opts)
}

// Probability returns P(IrrigationNeeded). Crop indices are not checked;
// callers map unknown crops to a default first.
func (m *Model) Probability(s irrigation.EnvironmentSample, cropIdx int) float64 {
	proba, err := m.forest.PredictProba(synth.FeatureVector(s, cropIdx))
	if err != nil {
		// FeatureVector always has the training width
		panic(err)
	}
	if len(proba) <= irrigation.LabelIrrigationNeeded {
		return 0
	}
	return proba[irrigation.LabelIrrigationNeeded]
}

// Predict returns the binary label 1 (IrrigationNeeded) or 0 (Optimal).
// A tie goes to 0.
func (m *Model) Predict(s irrigation.EnvironmentSample, cropIdx int) int {
	if m.Probability(s, cropIdx) > 0.5 {
		return irrigation.LabelIrrigationNeeded
	}
	return irrigation.LabelOptimal
}

// Decide returns the verdict with the ensemble's probability for it
func (m *Model) Decide(s irrigation.EnvironmentSample, cropIdx int) (irrigation.Verdict, float64) {
	p := m.Probability(s, cropIdx)
	if p > 0.5 {
		return irrigation.VerdictIrrigationNeeded, p
	}
	return irrigation.VerdictOptimal, 1 - p
}

// Metadata describes how the model was fitted
func (m *Model) Metadata() Metadata { return m.meta }
