// Package synth generates the synthetic training set the classifier is
// fitted on.
package synth

import (
	"fmt"
	"math/rand/v2"

	"github.com/liamcoop/irrigation/irrigation"
)

// Sampling ranges of the generated features
const (
	SoilMin, SoilMax         = 10.0, 90.0
	TempMin, TempMax         = 15.0, 45.0
	HumidityMin, HumidityMax = 20.0, 90.0
)

// pcgStream is the fixed PCG increment; the seed selects the state.
const pcgStream = 0x9e3779b97f4a7c15

// Labeler assigns the binary training label to one sample
type Labeler interface {
	Label(s irrigation.EnvironmentSample, cropIdx int) (int, error)
}

// Sample is one labelled training row
type Sample struct {
	irrigation.EnvironmentSample
	CropIndex int `json:"cropIndex"`
	Label     int `json:"label"`
}

// Features returns the model input {soil, temp, humidity, cropIndex}
func (s Sample) Features() []float64 {
	return FeatureVector(s.EnvironmentSample, s.CropIndex)
}

// FeatureVector lays out a query the way the training rows are laid out
func FeatureVector(s irrigation.EnvironmentSample, cropIdx int) []float64 {
	return []float64{s.SoilMoisture, s.Temperature, s.Humidity, float64(cropIdx)}
}

// FeatureNames names the columns of FeatureVector
var FeatureNames = []string{"soil", "temp", "humidity", "crop"}

// TrainingSet is an ordered list of labelled samples
type TrainingSet struct {
	Seed    uint64   `json:"seed"`
	Samples []Sample `json:"samples"`
}

// Len returns the number of samples
func (ts *TrainingSet) Len() int { return len(ts.Samples) }

// Features returns the feature matrix, one row per sample
func (ts *TrainingSet) Features() [][]float64 {
	out := make([][]float64, len(ts.Samples))
	for i, s := range ts.Samples {
		out[i] = s.Features()
	}
	return out
}

// Labels returns the label column
func (ts *TrainingSet) Labels() []int {
	out := make([]int, len(ts.Samples))
	for i, s := range ts.Samples {
		out[i] = s.Label
	}
	return out
}

// Positives counts IrrigationNeeded rows
func (ts *TrainingSet) Positives() int {
	n := 0
	for _, s := range ts.Samples {
		if s.Label == irrigation.LabelIrrigationNeeded {
			n++
		}
	}
	return n
}

// Generate draws n samples from a single PCG stream seeded with seed and
// labels them. Draws are column by column: all soil values, then all
// temperatures, then humidities, then crop indices. The same (n, seed)
// always yields the same set.
func Generate(n int, seed uint64, catalogSize int, labeler Labeler) (*TrainingSet, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sample count must be positive, got %d: %w", n, irrigation.ErrInvalidInput)
	}
	if catalogSize <= 0 {
		return nil, fmt.Errorf("catalog size must be positive, got %d: %w", catalogSize, irrigation.ErrInvalidInput)
	}
	if labeler == nil {
		return nil, fmt.Errorf("no labeler: %w", irrigation.ErrInvalidInput)
	}

	rng := rand.New(rand.NewPCG(seed, pcgStream))

	samples := make([]Sample, n)
	for i := range samples {
		samples[i].SoilMoisture = uniform(rng, SoilMin, SoilMax)
	}
	for i := range samples {
		samples[i].Temperature = uniform(rng, TempMin, TempMax)
	}
	for i := range samples {
		samples[i].Humidity = uniform(rng, HumidityMin, HumidityMax)
	}
	for i := range samples {
		samples[i].CropIndex = rng.IntN(catalogSize)
	}

	for i := range samples {
		label, err := labeler.Label(samples[i].EnvironmentSample, samples[i].CropIndex)
		if err != nil {
			return nil, fmt.Errorf("label sample %d: %w", i, err)
		}
		samples[i].Label = label
	}

	return &TrainingSet{Seed: seed, Samples: samples}, nil
}

func uniform(rng *rand.Rand, lo, hi float64) float64 {
	return lo + (hi-lo)*rng.Float64()
}
