package forest

import (
	"fmt"
	"math"
	"runtime"
)

// Config controls ensemble fitting
type Config struct {
	Trees           int    `yaml:"trees" json:"trees"`
	MaxDepth        int    `yaml:"max_depth" json:"maxDepth"`                 // 0 = grow until pure
	MinSamplesSplit int    `yaml:"min_samples_split" json:"minSamplesSplit"` // nodes smaller than this become leaves
	MaxFeatures     int    `yaml:"max_features" json:"maxFeatures"`         // 0 = floor(sqrt(features))
	Seed            uint64 `yaml:"seed" json:"seed"`
	Workers         int    `yaml:"workers" json:"workers"` // 0 = GOMAXPROCS
}

// DefaultConfig is 100 unconstrained trees
func DefaultConfig() Config {
	return Config{
		Trees:           100,
		MinSamplesSplit: 2,
		Seed:            42,
	}
}

// Validate rejects negative or empty settings
func (c Config) Validate() error {
	if c.Trees <= 0 {
		return fmt.Errorf("trees must be positive, got %d", c.Trees)
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max depth cannot be negative, got %d", c.MaxDepth)
	}
	if c.MinSamplesSplit < 2 {
		return fmt.Errorf("min samples split must be at least 2, got %d", c.MinSamplesSplit)
	}
	if c.MaxFeatures < 0 {
		return fmt.Errorf("max features cannot be negative, got %d", c.MaxFeatures)
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative, got %d", c.Workers)
	}
	return nil
}

func (c Config) featuresPerSplit(nFeatures int) int {
	m := c.MaxFeatures
	if m == 0 {
		m = int(math.Sqrt(float64(nFeatures)))
	}
	if m < 1 {
		m = 1
	}
	if m > nFeatures {
		m = nFeatures
	}
	return m
}

func (c Config) workers() int {
	if c.Workers > 0 {
		return c.Workers
	}
	return runtime.GOMAXPROCS(0)
}
