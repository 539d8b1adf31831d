// Package irrigation holds the domain values shared by both decision
// back-ends: field conditions, verdicts and the fixed risk threshold table.
package irrigation

import (
	"errors"
	"fmt"
)

// ErrInvalidInput marks input that cannot be evaluated at all, such as an
// unparseable batch file. Wrap it with %w so callers can test with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// EnvironmentSample describes field conditions at one point in time.
type EnvironmentSample struct {
	SoilMoisture float64 `json:"soil"`     // percent, 0..100
	Temperature  float64 `json:"temp"`     // degrees Celsius
	Humidity     float64 `json:"humidity"` // percent, 0..100
}

// Verdict is the outcome of a decision back-end.
type Verdict string

const (
	// Rule engine outcomes
	VerdictHigh   Verdict = "High"
	VerdictMedium Verdict = "Medium"
	VerdictLow    Verdict = "Low"

	// Classifier outcomes
	VerdictIrrigationNeeded Verdict = "IrrigationNeeded"
	VerdictOptimal          Verdict = "Optimal"
)

// Labels used by the synthetic training set and the classifier.
const (
	LabelOptimal          = 0
	LabelIrrigationNeeded = 1
)

// RiskVerdicts lists the closed set produced by the rule back-end.
var RiskVerdicts = []Verdict{VerdictHigh, VerdictMedium, VerdictLow}

// ModelVerdicts lists the closed set produced by the classifier back-end.
var ModelVerdicts = []Verdict{VerdictIrrigationNeeded, VerdictOptimal}

// VerdictForLabel maps a classifier label to its verdict. Anything other
// than 1 is Optimal.
func VerdictForLabel(label int) Verdict {
	if label == LabelIrrigationNeeded {
		return VerdictIrrigationNeeded
	}
	return VerdictOptimal
}

// Label returns the binary label of a classifier verdict.
func (v Verdict) Label() (int, error) {
	switch v {
	case VerdictIrrigationNeeded:
		return LabelIrrigationNeeded, nil
	case VerdictOptimal:
		return LabelOptimal, nil
	}
	return 0, fmt.Errorf("verdict %q has no binary label", string(v))
}

// Valid reports whether v belongs to either closed verdict set.
func (v Verdict) Valid() bool {
	switch v {
	case VerdictHigh, VerdictMedium, VerdictLow, VerdictIrrigationNeeded, VerdictOptimal:
		return true
	}
	return false
}

// ParseVerdict accepts the canonical spelling only.
func ParseVerdict(s string) (Verdict, error) {
	v := Verdict(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown verdict %q", s)
	}
	return v, nil
}
