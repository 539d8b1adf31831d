package rulesets

import (
	"fmt"

	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/irrigation"
)

// BuiltinRuleID marks a risk verdict produced by irrigation.ClassifyRisk
// instead of the rule engine
const BuiltinRuleID = "builtin"

// RiskClassifier decides the three-level risk with the "risk" rule set.
// The set is looked up per call so Replace takes effect immediately.
type RiskClassifier struct {
	manager *Manager
	set     string
	groups  crops.Groups
}

// NewRiskClassifier binds the risk set of m
func NewRiskClassifier(m *Manager, groups crops.Groups) *RiskClassifier {
	return &RiskClassifier{manager: m, set: RiskSet, groups: groups}
}

// Classify returns the verdict and the id of the rule that produced it.
// Any engine failure falls back to irrigation.ClassifyRisk so a decision
// is always produced.
func (rc *RiskClassifier) Classify(s irrigation.EnvironmentSample, cropIdx int) (irrigation.Verdict, string) {
	v, ruleID, err := rc.decide(s, cropIdx)
	if err != nil {
		logger.Warn("risk rule set failed, using built-in thresholds", "set", rc.set, "error", err)
		return s.Risk(), BuiltinRuleID
	}
	return v, ruleID
}

func (rc *RiskClassifier) decide(s irrigation.EnvironmentSample, cropIdx int) (irrigation.Verdict, string, error) {
	engine, err := rc.manager.Engine(rc.set)
	if err != nil {
		return "", "", err
	}

	d, err := engine.Decide(Facts(s, cropIdx, rc.groups))
	if err != nil {
		return "", "", err
	}

	v, err := irrigation.ParseVerdict(d.Verdict)
	if err != nil {
		return "", "", fmt.Errorf("rule %s: %w", d.RuleID, err)
	}
	return v, d.RuleID, nil
}

// LabelEngine labels training samples with the "label" rule set
type LabelEngine struct {
	manager *Manager
	set     string
	groups  crops.Groups
}

// NewLabelEngine binds the label set of m
func NewLabelEngine(m *Manager, groups crops.Groups) *LabelEngine {
	return &LabelEngine{manager: m, set: LabelSet, groups: groups}
}

// Label returns 1 (IrrigationNeeded) or 0 (Optimal)
func (le *LabelEngine) Label(s irrigation.EnvironmentSample, cropIdx int) (int, error) {
	engine, err := le.manager.Engine(le.set)
	if err != nil {
		return 0, err
	}

	d, err := engine.Decide(Facts(s, cropIdx, le.groups))
	if err != nil {
		return 0, fmt.Errorf("label rule set: %w", err)
	}

	v, err := irrigation.ParseVerdict(d.Verdict)
	if err != nil {
		return 0, fmt.Errorf("rule %s: %w", d.RuleID, err)
	}
	return v.Label()
}
