package synth

import (
	"github.com/liamcoop/irrigation/crops"
	"github.com/liamcoop/irrigation/irrigation"
)

// Condition is one entry of the priority-ordered labelling list
type Condition struct {
	Name  string
	Holds func(s irrigation.EnvironmentSample, cropIdx int, g crops.Groups) bool
}

// Conditions lists the label-1 conditions in priority order. They overlap
// on purpose; the first that holds names the reason and later ones are not
// consulted. A row matching none is labelled 0.
var Conditions = []Condition{
	{
		Name: "high-water",
		Holds: func(s irrigation.EnvironmentSample, c int, g crops.Groups) bool {
			return g.IsHighWater(c) && s.SoilMoisture < 60
		},
	},
	{
		Name: "low-water",
		Holds: func(s irrigation.EnvironmentSample, c int, g crops.Groups) bool {
			return g.IsLowWater(c) && s.SoilMoisture < 25
		},
	},
	{
		Name: "other",
		Holds: func(s irrigation.EnvironmentSample, c int, g crops.Groups) bool {
			return !g.IsHighWater(c) && !g.IsLowWater(c) && s.SoilMoisture < 40
		},
	},
	{
		Name: "heat",
		Holds: func(s irrigation.EnvironmentSample, _ int, _ crops.Groups) bool {
			return s.Temperature > 35 && s.SoilMoisture < 50
		},
	},
}

// DefaultCondition names the fallthrough when nothing holds
const DefaultCondition = "default"

// RuleLabeler applies Conditions with the catalog's water groups
type RuleLabeler struct {
	groups crops.Groups
}

// NewRuleLabeler returns a labeler over the given groups
func NewRuleLabeler(g crops.Groups) *RuleLabeler {
	return &RuleLabeler{groups: g}
}

// Label never fails
func (l *RuleLabeler) Label(s irrigation.EnvironmentSample, cropIdx int) (int, error) {
	label, _ := l.Explain(s, cropIdx)
	return label, nil
}

// Explain returns the label and the name of the condition that decided it
func (l *RuleLabeler) Explain(s irrigation.EnvironmentSample, cropIdx int) (int, string) {
	for _, c := range Conditions {
		if c.Holds(s, cropIdx, l.groups) {
			return irrigation.LabelIrrigationNeeded, c.Name
		}
	}
	return irrigation.LabelOptimal, DefaultCondition
}
