package rulesets

import (
	_ "embed"
	"fmt"
	"os"

	"github.com/liamcoop/irrigation/rules"
	"gopkg.in/yaml.v3"
)

// Names of the built-in rule sets
const (
	RiskSet  = "risk"
	LabelSet = "label"
)

//go:embed defaults.yaml
var defaultsYAML []byte

// Variables maps CEL variable names to type names (see isValidCELType)
type Variables map[string]string

// RuleSpec is one rule as written in a definition file
type RuleSpec struct {
	ID         string `yaml:"id" json:"id"`
	Name       string `yaml:"name" json:"name"`
	Expression string `yaml:"expression" json:"expression"`
	Verdict    string `yaml:"verdict" json:"verdict"`
	Priority   int    `yaml:"priority" json:"priority"`
	Disabled   bool   `yaml:"disabled,omitempty" json:"disabled,omitempty"`
}

// Rule converts the definition entry into an engine rule
func (rs RuleSpec) Rule() *rules.Rule {
	return &rules.Rule{
		ID:         rs.ID,
		Name:       rs.Name,
		Expression: rs.Expression,
		Verdict:    rs.Verdict,
		Priority:   rs.Priority,
		Active:     !rs.Disabled,
	}
}

// Definition describes a named verdict table: the facts its rules may
// reference, the closed set of verdicts and the seed rules.
type Definition struct {
	Name        string     `yaml:"name" json:"name"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Variables   Variables  `yaml:"variables" json:"variables"`
	Verdicts    []string   `yaml:"verdicts" json:"verdicts"`
	Rules       []RuleSpec `yaml:"rules" json:"rules"`
}

// Defaults returns the embedded risk and label definitions
func Defaults() ([]Definition, error) {
	return ParseDefinitions(defaultsYAML)
}

// ParseDefinitions decodes and validates a YAML list of definitions
func ParseDefinitions(data []byte) ([]Definition, error) {
	var defs []Definition
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("failed to parse rule sets: %w", err)
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("no rule sets defined")
	}

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			return nil, fmt.Errorf("rule set %q defined twice", def.Name)
		}
		seen[def.Name] = true

		if err := ValidateDefinition(def); err != nil {
			return nil, fmt.Errorf("rule set %q: %w", def.Name, err)
		}
	}
	return defs, nil
}

// LoadFile reads definitions from path. Sets missing from the file fall
// back to the embedded defaults so the risk and label tables always exist.
func LoadFile(path string) ([]Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rule sets: %w", err)
	}
	defs, err := ParseDefinitions(data)
	if err != nil {
		return nil, err
	}

	builtin, err := Defaults()
	if err != nil {
		return nil, err
	}
	have := make(map[string]bool, len(defs))
	for _, d := range defs {
		have[d.Name] = true
	}
	for _, d := range builtin {
		if !have[d.Name] {
			defs = append(defs, d)
		}
	}
	return defs, nil
}
