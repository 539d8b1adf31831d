package rulesets

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/cel-go/cel"
	"github.com/liamcoop/irrigation/rules"
)

var validIdentifier = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ValidateDefinition checks a rule set definition before any engine is built.
// Expressions are type-checked later, when the engine compiles them.
func ValidateDefinition(def Definition) error {
	if err := validateIdentifier(def.Name); err != nil {
		return fmt.Errorf("invalid rule set name %q: %w", def.Name, err)
	}

	if len(def.Variables) == 0 {
		return fmt.Errorf("rule set must declare at least one variable")
	}
	if len(def.Variables) > 100 {
		return fmt.Errorf("rule set declares %d variables, maximum allowed is 100", len(def.Variables))
	}
	if _, ok := def.Variables[rules.FactHumidity]; ok && def.Name == RiskSet {
		return fmt.Errorf("rule set %q cannot declare %q: risk does not depend on humidity", RiskSet, rules.FactHumidity)
	}

	for name, typeName := range def.Variables {
		if err := validateIdentifier(name); err != nil {
			return fmt.Errorf("invalid variable name %q: %w", name, err)
		}
		if typeName == "" {
			return fmt.Errorf("variable %q has empty type name", name)
		}
		if strings.TrimSpace(typeName) != typeName {
			return fmt.Errorf("variable %q has type with leading/trailing whitespace: %q", name, typeName)
		}
		if !isValidCELType(typeName) {
			return fmt.Errorf("variable %q has invalid type %q (must be one of: double, int, bool, string, list<int>, list<double>)", name, typeName)
		}
	}

	if len(def.Verdicts) == 0 {
		return fmt.Errorf("rule set must declare at least one verdict")
	}
	verdicts := make(map[string]bool, len(def.Verdicts))
	for _, v := range def.Verdicts {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("verdict names cannot be empty")
		}
		if verdicts[v] {
			return fmt.Errorf("verdict %q declared twice", v)
		}
		verdicts[v] = true
	}

	if len(def.Rules) == 0 {
		return fmt.Errorf("rule set must contain at least one rule")
	}

	ids := make(map[string]bool, len(def.Rules))
	var active []*rules.Rule
	for _, rs := range def.Rules {
		if rs.ID == "" {
			return fmt.Errorf("rule with expression %q has no id", rs.Expression)
		}
		if ids[rs.ID] {
			return fmt.Errorf("rule id %q used twice", rs.ID)
		}
		ids[rs.ID] = true

		if strings.TrimSpace(rs.Expression) == "" {
			return fmt.Errorf("rule %q has empty expression", rs.ID)
		}
		if !verdicts[rs.Verdict] {
			return fmt.Errorf("rule %q has verdict %q, not one of %v", rs.ID, rs.Verdict, def.Verdicts)
		}
		if !rs.Disabled {
			active = append(active, rs.Rule())
		}
	}

	// The table must be total: the last active rule is an unconditional fallback
	if len(active) == 0 {
		return fmt.Errorf("rule set has no active rules")
	}
	rules.SortRules(active)
	if last := active[len(active)-1]; strings.TrimSpace(last.Expression) != "true" {
		return fmt.Errorf("last rule %q must be the catch-all expression \"true\"", last.ID)
	}

	return nil
}

// validateIdentifier checks the 1-100 character identifier syntax and
// rejects CEL reserved words
func validateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > 100 {
		return fmt.Errorf("identifier length %d exceeds maximum of 100 characters", len(name))
	}

	if !validIdentifier.MatchString(name) {
		return fmt.Errorf("must match pattern ^[a-zA-Z_][a-zA-Z0-9_]*$ (start with letter or underscore, followed by letters, digits, or underscores)")
	}

	if isReservedKeyword(name) {
		return fmt.Errorf("cannot use reserved keyword %q as identifier", name)
	}

	return nil
}

// celTypes maps definition type names to CEL types. Names are case-sensitive.
var celTypes = map[string]*cel.Type{
	"double":       cel.DoubleType,
	"int":          cel.IntType,
	"bool":         cel.BoolType,
	"string":       cel.StringType,
	"list<int>":    cel.ListType(cel.IntType),
	"list<double>": cel.ListType(cel.DoubleType),
}

func isValidCELType(typeName string) bool {
	_, ok := celTypes[typeName]
	return ok
}

// isReservedKeyword checks if a name is a CEL reserved keyword
func isReservedKeyword(name string) bool {
	reservedKeywords := map[string]bool{
		"true":  true,
		"false": true,
		"null":  true,

		"if":       true,
		"else":     true,
		"for":      true,
		"while":    true,
		"break":    true,
		"continue": true,
		"return":   true,

		"var":      true,
		"let":      true,
		"const":    true,
		"function": true,

		"in":        true,
		"as":        true,
		"import":    true,
		"package":   true,
		"namespace": true,
		"loop":      true,
		"void":      true,
	}

	return reservedKeywords[name]
}

// CreateCELEnv builds a typed CEL environment for the declared variables
func CreateCELEnv(vars Variables) (*cel.Env, error) {
	opts := make([]cel.EnvOption, 0, len(vars))
	for name, typeName := range vars {
		t, ok := celTypes[typeName]
		if !ok {
			return nil, fmt.Errorf("variable %q has invalid type %q", name, typeName)
		}
		opts = append(opts, cel.Variable(name, t))
	}

	env, err := cel.NewEnv(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}
