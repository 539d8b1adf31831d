package rules

import (
	"errors"
	"time"
)

var (
	// ErrRuleNotFound is returned by stores when a rule ID does not exist
	ErrRuleNotFound = errors.New("rule not found")

	// ErrRuleExists is returned when adding a rule whose ID is taken
	ErrRuleExists = errors.New("rule already exists")

	// ErrNoMatch is returned by Decide when no active rule matched
	ErrNoMatch = errors.New("no rule matched")

	// ErrInvalidRule wraps compile and verdict errors from AddRule and UpdateRule
	ErrInvalidRule = errors.New("invalid rule")
)

// Rule is one row of an ordered verdict table.
// Lower Priority values are evaluated first; ties break on ID.
type Rule struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Expression string    `json:"expression"`
	Verdict    string    `json:"verdict"`
	Priority   int       `json:"priority"`
	Active     bool      `json:"active"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// EvaluationResult contains the outcome of evaluating a single rule
type EvaluationResult struct {
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
	Verdict  string `json:"verdict"`
	Matched  bool   `json:"matched"`
	Error    error  `json:"-"`
	Trace    any    `json:"-"` // CEL evaluation state (optional)
}

// Decision is the first matching rule of an ordered table
type Decision struct {
	Verdict  string `json:"verdict"`
	RuleID   string `json:"ruleId"`
	RuleName string `json:"ruleName"`
}
