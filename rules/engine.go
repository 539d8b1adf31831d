package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/cel-go/cel"
)

// Fact names available to irrigation rule expressions.
const (
	FactSoil      = "soil"
	FactTemp      = "temp"
	FactHumidity  = "humidity"
	FactCrop      = "crop"
	FactHighWater = "highWater"
	FactLowWater  = "lowWater"
)

// Engine compiles and evaluates one ordered verdict table.
// Compiled programs are cached per rule ID; reads take an RLock.
type Engine struct {
	env      *cel.Env
	store    RuleStore
	cache    RulesCache
	programs map[string]cel.Program // ruleID -> compiled program
	verdicts map[string]bool        // allowed verdicts, nil = any
	mu       sync.RWMutex
}

// EngineOption customizes an Engine
type EngineOption func(*Engine)

// WithVerdicts restricts rule verdicts to the given closed set
func WithVerdicts(verdicts ...string) EngineOption {
	return func(en *Engine) {
		en.verdicts = make(map[string]bool, len(verdicts))
		for _, v := range verdicts {
			en.verdicts[v] = true
		}
	}
}

// WithCache replaces the default in-memory rules cache
func WithCache(c RulesCache) EngineOption {
	return func(en *Engine) { en.cache = c }
}

// DefaultEnv declares the irrigation facts with their CEL types
func DefaultEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable(FactSoil, cel.DoubleType),
		cel.Variable(FactTemp, cel.DoubleType),
		cel.Variable(FactHumidity, cel.DoubleType),
		cel.Variable(FactCrop, cel.IntType),
		cel.Variable(FactHighWater, cel.ListType(cel.IntType)),
		cel.Variable(FactLowWater, cel.ListType(cel.IntType)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}
	return env, nil
}

// NewEngine creates an engine over store using DefaultEnv
func NewEngine(store RuleStore, opts ...EngineOption) (*Engine, error) {
	env, err := DefaultEnv()
	if err != nil {
		return nil, err
	}
	return NewEngineWithEnv(env, store, opts...)
}

// NewEngineWithEnv creates an engine with a custom CEL environment and
// compiles every active rule in store.
func NewEngineWithEnv(env *cel.Env, store RuleStore, opts ...EngineOption) (*Engine, error) {
	en := &Engine{
		env:      env,
		store:    store,
		cache:    NewInMemoryRulesCache(DefaultCacheConfig()),
		programs: make(map[string]cel.Program),
	}
	for _, opt := range opts {
		opt(en)
	}

	if err := en.CompileAllRules(); err != nil {
		return nil, fmt.Errorf("failed to compile rules: %w", err)
	}

	return en, nil
}

// Env returns the CEL environment rules are compiled against
func (en *Engine) Env() *cel.Env { return en.env }

// Check compiles expression without caching it. The expression must be
// boolean (or dynamic, resolved at evaluation time).
func (en *Engine) Check(expression string) (cel.Program, error) {
	ast, issues := en.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compile error: %w", issues.Err())
	}

	out := ast.OutputType()
	if !out.IsExactType(cel.BoolType) && !out.IsExactType(cel.DynType) {
		return nil, fmt.Errorf("expression must be boolean, got %s", out.String())
	}

	// Cost limit guards against runaway expressions from the rule API
	prog, err := en.env.Program(ast,
		cel.EvalOptions(cel.OptTrackState),
		cel.CostLimit(1000000),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation error: %w", err)
	}
	return prog, nil
}

// CompileRule compiles a rule expression and caches the program
func (en *Engine) CompileRule(ruleID, expression string) error {
	prog, err := en.Check(expression)
	if err != nil {
		return err
	}

	en.mu.Lock()
	en.programs[ruleID] = prog
	en.mu.Unlock()

	return nil
}

// CompileAllRules compiles all active rules and primes the cache
func (en *Engine) CompileAllRules() error {
	gen := en.cache.Generation()
	rules, err := en.store.ListActive()
	if err != nil {
		return err
	}

	for _, rule := range rules {
		if err := en.CompileRule(rule.ID, rule.Expression); err != nil {
			return fmt.Errorf("failed to compile rule %s: %w", rule.ID, err)
		}
	}

	en.cache.Set(rules, gen)
	return nil
}

func (en *Engine) checkVerdict(r *Rule) error {
	if r.Verdict == "" {
		return fmt.Errorf("rule %s has no verdict", r.ID)
	}
	if en.verdicts != nil && !en.verdicts[r.Verdict] {
		return fmt.Errorf("rule %s: verdict %q is not allowed", r.ID, r.Verdict)
	}
	return nil
}

// AddRule validates, compiles and stores a new rule. The compiled program
// is dropped again if the store rejects the rule.
func (en *Engine) AddRule(r *Rule) error {
	if _, err := en.store.Get(r.ID); err == nil {
		return fmt.Errorf("rule with ID %s: %w", r.ID, ErrRuleExists)
	}
	if err := en.checkVerdict(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if err := en.CompileRule(r.ID, r.Expression); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	if err := en.store.Add(r); err != nil {
		en.mu.Lock()
		delete(en.programs, r.ID)
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule validates and recompiles an existing rule. The previous
// program is restored if the store update fails.
func (en *Engine) UpdateRule(r *Rule) error {
	if err := en.checkVerdict(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	prog, err := en.Check(r.Expression)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}

	en.mu.Lock()
	prev, hadPrev := en.programs[r.ID]
	en.programs[r.ID] = prog
	en.mu.Unlock()

	if err := en.store.Update(r); err != nil {
		en.mu.Lock()
		if hadPrev {
			en.programs[r.ID] = prev
		} else {
			delete(en.programs, r.ID)
		}
		en.mu.Unlock()
		return err
	}

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule from the store and its compiled program
func (en *Engine) DeleteRule(ruleID string) error {
	if err := en.store.Delete(ruleID); err != nil {
		return err
	}

	en.mu.Lock()
	delete(en.programs, ruleID)
	en.mu.Unlock()

	en.cache.Invalidate()
	return nil
}

// Rules returns the active rules in evaluation order. A list read from the
// store while a mutation invalidated the cache is used once but not cached.
func (en *Engine) Rules() ([]*Rule, error) {
	gen := en.cache.Generation()
	if rules := en.cache.Get(); rules != nil {
		return rules, nil
	}

	active, err := en.store.ListActive()
	if err != nil {
		return nil, err
	}
	rules := make([]*Rule, len(active))
	copy(rules, active)
	SortRules(rules)

	en.cache.Set(rules, gen)
	return rules, nil
}

// Store exposes the underlying rule store (for listing inactive rules)
func (en *Engine) Store() RuleStore { return en.store }

func (en *Engine) eval(rule *Rule, facts map[string]any) *EvaluationResult {
	res := &EvaluationResult{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Verdict:  rule.Verdict,
	}

	en.mu.RLock()
	prog, exists := en.programs[rule.ID]
	en.mu.RUnlock()

	if !exists {
		res.Error = fmt.Errorf("rule %s is not compiled", rule.ID)
		return res
	}

	out, details, err := prog.Eval(facts)
	if err != nil {
		res.Error = err
		return res
	}

	if b, ok := out.Value().(bool); ok {
		res.Matched = b
	}
	if details != nil {
		res.Trace = details.State()
	}
	return res
}

// Evaluate evaluates a single rule; non-boolean results count as no match
func (en *Engine) Evaluate(ruleID string, facts map[string]any) (*EvaluationResult, error) {
	rule, err := en.store.Get(ruleID)
	if err != nil {
		return nil, err
	}

	res := en.eval(rule, facts)
	return res, res.Error
}

// EvaluateAll evaluates every active rule in order, continuing past errors
func (en *Engine) EvaluateAll(facts map[string]any) ([]*EvaluationResult, error) {
	rules, err := en.Rules()
	if err != nil {
		return nil, err
	}

	results := make([]*EvaluationResult, 0, len(rules))
	for _, rule := range rules {
		results = append(results, en.eval(rule, facts))
	}
	return results, nil
}

// Decide returns the verdict of the first active rule that matches.
// An evaluation error aborts the walk; later rules are not consulted.
func (en *Engine) Decide(facts map[string]any) (*Decision, error) {
	rules, err := en.Rules()
	if err != nil {
		return nil, err
	}

	for _, rule := range rules {
		res := en.eval(rule, facts)
		if res.Error != nil {
			return nil, fmt.Errorf("rule %s: %w", rule.ID, res.Error)
		}
		if res.Matched {
			return &Decision{Verdict: rule.Verdict, RuleID: rule.ID, RuleName: rule.Name}, nil
		}
	}
	return nil, ErrNoMatch
}

// IsNoMatch reports whether err came from a table with no matching rule
func IsNoMatch(err error) bool { return errors.Is(err, ErrNoMatch) }
