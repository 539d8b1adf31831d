package rules

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
)

func facts(soil, temp, humidity float64) map[string]any {
	return map[string]any{
		FactSoil:      soil,
		FactTemp:      temp,
		FactHumidity:  humidity,
		FactCrop:      int64(0),
		FactHighWater: []int64{1, 4},
		FactLowWater:  []int64{7},
	}
}

// riskTable mirrors the default High/Medium/Low table
func riskTable() []*Rule {
	return []*Rule{
		{ID: "risk-high", Name: "dry and hot", Expression: `soil < 30.0 && temp > 30.0`, Verdict: "High", Priority: 10, Active: true},
		{ID: "risk-medium", Name: "moderately dry", Expression: `soil < 40.0`, Verdict: "Medium", Priority: 20, Active: true},
		{ID: "risk-low", Name: "otherwise", Expression: `true`, Verdict: "Low", Priority: 30, Active: true},
	}
}

func newRiskEngine(t *testing.T) *Engine {
	t.Helper()
	store := NewInMemoryRuleStore()
	for _, r := range riskTable() {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add(%s) failed: %v", r.ID, err)
		}
	}
	engine, err := NewEngine(store, WithVerdicts("High", "Medium", "Low"))
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	return engine
}

func TestNewEngine(t *testing.T) {
	engine, err := NewEngine(NewInMemoryRuleStore())
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}
	if engine == nil {
		t.Fatal("NewEngine() should return non-nil engine")
	}
	if engine.Env() == nil {
		t.Error("Engine should expose its CEL environment")
	}
}

// TestNewEngineCompilesExistingRules checks active rules are compiled on init
func TestNewEngineCompilesExistingRules(t *testing.T) {
	store := NewInMemoryRuleStore()
	rules := []*Rule{
		{ID: "rule-1", Expression: `soil < 30.0`, Verdict: "High", Active: true},
		{ID: "rule-2", Expression: `humidity > 80.0`, Verdict: "Low", Active: true},
		{ID: "rule-3", Expression: `crop in highWater`, Verdict: "High", Active: false},
	}
	for _, rule := range rules {
		if err := store.Add(rule); err != nil {
			t.Fatalf("Failed to add rule: %v", err)
		}
	}

	engine, err := NewEngine(store)
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	engine.mu.RLock()
	defer engine.mu.RUnlock()
	if len(engine.programs) != 2 {
		t.Errorf("Expected 2 compiled programs, got %d", len(engine.programs))
	}
	if _, ok := engine.programs["rule-3"]; ok {
		t.Error("Inactive rule should not be compiled")
	}
}

func TestNewEngineRejectsBadStoredRule(t *testing.T) {
	store := NewInMemoryRuleStore()
	if err := store.Add(&Rule{ID: "bad", Expression: `soil <`, Verdict: "High", Active: true}); err != nil {
		t.Fatal(err)
	}

	if _, err := NewEngine(store); err == nil {
		t.Fatal("NewEngine() should fail when a stored rule does not compile")
	}
}

func TestCompileRule(t *testing.T) {
	engine, _ := NewEngine(NewInMemoryRuleStore())

	tests := []struct {
		name    string
		expr    string
		wantErr string
	}{
		{"comparison", `soil < 30.0 && temp > 30.0`, ""},
		{"membership", `crop in highWater && soil < 50.0`, ""},
		{"literal", `true`, ""},
		{"syntax error", `soil < `, "compile error"},
		{"unknown variable", `rainfall > 10.0`, "compile error"},
		{"non boolean", `soil + temp`, "must be boolean"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.CompileRule("r", tt.expr)
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("CompileRule(%q) unexpected error: %v", tt.expr, err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("CompileRule(%q) error = %v, want containing %q", tt.expr, err, tt.wantErr)
			}
		})
	}
}

func TestCompileRuleCaching(t *testing.T) {
	engine, _ := NewEngine(NewInMemoryRuleStore())

	if err := engine.CompileRule("cached", `soil < 10.0`); err != nil {
		t.Fatal(err)
	}

	engine.mu.RLock()
	first := engine.programs["cached"]
	engine.mu.RUnlock()
	if first == nil {
		t.Fatal("Compiled program should be cached")
	}
}

func TestEvaluateSingleRule(t *testing.T) {
	engine := newRiskEngine(t)

	res, err := engine.Evaluate("risk-high", facts(20, 35, 50))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if !res.Matched {
		t.Error("Expected risk-high to match dry hot facts")
	}
	if res.Verdict != "High" || res.RuleName != "dry and hot" {
		t.Errorf("Unexpected result %+v", res)
	}
	if res.Trace == nil {
		t.Error("Expected evaluation trace to be recorded")
	}

	res, err = engine.Evaluate("risk-high", facts(20, 25, 50))
	if err != nil {
		t.Fatalf("Evaluate() failed: %v", err)
	}
	if res.Matched {
		t.Error("Expected risk-high not to match at temp 25")
	}
}

func TestEvaluateUnknownRule(t *testing.T) {
	engine := newRiskEngine(t)

	_, err := engine.Evaluate("missing", facts(0, 0, 0))
	if !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Expected ErrRuleNotFound, got %v", err)
	}
}

func TestEvaluateMissingFact(t *testing.T) {
	engine := newRiskEngine(t)

	_, err := engine.Evaluate("risk-high", map[string]any{FactTemp: 40.0})
	if err == nil {
		t.Error("Expected error when a referenced fact is missing")
	}
}

// TestEvaluateAllContinuesOnError checks later rules still run after a failing one
func TestEvaluateAllContinuesOnError(t *testing.T) {
	engine := newRiskEngine(t)

	results, err := engine.EvaluateAll(map[string]any{FactTemp: 40.0})
	if err != nil {
		t.Fatalf("EvaluateAll() failed: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("Expected 3 results, got %d", len(results))
	}

	wantIDs := []string{"risk-high", "risk-medium", "risk-low"}
	for i, res := range results {
		if res.RuleID != wantIDs[i] {
			t.Errorf("results[%d].RuleID = %s, want %s", i, res.RuleID, wantIDs[i])
		}
	}
	if results[0].Error == nil || results[1].Error == nil {
		t.Error("Rules referencing soil should fail without it")
	}
	if !results[2].Matched {
		t.Error("Catch-all rule should still be evaluated and match")
	}
}

func TestDecideFirstMatchWins(t *testing.T) {
	engine := newRiskEngine(t)

	tests := []struct {
		soil, temp float64
		want       string
		rule       string
	}{
		{20, 35, "High", "risk-high"},
		{29.99, 30.01, "High", "risk-high"},
		{30, 35, "Medium", "risk-medium"},
		{20, 30, "Medium", "risk-medium"},
		{39.99, 10, "Medium", "risk-medium"},
		{40, 45, "Low", "risk-low"},
		{100, 0, "Low", "risk-low"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("soil=%v,temp=%v", tt.soil, tt.temp), func(t *testing.T) {
			d, err := engine.Decide(facts(tt.soil, tt.temp, 50))
			if err != nil {
				t.Fatalf("Decide() failed: %v", err)
			}
			if d.Verdict != tt.want || d.RuleID != tt.rule {
				t.Errorf("Decide() = %s via %s, want %s via %s", d.Verdict, d.RuleID, tt.want, tt.rule)
			}
		})
	}
}

func TestDecideOrderIsPriorityThenID(t *testing.T) {
	store := NewInMemoryRuleStore()
	_ = store.Add(&Rule{ID: "b", Expression: `true`, Verdict: "B", Priority: 5, Active: true})
	_ = store.Add(&Rule{ID: "a", Expression: `true`, Verdict: "A", Priority: 5, Active: true})
	_ = store.Add(&Rule{ID: "z", Expression: `true`, Verdict: "Z", Priority: 1, Active: true})

	engine, err := NewEngine(store)
	if err != nil {
		t.Fatal(err)
	}

	d, err := engine.Decide(facts(0, 0, 0))
	if err != nil {
		t.Fatal(err)
	}
	if d.RuleID != "z" {
		t.Errorf("Expected lowest priority rule z first, got %s", d.RuleID)
	}

	if err := engine.DeleteRule("z"); err != nil {
		t.Fatal(err)
	}
	d, _ = engine.Decide(facts(0, 0, 0))
	if d.RuleID != "a" {
		t.Errorf("Expected ID tie-break to pick a, got %s", d.RuleID)
	}
}

func TestDecideNoMatch(t *testing.T) {
	store := NewInMemoryRuleStore()
	_ = store.Add(&Rule{ID: "only", Expression: `soil > 90.0`, Verdict: "Low", Active: true})
	engine, _ := NewEngine(store)

	_, err := engine.Decide(facts(10, 10, 10))
	if !IsNoMatch(err) {
		t.Errorf("Expected ErrNoMatch, got %v", err)
	}
}

func TestDecideStopsOnError(t *testing.T) {
	engine := newRiskEngine(t)

	_, err := engine.Decide(map[string]any{FactSoil: 10.0})
	if err == nil {
		t.Fatal("Expected Decide() to fail when the first rule cannot evaluate")
	}
	if !strings.Contains(err.Error(), "risk-high") {
		t.Errorf("Error should name the failing rule, got %v", err)
	}
}

func TestEngineAddRule(t *testing.T) {
	engine := newRiskEngine(t)

	rule := &Rule{ID: "risk-flood", Name: "saturated", Expression: `soil > 95.0`, Verdict: "Low", Priority: 1, Active: true}
	if err := engine.AddRule(rule); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}

	d, err := engine.Decide(facts(99, 40, 50))
	if err != nil {
		t.Fatal(err)
	}
	if d.RuleID != "risk-flood" {
		t.Errorf("New rule should take precedence, got %s", d.RuleID)
	}
}

func TestEngineAddRuleValidation(t *testing.T) {
	engine := newRiskEngine(t)

	tests := []struct {
		name string
		rule *Rule
		want error
	}{
		{"duplicate", &Rule{ID: "risk-high", Expression: `true`, Verdict: "High"}, ErrRuleExists},
		{"bad expression", &Rule{ID: "x1", Expression: `soil <`, Verdict: "High"}, ErrInvalidRule},
		{"missing verdict", &Rule{ID: "x2", Expression: `true`}, ErrInvalidRule},
		{"foreign verdict", &Rule{ID: "x3", Expression: `true`, Verdict: "Extreme"}, ErrInvalidRule},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.AddRule(tt.rule)
			if err == nil {
				t.Fatal("AddRule() should fail")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("AddRule() error = %v, want %v", err, tt.want)
			}
		})
	}

	rules, _ := engine.Rules()
	if len(rules) != 3 {
		t.Errorf("Rejected rules must not be stored, have %d rules", len(rules))
	}
}

// TestEngineAddRuleAtomicity checks a store failure leaves no compiled program behind
func TestEngineAddRuleAtomicity(t *testing.T) {
	store := &failingStore{InMemoryRuleStore: NewInMemoryRuleStore(), failAdd: true}
	engine, err := NewEngine(store)
	if err != nil {
		t.Fatal(err)
	}

	err = engine.AddRule(&Rule{ID: "r1", Expression: `true`, Verdict: "Low", Active: true})
	if err == nil {
		t.Fatal("Expected store failure to surface")
	}

	engine.mu.RLock()
	_, ok := engine.programs["r1"]
	engine.mu.RUnlock()
	if ok {
		t.Error("Program should be removed after failed Add")
	}
}

func TestEngineUpdateRule(t *testing.T) {
	engine := newRiskEngine(t)

	err := engine.UpdateRule(&Rule{ID: "risk-medium", Name: "dry", Expression: `soil < 50.0`, Verdict: "Medium", Priority: 20, Active: true})
	if err != nil {
		t.Fatalf("UpdateRule() failed: %v", err)
	}

	d, _ := engine.Decide(facts(45, 10, 50))
	if d.Verdict != "Medium" {
		t.Errorf("Updated threshold should apply, got %s", d.Verdict)
	}
}

func TestEngineUpdateRuleValidation(t *testing.T) {
	engine := newRiskEngine(t)

	if err := engine.UpdateRule(&Rule{ID: "risk-medium", Expression: `soil <`, Verdict: "Medium", Active: true}); err == nil {
		t.Error("UpdateRule() should reject invalid expression")
	}
	if err := engine.UpdateRule(&Rule{ID: "nope", Expression: `true`, Verdict: "Low", Active: true}); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("UpdateRule() on missing rule = %v, want ErrRuleNotFound", err)
	}

	// Original program is still in place
	d, _ := engine.Decide(facts(35, 10, 50))
	if d.RuleID != "risk-medium" {
		t.Errorf("risk-medium should be unchanged, got %s", d.RuleID)
	}
}

func TestEngineDeactivateRule(t *testing.T) {
	engine := newRiskEngine(t)

	r, _ := engine.Store().Get("risk-high")
	r.Active = false
	if err := engine.UpdateRule(r); err != nil {
		t.Fatal(err)
	}

	d, _ := engine.Decide(facts(10, 40, 50))
	if d.Verdict != "Medium" {
		t.Errorf("Inactive rule should be skipped, got %s", d.Verdict)
	}
}

func TestEngineDeleteRule(t *testing.T) {
	engine := newRiskEngine(t)

	if err := engine.DeleteRule("risk-low"); err != nil {
		t.Fatalf("DeleteRule() failed: %v", err)
	}
	if _, err := engine.Decide(facts(80, 10, 50)); !IsNoMatch(err) {
		t.Errorf("Expected no match after deleting catch-all, got %v", err)
	}
	if err := engine.DeleteRule("risk-low"); !errors.Is(err, ErrRuleNotFound) {
		t.Errorf("Second delete = %v, want ErrRuleNotFound", err)
	}
}

func TestEngineConcurrentDecide(t *testing.T) {
	engine := newRiskEngine(t)

	var wg sync.WaitGroup
	errs := make(chan error, 100)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			d, err := engine.Decide(facts(float64(i%60), 35, 50))
			if err != nil {
				errs <- err
				return
			}
			if d.Verdict == "" {
				errs <- fmt.Errorf("empty verdict for soil %d", i%60)
			}
		}(i)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Error(err)
	}
}

func TestEngineConcurrentReadWrite(t *testing.T) {
	engine := newRiskEngine(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("extra-%d", i)
			_ = engine.AddRule(&Rule{ID: id, Expression: `humidity > 99.0`, Verdict: "Low", Priority: 100 + i, Active: true})
		}(i)
		go func() {
			defer wg.Done()
			_, _ = engine.Decide(facts(20, 35, 50))
		}()
	}
	wg.Wait()

	rules, err := engine.Rules()
	if err != nil {
		t.Fatal(err)
	}
	if len(rules) != 23 {
		t.Errorf("Expected 23 rules, got %d", len(rules))
	}
}

type failingStore struct {
	*InMemoryRuleStore
	failAdd  bool
	failList bool
}

func (s *failingStore) Add(r *Rule) error {
	if s.failAdd {
		return errors.New("store unavailable")
	}
	return s.InMemoryRuleStore.Add(r)
}

func (s *failingStore) ListActive() ([]*Rule, error) {
	if s.failList {
		return nil, errors.New("store unavailable")
	}
	return s.InMemoryRuleStore.ListActive()
}

// gatedStore blocks one ListActive call after it has read the rule list,
// so a mutation can land between the read and the cache fill
type gatedStore struct {
	*InMemoryRuleStore
	mu      sync.Mutex
	gate    chan struct{}
	entered chan struct{}
}

func (s *gatedStore) arm() (entered, release chan struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gate = make(chan struct{})
	s.entered = make(chan struct{})
	return s.entered, s.gate
}

func (s *gatedStore) ListActive() ([]*Rule, error) {
	s.mu.Lock()
	gate, entered := s.gate, s.entered
	s.gate, s.entered = nil, nil
	s.mu.Unlock()

	rules, err := s.InMemoryRuleStore.ListActive()
	if gate != nil {
		close(entered)
		<-gate
	}
	return rules, err
}

// TestDecideSeesRuleAddedDuringReload checks a list read before AddRule
// is not cached over the invalidation AddRule made
func TestDecideSeesRuleAddedDuringReload(t *testing.T) {
	store := &gatedStore{InMemoryRuleStore: NewInMemoryRuleStore()}
	for _, r := range riskTable()[1:] {
		if err := store.Add(r); err != nil {
			t.Fatalf("Add(%s) failed: %v", r.ID, err)
		}
	}
	engine, err := NewEngine(store, WithVerdicts("High", "Medium", "Low"))
	if err != nil {
		t.Fatalf("NewEngine() failed: %v", err)
	}

	entered, release := store.arm()
	engine.cache.Invalidate()

	done := make(chan *Decision)
	go func() {
		d, err := engine.Decide(facts(10, 40, 50))
		if err != nil {
			t.Errorf("Decide() during reload failed: %v", err)
		}
		done <- d
	}()

	<-entered
	high := riskTable()[0]
	if err := engine.AddRule(high); err != nil {
		t.Fatalf("AddRule() failed: %v", err)
	}
	close(release)

	if d := <-done; d != nil && d.Verdict != "Medium" {
		t.Errorf("Decide() during reload = %s, want Medium from the list it read", d.Verdict)
	}

	d, err := engine.Decide(facts(10, 40, 50))
	if err != nil {
		t.Fatalf("Decide() failed: %v", err)
	}
	if d.Verdict != "High" || d.RuleID != high.ID {
		t.Errorf("Decide() = %s via %s, want High via %s", d.Verdict, d.RuleID, high.ID)
	}
}
