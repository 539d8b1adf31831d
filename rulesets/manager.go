package rulesets

import (
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/liamcoop/irrigation/internal/logger"
	"github.com/liamcoop/irrigation/rules"
)

var (
	// ErrSetNotFound is returned for an unknown rule set name
	ErrSetNotFound = errors.New("rule set not found")

	// ErrSetExists is returned by Create for a name already loaded
	ErrSetExists = errors.New("rule set already exists")
)

// StoreFactory returns the rule store backing the named set
type StoreFactory func(set string) rules.RuleStore

// MemoryStores keeps every set in process memory
func MemoryStores() StoreFactory {
	return func(string) rules.RuleStore { return rules.NewInMemoryRuleStore() }
}

// PostgresStores keeps every set in the irrigation_rules table behind a
// circuit breaker
func PostgresStores(db *sql.DB, cfg rules.BreakerConfig) StoreFactory {
	return func(set string) rules.RuleStore {
		c := cfg
		c.Name = "rule-store-" + set
		return rules.NewBreakerRuleStore(rules.NewPostgresRuleStore(db, set), c)
	}
}

// RuleSet wraps a rules.Engine with the definition it was built from
type RuleSet struct {
	Definition Definition
	Engine     *rules.Engine
	Store      rules.RuleStore
}

// Manager owns one engine per named rule set
type Manager struct {
	sets     map[string]*RuleSet
	newStore StoreFactory
	mu       sync.RWMutex
}

// NewManager creates an empty manager
func NewManager(newStore StoreFactory) *Manager {
	if newStore == nil {
		newStore = MemoryStores()
	}
	return &Manager{
		sets:     make(map[string]*RuleSet),
		newStore: newStore,
	}
}

// NewDefaultManager loads the given definitions (or the embedded defaults
// when defs is empty)
func NewDefaultManager(newStore StoreFactory, defs []Definition) (*Manager, error) {
	if len(defs) == 0 {
		var err error
		if defs, err = Defaults(); err != nil {
			return nil, err
		}
	}

	m := NewManager(newStore)
	for _, def := range defs {
		if err := m.Create(def); err != nil {
			return nil, fmt.Errorf("failed to initialize rule set %s: %w", def.Name, err)
		}
	}
	return m, nil
}

// Seed fills an empty store with the definition's rules and reports how
// many were added. A store that already holds rules is left alone.
func Seed(store rules.RuleStore, def Definition) (int, error) {
	existing, err := store.List()
	if err != nil {
		return 0, fmt.Errorf("failed to list rules: %w", err)
	}
	if len(existing) > 0 {
		return 0, nil
	}

	for _, rs := range def.Rules {
		if err := store.Add(rs.Rule()); err != nil {
			return 0, fmt.Errorf("failed to seed rule %s: %w", rs.ID, err)
		}
	}
	return len(def.Rules), nil
}

func (m *Manager) build(def Definition, store rules.RuleStore) (*RuleSet, error) {
	if err := ValidateDefinition(def); err != nil {
		return nil, err
	}

	env, err := CreateCELEnv(def.Variables)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL env: %w", err)
	}

	seeded, err := Seed(store, def)
	if err != nil {
		return nil, err
	}
	if seeded > 0 {
		logger.Info("seeded rule set", "set", def.Name, "rules", seeded)
	}

	engine, err := rules.NewEngineWithEnv(env, store, rules.WithVerdicts(def.Verdicts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create engine: %w", err)
	}

	return &RuleSet{Definition: def, Engine: engine, Store: store}, nil
}

// Create builds and registers a new rule set
func (m *Manager) Create(def Definition) error {
	m.mu.RLock()
	_, exists := m.sets[def.Name]
	m.mu.RUnlock()
	if exists {
		return fmt.Errorf("%s: %w", def.Name, ErrSetExists)
	}

	rs, err := m.build(def, m.newStore(def.Name))
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sets[def.Name]; exists {
		return fmt.Errorf("%s: %w", def.Name, ErrSetExists)
	}
	m.sets[def.Name] = rs
	return nil
}

// Get returns the named rule set
func (m *Manager) Get(name string) (*RuleSet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rs, exists := m.sets[name]
	if !exists {
		return nil, fmt.Errorf("%s: %w", name, ErrSetNotFound)
	}
	return rs, nil
}

// Engine returns the engine of the named rule set
func (m *Manager) Engine(name string) (*rules.Engine, error) {
	rs, err := m.Get(name)
	if err != nil {
		return nil, err
	}
	return rs.Engine, nil
}

// Replace rebuilds a rule set from a new definition over the same store and
// swaps it in atomically; in-flight decisions finish on the old engine.
// Stored rules are recompiled against the new variables, so a definition
// that breaks an existing rule is rejected and the old set stays live.
func (m *Manager) Replace(def Definition) error {
	m.mu.RLock()
	existing, exists := m.sets[def.Name]
	m.mu.RUnlock()
	if !exists {
		return m.Create(def)
	}

	rs, err := m.build(def, existing.Store)
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.sets[def.Name] = rs
	m.mu.Unlock()

	active, _ := rs.Engine.Rules()
	logger.Info("rule set replaced", "set", def.Name, "activeRules", len(active))
	return nil
}

// List returns the loaded rule set names, sorted
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.sets))
	for name := range m.sets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Delete unloads a rule set. Stored rules are not touched.
func (m *Manager) Delete(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.sets[name]; !exists {
		return fmt.Errorf("%s: %w", name, ErrSetNotFound)
	}

	delete(m.sets, name)
	return nil
}
