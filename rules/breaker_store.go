package rules

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker in front of a remote store
type BreakerConfig struct {
	Name     string
	Failures uint32        // consecutive failures before opening
	OpenFor  time.Duration // how long the breaker stays open
	Interval time.Duration // closed-state counter reset period, 0 = never
}

// BreakerRuleStore guards a remote RuleStore with a circuit breaker.
// ListActive serves the last good list while the store is unavailable so
// rule evaluation keeps working during an outage. Writes fail fast.
type BreakerRuleStore struct {
	inner RuleStore
	cb    *gobreaker.CircuitBreaker

	mu         sync.RWMutex
	lastActive []*Rule
}

// NewBreakerRuleStore wraps inner. Missing or duplicate rules are treated as
// successful calls and never trip the breaker.
func NewBreakerRuleStore(inner RuleStore, cfg BreakerConfig) *BreakerRuleStore {
	if cfg.Failures == 0 {
		cfg.Failures = 3
	}
	if cfg.OpenFor <= 0 {
		cfg.OpenFor = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = "rule-store"
	}

	st := gobreaker.Settings{
		Name:     cfg.Name,
		Interval: cfg.Interval,
		Timeout:  cfg.OpenFor,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= cfg.Failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrRuleNotFound) || errors.Is(err, ErrRuleExists)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("rule store breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	}

	return &BreakerRuleStore{
		inner: inner,
		cb:    gobreaker.NewCircuitBreaker(st),
	}
}

// State exposes the breaker state for health reporting
func (s *BreakerRuleStore) State() string {
	return s.cb.State().String()
}

func (s *BreakerRuleStore) exec(fn func() (any, error)) (any, error) {
	return s.cb.Execute(fn)
}

// Add forwards to the inner store
func (s *BreakerRuleStore) Add(rule *Rule) error {
	_, err := s.exec(func() (any, error) { return nil, s.inner.Add(rule) })
	return err
}

// Get forwards to the inner store
func (s *BreakerRuleStore) Get(id string) (*Rule, error) {
	res, err := s.exec(func() (any, error) { return s.inner.Get(id) })
	if err != nil {
		return nil, err
	}
	return res.(*Rule), nil
}

// List forwards to the inner store
func (s *BreakerRuleStore) List() ([]*Rule, error) {
	res, err := s.exec(func() (any, error) { return s.inner.List() })
	if err != nil {
		return nil, err
	}
	return res.([]*Rule), nil
}

// ListActive forwards to the inner store, falling back to the last good
// answer when the call fails or the breaker is open.
func (s *BreakerRuleStore) ListActive() ([]*Rule, error) {
	res, err := s.exec(func() (any, error) { return s.inner.ListActive() })
	if err == nil {
		active := res.([]*Rule)
		s.mu.Lock()
		s.lastActive = active
		s.mu.Unlock()
		return active, nil
	}

	s.mu.RLock()
	last := s.lastActive
	s.mu.RUnlock()
	if last != nil {
		slog.Warn("serving cached rules", "breaker", s.cb.Name(), "error", err)
		out := make([]*Rule, len(last))
		copy(out, last)
		return out, nil
	}
	return nil, fmt.Errorf("list active rules: %w", err)
}

// Update forwards to the inner store
func (s *BreakerRuleStore) Update(rule *Rule) error {
	_, err := s.exec(func() (any, error) { return nil, s.inner.Update(rule) })
	return err
}

// Delete forwards to the inner store
func (s *BreakerRuleStore) Delete(id string) error {
	_, err := s.exec(func() (any, error) { return nil, s.inner.Delete(id) })
	return err
}
