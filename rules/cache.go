package rules

import (
	"sort"
	"time"
)

// RulesCache holds the ordered active rule list of one table so Decide does
// not hit the store on every query.
type RulesCache interface {
	// Get returns the cached rules in evaluation order, or nil on a miss
	Get() []*Rule

	// Generation identifies the current cache state; Invalidate advances it
	Generation() uint64

	// Set stores rules read while the cache was at generation gen, in
	// evaluation order. It drops the list and returns false if the cache
	// was invalidated since.
	Set(rules []*Rule, gen uint64) bool

	// Invalidate forces a reload on the next Get
	Invalidate()

	// IsValid reports whether Get would hit
	IsValid() bool
}

// CacheConfig controls cache expiry
type CacheConfig struct {
	// TTL of the cached list; 0 means only mutations invalidate it
	TTL time.Duration
}

// DefaultCacheConfig never expires; rule mutations invalidate explicitly.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{TTL: 0}
}

// SortRules orders rules for evaluation: Priority ascending, then ID.
func SortRules(rules []*Rule) {
	sort.SliceStable(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}
