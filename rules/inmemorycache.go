package rules

import (
	"sync"
	"sync/atomic"
	"time"
)

// InMemoryRulesCache is the default RulesCache. Safe for concurrent use.
type InMemoryRulesCache struct {
	rules    []*Rule
	cachedAt time.Time
	config   CacheConfig
	isValid  bool
	gen      uint64
	mu       sync.RWMutex

	hits   atomic.Int64
	misses atomic.Int64
}

// NewInMemoryRulesCache creates an empty (invalid) cache
func NewInMemoryRulesCache(config CacheConfig) *InMemoryRulesCache {
	return &InMemoryRulesCache{config: config}
}

// Get returns a copy of the ordered rule list, or nil when invalid or expired
func (c *InMemoryRulesCache) Get() []*Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if !c.validLocked() {
		c.misses.Add(1)
		return nil
	}
	c.hits.Add(1)

	out := make([]*Rule, len(c.rules))
	copy(out, c.rules)
	return out
}

// Generation returns the invalidation count
func (c *InMemoryRulesCache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// Set stores an ordered copy of rules unless an Invalidate happened after
// gen was read
func (c *InMemoryRulesCache) Set(rules []*Rule, gen uint64) bool {
	ordered := make([]*Rule, len(rules))
	copy(ordered, rules)
	SortRules(ordered)

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return false
	}
	c.rules = ordered
	c.cachedAt = time.Now()
	c.isValid = true
	return true
}

// Invalidate drops the cached list and rejects any Set still holding the
// previous generation
func (c *InMemoryRulesCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.isValid = false
	c.rules = nil
}

// IsValid reports whether the cache holds a live list
func (c *InMemoryRulesCache) IsValid() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.validLocked()
}

func (c *InMemoryRulesCache) validLocked() bool {
	if !c.isValid {
		return false
	}
	if c.config.TTL > 0 && time.Since(c.cachedAt) > c.config.TTL {
		return false
	}
	return true
}

// Stats returns hit and miss counts since creation
func (c *InMemoryRulesCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}
