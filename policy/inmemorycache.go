package policy

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	policies []*Policy
	cachedAt time.Time
}

// InMemoryPolicyCache is a simple in-memory implementation of PolicyCache
// Thread-safe for concurrent access
type InMemoryPolicyCache struct {
	entries map[LoanType]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
	now     func() time.Time
}

// NewInMemoryPolicyCache creates a new in-memory policy cache
func NewInMemoryPolicyCache(config CacheConfig) *InMemoryPolicyCache {
	return &InMemoryPolicyCache{
		entries: make(map[LoanType]cacheEntry),
		config:  config,
		now:     time.Now,
	}
}

// Get retrieves cached policies for lt.
// Returns ok=false if the entry is missing or expired.
func (c *InMemoryPolicyCache) Get(_ context.Context, lt LoanType) ([]*Policy, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[lt]
	if !ok {
		return nil, false, nil
	}

	if c.config.TTL > 0 && c.now().Sub(entry.cachedAt) > c.config.TTL {
		return nil, false, nil
	}

	// Return copies to prevent external modifications
	return clonePolicies(entry.policies), true, nil
}

// Set stores policies for lt.
func (c *InMemoryPolicyCache) Set(_ context.Context, lt LoanType, policies []*Policy) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[lt] = cacheEntry{
		policies: clonePolicies(policies),
		cachedAt: c.now(),
	}
	return nil
}

// Invalidate clears the cache
func (c *InMemoryPolicyCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[LoanType]cacheEntry)
	return nil
}

func clonePolicies(policies []*Policy) []*Policy {
	out := make([]*Policy, len(policies))
	for i, p := range policies {
		out[i] = p.Clone()
	}
	return out
}
