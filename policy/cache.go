package policy

import (
	"context"
	"time"
)

// PolicyCache caches active policy sets keyed by loan type.
// This allows swapping between in-memory, Redis, or other caching implementations.
// Caching never changes evaluation outcomes: a failed read falls back to the
// store and a failed write is logged and ignored.
type PolicyCache interface {
	// Get retrieves the cached policies for lt. ok is false on a miss or expiry.
	Get(ctx context.Context, lt LoanType) (policies []*Policy, ok bool, err error)

	// Set stores the active policies for lt.
	Set(ctx context.Context, lt LoanType, policies []*Policy) error

	// Invalidate drops every cached policy set, forcing a refresh on next Get.
	Invalidate(ctx context.Context) error
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration

	// KeyPrefix namespaces keys in shared caches.
	KeyPrefix string
}

// DefaultCacheConfig returns sensible defaults for policy caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:       5 * time.Minute,
		KeyPrefix: "loanpolicy",
	}
}
