package policy

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisPolicyCache is a PolicyCache shared between instances through Redis.
//
// Keys embed a policy-set generation counter; Invalidate bumps the counter so
// every previously cached set becomes unreachable and expires by TTL.
type RedisPolicyCache struct {
	client redis.Cmdable
	config CacheConfig
}

// NewRedisPolicyCache creates a Redis-backed policy cache.
func NewRedisPolicyCache(client redis.Cmdable, config CacheConfig) *RedisPolicyCache {
	if config.KeyPrefix == "" {
		config.KeyPrefix = DefaultCacheConfig().KeyPrefix
	}
	return &RedisPolicyCache{client: client, config: config}
}

func (c *RedisPolicyCache) generationKey() string {
	return c.config.KeyPrefix + ":policies:generation"
}

func (c *RedisPolicyCache) generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.generationKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read cache generation: %w", err)
	}
	return gen, nil
}

func (c *RedisPolicyCache) key(gen int64, lt LoanType) string {
	return fmt.Sprintf("%s:policies:v%d:%s", c.config.KeyPrefix, gen, lt)
}

// Get retrieves the cached policy set for lt.
func (c *RedisPolicyCache) Get(ctx context.Context, lt LoanType) ([]*Policy, bool, error) {
	gen, err := c.generation(ctx)
	if err != nil {
		return nil, false, err
	}

	data, err := c.client.Get(ctx, c.key(gen, lt)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read cached policies: %w", err)
	}

	var policies []*Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, false, fmt.Errorf("decode cached policies: %w", err)
	}
	return policies, true, nil
}

// Set stores the policy set for lt under the current generation.
func (c *RedisPolicyCache) Set(ctx context.Context, lt LoanType, policies []*Policy) error {
	gen, err := c.generation(ctx)
	if err != nil {
		return err
	}

	data, err := json.Marshal(policies)
	if err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	if err := c.client.Set(ctx, c.key(gen, lt), data, c.config.TTL).Err(); err != nil {
		return fmt.Errorf("write cached policies: %w", err)
	}
	return nil
}

// Invalidate advances the generation counter.
func (c *RedisPolicyCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.generationKey()).Err(); err != nil {
		return fmt.Errorf("invalidate policy cache: %w", err)
	}
	return nil
}
