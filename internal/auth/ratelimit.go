package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrRateLimited is returned when a tenant exceeded its allowance.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	// TestSendLimit is the number of admin test sends a tenant may perform per
	// window. Zero or less disables the limit.
	TestSendLimit int
	// TestSendWindow is the length of the fixed counting window.
	TestSendWindow time.Duration
}

// RateLimiter provides per-tenant fixed-window rate limiting in Redis.
type RateLimiter struct {
	client *redis.Client
	config RateLimitConfig
}

// NewRateLimiter creates a new RateLimiter with the given Redis client and configuration.
func NewRateLimiter(client *redis.Client, config RateLimitConfig) *RateLimiter {
	if config.TestSendWindow <= 0 {
		config.TestSendWindow = time.Hour
	}
	return &RateLimiter{
		client: client,
		config: config,
	}
}

// CheckTestSend counts one test send for the tenant and returns
// ErrRateLimited once the window's allowance is used up.
func (rl *RateLimiter) CheckTestSend(ctx context.Context, tenant string) error {
	if rl.client == nil || rl.config.TestSendLimit <= 0 {
		// No Redis client configured; skip rate limiting.
		return nil
	}

	key := fmt.Sprintf("ratelimit:testsend:%s", tenant)
	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("check test send rate limit: %w", err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, rl.config.TestSendWindow).Err(); err != nil {
			return fmt.Errorf("set test send window: %w", err)
		}
	}

	if int(count) > rl.config.TestSendLimit {
		return fmt.Errorf("%w: %d test sends per %s", ErrRateLimited, rl.config.TestSendLimit, rl.config.TestSendWindow)
	}
	return nil
}

// ResetTestSend clears the tenant's test send counter.
func (rl *RateLimiter) ResetTestSend(ctx context.Context, tenant string) error {
	if rl.client == nil {
		return nil
	}
	return rl.client.Del(ctx, fmt.Sprintf("ratelimit:testsend:%s", tenant)).Err()
}
