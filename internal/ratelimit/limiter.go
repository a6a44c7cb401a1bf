package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// fixedWindow counts hits per key inside a window that starts on the first hit.
// Returns {allowed, remaining, reset_unix}.
var fixedWindow = redis.NewScript(`
	local key = KEYS[1]
	local max_requests = tonumber(ARGV[1])
	local window = tonumber(ARGV[2])
	local now = tonumber(ARGV[3])

	local current = redis.call('INCR', key)
	if current == 1 then
		redis.call('EXPIRE', key, window)
	end

	local ttl = redis.call('TTL', key)
	if ttl < 0 then
		redis.call('EXPIRE', key, window)
		ttl = window
	end

	if current > max_requests then
		return {0, 0, now + ttl}
	end
	return {1, max_requests - current, now + ttl}
`)

// RateLimiter caps how many beacons one client address may submit per window.
// State lives in Redis so several recorder instances share the same counters.
type RateLimiter struct {
	client      *redis.Client
	maxRequests int
	window      time.Duration
	now         func() time.Time
}

// NewFixedWindowLimiter allows maxRequests per window for each key
func NewFixedWindowLimiter(client *redis.Client, maxRequests int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		client:      client,
		maxRequests: maxRequests,
		window:      window,
		now:         time.Now,
	}
}

// Allow registers one hit for key
func (rl *RateLimiter) Allow(ctx context.Context, key string) (bool, int, time.Time, error) {
	windowSeconds := int(rl.window.Seconds())
	if windowSeconds < 1 {
		windowSeconds = 1
	}

	result, err := fixedWindow.Run(
		ctx,
		rl.client,
		[]string{redisKey(key)},
		rl.maxRequests,
		windowSeconds,
		rl.now().Unix(),
	).Int64Slice()
	if err != nil {
		return false, 0, time.Time{}, fmt.Errorf("rate limit check failed: %w", err)
	}
	if len(result) != 3 {
		return false, 0, time.Time{}, fmt.Errorf("unexpected rate limit result: %v", result)
	}

	return result[0] == 1, int(result[1]), time.Unix(result[2], 0), nil
}

func (rl *RateLimiter) MaxRequests() int {
	return rl.maxRequests
}

func redisKey(key string) string {
	return fmt.Sprintf("visits:ratelimit:%s", key)
}
