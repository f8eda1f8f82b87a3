package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brokerdesk/campaign-engine/internal/domain"
)

// RateLimiter bounds per-channel send rates using atomic Redis Lua
// scripts, so downstream provider limits hold across worker processes.
// A GET → check → INCR sequence would race; the script does not.
type RateLimiter struct {
	redis       *redis.Client
	ratePerMin  int
	limitScript *redis.Script
}

// Lua script for an atomic minute-bucket rate limit check. Increments
// only when the limit still has headroom.
const limitLuaScript = `
local key = KEYS[1]
local increment = tonumber(ARGV[1])
local limit = tonumber(ARGV[2])
local ttl = tonumber(ARGV[3])

local current = tonumber(redis.call("GET", key) or "0")

if current + increment > limit then
    return {0, current}
end

local newVal = redis.call("INCRBY", key, increment)
if newVal == increment then
    redis.call("EXPIRE", key, ttl)
end

return {1, newVal}
`

// NewRateLimiter creates a limiter allowing ratePerMin sends per
// channel per minute. A nil Redis client disables limiting.
func NewRateLimiter(redisClient *redis.Client, ratePerMin int) *RateLimiter {
	return &RateLimiter{
		redis:       redisClient,
		ratePerMin:  ratePerMin,
		limitScript: redis.NewScript(limitLuaScript),
	}
}

// Allow atomically checks and consumes one send slot for the channel.
// When denied it returns the suggested wait before retrying.
func (r *RateLimiter) Allow(ctx context.Context, ch domain.Channel) (bool, time.Duration, error) {
	if r.redis == nil || r.ratePerMin <= 0 {
		return true, 0, nil
	}

	now := time.Now()
	key := fmt.Sprintf("ratelimit:%s:min:%d", ch, now.Unix()/60)

	result, err := r.limitScript.Run(ctx, r.redis, []string{key}, 1, r.ratePerMin, 120).Slice()
	if err != nil {
		// Redis outage must not halt dispatch; the provider enforces
		// its own hard limit.
		return true, 0, err
	}
	if len(result) > 0 {
		if allowed, ok := result[0].(int64); ok && allowed == 1 {
			return true, 0, nil
		}
	}

	wait := time.Duration(60000/r.ratePerMin) * time.Millisecond
	return false, wait, nil
}
