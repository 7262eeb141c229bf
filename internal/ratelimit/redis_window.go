package ratelimit

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/barberconnect/internal/clock"
)

const fixedWindowScript = `
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end

local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end

-- Return: count, ttl (milliseconds)
return {count, ttl}
`

// RedisWindow shares counters between instances through redis.
type RedisWindow struct {
	client redis.UniversalClient
	script *redis.Script
	clock  clock.Clock
}

func NewRedisWindow(client redis.UniversalClient, c clock.Clock) *RedisWindow {
	if client == nil {
		return nil
	}
	if c == nil {
		c = clock.New()
	}
	return &RedisWindow{
		client: client,
		script: redis.NewScript(fixedWindowScript),
		clock:  c,
	}
}

func (r *RedisWindow) Allow(ctx context.Context, key string, policy Policy) (*Result, error) {
	if r == nil || r.client == nil {
		return nil, errors.New("rate limiter not configured")
	}
	if key == "" {
		return nil, errors.New("rate limiter key is empty")
	}
	if err := policy.validate(); err != nil {
		return nil, err
	}

	windowMs := policy.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}

	res, err := r.script.Run(ctx, r.client, []string{key}, windowMs).Int64Slice()
	if err != nil {
		return nil, err
	}
	if len(res) < 2 {
		return nil, errors.New("invalid rate limit script response")
	}

	now := r.clock.Now()
	resetAt := now.Add(time.Duration(res[1]) * time.Millisecond)
	return newResult(policy, int(res[0]), resetAt, now), nil
}
