package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// The counter and its expiry must move together, so both happen in one
// script round trip.
var windowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter shares one window counter per key across replicas. When
// redis is down it degrades to the local fallback rather than blocking
// traffic.
type RedisLimiter struct {
	client   *redis.Client
	window   time.Duration
	prefix   string
	fallback *MemoryLimiter
}

func NewRedis(client *redis.Client, window time.Duration) *RedisLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &RedisLimiter{
		client:   client,
		window:   window,
		prefix:   "foxbox:rl:",
		fallback: NewMemory(window),
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	if l.client == nil {
		return l.fallback.Allow(ctx, key, limit)
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	res, err := windowScript.Run(ctx, l.client, []string{l.prefix + key}, l.window.Milliseconds()).Result()
	if err != nil {
		return l.fallback.Allow(ctx, key, limit)
	}
	vals, ok := res.([]interface{})
	if !ok || len(vals) < 2 {
		return l.fallback.Allow(ctx, key, limit)
	}
	count, _ := vals[0].(int64)
	ttlMs, _ := vals[1].(int64)
	if ttlMs < 0 {
		ttlMs = l.window.Milliseconds()
	}
	return decision(int(count), limit, time.Now().UTC().Add(time.Duration(ttlMs)*time.Millisecond))
}
