// Package ratelimit applies a fixed-window request limit per caller,
// shared across gateway replicas through redis with an in-memory
// fallback.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Decision is the outcome of one Allow call. ResetAt is when the
// caller's window rolls over.
type Decision struct {
	Allowed   bool
	Count     int
	Limit     int
	Remaining int
	ResetAt   time.Time
}

type Limiter interface {
	Allow(ctx context.Context, key string, limit int) Decision
}

// MemoryLimiter counts per-key requests in a mutex-guarded window map.
// Expired windows are swept on access.
type MemoryLimiter struct {
	mu     sync.Mutex
	window time.Duration
	counts map[string]windowCount
}

type windowCount struct {
	count   int
	resetAt time.Time
}

func NewMemory(window time.Duration) *MemoryLimiter {
	if window <= 0 {
		window = time.Minute
	}
	return &MemoryLimiter{window: window, counts: map[string]windowCount{}}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string, limit int) Decision {
	if limit <= 0 {
		limit = 1
	}
	now := time.Now().UTC()
	l.mu.Lock()
	defer l.mu.Unlock()
	for k, v := range l.counts {
		if now.After(v.resetAt) {
			delete(l.counts, k)
		}
	}
	curr, ok := l.counts[key]
	if !ok || now.After(curr.resetAt) {
		curr = windowCount{resetAt: now.Add(l.window)}
	}
	curr.count++
	l.counts[key] = curr
	return decision(curr.count, limit, curr.resetAt)
}

func decision(count, limit int, resetAt time.Time) Decision {
	remaining := limit - count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   count <= limit,
		Count:     count,
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
}
