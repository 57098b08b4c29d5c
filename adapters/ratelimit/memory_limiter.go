package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter is a per-process token bucket limiter. A bucket refills
// Limit tokens per Window and bursts up to Limit.
type MemoryLimiter struct {
	mu       sync.Mutex
	buckets  Buckets
	limiters map[string]*limiterEntry
	now      func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter
func NewMemoryLimiter(buckets Buckets) *MemoryLimiter {
	return &MemoryLimiter{
		buckets:  buckets,
		limiters: make(map[string]*limiterEntry),
		now:      time.Now,
	}
}

// Allow takes a token for key in bucket
func (l *MemoryLimiter) Allow(_ context.Context, key, bucket string) (bool, error) {
	budget, ok := l.buckets.lookup(bucket)
	if !ok {
		return true, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	id := bucket + ":" + key
	entry, ok := l.limiters[id]
	if !ok {
		every := budget.Window / time.Duration(budget.Limit)
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(every), budget.Limit)}
		l.limiters[id] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1), nil
}

// Sweep forgets keys idle for longer than idle
func (l *MemoryLimiter) Sweep(idle time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	for id, entry := range l.limiters {
		if entry.lastSeen.Before(cutoff) {
			delete(l.limiters, id)
		}
	}
}
