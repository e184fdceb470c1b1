package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter hands out one token bucket per key, all with the same rate.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	limit rate.Limit
	burst int
}

// New builds a limiter allowing perInterval events every interval per key.
func New(perInterval int, interval time.Duration) *Limiter {
	if perInterval <= 0 {
		perInterval = 1
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Limiter{
		m:     make(map[string]*rate.Limiter),
		limit: rate.Every(interval / time.Duration(perInterval)),
		burst: 1,
	}
}

// PerMinute is New(n, time.Minute).
func PerMinute(n int) *Limiter { return New(n, time.Minute) }

func (l *Limiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	b, ok := l.m[key]
	if !ok {
		b = rate.NewLimiter(l.limit, l.burst)
		l.m[key] = b
	}
	return b
}

// Allow returns true if one token can be consumed for key right now.
func (l *Limiter) Allow(key string) bool { return l.get(key).Allow() }

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	return l.get(key).Wait(ctx)
}
