// Package ratelimit paces calls against a quota-metered API with token buckets.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limiter paces calls per key. All keys share the same rate unless the limiter
// is built with Shared, in which case one bucket covers every key.
type Limiter struct {
	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	shared       *rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
	observe      func(key string, delay time.Duration)
}

// Config holds rate limiter configuration.
type Config struct {
	// RPS is the sustained number of calls per second. Zero or less disables pacing.
	RPS   float64
	Burst int
	// Shared makes every key draw from one bucket.
	Shared bool
	// OnDelay, when set, is told how long a call waited for a token.
	OnDelay func(key string, delay time.Duration)
}

// New creates a new Limiter.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RPS)
	if cfg.RPS <= 0 {
		r = rate.Inf
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	l := &Limiter{
		limiters:     make(map[string]*rate.Limiter),
		defaultRate:  r,
		defaultBurst: burst,
		observe:      cfg.OnDelay,
	}
	if cfg.Shared {
		l.shared = rate.NewLimiter(r, burst)
	}
	return l
}

// Wait blocks until a token is available for key, respecting the context.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	limiter := l.limiterFor(key)
	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if delay := time.Since(start); delay > time.Millisecond && l.observe != nil {
		l.observe(key, delay)
	}
	return nil
}

func (l *Limiter) limiterFor(key string) *rate.Limiter {
	if l.shared != nil {
		return l.shared
	}
	if key == "" {
		key = "unknown"
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	limiter, exists := l.limiters[key]
	if !exists {
		limiter = rate.NewLimiter(l.defaultRate, l.defaultBurst)
		l.limiters[key] = limiter
	}
	return limiter
}
