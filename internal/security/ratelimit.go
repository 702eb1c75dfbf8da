// Package security holds the request-hardening helpers: rate limiting,
// input sanitization, and the primitives behind the CSRF middleware.
package security

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Decision is the outcome of a rate-limit check.
type Decision struct {
	Allowed   bool      `json:"allowed"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

// Limiter counts requests per key within a fixed window.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimiterConfig controls the fixed window.
type LimiterConfig struct {
	MaxRequests int
	Window      time.Duration
}

func (c LimiterConfig) withDefaults() LimiterConfig {
	if c.MaxRequests <= 0 {
		c.MaxRequests = 10
	}
	if c.Window <= 0 {
		c.Window = time.Minute
	}
	return c
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a process-local fixed-window limiter. Counters live in a
// mutex-guarded map; expired windows are reset lazily on access and swept
// periodically to bound memory. Suitable for a single process only — use
// RedisLimiter when more than one replica serves traffic.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*window
	cfg     LimiterConfig
	now     func() time.Time
}

// NewMemoryLimiter creates an in-memory limiter and starts its sweeper.
func NewMemoryLimiter(cfg LimiterConfig) *MemoryLimiter {
	l := &MemoryLimiter{
		windows: make(map[string]*window),
		cfg:     cfg.withDefaults(),
		now:     time.Now,
	}
	go l.sweep()
	return l
}

// Allow counts a request against key's current window.
func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	w, ok := l.windows[key]
	if !ok || !now.Before(w.resetAt) {
		w = &window{resetAt: now.Add(l.cfg.Window)}
		l.windows[key] = w
	}

	w.count++
	remaining := l.cfg.MaxRequests - w.count
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   w.count <= l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   w.resetAt,
	}, nil
}

func (l *MemoryLimiter) sweep() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		l.mu.Lock()
		now := l.now()
		for key, w := range l.windows {
			if !now.Before(w.resetAt) {
				delete(l.windows, key)
			}
		}
		l.mu.Unlock()
	}
}

// RedisLimiter shares fixed-window counters across processes via atomic
// INCR + EXPIRE, so every API replica sees the same counts.
type RedisLimiter struct {
	client *redis.Client
	cfg    LimiterConfig
}

// NewRedisLimiter creates a limiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, cfg LimiterConfig) *RedisLimiter {
	return &RedisLimiter{client: client, cfg: cfg.withDefaults()}
}

// Allow counts a request against key's current window.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := "ratelimit:" + key

	count, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("security: rate limit incr: %w", err)
	}

	ttl, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("security: rate limit ttl: %w", err)
	}
	// First hit in the window, or a key left without expiry: start the window.
	if count == 1 || ttl < 0 {
		if err := l.client.Expire(ctx, k, l.cfg.Window).Err(); err != nil {
			return Decision{}, fmt.Errorf("security: rate limit expire: %w", err)
		}
		ttl = l.cfg.Window
	}

	remaining := l.cfg.MaxRequests - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   int(count) <= l.cfg.MaxRequests,
		Remaining: remaining,
		ResetAt:   time.Now().Add(ttl),
	}, nil
}
