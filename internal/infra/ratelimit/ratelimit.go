// Package ratelimit implements fixed-window request counters. The Redis
// limiter is shared by every instance; the local one is the fallback when
// Redis is not configured or unreachable.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Redis counts hits with INCR + EXPIRE on one key per window.
type Redis struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
}

// NewRedis creates a limiter allowing limit hits per window and key.
func NewRedis(client *redis.Client, prefix string, limit int, window time.Duration) *Redis {
	return &Redis{client: client, prefix: prefix, limit: limit, window: window}
}

// Allow implements port.RateLimiter.
func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	k := r.prefix + key

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, k)
		ttl = pipe.PTTL(ctx, k)
		return nil
	})
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: redis: %w", err)
	}

	count := incr.Val()
	remaining := ttl.Val()
	// First hit of the window, or a key left without expiry.
	if count == 1 || remaining < 0 {
		if err := r.client.PExpire(ctx, k, r.window).Err(); err != nil {
			return false, 0, fmt.Errorf("ratelimit: redis expire: %w", err)
		}
		remaining = r.window
	}

	return count <= int64(r.limit), remaining, nil
}

// Local is a process-local fixed-window limiter.
type Local struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count   int
	resetAt time.Time
}

func NewLocal(limit int, window time.Duration) *Local {
	return &Local{
		limit:   limit,
		window:  window,
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

// Allow implements port.RateLimiter.
func (l *Local) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{resetAt: now.Add(l.window)}
		l.buckets[key] = b
		l.evict(now)
	}
	b.count++
	return b.count <= l.limit, b.resetAt.Sub(now), nil
}

// evict drops expired buckets. Callers hold mu.
func (l *Local) evict(now time.Time) {
	for k, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, k)
		}
	}
}

// Limiter is the port.RateLimiter used by the server: Redis when available,
// the local counter when Redis fails.
type Limiter struct {
	primary  *Redis
	fallback *Local
	logger   *zap.Logger
}

// New builds the limiter. client may be nil, in which case only the local
// counter is used.
func New(client *redis.Client, prefix string, limit int, window time.Duration, logger *zap.Logger) *Limiter {
	l := &Limiter{
		fallback: NewLocal(limit, window),
		logger:   logger,
	}
	if client != nil {
		l.primary = NewRedis(client, prefix, limit, window)
	}
	return l
}

// Allow implements port.RateLimiter.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	if l.primary != nil {
		ok, retry, err := l.primary.Allow(ctx, key)
		if err == nil {
			return ok, retry, nil
		}
		l.logger.Warn("ratelimit: redis unavailable, using local counter", zap.Error(err))
	}
	return l.fallback.Allow(ctx, key)
}

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping: %w", err)
	}
	return client, nil
}
