package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Login throttling defaults.
const (
	DefaultMaxFailures = 5
	DefaultWindow      = 15 * time.Minute
)

// Limiter throttles failed logins per key (username and client IP).
type Limiter interface {
	// Blocked reports whether key has used up its failures in the current window.
	Blocked(ctx context.Context, key string) (bool, error)
	// Fail records a failed attempt.
	Fail(ctx context.Context, key string) error
	// Reset clears the failures after a successful login.
	Reset(ctx context.Context, key string) error
}

type window struct {
	count   int
	resetAt time.Time
}

// MemoryLimiter is a fixed-window Limiter held in process memory.
type MemoryLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	entries map[string]*window
	now     func() time.Time
}

// NewMemoryLimiter allows max failures per key per window.
func NewMemoryLimiter(max int, d time.Duration) *MemoryLimiter {
	return &MemoryLimiter{
		max:     max,
		window:  d,
		entries: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryLimiter) Blocked(_ context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok || l.now().After(e.resetAt) {
		return false, nil
	}
	return e.count >= l.max, nil
}

func (l *MemoryLimiter) Fail(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	e, ok := l.entries[key]
	if !ok || now.After(e.resetAt) {
		l.entries[key] = &window{count: 1, resetAt: now.Add(l.window)}
		return nil
	}
	e.count++
	return nil
}

func (l *MemoryLimiter) Reset(_ context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.entries, key)
	return nil
}

// Cleanup drops expired windows.
func (l *MemoryLimiter) Cleanup() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for key, e := range l.entries {
		if now.After(e.resetAt) {
			delete(l.entries, key)
		}
	}
}

// RedisLimiter keeps failure counters in Redis so throttling is shared
// between server instances.
type RedisLimiter struct {
	client *redis.Client
	max    int
	window time.Duration
}

// NewRedisLimiter allows max failures per key per window.
func NewRedisLimiter(client *redis.Client, max int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{client: client, max: max, window: window}
}

func redisKey(key string) string {
	return "gradilisce:login:" + key
}

func (l *RedisLimiter) Blocked(ctx context.Context, key string) (bool, error) {
	n, err := l.client.HGet(ctx, redisKey(key), "failed_count").Int()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("reading login failures: %w", err)
	}
	return n >= l.max, nil
}

func (l *RedisLimiter) Fail(ctx context.Context, key string) error {
	k := redisKey(key)
	count, err := l.client.HIncrBy(ctx, k, "failed_count", 1).Result()
	if err != nil {
		return fmt.Errorf("recording login failure: %w", err)
	}
	// The window starts at the first failure.
	if count == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return fmt.Errorf("setting login window: %w", err)
		}
	}
	return nil
}

func (l *RedisLimiter) Reset(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, redisKey(key)).Err(); err != nil {
		return fmt.Errorf("clearing login failures: %w", err)
	}
	return nil
}

// ConnectRedis builds a client from a redis:// URL or a bare host:port.
func ConnectRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}
		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	return client, nil
}
