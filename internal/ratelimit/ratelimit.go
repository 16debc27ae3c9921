// Package ratelimit throttles checkout notifications per user so a client
// replaying POST /api/checkout cannot flood a mailbox.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// Limiter decides whether key may proceed in the current window.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

// Noop allows everything. It is used when no Redis URL is configured.
type Noop struct{}

func (Noop) Allow(context.Context, string) (bool, error) { return true, nil }

var _ Limiter = Noop{}
var _ Limiter = (*RedisLimiter)(nil)

var ErrEmptyKey = errors.New("ratelimit: key is required")

// allowScript increments the window counter and sets its expiry on the
// first hit, atomically.
var allowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("EXPIRE", KEYS[1], ARGV[2])
end
if current > tonumber(ARGV[1]) then
  return 0
end
return 1
`)

const (
	defaultLimit  = 5
	defaultWindow = time.Minute
	keyPrefix     = "checkout:ratelimit"
)

// RedisLimiter is a fixed-window limiter shared by every instance of the
// service.
type RedisLimiter struct {
	client *goredis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows limit calls per key per window. Non-positive values
// fall back to 5 per minute.
func NewRedisLimiter(client *goredis.Client, limit int, window time.Duration) (*RedisLimiter, error) {
	return newRedisLimiter(client, limit, window, time.Now)
}

func newRedisLimiter(client *goredis.Client, limit int, window time.Duration, now func() time.Time) (*RedisLimiter, error) {
	if client == nil {
		return nil, errors.New("ratelimit: redis client is required")
	}
	if limit <= 0 {
		limit = defaultLimit
	}
	if window < time.Second {
		window = defaultWindow
	}
	return &RedisLimiter{client: client, limit: int64(limit), window: window, now: now}, nil
}

func (r *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return false, ErrEmptyKey
	}

	secs := int64(r.window / time.Second)
	bucket := r.now().UTC().Unix() / secs
	redisKey := fmt.Sprintf("%s:%s:%d", keyPrefix, key, bucket)

	result, err := allowScript.Run(ctx, r.client, []string{redisKey}, r.limit, secs).Int()
	if err != nil {
		return false, fmt.Errorf("ratelimit: evaluate: %w", err)
	}
	return result == 1, nil
}

// Connect parses a redis:// URL and verifies the server is reachable.
func Connect(ctx context.Context, url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse redis url: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ratelimit: ping redis: %w", err)
	}
	return client, nil
}
