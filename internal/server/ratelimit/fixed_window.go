// Package ratelimit provides a Redis-backed fixed-window request limiter
// shared by every server instance pointing at the same Redis.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

var incrWindow = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

type Limiter struct {
	client *redis.Client
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

func New(addr, password, prefix string, limit int, window time.Duration) (*Limiter, error) {
	if limit <= 0 {
		return nil, errors.New("ratelimit: limit must be positive")
	}
	if window < time.Millisecond {
		return nil, errors.New("ratelimit: window must be at least 1ms")
	}
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, errors.New("ratelimit: redis addr is required")
	}
	if prefix = strings.TrimSpace(prefix); prefix == "" {
		prefix = "solidify:ratelimit"
	}
	return &Limiter{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password}),
		prefix: prefix,
		limit:  limit,
		window: window,
		now:    time.Now,
	}, nil
}

// Allow counts one hit for key and reports whether it is within quota. Redis
// failures deny the request and are returned.
func (l *Limiter) Allow(ctx context.Context, key string) (bool, error) {
	if key = strings.TrimSpace(key); key == "" {
		key = "unknown"
	}
	windowMs := l.window.Milliseconds()
	slot := l.now().UTC().UnixMilli() / windowMs
	redisKey := fmt.Sprintf("%s:%s:%d", l.prefix, key, slot)

	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	n, err := incrWindow.Run(ctx, l.client, []string{redisKey}, windowMs).Int64()
	if err != nil {
		return false, err
	}
	return n <= int64(l.limit), nil
}

func (l *Limiter) Close() error { return l.client.Close() }
