package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// windowCounter increments the counter for key and makes it expire after ttl.
type windowCounter interface {
	incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

type redisCounter struct {
	rdb redis.Cmdable
}

func (c redisCounter) incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var count *redis.IntCmd
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count.Val(), nil
}

// Redis is a fixed-window limiter shared by every instance using the same
// Redis. Keys look like "<prefix>:<key>:<window start unix>".
type Redis struct {
	counter windowCounter
	prefix  string
	limit   int64
	window  time.Duration
	now     func() time.Time
}

// NewRedis allows perMinute requests per key in each wall-clock minute.
func NewRedis(rdb redis.Cmdable, prefix string, perMinute int) *Redis {
	if perMinute <= 0 {
		perMinute = 1
	}
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &Redis{
		counter: redisCounter{rdb: rdb},
		prefix:  prefix,
		limit:   int64(perMinute),
		window:  time.Minute,
		now:     time.Now,
	}
}

func (r *Redis) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := r.now()
	start := now.Truncate(r.window)
	n, err := r.counter.incr(ctx, fmt.Sprintf("%s:%s:%d", r.prefix, key, start.Unix()), r.window)
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit: %w", err)
	}
	if n > r.limit {
		return false, start.Add(r.window).Sub(now), nil
	}
	return true, 0, nil
}
