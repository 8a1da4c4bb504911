package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter implements the same fixed window on a shared Redis counter
// using INCR and PEXPIRE.
type RedisLimiter struct {
	redis  *redis.Client
	limit  int
	per    time.Duration
	prefix string
	now    func() time.Time
}

func NewRedisLimiter(redisClient *redis.Client, limit int, per time.Duration) *RedisLimiter {
	return &RedisLimiter{
		redis:  redisClient,
		limit:  limit,
		per:    per,
		prefix: "ratelimit:apikey",
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Result, error) {
	rkey := fmt.Sprintf("%s:%s", l.prefix, key)

	count, err := l.redis.Incr(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}

	// first hit opens the window
	if count == 1 {
		if err := l.redis.PExpire(ctx, rkey, l.per).Err(); err != nil {
			return Result{}, err
		}
	}

	ttl, err := l.redis.PTTL(ctx, rkey).Result()
	if err != nil {
		return Result{}, err
	}
	if ttl < 0 {
		// counter lost its expiry; restart the window
		l.redis.PExpire(ctx, rkey, l.per)
		ttl = l.per
	}

	res := Result{
		Limit:   l.limit,
		ResetAt: l.now().Add(ttl),
	}
	if count > int64(l.limit) {
		res.Allowed = false
		res.Remaining = 0
		return res, nil
	}
	res.Allowed = true
	res.Remaining = l.limit - int(count)
	return res, nil
}
