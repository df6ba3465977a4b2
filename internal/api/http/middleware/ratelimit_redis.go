package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "keygate:ratelimit:"

// RedisLimiter counts requests per client in fixed windows stored in Redis, so
// that every instance behind a load balancer shares one budget. A window holds
// burst requests and lasts burst/perSecond seconds.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
	now    func() time.Time
}

func NewRedisLimiter(client *redis.Client, perSecond float64, burst int) *RedisLimiter {
	if burst < 1 {
		burst = 1
	}
	window := time.Second
	if perSecond > 0 {
		window = time.Duration(float64(burst) / perSecond * float64(time.Second))
	}
	if window < time.Millisecond {
		window = time.Millisecond
	}
	return &RedisLimiter{
		client: client,
		limit:  int64(burst),
		window: window,
		now:    time.Now,
	}
}

func (l *RedisLimiter) Allow(ctx context.Context, client string) (bool, error) {
	slot := l.now().UnixNano() / int64(l.window)
	key := fmt.Sprintf("%s%s:%d", redisKeyPrefix, client, slot)

	var count *redis.IntCmd
	_, err := l.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		count = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, l.window)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to update rate limit counter: %w", err)
	}
	return count.Val() <= l.limit, nil
}
