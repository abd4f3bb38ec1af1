package api

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisRateCounter interface {
	Incr(ctx context.Context, key string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// loginLimiter 以 IP+邮箱 为维度按小时计数登录尝试。
type loginLimiter struct {
	counter redisRateCounter
	limit   int
}

func newLoginLimiter(counter redisRateCounter, limit int) *loginLimiter {
	if counter == nil || limit <= 0 {
		return nil
	}
	return &loginLimiter{counter: counter, limit: limit}
}

// Allow 在计数失败时放行。
func (l *loginLimiter) Allow(ctx context.Context, ip, email string, now time.Time) bool {
	if l == nil {
		return true
	}
	key := fmt.Sprintf("rate:login:%s:%s:%s", ip, strings.ToLower(email), now.UTC().Format("2006010215"))
	count, err := incrWithTTL(ctx, l.counter, key, time.Hour)
	if err != nil {
		return true
	}
	return count <= int64(l.limit)
}

func incrWithTTL(ctx context.Context, client redisRateCounter, key string, ttl time.Duration) (int64, error) {
	count, err := client.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if count == 1 {
		_ = client.Expire(ctx, key, ttl).Err()
	}
	return count, nil
}
