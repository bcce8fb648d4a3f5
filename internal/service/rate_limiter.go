package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/prperemyshlev/runcup-connect/pkg/database"
	"github.com/redis/go-redis/v9"
)

// RateLimitResult describes the state of a key after a request was counted
type RateLimitResult struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// RateLimiter handles rate limiting using Redis
type RateLimiter struct {
	redis *database.Redis
	now   func() time.Time
}

// NewRateLimiter creates a new rate limiter
func NewRateLimiter(redis *database.Redis) *RateLimiter {
	return &RateLimiter{redis: redis, now: time.Now}
}

// Allow counts a request against a sliding window log and reports whether it fits
func (r *RateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (*RateLimitResult, error) {
	now := r.now()
	redisKey := fmt.Sprintf("ratelimit:%s", key)
	windowStart := strconv.FormatInt(now.Add(-window).UnixMilli(), 10)

	// Drop entries older than the window, then count and peek at the oldest
	pipe := r.redis.Client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, redisKey, "0", windowStart)
	count := pipe.ZCard(ctx, redisKey)
	oldest := pipe.ZRangeWithScores(ctx, redisKey, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to read rate limit window: %w", err)
	}

	if count.Val() >= int64(limit) {
		result := &RateLimitResult{Allowed: false, RetryAfter: window}
		if entries := oldest.Val(); len(entries) > 0 {
			oldestAt := time.UnixMilli(int64(entries[0].Score))
			result.RetryAfter = max(window-now.Sub(oldestAt), time.Second).Round(time.Second)
		}
		return result, nil
	}

	pipe = r.redis.Client.TxPipeline()
	pipe.ZAdd(ctx, redisKey, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: strconv.FormatInt(now.UnixNano(), 10),
	})
	pipe.Expire(ctx, redisKey, window+time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to record request: %w", err)
	}

	return &RateLimitResult{Allowed: true, Remaining: limit - int(count.Val()) - 1}, nil
}
