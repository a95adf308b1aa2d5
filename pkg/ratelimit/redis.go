// Copyright 2025 Gatehouse Team
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/go-gatehouse/gatehouse/pkg/log"
	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
)

const redisKeyPrefix = "ratelimit:"

// RedisLimiter is a sliding-window limiter over a sorted set per
// (rule, key) pair, usable across replicas of the service.
type RedisLimiter struct {
	client  redis.UniversalClient
	rules   map[string]Rule
	nowFunc func() time.Time
}

// RedisOption customizes a RedisLimiter.
type RedisOption func(*RedisLimiter)

// WithRedisClock replaces the time source, used by tests.
func WithRedisClock(now func() time.Time) RedisOption {
	return func(l *RedisLimiter) {
		l.nowFunc = now
	}
}

func NewRedisLimiter(client redis.UniversalClient, rules map[string]Rule, opts ...RedisOption) *RedisLimiter {
	l := &RedisLimiter{
		client:  client,
		rules:   rules,
		nowFunc: time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Allow records the event, then checks the window population. Events over
// the limit remove their own entry so denied attempts do not extend the
// lockout.
func (l *RedisLimiter) Allow(ctx context.Context, rule, key string) (Result, error) {
	r, ok := l.rules[rule]
	if !ok || r.Limit <= 0 || r.Window <= 0 {
		log.Warnw("unknown rate limit rule, allowing", "rule", rule)
		return allowAll, nil
	}

	now := l.nowFunc()
	bucket := redisKeyPrefix + rule + ":" + key
	member := xid.New().String()
	cut := now.Add(-r.Window)

	pipe := l.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, bucket, "0", strconv.FormatInt(cut.UnixNano(), 10))
	pipe.ZAdd(ctx, bucket, redis.Z{Score: float64(now.UnixNano()), Member: member})
	cardCmd := pipe.ZCard(ctx, bucket)
	pipe.Expire(ctx, bucket, r.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return Result{}, err
	}

	count := int(cardCmd.Val())
	if count <= r.Limit {
		return Result{Allowed: true, Remaining: r.Limit - count}, nil
	}

	// over the limit, take this event back out of the window
	if err := l.client.ZRem(ctx, bucket, member).Err(); err != nil {
		log.Warnw("failed to remove over-limit event", "bucket", bucket, "error", err)
	}

	retryAfter := r.Window
	oldest, err := l.client.ZRangeWithScores(ctx, bucket, 0, 0).Result()
	if err == nil && len(oldest) > 0 {
		oldestAt := time.Unix(0, int64(oldest[0].Score))
		retryAfter = oldestAt.Add(r.Window).Sub(now)
		if retryAfter < 0 {
			retryAfter = 0
		}
	}

	return Result{Allowed: false, Remaining: 0, RetryAfter: retryAfter}, nil
}
