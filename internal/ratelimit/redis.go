package ratelimit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// slidingLogLua prunes entries at or older than now-window, records now, and
// returns the resulting count. Scores are unix milliseconds; members are
// unique so two messages in the same millisecond both count.
//
//	KEYS[1] = rate key
//	ARGV[1] = now (ms)
//	ARGV[2] = window (ms)
//	ARGV[3] = member
const slidingLogLua = `
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
redis.call('ZADD', key, now, ARGV[3])
redis.call('PEXPIRE', key, window)
return redis.call('ZCARD', key)
`

// RedisLimiter performs the sliding window check against a Redis sorted set.
type RedisLimiter struct {
	client *redis.Client
	rule   Rule
	script *redis.Script
	log    *zap.SugaredLogger
}

// NewRedisLimiter creates a RedisLimiter backed by the given Redis client.
func NewRedisLimiter(client *redis.Client, rule Rule, log *zap.SugaredLogger) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		rule:   rule,
		script: redis.NewScript(slidingLogLua),
		log:    log,
	}
}

// RecordAndCheck records now for the key and reports whether the window
// exceeds the limit. On Redis errors it fails open (returns false) so that a
// Redis outage never punishes legitimate traffic.
func (l *RedisLimiter) RecordAndCheck(ctx context.Context, chatID, userID int64, now time.Time) bool {
	key := l.rule.Key + Key(chatID, userID)

	count, err := l.script.Run(ctx, l.client, []string{key},
		now.UnixMilli(),
		l.rule.Window.Milliseconds(),
		uuid.NewString(),
	).Int64()
	if err != nil {
		l.log.Warnw("sliding window script failed, failing open", "key", key, "err", err)
		return false
	}

	return int(count) > l.rule.Limit
}
