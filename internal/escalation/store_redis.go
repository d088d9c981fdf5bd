package escalation

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// WarnsPrefix is the Redis key prefix for warning counters:
//
//	Key:   warns:<chat_id>:<user_id>
//	Value: cumulative warning count
//	TTL:   none (counters never decay)
const WarnsPrefix = "warns:"

// RedisCounterStore keeps warning counters in Redis so that several moderator
// replicas escalate the same offender consistently.
type RedisCounterStore struct {
	client *redis.Client
}

// NewRedisCounterStore creates a counter store using the provided Redis client.
func NewRedisCounterStore(client *redis.Client) *RedisCounterStore {
	return &RedisCounterStore{client: client}
}

// Increment atomically adds one warning and returns the new count.
func (s *RedisCounterStore) Increment(ctx context.Context, chatID, userID int64) (int, error) {
	count, err := s.client.Incr(ctx, WarnsPrefix+key(chatID, userID)).Result()
	if err != nil {
		return 0, fmt.Errorf("escalation: incr: %w", err)
	}
	return int(count), nil
}

// Count returns the current warning count, 0 if the key does not exist.
func (s *RedisCounterStore) Count(ctx context.Context, chatID, userID int64) (int, error) {
	val, err := s.client.Get(ctx, WarnsPrefix+key(chatID, userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("escalation: get: %w", err)
	}
	return val, nil
}
