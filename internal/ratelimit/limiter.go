// Package ratelimit tracks per-(chat, user) message rates with an exact
// sliding window: every call records the message timestamp and reports whether
// the number of messages inside the trailing window exceeds the limit.
//
// Two implementations share the same semantics. MemoryLimiter keeps the
// timestamp log in process memory; RedisLimiter keeps it in a Redis sorted set
// so several moderator replicas can share one view of the window.
package ratelimit

import (
	"context"
	"fmt"
	"time"
)

// Rule defines a rate limiting policy: the key prefix, the maximum number of
// messages allowed in the window, and the window duration.
type Rule struct {
	Key    string        // key prefix (e.g. "rl:msg:")
	Limit  int           // max count in the window
	Window time.Duration // trailing window
}

// MessageRule returns the per-user chat message rule.
func MessageRule(limit int, window time.Duration) Rule {
	return Rule{Key: "rl:msg:", Limit: limit, Window: window}
}

// Limiter records a message and reports whether the sender is flooding. It
// must be called at most once per inbound message. Implementations never fail:
// internal errors are logged and treated as "not limited".
type Limiter interface {
	RecordAndCheck(ctx context.Context, chatID, userID int64, now time.Time) bool
}

// Key returns the identifier of a (chat, user) pair.
func Key(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}
