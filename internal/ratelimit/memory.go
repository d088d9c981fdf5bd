package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// MemoryLimiter keeps one sorted timestamp log per key. Keys that see no
// message for a full window hold only expired timestamps, so the LRU drops
// them after Window of inactivity without changing any outcome.
type MemoryLimiter struct {
	rule Rule

	mu      sync.Mutex
	windows *expirable.LRU[string, []time.Time]
}

// NewMemoryLimiter creates a MemoryLimiter for rule. Capacity is unbounded;
// only idle keys are evicted.
func NewMemoryLimiter(rule Rule) *MemoryLimiter {
	return &MemoryLimiter{
		rule:    rule,
		windows: expirable.NewLRU[string, []time.Time](0, nil, rule.Window),
	}
}

// RecordAndCheck prunes the key's log to the trailing window ending at now,
// records now, and reports whether the log now exceeds the rule's limit.
func (l *MemoryLimiter) RecordAndCheck(_ context.Context, chatID, userID int64, now time.Time) bool {
	key := l.rule.Key + Key(chatID, userID)

	l.mu.Lock()
	defer l.mu.Unlock()

	prev, _ := l.windows.Get(key)

	recent := make([]time.Time, 0, len(prev)+1)
	for _, ts := range prev {
		if now.Sub(ts) < l.rule.Window {
			recent = append(recent, ts)
		}
	}

	// Callers may race between reading the clock and taking the lock; insert
	// in order so the log stays sorted.
	i := sort.Search(len(recent), func(i int) bool { return recent[i].After(now) })
	recent = append(recent, time.Time{})
	copy(recent[i+1:], recent[i:])
	recent[i] = now

	l.windows.Add(key, recent)

	return len(recent) > l.rule.Limit
}

// Len returns the number of tracked keys.
func (l *MemoryLimiter) Len() int {
	return l.windows.Len()
}
