package escalation

import (
	"context"
	"fmt"

	"github.com/puzpuzpuz/xsync/v3"
)

// CounterStore owns the per-(chat, user) warning counters. Increment must be
// atomic per key: concurrent increments on one key never lose an update.
// Counts never decrease.
type CounterStore interface {
	Increment(ctx context.Context, chatID, userID int64) (int, error)
	Count(ctx context.Context, chatID, userID int64) (int, error)
}

func key(chatID, userID int64) string {
	return fmt.Sprintf("%d:%d", chatID, userID)
}

// MemoryCounterStore keeps counters in process memory for the lifetime of the
// process. Records are never evicted.
type MemoryCounterStore struct {
	counts *xsync.MapOf[string, int]
}

// NewMemoryCounterStore creates an empty MemoryCounterStore.
func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{counts: xsync.NewMapOf[string, int]()}
}

func (s *MemoryCounterStore) Increment(_ context.Context, chatID, userID int64) (int, error) {
	n, _ := s.counts.Compute(key(chatID, userID), func(old int, _ bool) (int, bool) {
		return old + 1, false
	})
	return n, nil
}

func (s *MemoryCounterStore) Count(_ context.Context, chatID, userID int64) (int, error) {
	n, _ := s.counts.Load(key(chatID, userID))
	return n, nil
}

// Len returns the number of tracked (chat, user) pairs.
func (s *MemoryCounterStore) Len() int {
	return s.counts.Size()
}
