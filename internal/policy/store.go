package policy

import (
	"strings"
	"sync"
	"time"
)

// Snapshot is an immutable view of the policy at one instant. Its slices are
// never mutated after the snapshot is taken, so callers may iterate them
// without holding any lock.
type Snapshot struct {
	WhitelistDomains     []string
	BannedKeywords       []string
	MaxMessagesPerWindow int
	Window               time.Duration
	WarnThresholdForMute int
	WarnThresholdForBan  int
	MuteDuration         time.Duration
}

// Store is the process-wide policy. Writers replace the keyword slice
// (copy-on-write) instead of mutating it in place.
type Store struct {
	mu  sync.RWMutex
	cfg Config
}

// NewStore creates a Store seeded with cfg. The slices are copied.
func NewStore(cfg Config) *Store {
	cfg.WhitelistDomains = append([]string(nil), cfg.WhitelistDomains...)
	cfg.BannedKeywords = append([]string(nil), cfg.BannedKeywords...)
	return &Store{cfg: cfg}
}

// Snapshot returns the current policy.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Snapshot{
		WhitelistDomains:     s.cfg.WhitelistDomains,
		BannedKeywords:       s.cfg.BannedKeywords,
		MaxMessagesPerWindow: s.cfg.MaxMessagesPerWindow,
		Window:               s.cfg.Window,
		WarnThresholdForMute: s.cfg.WarnThresholdForMute,
		WarnThresholdForBan:  s.cfg.WarnThresholdForBan,
		MuteDuration:         s.cfg.MuteDuration,
	}
}

// AddKeyword appends word to the banned list. Empty words are ignored and
// duplicates are allowed. Reports whether the word was added.
func (s *Store) AddKeyword(word string) bool {
	if word == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]string, len(s.cfg.BannedKeywords), len(s.cfg.BannedKeywords)+1)
	copy(next, s.cfg.BannedKeywords)
	s.cfg.BannedKeywords = append(next, word)
	return true
}

// RemoveKeyword removes every keyword equal to word under case-insensitive
// comparison and reports whether anything was removed.
func (s *Store) RemoveKeyword(word string) bool {
	target := strings.ToLower(word)

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]string, 0, len(s.cfg.BannedKeywords))
	for _, kw := range s.cfg.BannedKeywords {
		if strings.ToLower(kw) != target {
			next = append(next, kw)
		}
	}
	if len(next) == len(s.cfg.BannedKeywords) {
		return false
	}
	s.cfg.BannedKeywords = next
	return true
}

// Keywords returns a copy of the banned keyword list.
func (s *Store) Keywords() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.BannedKeywords...)
}

// ListWhitelist returns a copy of the whitelisted domains in configured order.
func (s *Store) ListWhitelist() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.cfg.WhitelistDomains...)
}
