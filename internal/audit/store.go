// Package audit provides PostgreSQL-backed storage for moderation decisions.
// Each entry captures the offender, the violated rule, the escalation level
// reached, and the last few messages the offender sent (for moderator
// review). Only the audit trail is persisted; warning counters and rate
// windows stay in memory.
package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/whisper/moderator/internal/history"
)

// validLevels matches the CHECK constraint on moderation_actions.level.
var validLevels = map[string]bool{
	"warned": true,
	"muted":  true,
	"banned": true,
}

// Entry is a single moderation decision to be persisted.
type Entry struct {
	ID           string
	ChatID       int64
	UserID       int64
	MessageID    int64
	Rule         string
	Level        string
	WarnCount    int
	ActionFailed bool
	Messages     []history.Entry // recent messages from the offender
}

// Recorder persists moderation decisions.
type Recorder interface {
	Record(ctx context.Context, e *Entry) error
}

// Nop is a Recorder that drops every entry. It is used when no audit
// database is configured.
type Nop struct{}

func (Nop) Record(context.Context, *Entry) error { return nil }

// Store manages the audit trail in PostgreSQL.
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Open connects to PostgreSQL with the lib/pq driver and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return db, nil
}

// Record inserts a moderation decision. Messages are marshalled to JSONB.
// The level is validated against the allowed set before insertion.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if !validLevels[e.Level] {
		return fmt.Errorf("audit: invalid level %q", e.Level)
	}

	var messagesJSON []byte
	if len(e.Messages) > 0 {
		var err error
		messagesJSON, err = json.Marshal(e.Messages)
		if err != nil {
			return fmt.Errorf("audit: marshal messages: %w", err)
		}
	}

	const query = `
		INSERT INTO moderation_actions (id, chat_id, user_id, message_id, rule, level, warn_count, action_failed, messages)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.ChatID,
		e.UserID,
		e.MessageID,
		e.Rule,
		e.Level,
		e.WarnCount,
		e.ActionFailed,
		messagesJSON,
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountRecent returns the number of decisions recorded against a member of
// a chat within the given time window.
func (s *Store) CountRecent(ctx context.Context, chatID, userID int64, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_actions
		WHERE chat_id = $1
		  AND user_id = $2
		  AND created_at >= NOW() - make_interval(secs => $3)`

	var count int
	err := s.db.QueryRowContext(ctx, query, chatID, userID, window.Seconds()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count recent: %w", err)
	}
	return count, nil
}
