package audit

import (
	"context"
	"io/fs"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/whisper/moderator/internal/history"
)

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	require.NoError(t, err)

	var up, down int
	for _, e := range entries {
		switch {
		case strings.HasSuffix(e.Name(), ".up.sql"):
			up++
		case strings.HasSuffix(e.Name(), ".down.sql"):
			down++
		}
	}
	assert.Positive(t, up)
	assert.Equal(t, up, down, "every up migration needs a down migration")
}

func TestRecord_InvalidLevel(t *testing.T) {
	s := NewStore(nil)
	err := s.Record(context.Background(), &Entry{Level: "kicked"})
	assert.ErrorContains(t, err, "invalid level")
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	assert.NoError(t, r.Record(context.Background(), &Entry{Level: "whatever"}))
}

// newTestStore connects to the database named by AUDIT_TEST_DATABASE_URL and
// applies migrations. Tests that call it are skipped when it is unset or
// unreachable.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("AUDIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("AUDIT_TEST_DATABASE_URL not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	db, err := Open(ctx, url)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}
	require.NoError(t, Migrate(url))

	t.Cleanup(func() {
		db.Exec(`DELETE FROM moderation_actions WHERE chat_id = $1`, testChat)
		db.Close()
	})
	return NewStore(db)
}

const testChat = -9_000_000_002

func TestRecordAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, level := range []string{"warned", "muted", "banned"} {
		err := s.Record(ctx, &Entry{
			ID:        uuid.NewString(),
			ChatID:    testChat,
			UserID:    42,
			MessageID: 1,
			Rule:      "link",
			Level:     level,
			WarnCount: 1,
			Messages:  []history.Entry{{MessageID: 1, Text: "http://spam.xyz", Ts: 1}},
		})
		require.NoError(t, err)
	}

	count, err := s.CountRecent(ctx, testChat, 42, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	count, err = s.CountRecent(ctx, testChat, 43, time.Hour)
	require.NoError(t, err)
	assert.Zero(t, count)
}
