package admin

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/internal/policy"
)

const (
	UsageWarns       = "Usage: /warns <user_id>"
	ReplyWarnsFailed = "Could not read warnings."

	// recentViolationsWindow bounds the audited violations shown by /warns.
	recentViolationsWindow = 24 * time.Hour
)

// WarnCounter reads a member's current warning count.
type WarnCounter interface {
	Count(ctx context.Context, chatID, userID int64) (int, error)
}

// ViolationLog counts audited violations of a member in a recent window.
type ViolationLog interface {
	CountRecent(ctx context.Context, chatID, userID int64, window time.Duration) (int, error)
}

// ThresholdSource supplies the ban threshold shown next to the count.
type ThresholdSource interface {
	Snapshot() policy.Snapshot
}

// RegisterWarnCommands wires /warns <user_id>. violations may be nil when no
// audit trail is configured.
func RegisterWarnCommands(d *Dispatcher, counts WarnCounter, thresholds ThresholdSource, violations ViolationLog) {
	d.Register("warns", func(ctx context.Context, cmd moderation.AdminCommand, arg string) string {
		userID, err := strconv.ParseInt(arg, 10, 64)
		if err != nil || userID == 0 {
			return UsageWarns
		}

		count, err := counts.Count(ctx, cmd.ChatID, userID)
		if err != nil {
			d.log.Warnw("read warn count", "chat", cmd.ChatID, "user", userID, "err", err)
			return ReplyWarnsFailed
		}
		reply := fmt.Sprintf("User %d: %d/%d warnings.", userID, count, thresholds.Snapshot().WarnThresholdForBan)

		if violations == nil {
			return reply
		}
		recent, err := violations.CountRecent(ctx, cmd.ChatID, userID, recentViolationsWindow)
		if err != nil {
			d.log.Warnw("count audited violations", "chat", cmd.ChatID, "user", userID, "err", err)
			return reply
		}
		return reply + fmt.Sprintf("\nViolations in the last 24h: %d", recent)
	})
}
