package escalation

import (
	"fmt"
	"time"
)

// User-visible notices posted to the chat.
const (
	NoticeBanned     = "Banned for repeated violations."
	NoticeBanFailed  = "Could not ban (check the bot's admin permissions)."
	NoticeMuteFailed = "Could not mute (check the bot's admin permissions)."
)

// WarnNotice is posted on every warning: "Warned (n/limit): reason".
func WarnNotice(count, banThreshold int, reason string) string {
	return fmt.Sprintf("Warned (%d/%d): %s", count, banThreshold, reason)
}

// MutedNotice reports a successful mute in whole minutes.
func MutedNotice(d time.Duration) string {
	return fmt.Sprintf("Muted for %d minutes.", int(d/time.Minute))
}
