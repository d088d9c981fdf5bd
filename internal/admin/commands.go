package admin

import (
	"context"
	"strings"

	"github.com/whisper/moderator/internal/metrics"
	"github.com/whisper/moderator/internal/moderation"
)

// Replies.
const (
	UsageAddBad      = "Usage: /addbad <keyword>"
	UsageDelBad      = "Usage: /delbad <keyword>"
	ReplyNotFound    = "keyword not found."
	whitelistHeading = "Whitelist domains:\n"
)

// PolicyEditor is the policy store surface exposed to administrators.
type PolicyEditor interface {
	AddKeyword(word string) bool
	RemoveKeyword(word string) bool
	Keywords() []string
	ListWhitelist() []string
}

// RegisterPolicyCommands wires /whitelist, /addbad and /delbad to store.
func RegisterPolicyCommands(d *Dispatcher, store PolicyEditor) {
	metrics.PolicyKeywords.Set(float64(len(store.Keywords())))

	d.Register("whitelist", func(context.Context, moderation.AdminCommand, string) string {
		return whitelistHeading + strings.Join(store.ListWhitelist(), "\n")
	})

	d.Register("addbad", func(_ context.Context, _ moderation.AdminCommand, word string) string {
		if !store.AddKeyword(word) {
			return UsageAddBad
		}
		metrics.PolicyKeywords.Set(float64(len(store.Keywords())))
		return "Added banned keyword: " + word
	})

	d.Register("delbad", func(_ context.Context, _ moderation.AdminCommand, word string) string {
		if word == "" {
			return UsageDelBad
		}
		if !store.RemoveKeyword(word) {
			return ReplyNotFound
		}
		metrics.PolicyKeywords.Set(float64(len(store.Keywords())))
		return "Removed: " + word
	})
}
