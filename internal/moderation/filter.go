// Package moderation provides the lexical and structural content checks applied
// to every chat message: the link whitelist classifier and the banned keyword
// filter. It also defines the JSON payloads exchanged with the platform
// gateway over NATS.
package moderation

import "strings"

// ContainsBannedWord reports whether any non-empty keyword occurs in text as a
// case-insensitive substring. Keyword order does not affect the result.
func ContainsBannedWord(text string, keywords []string) bool {
	if text == "" {
		return false
	}

	lower := strings.ToLower(text)
	for _, kw := range keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}
