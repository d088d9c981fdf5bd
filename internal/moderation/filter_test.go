package moderation

import (
	"strings"
	"testing"
)

func TestContainsBannedWord(t *testing.T) {
	keywords := []string{"xxx", "Casino", "18+", "lồn"}

	tests := []struct {
		name  string
		input string
		want  bool
	}{
		{"exact", "xxx", true},
		{"in sentence", "This is XXX content", true},
		{"keyword case folded", "best casino in town", true},
		{"substring counts", "casinos everywhere", true},
		{"symbols", "only 18+ here", true},
		{"non-ascii", "đồ LỒN", true},
		{"clean", "hello, how are you?", false},
		{"empty text", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ContainsBannedWord(tt.input, keywords); got != tt.want {
				t.Errorf("ContainsBannedWord(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestContainsBannedWord_EmptyKeywordIgnored(t *testing.T) {
	if ContainsBannedWord("anything at all", []string{"", ""}) {
		t.Error("empty keywords must never match")
	}
	if ContainsBannedWord("anything", nil) {
		t.Error("nil keyword list must never match")
	}
}

func TestContainsBannedWord_OrderIndependent(t *testing.T) {
	text := "buy porn and xxx"
	a := ContainsBannedWord(text, []string{"porn", "xxx", "zzz"})
	b := ContainsBannedWord(text, []string{"zzz", "xxx", "porn"})
	if a != b || !a {
		t.Errorf("results differ by order: %v vs %v", a, b)
	}
}

func TestRuleReason(t *testing.T) {
	for _, r := range []Rule{RuleLink, RuleKeyword, RuleRate} {
		if r.Reason() == "" {
			t.Errorf("Rule(%q).Reason() is empty", r)
		}
	}
	if RuleNone.Reason() != "" {
		t.Errorf("RuleNone.Reason() = %q, want empty", RuleNone.Reason())
	}
}

func TestMessageEventContent(t *testing.T) {
	tests := []struct {
		ev   MessageEvent
		want string
	}{
		{MessageEvent{Text: "body", Caption: "cap"}, "body"},
		{MessageEvent{Caption: "cap"}, "cap"},
		{MessageEvent{}, ""},
	}
	for _, tt := range tests {
		if got := tt.ev.Content(); got != tt.want {
			t.Errorf("Content() = %q, want %q", got, tt.want)
		}
	}
}

func BenchmarkContainsBannedWord(b *testing.B) {
	msg := strings.Repeat("this is a perfectly normal message with no bad content. ", 40)
	keywords := []string{"xxx", "porn", "sex", "18+", "địt", "đụ", "lồn", "cặc"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ContainsBannedWord(msg, keywords)
	}
}

func BenchmarkHasDisallowedLink(b *testing.B) {
	msg := "hey look at https://github.com/whisper and http://spam.xyz/click?id=1"
	whitelist := []string{"t.me", "telegram.me", "play.google.com", "github.com", "github.io"}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		HasDisallowedLink(msg, whitelist)
	}
}
