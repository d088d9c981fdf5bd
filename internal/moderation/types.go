package moderation

// Rule names the policy a message violated.
type Rule string

const (
	RuleNone    Rule = ""
	RuleLink    Rule = "link"
	RuleKeyword Rule = "keyword"
	RuleRate    Rule = "rate"
)

// Reason returns the user-visible explanation attached to a warning.
func (r Rule) Reason() string {
	switch r {
	case RuleLink:
		return "links are not allowed."
	case RuleKeyword:
		return "content violates the group rules."
	case RuleRate:
		return "sending messages too fast."
	default:
		return ""
	}
}

// MessageEvent is published to moderation.message by the platform gateway for
// every message posted in a moderated chat.
type MessageEvent struct {
	ChatID    int64  `json:"chat_id"`
	MessageID int64  `json:"message_id"`
	SenderID  int64  `json:"sender_id"`
	IsBot     bool   `json:"is_bot"`
	Text      string `json:"text,omitempty"`
	Caption   string `json:"caption,omitempty"`
	Ts        int64  `json:"ts"`
}

// Content returns the text the checks run against: the message body, else the
// media caption, else "".
func (e MessageEvent) Content() string {
	if e.Text != "" {
		return e.Text
	}
	return e.Caption
}

// ModerationResult is published to moderation.result for every violation.
type ModerationResult struct {
	ID        string `json:"id"`
	ChatID    int64  `json:"chat_id"`
	SenderID  int64  `json:"sender_id"`
	MessageID int64  `json:"message_id"`
	Rule      Rule   `json:"rule"`
	Level     string `json:"level"`
	Count     int    `json:"count"`
	Reason    string `json:"reason"`
}

// AdminCommand is a request on moderation.admin carrying the raw command text
// (e.g. "/addbad casino") as typed by a chat administrator.
type AdminCommand struct {
	ChatID   int64  `json:"chat_id"`
	SenderID int64  `json:"sender_id"`
	Text     string `json:"text"`
}

// AdminReply is the response to an AdminCommand.
type AdminReply struct {
	Text string `json:"text"`
}
