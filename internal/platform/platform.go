// Package platform defines the outbound contract between the moderator and
// the messaging platform: the four actions the moderation core may request.
// Implementations live elsewhere (see internal/messaging for the NATS
// gateway client).
package platform

import (
	"context"
	"time"
)

// MessageRef identifies a single chat message.
type MessageRef struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// Permissions is the member permission set applied by RestrictMember. Field
// names follow the platform's chat permission object.
type Permissions struct {
	CanSendMessages       bool `json:"can_send_messages"`
	CanSendAudios         bool `json:"can_send_audios"`
	CanSendDocuments      bool `json:"can_send_documents"`
	CanSendPhotos         bool `json:"can_send_photos"`
	CanSendVideos         bool `json:"can_send_videos"`
	CanSendVideoNotes     bool `json:"can_send_video_notes"`
	CanSendVoiceNotes     bool `json:"can_send_voice_notes"`
	CanSendPolls          bool `json:"can_send_polls"`
	CanSendOtherMessages  bool `json:"can_send_other_messages"`
	CanAddWebPagePreviews bool `json:"can_add_web_page_previews"`
	CanChangeInfo         bool `json:"can_change_info"`
	CanInviteUsers        bool `json:"can_invite_users"`
	CanPinMessages        bool `json:"can_pin_messages"`
	CanManageTopics       bool `json:"can_manage_topics"`
}

// MutedPermissions revokes everything.
func MutedPermissions() Permissions {
	return Permissions{}
}

// Client is the set of actions the moderation core requests of the platform.
type Client interface {
	// DeleteMessage removes a message. Callers treat it as best-effort.
	DeleteMessage(ctx context.Context, ref MessageRef) error
	// RestrictMember applies perms to a member until the given instant.
	RestrictMember(ctx context.Context, chatID, userID int64, perms Permissions, until time.Time) error
	// BanMember removes a member from the chat permanently.
	BanMember(ctx context.Context, chatID, userID int64) error
	// SendNotice posts a user-visible message to the chat.
	SendNotice(ctx context.Context, chatID int64, text string) error
}
