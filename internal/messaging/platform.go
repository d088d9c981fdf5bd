package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/whisper/moderator/internal/platform"
)

// DeleteRequest asks the gateway to remove a message.
type DeleteRequest struct {
	ChatID    int64 `json:"chat_id"`
	MessageID int64 `json:"message_id"`
}

// RestrictRequest asks the gateway to apply a permission set to a member.
// UntilDate is in epoch seconds.
type RestrictRequest struct {
	ChatID      int64                `json:"chat_id"`
	UserID      int64                `json:"user_id"`
	Permissions platform.Permissions `json:"permissions"`
	UntilDate   int64                `json:"until_date"`
}

// BanRequest asks the gateway to remove a member from a chat.
type BanRequest struct {
	ChatID int64 `json:"chat_id"`
	UserID int64 `json:"user_id"`
}

// NoticeRequest asks the gateway to post a message in a chat.
type NoticeRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

// ActionReply is the gateway's answer to any platform request.
type ActionReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// ErrActionRejected is returned when the gateway answers ok=false.
var ErrActionRejected = errors.New("action rejected")

// Requester is the part of *nats.Conn used by PlatformClient.
type Requester interface {
	RequestWithContext(ctx context.Context, subj string, data []byte) (*nats.Msg, error)
}

// PlatformClient implements platform.Client as NATS request/reply calls to
// the platform gateway.
type PlatformClient struct {
	conn    Requester
	timeout time.Duration
}

var _ platform.Client = (*PlatformClient)(nil)

// NewPlatformClient creates a PlatformClient. Each request waits at most
// timeout for the gateway's reply.
func NewPlatformClient(conn Requester, timeout time.Duration) *PlatformClient {
	return &PlatformClient{conn: conn, timeout: timeout}
}

func (p *PlatformClient) DeleteMessage(ctx context.Context, ref platform.MessageRef) error {
	return p.call(ctx, "delete", SubjectPlatformDelete, DeleteRequest{
		ChatID:    ref.ChatID,
		MessageID: ref.MessageID,
	})
}

func (p *PlatformClient) RestrictMember(ctx context.Context, chatID, userID int64, perms platform.Permissions, until time.Time) error {
	return p.call(ctx, "restrict", SubjectPlatformRestrict, RestrictRequest{
		ChatID:      chatID,
		UserID:      userID,
		Permissions: perms,
		UntilDate:   until.Unix(),
	})
}

func (p *PlatformClient) BanMember(ctx context.Context, chatID, userID int64) error {
	return p.call(ctx, "ban", SubjectPlatformBan, BanRequest{ChatID: chatID, UserID: userID})
}

func (p *PlatformClient) SendNotice(ctx context.Context, chatID int64, text string) error {
	return p.call(ctx, "notice", SubjectPlatformNotice, NoticeRequest{ChatID: chatID, Text: text})
}

func (p *PlatformClient) call(ctx context.Context, op, subject string, req any) error {
	data, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("messaging: %s: marshal: %w", op, err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	msg, err := p.conn.RequestWithContext(ctx, subject, data)
	if err != nil {
		return fmt.Errorf("messaging: %s: %w", op, err)
	}
	return decodeReply(op, msg.Data)
}

func decodeReply(op string, data []byte) error {
	var reply ActionReply
	if err := json.Unmarshal(data, &reply); err != nil {
		return fmt.Errorf("messaging: %s: decode reply: %w", op, err)
	}
	if !reply.OK {
		if reply.Error == "" {
			return fmt.Errorf("messaging: %s: %w", op, ErrActionRejected)
		}
		return fmt.Errorf("messaging: %s: %w: %s", op, ErrActionRejected, reply.Error)
	}
	return nil
}
