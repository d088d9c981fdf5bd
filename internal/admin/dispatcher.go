// Package admin routes chat administrator commands (e.g. "/addbad casino")
// to registered handlers and posts each handler's reply back to the chat.
package admin

import (
	"context"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/moderation"
)

// Handler runs one command. arg is the text after the command, trimmed. The
// returned text is the reply.
type Handler func(ctx context.Context, cmd moderation.AdminCommand, arg string) string

// Notifier posts a reply into the chat the command came from.
type Notifier interface {
	SendNotice(ctx context.Context, chatID int64, text string) error
}

// Dispatcher routes admin commands to registered handlers by command name.
type Dispatcher struct {
	handlers map[string]Handler
	notifier Notifier
	log      *zap.SugaredLogger
}

// NewDispatcher creates a Dispatcher. notifier may be nil, in which case
// replies are only returned to the caller.
func NewDispatcher(notifier Notifier, log *zap.SugaredLogger) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]Handler),
		notifier: notifier,
		log:      log,
	}
}

// Register associates a handler with a command name, without the leading
// slash. An existing registration is replaced.
func (d *Dispatcher) Register(name string, h Handler) {
	d.handlers[name] = h
}

// Dispatch parses cmd.Text, runs the matching handler and posts its reply to
// the chat. Text that is not a registered command yields an empty reply.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd moderation.AdminCommand) moderation.AdminReply {
	name, arg, ok := ParseCommand(cmd.Text)
	if !ok {
		return moderation.AdminReply{}
	}

	h, ok := d.handlers[name]
	if !ok {
		d.log.Debugw("unsupported command", "chat", cmd.ChatID, "command", name)
		return moderation.AdminReply{}
	}

	text := h(ctx, cmd, arg)
	d.log.Infow("admin command", "chat", cmd.ChatID, "user", cmd.SenderID, "command", name)

	if d.notifier != nil && text != "" {
		if err := d.notifier.SendNotice(ctx, cmd.ChatID, text); err != nil {
			d.log.Warnw("failed to post admin reply", "chat", cmd.ChatID, "err", err)
		}
	}
	return moderation.AdminReply{Text: text}
}

// ParseCommand splits "/name@bot rest of text" into ("name", "rest of text").
// The name ends at the first whitespace character. The argument is everything
// after the first space, trimmed, so "/addbad\ncasino" has no argument.
func ParseCommand(text string) (name, arg string, ok bool) {
	text = strings.TrimLeft(text, " \t")
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	body := text[1:]

	head := body
	if i := strings.IndexFunc(body, unicode.IsSpace); i >= 0 {
		head = body[:i]
	}
	head, _, _ = strings.Cut(head, "@")
	if head == "" {
		return "", "", false
	}

	_, rest, _ := strings.Cut(body, " ")
	return head, strings.TrimSpace(rest), true
}
