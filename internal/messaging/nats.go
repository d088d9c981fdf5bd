// Package messaging provides the NATS transport for the moderator. It owns
// the connection lifecycle, the queue-group subscriptions for inbound chat
// events and admin commands, and publishing of moderation results.
package messaging

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/moderation"
)

// NATS subjects used between the moderator and the platform gateway.
const (
	SubjectMessage = "moderation.message"
	SubjectAdmin   = "moderation.admin"
	SubjectResult  = "moderation.result"

	SubjectPlatformDelete   = "platform.delete"
	SubjectPlatformRestrict = "platform.restrict"
	SubjectPlatformBan      = "platform.ban"
	SubjectPlatformNotice   = "platform.notice"
)

const drainTimeout = 10 * time.Second

// NATSClient wraps the NATS connection with helper methods for pub/sub.
type NATSClient struct {
	conn   *nats.Conn
	log    *zap.SugaredLogger
	closed chan struct{}

	mu       sync.Mutex
	subs     map[string]*nats.Subscription
	draining bool
}

// NATSConfig holds NATS connection settings.
type NATSConfig struct {
	URL           string        // nats://localhost:4222
	Name          string        // client name for identification
	Token         string        // auth token, empty for none
	QueueGroup    string        // queue group shared by moderator replicas
	ReconnectWait time.Duration // time between reconnect attempts
	MaxReconnects int           // max reconnect attempts (-1 for infinite)
}

// DefaultNATSConfig returns sensible defaults.
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		URL:           nats.DefaultURL,
		Name:          "whisper-moderator",
		QueueGroup:    "moderators",
		ReconnectWait: 2 * time.Second,
		MaxReconnects: -1, // infinite reconnects
	}
}

// NewNATSClient connects to NATS with the given config and returns a ready
// client. It returns an error if the initial connection fails.
func NewNATSClient(config NATSConfig, log *zap.SugaredLogger) (*NATSClient, error) {
	closed := make(chan struct{})
	opts := []nats.Option{
		nats.Name(config.Name),
		nats.ReconnectWait(config.ReconnectWait),
		nats.MaxReconnects(config.MaxReconnects),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnw("disconnected", "err", err)
			} else {
				log.Warnw("disconnected")
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Infow("reconnected", "url", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(_ *nats.Conn) {
			log.Infow("connection closed")
			close(closed)
		}),
	}
	if config.Token != "" {
		opts = append(opts, nats.Token(config.Token))
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("messaging: connect: %w", err)
	}

	log.Infow("connected", "url", nc.ConnectedUrl())

	return &NATSClient{
		conn:   nc,
		log:    log,
		closed: closed,
		subs:   make(map[string]*nats.Subscription),
	}, nil
}

// Conn exposes the underlying connection for request/reply clients.
func (c *NATSClient) Conn() *nats.Conn {
	return c.conn
}

// Publish sends data to the given NATS subject.
func (c *NATSClient) Publish(subject string, data []byte) error {
	return c.conn.Publish(subject, data)
}

// QueueSubscribe registers a handler for subject within queue and stores the
// subscription for later cleanup. Each message is delivered to exactly one
// member of the queue group.
func (c *NATSClient) QueueSubscribe(subject, queue string, handler nats.MsgHandler) error {
	sub, err := c.conn.QueueSubscribe(subject, queue, handler)
	if err != nil {
		return fmt.Errorf("messaging: subscribe %s: %w", subject, err)
	}

	c.mu.Lock()
	c.subs[subject] = sub
	c.mu.Unlock()

	return nil
}

// SubscribeMessages delivers decoded chat events to handler. Malformed
// payloads are logged and dropped.
func (c *NATSClient) SubscribeMessages(queue string, handler func(moderation.MessageEvent)) error {
	return c.QueueSubscribe(SubjectMessage, queue, func(msg *nats.Msg) {
		var ev moderation.MessageEvent
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.log.Warnw("failed to decode message event", "err", err)
			return
		}
		handler(ev)
	})
}

// SubscribeAdmin serves admin commands on the admin subject. The handler's
// reply is sent back to the requester when the message carries a reply
// subject.
func (c *NATSClient) SubscribeAdmin(queue string, handler func(moderation.AdminCommand) moderation.AdminReply) error {
	return c.QueueSubscribe(SubjectAdmin, queue, func(msg *nats.Msg) {
		var cmd moderation.AdminCommand
		if err := json.Unmarshal(msg.Data, &cmd); err != nil {
			c.log.Warnw("failed to decode admin command", "err", err)
			return
		}

		reply := handler(cmd)
		if msg.Reply == "" {
			return
		}
		data, err := json.Marshal(reply)
		if err != nil {
			c.log.Errorw("failed to encode admin reply", "err", err)
			return
		}
		if err := msg.Respond(data); err != nil {
			c.log.Warnw("failed to respond to admin command", "chat", cmd.ChatID, "err", err)
		}
	})
}

// PublishResult publishes a violation to the result subject.
func (c *NATSClient) PublishResult(res moderation.ModerationResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("messaging: marshal result: %w", err)
	}
	if err := c.Publish(SubjectResult, data); err != nil {
		return fmt.Errorf("messaging: publish result: %w", err)
	}
	return nil
}

// Close drains all active subscriptions and closes the NATS connection.
// Messages already delivered to a handler finish processing first; Close
// waits up to drainTimeout for that. Calling Close again is a no-op.
func (c *NATSClient) Close() {
	c.mu.Lock()
	if c.draining {
		c.mu.Unlock()
		return
	}
	c.draining = true
	subs := c.subs
	c.subs = make(map[string]*nats.Subscription)
	c.mu.Unlock()

	deadline := time.Now().Add(drainTimeout)
	for subject, sub := range subs {
		if err := sub.Drain(); err != nil {
			c.log.Warnw("drain failed", "subject", subject, "err", err)
		}
	}
	// Handlers may still be issuing platform requests, which need the
	// connection's reply subscription; wait for them before draining it.
	for _, sub := range subs {
		for sub.IsValid() && time.Now().Before(deadline) {
			time.Sleep(20 * time.Millisecond)
		}
	}

	if err := c.conn.Drain(); err != nil {
		c.log.Warnw("connection drain failed", "err", err)
		c.conn.Close()
	}

	select {
	case <-c.closed:
	case <-time.After(time.Until(deadline)):
		c.log.Warnw("drain timed out", "timeout", drainTimeout)
		c.conn.Close()
	}
	c.log.Infow("client closed")
}
