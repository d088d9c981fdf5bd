// Package gateway is a stand-in for the platform gateway used by the load and
// end-to-end tests. It answers every platform.* request from the moderator
// with ok=true and records what was asked.
package gateway

import (
	"encoding/json"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/whisper/moderator/internal/messaging"
	"github.com/whisper/moderator/loadtest/stats"
)

// Action is one platform request received from the moderator.
type Action struct {
	Kind      string // delete, restrict, ban, notice
	ChatID    int64
	UserID    int64
	MessageID int64
	Text      string
	Until     int64
}

// Gateway is a fake platform gateway.
type Gateway struct {
	sub       *nats.Subscription
	collector *stats.Collector

	// publish time of every message sent through Track, by message ID
	sent *xsync.MapOf[int64, time.Time]

	mu      sync.Mutex
	actions []Action
}

// Start subscribes to all platform subjects on nc. collector may be nil.
func Start(nc *nats.Conn, collector *stats.Collector) (*Gateway, error) {
	g := &Gateway{
		collector: collector,
		sent:      xsync.NewMapOf[int64, time.Time](),
	}
	sub, err := nc.Subscribe("platform.*", g.handle)
	if err != nil {
		return nil, err
	}
	g.sub = sub
	return g, nil
}

// Stop unsubscribes the gateway.
func (g *Gateway) Stop() error {
	return g.sub.Unsubscribe()
}

// Track remembers when messageID was published so that its deletion latency
// can be measured.
func (g *Gateway) Track(messageID int64, at time.Time) {
	g.sent.Store(messageID, at)
}

// Actions returns the requests received so far for chatID.
func (g *Gateway) Actions(chatID int64) []Action {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []Action
	for _, a := range g.actions {
		if a.ChatID == chatID {
			out = append(out, a)
		}
	}
	return out
}

// WaitFor polls until pred holds for chatID's actions or timeout elapses, and
// returns the last observed actions.
func (g *Gateway) WaitFor(chatID int64, timeout time.Duration, pred func([]Action) bool) ([]Action, bool) {
	deadline := time.Now().Add(timeout)
	for {
		got := g.Actions(chatID)
		if pred(got) {
			return got, true
		}
		if time.Now().After(deadline) {
			return got, false
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (g *Gateway) handle(msg *nats.Msg) {
	a := Action{Kind: strings.TrimPrefix(msg.Subject, "platform.")}

	var err error
	switch msg.Subject {
	case messaging.SubjectPlatformDelete:
		var req messaging.DeleteRequest
		err = json.Unmarshal(msg.Data, &req)
		a.ChatID, a.MessageID = req.ChatID, req.MessageID
	case messaging.SubjectPlatformRestrict:
		var req messaging.RestrictRequest
		err = json.Unmarshal(msg.Data, &req)
		a.ChatID, a.UserID, a.Until = req.ChatID, req.UserID, req.UntilDate
	case messaging.SubjectPlatformBan:
		var req messaging.BanRequest
		err = json.Unmarshal(msg.Data, &req)
		a.ChatID, a.UserID = req.ChatID, req.UserID
	case messaging.SubjectPlatformNotice:
		var req messaging.NoticeRequest
		err = json.Unmarshal(msg.Data, &req)
		a.ChatID, a.Text = req.ChatID, req.Text
	}

	reply := messaging.ActionReply{OK: err == nil}
	if err != nil {
		reply.Error = err.Error()
		if g.collector != nil {
			g.collector.AddError()
		}
	}

	g.mu.Lock()
	g.actions = append(g.actions, a)
	g.mu.Unlock()

	if g.collector != nil {
		g.collector.AddAction(a.Kind)
		if a.Kind == "delete" {
			if at, ok := g.sent.LoadAndDelete(a.MessageID); ok {
				g.collector.AddDetectLatency(time.Since(at))
			}
		}
	}

	data, _ := json.Marshal(reply)
	_ = msg.Respond(data)
}

// Count returns how many actions of kind are in actions.
func Count(actions []Action, kind string) int {
	n := 0
	for _, a := range actions {
		if a.Kind == kind {
			n++
		}
	}
	return n
}
