// Package pipeline runs the moderation checks for each inbound message in a
// fixed priority order and hands the first violation to the escalation
// engine:
//
//  1. disallowed link
//  2. banned keyword
//  3. message rate
//
// Evaluation stops at the first violation, so a message rejected by the link
// or keyword check is never recorded by the rate limiter.
package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/audit"
	"github.com/whisper/moderator/internal/escalation"
	"github.com/whisper/moderator/internal/history"
	"github.com/whisper/moderator/internal/metrics"
	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/internal/platform"
	"github.com/whisper/moderator/internal/ratelimit"
)

// Warner records a violation and applies the resulting escalation.
type Warner interface {
	Warn(ctx context.Context, chatID, userID int64, reason string) escalation.Outcome
}

// Deleter removes a violating message.
type Deleter interface {
	DeleteMessage(ctx context.Context, ref platform.MessageRef) error
}

// ResultPublisher fans violations out to downstream consumers.
type ResultPublisher interface {
	PublishResult(res moderation.ModerationResult) error
}

// Config holds the pipeline's collaborators. Policy, Limiter, Engine,
// Platform and Logger are required.
type Config struct {
	Policy   escalation.PolicySource
	Limiter  ratelimit.Limiter
	Engine   Warner
	Platform Deleter
	Logger   *zap.SugaredLogger

	History  *history.Buffer  // optional; attaches recent messages to audit entries
	Recorder audit.Recorder   // optional; defaults to audit.Nop
	Results  ResultPublisher  // optional
	Now      func() time.Time // optional; defaults to time.Now
}

// Decision is the outcome of processing one message.
type Decision struct {
	ID      string // set for violations
	Skipped bool   // bot senders and incomplete events
	Rule    moderation.Rule
	Outcome escalation.Outcome
}

// Violation reports whether the message broke a rule.
func (d Decision) Violation() bool {
	return d.Rule != moderation.RuleNone
}

// Pipeline is the per-message moderation orchestrator.
type Pipeline struct {
	cfg Config
	log *zap.SugaredLogger
}

// New validates cfg and returns a Pipeline.
func New(cfg Config) (*Pipeline, error) {
	switch {
	case cfg.Policy == nil:
		return nil, errors.New("pipeline: policy is required")
	case cfg.Limiter == nil:
		return nil, errors.New("pipeline: limiter is required")
	case cfg.Engine == nil:
		return nil, errors.New("pipeline: engine is required")
	case cfg.Platform == nil:
		return nil, errors.New("pipeline: platform is required")
	case cfg.Logger == nil:
		return nil, errors.New("pipeline: logger is required")
	}
	if cfg.Recorder == nil {
		cfg.Recorder = audit.Nop{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Pipeline{cfg: cfg, log: cfg.Logger}, nil
}

// Process moderates one inbound message. It never fails: platform and
// storage errors are logged and the decision reflects what was attempted.
func (p *Pipeline) Process(ctx context.Context, ev moderation.MessageEvent) Decision {
	start := time.Now()
	defer func() {
		metrics.DecisionLatency.Observe(time.Since(start).Seconds())
	}()

	if ev.ChatID == 0 || ev.SenderID == 0 || ev.IsBot {
		metrics.MessagesTotal.WithLabelValues("skipped").Inc()
		return Decision{Skipped: true}
	}

	text := ev.Content()
	now := p.cfg.Now()

	if p.cfg.History != nil {
		p.cfg.History.Add(ev.ChatID, ev.SenderID, history.Entry{
			MessageID: ev.MessageID,
			Text:      text,
			Ts:        now.Unix(),
		})
	}

	rule := p.evaluate(ctx, ev, text, now)
	if rule == moderation.RuleNone {
		metrics.MessagesTotal.WithLabelValues("clean").Inc()
		return Decision{}
	}

	metrics.MessagesTotal.WithLabelValues("violation").Inc()
	metrics.ViolationsTotal.WithLabelValues(string(rule)).Inc()

	ref := platform.MessageRef{ChatID: ev.ChatID, MessageID: ev.MessageID}
	if err := p.cfg.Platform.DeleteMessage(ctx, ref); err != nil {
		metrics.RecordAction("delete", err)
		p.log.Debugw("delete failed", "chat", ev.ChatID, "message", ev.MessageID, "err", err)
	} else {
		metrics.RecordAction("delete", nil)
	}

	out := p.cfg.Engine.Warn(ctx, ev.ChatID, ev.SenderID, rule.Reason())
	d := Decision{ID: uuid.NewString(), Rule: rule, Outcome: out}

	p.log.Infow("violation",
		"id", d.ID,
		"chat", ev.ChatID,
		"user", ev.SenderID,
		"rule", rule,
		"level", out.Level,
		"count", out.Count,
	)

	p.record(ctx, ev, d)
	p.publish(ev, d)

	// A banned member sends nothing further; drop their context.
	if out.Level == escalation.LevelBanned && out.ActionErr == nil && p.cfg.History != nil {
		p.cfg.History.Remove(ev.ChatID, ev.SenderID)
	}
	return d
}

// evaluate runs the checks in priority order and returns the first rule
// violated, or RuleNone.
func (p *Pipeline) evaluate(ctx context.Context, ev moderation.MessageEvent, text string, now time.Time) moderation.Rule {
	snap := p.cfg.Policy.Snapshot()

	if moderation.HasDisallowedLink(text, snap.WhitelistDomains) {
		return moderation.RuleLink
	}
	if moderation.ContainsBannedWord(text, snap.BannedKeywords) {
		return moderation.RuleKeyword
	}
	if p.cfg.Limiter.RecordAndCheck(ctx, ev.ChatID, ev.SenderID, now) {
		return moderation.RuleRate
	}
	return moderation.RuleNone
}

func (p *Pipeline) record(ctx context.Context, ev moderation.MessageEvent, d Decision) {
	entry := &audit.Entry{
		ID:           d.ID,
		ChatID:       ev.ChatID,
		UserID:       ev.SenderID,
		MessageID:    ev.MessageID,
		Rule:         string(d.Rule),
		Level:        string(d.Outcome.Level),
		WarnCount:    d.Outcome.Count,
		ActionFailed: d.Outcome.ActionErr != nil,
	}
	if p.cfg.History != nil {
		entry.Messages = p.cfg.History.Get(ev.ChatID, ev.SenderID)
	}
	if err := p.cfg.Recorder.Record(ctx, entry); err != nil {
		p.log.Warnw("failed to record audit entry", "id", d.ID, "err", err)
	}
}

func (p *Pipeline) publish(ev moderation.MessageEvent, d Decision) {
	if p.cfg.Results == nil {
		return
	}
	err := p.cfg.Results.PublishResult(moderation.ModerationResult{
		ID:        d.ID,
		ChatID:    ev.ChatID,
		SenderID:  ev.SenderID,
		MessageID: ev.MessageID,
		Rule:      d.Rule,
		Level:     string(d.Outcome.Level),
		Count:     d.Outcome.Count,
		Reason:    d.Outcome.Reason,
	})
	if err != nil {
		p.log.Warnw("failed to publish moderation result", "id", d.ID, "err", err)
	}
}
