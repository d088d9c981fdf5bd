// Package escalation turns accumulated policy violations into platform
// actions. Every violation adds a warning to the offender's counter; once the
// counter reaches the mute threshold the member is muted, and once it reaches
// the ban threshold the member is banned instead.
//
//	count < mute threshold          -> warned
//	mute threshold <= count < ban   -> warned + mute
//	count >= ban threshold          -> warned + ban
//
// Counters only grow. A failed mute or ban does not roll back the counter.
package escalation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/metrics"
	"github.com/whisper/moderator/internal/platform"
	"github.com/whisper/moderator/internal/policy"
)

// Level is the most severe step reached by a warning.
type Level string

const (
	LevelNone   Level = ""
	LevelWarned Level = "warned"
	LevelMuted  Level = "muted"
	LevelBanned Level = "banned"
)

// Outcome is the result of a single Warn call.
type Outcome struct {
	Level  Level
	Count  int
	Reason string
	// ActionErr is set when the mute or ban requested for Level failed.
	ActionErr error
}

// Platform is the subset of platform.Client the engine drives.
type Platform interface {
	RestrictMember(ctx context.Context, chatID, userID int64, perms platform.Permissions, until time.Time) error
	BanMember(ctx context.Context, chatID, userID int64) error
	SendNotice(ctx context.Context, chatID int64, text string) error
}

// PolicySource supplies the thresholds in force at the time of a warning.
type PolicySource interface {
	Snapshot() policy.Snapshot
}

// Engine is the escalation state machine.
type Engine struct {
	store    CounterStore
	platform Platform
	policy   PolicySource
	log      *zap.SugaredLogger
	now      func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock overrides the clock used to compute mute expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an Engine.
func NewEngine(store CounterStore, p Platform, src PolicySource, log *zap.SugaredLogger, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		platform: p,
		policy:   src,
		log:      log,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Warn records one violation for (chatID, userID), posts the warning notice
// and, depending on the new count, attempts a mute or a ban. At most one
// punitive action runs per call; ban takes priority.
func (e *Engine) Warn(ctx context.Context, chatID, userID int64, reason string) Outcome {
	p := e.policy.Snapshot()

	count, err := e.store.Increment(ctx, chatID, userID)
	if err != nil {
		// The message was already removed; without a count there is nothing
		// to escalate, so warn without a number.
		e.log.Errorw("failed to record warning", "chat", chatID, "user", userID, "err", err)
		e.notify(ctx, chatID, "Warned: "+reason)
		return Outcome{Level: LevelWarned, Reason: reason, ActionErr: err}
	}

	out := Outcome{Level: LevelWarned, Count: count, Reason: reason}
	e.notify(ctx, chatID, WarnNotice(count, p.WarnThresholdForBan, reason))

	switch {
	case count >= p.WarnThresholdForBan:
		out.Level = LevelBanned
		err := e.platform.BanMember(ctx, chatID, userID)
		metrics.RecordAction("ban", err)
		if err != nil {
			e.log.Warnw("ban failed", "chat", chatID, "user", userID, "count", count, "err", err)
			out.ActionErr = err
			e.notify(ctx, chatID, NoticeBanFailed)
			break
		}
		e.log.Infow("member banned", "chat", chatID, "user", userID, "count", count)
		e.notify(ctx, chatID, NoticeBanned)

	case count >= p.WarnThresholdForMute:
		out.Level = LevelMuted
		until := e.now().Add(p.MuteDuration)
		err := e.platform.RestrictMember(ctx, chatID, userID, platform.MutedPermissions(), until)
		metrics.RecordAction("mute", err)
		if err != nil {
			e.log.Warnw("mute failed", "chat", chatID, "user", userID, "count", count, "err", err)
			out.ActionErr = err
			e.notify(ctx, chatID, NoticeMuteFailed)
			break
		}
		e.log.Infow("member muted", "chat", chatID, "user", userID, "count", count, "until", until.Unix())
		e.notify(ctx, chatID, MutedNotice(p.MuteDuration))
	}

	return out
}

// Count returns the current warning count for (chatID, userID).
func (e *Engine) Count(ctx context.Context, chatID, userID int64) (int, error) {
	return e.store.Count(ctx, chatID, userID)
}

// notify posts a notice; failures are logged and otherwise ignored.
func (e *Engine) notify(ctx context.Context, chatID int64, text string) {
	err := e.platform.SendNotice(ctx, chatID, text)
	metrics.RecordAction("notice", err)
	if err != nil {
		e.log.Warnw("notice failed", "chat", chatID, "err", err)
	}
}
