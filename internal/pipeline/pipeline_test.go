package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/audit"
	"github.com/whisper/moderator/internal/escalation"
	"github.com/whisper/moderator/internal/history"
	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/internal/platform"
	"github.com/whisper/moderator/internal/policy"
	"github.com/whisper/moderator/internal/ratelimit"
)

type fakePlatform struct {
	mu        sync.Mutex
	deleted   []platform.MessageRef
	restricts int
	bans      int
	notices   []string
	deleteErr error
	banErr    error
}

func (f *fakePlatform) DeleteMessage(_ context.Context, ref platform.MessageRef) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, ref)
	return f.deleteErr
}

func (f *fakePlatform) RestrictMember(context.Context, int64, int64, platform.Permissions, time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.restricts++
	return nil
}

func (f *fakePlatform) BanMember(context.Context, int64, int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bans++
	return f.banErr
}

func (f *fakePlatform) SendNotice(_ context.Context, _ int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notices = append(f.notices, text)
	return nil
}

type fakeRecorder struct {
	entries []*audit.Entry
}

func (r *fakeRecorder) Record(_ context.Context, e *audit.Entry) error {
	r.entries = append(r.entries, e)
	return nil
}

type fakePublisher struct {
	results []moderation.ModerationResult
}

func (p *fakePublisher) PublishResult(res moderation.ModerationResult) error {
	p.results = append(p.results, res)
	return nil
}

type harness struct {
	pipe     *Pipeline
	platform *fakePlatform
	recorder *fakeRecorder
	results  *fakePublisher
	history  *history.Buffer
	now      time.Time
}

func newHarness(t *testing.T, cfg policy.Config) *harness {
	t.Helper()

	h := &harness{
		platform: &fakePlatform{},
		recorder: &fakeRecorder{},
		results:  &fakePublisher{},
		history:  history.NewBuffer(0, 0),
		now:      time.Unix(1_700_000_000, 0),
	}
	clock := func() time.Time { return h.now }

	store := policy.NewStore(cfg)
	log := zap.NewNop().Sugar()
	engine := escalation.NewEngine(escalation.NewMemoryCounterStore(), h.platform, store, log, escalation.WithClock(clock))

	pipe, err := New(Config{
		Policy:   store,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.MessageRule(cfg.MaxMessagesPerWindow, cfg.Window)),
		Engine:   engine,
		Platform: h.platform,
		Logger:   log,
		History:  h.history,
		Recorder: h.recorder,
		Results:  h.results,
		Now:      clock,
	})
	require.NoError(t, err)
	h.pipe = pipe
	return h
}

func msg(id int64, text string) moderation.MessageEvent {
	return moderation.MessageEvent{ChatID: -100, MessageID: id, SenderID: 7, Text: text}
}

func TestNew_RequiresCollaborators(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}

func TestProcess_CleanMessage(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())

	d := h.pipe.Process(context.Background(), msg(1, "hello, see github.com/x/y"))
	assert.False(t, d.Violation())
	assert.False(t, d.Skipped)
	assert.Empty(t, h.platform.deleted)
	assert.Empty(t, h.platform.notices)
}

func TestProcess_Skips(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	bot := msg(1, "http://spam.xyz")
	bot.IsBot = true
	noChat := msg(2, "http://spam.xyz")
	noChat.ChatID = 0
	noSender := msg(3, "http://spam.xyz")
	noSender.SenderID = 0

	for _, ev := range []moderation.MessageEvent{bot, noChat, noSender} {
		d := h.pipe.Process(ctx, ev)
		assert.True(t, d.Skipped)
	}
	assert.Empty(t, h.platform.deleted)
}

func TestProcess_LinkEscalatesToBan(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	d1 := h.pipe.Process(ctx, msg(1, "check http://spam.xyz now"))
	assert.Equal(t, moderation.RuleLink, d1.Rule)
	assert.Equal(t, escalation.LevelWarned, d1.Outcome.Level)
	assert.Contains(t, h.platform.notices, "Warned (1/3): links are not allowed.")

	d2 := h.pipe.Process(ctx, msg(2, "check http://spam.xyz now"))
	assert.Equal(t, escalation.LevelMuted, d2.Outcome.Level)
	assert.Equal(t, 1, h.platform.restricts)

	d3 := h.pipe.Process(ctx, msg(3, "check http://spam.xyz now"))
	assert.Equal(t, escalation.LevelBanned, d3.Outcome.Level)
	assert.Equal(t, 3, d3.Outcome.Count)
	assert.Equal(t, 1, h.platform.bans)
	assert.Contains(t, h.platform.notices, escalation.NoticeBanned)

	assert.Len(t, h.platform.deleted, 3)
	assert.Equal(t, platform.MessageRef{ChatID: -100, MessageID: 3}, h.platform.deleted[2])
}

func TestProcess_BanClearsHistory(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		h.pipe.Process(ctx, msg(i, "check http://spam.xyz now"))
	}

	require.Len(t, h.recorder.entries, 3)
	assert.Len(t, h.recorder.entries[2].Messages, 3, "audit entry keeps the context")
	assert.Empty(t, h.history.Get(-100, 7))
}

func TestProcess_FailedBanKeepsHistory(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	h.platform.banErr = errors.New("not enough rights")
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		h.pipe.Process(ctx, msg(i, "check http://spam.xyz now"))
	}

	assert.Len(t, h.history.Get(-100, 7), 3)
}

func TestProcess_KeywordInCaption(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())

	ev := moderation.MessageEvent{ChatID: -100, MessageID: 1, SenderID: 7, Caption: "Free PORN here"}
	d := h.pipe.Process(context.Background(), ev)
	assert.Equal(t, moderation.RuleKeyword, d.Rule)
	assert.Contains(t, h.platform.notices, "Warned (1/3): content violates the group rules.")
}

func TestProcess_LinkTakesPriorityOverKeyword(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())

	d := h.pipe.Process(context.Background(), msg(1, "porn at https://spam.xyz"))
	assert.Equal(t, moderation.RuleLink, d.Rule)
}

func TestProcess_RateLimit(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	for i := int64(1); i <= 6; i++ {
		d := h.pipe.Process(ctx, msg(i, "hi"))
		require.False(t, d.Violation(), "message %d", i)
		h.now = h.now.Add(100 * time.Millisecond)
	}

	d := h.pipe.Process(ctx, msg(7, "hi"))
	assert.Equal(t, moderation.RuleRate, d.Rule)
	assert.Contains(t, h.platform.notices, "Warned (1/3): sending messages too fast.")
}

func TestProcess_RateWindowSlides(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	for i := int64(1); i <= 6; i++ {
		require.False(t, h.pipe.Process(ctx, msg(i, "hi")).Violation())
	}
	h.now = h.now.Add(10 * time.Second)
	assert.False(t, h.pipe.Process(ctx, msg(7, "hi")).Violation())
}

func TestProcess_RejectedMessagesAreNotRateCounted(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	for i := int64(1); i <= 5; i++ {
		require.False(t, h.pipe.Process(ctx, msg(i, "hi")).Violation())
	}
	require.Equal(t, moderation.RuleLink, h.pipe.Process(ctx, msg(6, "http://spam.xyz")).Rule)

	// Sixth recorded message, still within the limit.
	assert.False(t, h.pipe.Process(ctx, msg(7, "hi")).Violation())
}

func TestProcess_DeleteFailureStillWarns(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	h.platform.deleteErr = errors.New("message can't be deleted")

	d := h.pipe.Process(context.Background(), msg(1, "http://spam.xyz"))
	assert.Equal(t, escalation.LevelWarned, d.Outcome.Level)
	assert.Equal(t, 1, d.Outcome.Count)
	assert.NoError(t, d.Outcome.ActionErr)
}

func TestProcess_RecordsAndPublishes(t *testing.T) {
	h := newHarness(t, policy.DefaultConfig())
	ctx := context.Background()

	h.pipe.Process(ctx, msg(1, "hello"))
	d := h.pipe.Process(ctx, msg(2, "visit http://spam.xyz"))

	require.Len(t, h.recorder.entries, 1)
	e := h.recorder.entries[0]
	assert.Equal(t, d.ID, e.ID)
	assert.Equal(t, "link", e.Rule)
	assert.Equal(t, "warned", e.Level)
	assert.Equal(t, 1, e.WarnCount)
	require.Len(t, e.Messages, 2)
	assert.Equal(t, "hello", e.Messages[0].Text)

	require.Len(t, h.results.results, 1)
	res := h.results.results[0]
	assert.Equal(t, d.ID, res.ID)
	assert.Equal(t, moderation.RuleLink, res.Rule)
	assert.Equal(t, int64(2), res.MessageID)
	assert.Equal(t, "links are not allowed.", res.Reason)
}

func TestProcess_KeywordAddedAtRuntime(t *testing.T) {
	cfg := policy.DefaultConfig()
	store := policy.NewStore(cfg)
	fp := &fakePlatform{}
	log := zap.NewNop().Sugar()

	pipe, err := New(Config{
		Policy:   store,
		Limiter:  ratelimit.NewMemoryLimiter(ratelimit.MessageRule(cfg.MaxMessagesPerWindow, cfg.Window)),
		Engine:   escalation.NewEngine(escalation.NewMemoryCounterStore(), fp, store, log),
		Platform: fp,
		Logger:   log,
	})
	require.NoError(t, err)

	ctx := context.Background()
	assert.False(t, pipe.Process(ctx, msg(1, "cheap casino chips")).Violation())

	store.AddKeyword("casino")
	assert.Equal(t, moderation.RuleKeyword, pipe.Process(ctx, msg(2, "cheap casino chips")).Rule)
}
