package admin

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/internal/policy"
)

type fakeNotifier struct {
	notices []string
	err     error
}

func (f *fakeNotifier) SendNotice(_ context.Context, _ int64, text string) error {
	f.notices = append(f.notices, text)
	return f.err
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *policy.Store, *fakeNotifier) {
	t.Helper()
	n := &fakeNotifier{}
	store := policy.NewStore(policy.DefaultConfig())
	d := NewDispatcher(n, zap.NewNop().Sugar())
	RegisterPolicyCommands(d, store)
	return d, store, n
}

func run(d *Dispatcher, text string) string {
	return d.Dispatch(context.Background(), moderation.AdminCommand{ChatID: -100, SenderID: 1, Text: text}).Text
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		text     string
		wantName string
		wantArg  string
		wantOK   bool
	}{
		{"/addbad casino", "addbad", "casino", true},
		{"/addbad   free   money  ", "addbad", "free   money", true},
		{"/addbad@whisper_bot casino", "addbad", "casino", true},
		{"/whitelist", "whitelist", "", true},
		{"/addbad\ncasino", "addbad", "", true},
		{"/addbad\tcasino", "addbad", "", true},
		{"/addbad\nfree money", "addbad", "money", true},
		{"/whitelist\n", "whitelist", "", true},
		{"  /whitelist", "whitelist", "", true},
		{"hello", "", "", false},
		{"/", "", "", false},
		{"", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			name, arg, ok := ParseCommand(tt.text)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArg, arg)
		})
	}
}

func TestWhitelist(t *testing.T) {
	d, _, n := newTestDispatcher(t)

	got := run(d, "/whitelist")
	assert.Equal(t, "Whitelist domains:\nt.me\ntelegram.me\nplay.google.com\ngithub.com\ngithub.io", got)
	assert.Equal(t, []string{got}, n.notices)
}

func TestAddBad(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	assert.Equal(t, "Added banned keyword: casino", run(d, "/addbad casino"))
	assert.Contains(t, store.Keywords(), "casino")

	assert.Equal(t, UsageAddBad, run(d, "/addbad"))
	assert.Equal(t, UsageAddBad, run(d, "/addbad    "))
	assert.Equal(t, UsageAddBad, run(d, "/addbad\nroulette"))
	assert.NotContains(t, store.Keywords(), "roulette")
}

func TestDelBad(t *testing.T) {
	d, store, _ := newTestDispatcher(t)

	run(d, "/addbad Casino")
	run(d, "/addbad casino")

	assert.Equal(t, "Removed: CASINO", run(d, "/delbad CASINO"))
	assert.NotContains(t, store.Keywords(), "casino")
	assert.NotContains(t, store.Keywords(), "Casino")

	assert.Equal(t, ReplyNotFound, run(d, "/delbad casino"))
	assert.Equal(t, UsageDelBad, run(d, "/delbad"))
}

func TestDispatch_Unknown(t *testing.T) {
	d, _, n := newTestDispatcher(t)

	assert.Empty(t, run(d, "/start"))
	assert.Empty(t, run(d, "just chatting"))
	assert.Empty(t, n.notices)
}

func TestDispatch_NoticeFailureStillReplies(t *testing.T) {
	d, _, n := newTestDispatcher(t)
	n.err = errors.New("chat not found")

	assert.Equal(t, "Added banned keyword: x", run(d, "/addbad x"))
}

func TestRegister_Replaces(t *testing.T) {
	d := NewDispatcher(nil, zap.NewNop().Sugar())
	d.Register("ping", func(context.Context, moderation.AdminCommand, string) string { return "a" })
	d.Register("ping", func(context.Context, moderation.AdminCommand, string) string { return "b" })

	require.Equal(t, "b", run(d, "/ping"))
}
