package platform

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingClient struct {
	deletes, restricts, bans, notices int
	lastUntil                         time.Time
}

func (c *countingClient) DeleteMessage(context.Context, MessageRef) error { c.deletes++; return nil }

func (c *countingClient) RestrictMember(_ context.Context, _, _ int64, _ Permissions, until time.Time) error {
	c.restricts++
	c.lastUntil = until
	return nil
}

func (c *countingClient) BanMember(context.Context, int64, int64) error { c.bans++; return nil }

func (c *countingClient) SendNotice(context.Context, int64, string) error { c.notices++; return nil }

func TestThrottledForwards(t *testing.T) {
	next := &countingClient{}
	th := NewThrottled(next, 1000, 10)
	ctx := context.Background()
	until := time.Unix(1_800_000_000, 0)

	require.NoError(t, th.DeleteMessage(ctx, MessageRef{ChatID: 1, MessageID: 2}))
	require.NoError(t, th.RestrictMember(ctx, 1, 2, MutedPermissions(), until))
	require.NoError(t, th.BanMember(ctx, 1, 2))
	require.NoError(t, th.SendNotice(ctx, 1, "hi"))

	assert.Equal(t, 1, next.deletes)
	assert.Equal(t, 1, next.restricts)
	assert.Equal(t, 1, next.bans)
	assert.Equal(t, 1, next.notices)
	assert.Equal(t, until, next.lastUntil)
}

func TestThrottledCancelledContext(t *testing.T) {
	next := &countingClient{}
	// one token, refilled once a minute
	th := NewThrottled(next, 1.0/60, 1)

	require.NoError(t, th.SendNotice(context.Background(), 1, "first"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := th.SendNotice(ctx, 1, "second")
	assert.Error(t, err)
	assert.Equal(t, 1, next.notices)
}

func TestMutedPermissionsRevokeEverything(t *testing.T) {
	assert.Equal(t, Permissions{}, MutedPermissions())
}
