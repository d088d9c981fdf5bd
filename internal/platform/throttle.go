package platform

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Throttled wraps a Client so that outbound calls never exceed the platform's
// request budget. Each call waits for a token; a cancelled context aborts the
// wait and is returned as the call's error.
type Throttled struct {
	next    Client
	limiter *rate.Limiter
}

// NewThrottled allows perSecond calls per second with bursts of burst.
func NewThrottled(next Client, perSecond float64, burst int) *Throttled {
	return &Throttled{
		next:    next,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (t *Throttled) wait(ctx context.Context, op string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("platform: %s: throttle: %w", op, err)
	}
	return nil
}

func (t *Throttled) DeleteMessage(ctx context.Context, ref MessageRef) error {
	if err := t.wait(ctx, "delete"); err != nil {
		return err
	}
	return t.next.DeleteMessage(ctx, ref)
}

func (t *Throttled) RestrictMember(ctx context.Context, chatID, userID int64, perms Permissions, until time.Time) error {
	if err := t.wait(ctx, "restrict"); err != nil {
		return err
	}
	return t.next.RestrictMember(ctx, chatID, userID, perms, until)
}

func (t *Throttled) BanMember(ctx context.Context, chatID, userID int64) error {
	if err := t.wait(ctx, "ban"); err != nil {
		return err
	}
	return t.next.BanMember(ctx, chatID, userID)
}

func (t *Throttled) SendNotice(ctx context.Context, chatID int64, text string) error {
	if err := t.wait(ctx, "notice"); err != nil {
		return err
	}
	return t.next.SendNotice(ctx, chatID, text)
}
