package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"
	cli "github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/whisper/moderator/internal/messaging"
	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/loadtest/gateway"
	"github.com/whisper/moderator/loadtest/stats"
)

var floodCmd = &cli.Command{
	Name:  "flood",
	Usage: "publish a steady stream of mixed clean and violating messages",
	Flags: []cli.Flag{
		&cli.IntFlag{Name: "chats", Value: 10, Usage: "number of chats"},
		&cli.IntFlag{Name: "users", Value: 100, Usage: "members per chat"},
		&cli.Float64Flag{Name: "rate", Value: 200, Usage: "messages per second"},
		&cli.DurationFlag{Name: "duration", Value: 30 * time.Second},
		&cli.Float64Flag{Name: "violations", Value: 0.05, Usage: "fraction of messages carrying a link or banned keyword"},
		&cli.BoolFlag{Name: "fake-gateway", Value: true, Usage: "answer platform requests from this process"},
		&cli.DurationFlag{Name: "grace", Value: 3 * time.Second, Usage: "wait after the last message before reporting"},
	},
	Action: runFlood,
}

// Message bodies by kind. Keyword bodies use a default banned keyword.
var bodies = map[string][]string{
	"clean":   {"hi all", "anyone around?", "see github.com/whisper", "good morning", "lol"},
	"link":    {"join http://spam.example now", "free stuff https://bit.example/x"},
	"keyword": {"xxx videos", "free porn"},
}

func runFlood(cctx *cli.Context) error {
	chats := cctx.Int("chats")
	users := cctx.Int("users")
	perSecond := cctx.Float64("rate")
	if chats <= 0 || users <= 0 || perSecond <= 0 {
		return errors.New("chats, users and rate must be positive")
	}

	fmt.Printf("Flood test: %d chats x %d users at %.0f msg/s for %s (violations=%.0f%%)\n",
		chats, users, perSecond, cctx.Duration("duration"), cctx.Float64("violations")*100)

	opts := []nats.Option{nats.Name("whisper-loadtest")}
	if tok := cctx.String("bot-token"); tok != "" {
		opts = append(opts, nats.Token(tok))
	}
	nc, err := nats.Connect(cctx.String("nats-url"), opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Drain()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	collector := stats.NewCollector()
	if url := cctx.String("metrics-url"); url != "" {
		scraper := stats.NewScraper(url, 2*time.Second)
		scraper.Start(ctx)
		defer scraper.Stop()
		collector.SetScraper(scraper)
	}

	var gw *gateway.Gateway
	if cctx.Bool("fake-gateway") {
		gw, err = gateway.Start(nc, collector)
		if err != nil {
			return fmt.Errorf("start fake gateway: %w", err)
		}
		defer gw.Stop()
	}

	// Chat IDs are negative like real group chats; offset by run so repeated
	// runs against a long-lived moderator don't share counters.
	base := -rand.Int63n(1_000_000_000) - 1_000_000_000
	limiter := rate.NewLimiter(rate.Limit(perSecond), 1)
	runCtx, cancel := context.WithTimeout(ctx, cctx.Duration("duration"))
	defer cancel()

	var msgID atomic.Int64
	progress := time.NewTicker(time.Second)
	defer progress.Stop()
	last := 0

	for {
		if err := limiter.Wait(runCtx); err != nil {
			break
		}

		kind := "clean"
		if rand.Float64() < cctx.Float64("violations") {
			kind = "link"
			if rand.Intn(2) == 0 {
				kind = "keyword"
			}
		}
		texts := bodies[kind]

		ev := moderation.MessageEvent{
			ChatID:    base - int64(rand.Intn(chats)),
			MessageID: msgID.Add(1),
			SenderID:  int64(1 + rand.Intn(users)),
			Text:      texts[rand.Intn(len(texts))],
			Ts:        time.Now().Unix(),
		}
		data, _ := json.Marshal(ev)

		now := time.Now()
		if gw != nil && kind != "clean" {
			gw.Track(ev.MessageID, now)
		}
		if err := nc.Publish(messaging.SubjectMessage, data); err != nil {
			collector.AddError()
			continue
		}
		collector.AddSent(kind)

		select {
		case <-progress.C:
			sent := collector.SentCount()
			fmt.Printf("  sent=%d (+%d/s) deletes=%d bans=%d errors=%d\n",
				sent, sent-last, collector.ActionCount("delete"), collector.ActionCount("ban"), collector.ErrorCount())
			last = sent
		default:
		}
	}

	if ctx.Err() == nil {
		fmt.Printf("\nWaiting %s for in-flight moderation...\n", cctx.Duration("grace"))
		time.Sleep(cctx.Duration("grace"))
	}

	collector.Report()
	return nil
}
