// Package main implements a standalone end-to-end test for the chat
// moderator. It runs against a live moderator connected to NATS, plays the
// platform gateway itself, and checks the escalation behaviour a chat would
// see: link and keyword enforcement, flood detection, and admin commands.
//
// Usage:
//
//	go run ./loadtest/cmd/e2etest [--nats-url nats://localhost:4222] [--metrics-url http://localhost:9100/metrics]
//
// No real platform gateway may be attached to the same NATS server. Exit code
// 0 if all required scenarios pass, 1 if any fail.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	cli "github.com/urfave/cli/v2"

	"github.com/whisper/moderator/internal/messaging"
	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/loadtest/gateway"
)

// ---------------------------------------------------------------------------
// Result tracking
// ---------------------------------------------------------------------------

// resultKind categorises a scenario outcome.
type resultKind int

const (
	resultPass resultKind = iota
	resultFail
	resultInfo // optional / non-fatal
)

// scenarioResult holds the outcome of a single test scenario.
type scenarioResult struct {
	name   string
	kind   resultKind
	detail string
}

func (r scenarioResult) tag() string {
	switch r.kind {
	case resultPass:
		return "PASS"
	case resultFail:
		return "FAIL"
	default:
		return "INFO"
	}
}

// env is shared by all scenarios.
type env struct {
	nc      *nats.Conn
	gw      *gateway.Gateway
	base    int64 // chat IDs for this run are base-1, base-2, ...
	msgID   int64
	timeout time.Duration
}

func (e *env) chat(n int64) int64 { return e.base - n }

func (e *env) send(chatID, userID int64, text string) error {
	e.msgID++
	data, _ := json.Marshal(moderation.MessageEvent{
		ChatID:    chatID,
		MessageID: e.msgID,
		SenderID:  userID,
		Text:      text,
		Ts:        time.Now().Unix(),
	})
	return e.nc.Publish(messaging.SubjectMessage, data)
}

func (e *env) admin(chatID int64, text string) (string, error) {
	data, _ := json.Marshal(moderation.AdminCommand{ChatID: chatID, SenderID: 1, Text: text})
	msg, err := e.nc.Request(messaging.SubjectAdmin, data, e.timeout)
	if err != nil {
		return "", err
	}
	var reply moderation.AdminReply
	if err := json.Unmarshal(msg.Data, &reply); err != nil {
		return "", err
	}
	return reply.Text, nil
}

// ---------------------------------------------------------------------------
// Main
// ---------------------------------------------------------------------------

func main() {
	app := cli.App{
		Name:  "e2etest",
		Usage: "end-to-end checks against a running moderator",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "nats-url", Value: "nats://localhost:4222", EnvVars: []string{"NATS_URL"}},
			&cli.StringFlag{Name: "bot-token", EnvVars: []string{"BOT_TOKEN"}},
			&cli.StringFlag{Name: "metrics-url", Value: "http://localhost:9100/metrics"},
			&cli.DurationFlag{Name: "timeout", Value: 5 * time.Second, Usage: "per-scenario wait"},
		},
		Action: run,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "e2etest: %v\n", err)
		os.Exit(1)
	}
}

func run(cctx *cli.Context) error {
	fmt.Println("=== Whisper Moderator E2E Test ===")
	fmt.Printf("NATS: %s\n\n", cctx.String("nats-url"))

	opts := []nats.Option{nats.Name("whisper-e2etest")}
	if tok := cctx.String("bot-token"); tok != "" {
		opts = append(opts, nats.Token(tok))
	}
	nc, err := nats.Connect(cctx.String("nats-url"), opts...)
	if err != nil {
		return fmt.Errorf("connect to NATS: %w", err)
	}
	defer nc.Drain()

	gw, err := gateway.Start(nc, nil)
	if err != nil {
		return fmt.Errorf("start fake gateway: %w", err)
	}
	defer gw.Stop()

	e := &env{
		nc:      nc,
		gw:      gw,
		base:    -rand.Int63n(1_000_000_000) - 2_000_000_000,
		timeout: cctx.Duration("timeout"),
	}

	ctx := context.Background()
	results := []scenarioResult{
		scenarioMetrics(ctx, cctx.String("metrics-url")),
		scenarioWhitelist(e),
		scenarioLinkEscalation(e),
		scenarioFlood(e),
		scenarioRuntimeKeyword(e),
		scenarioCleanMessage(e),
	}

	// ---------------------------------------------------------------------------
	// Summary
	// ---------------------------------------------------------------------------
	fmt.Println()
	passed, failed, info := 0, 0, 0
	for _, r := range results {
		fmt.Printf("[%s] %s", r.tag(), r.name)
		if r.detail != "" {
			fmt.Printf(" (%s)", r.detail)
		}
		fmt.Println()

		switch r.kind {
		case resultPass:
			passed++
		case resultFail:
			failed++
		case resultInfo:
			info++
		}
	}

	fmt.Printf("\n=== Results: %d/%d passed", passed, passed+failed)
	if info > 0 {
		fmt.Printf(", %d info", info)
	}
	fmt.Println(" ===")

	if failed > 0 {
		return fmt.Errorf("%d scenario(s) failed", failed)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Scenarios
// ---------------------------------------------------------------------------

func scenarioMetrics(ctx context.Context, url string) scenarioResult {
	name := "Metrics endpoint"
	if url == "" {
		return scenarioResult{name, resultInfo, "skipped"}
	}

	body, err := httpGetBody(ctx, url)
	if err != nil {
		return scenarioResult{name, resultInfo, err.Error()}
	}
	if !strings.Contains(string(body), "whisper_moderation_policy_keywords") {
		return scenarioResult{name, resultFail, "missing whisper_moderation_policy_keywords"}
	}
	return scenarioResult{name, resultPass, ""}
}

func scenarioWhitelist(e *env) scenarioResult {
	name := "Admin /whitelist"

	reply, err := e.admin(e.chat(1), "/whitelist")
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	if !strings.HasPrefix(reply, "Whitelist domains:") {
		return scenarioResult{name, resultFail, fmt.Sprintf("reply %q", reply)}
	}
	return scenarioResult{name, resultPass, fmt.Sprintf("%d domains", strings.Count(reply, "\n"))}
}

func scenarioLinkEscalation(e *env) scenarioResult {
	name := "Link violations escalate warn -> mute -> ban"
	chat := e.chat(2)

	for i := 0; i < 3; i++ {
		if err := e.send(chat, 42, "check http://spam.example now"); err != nil {
			return scenarioResult{name, resultFail, err.Error()}
		}
		time.Sleep(100 * time.Millisecond)
	}

	got, ok := e.gw.WaitFor(chat, e.timeout, func(a []gateway.Action) bool {
		return gateway.Count(a, "delete") == 3 && gateway.Count(a, "ban") == 1
	})
	if !ok {
		return scenarioResult{name, resultFail, summarize(got)}
	}
	if gateway.Count(got, "restrict") != 1 {
		return scenarioResult{name, resultFail, "expected one mute: " + summarize(got)}
	}
	if !hasNotice(got, "Warned (1/3): links are not allowed.") {
		return scenarioResult{name, resultFail, "missing first warning notice"}
	}
	return scenarioResult{name, resultPass, summarize(got)}
}

func scenarioFlood(e *env) scenarioResult {
	name := "Flooding is rate limited"
	chat := e.chat(3)

	for i := 0; i < 7; i++ {
		if err := e.send(chat, 43, fmt.Sprintf("msg %d", i)); err != nil {
			return scenarioResult{name, resultFail, err.Error()}
		}
	}

	got, ok := e.gw.WaitFor(chat, e.timeout, func(a []gateway.Action) bool {
		return hasNoticeContaining(a, "sending messages too fast.")
	})
	if !ok {
		return scenarioResult{name, resultFail, summarize(got)}
	}
	return scenarioResult{name, resultPass, summarize(got)}
}

func scenarioRuntimeKeyword(e *env) scenarioResult {
	name := "Runtime keyword add/remove"
	chat := e.chat(4)
	word := fmt.Sprintf("e2eword%d", rand.Intn(1_000_000))

	reply, err := e.admin(chat, "/addbad "+word)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	if reply != "Added banned keyword: "+word {
		return scenarioResult{name, resultFail, fmt.Sprintf("addbad reply %q", reply)}
	}

	if err := e.send(chat, 44, "buy "+strings.ToUpper(word)+" today"); err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	got, ok := e.gw.WaitFor(chat, e.timeout, func(a []gateway.Action) bool {
		return gateway.Count(a, "delete") == 1
	})

	// Always clean up the keyword.
	reply, err = e.admin(chat, "/delbad "+word)
	if err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	if !ok {
		return scenarioResult{name, resultFail, "keyword not enforced: " + summarize(got)}
	}
	if reply != "Removed: "+word {
		return scenarioResult{name, resultFail, fmt.Sprintf("delbad reply %q", reply)}
	}
	return scenarioResult{name, resultPass, word}
}

func scenarioCleanMessage(e *env) scenarioResult {
	name := "Clean message passes"
	chat := e.chat(5)

	if err := e.send(chat, 45, "hello, docs at https://github.com/whisper"); err != nil {
		return scenarioResult{name, resultFail, err.Error()}
	}
	time.Sleep(time.Second)

	if got := e.gw.Actions(chat); len(got) > 0 {
		return scenarioResult{name, resultFail, summarize(got)}
	}
	return scenarioResult{name, resultPass, ""}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func hasNotice(actions []gateway.Action, text string) bool {
	return slices.ContainsFunc(actions, func(a gateway.Action) bool {
		return a.Kind == "notice" && a.Text == text
	})
}

func hasNoticeContaining(actions []gateway.Action, text string) bool {
	return slices.ContainsFunc(actions, func(a gateway.Action) bool {
		return a.Kind == "notice" && strings.Contains(a.Text, text)
	})
}

func summarize(actions []gateway.Action) string {
	return fmt.Sprintf("delete=%d restrict=%d ban=%d notice=%d",
		gateway.Count(actions, "delete"),
		gateway.Count(actions, "restrict"),
		gateway.Count(actions, "ban"),
		gateway.Count(actions, "notice"),
	)
}

func httpGetBody(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}
