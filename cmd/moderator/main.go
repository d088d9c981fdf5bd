package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/redis/go-redis/v9"
	cli "github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/whisper/moderator/internal/admin"
	"github.com/whisper/moderator/internal/audit"
	"github.com/whisper/moderator/internal/escalation"
	"github.com/whisper/moderator/internal/history"
	"github.com/whisper/moderator/internal/messaging"
	"github.com/whisper/moderator/internal/metrics"
	"github.com/whisper/moderator/internal/moderation"
	"github.com/whisper/moderator/internal/pipeline"
	"github.com/whisper/moderator/internal/platform"
	"github.com/whisper/moderator/internal/policy"
	"github.com/whisper/moderator/internal/ratelimit"
)

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "moderator: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	app := cli.App{
		Name:   "moderator",
		Usage:  "group chat moderation agent (links, keywords, flooding)",
		Flags:  flags(),
		Action: runModerator,
	}
	return app.Run(args)
}

func flags() []cli.Flag {
	nats := messaging.DefaultNATSConfig()
	return []cli.Flag{
		&cli.StringFlag{
			Name:     "bot-token",
			Usage:    "access token for the platform gateway",
			Required: true,
			EnvVars:  []string{"BOT_TOKEN"},
		},
		&cli.StringFlag{
			Name:    "nats-url",
			Value:   nats.URL,
			EnvVars: []string{"NATS_URL"},
		},
		&cli.StringFlag{
			Name:    "queue-group",
			Usage:   "NATS queue group shared by moderator replicas",
			Value:   nats.QueueGroup,
			EnvVars: []string{"QUEUE_GROUP"},
		},
		&cli.StringFlag{
			Name:    "state-backend",
			Usage:   "where rate windows and warning counters live: memory or redis",
			Value:   "memory",
			EnvVars: []string{"STATE_BACKEND"},
		},
		&cli.StringFlag{
			Name:    "redis-addr",
			Value:   "localhost:6379",
			EnvVars: []string{"REDIS_ADDR"},
		},
		&cli.StringFlag{
			Name:    "policy-file",
			Usage:   "YAML policy file; defaults apply when unset",
			EnvVars: []string{"POLICY_FILE"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics",
			Value:   ":9100",
			EnvVars: []string{"METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "audit-database-url",
			Usage:   "PostgreSQL URL for the audit trail; disabled when unset",
			EnvVars: []string{"AUDIT_DATABASE_URL"},
		},
		&cli.Float64Flag{
			Name:    "platform-rate-limit",
			Usage:   "max platform requests per second",
			Value:   25,
			EnvVars: []string{"PLATFORM_RATE_LIMIT"},
		},
		&cli.DurationFlag{
			Name:    "platform-timeout",
			Usage:   "how long to wait for the gateway to answer a platform request",
			Value:   5 * time.Second,
			EnvVars: []string{"PLATFORM_TIMEOUT"},
		},
	}
}

func runModerator(cctx *cli.Context) error {
	logger, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	log := logger.Sugar()

	cfg := policy.DefaultConfig()
	if path := cctx.String("policy-file"); path != "" {
		cfg, err = policy.LoadFile(path)
		if err != nil {
			return err
		}
	}
	policyStore := policy.NewStore(cfg)

	natsConfig := messaging.DefaultNATSConfig()
	natsConfig.URL = cctx.String("nats-url")
	natsConfig.Token = cctx.String("bot-token")
	natsConfig.QueueGroup = cctx.String("queue-group")

	nc, err := messaging.NewNATSClient(natsConfig, log.Named("nats"))
	if err != nil {
		return err
	}
	defer nc.Close()

	rps := cctx.Float64("platform-rate-limit")
	platformClient := platform.NewThrottled(
		messaging.NewPlatformClient(nc.Conn(), cctx.Duration("platform-timeout")),
		rps, max(1, int(rps)),
	)

	rule := ratelimit.MessageRule(cfg.MaxMessagesPerWindow, cfg.Window)
	var (
		limiter  ratelimit.Limiter
		counters escalation.CounterStore
	)
	switch backend := cctx.String("state-backend"); backend {
	case "memory":
		limiter = ratelimit.NewMemoryLimiter(rule)
		counters = escalation.NewMemoryCounterStore()
	case "redis":
		rdb := redis.NewClient(&redis.Options{Addr: cctx.String("redis-addr")})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := rdb.Ping(ctx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis: %w", err)
		}
		defer rdb.Close()
		limiter = ratelimit.NewRedisLimiter(rdb, rule, log.Named("ratelimit"))
		counters = escalation.NewRedisCounterStore(rdb)
	default:
		return fmt.Errorf("unknown state backend %q", backend)
	}

	var (
		recorder   audit.Recorder = audit.Nop{}
		violations admin.ViolationLog
	)
	if url := cctx.String("audit-database-url"); url != "" {
		if err := audit.Migrate(url); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		db, err := audit.Open(ctx, url)
		cancel()
		if err != nil {
			return err
		}
		defer db.Close()
		store := audit.NewStore(db)
		recorder, violations = store, store
	}

	engine := escalation.NewEngine(counters, platformClient, policyStore, log.Named("escalation"))

	pipe, err := pipeline.New(pipeline.Config{
		Policy:   policyStore,
		Limiter:  limiter,
		Engine:   engine,
		Platform: platformClient,
		Logger:   log.Named("pipeline"),
		History:  history.NewBuffer(0, time.Hour),
		Recorder: recorder,
		Results:  nc,
	})
	if err != nil {
		return err
	}

	dispatcher := admin.NewDispatcher(platformClient, log.Named("admin"))
	admin.RegisterPolicyCommands(dispatcher, policyStore)
	admin.RegisterWarnCommands(dispatcher, engine, policyStore, violations)

	// Handlers keep running on a background context so that messages still
	// in flight while NATS drains finish their platform calls.
	bg := context.Background()
	if err := nc.SubscribeMessages(natsConfig.QueueGroup, func(ev moderation.MessageEvent) {
		pipe.Process(bg, ev)
	}); err != nil {
		return err
	}
	if err := nc.SubscribeAdmin(natsConfig.QueueGroup, func(cmd moderation.AdminCommand) moderation.AdminReply {
		return dispatcher.Dispatch(bg, cmd)
	}); err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	metricsSrv := &http.Server{
		Addr:              cctx.String("metrics-listen"),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw("metrics listener failed", "err", err)
		}
	}()

	log.Infow("moderator running",
		"nats_url", natsConfig.URL,
		"queue_group", natsConfig.QueueGroup,
		"state_backend", cctx.String("state-backend"),
		"metrics_listen", metricsSrv.Addr,
		"audit", cctx.String("audit-database-url") != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()
	log.Infow("shutting down")
	nc.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Warnw("metrics shutdown", "err", err)
	}
	return nil
}
