package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carlmjohnson/versioninfo"
	_ "github.com/joho/godotenv/autoload"
	cli "github.com/urfave/cli/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	tracesdk "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"

	"github.com/termwatch/termwatch/store"
)

func main() {
	if err := run(os.Args); err != nil {
		slog.Error("exiting", "err", err)
		os.Exit(-1)
	}
}

func run(args []string) error {

	app := cli.App{
		Name:    "termwatchd",
		Usage:   "multi-account channel term monitoring daemon",
		Version: versioninfo.Short(),
	}

	app.Flags = []cli.Flag{
		&cli.StringFlag{
			Name:    "gateway-host",
			Usage:   "method, hostname, and port of the message gateway",
			Value:   "http://localhost:8700",
			EnvVars: []string{"GATEWAY_HOST"},
		},
		&cli.StringFlag{
			Name:    "gateway-admin-token",
			Usage:   "admin token for gateway session API",
			EnvVars: []string{"GATEWAY_ADMIN_TOKEN"},
		},
		&cli.IntFlag{
			Name:    "max-metadb-connections",
			EnvVars: []string{"MAX_METADB_CONNECTIONS"},
			Value:   40,
		},
	}

	app.Commands = []*cli.Command{
		runCmd,
	}

	return app.Run(args)
}

var runCmd = &cli.Command{
	Name:  "run",
	Usage: "run the monitoring service",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Value:   "sqlite://data/termwatch/termwatch.db",
			EnvVars: []string{"DATABASE_URL"},
		},
		&cli.StringFlag{
			Name:    "redis-url",
			Usage:   "redis connection for poll cursor persistence, like redis://localhost:6379/0",
			EnvVars: []string{"REDIS_URL"},
		},
		&cli.StringFlag{
			Name:    "bind",
			Usage:   "IP or address, and port, to listen on for the admin API",
			Value:   ":3900",
			EnvVars: []string{"TERMWATCH_BIND"},
		},
		&cli.StringFlag{
			Name:    "metrics-listen",
			Usage:   "IP or address, and port, to listen on for metrics APIs",
			Value:   ":3901",
			EnvVars: []string{"TERMWATCH_METRICS_LISTEN"},
		},
		&cli.StringFlag{
			Name:    "slack-webhook-url",
			Usage:   "Slack webhook for operator notifications; logs only when unset",
			EnvVars: []string{"SLACK_WEBHOOK_URL"},
		},
		&cli.StringFlag{
			Name:    "default-mode",
			Usage:   "mode seeded on first start: test or run",
			Value:   "test",
			EnvVars: []string{"DEFAULT_MODE"},
		},
		&cli.BoolFlag{
			Name:    "auto-start",
			Usage:   "begin monitoring at boot instead of waiting for POST /monitor/start",
			Value:   true,
			EnvVars: []string{"AUTO_START"},
		},
		&cli.DurationFlag{
			Name:    "report-delay-min",
			Usage:   "lower bound of the randomized report dispatch delay",
			Value:   60 * time.Second,
			EnvVars: []string{"REPORT_DELAY_MIN"},
		},
		&cli.DurationFlag{
			Name:    "report-delay-max",
			Usage:   "upper bound of the randomized report dispatch delay",
			Value:   180 * time.Second,
			EnvVars: []string{"REPORT_DELAY_MAX"},
		},
		&cli.IntFlag{
			Name:    "max-reports-per-hour",
			Usage:   "per-account hourly report budget",
			Value:   10,
			EnvVars: []string{"MAX_REPORTS_PER_HOUR"},
		},
		&cli.IntFlag{
			Name:    "max-reports-per-day",
			Usage:   "per-account daily report budget",
			Value:   50,
			EnvVars: []string{"MAX_REPORTS_PER_DAY"},
		},
		&cli.DurationFlag{
			Name:    "queue-tick",
			Usage:   "action queue consumer interval",
			Value:   30 * time.Second,
			EnvVars: []string{"QUEUE_TICK"},
		},
		&cli.DurationFlag{
			Name:    "action-ttl",
			Usage:   "max age of a queued report action before it expires",
			Value:   time.Hour,
			EnvVars: []string{"ACTION_TTL"},
		},
		&cli.DurationFlag{
			Name:    "poll-interval",
			Usage:   "interval of the poll fallback sweep",
			Value:   45 * time.Second,
			EnvVars: []string{"POLL_INTERVAL"},
		},
		&cli.IntFlag{
			Name:    "poll-page-size",
			Usage:   "max messages fetched per channel per poll sweep",
			Value:   20,
			EnvVars: []string{"POLL_PAGE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "reconnect-max-attempts",
			Usage:   "reconnect attempts per stream break before giving an account up",
			Value:   5,
			EnvVars: []string{"RECONNECT_MAX_ATTEMPTS"},
		},
		&cli.DurationFlag{
			Name:    "reconnect-base-delay",
			Usage:   "first reconnect delay; doubles each attempt",
			Value:   time.Second,
			EnvVars: []string{"RECONNECT_BASE_DELAY"},
		},
		&cli.IntFlag{
			Name:    "ingest-rate-limit",
			Usage:   "max push events per second accepted per account",
			Value:   100,
			EnvVars: []string{"INGEST_RATE_LIMIT"},
		},
		&cli.IntFlag{
			Name:    "gateway-fetch-rate-limit",
			Usage:   "max history fetch requests per second to the gateway, per account",
			Value:   4,
			EnvVars: []string{"GATEWAY_FETCH_RATE_LIMIT"},
		},
	},
	Action: func(cctx *cli.Context) error {
		ctx := context.Background()
		logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		slog.SetDefault(logger)

		// Enable OTLP HTTP exporter
		// For relevant environment variables:
		// https://pkg.go.dev/go.opentelemetry.io/otel/exporters/otlp/otlptrace#readme-environment-variables
		// At a minimum, you need to set
		// OTEL_EXPORTER_OTLP_ENDPOINT=http://localhost:4318
		if ep := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); ep != "" {
			slog.Info("setting up trace exporter", "endpoint", ep)
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			exp, err := otlptracehttp.New(ctx)
			if err != nil {
				log.Fatal("failed to create trace exporter", "error", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := exp.Shutdown(ctx); err != nil {
					slog.Error("failed to shutdown trace exporter", "error", err)
				}
			}()

			tp := tracesdk.NewTracerProvider(
				tracesdk.WithBatcher(exp),
				tracesdk.WithResource(resource.NewWithAttributes(
					semconv.SchemaURL,
					semconv.ServiceNameKey.String("termwatchd"),
					attribute.String("env", os.Getenv("ENVIRONMENT")),         // DataDog
					attribute.String("environment", os.Getenv("ENVIRONMENT")), // Others
					attribute.Int64("ID", 1),
				)),
			)
			otel.SetTracerProvider(tp)
		}

		db, err := store.SetupDatabase(cctx.String("database-url"), cctx.Int("max-metadb-connections"))
		if err != nil {
			return err
		}

		defaultMode, err := store.ParseMode(cctx.String("default-mode"))
		if err != nil {
			return err
		}

		srv, err := NewServer(db, Config{
			Logger:               logger,
			GatewayHost:          cctx.String("gateway-host"),
			GatewayAdminToken:    cctx.String("gateway-admin-token"),
			GatewayFetchLimit:    cctx.Int("gateway-fetch-rate-limit"),
			RedisURL:             cctx.String("redis-url"),
			SlackWebhookURL:      cctx.String("slack-webhook-url"),
			DefaultMode:          defaultMode,
			ReportDelayMin:       cctx.Duration("report-delay-min"),
			ReportDelayMax:       cctx.Duration("report-delay-max"),
			MaxReportsPerHour:    cctx.Int("max-reports-per-hour"),
			MaxReportsPerDay:     cctx.Int("max-reports-per-day"),
			QueueTick:            cctx.Duration("queue-tick"),
			ActionTTL:            cctx.Duration("action-ttl"),
			PollInterval:         cctx.Duration("poll-interval"),
			PollPageSize:         cctx.Int("poll-page-size"),
			ReconnectMaxAttempts: cctx.Int("reconnect-max-attempts"),
			ReconnectBaseDelay:   cctx.Duration("reconnect-base-delay"),
			IngestRateLimit:      cctx.Int("ingest-rate-limit"),
		})
		if err != nil {
			return err
		}

		go func() {
			if err := srv.RunMetrics(cctx.String("metrics-listen")); err != nil {
				slog.Error("failed to start metrics endpoint", "error", err)
				panic(fmt.Errorf("failed to start metrics endpoint: %w", err))
			}
		}()

		go func() {
			if err := srv.RunAPI(cctx.String("bind")); err != nil {
				slog.Error("failed to start admin API", "error", err)
				panic(fmt.Errorf("failed to start admin API: %w", err))
			}
		}()

		if cctx.Bool("auto-start") {
			if err := srv.monitor.Start(ctx); err != nil {
				logger.Error("monitoring auto-start failed", "err", err)
			}
		}

		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		sig := <-quit
		logger.Info("shutting down", "signal", sig.String())
		return srv.Shutdown(ctx)
	},
}
