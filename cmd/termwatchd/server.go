package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/labstack/echo-contrib/echoprometheus"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	slogecho "github.com/samber/slog-echo"
	"gorm.io/gorm"

	"github.com/termwatch/termwatch/monitor"
	"github.com/termwatch/termwatch/notify"
	"github.com/termwatch/termwatch/queue"
	"github.com/termwatch/termwatch/session"
	"github.com/termwatch/termwatch/stats"
	"github.com/termwatch/termwatch/store"
)

type Server struct {
	logger  *slog.Logger
	echo    *echo.Echo
	store   store.Store
	pool    *session.Pool
	queue   *queue.Queue
	monitor *monitor.Monitor
	stats   *stats.Collector
}

type Config struct {
	Logger            *slog.Logger
	GatewayHost       string
	GatewayAdminToken string
	GatewayFetchLimit int
	RedisURL          string
	SlackWebhookURL   string
	DefaultMode       store.Mode

	ReportDelayMin       time.Duration
	ReportDelayMax       time.Duration
	MaxReportsPerHour    int
	MaxReportsPerDay     int
	QueueTick            time.Duration
	ActionTTL            time.Duration
	PollInterval         time.Duration
	PollPageSize         int
	ReconnectMaxAttempts int
	ReconnectBaseDelay   time.Duration
	IngestRateLimit      int
}

func NewServer(db *gorm.DB, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	st, err := store.NewGormStore(db, config.DefaultMode)
	if err != nil {
		return nil, err
	}

	var rdb *redis.Client
	if config.RedisURL != "" {
		opt, err := redis.ParseURL(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis URL: %v", err)
		}
		rdb = redis.NewClient(opt)
		if _, err := rdb.Ping(context.TODO()).Result(); err != nil {
			return nil, fmt.Errorf("redis ping failed: %v", err)
		}
	}

	var notifier notify.Notifier = &notify.LogNotifier{Logger: logger}
	if config.SlackWebhookURL != "" {
		notifier = notify.Multi{
			&notify.LogNotifier{Logger: logger},
			&notify.SlackNotifier{WebhookURL: config.SlackWebhookURL, Logger: logger},
		}
	}

	pool := session.NewPool(logger, session.NewGatewayFactory(session.GatewayConfig{
		Host:           config.GatewayHost,
		AdminToken:     config.GatewayAdminToken,
		FetchRateLimit: config.GatewayFetchLimit,
		Logger:         logger,
	}))

	// reports go out through the session that observed the hit
	dispatch := func(ctx context.Context, accountID, chatID string, messageID int64) error {
		sess, ok := pool.Get(accountID)
		if !ok {
			return session.ErrNoSession
		}
		return sess.Client().Report(ctx, chatID, messageID)
	}

	q := queue.New(logger, queue.Config{
		Tick:     config.QueueTick,
		TTL:      config.ActionTTL,
		DelayMin: config.ReportDelayMin,
		DelayMax: config.ReportDelayMax,
		Limits: queue.RateLimits{
			PerHour: config.MaxReportsPerHour,
			PerDay:  config.MaxReportsPerDay,
		},
	}, dispatch, notifier)

	collector := stats.NewCollector(st, logger)

	mon := monitor.New(logger, monitor.Config{
		PollInterval:         config.PollInterval,
		PollPageSize:         config.PollPageSize,
		ReconnectBaseDelay:   config.ReconnectBaseDelay,
		ReconnectMaxAttempts: config.ReconnectMaxAttempts,
		IngestRateLimit:      int64(config.IngestRateLimit),
	}, st, pool, q, collector, notifier, rdb)

	s := &Server{
		logger:  logger,
		store:   st,
		pool:    pool,
		queue:   q,
		monitor: mon,
		stats:   collector,
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(slogecho.New(logger))
	e.Use(middleware.Recover())
	e.Use(echoprometheus.NewMiddleware("termwatchd"))
	s.registerRoutes(e)
	s.echo = e

	return s, nil
}

// RunAPI serves the admin HTTP API until the listener fails or the server
// shuts down.
func (s *Server) RunAPI(listen string) error {
	s.logger.Info("admin API listening", "bind", listen)
	err := s.echo.Start(listen)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Shutdown stops monitoring and the admin listener.
func (s *Server) Shutdown(ctx context.Context) error {
	s.monitor.Stop(ctx)

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return s.echo.Shutdown(shutdownCtx)
}
