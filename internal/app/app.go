// Package app wires configuration into the long-lived collaborators shared by
// the server and the CLI.
package app

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/config"
	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/ingest"
	"github.com/hkschools/admission-monitor/internal/lock"
	"github.com/hkschools/admission-monitor/internal/monitor"
	"github.com/hkschools/admission-monitor/internal/notify"
)

type App struct {
	Config     *config.Config
	Log        *zap.Logger
	Pool       *pgxpool.Pool
	Store      *db.Store
	Monitor    *monitor.Service
	Dispatcher *notify.Dispatcher
	Metrics    *monitor.Metrics

	redis *redis.Client
}

// Options tune Build for the caller.
type Options struct {
	// Registerer receives the monitor metrics. Nil keeps them unregistered.
	Registerer prometheus.Registerer
	// Migrate applies pending migrations after connecting.
	Migrate bool
}

// Build connects to Postgres (and Redis when configured) and assembles the
// monitor service.
func Build(ctx context.Context, cfg *config.Config, log *zap.Logger, opts Options) (*App, error) {
	pool, err := db.Connect(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if opts.Migrate {
		if err := db.ApplyMigrations(ctx, pool); err != nil {
			pool.Close()
			return nil, err
		}
	}

	a := &App{Config: cfg, Log: log, Pool: pool, Store: db.NewStore(pool)}

	var locker lock.Locker = lock.NewLocalLocker()
	if cfg.Redis.URL != "" {
		client, err := lock.NewRedisClient(ctx, cfg.Redis.URL)
		if err != nil {
			pool.Close()
			return nil, err
		}
		a.redis = client
		locker = lock.NewRedisLocker(client)
		log.Info("batch lock backed by redis")
	}

	a.Metrics = monitor.NewMetrics(opts.Registerer)

	a.Dispatcher, err = NewDispatcher(cfg, a.Metrics, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.Monitor = monitor.NewService(monitor.Deps{
		Store:    a.Store,
		Fetcher:  NewFetcher(cfg.Monitor, log),
		Notifier: a.Dispatcher,
		Locker:   locker,
		Metrics:  a.Metrics,
		Logger:   log,
	}, monitor.Config{
		RequestDelay:   cfg.Monitor.RequestDelay,
		AnalyzeTimeout: cfg.Monitor.AnalyzeTimeout,
		LockTTL:        cfg.Monitor.LockTTL,
		ReminderWindow: cfg.Monitor.ReminderWindow,
	})
	return a, nil
}

// NewFetcher picks the page fetcher named by cfg.Fetcher.
func NewFetcher(cfg config.MonitorConfig, log *zap.Logger) ingest.Fetcher {
	fc := ingest.FetchConfig{
		Timeout:           cfg.FetchTimeout,
		MaxRetries:        cfg.MaxRetries,
		AllowPrivateHosts: cfg.AllowPrivateHosts,
	}
	if cfg.Fetcher == "colly" {
		return ingest.NewCollyFetcher(fc, log)
	}
	return ingest.NewHTTPFetcher(fc)
}

// NewDispatcher builds the email channel and, with a bot token, the Telegram
// channel. recorder may be nil.
func NewDispatcher(cfg *config.Config, recorder notify.DeliveryRecorder, log *zap.Logger) (*notify.Dispatcher, error) {
	renderer, err := notify.NewRenderer(cfg.Email.FrontendURL)
	if err != nil {
		return nil, fmt.Errorf("load email templates: %w", err)
	}
	mailer := notify.NewEmailSender(notify.EmailConfig{
		Host:     cfg.Email.Host,
		Port:     cfg.Email.Port,
		User:     cfg.Email.User,
		Password: cfg.Email.Password,
		From:     cfg.Email.From,
	})
	if !mailer.Enabled() {
		log.Warn("email credentials not set; email delivery disabled")
	}

	var pusher notify.Pusher
	if cfg.Telegram.BotToken != "" {
		tg, err := notify.NewTelegramSender(cfg.Telegram.BotToken)
		if err != nil {
			log.Warn("telegram disabled", zap.Error(err))
		} else {
			pusher = tg
		}
	}
	return notify.NewDispatcher(renderer, mailer, pusher, recorder, log), nil
}

func (a *App) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.Log.Warn("close redis", zap.Error(err))
		}
	}
	a.Pool.Close()
}
