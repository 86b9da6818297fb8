package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/api"
	"github.com/hkschools/admission-monitor/internal/app"
	"github.com/hkschools/admission-monitor/internal/auth"
	"github.com/hkschools/admission-monitor/internal/config"
	"github.com/hkschools/admission-monitor/internal/logging"
	"github.com/hkschools/admission-monitor/internal/scheduler"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.Build(ctx, cfg, log, app.Options{Registerer: prometheus.DefaultRegisterer, Migrate: true})
	if err != nil {
		return err
	}
	defer a.Close()

	var sched api.Scheduler
	if cfg.Scheduler.Enabled {
		s, err := scheduler.New(a.Monitor, scheduler.Config{
			Timezone:     cfg.Scheduler.Timezone,
			DailySpec:    cfg.Scheduler.DailySpec,
			WeeklySpec:   cfg.Scheduler.WeeklySpec,
			DigestSpec:   cfg.Scheduler.DigestSpec,
			ReminderSpec: cfg.Scheduler.ReminderSpec,
		}, log)
		if err != nil {
			return err
		}
		if err := s.Start(ctx); err != nil {
			return err
		}
		defer s.Stop()
		sched = s
	} else {
		log.Info("scheduler disabled")
	}

	authSvc, err := auth.NewService(a.Store, cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, log)
	if err != nil {
		return err
	}
	if cfg.Auth.AdminSecret == "" {
		log.Warn("ADMIN_SECRET is not set; admin endpoints will answer 503")
	}

	srv := api.NewServer(api.Deps{
		Store:     a.Store,
		Monitor:   a.Monitor,
		Auth:      authSvc,
		Scheduler: sched,
		Mailer:    a.Dispatcher,
		Gatherer:  prometheus.DefaultGatherer,
		Logger:    log,
	}, api.Config{
		AdminSecret: cfg.Auth.AdminSecret,
		CORSOrigins: cfg.Server.CORSOrigins,
		JobTimeout:  cfg.Monitor.LockTTL,
	})

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.Int("port", cfg.Server.Port))
		errCh <- srv.Start(cfg.Server.Port)
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown incomplete", zap.Error(err))
	}
	return nil
}
