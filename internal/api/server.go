// Package api exposes the monitor over HTTP with echo.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/auth"
	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/scheduler"
)

// Store is the persistence the handlers read and edit directly.
type Store interface {
	ListTargets(ctx context.Context, f models.TargetFilter) ([]models.MonitorTarget, int, error)
	GetTarget(ctx context.Context, schoolNo string) (*models.MonitorTarget, error)
	CreateTarget(ctx context.Context, t *models.MonitorTarget) error
	PatchTarget(ctx context.Context, schoolNo string, p models.TargetPatch) (*models.MonitorTarget, error)
	ToggleTarget(ctx context.Context, schoolNo string) (*models.MonitorTarget, error)
	DeleteTarget(ctx context.Context, schoolNo string) error
	Stats(ctx context.Context) (*models.MonitoringStats, error)
	ListApplicationStatuses(ctx context.Context) ([]models.MonitorTarget, error)
	ListUserNotifications(ctx context.Context, userID uuid.UUID, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, userID, id uuid.UUID, at time.Time) (*models.Notification, error)
}

// Monitor is implemented by *monitor.Service.
type Monitor interface {
	MonitorSchool(ctx context.Context, schoolNo string) models.MonitorResult
	MonitorAll(ctx context.Context) (*models.BatchResult, error)
	AnalyzePage(ctx context.Context, url string) (*models.PageAnalysis, error)
}

// Scheduler is implemented by *scheduler.Scheduler.
type Scheduler interface {
	Status() scheduler.Status
	Trigger(name string) error
	Stop()
	Restart(ctx context.Context) error
}

// TestMailer is implemented by *notify.Dispatcher.
type TestMailer interface {
	SendTest(ctx context.Context, addr string) error
}

type Config struct {
	AdminSecret string
	CORSOrigins []string
	// JobTimeout bounds a background monitor-all run.
	JobTimeout time.Duration
}

// Deps collects the collaborators. Scheduler, Mailer and Gatherer are optional.
type Deps struct {
	Store     Store
	Monitor   Monitor
	Auth      *auth.Service
	Scheduler Scheduler
	Mailer    TestMailer
	Gatherer  prometheus.Gatherer
	Logger    *zap.Logger
}

type Server struct {
	Echo *echo.Echo

	store     Store
	monitor   Monitor
	auth      *auth.Service
	scheduler Scheduler
	mailer    TestMailer
	log       *zap.Logger
	cfg       Config
	now       func() time.Time

	// Background job tracking
	jobMu      sync.Mutex
	jobs       map[string]*backgroundJob
	runningJob *backgroundJob
	jobWG      sync.WaitGroup
}

func NewServer(d Deps, cfg Config) *Server {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Gatherer == nil {
		d.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.JobTimeout <= 0 {
		cfg.JobTimeout = 2 * time.Hour
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = jsonErrorHandler(d.Logger)
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, "X-Admin-Secret"},
		}))
	}

	s := &Server{
		Echo:      e,
		store:     d.Store,
		monitor:   d.Monitor,
		auth:      d.Auth,
		scheduler: d.Scheduler,
		mailer:    d.Mailer,
		log:       d.Logger.Named("api"),
		cfg:       cfg,
		now:       time.Now,
		jobs:      map[string]*backgroundJob{},
	}
	s.routes(promhttp.HandlerFor(d.Gatherer, promhttp.HandlerOpts{}))
	return s
}

func (s *Server) routes(metrics http.Handler) {
	s.Echo.GET("/health", s.handleHealth)
	s.Echo.GET("/metrics", echo.WrapHandler(metrics))

	api := s.Echo.Group("/api/v1")
	api.GET("/analyze", s.handleAnalyze)
	api.GET("/application-status", s.handleApplicationStatus)

	// Auth Routes
	api.POST("/auth/signup", s.handleSignup)
	api.POST("/auth/login", s.handleLogin)

	me := api.Group("/me")
	me.Use(s.auth.Middleware)
	me.GET("", s.handleMe)
	me.GET("/notifications", s.handleListNotifications)
	me.POST("/notifications/:id/read", s.handleMarkRead)
	me.PUT("/preferences", s.handleUpdatePreferences)
	me.GET("/interests", s.handleListInterests)
	me.POST("/interests", s.handleAddInterest)
	me.DELETE("/interests/:schoolNo", s.handleRemoveInterest)

	admin := api.Group("/admin")
	admin.Use(auth.AdminMiddleware(s.cfg.AdminSecret))
	admin.GET("/targets", s.handleListTargets)
	admin.POST("/targets", s.handleCreateTarget)
	admin.GET("/targets/:schoolNo", s.handleGetTarget)
	admin.PUT("/targets/:schoolNo", s.handleUpdateTarget)
	admin.PATCH("/targets/:schoolNo/toggle", s.handleToggleTarget)
	admin.DELETE("/targets/:schoolNo", s.handleDeleteTarget)
	admin.POST("/targets/:schoolNo/monitor", s.handleMonitorSchool)
	admin.POST("/monitor-all", s.handleMonitorAll)
	admin.GET("/jobs/:id", s.handleJobStatus)
	admin.GET("/stats", s.handleStats)
	admin.GET("/scheduler/status", s.handleSchedulerStatus)
	admin.POST("/scheduler/trigger", s.handleSchedulerTrigger)
	admin.POST("/scheduler/stop", s.handleSchedulerStop)
	admin.POST("/scheduler/restart", s.handleSchedulerRestart)
	admin.POST("/test-email", s.handleTestEmail)
}

func (s *Server) Start(port int) error {
	return s.Echo.Start(fmt.Sprintf(":%d", port))
}

// Shutdown stops the listener and waits for background jobs to finish or
// for ctx to expire.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.Echo.Shutdown(ctx)

	s.jobMu.Lock()
	for _, j := range s.jobs {
		if j.Status == jobRunning && j.cancel != nil {
			j.cancel()
		}
	}
	s.jobMu.Unlock()

	done := make(chan struct{})
	go func() {
		s.jobWG.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		return errors.Join(err, ctx.Err())
	}
	return err
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]any{"status": "ok", "time": s.now().UTC()})
}

func (s *Server) handleAnalyze(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("url"))
	if err := validateURL(raw); err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	page, err := s.monitor.AnalyzePage(c.Request().Context(), raw)
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, page)
}

type applicationStatusItem struct {
	SchoolNo          string                   `json:"school_no"`
	SchoolName        string                   `json:"school_name"`
	WebsiteURL        string                   `json:"website_url"`
	ApplicationStatus models.ApplicationStatus `json:"application_status"`
	LastChecked       *time.Time               `json:"last_checked,omitempty"`
}

func (s *Server) handleApplicationStatus(c echo.Context) error {
	targets, err := s.store.ListApplicationStatuses(c.Request().Context())
	if err != nil {
		return s.internalError(c, "list application statuses", err)
	}
	items := make([]applicationStatusItem, 0, len(targets))
	for _, t := range targets {
		items = append(items, applicationStatusItem{
			SchoolNo:          t.SchoolNo,
			SchoolName:        t.SchoolName,
			WebsiteURL:        t.WebsiteURL,
			ApplicationStatus: t.ApplicationStatus,
			LastChecked:       t.LastChecked,
		})
	}
	return c.JSON(http.StatusOK, map[string]any{"schools": items, "total": len(items)})
}

func validateURL(raw string) error {
	if raw == "" {
		return errors.New("url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("url must be http or https")
	}
	if u.Hostname() == "" {
		return errors.New("url host is required")
	}
	return nil
}

func errorJSON(c echo.Context, code int, msg string) error {
	return c.JSON(code, map[string]string{"error": msg})
}

func (s *Server) internalError(c echo.Context, op string, err error) error {
	s.log.Error(op, zap.Error(err))
	return errorJSON(c, http.StatusInternalServerError, err.Error())
}

// jsonErrorHandler renders echo errors as {"error": "..."}.
func jsonErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := http.StatusText(code)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = fmt.Sprint(he.Message)
		} else {
			log.Error("unhandled error", zap.Error(err))
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, map[string]string{"error": msg})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
