// Package monitor runs the per-school check: fetch, analyse, compare with the
// stored status, persist and notify interested users. Batch runs walk every
// active school sequentially with a pause between requests.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/analysis"
	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/ingest"
	"github.com/hkschools/admission-monitor/internal/lock"
	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/notify"
)

// BatchLockName guards MonitorAll across processes.
const BatchLockName = "admwatch:monitor-all"

// ErrBatchRunning is returned when another batch holds the lock.
var ErrBatchRunning = errors.New("a monitoring batch is already running")

// Store is the persistence the monitor needs.
type Store interface {
	GetTarget(ctx context.Context, schoolNo string) (*models.MonitorTarget, error)
	ListActiveTargets(ctx context.Context) ([]models.MonitorTarget, error)
	UpdateTarget(ctx context.Context, schoolNo string, u models.TargetUpdate) error
	FindInterestedUsers(ctx context.Context, schoolNo string) ([]models.User, error)
	CreateNotification(ctx context.Context, n *models.Notification) error
	SetNotificationStatus(ctx context.Context, id uuid.UUID, status models.NotificationStatus, at time.Time) error
	ListUsersWithPending(ctx context.Context) ([]models.User, error)
	ListPendingNotifications(ctx context.Context, userID uuid.UUID) ([]models.Notification, error)
	ListOpenWithDeadline(ctx context.Context, from, to time.Time) ([]models.MonitorTarget, error)
	RecordReminder(ctx context.Context, userID uuid.UUID, schoolNo string, deadline time.Time) (bool, error)
}

type Config struct {
	// RequestDelay separates consecutive schools in a batch.
	RequestDelay time.Duration
	// AnalyzeTimeout bounds the stateless single-page analysis.
	AnalyzeTimeout time.Duration
	// LockTTL bounds how long a crashed batch can block the next one.
	LockTTL        time.Duration
	ReminderWindow time.Duration
}

func (c Config) withDefaults() Config {
	if c.RequestDelay < 0 {
		c.RequestDelay = 0
	}
	if c.AnalyzeTimeout <= 0 {
		c.AnalyzeTimeout = 20 * time.Second
	}
	if c.LockTTL <= 0 {
		c.LockTTL = 2 * time.Hour
	}
	if c.ReminderWindow <= 0 {
		c.ReminderWindow = 3 * 24 * time.Hour
	}
	return c
}

type Service struct {
	store    Store
	fetcher  ingest.Fetcher
	analyzer *analysis.Analyzer
	notifier notify.Notifier
	locker   lock.Locker
	metrics  *Metrics
	log      *zap.Logger
	cfg      Config
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error
}

// Deps collects the collaborators. Notifier, Locker and Metrics are optional.
type Deps struct {
	Store    Store
	Fetcher  ingest.Fetcher
	Analyzer *analysis.Analyzer
	Notifier notify.Notifier
	Locker   lock.Locker
	Metrics  *Metrics
	Logger   *zap.Logger
	Now      func() time.Time
}

func NewService(d Deps, cfg Config) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Analyzer == nil {
		d.Analyzer = analysis.New(d.Now)
	}
	if d.Locker == nil {
		d.Locker = lock.NewLocalLocker()
	}
	return &Service{
		store:    d.Store,
		fetcher:  d.Fetcher,
		analyzer: d.Analyzer,
		notifier: d.Notifier,
		locker:   d.Locker,
		metrics:  d.Metrics,
		log:      d.Logger.Named("monitor"),
		cfg:      cfg.withDefaults(),
		now:      d.Now,
		sleep:    sleepCtx,
	}
}

// MonitorSchool checks one school. Per-school failures are reported in the
// result, never returned as errors.
func (s *Service) MonitorSchool(ctx context.Context, schoolNo string) models.MonitorResult {
	target, err := s.store.GetTarget(ctx, schoolNo)
	if errors.Is(err, db.ErrNotFound) || (err == nil && !target.IsActive) {
		return models.MonitorResult{SchoolNo: schoolNo, Message: "School not found or monitoring disabled"}
	}
	if err != nil {
		s.log.Error("load target", zap.String("school_no", schoolNo), zap.Error(err))
		return models.MonitorResult{SchoolNo: schoolNo, Error: err.Error()}
	}
	return s.monitorTarget(ctx, *target)
}

func (s *Service) monitorTarget(ctx context.Context, target models.MonitorTarget) models.MonitorResult {
	log := s.log.With(zap.String("school_no", target.SchoolNo))
	result := models.MonitorResult{SchoolNo: target.SchoolNo, SchoolName: target.SchoolName}
	cfg := target.MonitoringConfig

	url := target.PageURL()
	start := time.Now()
	doc, err := s.fetcher.Fetch(ctx, url)
	s.metrics.fetched(time.Since(start))

	var text string
	if err == nil {
		text, err = ingest.DocumentText(doc, s.analyzer, cfg.ContentSelectors)
	}
	if err != nil {
		return s.recordFailure(ctx, log.With(zap.String("url", url)), target, result, err)
	}

	res := s.analyzer.Analyze(text, analysis.Options{SkipDates: !cfg.CheckForDeadlines})
	kw := analysis.MatchKeywords(text, cfg.Keywords, cfg.ExcludeKeywords)
	changed := analysis.HasChanged(target.ApplicationStatus, res)

	now := s.now()
	success := target.SuccessCount + 1
	zero := 0
	update := models.TargetUpdate{
		LastChecked:    &now,
		SuccessCount:   &success,
		ErrorCount:     &zero,
		ClearLastError: true,
	}

	if cfg.CheckForChanges {
		hash := ingest.ContentHash(text)
		result.ContentChanged = target.LastContentHash != "" && target.LastContentHash != hash
		update.LastContentHash = &hash
		update.LastContent = &text
	}
	if changed {
		snapshot := res.Snapshot(now)
		update.ApplicationStatus = &snapshot
	}

	if err := s.store.UpdateTarget(ctx, target.SchoolNo, update); err != nil {
		log.Error("persist check", zap.Error(err))
		s.metrics.check("error")
		result.Error = fmt.Sprintf("persist check: %v", err)
		return result
	}

	result.Success = true
	result.HasChanged = changed
	result.ApplicationStatus = &res
	result.KeywordHits = kw.Hits
	result.Relevant = kw.Relevant
	result.Message = "No application status change"

	if changed {
		result.Message = "Application status changed"
		typ, _, _, _ := classifyChange(target, res)
		s.metrics.statusChange(string(typ))
		result.Notified = s.notifyChange(ctx, target, res)
	}

	s.metrics.check("success")
	log.Info("school checked",
		zap.String("status", string(res.Status)),
		zap.Bool("changed", changed),
		zap.Bool("content_changed", result.ContentChanged),
		zap.Int("notified", result.Notified))
	return result
}

func (s *Service) recordFailure(ctx context.Context, log *zap.Logger, target models.MonitorTarget, result models.MonitorResult, cause error) models.MonitorResult {
	s.metrics.check("error")
	log.Warn("check failed", zap.Error(cause))

	now := s.now()
	errCount := target.ErrorCount + 1
	msg := cause.Error()
	err := s.store.UpdateTarget(ctx, target.SchoolNo, models.TargetUpdate{
		LastChecked: &now,
		ErrorCount:  &errCount,
		LastError:   &msg,
	})
	if err != nil {
		log.Error("persist failure", zap.Error(err))
	}

	result.Error = msg
	return result
}

// MonitorAll checks every active school one after another, pausing
// RequestDelay between schools. It returns ErrBatchRunning when another
// batch holds the lock. Cancelling ctx stops the batch between schools and
// returns the partial result with ctx's error.
func (s *Service) MonitorAll(ctx context.Context) (*models.BatchResult, error) {
	release, ok, err := s.locker.Acquire(ctx, BatchLockName, s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("acquire batch lock: %w", err)
	}
	if !ok {
		return nil, ErrBatchRunning
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.Warn("release batch lock", zap.Error(err))
		}
	}()

	targets, err := s.store.ListActiveTargets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active targets: %w", err)
	}

	batch := &models.BatchResult{StartedAt: s.now(), Results: make([]models.MonitorResult, 0, len(targets))}
	s.log.Info("batch started", zap.Int("schools", len(targets)))

	var stopErr error
	for i, t := range targets {
		if i > 0 {
			if err := s.sleep(ctx, s.cfg.RequestDelay); err != nil {
				stopErr = err
				break
			}
		}
		batch.Results = append(batch.Results, s.monitorTarget(ctx, t))
	}

	batch.FinishedAt = s.now()
	batch.Summarize()
	s.log.Info("batch finished",
		zap.Int("total", batch.Summary.Total),
		zap.Int("successful", batch.Summary.Successful),
		zap.Int("changed", batch.Summary.WithChanges),
		zap.Int("open", batch.Summary.WithOpenApplications),
		zap.Int("errors", batch.Summary.Errors))
	return batch, stopErr
}

// AnalyzePage fetches and analyses any URL without touching stored state.
func (s *Service) AnalyzePage(ctx context.Context, url string) (*models.PageAnalysis, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.AnalyzeTimeout)
	defer cancel()

	doc, err := s.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze application page: %w", err)
	}
	text, err := ingest.DocumentText(doc, s.analyzer, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to analyze application page: %w", err)
	}

	res := s.analyzer.Analyze(text, analysis.Options{})
	page := &models.PageAnalysis{
		URL:          url,
		Status:       res.Status,
		IsOpen:       res.IsOpen,
		CloseDate:    res.Deadline,
		Requirements: res.Requirements,
		Notes:        res.Notes,
		Confidence:   res.Confidence,
		Language:     analysis.Language(text),
	}
	if len(res.AllDates) > 0 {
		first := res.AllDates[0]
		page.OpenDate = &first
	}
	return page, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
