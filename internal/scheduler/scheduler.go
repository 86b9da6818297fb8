// Package scheduler runs the periodic monitoring jobs on robfig/cron.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/models"
	"github.com/hkschools/admission-monitor/internal/monitor"
)

const (
	JobDailyMonitoring  = "daily-monitoring"
	JobWeeklyMonitoring = "weekly-monitoring"
	JobDigests          = "notification-digests"
	JobReminders        = "deadline-reminders"
)

var ErrUnknownJob = errors.New("unknown job")

// Runner is the work the jobs trigger. *monitor.Service implements it.
type Runner interface {
	MonitorAll(ctx context.Context) (*models.BatchResult, error)
	ProcessDigests(ctx context.Context) (monitor.DigestSummary, error)
	SendDeadlineReminders(ctx context.Context) (int, error)
}

type Config struct {
	Timezone     string
	DailySpec    string
	WeeklySpec   string
	DigestSpec   string
	ReminderSpec string
}

type job struct {
	name string
	spec string
	run  func(ctx context.Context) error
	id   cron.EntryID

	lastRun   *time.Time
	lastError string
	running   bool
}

type JobStatus struct {
	Name      string     `json:"name"`
	Spec      string     `json:"spec"`
	Next      *time.Time `json:"next_run,omitempty"`
	LastRun   *time.Time `json:"last_run,omitempty"`
	LastError string     `json:"last_error,omitempty"`
	Running   bool       `json:"running"`
}

type Status struct {
	Running  bool        `json:"running"`
	Timezone string      `json:"timezone"`
	Jobs     []JobStatus `json:"jobs"`
}

type Scheduler struct {
	runner Runner
	loc    *time.Location
	log    *zap.Logger

	mu      sync.Mutex
	jobs    map[string]*job
	cron    *cron.Cron
	cancel  context.CancelFunc
	baseCtx context.Context
	wg      sync.WaitGroup
}

// New validates every cron spec up front so a typo fails at startup.
func New(runner Runner, cfg Config, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		runner:  runner,
		loc:     loc,
		log:     log.Named("scheduler"),
		jobs:    map[string]*job{},
		baseCtx: context.Background(),
	}
	for _, j := range []*job{
		{name: JobDailyMonitoring, spec: cfg.DailySpec, run: s.dailyMonitoring},
		{name: JobWeeklyMonitoring, spec: cfg.WeeklySpec, run: s.weeklyMonitoring},
		{name: JobDigests, spec: cfg.DigestSpec, run: s.digests},
		{name: JobReminders, spec: cfg.ReminderSpec, run: s.reminders},
	} {
		if _, err := cron.ParseStandard(j.spec); err != nil {
			return nil, fmt.Errorf("invalid spec for %s: %w", j.name, err)
		}
		s.jobs[j.name] = j
	}
	return s, nil
}

// Start schedules every job. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return nil
	}

	logger := cronLogger{s.log.Sugar()}
	c := cron.New(
		cron.WithLocation(s.loc),
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	for _, j := range s.jobs {
		name := j.name
		id, err := c.AddFunc(j.spec, func() { s.execute(name) })
		if err != nil {
			return fmt.Errorf("cron.AddFunc %s: %w", name, err)
		}
		j.id = id
	}

	s.baseCtx, s.cancel = context.WithCancel(ctx)
	s.cron = c
	c.Start()
	s.log.Info("scheduler started", zap.String("timezone", s.loc.String()), zap.Int("jobs", len(s.jobs)))
	return nil
}

// Stop halts scheduling, cancels running jobs and waits for them to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	c, cancel := s.cron, s.cancel
	s.cron, s.cancel = nil, nil
	s.baseCtx = context.Background()
	s.mu.Unlock()
	if c == nil {
		return
	}

	done := c.Stop()
	cancel()
	<-done.Done()
	s.wg.Wait()
	s.log.Info("scheduler stopped")
}

func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// Trigger runs the named job now in the background.
func (s *Scheduler) Trigger(name string) error {
	s.mu.Lock()
	_, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.execute(name)
	}()
	return nil
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{Running: s.cron != nil, Timezone: s.loc.String()}
	for _, j := range s.jobs {
		js := JobStatus{
			Name:      j.name,
			Spec:      j.spec,
			LastRun:   j.lastRun,
			LastError: j.lastError,
			Running:   j.running,
		}
		if s.cron != nil {
			if next := s.cron.Entry(j.id).Next; !next.IsZero() {
				js.Next = &next
			}
		}
		st.Jobs = append(st.Jobs, js)
	}
	sort.Slice(st.Jobs, func(i, k int) bool { return st.Jobs[i].Name < st.Jobs[k].Name })
	return st
}

func (s *Scheduler) execute(name string) {
	s.mu.Lock()
	j := s.jobs[name]
	if j.running {
		s.mu.Unlock()
		s.log.Info("job already running, skipped", zap.String("job", name))
		return
	}
	j.running = true
	ctx := s.baseCtx
	s.mu.Unlock()

	start := time.Now()
	s.log.Info("job started", zap.String("job", name))
	err := j.run(ctx)

	s.mu.Lock()
	j.running = false
	now := time.Now().In(s.loc)
	j.lastRun = &now
	j.lastError = ""
	if err != nil {
		j.lastError = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		s.log.Error("job failed", zap.String("job", name), zap.Duration("duration", time.Since(start)), zap.Error(err))
		return
	}
	s.log.Info("job finished", zap.String("job", name), zap.Duration("duration", time.Since(start)))
}

func (s *Scheduler) dailyMonitoring(ctx context.Context) error {
	_, err := s.runner.MonitorAll(ctx)
	return err
}

// weeklyMonitoring runs a batch and logs the weekly report.
func (s *Scheduler) weeklyMonitoring(ctx context.Context) error {
	batch, err := s.runner.MonitorAll(ctx)
	if batch == nil {
		return err
	}
	sum := batch.Summary
	s.log.Info("weekly report",
		zap.Int("total", sum.Total),
		zap.Int("successful", sum.Successful),
		zap.Int("changed", sum.WithChanges),
		zap.Int("open", sum.WithOpenApplications),
		zap.Int("errors", sum.Errors))
	return err
}

func (s *Scheduler) digests(ctx context.Context) error {
	_, err := s.runner.ProcessDigests(ctx)
	return err
}

func (s *Scheduler) reminders(ctx context.Context) error {
	_, err := s.runner.SendDeadlineReminders(ctx)
	return err
}

// cronLogger adapts zap to cron.Logger.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}
