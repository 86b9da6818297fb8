package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/hkschools/admission-monitor/internal/monitor"
	"github.com/hkschools/admission-monitor/internal/notify"
	"github.com/hkschools/admission-monitor/internal/scheduler"
)

const (
	jobRunning   = "running"
	jobCompleted = "completed"
	jobFailed    = "failed"

	// finished jobs are forgotten after this long
	jobRetention = 24 * time.Hour
)

type backgroundJob struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at,omitempty"`
	Result    any       `json:"result,omitempty"`
	Error     string    `json:"error,omitempty"`

	cancel context.CancelFunc
}

// handleMonitorAll starts a batch in the background and returns 202 with the
// job id. Only one batch job runs at a time.
func (s *Server) handleMonitorAll(c echo.Context) error {
	s.jobMu.Lock()
	if s.runningJob != nil && s.runningJob.Status == jobRunning {
		job := s.runningJob
		s.jobMu.Unlock()
		return c.JSON(http.StatusConflict, map[string]any{
			"error":  "A monitoring batch is already running",
			"job_id": job.ID,
		})
	}
	s.pruneJobsLocked()

	jobCtx, jobCancel := context.WithTimeout(context.WithoutCancel(c.Request().Context()), s.cfg.JobTimeout)
	job := &backgroundJob{
		ID:        uuid.New().String()[:8],
		Status:    jobRunning,
		StartedAt: s.now(),
		cancel:    jobCancel,
	}
	s.jobs[job.ID] = job
	s.runningJob = job
	s.jobWG.Add(1)
	s.jobMu.Unlock()

	go func() {
		defer s.jobWG.Done()
		defer jobCancel()
		log := s.log.With(zap.String("job", job.ID))

		batch, err := s.monitor.MonitorAll(jobCtx)

		s.jobMu.Lock()
		defer s.jobMu.Unlock()
		job.EndedAt = s.now()
		if batch != nil {
			job.Result = batch
		}
		if err != nil {
			job.Status = jobFailed
			job.Error = err.Error()
			if isBatchConflict(err) {
				log.Info("monitor-all skipped, another instance holds the batch lock")
				return
			}
			log.Warn("monitor-all job failed", zap.Error(err))
			return
		}
		job.Status = jobCompleted
		log.Info("monitor-all job completed", zap.Int("schools", batch.Summary.Total))
	}()

	return c.JSON(http.StatusAccepted, map[string]any{
		"message": "Monitoring batch started",
		"job_id":  job.ID,
		"poll":    fmt.Sprintf("/api/v1/admin/jobs/%s", job.ID),
	})
}

func (s *Server) handleJobStatus(c echo.Context) error {
	s.jobMu.Lock()
	defer s.jobMu.Unlock()

	job, ok := s.jobs[c.Param("id")]
	if !ok {
		return errorJSON(c, http.StatusNotFound, "job not found")
	}
	resp := map[string]any{
		"id":         job.ID,
		"status":     job.Status,
		"started_at": job.StartedAt,
	}
	if !job.EndedAt.IsZero() {
		resp["ended_at"] = job.EndedAt
		resp["duration"] = job.EndedAt.Sub(job.StartedAt).String()
	}
	if job.Result != nil {
		resp["result"] = job.Result
	}
	if job.Error != "" {
		resp["error"] = job.Error
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) pruneJobsLocked() {
	cutoff := s.now().Add(-jobRetention)
	for id, j := range s.jobs {
		if j.Status != jobRunning && j.EndedAt.Before(cutoff) {
			delete(s.jobs, id)
		}
	}
}

func (s *Server) handleSchedulerStatus(c echo.Context) error {
	if s.scheduler == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Scheduler is disabled")
	}
	return c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedulerTrigger(c echo.Context) error {
	if s.scheduler == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Scheduler is disabled")
	}
	var req struct {
		Job string `json:"job"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if req.Job == "" {
		req.Job = scheduler.JobDailyMonitoring
	}
	err := s.scheduler.Trigger(req.Job)
	if errors.Is(err, scheduler.ErrUnknownJob) {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}
	if err != nil {
		return s.internalError(c, "trigger job", err)
	}
	return c.JSON(http.StatusAccepted, map[string]string{"message": "Job triggered", "job": req.Job})
}

func (s *Server) handleSchedulerStop(c echo.Context) error {
	if s.scheduler == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Scheduler is disabled")
	}
	s.scheduler.Stop()
	return c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleSchedulerRestart(c echo.Context) error {
	if s.scheduler == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Scheduler is disabled")
	}
	if err := s.scheduler.Restart(context.Background()); err != nil {
		return s.internalError(c, "restart scheduler", err)
	}
	return c.JSON(http.StatusOK, s.scheduler.Status())
}

func (s *Server) handleTestEmail(c echo.Context) error {
	if s.mailer == nil {
		return errorJSON(c, http.StatusServiceUnavailable, "Email is not configured")
	}
	var req struct {
		Email string `json:"email"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	addr := strings.TrimSpace(req.Email)
	if _, err := mail.ParseAddress(addr); err != nil {
		return errorJSON(c, http.StatusBadRequest, "A valid email is required")
	}
	err := s.mailer.SendTest(c.Request().Context(), addr)
	if errors.Is(err, notify.ErrEmailDisabled) {
		return errorJSON(c, http.StatusServiceUnavailable, "Email is not configured")
	}
	if err != nil {
		return errorJSON(c, http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Test email sent", "email": addr})
}

// isBatchConflict reports errors that mean another batch already runs.
func isBatchConflict(err error) bool {
	return errors.Is(err, monitor.ErrBatchRunning)
}
