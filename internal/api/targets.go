package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/models"
)

type createTargetRequest struct {
	SchoolNo           string                   `json:"school_no"`
	SchoolName         string                   `json:"school_name"`
	WebsiteURL         string                   `json:"website_url"`
	ApplicationPageURL string                   `json:"application_page_url"`
	IsActive           *bool                    `json:"is_active"`
	CheckFrequency     models.CheckFrequency    `json:"check_frequency"`
	MonitoringConfig   *models.MonitoringConfig `json:"monitoring_config"`
}

func (r createTargetRequest) target() (*models.MonitorTarget, error) {
	r.SchoolNo = strings.TrimSpace(r.SchoolNo)
	r.SchoolName = strings.TrimSpace(r.SchoolName)
	if r.SchoolNo == "" || r.SchoolName == "" {
		return nil, errors.New("school_no and school_name are required")
	}
	if err := validateURL(r.WebsiteURL); err != nil {
		return nil, err
	}
	if r.ApplicationPageURL != "" {
		if err := validateURL(r.ApplicationPageURL); err != nil {
			return nil, err
		}
	}
	if r.CheckFrequency != "" && !r.CheckFrequency.Valid() {
		return nil, errors.New("check_frequency must be hourly, daily or weekly")
	}

	t := &models.MonitorTarget{
		SchoolNo:           r.SchoolNo,
		SchoolName:         r.SchoolName,
		WebsiteURL:         r.WebsiteURL,
		ApplicationPageURL: r.ApplicationPageURL,
		IsActive:           r.IsActive == nil || *r.IsActive,
		CheckFrequency:     r.CheckFrequency,
		MonitoringConfig:   models.DefaultMonitoringConfig(),
		ApplicationStatus:  models.ApplicationStatus{Requirements: []string{}},
	}
	if r.MonitoringConfig != nil {
		t.MonitoringConfig = *r.MonitoringConfig
	}
	return t, nil
}

func (s *Server) handleListTargets(c echo.Context) error {
	f := models.TargetFilter{}
	f.Page, _ = strconv.Atoi(c.QueryParam("page"))
	f.Limit, _ = strconv.Atoi(c.QueryParam("limit"))
	switch c.QueryParam("status") {
	case "active":
		active := true
		f.Active = &active
	case "inactive":
		inactive := false
		f.Active = &inactive
	}

	targets, total, err := s.store.ListTargets(c.Request().Context(), f)
	if err != nil {
		return s.internalError(c, "list targets", err)
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 20
	}
	if targets == nil {
		targets = []models.MonitorTarget{}
	}
	return c.JSON(http.StatusOK, map[string]any{
		"targets": targets,
		"total":   total,
		"page":    f.Page,
		"limit":   f.Limit,
	})
}

func (s *Server) handleGetTarget(c echo.Context) error {
	t, err := s.store.GetTarget(c.Request().Context(), c.Param("schoolNo"))
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "School not found")
	}
	if err != nil {
		return s.internalError(c, "get target", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleCreateTarget(c echo.Context) error {
	var req createTargetRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	t, err := req.target()
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, err.Error())
	}

	err = s.store.CreateTarget(c.Request().Context(), t)
	if errors.Is(err, db.ErrTargetExists) {
		return errorJSON(c, http.StatusConflict, "School is already monitored")
	}
	if err != nil {
		return s.internalError(c, "create target", err)
	}
	return c.JSON(http.StatusCreated, t)
}

func (s *Server) handleUpdateTarget(c echo.Context) error {
	var patch models.TargetPatch
	if err := c.Bind(&patch); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	if patch.WebsiteURL != nil {
		if err := validateURL(*patch.WebsiteURL); err != nil {
			return errorJSON(c, http.StatusBadRequest, err.Error())
		}
	}
	if patch.CheckFrequency != nil && !patch.CheckFrequency.Valid() {
		return errorJSON(c, http.StatusBadRequest, "check_frequency must be hourly, daily or weekly")
	}

	t, err := s.store.PatchTarget(c.Request().Context(), c.Param("schoolNo"), patch)
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "School not found")
	}
	if err != nil {
		return s.internalError(c, "update target", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleToggleTarget(c echo.Context) error {
	t, err := s.store.ToggleTarget(c.Request().Context(), c.Param("schoolNo"))
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "School not found")
	}
	if err != nil {
		return s.internalError(c, "toggle target", err)
	}
	return c.JSON(http.StatusOK, t)
}

func (s *Server) handleDeleteTarget(c echo.Context) error {
	err := s.store.DeleteTarget(c.Request().Context(), c.Param("schoolNo"))
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "School not found")
	}
	if err != nil {
		return s.internalError(c, "delete target", err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleMonitorSchool checks one school synchronously.
func (s *Server) handleMonitorSchool(c echo.Context) error {
	res := s.monitor.MonitorSchool(c.Request().Context(), c.Param("schoolNo"))
	return c.JSON(http.StatusOK, res)
}

func (s *Server) handleStats(c echo.Context) error {
	st, err := s.store.Stats(c.Request().Context())
	if err != nil {
		return s.internalError(c, "stats", err)
	}
	return c.JSON(http.StatusOK, st)
}
