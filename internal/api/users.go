package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hkschools/admission-monitor/internal/auth"
	"github.com/hkschools/admission-monitor/internal/db"
	"github.com/hkschools/admission-monitor/internal/models"
)

func (s *Server) handleSignup(c echo.Context) error {
	var req auth.SignupRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}

	resp, err := s.auth.Signup(c.Request().Context(), req)
	switch {
	case errors.Is(err, auth.ErrUserExists):
		return errorJSON(c, http.StatusConflict, err.Error())
	case errors.Is(err, auth.ErrInvalidInput):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case err != nil:
		return s.internalError(c, "signup", err)
	}
	return c.JSON(http.StatusCreated, resp)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req auth.LoginRequest
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}

	resp, err := s.auth.Login(c.Request().Context(), req)
	if errors.Is(err, auth.ErrInvalidCreds) {
		return errorJSON(c, http.StatusUnauthorized, "Invalid credentials")
	}
	if err != nil {
		return s.internalError(c, "login", err)
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleMe(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	u, err := s.auth.Me(c.Request().Context(), userID)
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "User not found")
	}
	if err != nil {
		return s.internalError(c, "get user", err)
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleListNotifications(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	notes, err := s.store.ListUserNotifications(c.Request().Context(), userID, limit)
	if err != nil {
		return s.internalError(c, "list notifications", err)
	}
	if notes == nil {
		notes = []models.Notification{}
	}
	return c.JSON(http.StatusOK, notes)
}

func (s *Server) handleMarkRead(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid notification id")
	}
	n, err := s.store.MarkNotificationRead(c.Request().Context(), userID, id, s.now())
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Notification not found")
	}
	if err != nil {
		return s.internalError(c, "mark notification read", err)
	}
	return c.JSON(http.StatusOK, n)
}

func (s *Server) handleUpdatePreferences(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	var prefs models.NotificationPreferences
	if err := c.Bind(&prefs); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	u, err := s.auth.UpdatePreferences(c.Request().Context(), userID, prefs)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, db.ErrNotFound):
		return errorJSON(c, http.StatusNotFound, "User not found")
	case err != nil:
		return s.internalError(c, "update preferences", err)
	}
	return c.JSON(http.StatusOK, u)
}

func (s *Server) handleListInterests(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	list, err := s.auth.ListInterests(c.Request().Context(), userID)
	if err != nil {
		return s.internalError(c, "list interests", err)
	}
	return c.JSON(http.StatusOK, list)
}

func (s *Server) handleAddInterest(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	var req struct {
		SchoolNo string `json:"school_no"`
	}
	if err := c.Bind(&req); err != nil {
		return errorJSON(c, http.StatusBadRequest, "Invalid request")
	}
	in, err := s.auth.AddInterest(c.Request().Context(), userID, req.SchoolNo)
	switch {
	case errors.Is(err, auth.ErrInvalidInput):
		return errorJSON(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, auth.ErrUnknownSchool):
		return errorJSON(c, http.StatusNotFound, err.Error())
	case err != nil:
		return s.internalError(c, "add interest", err)
	}
	return c.JSON(http.StatusCreated, in)
}

func (s *Server) handleRemoveInterest(c echo.Context) error {
	userID, err := auth.GetUserIDFromContext(c)
	if err != nil {
		return errorJSON(c, http.StatusUnauthorized, err.Error())
	}
	err = s.auth.RemoveInterest(c.Request().Context(), userID, c.Param("schoolNo"))
	if errors.Is(err, db.ErrNotFound) {
		return errorJSON(c, http.StatusNotFound, "Interest not found")
	}
	if err != nil {
		return s.internalError(c, "remove interest", err)
	}
	return c.NoContent(http.StatusNoContent)
}
