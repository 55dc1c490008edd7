package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"revia/internal/metrics"
	"revia/internal/model"
	"revia/internal/platform"
	"revia/internal/prefs"
	"revia/internal/scheduler"
)

// Preferences is the settings surface the API exposes.
type Preferences interface {
	Get(ctx context.Context, userID int64) (*model.NotificationPreferences, error)
	Update(ctx context.Context, userID int64, patch model.PreferencesPatch) (*model.NotificationPreferences, error)
}

// SessionPlanner schedules session reminders.
type SessionPlanner interface {
	ScheduleSessionReminder(ctx context.Context, userID int64, sessionName string, scheduledAt time.Time, opts scheduler.SessionOptions) (*scheduler.Handle, error)
}

// ReminderCanceller cancels pending reminders by tag.
type ReminderCanceller interface {
	Cancel(tag string)
}

// AddressStore manages the address the email reminder copy goes to.
type AddressStore interface {
	EmailAddress(ctx context.Context, userID int64) (string, error)
	SetEmailAddress(ctx context.Context, userID int64, address string) error
}

// AuditExporter writes the notification log as a workbook.
type AuditExporter interface {
	Export(ctx context.Context, w io.Writer, userID int64, limit int) error
}

// SessionReminderRequest is the body for POST /api/reminders/session.
type SessionReminderRequest struct {
	UserID        int64  `json:"user_id"`
	SessionName   string `json:"session_name"`
	ScheduledAt   string `json:"scheduled_at"` // RFC 3339
	MinutesBefore int    `json:"minutes_before,omitempty"`
	CustomMessage string `json:"custom_message,omitempty"`
}

// handlePreferences serves GET and PUT /api/preferences/{user_id}.
func (s *HTTPServer) handlePreferences(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("preferences")

	userID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/preferences/"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		p, err := s.prefs.Get(r.Context(), userID)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("get preferences failed")
			writeError(w, http.StatusInternalServerError, "preference store unavailable")
			return
		}
		if p == nil {
			writeError(w, http.StatusNotFound, "preferences not configured")
			return
		}
		writeJSON(w, http.StatusOK, p)

	case http.MethodPut:
		var patch model.PreferencesPatch
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&patch); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}

		p, err := s.prefs.Update(r.Context(), userID, patch)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("update preferences failed")
			writeError(w, http.StatusInternalServerError, "preference store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, p)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleSessionReminder serves POST /api/reminders/session.
func (s *HTTPServer) handleSessionReminder(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("session_reminder")

	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use POST")
		return
	}

	var req SessionReminderRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.UserID <= 0 || req.SessionName == "" {
		writeError(w, http.StatusBadRequest, "user_id and session_name are required")
		return
	}

	scheduledAt, err := time.Parse(time.RFC3339, req.ScheduledAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid scheduled_at; expected RFC 3339")
		return
	}

	handle, err := s.planner.ScheduleSessionReminder(r.Context(), req.UserID, req.SessionName, scheduledAt, scheduler.SessionOptions{
		MinutesBefore: req.MinutesBefore,
		CustomMessage: req.CustomMessage,
	})
	if err != nil {
		writeError(w, schedulingStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, handle)
}

// handleCancelReminder serves DELETE /api/reminders/{tag}.
func (s *HTTPServer) handleCancelReminder(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("cancel_reminder")

	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use DELETE")
		return
	}

	tag := strings.TrimPrefix(r.URL.Path, "/api/reminders/")
	if tag == "" || tag == "session" {
		writeError(w, http.StatusBadRequest, "missing tag")
		return
	}

	// Best-effort: cancelling an unknown tag is a normal outcome.
	s.sched.Cancel(tag)
	w.WriteHeader(http.StatusNoContent)
}

// EmailRequest is the body for PUT /api/email/{user_id}. An empty email
// removes the address.
type EmailRequest struct {
	Email string `json:"email"`
}

// handleEmail serves GET and PUT /api/email/{user_id}.
func (s *HTTPServer) handleEmail(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("email")

	userID, err := strconv.ParseInt(strings.TrimPrefix(r.URL.Path, "/api/email/"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "invalid user id")
		return
	}

	switch r.Method {
	case http.MethodGet:
		addr, err := s.emails.EmailAddress(r.Context(), userID)
		if err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("get email address failed")
			writeError(w, http.StatusInternalServerError, "address store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, EmailRequest{Email: addr})

	case http.MethodPut:
		var req EmailRequest
		decoder := json.NewDecoder(r.Body)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if req.Email != "" && !strings.Contains(req.Email, "@") {
			writeError(w, http.StatusBadRequest, "invalid email address")
			return
		}

		if err := s.emails.SetEmailAddress(r.Context(), userID, req.Email); err != nil {
			s.logger.Error().Err(err).Int64("user_id", userID).Msg("set email address failed")
			writeError(w, http.StatusInternalServerError, "address store unavailable")
			return
		}
		writeJSON(w, http.StatusOK, req)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

// handleAuditExport serves GET /api/audit/export. Optional query
// parameters: user_id narrows to one user, limit caps the row count.
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	metrics.IncHTTP("audit_export")

	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed; use GET")
		return
	}

	var userID int64
	if v := r.URL.Query().Get("user_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			writeError(w, http.StatusBadRequest, "invalid user_id")
			return
		}
		userID = id
	}
	var limit int
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	// Buffer the workbook so a failed export still gets a JSON error
	// instead of a truncated attachment.
	var buf bytes.Buffer
	if err := s.audit.Export(r.Context(), &buf, userID, limit); err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="notification-log.xlsx"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func schedulingStatus(err error) int {
	switch {
	case errors.Is(err, scheduler.ErrPastReminder):
		return http.StatusUnprocessableEntity
	case errors.Is(err, scheduler.ErrPreferencesDisabled),
		errors.Is(err, platform.ErrPermissionDenied),
		errors.Is(err, platform.ErrUnsupportedEnvironment):
		return http.StatusConflict
	case errors.Is(err, prefs.ErrPersistence):
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
