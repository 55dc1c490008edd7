// Package api exposes the settings surface and the session workflow over
// HTTP for external consumers.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// HTTPServer serves the reminder API.
type HTTPServer struct {
	prefs   Preferences
	planner SessionPlanner
	sched   ReminderCanceller
	emails  AddressStore
	audit   AuditExporter
	apiKey  string
	logger  *zerolog.Logger
	srv     *http.Server
}

// NewHTTPServer creates the API server. An empty apiKey disables auth
// (local development only).
func NewHTTPServer(port int, apiKey string, prefs Preferences, planner SessionPlanner, sched ReminderCanceller, emails AddressStore, audit AuditExporter, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		prefs:   prefs,
		planner: planner,
		sched:   sched,
		emails:  emails,
		audit:   audit,
		apiKey:  apiKey,
		logger:  logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/preferences/", s.requireKey(s.handlePreferences))
	mux.HandleFunc("/api/reminders/session", s.requireKey(s.handleSessionReminder))
	mux.HandleFunc("/api/reminders/", s.requireKey(s.handleCancelReminder))
	mux.HandleFunc("/api/email/", s.requireKey(s.handleEmail))
	mux.HandleFunc("/api/audit/export", s.requireKey(s.handleAuditExport))

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start runs the server until ctx is done.
func (s *HTTPServer) Start(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.srv.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.srv.Addr).Msg("API server started")
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("API server error")
	}
}

func (s *HTTPServer) requireKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid API key")
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
