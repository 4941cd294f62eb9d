// Package server exposes the session orchestrator over HTTP: scheduling,
// status, cancellation, resume, tender queries, and metrics.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/tender-scout/internal/model"
	"github.com/sells-group/tender-scout/internal/resilience"
	"github.com/sells-group/tender-scout/internal/session"
	"github.com/sells-group/tender-scout/internal/store"
)

// Server wires the orchestrator and store into an HTTP handler.
type Server struct {
	orc         *session.Orchestrator
	store       store.Store
	baseProfile model.Profile
	log         *zap.Logger
}

// New creates a server. baseProfile supplies defaults for schedule requests
// that do not carry a full profile.
func New(orc *session.Orchestrator, st store.Store, baseProfile model.Profile) *Server {
	return &Server{
		orc:         orc,
		store:       st,
		baseProfile: baseProfile,
		log:         zap.L().With(zap.String("component", "server")),
	}
}

// Handler returns the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /sessions", s.handleSchedule)
	mux.HandleFunc("GET /sessions", s.handleListSessions)
	mux.HandleFunc("GET /sessions/{id}", s.handleGetSession)
	mux.HandleFunc("POST /sessions/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /sessions/{id}/resume", s.handleResume)
	mux.HandleFunc("GET /sessions/{id}/result", s.handleResult)
	mux.HandleFunc("GET /tenders", s.handleListTenders)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type scheduleRequest struct {
	Source   string         `json:"source"`
	Keywords []string       `json:"keywords,omitempty"`
	Profile  *model.Profile `json:"profile,omitempty"`
}

func (s *Server) handleSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Source == "" {
		writeError(w, http.StatusBadRequest, "source is required")
		return
	}

	profile := s.baseProfile
	if req.Profile != nil {
		profile = *req.Profile
	}
	if len(req.Keywords) > 0 {
		profile.Keywords = req.Keywords
	}

	sess, err := s.orc.Schedule(r.Context(), req.Source, profile)
	if err != nil {
		s.writeScheduleError(w, err)
		return
	}
	s.log.Info("session scheduled via api",
		zap.String("session_id", sess.ID),
		zap.String("source", sess.Source),
	)
	writeJSON(w, http.StatusAccepted, sess)
}

func (s *Server) writeScheduleError(w http.ResponseWriter, err error) {
	var busy *session.AlreadyRunningError
	if errors.As(err, &busy) {
		writeError(w, http.StatusConflict, busy.Error())
		return
	}
	if isConfigErr(err) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.log.Error("schedule failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal error")
}

func isConfigErr(err error) bool {
	var cfgErr *resilience.ConfigurationError
	return errors.As(err, &cfgErr)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.SessionFilter{
		Source: q.Get("source"),
		Status: model.SessionStatus(q.Get("status")),
		Limit:  intQuery(q.Get("limit"), 0),
	}
	sessions, err := s.orc.ListSessions(r.Context(), filter)
	if err != nil {
		s.log.Error("list sessions failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orc.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orc.Cancel(r.Context(), id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancelling", "session_id": id})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orc.Resume(r.Context(), r.PathValue("id"))
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			writeError(w, http.StatusNotFound, "session not found")
		case isConfigErr(err):
			writeError(w, http.StatusBadRequest, err.Error())
		default:
			// Wrong-state resumes and busy sources are both conflicts.
			writeError(w, http.StatusConflict, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusAccepted, sess)
}

// handleResult assembles the session result artifact: summary plus the
// source's current records.
func (s *Server) handleResult(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orc.GetStatus(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "session not found")
			return
		}
		s.log.Error("get session failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	records, err := s.store.ListTenders(r.Context(), store.TenderFilter{Source: sess.Source, Limit: 10000})
	if err != nil {
		s.log.Error("list tenders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	result := model.BuildResult(*sess, records, time.Now().UTC())
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTenders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.TenderFilter{
		Source:   q.Get("source"),
		Country:  q.Get("country"),
		Priority: model.Priority(q.Get("priority")),
		MinScore: intQuery(q.Get("min_score"), 0),
		Limit:    intQuery(q.Get("limit"), 0),
		Offset:   intQuery(q.Get("offset"), 0),
	}
	tenders, err := s.store.ListTenders(r.Context(), filter)
	if err != nil {
		s.log.Error("list tenders failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tenders": tenders, "count": len(tenders)})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	lookback := intQuery(r.URL.Query().Get("lookback_hours"), 24)
	snap, err := s.orc.Metrics(r.Context(), lookback)
	if err != nil {
		s.log.Error("collect metrics failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func intQuery(raw string, def int) int {
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
