// Package server exposes the dictation orchestrator over HTTP. Session
// lifecycle is a small REST surface under /v1/sessions; live audio in and
// transcription events out ride a per-session WebSocket.
package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clinscribe/clinscribe/internal/health"
	"github.com/clinscribe/clinscribe/internal/observe"
	"github.com/clinscribe/clinscribe/internal/orchestrator"
	"github.com/clinscribe/clinscribe/internal/resilience"
	"github.com/clinscribe/clinscribe/internal/session"
)

// Server routes HTTP traffic to the orchestrator. Construct with [New] and
// serve [Server.Handler].
type Server struct {
	orch    *orchestrator.Orchestrator
	events  EventSource
	health  *health.Handler
	metrics *observe.Metrics
	log     *slog.Logger

	// newDecoder is non-nil when clients send Opus instead of raw PCM. Each
	// WebSocket gets its own decoder instance.
	newDecoder func() (FrameDecoder, error)
}

// FrameDecoder turns one client audio frame into raw PCM bytes.
// [audio.OpusDecoder] satisfies it.
type FrameDecoder interface {
	Decode(frame []byte) ([]byte, error)
}

// Option configures a [Server].
type Option func(*Server)

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) {
		s.log = log
	}
}

// WithMetrics sets the metrics used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithHealth installs the /healthz and /readyz handler.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) {
		s.health = h
	}
}

// WithFrameDecoder makes the audio ingress decode each incoming frame before
// handing it to the orchestrator. Used for Opus ingest.
func WithFrameDecoder(newDecoder func() (FrameDecoder, error)) Option {
	return func(s *Server) {
		s.newDecoder = newDecoder
	}
}

// New creates a Server around the orchestrator and the event feed.
func New(orch *orchestrator.Orchestrator, events EventSource, opts ...Option) *Server {
	s := &Server{
		orch:   orch,
		events: events,
		log:    slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Handler returns the full route table wrapped in the observability
// middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", s.handleCreate)
	mux.HandleFunc("GET /v1/sessions", s.handleList)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleStatus)
	mux.HandleFunc("POST /v1/sessions/{id}/pause", s.handlePause)
	mux.HandleFunc("POST /v1/sessions/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /v1/sessions/{id}/stop", s.handleStop)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleDelete)
	mux.HandleFunc("GET /v1/sessions/{id}/stream", s.handleStream)

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}

// sessionBody is the JSON shape of a session in responses.
type sessionBody struct {
	ID        string     `json:"id"`
	OwnerID   string     `json:"owner_id"`
	SubjectID string     `json:"subject_id,omitempty"`
	State     string     `json:"state"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty"`
}

func toBody(sess *session.Session) sessionBody {
	b := sessionBody{
		ID:        sess.ID(),
		OwnerID:   sess.OwnerID(),
		SubjectID: sess.SubjectID(),
		State:     string(sess.State()),
		StartedAt: sess.StartedAt(),
	}
	if ended := sess.EndedAt(); !ended.IsZero() {
		b.EndedAt = &ended
	}
	return b
}

type createRequest struct {
	ID        string `json:"id"`
	OwnerID   string `json:"owner_id"`
	SubjectID string `json:"subject_id"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.OwnerID == "" {
		writeError(w, http.StatusBadRequest, "owner_id is required")
		return
	}

	sess, err := s.orch.Start(r.Context(), req.ID, req.OwnerID, req.SubjectID)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBody(sess))
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		writeError(w, http.StatusBadRequest, "owner query parameter is required")
		return
	}

	sessions := s.orch.ListActive(owner)
	out := make([]sessionBody, len(sessions))
	for i, sess := range sessions {
		out[i] = toBody(sess)
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": out})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.orch.Status(r.PathValue("id"))
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBody(sess))
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.Pause(id); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	s.writeSession(w, id)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.Resume(r.Context(), id); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	s.writeSession(w, id)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if err := s.orch.Stop(id); err != nil {
		s.writeOrchestratorError(w, err)
		return
	}

	sess, err := s.orch.Status(id)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":    toBody(sess),
		"final_text": sess.AccumulatedFinalText(),
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	s.orch.Cleanup(r.PathValue("id"))
	w.WriteHeader(http.StatusNoContent)
}

// writeSession responds with the session's current state.
func (s *Server) writeSession(w http.ResponseWriter, id string) {
	sess, err := s.orch.Status(id)
	if err != nil {
		s.writeOrchestratorError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBody(sess))
}

// writeOrchestratorError maps domain sentinels onto HTTP status codes.
func (s *Server) writeOrchestratorError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrAlreadyExists),
		errors.Is(err, session.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, resilience.ErrAllBackendsFailed):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		s.log.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"encoding response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
