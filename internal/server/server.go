// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/jeranaias/prism/internal/credential"
	"github.com/jeranaias/prism/internal/ledger"
	"github.com/jeranaias/prism/internal/media"
	"github.com/jeranaias/prism/internal/mediastore"
	"github.com/jeranaias/prism/internal/model"
	"github.com/jeranaias/prism/internal/orchestrator"
	"github.com/jeranaias/prism/internal/router"
)

// ============================================================================
// CONSTANTS
// ============================================================================

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:8787"

	// DefaultMaxBodySize bounds request bodies. Attachments arrive base64
	// encoded, so this is larger than the attachment limit.
	DefaultMaxBodySize = 32 * 1024 * 1024

	// KeepAliveInterval is how often idle SSE streams receive a comment.
	KeepAliveInterval = 15 * time.Second

	// Version is the API version reported by /health.
	Version = "1"
)

// ============================================================================
// SERVER
// ============================================================================

// Server exposes an orchestrator over HTTP.
type Server struct {
	orch     *orchestrator.Orchestrator
	host     *credential.MemoryHost
	ledger   *ledger.Ledger
	provider string
	logger   *slog.Logger

	token       string
	cors        *CORSConfig
	maxBody     int64
	maxAttach   int
	events      *hub
	unsubscribe []func()

	keys     chan string
	awaiting atomic.Bool

	// cycleCtx outlives individual requests; submissions run under it.
	cycleCtx    context.Context
	cycleCancel context.CancelFunc

	mu     sync.Mutex
	server *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithToken requires a bearer token on every request.
func WithToken(token string) Option {
	return func(s *Server) { s.token = token }
}

// WithAllowedOrigins enables CORS for the given origins.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		if len(origins) > 0 {
			s.cors = DefaultCORSConfig(origins)
		}
	}
}

// WithLedger serves /v1/cycles from l.
func WithLedger(l *ledger.Ledger) Option {
	return func(s *Server) { s.ledger = l }
}

// WithHost lets API clients answer credential grants. The host's prompt is
// replaced so grant requests are announced on the event stream.
func WithHost(h *credential.MemoryHost) Option {
	return func(s *Server) { s.host = h }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithProvider names the backend provider in /health.
func WithProvider(name string) Option {
	return func(s *Server) { s.provider = name }
}

// WithMaxAttachmentSize limits decoded attachments.
func WithMaxAttachmentSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxAttach = n
		}
	}
}

// New creates a server for orch. Close releases its subscriptions.
func New(orch *orchestrator.Orchestrator, opts ...Option) *Server {
	s := &Server{
		orch:      orch,
		logger:    slog.Default(),
		maxBody:   DefaultMaxBodySize,
		maxAttach: media.MaxInlineSize,
		events:    newHub(),
		keys:      make(chan string, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.cycleCtx, s.cycleCancel = context.WithCancel(context.Background())

	if s.host != nil {
		s.host.SetPrompt(s.prompt)
	}

	s.unsubscribe = append(s.unsubscribe,
		orch.Conversation().Subscribe(func(ev model.Event) {
			if ev.Kind == model.EventCleared {
				s.events.publish(EventCleared, MessageEvent{Kind: ev.Kind.String(), Seq: ev.Seq})
				return
			}
			s.events.publish(EventMessage, MessageEvent{Kind: ev.Kind.String(), Seq: ev.Seq, Message: ev.Message})
		}),
		orch.OnState(func(t orchestrator.Transition) {
			s.events.publish(EventState, StateEvent{Cycle: t.Cycle, From: t.From.String(), To: t.To.String()})
		}),
	)
	return s
}

// prompt waits for a key posted to /v1/credential.
func (s *Server) prompt(ctx context.Context) (string, error) {
	// Drop a key left over from an abandoned prompt.
	select {
	case <-s.keys:
	default:
	}

	s.awaiting.Store(true)
	defer func() {
		s.awaiting.Store(false)
		s.events.publish(EventCredential, CredentialEvent{Awaiting: false})
	}()

	notify := func() { s.events.publish(EventCredential, CredentialEvent{Awaiting: true}) }
	return credential.ChannelPrompt(notify, s.keys)(ctx)
}

// Handler returns the HTTP handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(RecoveryMiddleware(s.logger))
	r.Use(LoggingMiddleware(s.logger))
	r.Use(SecurityHeadersMiddleware())
	r.Use(CORSMiddleware(s.cors))

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(s.token, s.logger))

		r.Get("/v1/state", s.handleState)
		r.Put("/v1/mode", s.handleSetMode)
		r.Post("/v1/config/toggle", s.handleToggle)
		r.Put("/v1/config/resolution", s.handleResolution)
		r.Post("/v1/preview", s.handlePreview)

		r.Get("/v1/messages", s.handleMessages)
		r.Get("/v1/messages/last", s.handleLastMessage)
		r.Delete("/v1/messages", s.handleClear)
		r.Post("/v1/messages", s.handleSubmit)
		r.Get("/v1/events", s.handleEvents)

		r.Get("/v1/credential", s.handleCredentialStatus)
		r.Post("/v1/credential", s.handleCredentialSet)
		r.Delete("/v1/credential", s.handleCredentialCancel)

		r.Get("/v1/media/{id}", s.handleMedia)

		r.Get("/v1/cycles", s.handleCycles)
		r.Get("/v1/cycles/stats", s.handleCycleStats)
	})
	return r
}

// ============================================================================
// SERVER LIFECYCLE
// ============================================================================

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server started", "addr", ln.Addr().String(), "version", Version)
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	}
}

// Shutdown stops the listener, closes event streams and cancels running
// cycles.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server shutting down")
	s.Close()

	s.mu.Lock()
	srv := s.server
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// Close releases subscriptions and ends event streams.
func (s *Server) Close() {
	s.mu.Lock()
	unsubs := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	for _, u := range unsubs {
		u()
	}
	s.events.close()
	s.cycleCancel()
}

// ============================================================================
// HEALTH AND STATE
// ============================================================================

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Provider string `json:"provider,omitempty"`
	Busy     bool   `json:"busy"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:   "ok",
		Version:  Version,
		Provider: s.provider,
		Busy:     s.orch.Busy(),
	})
}

// StateResponse is returned by GET /v1/state.
type StateResponse struct {
	Mode          model.Mode          `json:"mode"`
	Config        model.RequestConfig `json:"config"`
	State         string              `json:"state"`
	Busy          bool                `json:"busy"`
	AwaitingKey   bool                `json:"awaiting_key"`
	Models        router.Models       `json:"models"`
	Messages      int                 `json:"messages"`
	InProgress    string              `json:"in_progress,omitempty"`
	Subscribers   int                 `json:"event_subscribers"`
}

func (s *Server) state() StateResponse {
	return StateResponse{
		Mode:          s.orch.Mode(),
		Config:        s.orch.Config(),
		State:         s.orch.State().String(),
		Busy:          s.orch.Busy(),
		AwaitingKey:   s.awaiting.Load(),
		Models:        s.orch.Models(),
		Messages:      s.orch.Conversation().Len(),
		InProgress:    s.orch.Conversation().InProgressID(),
		Subscribers:   s.events.count(),
	}
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.state())
}

// ============================================================================
// MODE AND CONFIGURATION
// ============================================================================

type modeRequest struct {
	Mode string `json:"mode"`
}

func (s *Server) handleSetMode(w http.ResponseWriter, r *http.Request) {
	var req modeRequest
	if !s.decode(w, r, &req) {
		return
	}
	mode, err := model.ParseMode(req.Mode)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_mode", err.Error())
		return
	}
	if err := s.orch.SetMode(mode); err != nil {
		s.writeOrchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

type toggleRequest struct {
	Flag string `json:"flag"`
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if !s.decode(w, r, &req) {
		return
	}
	flag, err := model.ParseFlag(req.Flag)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_flag", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Toggle(flag))
}

type resolutionRequest struct {
	Resolution string `json:"resolution"`
}

func (s *Server) handleResolution(w http.ResponseWriter, r *http.Request) {
	var req resolutionRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := model.ParseResolution(req.Resolution)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_resolution", err.Error())
		return
	}
	if err := s.orch.SetResolution(res); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_resolution", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Config())
}

// ============================================================================
// MESSAGES
// ============================================================================

// AttachmentRequest is an attachment in a submission. Data is base64.
type AttachmentRequest struct {
	Name     string `json:"name"`
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

// SubmitRequest is the body of POST /v1/messages.
type SubmitRequest struct {
	Text        string              `json:"text"`
	Attachments []AttachmentRequest `json:"attachments"`
}

// SubmitResponse acknowledges an accepted submission.
type SubmitResponse struct {
	Status string `json:"status"`
}

func (s *Server) submission(req SubmitRequest) (orchestrator.Submission, error) {
	sub := orchestrator.Submission{Text: req.Text}
	for i, a := range req.Attachments {
		att, err := media.FromBase64(a.Name, a.Data, a.MIMEType)
		if err != nil {
			return sub, fmt.Errorf("attachment %d: %w", i, err)
		}
		if att.Size() > s.maxAttach {
			return sub, fmt.Errorf("attachment %d exceeds %d bytes", i, s.maxAttach)
		}
		sub.Attachments = append(sub.Attachments, att)
	}
	return sub, nil
}

// handleSubmit starts a cycle and returns 202 without waiting for it;
// progress arrives on /v1/events. With ?wait=true the response is the
// settled message instead.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.submission(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_attachment", err.Error())
		return
	}

	done, err := s.orch.Start(s.cycleCtx, sub)
	if err != nil {
		s.writeOrchError(w, err)
		return
	}

	wait, _ := strconv.ParseBool(r.URL.Query().Get("wait"))
	if !wait {
		writeJSON(w, http.StatusAccepted, SubmitResponse{Status: "accepted"})
		return
	}

	select {
	case res := <-done:
		writeJSON(w, http.StatusOK, res.Message)
	case <-r.Context().Done():
	}
}

func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	msgs := s.orch.Conversation().Snapshot()
	if msgs == nil {
		msgs = []*model.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

// handleLastMessage lets clients that submitted without waiting poll for
// the reply.
func (s *Server) handleLastMessage(w http.ResponseWriter, r *http.Request) {
	last := s.orch.Conversation().Last()
	if last == nil {
		writeError(w, http.StatusNotFound, "not_found", "the conversation is empty")
		return
	}
	writeJSON(w, http.StatusOK, last)
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if err := s.orch.Clear(); err != nil {
		s.writeOrchError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type previewRequest struct {
	Text        string              `json:"text"`
	Attachments []AttachmentRequest `json:"attachments"`
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if !s.decode(w, r, &req) {
		return
	}
	sub, err := s.submission(SubmitRequest(req))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_attachment", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, s.orch.Preview(sub.Text, sub.Attachments))
}

// ============================================================================
// EVENTS (SSE)
// ============================================================================

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming not supported")
		return
	}

	ch, cancel := s.events.subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	// Start with a snapshot so clients need not call /v1/state first.
	writeSSE(w, StreamEvent{Type: EventState, Data: s.state()})
	flusher.Flush()

	ticker := time.NewTicker(KeepAliveInterval)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fmt.Fprint(w, ":keepalive\n\n")
			flusher.Flush()
		case ev, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, ev StreamEvent) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		return
	}
	if ev.ID > 0 {
		fmt.Fprintf(w, "id: %d\n", ev.ID)
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
}

// ============================================================================
// CREDENTIAL
// ============================================================================

// CredentialStatus is returned by GET /v1/credential.
type CredentialStatus struct {
	Awaiting bool `json:"awaiting"`
	Selected bool `json:"selected"`
}

type credentialRequest struct {
	Key string `json:"key"`
}

func (s *Server) handleCredentialStatus(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		writeError(w, http.StatusNotFound, "not_supported", "credential selection is not available")
		return
	}
	_, selected := s.host.SelectedKey(r.Context())
	writeJSON(w, http.StatusOK, CredentialStatus{Awaiting: s.awaiting.Load(), Selected: selected})
}

// handleCredentialSet answers a pending grant, or pre-selects a key when no
// grant is pending.
func (s *Server) handleCredentialSet(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		writeError(w, http.StatusNotFound, "not_supported", "credential selection is not available")
		return
	}
	var req credentialRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Key == "" {
		writeError(w, http.StatusBadRequest, "missing_key", "key is required")
		return
	}

	if s.awaiting.Load() {
		select {
		case s.keys <- req.Key:
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusConflict, "conflict", "a key was already submitted")
		}
		return
	}
	s.host.Set(req.Key)
	w.WriteHeader(http.StatusNoContent)
}

// handleCredentialCancel abandons a pending grant, or forgets the selected
// key when none is pending.
func (s *Server) handleCredentialCancel(w http.ResponseWriter, r *http.Request) {
	if s.host == nil {
		writeError(w, http.StatusNotFound, "not_supported", "credential selection is not available")
		return
	}
	if s.awaiting.Load() {
		select {
		case s.keys <- "":
		default:
		}
	} else {
		s.host.Forget()
	}
	w.WriteHeader(http.StatusNoContent)
}

// ============================================================================
// MEDIA
// ============================================================================

// handleMedia serves a message's generated media from the store, falling
// back to the inline copy held by the conversation.
func (s *Server) handleMedia(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !mediastore.ValidKey(id) {
		writeError(w, http.StatusBadRequest, "invalid_id", "invalid media id")
		return
	}

	var m *model.Media
	if msg, ok := s.orch.Conversation().Get(id); ok && msg.Media != nil && len(msg.Media.Data) > 0 {
		m = msg.Media
	} else if store := s.orch.MediaStore(); store != nil {
		got, err := store.Get(r.Context(), id)
		if err != nil && !errors.Is(err, mediastore.ErrNotFound) {
			s.logger.Error("media lookup failed", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "internal", "media lookup failed")
			return
		}
		m = got
	}
	if m == nil || len(m.Data) == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no media for "+id)
		return
	}

	w.Header().Set("Content-Type", m.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(m.Data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(m.Data)
}

// ============================================================================
// CYCLES
// ============================================================================

func (s *Server) handleCycles(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "not_supported", "the cycle ledger is disabled")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := s.ledger.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("ledger query failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "ledger query failed")
		return
	}
	if entries == nil {
		entries = []ledger.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCycleStats(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusNotFound, "not_supported", "the cycle ledger is disabled")
		return
	}
	stats, err := s.ledger.Stats(r.Context())
	if err != nil {
		s.logger.Error("ledger stats failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal", "ledger query failed")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// ============================================================================
// HELPERS
// ============================================================================

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBody)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "too_large",
				fmt.Sprintf("request body exceeds %d bytes", s.maxBody))
			return false
		}
		s.logger.Debug("invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid request format")
		return false
	}
	return true
}

func (s *Server) writeOrchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, orchestrator.ErrBusy):
		writeError(w, http.StatusConflict, "busy", err.Error())
	case errors.Is(err, orchestrator.ErrEmpty):
		writeError(w, http.StatusBadRequest, "empty", err.Error())
	default:
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}
