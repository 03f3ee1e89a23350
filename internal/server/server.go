// Copyright (c) 2025 Arlo Stone
// SPDX-License-Identifier: MIT

// Package server exposes the chat session over HTTP for the browser
// front end. The server is stateless: the page keeps the transcript and
// sends the full message history with every chat request, which the
// server forwards to Ollama and streams back as server-sent events.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arlostone/parley/internal/chat"
	"github.com/arlostone/parley/internal/config"
	"github.com/arlostone/parley/internal/ollama"
)

//go:embed web/index.html
var webFS embed.FS

// maxChatBody caps the chat request body. Transcripts are text; anything
// past this is a client bug or abuse.
const maxChatBody = 1 << 20

// =============================================================================
// REQUEST / RESPONSE TYPES
// =============================================================================

// chatRequest is the body of POST /api/chat. Temperature is a pointer so
// an absent field falls back to the configured default rather than 0.
type chatRequest struct {
	Model       string           `json:"model,omitempty"`
	Temperature *float64         `json:"temperature,omitempty"`
	Messages    []ollama.Message `json:"messages"`
}

// streamEvent is one SSE data payload. Stats fields are populated on the
// final (done) event only.
type streamEvent struct {
	ID               string  `json:"id"`
	Content          string  `json:"content"`
	Done             bool    `json:"done"`
	Model            string  `json:"model,omitempty"`
	DoneReason       string  `json:"done_reason,omitempty"`
	TotalDurationMS  int64   `json:"total_duration_ms,omitempty"`
	CompletionTokens int     `json:"completion_tokens,omitempty"`
	TokensPerSecond  float64 `json:"tokens_per_second,omitempty"`
	Error            string  `json:"error,omitempty"`
}

// modelEntry is one row of GET /api/models.
type modelEntry struct {
	Name          string    `json:"name"`
	Size          string    `json:"size"`
	ParameterSize string    `json:"parameter_size,omitempty"`
	Quantization  string    `json:"quantization,omitempty"`
	ModifiedAt    time.Time `json:"modified_at"`
	Active        bool      `json:"active"`
}

type modelsResponse struct {
	Models []modelEntry `json:"models"`
}

type healthResponse struct {
	Status string `json:"status"`
	Ollama string `json:"ollama"`
	Model  string `json:"model"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// =============================================================================
// SERVER
// =============================================================================

// Server serves the browser front end and the chat API.
type Server struct {
	client  *ollama.Client
	logger  *zap.Logger
	limiter *IPRateLimiter

	mu  sync.RWMutex
	cfg *config.Config

	httpServer *http.Server
	watcher    *config.Watcher
}

// New creates a Server from the given configuration.
func New(cfg *config.Config, logger *zap.Logger) *Server {
	client := ollama.NewClientWithConfig(&ollama.ClientConfig{
		BaseURL:      cfg.Ollama.URL,
		Timeout:      time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
		DefaultModel: cfg.Ollama.Model,
	})

	return &Server{
		client:  client,
		logger:  logger,
		limiter: NewIPRateLimiter(cfg.Web.RatePerSecond, cfg.Web.RateBurst),
		cfg:     cfg,
	}
}

// configSnapshot returns the current config under the read lock.
func (s *Server) configSnapshot() *config.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

// applyConfig swaps in a reloaded config. The listen address and rate
// limits are fixed at startup; only chat defaults take effect live.
func (s *Server) applyConfig(cfg *config.Config) {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	s.logger.Info("configuration reloaded",
		zap.String("model", cfg.Ollama.Model),
		zap.Float64("temperature", cfg.Chat.Temperature),
	)
}

// Handler builds the full route table wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /api/models", s.handleModels)
	mux.HandleFunc("POST /api/chat", s.handleChat)

	chain := Chain(
		RecoveryMiddleware(s.logger),
		SecurityHeadersMiddleware(),
		LoggingMiddleware(s.logger),
		RateLimitMiddleware(s.limiter, s.logger),
	)
	return chain(mux)
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully. If the config file exists, it is watched for changes.
func (s *Server) Start(ctx context.Context) error {
	cfg := s.configSnapshot()

	s.httpServer = &http.Server{
		Addr:         cfg.Web.ListenAddr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	if path, err := config.Path(); err == nil {
		if w, err := config.NewWatcher(path, s.applyConfig); err == nil {
			if err := w.Watch(); err == nil {
				s.watcher = w
			} else {
				w.Close()
				s.logger.Warn("config watch disabled", zap.Error(err))
			}
		}
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("web server listening", zap.String("addr", cfg.Web.ListenAddr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.closeWatcher()
		return err
	case <-ctx.Done():
	}

	s.closeWatcher()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("web server stopped")
	return <-errCh
}

func (s *Server) closeWatcher() {
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
}

// =============================================================================
// HANDLERS
// =============================================================================

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	page, err := webFS.ReadFile("web/index.html")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "page unavailable")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(page)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()

	resp := healthResponse{Status: "ok", Ollama: "up", Model: cfg.Ollama.Model}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	if err := s.client.CheckRunning(ctx); err != nil {
		resp.Ollama = "down"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()

	models, err := s.client.ListModels(r.Context())
	if err != nil {
		s.writeOllamaError(w, err)
		return
	}

	sort.Slice(models, func(i, j int) bool { return models[i].Name < models[j].Name })

	entries := make([]modelEntry, 0, len(models))
	for i := range models {
		m := &models[i]
		entries = append(entries, modelEntry{
			Name:          m.Name,
			Size:          m.FormatSize(),
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
			ModifiedAt:    m.ModifiedAt,
			Active:        m.Name == cfg.Ollama.Model,
		})
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: entries})
}

// handleChat validates the request, forwards the transcript to Ollama,
// and streams the reply back as SSE data events terminated by [DONE].
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	cfg := s.configSnapshot()

	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	model := req.Model
	if model == "" {
		model = cfg.Ollama.Model
	}
	temperature := cfg.Chat.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	if err := validateChatRequest(&req, temperature); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	exists, err := s.client.ModelExists(r.Context(), model)
	if err != nil {
		s.writeOllamaError(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("model %q is not installed", model))
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	responseID := uuid.NewString()
	opts := &ollama.Options{Temperature: temperature}

	err = s.client.ChatStream(r.Context(), model, req.Messages, opts, func(chunk ollama.StreamChunk) {
		ev := streamEvent{ID: responseID, Content: chunk.Content, Done: chunk.Done}
		if chunk.Done {
			ev.Model = chunk.Model
			ev.DoneReason = chunk.DoneReason
			ev.TotalDurationMS = chunk.TotalDuration.Milliseconds()
			ev.CompletionTokens = chunk.CompletionTokens
			ev.TokensPerSecond = chunk.TokensPerSecond()
		}
		sendEvent(w, flusher, ev)
	})
	if err != nil {
		// Headers are already out; deliver the failure inside the stream.
		s.logger.Warn("chat stream failed", zap.String("model", model), zap.Error(err))
		sendEvent(w, flusher, streamEvent{ID: responseID, Done: true, Error: streamErrorMessage(err)})
	}

	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

// =============================================================================
// VALIDATION AND ERROR MAPPING
// =============================================================================

var validRoles = map[string]bool{"user": true, "assistant": true, "system": true}

func validateChatRequest(req *chatRequest, temperature float64) error {
	if len(req.Messages) == 0 {
		return errors.New("messages must not be empty")
	}
	for i, m := range req.Messages {
		if !validRoles[m.Role] {
			return fmt.Errorf("message %d has invalid role %q", i, m.Role)
		}
		if m.Content == "" {
			return fmt.Errorf("message %d has empty content", i)
		}
	}
	if err := chat.ValidateTemperature(temperature); err != nil {
		return err
	}
	return nil
}

// writeOllamaError maps upstream failures to HTTP status codes.
func (s *Server) writeOllamaError(w http.ResponseWriter, err error) {
	switch {
	case ollama.IsModelNotFound(err):
		writeError(w, http.StatusNotFound, err.Error())
	case ollama.IsNotRunning(err):
		writeError(w, http.StatusBadGateway, "Ollama is not reachable. Start it with: ollama serve")
	default:
		s.logger.Error("upstream request failed", zap.Error(err))
		writeError(w, http.StatusBadGateway, "upstream request failed")
	}
}

// streamErrorMessage renders a stream failure for the browser.
func streamErrorMessage(err error) string {
	switch {
	case ollama.IsModelNotFound(err):
		return err.Error()
	case ollama.IsNotRunning(err):
		return "lost connection to Ollama"
	case errors.Is(err, context.Canceled):
		return "request cancelled"
	default:
		return err.Error()
	}
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func sendEvent(w http.ResponseWriter, flusher http.Flusher, ev streamEvent) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
	flusher.Flush()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
