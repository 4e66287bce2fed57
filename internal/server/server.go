// Package server implements the HTTP server that exposes the chatbot via a
// JSON API: questions, uploads, feedback, and conversation history.
// The server is started by the `raggpt serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/logging"
)

// New constructs a Server from the provided chatbot, session registry, and
// config.
func New(bot *chatbot.ChatBot, sessions *history.Sessions, cfg *Config) (*Server, error) {
	if bot == nil {
		return nil, fmt.Errorf("server: chatbot must not be nil")
	}
	return newServer(bot, sessions, cfg)
}

func newServer(bot responder, sessions *history.Sessions, cfg *Config) (*Server, error) {
	if sessions == nil {
		return nil, fmt.Errorf("server: sessions must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = 5 * time.Minute
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = cfg.ChatTimeout + 30*time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.UploadDir == "" {
		cfg.UploadDir = "data/uploads"
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = 64 << 20
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.New()
	}
	if cfg.MetricsRegistry == nil {
		cfg.MetricsRegistry = prometheus.DefaultRegisterer
	}
	if cfg.MetricsGatherer == nil {
		cfg.MetricsGatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		bot:      bot,
		sessions: sessions,
		cfg:      cfg,
		log:      cfg.Logger,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(cfg.MetricsRegistry),
	}
	if cfg.FeedbackStore != nil {
		registerFeedbackGauges(cfg.MetricsRegistry, cfg.FeedbackStore, s.log)
	}

	if cfg.APIKey == "" {
		s.log.Warn("server: API key not set, authentication is disabled")
	}

	rl, stop := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.metrics)
	s.stopRL = stop

	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, authMiddleware(cfg.APIKey, rl.middleware(h)))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", protected("chat", s.handleChat))
	mux.Handle("POST /api/upload", protected("upload", s.handleUpload))
	mux.Handle("POST /api/feedback", protected("feedback", s.handleFeedback))
	mux.Handle("GET /api/history", protected("history", s.handleHistory))
	mux.Handle("DELETE /api/history", protected("history_reset", s.handleHistoryReset))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(cfg.MetricsGatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(s.log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the root handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	defer s.stopRL()
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("raggpt server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// handleChat handles POST /api/chat. The answer and the updated history are
// returned in one JSON document.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if req.SessionID == "" {
		req.SessionID = history.NewSessionID()
	}
	temperature := s.cfg.DefaultTemperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}
	mode := chatbot.ParseMode(req.Mode)

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, log.With(slog.String("session", req.SessionID)))

	start := time.Now()
	var turn chatbot.Turn
	err := s.sessions.Update(ctx, req.SessionID, func(l *history.Log) error {
		var err error
		turn, err = s.bot.Respond(ctx, l, req.Message, mode, temperature)
		return err
	})
	outcome := outcomeOf(ctx, err)
	s.metrics.chatRequestsTotal.WithLabelValues(outcome, string(mode)).Inc()
	s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

	if err != nil {
		log.Error("chat failed", slog.String("session", req.SessionID), slog.Any("error", err))
		writeError(w, upstreamStatus(outcome), err.Error())
		return
	}

	writeJSON(w, log, http.StatusOK, turnResponse{
		SessionID:  req.SessionID,
		Input:      turn.Input,
		History:    turn.History,
		References: turn.References,
	})
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, logging.FromContext(r.Context()), http.StatusOK, map[string]string{"status": "ok"})
}

// outcomeOf classifies a request error for metrics.
func outcomeOf(ctx context.Context, err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded):
		return "timeout"
	default:
		return "error"
	}
}

// upstreamStatus maps a failed outcome to the response status: model and
// store failures are gateway errors.
func upstreamStatus(outcome string) int {
	if outcome == "timeout" {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// writeJSON encodes v with the given status.
func writeJSON(w http.ResponseWriter, log *slog.Logger, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("response encode error", slog.Any("error", err))
	}
}

// writeError writes an errorResponse.
func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{Error: msg})
}
