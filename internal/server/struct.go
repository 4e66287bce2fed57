package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/history"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response. It must
	// cover a full multi-page summary.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds one chat or upload request including every model
	// call it makes. Defaults to 5 minutes.
	ChatTimeout time.Duration
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// APIKey is the Bearer token required on all protected /api/* routes.
	// If empty, authentication is disabled (development mode).
	APIKey string
	// UploadDir receives uploaded files under one subdirectory per session.
	UploadDir string
	// MaxUploadBytes caps the multipart body of POST /api/upload.
	// Defaults to 64 MiB.
	MaxUploadBytes int64
	// DefaultTemperature applies when a chat request omits temperature.
	DefaultTemperature float32
	// MetricsRegistry receives the server metrics. Defaults to
	// prometheus.DefaultRegisterer.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Defaults to
	// prometheus.DefaultGatherer.
	MetricsGatherer prometheus.Gatherer
	// FeedbackStore, when set, exposes the persisted vote totals as gauges.
	FeedbackStore FeedbackCounter
}

// FeedbackCounter reports the votes recorded so far. [history.SQLiteStore]
// implements it.
type FeedbackCounter interface {
	FeedbackCounts(ctx context.Context) (up, down int, err error)
}

// responder is the part of [chatbot.ChatBot] the handlers call; tests
// inject a fake.
type responder interface {
	Respond(ctx context.Context, log *history.Log, message string, mode chatbot.Mode, temperature float32) (chatbot.Turn, error)
	ProcessUpload(ctx context.Context, files []string, log *history.Log, mode chatbot.Mode) (chatbot.Turn, error)
}

// Server is the HTTP server that exposes the chatbot.
type Server struct {
	// bot answers questions and processes uploads.
	bot responder
	// sessions owns the per-session conversation logs.
	sessions *history.Sessions
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds the Prometheus collectors owned by this server.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// SessionID names the conversation; empty starts a new one.
	SessionID string `json:"sessionId"`
	// Message is the user's question.
	Message string `json:"message"`
	// Mode is a mode name or UI label; see [chatbot.ParseMode].
	Mode string `json:"mode"`
	// Temperature overrides Config.DefaultTemperature when set.
	Temperature *float32 `json:"temperature,omitempty"`
}

// turnResponse is the JSON response for POST /api/chat and POST /api/upload.
type turnResponse struct {
	SessionID  string             `json:"sessionId"`
	Input      string             `json:"input"`
	History    []history.Exchange `json:"history"`
	References string             `json:"references,omitempty"`
}

// feedbackRequest is the JSON body for POST /api/feedback.
type feedbackRequest struct {
	SessionID string `json:"sessionId"`
	// Index is the position of the rated exchange in the history.
	Index int  `json:"index"`
	Liked bool `json:"liked"`
	// Value is the response text as shown by the client; informational only.
	Value string `json:"value,omitempty"`
}

// feedbackResponse is the JSON response for POST /api/feedback.
type feedbackResponse struct {
	SessionID string `json:"sessionId"`
	Index     int    `json:"index"`
	Liked     bool   `json:"liked"`
	Message   string `json:"message"`
}

// historyResponse is the JSON response for GET /api/history.
type historyResponse struct {
	SessionID string             `json:"sessionId"`
	History   []history.Exchange `json:"history"`
}

// errorResponse is the JSON body of every non-2xx API response.
type errorResponse struct {
	Error string `json:"error"`
}
