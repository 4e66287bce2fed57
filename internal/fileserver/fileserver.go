// Package fileserver serves the documents that reference links point at.
// GET /<name> searches the primary directory, then the secondary one.
// GET /<dirname>/<rest>, where dirname is the base name of a configured
// directory, is served straight from that directory. Everything else falls
// through to static serving from a fallback root.
package fileserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Resolution labels reported in logs and metrics.
const (
	ResolvedPrimary         = "primary"
	ResolvedSecondary       = "secondary"
	ResolvedDirectPrimary   = "direct_primary"
	ResolvedDirectSecondary = "direct_secondary"
	ResolvedFallback        = "fallback"
)

// Config holds the file server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8000).
	Port int
	// Primary is searched first.
	Primary string
	// Secondary is searched when Primary has no match.
	Secondary string
	// Fallback is the root for unmatched requests (default: working directory).
	Fallback string
	// ShutdownTimeout bounds graceful shutdown (default: 10s).
	ShutdownTimeout time.Duration
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
	// Registerer receives the server metrics; nil uses the default registry.
	Registerer prometheus.Registerer
}

// Server resolves and serves reference documents.
type Server struct {
	cfg        *Config
	primary    string
	secondary  string
	fallback   http.Handler
	httpServer *http.Server
	log        *slog.Logger
	requests   *prometheus.CounterVec
}

// New constructs a Server from cfg.
func New(cfg *Config) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("fileserver: config must not be nil")
	}
	if cfg.Primary == "" || cfg.Secondary == "" {
		return nil, fmt.Errorf("fileserver: both directories are required")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.Fallback == "" {
		cfg.Fallback = "."
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.DefaultRegisterer
	}

	s := &Server{
		cfg:       cfg,
		primary:   filepath.Clean(cfg.Primary),
		secondary: filepath.Clean(cfg.Secondary),
		fallback:  http.FileServer(http.Dir(cfg.Fallback)),
		log:       cfg.Logger,
		requests: promauto.With(cfg.Registerer).NewCounterVec(prometheus.CounterOpts{
			Namespace: "raggpt",
			Subsystem: "files",
			Name:      "requests_total",
			Help:      "Total number of file server requests, partitioned by how the path was resolved.",
		}, []string{"resolution"}),
	}
	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Resolve maps a URL path to a file on disk. ok is false when the request
// belongs to the fallback handler.
func (s *Server) Resolve(urlPath string) (file, resolution string, ok bool) {
	rel := strings.TrimPrefix(path.Clean("/"+urlPath), "/")
	if rel == "" {
		return "", ResolvedFallback, false
	}

	if first, rest, nested := strings.Cut(rel, "/"); nested {
		switch first {
		case filepath.Base(s.primary):
			return filepath.Join(s.primary, filepath.FromSlash(rest)), ResolvedDirectPrimary, true
		case filepath.Base(s.secondary):
			return filepath.Join(s.secondary, filepath.FromSlash(rest)), ResolvedDirectSecondary, true
		}
		return "", ResolvedFallback, false
	}

	if p := filepath.Join(s.primary, rel); isRegular(p) {
		return p, ResolvedPrimary, true
	}
	if p := filepath.Join(s.secondary, rel); isRegular(p) {
		return p, ResolvedSecondary, true
	}
	return "", ResolvedFallback, false
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	file, resolution, ok := s.Resolve(r.URL.Path)
	s.requests.WithLabelValues(resolution).Inc()
	s.log.Info("files: request",
		slog.String("path", r.URL.Path),
		slog.String("resolution", resolution),
		slog.String("file", file),
	)

	if !ok {
		s.fallback.ServeHTTP(w, r)
		return
	}
	if !isRegular(file) {
		http.NotFound(w, r)
		return
	}
	http.ServeFile(w, r, file)
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("files: listening",
			slog.String("addr", "http://"+s.httpServer.Addr),
			slog.String("primary", s.primary),
			slog.String("secondary", s.secondary),
		)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("fileserver: listen error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("fileserver: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

func isRegular(p string) bool {
	info, err := os.Stat(p)
	return err == nil && info.Mode().IsRegular()
}
