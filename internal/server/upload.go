package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/logging"
)

// handleUpload handles POST /api/upload. The multipart form carries one or
// more "files" parts plus "sessionId" and "mode" fields. Files are saved
// under UploadDir/<session>/ and handed to the chatbot's upload processor.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.cfg.MaxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	sessionID := r.FormValue("sessionId")
	if sessionID == "" {
		sessionID = history.NewSessionID()
	}
	if !safeSessionID(sessionID) {
		writeError(w, http.StatusBadRequest, "invalid sessionId")
		return
	}
	mode := chatbot.ParseMode(r.FormValue("mode"))

	paths, err := s.saveUploads(sessionID, r.MultipartForm.File["files"])
	if err != nil {
		log.Error("upload: saving files failed", slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "could not store uploaded files")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()
	ctx = logging.WithLogger(ctx, log.With(slog.String("session", sessionID)))

	start := time.Now()
	var turn chatbot.Turn
	err = s.sessions.Update(ctx, sessionID, func(l *history.Log) error {
		var err error
		turn, err = s.bot.ProcessUpload(ctx, paths, l, mode)
		return err
	})
	outcome := outcomeOf(ctx, err)
	s.metrics.uploadRequestsTotal.WithLabelValues(outcome, string(mode)).Inc()
	s.metrics.uploadDurationSeconds.WithLabelValues(string(mode)).Observe(time.Since(start).Seconds())

	switch {
	case errors.Is(err, chatbot.ErrNoFiles):
		writeError(w, http.StatusBadRequest, "at least one file is required")
		return
	case err != nil:
		log.Error("upload failed", slog.String("session", sessionID), slog.Any("error", err))
		writeError(w, upstreamStatus(outcome), err.Error())
		return
	}

	log.Info("upload processed",
		slog.String("session", sessionID),
		slog.String("mode", string(mode)),
		slog.Int("files", len(paths)),
	)
	writeJSON(w, log, http.StatusOK, turnResponse{
		SessionID: sessionID,
		Input:     turn.Input,
		History:   turn.History,
	})
}

// saveUploads copies the uploaded parts into the session's upload directory
// and returns their paths in upload order. Only the base name of each client
// file name is used.
func (s *Server) saveUploads(sessionID string, headers []*multipart.FileHeader) ([]string, error) {
	if len(headers) == 0 {
		return nil, nil
	}
	dir := filepath.Join(s.cfg.UploadDir, sessionID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("upload: create %s: %w", dir, err)
	}

	paths := make([]string, 0, len(headers))
	for _, fh := range headers {
		name := filepath.Base(filepath.Clean("/" + fh.Filename))
		if name == "/" || name == "." {
			continue
		}
		dst := filepath.Join(dir, name)
		if err := copyPart(fh, dst); err != nil {
			return nil, err
		}
		paths = append(paths, dst)
	}
	return paths, nil
}

// safeSessionID reports whether id can name a single directory below
// UploadDir.
func safeSessionID(id string) bool {
	if id == "" || id == "." || id == ".." {
		return false
	}
	return !strings.ContainsAny(id, `/\`+"\x00")
}

func copyPart(fh *multipart.FileHeader, dst string) error {
	src, err := fh.Open()
	if err != nil {
		return fmt.Errorf("upload: open part %s: %w", fh.Filename, err)
	}
	defer src.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return fmt.Errorf("upload: create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, src); err != nil {
		_ = out.Close()
		return fmt.Errorf("upload: write %s: %w", dst, err)
	}
	return out.Close()
}
