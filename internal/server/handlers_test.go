package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/history"
)

// ---------------------------------------------------------------------------
// Fake responder
// ---------------------------------------------------------------------------

// fakeResponder appends canned exchanges the way the chatbot does.
type fakeResponder struct {
	answer string
	err    error

	modes   []chatbot.Mode
	temps   []float32
	uploads [][]string
}

func (f *fakeResponder) Respond(_ context.Context, l *history.Log, message string, mode chatbot.Mode, temperature float32) (chatbot.Turn, error) {
	f.modes = append(f.modes, mode)
	f.temps = append(f.temps, temperature)
	if f.err != nil {
		return chatbot.Turn{}, f.err
	}
	l.Append(message, f.answer)
	return chatbot.Turn{History: l.Exchanges(), References: "# Retrieved content 1:\nctx\n\n"}, nil
}

func (f *fakeResponder) ProcessUpload(_ context.Context, files []string, l *history.Log, mode chatbot.Mode) (chatbot.Turn, error) {
	f.modes = append(f.modes, mode)
	f.uploads = append(f.uploads, files)
	if len(files) == 0 {
		return chatbot.Turn{}, chatbot.ErrNoFiles
	}
	if f.err != nil {
		return chatbot.Turn{}, f.err
	}
	l.Append(" ", chatbot.MsgUploadReady)
	return chatbot.Turn{History: l.Exchanges()}, nil
}

// newTestServer builds a Server over bot with in-memory sessions, an
// isolated registry, and a temporary upload directory.
func newTestServer(t *testing.T, bot responder, mutate ...func(*Config)) (*Server, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	cfg := &Config{
		Logger:          slog.New(slog.DiscardHandler),
		UploadDir:       t.TempDir(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		RateLimit:       1000,
		RateBurst:       1000,
	}
	for _, m := range mutate {
		m(cfg)
	}
	s, err := newServer(bot, history.NewSessions(nil, nil), cfg)
	if err != nil {
		t.Fatalf("newServer() error: %v", err)
	}
	t.Cleanup(s.stopRL)
	return s, reg
}

func do(t *testing.T, s *Server, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// POST /api/chat
// ---------------------------------------------------------------------------

func TestHandleChat_Validation(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{})
	cases := map[string]string{
		"invalid json":    `not-json`,
		"missing message": `{"sessionId":"s1"}`,
	}
	for name, body := range cases {
		if w := do(t, s, http.MethodPost, "/api/chat", body); w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected 400, got %d", name, w.Code)
		}
	}
}

func TestHandleChat_Success(t *testing.T) {
	t.Parallel()

	bot := &fakeResponder{answer: "42"}
	s, reg := newTestServer(t, bot, func(c *Config) { c.DefaultTemperature = 0.3 })

	w := do(t, s, http.MethodPost, "/api/chat",
		`{"sessionId":"s1","message":"meaning?","mode":"Upload doc: Process for RAG"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp turnResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.SessionID != "s1" || resp.Input != "" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if len(resp.History) != 1 || resp.History[0].Bot != "42" {
		t.Errorf("history = %+v", resp.History)
	}
	if resp.References == "" {
		t.Error("expected references in response")
	}
	if bot.modes[0] != chatbot.ModeUploadRAG || bot.temps[0] != 0.3 {
		t.Errorf("mode=%q temperature=%v", bot.modes[0], bot.temps[0])
	}

	if got := testutil.ToFloat64(s.metrics.chatRequestsTotal.WithLabelValues("ok", "upload-rag")); got != 1 {
		t.Errorf("chat ok counter = %v, want 1", got)
	}
	if n, err := testutil.GatherAndCount(reg, "raggpt_http_requests_total"); err != nil || n == 0 {
		t.Errorf("http request metric not gathered: n=%d err=%v", n, err)
	}
}

func TestHandleChat_HistoryAccumulates(t *testing.T) {
	t.Parallel()

	bot := &fakeResponder{answer: "ok"}
	s, _ := newTestServer(t, bot)

	for range 3 {
		if w := do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q","temperature":0.9}`); w.Code != http.StatusOK {
			t.Fatalf("expected 200, got %d", w.Code)
		}
	}
	w := do(t, s, http.MethodGet, "/api/history?sessionId=s1", "")
	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.History) != 3 {
		t.Errorf("expected 3 exchanges, got %d", len(resp.History))
	}
	if bot.temps[2] != 0.9 {
		t.Errorf("temperature = %v, want 0.9", bot.temps[2])
	}
}

func TestHandleChat_NewSession(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{answer: "hi"})
	w := do(t, s, http.MethodPost, "/api/chat", `{"message":"hello"}`)
	var resp turnResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.SessionID == "" {
		t.Error("expected a generated session id")
	}
}

func TestHandleChat_UpstreamError(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{err: errors.New("LLM unavailable")})
	w := do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q"}`)

	if w.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", w.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(resp.Error, "LLM unavailable") {
		t.Errorf("error = %q", resp.Error)
	}
}

// ---------------------------------------------------------------------------
// POST /api/upload
// ---------------------------------------------------------------------------

func multipartBody(t *testing.T, fields map[string]string, files map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatal(err)
		}
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("files", name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := fw.Write([]byte(content)); err != nil {
			t.Fatal(err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatal(err)
	}
	return &buf, mw.FormDataContentType()
}

func TestHandleUpload_SavesFilesPerSession(t *testing.T) {
	t.Parallel()

	bot := &fakeResponder{}
	s, _ := newTestServer(t, bot)

	body, ct := multipartBody(t,
		map[string]string{"sessionId": "s1", "mode": "upload-rag"},
		map[string]string{"../../evil.pdf": "%PDF-1.4"},
	)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	want := filepath.Join(s.cfg.UploadDir, "s1", "evil.pdf")
	if len(bot.uploads) != 1 || len(bot.uploads[0]) != 1 || bot.uploads[0][0] != want {
		t.Fatalf("uploads = %v, want [%s]", bot.uploads, want)
	}
	if data, err := os.ReadFile(want); err != nil || string(data) != "%PDF-1.4" {
		t.Errorf("saved file = %q, %v", data, err)
	}

	var resp turnResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.History) != 1 || resp.History[0].Bot != chatbot.MsgUploadReady {
		t.Errorf("history = %+v", resp.History)
	}
}

func TestHandleUpload_NoFiles(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{})
	body, ct := multipartBody(t, map[string]string{"sessionId": "s1", "mode": "upload-rag"}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

func TestHandleUpload_RejectsUnsafeSessionID(t *testing.T) {
	t.Parallel()

	for _, id := range []string{"..", ".", "a/b", `a\b`, "../s1"} {
		t.Run(id, func(t *testing.T) {
			t.Parallel()

			bot := &fakeResponder{}
			s, _ := newTestServer(t, bot)
			body, ct := multipartBody(t,
				map[string]string{"sessionId": id, "mode": "upload-rag"},
				map[string]string{"x.pdf": "%PDF-1.4"},
			)
			req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
			req.Header.Set("Content-Type", ct)
			w := httptest.NewRecorder()
			s.Handler().ServeHTTP(w, req)

			if w.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
			}
			if len(bot.uploads) != 0 {
				t.Errorf("upload processor called with %v", bot.uploads)
			}
			if _, err := os.Stat(filepath.Join(filepath.Dir(s.cfg.UploadDir), "x.pdf")); !os.IsNotExist(err) {
				t.Errorf("file written outside the upload directory: %v", err)
			}
		})
	}
}

func TestHandleUpload_NotMultipart(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{})
	if w := do(t, s, http.MethodPost, "/api/upload", `{}`); w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Feedback and history
// ---------------------------------------------------------------------------

func TestHandleFeedback(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{answer: "good answer"})
	do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q"}`)

	w := do(t, s, http.MethodPost, "/api/feedback", `{"sessionId":"s1","index":0,"liked":true}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var resp feedbackResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "You upvoted this response" {
		t.Errorf("message = %q", resp.Message)
	}
	if got := testutil.ToFloat64(s.metrics.feedbackTotal.WithLabelValues("up")); got != 1 {
		t.Errorf("up votes = %v, want 1", got)
	}

	w = do(t, s, http.MethodPost, "/api/feedback", `{"sessionId":"s1","index":0,"liked":false}`)
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Message != "You downvoted this response" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestFeedbackStore_ExposesPersistedVotes(t *testing.T) {
	t.Parallel()

	store, err := history.Open(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	reg := prometheus.NewRegistry()
	s, err := newServer(&fakeResponder{answer: "a"}, history.NewSessions(store, nil), &Config{
		Logger:          slog.New(slog.DiscardHandler),
		UploadDir:       t.TempDir(),
		MetricsRegistry: reg,
		MetricsGatherer: reg,
		FeedbackStore:   store,
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(s.stopRL)

	do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q"}`)
	for _, body := range []string{
		`{"sessionId":"s1","index":0,"liked":true}`,
		`{"sessionId":"s1","index":0,"liked":true}`,
		`{"sessionId":"s1","index":0,"liked":false}`,
	} {
		if w := do(t, s, http.MethodPost, "/api/feedback", body); w.Code != http.StatusOK {
			t.Fatalf("feedback: expected 200, got %d", w.Code)
		}
	}

	const want = `
# HELP raggpt_feedback_recorded_votes Votes persisted in the history store, partitioned by direction.
# TYPE raggpt_feedback_recorded_votes gauge
raggpt_feedback_recorded_votes{vote="down"} 1
raggpt_feedback_recorded_votes{vote="up"} 2
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(want), "raggpt_feedback_recorded_votes"); err != nil {
		t.Error(err)
	}
}

func TestHandleFeedback_Errors(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{answer: "a"})
	do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q"}`)

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `nope`, http.StatusBadRequest},
		{"missing session", `{"index":0}`, http.StatusBadRequest},
		{"unknown session", `{"sessionId":"ghost","index":0}`, http.StatusNotFound},
		{"index out of range", `{"sessionId":"s1","index":5}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if w := do(t, s, http.MethodPost, "/api/feedback", tc.body); w.Code != tc.want {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.want, w.Code)
		}
	}
}

func TestHandleHistory_Reset(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{answer: "a"})
	do(t, s, http.MethodPost, "/api/chat", `{"sessionId":"s1","message":"q"}`)

	if w := do(t, s, http.MethodDelete, "/api/history?sessionId=s1", ""); w.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", w.Code)
	}
	w := do(t, s, http.MethodGet, "/api/history?sessionId=s1", "")
	var resp historyResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.History == nil || len(resp.History) != 0 {
		t.Errorf("expected empty history array, got %+v", resp.History)
	}
	if w := do(t, s, http.MethodGet, "/api/history", ""); w.Code != http.StatusBadRequest {
		t.Errorf("missing sessionId: expected 400, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Routing
// ---------------------------------------------------------------------------

func TestRoutes_AuthAppliesToAPIOnly(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{answer: "a"}, func(c *Config) { c.APIKey = "secret" })

	if w := do(t, s, http.MethodPost, "/api/chat", `{"message":"q"}`); w.Code != http.StatusUnauthorized {
		t.Errorf("chat without token: expected 401, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/api/health", ""); w.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", w.Code)
	}
	if w := do(t, s, http.MethodGet, "/metrics", ""); w.Code != http.StatusOK {
		t.Errorf("metrics: expected 200, got %d", w.Code)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/chat", strings.NewReader(`{"message":"q"}`))
	req.Header.Set("Authorization", "Bearer secret")
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("chat with token: expected 200, got %d", w.Code)
	}
}

func TestRoutes_MethodNotAllowed(t *testing.T) {
	t.Parallel()

	s, _ := newTestServer(t, &fakeResponder{})
	if w := do(t, s, http.MethodGet, "/api/chat", ""); w.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected 405, got %d", w.Code)
	}
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	if _, err := New(nil, history.NewSessions(nil, nil), nil); err == nil {
		t.Error("expected error for nil chatbot")
	}
	if _, err := newServer(&fakeResponder{}, nil, nil); err == nil {
		t.Error("expected error for nil sessions")
	}
}
