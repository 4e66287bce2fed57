package server

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/54b3r/raggpt-go/internal/logging"
)

func TestAuthMiddleware(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		apiKey    string
		header    string
		want      int
		challenge bool
	}{
		{"disabled", "", "", http.StatusOK, false},
		{"missing header", "secret", "", http.StatusUnauthorized, true},
		{"wrong token", "secret", "Bearer wrong-token", http.StatusUnauthorized, true},
		{"wrong scheme", "secret", "Basic secret", http.StatusUnauthorized, true},
		{"valid token", "secret", "Bearer secret", http.StatusOK, false},
		{"case-insensitive scheme", "secret", "bearer secret", http.StatusOK, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			authMiddleware(tc.apiKey, okHandler).ServeHTTP(w, req)

			if w.Code != tc.want {
				t.Errorf("expected %d, got %d", tc.want, w.Code)
			}
			if got := w.Header().Get("WWW-Authenticate") != ""; got != tc.challenge {
				t.Errorf("WWW-Authenticate present = %v, want %v", got, tc.challenge)
			}
		})
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	base := logging.NewWithWriter(&buf)

	var sawLogger bool
	h := requestLogger(base, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = logging.FromContext(r.Context()) != base
		w.WriteHeader(http.StatusTeapot)
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	if !sawLogger {
		t.Error("expected a request-scoped logger in the context")
	}
	out := buf.String()
	for _, want := range []string{"request_id", "/api/health", "418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()

	a, b := newRequestID(), newRequestID()
	if len(a) != 16 || a == b {
		t.Errorf("unexpected request ids %q, %q", a, b)
	}
}
