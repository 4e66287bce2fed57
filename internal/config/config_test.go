package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_NoFile(t *testing.T) {
	t.Parallel()

	log := slog.Default()
	path, err := Load("/nonexistent/path/config.yaml", log)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if path != "" {
		t.Errorf("expected empty path, got %q", path)
	}
}

// clearEnv unsets keys for the duration of the test; t.Setenv restores them.
func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoad_ValidFile(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: openai
  max_tokens: 2048
  openai:
    model: gpt-4o-mini
embedding:
  provider: openai
  model: text-embedding-3-small
vector_store:
  backend: qdrant
  persist_directory: /srv/vectordb/processed
  chunk_size: 1200
  qdrant:
    host: qdrant.internal
    collection: papers
    custom_collection: papers-uploaded
retrieval:
  k: 4
  history_pairs: 3
summarizer:
  max_final_tokens: 2500
  character_overlap: 80
files:
  port: 9000
  data_directory: /srv/docs
  data_directory_2: /srv/docs_2
reference:
  substitutions:
    "Ã—": "×"
logging:
  level: debug
  format: text
`)

	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	clearEnv(t,
		"MODEL_PROVIDER", "MODEL_MAX_TOKENS", "OPENAI_MODEL",
		"EMBEDDING_PROVIDER", "EMBEDDING_MODEL",
		"VECTOR_STORE", "PERSIST_DIRECTORY", "CHUNK_SIZE",
		"QDRANT_HOST", "QDRANT_COLLECTION", "QDRANT_CUSTOM_COLLECTION",
		"RETRIEVAL_K", "HISTORY_PAIRS",
		"SUMMARIZER_MAX_FINAL_TOKENS", "SUMMARIZER_CHARACTER_OVERLAP",
		"FILES_PORT", "DATA_DIRECTORY", "DATA_DIRECTORY_2",
		"REFERENCE_SUBSTITUTIONS", "LOG_LEVEL", "LOG_FORMAT",
	)

	loaded, err := Load(cfgPath, slog.Default())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if loaded != cfgPath {
		t.Errorf("loaded path: got %q, want %q", loaded, cfgPath)
	}

	checks := map[string]string{
		"MODEL_PROVIDER":               "openai",
		"MODEL_MAX_TOKENS":             "2048",
		"OPENAI_MODEL":                 "gpt-4o-mini",
		"EMBEDDING_PROVIDER":           "openai",
		"EMBEDDING_MODEL":              "text-embedding-3-small",
		"VECTOR_STORE":                 "qdrant",
		"PERSIST_DIRECTORY":            "/srv/vectordb/processed",
		"CHUNK_SIZE":                   "1200",
		"QDRANT_HOST":                  "qdrant.internal",
		"QDRANT_COLLECTION":            "papers",
		"QDRANT_CUSTOM_COLLECTION":     "papers-uploaded",
		"RETRIEVAL_K":                  "4",
		"HISTORY_PAIRS":                "3",
		"SUMMARIZER_MAX_FINAL_TOKENS":  "2500",
		"SUMMARIZER_CHARACTER_OVERLAP": "80",
		"FILES_PORT":                   "9000",
		"DATA_DIRECTORY":               "/srv/docs",
		"DATA_DIRECTORY_2":             "/srv/docs_2",
		"REFERENCE_SUBSTITUTIONS":      `{"Ã—":"×"}`,
		"LOG_LEVEL":                    "debug",
		"LOG_FORMAT":                   "text",
	}
	for k, want := range checks {
		if got := os.Getenv(k); got != want {
			t.Errorf("%s: got %q, want %q", k, got, want)
		}
	}
}

func TestLoad_EnvOverridesYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	content := []byte(`
model:
  provider: ollama
`)
	if err := os.WriteFile(cfgPath, content, 0o644); err != nil {
		t.Fatal(err)
	}

	// Set env var BEFORE loading — it should NOT be overwritten.
	t.Setenv("MODEL_PROVIDER", "azure")

	if _, err := Load(cfgPath, slog.Default()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if got := os.Getenv("MODEL_PROVIDER"); got != "azure" {
		t.Errorf("MODEL_PROVIDER: expected env override %q, got %q", "azure", got)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	dir := t.TempDir()
	cfgPath := filepath.Join(dir, "config.yaml")

	if err := os.WriteFile(cfgPath, []byte("{{invalid yaml"), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(cfgPath, slog.Default()); err == nil {
		t.Fatal("expected error for invalid YAML")
	}
}

func TestFromEnv_Defaults(t *testing.T) {
	clearEnv(t,
		"VECTOR_STORE", "RETRIEVAL_K", "HISTORY_PAIRS", "FILES_PORT",
		"FILES_BASE_URL", "LLM_SYSTEM_ROLE", "REFERENCE_SUBSTITUTIONS",
		"SUMMARIZER_MAX_FINAL_TOKENS",
	)

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if s.VectorStore != "sqlite" {
		t.Errorf("VectorStore: got %q, want sqlite", s.VectorStore)
	}
	if s.RetrievalK != 3 || s.HistoryPairs != 2 {
		t.Errorf("retrieval defaults: got k=%d pairs=%d", s.RetrievalK, s.HistoryPairs)
	}
	if s.FilesBaseURL != "http://localhost:8000" {
		t.Errorf("FilesBaseURL: got %q", s.FilesBaseURL)
	}
	if s.LLMSystemRole != DefaultLLMSystemRole {
		t.Error("LLMSystemRole: expected default role")
	}
	if s.SummaryMaxFinalTokens != 3000 {
		t.Errorf("SummaryMaxFinalTokens: got %d", s.SummaryMaxFinalTokens)
	}
	if s.Substitutions != nil {
		t.Errorf("Substitutions: expected nil, got %v", s.Substitutions)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("FILES_PORT", "9100")
	t.Setenv("FILES_BASE_URL", "")
	os.Unsetenv("FILES_BASE_URL")
	t.Setenv("REFERENCE_SUBSTITUTIONS", `{"Â·":"·"}`)
	t.Setenv("SUMMARIZER_TEMPERATURE", "0.4")

	s, err := FromEnv()
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}

	if s.FilesBaseURL != "http://localhost:9100" {
		t.Errorf("FilesBaseURL should follow FILES_PORT, got %q", s.FilesBaseURL)
	}
	if s.Substitutions["Â·"] != "·" {
		t.Errorf("Substitutions: got %v", s.Substitutions)
	}
	if s.SummaryTemperature != 0.4 {
		t.Errorf("SummaryTemperature: got %v", s.SummaryTemperature)
	}
}

func TestFromEnv_MalformedSubstitutions(t *testing.T) {
	for _, raw := range []string{`{"Ã—":`, `["Ã—", "×"]`, `{"Ã—": 1}`} {
		t.Setenv("REFERENCE_SUBSTITUTIONS", raw)
		s, err := FromEnv()
		if err == nil {
			t.Errorf("FromEnv with %q: expected error, got %+v", raw, s.Substitutions)
			continue
		}
		if !strings.Contains(err.Error(), "REFERENCE_SUBSTITUTIONS") {
			t.Errorf("error should name the variable, got %v", err)
		}
	}
}

func TestFloat32Str(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   float32
		want string
	}{
		{0.0, ""},
		{0.2, "0.2"},
		{0.3, "0.3"},
		{1.0, "1"},
	}
	for _, tt := range tests {
		if got := float32Str(tt.in); got != tt.want {
			t.Errorf("float32Str(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestMapStr(t *testing.T) {
	t.Parallel()
	if got := mapStr(nil); got != "" {
		t.Errorf("mapStr(nil) = %q, want empty", got)
	}
	if got := mapStr(map[string]string{"a": "b"}); got != `{"a":"b"}` {
		t.Errorf("mapStr = %q", got)
	}
}
