package embedder

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/54b3r/raggpt-go/internal/rag"
)

// Default embedding models per backend.
const (
	defaultOllamaModel = "nomic-embed-text"
	defaultOpenAIModel = "text-embedding-3-small"
	defaultGeminiModel = "text-embedding-004"

	// defaultOllamaDimensions is the output dimension of nomic-embed-text.
	defaultOllamaDimensions = 768
	// defaultOpenAIDimensions is the output dimension of text-embedding-3-small.
	defaultOpenAIDimensions = 1536
	// defaultGeminiDimensions is the output dimension of text-embedding-004.
	defaultGeminiDimensions = 768

	// defaultBatchSize bounds the number of texts sent per embedding request.
	defaultBatchSize = 64
)

// Config is the resolved embedding configuration.
type Config struct {
	// Backend is ollama, openai, azure or gemini.
	Backend    string
	Model      string
	APIKey     string
	Endpoint   string
	APIVersion string
	// Dimensions is the vector size; callers creating collections rely on it.
	Dimensions int
	// BatchSize caps texts per request (default 64).
	BatchSize int
}

// ConfigFromEnv resolves the embedding configuration, inheriting from the
// chat provider settings when embedding-specific overrides are not set.
//
// Resolution order:
//
//  1. EMBEDDING_PROVIDER, else MODEL_PROVIDER, else ollama. A chat-only
//     backend (ark) falls back to ollama.
//  2. Per-backend credentials are inherited from the chat provider's env vars.
//  3. EMBEDDING_MODEL, EMBEDDING_API_KEY, EMBEDDING_ENDPOINT override them.
//  4. EMBEDDING_DIMENSIONS overrides the backend's default vector size.
func ConfigFromEnv() *Config {
	backend := os.Getenv("EMBEDDING_PROVIDER")
	if backend == "" {
		backend = getEnvOrDefault("MODEL_PROVIDER", "ollama")
		if backend == "ark" {
			backend = "ollama"
		}
	}

	cfg := &Config{
		Backend:   backend,
		Model:     os.Getenv("EMBEDDING_MODEL"),
		APIKey:    os.Getenv("EMBEDDING_API_KEY"),
		Endpoint:  os.Getenv("EMBEDDING_ENDPOINT"),
		BatchSize: getEnvInt("EMBEDDING_BATCH_SIZE", defaultBatchSize),
	}

	switch backend {
	case "ollama":
		cfg.Model = orDefault(cfg.Model, defaultOllamaModel)
		cfg.Endpoint = orDefault(cfg.Endpoint, getEnvOrDefault("OLLAMA_HOST", "http://localhost:11434"))
	case "openai":
		cfg.Model = orDefault(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = orDefault(cfg.APIKey, os.Getenv("OPENAI_API_KEY"))
		cfg.Endpoint = orDefault(cfg.Endpoint, "https://api.openai.com/v1")
	case "azure":
		cfg.Model = orDefault(cfg.Model, defaultOpenAIModel)
		cfg.APIKey = orDefault(cfg.APIKey, os.Getenv("AZURE_OPENAI_API_KEY"))
		cfg.Endpoint = orDefault(cfg.Endpoint, os.Getenv("AZURE_OPENAI_ENDPOINT"))
		cfg.APIVersion = getEnvOrDefault("AZURE_OPENAI_API_VERSION", "2025-04-01-preview")
	case "gemini":
		cfg.Model = orDefault(cfg.Model, defaultGeminiModel)
		cfg.APIKey = orDefault(cfg.APIKey, os.Getenv("GOOGLE_API_KEY"))
	}
	cfg.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", DefaultDimensions(backend))
	return cfg
}

// DefaultDimensions returns the default embedding vector size for the given
// backend name.
func DefaultDimensions(backend string) int {
	switch backend {
	case "ollama":
		return defaultOllamaDimensions
	case "gemini":
		return defaultGeminiDimensions
	default:
		return defaultOpenAIDimensions
	}
}

// New constructs a rag.Embedder for cfg, wrapped so large inputs are split
// into batches of cfg.BatchSize.
func New(ctx context.Context, cfg *Config) (rag.Embedder, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var inner rag.Embedder
	switch cfg.Backend {
	case "ollama":
		inner = NewOllamaEmbedder(&OllamaConfig{Host: cfg.Endpoint, Model: cfg.Model})
	case "openai":
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
	case "azure":
		inner = NewOpenAIEmbedder(&OpenAIConfig{
			BaseURL:    cfg.Endpoint + "/openai",
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Azure:      true,
			APIVersion: cfg.APIVersion,
		})
	case "gemini":
		g, err := NewGeminiEmbedder(ctx, &GeminiConfig{
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		inner = g
	}
	return NewBatched(inner, cfg.BatchSize), nil
}

// NewFromEnv is [New] over [ConfigFromEnv].
func NewFromEnv(ctx context.Context) (rag.Embedder, *Config, error) {
	cfg := ConfigFromEnv()
	e, err := New(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return e, cfg, nil
}

// Batched splits Embed calls into fixed-size requests against an inner
// embedder and concatenates the results in input order.
type Batched struct {
	inner rag.Embedder
	size  int
}

// NewBatched wraps inner. A size <= 0 selects the default batch size.
func NewBatched(inner rag.Embedder, size int) *Batched {
	if size <= 0 {
		size = defaultBatchSize
	}
	return &Batched{inner: inner, size: size}
}

// Embed implements rag.Embedder.
func (b *Batched) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += b.size {
		end := min(start+b.size, len(texts))
		vecs, err := b.inner.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedder: batch %d-%d: %w", start, end, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedder: batch %d-%d: expected %d embeddings, got %d", start, end, end-start, len(vecs))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

func orDefault(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

// getEnvOrDefault returns the value of the named environment variable, or
// fallback if the variable is unset or empty.
func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// getEnvInt returns the integer value of the named environment variable, or
// fallback if the variable is unset, empty, or not parseable.
func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
