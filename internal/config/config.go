// Package config provides YAML-based configuration for raggpt.
// Configuration is loaded with a layered precedence: defaults → YAML file → env vars.
// Environment variables always win, so a deployment can override any single
// value without editing the file.
//
// File search order:
//  1. --config CLI flag (explicit path)
//  2. RAGGPT_CONFIG environment variable
//  3. ~/.raggpt/config.yaml
//  4. ./raggpt.yaml
//
// If no file is found the system runs entirely from env vars and the defaults
// resolved by [FromEnv].
package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration structure.
// Field names use yaml tags that mirror the env var naming (lowercase, underscored).
type Config struct {
	// Model configures the LLM chat model provider.
	Model ModelConfig `yaml:"model"`

	// Embedding configures the embedding provider for retrieval.
	Embedding EmbeddingConfig `yaml:"embedding"`

	// VectorStore configures the document stores queried by the chatbot.
	VectorStore VectorStoreConfig `yaml:"vector_store"`

	// Retrieval configures the responder's retrieval and prompt assembly.
	Retrieval RetrievalConfig `yaml:"retrieval"`

	// Summarizer configures full-document summarization.
	Summarizer SummarizerConfig `yaml:"summarizer"`

	// Server configures the chat API server.
	Server ServerConfig `yaml:"server"`

	// Files configures the static reference file server.
	Files FilesConfig `yaml:"files"`

	// Reference configures reference cleaning.
	Reference ReferenceConfig `yaml:"reference"`

	// Logging configures structured logging.
	Logging LoggingConfig `yaml:"logging"`

	// History configures conversation history persistence.
	History HistoryConfig `yaml:"history"`

	// Tracing configures Langfuse tracing integration.
	Tracing TracingConfig `yaml:"tracing"`
}

// ModelConfig holds LLM chat model settings.
type ModelConfig struct {
	// Provider selects the backend: ollama, openai, azure, ark, gemini.
	Provider string `yaml:"provider"`
	// MaxTokens is the maximum number of tokens in the response.
	MaxTokens int `yaml:"max_tokens"`
	// Temperature is the default sampling temperature (0.0–1.0).
	Temperature float32 `yaml:"temperature"`
	// Ollama holds Ollama-specific settings.
	Ollama OllamaConfig `yaml:"ollama"`
	// OpenAI holds OpenAI-specific settings.
	OpenAI OpenAIConfig `yaml:"openai"`
	// Azure holds Azure OpenAI-specific settings.
	Azure AzureConfig `yaml:"azure"`
	// Ark holds Volcengine Ark-specific settings.
	Ark ArkConfig `yaml:"ark"`
	// Gemini holds Google Gemini-specific settings.
	Gemini GeminiConfig `yaml:"gemini"`
}

// OllamaConfig holds Ollama provider settings.
type OllamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

// OpenAIConfig holds OpenAI provider settings.
type OpenAIConfig struct {
	// APIKey is the OpenAI API key. Prefer env var OPENAI_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// AzureConfig holds Azure OpenAI provider settings.
type AzureConfig struct {
	// APIKey is the Azure OpenAI API key. Prefer env var AZURE_OPENAI_API_KEY.
	APIKey     string `yaml:"api_key"`
	Endpoint   string `yaml:"endpoint"`
	Deployment string `yaml:"deployment"`
	APIVersion string `yaml:"api_version"`
}

// ArkConfig holds Volcengine Ark provider settings.
type ArkConfig struct {
	// APIKey is the Ark API key. Prefer env var ARK_API_KEY.
	APIKey  string `yaml:"api_key"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// GeminiConfig holds Google Gemini provider settings.
type GeminiConfig struct {
	// APIKey is the Google API key. Prefer env var GOOGLE_API_KEY.
	APIKey string `yaml:"api_key"`
	Model  string `yaml:"model"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider"`
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	// APIKey is the embedding API key. Prefer env var EMBEDDING_API_KEY.
	APIKey   string `yaml:"api_key"`
	Endpoint string `yaml:"endpoint"`
}

// VectorStoreConfig selects the vector store backend and its locations.
type VectorStoreConfig struct {
	// Backend is sqlite (local persist directories) or qdrant.
	Backend string `yaml:"backend"`
	// PersistDirectory holds the preprocessed document store (sqlite backend).
	PersistDirectory string `yaml:"persist_directory"`
	// CustomPersistDirectory holds the store built from uploads (sqlite backend).
	CustomPersistDirectory string `yaml:"custom_persist_directory"`
	// ChunkSize is the ingestion chunk size in characters.
	ChunkSize int `yaml:"chunk_size"`
	// ChunkOverlap is the ingestion chunk overlap in characters.
	ChunkOverlap int `yaml:"chunk_overlap"`
	// Qdrant holds the Qdrant connection (qdrant backend).
	Qdrant QdrantConfig `yaml:"qdrant"`
}

// QdrantConfig holds Qdrant vector store settings.
type QdrantConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// Collection holds the preprocessed documents.
	Collection string `yaml:"collection"`
	// CustomCollection holds documents ingested from uploads.
	CustomCollection string `yaml:"custom_collection"`
	// APIKey is the Qdrant API key. Prefer env var QDRANT_API_KEY.
	APIKey string `yaml:"api_key"`
	TLS    bool   `yaml:"tls"`
}

// RetrievalConfig holds responder settings.
type RetrievalConfig struct {
	// K is the number of documents retrieved per question.
	K int `yaml:"k"`
	// HistoryPairs is the number of recent exchanges injected into the prompt.
	HistoryPairs int `yaml:"history_pairs"`
	// SystemRole is the system instruction for answer generation.
	SystemRole string `yaml:"system_role"`
	// MaxContextTokens is the prompt size above which a warning is logged.
	MaxContextTokens int `yaml:"max_context_tokens"`
}

// SummarizerConfig holds full-document summary settings.
type SummarizerConfig struct {
	MaxFinalTokens   int     `yaml:"max_final_tokens"`
	TokenThreshold   int     `yaml:"token_threshold"`
	CharacterOverlap int     `yaml:"character_overlap"`
	Temperature      float32 `yaml:"temperature"`
	// SystemRole is the per-chunk instruction; "{}" receives the token budget.
	SystemRole      string `yaml:"system_role"`
	FinalSystemRole string `yaml:"final_system_role"`
}

// ServerConfig holds chat API server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	// APIKey is the Bearer token for API authentication. Prefer env var RAGGPT_API_KEY.
	APIKey string `yaml:"api_key"`
	// UploadDir is where uploaded files are written before processing.
	UploadDir string `yaml:"upload_dir"`
}

// FilesConfig holds static reference file server settings.
type FilesConfig struct {
	Port int `yaml:"port"`
	// DataDirectory is searched first.
	DataDirectory string `yaml:"data_directory"`
	// DataDirectory2 is searched second.
	DataDirectory2 string `yaml:"data_directory_2"`
	// BaseURL is the address reference links point at.
	BaseURL string `yaml:"base_url"`
}

// ReferenceConfig holds reference cleaning settings.
type ReferenceConfig struct {
	// Substitutions maps mis-encoded sequences to their replacement and is
	// merged over the built-in table.
	Substitutions map[string]string `yaml:"substitutions"`
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// HistoryConfig holds conversation history settings.
type HistoryConfig struct {
	// DBPath is the SQLite database path. Set to "disabled" to disable.
	DBPath string `yaml:"db_path"`
}

// TracingConfig holds Langfuse tracing settings.
type TracingConfig struct {
	PublicKey string `yaml:"public_key"`
	SecretKey string `yaml:"secret_key"`
	Host      string `yaml:"host"`
}

// envMapping maps YAML config fields to their corresponding env var names.
// Only non-empty YAML values are applied; env vars always take precedence.
var envMapping = []struct {
	envKey string
	value  func(*Config) string
}{
	{"MODEL_PROVIDER", func(c *Config) string { return c.Model.Provider }},
	{"MODEL_MAX_TOKENS", func(c *Config) string { return intStr(c.Model.MaxTokens) }},
	{"MODEL_TEMPERATURE", func(c *Config) string { return float32Str(c.Model.Temperature) }},
	{"OLLAMA_HOST", func(c *Config) string { return c.Model.Ollama.Host }},
	{"OLLAMA_MODEL", func(c *Config) string { return c.Model.Ollama.Model }},
	{"OPENAI_API_KEY", func(c *Config) string { return c.Model.OpenAI.APIKey }},
	{"OPENAI_MODEL", func(c *Config) string { return c.Model.OpenAI.Model }},
	{"AZURE_OPENAI_API_KEY", func(c *Config) string { return c.Model.Azure.APIKey }},
	{"AZURE_OPENAI_ENDPOINT", func(c *Config) string { return c.Model.Azure.Endpoint }},
	{"AZURE_OPENAI_DEPLOYMENT", func(c *Config) string { return c.Model.Azure.Deployment }},
	{"AZURE_OPENAI_API_VERSION", func(c *Config) string { return c.Model.Azure.APIVersion }},
	{"ARK_API_KEY", func(c *Config) string { return c.Model.Ark.APIKey }},
	{"ARK_BASE_URL", func(c *Config) string { return c.Model.Ark.BaseURL }},
	{"ARK_MODEL", func(c *Config) string { return c.Model.Ark.Model }},
	{"GOOGLE_API_KEY", func(c *Config) string { return c.Model.Gemini.APIKey }},
	{"GEMINI_MODEL", func(c *Config) string { return c.Model.Gemini.Model }},
	{"EMBEDDING_PROVIDER", func(c *Config) string { return c.Embedding.Provider }},
	{"EMBEDDING_MODEL", func(c *Config) string { return c.Embedding.Model }},
	{"EMBEDDING_DIMENSIONS", func(c *Config) string { return intStr(c.Embedding.Dimensions) }},
	{"EMBEDDING_API_KEY", func(c *Config) string { return c.Embedding.APIKey }},
	{"EMBEDDING_ENDPOINT", func(c *Config) string { return c.Embedding.Endpoint }},
	{"VECTOR_STORE", func(c *Config) string { return c.VectorStore.Backend }},
	{"PERSIST_DIRECTORY", func(c *Config) string { return c.VectorStore.PersistDirectory }},
	{"CUSTOM_PERSIST_DIRECTORY", func(c *Config) string { return c.VectorStore.CustomPersistDirectory }},
	{"CHUNK_SIZE", func(c *Config) string { return intStr(c.VectorStore.ChunkSize) }},
	{"CHUNK_OVERLAP", func(c *Config) string { return intStr(c.VectorStore.ChunkOverlap) }},
	{"QDRANT_HOST", func(c *Config) string { return c.VectorStore.Qdrant.Host }},
	{"QDRANT_PORT", func(c *Config) string { return intStr(c.VectorStore.Qdrant.Port) }},
	{"QDRANT_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.Collection }},
	{"QDRANT_CUSTOM_COLLECTION", func(c *Config) string { return c.VectorStore.Qdrant.CustomCollection }},
	{"QDRANT_API_KEY", func(c *Config) string { return c.VectorStore.Qdrant.APIKey }},
	{"QDRANT_TLS", func(c *Config) string { return boolStr(c.VectorStore.Qdrant.TLS) }},
	{"RETRIEVAL_K", func(c *Config) string { return intStr(c.Retrieval.K) }},
	{"HISTORY_PAIRS", func(c *Config) string { return intStr(c.Retrieval.HistoryPairs) }},
	{"LLM_SYSTEM_ROLE", func(c *Config) string { return c.Retrieval.SystemRole }},
	{"MAX_CONTEXT_TOKENS", func(c *Config) string { return intStr(c.Retrieval.MaxContextTokens) }},
	{"SUMMARIZER_MAX_FINAL_TOKENS", func(c *Config) string { return intStr(c.Summarizer.MaxFinalTokens) }},
	{"SUMMARIZER_TOKEN_THRESHOLD", func(c *Config) string { return intStr(c.Summarizer.TokenThreshold) }},
	{"SUMMARIZER_CHARACTER_OVERLAP", func(c *Config) string { return intStr(c.Summarizer.CharacterOverlap) }},
	{"SUMMARIZER_TEMPERATURE", func(c *Config) string { return float32Str(c.Summarizer.Temperature) }},
	{"SUMMARIZER_SYSTEM_ROLE", func(c *Config) string { return c.Summarizer.SystemRole }},
	{"SUMMARIZER_FINAL_SYSTEM_ROLE", func(c *Config) string { return c.Summarizer.FinalSystemRole }},
	{"SERVER_HOST", func(c *Config) string { return c.Server.Host }},
	{"SERVER_PORT", func(c *Config) string { return intStr(c.Server.Port) }},
	{"RAGGPT_API_KEY", func(c *Config) string { return c.Server.APIKey }},
	{"UPLOAD_DIR", func(c *Config) string { return c.Server.UploadDir }},
	{"FILES_PORT", func(c *Config) string { return intStr(c.Files.Port) }},
	{"DATA_DIRECTORY", func(c *Config) string { return c.Files.DataDirectory }},
	{"DATA_DIRECTORY_2", func(c *Config) string { return c.Files.DataDirectory2 }},
	{"FILES_BASE_URL", func(c *Config) string { return c.Files.BaseURL }},
	{"REFERENCE_SUBSTITUTIONS", func(c *Config) string { return mapStr(c.Reference.Substitutions) }},
	{"LOG_LEVEL", func(c *Config) string { return c.Logging.Level }},
	{"LOG_FORMAT", func(c *Config) string { return c.Logging.Format }},
	{"HISTORY_DB", func(c *Config) string { return c.History.DBPath }},
	{"LANGFUSE_PUBLIC_KEY", func(c *Config) string { return c.Tracing.PublicKey }},
	{"LANGFUSE_SECRET_KEY", func(c *Config) string { return c.Tracing.SecretKey }},
	{"LANGFUSE_HOST", func(c *Config) string { return c.Tracing.Host }},
}

// Load reads a YAML config file and applies non-empty values as environment
// variables. Existing env vars are never overwritten (env always wins).
// Returns the path that was loaded, or empty string if no file was found.
func Load(explicitPath string, log *slog.Logger) (string, error) {
	path := resolveConfigPath(explicitPath)
	if path == "" {
		log.Debug("config: no YAML config file found, using env vars only")
		return "", nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return "", fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applied := 0
	for _, m := range envMapping {
		yamlVal := m.value(&cfg)
		if yamlVal == "" || yamlVal == "0" || yamlVal == "false" {
			continue
		}
		if os.Getenv(m.envKey) != "" {
			continue // env var already set — do not override
		}
		os.Setenv(m.envKey, yamlVal)
		applied++
	}

	log.Info("config: loaded YAML config",
		slog.String("path", path),
		slog.Int("keys_applied", applied),
	)

	return path, nil
}

// resolveConfigPath returns the first config file path that exists.
func resolveConfigPath(explicit string) string {
	if explicit != "" {
		if _, err := os.Stat(explicit); err == nil {
			return explicit
		}
		return ""
	}

	if envPath := os.Getenv("RAGGPT_CONFIG"); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	home, err := os.UserHomeDir()
	if err == nil {
		p := filepath.Join(home, ".raggpt", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	if _, err := os.Stat("raggpt.yaml"); err == nil {
		return "raggpt.yaml"
	}

	return ""
}

// intStr converts an int to string, returning "" for zero values.
func intStr(v int) string {
	if v == 0 {
		return ""
	}
	return fmt.Sprintf("%d", v)
}

// float32Str converts a float32 to string, returning "" for zero values.
func float32Str(v float32) string {
	if v == 0 {
		return ""
	}
	return strings.TrimRight(strings.TrimRight(fmt.Sprintf("%.4f", v), "0"), ".")
}

// boolStr converts a bool to string, returning "" for false.
func boolStr(v bool) string {
	if !v {
		return ""
	}
	return "true"
}

// mapStr encodes a string map as a JSON object, returning "" for empty maps.
func mapStr(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(b)
}
