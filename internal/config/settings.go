package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
)

// Default system roles. "{}" in DefaultSummarizerSystemRole receives the
// per-chunk token budget.
const (
	DefaultLLMSystemRole = `You are a chatbot. You will receive a prompt that includes the chat history, content retrieved from the document store for the user's question, and its source. Answer the user's new question using only the retrieved content, without relying on your own knowledge. If the retrieved content does not contain the answer, say so.

The prompt has the following format:

Chat history:
[previous questions and answers]

# Retrieved content <number>:
[content]
Source: [file] | Page number: [page]

# User new question:
[question]`

	DefaultSummarizerSystemRole = `You are an expert text summarizer. You will receive a text and your task is to summarize it and keep all the key information. Keep the summary within {} tokens.`

	DefaultFinalSummarizerSystemRole = `You are an expert text summarizer. You will receive a text and your task is to give a comprehensive summary that keeps all the key information.`
)

// Settings is the typed, defaulted view of the application options the
// commands need. It is resolved from the environment after [Load] has
// applied the YAML file.
type Settings struct {
	// VectorStore is "sqlite" or "qdrant".
	VectorStore            string
	PersistDirectory       string
	CustomPersistDirectory string
	QdrantHost             string
	QdrantPort             int
	QdrantCollection       string
	QdrantCustomCollection string
	QdrantAPIKey           string
	QdrantTLS              bool
	ChunkSize              int
	ChunkOverlap           int

	RetrievalK       int
	HistoryPairs     int
	LLMSystemRole    string
	MaxContextTokens int

	SummaryMaxFinalTokens   int
	SummaryTokenThreshold   int
	SummaryCharacterOverlap int
	SummaryTemperature      float32
	SummarySystemRole       string
	SummaryFinalSystemRole  string

	ServerHost string
	ServerPort int
	APIKey     string
	UploadDir  string

	FilesPort      int
	DataDirectory  string
	DataDirectory2 string
	FilesBaseURL   string

	// Substitutions are the configured reference substitution overrides.
	Substitutions map[string]string

	// HistoryDB is the conversation database path; "disabled" turns
	// persistence off and "" selects the default location.
	HistoryDB string
}

// FromEnv resolves [Settings] from environment variables, filling defaults
// for anything unset. A REFERENCE_SUBSTITUTIONS value that is not a JSON
// object of strings is an error.
func FromEnv() (*Settings, error) {
	s := &Settings{
		VectorStore:            getEnvOrDefault("VECTOR_STORE", "sqlite"),
		PersistDirectory:       getEnvOrDefault("PERSIST_DIRECTORY", "data/vectordb/processed"),
		CustomPersistDirectory: getEnvOrDefault("CUSTOM_PERSIST_DIRECTORY", "data/vectordb/uploaded"),
		QdrantHost:             getEnvOrDefault("QDRANT_HOST", "localhost"),
		QdrantPort:             getEnvInt("QDRANT_PORT", 6334),
		QdrantCollection:       getEnvOrDefault("QDRANT_COLLECTION", "raggpt-docs"),
		QdrantCustomCollection: getEnvOrDefault("QDRANT_CUSTOM_COLLECTION", "raggpt-uploads"),
		QdrantAPIKey:           os.Getenv("QDRANT_API_KEY"),
		QdrantTLS:              os.Getenv("QDRANT_TLS") == "true",
		ChunkSize:              getEnvInt("CHUNK_SIZE", 1500),
		ChunkOverlap:           getEnvInt("CHUNK_OVERLAP", 500),

		RetrievalK:       getEnvInt("RETRIEVAL_K", 3),
		HistoryPairs:     getEnvInt("HISTORY_PAIRS", 2),
		LLMSystemRole:    getEnvOrDefault("LLM_SYSTEM_ROLE", DefaultLLMSystemRole),
		MaxContextTokens: getEnvInt("MAX_CONTEXT_TOKENS", 6000),

		SummaryMaxFinalTokens:   getEnvInt("SUMMARIZER_MAX_FINAL_TOKENS", 3000),
		SummaryTokenThreshold:   getEnvInt("SUMMARIZER_TOKEN_THRESHOLD", 0),
		SummaryCharacterOverlap: getEnvInt("SUMMARIZER_CHARACTER_OVERLAP", 100),
		SummaryTemperature:      getEnvFloat32("SUMMARIZER_TEMPERATURE", 0),
		SummarySystemRole:       getEnvOrDefault("SUMMARIZER_SYSTEM_ROLE", DefaultSummarizerSystemRole),
		SummaryFinalSystemRole:  getEnvOrDefault("SUMMARIZER_FINAL_SYSTEM_ROLE", DefaultFinalSummarizerSystemRole),

		ServerHost: getEnvOrDefault("SERVER_HOST", "127.0.0.1"),
		ServerPort: getEnvInt("SERVER_PORT", 8080),
		APIKey:     os.Getenv("RAGGPT_API_KEY"),
		UploadDir:  getEnvOrDefault("UPLOAD_DIR", "data/uploads"),

		FilesPort:      getEnvInt("FILES_PORT", 8000),
		DataDirectory:  getEnvOrDefault("DATA_DIRECTORY", "data/docs"),
		DataDirectory2: getEnvOrDefault("DATA_DIRECTORY_2", "data/docs_2"),

		HistoryDB: os.Getenv("HISTORY_DB"),
	}
	s.FilesBaseURL = getEnvOrDefault("FILES_BASE_URL", "http://localhost:"+strconv.Itoa(s.FilesPort))

	if raw := os.Getenv("REFERENCE_SUBSTITUTIONS"); raw != "" {
		var subs map[string]string
		if err := json.Unmarshal([]byte(raw), &subs); err != nil {
			return nil, fmt.Errorf("config: REFERENCE_SUBSTITUTIONS must be a JSON object of strings: %w", err)
		}
		s.Substitutions = subs
	}

	return s, nil
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

// getEnvFloat32 returns the float32 value of the named environment variable,
// or fallback if the variable is unset, empty, or not parseable.
func getEnvFloat32(key string, fallback float32) float32 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 32); err == nil {
			return float32(f)
		}
	}
	return fallback
}
