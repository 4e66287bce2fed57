package rag

import (
	"fmt"
)

// Store backends selectable with VECTOR_STORE.
const (
	BackendSQLite = "sqlite"
	BackendQdrant = "qdrant"
)

// StoreConfig selects and configures one document store.
type StoreConfig struct {
	// Backend is BackendSQLite or BackendQdrant.
	Backend string
	// Dir is the persist directory for the SQLite backend.
	Dir string
	// Qdrant configures the Qdrant backend; Collection names the store.
	Qdrant QdrantConfig
}

// OpenStore constructs the VectorStore described by cfg.
func OpenStore(cfg StoreConfig) (VectorStore, error) {
	switch cfg.Backend {
	case BackendSQLite, "":
		if cfg.Dir == "" {
			return nil, fmt.Errorf("rag: sqlite store requires a persist directory")
		}
		return NewSQLiteStore(cfg.Dir), nil
	case BackendQdrant:
		q := cfg.Qdrant
		return NewQdrantStore(&q)
	default:
		return nil, fmt.Errorf("rag: unknown vector store %q, valid values: sqlite, qdrant", cfg.Backend)
	}
}

// Describe returns a short human-readable location for cfg, used in logs.
func (cfg StoreConfig) Describe() string {
	if cfg.Backend == BackendQdrant {
		return fmt.Sprintf("qdrant://%s:%d/%s", cfg.Qdrant.Host, cfg.Qdrant.Port, cfg.Qdrant.Collection)
	}
	return cfg.Dir
}
