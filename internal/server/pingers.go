package server

import (
	"context"
	"errors"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/qdrant/go-client/qdrant"

	"github.com/54b3r/raggpt-go/internal/provider"
	"github.com/54b3r/raggpt-go/internal/rag"
)

// LLMPinger probes the chat model with a one-token completion.
type LLMPinger struct {
	model provider.Completer
	name  string
}

// NewLLMPinger constructs an LLMPinger labelled with the backend name.
func NewLLMPinger(m provider.Completer, name string) *LLMPinger {
	return &LLMPinger{model: m, name: name}
}

// Name returns the backend label.
func (p *LLMPinger) Name() string { return p.name }

// Ping sends "ping" and expects any reply.
func (p *LLMPinger) Ping(ctx context.Context) error {
	if _, err := provider.Complete(ctx, p.model, "Reply with one word.", "ping", model.WithMaxTokens(1)); err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	return nil
}

// QdrantPinger probes a Qdrant instance using its HealthCheck RPC.
type QdrantPinger struct {
	client *qdrant.Client
}

// NewQdrantPinger constructs a QdrantPinger for the given client.
func NewQdrantPinger(client *qdrant.Client) *QdrantPinger {
	return &QdrantPinger{client: client}
}

// Name returns "qdrant".
func (p *QdrantPinger) Name() string { return "qdrant" }

// Ping calls the Qdrant HealthCheck RPC.
func (p *QdrantPinger) Ping(ctx context.Context) error {
	if _, err := p.client.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	return nil
}

// errStoreNotBuilt is reported by StorePinger for a store nobody has
// ingested into yet.
var errStoreNotBuilt = errors.New("store has not been built; run 'raggpt ingest'")

// StorePinger reports whether a vector store has been built.
type StorePinger struct {
	store rag.VectorStore
	name  string
}

// NewStorePinger constructs a StorePinger labelled name.
func NewStorePinger(store rag.VectorStore, name string) *StorePinger {
	return &StorePinger{store: store, name: name}
}

// Name returns the store label.
func (p *StorePinger) Name() string { return p.name }

// Ping fails when the store cannot be checked or does not exist.
func (p *StorePinger) Ping(ctx context.Context) error {
	ok, err := p.store.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return errStoreNotBuilt
	}
	return nil
}
