package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/raggpt-go/internal/chatbot"
	"github.com/54b3r/raggpt-go/internal/config"
	"github.com/54b3r/raggpt-go/internal/embedder"
	"github.com/54b3r/raggpt-go/internal/ingestion"
	"github.com/54b3r/raggpt-go/internal/provider"
	"github.com/54b3r/raggpt-go/internal/rag"
	"github.com/54b3r/raggpt-go/internal/reference"
	"github.com/54b3r/raggpt-go/internal/server"
	"github.com/54b3r/raggpt-go/internal/summarizer"
)

// storeConfigs returns the primary and custom store configurations.
// Both share one backend; they differ in directory or collection.
func storeConfigs(s *config.Settings, dims int) (primary, custom rag.StoreConfig) {
	qdrant := rag.QdrantConfig{
		Host:       s.QdrantHost,
		Port:       s.QdrantPort,
		VectorSize: uint64(max(dims, 0)), //nolint:gosec // dims is non-negative
		APIKey:     s.QdrantAPIKey,
		UseTLS:     s.QdrantTLS,
	}
	primary = rag.StoreConfig{Backend: s.VectorStore, Dir: s.PersistDirectory, Qdrant: qdrant}
	primary.Qdrant.Collection = s.QdrantCollection
	custom = rag.StoreConfig{Backend: s.VectorStore, Dir: s.CustomPersistDirectory, Qdrant: qdrant}
	custom.Qdrant.Collection = s.QdrantCustomCollection
	return primary, custom
}

// buildEmbedder constructs the embedder and warns about likely
// misconfiguration.
func buildEmbedder(ctx context.Context, log *slog.Logger) (rag.Embedder, *embedder.Config, error) {
	emb, cfg, err := embedder.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise embedder: %w", err)
	}
	cfg.Warn(log)
	log.Info("embedder initialised",
		slog.String("provider", cfg.Backend),
		slog.String("model", cfg.Model),
		slog.Int("dimensions", cfg.Dimensions),
	)
	return emb, cfg, nil
}

// buildModel constructs the chat model.
func buildModel(ctx context.Context, log *slog.Logger) (model.ToolCallingChatModel, *provider.Config, error) {
	m, cfg, err := provider.NewFromEnv(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialise model provider: %w", err)
	}
	log.Info("provider initialised",
		slog.String("provider", string(cfg.Backend)),
		slog.String("model", cfg.ModelName()),
	)
	return m, cfg, nil
}

// stack is everything the chatbot needs, built once per command.
type stack struct {
	settings    *config.Settings
	model       model.ToolCallingChatModel
	providerCfg *provider.Config
	embedder    rag.Embedder
	primary     rag.VectorStore
	custom      rag.VectorStore
	primaryCfg  rag.StoreConfig
	customCfg   rag.StoreConfig
}

// buildStack constructs the model, the embedder, and both stores.
func buildStack(ctx context.Context, log *slog.Logger) (*stack, error) {
	settings, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	s := &stack{settings: settings}

	if s.model, s.providerCfg, err = buildModel(ctx, log); err != nil {
		return nil, err
	}
	emb, embCfg, err := buildEmbedder(ctx, log)
	if err != nil {
		return nil, err
	}
	s.embedder = emb

	s.primaryCfg, s.customCfg = storeConfigs(s.settings, embCfg.Dimensions)
	if s.primary, err = rag.OpenStore(s.primaryCfg); err != nil {
		return nil, fmt.Errorf("failed to open store %s: %w", s.primaryCfg.Describe(), err)
	}
	if s.custom, err = rag.OpenStore(s.customCfg); err != nil {
		_ = s.primary.Close()
		return nil, fmt.Errorf("failed to open store %s: %w", s.customCfg.Describe(), err)
	}
	log.Info("stores ready",
		slog.String("primary", s.primaryCfg.Describe()),
		slog.String("custom", s.customCfg.Describe()),
	)
	return s, nil
}

// close releases both stores.
func (s *stack) close() {
	_ = s.primary.Close()
	_ = s.custom.Close()
}

// summaryOptions maps the settings onto summarizer options.
func summaryOptions(st *config.Settings) summarizer.Options {
	return summarizer.Options{
		MaxFinalTokens:  st.SummaryMaxFinalTokens,
		TokenThreshold:  st.SummaryTokenThreshold,
		Temperature:     st.SummaryTemperature,
		ChunkSystemRole: st.SummarySystemRole,
		FinalSystemRole: st.SummaryFinalSystemRole,
		Overlap:         st.SummaryCharacterOverlap,
	}
}

// newChatBot wires the responder and the upload processor over s.
func (s *stack) newChatBot(log *slog.Logger) (*chatbot.ChatBot, error) {
	primary, err := rag.NewRetriever(s.embedder, s.primary, s.settings.RetrievalK)
	if err != nil {
		return nil, err
	}
	custom, err := rag.NewRetriever(s.embedder, s.custom, s.settings.RetrievalK)
	if err != nil {
		return nil, err
	}
	ingester, err := ingestion.NewPipeline(s.embedder, s.custom, &ingestion.Config{
		ChunkSize:    s.settings.ChunkSize,
		ChunkOverlap: s.settings.ChunkOverlap,
	})
	if err != nil {
		return nil, err
	}

	return chatbot.New(chatbot.Config{
		Model:            s.model,
		Provider:         s.providerCfg,
		Primary:          primary,
		Custom:           custom,
		CustomIngester:   ingester,
		Summarizer:       summarizer.New(s.model, s.providerCfg, log),
		SummaryOptions:   summaryOptions(s.settings),
		Cleaner:          reference.NewCleaner(s.settings.FilesBaseURL, s.settings.Substitutions, log),
		SystemRole:       s.settings.LLMSystemRole,
		TopK:             s.settings.RetrievalK,
		HistoryPairs:     s.settings.HistoryPairs,
		MaxContextTokens: s.settings.MaxContextTokens,
	})
}

// pingers returns the readiness probes for serve.
func (s *stack) pingers() []server.Pinger {
	p := []server.Pinger{
		server.NewLLMPinger(s.model, string(s.providerCfg.Backend)),
		server.NewStorePinger(s.primary, "store"),
	}
	if q, ok := s.primary.(*rag.QdrantStore); ok {
		p = append(p, server.NewQdrantPinger(q.Client()))
	}
	return p
}
