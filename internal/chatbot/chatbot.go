// Package chatbot answers questions over the document stores and processes
// uploaded files. Every user-visible outcome, including a missing store, is
// recorded as an exchange in the session's [history.Log].
package chatbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/54b3r/raggpt-go/internal/budget"
	"github.com/54b3r/raggpt-go/internal/history"
	"github.com/54b3r/raggpt-go/internal/ingestion"
	"github.com/54b3r/raggpt-go/internal/logging"
	"github.com/54b3r/raggpt-go/internal/provider"
	"github.com/54b3r/raggpt-go/internal/rag"
	"github.com/54b3r/raggpt-go/internal/reference"
	"github.com/54b3r/raggpt-go/internal/summarizer"
)

// Fixed messages appended to the conversation.
const (
	MsgStoreMissing    = "Vector store does not exist. Please first run 'raggpt ingest'."
	MsgNoUpload        = "No file was uploaded. Please first upload your files using the 'upload' button."
	MsgSummaryMode     = "Summary mode works on uploads. Please upload a PDF to receive its full summary."
	MsgUploadReady     = "Upload files are ready. Please ask your question"
	MsgSelectMode      = "If you would like to upload a PDF, please select your desired action in 'RAG with' dropdown."
	uploadUserSentinel = " "
)

// ErrNoFiles is returned by ProcessUpload when no file paths are given.
var ErrNoFiles = errors.New("chatbot: no files uploaded")

// Ingester indexes files into a vector store.
type Ingester interface {
	IngestFiles(ctx context.Context, paths []string, progress func(msg string)) (ingestion.Stats, error)
}

// Summarizer produces a document summary.
type Summarizer interface {
	Summarize(ctx context.Context, path string, opts summarizer.Options) (string, error)
}

// Config holds the dependencies and tuning of a ChatBot.
type Config struct {
	// Model answers questions.
	Model provider.Completer
	// Provider decides the per-call options; may be nil.
	Provider *provider.Config

	// Primary is the store built from the preprocessed documents.
	Primary rag.Retriever
	// Custom is the store built from uploads. It may be nil when uploads
	// are not configured, which reads as "nothing uploaded".
	Custom rag.Retriever
	// CustomIngester indexes uploads into the store behind Custom.
	CustomIngester Ingester
	// Summarizer handles upload-summary mode.
	Summarizer Summarizer
	// SummaryOptions parameterise every upload summary.
	SummaryOptions summarizer.Options

	Cleaner *reference.Cleaner

	// SystemRole frames every answer.
	SystemRole string
	// TopK is the number of retrieved documents per question. Defaults to 3.
	TopK int
	// HistoryPairs is the number of recent exchanges quoted in the prompt.
	// Defaults to 2.
	HistoryPairs int
	// MaxContextTokens is the prompt size above which a warning is logged.
	MaxContextTokens int
}

// Turn is the outcome of one interaction. Input is always empty so the UI
// clears its textbox.
type Turn struct {
	Input      string
	History    []history.Exchange
	References string
}

// ChatBot implements the responder and the upload processor.
type ChatBot struct {
	cfg Config
}

// New validates cfg and returns a ChatBot.
func New(cfg Config) (*ChatBot, error) {
	if cfg.Model == nil {
		return nil, fmt.Errorf("chatbot: Model must not be nil")
	}
	if cfg.Primary == nil {
		return nil, fmt.Errorf("chatbot: Primary retriever must not be nil")
	}
	if cfg.Cleaner == nil {
		return nil, fmt.Errorf("chatbot: Cleaner must not be nil")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 3
	}
	if cfg.HistoryPairs <= 0 {
		cfg.HistoryPairs = 2
	}
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = budget.DefaultMaxContextTokens
	}
	return &ChatBot{cfg: cfg}, nil
}

// Respond answers message from the store selected by mode and appends the
// exchange to log. A missing store is not an error: the warning becomes the
// bot's reply. Retrieval or model failures return an error and leave log
// unchanged.
func (c *ChatBot) Respond(ctx context.Context, log *history.Log, message string, mode Mode, temperature float32) (Turn, error) {
	logger := logging.FromContext(ctx).With(slog.String("mode", mode.String()))

	var (
		retriever rag.Retriever
		missing   string
	)
	switch mode {
	case ModeUploadRAG:
		retriever, missing = c.cfg.Custom, MsgNoUpload
	case ModeUploadSummary:
		log.Append(message, MsgSummaryMode)
		return turn(log, ""), nil
	default:
		retriever, missing = c.cfg.Primary, MsgStoreMissing
	}

	exists := false
	if retriever != nil {
		var err error
		if exists, err = retriever.Exists(ctx); err != nil {
			return Turn{}, fmt.Errorf("chatbot: checking store: %w", err)
		}
	}
	if !exists {
		logger.Warn("chatbot: store missing, nothing retrieved")
		log.Append(message, missing)
		return turn(log, ""), nil
	}

	docs, err := retriever.Retrieve(ctx, message, c.cfg.TopK)
	if err != nil {
		return Turn{}, fmt.Errorf("chatbot: retrieval failed: %w", err)
	}
	refs := c.cfg.Cleaner.Clean(docs)
	if refs.Skipped > 0 {
		logger.Warn("chatbot: skipped malformed references",
			slog.Int("kept", refs.Kept),
			slog.Int("skipped", refs.Skipped),
		)
	}

	prompt := BuildPrompt(log.Last(c.cfg.HistoryPairs), refs.Markdown, message)
	if tokens, over := budget.Prompt(c.cfg.SystemRole, prompt, c.cfg.MaxContextTokens); over {
		logger.Warn("budget: prompt exceeds context budget",
			slog.Int("estimated_tokens", tokens),
			slog.Int("max_tokens", c.cfg.MaxContextTokens),
		)
	}

	answer, err := provider.Complete(ctx, c.cfg.Model, c.cfg.SystemRole, prompt, c.cfg.Provider.CallOptions(temperature)...)
	if err != nil {
		return Turn{}, fmt.Errorf("chatbot: %w", err)
	}
	log.Append(message, answer)
	logger.Info("chatbot: answered",
		slog.Int("retrieved", len(docs)),
		slog.Int("history_len", log.Len()),
	)
	return turn(log, refs.Markdown), nil
}

// ProcessUpload runs the pipeline mode selects over files and appends its
// outcome to log. Only the first file is summarised in summary mode.
func (c *ChatBot) ProcessUpload(ctx context.Context, files []string, log *history.Log, mode Mode) (Turn, error) {
	logger := logging.FromContext(ctx).With(slog.String("mode", mode.String()))

	switch mode {
	case ModeUploadRAG:
		if len(files) == 0 {
			return Turn{}, ErrNoFiles
		}
		if c.cfg.CustomIngester == nil {
			return Turn{}, fmt.Errorf("chatbot: uploads are not configured")
		}
		stats, err := c.cfg.CustomIngester.IngestFiles(ctx, files, func(msg string) {
			logger.Debug(msg)
		})
		if err != nil {
			return Turn{}, fmt.Errorf("chatbot: indexing upload: %w", err)
		}
		logger.Info("chatbot: upload indexed",
			slog.Int("files", stats.Files),
			slog.Int("pages", stats.Pages),
			slog.Int("chunks", stats.Chunks),
		)
		log.Append(uploadUserSentinel, MsgUploadReady)

	case ModeUploadSummary:
		if len(files) == 0 {
			return Turn{}, ErrNoFiles
		}
		if c.cfg.Summarizer == nil {
			return Turn{}, fmt.Errorf("chatbot: summarizer is not configured")
		}
		if len(files) > 1 {
			logger.Warn("chatbot: only the first file is summarized",
				slog.String("file", files[0]),
				slog.Int("ignored", len(files)-1),
			)
		}
		summary, err := c.cfg.Summarizer.Summarize(ctx, files[0], c.cfg.SummaryOptions)
		if err != nil {
			return Turn{}, fmt.Errorf("chatbot: %w", err)
		}
		log.Append(uploadUserSentinel, summary)

	default:
		log.Append(uploadUserSentinel, MsgSelectMode)
	}
	return turn(log, ""), nil
}

// BuildPrompt assembles the user prompt: recent exchanges, the cleaned
// references, then the question.
func BuildPrompt(recent []history.Exchange, references, message string) string {
	var b strings.Builder
	b.WriteString("Chat history:\n")
	for _, e := range recent {
		fmt.Fprintf(&b, "User: %s\nAssistant: %s\n", e.User, e.Bot)
	}
	b.WriteString("\n")
	b.WriteString(references)
	b.WriteString("# User new question:\n")
	b.WriteString(message)
	return b.String()
}

func turn(log *history.Log, refs string) Turn {
	return Turn{History: log.Exchanges(), References: refs}
}
