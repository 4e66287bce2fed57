// Package summarizer produces a full-document summary in two passes: every
// page is summarised with a sliding window of its neighbours, then the
// concatenated page summaries are condensed by one final call.
package summarizer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/cloudwego/eino/components/model"

	"github.com/54b3r/raggpt-go/internal/budget"
	"github.com/54b3r/raggpt-go/internal/loader"
	"github.com/54b3r/raggpt-go/internal/provider"
)

// budgetPlaceholders are the markers in the chunk system role that receive
// the per-chunk token budget.
var budgetPlaceholders = []string{"{}", "{max_tokens}"}

// Options parameterise one summary.
type Options struct {
	// MaxFinalTokens is the token budget shared by all chunk summaries.
	MaxFinalTokens int
	// TokenThreshold is subtracted from each chunk's share of MaxFinalTokens.
	TokenThreshold int
	// Model overrides the configured model identifier when non-empty.
	Model       string
	Temperature float32
	// ChunkSystemRole frames the per-page calls; "{}" receives the budget.
	ChunkSystemRole string
	// FinalSystemRole frames the condensing call.
	FinalSystemRole string
	// Overlap is the number of characters borrowed from each neighbouring page.
	Overlap int
}

// PageLoader loads the pages of one file.
type PageLoader func(ctx context.Context, path string) ([]loader.Page, error)

// Summarizer issues the model calls for a summary.
type Summarizer struct {
	model provider.Completer
	pcfg  *provider.Config
	load  PageLoader
	log   *slog.Logger
}

// New returns a Summarizer. pcfg may be nil; it only decides which per-call
// options the backend accepts.
func New(m provider.Completer, pcfg *provider.Config, log *slog.Logger) *Summarizer {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Summarizer{model: m, pcfg: pcfg, load: loader.LoadPages, log: log}
}

// WithLoader replaces the page loader.
func (s *Summarizer) WithLoader(l PageLoader) *Summarizer {
	s.load = l
	return s
}

// Summarize loads path and returns its final summary. A document with more
// than one page costs one call per page plus the final call; a single page
// goes straight to the final call. Model errors are returned unchanged in
// meaning and nothing is retried.
func (s *Summarizer) Summarize(ctx context.Context, path string, opts Options) (string, error) {
	pages, err := s.load(ctx, path)
	if err != nil {
		return "", fmt.Errorf("summarizer: %w", err)
	}
	if len(pages) == 0 {
		return "", fmt.Errorf("summarizer: %s has no extractable text", path)
	}

	log := s.log.With(slog.String("file", path), slog.Int("pages", len(pages)))
	callOpts := s.callOptions(opts)

	var full string
	if len(pages) > 1 {
		perChunk := budget.PerChunk(opts.MaxFinalTokens, len(pages), opts.TokenThreshold)
		role := interpolateBudget(opts.ChunkSystemRole, perChunk)
		log.Info("summarizer: summarizing pages", slog.Int("tokens_per_chunk", perChunk))

		summaries := make([]string, 0, len(pages))
		for i := range pages {
			out, err := provider.Complete(ctx, s.model, role, windowPrompt(pages, i, opts.Overlap), callOpts...)
			if err != nil {
				return "", fmt.Errorf("summarizer: page %d of %d: %w", i+1, len(pages), err)
			}
			summaries = append(summaries, out)
			log.Debug("summarizer: page summarized", slog.Int("page", i+1))
		}
		full = strings.Join(summaries, "\n\n")
	} else {
		full = pages[0].Content
	}
	log.Info("summarizer: full summary ready", slog.Int("estimated_tokens", budget.Estimate(full)))

	final, err := provider.Complete(ctx, s.model, opts.FinalSystemRole, full, callOpts...)
	if err != nil {
		return "", fmt.Errorf("summarizer: final pass: %w", err)
	}
	return final, nil
}

func (s *Summarizer) callOptions(opts Options) []model.Option {
	out := s.pcfg.CallOptions(opts.Temperature)
	if opts.Model != "" {
		out = append(out, model.WithModel(opts.Model))
	}
	return out
}

// windowPrompt returns page i framed by the last overlap runes of page i-1
// and the first overlap runes of page i+1, where those pages exist.
func windowPrompt(pages []loader.Page, i, overlap int) string {
	var b strings.Builder
	if i > 0 {
		b.WriteString(tail(pages[i-1].Content, overlap))
	}
	b.WriteString(pages[i].Content)
	if i < len(pages)-1 {
		b.WriteString(head(pages[i+1].Content, overlap))
	}
	return b.String()
}

func head(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	return string(r[:n])
}

func tail(s string, n int) string {
	if n <= 0 {
		return ""
	}
	r := []rune(s)
	if n >= len(r) {
		return s
	}
	return string(r[len(r)-n:])
}

// interpolateBudget writes the per-chunk budget into role.
func interpolateBudget(role string, tokens int) string {
	v := strconv.Itoa(tokens)
	for _, p := range budgetPlaceholders {
		role = strings.ReplaceAll(role, p, v)
	}
	return role
}
