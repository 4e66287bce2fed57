// Package ingestion builds a document store from source files. Each file is
// split into pages, each page into overlapping character chunks; chunks are
// embedded and upserted with their source path and page number. The
// `raggpt ingest` command and the upload-for-retrieval flow both use it.
package ingestion

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/google/uuid"

	"github.com/54b3r/raggpt-go/internal/loader"
	"github.com/54b3r/raggpt-go/internal/rag"
)

// chunkNamespace scopes the deterministic chunk UUIDs.
var chunkNamespace = uuid.MustParse("5d0c9c4e-4b1f-4d3c-9f3e-0a6f7c1b2e84")

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// ChunkSize is the maximum number of characters per chunk.
	// Defaults to 1500 if zero.
	ChunkSize int

	// ChunkOverlap is the number of characters shared by consecutive chunks.
	// Defaults to 500; clamped below ChunkSize.
	ChunkOverlap int
}

// PageLoader loads the pages of one file. [loader.LoadPages] is the default.
type PageLoader func(ctx context.Context, path string) ([]loader.Page, error)

// Stats summarises one ingestion run.
type Stats struct {
	Files  int
	Pages  int
	Chunks int
}

// Pipeline orchestrates the load → chunk → embed → upsert flow.
type Pipeline struct {
	embedder rag.Embedder
	store    rag.VectorStore
	cfg      *Config
	load     PageLoader
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(embedder rag.Embedder, store rag.VectorStore, cfg *Config) (*Pipeline, error) {
	if embedder == nil {
		return nil, fmt.Errorf("ingestion: embedder must not be nil")
	}
	if store == nil {
		return nil, fmt.Errorf("ingestion: store must not be nil")
	}
	c := Config{}
	if cfg != nil {
		c = *cfg
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = 1500
	}
	if c.ChunkOverlap < 0 {
		c.ChunkOverlap = 0
	}
	if c.ChunkOverlap >= c.ChunkSize {
		c.ChunkOverlap = c.ChunkSize / 10
	}
	return &Pipeline{embedder: embedder, store: store, cfg: &c, load: loader.LoadPages}, nil
}

// WithLoader replaces the page loader; tests use it to avoid real PDFs.
func (p *Pipeline) WithLoader(l PageLoader) *Pipeline {
	p.load = l
	return p
}

// IngestFiles loads, chunks, embeds, and stores every file in paths, in
// order. It stops at the first error. Progress is reported via the optional
// progress callback.
func (p *Pipeline) IngestFiles(ctx context.Context, paths []string, progress func(msg string)) (Stats, error) {
	if progress == nil {
		progress = func(string) {}
	}

	var stats Stats
	for _, path := range paths {
		progress(fmt.Sprintf("loading %s", path))

		pages, err := p.load(ctx, path)
		if err != nil {
			return stats, fmt.Errorf("ingestion: load failed for %s: %w", path, err)
		}

		var (
			docs  []rag.Document
			texts []string
		)
		for _, page := range pages {
			for i, chunk := range p.chunk(page.Content) {
				docs = append(docs, rag.Document{
					ID:      chunkID(path, page.Number, i),
					Content: chunk,
					Source:  path,
					Page:    page.Number,
					Metadata: map[string]string{
						"chunk_index": strconv.Itoa(i),
					},
				})
				texts = append(texts, chunk)
			}
		}
		stats.Files++
		stats.Pages += len(pages)
		if len(docs) == 0 {
			progress(fmt.Sprintf("no text found in %s", path))
			continue
		}
		progress(fmt.Sprintf("chunked %s into %d chunks across %d pages", path, len(docs), len(pages)))

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return stats, fmt.Errorf("ingestion: embedding failed for %s: %w", path, err)
		}
		if err := p.store.Upsert(ctx, docs, embeddings); err != nil {
			return stats, fmt.Errorf("ingestion: upsert failed for %s: %w", path, err)
		}
		stats.Chunks += len(docs)
		progress(fmt.Sprintf("ingested %d chunks from %s", len(docs), path))
	}
	return stats, nil
}

// chunk splits text into overlapping chunks of cfg.ChunkSize runes.
func (p *Pipeline) chunk(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	size := p.cfg.ChunkSize
	step := size - p.cfg.ChunkOverlap

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := min(start+size, len(runes))
		chunks = append(chunks, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// chunkID derives a stable UUID for a chunk so re-ingesting a file replaces
// its points instead of duplicating them.
func chunkID(source string, page, index int) string {
	name := fmt.Sprintf("%s#%d#%d", source, page, index)
	return uuid.NewSHA1(chunkNamespace, []byte(name)).String()
}

// CollectFiles returns the loadable files directly inside dir, sorted by name.
func CollectFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("ingestion: read %s: %w", dir, err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || !loader.Supported(e.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
