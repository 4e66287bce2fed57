// Package rag defines the retrieval building blocks: documents, vector
// storage, embedding, and retrieval. Concrete stores (Qdrant, SQLite) satisfy
// [VectorStore] so the chatbot layer never depends on a specific backend.
package rag

import (
	"context"
	"strconv"
	"strings"
)

// Document represents a unit of stored or retrieved knowledge, typically one
// chunk of one page of a source file.
type Document struct {
	// ID is the unique identifier for this chunk (a UUID).
	ID string

	// Content is the raw text content of the chunk.
	Content string

	// Source is the file path the chunk was loaded from.
	Source string

	// Page is the 0-based page number within Source.
	Page int

	// Metadata holds additional string key-value pairs.
	Metadata map[string]string

	// Score is the similarity score assigned during retrieval.
	// Zero value means the score was not computed.
	Score float32
}

// Record renders the document in its textual record form:
//
//	page_content=<content> metadata={'source': '<path>', 'page': <n>}
//
// Backslashes and line breaks in the content are escaped so the record stays
// on one line and decodes back to the original text. The metadata segment is
// omitted when the document has no source.
func (d Document) Record() string {
	var b strings.Builder
	b.WriteString("page_content=")
	b.WriteString(contentEscaper.Replace(d.Content))
	if d.Source == "" {
		return b.String()
	}
	b.WriteString(" metadata={'source': ")
	b.WriteString(quoteLiteral(d.Source))
	b.WriteString(", 'page': ")
	b.WriteString(strconv.Itoa(d.Page))
	b.WriteString("}")
	return b.String()
}

// contentEscaper escapes the characters the record reader decodes.
var contentEscaper = strings.NewReplacer(`\`, `\\`, "\n", `\n`, "\t", `\t`, "\r", `\r`)

// quoteLiteral quotes s as a single-quoted literal, switching to double
// quotes when s itself contains a single quote.
func quoteLiteral(s string) string {
	if strings.Contains(s, "'") && !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// VectorStore is the interface for persisting and searching document embeddings.
// Implementations must be safe to call from multiple goroutines.
type VectorStore interface {
	// Exists reports whether the store has been built. Querying a store that
	// does not exist is a precondition failure the caller reports to the user.
	Exists(ctx context.Context) (bool, error)

	// Upsert stores or updates a batch of documents with their pre-computed
	// embeddings. embeddings[i] is the vector for docs[i].
	Upsert(ctx context.Context, docs []Document, embeddings [][]float32) error

	// Search returns the top-k most similar documents for the query
	// embedding, most similar first.
	Search(ctx context.Context, queryEmbedding []float32, topK int) ([]Document, error)

	// Delete removes documents by their IDs.
	Delete(ctx context.Context, ids []string) error

	// Close releases any resources held by the store.
	Close() error
}

// Embedder is the interface for converting text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Retriever is the high-level interface the responder uses to fetch context
// for a question. It combines embedding and vector search.
type Retriever interface {
	// Exists reports whether the underlying store has been built.
	Exists(ctx context.Context) (bool, error)
	// Retrieve returns the top-k most relevant documents for the query.
	Retrieve(ctx context.Context, query string, topK int) ([]Document, error)
}
