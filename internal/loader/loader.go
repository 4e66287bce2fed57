// Package loader splits source files into page-level text chunks. A PDF
// yields one page per non-empty PDF page; plain-text and markdown files yield
// a single page.
package loader

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Page is one page of text from a source file.
type Page struct {
	// Source is the path the page was loaded from.
	Source string
	// Number is the 0-based page index within Source.
	Number int
	// Content is the extracted text.
	Content string
}

// Supported reports whether path has an extension LoadPages understands.
func Supported(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf", ".txt", ".md":
		return true
	}
	return false
}

// LoadPages reads path and returns its pages in document order.
func LoadPages(ctx context.Context, path string) ([]Page, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return loadPDF(ctx, path)
	case ".txt", ".md":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loader: read %s: %w", path, err)
		}
		text := strings.TrimSpace(string(data))
		if text == "" {
			return nil, nil
		}
		return []Page{{Source: path, Number: 0, Content: text}}, nil
	default:
		return nil, fmt.Errorf("loader: unsupported file type %q for %s", filepath.Ext(path), path)
	}
}

// loadPDF extracts the plain text of every page. Pages that are null, fail
// to decode, or contain only whitespace are skipped; the remaining pages keep
// their original 0-based index.
func loadPDF(ctx context.Context, path string) ([]Page, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("loader: parse PDF %s: %w", path, err)
	}

	n := r.NumPage()
	pages := make([]Page, 0, n)
	for i := 1; i <= n; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		pages = append(pages, Page{Source: path, Number: i - 1, Content: text})
	}
	return pages, nil
}
