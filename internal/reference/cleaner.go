// Package reference turns retrieved document records into the markdown
// reference panel shown next to an answer: one numbered block per record
// with cleaned content, the source file name, the page number and a link to
// the file on the reference file server.
package reference

import (
	"fmt"
	"log/slog"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/54b3r/raggpt-go/internal/rag"
)

// recordPattern splits a textual record into its content and the metadata
// mapping that ends it.
var recordPattern = regexp.MustCompile(`(?s)^page_content=(.*)\s+metadata=(\{[^{}]*\})\s*$`)

// Result is the outcome of cleaning one batch of records.
type Result struct {
	// Markdown is the concatenated reference blocks; empty when nothing survived.
	Markdown string
	// Kept is the number of records rendered.
	Kept int
	// Skipped is the number of malformed records omitted.
	Skipped int
}

// Cleaner renders retrieved records as markdown reference blocks.
// It is safe for concurrent use.
type Cleaner struct {
	baseURL string
	subs    *Substitutions
	log     *slog.Logger
}

// NewCleaner returns a Cleaner linking sources under baseURL and applying
// the default substitution table merged with overrides.
func NewCleaner(baseURL string, overrides map[string]string, log *slog.Logger) *Cleaner {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Cleaner{
		baseURL: strings.TrimRight(baseURL, "/"),
		subs:    NewSubstitutions(overrides),
		log:     log,
	}
}

// Clean renders docs in retrieval order.
func (c *Cleaner) Clean(docs []rag.Document) Result {
	records := make([]string, len(docs))
	for i, d := range docs {
		records[i] = d.Record()
	}
	return c.CleanRecords(records)
}

// CleanRecords renders textual records in order. Records that do not match
// the record pattern, or whose metadata lacks a source or page, are skipped
// and counted; numbering runs over the surviving records only.
func (c *Cleaner) CleanRecords(records []string) Result {
	var (
		b   strings.Builder
		res Result
	)
	for i, rec := range records {
		content, source, page, err := parseRecord(rec)
		if err != nil {
			res.Skipped++
			c.log.Warn("reference: skipping malformed record",
				slog.Int("index", i),
				slog.String("error", err.Error()),
			)
			continue
		}
		res.Kept++

		name := filepath.Base(source)
		fmt.Fprintf(&b, "# Retrieved content %d:\n%s\n\nSource: %s | Page number: %s | [View PDF](%s)\n\n",
			res.Kept, Normalize(content, c.subs), name, page, c.link(name))
	}
	res.Markdown = b.String()
	return res
}

// link builds the file server URL for a source file name.
func (c *Cleaner) link(name string) string {
	return c.baseURL + "/" + url.PathEscape(name)
}

// parseRecord extracts content, source and page from a textual record.
func parseRecord(rec string) (content, source, page string, err error) {
	m := recordPattern.FindStringSubmatch(rec)
	if m == nil {
		return "", "", "", fmt.Errorf("record does not match page_content/metadata pattern")
	}

	var meta map[string]any
	if err := yaml.Unmarshal([]byte(m[2]), &meta); err != nil {
		return "", "", "", fmt.Errorf("parse metadata: %w", err)
	}

	src, ok := meta["source"].(string)
	if !ok || src == "" {
		return "", "", "", fmt.Errorf("metadata has no source")
	}
	p, ok := meta["page"]
	if !ok || p == nil {
		return "", "", "", fmt.Errorf("metadata has no page")
	}
	return m[1], src, fmt.Sprint(p), nil
}
