package chatbot

import "strings"

// Mode selects the document source for a question and the pipeline that
// processes an upload.
type Mode string

const (
	// ModePreprocessed answers from the store built by `raggpt ingest`.
	ModePreprocessed Mode = "preprocessed"
	// ModeUploadRAG indexes uploads into the custom store and answers from it.
	ModeUploadRAG Mode = "upload-rag"
	// ModeUploadSummary summarises the first uploaded file.
	ModeUploadSummary Mode = "upload-summary"
)

// modeLabels maps the dropdown labels of the chat UI to modes.
var modeLabels = map[string]Mode{
	"preprocessed doc":              ModePreprocessed,
	"upload doc: process for rag":   ModeUploadRAG,
	"upload doc: give full summary": ModeUploadSummary,
}

// ParseMode accepts a mode name or its UI label, case-insensitively.
// Anything unrecognised selects ModePreprocessed.
func ParseMode(s string) Mode {
	key := strings.ToLower(strings.TrimSpace(s))
	switch Mode(key) {
	case ModePreprocessed, ModeUploadRAG, ModeUploadSummary:
		return Mode(key)
	}
	if m, ok := modeLabels[key]; ok {
		return m
	}
	return ModePreprocessed
}

// String implements fmt.Stringer.
func (m Mode) String() string {
	return string(m)
}
