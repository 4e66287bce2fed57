package reference

import (
	"sort"
	"strings"
)

// defaultSubstitutions maps mis-encoded byte sequences left over after
// mojibake repair to the character they were meant to be. Keys are the
// UTF-8 text produced when UTF-8 bytes were decoded as Latin-1 or
// Windows-1252.
var defaultSubstitutions = map[string]string{
	"â\u0080\u0093": "-", // en dash, Latin-1 view
	"â\u20ac\u201c": "-", // en dash, Windows-1252 view
	"â\u0080\u0094": "-", // em dash
	"â\u20ac\u201d": "-",
	"â\u20ac\u2122": "'", // right single quote
	"â\u20ac\u02dc": "'", // left single quote
	"â\u20ac\u0153": `"`, // left double quote
	"â\u20ac\u009d": `"`, // right double quote
	"â\u0088\u0088": "∈",
	"â\u02c6\u02c6": "∈",
	"Ã\u0097":       "×",
	"Ã\u2014":       "×",
	"ï¬\u0081":      "fi",
	"ï¬\u0082":      "fl",
	"ï¬\u201a":      "fl",
	"ï¬":            "fi",
	"Â·":            "·",
}

// DefaultSubstitutions returns a copy of the built-in substitution table.
func DefaultSubstitutions() map[string]string {
	out := make(map[string]string, len(defaultSubstitutions))
	for k, v := range defaultSubstitutions {
		out[k] = v
	}
	return out
}

// Substitutions is an ordered, deduplicated substitution table. Longer keys
// are applied first so that a sequence is never pre-empted by one of its own
// prefixes.
type Substitutions struct {
	pairs []string
	r     *strings.Replacer
}

// NewSubstitutions merges overrides on top of the default table. An override
// with an empty key is ignored; an override mapping a key to itself removes
// that key from the table.
func NewSubstitutions(overrides map[string]string) *Substitutions {
	merged := DefaultSubstitutions()
	for k, v := range overrides {
		if k == "" {
			continue
		}
		if k == v {
			delete(merged, k)
			continue
		}
		merged[k] = v
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, 2*len(keys))
	for _, k := range keys {
		pairs = append(pairs, k, merged[k])
	}
	return &Substitutions{pairs: pairs, r: strings.NewReplacer(pairs...)}
}

// Apply replaces every known bad sequence in s.
func (s *Substitutions) Apply(text string) string {
	if len(s.pairs) == 0 {
		return text
	}
	return s.r.Replace(text)
}

// Len returns the number of entries in the table.
func (s *Substitutions) Len() int {
	return len(s.pairs) / 2
}
