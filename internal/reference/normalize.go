package reference

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var (
	specialTokens = regexp.MustCompile(`\s*<EOS>\s*<pad>\s*`)
	whitespace    = regexp.MustCompile(`\s+`)
)

// Normalize cleans the raw content of one retrieved record: escape
// sequences are decoded, model padding tokens removed, whitespace collapsed,
// HTML entities unescaped, mojibake repaired, and finally the substitution
// table applied.
func Normalize(content string, subs *Substitutions) string {
	s := decodeEscapes(content)
	s = specialTokens.ReplaceAllString(s, " ")
	s = strings.TrimSpace(whitespace.ReplaceAllString(s, " "))
	s = html.UnescapeString(s)
	s = repairMojibake(s)
	if subs != nil {
		s = subs.Apply(s)
	}
	return s
}

// decodeEscapes interprets backslash escape sequences (\n, \t, \r, \\, \',
// \", \xNN, \uNNNN, \UNNNNNNNN). Unknown or truncated escapes are kept
// verbatim.
func decodeEscapes(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i+1 == len(s) {
			b.WriteByte(c)
			continue
		}
		next := s[i+1]
		switch next {
		case 'n':
			b.WriteByte('\n')
		case 't':
			b.WriteByte('\t')
		case 'r':
			b.WriteByte('\r')
		case '\\', '\'', '"':
			b.WriteByte(next)
		case 'x', 'u', 'U':
			width := map[byte]int{'x': 2, 'u': 4, 'U': 8}[next]
			if i+2+width > len(s) {
				b.WriteByte(c)
				continue
			}
			v, err := strconv.ParseUint(s[i+2:i+2+width], 16, 32)
			if err != nil || !utf8.ValidRune(rune(v)) {
				b.WriteByte(c)
				continue
			}
			b.WriteRune(rune(v))
			i += width
		default:
			b.WriteByte(c)
			continue
		}
		i++
	}
	return b.String()
}

// repairMojibake reverses UTF-8 text that was decoded as Latin-1 or
// Windows-1252. The repair is applied only when the whole string encodes to
// a single-byte charset and the resulting bytes are valid UTF-8, so correct
// text is never altered.
func repairMojibake(s string) string {
	if isASCII(s) {
		return s
	}
	for _, cm := range []*charmap.Charmap{charmap.ISO8859_1, charmap.Windows1252} {
		raw, err := cm.NewEncoder().String(s)
		if err != nil || raw == s || !utf8.ValidString(raw) {
			continue
		}
		return raw
	}
	return s
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
