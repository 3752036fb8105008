package knowledge

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultMaxChunkSize is the chunk bound used when none is configured.
const DefaultMaxChunkSize = 500

// SplitSentences splits text after every '.', '!' or '?' that is followed
// by whitespace. Sentences are trimmed and empty ones dropped.
func SplitSentences(text string) []string {
	var sentences []string
	start := 0
	prevTerminal := false
	for i, r := range text {
		if prevTerminal && unicode.IsSpace(r) {
			if s := strings.TrimSpace(text[start:i]); s != "" {
				sentences = append(sentences, s)
			}
			start = i
		}
		prevTerminal = r == '.' || r == '!' || r == '?'
	}
	if s := strings.TrimSpace(text[start:]); s != "" {
		sentences = append(sentences, s)
	}
	return sentences
}

// Split packs whole sentences greedily into chunks of at most limit runes.
// A sentence longer than limit is broken at word boundaries, and a word longer
// than limit is cut, so no chunk ever exceeds the bound.
func Split(content string, limit int) []string {
	if limit <= 0 {
		limit = DefaultMaxChunkSize
	}

	sentences := SplitSentences(content)
	if len(sentences) == 0 {
		if trimmed := strings.TrimSpace(content); trimmed != "" {
			return []string{cut(trimmed, limit)}
		}
		return nil
	}

	var chunks []string
	var buf strings.Builder
	bufLen := 0

	flush := func() {
		if bufLen > 0 {
			chunks = append(chunks, buf.String())
			buf.Reset()
			bufLen = 0
		}
	}

	for _, s := range sentences {
		n := utf8.RuneCountInString(s)
		if n > limit {
			flush()
			chunks = append(chunks, splitWords(s, limit)...)
			continue
		}
		if bufLen > 0 && bufLen+1+n > limit {
			flush()
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(s)
		bufLen += n
	}
	flush()

	return chunks
}

func splitWords(s string, limit int) []string {
	var out []string
	var buf strings.Builder
	bufLen := 0

	for _, w := range strings.Fields(s) {
		n := utf8.RuneCountInString(w)
		for n > limit {
			if bufLen > 0 {
				out = append(out, buf.String())
				buf.Reset()
				bufLen = 0
			}
			r := []rune(w)
			out = append(out, string(r[:limit]))
			w = string(r[limit:])
			n -= limit
		}
		if n == 0 {
			continue
		}
		if bufLen > 0 && bufLen+1+n > limit {
			out = append(out, buf.String())
			buf.Reset()
			bufLen = 0
		}
		if bufLen > 0 {
			buf.WriteByte(' ')
			bufLen++
		}
		buf.WriteString(w)
		bufLen += n
	}
	if bufLen > 0 {
		out = append(out, buf.String())
	}
	return out
}

func cut(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
