package knowledge

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/mfenderov/multichat/pkg/models"
)

// DefaultTopN is the number of chunks returned when no limit is given.
const DefaultTopN = 3

// Tokens lowercases query and returns its distinct words longer than three
// runes, with surrounding punctuation trimmed.
func Tokens(query string) []string {
	var tokens []string
	seen := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(query)) {
		w := strings.TrimFunc(f, func(r rune) bool {
			return unicode.IsPunct(r) || unicode.IsSymbol(r)
		})
		if utf8.RuneCountInString(w) <= 3 || seen[w] {
			continue
		}
		seen[w] = true
		tokens = append(tokens, w)
	}
	return tokens
}

// Score counts how many tokens occur in the chunk's text or title.
func Score(tokens []string, c models.Chunk) int {
	haystack := strings.ToLower(c.Text + " " + c.Title)
	score := 0
	for _, t := range tokens {
		if strings.Contains(haystack, t) {
			score++
		}
	}
	return score
}

// Rank returns up to n chunks with at least one matching token, best first.
// Equal scores keep their original order.
func Rank(query string, chunks []models.Chunk, n int) []models.Chunk {
	if n <= 0 {
		n = DefaultTopN
	}
	tokens := Tokens(query)
	if len(tokens) == 0 || len(chunks) == 0 {
		return nil
	}

	type scored struct {
		chunk models.Chunk
		score int
	}
	var candidates []scored
	for _, c := range chunks {
		if s := Score(tokens, c); s > 0 {
			candidates = append(candidates, scored{chunk: c, score: s})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].score > candidates[j].score
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]models.Chunk, len(candidates))
	for i, c := range candidates {
		out[i] = c.chunk
	}
	return out
}
