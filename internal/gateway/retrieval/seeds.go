package retrieval

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// KeywordSeeds picks graph entry points from the query text: lowercased whitespace tokens
// longer than two runes, trimmed of surrounding punctuation, first max distinct ones.
func KeywordSeeds(query string, max int) []string {
	if max <= 0 {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	for _, tok := range strings.Fields(strings.ToLower(query)) {
		tok = strings.TrimFunc(tok, func(r rune) bool { return unicode.IsPunct(r) || unicode.IsSymbol(r) })
		if utf8.RuneCountInString(tok) <= 2 {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
		if len(out) == max {
			break
		}
	}
	return out
}
