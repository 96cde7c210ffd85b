// Package cypher is the read-only gate in front of free-form graph queries. It is a static
// keyword scan over the whole query text with no knowledge of the graph schema; a keyword
// inside a string literal is still rejected.
package cypher

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var DefaultDenyList = []string{
	"DETACH DELETE",
	"CREATE",
	"MERGE",
	"DELETE",
	"SET",
	"DROP",
	"REMOVE",
	"LOAD CSV",
	"FOREACH",
	"CALL db.",
}

var ErrEmptyQuery = errors.New("query text is required")

// UnsafeQueryError reports the first deny-listed keyword found in a query.
type UnsafeQueryError struct {
	Keyword string
}

func (e *UnsafeQueryError) Error() string {
	return fmt.Sprintf("query rejected: contains mutating keyword %q", e.Keyword)
}

type Verdict struct {
	Allowed bool   `json:"allowed"`
	Keyword string `json:"keyword,omitempty"`
}

type rule struct {
	keyword string
	re      *regexp.Regexp
}

// Procedure calls whose name mentions a mutation, e.g. CALL apoc.create.node(...).
var writeProcedure = regexp.MustCompile("(?i)\\bCALL\\s+([A-Za-z0-9_.`]*(?:write|create|merge|delete|drop|set|remove)[A-Za-z0-9_.`]*)")

type Gate struct {
	rules []rule
}

// New builds a gate from keywords; an empty list means DefaultDenyList. Multi-word keywords
// match across any run of whitespace. Word boundaries are enforced at alphanumeric edges so
// identifiers such as offset or created_at pass.
func New(keywords []string) *Gate {
	if len(keywords) == 0 {
		keywords = DefaultDenyList
	}
	g := &Gate{}
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		g.rules = append(g.rules, rule{keyword: strings.ToUpper(kw), re: compileKeyword(kw)})
	}
	return g
}

func compileKeyword(kw string) *regexp.Regexp {
	words := strings.Fields(kw)
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	pattern := strings.Join(words, `\s+`)
	if isWordByte(kw[0]) {
		pattern = `\b` + pattern
	}
	if isWordByte(kw[len(kw)-1]) {
		pattern += `\b`
	}
	return regexp.MustCompile(`(?i)` + pattern)
}

func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}

// Check scans query for deny-listed keywords. An empty query is not allowed.
func (g *Gate) Check(query string) Verdict {
	if strings.TrimSpace(query) == "" {
		return Verdict{Allowed: false}
	}
	for _, r := range g.rules {
		if r.re.MatchString(query) {
			return Verdict{Allowed: false, Keyword: r.keyword}
		}
	}
	if m := writeProcedure.FindStringSubmatch(query); m != nil {
		return Verdict{Allowed: false, Keyword: "CALL " + m[1]}
	}
	return Verdict{Allowed: true}
}

// Enforce is Check as an error: ErrEmptyQuery, *UnsafeQueryError or nil.
func (g *Gate) Enforce(query string) error {
	if strings.TrimSpace(query) == "" {
		return ErrEmptyQuery
	}
	if v := g.Check(query); !v.Allowed {
		return &UnsafeQueryError{Keyword: v.Keyword}
	}
	return nil
}
