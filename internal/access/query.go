package access

import (
	"fmt"
	"strings"

	"github.com/gobwas/glob"
)

// DefaultSearchLimit caps directory search results when the caller passes no
// limit.
const DefaultSearchLimit = 20

// SearchQuery matches usernames for the directory search. Plain text matches
// as a case-insensitive substring; text with glob metacharacters matches as a
// case-insensitive glob over the whole username.
type SearchQuery struct {
	Text  string
	Limit int

	pattern glob.Glob
}

// NewSearchQuery validates text and compiles it when it is a glob.
func NewSearchQuery(text string, limit int) (SearchQuery, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SearchQuery{}, newError(KindInvalidArgument, "search query is required")
	}
	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	q := SearchQuery{Text: text, Limit: limit}
	if q.IsGlob() {
		g, err := glob.Compile(strings.ToLower(text))
		if err != nil {
			return SearchQuery{}, &Error{
				Kind:    KindInvalidArgument,
				Message: fmt.Sprintf("invalid search pattern %q", text),
				Err:     err,
			}
		}
		q.pattern = g
	}
	return q, nil
}

// IsGlob reports whether the query text contains glob metacharacters.
func (q SearchQuery) IsGlob() bool {
	return strings.ContainsAny(q.Text, "*?[")
}

// LiteralPrefix returns the text before the first glob metacharacter. Storage
// backends use it to narrow a glob search before calling Match.
func (q SearchQuery) LiteralPrefix() string {
	if i := strings.IndexAny(q.Text, "*?[\\{"); i >= 0 {
		return q.Text[:i]
	}
	return q.Text
}

// Match reports whether username satisfies the query.
func (q SearchQuery) Match(username string) bool {
	lower := strings.ToLower(username)
	if q.pattern != nil {
		return q.pattern.Match(lower)
	}
	return strings.Contains(lower, strings.ToLower(q.Text))
}
