// Package lexicon holds the role titles used to detect and capitalize speaker
// references in hearing transcripts (e.g., "senator", "ranking member", "mr.").
//
// A [Lexicon] is immutable after construction and safe for concurrent use.
package lexicon

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// DefaultRoles is the built-in role list, in matching order. Multi-word roles
// are kept verbatim; every token is lowercase.
var DefaultRoles = []string{
	"chairman",
	"chairwoman",
	"chairperson",
	"chair",
	"ranking member",
	"senator",
	"representative",
	"congressman",
	"congresswoman",
	"ambassador",
	"secretary",
	"director",
	"general",
	"admiral",
	"dr.",
	"mr.",
	"mrs.",
	"ms.",
}

type role struct {
	token   string
	title   string
	pattern *regexp.Regexp
}

// Lexicon is an ordered, read-only set of lowercase role tokens.
type Lexicon struct {
	roles []role
}

// New builds a [Lexicon] from roles. Tokens are trimmed and lowercased; empty
// and duplicate tokens are dropped while the first-seen order is kept.
func New(roles []string) *Lexicon {
	l := &Lexicon{}
	seen := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		token := strings.ToLower(strings.TrimSpace(r))
		if token == "" {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		l.roles = append(l.roles, role{
			token:   token,
			title:   titleCase(token),
			pattern: regexp.MustCompile(`(?i)` + regexp.QuoteMeta(token)),
		})
	}
	return l
}

// Default returns a [Lexicon] built from [DefaultRoles].
func Default() *Lexicon {
	return New(DefaultRoles)
}

// Roles returns the role tokens in matching order.
func (l *Lexicon) Roles() []string {
	out := make([]string, len(l.roles))
	for i, r := range l.roles {
		out[i] = r.token
	}
	return out
}

// Len returns the number of role tokens.
func (l *Lexicon) Len() int { return len(l.roles) }

// Capitalize replaces every case-insensitive substring occurrence of each role
// token with its title-cased form ("mr." → "Mr.", "ranking member" →
// "Ranking Member"). Roles are applied one after another in lexicon order;
// all other text is left unchanged.
//
// Matching is substring based, so "general" also capitalizes the start of
// "generally".
func (l *Lexicon) Capitalize(s string) string {
	for _, r := range l.roles {
		s = r.pattern.ReplaceAllLiteralString(s, r.title)
	}
	return s
}

// titleCase upper-cases the first letter of every space-separated word.
func titleCase(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		words[i] = UpperFirst(w)
	}
	return strings.Join(words, " ")
}

// UpperFirst returns w with its first rune upper-cased.
func UpperFirst(w string) string {
	r, size := utf8.DecodeRuneInString(w)
	if size == 0 {
		return w
	}
	return string(unicode.ToUpper(r)) + w[size:]
}
