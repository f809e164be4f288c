// Package phonetic resolves a misheard speaker name to a known speaker using
// Double Metaphone phonetic encoding combined with Jaro-Winkler string
// similarity.
//
// Transcription services regularly spell the same surname several ways over a
// long hearing ("Senator Kramer", "Senator Cramer"). The [Matcher] compares
// only the name part of a label: role titles from the lexicon are stripped
// first, and when both labels carry roles they must share at least one of
// them, so "Chairman Kramer" never resolves to "Senator Cramer".
//
// The algorithm proceeds in two stages:
//
//  1. Phonetic candidate filtering: Double Metaphone codes are computed for
//     every name token. A candidate whose codes overlap with the input's codes
//     is a phonetic candidate.
//
//  2. Jaro-Winkler ranking: among phonetic candidates the one with the highest
//     similarity of the joined name tokens wins, provided it reaches the
//     phonetic threshold. Without any phonetic candidate, a candidate still
//     wins when its similarity reaches the stricter fuzzy threshold.
package phonetic

import (
	"slices"
	"strings"

	"github.com/antzucaro/matchr"

	"github.com/MrWong99/hearscribe/internal/lexicon"
)

const (
	defaultPhoneticThreshold = 0.80
	defaultFuzzyThreshold    = 0.92
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score required for a
// phonetically-matched speaker to be accepted. Default: 0.80.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score required when no
// phonetic match is found. Default: 0.92.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher resolves speaker labels against known display names. It is
// read-only after construction and safe for concurrent use.
type Matcher struct {
	roles             [][]string
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] that treats the role tokens of lex as titles.
func New(lex *lexicon.Lexicon, opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, r := range lex.Roles() {
		m.roles = append(m.roles, strings.Fields(r))
	}
	// Longest roles first so "ranking member" wins over a hypothetical "ranking".
	slices.SortStableFunc(m.roles, func(a, b []string) int { return len(b) - len(a) })
	for _, o := range opts {
		o(m)
	}
	return m
}

// label is a speaker label split into its role titles and name tokens.
type label struct {
	roles []string
	name  []string
	codes map[string]struct{}
}

// Match returns the candidate display name that sounds most like name.
//
// When matched is false, resolved equals name unchanged and confidence is 0.
func (m *Matcher) Match(name string, candidates []string) (resolved string, confidence float64, matched bool) {
	in := m.split(name)
	if len(in.name) == 0 || len(candidates) == 0 {
		return name, 0, false
	}
	inJoined := strings.Join(in.name, " ")

	var (
		best      string
		bestScore float64
		bestPhon  bool
	)
	for _, cand := range candidates {
		c := m.split(cand)
		if len(c.name) == 0 || !rolesCompatible(in.roles, c.roles) {
			continue
		}

		score := matchr.JaroWinkler(inJoined, strings.Join(c.name, " "), false)
		phon := codesOverlap(in.codes, c.codes)

		switch {
		case phon && score >= m.phoneticThreshold:
			if !bestPhon || score > bestScore {
				best, bestScore, bestPhon = cand, score, true
			}
		case !phon && !bestPhon && score >= m.fuzzyThreshold && score > bestScore:
			best, bestScore = cand, score
		}
	}

	if best == "" {
		return name, 0, false
	}
	return best, bestScore, true
}

// split lowercases s and separates leading or embedded role titles from the
// remaining name tokens.
func (m *Matcher) split(s string) label {
	tokens := strings.Fields(strings.ToLower(s))
	var l label
	for i := 0; i < len(tokens); {
		if n := m.roleAt(tokens[i:]); n > 0 {
			l.roles = append(l.roles, strings.Join(tokens[i:i+n], " "))
			i += n
			continue
		}
		if t := strings.Trim(tokens[i], ".,;:'\""); t != "" {
			l.name = append(l.name, t)
		}
		i++
	}
	l.codes = codesForTokens(l.name)
	return l
}

// roleAt returns how many tokens at the start of tokens form a role title, or
// 0 when they do not start with one.
func (m *Matcher) roleAt(tokens []string) int {
	for _, r := range m.roles {
		if len(r) <= len(tokens) && slices.Equal(r, tokens[:len(r)]) {
			return len(r)
		}
	}
	return 0
}

// rolesCompatible reports whether two role lists may describe the same
// person: either side has no roles, or they share at least one.
func rolesCompatible(a, b []string) bool {
	if len(a) == 0 || len(b) == 0 {
		return true
	}
	for _, r := range a {
		if slices.Contains(b, r) {
			return true
		}
	}
	return false
}

// codesForTokens returns the union of all Double Metaphone codes for the
// given tokens. Empty codes are excluded.
func codesForTokens(tokens []string) map[string]struct{} {
	codes := make(map[string]struct{}, len(tokens)*2)
	for _, t := range tokens {
		p, s := matchr.DoubleMetaphone(t)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	return codes
}

// codesOverlap returns true if the two code sets share at least one code.
func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for code := range a {
		if _, ok := b[code]; ok {
			return true
		}
	}
	return false
}
