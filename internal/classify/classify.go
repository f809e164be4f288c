// Package classify contains the text classifiers used by the speaker
// attribution engine.
//
// All classifiers are pure functions of their input text. None of them return
// errors: finding nothing is a defined result ("answer", or ok == false) that
// the caller feeds into its next priority rule.
//
// Extraction is expressed as ordered lists of independent [Matcher] values.
// The order of a list is its priority: the first matcher that finds something
// wins.
package classify

import (
	"regexp"
	"slices"
	"strings"

	"github.com/MrWong99/hearscribe/internal/lexicon"
)

// Kind is the conversational role of a segment.
type Kind string

const (
	Question Kind = "question"
	Answer   Kind = "answer"
)

// leadWord matches an interrogative word at the very start of a segment.
var leadWord = regexp.MustCompile(`(?i)^\s*(?:what|how|why|where|when|is|are|do|does|can|could|would|should|will)\b`)

// politeRequests are phrases that mark a request even without a question mark.
var politeRequests = []string{
	"can you",
	"would you",
	"could you",
	"do you",
	"have you",
	"is there",
	"are there",
}

// QuestionOrAnswer reports whether text reads as a question or an answer.
//
// A segment is a [Question] when it contains a literal "?", starts with an
// interrogative lead word, or contains a polite-request phrase anywhere.
// Matching is case-insensitive. Everything else is an [Answer].
func QuestionOrAnswer(text string) Kind {
	if strings.Contains(text, "?") {
		return Question
	}
	if leadWord.MatchString(text) {
		return Question
	}
	lower := strings.ToLower(text)
	for _, p := range politeRequests {
		if strings.Contains(lower, p) {
			return Question
		}
	}
	return Answer
}

// Matcher is a single named extraction pattern. The pattern's first capture
// group is the extracted value.
type Matcher struct {
	// Name identifies the matcher in logs and tests.
	Name string

	re *regexp.Regexp
}

// Find returns the first match of m in text with surrounding whitespace
// trimmed and inner whitespace runs, line breaks included, collapsed to one
// space. The original casing is preserved.
func (m Matcher) Find(text string) (string, bool) {
	sub := m.re.FindStringSubmatch(text)
	if len(sub) < 2 {
		return "", false
	}
	v := strings.Join(strings.Fields(sub[1]), " ")
	if v == "" {
		return "", false
	}
	return v, true
}

// Classifier runs the lexicon-dependent extractors. It is read-only after
// construction and safe for concurrent use.
type Classifier struct {
	inline     []Matcher
	references []Matcher
}

// minReferenceLen is the length a third-person reference must exceed to count.
const minReferenceLen = 3

// New compiles the extractors for the role tokens of lex.
func New(lex *lexicon.Lexicon) *Classifier {
	roles := roleAlternation(lex.Roles())
	return &Classifier{
		inline:     inlineMatchers(roles),
		references: referenceMatchers(roles),
	}
}

// InlineSpeaker looks for a speaker announced inline, such as
// "Chairman Smith: ..." or "Senator Cramer says ...". Role-prefixed names
// take priority over a bare two-word label followed by a colon.
func (c *Classifier) InlineSpeaker(text string) (string, bool) {
	for _, m := range c.inline {
		if v, ok := m.Find(text); ok {
			return v, true
		}
	}
	return "", false
}

// ThirdPersonReference looks for a speaker referred to in the third person,
// such as "the senator from North Dakota" or "ranking member Reed". It returns
// the first match longer than three characters, trying matchers in priority
// order.
func (c *Classifier) ThirdPersonReference(text string) (string, bool) {
	for _, m := range c.references {
		if v, ok := m.Find(text); ok && len(v) > minReferenceLen {
			return v, true
		}
	}
	return "", false
}

// InlineMatchers returns the inline speaker matchers in priority order. It
// exists for inspection; [Classifier.InlineSpeaker] is the matching entry
// point.
func (c *Classifier) InlineMatchers() []Matcher { return slices.Clone(c.inline) }

// ReferenceMatchers returns the third-person reference matchers in priority
// order. It exists for inspection; [Classifier.ThirdPersonReference] is the
// matching entry point.
func (c *Classifier) ReferenceMatchers() []Matcher { return slices.Clone(c.references) }

// roleAlternation returns a regexp alternation of the role tokens, longest
// first so that "chairman" is preferred over "chair". Returns "" when there
// are no roles.
func roleAlternation(roles []string) string {
	sorted := slices.Clone(roles)
	slices.SortStableFunc(sorted, func(a, b string) int { return len(b) - len(a) })
	quoted := make([]string, 0, len(sorted))
	for _, r := range sorted {
		quoted = append(quoted, strings.ReplaceAll(regexp.QuoteMeta(r), " ", `\s+`))
	}
	return strings.Join(quoted, "|")
}
