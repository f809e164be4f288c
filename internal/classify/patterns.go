package classify

import "regexp"

const (
	// word is a loosely spelled spoken word; it must start with a letter so
	// clock times such as "10:30" never look like a label.
	word = `[A-Za-z][\w'.-]*`

	// properName is a capitalised name or place token of at least two letters.
	properName = `[A-Z][\w'-]+`

	// place is one or two proper-name tokens ("Texas", "North Dakota").
	place = properName + `(?:\s+` + properName + `)?`
)

// inlineMatchers builds the explicit-mention patterns:
//
//  1. role + one to three words, then ":", "says" or "stated"
//  2. a bare two-word label followed by ":"
func inlineMatchers(roles string) []Matcher {
	var ms []Matcher
	if roles != "" {
		ms = append(ms, Matcher{
			Name: "role-label",
			re: regexp.MustCompile(`(?i)\b((?:` + roles + `)\s+` + word + `(?:\s+` + word + `){0,2}?)(?::|\s+(?:says|stated)\b)`),
		})
	}
	ms = append(ms, Matcher{
		Name: "two-word-label",
		re:   regexp.MustCompile(`\b(` + word + `\s+` + word + `):`),
	})
	return ms
}

// referenceMatchers builds the third-person reference patterns in priority
// order. Keywords match case-insensitively; names and places must be
// capitalised.
func referenceMatchers(roles string) []Matcher {
	ms := []Matcher{
		{
			Name: "introduction",
			re: regexp.MustCompile(`(?i:\b(?:recognized|recognizes|welcomes|introduces|yield\s+to)\s+(?:the\s+)?)` +
				`((?i:gentleman|gentlewoman|senator|representative|ambassador)\s+(?:(?i:from)\s+` + place + `|` + place + `))`),
		},
		{
			Name: "member-from",
			re:   regexp.MustCompile(`(?i:\bthe\s+)((?i:senator|representative)\s+(?i:from)\s+` + place + `)`),
		},
		{
			Name: "committee-chair",
			re:   regexp.MustCompile(`(?i:\b(?:sub)?committee\s+)((?i:chair(?:man|woman|person)?)\s+` + properName + `)`),
		},
		{
			Name: "ranking-member",
			re:   regexp.MustCompile(`((?i:\branking\s+member)\s+` + properName + `)`),
		},
	}
	if roles != "" {
		ms = append(ms, Matcher{
			Name: "role-name",
			re:   regexp.MustCompile(`((?i:\b(?:` + roles + `))\s+` + properName + `)`),
		})
	}
	return ms
}
