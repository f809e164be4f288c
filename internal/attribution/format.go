package attribution

import (
	"strings"

	"github.com/MrWong99/hearscribe/internal/lexicon"
	"github.com/MrWong99/hearscribe/internal/speakermem"
)

// FallbackSpeaker is the label used when no rule can name a speaker.
const FallbackSpeaker = "Speaker"

// NameResolver maps a formatted speaker label to a known display name. It is
// consulted only when no memory key overlaps the label.
type NameResolver interface {
	Match(name string, candidates []string) (resolved string, confidence float64, matched bool)
}

// Formatter turns raw speaker matches into display labels.
type Formatter struct {
	lex      *lexicon.Lexicon
	memory   *speakermem.Memory
	resolver NameResolver
}

// NewFormatter returns a [Formatter]. resolver may be nil.
func NewFormatter(lex *lexicon.Lexicon, memory *speakermem.Memory, resolver NameResolver) *Formatter {
	return &Formatter{lex: lex, memory: memory, resolver: resolver}
}

// Local formats name without consulting the memory: role titles are
// capitalized and every word after the first gets an upper-case initial.
func (f *Formatter) Local(name string) string {
	words := strings.Fields(f.lex.Capitalize(name))
	for i := 1; i < len(words); i++ {
		words[i] = lexicon.UpperFirst(words[i])
	}
	return strings.Join(words, " ")
}

// Format returns the display label for name.
//
// After local formatting, the first memory entry (in insertion order) whose
// key contains the lowercase label, or is contained in it, supplies its
// display name instead. Without such an entry the optional resolver may map
// the label to a known display name. Empty input yields [FallbackSpeaker].
func (f *Formatter) Format(name string) string {
	formatted := f.Local(name)
	if formatted == "" {
		return FallbackSpeaker
	}

	lower := strings.ToLower(formatted)
	refs := f.memory.References()
	for _, r := range refs {
		if r.Name == "" {
			continue
		}
		if strings.Contains(r.Key, lower) || strings.Contains(lower, r.Key) {
			return r.Name
		}
	}

	if f.resolver != nil {
		names := make([]string, 0, len(refs))
		for _, r := range refs {
			if r.Name != "" {
				names = append(names, r.Name)
			}
		}
		if resolved, _, ok := f.resolver.Match(formatted, names); ok {
			return resolved
		}
	}
	return formatted
}
