// Package transcript turns attributed segments into annotated transcript
// records.
//
// A [Structurer] asks an [Attributor] (normally an *attribution.Engine) who
// is speaking and packages the answer together with the segment text into a
// [Record]. Records render as a single Markdown line:
//
//	**Senator Cramer:** Can you explain the budget request?
//
// Writing records anywhere is left to the caller.
package transcript

import (
	"context"
	"fmt"

	"github.com/MrWong99/hearscribe/internal/attribution"
)

// Record is one annotated transcript entry.
type Record struct {
	// Speaker is the attributed display label; never empty.
	Speaker string

	// Text is the segment text exactly as received.
	Text string

	// Rule is the attribution rule that produced Speaker.
	Rule attribution.Rule

	// Changed reports whether this record moved the current speaker.
	Changed bool
}

// String renders r as "**{speaker}:** {text}".
func (r Record) String() string {
	return fmt.Sprintf("**%s:** %s", r.Speaker, r.Text)
}

// Attributor decides the speaker of a segment.
type Attributor interface {
	Attribute(ctx context.Context, text string) (attribution.Attribution, error)
}

// Ensure the engine satisfies Attributor at compile time.
var _ Attributor = (*attribution.Engine)(nil)

// Structurer composes attribution and record packaging. It holds no state of
// its own and is safe for concurrent use when its Attributor is.
type Structurer struct {
	attributor Attributor
}

// NewStructurer returns a [Structurer] backed by a.
func NewStructurer(a Attributor) *Structurer {
	return &Structurer{attributor: a}
}

// Structure attributes text and returns the annotated record. Errors come
// from the attributor only (persisting a new speaker reference) and are
// returned unchanged.
func (s *Structurer) Structure(ctx context.Context, text string) (Record, error) {
	a, err := s.attributor.Attribute(ctx, text)
	if err != nil {
		return Record{}, err
	}
	speaker := a.Speaker
	if speaker == "" {
		speaker = attribution.FallbackSpeaker
	}
	return Record{Speaker: speaker, Text: text, Rule: a.Rule, Changed: a.Changed}, nil
}
