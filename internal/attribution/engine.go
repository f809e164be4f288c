// Package attribution implements the speaker attribution state machine.
//
// An [Engine] keeps the current and previous speaker of a session together
// with the time of the last speaker change. For every incoming segment it
// applies a fixed list of rules in priority order (see [Rule]); the first
// applicable rule decides the speaker label.
//
// The engine is text-only and best effort. In particular, rules 3 and 4
// transpose current and previous speaker unconditionally, so a long exchange
// without explicit mentions alternates between the last two speakers.
//
// All transitions are serialized behind a single mutex, so an Engine may be
// shared by concurrent callers.
package attribution

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/hearscribe/internal/classify"
	"github.com/MrWong99/hearscribe/internal/speakermem"
)

// Rule identifies which attribution rule produced a label.
type Rule int

const (
	// RuleExplicit: the segment names its speaker inline ("Senator Cramer: ...").
	RuleExplicit Rule = iota + 1

	// RuleReference: the segment refers to a speaker not yet in memory
	// ("I yield to the senator from Ohio").
	RuleReference

	// RuleQuestion: a question hands the floor back to the previous speaker.
	RuleQuestion

	// RuleStale: nobody changed for longer than twice the segment duration.
	RuleStale

	// RuleCarryOver: the current speaker keeps talking.
	RuleCarryOver

	// RuleFallback: nothing is known yet.
	RuleFallback
)

// String returns the short name of the rule used in logs and metrics.
func (r Rule) String() string {
	switch r {
	case RuleExplicit:
		return "explicit"
	case RuleReference:
		return "reference"
	case RuleQuestion:
		return "question"
	case RuleStale:
		return "stale"
	case RuleCarryOver:
		return "carry_over"
	case RuleFallback:
		return "fallback"
	default:
		return "unknown"
	}
}

// State is a snapshot of the attribution state. Empty strings mean "unset".
type State struct {
	Current    string
	Previous   string
	LastChange time.Time
}

// Attribution is the outcome of a single [Engine.Attribute] call.
type Attribution struct {
	// Speaker is the display label; never empty.
	Speaker string

	// Rule is the rule that produced Speaker.
	Rule Rule

	// Changed reports whether the current speaker changed.
	Changed bool
}

// Option is a functional option for configuring an [Engine].
type Option func(*Engine)

// WithClock replaces time.Now as the engine's time source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// WithSegmentDuration sets the length of one recording interval. The
// staleness rule fires after twice this duration. Default: 30s.
func WithSegmentDuration(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.segmentDuration = d
		}
	}
}

// WithState seeds the engine with an initial state.
func WithState(s State) Option {
	return func(e *Engine) {
		e.state = s
	}
}

const defaultSegmentDuration = 30 * time.Second

// Engine is the attribution state machine. Create it with [New].
type Engine struct {
	classifier *classify.Classifier
	memory     *speakermem.Memory
	formatter  *Formatter

	now             func() time.Time
	segmentDuration time.Duration

	mu    sync.Mutex
	state State
}

// New returns an [Engine] with an empty state whose last change is "now".
func New(classifier *classify.Classifier, memory *speakermem.Memory, formatter *Formatter, opts ...Option) *Engine {
	e := &Engine{
		classifier:      classifier,
		memory:          memory,
		formatter:       formatter,
		now:             time.Now,
		segmentDuration: defaultSegmentDuration,
	}
	for _, o := range opts {
		o(e)
	}
	if e.state.LastChange.IsZero() {
		e.state.LastChange = e.now()
	}
	return e
}

// State returns a snapshot of the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Attribute decides who is speaking text. Rules, first match wins:
//
//  1. Explicit mention: adopt the inline speaker if it differs
//     (case-insensitively) from the current one.
//  2. New third-person reference: remember it, then adopt it if it differs.
//  3. Question with a previous speaker: transpose current and previous.
//  4. More than twice the segment duration since the last change, with a
//     previous speaker: transpose current and previous.
//  5. Carry over the current speaker.
//  6. Fall back to [FallbackSpeaker].
//
// The only error is a failure to persist a new reference in rule 2; the state
// is left untouched in that case.
func (e *Engine) Attribute(ctx context.Context, text string) (Attribution, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if name, ok := e.classifier.InlineSpeaker(text); ok {
		changed := e.adopt(name)
		return Attribution{Speaker: e.formatter.Format(name), Rule: RuleExplicit, Changed: changed}, nil
	}

	if ref, ok := e.classifier.ThirdPersonReference(text); ok && !e.memory.Contains(ref) {
		if _, err := e.memory.Remember(ctx, ref, e.formatter.Local(ref)); err != nil {
			return Attribution{}, fmt.Errorf("attribution: %w", err)
		}
		changed := e.adopt(ref)
		return Attribution{Speaker: e.formatter.Format(ref), Rule: RuleReference, Changed: changed}, nil
	}

	if e.state.Previous != "" {
		if classify.QuestionOrAnswer(text) == classify.Question {
			e.transpose()
			return Attribution{Speaker: e.formatter.Format(e.state.Current), Rule: RuleQuestion, Changed: true}, nil
		}
		if e.now().Sub(e.state.LastChange) > 2*e.segmentDuration {
			e.transpose()
			return Attribution{Speaker: e.formatter.Format(e.state.Current), Rule: RuleStale, Changed: true}, nil
		}
	}

	if e.state.Current != "" {
		return Attribution{Speaker: e.formatter.Format(e.state.Current), Rule: RuleCarryOver}, nil
	}
	return Attribution{Speaker: FallbackSpeaker, Rule: RuleFallback}, nil
}

// adopt makes name the current speaker when it differs from the current one,
// pushing the old current speaker to previous. It reports whether the state
// changed.
func (e *Engine) adopt(name string) bool {
	if strings.EqualFold(name, e.state.Current) {
		return false
	}
	e.state.Previous = e.state.Current
	e.state.Current = name
	e.state.LastChange = e.now()
	return true
}

// transpose swaps current and previous speaker and resets the change time.
func (e *Engine) transpose() {
	e.state.Current, e.state.Previous = e.state.Previous, e.state.Current
	e.state.LastChange = e.now()
}
