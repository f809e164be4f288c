package transcript_test

import (
	"context"
	"errors"
	"testing"

	"github.com/MrWong99/hearscribe/internal/attribution"
	"github.com/MrWong99/hearscribe/internal/classify"
	"github.com/MrWong99/hearscribe/internal/lexicon"
	"github.com/MrWong99/hearscribe/internal/speakermem"
	"github.com/MrWong99/hearscribe/internal/transcript"
)

func newEngine(t *testing.T, opts ...attribution.Option) *attribution.Engine {
	t.Helper()
	mem, err := speakermem.Open(context.Background(), speakermem.NewMemStore())
	if err != nil {
		t.Fatalf("speakermem.Open: %v", err)
	}
	lex := lexicon.Default()
	return attribution.New(classify.New(lex), mem, attribution.NewFormatter(lex, mem, nil), opts...)
}

func TestStructure_ExplicitMention(t *testing.T) {
	t.Parallel()

	s := transcript.NewStructurer(newEngine(t))
	text := "Chairman Smith: I now recognize the ranking member."

	rec, err := s.Structure(context.Background(), text)
	if err != nil {
		t.Fatalf("Structure: unexpected error: %v", err)
	}

	want := "**Chairman Smith:** Chairman Smith: I now recognize the ranking member."
	if got := rec.String(); got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if rec.Rule != attribution.RuleExplicit {
		t.Errorf("Rule = %v, want %v", rec.Rule, attribution.RuleExplicit)
	}
}

func TestStructure_QuestionSwap(t *testing.T) {
	t.Parallel()

	s := transcript.NewStructurer(newEngine(t, attribution.WithState(attribution.State{
		Current:  "Chairman Smith",
		Previous: "Senator Cramer",
	})))

	rec, err := s.Structure(context.Background(), "Can you explain the budget request?")
	if err != nil {
		t.Fatalf("Structure: unexpected error: %v", err)
	}
	if rec.Speaker != "Senator Cramer" {
		t.Errorf("Speaker = %q, want %q", rec.Speaker, "Senator Cramer")
	}
	if rec.Text != "Can you explain the budget request?" {
		t.Errorf("Text = %q, want the segment text unchanged", rec.Text)
	}
}

func TestStructure_Fallback(t *testing.T) {
	t.Parallel()

	s := transcript.NewStructurer(newEngine(t))
	rec, err := s.Structure(context.Background(), "good morning")
	if err != nil {
		t.Fatalf("Structure: unexpected error: %v", err)
	}
	if got, want := rec.String(), "**Speaker:** good morning"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
}

type stubAttributor struct {
	a   attribution.Attribution
	err error
}

func (s stubAttributor) Attribute(context.Context, string) (attribution.Attribution, error) {
	return s.a, s.err
}

func TestStructure_Error(t *testing.T) {
	t.Parallel()

	want := errors.New("disk full")
	s := transcript.NewStructurer(stubAttributor{err: want})
	if _, err := s.Structure(context.Background(), "anything"); !errors.Is(err, want) {
		t.Fatalf("Structure error = %v, want %v", err, want)
	}
}

func TestStructure_EmptySpeakerNeverEscapes(t *testing.T) {
	t.Parallel()

	s := transcript.NewStructurer(stubAttributor{a: attribution.Attribution{}})
	rec, err := s.Structure(context.Background(), "text")
	if err != nil {
		t.Fatalf("Structure: unexpected error: %v", err)
	}
	if rec.Speaker != attribution.FallbackSpeaker {
		t.Errorf("Speaker = %q, want %q", rec.Speaker, attribution.FallbackSpeaker)
	}
}
