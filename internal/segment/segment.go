// Package segment supplies the stream of transcribed speech segments that
// feed the attribution pipeline.
//
// A [Source] yields one [Segment] per call to Next and returns io.EOF once
// the input is exhausted. Two sources are provided: [LineSource] reads one
// segment per non-empty line of text, and [AudioSource] transcribes a
// directory of recorded audio files through an stt.Provider.
package segment

import (
	"context"
	"regexp"
	"strings"
	"time"
)

// Segment is the raw text of one recording interval.
type Segment struct {
	// Text is the transcribed speech, unmodified.
	Text string

	// Time is when the segment was captured or read.
	Time time.Time

	// Origin identifies where the segment came from (a line number or an
	// audio file name). Used for logging only.
	Origin string
}

// Source yields segments in order.
type Source interface {
	// Next returns the next segment. It returns io.EOF when no segments
	// remain and ctx.Err() when ctx is cancelled.
	Next(ctx context.Context) (Segment, error)
}

// sentinelRe matches the placeholder texts written in place of a failed
// transcription, e.g. "[Request Error: Transcription failed]".
var sentinelRe = regexp.MustCompile(`^\[(?:SSL|Request|Unknown) Error: [^\]]*\]$`)

// Skippable reports whether text carries no speech worth attributing: it is
// blank or a transcription error sentinel.
func Skippable(text string) bool {
	t := strings.TrimSpace(text)
	return t == "" || sentinelRe.MatchString(t)
}

// Option configures a source.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock overrides the time source used to stamp segments.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}
