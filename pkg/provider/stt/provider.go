// Package stt defines the Provider interface for batch Speech-to-Text
// backends.
//
// A provider receives one recorded segment at a time (typically a short WAV
// file) and returns its transcription. Streaming recognition is not needed:
// the attribution pipeline consumes whole segments.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrEmptyAudio is returned when a provider is asked to transcribe an empty
// audio stream.
var ErrEmptyAudio = errors.New("stt: empty audio")

// Transcript is the result of transcribing one audio segment.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// Language is the language reported by the provider, if any.
	Language string

	// Duration is the length of the transcribed audio as reported by the
	// provider. Zero when unknown.
	Duration time.Duration
}

// Provider is the abstraction over any batch STT backend.
type Provider interface {
	// Transcribe uploads audio and returns its transcription. filename is
	// used as the upload name and lets the backend infer the audio format
	// from its extension.
	//
	// Returns an error if the request fails or ctx is cancelled. Providers do
	// not retry internally.
	Transcribe(ctx context.Context, audio io.Reader, filename string) (Transcript, error)
}
