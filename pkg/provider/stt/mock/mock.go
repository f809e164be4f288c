// Package mock provides a test double for the stt package interfaces.
//
// Example:
//
//	p := &mock.Provider{Responses: []stt.Transcript{{Text: "Chairman Smith: order."}}}
//	tr, _ := p.Transcribe(ctx, r, "segment-001.wav")
package mock

import (
	"context"
	"io"
	"sync"

	"github.com/MrWong99/hearscribe/pkg/provider/stt"
)

// TranscribeCall records a single invocation of Provider.Transcribe.
type TranscribeCall struct {
	// Filename is the upload name passed to Transcribe.
	Filename string
	// Audio holds the bytes read from the audio reader.
	Audio []byte
}

// Provider is a mock implementation of stt.Provider. Responses are returned
// in order; once exhausted, the last response repeats.
type Provider struct {
	mu sync.Mutex

	// Responses are returned by successive Transcribe calls.
	Responses []stt.Transcript

	// Err, if non-nil, is returned by every Transcribe call.
	Err error

	// Calls records every call to Transcribe.
	Calls []TranscribeCall
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe records the call and returns the next response or Err.
func (p *Provider) Transcribe(ctx context.Context, audio io.Reader, filename string) (stt.Transcript, error) {
	data, _ := io.ReadAll(audio)

	p.mu.Lock()
	defer p.mu.Unlock()

	n := len(p.Calls)
	p.Calls = append(p.Calls, TranscribeCall{Filename: filename, Audio: data})
	if p.Err != nil {
		return stt.Transcript{}, p.Err
	}
	if err := ctx.Err(); err != nil {
		return stt.Transcript{}, err
	}
	if len(p.Responses) == 0 {
		return stt.Transcript{}, nil
	}
	if n >= len(p.Responses) {
		n = len(p.Responses) - 1
	}
	return p.Responses[n], nil
}

// CallCount returns the number of Transcribe calls made so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
