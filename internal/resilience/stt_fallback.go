package resilience

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/MrWong99/hearscribe/pkg/provider/stt"
)

// STTFallback implements [stt.Provider] over a [Group] of transcription
// backends. A segment that one backend rejects is re-sent to the next.
type STTFallback struct {
	group *Group[stt.Provider]
}

var _ stt.Provider = (*STTFallback)(nil)

// NewSTTFallback returns an [STTFallback] preferring primary. Unless cfg
// says otherwise, [stt.ErrEmptyAudio] is not held against a backend.
func NewSTTFallback(primary stt.Provider, name string, cfg BreakerConfig) *STTFallback {
	if cfg.Counts == nil {
		cfg.Counts = countsSTT
	}
	return &STTFallback{group: NewGroup(primary, name, cfg)}
}

// countsSTT excludes errors caused by the segment itself.
func countsSTT(err error) bool {
	return !errors.Is(err, stt.ErrEmptyAudio)
}

// AddFallback registers p to be tried after the backends already added.
func (f *STTFallback) AddFallback(name string, p stt.Provider) {
	f.group.Add(name, p)
}

// Names returns the backend names in try order.
func (f *STTFallback) Names() []string {
	return f.group.Names()
}

// Transcribe implements [stt.Provider]. The audio is buffered once so each
// backend receives the complete segment.
func (f *STTFallback) Transcribe(ctx context.Context, audio io.Reader, filename string) (stt.Transcript, error) {
	data, err := io.ReadAll(audio)
	if err != nil {
		return stt.Transcript{}, fmt.Errorf("resilience: read %q: %w", filename, err)
	}
	return Do(ctx, f.group, func(p stt.Provider) (stt.Transcript, error) {
		return p.Transcribe(ctx, bytes.NewReader(data), filename)
	})
}
